// Package app provides the application service layer.
//
// Orchestrates the edit use case (parse, bounds check, cooldown, apply, broadcast, log)
// and runs one EditSession per websocket connection. Depends on small interfaces,
// not on concrete adapters.
package app
