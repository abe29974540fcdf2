// Package domain defines the core domain types and interfaces.
//
// This package contains concept-oriented files (errors.go, canvas.go, cooldown.go, command.go, editlog.go)
// with shared types and cross-cutting interfaces. Only the wire protocol codec carries logic.
// Prevents circular imports by keeping interfaces on the consumer side.
package domain
