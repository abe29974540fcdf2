// Package broadcast implements the connection registry using the actor pattern.
//
// A single goroutine owns the set of connections and processes commands from a
// channel (no mutexes). Every connection has its own writer goroutine with a
// bounded queue, so a slow or dead client is dropped without delaying anyone else.
package broadcast
