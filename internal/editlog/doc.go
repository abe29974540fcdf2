// Package editlog batches accepted edits in memory and persists them to a
// durable store from a background flusher, so the edit path never waits on I/O.
package editlog
