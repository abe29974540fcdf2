// Package canvas holds the in-process state of the shared board: the grid of
// cell colors and the per-identity edit cooldown.
package canvas
