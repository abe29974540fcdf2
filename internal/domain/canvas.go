package domain

import "time"

// Color is an opaque color token (CSS name or hex code). It is stored and rebroadcast verbatim.
type Color string

// EditRecord is one accepted edit, produced for the durable edit log.
type EditRecord struct {
	Cell      int       `json:"cell"`
	Color     Color     `json:"color"`
	Identity  string    `json:"identity"`
	Timestamp time.Time `json:"ts"`
}

// CanvasView is the read-only data needed to render the first view of the canvas.
type CanvasView struct {
	Cells    []Color
	Size     int
	CellSize int
	Online   int
}
