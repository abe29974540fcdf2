package canvas

import (
	"fmt"
	"sync"

	"github.com/pscheid92/pixelwall/internal/domain"
)

// Canvas is an N×N grid of colors addressed by a 0-based row-major index.
// Writes are unconditional replaces; the last writer wins.
type Canvas struct {
	mu    sync.RWMutex
	size  int
	cells []domain.Color
}

// New creates a size×size canvas with every cell set to fill.
func New(size int, fill domain.Color) (*Canvas, error) {
	if size <= 0 {
		return nil, fmt.Errorf("canvas size must be positive, got %d", size)
	}

	cells := make([]domain.Color, size*size)
	for i := range cells {
		cells[i] = fill
	}
	return &Canvas{size: size, cells: cells}, nil
}

// Size returns the side length N.
func (c *Canvas) Size() int {
	return c.size
}

// Len returns the number of cells (N*N).
func (c *Canvas) Len() int {
	return len(c.cells)
}

// Contains reports whether index addresses a cell.
func (c *Canvas) Contains(index int) bool {
	return index >= 0 && index < len(c.cells)
}

func (c *Canvas) Get(index int) (domain.Color, error) {
	if !c.Contains(index) {
		return "", fmt.Errorf("get cell %d: %w", index, domain.ErrOutOfRange)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cells[index], nil
}

func (c *Canvas) Set(index int, color domain.Color) error {
	if !c.Contains(index) {
		return fmt.Errorf("set cell %d: %w", index, domain.ErrOutOfRange)
	}

	c.mu.Lock()
	c.cells[index] = color
	c.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the whole grid taken under a single read lock.
func (c *Canvas) Snapshot() []domain.Color {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.Color, len(c.cells))
	copy(out, c.cells)
	return out
}
