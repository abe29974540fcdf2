package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/pixelwall/internal/adapter/metrics"
	"github.com/pscheid92/pixelwall/internal/broadcast"
	"github.com/pscheid92/pixelwall/internal/domain"
)

// Board is the shared grid.
type Board interface {
	Size() int
	Contains(index int) bool
	Set(index int, color domain.Color) error
	Snapshot() []domain.Color
}

// Hub delivers messages to connected clients.
type Hub interface {
	Register(conn broadcast.Conn) error
	Unregister(conn broadcast.Conn)
	Broadcast(message []byte)
	SendTo(conn broadcast.Conn, message []byte)
	Count() int
}

// Service is the application layer. It is the only component that references
// the board, the cooldown gate, the hub and the edit log together.
type Service struct {
	board    Board
	gate     domain.CooldownGate
	hub      Hub
	editLog  domain.EditLogger
	clock    clockwork.Clock
	cellSize int
	metrics  *metrics.CanvasMetrics

	// mutationMu spans apply, broadcast and log enqueue so clients and the edit
	// log see edits to one cell in the order the board applied them.
	mutationMu sync.Mutex
}

// NewService creates the application layer service. m may be nil.
func NewService(board Board, gate domain.CooldownGate, hub Hub, editLog domain.EditLogger, clock clockwork.Clock, cellSize int, m *metrics.CanvasMetrics) *Service {
	return &Service{
		board:    board,
		gate:     gate,
		hub:      hub,
		editLog:  editLog,
		clock:    clock,
		cellSize: cellSize,
		metrics:  m,
	}
}

// View returns what a new visitor needs to render the canvas.
func (s *Service) View() domain.CanvasView {
	return domain.CanvasView{
		Cells:    s.board.Snapshot(),
		Size:     s.board.Size(),
		CellSize: s.cellSize,
		Online:   s.hub.Count(),
	}
}

// HandleCommand processes one raw edit command received on conn.
//
// Malformed commands and out-of-range cells return an error and change nothing;
// the cooldown is only consulted for edits that could be applied. A cooldown
// rejection is not an error: the originator gets a cooldown notice instead.
func (s *Service) HandleCommand(ctx context.Context, conn broadcast.Conn, raw string) error {
	cmd, err := domain.ParseEditCommand(raw)
	if err != nil {
		s.countEdit("malformed")
		return err
	}

	if !s.board.Contains(cmd.Index) {
		s.countEdit("out_of_range")
		return fmt.Errorf("cell %s: %w", domain.CellToken(cmd.Index), domain.ErrOutOfRange)
	}

	admission, err := s.gate.TryAdmit(ctx, cmd.Identity, s.clock.Now())
	if err != nil {
		s.countEdit("error")
		return fmt.Errorf("cooldown check failed: %w", err)
	}

	if !admission.Admitted {
		s.countEdit("cooldown")
		s.hub.SendTo(conn, []byte(domain.FormatCooldown(admission.Remaining)))
		return nil
	}

	if err := s.apply(cmd); err != nil {
		s.countEdit("error")
		return err
	}
	s.countEdit("accepted")
	return nil
}

func (s *Service) apply(cmd domain.EditCommand) error {
	s.mutationMu.Lock()
	defer s.mutationMu.Unlock()

	if err := s.board.Set(cmd.Index, cmd.Color); err != nil {
		return fmt.Errorf("failed to apply edit: %w", err)
	}
	s.hub.Broadcast([]byte(domain.FormatEdit(cmd.Index, cmd.Color)))
	s.editLog.Enqueue(domain.EditRecord{
		Cell:      cmd.Index,
		Color:     cmd.Color,
		Identity:  cmd.Identity,
		Timestamp: s.clock.Now().UTC(),
	})
	return nil
}

func (s *Service) countEdit(result string) {
	if s.metrics != nil {
		s.metrics.EditsTotal.WithLabelValues(result).Inc()
	}
}
