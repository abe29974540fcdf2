package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pscheid92/pixelwall/internal/broadcast"
	"github.com/pscheid92/pixelwall/internal/domain"
	"github.com/pscheid92/pixelwall/internal/platform/correlation"
)

const (
	pongWait       = 60 * time.Second
	maxMessageSize = 512
)

// SessionConn is a client connection as seen by an edit session.
// *websocket.Conn satisfies it.
type SessionConn interface {
	broadcast.Conn
	ReadMessage() (messageType int, p []byte, err error)
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	SetReadLimit(limit int64)
}

type sessionState int

const (
	stateJoining sessionState = iota
	stateActive
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateJoining:
		return "joining"
	case stateActive:
		return "active"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Serve runs an edit session on conn until the client disconnects or ctx is
// cancelled. The connection is registered for the whole session and always
// unregistered on exit. Serve returns an error only if the session could not
// join; problems afterwards end the session quietly.
func (s *Service) Serve(ctx context.Context, conn SessionConn) error {
	if _, ok := correlation.ID(ctx); !ok {
		ctx = correlation.WithID(ctx, correlation.NewID())
	}
	state := stateJoining

	if err := s.hub.Register(conn); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to join session: %w", err)
	}
	slog.DebugContext(ctx, "Session joined", "state", state)

	stopAfter := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer func() {
		stopAfter()
		state = stateClosed
		s.hub.Unregister(conn)
		slog.DebugContext(ctx, "Session ended", "state", state)
	}()

	conn.SetReadLimit(maxMessageSize)
	extendReadDeadline(conn)
	conn.SetPongHandler(func(string) error {
		extendReadDeadline(conn)
		return nil
	})

	state = stateActive
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && ctx.Err() == nil {
				slog.DebugContext(ctx, "Session read failed", "state", state, "error", err)
			}
			return nil
		}
		extendReadDeadline(conn)

		if messageType != websocket.TextMessage {
			s.countEdit("malformed")
			slog.DebugContext(ctx, "Ignoring non-text frame", "message_type", messageType)
			continue
		}

		if err := s.HandleCommand(ctx, conn, string(data)); err != nil {
			logCommandError(ctx, err)
		}
	}
}

func logCommandError(ctx context.Context, err error) {
	if errors.Is(err, domain.ErrMalformedCommand) || errors.Is(err, domain.ErrOutOfRange) {
		slog.DebugContext(ctx, "Edit rejected", "error", err)
		return
	}
	slog.WarnContext(ctx, "Edit failed", "error", err)
}

// Network deadlines follow the wall clock, not the injected one.
func extendReadDeadline(conn SessionConn) {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
}
