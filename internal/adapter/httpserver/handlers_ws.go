package httpserver

import (
	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/pscheid92/pixelwall/internal/platform/correlation"
	apperrors "github.com/pscheid92/pixelwall/internal/platform/errors"
)

// handleWebSocket admits, upgrades and then runs one edit session for the
// lifetime of the connection.
func (s *Server) handleWebSocket(c echo.Context) error {
	ctx := c.Request().Context()
	ip := c.RealIP()

	if ok, reason := s.limits.Acquire(ip); !ok {
		s.countDenied(string(reason))
		if reason == LimitReasonGlobal {
			return apperrors.UnavailableError("server is at connection capacity", nil).
				WithContext("reason", string(reason))
		}
		return apperrors.RateLimitedError("too many connections").
			WithContext("reason", string(reason))
	}
	defer s.limits.Release(ip)

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the error response.
		s.countDenied("upgrade")
		slog.DebugContext(ctx, "WebSocket upgrade failed", "remote_ip", ip, "error", err)
		return nil
	}

	if identity, ok := s.identities.Lookup(c.Request()); ok {
		ctx = correlation.WithIdentity(ctx, identity)
	}

	if err := s.app.Serve(ctx, conn); err != nil {
		s.countDenied("registry")
		slog.WarnContext(ctx, "Edit session refused", "remote_ip", ip, "error", err)
	}
	return nil
}

func (s *Server) countDenied(reason string) {
	if s.obs.WebSocket != nil {
		s.obs.WebSocket.ConnectionsDenied.WithLabelValues(reason).Inc()
	}
}
