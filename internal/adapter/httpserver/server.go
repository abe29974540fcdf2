package httpserver

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/pscheid92/pixelwall/internal/adapter/metrics"
	"github.com/pscheid92/pixelwall/internal/app"
	"github.com/pscheid92/pixelwall/internal/domain"
	"github.com/pscheid92/pixelwall/internal/platform/config"
	"github.com/pscheid92/pixelwall/web"
)

type canvasService interface {
	View() domain.CanvasView
	Serve(ctx context.Context, conn app.SessionConn) error
}

// Observability bundles what the server exposes and records. Any field may be nil.
type Observability struct {
	MetricsHandler http.Handler
	HTTP           *metrics.HTTPMetrics
	WebSocket      *metrics.WebSocketMetrics
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	app        canvasService
	limits     *ConnectionLimits
	identities *IdentityStore
	upgrader   websocket.Upgrader

	templates    *template.Template
	obs          Observability
	healthChecks []HealthCheck
	startTime    time.Time
}

func NewServer(cfg *config.Config, app canvasService, limits *ConnectionLimits, obs Observability, healthChecks []HealthCheck) (*Server, error) {
	templates, err := template.ParseFS(web.TemplateFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:       e,
		config:     cfg,
		app:        app,
		limits:     limits,
		identities: NewIdentityStore(cfg.SessionSecret, cfg.IdentityMaxAge, cfg.IsProduction()),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     newCheckOrigin(!cfg.IsProduction()),
		},
		templates:    templates,
		obs:          obs,
		healthChecks: healthChecks,
		startTime:    time.Now(),
	}

	srv.registerRoutes()

	return srv, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight HTTP requests.
// Hijacked websocket connections are not tracked by the HTTP server; they end
// when the registry is stopped.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

func (s *Server) renderTemplate(c echo.Context, name string, data any) error {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		slog.ErrorContext(c.Request().Context(), "Template execution failed", "path", c.Request().URL.Path, "error", err)
		if err := c.String(http.StatusInternalServerError, "Failed to render page"); err != nil {
			return fmt.Errorf("failed to send error response: %w", err)
		}
		return nil
	}
	if err := c.HTMLBlob(http.StatusOK, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to send HTML response: %w", err)
	}
	return nil
}
