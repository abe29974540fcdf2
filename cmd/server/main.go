package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/pixelwall/internal/adapter/httpserver"
	"github.com/pscheid92/pixelwall/internal/adapter/metrics"
	"github.com/pscheid92/pixelwall/internal/adapter/postgres"
	"github.com/pscheid92/pixelwall/internal/adapter/redis"
	"github.com/pscheid92/pixelwall/internal/app"
	"github.com/pscheid92/pixelwall/internal/broadcast"
	"github.com/pscheid92/pixelwall/internal/canvas"
	"github.com/pscheid92/pixelwall/internal/domain"
	"github.com/pscheid92/pixelwall/internal/editlog"
	"github.com/pscheid92/pixelwall/internal/platform/config"
	"github.com/pscheid92/pixelwall/internal/platform/logging"
	"github.com/pscheid92/pixelwall/internal/platform/version"
)

const shutdownTimeout = 10 * time.Second

type shutdownDeps struct {
	srv      *httpserver.Server
	registry *broadcast.Registry
	editLog  *editlog.Buffer
	stopHook func()
}

// runGracefulShutdown stops the components in dependency order: no new
// requests, then close frames to every client, then a final edit log flush.
func runGracefulShutdown(deps shutdownDeps) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := deps.srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		deps.registry.Stop()
		deps.stopHook()

		flushCtx, cancelFlush := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelFlush()
		if err := deps.editLog.Close(flushCtx); err != nil {
			slog.Error("Edit log flush incomplete", "error", err)
		}

		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config, m *metrics.StoreMetrics) (*pgxpool.Pool, *postgres.EditLogRepo) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, postgres.NewMetricsTracer(m))
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	repo := postgres.NewEditLogRepo(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		slog.Error("Failed to ensure edit log schema", "error", err)
		os.Exit(1)
	}

	return pool, repo
}

// setupCooldown returns the cooldown gate and, when Redis is configured, its
// client. The in-memory gate is always built: it is either the gate itself or
// the fallback used while Redis is unreachable.
func setupCooldown(cfg *config.Config, clock clockwork.Clock, m *metrics.StoreMetrics) (domain.CooldownGate, *canvas.CooldownGate, *goredis.Client) {
	memory := canvas.NewCooldownGate(cfg.CooldownWindow, clock)
	if cfg.RedisURL == "" {
		slog.Info("REDIS_URL not set, using in-memory cooldown")
		return memory, memory, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := redis.NewClient(ctx, cfg.RedisURL, redis.NewMetricsHook(m), redis.NewCircuitBreakerHook(m))
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	gate := app.NewFallbackGate(redis.NewCooldownGate(client, cfg.CooldownWindow), memory, m)
	return gate, memory, client
}

func healthChecks(registry *broadcast.Registry, pool *pgxpool.Pool, redisClient *goredis.Client) []httpserver.HealthCheck {
	checks := []httpserver.HealthCheck{
		{Name: "registry", Check: registry.Ping},
		{Name: "postgres", Check: pool.Ping},
	}
	if redisClient != nil {
		checks = append(checks, httpserver.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}
	return checks
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", version.Get().String())

	reg := metrics.NewRegistry()
	storeMetrics := metrics.NewStoreMetrics(reg)
	wsMetrics := metrics.NewWebSocketMetrics(reg)

	pool, repo := setupDB(cfg, storeMetrics)
	defer pool.Close()

	gate, memoryGate, redisClient := setupCooldown(cfg, clock, storeMetrics)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}
	stopEviction := memoryGate.StartEvictionTimer(cfg.CooldownSweepInterval)

	board, err := canvas.New(cfg.CanvasSize, domain.Color(cfg.DefaultColor))
	if err != nil {
		slog.Error("Failed to create canvas", "error", err)
		os.Exit(1)
	}

	editLog := editlog.NewBuffer(repo, editlog.Config{
		Threshold:     cfg.LogFlushThreshold,
		MaxPending:    cfg.LogMaxPendingBatches,
		RetryInterval: cfg.LogRetryInterval,
	}, clock, metrics.NewEditLogMetrics(reg))

	registry := broadcast.NewRegistry(clock, cfg.MaxWebSocketConnections, func(n int) []byte {
		return []byte(domain.FormatOnline(n))
	}, wsMetrics)

	appSvc := app.NewService(board, gate, registry, editLog, clock, cfg.CellSize, metrics.NewCanvasMetrics(reg))

	limits := httpserver.NewConnectionLimits(clock, cfg.MaxWebSocketConnections, cfg.MaxConnectionsPerIP, cfg.ConnectionRatePerSecond, cfg.ConnectionRateBurst)
	obs := httpserver.Observability{
		MetricsHandler: metrics.Handler(reg),
		HTTP:           metrics.NewHTTPMetrics(reg, httpserver.WebSocketRoute),
		WebSocket:      wsMetrics,
	}
	srv, err := httpserver.NewServer(cfg, appSvc, limits, obs, healthChecks(registry, pool, redisClient))
	if err != nil {
		slog.Error("Failed to create server", "error", err)
		os.Exit(1)
	}

	done := runGracefulShutdown(shutdownDeps{
		srv:      srv,
		registry: registry,
		editLog:  editLog,
		stopHook: stopEviction,
	})

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
