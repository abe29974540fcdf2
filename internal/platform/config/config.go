package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv        string `env:"APP_ENV" default:"development"`
	Port          string `env:"PORT" default:"8080"`
	DatabaseURL   string `env:"DATABASE_URL"`
	RedisURL      string `env:"REDIS_URL"`
	SessionSecret string `env:"SESSION_SECRET"`
	LogLevel      string `env:"LOG_LEVEL" default:"info"`
	LogFormat     string `env:"LOG_FORMAT" default:"text"`

	CanvasSize   int    `env:"CANVAS_SIZE" default:"10"`
	CellSize     int    `env:"CELL_SIZE" default:"40"`
	DefaultColor string `env:"DEFAULT_COLOR" default:"green"`

	CooldownWindow        time.Duration `env:"COOLDOWN_WINDOW" default:"3s"`
	CooldownSweepInterval time.Duration `env:"COOLDOWN_SWEEP_INTERVAL" default:"1m"`

	LogFlushThreshold    int           `env:"LOG_FLUSH_THRESHOLD" default:"100"`
	LogMaxPendingBatches int           `env:"LOG_MAX_PENDING_BATCHES" default:"50"`
	LogRetryInterval     time.Duration `env:"LOG_RETRY_INTERVAL" default:"5s"`

	MaxWebSocketConnections int     `env:"MAX_WEBSOCKET_CONNECTIONS" default:"10000"`
	MaxConnectionsPerIP     int     `env:"MAX_CONNECTIONS_PER_IP" default:"20"`
	ConnectionRatePerSecond float64 `env:"CONNECTION_RATE_PER_SECOND" default:"5"`
	ConnectionRateBurst     int     `env:"CONNECTION_RATE_BURST" default:"10"`

	IdentityMaxAge time.Duration `env:"IDENTITY_MAX_AGE" default:"87600h"` // 10 years
}

// IsProduction reports whether APP_ENV selects the production profile.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if cfg.SessionSecret == "" {
		return errors.New("SESSION_SECRET is required")
	}

	positive := []struct {
		name  string
		value int
	}{
		{"CANVAS_SIZE", cfg.CanvasSize},
		{"CELL_SIZE", cfg.CellSize},
		{"LOG_FLUSH_THRESHOLD", cfg.LogFlushThreshold},
		{"LOG_MAX_PENDING_BATCHES", cfg.LogMaxPendingBatches},
		{"MAX_WEBSOCKET_CONNECTIONS", cfg.MaxWebSocketConnections},
		{"MAX_CONNECTIONS_PER_IP", cfg.MaxConnectionsPerIP},
		{"CONNECTION_RATE_BURST", cfg.ConnectionRateBurst},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", p.name, p.value)
		}
	}

	if cfg.DefaultColor == "" {
		return errors.New("DEFAULT_COLOR must not be empty")
	}
	if cfg.CooldownWindow <= 0 {
		return fmt.Errorf("COOLDOWN_WINDOW must be positive, got %s", cfg.CooldownWindow)
	}
	if cfg.CooldownSweepInterval <= 0 {
		return fmt.Errorf("COOLDOWN_SWEEP_INTERVAL must be positive, got %s", cfg.CooldownSweepInterval)
	}
	if cfg.LogRetryInterval <= 0 {
		return fmt.Errorf("LOG_RETRY_INTERVAL must be positive, got %s", cfg.LogRetryInterval)
	}
	if cfg.ConnectionRatePerSecond <= 0 {
		return fmt.Errorf("CONNECTION_RATE_PER_SECOND must be positive, got %g", cfg.ConnectionRatePerSecond)
	}

	if cfg.IsProduction() {
		mode := sslMode(cfg.DatabaseURL)
		if mode == "disable" || mode == "allow" {
			return fmt.Errorf("DATABASE_URL uses sslmode=%s which is not allowed in production", mode)
		}
	}

	return nil
}

func sslMode(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Query().Get("sslmode"))
}
