package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/pscheid92/pixelwall/internal/domain"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		unavailable bool
	}{
		{"connection failure", &pgconn.PgError{Code: "08006", Message: "connection failure"}, true},
		{"too many connections", &pgconn.PgError{Code: "53300", Message: "too many connections"}, true},
		{"admin shutdown", &pgconn.PgError{Code: "57P01", Message: "terminating connection"}, true},
		{"string too long", &pgconn.PgError{Code: "22001", Message: "value too long"}, false},
		{"undefined table", &pgconn.PgError{Code: "42P01", Message: "relation does not exist"}, false},
		{"network error", errors.New("dial tcp: connection refused"), true},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyError(tt.err)
			assert.Equal(t, tt.unavailable, errors.Is(err, domain.ErrStoreUnavailable))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestExtractQueryName(t *testing.T) {
	assert.Equal(t, "INSERT", extractQueryName("INSERT INTO logs (data) VALUES ($1)"))
	assert.Equal(t, "SELECT", extractQueryName("\n  select id FROM logs"))
	assert.Equal(t, "unknown", extractQueryName(""))
}

func TestExtractSSLMode(t *testing.T) {
	assert.Equal(t, "require", extractSSLMode("postgres://u:p@host/db?sslmode=require"))
	assert.Equal(t, "prefer (default)", extractSSLMode("postgres://u:p@host/db"))
}
