package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pscheid92/pixelwall/internal/domain"
)

const appendTimeout = 5 * time.Second

// LogEntry is one persisted batch.
type LogEntry struct {
	ID        int64     `db:"id"`
	Data      string    `db:"data"`
	CreatedAt time.Time `db:"created_at"`
}

// EditLogRepo stores serialized edit batches, one row per batch.
type EditLogRepo struct {
	pool *pgxpool.Pool
}

var _ domain.EditLogStore = (*EditLogRepo)(nil)

func NewEditLogRepo(pool *pgxpool.Pool) *EditLogRepo {
	return &EditLogRepo{pool: pool}
}

// EnsureSchema creates the logs table if it does not exist yet.
func (r *EditLogRepo) EnsureSchema(ctx context.Context) error {
	return RunMigrationsWithLock(ctx, r.pool)
}

// AppendBatch inserts one serialized batch. Failures caused by an unreachable
// or overloaded database wrap domain.ErrStoreUnavailable.
func (r *EditLogRepo) AppendBatch(ctx context.Context, batch string) error {
	ctx, cancel := context.WithTimeout(ctx, appendTimeout)
	defer cancel()

	if _, err := r.pool.Exec(ctx, "INSERT INTO logs (data) VALUES ($1)", batch); err != nil {
		return classifyError(err)
	}
	return nil
}

// Recent returns the latest limit batches, newest first.
func (r *EditLogRepo) Recent(ctx context.Context, limit int) ([]LogEntry, error) {
	rows, err := r.pool.Query(ctx, "SELECT id, data, created_at FROM logs ORDER BY id DESC LIMIT $1", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query edit log: %w", err)
	}

	entries, err := pgx.CollectRows(rows, pgx.RowToStructByName[LogEntry])
	if err != nil {
		return nil, fmt.Errorf("failed to scan edit log: %w", err)
	}
	return entries, nil
}

// classifyError maps SQLSTATE classes 08 (connection), 53 (insufficient
// resources) and 57P (operator intervention) to domain.ErrStoreUnavailable.
// Other server errors are permanent for the batch that caused them; errors
// that never reached the server count as unavailable.
func classifyError(err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("append edit batch: %w", err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if isUnavailableCode(pgErr.Code) {
			return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
		}
		return fmt.Errorf("append edit batch: %w", err)
	}

	return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
}

func isUnavailableCode(code string) bool {
	return strings.HasPrefix(code, "08") || strings.HasPrefix(code, "53") || strings.HasPrefix(code, "57P")
}
