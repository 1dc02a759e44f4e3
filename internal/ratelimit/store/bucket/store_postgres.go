package bucket

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"bastion/internal/ratelimit/models"
	"bastion/pkg/platform/middleware/requesttime"
)

// PostgresBucketStore persists hits in rate_limit_events. Each Allow runs under
// a transaction-scoped advisory lock on the key so concurrent nodes serialize.
type PostgresBucketStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresBucketStore {
	return &PostgresBucketStore{db: db}
}

func (s *PostgresBucketStore) Allow(ctx context.Context, key string, limit models.Limit) (*models.RateLimitResult, error) {
	if err := validate(key, limit); err != nil {
		return nil, err
	}

	now := requesttime.Now(ctx)
	cutoff := now.Add(-limit.Window)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin rate limit tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1)::bigint)`, key); err != nil {
		return nil, fmt.Errorf("acquire rate limit lock: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM rate_limit_events WHERE key = $1 AND occurred_at <= $2`, key, cutoff); err != nil {
		return nil, fmt.Errorf("cleanup rate limit events: %w", err)
	}

	var (
		current int
		oldest  sql.NullTime
	)
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*), MIN(occurred_at) FROM rate_limit_events WHERE key = $1`, key,
	).Scan(&current, &oldest)
	if err != nil {
		return nil, fmt.Errorf("count rate limit events: %w", err)
	}

	allowed := current < limit.Requests
	resetAt := now.Add(limit.Window)
	if oldest.Valid {
		resetAt = oldest.Time.Add(limit.Window)
	}

	if allowed {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO rate_limit_events (key, occurred_at) VALUES ($1, $2)`, key, now,
		); err != nil {
			return nil, fmt.Errorf("insert rate limit event: %w", err)
		}
		current++
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit rate limit tx: %w", err)
	}

	return models.NewResult(allowed, limit.Requests, limit.Requests-current, resetAt, now), nil
}

func (s *PostgresBucketStore) Reset(ctx context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("rate limit key is required")
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM rate_limit_events WHERE key = $1`, key); err != nil {
		return fmt.Errorf("reset rate limit: %w", err)
	}
	return nil
}

// DeleteBefore removes events older than cutoff across all keys.
func (s *PostgresBucketStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rate_limit_events WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired rate limit events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}
