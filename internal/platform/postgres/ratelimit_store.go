package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/phrazzld/prep-api/internal/ratelimit"
)

// RateLimitStore implements ratelimit.Store on the rate_limit_buckets table.
type RateLimitStore struct {
	db *sql.DB
}

var _ ratelimit.Store = (*RateLimitStore)(nil)

// NewRateLimitStore creates a store on db. The caller owns the connection
// and must have applied the migrations.
func NewRateLimitStore(db *sql.DB) *RateLimitStore {
	return &RateLimitStore{db: db}
}

// The conditional upsert is atomic per row: concurrent callers serialize on
// the primary key and the WHERE clause refuses to pass the limit.
const incrementQuery = `
INSERT INTO rate_limit_buckets (key, window_start, window_end, count)
VALUES ($1, $2, $3, 1)
ON CONFLICT (key, window_start) DO UPDATE
    SET count = rate_limit_buckets.count + 1
    WHERE rate_limit_buckets.count < $4
RETURNING count`

const countQuery = `
SELECT count FROM rate_limit_buckets
WHERE key = $1 AND window_start = $2`

const deleteExpiredQuery = `
DELETE FROM rate_limit_buckets
WHERE window_end <= $1`

// IncrementIfBelow implements ratelimit.Store.
func (s *RateLimitStore) IncrementIfBelow(ctx context.Context, b ratelimit.Bucket, limit int) (int, bool, error) {
	start, end := b.Start.UTC(), b.End().UTC()

	var count int
	err := s.db.QueryRowContext(ctx, incrementQuery, b.Key, start, end, limit).Scan(&count)
	switch {
	case err == nil:
		return count, true, nil
	case !errors.Is(err, sql.ErrNoRows):
		return 0, false, fmt.Errorf("increment %s: %w", b.Key, MapError(err))
	}

	// The row exists and is full.
	if err := s.db.QueryRowContext(ctx, countQuery, b.Key, start).Scan(&count); err != nil {
		return 0, false, fmt.Errorf("read %s: %w", b.Key, MapError(err))
	}
	return count, false, nil
}

// DeleteExpired implements ratelimit.Store.
func (s *RateLimitStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, deleteExpiredQuery, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired buckets: %w", MapError(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}
