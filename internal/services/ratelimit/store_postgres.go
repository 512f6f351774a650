package ratelimit

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// PostgresStore keeps windowed counters in the rate_limit table. A single
// upsert performs the increment-or-reset-or-insert step atomically via the
// engine's row-level guarantees.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const incrementQuery = `
	INSERT INTO rate_limit (identity_hash, count, window_start, expires_at)
	VALUES ($1, 1, $2, $3)
	ON CONFLICT (identity_hash) DO UPDATE SET
		count = CASE WHEN rate_limit.expires_at <= $2 THEN 1 ELSE rate_limit.count + 1 END,
		window_start = CASE WHEN rate_limit.expires_at <= $2 THEN $2 ELSE rate_limit.window_start END,
		expires_at = CASE WHEN rate_limit.expires_at <= $2 THEN $3 ELSE rate_limit.expires_at END
	RETURNING count, expires_at;
`

func (s *PostgresStore) Increment(ctx context.Context, identityHash string, now time.Time, window time.Duration) (int, time.Time, error) {
	var row struct {
		Count     int       `db:"count"`
		ExpiresAt time.Time `db:"expires_at"`
	}
	err := s.db.QueryRowxContext(ctx, incrementQuery, identityHash, now, now.Add(window)).StructScan(&row)
	if err != nil {
		return 0, time.Time{}, err
	}
	return row.Count, row.ExpiresAt, nil
}

const deleteExpiredQuery = `DELETE FROM rate_limit WHERE expires_at < $1;`

func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, deleteExpiredQuery, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
