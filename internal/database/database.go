package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const (
	maxOpenConns    = 25
	maxIdleConns    = 5
	connMaxLifetime = 5 * time.Minute
	connectTimeout  = 10 * time.Second
)

const schema = `
	CREATE TABLE IF NOT EXISTS rate_limit (
		identity_hash TEXT PRIMARY KEY,
		count         INTEGER     NOT NULL DEFAULT 0,
		window_start  TIMESTAMPTZ NOT NULL,
		expires_at    TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rate_limit_expires_at ON rate_limit (expires_at);

	CREATE TABLE IF NOT EXISTS conversion_metric (
		id                 UUID PRIMARY KEY,
		identity_hash      TEXT        NOT NULL,
		input_format       TEXT        NOT NULL,
		output_format      TEXT        NOT NULL,
		input_bytes        BIGINT      NOT NULL,
		output_bytes       BIGINT,
		processing_ms      BIGINT      NOT NULL,
		success            BOOLEAN     NOT NULL,
		error_message      TEXT,
		conversion_options JSONB       NOT NULL DEFAULT '{}',
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_conversion_metric_created_at ON conversion_metric (created_at);
`

// Connect opens the Postgres pool, verifies the connection and applies the
// schema. Tables are created on first boot so a fresh database works without
// a separate migration step.
func Connect(databaseURL string, logger *zap.Logger) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	logger.Info("database connected and schema applied")
	return db, nil
}
