package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/syncwatch/internal/config"
)

// Connect creates a connection pool and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	connStr := BuildConnString(cfg)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// schema creates the status history table. It is idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS status_history (
	id                UUID PRIMARY KEY,
	instance_id       TEXT NOT NULL,
	tier              TEXT NOT NULL,
	state             TEXT NOT NULL,
	round_trip_us     BIGINT,
	since_sync_us     BIGINT,
	network_label     TEXT NOT NULL DEFAULT '',
	summary           TEXT NOT NULL,
	recorded_at       BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS status_history_instance_recorded_idx
	ON status_history (instance_id, recorded_at DESC);
`

// EnsureSchema creates the status history table if it does not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}
