package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	MaxConns        = 10
	MinConns        = 2
	MaxConnLifetime = 10 * time.Minute
	MaxConnIdleTime = 5 * time.Minute
)

func NewPostgresPool(ctx context.Context, databaseURL string, logger *slog.Logger) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing postgres config: %w", err)
	}

	// Configure the pool
	config.MaxConns = MaxConns
	config.MinConns = MinConns
	config.MaxConnLifetime = MaxConnLifetime
	config.MaxConnIdleTime = MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("error creating postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("error pinging postgres pool: %w", err)
	}

	logger.Info("postgres_pool_ready", "max_conns", MaxConns)
	return pool, nil
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS presence (
	user_id          TEXT PRIMARY KEY,
	status           TEXT NOT NULL CHECK (status IN ('online', 'away', 'offline')),
	current_page     TEXT,
	current_issue_id TEXT,
	last_seen        TIMESTAMPTZ NOT NULL,
	connection_hint  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS notifications (
	id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	user_id       TEXT NOT NULL,
	type          TEXT NOT NULL,
	title         TEXT NOT NULL,
	message       TEXT NOT NULL DEFAULT '',
	read          BOOLEAN NOT NULL DEFAULT FALSE,
	read_at       TIMESTAMPTZ,
	snoozed_until TIMESTAMPTZ,
	issue_id      TEXT,
	issue_key     TEXT,
	project_id    TEXT,
	action_url    TEXT,
	actor_id      TEXT,
	actor_name    TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_notifications_user_created ON notifications (user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_notifications_user_unread ON notifications (user_id) WHERE read = FALSE;
`

// MigratePostgres creates the presence and notification tables if they are missing.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to migrate postgres schema: %w", err)
	}
	return nil
}
