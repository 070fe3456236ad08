// Package postgres provides a durable event log on PostgreSQL.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a pgx connection pool.
type DB struct {
	Pool *pgxpool.Pool
}

// Connect opens a pool for dsn and creates the schema if needed.
func Connect(ctx context.Context, dsn string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	db := &DB{Pool: pool}
	if err := db.Ready(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return db, nil
}

// Close releases the pool. It always returns nil; the error result lets DB
// satisfy the same Close signature as the other logs.
func (db *DB) Close() error {
	if db.Pool != nil {
		db.Pool.Close()
	}
	return nil
}

// Ready reports whether the database answers queries.
func (db *DB) Ready(ctx context.Context) error {
	var one int
	return db.Pool.QueryRow(ctx, "select 1").Scan(&one)
}

const schema = `
CREATE TABLE IF NOT EXISTS webhook_events (
	seq         BIGINT PRIMARY KEY,
	id          TEXT NOT NULL UNIQUE,
	received_at TIMESTAMPTZ NOT NULL,
	event_type  TEXT NOT NULL,
	raw_payload BYTEA NOT NULL,
	fields      JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS webhook_events_type_seq ON webhook_events(event_type, seq);
CREATE INDEX IF NOT EXISTS webhook_events_received_at ON webhook_events(received_at);
`

// Migrate creates the events table and its indexes.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("exec migration: %w", err)
	}
	return nil
}
