package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultMaxConns = 8

// DB wraps the pgx pool backing the marker document store.
type DB struct {
	Pool *pgxpool.Pool
}

// New connects and pings. maxConns <= 0 uses a small default sized for a
// single-observer daemon.
func New(ctx context.Context, dsn string, maxConns int32) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	if maxConns <= 0 {
		maxConns = defaultMaxConns
	}
	cfg.MaxConns = maxConns
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Ping reports whether the database answers.
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Stat exposes pool counters for the metrics collector.
func (db *DB) Stat() *pgxpool.Stat {
	return db.Pool.Stat()
}

// Close releases pool resources.
func (db *DB) Close() {
	db.Pool.Close()
}
