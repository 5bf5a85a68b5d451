package sqlitecache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrMiss is returned by Get for absent or expired keys.
var ErrMiss = errors.New("cache miss")

// Cache implements ports.AddressCache in a local SQLite file, so geocodes
// survive daemon restarts without a cache server.
type Cache struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates or opens the cache database at path.
func Open(path string) (*Cache, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS geocode_cache (
		key        TEXT PRIMARY KEY,
		value      BLOB NOT NULL,
		fetched_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		expires_at INTEGER
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}
	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_geocode_cache_expires_at ON geocode_cache(expires_at)`)

	return &Cache{db: db, now: time.Now}, nil
}

// Get returns the value for key, or ErrMiss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	var (
		value   []byte
		expires sql.NullInt64
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM geocode_cache WHERE key = ?`, key,
	).Scan(&value, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	if expires.Valid && c.now().Unix() >= expires.Int64 {
		_, _ = c.db.ExecContext(ctx, `DELETE FROM geocode_cache WHERE key = ?`, key)
		return nil, ErrMiss
	}
	return value, nil
}

// Set stores value under key. ttlSeconds of zero never expires.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	var expires any
	if ttlSeconds > 0 {
		expires = c.now().Add(time.Duration(ttlSeconds) * time.Second).Unix()
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO geocode_cache(key, value, fetched_at, expires_at) VALUES(?, ?, CURRENT_TIMESTAMP, ?)`,
		key, value, expires,
	)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Ping checks the database file is usable.
func (c *Cache) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Cache) Close() error {
	return c.db.Close()
}
