// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/woktalk/recipe-engine/internal/recipe"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// CacheStoreConfig controls the Postgres connection pool used for cache rows.
type CacheStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// CacheStore persists recipe payloads in Postgres so cache hits survive process
// restarts. Expected schema:
//
//	CREATE TABLE recipe_cache (
//		video_id   TEXT PRIMARY KEY,
//		payload    JSONB NOT NULL,
//		expires_at TIMESTAMPTZ
//	);
type CacheStore struct {
	pool  pool
	table string
}

// NewCacheStore creates a Postgres-backed CacheStore using the provided config.
func NewCacheStore(ctx context.Context, cfg CacheStoreConfig) (*CacheStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("cache.remote.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "recipe_cache"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &CacheStore{pool: p, table: table}, nil
}

// NewCacheStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewCacheStoreWithPool(p pool, table string) (*CacheStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "recipe_cache"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &CacheStore{pool: p, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *CacheStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Get returns the payload for key if present and not expired.
func (s *CacheStore) Get(ctx context.Context, key recipe.Key) (recipe.Payload, bool, error) {
	if s == nil || s.pool == nil {
		return nil, false, fmt.Errorf("remote cache is not configured")
	}
	query := fmt.Sprintf(`
SELECT payload FROM %s
WHERE video_id = $1 AND (expires_at IS NULL OR expires_at > now())`, s.table)

	var payload []byte
	err := s.pool.QueryRow(ctx, query, key.String()).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select cache row: %w", err)
	}
	return recipe.Payload(payload), true, nil
}

// Set upserts the payload for key. A zero ttl stores the row without expiry.
func (s *CacheStore) Set(ctx context.Context, key recipe.Key, value recipe.Payload, ttl time.Duration) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("remote cache is not configured")
	}
	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().UTC().Add(ttl)
		expiresAt = &t
	}
	query := fmt.Sprintf(`
INSERT INTO %s (video_id, payload, expires_at)
VALUES ($1, $2, $3)
ON CONFLICT (video_id) DO UPDATE SET
	payload = EXCLUDED.payload,
	expires_at = EXCLUDED.expires_at`, s.table)

	if _, err := s.pool.Exec(ctx, query, key.String(), []byte(value), expiresAt); err != nil {
		return fmt.Errorf("upsert cache row: %w", err)
	}
	return nil
}

// Delete removes the row for key. Deleting an absent key is not an error.
func (s *CacheStore) Delete(ctx context.Context, key recipe.Key) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("remote cache is not configured")
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE video_id = $1`, s.table)
	if _, err := s.pool.Exec(ctx, query, key.String()); err != nil {
		return fmt.Errorf("delete cache row: %w", err)
	}
	return nil
}
