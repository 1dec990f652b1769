// Package cache implements the two-tier result store: a process-local map
// backed by an optional durable remote tier. Remote failures degrade to
// local-only caching; they are logged and never surfaced to callers.
package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/woktalk/recipe-engine/internal/metrics"
	"github.com/woktalk/recipe-engine/internal/recipe"
)

// Cache wires the local tier to an optional remote tier. The local tier is
// the source of truth for the process lifetime; the remote tier only adds
// hits across process restarts.
type Cache struct {
	local  *LocalStore
	remote recipe.RemoteCache
	logger *zap.Logger
}

// New constructs a Cache. remote may be nil for local-only operation.
func New(local *LocalStore, remote recipe.RemoteCache, logger *zap.Logger) *Cache {
	if local == nil {
		local = NewLocalStore(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		local:  local,
		remote: remote,
		logger: logger,
	}
}

// Get checks the remote tier first when configured, falling back to the
// local tier on a remote error or miss. A remote hit is deliberately not
// written back to local: duplication stays minimal at the cost of the local
// tier not being a complete mirror.
func (c *Cache) Get(ctx context.Context, key recipe.Key) (recipe.Payload, bool) {
	if c.remote != nil {
		value, ok, err := c.remote.Get(ctx, key)
		if err != nil {
			c.logger.Warn("remote cache get failed, serving local tier",
				zap.String("key", key.String()), zap.Error(err))
			metrics.ObserveCacheOp("remote", "get", "error")
		} else if ok {
			metrics.ObserveCacheOp("remote", "get", "hit")
			return value, true
		} else {
			metrics.ObserveCacheOp("remote", "get", "miss")
		}
	}
	value, ok := c.local.Get(key)
	if ok {
		metrics.ObserveCacheOp("local", "get", "hit")
		return value, true
	}
	metrics.ObserveCacheOp("local", "get", "miss")
	return nil, false
}

// Set writes to the local tier unconditionally and best-effort to the remote
// tier; a remote write failure is swallowed after logging.
func (c *Cache) Set(ctx context.Context, key recipe.Key, value recipe.Payload, ttl time.Duration) {
	c.local.Set(key, value, ttl)
	metrics.ObserveCacheOp("local", "set", "ok")
	if c.remote == nil {
		return
	}
	if err := c.remote.Set(ctx, key, value, ttl); err != nil {
		c.logger.Warn("remote cache set failed",
			zap.String("key", key.String()), zap.Error(err))
		metrics.ObserveCacheOp("remote", "set", "error")
		return
	}
	metrics.ObserveCacheOp("remote", "set", "ok")
}

// Delete removes the key from both tiers; the remote removal is best-effort.
func (c *Cache) Delete(ctx context.Context, key recipe.Key) {
	c.local.Delete(key)
	metrics.ObserveCacheOp("local", "delete", "ok")
	if c.remote == nil {
		return
	}
	if err := c.remote.Delete(ctx, key); err != nil {
		c.logger.Warn("remote cache delete failed",
			zap.String("key", key.String()), zap.Error(err))
		metrics.ObserveCacheOp("remote", "delete", "error")
		return
	}
	metrics.ObserveCacheOp("remote", "delete", "ok")
}
