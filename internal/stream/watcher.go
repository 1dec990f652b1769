// Package stream turns job table state into ordered status event streams.
package stream

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/woktalk/recipe-engine/internal/metrics"
	"github.com/woktalk/recipe-engine/internal/recipe"
)

// Watcher polls the job table for a key and emits a status event whenever the
// observable state changes. Transports (SSE, WebSocket) consume the channel;
// heartbeats are the transport's concern.
type Watcher struct {
	table    recipe.JobTable
	cache    recipe.Cache
	interval time.Duration
	logger   *zap.Logger
}

// New constructs a Watcher.
func New(table recipe.JobTable, cache recipe.Cache, interval time.Duration, logger *zap.Logger) *Watcher {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		table:    table,
		cache:    cache,
		interval: interval,
		logger:   logger,
	}
}

// Watch starts a poll loop for key. The returned channel emits the current
// state immediately, then only on change, and closes after a terminal event
// or when ctx ends. Events are strictly ordered: progress never goes
// backwards on the channel because it never goes backwards in the table.
func (w *Watcher) Watch(ctx context.Context, key recipe.Key) <-chan recipe.StatusEvent {
	ch := make(chan recipe.StatusEvent, 8)
	go w.loop(ctx, key, ch)
	return ch
}

func (w *Watcher) loop(ctx context.Context, key recipe.Key, ch chan<- recipe.StatusEvent) {
	defer close(ch)
	metrics.IncStreamObservers()
	defer metrics.DecStreamObservers()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var last recipe.StatusEvent
	emitted := false
	for {
		evt, terminal := w.observe(ctx, key)
		if !emitted || evt != last {
			select {
			case ch <- evt:
			case <-ctx.Done():
				return
			}
			last = evt
			emitted = true
		}
		if terminal {
			return
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// observe derives the current status event for key. A key absent from the
// table but present in the cache reports completed: the job finished in some
// earlier process life.
func (w *Watcher) observe(ctx context.Context, key recipe.Key) (recipe.StatusEvent, bool) {
	rec, err := w.table.Snapshot(key)
	if err == nil {
		return recipe.StatusEvent{
			JobID:    key.String(),
			Status:   rec.Status,
			Progress: rec.Progress,
			Message:  rec.Message,
		}, rec.Status.Terminal()
	}
	if !errors.Is(err, recipe.ErrNotFound) {
		w.logger.Error("job snapshot failed", zap.String("key", key.String()), zap.Error(err))
	}
	if _, ok := w.cache.Get(ctx, key); ok {
		return recipe.StatusEvent{
			JobID:    key.String(),
			Status:   recipe.StatusCompleted,
			Progress: 100,
			Message:  "recipe ready",
		}, true
	}
	return recipe.StatusEvent{
		JobID:  key.String(),
		Status: recipe.EventNotFound,
	}, true
}
