// Package memory provides the in-process job queue between admission and the
// executor pool.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/woktalk/recipe-engine/internal/recipe"
)

// Queue is a bounded in-memory queue with context-aware operations. Capacity
// bounds how many admitted jobs can wait for an executor; admission applies
// backpressure through Enqueue's context deadline.
type Queue struct {
	ch      chan recipe.QueueItem
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch: make(chan recipe.QueueItem, capacity),
	}
}

// Enqueue pushes a job into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, item recipe.QueueItem) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- item:
		return nil
	}
}

// Dequeue pops the next job, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (recipe.QueueItem, error) {
	select {
	case <-ctx.Done():
		return recipe.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return recipe.QueueItem{}, errors.New("queue closed")
		}
		return item, nil
	}
}

// Close closes the underlying channel for shutdown.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
