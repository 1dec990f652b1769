// Package dispatcher manages executor fan-out over the job queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/woktalk/recipe-engine/internal/executor"
	"github.com/woktalk/recipe-engine/internal/recipe"
)

// Dispatcher fans out queue work to a pool of executors.
type Dispatcher struct {
	queue     recipe.Queue
	executors []*executor.Executor
}

// New creates a Dispatcher.
func New(queue recipe.Queue, executors []*executor.Executor) *Dispatcher {
	return &Dispatcher{
		queue:     queue,
		executors: executors,
	}
}

// Run starts all executors and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, e := range d.executors {
		wg.Add(1)
		go func(ex *executor.Executor) {
			defer wg.Done()
			ex.Run(ctx)
		}(e)
	}
	<-ctx.Done()
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item recipe.QueueItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
