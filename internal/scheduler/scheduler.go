// Package scheduler decides what a job request becomes: a cache hit, a join
// onto an in-flight job, or a freshly queued one.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/woktalk/recipe-engine/internal/recipe"
	"github.com/woktalk/recipe-engine/internal/videoid"
)

// Outcome classifies the result of a job request.
type Outcome int

// Request outcomes.
const (
	// OutcomeStarted means a new job was admitted and queued.
	OutcomeStarted Outcome = iota
	// OutcomeInFlight means another request already owns a live job for the key.
	OutcomeInFlight
	// OutcomeCached means a finished result was served without running a job.
	OutcomeCached
)

// Result carries the outcome plus whichever of record/payload applies.
type Result struct {
	Outcome Outcome
	Key     recipe.Key
	Record  recipe.JobRecord
	Payload recipe.Payload
}

// Scheduler wires admission to the cache, job table, and queue.
type Scheduler struct {
	table          recipe.JobTable
	cache          recipe.Cache
	queue          recipe.Queue
	enqueueTimeout time.Duration
	logger         *zap.Logger
}

// New constructs a Scheduler.
func New(table recipe.JobTable, cache recipe.Cache, queue recipe.Queue, enqueueTimeout time.Duration, logger *zap.Logger) *Scheduler {
	if enqueueTimeout <= 0 {
		enqueueTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		table:          table,
		cache:          cache,
		queue:          queue,
		enqueueTimeout: enqueueTimeout,
		logger:         logger,
	}
}

// Request normalizes the input and routes it. The order matters: the cache is
// consulted before admission so a finished result never spawns a duplicate
// job, and admission happens before enqueue so concurrent requests agree on a
// single owner.
func (s *Scheduler) Request(ctx context.Context, rawInput string) (Result, error) {
	key, err := videoid.Normalize(rawInput)
	if err != nil {
		return Result{}, fmt.Errorf("normalize input: %w", err)
	}

	if payload, ok := s.cache.Get(ctx, key); ok {
		s.logger.Debug("request served from cache", zap.String("key", key.String()))
		return Result{Outcome: OutcomeCached, Key: key, Payload: payload}, nil
	}

	record, err := s.table.Admit(key)
	if err != nil {
		if errors.Is(err, recipe.ErrAlreadyProcessing) {
			return Result{Outcome: OutcomeInFlight, Key: key, Record: record}, nil
		}
		return Result{}, fmt.Errorf("admit job: %w", err)
	}

	item := recipe.QueueItem{
		Key:       key,
		RawInput:  rawInput,
		Submitted: time.Now().UnixMilli(),
	}
	enqueueCtx, cancel := context.WithTimeout(ctx, s.enqueueTimeout)
	defer cancel()
	if err := s.queue.Enqueue(enqueueCtx, item); err != nil {
		// The record was admitted but no executor will ever see it; fail it
		// so pollers are not stuck on a phantom job.
		failMsg := "job queue is full"
		if failErr := s.table.Fail(key, failMsg); failErr != nil {
			s.logger.Error("failed to mark unqueued job as failed",
				zap.String("key", key.String()), zap.Error(failErr))
		}
		s.logger.Warn("enqueue rejected", zap.String("key", key.String()), zap.Error(err))
		return Result{}, fmt.Errorf("enqueue job: %w", err)
	}

	s.logger.Info("job admitted", zap.String("key", key.String()))
	return Result{Outcome: OutcomeStarted, Key: key, Record: record}, nil
}
