// Package executor implements the enrichment pipeline execution loop.
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/woktalk/recipe-engine/internal/metrics"
	"github.com/woktalk/recipe-engine/internal/progress"
	"github.com/woktalk/recipe-engine/internal/recipe"
)

// Config controls Executor behavior.
type Config struct {
	CacheTTL    time.Duration
	Topic       string
	BlobPrefix  string
	ContentType string
}

// Executor consumes queue items and runs the retrieve-analyze-store pipeline.
// Exactly one executor works a given key at a time; the job table's admission
// guarantees it.
type Executor struct {
	queue      recipe.Queue
	table      recipe.JobTable
	cache      recipe.Cache
	retrieval  recipe.RetrievalService
	enrichment recipe.EnrichmentService
	blobStore  recipe.BlobStore
	publisher  recipe.Publisher
	emitter    progress.Emitter
	clock      recipe.Clock
	cfg        Config
	logger     *zap.Logger
}

// New constructs an Executor.
func New(
	queue recipe.Queue,
	table recipe.JobTable,
	cache recipe.Cache,
	retrieval recipe.RetrievalService,
	enrichment recipe.EnrichmentService,
	blobStore recipe.BlobStore,
	publisher recipe.Publisher,
	emitter progress.Emitter,
	clock recipe.Clock,
	cfg Config,
	logger *zap.Logger,
) *Executor {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "application/json"
	}
	if clock == nil {
		clock = systemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		queue:      queue,
		table:      table,
		cache:      cache,
		retrieval:  retrieval,
		enrichment: enrichment,
		blobStore:  blobStore,
		publisher:  publisher,
		emitter:    emitter,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run blocks, consuming queue items until the context finishes.
func (e *Executor) Run(ctx context.Context) {
	metrics.IncActiveExecutors()
	defer metrics.DecActiveExecutors()
	for {
		item, err := e.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			e.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		e.logger.Debug("dequeued job", zap.String("key", item.Key.String()))
		e.processJob(ctx, item)
	}
}

func (e *Executor) processJob(ctx context.Context, item recipe.QueueItem) {
	key := item.Key
	runID := uuid.NewString()
	started := e.clock.Now()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("job panicked",
				zap.String("key", key.String()), zap.Any("panic", r))
			e.failJob(key, runID, started, "internal error")
		}
	}()

	e.emit(progress.Event{
		Key: key.String(), RunID: runID, TS: started,
		Stage: progress.StageJobStart, Progress: 5,
	})
	e.updateProgress(key, 5, "fetching transcript")

	retrievalStart := e.clock.Now()
	transcript, err := e.retrieval.Fetch(ctx, item.RawInput)
	if err != nil {
		e.logger.Error("transcript retrieval failed",
			zap.String("key", key.String()), zap.Error(err))
		e.failJob(key, runID, started, "transcript retrieval failed")
		return
	}
	retrievalDur := e.clock.Now().Sub(retrievalStart)
	metrics.ObserveStage("retrieval", retrievalDur)
	e.emit(progress.Event{
		Key: key.String(), RunID: runID, TS: e.clock.Now(),
		Stage: progress.StageRetrievalDone, Progress: 30,
		Bytes: int64(len(transcript.Text)), Dur: retrievalDur,
	})
	e.updateProgress(key, 30, "analyzing")

	enrichStart := e.clock.Now()
	payload, err := e.enrichment.Analyze(ctx, key, item.RawInput, transcript.Text)
	if err != nil {
		e.logger.Error("enrichment failed",
			zap.String("key", key.String()), zap.Error(err))
		e.failJob(key, runID, started, "recipe analysis failed")
		return
	}
	enrichDur := e.clock.Now().Sub(enrichStart)
	metrics.ObserveStage("enrichment", enrichDur)
	e.emit(progress.Event{
		Key: key.String(), RunID: runID, TS: e.clock.Now(),
		Stage: progress.StageEnrichmentDone, Progress: 70,
		Bytes: int64(len(payload)), Dur: enrichDur,
	})
	e.updateProgress(key, 70, "finalizing recipe")

	// Archive the raw payload before completing; the URI rides on the record.
	// Archiving is best-effort: a dead blob store must not fail the job.
	artifactURI := ""
	if e.blobStore != nil {
		uri, err := e.blobStore.PutObject(ctx, e.buildBlobPath(key, runID), e.cfg.ContentType, payload)
		if err != nil {
			e.logger.Warn("artifact archive failed",
				zap.String("key", key.String()), zap.Error(err))
		} else {
			artifactURI = uri
		}
	}

	if err := e.table.Complete(key, payload, artifactURI); err != nil {
		e.logger.Error("complete job failed",
			zap.String("key", key.String()), zap.Error(err))
		return
	}
	e.cache.Set(ctx, key, payload, e.cfg.CacheTTL)

	if e.publisher != nil && e.cfg.Topic != "" {
		event := completionEvent{
			JobID:       key.String(),
			Status:      string(recipe.StatusCompleted),
			ArtifactURI: artifactURI,
			FinishedAt:  e.clock.Now().UTC(),
		}
		if _, err := e.publisher.Publish(ctx, e.cfg.Topic, event); err != nil {
			e.logger.Warn("publish completion event failed",
				zap.String("key", key.String()), zap.Error(err))
		}
	}

	totalDur := e.clock.Now().Sub(started)
	metrics.ObserveJob("completed")
	e.emit(progress.Event{
		Key: key.String(), RunID: runID, TS: e.clock.Now(),
		Stage: progress.StageJobDone, Progress: 100, Dur: totalDur,
	})
	e.logger.Info("job completed",
		zap.String("key", key.String()),
		zap.Duration("dur", totalDur))
}

func (e *Executor) failJob(key recipe.Key, runID string, started time.Time, message string) {
	if err := e.table.Fail(key, message); err != nil {
		e.logger.Error("fail job status update",
			zap.String("key", key.String()), zap.Error(err))
	}
	metrics.ObserveJob("failed")
	e.emit(progress.Event{
		Key: key.String(), RunID: runID, TS: e.clock.Now(),
		Stage: progress.StageJobError, Dur: e.clock.Now().Sub(started),
		Note: message,
	})
}

func (e *Executor) updateProgress(key recipe.Key, pct int, message string) {
	if err := e.table.Update(key, pct, message); err != nil {
		e.logger.Warn("progress update failed",
			zap.String("key", key.String()), zap.Int("progress", pct), zap.Error(err))
	}
}

func (e *Executor) emit(evt progress.Event) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Executor) buildBlobPath(key recipe.Key, runID string) string {
	prefix := strings.Trim(e.cfg.BlobPrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s.json", key, runID)
	}
	return fmt.Sprintf("%s/%s/%s.json", prefix, key, runID)
}

type completionEvent struct {
	JobID       string    `json:"job_id"`
	Status      string    `json:"status"`
	ArtifactURI string    `json:"artifact_uri,omitempty"`
	FinishedAt  time.Time `json:"finished_at"`
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
