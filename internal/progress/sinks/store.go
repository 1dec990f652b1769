package sinks

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/woktalk/recipe-engine/internal/progress"
	"github.com/woktalk/recipe-engine/internal/store"
)

// StoreSink persists job run history via a store.HistoryRepository. Events
// without a parseable RunID are skipped; the run table only tracks attempts
// the executor explicitly stamped.
type StoreSink struct {
	repo   store.HistoryRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.HistoryRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume forwards run lifecycle events to the repository. It respects ctx
// deadlines and returns any repository errors verbatim; mid-job stage events
// are intentionally not persisted.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	for _, evt := range batch {
		runID, err := uuid.Parse(evt.RunID)
		if err != nil {
			s.logger.Debug("skipping event without run id", zap.String("key", evt.Key))
			continue
		}
		switch evt.Stage {
		case progress.StageJobStart:
			if err := s.repo.StartRun(ctx, runID, evt.Key, evt.TS); err != nil {
				return fmt.Errorf("start run: %w", err)
			}
		case progress.StageJobDone:
			if err := s.repo.CompleteRun(ctx, runID, evt.TS, store.RunSuccess, nil); err != nil {
				return fmt.Errorf("complete run: %w", err)
			}
		case progress.StageJobError:
			var note *string
			if evt.Note != "" {
				note = &evt.Note
			}
			if err := s.repo.CompleteRun(ctx, runID, evt.TS, store.RunError, note); err != nil {
				return fmt.Errorf("complete run: %w", err)
			}
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
