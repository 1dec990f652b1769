// Package store declares interfaces for persisting job run history.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("run record not found")

// RunStatus mirrors the job_runs status column.
type RunStatus string

// Run statuses persisted in job_runs.status.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// JobRun models one execution attempt of an enrichment job. The table keeps
// every attempt, so a video re-enriched after a failure or cache purge has
// multiple rows.
type JobRun struct {
	// ID is the primary key of job_runs, minted per attempt.
	ID uuid.UUID
	// VideoID is the canonical key the attempt worked on.
	VideoID string
	// StartedAt captures when the run was first marked running.
	StartedAt time.Time
	// FinishedAt is nil until the run is marked success/error.
	FinishedAt *time.Time
	// Status is running/success/error.
	Status RunStatus
	// ErrorMessage optionally stores the final failure reason.
	ErrorMessage *string
}

// HistoryRepository persists job run attempts.
type HistoryRepository interface {
	// StartRun inserts (or idempotently updates) the run's started_at row.
	StartRun(ctx context.Context, runID uuid.UUID, videoID string, startedAt time.Time) error
	// CompleteRun marks the run finished with the provided status and error.
	CompleteRun(ctx context.Context, runID uuid.UUID, finishedAt time.Time, status RunStatus, errMsg *string) error

	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, runID uuid.UUID) (JobRun, error)
	// ListRuns returns runs filtered by optional video key and status plus
	// limit/offset, newest first.
	ListRuns(ctx context.Context, videoID string, status *RunStatus, limit, offset int) ([]JobRun, error)
}
