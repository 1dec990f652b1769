// Package progress defines the event structures emitted by the job executors.
package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageJobStart       Stage = "JOB_START"
	StageRetrievalDone  Stage = "RETRIEVAL_DONE"
	StageEnrichmentDone Stage = "ENRICHMENT_DONE"
	StageJobDone        Stage = "JOB_DONE"
	StageJobError       Stage = "JOB_ERROR"
)

// Event captures a single milestone of an enrichment job. These events feed
// the observability sinks only; the client-visible status lives in the job
// table.
type Event struct {
	// Key identifies the video the job is working on.
	Key string
	// RunID identifies this execution attempt; reruns of the same key after a
	// terminal record is cleared get a fresh RunID.
	RunID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle milestone occurred.
	Stage Stage
	// Progress mirrors the job table percentage at emission time.
	Progress int
	// Bytes carries the transcript or payload size for the stage, when known.
	Bytes int64
	// Dur captures execution latency for stage and job completions.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.Key == "" {
		return errors.New("key is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageJobStart, StageRetrievalDone, StageEnrichmentDone, StageJobDone, StageJobError:
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Progress < 0 || e.Progress > 100 {
		return fmt.Errorf("progress %d out of range", e.Progress)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
