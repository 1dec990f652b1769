// Package jobtable holds the in-process job table, the single source of truth
// for which keys are being worked on right now.
package jobtable

import (
	"sync"
	"time"

	"github.com/woktalk/recipe-engine/internal/recipe"
)

// Table provides the internally-synchronized key -> JobRecord mapping.
// All mutation flows through its narrow methods; no lock is ever held across
// a blocking call.
type Table struct {
	mu      sync.RWMutex
	records map[recipe.Key]recipe.JobRecord
	clock   recipe.Clock
}

// New constructs a Table.
func New(clock recipe.Clock) *Table {
	if clock == nil {
		clock = systemClock{}
	}
	return &Table{
		records: make(map[recipe.Key]recipe.JobRecord),
		clock:   clock,
	}
}

// Admit atomically claims the key. If no live record exists, a fresh
// processing record is created and returned; a terminal leftover from an
// earlier run is replaced. If a processing record exists, its snapshot is
// returned with recipe.ErrAlreadyProcessing so exactly one concurrent caller
// wins the claim.
func (t *Table) Admit(key recipe.Key) (recipe.JobRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.records[key]; ok && !existing.Status.Terminal() {
		return existing, recipe.ErrAlreadyProcessing
	}
	rec := recipe.JobRecord{
		Key:       key,
		Status:    recipe.StatusProcessing,
		Progress:  0,
		Message:   "starting video enrichment",
		CreatedAt: t.clock.Now().UTC(),
	}
	t.records[key] = rec
	return rec, nil
}

// Update advances progress and message for a live record. Progress never
// decreases within one job instance; a lower value keeps the previous one.
func (t *Table) Update(key recipe.Key, progress int, message string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[key]
	if !ok {
		return recipe.ErrNotFound
	}
	if rec.Status.Terminal() {
		return recipe.ErrTerminal
	}
	if progress > rec.Progress {
		rec.Progress = progress
	}
	rec.Message = message
	t.records[key] = rec
	return nil
}

// Complete moves the record to its completed terminal state exactly once.
func (t *Table) Complete(key recipe.Key, result recipe.Payload, artifactURI string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[key]
	if !ok {
		return recipe.ErrNotFound
	}
	if rec.Status.Terminal() {
		return recipe.ErrTerminal
	}
	now := t.clock.Now().UTC()
	rec.Status = recipe.StatusCompleted
	rec.Progress = 100
	rec.Message = "recipe ready"
	rec.Result = result
	rec.ArtifactURI = artifactURI
	rec.FinishedAt = &now
	t.records[key] = rec
	return nil
}

// Fail moves the record to its failed terminal state exactly once. Progress
// resets to zero; the message carries the human-readable reason.
func (t *Table) Fail(key recipe.Key, message string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[key]
	if !ok {
		return recipe.ErrNotFound
	}
	if rec.Status.Terminal() {
		return recipe.ErrTerminal
	}
	now := t.clock.Now().UTC()
	rec.Status = recipe.StatusFailed
	rec.Progress = 0
	rec.Message = message
	rec.FinishedAt = &now
	t.records[key] = rec
	return nil
}

// Snapshot returns a copy of the record for the key.
func (t *Table) Snapshot(key recipe.Key) (recipe.JobRecord, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.records[key]
	if !ok {
		return recipe.JobRecord{}, recipe.ErrNotFound
	}
	return rec, nil
}

// Delete removes the record for the key. Missing keys are a no-op so cache
// purges stay idempotent.
func (t *Table) Delete(key recipe.Key) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, key)
}

// ActiveCount reports how many records are still processing.
func (t *Table) ActiveCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, rec := range t.records {
		if !rec.Status.Terminal() {
			n++
		}
	}
	return n
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
