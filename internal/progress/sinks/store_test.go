package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/woktalk/recipe-engine/internal/progress"
	"github.com/woktalk/recipe-engine/internal/store"
)

// TestStoreSinkPersistsRunLifecycle ensures run start/complete events reach the repository.
func TestStoreSinkPersistsRunLifecycle(t *testing.T) {
	t.Parallel()

	repo := &fakeHistoryRepo{}
	sink := NewStoreSink(repo, nil)
	runID := uuid.New()
	now := time.Now()

	batch := []progress.Event{
		{Key: "dQw4w9WgXcQ", RunID: runID.String(), Stage: progress.StageJobStart, TS: now},
		{Key: "dQw4w9WgXcQ", RunID: runID.String(), Stage: progress.StageRetrievalDone, TS: now.Add(time.Second), Dur: time.Second},
		{Key: "dQw4w9WgXcQ", RunID: runID.String(), Stage: progress.StageJobDone, TS: now.Add(3 * time.Second), Dur: 3 * time.Second},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Len(t, repo.starts, 1)
	require.Equal(t, runID, repo.starts[0])
	require.Len(t, repo.completes, 1)
	require.Equal(t, store.RunSuccess, repo.completes[0].status)
}

// TestStoreSinkRecordsFailureNote carries the error text into the run row.
func TestStoreSinkRecordsFailureNote(t *testing.T) {
	t.Parallel()

	repo := &fakeHistoryRepo{}
	sink := NewStoreSink(repo, nil)
	runID := uuid.New()

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{Key: "dQw4w9WgXcQ", RunID: runID.String(), Stage: progress.StageJobError, TS: time.Now(), Note: "transcript fetch failed"},
	}))

	require.Len(t, repo.completes, 1)
	require.Equal(t, store.RunError, repo.completes[0].status)
	require.NotNil(t, repo.completes[0].errMsg)
	require.Equal(t, "transcript fetch failed", *repo.completes[0].errMsg)
}

// TestStoreSinkSkipsEventsWithoutRunID tolerates emitters that never stamped a run.
func TestStoreSinkSkipsEventsWithoutRunID(t *testing.T) {
	t.Parallel()

	repo := &fakeHistoryRepo{}
	sink := NewStoreSink(repo, nil)

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{Key: "dQw4w9WgXcQ", Stage: progress.StageJobStart, TS: time.Now()},
	}))
	require.Empty(t, repo.starts)
}

// TestStoreSinkHandlesErrors surfaces repository failures back to the caller.
func TestStoreSinkHandlesErrors(t *testing.T) {
	t.Parallel()

	repo := &fakeHistoryRepo{fail: true}
	sink := NewStoreSink(repo, nil)
	err := sink.Consume(context.Background(), []progress.Event{
		{Key: "dQw4w9WgXcQ", RunID: uuid.NewString(), Stage: progress.StageJobStart, TS: time.Now()},
	})
	require.Error(t, err)
}

type fakeHistoryRepo struct {
	fail      bool
	starts    []uuid.UUID
	completes []completeCall
}

type completeCall struct {
	runID  uuid.UUID
	status store.RunStatus
	errMsg *string
}

func (f *fakeHistoryRepo) StartRun(_ context.Context, runID uuid.UUID, videoID string, startedAt time.Time) error {
	if f.fail {
		return assertErr("start")
	}
	_ = videoID
	_ = startedAt
	f.starts = append(f.starts, runID)
	return nil
}

func (f *fakeHistoryRepo) CompleteRun(
	_ context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	errMsg *string,
) error {
	if f.fail {
		return assertErr("complete")
	}
	_ = finishedAt
	f.completes = append(f.completes, completeCall{runID: runID, status: status, errMsg: errMsg})
	return nil
}

func (f *fakeHistoryRepo) GetRun(context.Context, uuid.UUID) (store.JobRun, error) {
	return store.JobRun{}, assertErr("read")
}

func (f *fakeHistoryRepo) ListRuns(context.Context, string, *store.RunStatus, int, int) ([]store.JobRun, error) {
	return nil, assertErr("list")
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
