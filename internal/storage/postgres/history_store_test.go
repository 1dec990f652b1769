package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/woktalk/recipe-engine/internal/store"
)

func TestHistoryStoreStartRun(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	hs, err := NewHistoryStoreWithPool(mock)
	require.NoError(t, err)

	runID := uuid.New()
	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec("INSERT INTO job_runs").
		WithArgs(runID, "dQw4w9WgXcQ", now, store.RunRunning).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, hs.StartRun(context.Background(), runID, "dQw4w9WgXcQ", now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryStoreCompleteRun(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	hs, err := NewHistoryStoreWithPool(mock)
	require.NoError(t, err)

	runID := uuid.New()
	now := time.Unix(1700000100, 0).UTC()
	msg := "transcript fetch failed"

	mock.ExpectExec("UPDATE job_runs").
		WithArgs(now, store.RunError, &msg, runID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, hs.CompleteRun(context.Background(), runID, now, store.RunError, &msg))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryStoreGetRunNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	hs, err := NewHistoryStoreWithPool(mock)
	require.NoError(t, err)

	runID := uuid.New()
	mock.ExpectQuery("SELECT id, video_id, started_at, finished_at, status, error_message").
		WithArgs(runID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "video_id", "started_at", "finished_at", "status", "error_message"}))

	_, err = hs.GetRun(context.Background(), runID)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryStoreListRuns(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	hs, err := NewHistoryStoreWithPool(mock)
	require.NoError(t, err)

	runID := uuid.New()
	started := time.Unix(1700000000, 0).UTC()
	rows := pgxmock.NewRows([]string{"id", "video_id", "started_at", "finished_at", "status", "error_message"}).
		AddRow(runID, "dQw4w9WgXcQ", started, (*time.Time)(nil), store.RunRunning, (*string)(nil))

	mock.ExpectQuery("SELECT id, video_id, started_at, finished_at, status, error_message").
		WithArgs("dQw4w9WgXcQ", (*store.RunStatus)(nil), 10, 0).
		WillReturnRows(rows)

	runs, err := hs.ListRuns(context.Background(), "dQw4w9WgXcQ", nil, 10, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, runID, runs[0].ID)
	require.Equal(t, store.RunRunning, runs[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}
