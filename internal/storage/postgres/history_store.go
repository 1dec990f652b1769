package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/woktalk/recipe-engine/internal/store"
)

type historyPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// HistoryStore implements store.HistoryRepository using Postgres.
// Expected schema:
//
//	CREATE TABLE job_runs (
//		id            UUID PRIMARY KEY,
//		video_id      TEXT NOT NULL,
//		started_at    TIMESTAMPTZ NOT NULL,
//		finished_at   TIMESTAMPTZ,
//		status        TEXT NOT NULL,
//		error_message TEXT
//	);
type HistoryStore struct {
	pool historyPool
}

// NewHistoryStore creates a new HistoryStore with its own connection pool.
func NewHistoryStore(ctx context.Context, dsn string) (*HistoryStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	return &HistoryStore{pool: pool}, nil
}

// NewHistoryStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewHistoryStoreWithPool(pool historyPool) (*HistoryStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &HistoryStore{pool: pool}, nil
}

// Close closes the underlying connection pool.
func (s *HistoryStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// StartRun inserts or idempotently updates a run's start row.
func (s *HistoryStore) StartRun(ctx context.Context, runID uuid.UUID, videoID string, startedAt time.Time) error {
	query := `
		INSERT INTO job_runs (id, video_id, started_at, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING;
	`
	if _, err := s.pool.Exec(ctx, query, runID, videoID, startedAt, store.RunRunning); err != nil {
		return fmt.Errorf("insert run start: %w", err)
	}
	return nil
}

// CompleteRun marks a run finished with a status and optional error message.
func (s *HistoryStore) CompleteRun(
	ctx context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	errMsg *string,
) error {
	query := `
		UPDATE job_runs
		SET finished_at = $1, status = $2, error_message = $3
		WHERE id = $4;
	`
	if _, err := s.pool.Exec(ctx, query, finishedAt, status, errMsg, runID); err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return nil
}

// GetRun retrieves a single run by its ID.
func (s *HistoryStore) GetRun(ctx context.Context, runID uuid.UUID) (store.JobRun, error) {
	query := `
		SELECT id, video_id, started_at, finished_at, status, error_message
		FROM job_runs
		WHERE id = $1;
	`
	var run store.JobRun
	err := s.pool.QueryRow(ctx, query, runID).Scan(
		&run.ID,
		&run.VideoID,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Status,
		&run.ErrorMessage,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.JobRun{}, store.ErrNotFound
		}
		return store.JobRun{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves runs newest first, with optional video and status filters.
func (s *HistoryStore) ListRuns(
	ctx context.Context,
	videoID string,
	status *store.RunStatus,
	limit,
	offset int,
) ([]store.JobRun, error) {
	query := `
		SELECT id, video_id, started_at, finished_at, status, error_message
		FROM job_runs
		WHERE ($1 = '' OR video_id = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY started_at DESC
		LIMIT $3 OFFSET $4;
	`
	rows, err := s.pool.Query(ctx, query, videoID, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []store.JobRun
	for rows.Next() {
		var run store.JobRun
		err := rows.Scan(
			&run.ID,
			&run.VideoID,
			&run.StartedAt,
			&run.FinishedAt,
			&run.Status,
			&run.ErrorMessage,
		)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return runs, nil
}
