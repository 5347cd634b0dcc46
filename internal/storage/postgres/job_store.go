// Package postgres provides Postgres-backed persistence implementations.
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

	"github.com/ora2es/migsim/internal/store"
)

// JobStoreConfig controls the Postgres connection pool used for job rows.
type JobStoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// JobStore implements store.JobRepository using Postgres.
type JobStore struct {
	pool dbPool
}

// NewJobStore creates a Postgres-backed JobStore using the provided config.
func NewJobStore(ctx context.Context, cfg JobStoreConfig) (*JobStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &JobStore{pool: pool}, nil
}

// NewJobStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewJobStoreWithPool(pool dbPool) (*JobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CreateJob inserts a new job row.
func (s *JobStore) CreateJob(ctx context.Context, job store.Job) error {
	query := `
		INSERT INTO migration_jobs (
			id, mapping_name, status, total_batches, records_per_batch,
			total_records, processed_records, failed_records,
			started_at, finished_at, created_at, error_message
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12);
	`
	_, err := s.pool.Exec(ctx, query,
		job.ID,
		job.MappingName,
		job.Status,
		job.TotalBatches,
		job.RecordsPerBatch,
		job.TotalRecords,
		job.ProcessedRecords,
		job.FailedRecords,
		job.StartedAt,
		job.FinishedAt,
		job.CreatedAt,
		job.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// MarkJobStarted transitions a job to running, keeping the first start time.
func (s *JobStore) MarkJobStarted(ctx context.Context, jobID uuid.UUID, at time.Time) error {
	query := `
		UPDATE migration_jobs
		SET status = $1, started_at = COALESCE(started_at, $2)
		WHERE id = $3;
	`
	tag, err := s.pool.Exec(ctx, query, store.JobStatusRunning, at, jobID)
	if err != nil {
		return fmt.Errorf("mark job started: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// UpdateJobStatus applies a lifecycle transition, stamping finished_at for
// terminal states.
func (s *JobStore) UpdateJobStatus(
	ctx context.Context,
	jobID uuid.UUID,
	status store.JobStatus,
	errMsg *string,
	at time.Time,
) error {
	var finishedAt *time.Time
	if status.IsTerminal() {
		finishedAt = &at
	}
	query := `
		UPDATE migration_jobs
		SET status = $1, error_message = $2, finished_at = COALESCE($3, finished_at)
		WHERE id = $4;
	`
	tag, err := s.pool.Exec(ctx, query, status, errMsg, finishedAt, jobID)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// UpdateJobProgress records the cumulative processed count without ever
// moving it backwards.
func (s *JobStore) UpdateJobProgress(ctx context.Context, jobID uuid.UUID, processed int64, _ time.Time) error {
	query := `
		UPDATE migration_jobs
		SET processed_records = GREATEST(processed_records, $1)
		WHERE id = $2;
	`
	tag, err := s.pool.Exec(ctx, query, processed, jobID)
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// UpsertBatch inserts or replaces a batch row keyed by job and index.
func (s *JobStore) UpsertBatch(ctx context.Context, batch store.Batch) error {
	query := `
		INSERT INTO migration_batches (
			job_id, batch_index, record_offset, record_limit,
			status, processed_records, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (job_id, batch_index) DO UPDATE
		SET status = EXCLUDED.status,
			processed_records = EXCLUDED.processed_records,
			updated_at = EXCLUDED.updated_at;
	`
	_, err := s.pool.Exec(ctx, query,
		batch.JobID,
		batch.Index,
		batch.Offset,
		batch.Limit,
		batch.Status,
		batch.ProcessedRecords,
		batch.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert batch: %w", err)
	}
	return nil
}

// GetJob retrieves a single job by its ID.
func (s *JobStore) GetJob(ctx context.Context, jobID uuid.UUID) (store.Job, error) {
	query := `
		SELECT id, mapping_name, status, total_batches, records_per_batch,
			total_records, processed_records, failed_records,
			started_at, finished_at, created_at, error_message
		FROM migration_jobs
		WHERE id = $1;
	`
	var job store.Job
	err := s.pool.QueryRow(ctx, query, jobID).Scan(
		&job.ID,
		&job.MappingName,
		&job.Status,
		&job.TotalBatches,
		&job.RecordsPerBatch,
		&job.TotalRecords,
		&job.ProcessedRecords,
		&job.FailedRecords,
		&job.StartedAt,
		&job.FinishedAt,
		&job.CreatedAt,
		&job.ErrorMessage,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Job{}, store.ErrNotFound
		}
		return store.Job{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs retrieves jobs ordered newest first, with optional status filtering.
func (s *JobStore) ListJobs(
	ctx context.Context,
	status *store.JobStatus,
	limit,
	offset int,
) ([]store.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, mapping_name, status, total_batches, records_per_batch,
			total_records, processed_records, failed_records,
			started_at, finished_at, created_at, error_message
		FROM migration_jobs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.pool.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []store.Job
	for rows.Next() {
		var job store.Job
		err := rows.Scan(
			&job.ID,
			&job.MappingName,
			&job.Status,
			&job.TotalBatches,
			&job.RecordsPerBatch,
			&job.TotalRecords,
			&job.ProcessedRecords,
			&job.FailedRecords,
			&job.StartedAt,
			&job.FinishedAt,
			&job.CreatedAt,
			&job.ErrorMessage,
		)
		if err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job rows: %w", err)
	}
	return jobs, nil
}

// ListBatches retrieves all batch rows for a job ordered by index.
func (s *JobStore) ListBatches(ctx context.Context, jobID uuid.UUID) ([]store.Batch, error) {
	query := `
		SELECT job_id, batch_index, record_offset, record_limit,
			status, processed_records, updated_at
		FROM migration_batches
		WHERE job_id = $1
		ORDER BY batch_index;
	`
	rows, err := s.pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var batches []store.Batch
	for rows.Next() {
		var batch store.Batch
		err := rows.Scan(
			&batch.JobID,
			&batch.Index,
			&batch.Offset,
			&batch.Limit,
			&batch.Status,
			&batch.ProcessedRecords,
			&batch.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan batch row: %w", err)
		}
		batches = append(batches, batch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batch rows: %w", err)
	}
	return batches, nil
}

// ResetForRetry returns a terminal job to pending and clears its counters and
// batch rows.
func (s *JobStore) ResetForRetry(ctx context.Context, jobID uuid.UUID) error {
	query := `
		UPDATE migration_jobs
		SET status = $1, processed_records = 0, failed_records = 0,
			started_at = NULL, finished_at = NULL, error_message = NULL
		WHERE id = $2 AND status IN ($3, $4, $5);
	`
	tag, err := s.pool.Exec(ctx, query,
		store.JobStatusPending,
		jobID,
		store.JobStatusCompleted,
		store.JobStatusStopped,
		store.JobStatusFailed,
	)
	if err != nil {
		return fmt.Errorf("reset job for retry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM migration_batches WHERE job_id = $1;`, jobID); err != nil {
		return fmt.Errorf("clear job batches: %w", err)
	}
	return nil
}

// DeleteCompleted removes completed jobs and their batch rows, reporting how
// many jobs were removed.
func (s *JobStore) DeleteCompleted(ctx context.Context) (int64, error) {
	batchQuery := `
		DELETE FROM migration_batches
		WHERE job_id IN (SELECT id FROM migration_jobs WHERE status = $1);
	`
	if _, err := s.pool.Exec(ctx, batchQuery, store.JobStatusCompleted); err != nil {
		return 0, fmt.Errorf("delete completed batches: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM migration_jobs WHERE status = $1;`, store.JobStatusCompleted)
	if err != nil {
		return 0, fmt.Errorf("delete completed jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}
