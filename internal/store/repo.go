// Package store declares interfaces for persisting migration jobs. Driver
// implementations live in other packages; this package must not import
// database drivers or concrete clients.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("migration record not found")

// JobStatus represents the lifecycle state of a migration job.
type JobStatus string

// Job status values persisted in migration_jobs.status.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusPaused    JobStatus = "paused"
	JobStatusCompleted JobStatus = "completed"
	JobStatusStopped   JobStatus = "stopped"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether the status admits no further progress.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusStopped, JobStatusFailed:
		return true
	default:
		return false
	}
}

// Job models the migration_jobs table for API responses.
type Job struct {
	// ID uniquely identifies the job (UUIDv7).
	ID uuid.UUID
	// MappingName references the mapping configuration by name.
	MappingName string
	// Status is the current lifecycle state.
	Status JobStatus
	// TotalBatches and RecordsPerBatch freeze the simulation shape at
	// submission time.
	TotalBatches    int
	RecordsPerBatch int
	// TotalRecords is TotalBatches * RecordsPerBatch, denormalized for readers.
	TotalRecords int64
	// ProcessedRecords advances at batch granularity.
	ProcessedRecords int64
	// FailedRecords is carried for API parity; the simulator never fails rows.
	FailedRecords int64
	// StartedAt is nil until the job first transitions to running.
	StartedAt *time.Time
	// FinishedAt is nil until a terminal status is recorded.
	FinishedAt *time.Time
	// CreatedAt captures submission time.
	CreatedAt time.Time
	// ErrorMessage optionally stores the final failure or stop reason.
	ErrorMessage *string
}

// ProgressPercent derives the record-level completion percentage.
func (j Job) ProgressPercent() float64 {
	if j.TotalRecords == 0 {
		return 0
	}
	return float64(j.ProcessedRecords) / float64(j.TotalRecords) * 100
}

// BatchStatus mirrors the migration_batches status column.
type BatchStatus string

// Batch statuses; batches only ever move forward to completed.
const (
	BatchStatusPending   BatchStatus = "pending"
	BatchStatusCompleted BatchStatus = "completed"
)

// Batch is one contiguous slice of records within a job.
type Batch struct {
	JobID uuid.UUID
	// Index is the zero-based batch position within the job.
	Index int
	// Offset and Limit describe the record window the batch covers.
	Offset int64
	Limit  int64
	Status BatchStatus
	// ProcessedRecords equals Limit once the batch completes.
	ProcessedRecords int64
	// UpdatedAt is the completion (or last reset) timestamp.
	UpdatedAt time.Time
}

// JobRepository persists migration jobs and their batch progress.
type JobRepository interface {
	// CreateJob stores a newly submitted job; it fails if the ID exists.
	CreateJob(ctx context.Context, job Job) error
	// MarkJobStarted idempotently records the running status and start time.
	MarkJobStarted(ctx context.Context, id uuid.UUID, at time.Time) error
	// UpdateJobStatus transitions the job, recording finished_at for terminal
	// statuses and the optional error/stop reason.
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status JobStatus, errMsg *string, at time.Time) error
	// UpdateJobProgress sets the processed record counter.
	UpdateJobProgress(ctx context.Context, id uuid.UUID, processed int64, at time.Time) error
	// UpsertBatch inserts or replaces one batch row.
	UpsertBatch(ctx context.Context, batch Batch) error

	// GetJob loads a single job or returns ErrNotFound.
	GetJob(ctx context.Context, id uuid.UUID) (Job, error)
	// ListJobs returns jobs newest-first, filtered by optional status.
	ListJobs(ctx context.Context, status *JobStatus, limit, offset int) ([]Job, error)
	// ListBatches returns all batch rows for a job ordered by index.
	ListBatches(ctx context.Context, id uuid.UUID) ([]Batch, error)

	// ResetForRetry rewinds counters and non-completed batches so a stopped or
	// failed job can run again.
	ResetForRetry(ctx context.Context, id uuid.UUID) error
	// DeleteCompleted removes all completed jobs and returns the count.
	DeleteCompleted(ctx context.Context) (int64, error)
}
