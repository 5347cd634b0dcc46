package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ora2es/migsim/internal/store"
)

// JobStore provides an in-memory store.JobRepository for development and
// testing.
type JobStore struct {
	mu      sync.RWMutex
	jobs    map[uuid.UUID]store.Job
	batches map[uuid.UUID]map[int]store.Batch
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs:    make(map[uuid.UUID]store.Job),
		batches: make(map[uuid.UUID]map[int]store.Batch),
	}
}

// CreateJob stores a new job in pending status.
func (s *JobStore) CreateJob(_ context.Context, job store.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return errors.New("job already exists")
	}
	s.jobs[job.ID] = job
	return nil
}

// MarkJobStarted transitions a job to running and records the start time once.
func (s *JobStore) MarkJobStarted(_ context.Context, jobID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return store.ErrNotFound
	}
	job.Status = store.JobStatusRunning
	if job.StartedAt == nil {
		job.StartedAt = pointerTime(at)
	}
	s.jobs[jobID] = job
	return nil
}

// UpdateJobStatus applies a lifecycle transition, stamping the finish time on
// terminal states.
func (s *JobStore) UpdateJobStatus(
	_ context.Context,
	jobID uuid.UUID,
	status store.JobStatus,
	errMsg *string,
	at time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return store.ErrNotFound
	}
	job.Status = status
	job.ErrorMessage = errMsg
	if status.IsTerminal() {
		job.FinishedAt = pointerTime(at)
	}
	s.jobs[jobID] = job
	return nil
}

// UpdateJobProgress records the cumulative processed count. Progress never
// moves backwards.
func (s *JobStore) UpdateJobProgress(_ context.Context, jobID uuid.UUID, processed int64, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return store.ErrNotFound
	}
	if processed > job.ProcessedRecords {
		job.ProcessedRecords = processed
	}
	s.jobs[jobID] = job
	return nil
}

// UpsertBatch stores or replaces a batch row keyed by job and index.
func (s *JobStore) UpsertBatch(_ context.Context, batch store.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[batch.JobID]; !ok {
		return store.ErrNotFound
	}
	byIndex := s.batches[batch.JobID]
	if byIndex == nil {
		byIndex = make(map[int]store.Batch)
		s.batches[batch.JobID] = byIndex
	}
	byIndex[batch.Index] = batch
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID uuid.UUID) (store.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return store.Job{}, store.ErrNotFound
	}
	return job, nil
}

// ListJobs returns jobs ordered newest first, optionally filtered by status.
func (s *JobStore) ListJobs(_ context.Context, status *store.JobStatus, limit, offset int) ([]store.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	jobs := make([]store.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if status != nil && job.Status != *status {
			continue
		}
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	if offset >= len(jobs) {
		return []store.Job{}, nil
	}
	jobs = jobs[offset:]
	if limit > 0 && limit < len(jobs) {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

// ListBatches returns all batch rows for a job ordered by index.
func (s *JobStore) ListBatches(_ context.Context, jobID uuid.UUID) ([]store.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.jobs[jobID]; !ok {
		return nil, store.ErrNotFound
	}
	byIndex := s.batches[jobID]
	out := make([]store.Batch, 0, len(byIndex))
	for _, batch := range byIndex {
		out = append(out, batch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

// ResetForRetry returns a terminal job to pending and clears its counters and
// batch rows.
func (s *JobStore) ResetForRetry(_ context.Context, jobID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return store.ErrNotFound
	}
	if !job.Status.IsTerminal() {
		return errors.New("job is not in a terminal state")
	}
	job.Status = store.JobStatusPending
	job.ProcessedRecords = 0
	job.FailedRecords = 0
	job.StartedAt = nil
	job.FinishedAt = nil
	job.ErrorMessage = nil
	s.jobs[jobID] = job
	delete(s.batches, jobID)
	return nil
}

// DeleteCompleted removes all completed jobs and reports how many were removed.
func (s *JobStore) DeleteCompleted(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for id, job := range s.jobs {
		if job.Status == store.JobStatusCompleted {
			delete(s.jobs, id)
			delete(s.batches, id)
			removed++
		}
	}
	return removed, nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
