package sinks

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ora2es/migsim/internal/progress"
	"github.com/ora2es/migsim/internal/store"
)

// StoreSink persists job lifecycle transitions and batch progress via a
// store.JobRepository.
type StoreSink struct {
	repo   store.JobRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.JobRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume forwards lifecycle transitions and batch completions to the
// repository. It respects ctx deadlines and returns repository errors wrapped
// with the failing operation.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	for _, evt := range batch {
		jobID := evt.JobUUID()
		var err error
		switch evt.Stage {
		case progress.StageJobStart:
			err = s.repo.MarkJobStarted(ctx, jobID, evt.TS)
		case progress.StageJobPause:
			err = s.repo.UpdateJobStatus(ctx, jobID, store.JobStatusPaused, nil, evt.TS)
		case progress.StageJobResume:
			err = s.repo.UpdateJobStatus(ctx, jobID, store.JobStatusRunning, nil, evt.TS)
		case progress.StageBatchDone:
			err = s.handleBatchDone(ctx, jobID, evt)
		case progress.StageJobDone:
			err = s.repo.UpdateJobStatus(ctx, jobID, store.JobStatusCompleted, nil, evt.TS)
		case progress.StageJobStopped:
			err = s.repo.UpdateJobStatus(ctx, jobID, store.JobStatusStopped, nil, evt.TS)
		case progress.StageJobError:
			var msg *string
			if evt.Note != "" {
				msg = &evt.Note
			}
			err = s.repo.UpdateJobStatus(ctx, jobID, store.JobStatusFailed, msg, evt.TS)
		}
		if err != nil {
			return fmt.Errorf("persist %s event: %w", evt.Stage, err)
		}
	}
	return nil
}

func (s *StoreSink) handleBatchDone(ctx context.Context, jobID uuid.UUID, evt progress.Event) error {
	b := store.Batch{
		JobID:            jobID,
		Index:            evt.BatchIndex,
		Offset:           int64(evt.BatchIndex) * evt.BatchSize,
		Limit:            evt.BatchSize,
		Status:           store.BatchStatusCompleted,
		ProcessedRecords: evt.BatchSize,
		UpdatedAt:        evt.TS,
	}
	if err := s.repo.UpsertBatch(ctx, b); err != nil {
		return fmt.Errorf("upsert batch: %w", err)
	}
	if err := s.repo.UpdateJobProgress(ctx, jobID, evt.Records, evt.TS); err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
