package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageJobStart   Stage = "JOB_START"
	StageJobPause   Stage = "JOB_PAUSE"
	StageJobResume  Stage = "JOB_RESUME"
	StageBatchDone  Stage = "BATCH_DONE"
	StageJobDone    Stage = "JOB_DONE"
	StageJobStopped Stage = "JOB_STOPPED"
	StageJobError   Stage = "JOB_ERROR"
)

// Event captures a single milestone of a migration run.
type Event struct {
	// JobID uniquely identifies a job run using the 16-byte UUID form.
	JobID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle or batch milestone occurred.
	Stage Stage
	// BatchIndex is the zero-based index of the batch; only meaningful for
	// BATCH_DONE events.
	BatchIndex int
	// BatchSize is the number of records in the completed batch.
	BatchSize int64
	// Records is the cumulative count of records processed so far.
	Records int64
	// TotalRecords is the planned record count for the whole run.
	TotalRecords int64
	// Dur captures elapsed runtime for batch and job completions.
	Dur time.Duration
	// Note lets emitters attach low-volume context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == [16]byte{} {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageJobStart, StageJobPause, StageJobResume, StageJobDone, StageJobStopped, StageJobError:
	case StageBatchDone:
		if e.BatchIndex < 0 {
			return errors.New("batch done requires a batch index")
		}
		if e.BatchSize <= 0 {
			return errors.New("batch done requires a positive batch size")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Records < 0 {
		return errors.New("records must be >= 0")
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// JobUUID converts the binary job ID to uuid.UUID for repositories.
func (e Event) JobUUID() uuid.UUID {
	return uuid.UUID(e.JobID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
