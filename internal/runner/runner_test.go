package runner

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ora2es/migsim/internal/migration"
	"github.com/ora2es/migsim/internal/progress"
	"github.com/ora2es/migsim/internal/publisher/memory"
	"github.com/ora2es/migsim/internal/store"
)

type captureEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (e *captureEmitter) Emit(evt progress.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func (e *captureEmitter) stages() []progress.Stage {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]progress.Stage, len(e.events))
	for i, evt := range e.events {
		out[i] = evt.Stage
	}
	return out
}

func (e *captureEmitter) count(stage progress.Stage) int {
	n := 0
	for _, s := range e.stages() {
		if s == stage {
			n++
		}
	}
	return n
}

type fixedClock struct {
	t time.Time
}

func (c fixedClock) Now() time.Time { return c.t }

// stepClock advances a fixed amount on every Now call, making wall-time
// deltas deterministic.
type stepClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(c.step)
	return c.t
}

func testJob(totalBatches, recordsPerBatch int) store.Job {
	return store.Job{
		ID:              uuid.New(),
		MappingName:     "customers",
		Status:          store.JobStatusPending,
		TotalBatches:    totalBatches,
		RecordsPerBatch: recordsPerBatch,
		TotalRecords:    int64(totalBatches) * int64(recordsPerBatch),
		CreatedAt:       time.Now().UTC(),
	}
}

func newTestRunner(emitter progress.Emitter, pub migration.Publisher) *Runner {
	return New(
		Config{TickInterval: time.Millisecond, NotifyTopic: "migsim.jobs"},
		emitter,
		pub,
		fixedClock{t: time.Unix(1700000000, 0).UTC()},
		nil,
	)
}

// TestRunnerRunsJobToCompletion drives a small job end to end and checks the
// emitted event stream and notifications.
func TestRunnerRunsJobToCompletion(t *testing.T) {
	t.Parallel()

	emitter := &captureEmitter{}
	pub := memory.New()
	r := newTestRunner(emitter, pub)
	job := testJob(2, 3)

	require.NoError(t, r.StartJob(job))
	require.Eventually(t, func() bool {
		return emitter.count(progress.StageJobDone) == 1
	}, 5*time.Second, 5*time.Millisecond)

	require.Equal(t, 1, emitter.count(progress.StageJobStart))
	require.Equal(t, 2, emitter.count(progress.StageBatchDone))

	// Once finished the job is no longer active.
	require.Eventually(t, func() bool {
		_, ok := r.State(job.ID)
		return !ok
	}, time.Second, 5*time.Millisecond)

	msgs := pub.Messages()
	require.Len(t, msgs, 2) // started + completed
	last, ok := msgs[1].Payload.(migration.Notification)
	require.True(t, ok)
	require.Equal(t, job.ID, last.JobID)
	require.Equal(t, string(store.JobStatusCompleted), last.Status)
	require.Equal(t, job.TotalRecords, last.ProcessedRecords)
}

// TestRunnerBatchDoneCarriesCumulativeRecords checks batch events report a
// running record total.
func TestRunnerBatchDoneCarriesCumulativeRecords(t *testing.T) {
	t.Parallel()

	emitter := &captureEmitter{}
	r := newTestRunner(emitter, memory.New())
	job := testJob(3, 4)

	require.NoError(t, r.StartJob(job))
	require.Eventually(t, func() bool {
		return emitter.count(progress.StageJobDone) == 1
	}, 5*time.Second, 5*time.Millisecond)

	emitter.mu.Lock()
	defer emitter.mu.Unlock()
	var batchRecords []int64
	for _, evt := range emitter.events {
		if evt.Stage == progress.StageBatchDone {
			batchRecords = append(batchRecords, evt.Records)
			require.Equal(t, int64(4), evt.BatchSize)
			require.Equal(t, int64(12), evt.TotalRecords)
		}
	}
	require.Equal(t, []int64{4, 8, 12}, batchRecords)
}

// TestRunnerBatchDoneDurationIsPerBatch checks batch events carry the time
// since the previous batch completed, not the time since the job started.
func TestRunnerBatchDoneDurationIsPerBatch(t *testing.T) {
	t.Parallel()

	emitter := &captureEmitter{}
	clock := &stepClock{t: time.Unix(1700000000, 0).UTC(), step: time.Second}
	r := New(Config{TickInterval: time.Millisecond, NotifyTopic: "migsim.jobs"},
		emitter, memory.New(), clock, nil)
	job := testJob(3, 4)

	require.NoError(t, r.StartJob(job))
	require.Eventually(t, func() bool {
		return emitter.count(progress.StageJobDone) == 1
	}, 5*time.Second, 5*time.Millisecond)

	emitter.mu.Lock()
	defer emitter.mu.Unlock()
	var durs []time.Duration
	for _, evt := range emitter.events {
		if evt.Stage == progress.StageBatchDone {
			durs = append(durs, evt.Dur)
		}
	}
	require.Len(t, durs, 3)
	// The bridge reads the clock once per batch, so each delta after the
	// first is exactly one step.
	require.Equal(t, clock.step, durs[1])
	require.Equal(t, clock.step, durs[2])
}

// TestRunnerRejectsDoubleStart ensures an active job cannot be started again.
func TestRunnerRejectsDoubleStart(t *testing.T) {
	t.Parallel()

	r := newTestRunner(&captureEmitter{}, memory.New())
	job := testJob(1200, 100)        // long enough to still be running
	r.cfg.TickInterval = time.Minute // effectively never ticks

	require.NoError(t, r.StartJob(job))
	defer r.Shutdown()
	require.Error(t, r.StartJob(job))
}

// TestRunnerTogglePause emits pause and resume events.
func TestRunnerTogglePause(t *testing.T) {
	t.Parallel()

	emitter := &captureEmitter{}
	r := newTestRunner(emitter, memory.New())
	r.cfg.TickInterval = time.Minute
	job := testJob(12, 100)

	require.NoError(t, r.StartJob(job))
	defer r.Shutdown()

	paused, err := r.TogglePause(job.ID)
	require.NoError(t, err)
	require.True(t, paused)

	paused, err = r.TogglePause(job.ID)
	require.NoError(t, err)
	require.False(t, paused)

	require.Equal(t, 1, emitter.count(progress.StageJobPause))
	require.Equal(t, 1, emitter.count(progress.StageJobResume))

	_, err = r.TogglePause(uuid.New())
	require.Error(t, err)
}

// TestRunnerStopJob halts the run and emits a stopped event.
func TestRunnerStopJob(t *testing.T) {
	t.Parallel()

	emitter := &captureEmitter{}
	r := newTestRunner(emitter, memory.New())
	r.cfg.TickInterval = time.Minute
	job := testJob(12, 100)

	require.NoError(t, r.StartJob(job))
	require.NoError(t, r.StopJob(job.ID))
	require.Equal(t, 1, emitter.count(progress.StageJobStopped))

	_, ok := r.State(job.ID)
	require.False(t, ok)
	require.Error(t, r.StopJob(job.ID))
}

// TestRunnerBatchDetails exposes live batch labels for active jobs only.
func TestRunnerBatchDetails(t *testing.T) {
	t.Parallel()

	r := newTestRunner(&captureEmitter{}, memory.New())
	r.cfg.TickInterval = time.Minute
	job := testJob(12, 100)

	require.NoError(t, r.StartJob(job))
	defer r.Shutdown()

	label, ok := r.BatchDetails(job.ID, 0)
	require.True(t, ok)
	require.Equal(t, "Pending", label)

	_, ok = r.BatchDetails(uuid.New(), 0)
	require.False(t, ok)
}
