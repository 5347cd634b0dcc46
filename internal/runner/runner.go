// Package runner drives migration jobs: it owns one simulation controller per
// active job and translates controller callbacks into progress events and
// lifecycle notifications.
package runner

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ora2es/migsim/internal/migration"
	"github.com/ora2es/migsim/internal/progress"
	"github.com/ora2es/migsim/internal/sim"
	"github.com/ora2es/migsim/internal/store"
)

// Config controls how jobs are run.
type Config struct {
	// TickInterval is the simulated per-record processing interval.
	TickInterval time.Duration
	// NotifyTopic is the topic lifecycle notifications are published to.
	NotifyTopic string
}

// Runner manages the set of actively running jobs.
type Runner struct {
	cfg     Config
	emitter progress.Emitter
	pub     migration.Publisher
	clock   migration.Clock
	logger  *zap.Logger

	mu     sync.Mutex
	active map[uuid.UUID]*activeJob
}

type activeJob struct {
	ctrl      *sim.Controller
	job       store.Job
	startedAt time.Time
}

// New constructs a Runner. The emitter, publisher, and clock are required;
// a nil logger falls back to a no-op logger.
func New(cfg Config, emitter progress.Emitter, pub migration.Publisher, clock migration.Clock, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:     cfg,
		emitter: emitter,
		pub:     pub,
		clock:   clock,
		logger:  logger,
		active:  make(map[uuid.UUID]*activeJob),
	}
}

// StartJob begins running a job. The job row must already exist; a job that
// is already active cannot be started twice.
func (r *Runner) StartJob(job store.Job) error {
	now := r.clock.Now()
	active := &activeJob{job: job, startedAt: now}
	br := &bridge{runner: r, jobID: job.ID, job: job, startedAt: now}
	active.ctrl = sim.NewController(
		sim.Config{
			TotalBatches:    job.TotalBatches,
			RecordsPerBatch: job.RecordsPerBatch,
			TickInterval:    r.cfg.TickInterval,
		},
		sim.TickerScheduler{},
		br,
		br,
		nil,
		rand.New(rand.NewSource(now.UnixNano())),
		r.logger.Named("sim"),
	)
	r.mu.Lock()
	if _, running := r.active[job.ID]; running {
		r.mu.Unlock()
		return fmt.Errorf("job %s is already running", job.ID)
	}
	r.active[job.ID] = active
	r.mu.Unlock()

	active.ctrl.Start()
	return nil
}

// TogglePause flips the paused state of an active job and reports the new
// state.
func (r *Runner) TogglePause(jobID uuid.UUID) (bool, error) {
	r.mu.Lock()
	active, ok := r.active[jobID]
	r.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("job %s is not running", jobID)
	}
	paused := active.ctrl.TogglePause()

	now := r.clock.Now()
	stage := progress.StageJobResume
	status := string(store.JobStatusRunning)
	if paused {
		stage = progress.StageJobPause
		status = string(store.JobStatusPaused)
	}
	st := active.ctrl.State()
	r.emitter.Emit(progress.Event{
		JobID:        progress.UUIDToBytes(jobID),
		TS:           now,
		Stage:        stage,
		Records:      int64(st.CurrentRecord),
		TotalRecords: active.job.TotalRecords,
	})
	r.notify(jobID, active.job, status, int64(st.CurrentRecord), "")
	return paused, nil
}

// StopJob halts an active job without completing it.
func (r *Runner) StopJob(jobID uuid.UUID) error {
	r.mu.Lock()
	active, ok := r.active[jobID]
	if ok {
		delete(r.active, jobID)
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %s is not running", jobID)
	}
	active.ctrl.Stop()
	return nil
}

// State reports the live counters of an active job.
func (r *Runner) State(jobID uuid.UUID) (sim.State, bool) {
	r.mu.Lock()
	active, ok := r.active[jobID]
	r.mu.Unlock()
	if !ok {
		return sim.State{}, false
	}
	return active.ctrl.State(), true
}

// BatchDetails returns the live status label of one batch of an active job.
func (r *Runner) BatchDetails(jobID uuid.UUID, index int) (string, bool) {
	r.mu.Lock()
	active, ok := r.active[jobID]
	r.mu.Unlock()
	if !ok {
		return "", false
	}
	return active.ctrl.BatchDetails(index), true
}

// Shutdown stops every active job.
func (r *Runner) Shutdown() {
	r.mu.Lock()
	jobs := make([]*activeJob, 0, len(r.active))
	for id, active := range r.active {
		jobs = append(jobs, active)
		delete(r.active, id)
	}
	r.mu.Unlock()
	for _, active := range jobs {
		active.ctrl.Stop()
	}
}

func (r *Runner) finish(jobID uuid.UUID) {
	r.mu.Lock()
	delete(r.active, jobID)
	r.mu.Unlock()
}

// notify publishes a lifecycle notification. Publishing is best-effort; a
// failure is logged and never interrupts the run.
func (r *Runner) notify(jobID uuid.UUID, job store.Job, status string, processed int64, message string) {
	if r.pub == nil || r.cfg.NotifyTopic == "" {
		return
	}
	payload := migration.Notification{
		JobID:            jobID,
		Status:           status,
		MappingName:      job.MappingName,
		ProcessedRecords: processed,
		TotalRecords:     job.TotalRecords,
		Message:          message,
		At:               r.clock.Now(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := r.pub.Publish(ctx, r.cfg.NotifyTopic, payload); err != nil {
		r.logger.Warn("publish job notification failed",
			zap.String("job_id", jobID.String()),
			zap.String("status", status),
			zap.Error(err))
	}
}

// bridge adapts controller callbacks onto the progress hub and publisher. It
// implements sim.RenderSink and sim.Notifier.
type bridge struct {
	runner    *Runner
	jobID     uuid.UUID
	job       store.Job
	startedAt time.Time
	// lastBatchAt marks the previous batch completion, so batch durations are
	// deltas rather than time since job start. Only the tick goroutine touches
	// it.
	lastBatchAt time.Time
}

func (b *bridge) RenderProgress(snap sim.Snapshot) {
	b.runner.logger.Debug("job progress",
		zap.String("job_id", b.jobID.String()),
		zap.Int("record", snap.CurrentRecord),
		zap.Int("batch", snap.CurrentBatch),
		zap.Int("speed", snap.Speed),
		zap.String("eta", snap.ETA))
}

func (b *bridge) MarkBatchCompleted(index int) {
	now := b.runner.clock.Now()
	since := b.lastBatchAt
	if since.IsZero() {
		since = b.startedAt
	}
	b.lastBatchAt = now
	records := int64(index+1) * int64(b.job.RecordsPerBatch)
	b.runner.emitter.Emit(progress.Event{
		JobID:        progress.UUIDToBytes(b.jobID),
		TS:           now,
		Stage:        progress.StageBatchDone,
		BatchIndex:   index,
		BatchSize:    int64(b.job.RecordsPerBatch),
		Records:      records,
		TotalRecords: b.job.TotalRecords,
		Dur:          now.Sub(since),
	})
}

func (b *bridge) ShowBatchDetails(index int, label string) {
	b.runner.logger.Debug("batch details",
		zap.String("job_id", b.jobID.String()),
		zap.Int("batch", index),
		zap.String("status", label))
}

func (b *bridge) AppendLog(line string) {
	b.runner.logger.Debug(line, zap.String("job_id", b.jobID.String()))
}

func (b *bridge) Notify(notice sim.Notice) {
	now := b.runner.clock.Now()
	evt := progress.Event{
		JobID:        progress.UUIDToBytes(b.jobID),
		TS:           now,
		TotalRecords: b.job.TotalRecords,
	}
	switch notice.Kind {
	case sim.NoticeStarted:
		evt.Stage = progress.StageJobStart
		b.runner.emitter.Emit(evt)
		b.runner.notify(b.jobID, b.job, string(store.JobStatusRunning), 0, notice.Text)
	case sim.NoticeComplete:
		evt.Stage = progress.StageJobDone
		evt.Records = b.job.TotalRecords
		evt.Dur = now.Sub(b.startedAt)
		b.runner.emitter.Emit(evt)
		b.runner.notify(b.jobID, b.job, string(store.JobStatusCompleted), b.job.TotalRecords, notice.Text)
		b.runner.finish(b.jobID)
	case sim.NoticeStopped:
		evt.Stage = progress.StageJobStopped
		evt.Dur = now.Sub(b.startedAt)
		b.runner.emitter.Emit(evt)
		b.runner.notify(b.jobID, b.job, string(store.JobStatusStopped), 0, notice.Text)
	}
}
