// Package sim implements the migration simulation loop: a timer-driven state
// machine that advances a record counter, derives batch completion and
// progress percentages, and forwards primitive values to presentation sinks.
// No real data moves; the loop reproduces the observable behavior of a
// migration for demos and load-free testing of the surrounding service.
package sim

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config controls the shape and pacing of a simulation.
//   - TotalBatches: number of batches (default 12).
//   - RecordsPerBatch: records per batch (default 100).
//   - TickInterval: delay between ticks (default 100ms).
//   - AssumedRate: records/second used for the ETA estimate (default 60).
//   - SpeedMin/SpeedMax: half-open range for the cosmetic speed value
//     (default [50,100)).
type Config struct {
	TotalBatches    int
	RecordsPerBatch int
	TickInterval    time.Duration
	AssumedRate     float64
	SpeedMin        int
	SpeedMax        int
}

const (
	defaultTotalBatches    = 12
	defaultRecordsPerBatch = 100
	defaultTickInterval    = 100 * time.Millisecond
	defaultAssumedRate     = 60
	defaultSpeedMin        = 50
	defaultSpeedMax        = 100
)

func (c Config) withDefaults() Config {
	if c.TotalBatches <= 0 {
		c.TotalBatches = defaultTotalBatches
	}
	if c.RecordsPerBatch <= 0 {
		c.RecordsPerBatch = defaultRecordsPerBatch
	}
	if c.TickInterval <= 0 {
		c.TickInterval = defaultTickInterval
	}
	if c.AssumedRate <= 0 {
		c.AssumedRate = defaultAssumedRate
	}
	if c.SpeedMax <= c.SpeedMin {
		c.SpeedMin = defaultSpeedMin
		c.SpeedMax = defaultSpeedMax
	}
	return c
}

// TotalRecords returns the record count implied by the batch shape.
func (c Config) TotalRecords() int {
	return c.TotalBatches * c.RecordsPerBatch
}

// State is a copy of the controller's counters and flags.
type State struct {
	Running       bool
	Paused        bool
	CurrentRecord int
	CurrentBatch  int
}

// Controller owns the simulation state and drives it from a scheduled tick.
// All state lives on the instance; control operations may be called from any
// goroutine and are serialized with an internal mutex.
type Controller struct {
	cfg      Config
	sched    TickScheduler
	render   RenderSink
	notifier Notifier
	cue      CuePlayer
	rng      *rand.Rand
	logger   *zap.Logger

	mu        sync.Mutex
	running   bool
	paused    bool
	record    int
	batch     int
	completed []bool
	cancel    func()
}

// NewController wires a controller to its sinks. Nil sinks are replaced with
// no-ops; a nil rng falls back to a time-seeded source.
func NewController(
	cfg Config,
	sched TickScheduler,
	render RenderSink,
	notifier Notifier,
	cue CuePlayer,
	rng *rand.Rand,
	logger *zap.Logger,
) *Controller {
	cfg = cfg.withDefaults()
	if sched == nil {
		sched = TickerScheduler{}
	}
	if render == nil {
		render = nopRenderSink{}
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if cue == nil {
		cue = nopCue{}
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		cfg:       cfg,
		sched:     sched,
		render:    render,
		notifier:  notifier,
		cue:       cue,
		rng:       rng,
		logger:    logger,
		completed: make([]bool, cfg.TotalBatches),
	}
}

// Start begins the repeating tick. It is a no-op while running, so at most
// one timer is active per start. Counters are intentionally NOT reset here:
// restarting a finished simulation resumes from the current values, matching
// the original widget's behavior. Callers that want a clean slate create a
// new controller.
func (c *Controller) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.cancel = c.sched.Schedule(c.cfg.TickInterval, c.Tick)
	c.mu.Unlock()

	c.notifier.Notify(Notice{Kind: NoticeStarted, Text: "Migration simulation started"})
	c.playCue()
}

// Tick advances the simulation by one record. While paused the state is left
// untouched (the timer keeps firing); after finish it is inert until Start
// is called again.
func (c *Controller) Tick() {
	c.mu.Lock()
	if !c.running || c.paused {
		c.mu.Unlock()
		return
	}
	c.record++
	batchDone := -1
	finished := false
	if c.record%c.cfg.RecordsPerBatch == 0 {
		batchDone = c.batch
		finished = c.completeBatchLocked()
	}
	var cancel func()
	if finished {
		cancel = c.cancel
		c.cancel = nil
	}
	snap := c.snapshotLocked()
	record := c.record
	c.mu.Unlock()

	if batchDone >= 0 {
		c.render.MarkBatchCompleted(batchDone)
	}
	if finished {
		if cancel != nil {
			cancel()
		}
		c.notifier.Notify(Notice{Kind: NoticeComplete, Text: "Migration complete"})
		c.playCue()
	}
	c.render.RenderProgress(snap)
	c.render.AppendLog(fmt.Sprintf("Indexed record %d", record))
}

// completeBatchLocked marks the current grid cell, advances the batch counter
// and reports whether the run finished. Marking is forward-only and bounds
// checked: a restart past the final batch advances the counter without
// touching the grid.
func (c *Controller) completeBatchLocked() bool {
	if c.batch < len(c.completed) {
		c.completed[c.batch] = true
	}
	c.batch++
	if c.batch >= c.cfg.TotalBatches {
		c.running = false
		return true
	}
	return false
}

// TogglePause flips the paused flag and returns the new value. The timer keeps
// running; pause only gates the tick's effect.
func (c *Controller) TogglePause() bool {
	c.mu.Lock()
	c.paused = !c.paused
	paused := c.paused
	c.mu.Unlock()

	if paused {
		c.notifier.Notify(Notice{Kind: NoticePaused, Text: "Migration paused"})
	} else {
		c.notifier.Notify(Notice{Kind: NoticeResumed, Text: "Migration resumed"})
	}
	return paused
}

// Stop cancels the timer and halts the run without completing it. It is a
// no-op when nothing is running.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.paused = false
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.notifier.Notify(Notice{Kind: NoticeStopped, Text: "Migration stopped"})
}

// BatchDetails reports whether the batch at index has completed and triggers
// the detail view with that label.
func (c *Controller) BatchDetails(index int) string {
	c.mu.Lock()
	label := "Pending"
	if index < c.batch {
		label = "Completed"
	}
	c.mu.Unlock()

	c.render.ShowBatchDetails(index, label)
	return label
}

// State returns a copy of the counters and flags.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Running:       c.running,
		Paused:        c.paused,
		CurrentRecord: c.record,
		CurrentBatch:  c.batch,
	}
}

// BatchCompleted reports whether the grid cell at index has been marked.
func (c *Controller) BatchCompleted(index int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return index >= 0 && index < len(c.completed) && c.completed[index]
}

func (c *Controller) snapshotLocked() Snapshot {
	total := c.cfg.TotalRecords()
	speedSpan := float64(c.cfg.SpeedMax - c.cfg.SpeedMin)
	speed := int(math.Round(float64(c.cfg.SpeedMin) + c.rng.Float64()*speedSpan))
	eta := float64(total-c.record) / c.cfg.AssumedRate
	if eta < 0 {
		eta = 0
	}
	return Snapshot{
		CurrentRecord: c.record,
		CurrentBatch:  c.batch,
		TotalRecords:  total,
		TotalBatches:  c.cfg.TotalBatches,
		RecordPercent: float64(c.record) / float64(total) * 100,
		BatchPercent:  float64(c.batch) / float64(c.cfg.TotalBatches) * 100,
		Speed:         speed,
		ETA:           fmt.Sprintf("%.1f", eta),
	}
}

// playCue fires the audible cue; failures are logged and otherwise ignored.
func (c *Controller) playCue() {
	if err := c.cue.PlayCue(); err != nil {
		c.logger.Debug("audio cue unavailable", zap.Error(err))
	}
}
