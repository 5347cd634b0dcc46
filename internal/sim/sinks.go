package sim

// Snapshot carries the primitive values the renderer needs after a tick. The
// percentages and counters are derived from controller state; Speed is the
// cosmetic throughput figure and ETA the fixed-rate estimate, both recomputed
// every tick.
type Snapshot struct {
	CurrentRecord int
	CurrentBatch  int
	TotalRecords  int
	TotalBatches  int
	RecordPercent float64
	BatchPercent  float64
	// Speed is a uniformly random value in the configured range, rounded to
	// the nearest integer. It is not a measured rate.
	Speed int
	// ETA is the seconds-remaining estimate formatted to one decimal place.
	ETA string
}

// RenderSink receives rendering side effects. Implementations own the actual
// display surface; the controller only hands over primitive values.
type RenderSink interface {
	// RenderProgress paints the progress bars and counters for one tick.
	RenderProgress(s Snapshot)
	// MarkBatchCompleted marks the grid cell at index as done. Forward-only;
	// cells are never un-marked.
	MarkBatchCompleted(index int)
	// ShowBatchDetails surfaces the detail view with the computed label.
	ShowBatchDetails(index int, label string)
	// AppendLog appends one line to the scrolling activity log. The sink is
	// responsible for timestamping.
	AppendLog(line string)
}

// NoticeKind classifies the transient notifications the controller emits.
type NoticeKind string

// Notice kinds emitted over a simulation's lifetime.
const (
	NoticeStarted  NoticeKind = "started"
	NoticePaused   NoticeKind = "paused"
	NoticeResumed  NoticeKind = "resumed"
	NoticeComplete NoticeKind = "complete"
	NoticeStopped  NoticeKind = "stopped"
)

// Notice is a short transient message for the notification sink.
type Notice struct {
	Kind NoticeKind
	Text string
}

// Notifier consumes transient notifications (toast-style).
type Notifier interface {
	Notify(n Notice)
}

// CuePlayer plays the audible cue. Playback is best-effort: errors are logged
// by the caller and never surfaced further.
type CuePlayer interface {
	PlayCue() error
}

type nopRenderSink struct{}

func (nopRenderSink) RenderProgress(Snapshot)         {}
func (nopRenderSink) MarkBatchCompleted(int)          {}
func (nopRenderSink) ShowBatchDetails(int, string)    {}
func (nopRenderSink) AppendLog(string)                {}

type nopNotifier struct{}

func (nopNotifier) Notify(Notice) {}

type nopCue struct{}

func (nopCue) PlayCue() error { return nil }
