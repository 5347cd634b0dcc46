package sim

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// manualScheduler hands the tick callback to the test so ticks can be driven
// deterministically.
type manualScheduler struct {
	mu       sync.Mutex
	fn       func()
	canceled int
	starts   int
}

func (s *manualScheduler) Schedule(_ time.Duration, fn func()) func() {
	s.mu.Lock()
	s.fn = fn
	s.starts++
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.canceled++
		s.mu.Unlock()
	}
}

func (s *manualScheduler) tick(n int) {
	s.mu.Lock()
	fn := s.fn
	s.mu.Unlock()
	for i := 0; i < n; i++ {
		fn()
	}
}

type captureSink struct {
	mu        sync.Mutex
	snapshots []Snapshot
	marked    []int
	details   []string
	logLines  []string
}

func (s *captureSink) RenderProgress(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snap)
}

func (s *captureSink) MarkBatchCompleted(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, index)
}

func (s *captureSink) ShowBatchDetails(index int, label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.details = append(s.details, fmt.Sprintf("%d=%s", index, label))
}

func (s *captureSink) AppendLog(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logLines = append(s.logLines, line)
}

type captureNotifier struct {
	mu      sync.Mutex
	notices []Notice
}

func (n *captureNotifier) Notify(notice Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

func (n *captureNotifier) kinds() []NoticeKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]NoticeKind, len(n.notices))
	for i, notice := range n.notices {
		out[i] = notice.Kind
	}
	return out
}

type failingCue struct {
	calls int
}

func (c *failingCue) PlayCue() error {
	c.calls++
	return fmt.Errorf("audio device unavailable")
}

func newTestController(sched *manualScheduler, sink *captureSink, notifier *captureNotifier) *Controller {
	return NewController(
		Config{},
		sched,
		sink,
		notifier,
		nil,
		rand.New(rand.NewSource(1)),
		nil,
	)
}

// TestTickCountersMatchTickCount verifies record=n and batch=floor(n/100)
// after n uninterrupted ticks.
func TestTickCountersMatchTickCount(t *testing.T) {
	t.Parallel()

	sched := &manualScheduler{}
	ctrl := newTestController(sched, &captureSink{}, &captureNotifier{})
	ctrl.Start()

	for _, n := range []int{1, 50, 99, 100, 101, 250, 1199} {
		st := ctrl.State()
		for st.CurrentRecord < n {
			sched.tick(1)
			st = ctrl.State()
		}
		require.Equal(t, n, st.CurrentRecord)
		require.Equal(t, n/100, st.CurrentBatch)
	}
}

// TestStartIsIdempotentWhileRunning ensures a second Start does not schedule
// a second timer.
func TestStartIsIdempotentWhileRunning(t *testing.T) {
	t.Parallel()

	sched := &manualScheduler{}
	ctrl := newTestController(sched, &captureSink{}, &captureNotifier{})
	ctrl.Start()
	ctrl.Start()
	require.Equal(t, 1, sched.starts)
}

// TestScenarioBatchBoundary covers scenario A: 100 ticks complete the first
// batch and mark cell 0.
func TestScenarioBatchBoundary(t *testing.T) {
	t.Parallel()

	sched := &manualScheduler{}
	sink := &captureSink{}
	ctrl := newTestController(sched, sink, &captureNotifier{})
	ctrl.Start()
	sched.tick(100)

	st := ctrl.State()
	require.Equal(t, 100, st.CurrentRecord)
	require.Equal(t, 1, st.CurrentBatch)
	require.Equal(t, []int{0}, sink.marked)
	require.True(t, ctrl.BatchCompleted(0))
	require.False(t, ctrl.BatchCompleted(1))
}

// TestScenarioPausedTicksContributeNothing covers scenario B: ticks delivered
// while paused leave the counters unchanged.
func TestScenarioPausedTicksContributeNothing(t *testing.T) {
	t.Parallel()

	sched := &manualScheduler{}
	ctrl := newTestController(sched, &captureSink{}, &captureNotifier{})
	ctrl.Start()

	sched.tick(50)
	require.True(t, ctrl.TogglePause())
	sched.tick(10)
	require.Equal(t, 50, ctrl.State().CurrentRecord)
	require.False(t, ctrl.TogglePause())
	sched.tick(50)

	st := ctrl.State()
	require.Equal(t, 100, st.CurrentRecord)
	require.Equal(t, 1, st.CurrentBatch)
}

// TestTogglePauseTwiceRestoresState checks pause toggling is an involution.
func TestTogglePauseTwiceRestoresState(t *testing.T) {
	t.Parallel()

	ctrl := newTestController(&manualScheduler{}, &captureSink{}, &captureNotifier{})
	require.False(t, ctrl.State().Paused)
	ctrl.TogglePause()
	require.True(t, ctrl.State().Paused)
	ctrl.TogglePause()
	require.False(t, ctrl.State().Paused)
}

// TestScenarioRunToCompletion covers scenario C and the boundary property:
// after 1200 ticks the run has finished exactly once, the timer is canceled,
// and further ticks change nothing.
func TestScenarioRunToCompletion(t *testing.T) {
	t.Parallel()

	sched := &manualScheduler{}
	sink := &captureSink{}
	notifier := &captureNotifier{}
	ctrl := newTestController(sched, sink, notifier)
	ctrl.Start()
	sched.tick(1200)

	st := ctrl.State()
	require.False(t, st.Running)
	require.Equal(t, 1200, st.CurrentRecord)
	require.Equal(t, 12, st.CurrentBatch)
	require.Equal(t, 1, sched.canceled)
	require.Equal(t, []NoticeKind{NoticeStarted, NoticeComplete}, notifier.kinds())
	require.Len(t, sink.marked, 12)

	// Inert after finish: the cleared timer firing again must not move state.
	sched.tick(5)
	st = ctrl.State()
	require.Equal(t, 1200, st.CurrentRecord)
	require.Equal(t, 12, st.CurrentBatch)
}

// TestRestartAfterFinishResumesCounters pins the preserved widget behavior:
// Start after finish does not reset counters.
func TestRestartAfterFinishResumesCounters(t *testing.T) {
	t.Parallel()

	sched := &manualScheduler{}
	ctrl := newTestController(sched, &captureSink{}, &captureNotifier{})
	ctrl.Start()
	sched.tick(1200)
	require.False(t, ctrl.State().Running)

	ctrl.Start()
	require.True(t, ctrl.State().Running)
	sched.tick(1)
	require.Equal(t, 1201, ctrl.State().CurrentRecord)
}

// TestMonotonicity asserts counters never decrease across a mixed run.
func TestMonotonicity(t *testing.T) {
	t.Parallel()

	sched := &manualScheduler{}
	ctrl := newTestController(sched, &captureSink{}, &captureNotifier{})
	ctrl.Start()

	prev := ctrl.State()
	for i := 0; i < 350; i++ {
		if i == 120 || i == 180 {
			ctrl.TogglePause()
		}
		sched.tick(1)
		st := ctrl.State()
		require.GreaterOrEqual(t, st.CurrentRecord, prev.CurrentRecord)
		require.GreaterOrEqual(t, st.CurrentBatch, prev.CurrentBatch)
		prev = st
	}
}

// TestBatchDetailsLabels covers scenario D.
func TestBatchDetailsLabels(t *testing.T) {
	t.Parallel()

	sched := &manualScheduler{}
	sink := &captureSink{}
	ctrl := newTestController(sched, sink, &captureNotifier{})
	require.Equal(t, "Pending", ctrl.BatchDetails(0))

	ctrl.Start()
	sched.tick(100)
	require.Equal(t, "Completed", ctrl.BatchDetails(0))
	require.Equal(t, "Pending", ctrl.BatchDetails(1))
	require.Equal(t, []string{"0=Pending", "0=Completed", "1=Pending"}, sink.details)
}

// TestSnapshotValues verifies the derived percentages, bounded speed, and the
// one-decimal ETA format.
func TestSnapshotValues(t *testing.T) {
	t.Parallel()

	sched := &manualScheduler{}
	sink := &captureSink{}
	ctrl := newTestController(sched, sink, &captureNotifier{})
	ctrl.Start()
	sched.tick(300)

	last := sink.snapshots[len(sink.snapshots)-1]
	require.Equal(t, 300, last.CurrentRecord)
	require.Equal(t, 3, last.CurrentBatch)
	require.InDelta(t, 25.0, last.RecordPercent, 1e-9)
	require.InDelta(t, 25.0, last.BatchPercent, 1e-9)
	require.GreaterOrEqual(t, last.Speed, 50)
	require.LessOrEqual(t, last.Speed, 100)
	require.Equal(t, "15.0", last.ETA)
	require.Equal(t, "Indexed record 300", sink.logLines[len(sink.logLines)-1])
}

// TestCueFailureIsSwallowed confirms audio failures never propagate.
func TestCueFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	cue := &failingCue{}
	sched := &manualScheduler{}
	ctrl := NewController(Config{}, sched, &captureSink{}, &captureNotifier{}, cue, rand.New(rand.NewSource(1)), nil)

	require.NotPanics(t, ctrl.Start)
	require.Equal(t, 1, cue.calls)
	sched.tick(1200)
	require.Equal(t, 2, cue.calls) // start + complete
}

// TestStopCancelsTimer ensures Stop halts the run without completing it.
func TestStopCancelsTimer(t *testing.T) {
	t.Parallel()

	sched := &manualScheduler{}
	notifier := &captureNotifier{}
	ctrl := newTestController(sched, &captureSink{}, notifier)
	ctrl.Start()
	sched.tick(42)
	ctrl.Stop()

	st := ctrl.State()
	require.False(t, st.Running)
	require.Equal(t, 42, st.CurrentRecord)
	require.Equal(t, 1, sched.canceled)
	require.Contains(t, notifier.kinds(), NoticeStopped)

	sched.tick(3)
	require.Equal(t, 42, ctrl.State().CurrentRecord)
}

// TestTickerSchedulerDelivers exercises the real scheduler end to end with a
// short interval.
func TestTickerSchedulerDelivers(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	count := 0
	cancel := TickerScheduler{}.Schedule(time.Millisecond, func() {
		mu.Lock()
		count++
		mu.Unlock()
	})
	defer cancel()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count >= 3
	}, time.Second, time.Millisecond)

	cancel()
	mu.Lock()
	after := count
	mu.Unlock()
	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	require.LessOrEqual(t, count, after+1)
	mu.Unlock()
}
