package sessionclock

import (
	"sync"
	"testing"
	"time"

	"github.com/rachan-eg/eg-pitchsync-sub001/internal/domain"
)

type fakeSink struct {
	mu     sync.Mutex
	ticks  []int
	states []domain.ClockSnapshot
}

func (f *fakeSink) DictationStateChanged(domain.DictationStatus) {}
func (f *fakeSink) InterimTranscript(string)                     {}
func (f *fakeSink) FinalSegment(string, time.Duration)           {}
func (f *fakeSink) AudioLevel(float64)                           {}
func (f *fakeSink) DictationHint(string)                         {}
func (f *fakeSink) DictationError(domain.ErrorCode, string)      {}

func (f *fakeSink) ClockTick(elapsed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticks = append(f.ticks, elapsed)
}

func (f *fakeSink) ClockStateChanged(snapshot domain.ClockSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, snapshot)
}

func (f *fakeSink) lastTick(t *testing.T) int {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.ticks) == 0 {
		t.Fatalf("expected at least one tick")
	}
	return f.ticks[len(f.ticks)-1]
}

type manualTime struct {
	mu sync.Mutex
	t  time.Time
}

func newManualTime() *manualTime {
	return &manualTime{t: time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC)}
}

func (m *manualTime) now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t
}

func (m *manualTime) advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.t = m.t.Add(d)
}

func newTestClock(sink *fakeSink) (*Clock, *manualTime) {
	mt := newManualTime()
	clock := New(sink, nil, time.Hour) // long interval: ticks driven manually
	clock.now = mt.now
	return clock, mt
}

func TestStartPauseResumeElapsed(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	clock, mt := newTestClock(sink)
	defer clock.Close()

	clock.Start(30)
	if got := sink.lastTick(t); got != 30 {
		t.Fatalf("expected immediate tick at base, got %d", got)
	}

	mt.advance(5 * time.Second)
	if got := clock.ElapsedSeconds(); got != 35 {
		t.Fatalf("expected 35 after 5s, got %d", got)
	}

	clock.Pause()
	mt.advance(5 * time.Second)
	if got := clock.ElapsedSeconds(); got != 35 {
		t.Fatalf("expected frozen 35 while paused, got %d", got)
	}

	clock.Resume()
	mt.advance(2 * time.Second)
	if got := clock.ElapsedSeconds(); got != 37 {
		t.Fatalf("expected 37 after resume, got %d", got)
	}
}

func TestElapsedMonotonicWhileRunning(t *testing.T) {
	t.Parallel()

	clock, mt := newTestClock(&fakeSink{})
	defer clock.Close()

	clock.Start(0)
	previous := clock.ElapsedSeconds()
	for i := 0; i < 10; i++ {
		mt.advance(700 * time.Millisecond)
		current := clock.ElapsedSeconds()
		if current < previous {
			t.Fatalf("elapsed went backwards: %d -> %d", previous, current)
		}
		previous = current
	}
}

func TestStartedAtInvariant(t *testing.T) {
	t.Parallel()

	clock, _ := newTestClock(&fakeSink{})
	defer clock.Close()

	if snap := clock.Snapshot(); snap.StartedAtMs != 0 {
		t.Fatalf("stopped clock has startedAt: %+v", snap)
	}
	clock.Start(10)
	if snap := clock.Snapshot(); snap.StartedAtMs == 0 {
		t.Fatalf("running clock missing startedAt: %+v", snap)
	}
	clock.Pause()
	if snap := clock.Snapshot(); snap.StartedAtMs != 0 {
		t.Fatalf("paused clock has startedAt: %+v", snap)
	}
	clock.Resume()
	if snap := clock.Snapshot(); snap.StartedAtMs == 0 {
		t.Fatalf("resumed clock missing startedAt: %+v", snap)
	}
	clock.Stop()
	if snap := clock.Snapshot(); snap.StartedAtMs != 0 {
		t.Fatalf("stopped clock has startedAt: %+v", snap)
	}
}

func TestStopTwiceIsIdempotent(t *testing.T) {
	t.Parallel()

	clock, mt := newTestClock(&fakeSink{})
	defer clock.Close()

	clock.Start(5)
	mt.advance(3 * time.Second)

	clock.Stop()
	if clock.State() != domain.ClockStopped || clock.ElapsedSeconds() != 8 {
		t.Fatalf("unexpected state after first stop: %s %d", clock.State(), clock.ElapsedSeconds())
	}

	mt.advance(10 * time.Second)
	clock.Stop()
	if clock.State() != domain.ClockStopped || clock.ElapsedSeconds() != 8 {
		t.Fatalf("unexpected state after second stop: %s %d", clock.State(), clock.ElapsedSeconds())
	}
}

func TestStopAtPinsBackendDuration(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	clock, mt := newTestClock(sink)
	defer clock.Close()

	clock.Start(0)
	mt.advance(90 * time.Second)

	clock.StopAt(42)
	if got := clock.ElapsedSeconds(); got != 42 {
		t.Fatalf("expected pinned 42, got %d", got)
	}
	if got := sink.lastTick(t); got != 42 {
		t.Fatalf("expected pinned tick 42, got %d", got)
	}

	clock.Reset()
	if got := clock.ElapsedSeconds(); got != 0 {
		t.Fatalf("expected reset to zero, got %d", got)
	}
}

func TestPauseAndResumeAreStateGuarded(t *testing.T) {
	t.Parallel()

	clock, _ := newTestClock(&fakeSink{})
	defer clock.Close()

	clock.Pause()
	if clock.State() != domain.ClockStopped {
		t.Fatalf("pause from stopped should be a no-op")
	}
	clock.Resume()
	if clock.State() != domain.ClockStopped {
		t.Fatalf("resume from stopped should be a no-op")
	}
}

func TestReconciledBaseUsesBackendDeltaOnly(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC)
	if got := ReconciledBase(start, start.Add(95*time.Second+700*time.Millisecond)); got != 95 {
		t.Fatalf("expected floor 95, got %d", got)
	}
	if got := ReconciledBase(start, start.Add(-time.Minute)); got != 0 {
		t.Fatalf("expected clamp at 0, got %d", got)
	}
}

func TestStartFromServerSeedsReconciledBase(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	clock, _ := newTestClock(sink)
	defer clock.Close()

	start := time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC)
	clock.StartFromServer(start, start.Add(30*time.Second))

	if clock.State() != domain.ClockRunning {
		t.Fatalf("expected running clock")
	}
	if got := sink.lastTick(t); got != 30 {
		t.Fatalf("expected reconciled base 30, got %d", got)
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	clock, mt := newTestClock(sink)
	defer clock.Close()

	clock.Start(12)
	mt.advance(4 * time.Second)
	clock.Pause()
	snapshot := clock.Snapshot()

	restored, _ := newTestClock(sink)
	defer restored.Close()
	restored.Restore(snapshot)

	if restored.State() != domain.ClockPaused {
		t.Fatalf("expected paused after restore, got %s", restored.State())
	}
	if got := restored.ElapsedSeconds(); got != 16 {
		t.Fatalf("expected 16 after restore, got %d", got)
	}
}

func TestTickSkippedWhileHidden(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	visibility := &stubVisibility{visible: false}
	clock := New(sink, visibility, 5*time.Millisecond)
	mt := newManualTime()
	clock.now = mt.now
	defer clock.Close()

	clock.Start(0)
	ticksAfterStart := len(sink.snapshotTicks())
	time.Sleep(40 * time.Millisecond)
	if got := len(sink.snapshotTicks()); got != ticksAfterStart {
		t.Fatalf("expected no ticks while hidden, got %d extra", got-ticksAfterStart)
	}

	visibility.setVisible(true)
	mt.advance(9 * time.Second)
	clock.Refresh()
	if got := sink.lastTick(t); got != 9 {
		t.Fatalf("expected snap to 9 on refresh, got %d", got)
	}
}

func (f *fakeSink) snapshotTicks() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, len(f.ticks))
	copy(out, f.ticks)
	return out
}

type stubVisibility struct {
	mu      sync.Mutex
	visible bool
}

func (s *stubVisibility) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

func (s *stubVisibility) setVisible(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = v
}
