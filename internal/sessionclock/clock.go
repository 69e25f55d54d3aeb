package sessionclock

import (
	"sync"
	"time"

	"github.com/rachan-eg/eg-pitchsync-sub001/internal/domain"
	"github.com/rachan-eg/eg-pitchsync-sub001/internal/ports"
)

// Clock tracks elapsed exercise time with base-offset accounting. Elapsed is
// always recomputed from wall-clock deltas, so skipped ticks never drift.
type Clock struct {
	events       ports.EventSink
	visibility   ports.Visibility
	tickInterval time.Duration
	now          func() time.Time

	mu          sync.Mutex
	state       domain.ClockState
	baseSeconds int
	startedAt   time.Time
	stopTick    chan struct{}
}

func New(events ports.EventSink, visibility ports.Visibility, tickInterval time.Duration) *Clock {
	if tickInterval <= 0 {
		tickInterval = time.Second
	}
	return &Clock{
		events:       events,
		visibility:   visibility,
		tickInterval: tickInterval,
		now:          time.Now,
		state:        domain.ClockStopped,
	}
}

// ReconciledBase computes a starting base from two backend timestamps. Local
// clock skew cancels out because both values come from the backend.
func ReconciledBase(backendStart, backendNow time.Time) int {
	delta := backendNow.Sub(backendStart)
	if delta < 0 {
		return 0
	}
	return int(delta / time.Second)
}

// Start moves the clock to RUNNING seeded with baseSeconds and immediately
// reports baseSeconds as the displayed elapsed value.
func (c *Clock) Start(baseSeconds int) {
	if baseSeconds < 0 {
		baseSeconds = 0
	}

	c.mu.Lock()
	c.cancelTickLocked()
	c.baseSeconds = baseSeconds
	c.startedAt = c.now()
	c.state = domain.ClockRunning
	c.scheduleTickLocked()
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	c.events.ClockStateChanged(snapshot)
	c.events.ClockTick(baseSeconds)
}

// StartFromServer starts the clock from the backend's recorded phase start
// time and the backend's current time.
func (c *Clock) StartFromServer(backendStart, backendNow time.Time) {
	c.Start(ReconciledBase(backendStart, backendNow))
}

// Pause folds the in-flight run into baseSeconds. No-op unless RUNNING.
func (c *Clock) Pause() {
	c.mu.Lock()
	if c.state != domain.ClockRunning {
		c.mu.Unlock()
		return
	}
	c.foldLocked()
	c.state = domain.ClockPaused
	c.cancelTickLocked()
	snapshot := c.snapshotLocked()
	frozen := c.baseSeconds
	c.mu.Unlock()

	c.events.ClockStateChanged(snapshot)
	c.events.ClockTick(frozen)
}

// Resume restarts the run interval. No-op unless PAUSED.
func (c *Clock) Resume() {
	c.mu.Lock()
	if c.state != domain.ClockPaused {
		c.mu.Unlock()
		return
	}
	c.startedAt = c.now()
	c.state = domain.ClockRunning
	c.scheduleTickLocked()
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	c.events.ClockStateChanged(snapshot)
}

// Stop halts the clock, folding any in-flight run into baseSeconds. Safe to
// call from any state, repeatedly.
func (c *Clock) Stop() {
	c.mu.Lock()
	if c.state == domain.ClockRunning {
		c.foldLocked()
	}
	c.state = domain.ClockStopped
	c.cancelTickLocked()
	snapshot := c.snapshotLocked()
	frozen := c.baseSeconds
	c.mu.Unlock()

	c.events.ClockStateChanged(snapshot)
	c.events.ClockTick(frozen)
}

// StopAt halts the clock pinned at an authoritative final value, typically
// the duration the grading backend reports at submission.
func (c *Clock) StopAt(finalSeconds int) {
	if finalSeconds < 0 {
		finalSeconds = 0
	}

	c.mu.Lock()
	c.baseSeconds = finalSeconds
	c.startedAt = time.Time{}
	c.state = domain.ClockStopped
	c.cancelTickLocked()
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	c.events.ClockStateChanged(snapshot)
	c.events.ClockTick(finalSeconds)
}

// Reset returns the clock to STOPPED with zero accumulated time.
func (c *Clock) Reset() {
	c.StopAt(0)
}

// ElapsedSeconds derives the current displayed value.
func (c *Clock) ElapsedSeconds() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsedLocked()
}

// State reports the current state machine position.
func (c *Clock) State() domain.ClockState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot captures the serializable clock state.
func (c *Clock) Snapshot() domain.ClockSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Restore rehydrates the clock from a stored snapshot.
func (c *Clock) Restore(snapshot domain.ClockSnapshot) {
	c.mu.Lock()
	c.cancelTickLocked()
	c.baseSeconds = snapshot.BaseSeconds
	if c.baseSeconds < 0 {
		c.baseSeconds = 0
	}
	switch snapshot.State {
	case domain.ClockRunning:
		c.state = domain.ClockRunning
		c.startedAt = time.UnixMilli(snapshot.StartedAtMs)
		if snapshot.StartedAtMs == 0 {
			c.startedAt = c.now()
		}
		c.scheduleTickLocked()
	case domain.ClockPaused:
		c.state = domain.ClockPaused
		c.startedAt = time.Time{}
	default:
		c.state = domain.ClockStopped
		c.startedAt = time.Time{}
	}
	restored := c.snapshotLocked()
	elapsed := c.elapsedLocked()
	c.mu.Unlock()

	c.events.ClockStateChanged(restored)
	c.events.ClockTick(elapsed)
}

// Refresh re-emits the wall-clock-derived elapsed value immediately, used
// when the document regains visibility.
func (c *Clock) Refresh() {
	c.events.ClockTick(c.ElapsedSeconds())
}

// Close stops the tick loop without changing clock state.
func (c *Clock) Close() {
	c.mu.Lock()
	c.cancelTickLocked()
	c.mu.Unlock()
}

func (c *Clock) foldLocked() {
	c.baseSeconds += int(c.now().Sub(c.startedAt) / time.Second)
	c.startedAt = time.Time{}
}

func (c *Clock) elapsedLocked() int {
	if c.state != domain.ClockRunning {
		return c.baseSeconds
	}
	return c.baseSeconds + int(c.now().Sub(c.startedAt)/time.Second)
}

func (c *Clock) snapshotLocked() domain.ClockSnapshot {
	snapshot := domain.ClockSnapshot{State: c.state, BaseSeconds: c.baseSeconds}
	if c.state == domain.ClockRunning {
		snapshot.StartedAtMs = c.startedAt.UnixMilli()
	}
	return snapshot
}

func (c *Clock) scheduleTickLocked() {
	stop := make(chan struct{})
	c.stopTick = stop
	go c.runTicker(stop)
}

func (c *Clock) cancelTickLocked() {
	if c.stopTick != nil {
		close(c.stopTick)
		c.stopTick = nil
	}
}

func (c *Clock) runTicker(stop chan struct{}) {
	ticker := time.NewTicker(c.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// Skipping hidden-tab ticks saves work, not correctness.
			if c.visibility != nil && !c.visibility.Visible() {
				continue
			}
			c.events.ClockTick(c.ElapsedSeconds())
		}
	}
}
