// Package phase is the thin glue between dictation output, the answer
// buffers, the session clock, and backend grading verdicts.
package phase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rachan-eg/eg-pitchsync-sub001/internal/domain"
	"github.com/rachan-eg/eg-pitchsync-sub001/internal/ports"
	"github.com/rachan-eg/eg-pitchsync-sub001/internal/sessionclock"
	"github.com/rachan-eg/eg-pitchsync-sub001/internal/transcript"
)

const snapshotKey = "session"

// phaseState is everything the coordinator tracks for one exercise phase.
// Elapsed time accumulates per phase: switching away parks the clock snapshot
// here and switching back re-seeds the clock from it.
type phaseState struct {
	Status          domain.PhaseStatus   `json:"status"`
	RecordedSeconds int                  `json:"recordedSeconds"`
	Answers         map[string]string    `json:"answers"`
	Finalized       map[string]string    `json:"finalized,omitempty"`
	Clock           domain.ClockSnapshot `json:"clock"`
}

func newPhaseState() *phaseState {
	return &phaseState{
		Status:  domain.PhaseInProgress,
		Answers: make(map[string]string),
		Clock:   domain.ClockSnapshot{State: domain.ClockStopped},
	}
}

// Coordinator routes final dictation segments into per-question answer
// buffers and drives the clock transitions the exercise rules call for.
type Coordinator struct {
	clock     *sessionclock.Clock
	assembler *transcript.Assembler
	snapshots ports.SnapshotStore
	log       *slog.Logger

	// normalizeTyped applies transcript normalization to typed edits too.
	// Off by default: typed text is taken verbatim.
	normalizeTyped bool

	mu        sync.Mutex
	sessionID string
	phaseID   string
	phases    map[string]*phaseState
}

func NewCoordinator(
	clock *sessionclock.Clock,
	assembler *transcript.Assembler,
	snapshots ports.SnapshotStore,
	log *slog.Logger,
	normalizeTyped bool,
) *Coordinator {
	return &Coordinator{
		clock:          clock,
		assembler:      assembler,
		snapshots:      snapshots,
		log:            log,
		normalizeTyped: normalizeTyped,
		sessionID:      uuid.NewString(),
		phases:         make(map[string]*phaseState),
	}
}

// SessionID identifies this runtime session in snapshots and logs.
func (c *Coordinator) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// BeginSession seeds the clock from the backend's started_at and
// current_server_time pair, so a stale local clock cannot skew elapsed time.
func (c *Coordinator) BeginSession(backendStart, backendNow time.Time) {
	c.clock.StartFromServer(backendStart, backendNow)
}

// BeginPhase makes phaseID the active phase. The previous phase's clock is
// paused and parked; a re-entered phase resumes from its parked elapsed time
// instead of restarting at zero.
func (c *Coordinator) BeginPhase(phaseID string) {
	c.mu.Lock()
	if c.phaseID == phaseID {
		c.mu.Unlock()
		return
	}
	if prev, ok := c.phases[c.phaseID]; ok {
		c.clock.Pause()
		prev.Clock = c.clock.Snapshot()
	}
	c.phaseID = phaseID
	state, ok := c.phases[phaseID]
	if !ok {
		state = newPhaseState()
		c.phases[phaseID] = state
	}
	snapshot := state.Clock
	status := state.Status
	c.mu.Unlock()

	c.clock.Restore(snapshot)
	c.log.Info("phase activated",
		slog.String("phase", phaseID),
		slog.String("status", string(status)),
		slog.Int("elapsed", snapshot.BaseSeconds))
}

// HandleFinalSegment appends a final dictation segment to the question's
// answer buffer and returns the updated answer. Speech activity resumes a
// paused clock.
func (c *Coordinator) HandleFinalSegment(questionID, text string, pause time.Duration) string {
	c.mu.Lock()
	state := c.activeLocked()
	if state == nil {
		c.mu.Unlock()
		return ""
	}
	answer := c.assembler.Append(state.Answers[questionID], text, pause)
	state.Answers[questionID] = answer
	c.mu.Unlock()

	if c.clock.State() == domain.ClockPaused {
		c.clock.Resume()
	}
	c.applyEditRule()
	return answer
}

// SetAnswer replaces the question's answer buffer with typed text.
func (c *Coordinator) SetAnswer(questionID, text string) string {
	if c.normalizeTyped {
		text = c.assembler.Normalize(text)
	}

	c.mu.Lock()
	state := c.activeLocked()
	if state == nil {
		c.mu.Unlock()
		return ""
	}
	state.Answers[questionID] = text
	c.mu.Unlock()

	c.applyEditRule()
	return text
}

// Answer returns the current buffer for a question in the active phase.
func (c *Coordinator) Answer(questionID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if state := c.activeLocked(); state != nil {
		return state.Answers[questionID]
	}
	return ""
}

// PhaseStatus returns the active phase's grading status.
func (c *Coordinator) PhaseStatus() domain.PhaseStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	if state := c.activeLocked(); state != nil {
		return state.Status
	}
	return domain.PhasePending
}

// Submit marks the active phase as awaiting a grading verdict and pauses the
// clock while the backend grades.
func (c *Coordinator) Submit() {
	c.mu.Lock()
	state := c.activeLocked()
	if state == nil {
		c.mu.Unlock()
		return
	}
	state.Status = domain.PhaseSubmitted
	c.mu.Unlock()

	c.clock.Pause()
}

// ApplyGrading consumes the backend's verdict. The verdict's duration is
// authoritative: the clock is pinned to it regardless of local elapsed time.
// A passed phase additionally freezes the answers as the finalized snapshot
// the edit-triggered resume rule compares against.
func (c *Coordinator) ApplyGrading(result domain.GradingResult) {
	c.mu.Lock()
	state := c.activeLocked()
	if state == nil {
		c.mu.Unlock()
		return
	}
	state.RecordedSeconds = result.DurationSeconds
	if result.Passed {
		state.Status = domain.PhasePassed
		state.Finalized = make(map[string]string, len(state.Answers))
		for questionID, answer := range state.Answers {
			state.Finalized[questionID] = answer
		}
	} else {
		state.Status = domain.PhaseFailed
	}
	phaseID := c.phaseID
	c.mu.Unlock()

	c.clock.StopAt(result.DurationSeconds)
	c.log.Info("grading applied",
		slog.String("phase", phaseID),
		slog.Bool("passed", result.Passed),
		slog.Int("duration", result.DurationSeconds))
}

// applyEditRule enforces the finalized-phase edit toggle: an answer differing
// from the finalized snapshot restarts the clock seeded with the recorded
// duration; reverting every answer to the exact snapshot pins it back at that
// duration. Seeding from the recorded value on each transition keeps the
// toggle exactly reversible.
func (c *Coordinator) applyEditRule() {
	c.mu.Lock()
	state := c.activeLocked()
	if state == nil || state.Status != domain.PhasePassed {
		c.mu.Unlock()
		return
	}
	recorded := state.RecordedSeconds
	dirty := editedSinceFinalized(state)
	c.mu.Unlock()

	if dirty {
		if c.clock.State() != domain.ClockRunning {
			c.clock.Start(recorded)
		}
	} else if c.clock.State() != domain.ClockStopped || c.clock.ElapsedSeconds() != recorded {
		c.clock.StopAt(recorded)
	}
}

func editedSinceFinalized(state *phaseState) bool {
	for questionID, answer := range state.Answers {
		if state.Finalized[questionID] != answer {
			return true
		}
	}
	for questionID := range state.Finalized {
		if _, ok := state.Answers[questionID]; !ok {
			return true
		}
	}
	return false
}

func (c *Coordinator) activeLocked() *phaseState {
	if c.phaseID == "" {
		return nil
	}
	return c.phases[c.phaseID]
}

// sessionSnapshot is the persisted wire form of the coordinator state.
type sessionSnapshot struct {
	SessionID string                 `json:"sessionId"`
	PhaseID   string                 `json:"phaseId"`
	Phases    map[string]*phaseState `json:"phases"`
}

// Save persists the whole session, including the live clock, so a reload can
// restore mid-phase.
func (c *Coordinator) Save(ctx context.Context) error {
	c.mu.Lock()
	if state := c.activeLocked(); state != nil {
		state.Clock = c.clock.Snapshot()
	}
	snapshot := sessionSnapshot{SessionID: c.sessionID, PhaseID: c.phaseID, Phases: c.phases}
	payload, err := json.Marshal(snapshot)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode session snapshot: %w", err)
	}

	if err := c.snapshots.Put(ctx, snapshotKey, payload); err != nil {
		return fmt.Errorf("persist session snapshot: %w", err)
	}
	return nil
}

// Restore loads the persisted session, if any, and re-seeds the clock from
// the active phase's snapshot. Returns false when there is nothing to
// restore.
func (c *Coordinator) Restore(ctx context.Context) (bool, error) {
	payload, ok, err := c.snapshots.Get(ctx, snapshotKey)
	if err != nil {
		return false, fmt.Errorf("load session snapshot: %w", err)
	}
	if !ok {
		return false, nil
	}

	var snapshot sessionSnapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return false, fmt.Errorf("decode session snapshot: %w", err)
	}

	c.mu.Lock()
	if snapshot.SessionID != "" {
		c.sessionID = snapshot.SessionID
	}
	c.phaseID = snapshot.PhaseID
	c.phases = snapshot.Phases
	if c.phases == nil {
		c.phases = make(map[string]*phaseState)
	}
	for _, state := range c.phases {
		if state.Answers == nil {
			state.Answers = make(map[string]string)
		}
	}
	var clockSnapshot domain.ClockSnapshot
	hasPhase := false
	if state := c.activeLocked(); state != nil {
		clockSnapshot = state.Clock
		hasPhase = true
	}
	c.mu.Unlock()

	if hasPhase {
		c.clock.Restore(clockSnapshot)
	}
	return true, nil
}

// Discard drops the persisted session snapshot.
func (c *Coordinator) Discard(ctx context.Context) error {
	return c.snapshots.Delete(ctx, snapshotKey)
}
