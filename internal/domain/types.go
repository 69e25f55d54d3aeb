package domain

import "time"

// DictationState models the continuous-dictation lifecycle.
type DictationState string

const (
	DictationStateIdle       DictationState = "idle"
	DictationStateRequesting DictationState = "requesting"
	DictationStateListening  DictationState = "listening"
	DictationStateError      DictationState = "error"
)

// DictationStatus is the caller-visible view of the dictation engine.
// State is derived: while the caller wants to listen and at least one engine
// attempt has happened, it reads "listening" even across restart gaps.
type DictationStatus struct {
	State   DictationState `json:"state"`
	Desired bool           `json:"desired"`
	Hint    string         `json:"hint,omitempty"`
	Message string         `json:"message,omitempty"`
}

// RecognitionErrorCode identifies engine error conditions.
type RecognitionErrorCode string

const (
	RecognitionErrNoSpeech RecognitionErrorCode = "no-speech"
	RecognitionErrAborted  RecognitionErrorCode = "aborted"
	RecognitionErrNetwork  RecognitionErrorCode = "network"
	RecognitionErrAudio    RecognitionErrorCode = "audio-capture"
)

// Alternative is one candidate transcription for a segment.
type Alternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

// RecognitionResult is one ordered result event from the engine. Interim
// results replace the previous interim text; final results are stable.
type RecognitionResult struct {
	Alternatives []Alternative `json:"alternatives"`
	IsFinal      bool          `json:"isFinal"`
}

// Transcript returns the top alternative's text, or "" when there is none.
func (r RecognitionResult) Transcript() string {
	if len(r.Alternatives) == 0 {
		return ""
	}
	return r.Alternatives[0].Transcript
}

// RecognitionEventKind distinguishes in-band engine events.
type RecognitionEventKind string

const (
	RecognitionEventResult RecognitionEventKind = "result"
	RecognitionEventError  RecognitionEventKind = "error"
)

// RecognitionEvent is one event from a recognition session. The session's
// event channel closing signals engine end.
type RecognitionEvent struct {
	Kind    RecognitionEventKind
	Result  RecognitionResult
	ErrCode RecognitionErrorCode
	ErrMsg  string
}

// ClockState models the session clock state machine.
type ClockState string

const (
	ClockStopped ClockState = "stopped"
	ClockRunning ClockState = "running"
	ClockPaused  ClockState = "paused"
)

// ClockSnapshot is the serializable clock state. StartedAtMs is non-zero iff
// State is ClockRunning.
type ClockSnapshot struct {
	State       ClockState `json:"state"`
	BaseSeconds int        `json:"baseSeconds"`
	StartedAtMs int64      `json:"startedAtMs,omitempty"`
}

// ElapsedSeconds derives the displayed elapsed value at the given instant.
func (s ClockSnapshot) ElapsedSeconds(now time.Time) int {
	if s.State != ClockRunning || s.StartedAtMs == 0 {
		return s.BaseSeconds
	}
	delta := now.UnixMilli() - s.StartedAtMs
	if delta < 0 {
		delta = 0
	}
	return s.BaseSeconds + int(delta/1000)
}

// PhaseStatus is the grading lifecycle of one exercise phase.
type PhaseStatus string

const (
	PhasePending    PhaseStatus = "pending"
	PhaseInProgress PhaseStatus = "in_progress"
	PhaseSubmitted  PhaseStatus = "submitted"
	PhasePassed     PhaseStatus = "passed"
	PhaseFailed     PhaseStatus = "failed"
)

// GradingResult is the backend's finalized verdict for a phase, consumed as
// opaque values. DurationSeconds is authoritative and pins the clock.
type GradingResult struct {
	Passed          bool    `json:"passed"`
	Score           float64 `json:"score"`
	TimePenalty     float64 `json:"timePenalty"`
	Feedback        string  `json:"feedback"`
	DurationSeconds int     `json:"durationSeconds"`
}

// ErrorCode identifies backend errors surfaced to the UI.
type ErrorCode string

const (
	ErrorCodeStartup    ErrorCode = "startup"
	ErrorCodeDictation  ErrorCode = "dictation"
	ErrorCodeAudioMeter ErrorCode = "audio_meter"
	ErrorCodeSnapshot   ErrorCode = "snapshot"
)
