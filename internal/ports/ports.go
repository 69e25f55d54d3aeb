package ports

import (
	"context"
	"io"
	"time"

	"github.com/rachan-eg/eg-pitchsync-sub001/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate       int
	Channels         int
	InputFormat      string
	InputDevice      string
	EchoCancellation bool
	NoiseSuppression bool
	AutoGain         bool
}

// AudioSession is a live capture session.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions. The recognition engine
// and the level meter acquire independent sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// RecognitionConfig describes one engine instance. The engine may end the
// session after a short silence even with InterimResults on; callers that
// want unbounded listening are expected to start a fresh instance.
type RecognitionConfig struct {
	Language        string
	InterimResults  bool
	MaxAlternatives int
}

// RecognitionSession is a single live engine instance. Events yields ordered
// result/error events and is closed when the engine ends for any reason.
type RecognitionSession interface {
	Events() <-chan domain.RecognitionEvent
	Stop() error
	Abort() error
}

// RecognitionEngine starts recognition sessions.
type RecognitionEngine interface {
	Start(ctx context.Context, cfg RecognitionConfig) (RecognitionSession, error)
	// Supported reports whether the environment can run recognition at all.
	// A false value is terminal: the controller starts in its error state.
	Supported() bool
}

// Corrector rewrites common mis-transcriptions of product and brand terms.
type Corrector interface {
	Apply(text string) string
}

// Visibility reports whether the document/tab is currently visible. It only
// gates clock-tick UI work, never correctness.
type Visibility interface {
	Visible() bool
}

// SnapshotStore persists opaque session snapshots across reloads.
type SnapshotStore interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// EventSink emits backend state/events to the UI.
type EventSink interface {
	DictationStateChanged(status domain.DictationStatus)
	InterimTranscript(text string)
	FinalSegment(text string, pause time.Duration)
	AudioLevel(level float64)
	DictationHint(hint string)
	DictationError(code domain.ErrorCode, detail string)
	ClockTick(elapsedSeconds int)
	ClockStateChanged(snapshot domain.ClockSnapshot)
}
