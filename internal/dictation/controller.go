package dictation

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rachan-eg/eg-pitchsync-sub001/internal/domain"
	"github.com/rachan-eg/eg-pitchsync-sub001/internal/metrics"
	"github.com/rachan-eg/eg-pitchsync-sub001/internal/ports"
)

// NoSpeechHint is surfaced after repeated no-speech timeouts. Listening keeps
// going; the hint is purely informational.
const NoSpeechHint = "No speech detected. Try speaking closer to the microphone, or a little louder."

// Config controls the continuous-dictation loop.
type Config struct {
	Recognition       ports.RecognitionConfig
	RestartDelay      time.Duration
	MeterDelay        time.Duration
	NoSpeechHintAfter int
}

// LevelMeter is the slice of the audio level monitor the controller drives.
type LevelMeter interface {
	Start(ctx context.Context) error
	Stop()
}

// Controller presents one stable "listening" toggle over a recognition
// engine that silently terminates after short silences. Every engine end
// while listening is still wanted schedules a fresh instance, so the caller
// sees an unbounded session.
//
// The desired flag captures user intent and is always flipped synchronously
// before any asynchronous hardware work, so Stop immediately after Start
// wins. The generation counter detaches callbacks of superseded engine and
// meter instances: a stale goroutine can never mutate state.
type Controller struct {
	engine  ports.RecognitionEngine
	meter   LevelMeter
	events  ports.EventSink
	metrics *metrics.Metrics
	log     *slog.Logger
	cfg     Config
	now     func() time.Time

	mu           sync.Mutex
	fatal        bool
	desired      bool
	attempted    bool
	message      string
	hint         string
	noSpeech     int
	lastFinal    time.Time
	gen          int
	session      ports.RecognitionSession
	restartTimer *time.Timer
	meterTimer   *time.Timer
}

func NewController(
	engine ports.RecognitionEngine,
	meter LevelMeter,
	events ports.EventSink,
	m *metrics.Metrics,
	log *slog.Logger,
	cfg Config,
) *Controller {
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = 100 * time.Millisecond
	}
	if cfg.MeterDelay < 0 {
		cfg.MeterDelay = 0
	}
	if cfg.NoSpeechHintAfter <= 0 {
		cfg.NoSpeechHintAfter = 3
	}

	c := &Controller{
		engine:  engine,
		meter:   meter,
		events:  events,
		metrics: m,
		log:     log,
		cfg:     cfg,
		now:     time.Now,
	}
	if !engine.Supported() {
		c.fatal = true
		c.message = "speech recognition is not available in this environment"
	}
	return c
}

// Start begins a listening session. No-op while one is already wanted, and a
// permanent no-op when the environment cannot run recognition at all. The
// engine launches immediately; the level meter follows after a short delay so
// it does not contend with the engine's own permission prompt.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if c.fatal || c.desired {
		c.mu.Unlock()
		return
	}
	c.desired = true
	c.attempted = false
	c.message = ""
	c.hint = ""
	c.noSpeech = 0
	c.lastFinal = time.Time{}
	c.gen++
	gen := c.gen
	c.meterTimer = time.AfterFunc(c.cfg.MeterDelay, func() { c.launchMeter(ctx, gen) })
	status := c.statusLocked()
	c.mu.Unlock()

	c.events.DictationStateChanged(status)
	go c.launchEngine(ctx, gen, false)
}

// Stop ends the listening session and is safe to call from any state,
// repeatedly. The desired flag flips before the engine is told to stop so the
// completion handler cannot schedule a restart off the stop itself.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.fatal || (!c.desired && c.session == nil) {
		c.mu.Unlock()
		return
	}
	c.desired = false
	c.gen++
	session := c.session
	c.session = nil
	if c.restartTimer != nil {
		c.restartTimer.Stop()
		c.restartTimer = nil
	}
	if c.meterTimer != nil {
		c.meterTimer.Stop()
		c.meterTimer = nil
	}
	c.attempted = false
	c.message = ""
	c.hint = ""
	c.noSpeech = 0
	c.lastFinal = time.Time{}
	status := c.statusLocked()
	c.mu.Unlock()

	c.meter.Stop()
	if session != nil {
		_ = session.Abort()
	}
	c.events.DictationStateChanged(status)
}

// Toggle stops when listening is wanted, otherwise starts.
func (c *Controller) Toggle(ctx context.Context) {
	c.mu.Lock()
	desired := c.desired
	c.mu.Unlock()

	if desired {
		c.Stop()
	} else {
		c.Start(ctx)
	}
}

// Status returns the derived caller-visible state: desired plus any engine
// attempt reads as listening, smoothing over restart gaps.
func (c *Controller) Status() domain.DictationStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Controller) statusLocked() domain.DictationStatus {
	status := domain.DictationStatus{Desired: c.desired, Hint: c.hint, Message: c.message}
	switch {
	case c.fatal:
		status.State = domain.DictationStateError
	case !c.desired:
		status.State = domain.DictationStateIdle
	case c.attempted:
		status.State = domain.DictationStateListening
	default:
		status.State = domain.DictationStateRequesting
	}
	return status
}

func (c *Controller) generationAlive(gen int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.desired && gen == c.gen
}

func (c *Controller) launchMeter(ctx context.Context, gen int) {
	// Re-check intent immediately before acquiring the hardware handle.
	if !c.generationAlive(gen) {
		return
	}
	if err := c.meter.Start(ctx); err != nil {
		// Metering is best-effort; dictation continues without it.
		c.log.Warn("level meter start failed", slog.String("error", err.Error()))
		return
	}
	// ...and immediately after, discarding the stream if listening was
	// cancelled while the request was in flight.
	if !c.generationAlive(gen) {
		c.meter.Stop()
	}
}

func (c *Controller) launchEngine(ctx context.Context, gen int, isRestart bool) {
	session, err := c.engine.Start(ctx, c.cfg.Recognition)

	c.mu.Lock()
	if !c.desired || gen != c.gen {
		c.mu.Unlock()
		if session != nil {
			_ = session.Abort()
		}
		return
	}
	c.attempted = true
	if err != nil {
		// Treated like any transient engine error: report, keep the
		// restart loop going.
		c.message = err.Error()
		status := c.statusLocked()
		c.scheduleRestartLocked(ctx, gen)
		c.mu.Unlock()

		c.metrics.EngineErrors.Inc()
		c.events.DictationError(domain.ErrorCodeDictation, err.Error())
		c.events.DictationStateChanged(status)
		return
	}
	c.session = session
	status := c.statusLocked()
	c.mu.Unlock()

	c.metrics.EngineStarts.Inc()
	if isRestart {
		c.metrics.EngineRestarts.Inc()
	}
	c.events.DictationStateChanged(status)
	go c.consume(ctx, gen, session)
}

func (c *Controller) consume(ctx context.Context, gen int, session ports.RecognitionSession) {
	for event := range session.Events() {
		switch event.Kind {
		case domain.RecognitionEventResult:
			c.handleResult(gen, event.Result)
		case domain.RecognitionEventError:
			c.handleError(gen, event.ErrCode, event.ErrMsg)
		}
	}

	// Engine ended: silence timeout, error, or explicit stop. While
	// listening is still wanted this is invisible to the caller; a fresh
	// instance replaces it after a short delay.
	c.mu.Lock()
	if !c.desired || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.session = nil
	c.scheduleRestartLocked(ctx, gen)
	c.mu.Unlock()
}

func (c *Controller) scheduleRestartLocked(ctx context.Context, gen int) {
	if c.restartTimer != nil {
		c.restartTimer.Stop()
	}
	c.restartTimer = time.AfterFunc(c.cfg.RestartDelay, func() {
		if !c.generationAlive(gen) {
			return
		}
		c.launchEngine(ctx, gen, true)
	})
}

func (c *Controller) handleResult(gen int, result domain.RecognitionResult) {
	text := strings.TrimSpace(result.Transcript())
	if text == "" {
		return
	}

	if !result.IsFinal {
		// Interim text replaces the previous interim buffer; it is the
		// fragment currently being spoken, never accumulated.
		if !c.generationAlive(gen) {
			return
		}
		c.metrics.InterimSegments.Inc()
		c.events.InterimTranscript(text)
		return
	}

	c.mu.Lock()
	if !c.desired || gen != c.gen {
		c.mu.Unlock()
		return
	}
	now := c.now()
	var pause time.Duration
	if !c.lastFinal.IsZero() {
		pause = now.Sub(c.lastFinal)
	}
	c.lastFinal = now
	c.noSpeech = 0
	c.message = ""
	c.hint = ""
	c.mu.Unlock()

	c.metrics.FinalSegments.Inc()
	c.events.FinalSegment(text, pause)
}

func (c *Controller) handleError(gen int, code domain.RecognitionErrorCode, msg string) {
	c.mu.Lock()
	if !c.desired || gen != c.gen {
		c.mu.Unlock()
		return
	}

	switch code {
	case domain.RecognitionErrNoSpeech:
		c.noSpeech++
		var hint string
		if c.noSpeech >= c.cfg.NoSpeechHintAfter {
			c.hint = NoSpeechHint
			hint = NoSpeechHint
		}
		c.mu.Unlock()

		c.metrics.NoSpeechEvents.Inc()
		if hint != "" {
			c.events.DictationHint(hint)
		}
	case domain.RecognitionErrAborted:
		// Caused by an explicit stop; not an error.
		c.mu.Unlock()
	default:
		if msg == "" {
			msg = string(code)
		}
		c.message = msg
		status := c.statusLocked()
		c.mu.Unlock()

		c.metrics.EngineErrors.Inc()
		c.events.DictationError(domain.ErrorCodeDictation, msg)
		c.events.DictationStateChanged(status)
	}
}
