package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rachan-eg/eg-pitchsync-sub001/internal/audio"
	"github.com/rachan-eg/eg-pitchsync-sub001/internal/audiolevel"
	"github.com/rachan-eg/eg-pitchsync-sub001/internal/config"
	"github.com/rachan-eg/eg-pitchsync-sub001/internal/dictation"
	"github.com/rachan-eg/eg-pitchsync-sub001/internal/domain"
	"github.com/rachan-eg/eg-pitchsync-sub001/internal/metrics"
	"github.com/rachan-eg/eg-pitchsync-sub001/internal/phase"
	"github.com/rachan-eg/eg-pitchsync-sub001/internal/ports"
	"github.com/rachan-eg/eg-pitchsync-sub001/internal/providers/speechws"
	"github.com/rachan-eg/eg-pitchsync-sub001/internal/sessionclock"
	"github.com/rachan-eg/eg-pitchsync-sub001/internal/store"
	"github.com/rachan-eg/eg-pitchsync-sub001/internal/transcript"
	"github.com/rachan-eg/eg-pitchsync-sub001/internal/vocab"
)

// Services is the assembled runtime graph.
type Services struct {
	Config      config.Config
	Controller  *dictation.Controller
	Clock       *sessionclock.Clock
	Coordinator *phase.Coordinator
	Assembler   *transcript.Assembler
	Metrics     *metrics.Metrics

	snapshots ports.SnapshotStore
}

// Close releases owned resources. Safe after a partial shutdown.
func (s Services) Close() error {
	if s.Controller != nil {
		s.Controller.Stop()
	}
	if s.Clock != nil {
		s.Clock.Close()
	}
	if s.snapshots != nil {
		return s.snapshots.Close()
	}
	return nil
}

// Build wires all backend dependencies for the current runtime. ctx bounds
// background work (vocabulary watching); cancelling it stops those goroutines
// but not the services themselves.
func Build(ctx context.Context, eventSink ports.EventSink, visibility ports.Visibility, log *slog.Logger) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}

	corrector, err := vocab.Load(cfg.Transcript.VocabularyPath)
	if err != nil {
		return Services{}, fmt.Errorf("load vocabulary: %w", err)
	}
	assembler := transcript.NewAssembler(corrector, cfg.Transcript.SentencePause)
	if cfg.Transcript.WatchVocab && cfg.Transcript.VocabularyPath != "" {
		vocab.Watch(ctx, cfg.Transcript.VocabularyPath, log, func(c *vocab.Corrector) {
			assembler.SetCorrector(c)
		})
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	if cfg.Metrics.Addr != "" {
		metrics.Serve(cfg.Metrics.Addr, registry, log)
	}

	capture := audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand)
	audioCfg := ports.AudioConfig{
		SampleRate:  cfg.Audio.SampleRate,
		Channels:    cfg.Audio.Channels,
		InputFormat: cfg.Audio.InputFormat,
		InputDevice: cfg.Audio.InputDevice,
	}

	engine := speechws.NewEngine(speechws.Config{
		APIKey:     cfg.Speech.APIKey,
		GatewayURL: cfg.Speech.GatewayURL,
		Model:      cfg.Speech.Model,
	}, capture, audioCfg, log)

	meter := audiolevel.New(capture, audioCfg, log, func(level float64) {
		m.AudioLevel.Set(level)
		eventSink.AudioLevel(level)
	})

	controller := dictation.NewController(engine, meter, eventSink, m, log, dictation.Config{
		Recognition: ports.RecognitionConfig{
			Language:        cfg.Speech.Language,
			InterimResults:  cfg.Speech.InterimResults,
			MaxAlternatives: cfg.Speech.MaxAlternatives,
		},
		RestartDelay:      cfg.Dictation.RestartDelay,
		MeterDelay:        cfg.Dictation.MeterDelay,
		NoSpeechHintAfter: cfg.Dictation.NoSpeechHintAfter,
	})

	clock := sessionclock.New(gaugedSink{inner: eventSink, metrics: m}, visibility, cfg.Clock.TickInterval)

	snapshots, err := store.Open(ctx, cfg.Snapshot.Path, log)
	if err != nil {
		return Services{}, fmt.Errorf("open snapshot store: %w", err)
	}

	coordinator := phase.NewCoordinator(clock, assembler, snapshots, log, cfg.Transcript.NormalizeTyped)

	return Services{
		Config:      cfg,
		Controller:  controller,
		Clock:       clock,
		Coordinator: coordinator,
		Assembler:   assembler,
		Metrics:     m,
		snapshots:   snapshots,
	}, nil
}

// gaugedSink mirrors clock ticks into the metrics gauge on their way to the
// UI sink.
type gaugedSink struct {
	inner   ports.EventSink
	metrics *metrics.Metrics
}

func (g gaugedSink) DictationStateChanged(status domain.DictationStatus) {
	g.inner.DictationStateChanged(status)
}

func (g gaugedSink) InterimTranscript(text string) { g.inner.InterimTranscript(text) }

func (g gaugedSink) FinalSegment(text string, pause time.Duration) {
	g.inner.FinalSegment(text, pause)
}

func (g gaugedSink) AudioLevel(level float64) { g.inner.AudioLevel(level) }

func (g gaugedSink) DictationHint(hint string) { g.inner.DictationHint(hint) }

func (g gaugedSink) DictationError(code domain.ErrorCode, detail string) {
	g.inner.DictationError(code, detail)
}

func (g gaugedSink) ClockTick(elapsedSeconds int) {
	g.metrics.ClockSeconds.Set(float64(elapsedSeconds))
	g.inner.ClockTick(elapsedSeconds)
}

func (g gaugedSink) ClockStateChanged(snapshot domain.ClockSnapshot) {
	g.inner.ClockStateChanged(snapshot)
}
