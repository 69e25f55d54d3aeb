package audiolevel

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/rachan-eg/eg-pitchsync-sub001/internal/ports"
)

const (
	// windowSamples matches one analysis frame: 256 samples is 16ms at
	// 16kHz, which is animation-frame cadence.
	windowSamples = 256

	// levelScale maps normal speaking volume into a usable 0..1 range.
	levelScale = 4.0

	// smoothing blends each new window into the previous level.
	smoothing = 0.3
)

// Monitor converts a raw microphone stream into a perceptually scaled volume
// scalar for visual feedback only. It never blocks or breaks dictation:
// hardware failures are logged and swallowed.
type Monitor struct {
	capture ports.AudioCapture
	cfg     ports.AudioConfig
	onLevel func(float64)
	log     *slog.Logger

	mu      sync.Mutex
	gen     int
	session ports.AudioSession
	stop    chan struct{}
	done    chan struct{}
	level   float64
}

func New(capture ports.AudioCapture, cfg ports.AudioConfig, log *slog.Logger, onLevel func(float64)) *Monitor {
	cfg.EchoCancellation = true
	cfg.NoiseSuppression = false // keep natural dynamics for the display
	cfg.AutoGain = true
	return &Monitor{capture: capture, cfg: cfg, onLevel: onLevel, log: log}
}

// Start acquires a capture session and begins the level loop. If the monitor
// was stopped while the hardware handle was being acquired, the session is
// discarded so no open microphone is orphaned.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.session != nil {
		m.mu.Unlock()
		return nil
	}
	gen := m.gen
	m.mu.Unlock()

	session, err := m.capture.Start(ctx, m.cfg)
	if err != nil {
		m.log.Warn("audio level meter unavailable", slog.String("error", err.Error()))
		return err
	}

	m.mu.Lock()
	if gen != m.gen || m.session != nil {
		m.mu.Unlock()
		_ = session.Stop()
		_ = session.Close()
		return nil
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	m.session = session
	m.stop = stop
	m.done = done
	m.mu.Unlock()

	go m.loop(session, stop, done)
	return nil
}

// Stop tears the meter down: cancel the loop first, then stop the tracks,
// then close the stream, so the loop never reads a closed handle.
func (m *Monitor) Stop() {
	m.mu.Lock()
	m.gen++
	session := m.session
	stop := m.stop
	done := m.done
	m.session = nil
	m.stop = nil
	m.done = nil
	m.level = 0
	m.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if session != nil {
		_ = session.Stop()
		_ = session.Close()
	}
	if done != nil {
		<-done
	}
	if session != nil && m.onLevel != nil {
		m.onLevel(0)
	}
}

// Level returns the most recent smoothed level.
func (m *Monitor) Level() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

func (m *Monitor) loop(session ports.AudioSession, stop chan struct{}, done chan struct{}) {
	defer close(done)

	buf := make([]byte, windowSamples*2) // s16le
	for {
		select {
		case <-stop:
			return
		default:
		}

		n, err := io.ReadFull(session, buf)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				m.log.Debug("audio level read ended", slog.String("error", err.Error()))
			}
			return
		}

		window := windowLevel(buf[:n])

		m.mu.Lock()
		m.level = m.level*(1-smoothing) + window*smoothing
		level := m.level
		m.mu.Unlock()

		select {
		case <-stop:
			return
		default:
		}
		if m.onLevel != nil {
			m.onLevel(level)
		}
	}
}

// windowLevel computes the mean magnitude of one s16le window, scaled by a
// fixed empirical factor and clamped to [0,1].
func windowLevel(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < samples; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		magnitude := float64(sample)
		if magnitude < 0 {
			magnitude = -magnitude
		}
		sum += magnitude / 32768.0
	}
	level := (sum / float64(samples)) * levelScale
	if level > 1 {
		level = 1
	}
	return level
}
