// Package speechws streams microphone audio to the EG speech gateway over a
// websocket and turns the gateway's messages into recognition events.
//
// The gateway ends a session on its own after a short silence window; that
// surfaces here as the event channel closing, never as an error. Unbounded
// listening is the dictation controller's job.
package speechws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/rachan-eg/eg-pitchsync-sub001/internal/domain"
	"github.com/rachan-eg/eg-pitchsync-sub001/internal/ports"
)

// audio chunk size pumped per websocket frame: 100ms of s16le mono @16kHz.
const chunkBytes = 3200

// Config holds gateway connection settings.
type Config struct {
	APIKey     string
	GatewayURL string
	Model      string
}

// Engine implements ports.RecognitionEngine against the speech gateway. Each
// Start opens a fresh websocket plus its own microphone capture session.
type Engine struct {
	cfg      Config
	capture  ports.AudioCapture
	audioCfg ports.AudioConfig
	log      *slog.Logger
}

func NewEngine(cfg Config, capture ports.AudioCapture, audioCfg ports.AudioConfig, log *slog.Logger) *Engine {
	if cfg.GatewayURL == "" {
		cfg.GatewayURL = "https://speech.egpitch.in/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "realtime-general"
	}
	if audioCfg.SampleRate <= 0 {
		audioCfg.SampleRate = 16000
	}
	if audioCfg.Channels <= 0 {
		audioCfg.Channels = 1
	}
	return &Engine{cfg: cfg, capture: capture, audioCfg: audioCfg, log: log}
}

// Supported reports whether recognition can run at all. A missing API key or
// an unparseable gateway URL is terminal for the whole process lifetime.
func (e *Engine) Supported() bool {
	if strings.TrimSpace(e.cfg.APIKey) == "" {
		return false
	}
	_, err := buildRecognizeURL(e.cfg, ports.RecognitionConfig{}, e.audioCfg)
	return err == nil
}

func (e *Engine) Start(ctx context.Context, cfg ports.RecognitionConfig) (ports.RecognitionSession, error) {
	if strings.TrimSpace(e.cfg.APIKey) == "" {
		return nil, errors.New("speech gateway API key is not configured")
	}

	wsURL, err := buildRecognizeURL(e.cfg, cfg, e.audioCfg)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+e.cfg.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to speech gateway: %w", err)
	}

	mic, err := e.capture.Start(ctx, e.audioCfg)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open microphone: %w", err)
	}

	session := &wsSession{
		conn:   conn,
		mic:    mic,
		log:    e.log,
		events: make(chan domain.RecognitionEvent, 64),
		done:   make(chan struct{}),
	}

	session.wg.Add(2)
	go session.readLoop()
	go session.pumpLoop()
	go func() {
		session.wg.Wait()
		close(session.events)
		close(session.done)
		_ = conn.Close()
		_ = mic.Close()
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = session.Abort()
		case <-session.done:
		}
	}()

	return session, nil
}

type wsSession struct {
	conn *websocket.Conn
	mic  ports.AudioSession
	log  *slog.Logger

	events chan domain.RecognitionEvent
	done   chan struct{}

	wg sync.WaitGroup

	writeMu sync.Mutex

	stopOnce  sync.Once
	abortOnce sync.Once
}

func (s *wsSession) Events() <-chan domain.RecognitionEvent {
	return s.events
}

// Stop ends the session gracefully: the microphone is released, the gateway
// is told the stream is complete, and any results still in flight are
// delivered before the event channel closes.
func (s *wsSession) Stop() error {
	s.stopOnce.Do(func() {
		_ = s.mic.Stop()
		s.writeMu.Lock()
		_ = s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"close"}`))
		s.writeMu.Unlock()
	})
	<-s.done
	return nil
}

// Abort tears the session down immediately, discarding in-flight results.
func (s *wsSession) Abort() error {
	s.abortOnce.Do(func() {
		_ = s.mic.Stop()
		_ = s.conn.Close()
	})
	<-s.done
	return nil
}

func (s *wsSession) pumpLoop() {
	defer s.wg.Done()

	buf := make([]byte, chunkBytes)
	for {
		n, err := s.mic.Read(buf)
		if n > 0 {
			s.writeMu.Lock()
			werr := s.conn.WriteMessage(websocket.BinaryMessage, buf[:n])
			s.writeMu.Unlock()
			if werr != nil {
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.emitError(domain.RecognitionErrAudio, err.Error())
			}
			s.writeMu.Lock()
			_ = s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"close"}`))
			s.writeMu.Unlock()
			return
		}
	}
}

func (s *wsSession) readLoop() {
	defer s.wg.Done()
	// The pump has no reason to outlive the reader.
	defer func() { _ = s.mic.Stop() }()

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if !isExpectedClose(err) {
				s.emitError(domain.RecognitionErrNetwork, err.Error())
			}
			return
		}

		var msg gatewayMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.log.Warn("discarding malformed gateway message", slog.String("error", err.Error()))
			continue
		}

		switch strings.ToLower(msg.Type) {
		case "result":
			result := msg.toResult()
			if result.Transcript() == "" {
				continue
			}
			s.emit(domain.RecognitionEvent{Kind: domain.RecognitionEventResult, Result: result})
		case "error":
			s.emitError(mapErrorCode(msg.Code), msg.Message)
		case "end":
			return
		}
	}
}

func (s *wsSession) emit(event domain.RecognitionEvent) {
	select {
	case s.events <- event:
	case <-s.done:
	}
}

func (s *wsSession) emitError(code domain.RecognitionErrorCode, msg string) {
	s.emit(domain.RecognitionEvent{Kind: domain.RecognitionEventError, ErrCode: code, ErrMsg: msg})
}

func isExpectedClose(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) || errors.Is(err, net.ErrClosed)
}

type gatewayMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	IsFinal bool   `json:"is_final"`

	Alternatives []struct {
		Transcript string  `json:"transcript"`
		Confidence float64 `json:"confidence"`
	} `json:"alternatives"`
}

func (m gatewayMessage) toResult() domain.RecognitionResult {
	result := domain.RecognitionResult{IsFinal: m.IsFinal}
	for _, alt := range m.Alternatives {
		text := strings.TrimSpace(alt.Transcript)
		if text == "" {
			continue
		}
		result.Alternatives = append(result.Alternatives, domain.Alternative{
			Transcript: text,
			Confidence: alt.Confidence,
		})
	}
	return result
}

func mapErrorCode(code string) domain.RecognitionErrorCode {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "no-speech", "no_speech":
		return domain.RecognitionErrNoSpeech
	case "aborted":
		return domain.RecognitionErrAborted
	case "audio-capture", "audio_capture":
		return domain.RecognitionErrAudio
	default:
		return domain.RecognitionErrNetwork
	}
}

func buildRecognizeURL(engineCfg Config, cfg ports.RecognitionConfig, audioCfg ports.AudioConfig) (string, error) {
	base := strings.TrimSpace(engineCfg.GatewayURL)
	if base == "" {
		base = "https://speech.egpitch.in/v1"
	}

	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	recognizeURL, err := url.Parse(base + "/recognize")
	if err != nil {
		return "", fmt.Errorf("invalid speech gateway URL: %w", err)
	}

	if audioCfg.SampleRate <= 0 {
		audioCfg.SampleRate = 16000
	}
	if audioCfg.Channels <= 0 {
		audioCfg.Channels = 1
	}
	maxAlternatives := cfg.MaxAlternatives
	if maxAlternatives <= 0 {
		maxAlternatives = 1
	}

	query := recognizeURL.Query()
	query.Set("model", engineCfg.Model)
	query.Set("encoding", "linear16")
	query.Set("sample_rate", fmt.Sprintf("%d", audioCfg.SampleRate))
	query.Set("channels", fmt.Sprintf("%d", audioCfg.Channels))
	query.Set("interim_results", fmt.Sprintf("%t", cfg.InterimResults))
	query.Set("max_alternatives", fmt.Sprintf("%d", maxAlternatives))
	if cfg.Language != "" {
		query.Set("language", cfg.Language)
	}
	recognizeURL.RawQuery = query.Encode()
	return recognizeURL.String(), nil
}
