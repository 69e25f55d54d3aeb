package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"github.com/rachan-eg/eg-pitchsync-sub001/internal/bootstrap"
	"github.com/rachan-eg/eg-pitchsync-sub001/internal/config"
	"github.com/rachan-eg/eg-pitchsync-sub001/internal/dictation"
	"github.com/rachan-eg/eg-pitchsync-sub001/internal/domain"
	"github.com/rachan-eg/eg-pitchsync-sub001/internal/phase"
	"github.com/rachan-eg/eg-pitchsync-sub001/internal/sessionclock"
)

const (
	eventDictation = "pitchsync:dictation"
	eventInterim   = "pitchsync:interim"
	eventFinal     = "pitchsync:final"
	eventLevel     = "pitchsync:level"
	eventHint      = "pitchsync:hint"
	eventClock     = "pitchsync:clock"
	eventClockMode = "pitchsync:clockstate"
	eventError     = "pitchsync:error"
)

// App is the Wails application root. Its exported methods are the bindings
// the frontend calls; the ports.EventSink methods push state the other way.
type App struct {
	ctx context.Context
	log *slog.Logger

	controller  *dictation.Controller
	clock       *sessionclock.Clock
	coordinator *phase.Coordinator
	cfg         config.Config
	bootErr     error

	visible atomic.Bool

	activeQuestion atomic.Value // string
}

func NewApp() *App {
	app := &App{
		log: slog.New(slog.NewTextHandler(os.Stderr, nil)),
	}
	app.visible.Store(true)
	app.activeQuestion.Store("")
	return app
}

// Visible implements ports.Visibility for the session clock.
func (a *App) Visible() bool {
	return a.visible.Load()
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(ctx, a, a, a.log)
	if err != nil {
		a.bootErr = err
		a.DictationError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.cfg = services.Config
	a.controller = services.Controller
	a.clock = services.Clock
	a.coordinator = services.Coordinator

	if restored, err := a.coordinator.Restore(ctx); err != nil {
		a.DictationError(domain.ErrorCodeSnapshot, err.Error())
	} else if restored {
		a.log.Info("session restored", slog.String("session", a.coordinator.SessionID()))
	}

	a.DictationStateChanged(a.controller.Status())
}

// StartDictation begins continuous listening.
func (a *App) StartDictation() (domain.DictationStatus, error) {
	if err := a.requireReady(); err != nil {
		return domain.DictationStatus{}, err
	}
	a.controller.Start(a.ctx)
	return a.controller.Status(), nil
}

// StopDictation ends listening.
func (a *App) StopDictation() (domain.DictationStatus, error) {
	if err := a.requireReady(); err != nil {
		return domain.DictationStatus{}, err
	}
	a.controller.Stop()
	return a.controller.Status(), nil
}

// ToggleDictation flips the listening toggle.
func (a *App) ToggleDictation() (domain.DictationStatus, error) {
	if err := a.requireReady(); err != nil {
		return domain.DictationStatus{}, err
	}
	a.controller.Toggle(a.ctx)
	return a.controller.Status(), nil
}

// GetDictationStatus returns the current dictation state.
func (a *App) GetDictationStatus() domain.DictationStatus {
	if a.controller == nil {
		if a.bootErr != nil {
			return domain.DictationStatus{State: domain.DictationStateError, Message: a.bootErr.Error()}
		}
		return domain.DictationStatus{State: domain.DictationStateIdle}
	}
	return a.controller.Status()
}

// SetVisible records document visibility; while hidden, clock ticks are
// suppressed and a refresh is emitted on regain.
func (a *App) SetVisible(visible bool) {
	wasHidden := !a.visible.Load()
	a.visible.Store(visible)
	if visible && wasHidden && a.clock != nil {
		a.clock.Refresh()
	}
}

// SetActiveQuestion routes subsequent dictation segments to a question.
func (a *App) SetActiveQuestion(questionID string) {
	a.activeQuestion.Store(questionID)
}

// BeginSession seeds the clock from the backend's timestamp pair.
func (a *App) BeginSession(startedAtMs, serverNowMs int64) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.coordinator.BeginSession(time.UnixMilli(startedAtMs), time.UnixMilli(serverNowMs))
	return nil
}

// BeginPhase activates an exercise phase.
func (a *App) BeginPhase(phaseID string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.coordinator.BeginPhase(phaseID)
	return nil
}

// GetAnswer returns the current answer buffer for a question.
func (a *App) GetAnswer(questionID string) (string, error) {
	if err := a.requireReady(); err != nil {
		return "", err
	}
	return a.coordinator.Answer(questionID), nil
}

// EditAnswer applies a typed edit to a question's answer buffer.
func (a *App) EditAnswer(questionID, text string) (string, error) {
	if err := a.requireReady(); err != nil {
		return "", err
	}
	answer := a.coordinator.SetAnswer(questionID, text)
	a.saveSnapshot()
	return answer, nil
}

// SubmitPhase marks the active phase as submitted for grading.
func (a *App) SubmitPhase() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.coordinator.Submit()
	a.saveSnapshot()
	return nil
}

// ApplyGrading consumes the backend's grading verdict for the active phase.
func (a *App) ApplyGrading(result domain.GradingResult) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.coordinator.ApplyGrading(result)
	a.saveSnapshot()
	return nil
}

// PauseClock pauses the session clock.
func (a *App) PauseClock() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.clock.Pause()
	return nil
}

// ResumeClock resumes a paused session clock.
func (a *App) ResumeClock() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.clock.Resume()
	return nil
}

// GetElapsedSeconds returns the clock's current elapsed value.
func (a *App) GetElapsedSeconds() int {
	if a.clock == nil {
		return 0
	}
	return a.clock.ElapsedSeconds()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	return map[string]string{
		"gateway":    a.cfg.Speech.GatewayURL,
		"model":      a.cfg.Speech.Model,
		"language":   a.cfg.Speech.Language,
		"vocabFile":  a.cfg.Transcript.VocabularyPath,
		"audioInput": a.cfg.Audio.InputDevice,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

func (a *App) saveSnapshot() {
	if a.coordinator == nil || a.ctx == nil {
		return
	}
	if err := a.coordinator.Save(a.ctx); err != nil {
		a.log.Warn("snapshot save failed", slog.String("error", err.Error()))
	}
}

// DictationStateChanged emits dictation lifecycle updates to the frontend.
func (a *App) DictationStateChanged(status domain.DictationStatus) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventDictation, status)
}

// InterimTranscript emits the fragment currently being spoken. It replaces
// the previous interim text rather than appending.
func (a *App) InterimTranscript(text string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventInterim, map[string]string{"text": text})
}

// FinalSegment routes a final dictation segment through the coordinator and
// emits the updated answer.
func (a *App) FinalSegment(text string, pause time.Duration) {
	if a.ctx == nil {
		return
	}
	questionID, _ := a.activeQuestion.Load().(string)
	var answer string
	if a.coordinator != nil && questionID != "" {
		answer = a.coordinator.HandleFinalSegment(questionID, text, pause)
		a.saveSnapshot()
	}
	runtime.EventsEmit(a.ctx, eventFinal, map[string]string{
		"question": questionID,
		"segment":  text,
		"answer":   answer,
	})
}

// AudioLevel emits the smoothed microphone level for the UI meter.
func (a *App) AudioLevel(level float64) {
	if a.ctx == nil || !a.Visible() {
		return
	}
	runtime.EventsEmit(a.ctx, eventLevel, level)
}

// DictationHint emits informational hints such as the no-speech nudge.
func (a *App) DictationHint(hint string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventHint, map[string]string{"hint": hint})
}

// DictationError emits backend errors to the UI.
func (a *App) DictationError(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

// ClockTick emits the elapsed-seconds display value.
func (a *App) ClockTick(elapsedSeconds int) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventClock, elapsedSeconds)
}

// ClockStateChanged emits clock state transitions.
func (a *App) ClockStateChanged(snapshot domain.ClockSnapshot) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventClockMode, snapshot)
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeDictation:
		return "Dictation error"
	case domain.ErrorCodeAudioMeter:
		return "Microphone level meter issue"
	case domain.ErrorCodeSnapshot:
		return "Session snapshot issue"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
