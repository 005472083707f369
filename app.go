package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"voxbind/internal/bootstrap"
	"voxbind/internal/config"
	"voxbind/internal/domain"
	"voxbind/internal/ports"
	"voxbind/internal/usecase"
)

const (
	eventAuthorization = "voxbind:authorization"
	eventUtterance     = "voxbind:utterance"
	eventNewUtterance  = "voxbind:new-utterance"
	eventStatus        = "voxbind:status"
	eventAvailability  = "voxbind:availability"
	eventError         = "voxbind:error"
)

type emitFunc func(ctx context.Context, name string, data ...interface{})

// App is the Wails application root.
type App struct {
	ctx     context.Context
	variant bootstrap.Variant
	emit    emitFunc

	services   bootstrap.Services
	recognizer ports.SpeechRecognizer
	cfg        config.Config
	bootErr    error

	stopForwarding context.CancelFunc
	forwarding     sync.WaitGroup
}

func NewApp(variant bootstrap.Variant) *App {
	return &App{variant: variant, emit: runtime.EventsEmit}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a.variant, os.Stderr)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.services = services
	a.cfg = services.Config
	a.attach(services.Recognizer)
}

func (a *App) shutdown(_ context.Context) {
	a.detach()
	if a.services.Recognizer != nil {
		a.services.Close()
	}
}

// attach forwards every recognizer stream to frontend events.
func (a *App) attach(recognizer ports.SpeechRecognizer) {
	a.recognizer = recognizer

	ctx, cancel := context.WithCancel(a.ctx)
	a.stopForwarding = cancel

	forward(a, recognizer.AuthorizationStatus(ctx), func(status domain.AuthorizationStatus) {
		a.emitEvent(eventAuthorization, map[string]string{"status": status.String()})
	})
	forward(a, recognizer.Utterances(ctx), func(utterance domain.Utterance) {
		a.emitEvent(eventUtterance, utterance)
	})
	forward(a, recognizer.NewUtterances(ctx), func(text string) {
		a.emitEvent(eventNewUtterance, map[string]string{"text": text})
	})
	forward(a, recognizer.SessionStatus(ctx), func(status domain.SessionStatus) {
		a.emitEvent(eventStatus, map[string]string{
			"status":  status.String(),
			"message": statusMessage(status),
		})
	})
	forward(a, recognizer.Availability(ctx), func(available bool) {
		a.emitEvent(eventAvailability, map[string]bool{"available": available})
	})
}

func (a *App) detach() {
	if a.stopForwarding != nil {
		a.stopForwarding()
		a.forwarding.Wait()
		a.stopForwarding = nil
	}
}

func forward[T any](a *App, in <-chan T, emit func(T)) {
	a.forwarding.Add(1)
	go func() {
		defer a.forwarding.Done()
		for v := range in {
			emit(v)
		}
	}()
}

// RequestAuthorization asks for recognition consent. The result arrives as
// a voxbind:authorization event.
func (a *App) RequestAuthorization() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.recognizer.RequestAuthorization()
	return nil
}

// StartRecording starts a session, or stops the active one.
func (a *App) StartRecording() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.recognizer.StartRecording(a.ctx); err != nil {
		a.SessionError(errorCodeFor(err), err.Error())
		return err
	}
	return nil
}

// StopRecording ends the active session.
func (a *App) StopRecording() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.recognizer.StopRecording()
	return nil
}

// GetSnapshot returns the current recognizer state for initial rendering.
func (a *App) GetSnapshot() domain.Snapshot {
	if a.recognizer == nil {
		return domain.Snapshot{
			Authorization: domain.AuthorizationUndetermined,
			Status:        domain.SessionStatusIdle,
		}
	}
	return a.recognizer.Snapshot()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	return map[string]string{
		"variant":          string(a.variant),
		"provider":         "Deepgram",
		"model":            a.cfg.Deepgram.Model,
		"locale":           a.cfg.Deepgram.Language,
		"audioBackend":     a.cfg.Audio.Backend,
		"audioInput":       a.cfg.Audio.InputDevice,
		"audioInputFormat": a.cfg.Audio.InputFormat,
		"doubleStart":      a.cfg.Session.DoubleStart,
		"relay":            a.services.RelayStatus(),
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.recognizer == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	a.emitEvent(eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func (a *App) emitEvent(name string, payload interface{}) {
	if a.ctx == nil || a.emit == nil {
		return
	}
	a.emit(a.ctx, name, payload)
}

func errorCodeFor(err error) domain.ErrorCode {
	switch {
	case errors.Is(err, usecase.ErrConfiguration):
		return domain.ErrorCodeConfiguration
	case errors.Is(err, usecase.ErrEngineInit):
		return domain.ErrorCodeEngineInit
	case errors.Is(err, usecase.ErrRecognizerUnavailable):
		return domain.ErrorCodeUnavailable
	default:
		return domain.ErrorCodeRecording
	}
}

func statusMessage(status domain.SessionStatus) string {
	switch status {
	case domain.SessionStatusIdle:
		return "Not started"
	case domain.SessionStatusRecording:
		return "Listening"
	case domain.SessionStatusStopping:
		return "Finishing transcription"
	case domain.SessionStatusStopped:
		return "Stopped"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeConfiguration:
		return "Audio could not be configured"
	case domain.ErrorCodeEngineInit:
		return "Recognition could not be initialized"
	case domain.ErrorCodeUnavailable:
		return "Speech recognition unavailable"
	case domain.ErrorCodeRecording:
		return "Recording failed"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
