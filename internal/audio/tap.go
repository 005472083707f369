package audio

import (
	"errors"
	"sync"

	"voxbind/internal/domain"
	"voxbind/internal/ports"
)

var (
	ErrTapInstalled       = errors.New("an input tap is already installed")
	ErrAlreadyRunning     = errors.New("audio engine is already running")
	ErrBackendUnavailable = errors.New("audio backend is not available in this build")
)

// inputTap holds the single tap of an engine.
type inputTap struct {
	mu  sync.RWMutex
	tap ports.TapFunc
}

func (t *inputTap) install(tap ports.TapFunc) error {
	if tap == nil {
		return errors.New("tap must not be nil")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.tap != nil {
		return ErrTapInstalled
	}
	t.tap = tap
	return nil
}

func (t *inputTap) remove() {
	t.mu.Lock()
	t.tap = nil
	t.mu.Unlock()
}

func (t *inputTap) deliver(frame domain.AudioFrame) {
	t.mu.RLock()
	tap := t.tap
	t.mu.RUnlock()
	if tap != nil {
		tap(frame)
	}
}

func normalizeConfig(cfg ports.AudioConfig) ports.AudioConfig {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = 1024
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}
	return cfg
}
