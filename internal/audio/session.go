package audio

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"voxbind/internal/ports"
)

const (
	BackendFFMPEG    = "ffmpeg"
	BackendPortAudio = "portaudio"
)

// Session checks that the configured capture backend can record before an
// engine is started.
type Session struct {
	command string
	log     logrus.FieldLogger

	mu     sync.Mutex
	active bool
}

func NewSession(command string, logger logrus.FieldLogger) *Session {
	if command == "" {
		command = "ffmpeg"
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Session{command: command, log: logger.WithField("component", "audio-session")}
}

func (s *Session) Activate(ctx context.Context, cfg ports.AudioConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if cfg.SampleRate < 8000 || cfg.SampleRate > 48000 {
		return fmt.Errorf("unsupported sample rate %d", cfg.SampleRate)
	}
	if cfg.Channels < 1 || cfg.Channels > 2 {
		return fmt.Errorf("unsupported channel count %d", cfg.Channels)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendFFMPEG:
		if _, err := exec.LookPath(s.command); err != nil {
			return fmt.Errorf("recorder %q is not available: %w", s.command, err)
		}
	case BackendPortAudio:
		if !portaudioAvailable {
			return fmt.Errorf("%w: rebuild with -tags portaudio", ErrBackendUnavailable)
		}
	default:
		return fmt.Errorf("unknown audio backend %q", cfg.Backend)
	}

	s.mu.Lock()
	s.active = true
	s.mu.Unlock()
	s.log.WithField("backend", cfg.Backend).Debug("audio session activated")
	return nil
}

func (s *Session) Deactivate() error {
	s.mu.Lock()
	wasActive := s.active
	s.active = false
	s.mu.Unlock()
	if wasActive {
		s.log.Debug("audio session deactivated")
	}
	return nil
}

func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// NewEngine builds the capture engine for backend.
func NewEngine(backend, command string, logger logrus.FieldLogger) (ports.AudioEngine, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendFFMPEG:
		return NewFFMPEGEngine(command, logger), nil
	case BackendPortAudio:
		return NewPortAudioEngine(logger), nil
	default:
		return nil, fmt.Errorf("unknown audio backend %q", backend)
	}
}
