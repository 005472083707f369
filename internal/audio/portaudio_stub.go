//go:build !portaudio

package audio

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"voxbind/internal/ports"
)

const portaudioAvailable = false

// PortAudioEngine stub when portaudio is not compiled in.
type PortAudioEngine struct {
	tap inputTap
}

func NewPortAudioEngine(_ logrus.FieldLogger) *PortAudioEngine {
	return &PortAudioEngine{}
}

func (e *PortAudioEngine) InstallTap(tap ports.TapFunc) error {
	return e.tap.install(tap)
}

func (e *PortAudioEngine) RemoveTap() {
	e.tap.remove()
}

func (e *PortAudioEngine) Running() bool {
	return false
}

func (e *PortAudioEngine) Start(_ context.Context, _ ports.AudioConfig) error {
	return fmt.Errorf("%w: rebuild with -tags portaudio", ErrBackendUnavailable)
}

func (e *PortAudioEngine) Stop() {}
