//go:build portaudio

package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/sirupsen/logrus"

	"voxbind/internal/domain"
	"voxbind/internal/ports"
)

const portaudioAvailable = true

// PortAudioEngine captures from the default input device through PortAudio.
type PortAudioEngine struct {
	log logrus.FieldLogger
	tap inputTap

	mu     sync.Mutex
	stream *portaudio.Stream
	stop   chan struct{}
	done   chan struct{}
}

func NewPortAudioEngine(logger logrus.FieldLogger) *PortAudioEngine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &PortAudioEngine{log: logger.WithField("component", "portaudio")}
}

func (e *PortAudioEngine) InstallTap(tap ports.TapFunc) error {
	return e.tap.install(tap)
}

func (e *PortAudioEngine) RemoveTap() {
	e.tap.remove()
}

func (e *PortAudioEngine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done == nil {
		return false
	}
	select {
	case <-e.done:
		return false
	default:
		return true
	}
}

func (e *PortAudioEngine) Start(_ context.Context, cfg ports.AudioConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stream != nil {
		return ErrAlreadyRunning
	}

	cfg = normalizeConfig(cfg)
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initializing portaudio: %w", err)
	}

	buffer := make([]int16, cfg.FrameSize*cfg.Channels)
	stream, err := portaudio.OpenDefaultStream(cfg.Channels, 0, float64(cfg.SampleRate), cfg.FrameSize, buffer)
	if err != nil {
		_ = portaudio.Terminate()
		return fmt.Errorf("opening stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return fmt.Errorf("starting stream: %w", err)
	}

	e.stream = stream
	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	go e.loop(cfg, stream, buffer, e.stop, e.done)

	e.log.WithField("sample_rate", cfg.SampleRate).Debug("microphone started")
	return nil
}

func (e *PortAudioEngine) loop(cfg ports.AudioConfig, stream *portaudio.Stream, buffer []int16, stop, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-stop:
			return
		default:
		}

		if err := stream.Read(); err != nil {
			e.log.WithError(err).Warn("reading from stream")
			return
		}

		pcm := make([]byte, len(buffer)*2)
		for i, sample := range buffer {
			binary.LittleEndian.PutUint16(pcm[i*2:], uint16(sample))
		}
		e.tap.deliver(domain.AudioFrame{PCM: pcm, SampleRate: cfg.SampleRate, Channels: cfg.Channels})
	}
}

func (e *PortAudioEngine) Stop() {
	e.mu.Lock()
	stream, stop, done := e.stream, e.stop, e.done
	e.stream = nil
	e.mu.Unlock()
	if stream == nil {
		return
	}

	close(stop)
	if err := stream.Stop(); err != nil {
		e.log.WithError(err).Warn("stopping stream")
	}
	<-done
	_ = stream.Close()
	_ = portaudio.Terminate()
	e.log.Debug("microphone stopped")
}
