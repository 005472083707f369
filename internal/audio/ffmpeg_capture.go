package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"voxbind/internal/domain"
	"voxbind/internal/ports"
)

const (
	startupProbe = 250 * time.Millisecond
	stopGrace    = 1200 * time.Millisecond
)

// FFMPEGEngine captures microphone PCM with an ffmpeg child process and cuts
// it into frames for the installed tap.
type FFMPEGEngine struct {
	command string
	log     logrus.FieldLogger
	tap     inputTap

	mu      sync.Mutex
	capture *ffmpegCapture
}

func NewFFMPEGEngine(command string, logger logrus.FieldLogger) *FFMPEGEngine {
	if command == "" {
		command = "ffmpeg"
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &FFMPEGEngine{command: command, log: logger.WithField("component", "ffmpeg")}
}

func (e *FFMPEGEngine) InstallTap(tap ports.TapFunc) error {
	return e.tap.install(tap)
}

func (e *FFMPEGEngine) RemoveTap() {
	e.tap.remove()
}

func (e *FFMPEGEngine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.capture != nil && !e.capture.finished()
}

func (e *FFMPEGEngine) Start(ctx context.Context, cfg ports.AudioConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.capture != nil && !e.capture.finished() {
		return ErrAlreadyRunning
	}

	cfg = normalizeConfig(cfg)
	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	}

	cmd := exec.CommandContext(ctx, e.command, args...)
	stderr := &syncBuffer{}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		if err != nil {
			return fmt.Errorf("ffmpeg exited before capture started: %w: %s", err, stringsTrimSpaceSafe(stderr.String()))
		}
		return errors.New("ffmpeg exited before capture started")
	case <-time.After(startupProbe):
	}

	capture := &ffmpegCapture{
		stdout:  stdout,
		stderr:  stderr,
		process: cmd.Process,
		waitErr: waitErr,
		done:    make(chan struct{}),
	}
	go capture.pump(cfg, e.tap.deliver)
	e.capture = capture

	e.log.WithFields(logrus.Fields{
		"sample_rate": cfg.SampleRate,
		"channels":    cfg.Channels,
		"frame_size":  cfg.FrameSize,
		"device":      cfg.InputDevice,
	}).Debug("audio capture started")
	return nil
}

// Stop interrupts the recorder and waits for the frame pump to exit. No tap
// call happens after Stop returns.
func (e *FFMPEGEngine) Stop() {
	e.mu.Lock()
	capture := e.capture
	e.capture = nil
	e.mu.Unlock()
	if capture == nil {
		return
	}

	if err := capture.stop(); err != nil {
		e.log.WithError(err).Warn("audio capture stopped with error")
		return
	}
	e.log.Debug("audio capture stopped")
}

type ffmpegCapture struct {
	stdout io.ReadCloser
	stderr *syncBuffer

	process *os.Process
	waitErr <-chan error
	done    chan struct{}

	stopOnce sync.Once
	stopErr  error
}

// pump reads whole frames from stdout until the recorder exits. A trailing
// partial frame is delivered truncated to whole samples.
func (c *ffmpegCapture) pump(cfg ports.AudioConfig, deliver func(domain.AudioFrame)) {
	defer close(c.done)

	sampleBytes := 2 * cfg.Channels
	buf := make([]byte, cfg.FrameSize*sampleBytes)
	for {
		n, err := io.ReadFull(c.stdout, buf)
		n -= n % sampleBytes
		if n > 0 {
			deliver(domain.AudioFrame{
				PCM:        append([]byte(nil), buf[:n]...),
				SampleRate: cfg.SampleRate,
				Channels:   cfg.Channels,
			})
		}
		if err != nil {
			return
		}
	}
}

func (c *ffmpegCapture) finished() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *ffmpegCapture) stop() error {
	c.stopOnce.Do(func() {
		if c.process != nil {
			_ = c.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-c.waitErr:
			if ok {
				c.stopErr = normalizeStopErr(err)
			}
		case <-time.After(stopGrace):
			if c.process != nil {
				_ = c.process.Kill()
			}
			err, ok := <-c.waitErr
			if ok {
				c.stopErr = normalizeStopErr(err)
			}
		}

		if closeErr := c.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			if c.stopErr == nil {
				c.stopErr = closeErr
			}
		}
		<-c.done

		if c.stopErr != nil && c.stderr.Len() > 0 {
			c.stopErr = fmt.Errorf("%w: %s", c.stopErr, stringsTrimSpaceSafe(c.stderr.String()))
		}
	})

	return c.stopErr
}

// syncBuffer is a bytes.Buffer safe for the exec copier and readers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func stringsTrimSpaceSafe(input string) string {
	if input == "" {
		return input
	}
	return string(bytes.TrimSpace([]byte(input)))
}
