package bootstrap

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"voxbind/internal/audio"
	"voxbind/internal/config"
	"voxbind/internal/logging"
	"voxbind/internal/ports"
	"voxbind/internal/preview"
	"voxbind/internal/providers/deepgram"
	"voxbind/internal/relay"
	"voxbind/internal/usecase"
)

// Variant selects which SpeechRecognizer implementation is assembled.
type Variant string

const (
	VariantLive    Variant = "live"
	VariantPreview Variant = "preview"
)

// ParseVariant maps a user-supplied name to a Variant.
func ParseVariant(name string) (Variant, error) {
	switch v := Variant(strings.ToLower(strings.TrimSpace(name))); v {
	case VariantLive, VariantPreview:
		return v, nil
	default:
		return "", fmt.Errorf("unknown recognizer variant %q", name)
	}
}

// Services is the assembled runtime graph.
type Services struct {
	Recognizer ports.SpeechRecognizer
	Config     config.Config
	Logger     *logrus.Logger
	Variant    Variant

	relay     *relay.Relay
	stopRelay context.CancelFunc
	relayDone chan struct{}
	logCloser io.Closer
}

// Build wires all backend dependencies for variant. Logs go to logOutput.
func Build(variant Variant, logOutput io.Writer) (Services, error) {
	if variant != VariantLive && variant != VariantPreview {
		return Services{}, fmt.Errorf("unknown recognizer variant %q", variant)
	}

	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}

	logger, logCloser, err := logging.New(cfg.Log, logOutput)
	if err != nil {
		return Services{}, err
	}

	var recognizer ports.SpeechRecognizer
	switch variant {
	case VariantPreview:
		recognizer = preview.New(preview.DefaultTiming)
	case VariantLive:
		recognizer, err = buildLive(cfg, logger)
		if err != nil {
			_ = logCloser.Close()
			return Services{}, err
		}
	}

	services := Services{
		Recognizer: recognizer,
		Config:     cfg,
		Logger:     logger,
		Variant:    variant,
		logCloser:  logCloser,
	}

	if cfg.Relay.NATSURL != "" {
		r, err := relay.Connect(cfg.Relay, logger)
		if err != nil {
			recognizer.Close()
			_ = logCloser.Close()
			return Services{}, err
		}
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			r.Run(ctx, recognizer)
		}()
		services.relay = r
		services.stopRelay = cancel
		services.relayDone = done
	}

	logger.WithFields(logrus.Fields{
		"variant": string(variant),
		"config":  cfg.Path,
		"relay":   services.RelayStatus(),
	}).Info("voxbind services ready")
	return services, nil
}

func buildLive(cfg config.Config, logger *logrus.Logger) (*usecase.SessionCoordinator, error) {
	engine, err := audio.NewEngine(cfg.Audio.Backend, cfg.Audio.RecorderCommand, logger)
	if err != nil {
		return nil, err
	}

	dgCfg := deepgram.Config{
		APIKey:      cfg.Deepgram.APIKey,
		APIBaseURL:  cfg.Deepgram.APIBaseURL,
		Model:       cfg.Deepgram.Model,
		SmartFormat: cfg.Deepgram.SmartFormat,
		SampleRate:  cfg.Audio.SampleRate,
		Channels:    cfg.Audio.Channels,
	}

	platform := ports.Platform{
		Session:      audio.NewSession(cfg.Audio.RecorderCommand, logger),
		Engine:       engine,
		Recognizers:  deepgram.NewProvider(dgCfg, logger),
		Authorizer:   deepgram.NewAuthorizer(dgCfg, nil, logger),
		Availability: deepgram.NewMonitor(dgCfg, cfg.Session.AvailabilityInterval, nil, logger),
	}

	return usecase.NewSessionCoordinator(platform, usecase.Config{
		Audio: ports.AudioConfig{
			Backend:     cfg.Audio.Backend,
			SampleRate:  cfg.Audio.SampleRate,
			Channels:    cfg.Audio.Channels,
			FrameSize:   cfg.Audio.FrameSize,
			InputFormat: cfg.Audio.InputFormat,
			InputDevice: cfg.Audio.InputDevice,
		},
		Locale:      cfg.Deepgram.Language,
		DoubleStart: usecase.DoubleStartPolicy(cfg.Session.DoubleStart),
	}, logger), nil
}

// RelayStatus reports "off" when no relay is configured, otherwise whether
// its NATS connection is up.
func (s Services) RelayStatus() string {
	switch {
	case s.relay == nil:
		return "off"
	case s.relay.Healthy():
		return "connected"
	default:
		return "disconnected"
	}
}

// Close stops the relay, the recognizer and the log file, in that order.
func (s Services) Close() {
	if s.stopRelay != nil {
		s.stopRelay()
		<-s.relayDone
		s.relay.Close()
	}
	if s.Recognizer != nil {
		s.Recognizer.Close()
	}
	if s.logCloser != nil {
		_ = s.logCloser.Close()
	}
}
