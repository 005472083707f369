package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config stores runtime configuration for voxbind.
type Config struct {
	Deepgram DeepgramConfig `yaml:"deepgram"`
	Audio    AudioConfig    `yaml:"audio"`
	Session  SessionConfig  `yaml:"session"`
	Log      LogConfig      `yaml:"log"`
	Relay    RelayConfig    `yaml:"relay"`

	// Path is the config file that was read, if any.
	Path string `yaml:"-"`
}

type DeepgramConfig struct {
	APIKey      string `yaml:"api_key"`
	APIBaseURL  string `yaml:"api_base"`
	Model       string `yaml:"model"`
	Language    string `yaml:"language"`
	SmartFormat bool   `yaml:"smart_format"`
}

type AudioConfig struct {
	Backend         string `yaml:"backend"`
	RecorderCommand string `yaml:"recorder_command"`
	InputFormat     string `yaml:"input_format"`
	InputDevice     string `yaml:"input_device"`
	SampleRate      int    `yaml:"sample_rate"`
	Channels        int    `yaml:"channels"`
	FrameSize       int    `yaml:"frame_size"`
}

type SessionConfig struct {
	DoubleStart          string        `yaml:"double_start"`
	AvailabilityInterval time.Duration `yaml:"availability_interval"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type RelayConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Deepgram: DeepgramConfig{
			APIBaseURL:  "https://api.deepgram.com/v1",
			Model:       "nova-2",
			Language:    "en-GB",
			SmartFormat: true,
		},
		Audio: AudioConfig{
			Backend:         "ffmpeg",
			RecorderCommand: "ffmpeg",
			InputFormat:     "pulse",
			InputDevice:     "default",
			SampleRate:      16000,
			Channels:        1,
			FrameSize:       1024,
		},
		Session: SessionConfig{
			DoubleStart:          "toggle",
			AvailabilityInterval: 30 * time.Second,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
		Relay: RelayConfig{
			Subject: "voxbind.transcripts",
		},
	}
}

// Load resolves configuration from defaults, an optional YAML file, and
// environment variables, in increasing precedence.
func Load() (Config, error) {
	cfg := Default()

	path, err := configPath()
	if err != nil {
		return Config{}, err
	}
	if path != "" {
		if err := overlayFile(&cfg, path); err != nil {
			return Config{}, err
		}
		cfg.Path = path
	}

	applyEnv(&cfg)
	if err := normalize(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func configPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("VOXBIND_CONFIG")); explicit != "" {
		return explicit, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("could not determine home directory")
	}
	candidate := filepath.Join(home, ".config", "voxbind", "config.yaml")
	if _, err := os.Stat(candidate); err == nil {
		return candidate, nil
	}
	return "", nil
}

func overlayFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Deepgram.APIKey = envOrDefault("DEEPGRAM_API_KEY", cfg.Deepgram.APIKey)
	cfg.Deepgram.APIBaseURL = envOrDefault("DEEPGRAM_API_BASE", cfg.Deepgram.APIBaseURL)
	cfg.Deepgram.Model = envOrDefault("DEEPGRAM_MODEL", cfg.Deepgram.Model)
	cfg.Deepgram.Language = firstNonEmpty(os.Getenv("VOXBIND_LOCALE"), os.Getenv("DEEPGRAM_LANGUAGE"), cfg.Deepgram.Language)
	cfg.Deepgram.SmartFormat = envOrDefaultBool("DEEPGRAM_SMART_FORMAT", cfg.Deepgram.SmartFormat)

	cfg.Audio.Backend = envOrDefault("VOXBIND_AUDIO_BACKEND", cfg.Audio.Backend)
	cfg.Audio.RecorderCommand = envOrDefault("VOXBIND_FFMPEG_COMMAND", cfg.Audio.RecorderCommand)
	cfg.Audio.InputFormat = envOrDefault("VOXBIND_AUDIO_INPUT_FORMAT", cfg.Audio.InputFormat)
	cfg.Audio.InputDevice = firstNonEmpty(
		os.Getenv("VOXBIND_AUDIO_INPUT_DEVICE"),
		os.Getenv("DEEPGRAM_PULSE_SOURCE"),
		cfg.Audio.InputDevice,
	)
	cfg.Audio.SampleRate = envOrDefaultInt("VOXBIND_SAMPLE_RATE", cfg.Audio.SampleRate)
	cfg.Audio.Channels = envOrDefaultInt("VOXBIND_CHANNELS", cfg.Audio.Channels)
	cfg.Audio.FrameSize = envOrDefaultInt("VOXBIND_FRAME_SIZE", cfg.Audio.FrameSize)

	cfg.Session.DoubleStart = envOrDefault("VOXBIND_DOUBLE_START", cfg.Session.DoubleStart)
	cfg.Session.AvailabilityInterval = envOrDefaultDuration("VOXBIND_AVAILABILITY_INTERVAL", cfg.Session.AvailabilityInterval)

	cfg.Log.Level = envOrDefault("VOXBIND_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = envOrDefault("VOXBIND_LOG_FILE", cfg.Log.File)
	cfg.Log.MaxSizeMB = envOrDefaultInt("VOXBIND_LOG_MAX_SIZE_MB", cfg.Log.MaxSizeMB)
	cfg.Log.MaxBackups = envOrDefaultInt("VOXBIND_LOG_MAX_BACKUPS", cfg.Log.MaxBackups)
	cfg.Log.MaxAgeDays = envOrDefaultInt("VOXBIND_LOG_MAX_AGE_DAYS", cfg.Log.MaxAgeDays)

	cfg.Relay.NATSURL = envOrDefault("VOXBIND_NATS_URL", cfg.Relay.NATSURL)
	cfg.Relay.Subject = envOrDefault("VOXBIND_RELAY_SUBJECT", cfg.Relay.Subject)
}

func normalize(cfg *Config) error {
	defaults := Default()

	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = defaults.Audio.SampleRate
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = defaults.Audio.Channels
	}
	if cfg.Audio.FrameSize < 64 {
		cfg.Audio.FrameSize = defaults.Audio.FrameSize
	}
	if cfg.Session.AvailabilityInterval < time.Second {
		cfg.Session.AvailabilityInterval = defaults.Session.AvailabilityInterval
	}
	if cfg.Log.MaxSizeMB <= 0 {
		cfg.Log.MaxSizeMB = defaults.Log.MaxSizeMB
	}
	if cfg.Relay.Subject == "" {
		cfg.Relay.Subject = defaults.Relay.Subject
	}

	cfg.Audio.Backend = strings.ToLower(cfg.Audio.Backend)
	switch cfg.Audio.Backend {
	case "ffmpeg", "portaudio":
	default:
		return fmt.Errorf("audio.backend must be ffmpeg or portaudio, got %q", cfg.Audio.Backend)
	}

	cfg.Session.DoubleStart = strings.ToLower(cfg.Session.DoubleStart)
	switch cfg.Session.DoubleStart {
	case "toggle", "restart":
	default:
		return fmt.Errorf("session.double_start must be toggle or restart, got %q", cfg.Session.DoubleStart)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
