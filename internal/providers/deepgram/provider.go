package deepgram

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"voxbind/internal/ports"
)

const (
	defaultAPIBaseURL = "https://api.deepgram.com/v1"
	defaultModel      = "nova-2"
)

var (
	ErrMissingAPIKey     = errors.New("DEEPGRAM_API_KEY is not configured")
	ErrUnsupportedLocale = errors.New("locale is not supported by the configured model")
)

// Config controls Deepgram websocket settings.
type Config struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	SmartFormat bool
	SampleRate  int
	Channels    int
	// Languages overrides the built-in language table when set.
	Languages []string
}

// defaultLanguages are the streaming languages of the nova-2 model.
var defaultLanguages = []string{
	"bg", "ca", "cs", "da", "da-DK", "de", "de-CH", "el", "en", "en-AU", "en-GB", "en-IN", "en-NZ",
	"en-US", "es", "es-419", "et", "fi", "fr", "fr-CA", "hi", "hu", "id", "it", "ja", "ko", "ko-KR",
	"lt", "lv", "ms", "nl", "nl-BE", "no", "pl", "pt", "pt-BR", "pt-PT", "ro", "ru", "sk", "sv",
	"sv-SE", "th", "th-TH", "tr", "uk", "vi", "zh", "zh-CN", "zh-HK", "zh-Hans", "zh-Hant", "zh-TW",
}

// Provider implements ports.RecognizerProvider for Deepgram streaming.
type Provider struct {
	cfg       Config
	languages map[string]string
	log       logrus.FieldLogger
}

func NewProvider(cfg Config, logger logrus.FieldLogger) *Provider {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	source := cfg.Languages
	if len(source) == 0 {
		source = defaultLanguages
	}
	languages := make(map[string]string, len(source))
	for _, tag := range source {
		languages[strings.ToLower(tag)] = tag
	}

	return &Provider{cfg: cfg, languages: languages, log: logger.WithField("component", "deepgram")}
}

// Recognizer resolves a recognizer for locale. A full tag such as en-GB
// falls back to its base language when only the base is supported. An
// empty locale lets the model pick its default language.
func (p *Provider) Recognizer(locale string) (ports.Recognizer, error) {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}

	language, err := p.resolveLanguage(locale)
	if err != nil {
		return nil, err
	}
	return &recognizer{provider: p, language: language}, nil
}

func (p *Provider) resolveLanguage(locale string) (string, error) {
	locale = strings.TrimSpace(strings.ReplaceAll(locale, "_", "-"))
	if locale == "" {
		return "", nil
	}
	if tag, ok := p.languages[strings.ToLower(locale)]; ok {
		return tag, nil
	}
	if base, _, found := strings.Cut(locale, "-"); found {
		if tag, ok := p.languages[strings.ToLower(base)]; ok {
			return tag, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedLocale, locale)
}

type recognizer struct {
	provider *Provider
	language string
}

func (r *recognizer) NewRequest() (ports.RecognitionRequest, error) {
	return newAudioRequest(r.provider.cfg.SampleRate, r.provider.cfg.Channels), nil
}
