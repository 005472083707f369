package domain

// AuthorizationStatus is the outcome of the recognition consent flow.
type AuthorizationStatus string

const (
	AuthorizationUndetermined AuthorizationStatus = "undetermined"
	AuthorizationDenied       AuthorizationStatus = "denied"
	AuthorizationRestricted   AuthorizationStatus = "restricted"
	AuthorizationAuthorized   AuthorizationStatus = "authorized"
)

func (s AuthorizationStatus) String() string {
	return string(s)
}

// SessionStatus models the recording lifecycle.
type SessionStatus string

const (
	SessionStatusIdle      SessionStatus = "idle"
	SessionStatusRecording SessionStatus = "recording"
	SessionStatusStopping  SessionStatus = "stopping"
	SessionStatusStopped   SessionStatus = "stopped"
)

func (s SessionStatus) String() string {
	return string(s)
}

// Utterance is the current best transcription. A zero Utterance is absent.
type Utterance struct {
	Text  string `json:"text"`
	Valid bool   `json:"valid"`
}

// NewUtterance returns a present utterance holding text.
func NewUtterance(text string) Utterance {
	return Utterance{Text: text, Valid: true}
}

// NoUtterance is the absent utterance.
var NoUtterance = Utterance{}

// ErrorCode identifies backend errors reported to the UI.
type ErrorCode string

const (
	ErrorCodeStartup       ErrorCode = "startup"
	ErrorCodeConfiguration ErrorCode = "configuration"
	ErrorCodeEngineInit    ErrorCode = "engine_init"
	ErrorCodeUnavailable   ErrorCode = "recognizer_unavailable"
	ErrorCodeRecording     ErrorCode = "recording"
)

// AudioFrame is one buffer of interleaved little-endian signed 16-bit PCM.
type AudioFrame struct {
	PCM        []byte
	SampleRate int
	Channels   int
}

// RecognitionUpdate is one delivery from a recognition task. HasResult is
// false when the platform reported only an error.
type RecognitionUpdate struct {
	Text      string
	HasResult bool
	IsFinal   bool
	Err       error
}

// Snapshot is the current value of every observable coordinator field.
type Snapshot struct {
	Authorization AuthorizationStatus `json:"authorization"`
	Utterance     Utterance           `json:"utterance"`
	Status        SessionStatus       `json:"status"`
	Available     bool                `json:"available"`
}
