package ports

import (
	"context"

	"voxbind/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	Backend     string
	SampleRate  int
	Channels    int
	FrameSize   int
	InputFormat string
	InputDevice string
}

// AudioSession prepares the host audio stack for recording.
type AudioSession interface {
	Activate(ctx context.Context, cfg AudioConfig) error
	Deactivate() error
}

// TapFunc receives captured frames. It is called from the capture goroutine
// and must not block.
type TapFunc func(frame domain.AudioFrame)

// AudioEngine is the capture device with a single input tap.
type AudioEngine interface {
	InstallTap(tap TapFunc) error
	RemoveTap()
	Start(ctx context.Context, cfg AudioConfig) error
	Stop()
	Running() bool
}

// RecognitionRequest buffers audio for one recognition task.
type RecognitionRequest interface {
	Append(frame domain.AudioFrame)
	EndAudio()
}

// RecognitionTask is a running recognition bound to a request.
type RecognitionTask interface {
	Cancel()
}

// RecognitionHandler receives task updates. The task calls it from its own
// goroutine, in order.
type RecognitionHandler func(update domain.RecognitionUpdate)

// Recognizer runs recognition tasks for one locale.
type Recognizer interface {
	NewRequest() (RecognitionRequest, error)
	StartTask(ctx context.Context, request RecognitionRequest, handler RecognitionHandler) (RecognitionTask, error)
}

// RecognizerProvider resolves a recognizer for a locale.
type RecognizerProvider interface {
	Recognizer(locale string) (Recognizer, error)
}

// Authorizer runs the consent flow and reports the result once, asynchronously.
type Authorizer interface {
	RequestAuthorization(callback func(domain.AuthorizationStatus))
}

// AvailabilityMonitor reports recognizer service availability changes until
// ctx is done.
type AvailabilityMonitor interface {
	Watch(ctx context.Context, callback func(available bool))
}

// Platform groups the host services the coordinator delegates to.
type Platform struct {
	Session      AudioSession
	Engine       AudioEngine
	Recognizers  RecognizerProvider
	Authorizer   Authorizer
	Availability AvailabilityMonitor
}

// SpeechRecognizer is the capability the view layer depends on. Streams
// carry only values published after the call and close when ctx is done.
type SpeechRecognizer interface {
	AuthorizationStatus(ctx context.Context) <-chan domain.AuthorizationStatus
	Utterances(ctx context.Context) <-chan domain.Utterance
	SessionStatus(ctx context.Context) <-chan domain.SessionStatus
	Availability(ctx context.Context) <-chan bool
	NewUtterances(ctx context.Context) <-chan string

	RequestAuthorization()
	StartRecording(ctx context.Context) error
	StopRecording()

	Snapshot() domain.Snapshot
	Close()
}
