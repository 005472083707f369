package usecase

import (
	"context"

	"voxbind/internal/domain"
	"voxbind/internal/ports"
)

// event is everything the coordinator actor consumes. Platform callbacks
// and commands are both events, so all state mutation happens on one
// goroutine.
type event interface {
	isEvent()
}

type authorizationResult struct {
	status domain.AuthorizationStatus
}

type availabilityChanged struct {
	available bool
}

type recognitionUpdate struct {
	generation uint64
	text       string
	isFinal    bool
}

// recognitionEnded is posted after a final result or a task error.
type recognitionEnded struct {
	generation uint64
	err        error
}

type startCommand struct {
	ctx   context.Context
	reply chan error
}

type stopCommand struct {
	reply chan struct{}
}

func (authorizationResult) isEvent() {}
func (availabilityChanged) isEvent() {}
func (recognitionUpdate) isEvent()   {}
func (recognitionEnded) isEvent()    {}
func (startCommand) isEvent()        {}
func (stopCommand) isEvent()         {}

// activeSession holds the resources of one recording session. Only the
// actor goroutine touches it.
type activeSession struct {
	id         string
	generation uint64

	request ports.RecognitionRequest
	task    ports.RecognitionTask
	cancel  context.CancelFunc

	tapInstalled bool
	isFinal      bool
}
