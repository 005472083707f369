// Package speechtest provides a ports.SpeechRecognizer for tests that fails
// loudly on any call the test did not override.
package speechtest

import (
	"context"
	"errors"
	"testing"

	"voxbind/internal/domain"
)

var ErrUnimplemented = errors.New("unimplemented")

// Unimplemented delegates each method to the matching func field. A nil
// field reports "unimplemented: SpeechRecognizer.<Method>" through TB, or
// panics when TB is nil, then returns ErrUnimplemented or a closed stream.
type Unimplemented struct {
	TB testing.TB

	AuthorizationStatusFunc  func(ctx context.Context) <-chan domain.AuthorizationStatus
	UtterancesFunc           func(ctx context.Context) <-chan domain.Utterance
	SessionStatusFunc        func(ctx context.Context) <-chan domain.SessionStatus
	AvailabilityFunc         func(ctx context.Context) <-chan bool
	NewUtterancesFunc        func(ctx context.Context) <-chan string
	RequestAuthorizationFunc func()
	StartRecordingFunc       func(ctx context.Context) error
	StopRecordingFunc        func()
	SnapshotFunc             func() domain.Snapshot
	CloseFunc                func()
}

func (u *Unimplemented) fail(method string) {
	msg := "unimplemented: SpeechRecognizer." + method
	if u.TB == nil {
		panic(msg)
	}
	u.TB.Helper()
	u.TB.Errorf("%s", msg)
}

func closed[T any]() <-chan T {
	ch := make(chan T)
	close(ch)
	return ch
}

func (u *Unimplemented) AuthorizationStatus(ctx context.Context) <-chan domain.AuthorizationStatus {
	if u.AuthorizationStatusFunc == nil {
		u.fail("AuthorizationStatus")
		return closed[domain.AuthorizationStatus]()
	}
	return u.AuthorizationStatusFunc(ctx)
}

func (u *Unimplemented) Utterances(ctx context.Context) <-chan domain.Utterance {
	if u.UtterancesFunc == nil {
		u.fail("Utterances")
		return closed[domain.Utterance]()
	}
	return u.UtterancesFunc(ctx)
}

func (u *Unimplemented) SessionStatus(ctx context.Context) <-chan domain.SessionStatus {
	if u.SessionStatusFunc == nil {
		u.fail("SessionStatus")
		return closed[domain.SessionStatus]()
	}
	return u.SessionStatusFunc(ctx)
}

func (u *Unimplemented) Availability(ctx context.Context) <-chan bool {
	if u.AvailabilityFunc == nil {
		u.fail("Availability")
		return closed[bool]()
	}
	return u.AvailabilityFunc(ctx)
}

func (u *Unimplemented) NewUtterances(ctx context.Context) <-chan string {
	if u.NewUtterancesFunc == nil {
		u.fail("NewUtterances")
		return closed[string]()
	}
	return u.NewUtterancesFunc(ctx)
}

func (u *Unimplemented) RequestAuthorization() {
	if u.RequestAuthorizationFunc == nil {
		u.fail("RequestAuthorization")
		return
	}
	u.RequestAuthorizationFunc()
}

func (u *Unimplemented) StartRecording(ctx context.Context) error {
	if u.StartRecordingFunc == nil {
		u.fail("StartRecording")
		return ErrUnimplemented
	}
	return u.StartRecordingFunc(ctx)
}

func (u *Unimplemented) StopRecording() {
	if u.StopRecordingFunc == nil {
		u.fail("StopRecording")
		return
	}
	u.StopRecordingFunc()
}

func (u *Unimplemented) Snapshot() domain.Snapshot {
	if u.SnapshotFunc == nil {
		u.fail("Snapshot")
		return domain.Snapshot{}
	}
	return u.SnapshotFunc()
}

func (u *Unimplemented) Close() {
	if u.CloseFunc == nil {
		u.fail("Close")
		return
	}
	u.CloseFunc()
}
