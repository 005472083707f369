package usecase

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"voxbind/internal/domain"
	"voxbind/internal/ports"
)

func testLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type fakePlatform struct {
	session    *fakeAudioSession
	engine     *fakeAudioEngine
	provider   *fakeProvider
	authorizer *fakeAuthorizer
	monitor    *fakeMonitor
}

func newFakePlatform() *fakePlatform {
	recognizer := &fakeRecognizer{}
	return &fakePlatform{
		session:    &fakeAudioSession{},
		engine:     &fakeAudioEngine{},
		provider:   &fakeProvider{recognizer: recognizer},
		authorizer: &fakeAuthorizer{status: domain.AuthorizationAuthorized},
		monitor:    &fakeMonitor{changes: make(chan bool, 4)},
	}
}

func (f *fakePlatform) ports() ports.Platform {
	return ports.Platform{
		Session:      f.session,
		Engine:       f.engine,
		Recognizers:  f.provider,
		Authorizer:   f.authorizer,
		Availability: f.monitor,
	}
}

func (f *fakePlatform) recognizer() *fakeRecognizer {
	return f.provider.recognizer
}

func newTestCoordinator(t *testing.T, platform *fakePlatform, policy DoubleStartPolicy) *SessionCoordinator {
	t.Helper()
	c := NewSessionCoordinator(platform.ports(), Config{Locale: "en-GB", DoubleStart: policy}, testLogger())
	t.Cleanup(c.Close)
	return c
}

type fakeAudioSession struct {
	mu            sync.Mutex
	activateErr   error
	activations   int
	deactivations int
}

func (f *fakeAudioSession) Activate(_ context.Context, _ ports.AudioConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.activateErr != nil {
		return f.activateErr
	}
	f.activations++
	return nil
}

func (f *fakeAudioSession) Deactivate() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deactivations++
	return nil
}

func (f *fakeAudioSession) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activations, f.deactivations
}

type fakeAudioEngine struct {
	mu         sync.Mutex
	tap        ports.TapFunc
	running    bool
	installErr error
	startErr   error
	starts     int
	stops      int
	removes    int
}

func (f *fakeAudioEngine) InstallTap(tap ports.TapFunc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.installErr != nil {
		return f.installErr
	}
	if f.tap != nil {
		return errors.New("tap already installed")
	}
	f.tap = tap
	return nil
}

func (f *fakeAudioEngine) RemoveTap() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tap = nil
	f.removes++
}

func (f *fakeAudioEngine) Start(_ context.Context, _ ports.AudioConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	f.starts++
	return nil
}

func (f *fakeAudioEngine) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	f.stops++
}

func (f *fakeAudioEngine) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeAudioEngine) emit(frame domain.AudioFrame) {
	f.mu.Lock()
	tap := f.tap
	f.mu.Unlock()
	if tap != nil {
		tap(frame)
	}
}

func (f *fakeAudioEngine) snapshot() (starts, stops, removes int, tapped bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops, f.removes, f.tap != nil
}

type fakeProvider struct {
	recognizer *fakeRecognizer
	err        error
}

func (f *fakeProvider) Recognizer(_ string) (ports.Recognizer, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.recognizer, nil
}

type fakeRecognizer struct {
	mu         sync.Mutex
	requestErr error
	taskErr    error
	requests   []*fakeRequest
	tasks      []*fakeTask
}

func (f *fakeRecognizer) NewRequest() (ports.RecognitionRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.requestErr != nil {
		return nil, f.requestErr
	}
	request := &fakeRequest{}
	f.requests = append(f.requests, request)
	return request, nil
}

func (f *fakeRecognizer) StartTask(_ context.Context, _ ports.RecognitionRequest, handler ports.RecognitionHandler) (ports.RecognitionTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.taskErr != nil {
		return nil, f.taskErr
	}
	task := &fakeTask{handler: handler}
	f.tasks = append(f.tasks, task)
	return task, nil
}

func (f *fakeRecognizer) task(t *testing.T, index int) *fakeTask {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if index >= len(f.tasks) {
		t.Fatalf("expected task %d, have %d", index, len(f.tasks))
	}
	return f.tasks[index]
}

func (f *fakeRecognizer) request(t *testing.T, index int) *fakeRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if index >= len(f.requests) {
		t.Fatalf("expected request %d, have %d", index, len(f.requests))
	}
	return f.requests[index]
}

type fakeRequest struct {
	mu     sync.Mutex
	frames [][]byte
	ended  bool
}

func (f *fakeRequest) Append(frame domain.AudioFrame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ended {
		return
	}
	f.frames = append(f.frames, frame.PCM)
}

func (f *fakeRequest) EndAudio() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = true
}

func (f *fakeRequest) snapshot() ([][]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.frames))
	copy(out, f.frames)
	return out, f.ended
}

type fakeTask struct {
	mu        sync.Mutex
	handler   ports.RecognitionHandler
	cancelled bool
}

func (f *fakeTask) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = true
}

func (f *fakeTask) isCancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}

// deliver calls the handler even after Cancel, the way a platform task can
// race a late callback against cancellation.
func (f *fakeTask) deliver(update domain.RecognitionUpdate) {
	f.handler(update)
}

func (f *fakeTask) partial(text string) {
	f.deliver(domain.RecognitionUpdate{Text: text, HasResult: true})
}

func (f *fakeTask) final(text string) {
	f.deliver(domain.RecognitionUpdate{Text: text, HasResult: true, IsFinal: true})
}

type fakeAuthorizer struct {
	status domain.AuthorizationStatus
	mu     sync.Mutex
	calls  int
}

func (f *fakeAuthorizer) RequestAuthorization(callback func(domain.AuthorizationStatus)) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	go callback(f.status)
}

type fakeMonitor struct {
	changes chan bool
}

func (f *fakeMonitor) Watch(ctx context.Context, callback func(bool)) {
	for {
		select {
		case <-ctx.Done():
			return
		case available := <-f.changes:
			callback(available)
		}
	}
}

func next[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("stream closed unexpectedly")
		}
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for stream value")
	}
	var zero T
	return zero
}

func collect[T any](t *testing.T, ch <-chan T, n int) []T {
	t.Helper()
	out := make([]T, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, next(t, ch))
	}
	return out
}

func expectQuiet[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	select {
	case v, ok := <-ch:
		if ok {
			t.Fatalf("expected no value, got %v", v)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
