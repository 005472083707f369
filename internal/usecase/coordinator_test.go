package usecase

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"voxbind/internal/domain"
)

func TestCoordinatorFinalResultEndsSession(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform()
	c := newTestCoordinator(t, platform, DoubleStartToggle)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	statuses := c.SessionStatus(ctx)
	raw := c.Utterances(ctx)
	fresh := c.NewUtterances(ctx)

	if err := c.StartRecording(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	task := platform.recognizer().task(t, 0)
	task.partial("hel")
	task.partial("hello")
	task.final("hello world")

	gotStatuses := collect(t, statuses, 2)
	wantStatuses := []domain.SessionStatus{domain.SessionStatusRecording, domain.SessionStatusStopped}
	if !reflect.DeepEqual(gotStatuses, wantStatuses) {
		t.Fatalf("unexpected statuses: %v", gotStatuses)
	}

	gotRaw := collect(t, raw, 4)
	wantRaw := []domain.Utterance{
		domain.NoUtterance,
		domain.NewUtterance("hel"),
		domain.NewUtterance("hello"),
		domain.NewUtterance("hello world"),
	}
	if !reflect.DeepEqual(gotRaw, wantRaw) {
		t.Fatalf("unexpected raw utterances: %v", gotRaw)
	}

	gotFresh := collect(t, fresh, 3)
	if !reflect.DeepEqual(gotFresh, []string{"hel", "hello", "hello world"}) {
		t.Fatalf("unexpected new utterances: %v", gotFresh)
	}

	starts, stops, removes, tapped := platform.engine.snapshot()
	if starts != 1 || stops != 1 || removes != 1 || tapped {
		t.Fatalf("expected engine torn down, starts=%d stops=%d removes=%d tapped=%v", starts, stops, removes, tapped)
	}
	if _, deactivations := platform.session.counts(); deactivations != 1 {
		t.Fatalf("expected audio session deactivated once, got %d", deactivations)
	}

	snap := c.Snapshot()
	if snap.Status != domain.SessionStatusStopped || snap.Utterance.Text != "hello world" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestCoordinatorStopThenFinalPassesThroughStopping(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform()
	c := newTestCoordinator(t, platform, DoubleStartToggle)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	statuses := c.SessionStatus(ctx)

	if err := c.StartRecording(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	c.StopRecording()

	request := platform.recognizer().request(t, 0)
	if _, ended := request.snapshot(); !ended {
		t.Fatalf("expected end of audio to be signalled")
	}

	platform.recognizer().task(t, 0).final("done")

	got := collect(t, statuses, 3)
	want := []domain.SessionStatus{
		domain.SessionStatusRecording,
		domain.SessionStatusStopping,
		domain.SessionStatusStopped,
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected statuses: %v", got)
	}
}

func TestCoordinatorRecognitionErrorStopsWithoutUtterance(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform()
	c := newTestCoordinator(t, platform, DoubleStartToggle)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	statuses := c.SessionStatus(ctx)
	raw := c.Utterances(ctx)

	if err := c.StartRecording(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	platform.recognizer().task(t, 0).deliver(domain.RecognitionUpdate{Err: errors.New("network lost")})

	got := collect(t, statuses, 2)
	if got[1] != domain.SessionStatusStopped {
		t.Fatalf("expected stopped after error, got %v", got)
	}
	if first := next(t, raw); first.Valid {
		t.Fatalf("expected absent reset, got %+v", first)
	}
	expectQuiet(t, raw)
}

func TestCoordinatorStartWhileRecordingToggles(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform()
	c := newTestCoordinator(t, platform, DoubleStartToggle)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	statuses := c.SessionStatus(ctx)

	if err := c.StartRecording(context.Background()); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if err := c.StartRecording(context.Background()); err != nil {
		t.Fatalf("second start failed: %v", err)
	}

	got := collect(t, statuses, 2)
	want := []domain.SessionStatus{domain.SessionStatusRecording, domain.SessionStatusStopping}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected statuses: %v", got)
	}
	if starts, _, _, _ := platform.engine.snapshot(); starts != 1 {
		t.Fatalf("expected a single engine start, got %d", starts)
	}
	if platform.recognizer().task(t, 0).isCancelled() {
		t.Fatalf("toggle must let the recognizer finish, not cancel it")
	}
}

func TestCoordinatorRestartPolicyDiscardsStaleCallbacks(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform()
	c := newTestCoordinator(t, platform, DoubleStartRestart)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	statuses := c.SessionStatus(ctx)
	raw := c.Utterances(ctx)

	if err := c.StartRecording(context.Background()); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if err := c.StartRecording(context.Background()); err != nil {
		t.Fatalf("second start failed: %v", err)
	}

	first := platform.recognizer().task(t, 0)
	if !first.isCancelled() {
		t.Fatalf("expected first task to be cancelled")
	}

	first.final("ghost")
	c.StopRecording()

	got := collect(t, statuses, 4)
	want := []domain.SessionStatus{
		domain.SessionStatusRecording,
		domain.SessionStatusStopped,
		domain.SessionStatusRecording,
		domain.SessionStatusStopping,
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected statuses: %v", got)
	}
	expectQuiet(t, statuses)

	resets := collect(t, raw, 2)
	if resets[0].Valid || resets[1].Valid {
		t.Fatalf("expected two absent resets, got %v", resets)
	}
	expectQuiet(t, raw)

	if snap := c.Snapshot(); snap.Utterance.Valid {
		t.Fatalf("stale callback leaked into state: %+v", snap)
	}
}

func TestCoordinatorStartFromStoppingClosesPreviousSession(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform()
	c := newTestCoordinator(t, platform, DoubleStartToggle)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	statuses := c.SessionStatus(ctx)

	if err := c.StartRecording(context.Background()); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	c.StopRecording()
	if err := c.StartRecording(context.Background()); err != nil {
		t.Fatalf("second start failed: %v", err)
	}

	got := collect(t, statuses, 4)
	want := []domain.SessionStatus{
		domain.SessionStatusRecording,
		domain.SessionStatusStopping,
		domain.SessionStatusStopped,
		domain.SessionStatusRecording,
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected statuses: %v", got)
	}
	if !platform.recognizer().task(t, 0).isCancelled() {
		t.Fatalf("expected leftover task to be cancelled")
	}
}

func TestCoordinatorStopWhenIdle(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform()
	c := newTestCoordinator(t, platform, DoubleStartToggle)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	statuses := c.SessionStatus(ctx)

	c.StopRecording()

	if got := next(t, statuses); got != domain.SessionStatusStopped {
		t.Fatalf("expected stopped, got %s", got)
	}
	starts, stops, removes, _ := platform.engine.snapshot()
	if starts+stops+removes != 0 {
		t.Fatalf("stop while idle must not touch audio hardware")
	}
	if activations, _ := platform.session.counts(); activations != 0 {
		t.Fatalf("stop while idle must not touch the audio session")
	}
}

func TestCoordinatorStartFailuresRollBack(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name            string
		configure       func(p *fakePlatform)
		want            error
		wantDeactivated int
	}{
		{
			name:            "audio session",
			configure:       func(p *fakePlatform) { p.session.activateErr = errors.New("busy") },
			want:            ErrConfiguration,
			wantDeactivated: 0,
		},
		{
			name:            "recognizer",
			configure:       func(p *fakePlatform) { p.provider.err = errors.New("unsupported locale") },
			want:            ErrRecognizerUnavailable,
			wantDeactivated: 1,
		},
		{
			name:            "request",
			configure:       func(p *fakePlatform) { p.recognizer().requestErr = errors.New("no memory") },
			want:            ErrEngineInit,
			wantDeactivated: 1,
		},
		{
			name:            "task",
			configure:       func(p *fakePlatform) { p.recognizer().taskErr = errors.New("dial failed") },
			want:            ErrRecognizerUnavailable,
			wantDeactivated: 1,
		},
		{
			name:            "tap",
			configure:       func(p *fakePlatform) { p.engine.installErr = errors.New("tap busy") },
			want:            ErrConfiguration,
			wantDeactivated: 1,
		},
		{
			name:            "engine",
			configure:       func(p *fakePlatform) { p.engine.startErr = errors.New("no device") },
			want:            ErrConfiguration,
			wantDeactivated: 1,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			platform := newFakePlatform()
			tc.configure(platform)
			c := newTestCoordinator(t, platform, DoubleStartToggle)

			err := c.StartRecording(context.Background())
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}

			starts, _, _, tapped := platform.engine.snapshot()
			if starts != 0 || tapped {
				t.Fatalf("expected no engine resources left, starts=%d tapped=%v", starts, tapped)
			}
			if _, deactivations := platform.session.counts(); deactivations != tc.wantDeactivated {
				t.Fatalf("expected %d deactivations, got %d", tc.wantDeactivated, deactivations)
			}
			platform.recognizer().mu.Lock()
			for _, task := range platform.recognizer().tasks {
				if !task.isCancelled() {
					t.Errorf("expected task to be cancelled on rollback")
				}
			}
			platform.recognizer().mu.Unlock()

			if snap := c.Snapshot(); snap.Status != domain.SessionStatusIdle {
				t.Fatalf("failed start must not change status, got %s", snap.Status)
			}
		})
	}
}

func TestCoordinatorForwardsFramesUntilEndOfAudio(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform()
	c := newTestCoordinator(t, platform, DoubleStartToggle)

	if err := c.StartRecording(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	platform.engine.emit(domain.AudioFrame{PCM: []byte{1, 0}})
	platform.engine.emit(domain.AudioFrame{PCM: []byte{2, 0}})
	c.StopRecording()
	platform.engine.emit(domain.AudioFrame{PCM: []byte{3, 0}})

	frames, ended := platform.recognizer().request(t, 0).snapshot()
	if !ended {
		t.Fatalf("expected request to be finalized")
	}
	if len(frames) != 2 || frames[0][0] != 1 || frames[1][0] != 2 {
		t.Fatalf("unexpected forwarded frames: %v", frames)
	}
}

func TestCoordinatorAuthorizationAndAvailability(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform()
	platform.authorizer.status = domain.AuthorizationDenied
	c := newTestCoordinator(t, platform, DoubleStartToggle)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	auth := c.AuthorizationStatus(ctx)
	availability := c.Availability(ctx)

	c.RequestAuthorization()
	if got := next(t, auth); got != domain.AuthorizationDenied {
		t.Fatalf("expected denied, got %s", got)
	}

	platform.monitor.changes <- true
	platform.monitor.changes <- false
	if got := collect(t, availability, 2); !reflect.DeepEqual(got, []bool{true, false}) {
		t.Fatalf("unexpected availability: %v", got)
	}

	waitFor(t, "snapshot update", func() bool {
		snap := c.Snapshot()
		return snap.Authorization == domain.AuthorizationDenied && !snap.Available
	})
}

func TestCoordinatorCloseEndsStreamsAndRejectsCommands(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform()
	c := NewSessionCoordinator(platform.ports(), Config{}, testLogger())

	statuses := c.SessionStatus(context.Background())
	if err := c.StartRecording(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	c.Close()

	got := []domain.SessionStatus{}
	for status := range statuses {
		got = append(got, status)
	}
	want := []domain.SessionStatus{domain.SessionStatusRecording, domain.SessionStatusStopped}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected statuses before close: %v", got)
	}

	if err := c.StartRecording(context.Background()); !errors.Is(err, ErrCoordinatorClosed) {
		t.Fatalf("expected ErrCoordinatorClosed, got %v", err)
	}
	c.StopRecording()
	c.Close()
}
