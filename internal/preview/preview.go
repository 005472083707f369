// Package preview provides a hardware-free speech recognizer that plays a
// scripted transcription.
package preview

import (
	"context"
	"sync"
	"time"

	"voxbind/internal/broadcast"
	"voxbind/internal/domain"
	"voxbind/internal/usecase"
)

// Script is the transcription played after each start.
var Script = []string{"this", "is", "a", "preview", "speech", "recognition"}

// Timing controls the scripted delays.
type Timing struct {
	Authorization time.Duration
	PerCharacter  time.Duration
	Stop          time.Duration
}

// DefaultTiming matches the pace of a short spoken phrase.
var DefaultTiming = Timing{
	Authorization: 200 * time.Millisecond,
	PerCharacter:  50 * time.Millisecond,
	Stop:          400 * time.Millisecond,
}

// Recognizer implements ports.SpeechRecognizer without audio or network.
type Recognizer struct {
	timing Timing

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	authorization *broadcast.Broadcaster[domain.AuthorizationStatus]
	utterances    *broadcast.Broadcaster[domain.Utterance]
	status        *broadcast.Broadcaster[domain.SessionStatus]
	availability  *broadcast.Broadcaster[bool]

	mu           sync.Mutex
	snapshot     domain.Snapshot
	cancelScript context.CancelFunc
	// generation advances on every start and stop; a delayed stop only
	// publishes while it still matches.
	generation uint64
}

func New(timing Timing) *Recognizer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Recognizer{
		timing:        timing,
		ctx:           ctx,
		cancel:        cancel,
		authorization: broadcast.New[domain.AuthorizationStatus](),
		utterances:    broadcast.New[domain.Utterance](),
		status:        broadcast.New[domain.SessionStatus](),
		availability:  broadcast.New[bool](),
		snapshot: domain.Snapshot{
			Authorization: domain.AuthorizationUndetermined,
			Status:        domain.SessionStatusIdle,
			Available:     true,
		},
	}
}

func (r *Recognizer) AuthorizationStatus(ctx context.Context) <-chan domain.AuthorizationStatus {
	return r.authorization.Subscribe(ctx)
}

func (r *Recognizer) Utterances(ctx context.Context) <-chan domain.Utterance {
	return r.utterances.Subscribe(ctx)
}

func (r *Recognizer) SessionStatus(ctx context.Context) <-chan domain.SessionStatus {
	return r.status.Subscribe(ctx)
}

// Availability reports true to each subscriber as soon as it attaches.
func (r *Recognizer) Availability(ctx context.Context) <-chan bool {
	in := r.availability.Subscribe(ctx)
	out := make(chan bool)
	go func() {
		defer close(out)
		select {
		case out <- true:
		case <-ctx.Done():
			return
		}
		for v := range in {
			select {
			case out <- v:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (r *Recognizer) NewUtterances(ctx context.Context) <-chan string {
	return usecase.NewUtteranceStream(ctx, r.utterances.Subscribe(ctx))
}

func (r *Recognizer) Snapshot() domain.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot
}

// RequestAuthorization reports authorized after a short delay.
func (r *Recognizer) RequestAuthorization() {
	r.after(r.timing.Authorization, func() {
		r.mu.Lock()
		r.snapshot.Authorization = domain.AuthorizationAuthorized
		r.mu.Unlock()
		r.authorization.Publish(domain.AuthorizationAuthorized)
	})
}

// StartRecording replaces any running script with a fresh one.
func (r *Recognizer) StartRecording(_ context.Context) error {
	if r.ctx.Err() != nil {
		return usecase.ErrCoordinatorClosed
	}

	scriptCtx, cancel := context.WithCancel(r.ctx)
	r.mu.Lock()
	if r.cancelScript != nil {
		r.cancelScript()
	}
	r.cancelScript = cancel
	r.generation++
	r.snapshot.Utterance = domain.NoUtterance
	r.snapshot.Status = domain.SessionStatusRecording
	r.utterances.Publish(domain.NoUtterance)
	r.status.Publish(domain.SessionStatusRecording)
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.play(scriptCtx)
	}()
	return nil
}

func (r *Recognizer) play(ctx context.Context) {
	var text string
	for _, word := range Script {
		timer := time.NewTimer(time.Duration(len(word)) * r.timing.PerCharacter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if text == "" {
			text = word
		} else {
			text += " " + word
		}

		r.mu.Lock()
		if ctx.Err() != nil {
			r.mu.Unlock()
			return
		}
		r.snapshot.Utterance = domain.NewUtterance(text)
		r.utterances.Publish(r.snapshot.Utterance)
		r.mu.Unlock()
	}
}

// StopRecording cancels the script, reports stopping, then stopped after a
// delay. Without a running script it reports stopped at once.
func (r *Recognizer) StopRecording() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.generation++
	if r.cancelScript == nil {
		r.snapshot.Status = domain.SessionStatusStopped
		r.status.Publish(domain.SessionStatusStopped)
		return
	}

	r.cancelScript()
	r.cancelScript = nil
	r.snapshot.Status = domain.SessionStatusStopping
	r.status.Publish(domain.SessionStatusStopping)

	generation := r.generation
	r.after(r.timing.Stop, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.generation != generation {
			return
		}
		r.snapshot.Status = domain.SessionStatusStopped
		r.status.Publish(domain.SessionStatusStopped)
	})
}

func (r *Recognizer) after(delay time.Duration, fn func()) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-r.ctx.Done():
		case <-timer.C:
			fn()
		}
	}()
}

// Close stops pending timers and closes every stream.
func (r *Recognizer) Close() {
	r.cancel()
	r.wg.Wait()
	r.authorization.Close()
	r.utterances.Close()
	r.status.Close()
	r.availability.Close()
}
