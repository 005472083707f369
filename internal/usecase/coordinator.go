package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/metric"

	"voxbind/internal/broadcast"
	"voxbind/internal/domain"
	"voxbind/internal/ports"
)

var (
	ErrConfiguration         = errors.New("audio session could not be configured for recording")
	ErrEngineInit            = errors.New("recognition request could not be created")
	ErrRecognizerUnavailable = errors.New("no recognizer available")
	ErrCoordinatorClosed     = errors.New("session coordinator is closed")
)

// DoubleStartPolicy decides what StartRecording does while a session is
// already recording.
type DoubleStartPolicy string

const (
	// DoubleStartToggle stops the active session instead of starting a new one.
	DoubleStartToggle DoubleStartPolicy = "toggle"
	// DoubleStartRestart discards the active session and starts a fresh one.
	DoubleStartRestart DoubleStartPolicy = "restart"
)

// Config controls session behavior.
type Config struct {
	Audio       ports.AudioConfig
	Locale      string
	DoubleStart DoubleStartPolicy
	// MeterProvider defaults to the global provider.
	MeterProvider metric.MeterProvider
}

// SessionCoordinator mediates one capture+recognize session at a time and
// publishes its state on live broadcast streams.
//
// A single actor goroutine owns the session state. Commands and platform
// callbacks are queued as events, so the coordinator needs no locking around
// the session itself. Only one coordinator should drive a given audio
// engine; two would race on the same capture tap.
type SessionCoordinator struct {
	platform ports.Platform
	cfg      Config
	log      logrus.FieldLogger
	metrics  *coordinatorMetrics

	ctx       context.Context
	cancel    context.CancelFunc
	events    chan event
	done      chan struct{}
	closeOnce sync.Once

	authorization *broadcast.Broadcaster[domain.AuthorizationStatus]
	utterances    *broadcast.Broadcaster[domain.Utterance]
	statuses      *broadcast.Broadcaster[domain.SessionStatus]
	availability  *broadcast.Broadcaster[bool]

	snapMu sync.RWMutex
	snap   domain.Snapshot

	// actor-owned
	generation uint64
	current    *activeSession
}

func NewSessionCoordinator(platform ports.Platform, cfg Config, logger logrus.FieldLogger) *SessionCoordinator {
	if cfg.DoubleStart == "" {
		cfg.DoubleStart = DoubleStartToggle
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &SessionCoordinator{
		platform: platform,
		cfg:      cfg,
		log:      logger.WithField("component", "coordinator"),
		metrics:  newCoordinatorMetrics(cfg.MeterProvider),

		ctx:    ctx,
		cancel: cancel,
		events: make(chan event, 64),
		done:   make(chan struct{}),

		authorization: broadcast.New[domain.AuthorizationStatus](),
		utterances:    broadcast.New[domain.Utterance](),
		statuses:      broadcast.New[domain.SessionStatus](),
		availability:  broadcast.New[bool](),

		snap: domain.Snapshot{
			Authorization: domain.AuthorizationUndetermined,
			Status:        domain.SessionStatusIdle,
		},
	}

	go c.run()
	if platform.Availability != nil {
		go platform.Availability.Watch(ctx, func(available bool) {
			c.post(availabilityChanged{available: available})
		})
	}
	return c
}

// AuthorizationStatus streams consent results.
func (c *SessionCoordinator) AuthorizationStatus(ctx context.Context) <-chan domain.AuthorizationStatus {
	return c.authorization.Subscribe(ctx)
}

// Utterances streams every raw utterance change, including absent resets
// and repeated values.
func (c *SessionCoordinator) Utterances(ctx context.Context) <-chan domain.Utterance {
	return c.utterances.Subscribe(ctx)
}

// SessionStatus streams lifecycle transitions.
func (c *SessionCoordinator) SessionStatus(ctx context.Context) <-chan domain.SessionStatus {
	return c.statuses.Subscribe(ctx)
}

// Availability streams recognizer service availability changes.
func (c *SessionCoordinator) Availability(ctx context.Context) <-chan bool {
	return c.availability.Subscribe(ctx)
}

// NewUtterances streams de-duplicated, present utterance text.
func (c *SessionCoordinator) NewUtterances(ctx context.Context) <-chan string {
	return NewUtteranceStream(ctx, c.utterances.Subscribe(ctx))
}

// Snapshot returns the current value of every observable field.
func (c *SessionCoordinator) Snapshot() domain.Snapshot {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.snap
}

// RequestAuthorization asks the platform for consent. The result is
// delivered only through AuthorizationStatus.
func (c *SessionCoordinator) RequestAuthorization() {
	if c.platform.Authorizer == nil {
		return
	}
	c.platform.Authorizer.RequestAuthorization(func(status domain.AuthorizationStatus) {
		c.post(authorizationResult{status: status})
	})
}

// StartRecording begins a session. While a session is recording, the
// configured DoubleStartPolicy applies instead.
func (c *SessionCoordinator) StartRecording(ctx context.Context) error {
	reply := make(chan error, 1)
	if !c.post(startCommand{ctx: ctx, reply: reply}) {
		return ErrCoordinatorClosed
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return ErrCoordinatorClosed
	}
}

// StopRecording ends audio capture and signals end of audio. The session
// reaches stopped once the recognizer delivers its last result. With no
// active session it publishes stopped immediately.
func (c *SessionCoordinator) StopRecording() {
	reply := make(chan struct{})
	if !c.post(stopCommand{reply: reply}) {
		return
	}
	select {
	case <-reply:
	case <-c.done:
	}
}

// Close tears down any active session and closes every stream.
func (c *SessionCoordinator) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		<-c.done
		c.authorization.Close()
		c.utterances.Close()
		c.statuses.Close()
		c.availability.Close()
	})
}

func (c *SessionCoordinator) post(ev event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

func (c *SessionCoordinator) run() {
	defer close(c.done)

	for {
		select {
		case <-c.ctx.Done():
			c.shutdown()
			return
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

func (c *SessionCoordinator) handle(ev event) {
	switch ev := ev.(type) {
	case startCommand:
		ev.reply <- c.handleStart(ev.ctx)
	case stopCommand:
		c.handleStop()
		close(ev.reply)
	case authorizationResult:
		c.setAuthorization(ev.status)
	case availabilityChanged:
		c.setAvailability(ev.available)
	case recognitionUpdate:
		c.handleRecognitionUpdate(ev)
	case recognitionEnded:
		c.handleRecognitionEnded(ev)
	}
}

func (c *SessionCoordinator) handleStart(ctx context.Context) error {
	if c.current != nil && c.platform.Engine.Running() {
		if c.cfg.DoubleStart != DoubleStartRestart {
			c.log.WithField("session_id", c.current.id).
				Warn("start requested while recording; stopping the current session instead")
			c.handleStop()
			return nil
		}
		c.log.WithField("session_id", c.current.id).Info("start requested while recording; restarting session")
	}

	if c.current != nil {
		c.retire(c.current)
	}

	c.setUtterance(domain.NoUtterance)

	session, err := c.begin(ctx)
	if err != nil {
		c.log.WithError(err).Warn("failed to start recording")
		return err
	}

	c.current = session
	c.setStatus(domain.SessionStatusRecording)
	c.metrics.sessionStarted(c.ctx)
	c.log.WithFields(logrus.Fields{
		"session_id": session.id,
		"generation": session.generation,
	}).Info("recording started")
	return nil
}

// begin acquires every session resource in order. On failure everything
// acquired so far is released before returning.
func (c *SessionCoordinator) begin(ctx context.Context) (*activeSession, error) {
	c.generation++
	session := &activeSession{
		id:         uuid.NewString(),
		generation: c.generation,
	}

	if err := c.platform.Session.Activate(ctx, c.cfg.Audio); err != nil {
		c.metrics.sessionFailed(c.ctx, "configuration")
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	recognizer, err := c.platform.Recognizers.Recognizer(c.cfg.Locale)
	if err != nil || recognizer == nil {
		c.rollback(session)
		c.metrics.sessionFailed(c.ctx, "recognizer_unavailable")
		if err == nil {
			return nil, fmt.Errorf("%w for locale %q", ErrRecognizerUnavailable, c.cfg.Locale)
		}
		return nil, fmt.Errorf("%w: %w", ErrRecognizerUnavailable, err)
	}

	request, err := recognizer.NewRequest()
	if err != nil || request == nil {
		c.rollback(session)
		c.metrics.sessionFailed(c.ctx, "engine_init")
		if err == nil {
			return nil, ErrEngineInit
		}
		return nil, fmt.Errorf("%w: %w", ErrEngineInit, err)
	}
	session.request = request

	sessionCtx, cancel := context.WithCancel(c.ctx)
	session.cancel = cancel

	task, err := recognizer.StartTask(sessionCtx, request, c.handlerFor(session.generation))
	if err != nil {
		c.rollback(session)
		c.metrics.sessionFailed(c.ctx, "recognizer_unavailable")
		return nil, fmt.Errorf("%w: %w", ErrRecognizerUnavailable, err)
	}
	session.task = task

	if err := c.platform.Engine.InstallTap(func(frame domain.AudioFrame) {
		request.Append(frame)
	}); err != nil {
		c.rollback(session)
		c.metrics.sessionFailed(c.ctx, "configuration")
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	session.tapInstalled = true

	if err := c.platform.Engine.Start(sessionCtx, c.cfg.Audio); err != nil {
		c.rollback(session)
		c.metrics.sessionFailed(c.ctx, "configuration")
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	return session, nil
}

func (c *SessionCoordinator) rollback(session *activeSession) {
	if session.task != nil {
		session.task.Cancel()
		session.task = nil
	}
	if session.tapInstalled {
		c.platform.Engine.RemoveTap()
		session.tapInstalled = false
	}
	session.request = nil
	if session.cancel != nil {
		session.cancel()
	}
	if err := c.platform.Session.Deactivate(); err != nil {
		c.log.WithError(err).Debug("audio session deactivate failed during rollback")
	}
}

// handlerFor tags task callbacks with the session generation. The task
// calls it from its own goroutine, so it only posts events.
func (c *SessionCoordinator) handlerFor(generation uint64) ports.RecognitionHandler {
	return func(update domain.RecognitionUpdate) {
		if update.HasResult {
			c.post(recognitionUpdate{generation: generation, text: update.Text, isFinal: update.IsFinal})
		}
		if update.Err != nil || update.IsFinal {
			c.post(recognitionEnded{generation: generation, err: update.Err})
		}
	}
}

func (c *SessionCoordinator) handleStop() {
	if c.current != nil && c.platform.Engine.Running() {
		c.platform.Engine.Stop()
		if c.current.request != nil {
			c.current.request.EndAudio()
		}
		c.setStatus(domain.SessionStatusStopping)
		c.log.WithField("session_id", c.current.id).Info("recording stopping")
		return
	}
	c.setStatus(domain.SessionStatusStopped)
}

func (c *SessionCoordinator) handleRecognitionUpdate(ev recognitionUpdate) {
	session := c.sessionFor(ev.generation)
	if session == nil {
		return
	}
	session.isFinal = ev.isFinal
	c.setUtterance(domain.NewUtterance(ev.text))
	c.metrics.utteranceReceived(c.ctx)
}

func (c *SessionCoordinator) handleRecognitionEnded(ev recognitionEnded) {
	session := c.sessionFor(ev.generation)
	if session == nil {
		return
	}

	entry := c.log.WithFields(logrus.Fields{
		"session_id": session.id,
		"generation": session.generation,
		"final":      session.isFinal,
	})
	if ev.err != nil {
		entry.WithError(ev.err).Warn("recognition ended with error")
	} else {
		entry.Info("recognition finished")
	}

	c.teardown(session)
	c.setStatus(domain.SessionStatusStopped)
}

// sessionFor returns the current session when generation matches it.
func (c *SessionCoordinator) sessionFor(generation uint64) *activeSession {
	if c.current == nil || c.current.generation != generation {
		c.metrics.staleCallback(c.ctx)
		c.log.WithField("generation", generation).Debug("discarding stale recognition callback")
		return nil
	}
	return c.current
}

// retire cancels the session's task so its late callbacks go stale, then
// releases its resources.
func (c *SessionCoordinator) retire(session *activeSession) {
	if session.task != nil {
		session.task.Cancel()
	}
	c.teardown(session)
	if c.Snapshot().Status != domain.SessionStatusStopped {
		c.setStatus(domain.SessionStatusStopped)
	}
}

// teardown releases session resources: stop the engine, remove the tap,
// then clear references.
func (c *SessionCoordinator) teardown(session *activeSession) {
	if c.platform.Engine.Running() {
		c.platform.Engine.Stop()
	}
	if session.tapInstalled {
		c.platform.Engine.RemoveTap()
		session.tapInstalled = false
	}
	session.request = nil
	session.task = nil
	if session.cancel != nil {
		session.cancel()
	}
	if err := c.platform.Session.Deactivate(); err != nil {
		c.log.WithError(err).Debug("audio session deactivate failed")
	}
	if c.current == session {
		c.current = nil
	}
}

func (c *SessionCoordinator) shutdown() {
	if c.current != nil {
		c.retire(c.current)
	}
}

func (c *SessionCoordinator) setAuthorization(status domain.AuthorizationStatus) {
	c.snapMu.Lock()
	c.snap.Authorization = status
	c.snapMu.Unlock()
	c.authorization.Publish(status)
}

func (c *SessionCoordinator) setUtterance(utterance domain.Utterance) {
	c.snapMu.Lock()
	c.snap.Utterance = utterance
	c.snapMu.Unlock()
	c.utterances.Publish(utterance)
}

func (c *SessionCoordinator) setStatus(status domain.SessionStatus) {
	c.snapMu.Lock()
	c.snap.Status = status
	c.snapMu.Unlock()
	c.statuses.Publish(status)
}

func (c *SessionCoordinator) setAvailability(available bool) {
	c.snapMu.Lock()
	c.snap.Available = available
	c.snapMu.Unlock()
	c.availability.Publish(available)
}
