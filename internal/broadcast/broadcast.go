// Package broadcast fans values out to live subscribers.
//
// A subscriber sees only values published after it subscribed. Every
// subscriber has its own unbounded queue, so Publish never blocks on a slow
// reader and each reader observes values in publish order.
package broadcast

import (
	"context"
	"sync"
)

// Broadcaster publishes values of type T to every attached subscriber.
type Broadcaster[T any] struct {
	mu     sync.Mutex
	subs   map[*subscriber[T]]struct{}
	closed bool
}

func New[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{subs: make(map[*subscriber[T]]struct{})}
}

// Subscribe attaches a subscriber. The returned channel closes when ctx is
// done, or after the queue drains once the broadcaster is closed.
func (b *Broadcaster[T]) Subscribe(ctx context.Context) <-chan T {
	out := make(chan T)
	sub := &subscriber[T]{
		wake: make(chan struct{}, 1),
		out:  out,
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(out)
		return out
	}
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go sub.run(ctx, func() { b.remove(sub) })
	return out
}

// Publish queues v for every current subscriber.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		sub.push(v)
	}
}

// Close detaches all subscribers. Values already queued are still delivered.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		sub.close()
	}
	b.subs = make(map[*subscriber[T]]struct{})
}

func (b *Broadcaster[T]) remove(sub *subscriber[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, sub)
}

type subscriber[T any] struct {
	mu     sync.Mutex
	queue  []T
	closed bool

	wake chan struct{}
	out  chan T
}

func (s *subscriber[T]) push(v T) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, v)
	s.mu.Unlock()
	s.signal()
}

func (s *subscriber[T]) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.signal()
}

func (s *subscriber[T]) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber[T]) run(ctx context.Context, detach func()) {
	defer close(s.out)
	defer detach()

	var zero T
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			select {
			case <-s.wake:
				continue
			case <-ctx.Done():
				return
			}
		}
		v := s.queue[0]
		s.queue[0] = zero
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- v:
		case <-ctx.Done():
			return
		}
	}
}
