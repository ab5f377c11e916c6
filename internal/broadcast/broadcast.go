// Package broadcast fans out values to every current subscriber without ever
// blocking the publisher.
//
// Each subscriber has a bounded buffer. When it is full the value is dropped
// for that subscriber only and counted. Subscribers that join late do not see
// earlier values. Delivery order per subscriber matches publish order.
package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the per-subscriber buffer used when none is given.
const DefaultBuffer = 16

// Broadcaster delivers published values to all subscribers.
//
// Safe for concurrent use.
type Broadcaster[T any] struct {
	mu      sync.Mutex
	subs    map[*Subscription[T]]struct{}
	buffer  int
	closed  bool
	dropped atomic.Int64
	logger  *slog.Logger
}

// Subscription is one subscriber's view of a Broadcaster.
type Subscription[T any] struct {
	b       *Broadcaster[T]
	ch      chan T
	once    sync.Once
	dropped atomic.Int64
}

// New creates a broadcaster. buffer <= 0 uses DefaultBuffer.
func New[T any](buffer int, logger *slog.Logger) *Broadcaster[T] {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster[T]{
		subs:   make(map[*Subscription[T]]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

// Publish offers v to every subscriber and returns how many accepted it.
// It never blocks.
func (b *Broadcaster[T]) Publish(v T) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0
	}

	delivered := 0
	for s := range b.subs {
		select {
		case s.ch <- v:
			delivered++
		default:
			s.dropped.Add(1)
			b.dropped.Add(1)
			b.logger.Warn("subscriber buffer full, dropping value", "buffer", b.buffer)
		}
	}
	return delivered
}

// Subscribe registers a new subscriber. On a closed broadcaster the returned
// subscription's channel is already closed.
func (b *Broadcaster[T]) Subscribe() *Subscription[T] {
	s := &Subscription[T]{b: b, ch: make(chan T, b.buffer)}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		s.once.Do(func() { close(s.ch) })
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

// SubscribeFunc runs fn for every value on its own goroutine until ctx is
// done or the broadcaster closes. Errors and panics from fn are logged and do
// not stop delivery. The returned channel closes when the goroutine exits.
func (b *Broadcaster[T]) SubscribeFunc(ctx context.Context, fn func(T) error) <-chan struct{} {
	s := b.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer s.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-s.C():
				if !ok {
					return
				}
				if err := b.invoke(fn, v); err != nil {
					b.logger.Error("subscriber handler failed", "error", err)
				}
			}
		}
	}()
	return done
}

func (b *Broadcaster[T]) invoke(fn func(T) error, v T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return fn(v)
}

// Subscribers returns the number of active subscriptions.
func (b *Broadcaster[T]) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Dropped returns the total number of values dropped across subscribers.
func (b *Broadcaster[T]) Dropped() int64 {
	return b.dropped.Load()
}

// Close closes every subscription. Later publishes are no-ops.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		s.once.Do(func() { close(s.ch) })
	}
	b.subs = nil
}

// C returns the receive channel. It is closed by Close on either side.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Dropped returns how many values this subscriber missed.
func (s *Subscription[T]) Dropped() int64 {
	return s.dropped.Load()
}

// Close unsubscribes. Safe to call more than once.
func (s *Subscription[T]) Close() {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	delete(s.b.subs, s)
	s.once.Do(func() { close(s.ch) })
}
