// Package latch provides an observable countdown latch: a counter that
// releases waiters at zero and notifies listeners on every decrement.
package latch

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrCountingStarted = errors.New("listeners cannot be added once counting has started")
	ErrReleased        = errors.New("latch already released")
	ErrInterrupted     = errors.New("latch wait interrupted")
)

// Listener observes one decrement. remaining is the count after it.
// Listeners run with the latch lock held: they must not call back into
// the latch.
type Listener[T any] func(item T, remaining int)

// Latch counts down from an initial count. Every decrement names the item
// that completed, and the listener fan-out is atomic with the decrement.
type Latch[T any] struct {
	mu        sync.Mutex
	count     int
	started   bool
	listeners []Listener[T]
	done      chan struct{}
}

func New[T any](count int) *Latch[T] {
	if count < 0 {
		panic(fmt.Sprintf("latch: negative count %d", count))
	}
	l := &Latch[T]{count: count, done: make(chan struct{})}
	if count == 0 {
		close(l.done)
	}
	return l
}

// AddListener registers fn. Registration is rejected once the first
// decrement has happened.
func (l *Latch[T]) AddListener(fn Listener[T]) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return ErrCountingStarted
	}
	l.listeners = append(l.listeners, fn)
	return nil
}

// CountDown records that item completed, notifies every listener and
// decrements the count.
func (l *Latch[T]) CountDown(item T) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.count == 0 {
		return ErrReleased
	}
	l.started = true
	remaining := l.count - 1
	for _, fn := range l.listeners {
		fn(item, remaining)
	}
	l.count = remaining
	if l.count == 0 {
		close(l.done)
	}
	return nil
}

func (l *Latch[T]) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Inspect calls fn with the latch lock held, so fn observes state that
// listeners mutate without racing them.
func (l *Latch[T]) Inspect(fn func(remaining int)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(l.count)
}

// Done is closed when the count reaches zero.
func (l *Latch[T]) Done() <-chan struct{} {
	return l.done
}

// Wait blocks until the count reaches zero or ctx is done.
func (l *Latch[T]) Wait(ctx context.Context) error {
	select {
	case <-l.done:
		return nil
	default:
	}
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrInterrupted, context.Cause(ctx))
	}
}
