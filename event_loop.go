package smokerlog

import (
	"context"
	"errors"
	"sync"
)

var ErrLoopStopped = errors.New("event loop stopped")

// EventLoop carries closures from other goroutines onto the single goroutine
// that owns the store, the cache and the hub. The owner receives from
// Posted() in its select and runs what it gets.
type EventLoop struct {
	post    chan func()
	stopped chan struct{}
	once    sync.Once
}

func NewEventLoop() *EventLoop {
	return &EventLoop{
		post:    make(chan func()),
		stopped: make(chan struct{}),
	}
}

func (l *EventLoop) Posted() <-chan func() {
	return l.post
}

// Do runs fn on the loop goroutine and waits for it to finish. It must not
// be called from the loop goroutine itself.
func (l *EventLoop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		fn()
	}

	select {
	case l.post <- wrapped:
	case <-l.stopped:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	// Once accepted, fn runs to completion on the loop, so wait for it even
	// if ctx is canceled meanwhile; the caller may rely on its side effects.
	<-done
	return nil
}

// Stop marks the loop as finished; pending and future Do calls return
// ErrLoopStopped.
func (l *EventLoop) Stop() {
	l.once.Do(func() {
		close(l.stopped)
	})
}

func (l *EventLoop) Stopped() <-chan struct{} {
	return l.stopped
}
