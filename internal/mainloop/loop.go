// Package mainloop provides the single goroutine on which run sequencing
// happens. Work from other goroutines (launcher completions, API handlers) is
// posted to the loop and executed one item at a time, in posting order.
package mainloop

import (
	"context"
	"errors"
	"sync"
)

// ErrStopped is returned when work is posted to a loop that has stopped.
var ErrStopped = errors.New("main loop stopped")

// defaultQueueSize is the buffer for posted work before Post blocks.
const defaultQueueSize = 256

// Loop executes posted functions sequentially on a single goroutine.
type Loop struct {
	queue    chan func()
	stopped  chan struct{}
	stopOnce sync.Once
}

// New creates a loop. It does nothing until Run is called.
func New() *Loop {
	return &Loop{
		queue:   make(chan func(), defaultQueueSize),
		stopped: make(chan struct{}),
	}
}

// Post schedules fn to run on the loop. It returns ErrStopped if the loop
// has already stopped; fn is then never run.
func (l *Loop) Post(fn func()) error {
	select {
	case <-l.stopped:
		return ErrStopped
	default:
	}

	select {
	case l.queue <- fn:
		return nil
	case <-l.stopped:
		return ErrStopped
	}
}

// Do runs fn on the loop and waits for it to finish.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if err := l.Post(func() {
		defer close(done)
		fn()
	}); err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopped:
		// fn may have run just before the loop stopped.
		select {
		case <-done:
			return nil
		default:
			return ErrStopped
		}
	}
}

// Run executes posted work until ctx is done. Work still queued when the
// context ends is discarded.
func (l *Loop) Run(ctx context.Context) error {
	defer l.stopOnce.Do(func() { close(l.stopped) })

	for {
		select {
		case fn := <-l.queue:
			fn()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stopped is closed once Run has returned.
func (l *Loop) Stopped() <-chan struct{} {
	return l.stopped
}
