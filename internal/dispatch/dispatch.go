// Package dispatch marshals actions onto a consumer's single-threaded
// execution context.
package dispatch

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/babelcloud/framerelay/internal/util"
)

// Dispatcher schedules an action on the consumer context. Dispatch must not
// block; it returns false when the action was dropped because the consumer
// is behind.
type Dispatcher interface {
	Dispatch(action func()) bool
}

// Func adapts a plain function to Dispatcher.
type Func func(action func()) bool

// Dispatch implements Dispatcher.
func (f Func) Dispatch(action func()) bool { return f(action) }

// DefaultQueueSize is the backlog a Queue accepts before dropping actions.
const DefaultQueueSize = 16

// Queue is a headless consumer context: a single goroutine running queued
// actions one at a time, in submission order.
type Queue struct {
	actions chan func()
	log     *logrus.Entry

	mu      sync.RWMutex
	closed  bool
	done    chan struct{}
	dropped atomic.Uint64
	ran     atomic.Uint64
}

// NewQueue creates a queue holding up to size pending actions.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{
		actions: make(chan func(), size),
		log:     util.GetLogger().WithField("component", "dispatch"),
		done:    make(chan struct{}),
	}
}

// Dispatch implements Dispatcher.
func (q *Queue) Dispatch(action func()) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.dropped.Add(1)
		return false
	}
	select {
	case q.actions <- action:
		return true
	default:
		q.dropped.Add(1)
		q.log.Debug("Consumer queue full, dropping action")
		return false
	}
}

// Run executes actions until ctx is done or Close is called. It must be
// called from exactly one goroutine, which becomes the consumer context.
func (q *Queue) Run(ctx context.Context) {
	defer close(q.done)
	for {
		select {
		case <-ctx.Done():
			return
		case action, ok := <-q.actions:
			if !ok {
				return
			}
			q.run(action)
		}
	}
}

func (q *Queue) run(action func()) {
	defer func() {
		if r := recover(); r != nil {
			q.log.WithField("panic", r).Error("Dispatched action panicked")
		}
	}()
	action()
	q.ran.Add(1)
}

// Close stops accepting actions and lets Run drain what is already queued.
// It does not wait for Run to return; use Done for that.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.actions)
}

// Done is closed once Run has returned.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

// Dropped returns how many actions were rejected.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Executed returns how many actions completed without panicking.
func (q *Queue) Executed() uint64 {
	return q.ran.Load()
}
