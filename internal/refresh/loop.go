// Package refresh runs the background wait-and-notify loop that turns wake
// signals into repaint requests on the consumer context.
package refresh

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/babelcloud/framerelay/internal/dispatch"
	"github.com/babelcloud/framerelay/internal/shm"
	"github.com/babelcloud/framerelay/internal/util"
)

// ErrAlreadyStarted is returned by a second Start.
var ErrAlreadyStarted = errors.New("refresh loop already started")

// Waiter is the wake-signal side of the loop. *shm.Signal implements it.
type Waiter interface {
	Wait(timeout time.Duration) (shm.WaitResult, error)
	SignalLocal() error
}

// Options tunes a Loop. Zero values pick sensible defaults.
type Options struct {
	// Timeout bounds each wait so a stop request is noticed promptly even
	// if the producer never signals.
	Timeout time.Duration
	Clock   clock.Clock
	Logger  *logrus.Entry
	// Debug turns a panic inside an iteration into a crash instead of a
	// log line.
	Debug bool
	// OnExit runs on the loop goroutine right before it finishes.
	OnExit func()
}

// Stats is a snapshot of loop counters.
type Stats struct {
	Iterations   uint64
	Signaled     uint64
	TimedOut     uint64
	Interrupted  uint64
	Dispatched   uint64
	Dropped      uint64
	WaitErrors   uint64
	LastDispatch time.Time
}

// Loop owns one goroutine that waits on a Waiter and dispatches notify
// after every wake or timeout until stopped.
type Loop struct {
	waiter     Waiter
	dispatcher dispatch.Dispatcher
	notify     func()
	opts       Options
	log        *logrus.Entry

	mu      sync.Mutex
	started bool

	stopRequested atomic.Bool
	stopCh        chan struct{}
	done          chan struct{}

	iterations   atomic.Uint64
	signaled     atomic.Uint64
	timedOut     atomic.Uint64
	interrupted  atomic.Uint64
	dispatched   atomic.Uint64
	dropped      atomic.Uint64
	waitErrors   atomic.Uint64
	lastDispatch atomic.Int64
}

// New creates a stopped loop.
func New(waiter Waiter, dispatcher dispatch.Dispatcher, notify func(), opts Options) *Loop {
	if opts.Timeout <= 0 {
		opts.Timeout = shm.DefaultWaitTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	log := opts.Logger
	if log == nil {
		log = util.GetLogger().WithField("component", "refresh")
	}
	return &Loop{
		waiter:     waiter,
		dispatcher: dispatcher,
		notify:     notify,
		opts:       opts,
		log:        log,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start spawns the loop goroutine. A loop runs at most once.
func (l *Loop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started {
		return ErrAlreadyStarted
	}
	l.started = true

	go l.run()
	l.log.WithField("timeout", l.opts.Timeout).Debug("Refresh loop started")
	return nil
}

// RequestStop raises the stop flag and kicks the waiter without waiting for
// the goroutine. Safe from any context, including cleanups.
func (l *Loop) RequestStop() {
	if !l.stopRequested.CompareAndSwap(false, true) {
		return
	}
	close(l.stopCh)
	if err := l.waiter.SignalLocal(); err != nil {
		l.log.WithError(err).Warn("Failed to interrupt wake signal wait")
	}
}

// Stop requests a stop and blocks until the goroutine has exited.
// Idempotent.
func (l *Loop) Stop() {
	l.RequestStop()

	l.mu.Lock()
	started := l.started
	l.mu.Unlock()

	if started {
		<-l.done
	}
}

// Done is closed when the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Running reports whether the goroutine is alive.
func (l *Loop) Running() bool {
	l.mu.Lock()
	started := l.started
	l.mu.Unlock()
	if !started {
		return false
	}
	select {
	case <-l.done:
		return false
	default:
		return true
	}
}

// Stats returns a snapshot of the loop counters.
func (l *Loop) Stats() Stats {
	s := Stats{
		Iterations:  l.iterations.Load(),
		Signaled:    l.signaled.Load(),
		TimedOut:    l.timedOut.Load(),
		Interrupted: l.interrupted.Load(),
		Dispatched:  l.dispatched.Load(),
		Dropped:     l.dropped.Load(),
		WaitErrors:  l.waitErrors.Load(),
	}
	if ns := l.lastDispatch.Load(); ns != 0 {
		s.LastDispatch = time.Unix(0, ns)
	}
	return s
}

func (l *Loop) run() {
	defer close(l.done)
	defer func() {
		if l.opts.OnExit != nil {
			l.opts.OnExit()
		}
	}()

	for !l.stopRequested.Load() {
		l.iterate()
	}
	l.log.WithField("iterations", l.iterations.Load()).Debug("Refresh loop exited")
}

func (l *Loop) iterate() {
	defer func() {
		if r := recover(); r != nil {
			l.log.WithField("panic", r).Error("Refresh iteration panicked")
			if l.opts.Debug {
				panic(r)
			}
		}
	}()

	l.iterations.Add(1)
	res, err := l.waiter.Wait(l.opts.Timeout)
	if err != nil {
		l.waitErrors.Add(1)
		l.log.WithError(err).Error("Wake signal wait failed")
		l.backoff()
		return
	}

	switch res {
	case shm.WaitSignaled:
		l.signaled.Add(1)
	case shm.WaitInterrupted:
		l.interrupted.Add(1)
	default:
		l.timedOut.Add(1)
	}

	if l.stopRequested.Load() {
		return
	}

	if l.dispatcher.Dispatch(l.notify) {
		l.dispatched.Add(1)
		l.lastDispatch.Store(l.opts.Clock.Now().UnixNano())
	} else {
		l.dropped.Add(1)
	}
}

// backoff keeps a failing waiter from spinning the loop.
func (l *Loop) backoff() {
	timer := l.opts.Clock.NewTimer(l.opts.Timeout)
	defer timer.Stop()
	select {
	case <-timer.C():
	case <-l.stopCh:
	}
}
