package refresh

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/babelcloud/framerelay/internal/dispatch"
	"github.com/babelcloud/framerelay/internal/shm"
)

type waitReply struct {
	res shm.WaitResult
	err error
}

// fakeWaiter hands out scripted results and blocks when none are queued,
// like a signal nobody pokes.
type fakeWaiter struct {
	replies chan waitReply
	kick    chan struct{}
	kicked  atomic.Bool
	calls   atomic.Int64
}

func newFakeWaiter() *fakeWaiter {
	return &fakeWaiter{
		replies: make(chan waitReply, 16),
		kick:    make(chan struct{}),
	}
}

func (w *fakeWaiter) Wait(time.Duration) (shm.WaitResult, error) {
	w.calls.Add(1)
	if w.kicked.Load() {
		return shm.WaitInterrupted, nil
	}
	select {
	case r := <-w.replies:
		return r.res, r.err
	case <-w.kick:
		return shm.WaitInterrupted, nil
	}
}

func (w *fakeWaiter) SignalLocal() error {
	if w.kicked.CompareAndSwap(false, true) {
		close(w.kick)
	}
	return nil
}

func (w *fakeWaiter) push(res shm.WaitResult) {
	w.replies <- waitReply{res: res}
}

// inline runs actions on the caller, standing in for a consumer context.
func inline() dispatch.Dispatcher {
	return dispatch.Func(func(action func()) bool {
		action()
		return true
	})
}

func TestEachWakeDispatchesOneNotification(t *testing.T) {
	w := newFakeWaiter()
	var notified atomic.Int64
	l := New(w, inline(), func() { notified.Add(1) }, Options{})

	require.NoError(t, l.Start())
	w.push(shm.WaitSignaled)
	w.push(shm.WaitSignaled)
	w.push(shm.WaitTimedOut)

	assert.Eventually(t, func() bool { return notified.Load() == 3 }, time.Second, time.Millisecond)
	l.Stop()

	assert.Equal(t, int64(3), notified.Load(), "no notification after stop")
	s := l.Stats()
	assert.Equal(t, uint64(2), s.Signaled)
	assert.Equal(t, uint64(1), s.TimedOut)
	assert.Equal(t, uint64(1), s.Interrupted)
	assert.Equal(t, uint64(3), s.Dispatched)
	assert.False(t, s.LastDispatch.IsZero())
}

func TestStopJoinsAndIsIdempotent(t *testing.T) {
	w := newFakeWaiter()
	l := New(w, inline(), func() {}, Options{})
	assert.False(t, l.Running())

	require.NoError(t, l.Start())
	assert.True(t, l.Running())
	assert.ErrorIs(t, l.Start(), ErrAlreadyStarted)

	l.Stop()
	assert.False(t, l.Running())
	select {
	case <-l.Done():
	default:
		t.Fatal("loop goroutine still alive after Stop")
	}
	l.Stop()
}

func TestStopBeforeStartDoesNotBlock(t *testing.T) {
	l := New(newFakeWaiter(), inline(), func() {}, Options{})
	done := make(chan struct{})
	go func() {
		l.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on a loop that never started")
	}
}

func TestDroppedDispatchIsCounted(t *testing.T) {
	w := newFakeWaiter()
	refuse := dispatch.Func(func(func()) bool { return false })
	l := New(w, refuse, func() { t.Error("notify must not run") }, Options{})

	require.NoError(t, l.Start())
	w.push(shm.WaitSignaled)
	assert.Eventually(t, func() bool { return l.Stats().Dropped == 1 }, time.Second, time.Millisecond)
	l.Stop()
	assert.Zero(t, l.Stats().Dispatched)
}

func TestWaitErrorBacksOffOneTimeout(t *testing.T) {
	w := newFakeWaiter()
	clk := testingclock.NewFakeClock(time.Now())
	var notified atomic.Int64
	l := New(w, inline(), func() { notified.Add(1) }, Options{
		Timeout: 250 * time.Millisecond,
		Clock:   clk,
	})

	w.replies <- waitReply{err: errors.New("poll failed")}
	w.push(shm.WaitSignaled)
	require.NoError(t, l.Start())

	assert.Eventually(t, clk.HasWaiters, time.Second, time.Millisecond)
	assert.Equal(t, int64(1), w.calls.Load(), "no wait while backing off")

	clk.Step(250 * time.Millisecond)
	assert.Eventually(t, func() bool { return notified.Load() == 1 }, time.Second, time.Millisecond)

	l.Stop()
	assert.Equal(t, uint64(1), l.Stats().WaitErrors)
}

func TestStopInterruptsBackoff(t *testing.T) {
	w := newFakeWaiter()
	clk := testingclock.NewFakeClock(time.Now())
	l := New(w, inline(), func() {}, Options{Timeout: time.Hour, Clock: clk})

	w.replies <- waitReply{err: errors.New("poll failed")}
	require.NoError(t, l.Start())
	assert.Eventually(t, clk.HasWaiters, time.Second, time.Millisecond)

	l.Stop()
	assert.False(t, l.Running())
}

func TestPanickingNotificationDoesNotKillLoop(t *testing.T) {
	w := newFakeWaiter()
	var calls atomic.Int64
	l := New(w, inline(), func() {
		if calls.Add(1) == 1 {
			panic("boom")
		}
	}, Options{})

	require.NoError(t, l.Start())
	w.push(shm.WaitSignaled)
	w.push(shm.WaitSignaled)
	assert.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, time.Millisecond)
	assert.True(t, l.Running())
	l.Stop()
}

func TestOnExitRunsOnLoopGoroutine(t *testing.T) {
	w := newFakeWaiter()
	var exited atomic.Bool
	l := New(w, inline(), func() {}, Options{OnExit: func() { exited.Store(true) }})

	require.NoError(t, l.Start())
	l.RequestStop()
	<-l.Done()
	assert.True(t, exited.Load())
}
