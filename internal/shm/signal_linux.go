//go:build linux

package shm

import (
	"encoding/binary"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Signal is a local handle to the producer's wake FIFO plus a private
// eventfd used to interrupt Wait during shutdown.
type Signal struct {
	mu     sync.Mutex
	name   string
	fifo   int
	stop   int
	closed bool
}

// OpenSignal opens the existing wake FIFO dir/name.
func OpenSignal(dir, name string) (*Signal, error) {
	path := Path(dir, name)

	info, err := os.Stat(path)
	if err != nil {
		return nil, classify(err, ErrSignalNotFound, path)
	}
	if info.Mode()&os.ModeNamedPipe == 0 {
		return nil, errors.Wrapf(ErrSignalNotFound, "%s is not a fifo", path)
	}

	// O_RDWR keeps a writer reference on the pipe, so poll never reports a
	// hang-up while the producer is between writes or restarting.
	fifo, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, classify(&os.PathError{Op: "open", Path: path, Err: err}, ErrSignalNotFound, path)
	}

	stop, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(fifo)
		return nil, errors.Wrap(err, "eventfd")
	}

	return &Signal{name: name, fifo: fifo, stop: stop}, nil
}

// Name returns the signal name the handle was opened with.
func (s *Signal) Name() string {
	return s.name
}

// Wait blocks until the producer signals, SignalLocal is called, or timeout
// elapses. Several producer signals between two calls collapse into one
// WaitSignaled.
func (s *Signal) Wait(timeout time.Duration) (WaitResult, error) {
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return WaitTimedOut, ErrClosed
	}
	fifo, stop := s.fifo, s.stop
	s.mu.Unlock()

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		fds := []unix.PollFd{
			{Fd: int32(stop), Events: unix.POLLIN},
			{Fd: int32(fifo), Events: unix.POLLIN},
		}
		n, err := unix.Poll(fds, int((remaining+time.Millisecond-1)/time.Millisecond))
		if err == unix.EINTR {
			if remaining == 0 {
				return WaitTimedOut, nil
			}
			continue
		}
		if err != nil {
			return WaitTimedOut, errors.Wrap(err, "poll wake signal")
		}
		if n == 0 {
			return WaitTimedOut, nil
		}

		// A pending stop wins over a pending frame.
		if fds[0].Revents&unix.POLLIN != 0 {
			return WaitInterrupted, nil
		}
		if fds[0].Revents&unix.POLLNVAL != 0 || fds[1].Revents&unix.POLLNVAL != 0 {
			return WaitTimedOut, ErrClosed
		}
		if fds[1].Revents&unix.POLLIN != 0 {
			drain(fifo)
			return WaitSignaled, nil
		}
		return WaitTimedOut, errors.Errorf("wake signal %s reported events %#x", s.name, fds[1].Revents)
	}
}

func drain(fd int) {
	var buf [64]byte
	for {
		n, err := unix.Read(fd, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

// SignalLocal interrupts a pending or future Wait on this handle. The
// interrupt stays asserted until Close; it never reaches the producer.
func (s *Signal) SignalLocal() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	var one [8]byte
	binary.NativeEndian.PutUint64(one[:], 1)
	if _, err := unix.Write(s.stop, one[:]); err != nil && err != unix.EAGAIN {
		return errors.Wrap(err, "kick wake signal")
	}
	return nil
}

// Close releases both descriptors.
func (s *Signal) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	if err := unix.Close(s.fifo); err != nil {
		firstErr = errors.Wrap(err, "close wake signal")
	}
	if err := unix.Close(s.stop); err != nil && firstErr == nil {
		firstErr = errors.Wrap(err, "close eventfd")
	}
	return firstErr
}
