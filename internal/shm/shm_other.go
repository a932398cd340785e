//go:build !linux

package shm

import "time"

// Segment is unavailable on this platform.
type Segment struct{}

// OpenSegment always fails with ErrUnsupportedPlatform.
func OpenSegment(dir, name string) (*Segment, error) {
	return nil, ErrUnsupportedPlatform
}

func (s *Segment) Name() string { return "" }

func (s *Segment) Size() int64 { return 0 }

func (s *Segment) View(offset, length int64) ([]byte, error) {
	return nil, ErrUnsupportedPlatform
}

func (s *Segment) RawAddress() uintptr { return 0 }

func (s *Segment) Close() error { return nil }

// Signal is unavailable on this platform.
type Signal struct{}

// OpenSignal always fails with ErrUnsupportedPlatform.
func OpenSignal(dir, name string) (*Signal, error) {
	return nil, ErrUnsupportedPlatform
}

func (s *Signal) Name() string { return "" }

func (s *Signal) Wait(timeout time.Duration) (WaitResult, error) {
	return WaitTimedOut, ErrUnsupportedPlatform
}

func (s *Signal) SignalLocal() error { return ErrUnsupportedPlatform }

func (s *Signal) Close() error { return nil }
