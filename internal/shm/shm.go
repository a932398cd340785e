// Package shm opens the producer's named shared-memory segment and its
// companion wake signal. Both objects are created and owned by the producer;
// this package only holds local handles to them.
//
// A segment is a file under a shared-memory directory (/dev/shm by default)
// mapped read-only. A wake signal is a FIFO in the same directory: the
// producer writes a byte after each frame. Stopping a waiter uses a separate
// process-local eventfd so a shutdown kick is never mistaken for a frame.
package shm

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// DefaultDir is where POSIX shared memory objects live on Linux.
const DefaultDir = "/dev/shm"

// Names a producer and consumer agree on when nothing else is configured.
const (
	DefaultSegmentName = "video-bitmap"
	DefaultSignalName  = "video-ready"
)

// DefaultWaitTimeout bounds Wait when the caller passes a non-positive timeout.
const DefaultWaitTimeout = 100 * time.Millisecond

var (
	ErrSegmentNotFound     = errors.New("shared segment not found")
	ErrSignalNotFound      = errors.New("wake signal not found")
	ErrAccessDenied        = errors.New("access denied")
	ErrOutOfRange          = errors.New("range outside mapped segment")
	ErrClosed              = errors.New("handle closed")
	ErrUnsupportedPlatform = errors.New("shared memory transport not supported on this platform")
)

// WaitResult reports why Wait returned.
type WaitResult int

const (
	// WaitTimedOut means nothing happened within the timeout.
	WaitTimedOut WaitResult = iota
	// WaitSignaled means the producer announced at least one new frame.
	WaitSignaled
	// WaitInterrupted means SignalLocal was called on this handle.
	WaitInterrupted
)

func (r WaitResult) String() string {
	switch r {
	case WaitSignaled:
		return "signaled"
	case WaitInterrupted:
		return "interrupted"
	default:
		return "timed-out"
	}
}

// Path joins a shared-memory directory and object name.
func Path(dir, name string) string {
	if dir == "" {
		dir = DefaultDir
	}
	return filepath.Join(dir, name)
}

// classify maps an open/stat error onto the package taxonomy.
func classify(err error, notFound error, path string) error {
	switch {
	case os.IsNotExist(err):
		return errors.Wrap(notFound, path)
	case os.IsPermission(err):
		return errors.Wrap(ErrAccessDenied, path)
	default:
		return errors.Wrapf(err, "open %s", path)
	}
}
