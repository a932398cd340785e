//go:build linux

package shm

import (
	"os"
	"sync"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Segment is a read-only mapping of a producer-owned shared segment.
// Slices returned by View alias the mapping and must not be used after Close.
type Segment struct {
	mu   sync.RWMutex
	name string
	file *os.File
	data []byte
}

// OpenSegment maps the existing segment dir/name for reading.
func OpenSegment(dir, name string) (*Segment, error) {
	path := Path(dir, name)

	file, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, classify(err, ErrSegmentNotFound, path)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, errors.Wrapf(err, "stat %s", path)
	}
	if !info.Mode().IsRegular() {
		file.Close()
		return nil, errors.Wrapf(ErrSegmentNotFound, "%s is not a memory segment", path)
	}
	if info.Size() == 0 {
		file.Close()
		return nil, errors.Wrapf(ErrOutOfRange, "%s is empty", path)
	}

	data, err := unix.Mmap(int(file.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		if err == unix.EACCES || err == unix.EPERM {
			return nil, errors.Wrap(ErrAccessDenied, path)
		}
		return nil, errors.Wrapf(err, "mmap %s", path)
	}

	return &Segment{name: name, file: file, data: data}, nil
}

// Name returns the segment name the handle was opened with.
func (s *Segment) Name() string {
	return s.name
}

// Size returns the mapped extent in bytes, 0 once closed.
func (s *Segment) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.data))
}

// View returns length bytes starting at offset. A zero length extends the
// view to the end of the mapping.
func (s *Segment) View(offset, length int64) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.data == nil {
		return nil, ErrClosed
	}
	size := int64(len(s.data))
	if offset < 0 || length < 0 || offset > size {
		return nil, errors.Wrapf(ErrOutOfRange, "view [%d,+%d) of %d bytes", offset, length, size)
	}
	if length == 0 {
		length = size - offset
	}
	if offset+length > size {
		return nil, errors.Wrapf(ErrOutOfRange, "view [%d,+%d) of %d bytes", offset, length, size)
	}
	end := offset + length
	return s.data[offset:end:end], nil
}

// RawAddress returns the base address of the mapping for renderers that
// need a pointer. It is 0 once the segment is closed.
func (s *Segment) RawAddress() uintptr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.data) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&s.data[0]))
}

// Close unmaps the view and releases the descriptor. The segment itself
// stays alive until the producer removes it.
func (s *Segment) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	if s.data != nil {
		if err := unix.Munmap(s.data); err != nil {
			firstErr = errors.Wrap(err, "munmap")
		}
		s.data = nil
	}
	if s.file != nil {
		if err := s.file.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, "close segment")
		}
		s.file = nil
	}
	return firstErr
}
