//go:build !linux

package producer

import (
	"github.com/babelcloud/framerelay/internal/frame"
	"github.com/babelcloud/framerelay/internal/shm"
)

// Writer is unavailable on this platform.
type Writer struct{}

// Create always fails with shm.ErrUnsupportedPlatform.
func Create(opts Options) (*Writer, error) {
	return nil, shm.ErrUnsupportedPlatform
}

func (w *Writer) Geometry() frame.Geometry {
	return frame.Geometry{}
}

func (w *Writer) Frames() uint64 {
	return 0
}

func (w *Writer) WriteImage(pix []byte) error {
	return shm.ErrUnsupportedPlatform
}

func (w *Writer) SignalReady() error {
	return shm.ErrUnsupportedPlatform
}

func (w *Writer) Close() error {
	return nil
}
