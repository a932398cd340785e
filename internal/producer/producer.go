// Package producer is the writing side of the frame relay: it creates the
// shared segment and wake signal, publishes frames into them and generates
// test patterns. The relay core never depends on it; it exists for the
// produce command and for exercising consumers end to end.
package producer

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/babelcloud/framerelay/internal/frame"
	"github.com/babelcloud/framerelay/internal/shm"
)

const (
	MaxWidth  = 1920
	MaxHeight = 1080

	// PayloadAlign is the alignment of the first pixel row within the segment.
	PayloadAlign = 16
)

var (
	ErrTooLarge    = errors.New("frame exceeds maximum supported size")
	ErrInvalidSize = errors.New("invalid frame size")
)

// Options describes the segment a Writer creates.
type Options struct {
	Dir         string
	SegmentName string
	SignalName  string
	Width       int
	Height      int
	Format      frame.PixelFormat
	Logger      *logrus.Entry
}

func (o Options) withDefaults() Options {
	if o.Dir == "" {
		o.Dir = shm.DefaultDir
	}
	if o.SegmentName == "" {
		o.SegmentName = shm.DefaultSegmentName
	}
	if o.SignalName == "" {
		o.SignalName = shm.DefaultSignalName
	}
	return o
}

// Layout computes the geometry a Writer publishes for a w x h frame: rows
// padded to a 32-bit boundary, payload aligned to PayloadAlign.
func Layout(w, h int, f frame.PixelFormat) (frame.Geometry, error) {
	if !f.Valid() {
		return frame.Geometry{}, errors.Wrapf(ErrInvalidSize, "unknown pixel format %d", f)
	}
	if w <= 0 || h <= 0 {
		return frame.Geometry{}, errors.Wrapf(ErrInvalidSize, "%dx%d", w, h)
	}
	if w > MaxWidth || h > MaxHeight {
		return frame.Geometry{}, errors.Wrapf(ErrTooLarge, "%dx%d, limit %dx%d", w, h, MaxWidth, MaxHeight)
	}
	return frame.Geometry{
		Width:         w,
		Height:        h,
		Stride:        alignUp(w*f.BytesPerPixel(), 4),
		BytesPerPixel: f.BytesPerPixel(),
		Format:        f,
		PayloadOffset: int64(alignUp(frame.HeaderSize, PayloadAlign)),
	}, nil
}

func alignUp(n, a int) int {
	return (n + a - 1) / a * a
}
