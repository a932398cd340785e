// Package render defines what the frame source needs from a rendering layer
// and ships a default implementation backed by the standard image types.
package render

import (
	"image"

	"github.com/babelcloud/framerelay/internal/frame"
)

// Renderer constructs image handles over frame bytes.
type Renderer interface {
	// NewSectionImage wraps pix without copying. pix aliases shared memory
	// and is only valid while the segment it came from is open. Rows are
	// g.Stride bytes apart.
	NewSectionImage(pix []byte, g frame.Geometry) (image.Image, error)

	// NewBufferImage wraps a buffer owned by the frame source. Rows are
	// packed (g.RowBytes() apart).
	NewBufferImage(pix []byte, g frame.Geometry) (image.Image, error)
}

// Invalidator is implemented by image handles that can be told their
// backing pixels changed.
type Invalidator interface {
	Invalidate()
}

// Default is a Renderer producing *Gray and *RGB images.
type Default struct {
	// OnInvalidate, if set, is attached to every image the renderer creates.
	OnInvalidate func()
}

// NewSectionImage implements Renderer.
func (d Default) NewSectionImage(pix []byte, g frame.Geometry) (image.Image, error) {
	return d.newImage(pix, g, g.Stride)
}

// NewBufferImage implements Renderer.
func (d Default) NewBufferImage(pix []byte, g frame.Geometry) (image.Image, error) {
	return d.newImage(pix, g, g.RowBytes())
}

func (d Default) newImage(pix []byte, g frame.Geometry, stride int) (image.Image, error) {
	switch g.Format {
	case frame.RGB24:
		img, err := NewRGB(pix, g.Width, g.Height, stride)
		if err != nil {
			return nil, err
		}
		img.OnInvalidate = d.OnInvalidate
		return img, nil
	default:
		img, err := NewGray(pix, g.Width, g.Height, stride)
		if err != nil {
			return nil, err
		}
		img.OnInvalidate = d.OnInvalidate
		return img, nil
	}
}
