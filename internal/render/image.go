package render

import (
	"image"
	"image/color"
	"sync/atomic"

	"github.com/pkg/errors"
)

// ErrShortBuffer is returned when pixels cannot cover the requested geometry.
var ErrShortBuffer = errors.New("pixel buffer too small for geometry")

func checkBuffer(pix []byte, w, h, stride, bpp int) error {
	if w <= 0 || h <= 0 || stride < w*bpp {
		return errors.Errorf("bad geometry %dx%d stride %d", w, h, stride)
	}
	need := stride*(h-1) + w*bpp
	if len(pix) < need {
		return errors.Wrapf(ErrShortBuffer, "need %d bytes, have %d", need, len(pix))
	}
	return nil
}

// invalidation tracks repaint requests for an image handle.
type invalidation struct {
	generation   atomic.Uint64
	OnInvalidate func()
}

// Invalidate marks the image as changed.
func (v *invalidation) Invalidate() {
	v.generation.Add(1)
	if v.OnInvalidate != nil {
		v.OnInvalidate()
	}
}

// Generation returns how many times Invalidate was called.
func (v *invalidation) Generation() uint64 {
	return v.generation.Load()
}

// Gray is an 8-bit grayscale image over caller-owned bytes.
type Gray struct {
	*image.Gray
	invalidation
}

// NewGray wraps pix as a w x h grayscale image with the given stride.
func NewGray(pix []byte, w, h, stride int) (*Gray, error) {
	if err := checkBuffer(pix, w, h, stride, 1); err != nil {
		return nil, err
	}
	return &Gray{Gray: &image.Gray{Pix: pix, Stride: stride, Rect: image.Rect(0, 0, w, h)}}, nil
}

// RGB is a packed 24-bit RGB image over caller-owned bytes. The standard
// library has no 3-byte pixel type.
type RGB struct {
	Pix    []byte
	Stride int
	Rect   image.Rectangle
	invalidation
}

// NewRGB wraps pix as a w x h RGB image with the given stride.
func NewRGB(pix []byte, w, h, stride int) (*RGB, error) {
	if err := checkBuffer(pix, w, h, stride, 3); err != nil {
		return nil, err
	}
	return &RGB{Pix: pix, Stride: stride, Rect: image.Rect(0, 0, w, h)}, nil
}

func (p *RGB) ColorModel() color.Model { return color.RGBAModel }

func (p *RGB) Bounds() image.Rectangle { return p.Rect }

func (p *RGB) At(x, y int) color.Color {
	return p.RGBAAt(x, y)
}

// RGBAAt returns the pixel at (x, y) as an opaque color.RGBA.
func (p *RGB) RGBAAt(x, y int) color.RGBA {
	if !(image.Point{x, y}.In(p.Rect)) {
		return color.RGBA{}
	}
	i := (y-p.Rect.Min.Y)*p.Stride + (x-p.Rect.Min.X)*3
	return color.RGBA{R: p.Pix[i], G: p.Pix[i+1], B: p.Pix[i+2], A: 0xff}
}
