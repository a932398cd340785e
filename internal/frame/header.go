// Package frame decodes the fixed bitmap header the producer writes at the
// start of the shared segment.
//
// Shared segment layout:
//
//	Offset          Data            Size
//	---------------------------------------------------
//	+0              Header          32 bytes
//	+32             padding         up to PayloadOffset
//	+PayloadOffset  pixel rows      Stride * Height
//
// All integers are little-endian. The layout has no version field; a
// different layout needs a different segment name.
package frame

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// HeaderSize is the size of the encoded header in bytes.
const HeaderSize = 32

// KindBitmap is the only recognized header kind.
const KindBitmap = 0

var (
	ErrMalformedHeader = errors.New("malformed frame header")
	ErrUnsupportedKind = errors.New("unsupported frame kind")
	ErrInvalidGeometry = errors.New("invalid frame geometry")
)

// Header mirrors the on-segment record field by field.
type Header struct {
	Kind          int32
	Width         int32
	Height        int32
	Stride        int32
	Planes        int32
	BitsPerPixel  int32
	PayloadOffset int64

	format PixelFormat
}

// Geometry is the validated, derived view of a header.
type Geometry struct {
	Width         int
	Height        int
	Stride        int
	BytesPerPixel int
	Format        PixelFormat
	PayloadOffset int64
}

// Size returns the number of payload bytes, padding included.
func (g Geometry) Size() int64 {
	return int64(g.Stride) * int64(g.Height)
}

// RowBytes returns the number of meaningful bytes in one scan line.
func (g Geometry) RowBytes() int {
	return g.Width * g.BytesPerPixel
}

// PackedSize returns the size of the pixel data with padding stripped.
func (g Geometry) PackedSize() int {
	return g.RowBytes() * g.Height
}

// Parse decodes b against DefaultFormat.
func Parse(b []byte) (Header, error) {
	return ParseFormat(b, DefaultFormat)
}

// ParseFormat decodes and validates a header whose pixels must be laid out
// as want.
func ParseFormat(b []byte, want PixelFormat) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, errors.Wrapf(ErrMalformedHeader, "need %d bytes, got %d", HeaderSize, len(b))
	}
	le := binary.LittleEndian
	h := Header{
		Kind:          int32(le.Uint32(b[0:4])),
		Width:         int32(le.Uint32(b[4:8])),
		Height:        int32(le.Uint32(b[8:12])),
		Stride:        int32(le.Uint32(b[12:16])),
		Planes:        int32(le.Uint32(b[16:20])),
		BitsPerPixel:  int32(le.Uint32(b[20:24])),
		PayloadOffset: int64(le.Uint64(b[24:32])),
		format:        want,
	}
	if err := h.validate(want); err != nil {
		return Header{}, err
	}
	return h, nil
}

func (h Header) validate(want PixelFormat) error {
	if h.Kind != KindBitmap {
		return errors.Wrapf(ErrUnsupportedKind, "kind %d", h.Kind)
	}
	if h.Width <= 0 || h.Height <= 0 {
		return errors.Wrapf(ErrInvalidGeometry, "dimensions %dx%d", h.Width, h.Height)
	}
	if h.Planes < 1 {
		return errors.Wrapf(ErrInvalidGeometry, "planes %d", h.Planes)
	}
	if !want.Valid() || int(h.BitsPerPixel) != want.BitsPerPixel() {
		return errors.Wrapf(ErrInvalidGeometry, "%d bits per pixel, expected %s", h.BitsPerPixel, want)
	}
	if h.Stride != 0 {
		minStride := int64(h.Width) * int64(want.BytesPerPixel())
		if int64(h.Stride) < minStride {
			return errors.Wrapf(ErrInvalidGeometry, "stride %d shorter than row of %d bytes", h.Stride, minStride)
		}
		// Scan lines are word aligned.
		if h.Stride%2 != 0 {
			return errors.Wrapf(ErrInvalidGeometry, "stride %d is not word aligned", h.Stride)
		}
	}
	if h.PayloadOffset < 0 || (h.PayloadOffset > 0 && h.PayloadOffset < HeaderSize) {
		return errors.Wrapf(ErrInvalidGeometry, "payload offset %d overlaps header", h.PayloadOffset)
	}
	return nil
}

// Format returns the pixel format the header was validated against.
func (h Header) Format() PixelFormat {
	return h.format
}

// Geometry derives the frame geometry. A zero stride is replaced by the
// packed row size rounded up to a word; a zero offset means the payload
// follows the header directly.
func (h Header) Geometry() Geometry {
	bpp := (int(h.BitsPerPixel) + 7) / 8
	stride := int(h.Stride)
	if stride == 0 {
		stride = bpp * int(h.Width)
		stride += stride % 2
	}
	offset := h.PayloadOffset
	if offset == 0 {
		offset = HeaderSize
	}
	return Geometry{
		Width:         int(h.Width),
		Height:        int(h.Height),
		Stride:        stride,
		BytesPerPixel: bpp,
		Format:        h.format,
		PayloadOffset: offset,
	}
}

// NewHeader builds the header a producer writes for a w x h frame whose
// rows are stride bytes apart, starting at offset.
func NewHeader(w, h, stride int, f PixelFormat, offset int64) Header {
	return Header{
		Kind:          KindBitmap,
		Width:         int32(w),
		Height:        int32(h),
		Stride:        int32(stride),
		Planes:        int32(f.Planes()),
		BitsPerPixel:  int32(f.BitsPerPixel()),
		PayloadOffset: offset,
		format:        f,
	}
}

// Encode writes h into the first HeaderSize bytes of b.
func Encode(h Header, b []byte) error {
	if len(b) < HeaderSize {
		return errors.Wrapf(ErrMalformedHeader, "need %d bytes, got %d", HeaderSize, len(b))
	}
	le := binary.LittleEndian
	le.PutUint32(b[0:4], uint32(h.Kind))
	le.PutUint32(b[4:8], uint32(h.Width))
	le.PutUint32(b[8:12], uint32(h.Height))
	le.PutUint32(b[12:16], uint32(h.Stride))
	le.PutUint32(b[16:20], uint32(h.Planes))
	le.PutUint32(b[20:24], uint32(h.BitsPerPixel))
	le.PutUint64(b[24:32], uint64(h.PayloadOffset))
	return nil
}
