package frame

import (
	"encoding/binary"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeRaw(kind, w, h, stride, planes, bits int32, offset int64) []byte {
	b := make([]byte, HeaderSize)
	le := binary.LittleEndian
	le.PutUint32(b[0:], uint32(kind))
	le.PutUint32(b[4:], uint32(w))
	le.PutUint32(b[8:], uint32(h))
	le.PutUint32(b[12:], uint32(stride))
	le.PutUint32(b[16:], uint32(planes))
	le.PutUint32(b[20:], uint32(bits))
	le.PutUint64(b[24:], uint64(offset))
	return b
}

func TestParseValidHeaders(t *testing.T) {
	tests := []struct {
		name       string
		raw        []byte
		format     PixelFormat
		wantStride int
		wantOffset int64
	}{
		{"gray8 explicit stride", encodeRaw(0, 64, 32, 64, 1, 8, 48), Gray8, 64, 48},
		{"gray8 padded stride", encodeRaw(0, 1278, 960, 1280, 1, 8, 48), Gray8, 1280, 48},
		{"gray8 derived stride", encodeRaw(0, 64, 32, 0, 1, 8, 0), Gray8, 64, HeaderSize},
		{"gray8 odd width derived stride", encodeRaw(0, 63, 10, 0, 1, 8, 0), Gray8, 64, HeaderSize},
		{"rgb24", encodeRaw(0, 10, 10, 32, 3, 24, 64), RGB24, 32, 64},
		{"rgb24 derived stride", encodeRaw(0, 5, 2, 0, 3, 24, 0), RGB24, 16, HeaderSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := ParseFormat(tt.raw, tt.format)
			require.NoError(t, err)

			g := h.Geometry()
			assert.Equal(t, tt.wantStride, g.Stride)
			assert.Equal(t, tt.wantOffset, g.PayloadOffset)
			assert.GreaterOrEqual(t, g.Stride, g.Width*g.BytesPerPixel)
			assert.Zero(t, g.Stride%2)
			assert.Equal(t, tt.format, g.Format)
		})
	}
}

func TestParseGeometryInvariantHoldsForAllSmallDimensions(t *testing.T) {
	for w := int32(1); w <= 33; w++ {
		for h := int32(1); h <= 5; h++ {
			hdr, err := Parse(encodeRaw(0, w, h, 0, 1, 8, 0))
			require.NoError(t, err)
			g := hdr.Geometry()
			assert.GreaterOrEqual(t, g.Stride, g.Width*g.BytesPerPixel, "w=%d", w)
			assert.Zero(t, g.Stride%2, "w=%d", w)
		}
	}
}

func TestParseShortInput(t *testing.T) {
	full := encodeRaw(0, 64, 32, 64, 1, 8, 0)
	for n := 0; n < HeaderSize; n++ {
		// Slice with no spare capacity so any read past len would panic.
		b := full[:n:n]
		_, err := Parse(b)
		assert.True(t, errors.Is(err, ErrMalformedHeader), "len=%d: %v", n, err)
	}
	_, err := Parse(nil)
	assert.True(t, errors.Is(err, ErrMalformedHeader))
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want error
	}{
		{"unknown kind", encodeRaw(1, 64, 32, 64, 1, 8, 0), ErrUnsupportedKind},
		{"zero width", encodeRaw(0, 0, 32, 64, 1, 8, 0), ErrInvalidGeometry},
		{"negative height", encodeRaw(0, 64, -1, 64, 1, 8, 0), ErrInvalidGeometry},
		{"no planes", encodeRaw(0, 64, 32, 64, 0, 8, 0), ErrInvalidGeometry},
		{"wrong bits", encodeRaw(0, 64, 32, 64, 1, 24, 0), ErrInvalidGeometry},
		{"short stride", encodeRaw(0, 64, 32, 62, 1, 8, 0), ErrInvalidGeometry},
		{"odd stride", encodeRaw(0, 63, 32, 63, 1, 8, 0), ErrInvalidGeometry},
		{"offset inside header", encodeRaw(0, 64, 32, 64, 1, 8, 16), ErrInvalidGeometry},
		{"negative offset", encodeRaw(0, 64, 32, 64, 1, 8, -8), ErrInvalidGeometry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestEncodeRoundTripsThroughParse(t *testing.T) {
	b := make([]byte, HeaderSize)
	require.NoError(t, Encode(NewHeader(640, 480, 640, Gray8, 48), b))

	h, err := Parse(b)
	require.NoError(t, err)
	g := h.Geometry()
	assert.Equal(t, 640, g.Width)
	assert.Equal(t, 480, g.Height)
	assert.Equal(t, int64(640*480), g.Size())
	assert.Equal(t, int32(1), h.Planes)

	assert.True(t, errors.Is(Encode(h, b[:8]), ErrMalformedHeader))
}

func TestPixelFormat(t *testing.T) {
	assert.Equal(t, 1, Gray8.BytesPerPixel())
	assert.Equal(t, 3, RGB24.BytesPerPixel())
	assert.Equal(t, 3, RGB24.Planes())
	assert.Equal(t, "gray8", Gray8.String())
	assert.False(t, PixelFormat(7).Valid())
}
