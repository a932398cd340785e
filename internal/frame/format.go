package frame

import "fmt"

// PixelFormat identifies the fixed pixel layout agreed upon with the producer.
type PixelFormat int

const (
	// Gray8 is 8-bit single-channel grayscale, one plane.
	Gray8 PixelFormat = iota
	// RGB24 is 8-bit R, G, B packed per pixel.
	RGB24
)

// DefaultFormat is the layout the producer writes unless configured otherwise.
const DefaultFormat = Gray8

// BitsPerPixel returns the number of bits one pixel occupies.
func (f PixelFormat) BitsPerPixel() int {
	switch f {
	case RGB24:
		return 24
	default:
		return 8
	}
}

// BytesPerPixel returns ceil(BitsPerPixel/8).
func (f PixelFormat) BytesPerPixel() int {
	return (f.BitsPerPixel() + 7) / 8
}

// Planes returns the plane count the producer stamps into the header.
func (f PixelFormat) Planes() int {
	if f == RGB24 {
		return 3
	}
	return 1
}

func (f PixelFormat) String() string {
	switch f {
	case Gray8:
		return "gray8"
	case RGB24:
		return "rgb24"
	default:
		return fmt.Sprintf("PixelFormat(%d)", int(f))
	}
}

// Valid reports whether f is a known format.
func (f PixelFormat) Valid() bool {
	return f == Gray8 || f == RGB24
}
