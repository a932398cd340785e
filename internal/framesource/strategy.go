package framesource

import (
	"image"

	"github.com/babelcloud/framerelay/internal/frame"
	"github.com/babelcloud/framerelay/internal/render"
)

// Strategy selects how frame bytes reach the rendering layer.
type Strategy int

const (
	// StrategyZeroCopy hands the renderer a view of the mapped payload.
	// Images alias producer memory and die with the source.
	StrategyZeroCopy Strategy = iota
	// StrategyCopy keeps a packed scratch buffer refreshed from the segment
	// on every notification.
	StrategyCopy
)

func (s Strategy) String() string {
	switch s {
	case StrategyCopy:
		return "copy"
	default:
		return "zerocopy"
	}
}

// target is the render-side state produced by a strategy.
type target struct {
	image   image.Image
	scratch []byte
}

func buildTarget(s Strategy, r render.Renderer, payload []byte, g frame.Geometry) (target, error) {
	if s == StrategyCopy {
		scratch := make([]byte, g.PackedSize())
		copyRows(scratch, payload, g)
		img, err := r.NewBufferImage(scratch, g)
		return target{image: img, scratch: scratch}, err
	}
	img, err := r.NewSectionImage(payload, g)
	return target{image: img}, err
}

// copyRows strips stride padding while copying the strided payload into a
// packed buffer.
func copyRows(dst, src []byte, g frame.Geometry) {
	rb := g.RowBytes()
	for y := 0; y < g.Height; y++ {
		copy(dst[y*rb:(y+1)*rb], src[y*g.Stride:y*g.Stride+rb])
	}
}
