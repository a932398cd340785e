package producer

import (
	"math/rand/v2"
	"sort"

	"github.com/babelcloud/framerelay/internal/frame"
)

// Pattern fills packed pixels for frame number n.
type Pattern func(pix []byte, g frame.Geometry, n uint64)

var patterns = map[string]Pattern{
	"noise": func(pix []byte, g frame.Geometry, _ uint64) {
		Noise(pix, g)
	},
	// Colors swap every frame so a viewer visibly refreshes.
	"checkerboard": func(pix []byte, g frame.Geometry, n uint64) {
		color := byte(0x00)
		if n%2 == 1 {
			color = 0xff
		}
		Checkerboard(pix, g, color)
	},
	"gradient": func(pix []byte, g frame.Geometry, n uint64) {
		Gradient(pix, g, int(n*4))
	},
}

// PatternByName looks up a registered pattern.
func PatternByName(name string) (Pattern, bool) {
	p, ok := patterns[name]
	return p, ok
}

// PatternNames lists the registered patterns in sorted order.
func PatternNames() []string {
	names := make([]string, 0, len(patterns))
	for name := range patterns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Noise fills every byte with random data.
func Noise(pix []byte, g frame.Geometry) {
	n := g.PackedSize()
	for i := 0; i < n; i += 8 {
		v := rand.Uint64()
		for j := 0; j < 8 && i+j < n; j++ {
			pix[i+j] = byte(v >> (8 * j))
		}
	}
}

// Checkerboard draws a framed grid of twenty squares per column in color
// and its inverse, with a marker in the top-left corner so orientation
// mistakes are visible.
func Checkerboard(pix []byte, g frame.Geometry, color byte) {
	const border = 10
	inv := ^color

	cell := (g.Height - 2*border) / 20
	if cell < 1 {
		cell = 1
	}
	right := border + (g.Width-2*border)/cell*cell
	bottom := border + 20*cell

	fill(pix, g, func(x, y int) byte {
		switch {
		case x < cell/2 && y < cell/2 && (x > 0 || y > 0):
			return inv
		case x == 0 && y == 0:
			return color
		case x == 0 || y == 0 || x == g.Width-1 || y == g.Height-1:
			return inv
		case x < border || y < border || x >= right || y >= bottom:
			return color
		}
		if ((x-border)/cell+(y-border)/cell)%2 == 0 {
			return color
		}
		return inv
	})
}

// Gradient draws a diagonal ramp shifted by phase. RGB frames get a
// different ramp per channel.
func Gradient(pix []byte, g frame.Geometry, phase int) {
	bpp := g.BytesPerPixel
	rb := g.RowBytes()
	for y := 0; y < g.Height; y++ {
		row := pix[y*rb : (y+1)*rb]
		for x := 0; x < g.Width; x++ {
			if bpp == 1 {
				row[x] = byte(x + y + phase)
				continue
			}
			p := row[x*bpp : (x+1)*bpp]
			p[0] = byte(x + phase)
			p[1] = byte(y + phase)
			p[2] = byte((x+y)/2 - phase)
		}
	}
}

// fill writes value(x, y) into every channel of each pixel.
func fill(pix []byte, g frame.Geometry, value func(x, y int) byte) {
	bpp := g.BytesPerPixel
	rb := g.RowBytes()
	for y := 0; y < g.Height; y++ {
		row := pix[y*rb : (y+1)*rb]
		for x := 0; x < g.Width; x++ {
			v := value(x, y)
			for c := 0; c < bpp; c++ {
				row[x*bpp+c] = v
			}
		}
	}
}
