package viewer

import (
	"image"
	"image/color"
	"math"

	"github.com/gdamore/tcell/v2"
)

const upperHalfBlock = '▀'

// drawImage paints img into the cell rectangle at (x0, y0) of size w x h.
// Each cell shows two pixel rows: the upper one as foreground of a half
// block, the lower one as background. Images larger than the area are
// scaled down by nearest neighbour keeping the aspect ratio; smaller
// images are drawn at one pixel per half cell.
func drawImage(screen tcell.Screen, img image.Image, x0, y0, w, h int) {
	b := img.Bounds()
	if w <= 0 || h <= 0 || b.Empty() {
		return
	}
	scale := math.Max(1, math.Max(
		float64(b.Dx())/float64(w),
		float64(b.Dy())/float64(2*h),
	))
	cols := int(float64(b.Dx()) / scale)
	rows := int(float64(b.Dy()) / scale)

	for cy := 0; cy*2 < rows; cy++ {
		top := b.Min.Y + int(float64(2*cy)*scale)
		bottom := b.Min.Y + int(float64(2*cy+1)*scale)
		for cx := 0; cx < cols; cx++ {
			px := b.Min.X + int(float64(cx)*scale)
			style := tcell.StyleDefault.Foreground(cellColor(img.At(px, top)))
			if 2*cy+1 < rows {
				style = style.Background(cellColor(img.At(px, bottom)))
			}
			screen.SetContent(x0+cx, y0+cy, upperHalfBlock, nil, style)
		}
	}
}

func cellColor(c color.Color) tcell.Color {
	r, g, b, _ := c.RGBA()
	return tcell.NewRGBColor(int32(r>>8), int32(g>>8), int32(b>>8))
}
