package widget

import (
	"image"
	"image/color"

	"github.com/nerrad567/lumy-core/internal/display"
)

const margin = 4

var (
	ink   = color.Black
	faint = color.Gray{Y: 0x60}
)

// blank returns a white image the size of bounds, anchored at the origin.
func blank(bounds image.Rectangle) *image.RGBA {
	return display.NewCanvas(bounds.Size())
}

// drawLines stacks lines from the top of img, left aligned, each at the
// largest scale up to maxScale that fits the width. Lines that would run
// off the bottom are dropped. It returns the y below the last line drawn.
func drawLines(img *image.RGBA, lines []string, y, maxScale int, c color.Color) int {
	width := img.Bounds().Dx() - 2*margin
	for _, line := range lines {
		scale := display.FitScale(line, width, maxScale)
		h := display.TextHeight(scale)
		if y+h > img.Bounds().Dy() {
			break
		}
		display.DrawText(img, line, image.Pt(margin, y), scale, c)
		y += h + margin
	}
	return y
}

// drawHero draws text as large as the band allows, centred, and returns
// the y below it.
func drawHero(img *image.RGBA, text string, y int, share float64) int {
	b := img.Bounds()
	maxScale := int(float64(b.Dy())*share) / display.TextHeight(1)
	if maxScale < 1 {
		maxScale = 1
	}
	scale := display.FitScale(text, b.Dx()-2*margin, maxScale)
	display.DrawCentered(img, text, b, y, scale, ink)
	return y + display.TextHeight(scale) + margin
}
