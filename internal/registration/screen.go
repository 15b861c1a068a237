package registration

import (
	"image"
	"image/color"

	"github.com/nerrad567/lumy-core/internal/display"
)

var (
	accent = color.RGBA{R: 0xff, G: 0x64, A: 0xff}
	link   = color.RGBA{G: 0x64, B: 0xc8, A: 0xff}
	muted  = color.Gray{Y: 0x80}
)

// PairingScreen draws the welcome screen: a title, where to go, the code in
// a box and the device id.
func PairingScreen(size image.Point, code Code, pairingURL, deviceID string) image.Image {
	img := display.NewCanvas(size)
	bounds := img.Bounds()
	width := bounds.Dx() - 16

	// Vertical layout in fractions of the panel height.
	row := func(f float64) int { return int(float64(bounds.Dy()) * f) }
	lineScale := func(s string, share float64) int {
		maxScale := row(share) / display.TextHeight(1)
		return display.FitScale(s, width, max(maxScale, 1))
	}

	title := "Welcome to Lumy"
	display.DrawCentered(img, title, bounds, row(0.04), lineScale(title, 0.18), color.Black)

	howto := "To register:"
	display.DrawCentered(img, howto, bounds, row(0.28), lineScale(howto, 0.1), color.Black)
	if pairingURL != "" {
		display.DrawCentered(img, pairingURL, bounds, row(0.40), lineScale(pairingURL, 0.1), link)
	}

	text := string(code)
	scale := lineScale(text, 0.2)
	w, h := display.TextWidth(text, scale), display.TextHeight(scale)
	top := row(0.58)
	pad := max(scale*2, 4)
	box := image.Rect(bounds.Dx()/2-w/2-pad, top-pad, bounds.Dx()/2+w/2+pad, top+h+pad)
	outline(img, box, max(scale, 2), accent)
	display.DrawCentered(img, text, bounds, top, scale, accent)

	id := "Device: " + deviceID
	display.DrawCentered(img, id, bounds, row(0.88), lineScale(id, 0.08), muted)

	return img
}

// outline draws a rectangle border of thickness t inside r.
func outline(img *image.RGBA, r image.Rectangle, t int, c color.Color) {
	r = r.Intersect(img.Bounds())
	display.Fill(img, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t), c)
	display.Fill(img, image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y), c)
	display.Fill(img, image.Rect(r.Min.X, r.Min.Y, r.Min.X+t, r.Max.Y), c)
	display.Fill(img, image.Rect(r.Max.X-t, r.Min.Y, r.Max.X, r.Max.Y), c)
}
