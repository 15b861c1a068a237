package display

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Glyph metrics of basicfont.Face7x13.
const (
	glyphHeight = 13
	glyphAscent = 11
)

// TextWidth returns the width in pixels of s drawn at scale.
func TextWidth(s string, scale int) int {
	if scale < 1 {
		scale = 1
	}
	return font.MeasureString(basicfont.Face7x13, s).Ceil() * scale
}

// TextHeight returns the line height in pixels at scale.
func TextHeight(scale int) int {
	if scale < 1 {
		scale = 1
	}
	return glyphHeight * scale
}

// DrawText draws s with its top-left corner at pt, magnified by scale using
// nearest-neighbour so the bitmap font stays crisp on e-paper.
func DrawText(dst draw.Image, s string, pt image.Point, scale int, c color.Color) {
	if s == "" {
		return
	}
	if scale < 1 {
		scale = 1
	}

	w := font.MeasureString(basicfont.Face7x13, s).Ceil()
	glyphs := image.NewRGBA(image.Rect(0, 0, w, glyphHeight))
	d := &font.Drawer{
		Dst:  glyphs,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(0, glyphAscent),
	}
	d.DrawString(s)

	target := image.Rect(pt.X, pt.Y, pt.X+w*scale, pt.Y+glyphHeight*scale)
	draw.NearestNeighbor.Scale(dst, target, glyphs, glyphs.Bounds(), draw.Over, nil)
}

// DrawCentered draws s horizontally centred in r with its top at y.
func DrawCentered(dst draw.Image, s string, r image.Rectangle, y, scale int, c color.Color) {
	x := r.Min.X + (r.Dx()-TextWidth(s, scale))/2
	if x < r.Min.X {
		x = r.Min.X
	}
	DrawText(dst, s, image.Point{X: x, Y: y}, scale, c)
}

// FitScale returns the largest scale, up to maxScale, at which s fits in width.
func FitScale(s string, width, maxScale int) int {
	for scale := maxScale; scale > 1; scale-- {
		if TextWidth(s, scale) <= width {
			return scale
		}
	}
	return 1
}

// Fill paints r with c.
func Fill(dst draw.Image, r image.Rectangle, c color.Color) {
	draw.Draw(dst, r, image.NewUniform(c), image.Point{}, draw.Src)
}

// NewCanvas returns a white RGBA image of size.
func NewCanvas(size image.Point) *image.RGBA {
	img := image.NewRGBA(image.Rectangle{Max: size})
	Fill(img, img.Bounds(), color.White)
	return img
}
