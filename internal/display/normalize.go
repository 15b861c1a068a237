package display

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// ColorMode selects how frames are reduced before they reach the driver.
type ColorMode string

const (
	ColorRGB      ColorMode = "rgb"
	ColorGray     ColorMode = "gray"
	ColorMono     ColorMode = "mono"
	ColorPalette7 ColorMode = "palette7"
)

// Palette7 is the seven-colour ink set of ACeP/Spectra panels.
var Palette7 = color.Palette{
	color.RGBA{0x00, 0x00, 0x00, 0xff}, // black
	color.RGBA{0xff, 0xff, 0xff, 0xff}, // white
	color.RGBA{0x00, 0xff, 0x00, 0xff}, // green
	color.RGBA{0x00, 0x00, 0xff, 0xff}, // blue
	color.RGBA{0xff, 0x00, 0x00, 0xff}, // red
	color.RGBA{0xff, 0xff, 0x00, 0xff}, // yellow
	color.RGBA{0xff, 0x80, 0x00, 0xff}, // orange
}

var paletteMono = color.Palette{color.Black, color.White}

// fitToSize returns img scaled to exactly size, anchored at the origin.
// Images already at the right size are copied onto an origin-based canvas.
func fitToSize(img image.Image, size image.Point) *image.RGBA {
	dst := image.NewRGBA(image.Rectangle{Max: size})
	b := img.Bounds()
	if b.Size() == size {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// reduceColor converts src to the panel colour mode. Palette modes use
// Floyd-Steinberg error diffusion.
func reduceColor(src *image.RGBA, mode ColorMode) image.Image {
	r := src.Bounds()
	switch mode {
	case ColorGray:
		dst := image.NewGray(r)
		draw.Draw(dst, r, src, r.Min, draw.Src)
		return dst
	case ColorMono:
		dst := image.NewPaletted(r, paletteMono)
		draw.FloydSteinberg.Draw(dst, r, src, r.Min)
		return dst
	case ColorPalette7:
		dst := image.NewPaletted(r, Palette7)
		draw.FloydSteinberg.Draw(dst, r, src, r.Min)
		return dst
	default:
		return src
	}
}

// rotate turns img clockwise by degrees (0, 90, 180 or 270) into panel
// orientation. Other values are treated as 0.
func rotate(img image.Image, degrees int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	var dst *image.RGBA
	switch degrees {
	case 90:
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
		for y := 0; y < w; y++ {
			for x := 0; x < h; x++ {
				dst.Set(x, y, img.At(b.Min.X+y, b.Min.Y+h-1-x))
			}
		}
	case 180:
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				dst.Set(x, y, img.At(b.Min.X+w-1-x, b.Min.Y+h-1-y))
			}
		}
	case 270:
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
		for y := 0; y < w; y++ {
			for x := 0; x < h; x++ {
				dst.Set(x, y, img.At(b.Min.X+w-1-y, b.Min.Y+x))
			}
		}
	default:
		return img
	}
	return dst
}

// Downscale returns img scaled to maxWidth wide, keeping the aspect ratio.
// Images already narrower are returned unchanged.
func Downscale(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return img
	}
	height := b.Dy() * maxWidth / b.Dx()
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
