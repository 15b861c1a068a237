package display

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func TestFileDriver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "display.png")
	d := NewFileDriver(path, 40, 20)
	ctx := context.Background()

	if err := d.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := d.Display(ctx, solid(40, 20, color.Black)); err != nil {
		t.Fatalf("Display() error = %v", err)
	}
	assertPNGSize(t, path, image.Point{X: 40, Y: 20})

	if err := d.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	img := assertPNGSize(t, path, image.Point{X: 40, Y: 20})
	if r, g, b, _ := img.At(5, 5).RGBA(); r != 0xffff || g != 0xffff || b != 0xffff {
		t.Error("Clear() did not write a white frame")
	}

	if err := d.Sleep(ctx); err != nil {
		t.Errorf("Sleep() error = %v", err)
	}
}

func TestFileDriver_EmptyPath(t *testing.T) {
	if err := NewFileDriver("", 1, 1).Init(context.Background()); err == nil {
		t.Error("Init() with empty path expected error")
	}
}

func assertPNGSize(t *testing.T, path string, want image.Point) image.Image {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if got := img.Bounds().Size(); got != want {
		t.Errorf("output size = %v, want %v", got, want)
	}
	return img
}

func TestDownscale(t *testing.T) {
	out := Downscale(solid(800, 480, color.White), 400)
	if got := out.Bounds().Size(); got != (image.Point{X: 400, Y: 240}) {
		t.Errorf("Downscale() size = %v, want 400x240", got)
	}

	small := solid(100, 50, color.White)
	if Downscale(small, 400) != small {
		t.Error("Downscale() should return narrow images unchanged")
	}
}

func TestDrawText(t *testing.T) {
	if got := TextWidth("ABC", 2); got != 42 {
		t.Errorf("TextWidth() = %d, want 42", got)
	}
	if got := TextHeight(3); got != 39 {
		t.Errorf("TextHeight() = %d, want 39", got)
	}

	canvas := NewCanvas(image.Point{X: 100, Y: 40})
	DrawText(canvas, "XYZ-234", image.Point{X: 2, Y: 2}, 2, color.Black)

	dark := 0
	for y := 0; y < 40; y++ {
		for x := 0; x < 100; x++ {
			if r, _, _, _ := canvas.At(x, y).RGBA(); r < 0x8000 {
				dark++
			}
		}
	}
	if dark == 0 {
		t.Error("DrawText() drew nothing")
	}

	if got := FitScale("ABCDEFGHIJ", 100, 4); got != 1 {
		t.Errorf("FitScale() = %d, want 1 (70px at scale 1)", got)
	}
}
