package display

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"

	"github.com/nerrad567/lumy-core/internal/infrastructure/config"
)

// FileDriver writes every frame to a PNG file. Useful on a desk without a panel.
type FileDriver struct {
	path          string
	width, height int
}

// NewFileDriver returns a driver writing to path. Clear writes a white
// frame of width x height.
func NewFileDriver(path string, width, height int) *FileDriver {
	return &FileDriver{path: path, width: width, height: height}
}

func (f *FileDriver) Name() string { return config.DisplayDriverFile }

// Init makes sure the output directory exists.
func (f *FileDriver) Init(context.Context) error {
	if f.path == "" {
		return fmt.Errorf("file driver: output path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o750); err != nil {
		return fmt.Errorf("file driver: creating output directory: %w", err)
	}
	return nil
}

func (f *FileDriver) Display(_ context.Context, img image.Image) error {
	return f.write(img)
}

func (f *FileDriver) Clear(context.Context) error {
	white := image.NewGray(image.Rect(0, 0, f.width, f.height))
	draw.Draw(white, white.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	return f.write(white)
}

func (f *FileDriver) Sleep(context.Context) error { return nil }

// write replaces the output file atomically so a reader never sees half a PNG.
func (f *FileDriver) write(img image.Image) error {
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".frame-*.png")
	if err != nil {
		return fmt.Errorf("file driver: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after rename

	if err := png.Encode(tmp, img); err != nil {
		tmp.Close() //nolint:errcheck // already failing
		return fmt.Errorf("file driver: encoding frame: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("file driver: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("file driver: %w", err)
	}
	return nil
}
