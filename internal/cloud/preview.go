package cloud

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"

	"github.com/nerrad567/lumy-core/internal/display"
)

// EncodePreview downscales img to at most maxWidth pixels wide and returns
// it as a PNG data URL, ready for the dashboard to use as an image source.
func EncodePreview(img image.Image, maxWidth int) (string, error) {
	if img == nil {
		return "", fmt.Errorf("encoding preview: %w", display.ErrNilImage)
	}
	small := display.Downscale(img, maxWidth)

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, small); err != nil {
		return "", fmt.Errorf("encoding preview: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
