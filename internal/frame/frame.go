// Package frame prepares captured video frames for region OCR: decoding,
// normalizing to the catalog's coordinate frame, and cropping regions.
package frame

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/hoovercj/streamABLE/internal/regions"
)

// Decode decodes a frame in any registered format (PNG, JPEG, GIF, BMP, WebP).
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("empty frame")
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode frame: %w", err)
	}
	return img, format, nil
}

// Normalize converts img to grayscale and scales it to the normalized
// regions.NormalizedWidth x regions.NormalizedHeight frame. CatmullRom
// widens its support when shrinking, so 4K captures are averaged over each
// source area instead of sampled.
func Normalize(img image.Image) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, regions.NormalizedWidth, regions.NormalizedHeight))
	b := img.Bounds()
	if b.Dx() == regions.NormalizedWidth && b.Dy() == regions.NormalizedHeight {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// Crop returns the part of frame covered by bounds. The returned image
// shares pixels with frame.
func Crop(frame *image.Gray, bounds regions.BoundingBox) (*image.Gray, error) {
	if bounds.Width <= 0 || bounds.Height <= 0 {
		return nil, fmt.Errorf("empty region %dx%d", bounds.Width, bounds.Height)
	}
	rect := image.Rect(bounds.X, bounds.Y, bounds.X+bounds.Width, bounds.Y+bounds.Height)
	if !rect.In(frame.Bounds()) {
		return nil, fmt.Errorf("region %v outside frame %v", rect, frame.Bounds())
	}
	return frame.SubImage(rect).(*image.Gray), nil
}

// EncodePNG encodes img for the OCR engine
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode region: %w", err)
	}
	return buf.Bytes(), nil
}
