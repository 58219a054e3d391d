// Package imaging implements the pixel transforms applied by the worker
// service. Payloads travel through the broker as base64-encoded PNG data,
// so every transform decodes, mutates, and re-encodes in one pass.
package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/draw"
	"image/png"

	"github.com/ngthanhbui/imageflow-be/internal/worker/domain"
)

// Operation names accepted by Apply.
const (
	OpGrayscale      = "grayscale"
	OpInvert         = "invert"
	OpFlipHorizontal = "fliph"
	OpFlipVertical   = "flipv"
)

// Supported reports whether the named operation has a transform.
func Supported(operation string) bool {
	switch operation {
	case OpGrayscale, OpInvert, OpFlipHorizontal, OpFlipVertical:
		return true
	}
	return false
}

// Apply decodes the base64 PNG payload, applies the named transform and
// returns the result as a base64 PNG. The output image always has the same
// bounds as the input.
func Apply(operation, payload string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: decode base64: %v", domain.ErrInvalidPayload, err)
	}

	src, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("%w: decode png: %v", domain.ErrInvalidPayload, err)
	}

	var dst image.Image
	switch operation {
	case OpGrayscale:
		dst = grayscale(src)
	case OpInvert:
		dst = invert(src)
	case OpFlipHorizontal:
		dst = flipHorizontal(src)
	case OpFlipVertical:
		dst = flipVertical(src)
	default:
		return "", fmt.Errorf("%w: %s", domain.ErrUnsupportedOperation, operation)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func grayscale(src image.Image) image.Image {
	bounds := src.Bounds()
	dst := image.NewGray(bounds)
	draw.Draw(dst, bounds, src, bounds.Min, draw.Src)
	return dst
}

func invert(src image.Image) image.Image {
	bounds := src.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, src, bounds.Min, draw.Src)
	pix := dst.Pix
	for i := 0; i < len(pix); i += 4 {
		pix[i] = 255 - pix[i]
		pix[i+1] = 255 - pix[i+1]
		pix[i+2] = 255 - pix[i+2]
	}
	return dst
}

func flipHorizontal(src image.Image) image.Image {
	bounds := src.Bounds()
	dst := image.NewRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			dst.Set(bounds.Max.X-1-(x-bounds.Min.X), y, src.At(x, y))
		}
	}
	return dst
}

func flipVertical(src image.Image) image.Image {
	bounds := src.Bounds()
	dst := image.NewRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			dst.Set(x, bounds.Max.Y-1-(y-bounds.Min.Y), src.At(x, y))
		}
	}
	return dst
}
