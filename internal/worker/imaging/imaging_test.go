package imaging

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngthanhbui/imageflow-be/internal/worker/domain"
)

func encodeTestImage(t *testing.T, img image.Image) string {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func decodeResult(t *testing.T, payload string) image.Image {
	t.Helper()

	raw, err := base64.StdEncoding.DecodeString(payload)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	return img
}

func newTestImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 60), G: uint8(y * 100), B: 50, A: 255})
		}
	}
	return img
}

func TestApplyPreservesBounds(t *testing.T) {
	src := newTestImage()
	payload := encodeTestImage(t, src)

	for _, op := range []string{OpGrayscale, OpInvert, OpFlipHorizontal, OpFlipVertical} {
		t.Run(op, func(t *testing.T) {
			result, err := Apply(op, payload)
			require.NoError(t, err)

			out := decodeResult(t, result)
			assert.Equal(t, src.Bounds().Dx(), out.Bounds().Dx())
			assert.Equal(t, src.Bounds().Dy(), out.Bounds().Dy())
		})
	}
}

func TestApplyInvert(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 1, 1))
	src.Set(0, 0, color.RGBA{R: 10, G: 20, B: 30, A: 255})

	result, err := Apply(OpInvert, encodeTestImage(t, src))
	require.NoError(t, err)

	out := decodeResult(t, result)
	r, g, b, _ := out.At(0, 0).RGBA()
	assert.Equal(t, uint32(245), r>>8)
	assert.Equal(t, uint32(235), g>>8)
	assert.Equal(t, uint32(225), b>>8)
}

func TestApplyFlipHorizontal(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 1))
	src.Set(0, 0, color.RGBA{R: 255, A: 255})
	src.Set(1, 0, color.RGBA{B: 255, A: 255})

	result, err := Apply(OpFlipHorizontal, encodeTestImage(t, src))
	require.NoError(t, err)

	out := decodeResult(t, result)
	r, _, b, _ := out.At(0, 0).RGBA()
	assert.Equal(t, uint32(0), r>>8)
	assert.Equal(t, uint32(255), b>>8)
}

func TestApplyFlipVertical(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 1, 2))
	src.Set(0, 0, color.RGBA{R: 255, A: 255})
	src.Set(0, 1, color.RGBA{G: 255, A: 255})

	result, err := Apply(OpFlipVertical, encodeTestImage(t, src))
	require.NoError(t, err)

	out := decodeResult(t, result)
	r, g, _, _ := out.At(0, 0).RGBA()
	assert.Equal(t, uint32(0), r>>8)
	assert.Equal(t, uint32(255), g>>8)
}

func TestApplyGrayscaleUniformChannels(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 1, 1))
	src.Set(0, 0, color.RGBA{R: 200, G: 40, B: 90, A: 255})

	result, err := Apply(OpGrayscale, encodeTestImage(t, src))
	require.NoError(t, err)

	out := decodeResult(t, result)
	r, g, b, _ := out.At(0, 0).RGBA()
	assert.Equal(t, r, g)
	assert.Equal(t, g, b)
}

func TestApplyRejectsBadInput(t *testing.T) {
	tests := []struct {
		name      string
		operation string
		payload   string
		wantErr   error
	}{
		{
			name:      "not base64",
			operation: OpGrayscale,
			payload:   "%%%not-base64%%%",
			wantErr:   domain.ErrInvalidPayload,
		},
		{
			name:      "not a png",
			operation: OpGrayscale,
			payload:   base64.StdEncoding.EncodeToString([]byte("plain text")),
			wantErr:   domain.ErrInvalidPayload,
		},
		{
			name:      "unknown operation",
			operation: "sharpen",
			payload:   encodeTestImage(t, newTestImage()),
			wantErr:   domain.ErrUnsupportedOperation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Apply(tt.operation, tt.payload)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported(OpGrayscale))
	assert.True(t, Supported(OpFlipVertical))
	assert.False(t, Supported("rotate"))
	assert.False(t, Supported(""))
}
