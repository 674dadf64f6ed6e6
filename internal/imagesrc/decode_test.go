package imagesrc

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/straja-ai/waterlog/internal/detect"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecodeDropsAlpha(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.SetNRGBA(0, 0, color.NRGBA{R: 200, G: 100, B: 50, A: 0})
	src.SetNRGBA(1, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 128})

	img, err := Decode(encodePNG(t, src))
	require.NoError(t, err)

	assert.Equal(t, image.Rect(0, 0, 2, 1), img.Bounds())
	assert.Equal(t, color.RGBA{R: 200, G: 100, B: 50, A: 255}, img.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{R: 10, G: 20, B: 30, A: 255}, img.RGBAAt(1, 0))
}

func TestDecodeOpaque(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 3, 3))
	for i := range src.Pix {
		src.Pix[i] = 255
	}
	img, err := Decode(encodePNG(t, src))
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, img.RGBAAt(2, 2))
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode(nil)
	assert.True(t, errors.Is(err, detect.ErrDecode))

	_, err = Decode([]byte("definitely not an image"))
	assert.True(t, errors.Is(err, detect.ErrDecode))
}

func TestDecodeInline(t *testing.T) {
	data := encodePNG(t, image.NewRGBA(image.Rect(0, 0, 4, 4)))
	std := base64.StdEncoding.EncodeToString(data)

	cases := map[string]string{
		"raw std":    std,
		"data uri":   "data:image/png;base64," + std,
		"raw no pad": base64.RawStdEncoding.EncodeToString(data),
		"url-safe":   base64.URLEncoding.EncodeToString(data),
		"padded ws":  "  " + std + "\n",
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			img, err := DecodeInline(payload)
			require.NoError(t, err)
			assert.Equal(t, 4, img.Bounds().Dx())
		})
	}
}

func TestDecodeInlineErrors(t *testing.T) {
	for _, payload := range []string{"", "data:image/png;base64", "data:image/png;base64,", "!!!not-base64!!!"} {
		_, err := DecodeInline(payload)
		assert.Truef(t, errors.Is(err, detect.ErrDecode), "payload %q: %v", payload, err)
	}
}
