package yolo

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFillTensorPlanar(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	img.Set(1, 0, color.RGBA{G: 255, A: 255})
	img.Set(0, 1, color.RGBA{B: 255, A: 255})
	img.Set(1, 1, color.RGBA{R: 51, G: 102, B: 153, A: 255})

	dst := make([]float32, 12)
	require.NoError(t, fillTensor(dst, img, 2))

	assert.Equal(t, []float32{1, 0, 0, 0.2}, dst[0:4])
	assert.Equal(t, []float32{0, 1, 0, 0.4}, dst[4:8])
	assert.Equal(t, []float32{0, 0, 1, 0.6}, dst[8:12])
}

func TestFillTensorConvertsOtherModels(t *testing.T) {
	img := image.NewGray(image.Rect(10, 10, 12, 12))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	dst := make([]float32, 12)
	require.NoError(t, fillTensor(dst, img, 2))
	for _, v := range dst {
		assert.Equal(t, float32(1), v)
	}
}

func TestFillTensorRejectsWrongSize(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	require.Error(t, fillTensor(make([]float32, 18), img, 2))
	require.Error(t, fillTensor(make([]float32, 4), image.NewRGBA(image.Rect(0, 0, 2, 2)), 2))
}
