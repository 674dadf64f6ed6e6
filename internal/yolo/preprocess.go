package yolo

import (
	"fmt"
	"image"
	"image/draw"
)

// fillTensor writes img into dst in planar CHW order with values scaled to [0, 1].
// img must already be size x size; callers resize upstream.
func fillTensor(dst []float32, img image.Image, size int) error {
	b := img.Bounds()
	if b.Dx() != size || b.Dy() != size {
		return fmt.Errorf("input image is %dx%d, want %dx%d", b.Dx(), b.Dy(), size, size)
	}
	plane := size * size
	if len(dst) < 3*plane {
		return fmt.Errorf("input tensor holds %d values, want %d", len(dst), 3*plane)
	}

	rgba := asRGBA(img)
	idx := 0
	for y := 0; y < size; y++ {
		row := rgba.Pix[y*rgba.Stride : y*rgba.Stride+size*4]
		for x := 0; x < size; x++ {
			p := row[x*4 : x*4+3]
			dst[idx] = float32(p[0]) / 255.0
			dst[idx+plane] = float32(p[1]) / 255.0
			dst[idx+2*plane] = float32(p[2]) / 255.0
			idx++
		}
	}
	return nil
}

func asRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}
