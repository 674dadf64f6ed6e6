// Package annotate draws detection boxes onto the processed image and encodes it as a PNG data URI.
package annotate

import (
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/straja-ai/waterlog/internal/detect"
)

const dataURIPrefix = "data:image/png;base64,"

var (
	boxColor  = color.RGBA{R: 255, A: 255}
	textColor = color.RGBA{R: 255, G: 255, A: 255}
)

const (
	boxThickness  = 3
	textFont      = gocv.FontHersheySimplex
	textScale     = 0.5
	textThickness = 1
	textOffset    = 12
)

// Renderer implements detect.Renderer with OpenCV.
type Renderer struct{}

var _ detect.Renderer = Renderer{}

// New returns a Renderer.
func New() Renderer { return Renderer{} }

// Render draws one red rectangle and a yellow confidence label per detection and returns
// the result as a data:image/png;base64 URI. img is not modified.
func (Renderer) Render(img image.Image, dets []detect.RawDetection) (string, error) {
	if img == nil {
		return "", errors.New("no image to annotate")
	}
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return "", fmt.Errorf("convert image: %w", err)
	}
	defer mat.Close()

	for _, d := range dets {
		rect := toRect(d.Box)
		gocv.Rectangle(&mat, rect, boxColor, boxThickness)

		label := fmt.Sprintf("%.2f", d.Confidence)
		size := gocv.GetTextSize(label, textFont, textScale, textThickness)
		gocv.PutText(&mat, label, labelOrigin(rect, size.Y), textFont, textScale, textColor, textThickness)
	}

	buf, err := gocv.IMEncode(gocv.PNGFileExt, mat)
	if err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}
	defer buf.Close()

	return dataURIPrefix + base64.StdEncoding.EncodeToString(buf.GetBytes()), nil
}

func toRect(b detect.Box) image.Rectangle {
	return image.Rect(int(b.X1), int(b.Y1), int(b.X2), int(b.Y2))
}

// labelOrigin places the label's top edge textOffset pixels above the box, never above the
// image. OpenCV anchors text at the baseline, so the text height is added back.
func labelOrigin(rect image.Rectangle, textHeight int) image.Point {
	top := rect.Min.Y - textOffset
	if top < 0 {
		top = 0
	}
	return image.Pt(rect.Min.X, top+textHeight)
}
