package detect

import (
	"fmt"
	"math"
)

// Evaluate normalizes raw against a width x height image and reports whether it qualifies
// under p. The box is clipped to the image first. Degenerate boxes yield a non-positive area ratio and never qualify. Non-finite
// input returns an error wrapping ErrInvalidDetection.
func Evaluate(raw RawDetection, width, height int, p Policy) (NormalizedDetection, bool, error) {
	if width <= 0 || height <= 0 {
		return NormalizedDetection{}, false, fmt.Errorf("%w: image size %dx%d", ErrInvalidDetection, width, height)
	}
	for _, v := range []float64{raw.Box.X1, raw.Box.Y1, raw.Box.X2, raw.Box.Y2, raw.Confidence} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return NormalizedDetection{}, false, fmt.Errorf("%w: non-finite value in %+v", ErrInvalidDetection, raw)
		}
	}

	// only the part of the box inside the image counts, so the ratio stays within [0, 1]
	clipped := raw.Box.Clip(float64(width), float64(height))
	w, h := clipped.Width(), clipped.Height()
	ratio := 0.0
	if w > 0 && h > 0 {
		ratio = (w * h) / (float64(width) * float64(height))
	}

	nd := NormalizedDetection{
		Confidence: raw.Confidence,
		AreaRatio:  ratio,
	}
	ok := ratio > 0 && ratio >= p.MinAreaRatio && raw.Confidence >= p.MinConfidence
	return nd, ok, nil
}
