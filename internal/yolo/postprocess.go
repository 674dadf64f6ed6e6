package yolo

import (
	"fmt"
	"sort"

	"github.com/straja-ai/waterlog/internal/detect"
)

// anchorCount is the number of predictions a stride-8/16/32 head emits for a square input.
func anchorCount(size int) int {
	n := 0
	for _, stride := range []int{8, 16, 32} {
		g := size / stride
		n += g * g
	}
	return n
}

// decodeOutput reads a [1, 4+classes, anchors] head. Each column holds cx, cy, w, h in
// input pixels followed by per-class scores; the best class score is the box confidence.
// Boxes are clipped to the size x size input.
func decodeOutput(out []float32, classes, anchors, size int, minConf float64) ([]detect.RawDetection, error) {
	rows := 4 + classes
	if classes <= 0 || anchors <= 0 {
		return nil, fmt.Errorf("invalid output layout: %d classes, %d anchors", classes, anchors)
	}
	if len(out) < rows*anchors {
		return nil, fmt.Errorf("output holds %d values, want %d", len(out), rows*anchors)
	}

	limit := float64(size)
	var dets []detect.RawDetection
	for i := 0; i < anchors; i++ {
		best := float32(0)
		for c := 0; c < classes; c++ {
			if s := out[(4+c)*anchors+i]; s > best {
				best = s
			}
		}
		if float64(best) < minConf {
			continue
		}

		cx := float64(out[i])
		cy := float64(out[anchors+i])
		w := float64(out[2*anchors+i])
		h := float64(out[3*anchors+i])

		dets = append(dets, detect.RawDetection{
			Box: detect.Box{
				X1: clamp(cx-w/2, 0, limit),
				Y1: clamp(cy-h/2, 0, limit),
				X2: clamp(cx+w/2, 0, limit),
				Y2: clamp(cy+h/2, 0, limit),
			},
			Confidence: float64(best),
		})
	}
	return dets, nil
}

// nms keeps the highest-confidence boxes, discarding any whose IoU with a kept box exceeds
// threshold. The result is ordered by descending confidence.
func nms(dets []detect.RawDetection, threshold float64) []detect.RawDetection {
	if len(dets) == 0 {
		return nil
	}
	sorted := make([]detect.RawDetection, len(dets))
	copy(sorted, dets)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	kept := make([]detect.RawDetection, 0, len(sorted))
	suppressed := make([]bool, len(sorted))
	for i := range sorted {
		if suppressed[i] {
			continue
		}
		kept = append(kept, sorted[i])
		for j := i + 1; j < len(sorted); j++ {
			if !suppressed[j] && iou(sorted[i].Box, sorted[j].Box) > threshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}

func iou(a, b detect.Box) float64 {
	ix1, iy1 := max(a.X1, b.X1), max(a.Y1, b.Y1)
	ix2, iy2 := min(a.X2, b.X2), min(a.Y2, b.Y2)
	iw, ih := ix2-ix1, iy2-iy1
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := iw * ih
	union := area(a) + area(b) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func area(b detect.Box) float64 {
	w, h := b.Width(), b.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
