package yolo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/straja-ai/waterlog/internal/detect"
)

func TestAnchorCount(t *testing.T) {
	assert.Equal(t, 8400, anchorCount(640))
	assert.Equal(t, 2100, anchorCount(320))
}

// head builds a [4+classes, anchors] tensor from column values.
func head(classes int, cols ...[]float32) []float32 {
	rows := 4 + classes
	anchors := len(cols)
	out := make([]float32, rows*anchors)
	for i, col := range cols {
		for r := 0; r < rows; r++ {
			out[r*anchors+i] = col[r]
		}
	}
	return out
}

func TestDecodeOutput(t *testing.T) {
	out := head(1,
		[]float32{100, 100, 40, 20, 0.9},
		[]float32{300, 300, 10, 10, 0.05}, // below pre-filter
		[]float32{5, 635, 20, 20, 0.4},    // clipped at both edges
	)

	dets, err := decodeOutput(out, 1, 3, 640, 0.1)
	require.NoError(t, err)
	require.Len(t, dets, 2)

	assert.Equal(t, detect.Box{X1: 80, Y1: 90, X2: 120, Y2: 110}, dets[0].Box)
	assert.InDelta(t, 0.9, dets[0].Confidence, 1e-6)

	assert.Equal(t, detect.Box{X1: 0, Y1: 625, X2: 15, Y2: 640}, dets[1].Box)
}

func TestDecodeOutputPicksBestClass(t *testing.T) {
	out := head(2, []float32{50, 50, 10, 10, 0.2, 0.7})
	dets, err := decodeOutput(out, 2, 1, 640, 0.1)
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.InDelta(t, 0.7, dets[0].Confidence, 1e-6)
}

func TestDecodeOutputRejectsShortTensor(t *testing.T) {
	_, err := decodeOutput(make([]float32, 4), 1, 2, 640, 0.1)
	require.Error(t, err)
}

func TestNMS(t *testing.T) {
	dets := []detect.RawDetection{
		{Box: detect.Box{X1: 0, Y1: 0, X2: 100, Y2: 100}, Confidence: 0.6},
		{Box: detect.Box{X1: 5, Y1: 5, X2: 105, Y2: 105}, Confidence: 0.8},
		{Box: detect.Box{X1: 300, Y1: 300, X2: 350, Y2: 350}, Confidence: 0.3},
	}

	kept := nms(dets, 0.7)
	require.Len(t, kept, 2)
	assert.InDelta(t, 0.8, kept[0].Confidence, 1e-9)
	assert.InDelta(t, 0.3, kept[1].Confidence, 1e-9)

	assert.Nil(t, nms(nil, 0.7))
}

func TestIoU(t *testing.T) {
	a := detect.Box{X1: 0, Y1: 0, X2: 10, Y2: 10}
	assert.InDelta(t, 1.0, iou(a, a), 1e-9)
	assert.InDelta(t, 0.0, iou(a, detect.Box{X1: 20, Y1: 20, X2: 30, Y2: 30}), 1e-9)
	assert.InDelta(t, 25.0/175.0, iou(a, detect.Box{X1: 5, Y1: 5, X2: 15, Y2: 15}), 1e-9)
}
