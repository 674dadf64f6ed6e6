package detect

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func box(x1, y1, x2, y2 float64) Box { return Box{X1: x1, Y1: y1, X2: x2, Y2: y2} }

func TestEvaluate(t *testing.T) {
	policy := Policy{MinAreaRatio: 0.01, MinConfidence: 0.65}

	cases := []struct {
		name      string
		raw       RawDetection
		wantRatio float64
		wantOK    bool
	}{
		{"qualifies", RawDetection{Box: box(0, 0, 100, 100), Confidence: 0.9}, 100.0 * 100 / (640 * 640), true},
		{"too small", RawDetection{Box: box(0, 0, 10, 10), Confidence: 0.9}, 100.0 / (640 * 640), false},
		{"low confidence", RawDetection{Box: box(0, 0, 200, 200), Confidence: 0.3}, 40000.0 / (640 * 640), false},
		{"zero width", RawDetection{Box: box(50, 0, 50, 300), Confidence: 0.99}, 0, false},
		{"inverted box", RawDetection{Box: box(300, 300, 100, 100), Confidence: 0.99}, 0, false},
		{"covers beyond image", RawDetection{Box: box(0, 0, 2000, 2000), Confidence: 0.9}, 1, true},
		{"half outside left edge", RawDetection{Box: box(-640, 0, 320, 640), Confidence: 0.9}, 0.5, true},
		{"entirely outside", RawDetection{Box: box(700, 700, 900, 900), Confidence: 0.9}, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			nd, ok, err := Evaluate(tc.raw, 640, 640, policy)
			require.NoError(t, err)
			assert.Equal(t, tc.wantOK, ok)
			assert.InDelta(t, tc.wantRatio, nd.AreaRatio, 1e-12)
			assert.Equal(t, tc.raw.Confidence, nd.Confidence)
		})
	}
}

func TestEvaluateBoundaryIsInclusive(t *testing.T) {
	// 64x64 on 640x640 is exactly 0.01
	raw := RawDetection{Box: box(0, 0, 64, 64), Confidence: 0.65}
	nd, ok, err := Evaluate(raw, 640, 640, Policy{MinAreaRatio: 0.01, MinConfidence: 0.65})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0.01, nd.AreaRatio)
}

func TestEvaluateZeroPolicyStillNeedsArea(t *testing.T) {
	_, ok, err := Evaluate(RawDetection{Box: box(10, 10, 10, 10), Confidence: 1}, 640, 640, Policy{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluateInvalidInput(t *testing.T) {
	_, _, err := Evaluate(RawDetection{Box: box(0, 0, 1, 1), Confidence: 0.5}, 0, 640, Policy{})
	assert.True(t, errors.Is(err, ErrInvalidDetection))

	_, _, err = Evaluate(RawDetection{Box: box(0, math.NaN(), 1, 1), Confidence: 0.5}, 640, 640, Policy{})
	assert.True(t, errors.Is(err, ErrInvalidDetection))

	_, _, err = Evaluate(RawDetection{Box: box(0, 0, 1, 1), Confidence: math.Inf(1)}, 640, 640, Policy{})
	assert.True(t, errors.Is(err, ErrInvalidDetection))
}

func TestEvaluateOverhangDoesNotQualifySmallBox(t *testing.T) {
	// 40x40 visible, the rest hangs off the bottom-right corner
	raw := RawDetection{Box: box(600, 600, 1400, 1400), Confidence: 0.9}
	nd, ok, err := Evaluate(raw, 640, 640, Policy{MinAreaRatio: 0.01, MinConfidence: 0.5})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.InDelta(t, 1600.0/(640*640), nd.AreaRatio, 1e-12)
}

func TestBoxClip(t *testing.T) {
	assert.Equal(t, box(0, 0, 640, 480), box(-5, -5, 700, 500).Clip(640, 480))
	assert.Equal(t, box(10, 20, 30, 40), box(10, 20, 30, 40).Clip(640, 480))
}
