package detect

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailedResult(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		wantWet *bool
		wantMsg string
		kind    string
	}{
		{"fetch", fmt.Errorf("%w: connection refused", ErrFetch), nil, "Failed to fetch image: connection refused", "fetch"},
		{"inference", fmt.Errorf("%w: onnx run: boom", ErrInference), nil, "Model inference failed: onnx run: boom", "inference"},
		{"decode", fmt.Errorf("%w: image: unknown format", ErrDecode), boolPtr(false), "Failed to decode image: image: unknown format", "decode"},
		{"other", errors.New("surprise"), boolPtr(false), "surprise", "internal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := FailedResult(tc.err)
			assert.Equal(t, tc.wantWet, res.Waterlogged)
			assert.Equal(t, tc.wantMsg, res.Error)
			assert.Equal(t, tc.kind, Kind(res.Failure))
			assert.NotNil(t, res.Detections)
			assert.Empty(t, res.Detections)
			assert.Nil(t, res.ProcessedImage)
			assert.Zero(t, res.Confidence)
		})
	}
}

func TestKind(t *testing.T) {
	assert.Equal(t, "", Kind(nil))
	assert.Equal(t, "missing_input", Kind(ErrMissingInput))
	assert.Equal(t, "annotation", Kind(fmt.Errorf("wrap: %w", ErrAnnotation)))
}

func TestResultJSONShape(t *testing.T) {
	res := FailedResult(fmt.Errorf("%w: timeout", ErrFetch)).WithURL("https://example.com/a.jpg")
	data, err := json.Marshal(res)
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Contains(t, m, "waterlogged")
	assert.Nil(t, m["waterlogged"])
	assert.Equal(t, []interface{}{}, m["detections"])
	assert.Contains(t, m, "processed_image")
	assert.Nil(t, m["processed_image"])
	assert.Equal(t, "https://example.com/a.jpg", m["image_url"])
	assert.NotContains(t, m, "image_filename")
	assert.NotContains(t, m, "RawCount")
	assert.NotContains(t, m, "Failure")
}
