package telemetry

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func attrMap(attrs []attribute.KeyValue) map[string]attribute.Value {
	out := make(map[string]attribute.Value, len(attrs))
	for _, a := range attrs {
		out[string(a.Key)] = a.Value
	}
	return out
}

func TestSafeAttributesDropsSourceKeys(t *testing.T) {
	got := attrMap(SafeAttributes(map[string]interface{}{
		"image_url":       "https://example.com/a.jpg?sig=abc",
		"processed_image": "data:image/png;base64,AAAA",
		"Authorization":   "Bearer x",
		"endpoint":        "/detect",
		"raw_count":       3,
		"waterlogged":     true,
		"confidence":      0.8,
		"unsupported":     []string{"a"},
	}))

	for _, bad := range []string{"image_url", "processed_image", "Authorization", "unsupported"} {
		assert.NotContains(t, got, bad)
	}
	assert.Equal(t, "/detect", got["endpoint"].AsString())
	assert.Equal(t, int64(3), got["raw_count"].AsInt64())
	assert.True(t, got["waterlogged"].AsBool())
	assert.Equal(t, 0.8, got["confidence"].AsFloat64())
}

func TestSafeAttributesScrubsValues(t *testing.T) {
	got := attrMap(SafeAttributes(map[string]interface{}{
		"source":  "https://cams.example.com/feed/frame.jpg?X-Amz-Signature=abc",
		"payload": "data:image/jpeg;base64,/9j/4AAQ",
		"note":    strings.Repeat("x", 600),
	}))

	assert.Equal(t, "https://cams.example.com/frame.jpg", got["source"].AsString())
	assert.Equal(t, "data:image/jpeg;base64,[8 bytes]", got["payload"].AsString())
	assert.Len(t, got["note"].AsString(), maxAttrLen+len("…"))
}

func TestSafeAttributesSorted(t *testing.T) {
	attrs := SafeAttributes(map[string]interface{}{"b": 1, "a": 2, "c": 3})
	require.Len(t, attrs, 3)
	assert.Equal(t, attribute.Key("a"), attrs[0].Key)
	assert.Equal(t, attribute.Key("c"), attrs[2].Key)
	assert.Nil(t, SafeAttributes(nil))
}
