package telemetry

import (
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/straja-ai/waterlog/internal/redact"
)

const maxAttrLen = 256

// Key fragments that mark image sources, payloads or credentials.
var deniedFragments = []string{"url", "image", "base64", "authorization", "token", "signature", "api_key"}

func deniedKey(k string) bool {
	lk := strings.ToLower(k)
	for _, frag := range deniedFragments {
		if strings.Contains(lk, frag) {
			return true
		}
	}
	return false
}

// scrub keeps inline payloads and links out of string attributes that slipped past the key check.
func scrub(v string) string {
	switch {
	case strings.HasPrefix(v, "data:"):
		return redact.DataURI(v)
	case strings.HasPrefix(v, "http://"), strings.HasPrefix(v, "https://"):
		return redact.URL(v)
	}
	return redact.Truncate(v, maxAttrLen)
}

// SafeAttributes converts span fields to attributes, sorted by key. Denied keys and
// unsupported value types are dropped.
func SafeAttributes(values map[string]interface{}) []attribute.KeyValue {
	if len(values) == 0 {
		return nil
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		if !deniedKey(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	attrs := make([]attribute.KeyValue, 0, len(keys))
	for _, k := range keys {
		switch v := values[k].(type) {
		case string:
			attrs = append(attrs, attribute.String(k, scrub(v)))
		case bool:
			attrs = append(attrs, attribute.Bool(k, v))
		case int:
			attrs = append(attrs, attribute.Int(k, v))
		case int64:
			attrs = append(attrs, attribute.Int64(k, v))
		case float32:
			attrs = append(attrs, attribute.Float64(k, float64(v)))
		case float64:
			attrs = append(attrs, attribute.Float64(k, v))
		}
	}
	return attrs
}
