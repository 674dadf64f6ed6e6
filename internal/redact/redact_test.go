package redact

import (
	"strings"
	"testing"
)

func TestStringRedaction(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		disallow []string
		require  []string
	}{
		{
			name:     "bearer header",
			input:    "Authorization: Bearer sk-secret-123",
			disallow: []string{"sk-secret-123"},
			require:  []string{"[REDACTED]"},
		},
		{
			name:     "signed image url",
			input:    "fetching https://res.cloudinary.com/demo/image/upload/f_jpg,q_auto,w_640/v1/street.jpg?X-Amz-Signature=abc123def456",
			disallow: []string{"abc123def456", "f_jpg"},
			require:  []string{"https://res.cloudinary.com/street.jpg"},
		},
		{
			name:     "inline image payload",
			input:    `{"image":"data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAAB"}`,
			disallow: []string{"iVBORw0KGgo"},
			require:  []string{"data:image/png;base64,[32 bytes]"},
		},
		{
			name:     "token field",
			input:    "webhook token=supersecret1",
			disallow: []string{"supersecret1"},
			require:  []string{"token=[REDACTED]"},
		},
		{
			name:     "directory url",
			input:    "base=https://cdn.example.test/uploads/",
			disallow: []string{"uploads"},
			require:  []string{"https://cdn.example.test/[REDACTED_PATH]"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := String(tc.input)
			for _, bad := range tc.disallow {
				if bad != "" && contains(out, bad) {
					t.Fatalf("output still contains %q: %s", bad, out)
				}
			}
			for _, want := range tc.require {
				if want == "" {
					continue
				}
				if !contains(out, want) {
					t.Fatalf("output missing required substring %q: %s", want, out)
				}
			}
		})
	}
}

func TestURLRejectsGarbage(t *testing.T) {
	if got := URL("not a url"); got != "[REDACTED_URL]" {
		t.Fatalf("expected [REDACTED_URL], got %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("abcdef", 3); got != "abc…" {
		t.Fatalf("unexpected truncation %q", got)
	}
	if got := Truncate("abc", 10); got != "abc" {
		t.Fatalf("short strings must be untouched, got %q", got)
	}
}

func contains(s, sub string) bool {
	return s != "" && sub != "" && strings.Contains(s, sub)
}
