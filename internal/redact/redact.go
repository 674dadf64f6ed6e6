// Package redact scrubs secrets and bulky payloads from strings before they are logged.
package redact

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
)

var (
	authHeaderRe = regexp.MustCompile(`(?i)(authorization\s*[:=]\s*bearer\s+)([A-Za-z0-9._\-+/=]+)`)
	bearerRe     = regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9._\-+/=]+)`)
	tokenishRe   = regexp.MustCompile(`(?i)\b(api[_-]?key|key|token|signature|sig)\s*[:=]\s*([A-Za-z0-9._\-+/=]{6,})`)
	dataURIRe    = regexp.MustCompile(`data:image/[A-Za-z0-9.+\-]+;base64,[A-Za-z0-9+/=]+`)
	urlRe        = regexp.MustCompile(`https?://[^\s"'<>]+`)
)

// String redacts credentials, image URLs and inline image payloads from free-form text.
func String(s string) string {
	if s == "" {
		return s
	}

	out := s
	out = dataURIRe.ReplaceAllStringFunc(out, DataURI)
	out = authHeaderRe.ReplaceAllString(out, "${1}[REDACTED]")
	out = bearerRe.ReplaceAllString(out, "${1}[REDACTED]")
	out = urlRe.ReplaceAllStringFunc(out, URL)
	out = tokenishRe.ReplaceAllString(out, "${1}=[REDACTED]")
	for strings.Contains(out, "[REDACTED][REDACTED]") {
		out = strings.ReplaceAll(out, "[REDACTED][REDACTED]", "[REDACTED]")
	}
	return out
}

// Sprintf formats like fmt.Sprintf and redacts the result.
func Sprintf(format string, args ...interface{}) string {
	return String(fmt.Sprintf(format, args...))
}

// URL keeps scheme, host and the last path element of raw; query strings, fragments,
// userinfo and intermediate path segments are dropped. Signed image links stay useful
// for debugging without leaking their signatures.
func URL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "[REDACTED_URL]"
	}

	host := u.Host
	if strings.HasSuffix(u.Path, "/") || u.Path == "" {
		return fmt.Sprintf("%s://%s/[REDACTED_PATH]", u.Scheme, host)
	}

	base := path.Base(u.Path)
	if base == "." || base == "/" || base == "" {
		return fmt.Sprintf("%s://%s/[REDACTED_PATH]", u.Scheme, host)
	}
	return fmt.Sprintf("%s://%s/%s", u.Scheme, host, base)
}

// DataURI replaces the payload of a base64 data URI with its length.
func DataURI(s string) string {
	idx := strings.IndexByte(s, ',')
	if !strings.HasPrefix(s, "data:") || idx < 0 {
		return s
	}
	return fmt.Sprintf("%s,[%d bytes]", s[:idx], len(s)-idx-1)
}

// Truncate cuts s to at most max bytes, appending an ellipsis when it was shortened.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
