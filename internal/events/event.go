// Package events publishes one notification per detection request to pluggable sinks.
package events

import (
	"time"

	"github.com/straja-ai/waterlog/internal/detect"
	"github.com/straja-ai/waterlog/internal/redact"
)

// Version tags the event schema.
const Version = "1"

// Event is the canonical detection notification. It carries no image bytes.
type Event struct {
	Version           string                       `json:"version"`
	Timestamp         time.Time                    `json:"timestamp"`
	RequestID         string                       `json:"request_id"`
	Endpoint          string                       `json:"endpoint"`
	Source            string                       `json:"source,omitempty"`
	Waterlogged       *bool                        `json:"waterlogged"`
	Confidence        float64                      `json:"confidence"`
	RawCount          int                          `json:"raw_count"`
	Detections        []detect.NormalizedDetection `json:"detections"`
	HasProcessedImage bool                         `json:"has_processed_image"`
	ErrorKind         string                       `json:"error_kind,omitempty"`
	LatencyMs         float64                      `json:"latency_ms"`
}

// BuildParams collects the inputs of one event.
type BuildParams struct {
	RequestID string
	Endpoint  string
	Result    detect.Result
	Latency   time.Duration
	Now       time.Time
}

// Build assembles an event from a finished request. URL sources are redacted.
func Build(p BuildParams) *Event {
	now := p.Now
	if now.IsZero() {
		now = time.Now()
	}

	res := p.Result
	var source string
	switch {
	case res.ImageURL != nil:
		source = redact.URL(*res.ImageURL)
	case res.ImageFilename != nil:
		source = *res.ImageFilename
	}

	dets := res.Detections
	if dets == nil {
		dets = []detect.NormalizedDetection{}
	}

	return &Event{
		Version:           Version,
		Timestamp:         now.UTC(),
		RequestID:         p.RequestID,
		Endpoint:          p.Endpoint,
		Source:            source,
		Waterlogged:       res.Waterlogged,
		Confidence:        res.Confidence,
		RawCount:          res.RawCount,
		Detections:        append([]detect.NormalizedDetection(nil), dets...),
		HasProcessedImage: res.ProcessedImage != nil,
		ErrorKind:         detect.Kind(res.Failure),
		LatencyMs:         float64(p.Latency.Microseconds()) / 1000.0,
	}
}
