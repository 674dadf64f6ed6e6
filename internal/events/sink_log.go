package events

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogSink writes each event as a structured log line.
type LogSink struct {
	log *logrus.Entry
}

func NewLogSink(l *logrus.Logger) *LogSink {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &LogSink{log: l.WithField("component", "events")}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(_ context.Context, ev *Event) error {
	if ev == nil {
		return nil
	}
	fields := logrus.Fields{
		"request_id":          ev.RequestID,
		"endpoint":            ev.Endpoint,
		"confidence":          ev.Confidence,
		"raw_count":           ev.RawCount,
		"detections":          len(ev.Detections),
		"has_processed_image": ev.HasProcessedImage,
		"latency_ms":          ev.LatencyMs,
	}
	if ev.Waterlogged != nil {
		fields["waterlogged"] = *ev.Waterlogged
	} else {
		fields["waterlogged"] = nil
	}
	if ev.Source != "" {
		fields["source"] = ev.Source
	}
	if ev.ErrorKind != "" {
		fields["error_kind"] = ev.ErrorKind
	}
	s.log.WithFields(fields).Info("detection")
	return nil
}

func (s *LogSink) Close(context.Context) error { return nil }
