package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/straja-ai/waterlog/internal/detect"
	"github.com/straja-ai/waterlog/internal/events"
	"github.com/straja-ai/waterlog/internal/logging"
	"github.com/straja-ai/waterlog/internal/redact"
	"github.com/straja-ai/waterlog/internal/telemetry"
)

const requestIDHeader = "X-Request-ID"

// outcome is what a detection handler produces. result is nil for responses that are not
// detection records (validation and size errors); those emit no event.
type outcome struct {
	status int
	result *detect.Result
	body   interface{}
}

func resultOutcome(status int, res detect.Result) outcome {
	return outcome{status: status, result: &res, body: res}
}

type detectHandler func(ctx context.Context, r *http.Request) outcome

// wrap adds request IDs, body limits, request-scoped logging, tracing, metrics and events
// around a detection handler.
func (s *Server) wrap(endpoint string, h detectHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		reqID := requestID(r)
		w.Header().Set(requestIDHeader, reqID)

		entry := s.log.WithFields(logrus.Fields{
			"request_id": reqID,
			"endpoint":   endpoint,
		})
		ctx := logging.WithEntry(r.Context(), entry)
		ctx, span := s.telemetry.StartSpan(ctx, "waterlog.detect", map[string]interface{}{
			"endpoint":   endpoint,
			"request_id": reqID,
		})
		defer span.End()

		if s.cfg.Server.MaxBodyBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes)
		}

		out := h(ctx, r.WithContext(ctx))
		writeJSON(w, out.status, out.body)

		latency := time.Since(start)
		fields := logrus.Fields{
			"status":     out.status,
			"latency_ms": float64(latency.Microseconds()) / 1000.0,
		}

		if out.result != nil {
			res := *out.result
			kind := detect.Kind(res.Failure)

			outcomeLabel := kind
			if outcomeLabel == "" {
				outcomeLabel = "dry"
				if res.Waterlogged != nil && *res.Waterlogged {
					outcomeLabel = "wet"
				}
			}
			s.telemetry.RecordRequest(ctx, telemetry.RequestStats{
				Endpoint:   endpoint,
				Outcome:    outcomeLabel,
				Duration:   latency,
				Inference:  res.Timings.Inference,
				Qualifying: len(res.Detections),
			})
			span.SetAttributes(telemetry.SafeAttributes(map[string]interface{}{
				"outcome":      outcomeLabel,
				"raw_count":    res.RawCount,
				"qualifying":   len(res.Detections),
				"confidence":   res.Confidence,
				"has_evidence": res.ProcessedImage != nil,
			})...)

			s.events.Emit(ctx, events.Build(events.BuildParams{
				RequestID: reqID,
				Endpoint:  endpoint,
				Result:    res,
				Latency:   latency,
			}))

			fields["outcome"] = outcomeLabel
			fields["confidence"] = res.Confidence
			fields["detections"] = len(res.Detections)
			if res.ImageURL != nil {
				fields["source"] = redact.URL(*res.ImageURL)
			} else if res.ImageFilename != nil {
				fields["source"] = *res.ImageFilename
			}
		}

		log := entry.WithFields(fields)
		if out.status >= 500 {
			log.Error("request failed")
		} else {
			log.Info("request handled")
		}
	})
}

func requestID(r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get(requestIDHeader))
	if id == "" || len(id) > 128 || strings.ContainsAny(id, "\r\n") {
		return uuid.NewString()
	}
	return id
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
