// Package telemetry wires OpenTelemetry tracing and metrics for the detector, or no-ops.
package telemetry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/straja-ai/waterlog/internal/logging"
)

const instrumentationName = "github.com/straja-ai/waterlog"

// Config controls telemetry setup.
type Config struct {
	Enabled     bool
	Endpoint    string
	Protocol    string // grpc | http
	Service     string
	Version     string
	SampleRatio float64 // fraction of traces kept; 0 keeps all
}

// Provider wires tracer/meter providers and exposes helpers.
type Provider struct {
	Enabled bool
	tracer  trace.Tracer
	meter   metric.Meter

	requestsCounter   metric.Int64Counter
	requestDuration   metric.Float64Histogram
	inferenceDuration metric.Float64Histogram
	detectionsCounter metric.Int64Counter

	shutdownTraceProvider func(context.Context) error
	shutdownMeterProvider func(context.Context) error
}

// RequestStats is what one detection request reports.
type RequestStats struct {
	Endpoint    string
	Outcome     string // wet | dry | error kind
	Duration    time.Duration
	Inference   time.Duration
	Qualifying  int
	Waterlogged bool
}

// Noop returns a provider whose instruments discard everything.
func Noop() *Provider {
	p := &Provider{
		tracer: tracenoop.NewTracerProvider().Tracer(""),
		meter:  noop.NewMeterProvider().Meter(""),
	}
	p.initInstruments()
	return p
}

// NewProvider configures OTLP exporters. When disabled it returns Noop().
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return Noop(), nil
	}
	protocol := strings.ToLower(strings.TrimSpace(cfg.Protocol))
	if protocol == "" {
		protocol = "grpc"
	}
	if cfg.Service == "" {
		cfg.Service = "waterlog"
	}

	traceExp, metricExp, err := newExporters(ctx, protocol, cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			attribute.String("service.name", cfg.Service),
			attribute.String("service.version", cfg.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sampler(cfg.SampleRatio)),
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
	)
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	logging.Default().WithFields(logrus.Fields{
		"protocol": protocol,
		"endpoint": cfg.Endpoint,
		"sample":   cfg.SampleRatio,
	}).Info("telemetry exporting over OTLP")

	p := &Provider{
		Enabled:               true,
		tracer:                tp.Tracer(instrumentationName),
		meter:                 mp.Meter(instrumentationName),
		shutdownTraceProvider: tp.Shutdown,
		shutdownMeterProvider: mp.Shutdown,
	}
	p.initInstruments()
	return p, nil
}

func newExporters(ctx context.Context, protocol, endpoint string) (sdktrace.SpanExporter, sdkmetric.Exporter, error) {
	switch protocol {
	case "grpc":
		te, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithInsecure())
		if err != nil {
			return nil, nil, fmt.Errorf("otlp grpc trace exporter: %w", err)
		}
		me, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithEndpoint(endpoint), otlpmetricgrpc.WithInsecure())
		if err != nil {
			_ = te.Shutdown(ctx)
			return nil, nil, fmt.Errorf("otlp grpc metric exporter: %w", err)
		}
		return te, me, nil
	case "http":
		te, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
		if err != nil {
			return nil, nil, fmt.Errorf("otlp http trace exporter: %w", err)
		}
		me, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(endpoint), otlpmetrichttp.WithInsecure())
		if err != nil {
			_ = te.Shutdown(ctx)
			return nil, nil, fmt.Errorf("otlp http metric exporter: %w", err)
		}
		return te, me, nil
	default:
		return nil, nil, fmt.Errorf("unsupported telemetry protocol %q", protocol)
	}
}

// sampler keeps every trace for ratios outside (0, 1).
func sampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

func (p *Provider) initInstruments() {
	// Instrument errors are ignored; telemetry is best-effort.
	p.requestsCounter, _ = p.meter.Int64Counter("waterlog_requests_total",
		metric.WithDescription("Detection requests by endpoint and outcome"))
	p.requestDuration, _ = p.meter.Float64Histogram("waterlog_request_duration_ms",
		metric.WithDescription("End-to-end request latency"), metric.WithUnit("ms"))
	p.inferenceDuration, _ = p.meter.Float64Histogram("waterlog_inference_duration_ms",
		metric.WithDescription("Model inference latency"), metric.WithUnit("ms"))
	p.detectionsCounter, _ = p.meter.Int64Counter("waterlog_detections_total",
		metric.WithDescription("Qualifying detections"))
}

// Tracer returns the tracer.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil {
		return tracenoop.NewTracerProvider().Tracer("")
	}
	return p.tracer
}

// Meter returns the meter.
func (p *Provider) Meter() metric.Meter {
	if p == nil {
		return noop.NewMeterProvider().Meter("")
	}
	return p.meter
}

// StartSpan opens a span with filtered attributes.
func (p *Provider) StartSpan(ctx context.Context, name string, attrs map[string]interface{}) (context.Context, trace.Span) {
	return p.Tracer().Start(ctx, name, trace.WithAttributes(SafeAttributes(attrs)...))
}

// Shutdown flushes providers.
func (p *Provider) Shutdown(ctx context.Context) {
	if p == nil {
		return
	}
	if p.shutdownTraceProvider != nil {
		_ = p.shutdownTraceProvider(ctx)
	}
	if p.shutdownMeterProvider != nil {
		_ = p.shutdownMeterProvider(ctx)
	}
}

// RecordRequest emits the per-request counters and histograms.
func (p *Provider) RecordRequest(ctx context.Context, s RequestStats) {
	if p == nil || p.requestsCounter == nil {
		return
	}
	labels := metric.WithAttributes(
		attribute.String("waterlog.endpoint", s.Endpoint),
		attribute.String("waterlog.outcome", s.Outcome),
	)
	p.requestsCounter.Add(ctx, 1, labels)
	p.requestDuration.Record(ctx, ms(s.Duration), labels)
	if s.Inference > 0 {
		p.inferenceDuration.Record(ctx, ms(s.Inference), labels)
	}
	if s.Qualifying > 0 {
		p.detectionsCounter.Add(ctx, int64(s.Qualifying), labels)
	}
}

func ms(d time.Duration) float64 { return float64(d.Microseconds()) / 1000.0 }
