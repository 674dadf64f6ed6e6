package events

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/straja-ai/waterlog/internal/config"
)

// New builds an emitter from configuration. Disabled events yield a Nop publisher and a
// no-op close function.
func New(cfg config.EventsConfig, l *logrus.Logger) (Publisher, func(), error) {
	if !cfg.Enabled || len(cfg.Sinks) == 0 {
		return Nop{}, func() {}, nil
	}

	sinks, err := BuildSinks(cfg.Sinks, l)
	if err != nil {
		return nil, nil, err
	}
	em := NewEmitter(EmitterConfig{
		QueueSize:       cfg.QueueSize,
		Workers:         cfg.Workers,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, sinks)
	return em, func() { em.Close(context.Background()) }, nil
}

// BuildSinks constructs one sink per entry. Sinks built before a failure are closed.
func BuildSinks(cfgs []config.EventSinkConfig, l *logrus.Logger) ([]Sink, error) {
	var sinks []Sink
	for i, sc := range cfgs {
		var (
			s   Sink
			err error
		)
		switch strings.ToLower(strings.TrimSpace(sc.Type)) {
		case "log":
			s = NewLogSink(l)
		case "file":
			s, err = NewFileSink(sc.Path)
		case "webhook":
			s, err = NewWebhookSink(sc.URL, sc.Headers, sc.Timeout)
		case "nats":
			s, err = NewNATSSink(sc.URL, sc.Subject)
		default:
			err = fmt.Errorf("unsupported sink type %q", sc.Type)
		}
		if err != nil {
			for _, built := range sinks {
				_ = built.Close(context.Background())
			}
			return nil, fmt.Errorf("events.sinks[%d]: %w", i, err)
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}
