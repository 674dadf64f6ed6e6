package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/straja-ai/waterlog/internal/redact"
)

// NATSSink publishes events as JSON on a subject.
type NATSSink struct {
	url     string
	subject string
	conn    *nats.Conn
}

// NewNATSSink connects to url. The connection retries in the background, so an unreachable
// server at startup does not fail construction.
func NewNATSSink(url, subject string) (*NATSSink, error) {
	if url == "" {
		return nil, fmt.Errorf("nats url is empty")
	}
	if subject == "" {
		return nil, fmt.Errorf("nats subject is empty")
	}
	conn, err := nats.Connect(url,
		nats.Name("waterlog"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSSink{url: url, subject: subject, conn: conn}, nil
}

func (s *NATSSink) Name() string { return "nats:" + s.subject }

func (s *NATSSink) Deliver(_ context.Context, ev *Event) error {
	if ev == nil {
		return nil
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := s.conn.Publish(s.subject, data); err != nil {
		return fmt.Errorf("publish to %s on %s: %w", s.subject, redact.URL(s.url), err)
	}
	return nil
}

// Close flushes pending messages and drops the connection.
func (s *NATSSink) Close(ctx context.Context) error {
	if s.conn == nil {
		return nil
	}
	defer s.conn.Close()
	if !s.conn.IsConnected() {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return s.conn.FlushWithContext(ctx)
}
