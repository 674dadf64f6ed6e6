package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/straja-ai/waterlog/internal/redact"
)

// WebhookSink POSTs events as JSON. Transport errors, 408, 429 and 5xx are retried after each
// backoff; other statuses fail at once.
type WebhookSink struct {
	endpoint string
	headers  http.Header
	client   *http.Client
	backoffs []time.Duration
}

func NewWebhookSink(endpoint string, headers map[string]string, timeout time.Duration) (*WebhookSink, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("webhook url %q must be absolute http(s)", redact.URL(endpoint))
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	hdr := http.Header{}
	for k, v := range headers {
		hdr.Set(k, v)
	}
	hdr.Set("Content-Type", "application/json")
	hdr.Set("X-Waterlog-Event-Version", Version)
	return &WebhookSink{
		endpoint: endpoint,
		headers:  hdr,
		client:   &http.Client{Timeout: timeout},
		backoffs: []time.Duration{100 * time.Millisecond, 300 * time.Millisecond},
	}, nil
}

func (s *WebhookSink) Name() string { return "webhook:" + redact.URL(s.endpoint) }

func (s *WebhookSink) Deliver(ctx context.Context, ev *Event) error {
	if ev == nil {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	retry, err := s.post(ctx, payload)
	for _, wait := range s.backoffs {
		if err == nil || !retry {
			return err
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		retry, err = s.post(ctx, payload)
	}
	return err
}

// post sends one attempt and reports whether a failure is worth retrying.
func (s *WebhookSink) post(ctx context.Context, payload []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	req.Header = s.headers.Clone()

	resp, err := s.client.Do(req)
	if err != nil {
		return ctx.Err() == nil, fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return false, nil
	}
	retry := resp.StatusCode >= 500 ||
		resp.StatusCode == http.StatusRequestTimeout ||
		resp.StatusCode == http.StatusTooManyRequests
	return retry, fmt.Errorf("status %d body=%q", resp.StatusCode, redact.Truncate(string(body), 200))
}

func (s *WebhookSink) Close(context.Context) error { return nil }
