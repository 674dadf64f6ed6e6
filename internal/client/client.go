// Package client calls a running waterlogging detector over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/straja-ai/waterlog/internal/detect"
)

// Client talks to one detector base URL.
type Client struct {
	base string
	http *http.Client
}

// Response is a decoded detection record plus the HTTP status it arrived with.
type Response struct {
	Status  int
	Result  detect.Result
	Latency time.Duration
}

// StatusError reports a response that is not a detection record, such as a validation failure.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("detector returned status %d: %s", e.Status, e.Body)
}

// New validates baseURL and returns a client with the given request timeout.
func New(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse detector url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("detector url must be http or https, got %q", baseURL)
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		base: u.String(),
		http: &http.Client{Timeout: timeout},
	}, nil
}

// Health returns nil when /healthz answers 200.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Status: resp.StatusCode}
	}
	return nil
}

// DetectURL asks the detector to fetch and judge imageURL.
func (c *Client) DetectURL(ctx context.Context, imageURL string) (*Response, error) {
	payload, err := json.Marshal(map[string]string{"image_url": imageURL})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/detect_url", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

// DetectFile uploads an image as multipart field "file".
func (c *Client) DetectFile(ctx context.Context, filename string, r io.Reader) (*Response, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(fw, r); err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/detect", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*Response, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	latency := time.Since(start)

	// 200 and 400 carry detection records; anything else is an error body.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusBadRequest {
		return nil, &StatusError{Status: resp.StatusCode, Body: truncate(string(body), 300)}
	}

	var res detect.Result
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("decode detection record: %w", err)
	}
	if res.Detections == nil {
		res.Detections = []detect.NormalizedDetection{}
	}
	return &Response{Status: resp.StatusCode, Result: res, Latency: latency}, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
