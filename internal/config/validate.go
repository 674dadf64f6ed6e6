package config

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
)

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}

	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("server.addr is required")
	}
	if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
		return fmt.Errorf("server.addr %q is invalid: %v", c.Server.Addr, err)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be > 0")
	}

	if err := validateModelConfig(c.Model); err != nil {
		return err
	}
	if err := validatePolicy("policies.detect", c.Policies.Detect); err != nil {
		return err
	}
	if err := validatePolicy("policies.detect_url", c.Policies.DetectURL); err != nil {
		return err
	}

	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be > 0")
	}
	if c.Fetch.MaxBytes <= 0 {
		return fmt.Errorf("fetch.max_bytes must be > 0")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json")
	}

	if err := validateEventsConfig(c.Events); err != nil {
		return err
	}
	return validateTelemetryConfig(c.Telemetry)
}

var sha256Hex = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

func validateModelConfig(m ModelConfig) error {
	if strings.TrimSpace(m.Path) == "" {
		return fmt.Errorf("model.path is required")
	}
	if sum := strings.TrimSpace(m.SHA256); sum != "" && !sha256Hex.MatchString(sum) {
		return fmt.Errorf("model.sha256 must be 64 hex characters")
	}
	if m.InputSize <= 0 {
		return fmt.Errorf("model.input_size must be > 0")
	}
	if m.NumClasses <= 0 {
		return fmt.Errorf("model.num_classes must be > 0")
	}
	if m.Confidence < 0 || m.Confidence > 1 {
		return fmt.Errorf("model.confidence must be between 0 and 1")
	}
	if m.IoU <= 0 || m.IoU > 1 {
		return fmt.Errorf("model.iou must be in (0, 1]")
	}
	if m.MaxSessions <= 0 {
		return fmt.Errorf("model.max_sessions must be > 0")
	}
	if m.IntraThreads < 0 || m.InterThreads < 0 {
		return fmt.Errorf("model thread counts must be >= 0")
	}
	return nil
}

func validatePolicy(name string, p PolicyConfig) error {
	pol := p.Policy()
	if pol.MinAreaRatio < 0 || pol.MinAreaRatio > 1 {
		return fmt.Errorf("%s.min_area_ratio must be between 0 and 1", name)
	}
	if pol.MinConfidence < 0 || pol.MinConfidence > 1 {
		return fmt.Errorf("%s.min_confidence must be between 0 and 1", name)
	}
	return nil
}

func validateEventsConfig(ev EventsConfig) error {
	if !ev.Enabled {
		return nil
	}
	if ev.QueueSize <= 0 {
		return fmt.Errorf("events.queue_size must be > 0")
	}
	if ev.Workers <= 0 {
		return fmt.Errorf("events.workers must be > 0")
	}
	for i, s := range ev.Sinks {
		switch strings.ToLower(strings.TrimSpace(s.Type)) {
		case "log":
		case "file":
			if strings.TrimSpace(s.Path) == "" {
				return fmt.Errorf("events.sinks[%d].path is required", i)
			}
		case "webhook":
			if err := validateURL(s.URL, "http", "https"); err != nil {
				return fmt.Errorf("events.sinks[%d].url: %v", i, err)
			}
		case "nats":
			if err := validateURL(s.URL, "nats", "tls"); err != nil {
				return fmt.Errorf("events.sinks[%d].url: %v", i, err)
			}
			if strings.TrimSpace(s.Subject) == "" {
				return fmt.Errorf("events.sinks[%d].subject is required", i)
			}
		default:
			return fmt.Errorf("events.sinks[%d].type %q is not supported (log, file, webhook, nats)", i, s.Type)
		}
	}
	return nil
}

func validateTelemetryConfig(t TelemetryConfig) error {
	if !t.Enabled {
		return nil
	}
	if strings.TrimSpace(t.Endpoint) == "" {
		return fmt.Errorf("telemetry.endpoint is required when telemetry is enabled")
	}
	switch strings.ToLower(t.Protocol) {
	case "grpc", "http":
	default:
		return fmt.Errorf("telemetry.protocol must be grpc or http")
	}
	if t.SampleRatio < 0 || t.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be between 0 and 1")
	}
	return nil
}

func validateURL(raw string, schemes ...string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid: %v", err)
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	for _, s := range schemes {
		if strings.EqualFold(u.Scheme, s) {
			return nil
		}
	}
	return fmt.Errorf("scheme must be one of %s", strings.Join(schemes, ", "))
}
