package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/straja-ai/waterlog/internal/detect"
)

// ModelPathEnv overrides model.path when set.
const ModelPathEnv = "WATERLOG_MODEL_PATH"

// DefaultUserAgent is the browser-like identification sent on remote image fetches.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Config holds the detector service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Model     ModelConfig     `yaml:"model"`
	Policies  PoliciesConfig  `yaml:"policies"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Logging   LoggingConfig   `yaml:"logging"`
	Events    EventsConfig    `yaml:"events"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	Addr              string        `yaml:"addr"`           // HTTP listen address, e.g. ":8000"
	MaxBodyBytes      int64         `yaml:"max_body_bytes"` // upload / JSON body cap
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

type ModelConfig struct {
	Path         string  `yaml:"path"`         // ONNX export of the detector
	SHA256       string  `yaml:"sha256"`       // optional hex digest checked before loading
	LibraryPath  string  `yaml:"library_path"` // onnxruntime shared library; env wins
	InputSize    int     `yaml:"input_size"`   // square edge, e.g. 640
	InputName    string  `yaml:"input_name"`
	OutputName   string  `yaml:"output_name"`
	NumClasses   int     `yaml:"num_classes"` // used when the model has dynamic output dims
	Confidence   float64 `yaml:"confidence"`  // pre-filter applied inside the model wrapper
	IoU          float64 `yaml:"iou"`
	MaxSessions  int     `yaml:"max_sessions"`
	IntraThreads int     `yaml:"intra_threads"`
	InterThreads int     `yaml:"inter_threads"`
}

// PolicyConfig is a threshold pair; nil fields take the entry point's default.
type PolicyConfig struct {
	MinAreaRatio  *float64 `yaml:"min_area_ratio"`
	MinConfidence *float64 `yaml:"min_confidence"`
}

// Policy returns the resolved thresholds. Call after applyDefaults.
func (p PolicyConfig) Policy() detect.Policy {
	var out detect.Policy
	if p.MinAreaRatio != nil {
		out.MinAreaRatio = *p.MinAreaRatio
	}
	if p.MinConfidence != nil {
		out.MinConfidence = *p.MinConfidence
	}
	return out
}

// PoliciesConfig holds one named policy per entry point. The values are deliberately
// independent; see DESIGN.md for why they are not unified.
type PoliciesConfig struct {
	Detect    PolicyConfig `yaml:"detect"`
	DetectURL PolicyConfig `yaml:"detect_url"`
}

type FetchConfig struct {
	Timeout              time.Duration `yaml:"timeout"`
	UserAgent            string        `yaml:"user_agent"`
	MaxBytes             int64         `yaml:"max_bytes"`
	AllowPrivateNetworks bool          `yaml:"allow_private_networks"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

type EventsConfig struct {
	Enabled         bool              `yaml:"enabled"`
	QueueSize       int               `yaml:"queue_size"`
	Workers         int               `yaml:"workers"`
	ShutdownTimeout time.Duration     `yaml:"shutdown_timeout"`
	Sinks           []EventSinkConfig `yaml:"sinks"`
}

type EventSinkConfig struct {
	Type    string            `yaml:"type"` // log | file | webhook | nats
	Path    string            `yaml:"path"` // file: JSONL destination
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	Timeout time.Duration     `yaml:"timeout"`
	Subject string            `yaml:"subject"`
}

type TelemetryConfig struct {
	Enabled        bool    `yaml:"enabled"`
	Endpoint       string  `yaml:"endpoint"`
	Protocol       string  `yaml:"protocol"` // grpc | http
	ServiceName    string  `yaml:"service_name"`
	ServiceVersion string  `yaml:"service_version"`
	SampleRatio    float64 `yaml:"sample_ratio"`
}

var (
	defaultDetectPolicy    = detect.Policy{MinAreaRatio: 0.001, MinConfidence: 0.1}
	defaultDetectURLPolicy = detect.Policy{MinAreaRatio: 0.005, MinConfidence: 0.5}
)

// Load reads configuration from a YAML file.
// If the file doesn't exist, it returns a default config and no error.
// A .env file in the working directory is loaded first; existing variables win.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnv(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := defaultConfig()
	applyDefaults(cfg)
	return cfg
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":8000",
		},
		Model: ModelConfig{
			Path:       "best.onnx",
			Confidence: 0.1, // set before unmarshal; an explicit 0 is kept
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Events: EventsConfig{
			Enabled: true,
			Sinks:   []EventSinkConfig{{Type: "log"}},
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "waterlog",
		},
	}
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(ModelPathEnv)); v != "" {
		cfg.Model.Path = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		cfg.Server.MaxBodyBytes = 32 << 20
	}
	if cfg.Server.ReadHeaderTimeout <= 0 {
		cfg.Server.ReadHeaderTimeout = 5 * time.Second
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = 60 * time.Second
	}
	if cfg.Server.WriteTimeout <= 0 {
		cfg.Server.WriteTimeout = 120 * time.Second
	}
	if cfg.Server.IdleTimeout <= 0 {
		cfg.Server.IdleTimeout = 120 * time.Second
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Model.InputSize <= 0 {
		cfg.Model.InputSize = detect.DefaultInputSize
	}
	if cfg.Model.InputName == "" {
		cfg.Model.InputName = "images"
	}
	if cfg.Model.OutputName == "" {
		cfg.Model.OutputName = "output0"
	}
	if cfg.Model.NumClasses <= 0 {
		cfg.Model.NumClasses = 1
	}
	if cfg.Model.IoU <= 0 {
		cfg.Model.IoU = 0.7
	}
	if cfg.Model.MaxSessions <= 0 {
		cfg.Model.MaxSessions = 1
	}

	fillPolicy(&cfg.Policies.Detect, defaultDetectPolicy)
	fillPolicy(&cfg.Policies.DetectURL, defaultDetectURLPolicy)

	if cfg.Fetch.Timeout <= 0 {
		cfg.Fetch.Timeout = 30 * time.Second
	}
	if strings.TrimSpace(cfg.Fetch.UserAgent) == "" {
		cfg.Fetch.UserAgent = DefaultUserAgent
	}
	if cfg.Fetch.MaxBytes <= 0 {
		cfg.Fetch.MaxBytes = 20 << 20
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}

	if cfg.Events.QueueSize <= 0 {
		cfg.Events.QueueSize = 256
	}
	if cfg.Events.Workers <= 0 {
		cfg.Events.Workers = 1
	}
	if cfg.Events.ShutdownTimeout <= 0 {
		cfg.Events.ShutdownTimeout = 2 * time.Second
	}
	for i := range cfg.Events.Sinks {
		s := &cfg.Events.Sinks[i]
		if strings.EqualFold(s.Type, "nats") && s.Subject == "" {
			s.Subject = "waterlog.detections"
		}
	}

	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "waterlog"
	}
}

func fillPolicy(p *PolicyConfig, def detect.Policy) {
	if p.MinAreaRatio == nil {
		v := def.MinAreaRatio
		p.MinAreaRatio = &v
	}
	if p.MinConfidence == nil {
		v := def.MinConfidence
		p.MinConfidence = &v
	}
}
