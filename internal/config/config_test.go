package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/straja-ai/waterlog/internal/detect"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Setenv(ModelPathEnv, "")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, "best.onnx", cfg.Model.Path)
	assert.Equal(t, 640, cfg.Model.InputSize)
	assert.InDelta(t, 0.1, cfg.Model.Confidence, 1e-9)
	assert.InDelta(t, 0.7, cfg.Model.IoU, 1e-9)
	assert.Equal(t, detect.Policy{MinAreaRatio: 0.001, MinConfidence: 0.1}, cfg.Policies.Detect.Policy())
	assert.Equal(t, detect.Policy{MinAreaRatio: 0.005, MinConfidence: 0.5}, cfg.Policies.DetectURL.Policy())
	assert.Equal(t, 30*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, DefaultUserAgent, cfg.Fetch.UserAgent)
	require.Len(t, cfg.Events.Sinks, 1)
	assert.Equal(t, "log", cfg.Events.Sinks[0].Type)
	require.NoError(t, cfg.Validate())
}

func TestLoadYAMLOverrides(t *testing.T) {
	t.Setenv(ModelPathEnv, "")
	path := filepath.Join(t.TempDir(), "waterlog.yaml")
	yml := `
server:
  addr: "127.0.0.1:9000"
model:
  path: /models/waterlog.onnx
  confidence: 0.25
policies:
  detect:
    min_confidence: 0
  detect_url:
    min_area_ratio: 0.01
fetch:
  timeout: 5s
events:
  sinks:
    - type: nats
      url: nats://127.0.0.1:4222
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, "/models/waterlog.onnx", cfg.Model.Path)
	assert.InDelta(t, 0.25, cfg.Model.Confidence, 1e-9)

	// explicit zero survives defaults, unset fields are filled per entry point
	assert.Equal(t, detect.Policy{MinAreaRatio: 0.001, MinConfidence: 0}, cfg.Policies.Detect.Policy())
	assert.Equal(t, detect.Policy{MinAreaRatio: 0.01, MinConfidence: 0.5}, cfg.Policies.DetectURL.Policy())

	assert.Equal(t, 5*time.Second, cfg.Fetch.Timeout)
	require.Len(t, cfg.Events.Sinks, 1)
	assert.Equal(t, "waterlog.detections", cfg.Events.Sinks[0].Subject)
	require.NoError(t, cfg.Validate())
}

func TestLoadModelPathFromEnv(t *testing.T) {
	t.Setenv(ModelPathEnv, "/opt/models/env.onnx")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "/opt/models/env.onnx", cfg.Model.Path)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unterminated"), 0o600))
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadKeepsExplicitZeroModelConfidence(t *testing.T) {
	t.Setenv(ModelPathEnv, "")
	path := filepath.Join(t.TempDir(), "waterlog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model:\n  confidence: 0\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.0, cfg.Model.Confidence)
	require.NoError(t, cfg.Validate())
}
