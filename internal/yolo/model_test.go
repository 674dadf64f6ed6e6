package yolo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/straja-ai/waterlog/internal/config"
)

func TestResolveSharedLibraryPathEnvWins(t *testing.T) {
	t.Setenv(LibraryPathEnv, "/custom/libonnxruntime.so")
	assert.Equal(t, "/custom/libonnxruntime.so", resolveSharedLibraryPath("/configured.so", t.TempDir()))
}

func TestResolveSharedLibraryPathConfigured(t *testing.T) {
	t.Setenv(LibraryPathEnv, "")
	assert.Equal(t, "/configured.so", resolveSharedLibraryPath("/configured.so", t.TempDir()))
}

func TestResolveSharedLibraryPathProbesModelDir(t *testing.T) {
	t.Setenv(LibraryPathEnv, "")
	dir := t.TempDir()
	lib := filepath.Join(dir, "lib", "libonnxruntime.so")
	require.NoError(t, os.MkdirAll(filepath.Dir(lib), 0o755))
	require.NoError(t, os.WriteFile(lib, []byte("x"), 0o644))

	got := resolveSharedLibraryPath("", dir)
	// a system-wide install in an earlier probe dir is fine too
	if got != lib {
		assert.FileExists(t, got)
	}
}

func TestLoadModelRequiresFile(t *testing.T) {
	_, err := LoadModel(Options{})
	require.Error(t, err)

	_, err = LoadModel(Options{ModelPath: filepath.Join(t.TempDir(), "missing.onnx")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model file missing")
}

func TestOptionsFromConfigUsesDefaults(t *testing.T) {
	opts := OptionsFromConfig(config.Default().Model)
	assert.Equal(t, 640, opts.InputSize)
	assert.Equal(t, "images", opts.InputName)
	assert.Equal(t, "output0", opts.OutputName)
	assert.Equal(t, 0.1, opts.Confidence)
	assert.Equal(t, 0.7, opts.IoU)
	assert.Equal(t, 1, opts.MaxSessions)
}
