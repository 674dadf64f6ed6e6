package client

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/straja-ai/waterlog/internal/config"
	"github.com/straja-ai/waterlog/internal/detect"
	"github.com/straja-ai/waterlog/internal/server"
)

type oneBoxModel struct{}

func (oneBoxModel) Detect(context.Context, image.Image) ([]detect.RawDetection, error) {
	return []detect.RawDetection{{Box: detect.Box{X1: 0, Y1: 0, X2: 128, Y2: 64}, Confidence: 0.9}}, nil
}

func newDetector(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	cfg.Fetch.AllowPrivateNetworks = true
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	srv := server.New(cfg, server.Deps{
		Pipeline: detect.NewPipeline(oneBoxModel{}, nil),
		Logger:   logger,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestDetectFile(t *testing.T) {
	ts := newDetector(t)
	c, err := New(ts.URL+"/", time.Second)
	require.NoError(t, err)
	require.NoError(t, c.Health(context.Background()))

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 40, 30))))

	resp, err := c.DetectFile(context.Background(), "cam.png", &buf)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	require.NotNil(t, resp.Result.Waterlogged)
	assert.True(t, *resp.Result.Waterlogged)
	assert.Equal(t, 0.9, resp.Result.Confidence)
	require.NotNil(t, resp.Result.ImageFilename)
	assert.Equal(t, "cam.png", *resp.Result.ImageFilename)
}

func TestDetectURLMissingIsRecord(t *testing.T) {
	ts := newDetector(t)
	c, err := New(ts.URL, time.Second)
	require.NoError(t, err)

	resp, err := c.DetectURL(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 400, resp.Status)
	assert.Equal(t, "Missing image_url", resp.Result.Error)
	assert.Empty(t, resp.Result.Detections)
}

func TestDetectURLFetchFailure(t *testing.T) {
	ts := newDetector(t)
	c, err := New(ts.URL, 5*time.Second)
	require.NoError(t, err)

	resp, err := c.DetectURL(context.Background(), "http://127.0.0.1:1/none.jpg")
	require.NoError(t, err)
	assert.Nil(t, resp.Result.Waterlogged)
	assert.Contains(t, resp.Result.Error, "Failed to fetch image")
}

func TestStatusError(t *testing.T) {
	ts := newDetector(t)
	c, err := New(ts.URL, time.Second)
	require.NoError(t, err)

	err = c.Health(context.Background())
	require.NoError(t, err)

	c.base = ts.URL + "/missing"
	err = c.Health(context.Background())
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 404, se.Status)
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New("ftp://detector", time.Second)
	require.Error(t, err)
}
