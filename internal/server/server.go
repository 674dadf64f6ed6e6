// Package server exposes the detection pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"image"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/straja-ai/waterlog/internal/config"
	"github.com/straja-ai/waterlog/internal/detect"
	"github.com/straja-ai/waterlog/internal/events"
	"github.com/straja-ai/waterlog/internal/imagesrc"
	"github.com/straja-ai/waterlog/internal/telemetry"
)

const readyMessage = "Waterlogging Detector API ready!"

// ImageFetcher retrieves and decodes a remote image.
type ImageFetcher interface {
	FetchImage(ctx context.Context, url string) (*image.RGBA, error)
}

// Deps are the collaborators a Server needs. Nil Events and Telemetry become no-ops; a nil
// Fetcher is built from cfg.Fetch.
type Deps struct {
	Pipeline  *detect.Pipeline
	Fetcher   ImageFetcher
	Events    events.Publisher
	Telemetry *telemetry.Provider
	Logger    *logrus.Logger
}

// Server wraps the HTTP server components for the detector.
type Server struct {
	mux       *http.ServeMux
	cfg       *config.Config
	pipeline  *detect.Pipeline
	fetcher   ImageFetcher
	events    events.Publisher
	telemetry *telemetry.Provider
	log       *logrus.Logger
	started   time.Time

	detectPolicy    detect.Policy
	detectURLPolicy detect.Policy

	httpServer *http.Server
}

// New builds a Server and registers its routes.
func New(cfg *config.Config, deps Deps) *Server {
	if cfg == nil {
		cfg = config.Default()
	}
	s := &Server{
		mux:             http.NewServeMux(),
		cfg:             cfg,
		pipeline:        deps.Pipeline,
		fetcher:         deps.Fetcher,
		events:          deps.Events,
		telemetry:       deps.Telemetry,
		log:             deps.Logger,
		started:         time.Now(),
		detectPolicy:    cfg.Policies.Detect.Policy(),
		detectURLPolicy: cfg.Policies.DetectURL.Policy(),
	}
	if s.fetcher == nil {
		s.fetcher = imagesrc.NewFetcher(imagesrc.FetcherConfig{
			Timeout:              cfg.Fetch.Timeout,
			UserAgent:            cfg.Fetch.UserAgent,
			MaxBytes:             cfg.Fetch.MaxBytes,
			AllowPrivateNetworks: cfg.Fetch.AllowPrivateNetworks,
		})
	}
	if s.events == nil {
		s.events = events.Nop{}
	}
	if s.telemetry == nil {
		s.telemetry = telemetry.Noop()
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	if s.pipeline == nil {
		s.pipeline = detect.NewPipeline(nil, nil)
	}

	// Routes
	s.mux.HandleFunc("GET /{$}", s.handleRoot)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /api/health", s.handleHealthJSON)
	s.mux.Handle("POST /detect", s.wrap("/detect", s.handleDetect))
	s.mux.Handle("POST /detect_url", s.wrap("/detect_url", s.handleDetectURL))

	s.httpServer = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.mux }

// Start listens on cfg.Server.Addr and blocks until the server stops.
// It returns nil after a graceful Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Server.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	s.log.WithField("addr", ln.Addr().String()).Info("waterlogging detector listening")
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// --- Handlers ---

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": readyMessage})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

type healthResponse struct {
	Status  string  `json:"status"`
	Uptime  float64 `json:"uptime_seconds"`
	Input   int     `json:"input_size"`
	Version string  `json:"version,omitempty"`
}

func (s *Server) handleHealthJSON(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Uptime:  time.Since(s.started).Seconds(),
		Input:   s.pipeline.InputSize(),
		Version: s.cfg.Telemetry.ServiceVersion,
	})
}
