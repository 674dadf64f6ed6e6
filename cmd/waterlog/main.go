package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/straja-ai/waterlog/internal/annotate"
	"github.com/straja-ai/waterlog/internal/config"
	"github.com/straja-ai/waterlog/internal/detect"
	"github.com/straja-ai/waterlog/internal/events"
	"github.com/straja-ai/waterlog/internal/logging"
	"github.com/straja-ai/waterlog/internal/server"
	"github.com/straja-ai/waterlog/internal/telemetry"
	"github.com/straja-ai/waterlog/internal/yolo"
)

func main() {
	addrFlag := flag.String("addr", "", "HTTP listen address (overrides config)")
	configPath := flag.String("config", "waterlog.yaml", "Path to waterlog config file")
	modelFlag := flag.String("model", "", "Path to the ONNX model (overrides config and env)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *addrFlag != "" {
		cfg.Server.Addr = *addrFlag
	}
	if *modelFlag != "" {
		cfg.Model.Path = *modelFlag
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format}, os.Stderr)
	logging.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("waterlog stopped")
	}
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		Protocol:    cfg.Telemetry.Protocol,
		Service:     cfg.Telemetry.ServiceName,
		Version:     cfg.Telemetry.ServiceVersion,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return err
	}
	defer tp.Shutdown(context.Background())

	publisher, closeEvents, err := events.New(cfg.Events, logger)
	if err != nil {
		return err
	}
	defer closeEvents()

	model, err := yolo.LoadModel(yolo.OptionsFromConfig(cfg.Model))
	if err != nil {
		return err
	}
	defer model.Close()

	if err := model.Warmup(ctx); err != nil {
		logger.WithError(err).Warn("model warmup failed")
	}
	logger.WithFields(logrus.Fields{
		"model":      cfg.Model.Path,
		"input_size": model.InputSize(),
		"sessions":   cfg.Model.MaxSessions,
	}).Info("model loaded")

	pipeline := detect.NewPipeline(model, annotate.New(), detect.WithInputSize(model.InputSize()))
	srv := server.New(cfg, server.Deps{
		Pipeline:  pipeline,
		Events:    publisher,
		Telemetry: tp,
		Logger:    logger,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return <-errCh
}
