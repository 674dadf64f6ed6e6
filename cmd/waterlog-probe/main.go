package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/straja-ai/waterlog/internal/annotate"
	"github.com/straja-ai/waterlog/internal/client"
	"github.com/straja-ai/waterlog/internal/config"
	"github.com/straja-ai/waterlog/internal/detect"
	"github.com/straja-ai/waterlog/internal/imagesrc"
	"github.com/straja-ai/waterlog/internal/yolo"
)

func main() {
	addr := flag.String("addr", "http://localhost:8000", "Detector base URL")
	imageURL := flag.String("url", "", "Image URL to send to /detect_url")
	file := flag.String("file", "", "Image file to upload to /detect")
	local := flag.Bool("local", false, "Run the model in-process instead of calling a detector")
	configPath := flag.String("config", "waterlog.yaml", "Config file for -local")
	n := flag.Int("n", 1, "Number of requests")
	warmup := flag.Int("warmup", 0, "Warmup requests before timing")
	flag.Parse()

	if *imageURL == "" && *file == "" {
		log.Fatalf("one of -url or -file is required")
	}
	if *n < 1 {
		*n = 1
	}

	var call func(ctx context.Context) (detect.Result, error)
	if *local {
		call = localCall(*configPath, *imageURL, *file)
	} else {
		call = remoteCall(*addr, *imageURL, *file)
	}

	ctx := context.Background()
	for i := 0; i < *warmup; i++ {
		if _, err := call(ctx); err != nil {
			log.Fatalf("warmup failed: %v", err)
		}
	}

	durations := make([]time.Duration, 0, *n)
	var last detect.Result
	for i := 0; i < *n; i++ {
		start := time.Now()
		res, err := call(ctx)
		if err != nil {
			log.Fatalf("request %d failed: %v", i, err)
		}
		durations = append(durations, time.Since(start))
		last = res
	}

	printResult(last)
	if *n > 1 {
		printStats(durations)
	}
}

func remoteCall(addr, imageURL, file string) func(context.Context) (detect.Result, error) {
	c, err := client.New(addr, 2*time.Minute)
	if err != nil {
		log.Fatalf("client: %v", err)
	}
	var data []byte
	if file != "" {
		data, err = os.ReadFile(file)
		if err != nil {
			log.Fatalf("read image: %v", err)
		}
	}
	return func(ctx context.Context) (detect.Result, error) {
		var (
			resp *client.Response
			err  error
		)
		if file != "" {
			resp, err = c.DetectFile(ctx, filepath.Base(file), bytes.NewReader(data))
		} else {
			resp, err = c.DetectURL(ctx, imageURL)
		}
		if err != nil {
			return detect.Result{}, err
		}
		return resp.Result, nil
	}
}

func localCall(configPath, imageURL, file string) func(context.Context) (detect.Result, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	model, err := yolo.LoadModel(yolo.OptionsFromConfig(cfg.Model))
	if err != nil {
		log.Fatalf("load model: %v", err)
	}
	pipeline := detect.NewPipeline(model, annotate.New(), detect.WithInputSize(model.InputSize()))

	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			log.Fatalf("read image: %v", err)
		}
		img, err := imagesrc.Decode(data)
		if err != nil {
			log.Fatalf("%v", err)
		}
		policy := cfg.Policies.Detect.Policy()
		return func(ctx context.Context) (detect.Result, error) {
			return pipeline.Run(ctx, img, policy).WithFilename(filepath.Base(file)), nil
		}
	}

	fetcher := imagesrc.NewFetcher(imagesrc.FetcherConfig{
		Timeout:              cfg.Fetch.Timeout,
		UserAgent:            cfg.Fetch.UserAgent,
		MaxBytes:             cfg.Fetch.MaxBytes,
		AllowPrivateNetworks: cfg.Fetch.AllowPrivateNetworks,
	})
	policy := cfg.Policies.DetectURL.Policy()
	return func(ctx context.Context) (detect.Result, error) {
		img, err := fetcher.FetchImage(ctx, imageURL)
		if err != nil {
			return detect.FailedResult(err).WithURL(imageURL), nil
		}
		return pipeline.Run(ctx, img, policy).WithURL(imageURL), nil
	}
}

func printResult(res detect.Result) {
	out := struct {
		Waterlogged    *bool                        `json:"waterlogged"`
		Confidence     float64                      `json:"confidence"`
		Detections     []detect.NormalizedDetection `json:"detections"`
		ProcessedImage int                          `json:"processed_image_bytes"`
		Error          string                       `json:"error,omitempty"`
	}{
		Waterlogged: res.Waterlogged,
		Confidence:  res.Confidence,
		Detections:  res.Detections,
		Error:       res.Error,
	}
	if res.ProcessedImage != nil {
		out.ProcessedImage = len(*res.ProcessedImage)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}

func printStats(durations []time.Duration) {
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	var total time.Duration
	for _, d := range durations {
		total += d
	}
	avg := total / time.Duration(len(durations))
	p50 := percentile(durations, 0.50)
	p95 := percentile(durations, 0.95)

	fmt.Printf("probe: n=%d avg_ms=%.2f p50_ms=%.2f p95_ms=%.2f max_ms=%.2f\n",
		len(durations), msf(avg), msf(p50), msf(p95), msf(durations[len(durations)-1]))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

func msf(d time.Duration) float64 { return float64(d.Microseconds()) / 1000.0 }
