// Package yolo runs a single-head YOLO detector exported to ONNX.
package yolo

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/straja-ai/waterlog/internal/config"
	"github.com/straja-ai/waterlog/internal/detect"
)

// LibraryPathEnv names the onnxruntime shared library; it wins over config and probing.
const LibraryPathEnv = "ONNXRUNTIME_SHARED_LIBRARY_PATH"

// Options configures LoadModel.
type Options struct {
	ModelPath    string
	SHA256       string
	LibraryPath  string
	InputSize    int
	InputName    string
	OutputName   string
	NumClasses   int
	Confidence   float64
	IoU          float64
	MaxSessions  int
	IntraThreads int
	InterThreads int
}

// OptionsFromConfig maps the model section of the service config.
func OptionsFromConfig(m config.ModelConfig) Options {
	return Options{
		ModelPath:    m.Path,
		SHA256:       m.SHA256,
		LibraryPath:  m.LibraryPath,
		InputSize:    m.InputSize,
		InputName:    m.InputName,
		OutputName:   m.OutputName,
		NumClasses:   m.NumClasses,
		Confidence:   m.Confidence,
		IoU:          m.IoU,
		MaxSessions:  m.MaxSessions,
		IntraThreads: m.IntraThreads,
		InterThreads: m.InterThreads,
	}
}

type session struct {
	run    *ort.AdvancedSession
	input  *ort.Tensor[float32]
	output *ort.Tensor[float32]
}

func (s *session) destroy() {
	if s.run != nil {
		_ = s.run.Destroy()
	}
	if s.input != nil {
		_ = s.input.Destroy()
	}
	if s.output != nil {
		_ = s.output.Destroy()
	}
}

// Model is a pool of ONNX sessions with preallocated tensors. It implements detect.Model.
type Model struct {
	opts     Options
	classes  int
	anchors  int
	sessions chan *session
	all      []*session

	closeOnce sync.Once
}

var _ detect.Model = (*Model)(nil)

// LoadModel initializes the runtime and opens opts.MaxSessions sessions on the model file.
func LoadModel(opts Options) (*Model, error) {
	if strings.TrimSpace(opts.ModelPath) == "" {
		return nil, errors.New("model path is empty")
	}
	opts = withDefaults(opts)

	if _, err := os.Stat(opts.ModelPath); err != nil {
		return nil, fmt.Errorf("model file missing at %s: %w", opts.ModelPath, err)
	}
	if opts.SHA256 != "" {
		if err := VerifyChecksum(opts.ModelPath, opts.SHA256); err != nil {
			return nil, err
		}
	}

	libPath := resolveSharedLibraryPath(opts.LibraryPath, filepath.Dir(opts.ModelPath))
	if libPath == "" {
		return nil, fmt.Errorf("onnxruntime shared library not found; set %s or install the runtime", LibraryPathEnv)
	}
	if !ort.IsInitialized() {
		ort.SetSharedLibraryPath(libPath)
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}

	classes, anchors, err := outputLayout(opts)
	if err != nil {
		return nil, err
	}

	m := &Model{
		opts:     opts,
		classes:  classes,
		anchors:  anchors,
		sessions: make(chan *session, opts.MaxSessions),
	}
	for i := 0; i < opts.MaxSessions; i++ {
		s, err := m.newSession()
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("create onnx session %d: %w", i, err)
		}
		m.all = append(m.all, s)
		m.sessions <- s
	}
	return m, nil
}

func withDefaults(opts Options) Options {
	if opts.InputSize <= 0 {
		opts.InputSize = detect.DefaultInputSize
	}
	if opts.InputName == "" {
		opts.InputName = "images"
	}
	if opts.OutputName == "" {
		opts.OutputName = "output0"
	}
	if opts.NumClasses <= 0 {
		opts.NumClasses = 1
	}
	if opts.IoU <= 0 {
		opts.IoU = 0.7
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 1
	}
	return opts
}

// outputLayout reads the head shape from the model, falling back to the configured class
// count and the standard anchor grid when dimensions are dynamic.
func outputLayout(opts Options) (classes, anchors int, err error) {
	classes, anchors = opts.NumClasses, anchorCount(opts.InputSize)

	_, outputs, err := ort.GetInputOutputInfo(opts.ModelPath)
	if err != nil {
		return 0, 0, fmt.Errorf("read model metadata: %w", err)
	}
	for _, info := range outputs {
		if info.Name != opts.OutputName {
			continue
		}
		dims := info.Dimensions
		if len(dims) != 3 {
			return 0, 0, fmt.Errorf("output %q has shape %v, want [1, 4+classes, anchors]", info.Name, dims)
		}
		if dims[1] > 4 {
			classes = int(dims[1]) - 4
		}
		if dims[2] > 0 {
			anchors = int(dims[2])
		}
		return classes, anchors, nil
	}
	return 0, 0, fmt.Errorf("model has no output named %q", opts.OutputName)
}

func (m *Model) newSession() (*session, error) {
	size := int64(m.opts.InputSize)
	s := &session{}

	var err error
	s.input, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 3, size, size))
	if err != nil {
		return nil, fmt.Errorf("allocate input tensor: %w", err)
	}
	s.output, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(4+m.classes), int64(m.anchors)))
	if err != nil {
		s.destroy()
		return nil, fmt.Errorf("allocate output tensor: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		s.destroy()
		return nil, fmt.Errorf("session options: %w", err)
	}
	defer options.Destroy()
	if m.opts.IntraThreads > 0 {
		if err := options.SetIntraOpNumThreads(m.opts.IntraThreads); err != nil {
			s.destroy()
			return nil, fmt.Errorf("set intra-op threads: %w", err)
		}
	}
	if m.opts.InterThreads > 0 {
		if err := options.SetInterOpNumThreads(m.opts.InterThreads); err != nil {
			s.destroy()
			return nil, fmt.Errorf("set inter-op threads: %w", err)
		}
	}

	s.run, err = ort.NewAdvancedSession(
		m.opts.ModelPath,
		[]string{m.opts.InputName},
		[]string{m.opts.OutputName},
		[]ort.Value{s.input},
		[]ort.Value{s.output},
		options,
	)
	if err != nil {
		s.destroy()
		return nil, err
	}
	return s, nil
}

// InputSize returns the square edge the model was loaded for.
func (m *Model) InputSize() int { return m.opts.InputSize }

// Detect runs inference on img, which must already be InputSize x InputSize, and returns
// NMS-filtered boxes in the image's pixel space ordered by descending confidence.
func (m *Model) Detect(ctx context.Context, img image.Image) ([]detect.RawDetection, error) {
	if m == nil || m.sessions == nil {
		return nil, errors.New("yolo model not initialized")
	}

	var s *session
	select {
	case s = <-m.sessions:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { m.sessions <- s }()

	if err := fillTensor(s.input.GetData(), img, m.opts.InputSize); err != nil {
		return nil, err
	}
	if err := s.run.Run(); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}

	dets, err := decodeOutput(s.output.GetData(), m.classes, m.anchors, m.opts.InputSize, m.opts.Confidence)
	if err != nil {
		return nil, err
	}
	return nms(dets, m.opts.IoU), nil
}

// Warmup runs one blank inference per session so first requests don't pay graph init.
func (m *Model) Warmup(ctx context.Context) error {
	blank := image.NewRGBA(image.Rect(0, 0, m.opts.InputSize, m.opts.InputSize))
	for range m.all {
		if _, err := m.Detect(ctx, blank); err != nil {
			return err
		}
	}
	return nil
}

// Close releases all sessions. Callers must not use the model afterwards.
func (m *Model) Close() {
	if m == nil {
		return
	}
	m.closeOnce.Do(func() {
		for _, s := range m.all {
			s.destroy()
		}
		m.all = nil
	})
}

// resolveSharedLibraryPath locates a platform-specific onnxruntime shared library.
// ONNXRUNTIME_SHARED_LIBRARY_PATH wins, then the configured path, then common locations.
func resolveSharedLibraryPath(configured, modelDir string) string {
	if env := strings.TrimSpace(os.Getenv(LibraryPathEnv)); env != "" {
		return env
	}
	if configured = strings.TrimSpace(configured); configured != "" {
		return configured
	}

	names := []string{
		"libonnxruntime.dylib",
		"onnxruntime.dylib",
		"libonnxruntime.so",
		"onnxruntime.so",
		"onnxruntime.dll",
	}
	dirs := []string{
		modelDir,
		filepath.Join(modelDir, "lib"),
		".",
		"./third_party",
		"/opt/homebrew/lib",
		"/usr/local/lib",
		"/usr/lib",
	}

	for _, dir := range dirs {
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}
