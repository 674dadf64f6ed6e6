package detect

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/nfnt/resize"
	"github.com/sirupsen/logrus"

	"github.com/straja-ai/waterlog/internal/logging"
)

// DefaultInputSize is the square edge the model expects.
const DefaultInputSize = 640

// Pipeline runs one decoded image through the model, thresholds and renderer.
// It holds no per-request state and is safe for concurrent use when its Model is.
type Pipeline struct {
	model     Model
	renderer  Renderer
	inputSize int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithInputSize overrides the square resize edge (default 640).
func WithInputSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.inputSize = n
		}
	}
}

// NewPipeline wires a model and an optional renderer. A nil renderer disables evidence images.
func NewPipeline(model Model, renderer Renderer, opts ...Option) *Pipeline {
	p := &Pipeline{
		model:     model,
		renderer:  renderer,
		inputSize: DefaultInputSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// InputSize returns the edge of the square images sent to the model.
func (p *Pipeline) InputSize() int { return p.inputSize }

// Run executes the pipeline. It never returns an error: failures are folded into the Result.
func (p *Pipeline) Run(ctx context.Context, img image.Image, policy Policy) Result {
	start := time.Now()
	log := logging.FromContext(ctx)

	if img == nil {
		return FailedResult(fmt.Errorf("%w: no image", ErrDecode))
	}

	resizeStart := time.Now()
	processed := p.normalize(img)
	resizeDur := time.Since(resizeStart)
	bounds := processed.Bounds()

	inferStart := time.Now()
	raws, err := p.infer(ctx, processed)
	inferDur := time.Since(inferStart)
	if err != nil {
		log.WithError(err).Warn("model inference failed")
		res := FailedResult(err)
		res.Timings = Timings{Resize: resizeDur, Inference: inferDur, Total: time.Since(start)}
		return res
	}

	qualifying := make([]NormalizedDetection, 0, len(raws))
	for i, raw := range raws {
		nd, ok, evalErr := Evaluate(raw, bounds.Dx(), bounds.Dy(), policy)
		if evalErr != nil {
			log.WithError(evalErr).WithField("index", i).Warn("skipping malformed detection")
			continue
		}
		if ok {
			qualifying = append(qualifying, nd)
		}
	}

	waterlogged, confidence := Aggregate(raws, qualifying)

	res := Result{
		Waterlogged: boolPtr(waterlogged),
		Confidence:  confidence,
		Detections:  qualifying,
		RawCount:    len(raws),
	}

	var annotateDur time.Duration
	if len(raws) > 0 && p.renderer != nil {
		annotateStart := time.Now()
		uri, renderErr := p.render(processed, raws)
		annotateDur = time.Since(annotateStart)
		if renderErr != nil {
			log.WithError(renderErr).Warn("image annotation failed; continuing without processed image")
		} else if uri != "" {
			res.ProcessedImage = &uri
		}
	}

	res.Timings = Timings{
		Resize:    resizeDur,
		Inference: inferDur,
		Annotate:  annotateDur,
		Total:     time.Since(start),
	}

	log.WithFields(logrus.Fields{
		"raw_count":   len(raws),
		"qualifying":  len(qualifying),
		"waterlogged": waterlogged,
		"confidence":  confidence,
	}).Debug("pipeline finished")

	return res
}

// normalize resizes img to the model's square input unless it already matches.
func (p *Pipeline) normalize(img image.Image) image.Image {
	b := img.Bounds()
	if b.Dx() == p.inputSize && b.Dy() == p.inputSize && b.Min == (image.Point{}) {
		return img
	}
	return resize.Resize(uint(p.inputSize), uint(p.inputSize), img, resize.Bicubic)
}

func (p *Pipeline) infer(ctx context.Context, img image.Image) (raws []RawDetection, err error) {
	if p.model == nil {
		return nil, fmt.Errorf("%w: model not loaded", ErrInference)
	}
	defer func() {
		if r := recover(); r != nil {
			raws, err = nil, fmt.Errorf("%w: model panic: %v", ErrInference, r)
		}
	}()

	raws, err = p.model.Detect(ctx, img)
	if err != nil {
		if errors.Is(err, ErrInference) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}
	return raws, nil
}

func (p *Pipeline) render(img image.Image, raws []RawDetection) (uri string, err error) {
	defer func() {
		if r := recover(); r != nil {
			uri, err = "", fmt.Errorf("%w: renderer panic: %v", ErrAnnotation, r)
		}
	}()

	uri, err = p.renderer.Render(img, raws)
	if err != nil && !errors.Is(err, ErrAnnotation) {
		err = fmt.Errorf("%w: %w", ErrAnnotation, err)
	}
	return uri, err
}
