// Package detect turns raw object-detection output into a waterlogging judgment.
package detect

import (
	"context"
	"image"
	"math"
	"time"
)

// Box is an axis-aligned bounding box in pixel space of the processed image.
type Box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Width returns X2-X1. It is negative for inverted boxes.
func (b Box) Width() float64 { return b.X2 - b.X1 }

// Height returns Y2-Y1. It is negative for inverted boxes.
func (b Box) Height() float64 { return b.Y2 - b.Y1 }

// Clip intersects b with [0,width]x[0,height]. Inverted boxes stay inverted.
func (b Box) Clip(width, height float64) Box {
	return Box{
		X1: math.Min(math.Max(b.X1, 0), width),
		Y1: math.Min(math.Max(b.Y1, 0), height),
		X2: math.Min(math.Max(b.X2, 0), width),
		Y2: math.Min(math.Max(b.Y2, 0), height),
	}
}

// RawDetection is one candidate region as returned by the model, before thresholding.
type RawDetection struct {
	Box        Box
	Confidence float64
}

// NormalizedDetection is a qualifying detection as exposed in the result record.
type NormalizedDetection struct {
	Confidence float64 `json:"conf"`
	AreaRatio  float64 `json:"area_ratio"`
}

// Policy holds the thresholds a detection must meet (inclusive) to qualify.
type Policy struct {
	MinAreaRatio  float64 `yaml:"min_area_ratio" json:"min_area_ratio"`
	MinConfidence float64 `yaml:"min_confidence" json:"min_confidence"`
}

// Model is the detection capability. Implementations must be safe for concurrent use.
type Model interface {
	Detect(ctx context.Context, img image.Image) ([]RawDetection, error)
}

// Renderer draws raw detections onto a copy of img and returns a data URI.
// It returns "" with a nil error when raws is empty.
type Renderer interface {
	Render(img image.Image, raws []RawDetection) (string, error)
}

// Timings captures per-stage latency of one pipeline run.
type Timings struct {
	Resize    time.Duration
	Inference time.Duration
	Annotate  time.Duration
	Total     time.Duration
}

// Result is the outward-facing record for one request.
type Result struct {
	Waterlogged    *bool                 `json:"waterlogged"`
	Confidence     float64               `json:"confidence"`
	Detections     []NormalizedDetection `json:"detections"`
	ProcessedImage *string               `json:"processed_image"`
	ImageFilename  *string               `json:"image_filename,omitempty"`
	ImageURL       *string               `json:"image_url,omitempty"`
	Error          string                `json:"error,omitempty"`

	// RawCount is the number of detections the model returned.
	RawCount int `json:"-"`
	// Failure is the typed failure behind Error, if any.
	Failure error   `json:"-"`
	Timings Timings `json:"-"`
}

// WithFilename sets the upload filename as the source identifier.
func (r Result) WithFilename(name string) Result {
	if name != "" {
		r.ImageFilename = &name
	}
	return r
}

// WithURL sets the remote URL as the source identifier.
func (r Result) WithURL(u string) Result {
	if u != "" {
		r.ImageURL = &u
	}
	return r
}

func boolPtr(b bool) *bool { return &b }
