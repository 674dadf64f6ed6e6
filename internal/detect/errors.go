package detect

import (
	"errors"
	"fmt"
)

var (
	// ErrDecode reports unreadable image bytes.
	ErrDecode = errors.New("decode failure")
	// ErrFetch reports an unreachable URL, a timeout or a non-success status.
	ErrFetch = errors.New("fetch failure")
	// ErrInference reports a model fault.
	ErrInference = errors.New("inference failure")
	// ErrAnnotation reports a rendering or encoding fault.
	ErrAnnotation = errors.New("annotation failure")
	// ErrMissingInput reports a request with no identifiable image source.
	ErrMissingInput = errors.New("missing input")
	// ErrInvalidDetection reports a raw detection with non-numeric geometry or score.
	ErrInvalidDetection = errors.New("invalid detection")
)

// Kind returns a short label for the failure class of err, or "" when err is nil or unknown.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, ErrFetch):
		return "fetch"
	case errors.Is(err, ErrInference):
		return "inference"
	case errors.Is(err, ErrAnnotation):
		return "annotation"
	case errors.Is(err, ErrMissingInput):
		return "missing_input"
	default:
		return "internal"
	}
}

// FailedResult builds the degraded record returned when err stops the pipeline.
// Fetch and inference failures leave waterlogged unknown (null); the rest report false.
func FailedResult(err error) Result {
	res := Result{
		Detections: []NormalizedDetection{},
		Failure:    err,
	}
	switch {
	case errors.Is(err, ErrFetch):
		res.Error = fmt.Sprintf("Failed to fetch image: %v", cause(err, ErrFetch))
	case errors.Is(err, ErrInference):
		res.Error = fmt.Sprintf("Model inference failed: %v", cause(err, ErrInference))
	case errors.Is(err, ErrDecode):
		res.Waterlogged = boolPtr(false)
		res.Error = fmt.Sprintf("Failed to decode image: %v", cause(err, ErrDecode))
	default:
		res.Waterlogged = boolPtr(false)
		if err != nil {
			res.Error = err.Error()
		}
	}
	return res
}

// cause strips the sentinel prefix from err's message so clients see the underlying reason.
func cause(err, sentinel error) string {
	msg := err.Error()
	prefix := sentinel.Error() + ": "
	if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
		return msg[len(prefix):]
	}
	return msg
}
