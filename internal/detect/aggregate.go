package detect

import "math"

// Aggregate combines per-box decisions into the overall outcome.
//
// With qualifying detections the confidence is their maximum. With none, but with raw
// output, the first raw detection's confidence is reported anyway so callers still get a
// signal from the model. With no raw output the result is (false, 0).
func Aggregate(raws []RawDetection, qualifying []NormalizedDetection) (bool, float64) {
	if len(qualifying) > 0 {
		best := qualifying[0].Confidence
		for _, d := range qualifying[1:] {
			if d.Confidence > best {
				best = d.Confidence
			}
		}
		return true, best
	}
	if len(raws) == 0 {
		return false, 0
	}
	c := raws[0].Confidence
	if math.IsNaN(c) || math.IsInf(c, 0) {
		return false, 0
	}
	return false, c
}
