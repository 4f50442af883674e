package ofdm

// DefaultMetricThreshold is the metric level above which a frame start is searched for
const DefaultMetricThreshold = 10485760

// Metric is a timing metric value
type Metric interface {
	~int32 | ~int64 | ~uint32 | ~float32 | ~float64
}

// FindMaxIdx returns the index of the maximum of the first run of values
// above threshold, or -1 when no value exceeds it. A run still open at the
// end of the input returns its maximum so far.
func FindMaxIdx[T Metric](metric []T, threshold T) int {
	detecting := false
	maxIdx := -1
	var maxVal T

	for i, v := range metric {
		if !detecting {
			if v > threshold {
				detecting = true
				maxIdx, maxVal = i, v
			}
			continue
		}

		if v < threshold {
			return maxIdx
		}
		if v > maxVal {
			maxIdx, maxVal = i, v
		}
	}

	return maxIdx
}
