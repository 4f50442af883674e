package analysis

import (
	"github.com/roman-kulish/rfnoc-capture/internal/ofdm"
)

// Detection is the synchronization index found in one block
type Detection struct {
	Block  Block
	Offset int     // index within the block, -1 if nothing exceeded the threshold
	Index  int     // index within the capture, -1 if nothing exceeded the threshold
	Value  float64 // metric value at the index
}

func (d Detection) Found() bool {
	return d.Offset >= 0
}

// DetectMetric runs the detector on every block of an int32 capture
func (c *Capture) DetectMetric(threshold int32) ([]Detection, error) {
	if c.Metric == nil {
		return nil, ErrNoMetric
	}

	var out []Detection
	for _, b := range c.Blocks() {
		out = append(out, detection(b, c.Metric[b.Start:b.End], threshold))
	}
	return out, nil
}

// DetectSignal computes the timing metric of every block of a signal capture
// for a preamble of two halves of half samples, and runs the detector on it.
func (c *Capture) DetectSignal(half int, threshold float64) []Detection {
	var out []Detection
	for _, b := range c.Blocks() {
		metric := ofdm.SchmidlCox(c.Samples[b.Start:b.End], half)
		out = append(out, detection(b, metric, threshold))
	}
	return out
}

func detection[T ofdm.Metric](b Block, metric []T, threshold T) Detection {
	d := Detection{Block: b, Offset: -1, Index: -1}
	if idx := ofdm.FindMaxIdx(metric, threshold); idx >= 0 {
		d.Offset = idx
		d.Index = b.Start + idx
		d.Value = float64(metric[idx])
	}
	return d
}
