package analysis

import (
	"errors"
	"fmt"
	"math/cmplx"
	"strings"
)

const (
	ModeMagnitude Mode = "magnitude"
	ModeReal      Mode = "real"
	ModeImag      Mode = "imag"
	ModeMetric    Mode = "metric"
)

// ErrNoMetric is returned when a metric series is requested from a signal capture
var ErrNoMetric = errors.New("capture holds no metric, int32 format required")

// Mode selects the value plotted for each sample
type Mode string

func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case ModeMagnitude, ModeReal, ModeImag, ModeMetric:
		return m, nil
	default:
		return "", fmt.Errorf("invalid series mode '%s': must be one of magnitude, real, imag, metric", s)
	}
}

// Series returns one value per sample of the capture
func (c *Capture) Series(mode Mode) ([]float64, error) {
	if mode == ModeMetric {
		if c.Metric == nil {
			return nil, ErrNoMetric
		}
		out := make([]float64, len(c.Metric))
		for i, v := range c.Metric {
			out[i] = float64(v)
		}
		return out, nil
	}

	out := make([]float64, len(c.Samples))
	for i, s := range c.Samples {
		switch mode {
		case ModeMagnitude:
			out[i] = cmplx.Abs(complex128(s))
		case ModeReal:
			out[i] = float64(real(s))
		case ModeImag:
			out[i] = float64(imag(s))
		default:
			return nil, fmt.Errorf("invalid series mode '%s'", mode)
		}
	}
	return out, nil
}
