package analysis

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats summarizes a series
type Stats struct {
	N      int
	Min    float64
	Max    float64
	ArgMax int
	Mean   float64
	StdDev float64
	RMS    float64
}

// Describe computes the summary of x. An empty series gives a zero Stats.
func Describe(x []float64) Stats {
	if len(x) == 0 {
		return Stats{}
	}

	s := Stats{
		N:      len(x),
		Min:    floats.Min(x),
		Max:    floats.Max(x),
		ArgMax: floats.MaxIdx(x),
	}
	s.Mean, s.StdDev = stat.MeanStdDev(x, nil)
	if len(x) == 1 {
		s.StdDev = 0
	}
	s.RMS = floats.Norm(x, 2) / math.Sqrt(float64(len(x)))
	return s
}

// Spectrum averages the power of Hann windowed size point frames of samples
// and returns it in dBFS, DC in the middle. A trailing partial frame is ignored.
func Spectrum(samples []complex64, size int) ([]float64, error) {
	if size < 2 {
		return nil, fmt.Errorf("invalid FFT size %d: must be at least 2", size)
	}
	frames := len(samples) / size
	if frames == 0 {
		return nil, errors.New("fewer samples than the FFT size")
	}

	fft := fourier.NewCmplxFFT(size)
	frame := make([]complex128, size)
	coeffs := make([]complex128, size)
	power := make([]float64, size)

	var gain float64
	for _, w := range window.HannComplex(ones(size)) {
		gain += real(w)
	}

	for f := 0; f < frames; f++ {
		for i := range frame {
			frame[i] = complex128(samples[f*size+i])
		}
		window.HannComplex(frame)
		fft.Coefficients(coeffs, frame)
		for i, c := range coeffs {
			m := cmplx.Abs(c) / gain
			power[i] += m * m
		}
	}

	out := make([]float64, size)
	half := size / 2
	for i, p := range power {
		p /= float64(frames)
		db := math.Inf(-1)
		if p > 0 {
			db = 10 * math.Log10(p)
		}
		out[(i+half)%size] = db
	}
	return out, nil
}

func ones(n int) []complex128 {
	out := make([]complex128, n)
	for i := range out {
		out[i] = 1
	}
	return out
}
