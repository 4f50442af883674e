package iq

import "math"

// FullScaleSC16 is the magnitude that normalizes an int16 component to [-1, 1]
const FullScaleSC16 = 32768.0

// SC16 is a complex sample with 16-bit signed components
type SC16 struct {
	I int16
	Q int16
}

// Complex64 returns the full-scale-normalized value of the sample
func (s SC16) Complex64() complex64 {
	return complex(float32(float64(s.I)/FullScaleSC16), float32(float64(s.Q)/FullScaleSC16))
}

// SC16FromComplex64 scales a normalized sample to int16 components, saturating out of range values.
func SC16FromComplex64(c complex64) SC16 {
	return SC16{
		I: saturate16(float64(real(c)) * FullScaleSC16),
		Q: saturate16(float64(imag(c)) * FullScaleSC16),
	}
}

// PackInt32 packs I into the upper and Q into the lower 16 bits of a word
func PackInt32(s SC16) uint32 {
	return uint32(uint16(s.I))<<16 | uint32(uint16(s.Q))
}

// UnpackInt32 is the inverse of PackInt32
func UnpackInt32(w uint32) SC16 {
	return SC16{I: int16(uint16(w >> 16)), Q: int16(uint16(w))}
}

func saturate16(v float64) int16 {
	v = math.Round(v)
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	default:
		return int16(v)
	}
}
