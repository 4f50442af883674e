package ofdm

import "math/cmplx"

// SchmidlCox computes the Schmidl & Cox timing metric of y for a preamble
// made of two identical halves of half samples each. m[i+1] is the metric of
// the window ending at sample i; it reaches 1 when the window covers the
// second half of the preamble and stays there while the preamble slides out.
func SchmidlCox(y []complex64, half int) []float64 {
	m := make([]float64, len(y))
	if half <= 0 {
		return m
	}

	at := func(i int) complex128 {
		if i < 0 {
			return 0
		}
		return complex128(y[i])
	}

	// sums are taken over the window each time so silence after a burst
	// yields exactly zero energy
	for i := 0; i+1 < len(y); i++ {
		var p complex128
		var r float64
		for d := i - half + 1; d <= i; d++ {
			p += cmplx.Conj(at(d-half)) * at(d)
			r += sqAbs(at(d))
		}
		if r != 0 {
			a := cmplx.Abs(p)
			m[i+1] = a * a / (r * r)
		}
	}
	return m
}

func sqAbs(c complex128) float64 {
	return real(c)*real(c) + imag(c)*imag(c)
}
