package iq

import "math"

// DefaultClipThreshold is the normalized magnitude at which a component counts as clipped
const DefaultClipThreshold = 0.99

// ClipReport is the result of checking one channel of one chunk
type ClipReport struct {
	Channel int
	MaxI    float64 // max |I| normalized to full scale
	MaxQ    float64 // max |Q| normalized to full scale
	Clipped bool
}

// ClipMonitor detects analog front-end saturation. It keeps no state
// between chunks and never modifies the buffer.
type ClipMonitor struct {
	threshold float64
}

func NewClipMonitor(threshold float64) *ClipMonitor {
	if threshold <= 0 {
		threshold = DefaultClipThreshold
	}
	return &ClipMonitor{threshold: threshold}
}

func (m *ClipMonitor) Threshold() float64 {
	return m.threshold
}

// Check scans the first n samples of channel ch
func (m *ClipMonitor) Check(b *Buffer, ch, n int) ClipReport {
	r := ClipReport{Channel: ch}
	if n <= 0 {
		return r
	}

	switch b.Format() {
	case FormatSC16:
		for _, s := range b.SC16(ch)[:n] {
			r.MaxI = math.Max(r.MaxI, math.Abs(float64(s.I)))
			r.MaxQ = math.Max(r.MaxQ, math.Abs(float64(s.Q)))
		}
		r.MaxI /= FullScaleSC16
		r.MaxQ /= FullScaleSC16

	case FormatFC32:
		for _, s := range b.FC32(ch)[:n] {
			r.MaxI = math.Max(r.MaxI, math.Abs(float64(real(s))))
			r.MaxQ = math.Max(r.MaxQ, math.Abs(float64(imag(s))))
		}
	}

	r.Clipped = r.MaxI >= m.threshold || r.MaxQ >= m.threshold
	return r
}
