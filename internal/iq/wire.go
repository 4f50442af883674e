package iq

import (
	"encoding/binary"
	"fmt"
)

const (
	// WireSC16 is interleaved little-endian int16 I/Q
	WireSC16 Wire = "sc16"
	// WireSC8 is interleaved int8 I/Q
	WireSC8 Wire = "sc8"
	// WireCU8 is interleaved unsigned 8-bit I/Q with a 128 offset
	WireCU8 Wire = "cu8"
)

// Wire is the raw sample encoding produced by an external receiver tool
type Wire string

func (w Wire) String() string {
	return string(w)
}

// BytesPerSample returns the size of one complex sample on the wire
func (w Wire) BytesPerSample() int {
	switch w {
	case WireSC16:
		return 4
	case WireSC8, WireCU8:
		return 2
	default:
		return 0
	}
}

func (w Wire) Validate() error {
	if w.BytesPerSample() == 0 {
		return fmt.Errorf("invalid wire format '%s'", string(w))
	}
	return nil
}

// Decode converts whole wire samples from p into channel ch of dst starting
// at offset, and returns the number of samples converted.
func (w Wire) Decode(dst *Buffer, ch, offset int, p []byte) int {
	bps := w.BytesPerSample()
	if bps == 0 {
		return 0
	}

	n := min(len(p)/bps, dst.Capacity()-offset)
	for i := 0; i < n; i++ {
		s := w.sample(p[i*bps:])
		switch dst.Format() {
		case FormatSC16:
			dst.SC16(ch)[offset+i] = s
		case FormatFC32:
			dst.FC32(ch)[offset+i] = s.Complex64()
		}
	}
	return n
}

func (w Wire) sample(p []byte) SC16 {
	switch w {
	case WireSC8:
		return SC16{I: int16(int8(p[0])) << 8, Q: int16(int8(p[1])) << 8}
	case WireCU8:
		return SC16{I: (int16(p[0]) - 128) << 8, Q: (int16(p[1]) - 128) << 8}
	default:
		return SC16{
			I: int16(binary.LittleEndian.Uint16(p[0:])),
			Q: int16(binary.LittleEndian.Uint16(p[2:])),
		}
	}
}
