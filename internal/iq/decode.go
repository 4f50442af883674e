package iq

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DecodeSC16 decodes interleaved little-endian int16 pairs
func DecodeSC16(p []byte) ([]SC16, error) {
	if len(p)%4 != 0 {
		return nil, fmt.Errorf("sc16: %d bytes is not a whole number of samples", len(p))
	}
	out := make([]SC16, len(p)/4)
	for i := range out {
		out[i] = SC16{
			I: int16(binary.LittleEndian.Uint16(p[i*4:])),
			Q: int16(binary.LittleEndian.Uint16(p[i*4+2:])),
		}
	}
	return out, nil
}

// DecodeFC32 decodes interleaved little-endian float32 pairs
func DecodeFC32(p []byte) ([]complex64, error) {
	if len(p)%8 != 0 {
		return nil, fmt.Errorf("fc32: %d bytes is not a whole number of samples", len(p))
	}
	out := make([]complex64, len(p)/8)
	for i := range out {
		re := math.Float32frombits(binary.LittleEndian.Uint32(p[i*8:]))
		im := math.Float32frombits(binary.LittleEndian.Uint32(p[i*8+4:]))
		out[i] = complex(re, im)
	}
	return out, nil
}

// DecodeInt32 decodes little-endian 32-bit words as signed metric values
func DecodeInt32(p []byte) ([]int32, error) {
	if len(p)%4 != 0 {
		return nil, fmt.Errorf("int32: %d bytes is not a whole number of words", len(p))
	}
	out := make([]int32, len(p)/4)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(p[i*4:]))
	}
	return out, nil
}
