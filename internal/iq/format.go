package iq

import (
	"fmt"
	"strings"
)

const (
	// FormatSC16 is interleaved little-endian int16 I and Q, 4 bytes per sample
	FormatSC16 Format = "sc16"
	// FormatFC32 is interleaved little-endian float32 I and Q, 8 bytes per sample
	FormatFC32 Format = "fc32"
	// FormatInt32 packs a sc16 sample into one little-endian 32-bit word,
	// I in the upper 16 bits and Q in the lower 16 bits
	FormatInt32 Format = "int32"
)

var validFormats = map[Format]struct{}{
	FormatSC16:  {},
	FormatFC32:  {},
	FormatInt32: {},
}

// Format is an on-disk sample representation
type Format string

// ParseFormat parses a case-insensitive format name
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if err := f.Validate(); err != nil {
		return "", err
	}
	return f, nil
}

func (f Format) String() string {
	return string(f)
}

// Validate returns an error if the format is not one of sc16, fc32 or int32
func (f Format) Validate() error {
	if _, ok := validFormats[f]; !ok {
		return fmt.Errorf("invalid sample format '%s': must be one of sc16, fc32, int32", string(f))
	}
	return nil
}

// BytesPerSample returns the size of one complex sample of one channel
func (f Format) BytesPerSample() int {
	switch f {
	case FormatFC32:
		return 8
	case FormatSC16, FormatInt32:
		return 4
	default:
		return 0
	}
}

// Host returns the in-memory format the samples must be delivered in
// before they are converted to f. int32 is derived from sc16.
func (f Format) Host() Format {
	if f == FormatInt32 {
		return FormatSC16
	}
	return f
}
