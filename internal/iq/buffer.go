package iq

import "fmt"

// Buffer holds one fixed-capacity chunk of samples per channel. It is
// allocated once and reused for every fetch; after a fetch only the first
// Count samples of each channel are meaningful.
type Buffer struct {
	format   Format
	capacity int

	sc16 [][]SC16
	fc32 [][]complex64
}

// NewBuffer allocates a buffer for the given host format. Only sc16 and fc32
// can be held in memory; int32 is produced from sc16 at encode time.
func NewBuffer(format Format, channels, capacity int) (*Buffer, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("invalid buffer parameters: channels=%d", channels)
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("invalid buffer parameters: capacity=%d", capacity)
	}

	b := Buffer{format: format, capacity: capacity}
	switch format {
	case FormatSC16:
		b.sc16 = make([][]SC16, channels)
		for ch := range b.sc16 {
			b.sc16[ch] = make([]SC16, capacity)
		}

	case FormatFC32:
		b.fc32 = make([][]complex64, channels)
		for ch := range b.fc32 {
			b.fc32[ch] = make([]complex64, capacity)
		}

	default:
		return nil, fmt.Errorf("invalid host format '%s': must be sc16 or fc32", format)
	}

	return &b, nil
}

func (b *Buffer) Format() Format {
	return b.format
}

func (b *Buffer) Capacity() int {
	return b.capacity
}

func (b *Buffer) Channels() int {
	if b.format == FormatFC32 {
		return len(b.fc32)
	}
	return len(b.sc16)
}

// SC16 returns the channel slice of a sc16 buffer, nil otherwise
func (b *Buffer) SC16(ch int) []SC16 {
	if b.sc16 == nil {
		return nil
	}
	return b.sc16[ch]
}

// FC32 returns the channel slice of a fc32 buffer, nil otherwise
func (b *Buffer) FC32(ch int) []complex64 {
	if b.fc32 == nil {
		return nil
	}
	return b.fc32[ch]
}
