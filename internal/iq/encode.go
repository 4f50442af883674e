package iq

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Encoder converts buffered samples to an output format. The scratch space is
// sized for one full channel chunk so encoding never allocates.
type Encoder struct {
	format  Format
	scratch []byte
}

// NewEncoder creates an encoder for chunks of up to capacity samples
func NewEncoder(format Format, capacity int) (*Encoder, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("invalid encoder capacity: %d", capacity)
	}
	return &Encoder{
		format:  format,
		scratch: make([]byte, capacity*format.BytesPerSample()),
	}, nil
}

func (e *Encoder) Format() Format {
	return e.format
}

// Encode writes the first n samples of channel ch to w and returns the number of bytes written.
func (e *Encoder) Encode(w io.Writer, b *Buffer, ch, n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	if b.Format() != e.format.Host() {
		return 0, fmt.Errorf("cannot encode %s buffer as %s", b.Format(), e.format)
	}
	if n > b.Capacity() {
		return 0, fmt.Errorf("sample count %d exceeds buffer capacity %d", n, b.Capacity())
	}

	size := n * e.format.BytesPerSample()
	if size > len(e.scratch) {
		e.scratch = make([]byte, size)
	}
	p := e.scratch[:size]

	switch e.format {
	case FormatSC16:
		for i, s := range b.SC16(ch)[:n] {
			PutSC16(p[i*4:], s)
		}

	case FormatFC32:
		for i, s := range b.FC32(ch)[:n] {
			PutFC32(p[i*8:], s)
		}

	case FormatInt32:
		for i, s := range b.SC16(ch)[:n] {
			binary.LittleEndian.PutUint32(p[i*4:], PackInt32(s))
		}
	}

	return w.Write(p)
}

// PutSC16 writes s as two little-endian int16 values
func PutSC16(p []byte, s SC16) {
	binary.LittleEndian.PutUint16(p[0:], uint16(s.I))
	binary.LittleEndian.PutUint16(p[2:], uint16(s.Q))
}

// PutFC32 writes c as two little-endian float32 values
func PutFC32(p []byte, c complex64) {
	binary.LittleEndian.PutUint32(p[0:], math.Float32bits(real(c)))
	binary.LittleEndian.PutUint32(p[4:], math.Float32bits(imag(c)))
}
