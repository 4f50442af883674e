package iq

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
)

func TestEncoder_SC16(t *testing.T) {
	buf, err := NewBuffer(FormatSC16, 1, 4)
	if err != nil {
		t.Fatalf("Failed to create buffer: %v", err)
	}
	buf.SC16(0)[0] = SC16{I: 100, Q: -50}

	enc, err := NewEncoder(FormatSC16, 4)
	if err != nil {
		t.Fatalf("Failed to create encoder: %v", err)
	}

	var out bytes.Buffer
	n, err := enc.Encode(&out, buf, 0, 1)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	expected := []byte{0x64, 0x00, 0xCE, 0xFF}
	if n != len(expected) {
		t.Errorf("Expected %d bytes written, got %d", len(expected), n)
	}
	if !bytes.Equal(out.Bytes(), expected) {
		t.Errorf("Expected % X, got % X", expected, out.Bytes())
	}
}

func TestEncoder_Int32(t *testing.T) {
	buf, err := NewBuffer(FormatSC16, 1, 2)
	if err != nil {
		t.Fatalf("Failed to create buffer: %v", err)
	}
	buf.SC16(0)[0] = SC16{I: 0x1234, Q: 0x5678}
	buf.SC16(0)[1] = SC16{I: -1, Q: -2}

	enc, err := NewEncoder(FormatInt32, 2)
	if err != nil {
		t.Fatalf("Failed to create encoder: %v", err)
	}

	var out bytes.Buffer
	if _, err = enc.Encode(&out, buf, 0, 2); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if out.Len() != 8 {
		t.Fatalf("Expected 8 bytes, got %d", out.Len())
	}

	if w := binary.LittleEndian.Uint32(out.Bytes()[0:]); w != 0x12345678 {
		t.Errorf("Expected word 0x12345678, got 0x%08X", w)
	}
	if w := binary.LittleEndian.Uint32(out.Bytes()[4:]); w != 0xFFFFFFFE {
		t.Errorf("Expected word 0xFFFFFFFE, got 0x%08X", w)
	}
}

func TestEncoder_FC32(t *testing.T) {
	buf, err := NewBuffer(FormatFC32, 2, 3)
	if err != nil {
		t.Fatalf("Failed to create buffer: %v", err)
	}
	buf.FC32(1)[0] = complex(0.5, -0.25)

	enc, err := NewEncoder(FormatFC32, 3)
	if err != nil {
		t.Fatalf("Failed to create encoder: %v", err)
	}

	var out bytes.Buffer
	if _, err = enc.Encode(&out, buf, 1, 1); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	p := out.Bytes()
	if len(p) != 8 {
		t.Fatalf("Expected 8 bytes, got %d", len(p))
	}
	if re := math.Float32frombits(binary.LittleEndian.Uint32(p[0:])); re != 0.5 {
		t.Errorf("Expected I 0.5, got %f", re)
	}
	if im := math.Float32frombits(binary.LittleEndian.Uint32(p[4:])); im != -0.25 {
		t.Errorf("Expected Q -0.25, got %f", im)
	}
}

func TestEncoder_WritesOnlyRequestedCount(t *testing.T) {
	buf, err := NewBuffer(FormatSC16, 1, 8)
	if err != nil {
		t.Fatalf("Failed to create buffer: %v", err)
	}
	for i := range buf.SC16(0) {
		buf.SC16(0)[i] = SC16{I: int16(i), Q: int16(i)}
	}

	enc, err := NewEncoder(FormatSC16, 8)
	if err != nil {
		t.Fatalf("Failed to create encoder: %v", err)
	}

	tests := []struct {
		name  string
		count int
		bytes int
	}{
		{"zero", 0, 0},
		{"partial", 3, 12},
		{"full", 8, 32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			n, err := enc.Encode(&out, buf, 0, tt.count)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			if n != tt.bytes || out.Len() != tt.bytes {
				t.Errorf("Expected %d bytes, got n=%d len=%d", tt.bytes, n, out.Len())
			}
		})
	}

	if _, err = enc.Encode(&bytes.Buffer{}, buf, 0, 9); err == nil {
		t.Error("Expected error when count exceeds capacity")
	}
}

func TestEncoder_HostFormatMismatch(t *testing.T) {
	buf, err := NewBuffer(FormatFC32, 1, 1)
	if err != nil {
		t.Fatalf("Failed to create buffer: %v", err)
	}
	enc, err := NewEncoder(FormatInt32, 1)
	if err != nil {
		t.Fatalf("Failed to create encoder: %v", err)
	}
	if _, err = enc.Encode(&bytes.Buffer{}, buf, 0, 1); err == nil {
		t.Error("Expected error encoding fc32 buffer as int32")
	}
}

func TestDecode_RoundTrip(t *testing.T) {
	p := []byte{0x64, 0x00, 0xCE, 0xFF, 0x78, 0x56, 0x34, 0x12}

	sc, err := DecodeSC16(p)
	if err != nil {
		t.Fatalf("DecodeSC16 failed: %v", err)
	}
	if sc[0] != (SC16{I: 100, Q: -50}) {
		t.Errorf("Expected {100 -50}, got %v", sc[0])
	}

	words, err := DecodeInt32(p)
	if err != nil {
		t.Fatalf("DecodeInt32 failed: %v", err)
	}
	if words[1] != 0x12345678 {
		t.Errorf("Expected 0x12345678, got 0x%08X", words[1])
	}
	if s := UnpackInt32(uint32(words[1])); s != (SC16{I: 0x1234, Q: 0x5678}) {
		t.Errorf("Expected unpacked {0x1234 0x5678}, got %v", s)
	}

	if _, err = DecodeFC32(p[:6]); err == nil {
		t.Error("Expected error for truncated fc32 input")
	}
}
