package iq

import "testing"

func TestWire_Decode(t *testing.T) {
	tests := []struct {
		name     string
		wire     Wire
		input    []byte
		expected []SC16
	}{
		{"sc16", WireSC16, []byte{0x64, 0x00, 0xCE, 0xFF}, []SC16{{I: 100, Q: -50}}},
		{"sc8", WireSC8, []byte{0x01, 0xFF, 0x7F, 0x80}, []SC16{{I: 256, Q: -256}, {I: 32512, Q: -32768}}},
		{"cu8", WireCU8, []byte{128, 129, 0, 255}, []SC16{{I: 0, Q: 256}, {I: -32768, Q: 32512}}},
		{"partial sample dropped", WireSC8, []byte{0x01, 0x01, 0x02}, []SC16{{I: 256, Q: 256}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := NewBuffer(FormatSC16, 1, 4)
			if err != nil {
				t.Fatalf("Failed to create buffer: %v", err)
			}

			n := tt.wire.Decode(buf, 0, 0, tt.input)
			if n != len(tt.expected) {
				t.Fatalf("Expected %d samples, got %d", len(tt.expected), n)
			}
			for i, s := range tt.expected {
				if buf.SC16(0)[i] != s {
					t.Errorf("Sample %d: expected %v, got %v", i, s, buf.SC16(0)[i])
				}
			}
		})
	}
}

func TestWire_DecodeRespectsCapacity(t *testing.T) {
	buf, err := NewBuffer(FormatFC32, 1, 2)
	if err != nil {
		t.Fatalf("Failed to create buffer: %v", err)
	}

	n := WireSC16.Decode(buf, 0, 1, []byte{0, 0x40, 0, 0xC0, 1, 1, 1, 1})
	if n != 1 {
		t.Fatalf("Expected 1 sample to fit, got %d", n)
	}
	if got := buf.FC32(0)[1]; got != complex(0.5, -0.5) {
		t.Errorf("Expected (0.5-0.5i), got %v", got)
	}
}
