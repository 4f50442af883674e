package iq

import "testing"

func TestFormat(t *testing.T) {
	tests := []struct {
		input   string
		format  Format
		bps     int
		host    Format
		wantErr bool
	}{
		{"sc16", FormatSC16, 4, FormatSC16, false},
		{"FC32", FormatFC32, 8, FormatFC32, false},
		{" int32 ", FormatInt32, 4, FormatSC16, false},
		{"cs8", "", 0, "", true},
		{"", "", 0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			f, err := ParseFormat(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseFormat(%q) failed: %v", tt.input, err)
			}
			if f != tt.format {
				t.Errorf("Expected format %s, got %s", tt.format, f)
			}
			if f.BytesPerSample() != tt.bps {
				t.Errorf("Expected %d bytes per sample, got %d", tt.bps, f.BytesPerSample())
			}
			if f.Host() != tt.host {
				t.Errorf("Expected host format %s, got %s", tt.host, f.Host())
			}
		})
	}
}

func TestNewBuffer_Invalid(t *testing.T) {
	if _, err := NewBuffer(FormatInt32, 1, 16); err == nil {
		t.Error("Expected error for int32 host buffer")
	}
	if _, err := NewBuffer(FormatSC16, 0, 16); err == nil {
		t.Error("Expected error for zero channels")
	}
	if _, err := NewBuffer(FormatSC16, 1, 0); err == nil {
		t.Error("Expected error for zero capacity")
	}
}
