package hackrf

import (
	"slices"
	"testing"

	"github.com/roman-kulish/rfnoc-capture/internal/sdr"
)

func intPtr(v int) *int {
	return &v
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"valid", Config{Frequency: 2_450_000_000, SampleRate: 10_000_000}, false},
		{"frequency too low", Config{Frequency: 10, SampleRate: 10_000_000}, true},
		{"rate too high", Config{Frequency: 2_450_000_000, SampleRate: 40_000_000}, true},
		{"lna step", Config{Frequency: 2_450_000_000, SampleRate: 10_000_000, LNAGain: intPtr(10)}, true},
		{"vga range", Config{Frequency: 2_450_000_000, SampleRate: 10_000_000, VGAGain: intPtr(64)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Args(t *testing.T) {
	c := Config{
		Frequency:  2_450_000_000,
		SampleRate: 10_000_000,
		LNAGain:    intPtr(16),
		VGAGain:    intPtr(20),
	}

	args, err := c.Args(sdr.StreamCommand{Mode: sdr.StreamModeNumSamplesAndDone, NumSamples: 6912})
	if err != nil {
		t.Fatalf("Args failed: %v", err)
	}

	expected := []string{"-r", "-", "-f", "2450000000", "-s", "10000000", "-l", "16", "-g", "20", "-n", "6912"}
	if !slices.Equal(args, expected) {
		t.Errorf("Expected args %v, got %v", expected, args)
	}

	args, err = c.Args(sdr.StreamCommand{Mode: sdr.StreamModeStartContinuous})
	if err != nil {
		t.Fatalf("Args failed: %v", err)
	}
	if slices.Contains(args, "-n") {
		t.Errorf("Expected continuous stream without -n, got %v", args)
	}
}
