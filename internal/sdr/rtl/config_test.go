package rtl

import (
	"slices"
	"testing"

	"github.com/roman-kulish/rfnoc-capture/internal/sdr"
)

func TestConfig_Args(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		cmd      sdr.StreamCommand
		expected []string
		wantErr  bool
	}{
		{
			name:     "measurement",
			config:   Config{Frequency: 100_000_000, SampleRate: 2_048_000},
			cmd:      sdr.StreamCommand{Mode: sdr.StreamModeNumSamplesAndDone, NumSamples: 6912},
			expected: []string{"-f", "100000000", "-s", "2048000", "-d", "0", "-n", "6912", "-"},
		},
		{
			name:     "continuous with gain",
			config:   Config{Frequency: 433_920_000, SampleRate: 1_024_000, Gain: 40, PPMError: -12},
			cmd:      sdr.StreamCommand{Mode: sdr.StreamModeStartContinuous},
			expected: []string{"-f", "433920000", "-s", "1024000", "-d", "0", "-g", "40", "-p", "-12", "-"},
		},
		{
			name:    "invalid rate",
			config:  Config{Frequency: 100_000_000, SampleRate: 500_000},
			cmd:     sdr.StreamCommand{Mode: sdr.StreamModeStartContinuous},
			wantErr: true,
		},
		{
			name:    "invalid block size",
			config:  Config{Frequency: 100_000_000, SampleRate: 2_048_000, BlockSize: 1000},
			cmd:     sdr.StreamCommand{Mode: sdr.StreamModeStartContinuous},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, err := tt.config.Args(tt.cmd)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error, got args %v", args)
				}
				return
			}
			if err != nil {
				t.Fatalf("Args failed: %v", err)
			}
			if !slices.Equal(args, tt.expected) {
				t.Errorf("Expected args %v, got %v", tt.expected, args)
			}
		})
	}
}
