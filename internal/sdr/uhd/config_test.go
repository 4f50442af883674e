package uhd

import (
	"errors"
	"slices"
	"testing"

	"github.com/roman-kulish/rfnoc-capture/internal/sdr"
	"github.com/roman-kulish/rfnoc-capture/internal/sdr/driver"
)

func TestConfig_CmdArgs(t *testing.T) {
	c := Config{
		Args:             "type=x300,addr=192.168.10.2",
		SampleRate:       200e6,
		Frequency:        3.2e9,
		Gain:             30,
		Bandwidth:        160e6,
		Antenna:          "TX/RX",
		Reference:        ReferenceExternal,
		SetupTime:        1.5,
		SamplesPerBuffer: 2304,
	}

	args, err := c.CmdArgs(sdr.StreamCommand{Mode: sdr.StreamModeNumSamplesAndDone, NumSamples: 6912})
	if err != nil {
		t.Fatalf("CmdArgs failed: %v", err)
	}

	expected := []string{
		"--file", "/dev/stdout", "--type", "short",
		"--args", "type=x300,addr=192.168.10.2",
		"--rate", "200000000", "--freq", "3200000000", "--gain", "30",
		"--bw", "160000000", "--ant", "TX/RX", "--ref", "external",
		"--setup", "1.5", "--spb", "2304", "--nsamps", "6912",
	}
	if !slices.Equal(args, expected) {
		t.Errorf("Expected args\n%v\ngot\n%v", expected, args)
	}
}

func TestConfig_Validate(t *testing.T) {
	c := Config{SampleRate: 1e6, Frequency: 1e9, Reference: "atomic"}

	err := c.Validate()
	if err == nil {
		t.Fatal("Expected error for invalid reference")
	}

	var configErr *driver.ConfigError
	if !errors.As(err, &configErr) {
		t.Errorf("Expected *driver.ConfigError, got %T", err)
	}
}
