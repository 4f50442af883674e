package uhd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roman-kulish/rfnoc-capture/internal/sdr"
	"github.com/roman-kulish/rfnoc-capture/internal/sdr/driver"
)

const (
	ReferenceInternal = "internal"
	ReferenceExternal = "external"
	ReferenceGPSDO    = "gpsdo"
)

var validReferences = map[string]struct{}{
	ReferenceInternal: {},
	ReferenceExternal: {},
	ReferenceGPSDO:    {},
}

// Usage examples from the UHD examples:
// https://files.ettus.com/manual/page_uhd.html

/*
    uhdConfig := uhd.Config{
        Args:       "type=x300,addr=192.168.10.2",
        SampleRate: 200e6,
        Frequency:  3.2e9,
        Gain:       30,
        Bandwidth:  160e6,
        Antenna:    "TX/RX",
        Reference:  "external",
    }
    // A 6912 sample measurement executes:
    // rx_samples_to_file --args type=x300,addr=192.168.10.2 --file /dev/stdout --type short
    //   --rate 200000000 --freq 3200000000 --gain 30 --bw 160000000 --ant TX/RX
    //   --ref external --setup 1.5 --spb 2304 --nsamps 6912
*/

// Config is the `rx_samples_to_file` tool configuration
type Config struct {
	Args string `yaml:"args" json:"args"` // --args device address

	// Radio
	SampleRate float64 `yaml:"sampleRate" json:"sampleRate"` // --rate (Hz)
	Frequency  float64 `yaml:"frequency" json:"frequency"`   // --freq (Hz)
	Gain       float64 `yaml:"gain" json:"gain"`             // --gain (dB)
	Bandwidth  float64 `yaml:"bandwidth" json:"bandwidth"`   // --bw (Hz)
	Antenna    string  `yaml:"antenna" json:"antenna"`       // --ant
	Subdev     string  `yaml:"subdev" json:"subdev"`         // --subdev
	Channel    int     `yaml:"channel" json:"channel"`       // --channel

	// Clocking
	Reference string  `yaml:"reference" json:"reference"` // --ref internal, external, gpsdo
	SetupTime float64 `yaml:"setupTime" json:"setupTime"` // --setup seconds for locks
	SkipLO    bool    `yaml:"skipLO" json:"skipLO"`       // --skip-lo

	SamplesPerBuffer int `yaml:"samplesPerBuffer" json:"samplesPerBuffer"` // --spb
}

func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return driver.ConfigErrorf("uhd.Config: sample rate must be positive: %g", c.SampleRate)
	}
	if c.Frequency <= 0 {
		return driver.ConfigErrorf("uhd.Config: frequency must be positive: %g", c.Frequency)
	}
	if c.Gain < 0 {
		return driver.ConfigErrorf("uhd.Config: gain cannot be negative: %g", c.Gain)
	}
	if c.Bandwidth < 0 {
		return driver.ConfigErrorf("uhd.Config: bandwidth cannot be negative: %g", c.Bandwidth)
	}
	if c.Reference != "" {
		if _, ok := validReferences[c.Reference]; !ok {
			return driver.ConfigErrorf("uhd.Config: invalid reference '%s': must be internal, external or gpsdo", c.Reference)
		}
	}
	if c.SetupTime < 0 {
		return driver.ConfigErrorf("uhd.Config: setup time cannot be negative: %g", c.SetupTime)
	}
	if c.Channel < 0 || c.SamplesPerBuffer < 0 {
		return driver.NewConfigError("uhd.Config: channel and samples per buffer cannot be negative")
	}

	return nil
}

// CmdArgs returns the command line arguments for `rx_samples_to_file`. Samples
// are always written as sc16 to stdout; zero samples stream until stopped.
func (c *Config) CmdArgs(cmd sdr.StreamCommand) ([]string, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	args := []string{"--file", "/dev/stdout", "--type", "short"}

	if c.Args != "" {
		args = append(args, "--args", c.Args)
	}

	args = append(args,
		"--rate", formatFloat(c.SampleRate),
		"--freq", formatFloat(c.Frequency),
		"--gain", formatFloat(c.Gain),
	)

	if c.Bandwidth > 0 {
		args = append(args, "--bw", formatFloat(c.Bandwidth))
	}
	if c.Antenna != "" {
		args = append(args, "--ant", c.Antenna)
	}
	if c.Subdev != "" {
		args = append(args, "--subdev", c.Subdev)
	}
	if c.Channel > 0 {
		args = append(args, "--channel", strconv.Itoa(c.Channel))
	}
	if c.Reference != "" {
		args = append(args, "--ref", c.Reference)
	}
	if c.SetupTime > 0 {
		args = append(args, "--setup", formatFloat(c.SetupTime))
	}
	if c.SkipLO {
		args = append(args, "--skip-lo")
	}
	if c.SamplesPerBuffer > 0 {
		args = append(args, "--spb", strconv.Itoa(c.SamplesPerBuffer))
	}

	switch cmd.Mode {
	case sdr.StreamModeNumSamplesAndDone:
		args = append(args, "--nsamps", strconv.FormatUint(cmd.NumSamples, 10))
	case sdr.StreamModeStartContinuous:
		args = append(args, "--nsamps", "0")
	default:
		return nil, driver.ConfigErrorf("uhd.Config: unsupported stream mode %s", cmd.Mode)
	}

	return args, nil
}

func (c *Config) String() string {
	args, err := c.CmdArgs(sdr.StreamCommand{Mode: sdr.StreamModeStartContinuous, StreamNow: true})
	if err != nil {
		return fmt.Sprintf("uhd.Config: failed to build args: %s", err)
	}
	return fmt.Sprintf("%s %s", Runtime, strings.Join(args, " "))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
