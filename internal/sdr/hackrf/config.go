package hackrf

import (
	"strconv"

	"github.com/roman-kulish/rfnoc-capture/internal/sdr"
	"github.com/roman-kulish/rfnoc-capture/internal/sdr/driver"
)

const (
	MinSampleRate = 2_000_000
	MaxSampleRate = 20_000_000
	MinFrequency  = 1_000_000
	MaxFrequency  = 6_000_000_000
	MaxLNAGain    = 40
	MaxVGAGain    = 62
	LNAGainStep   = 8
	VGAGainStep   = 2
)

// Usage examples from man page:
// https://manpages.debian.org/bookworm/hackrf/hackrf_transfer.1.en.html

/*
	hackrfConfig := hackrf.Config{
        Frequency:  2_450_000_000, // 2.45 GHz
        SampleRate: 10_000_000,    // 10 Msps
        LNAGain:    ptr(16),
        VGAGain:    ptr(20),
    }
    // A 6912 sample measurement executes:
    // hackrf_transfer -r - -f 2450000000 -s 10000000 -l 16 -g 20 -n 6912
*/

// Config is a struct for configuring the `hackrf_transfer` tool in receive mode
type Config struct {
	// Required
	Frequency  int64 `yaml:"frequency" json:"frequency"`   // -f freq_hz Center frequency in Hz
	SampleRate int64 `yaml:"sampleRate" json:"sampleRate"` // -s sample_rate_hz 2-20 MHz

	// Important but Optional (have reasonable defaults)
	LNAGain   *int  `yaml:"lnaGain" json:"lnaGain"`     // -l gain_db LNA (IF) gain, 0-40dB, 8dB steps
	VGAGain   *int  `yaml:"vgaGain" json:"vgaGain"`     // -g gain_db VGA (baseband) gain, 0-62dB, 2dB steps
	Bandwidth int64 `yaml:"bandwidth" json:"bandwidth"` // -b baseband filter bandwidth in Hz

	// Optional - Advanced Configuration
	SerialNumber string `yaml:"serialNumber" json:"serialNumber"` // -d serial_number Serial number of desired HackRF
	EnableAmp    bool   `yaml:"enableAmp" json:"enableAmp"`       // -a amp_enable RX RF amplifier 1=Enable, 0=Disable
	AntennaPower bool   `yaml:"antennaPower" json:"antennaPower"` // -p antenna_enable Antenna port power, 1=Enable, 0=Disable

	// Always dump to stdout
	// OutputFile   string // -r filename Output file
}

func (c *Config) Validate() error {
	if c.Frequency < MinFrequency || c.Frequency > MaxFrequency {
		return driver.ConfigErrorf("hackrf.Config: frequency must be between 1 MHz and 6 GHz: %d given", c.Frequency)
	}
	if c.SampleRate < MinSampleRate || c.SampleRate > MaxSampleRate {
		return driver.ConfigErrorf("hackrf.Config: sample rate must be between 2 and 20 Msps: %d given", c.SampleRate)
	}

	// LNA gain validation (0-40dB in 8dB steps)
	if c.LNAGain != nil {
		if *c.LNAGain < 0 || *c.LNAGain > MaxLNAGain {
			return driver.ConfigErrorf("hackrf.Config: LNA gain must be between 0 and 40 dB: %d given", *c.LNAGain)
		}
		if *c.LNAGain%LNAGainStep != 0 {
			return driver.NewConfigError("hackrf.Config: LNA gain must be a multiple of 8 dB")
		}
	}

	// VGA gain validation (0-62dB in 2dB steps)
	if c.VGAGain != nil {
		if *c.VGAGain < 0 || *c.VGAGain > MaxVGAGain {
			return driver.ConfigErrorf("hackrf.Config: VGA gain must be between 0 and 62 dB: %d given", *c.VGAGain)
		}
		if *c.VGAGain%VGAGainStep != 0 {
			return driver.NewConfigError("hackrf.Config: VGA gain must be a multiple of 2 dB")
		}
	}

	if c.Bandwidth < 0 {
		return driver.ConfigErrorf("hackrf.Config: bandwidth cannot be negative: %d given", c.Bandwidth)
	}

	return nil
}

// Args builds the command line arguments for `hackrf_transfer`. A continuous
// stream omits -n and runs until the process is stopped.
// See `man hackrf_transfer` for more information.
func (c *Config) Args(cmd sdr.StreamCommand) ([]string, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	args := []string{
		"-r", "-",
		"-f", strconv.FormatInt(c.Frequency, 10),
		"-s", strconv.FormatInt(c.SampleRate, 10),
	}

	if c.SerialNumber != "" {
		args = append(args, "-d", c.SerialNumber)
	}

	if c.LNAGain != nil {
		args = append(args, "-l", strconv.Itoa(*c.LNAGain))
	}

	if c.VGAGain != nil {
		args = append(args, "-g", strconv.Itoa(*c.VGAGain))
	}

	if c.Bandwidth > 0 {
		args = append(args, "-b", strconv.FormatInt(c.Bandwidth, 10))
	}

	if c.EnableAmp {
		args = append(args, "-a", "1")
	}

	if c.AntennaPower {
		args = append(args, "-p", "1")
	}

	switch cmd.Mode {
	case sdr.StreamModeNumSamplesAndDone:
		args = append(args, "-n", strconv.FormatUint(cmd.NumSamples, 10))
	case sdr.StreamModeStartContinuous:
	default:
		return nil, driver.ConfigErrorf("hackrf.Config: unsupported stream mode %s", cmd.Mode)
	}

	return args, nil
}
