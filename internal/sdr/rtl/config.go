package rtl

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roman-kulish/rfnoc-capture/internal/sdr"
	"github.com/roman-kulish/rfnoc-capture/internal/sdr/driver"
)

const (
	// sample rate ranges accepted by the RTL2832U
	SampleRateLowMin  = 225_001
	SampleRateLowMax  = 300_000
	SampleRateHighMin = 900_001
	SampleRateHighMax = 3_200_000

	// BlockSizeStep is the granularity of the rtl_sdr output block size
	BlockSizeStep = 512
)

// Usage examples from man page:
// https://manpages.debian.org/bookworm/rtl-sdr/rtl_sdr.1.en.html

/*
Example 1: FM broadcast capture
    rtlConfig := rtl.Config{
        Frequency:  100_000_000, // 100 MHz
        SampleRate: 2_048_000,   // 2.048 Msps
    }
    // A 6912 sample measurement executes:
    // rtl_sdr -f 100000000 -s 2048000 -d 0 -n 6912 -

Example 2: Fixed gain, corrected crystal
    rtlConfig := rtl.Config{
        Frequency:  433_920_000,
        SampleRate: 1_024_000,
        Gain:       40,
        PPMError:   -12,
    }
    // Executes: rtl_sdr -f 433920000 -s 1024000 -d 0 -g 40 -p -12 -n 6912 -
*/

// Config is the `rtl_sdr` tool configuration
type Config struct {
	// Required
	Frequency  int64 `yaml:"frequency" json:"frequency"`   // -f frequency to tune to (Hz)
	SampleRate int64 `yaml:"sampleRate" json:"sampleRate"` // -s samplerate (Hz)

	DeviceIndex int `yaml:"deviceIndex" json:"deviceIndex"` // -d device_index (default: 0)

	Gain     int `yaml:"gain" json:"gain"`         // -g tuner_gain (default: automatic)
	PPMError int `yaml:"ppmError" json:"ppmError"` // -p ppm_error (default: 0)

	BlockSize int `yaml:"blockSize" json:"blockSize"` // -b output_block_size (default: 16 * 16384)

	// Always dump to stdout
	// Filename string // '-' dumps samples to stdout
}

func (c *Config) Validate() error {
	if c.Frequency <= 0 {
		return driver.ConfigErrorf("rtl.Config: frequency must be positive: %d", c.Frequency)
	}

	validRate := (c.SampleRate >= SampleRateLowMin && c.SampleRate <= SampleRateLowMax) ||
		(c.SampleRate >= SampleRateHighMin && c.SampleRate <= SampleRateHighMax)
	if !validRate {
		return driver.ConfigErrorf("rtl.Config: invalid sample rate: %d, must be in %d-%d or %d-%d Hz",
			c.SampleRate, SampleRateLowMin, SampleRateLowMax, SampleRateHighMin, SampleRateHighMax)
	}

	if c.DeviceIndex < 0 {
		return driver.ConfigErrorf("rtl.Config: device index cannot be negative: %d", c.DeviceIndex)
	}
	if c.Gain < 0 {
		return driver.ConfigErrorf("rtl.Config: gain cannot be negative: %d", c.Gain)
	}
	if c.BlockSize < 0 || c.BlockSize%BlockSizeStep != 0 {
		return driver.ConfigErrorf("rtl.Config: block size must be a multiple of %d: %d given", BlockSizeStep, c.BlockSize)
	}

	return nil
}

// Args returns the command line arguments for `rtl_sdr`
// See `man rtl_sdr` for more information:
// https://manpages.debian.org/bookworm/rtl-sdr/rtl_sdr.1.en.html
func (c *Config) Args(cmd sdr.StreamCommand) ([]string, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	args := []string{
		"-f", strconv.FormatInt(c.Frequency, 10),
		"-s", strconv.FormatInt(c.SampleRate, 10),
	}

	args = append(args, "-d", strconv.Itoa(c.DeviceIndex)) // 0 is the default device index

	if c.Gain > 0 {
		args = append(args, "-g", strconv.Itoa(c.Gain))
	}

	if c.PPMError != 0 {
		args = append(args, "-p", strconv.Itoa(c.PPMError))
	}

	if c.BlockSize > 0 {
		args = append(args, "-b", strconv.Itoa(c.BlockSize))
	}

	switch cmd.Mode {
	case sdr.StreamModeNumSamplesAndDone:
		args = append(args, "-n", strconv.FormatUint(cmd.NumSamples, 10))
	case sdr.StreamModeStartContinuous:
	default:
		return nil, driver.ConfigErrorf("rtl.Config: unsupported stream mode %s", cmd.Mode)
	}

	args = append(args, "-") // Always dump to stdout

	return args, nil
}

func (c *Config) String() string {
	args, err := c.Args(sdr.StreamCommand{Mode: sdr.StreamModeStartContinuous, StreamNow: true})
	if err != nil {
		return fmt.Sprintf("rtl.Config: failed to build args: %s", err)
	}
	return fmt.Sprintf("%s %s", Runtime, strings.Join(args, " "))
}
