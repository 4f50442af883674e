package receiver

import (
	"time"

	"github.com/roman-kulish/rfnoc-capture/internal/iq"
)

const (
	DefaultSamples           = 6912
	DefaultMeasurements      = 1
	DefaultDelay             = 500 * time.Millisecond
	DefaultChunkSize         = 2304
	DefaultFirstTimeout      = 3 * time.Second
	DefaultSubsequentTimeout = 100 * time.Millisecond
)

// Config drives a run of measurements
type Config struct {
	// Samples per measurement and channel. Zero streams continuously for Duration.
	Samples      uint64
	Measurements int
	// Delay between measurements. In timed mode it is the spacing of the
	// scheduled start times, otherwise the host idles for it.
	Delay time.Duration
	Timed bool
	// StartAt is the device time of the first measurement in timed mode,
	// zero schedules it Delay from now.
	StartAt time.Time
	// Duration of a continuous measurement, or the deadline of a bounded one
	Duration time.Duration

	ChunkSize         int
	FirstTimeout      time.Duration
	SubsequentTimeout time.Duration

	Format   iq.Format
	Channels int

	// ClipThreshold is the normalized level reported as clipping, zero uses
	// the default and a negative value disables the check
	ClipThreshold float64
}

// DefaultConfig returns a single sc16 measurement of 6912 samples
func DefaultConfig() Config {
	return Config{
		Samples:           DefaultSamples,
		Measurements:      DefaultMeasurements,
		Delay:             DefaultDelay,
		ChunkSize:         DefaultChunkSize,
		FirstTimeout:      DefaultFirstTimeout,
		SubsequentTimeout: DefaultSubsequentTimeout,
		Format:            iq.FormatSC16,
		Channels:          1,
	}
}

// Continuous returns true when measurements stream for a duration instead of a sample count
func (c *Config) Continuous() bool {
	return c.Samples == 0
}

func (c *Config) Validate() error {
	switch {
	case c.Samples == 0 && c.Duration <= 0:
		return configErrorf("samples", "zero samples requires a positive duration for continuous streaming")
	case c.Measurements < 1:
		return configErrorf("measurements", "must be at least 1: %d", c.Measurements)
	case c.Delay < 0:
		return configErrorf("delay", "cannot be negative: %s", c.Delay)
	case c.Timed && c.Delay <= 0 && c.Measurements > 1:
		return configErrorf("delay", "timed measurements need a positive delay")
	case !c.Timed && !c.StartAt.IsZero():
		return configErrorf("startAt", "requires timed mode")
	case c.Duration < 0:
		return configErrorf("duration", "cannot be negative: %s", c.Duration)
	case c.ChunkSize <= 0:
		return configErrorf("chunkSize", "must be positive: %d", c.ChunkSize)
	case c.FirstTimeout <= 0:
		return configErrorf("firstTimeout", "must be positive: %s", c.FirstTimeout)
	case c.SubsequentTimeout <= 0:
		return configErrorf("subsequentTimeout", "must be positive: %s", c.SubsequentTimeout)
	case c.Channels < 1:
		return configErrorf("channels", "must be at least 1: %d", c.Channels)
	case c.ClipThreshold > 1:
		return configErrorf("clipThreshold", "must not exceed full scale: %g", c.ClipThreshold)
	}

	if err := c.Format.Validate(); err != nil {
		return configErrorf("format", "%v", err)
	}
	return nil
}
