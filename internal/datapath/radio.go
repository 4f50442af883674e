package datapath

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
)

const (
	SettingRate      Setting = "rate"
	SettingFrequency Setting = "frequency"
	SettingGain      Setting = "gain"
	SettingBandwidth Setting = "bandwidth"
)

const (
	ReferenceInternal = "internal"
	ReferenceExternal = "external"
	ReferenceMIMO     = "mimo"
	ReferenceGPSDO    = "gpsdo"
)

var validReferences = []string{ReferenceInternal, ReferenceExternal, ReferenceMIMO, ReferenceGPSDO}

// Setting names a numeric radio front-end setting
type Setting string

// RadioControl sets and reads back front-end settings of a radio channel.
// Hardware coerces requested values, so the read back value is authoritative.
type RadioControl interface {
	Set(ctx context.Context, ch int, s Setting, v float64) error
	Get(ctx context.Context, ch int, s Setting) (float64, error)
	SetAntenna(ctx context.Context, ch int, name string) error
	Antenna(ctx context.Context, ch int) (string, error)
}

// ClockControl selects the clock and time reference of the device
type ClockControl interface {
	SetReference(ctx context.Context, source string) error
	Reference(ctx context.Context) (string, error)
}

// RadioConfig is the requested front-end configuration
type RadioConfig struct {
	Rate      float64 `yaml:"rate" json:"rate"`           // samples per second
	Frequency float64 `yaml:"frequency" json:"frequency"` // center frequency, Hz
	Gain      float64 `yaml:"gain" json:"gain"`           // dB
	Bandwidth float64 `yaml:"bandwidth" json:"bandwidth"` // analog filter bandwidth, Hz; 0 keeps the default
	Antenna   string  `yaml:"antenna" json:"antenna"`     // empty keeps the default
}

func (c *RadioConfig) Validate() error {
	var errs []error
	if c.Rate <= 0 {
		errs = append(errs, fmt.Errorf("rate must be positive: %g", c.Rate))
	}
	if c.Frequency <= 0 {
		errs = append(errs, fmt.Errorf("frequency must be positive: %g", c.Frequency))
	}
	if c.Gain < 0 {
		errs = append(errs, fmt.Errorf("gain cannot be negative: %g", c.Gain))
	}
	if c.Bandwidth < 0 {
		errs = append(errs, fmt.Errorf("bandwidth cannot be negative: %g", c.Bandwidth))
	}
	return errors.Join(errs...)
}

// ConfigureRadio applies cfg to channels 0..channels-1 and returns what the
// hardware actually set on channel 0.
func ConfigureRadio(ctx context.Context, rc RadioControl, cfg RadioConfig, channels int, logger *slog.Logger) (RadioConfig, error) {
	if err := cfg.Validate(); err != nil {
		return RadioConfig{}, err
	}

	var actual RadioConfig
	for ch := 0; ch < channels; ch++ {
		settings := []struct {
			setting Setting
			value   float64
			actual  *float64
		}{
			{SettingRate, cfg.Rate, &actual.Rate},
			{SettingFrequency, cfg.Frequency, &actual.Frequency},
			{SettingGain, cfg.Gain, &actual.Gain},
			{SettingBandwidth, cfg.Bandwidth, &actual.Bandwidth},
		}

		for _, s := range settings {
			if s.value == 0 {
				continue // keep the hardware default
			}

			if err := rc.Set(ctx, ch, s.setting, s.value); err != nil {
				return RadioConfig{}, fmt.Errorf("setting %s on channel %d: %w", s.setting, ch, err)
			}
			v, err := rc.Get(ctx, ch, s.setting)
			if err != nil {
				return RadioConfig{}, fmt.Errorf("reading back %s on channel %d: %w", s.setting, ch, err)
			}

			if ch == 0 {
				*s.actual = v
			}

			logger.Info(fmt.Sprintf("%s set", s.setting),
				slog.Int("channel", ch),
				slog.Float64("requested", s.value),
				slog.Float64("actual", v),
			)
			if math.Abs(v-s.value) > math.Abs(s.value)*1e-6 {
				logger.Warn(fmt.Sprintf("%s coerced by hardware", s.setting),
					slog.Int("channel", ch),
					slog.Float64("requested", s.value),
					slog.Float64("actual", v),
				)
			}
		}

		if cfg.Antenna != "" {
			if err := rc.SetAntenna(ctx, ch, cfg.Antenna); err != nil {
				return RadioConfig{}, fmt.Errorf("setting antenna on channel %d: %w", ch, err)
			}
		}
		antenna, err := rc.Antenna(ctx, ch)
		if err != nil {
			return RadioConfig{}, fmt.Errorf("reading back antenna on channel %d: %w", ch, err)
		}
		if ch == 0 {
			actual.Antenna = antenna
		}
		logger.Info("antenna set", slog.Int("channel", ch), slog.String("antenna", antenna))
	}

	return actual, nil
}

// SetReference selects the clock and time source and verifies the read back
func SetReference(ctx context.Context, cc ClockControl, source string, logger *slog.Logger) error {
	source = strings.ToLower(source)
	if !slices.Contains(validReferences, source) {
		return fmt.Errorf("invalid reference '%s': must be one of %s", source, strings.Join(validReferences, ", "))
	}

	logger.Info("setting reference", slog.String("source", source))
	if err := cc.SetReference(ctx, source); err != nil {
		return fmt.Errorf("setting reference: %w", err)
	}

	actual, err := cc.Reference(ctx)
	if err != nil {
		return fmt.Errorf("reading back reference: %w", err)
	}
	if actual != source {
		return fmt.Errorf("reference read back '%s', expected '%s'", actual, source)
	}
	return nil
}
