package sim

import (
	"errors"
	"fmt"
)

/*
Example: two channel tone with an overflow every 50 chunks
    simConfig := sim.Config{
        Channels:   2,
        ToneOffset: 1e6,
        Amplitude:  0.5,
        PhaseDelta: 30,
        Faults:     sim.Faults{OverflowEvery: 50},
    }
*/

// Config describes the simulated radio
type Config struct {
	Channels    int     `yaml:"channels" json:"channels"`
	MasterClock float64 `yaml:"masterClock" json:"masterClock"` // Hz, sample rates are integer decimations of it
	ToneOffset  float64 `yaml:"toneOffset" json:"toneOffset"`   // Hz from the center frequency
	Amplitude   float64 `yaml:"amplitude" json:"amplitude"`     // fraction of full scale
	NoiseLevel  float64 `yaml:"noiseLevel" json:"noiseLevel"`   // standard deviation, fraction of full scale
	PhaseDelta  float64 `yaml:"phaseDelta" json:"phaseDelta"`   // degrees between adjacent channels
	Seed        int64   `yaml:"seed" json:"seed"`
	Realtime    bool    `yaml:"realtime" json:"realtime"` // pace delivery at the sample rate

	UnlockedSensors []string `yaml:"unlockedSensors" json:"unlockedSensors"` // sensors that never lock
	MissingBlocks   []string `yaml:"missingBlocks" json:"missingBlocks"`     // block kinds absent from the graph

	Faults Faults `yaml:"faults" json:"faults"`
}

// Faults injects stream failures. Sample counts are per stream command.
type Faults struct {
	OverflowEvery  int      `yaml:"overflowEvery" json:"overflowEvery"`   // flag every Nth chunk as an overflow
	StallAfter     uint64   `yaml:"stallAfter" json:"stallAfter"`         // stop delivering after this many samples
	FailAfter      uint64   `yaml:"failAfter" json:"failAfter"`           // fail after this many samples
	StuckRegisters []uint32 `yaml:"stuckRegisters" json:"stuckRegisters"` // user registers that ignore writes
}

// DefaultConfig returns a single channel radio with a 1 MHz tone at half scale
func DefaultConfig() Config {
	return Config{
		Channels:    1,
		MasterClock: 200e6,
		ToneOffset:  1e6,
		Amplitude:   0.5,
		NoiseLevel:  1e-3,
		Seed:        1,
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Channels < 1 || c.Channels > 2 {
		errs = append(errs, fmt.Errorf("sim.Config: channels must be 1 or 2: %d", c.Channels))
	}
	if c.MasterClock <= 0 {
		errs = append(errs, fmt.Errorf("sim.Config: master clock must be positive: %g", c.MasterClock))
	}
	if c.Amplitude < 0 || c.NoiseLevel < 0 {
		errs = append(errs, errors.New("sim.Config: amplitude and noise level cannot be negative"))
	}
	if c.Faults.OverflowEvery < 0 {
		errs = append(errs, fmt.Errorf("sim.Config: overflowEvery cannot be negative: %d", c.Faults.OverflowEvery))
	}
	return errors.Join(errs...)
}
