package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/rfnoc-capture/internal/datapath"
	"github.com/roman-kulish/rfnoc-capture/internal/ofdm"
	"github.com/roman-kulish/rfnoc-capture/internal/sdr"
	"github.com/roman-kulish/rfnoc-capture/internal/sdr/hackrf"
	"github.com/roman-kulish/rfnoc-capture/internal/sdr/rtl"
	"github.com/roman-kulish/rfnoc-capture/internal/sdr/sim"
	"github.com/roman-kulish/rfnoc-capture/internal/sdr/uhd"
)

// radioDevice is a device exposing its processing graph and front end
type radioDevice interface {
	sdr.Source
	datapath.Graph
	datapath.RadioControl
	datapath.ClockControl
	datapath.SensorReader
	ofdm.RegisterBus
}

// hardware is the opened device. radio is nil for devices driven through an
// external tool, which are configured by the tool arguments.
type hardware struct {
	source sdr.Source
	radio  radioDevice
	close  func() error
}

// openHardware opens the device described by config
func openHardware(config *Config, logger *slog.Logger) (*hardware, error) {
	host := config.Measurement.Format.Host()

	if config.Device.Type == DeviceSim {
		radio, err := sim.New(*config.Device.Sim, sim.WithLogger(logger), sim.WithHostFormat(host))
		if err != nil {
			return nil, fmt.Errorf("creating simulated radio: %w", err)
		}
		return &hardware{source: radio, radio: radio, close: radio.Close}, nil
	}

	var handler sdr.Handler
	var err error
	switch config.Device.Type {
	case DeviceUHD:
		if handler, err = uhd.New(config.Device.UHD); err != nil {
			return nil, fmt.Errorf("creating UHD device: %w", err)
		}

	case DeviceHackRF:
		if handler, err = hackrf.New(config.Device.HackRF); err != nil {
			return nil, fmt.Errorf("creating HackRF device: %w", err)
		}

	case DeviceRTLSDR:
		if handler, err = rtl.New(config.Device.RTL); err != nil {
			return nil, fmt.Errorf("creating RTL-SDR device: %w", err)
		}

	default:
		return nil, fmt.Errorf("creating device: unknown type '%s'", config.Device.Type)
	}

	device, err := sdr.NewDevice(config.Device.ID, handler, config.Measurement.ChunkSize,
		sdr.WithLogger(logger), sdr.WithHostFormat(host))
	if err != nil {
		return nil, fmt.Errorf("creating device: %w", err)
	}
	return &hardware{source: device, close: device.Close}, nil
}

// setup is what setupDatapath applied to the hardware
type setup struct {
	Chain *datapath.Chain      `json:"-"`
	Radio datapath.RadioConfig `json:"radio"`
	Sync  *ofdm.Settings       `json:"sync,omitempty"`
}

// setupDatapath finds the blocks of the configured chain, configures the
// front end, waits for the locks, connects the chain and programs the sync block.
func setupDatapath(ctx context.Context, hw *hardware, config *Config, logger *slog.Logger) (*setup, error) {
	if hw.radio == nil {
		if config.Datapath.Mode != datapath.ModeRaw {
			return nil, fmt.Errorf("datapath %s needs a processing graph", config.Datapath.Mode)
		}
		logger.Info("device has no processing graph, radio is configured by the device settings")
		return &setup{}, nil
	}

	topo, err := datapath.Discover(ctx, hw.radio)
	if err != nil {
		return nil, fmt.Errorf("discovering blocks: %w", err)
	}

	chain, err := datapath.Build(topo, config.Datapath.Mode, config.Datapath.Channels)
	if err != nil {
		return nil, fmt.Errorf("building datapath: %w", err)
	}
	logger.Info("datapath", slog.String("chain", chain.String()))

	actual, err := datapath.ConfigureRadio(ctx, hw.radio, config.Datapath.Radio, config.Datapath.Channels, logger)
	if err != nil {
		return nil, fmt.Errorf("configuring radio: %w", err)
	}
	logger.Info("radio configured",
		slog.String("rate", humanize.SIWithDigits(actual.Rate, 3, "S/s")),
		slog.String("frequency", humanize.SIWithDigits(actual.Frequency, 6, "Hz")),
		slog.Float64("gain", actual.Gain),
		slog.String("bandwidth", humanize.SIWithDigits(actual.Bandwidth, 3, "Hz")),
		slog.String("antenna", actual.Antenna),
	)

	if err = datapath.SetReference(ctx, hw.radio, config.Datapath.Reference, logger); err != nil {
		return nil, fmt.Errorf("setting reference: %w", err)
	}

	setupTime := time.Duration(config.Datapath.SetupTime)
	var locks []error
	if config.Datapath.Reference != datapath.ReferenceInternal {
		locks = append(locks, datapath.WaitForLock(ctx, hw.radio, datapath.SensorRefLocked, setupTime, logger))
	}
	if !config.Datapath.SkipLO {
		locks = append(locks, datapath.WaitForLock(ctx, hw.radio, datapath.SensorLOLocked, setupTime, logger))
	}
	if err = errors.Join(locks...); err != nil {
		return nil, err
	}

	if err = datapath.Connect(ctx, hw.radio, chain, logger); err != nil {
		return nil, fmt.Errorf("connecting datapath: %w", err)
	}

	s := setup{Chain: chain, Radio: actual}

	if config.Datapath.Mode == datapath.ModeSchmidlCox {
		settings := config.SyncSettings()
		block := ofdm.NewBlock(hw.radio, ofdm.WithLogger(logger))
		if err = block.Configure(ctx, settings); err != nil {
			return nil, fmt.Errorf("configuring sync block: %w", err)
		}
		s.Sync = &settings
	}

	return &s, nil
}

// startAt resolves the first scheduled start on the device clock
func startAt(source sdr.Source, config *Config) time.Time {
	if !config.Measurement.Timed || config.Measurement.StartIn <= 0 {
		return time.Time{}
	}
	return source.Now().Add(time.Duration(config.Measurement.StartIn))
}

var _ radioDevice = (*sim.Radio)(nil)
