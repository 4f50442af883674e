// Package sim is a simulated RFNoC radio. It exposes the processing graph,
// front-end controls, sensors, synchronization block registers and a sample
// stream, so a full capture can run without hardware.
package sim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/roman-kulish/rfnoc-capture/internal/datapath"
	"github.com/roman-kulish/rfnoc-capture/internal/iq"
	"github.com/roman-kulish/rfnoc-capture/internal/ofdm"
	"github.com/roman-kulish/rfnoc-capture/internal/sdr"
)

const Device = "sim"

var (
	// ErrLateCommand is reported when a scheduled start time has already passed
	ErrLateCommand = errors.New("late command")

	// ErrInjectedFault is the failure produced by Faults.FailAfter
	ErrInjectedFault = errors.New("injected stream fault")
)

var antennas = []string{"TX/RX", "RX2"}

// WithLogger sets the logger for the radio
func WithLogger(logger *slog.Logger) func(r *Radio) {
	return func(r *Radio) {
		r.logger = logger.With(slog.String("device", Device))
	}
}

// WithHostFormat sets the in-memory format delivered by Fetch, sc16 by default
func WithHostFormat(format iq.Format) func(r *Radio) {
	return func(r *Radio) {
		r.hostFormat = format
	}
}

// stream is the state of the active stream command
type stream struct {
	cmd        sdr.StreamCommand
	continuous bool
	remaining  uint64
	index      uint64 // samples generated, including dropped ones
	delivered  uint64
	chunks     int
	late       bool
	stopping   bool
	startHost  time.Time
}

// Radio is a simulated device. It is safe for concurrent use, though a
// stream is expected to be fetched from a single goroutine.
type Radio struct {
	config     Config
	hostFormat iq.Format
	created    time.Time

	mu        sync.Mutex
	rng       *rand.Rand
	settings  []map[datapath.Setting]float64
	antenna   []string
	reference string
	registers map[uint32]uint32
	edges     []datapath.Edge
	syncPath  bool
	current   *stream

	logger *slog.Logger
}

func New(config Config, options ...func(r *Radio)) (*Radio, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	r := Radio{
		config:     config,
		hostFormat: iq.FormatSC16,
		created:    time.Now(),
		rng:        rand.New(rand.NewSource(config.Seed)),
		reference:  datapath.ReferenceInternal,
		registers: map[uint32]uint32{
			ofdm.RegThreshold:    ofdm.DefaultThreshold,
			ofdm.RegPacketSize:   ofdm.DefaultPacketSize,
			ofdm.RegOutputSelect: uint32(ofdm.OutputSignal),
		},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for ch := 0; ch < config.Channels; ch++ {
		r.settings = append(r.settings, map[datapath.Setting]float64{
			datapath.SettingRate:      config.MasterClock / 4,
			datapath.SettingFrequency: 1e9,
			datapath.SettingGain:      0,
			datapath.SettingBandwidth: 56e6,
		})
		r.antenna = append(r.antenna, antennas[1])
	}

	for _, option := range options {
		option(&r)
	}

	if r.hostFormat != iq.FormatSC16 && r.hostFormat != iq.FormatFC32 {
		return nil, fmt.Errorf("invalid host format '%s'", r.hostFormat)
	}

	return &r, nil
}

func (r *Radio) Close() error {
	r.mu.Lock()
	r.current = nil
	r.mu.Unlock()
	return nil
}

// Stages implements datapath.Graph
func (r *Radio) Stages(context.Context) ([]datapath.Stage, error) {
	ch := r.config.Channels
	all := []datapath.Stage{
		{ID: datapath.BlockID{Name: "Radio"}, Kind: datapath.KindRadio, Tags: []datapath.Capability{datapath.CapReceive}, OutPorts: ch},
		{ID: datapath.BlockID{Name: "DDC"}, Kind: datapath.KindDDC, Tags: []datapath.Capability{datapath.CapDownConvert}, InPorts: ch, OutPorts: ch},
		{ID: datapath.BlockID{Name: "Schmidl_cox"}, Kind: datapath.KindSync, Tags: []datapath.Capability{datapath.CapSynchronize}, InPorts: 1, OutPorts: 1},
		{ID: datapath.BlockID{Name: "Host"}, Kind: datapath.KindHost, Tags: []datapath.Capability{datapath.CapHostEndpoint}, InPorts: ch},
	}

	var stages []datapath.Stage
	for _, s := range all {
		if !slices.Contains(r.config.MissingBlocks, string(s.Kind)) {
			stages = append(stages, s)
		}
	}
	return stages, nil
}

// Connect implements datapath.Graph
func (r *Radio) Connect(_ context.Context, e datapath.Edge) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.edges {
		if existing.Dst == e.Dst && existing.DstPort == e.DstPort {
			return fmt.Errorf("input port %s:%d already connected", e.Dst, e.DstPort)
		}
	}
	r.edges = append(r.edges, e)
	return nil
}

// Commit implements datapath.Graph
func (r *Radio) Commit(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.syncPath = false
	for _, e := range r.edges {
		if e.Dst.Name == string(datapath.KindSync) {
			r.syncPath = true
		}
	}
	r.logger.Debug("graph committed", slog.Int("edges", len(r.edges)), slog.Bool("sync", r.syncPath))
	return nil
}

// Set implements datapath.RadioControl, coercing values the way hardware does
func (r *Radio) Set(_ context.Context, ch int, s datapath.Setting, v float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ch < 0 || ch >= len(r.settings) {
		return fmt.Errorf("invalid channel %d", ch)
	}

	switch s {
	case datapath.SettingRate:
		decim := math.Max(1, math.Round(r.config.MasterClock/v))
		v = r.config.MasterClock / decim
	case datapath.SettingFrequency:
		v = math.Min(math.Max(v, 10e6), 6e9)
	case datapath.SettingGain:
		v = math.Round(math.Min(math.Max(v, 0), 31.5)*2) / 2
	case datapath.SettingBandwidth:
		v = math.Min(math.Max(v, 5e6), 160e6)
	default:
		return fmt.Errorf("unknown setting %s", s)
	}

	r.settings[ch][s] = v
	return nil
}

// Get implements datapath.RadioControl
func (r *Radio) Get(_ context.Context, ch int, s datapath.Setting) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ch < 0 || ch >= len(r.settings) {
		return 0, fmt.Errorf("invalid channel %d", ch)
	}
	v, ok := r.settings[ch][s]
	if !ok {
		return 0, fmt.Errorf("unknown setting %s", s)
	}
	return v, nil
}

// SetAntenna implements datapath.RadioControl
func (r *Radio) SetAntenna(_ context.Context, ch int, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ch < 0 || ch >= len(r.antenna) {
		return fmt.Errorf("invalid channel %d", ch)
	}
	if !slices.Contains(antennas, name) {
		return fmt.Errorf("invalid antenna '%s'", name)
	}
	r.antenna[ch] = name
	return nil
}

// Antenna implements datapath.RadioControl
func (r *Radio) Antenna(_ context.Context, ch int) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ch < 0 || ch >= len(r.antenna) {
		return "", fmt.Errorf("invalid channel %d", ch)
	}
	return r.antenna[ch], nil
}

// SetReference implements datapath.ClockControl
func (r *Radio) SetReference(_ context.Context, source string) error {
	r.mu.Lock()
	r.reference = source
	r.mu.Unlock()
	return nil
}

// Reference implements datapath.ClockControl
func (r *Radio) Reference(context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reference, nil
}

// SensorNames implements datapath.SensorReader
func (r *Radio) SensorNames(context.Context) ([]string, error) {
	return []string{datapath.SensorLOLocked, datapath.SensorRefLocked}, nil
}

// Sensor implements datapath.SensorReader
func (r *Radio) Sensor(_ context.Context, name string) (bool, error) {
	return !slices.Contains(r.config.UnlockedSensors, name), nil
}

// Peek32 implements ofdm.RegisterBus
func (r *Radio) Peek32(_ context.Context, addr uint32) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.registers[addr]
	if !ok {
		return 0, fmt.Errorf("no register at 0x%02x", addr)
	}
	return v, nil
}

// Poke32 implements ofdm.RegisterBus
func (r *Radio) Poke32(_ context.Context, addr uint32, v uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.registers[addr]; !ok {
		return fmt.Errorf("no register at 0x%02x", addr)
	}
	if slices.Contains(r.config.Faults.StuckRegisters, addr) {
		return nil
	}
	r.registers[addr] = v
	return nil
}
