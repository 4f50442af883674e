package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/rfnoc-capture/internal/datapath"
	"github.com/roman-kulish/rfnoc-capture/internal/iq"
	"github.com/roman-kulish/rfnoc-capture/internal/notify"
	"github.com/roman-kulish/rfnoc-capture/internal/ofdm"
	"github.com/roman-kulish/rfnoc-capture/internal/receiver"
	"github.com/roman-kulish/rfnoc-capture/internal/sdr/hackrf"
	"github.com/roman-kulish/rfnoc-capture/internal/sdr/rtl"
	"github.com/roman-kulish/rfnoc-capture/internal/sdr/sim"
	"github.com/roman-kulish/rfnoc-capture/internal/sdr/uhd"
	"github.com/roman-kulish/rfnoc-capture/internal/sink"
)

const (
	DeviceSim    DeviceType = "sim"
	DeviceUHD    DeviceType = "uhd"
	DeviceHackRF DeviceType = "hackrf"
	DeviceRTLSDR DeviceType = "rtlsdr"
)

const (
	DefaultBaseName  = "rx_samples"
	DefaultReference = datapath.ReferenceExternal
	DefaultSetupTime = 1500 * time.Millisecond
)

type DeviceType string

// Config represents the main application configuration
type Config struct {
	Settings    Settings          `yaml:"settings"`
	Device      DeviceConfig      `yaml:"device"`
	Datapath    DatapathConfig    `yaml:"datapath"`
	Sync        SyncConfig        `yaml:"sync"`
	Measurement MeasurementConfig `yaml:"measurement"`
	Output      sink.Config       `yaml:"output"`
	Storage     StorageConfig     `yaml:"storage"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel"`
}

// DeviceConfig selects the sample source. Exactly one of the typed configs is
// set, according to Type.
type DeviceConfig struct {
	Type DeviceType
	ID   string

	Sim    *sim.Config
	UHD    *uhd.Config
	HackRF *hackrf.Config
	RTL    *rtl.Config
}

// DatapathConfig represents the processing chain and the radio front end.
// Radio and clock settings apply to devices exposing a processing graph.
type DatapathConfig struct {
	Mode      datapath.Mode        `yaml:"mode"`
	Channels  int                  `yaml:"channels"`
	Radio     datapath.RadioConfig `yaml:"radio"`
	Reference string               `yaml:"reference"`
	SetupTime TimeDuration         `yaml:"setupTime"`
	SkipLO    bool                 `yaml:"skipLO"` // do not wait for the LO lock
}

// SyncConfig represents the Schmidl & Cox block registers
type SyncConfig struct {
	Threshold    uint32            `yaml:"threshold"`
	PacketSize   uint32            `yaml:"packetSize"`
	OutputSelect ofdm.OutputSelect `yaml:"outputSelect"`
}

// MeasurementConfig represents the receiver settings
type MeasurementConfig struct {
	Samples           uint64       `yaml:"samples"`
	Measurements      int          `yaml:"measurements"`
	Delay             TimeDuration `yaml:"delay"`
	Timed             bool         `yaml:"timed"`
	StartIn           TimeDuration `yaml:"startIn"` // first timed start, from the device time at run start
	Duration          TimeDuration `yaml:"duration"`
	ChunkSize         int          `yaml:"chunkSize"`
	FirstTimeout      TimeDuration `yaml:"firstTimeout"`
	SubsequentTimeout TimeDuration `yaml:"subsequentTimeout"`
	Format            iq.Format    `yaml:"format"`
	ClipThreshold     float64      `yaml:"clipThreshold"`
}

// StorageConfig represents the capture ledger settings
type StorageConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"dbPath"`
}

// MetricsConfig represents the Prometheus settings
type MetricsConfig struct {
	Listen      string `yaml:"listen"`      // e.g. ":9108", empty disables the endpoint
	PushGateway string `yaml:"pushGateway"` // push at the end of the run when set
}

// MQTTConfig represents the MQTT settings
type MQTTConfig struct {
	Enabled       bool `yaml:"enabled"`
	notify.Config `yaml:",inline"`
}

// DefaultConfig returns the settings of a single 6912 sample sc16 measurement
// on the raw datapath of a simulated radio
func DefaultConfig() *Config {
	simConfig := sim.DefaultConfig()
	rc := receiver.DefaultConfig()

	return &Config{
		Settings: Settings{LogLevel: "info"},
		Device: DeviceConfig{
			Type: DeviceSim,
			ID:   "sim0",
			Sim:  &simConfig,
		},
		Datapath: DatapathConfig{
			Mode:     datapath.ModeRaw,
			Channels: 1,
			Radio: datapath.RadioConfig{
				Rate:      200e6,
				Frequency: 3.2e9,
				Gain:      30,
				Bandwidth: 160e6,
				Antenna:   "TX/RX",
			},
			Reference: DefaultReference,
			SetupTime: TimeDuration(DefaultSetupTime),
		},
		Sync: SyncConfig{
			Threshold:    ofdm.DefaultThreshold,
			PacketSize:   ofdm.DefaultPacketSize,
			OutputSelect: ofdm.OutputSignalWithZeros,
		},
		Measurement: MeasurementConfig{
			Samples:           rc.Samples,
			Measurements:      rc.Measurements,
			Delay:             TimeDuration(rc.Delay),
			ChunkSize:         rc.ChunkSize,
			FirstTimeout:      TimeDuration(rc.FirstTimeout),
			SubsequentTimeout: TimeDuration(rc.SubsequentTimeout),
			Format:            rc.Format,
		},
		Output: sink.Config{
			Directory:  ".",
			BaseName:   DefaultBaseName,
			Scope:      sink.ScopeRun,
			Metadata:   true,
			BufferSize: sink.DefaultBufferSize,
		},
		MQTT: MQTTConfig{
			Config: notify.Config{Topic: notify.DefaultTopic},
		},
	}
}

// LoadConfig reads a YAML configuration file over the defaults
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	config := DefaultConfig()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err = dec.Decode(config); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	if err = config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) Validate() error {
	var errs []error

	if err := c.Device.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Datapath.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Datapath.Mode == datapath.ModeSchmidlCox {
		if err := c.Sync.Validate(c.Measurement.Format); err != nil {
			errs = append(errs, err)
		}
		if c.Device.Type != DeviceSim {
			errs = append(errs, fmt.Errorf("datapath: %s needs a device with a processing graph, %s has none", c.Datapath.Mode, c.Device.Type))
		}
	} else if c.Measurement.Format == iq.FormatInt32 {
		errs = append(errs, fmt.Errorf("measurement: int32 output is only produced by the %s datapath", datapath.ModeSchmidlCox))
	}
	if c.Device.Type != DeviceSim && c.Datapath.Channels > 1 {
		errs = append(errs, fmt.Errorf("datapath: %s devices deliver a single channel", c.Device.Type))
	}
	if c.Device.Sim != nil && c.Device.Sim.Channels < c.Datapath.Channels {
		errs = append(errs, fmt.Errorf("datapath: %d channels requested, the simulated radio has %d", c.Datapath.Channels, c.Device.Sim.Channels))
	}

	if c.Measurement.StartIn > 0 && !c.Measurement.Timed {
		errs = append(errs, errors.New("measurement: startIn requires timed mode"))
	}

	rc := c.ReceiverConfig()
	if err := rc.Validate(); err != nil {
		errs = append(errs, err)
	}

	sc := c.SinkConfig()
	if err := sc.Validate(); err != nil {
		errs = append(errs, err)
	}

	if c.Storage.Enabled && c.Storage.DBPath == "" {
		errs = append(errs, errors.New("storage: dbPath is required"))
	}
	if c.MQTT.Enabled {
		if err := c.MQTT.Config.Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// ReceiverConfig returns the receiver settings. StartAt is resolved at run time.
func (c *Config) ReceiverConfig() receiver.Config {
	m := c.Measurement
	return receiver.Config{
		Samples:           m.Samples,
		Measurements:      m.Measurements,
		Delay:             time.Duration(m.Delay),
		Timed:             m.Timed,
		Duration:          time.Duration(m.Duration),
		ChunkSize:         m.ChunkSize,
		FirstTimeout:      time.Duration(m.FirstTimeout),
		SubsequentTimeout: time.Duration(m.SubsequentTimeout),
		Format:            m.Format,
		Channels:          c.Datapath.Channels,
		ClipThreshold:     m.ClipThreshold,
	}
}

// SinkConfig returns the output settings completed with the datapath and format
func (c *Config) SinkConfig() sink.Config {
	sc := c.Output
	sc.Datapath = c.Datapath.Mode.String()
	sc.Format = c.Measurement.Format
	sc.Tag = ""
	if c.Datapath.Mode == datapath.ModeSchmidlCox {
		sc.Tag = c.Sync.OutputSelect.Tag()
	}
	return sc
}

// SyncSettings returns the register values of the sync block
func (c *Config) SyncSettings() ofdm.Settings {
	return ofdm.Settings{
		Threshold:    c.Sync.Threshold,
		PacketSize:   c.Sync.PacketSize,
		OutputSelect: c.Sync.OutputSelect,
	}
}

func (c *DatapathConfig) Validate() error {
	var errs []error
	if _, err := datapath.ParseMode(c.Mode.String()); err != nil {
		errs = append(errs, fmt.Errorf("datapath: %w", err))
	}
	if c.Channels < 1 || c.Channels > 2 {
		errs = append(errs, fmt.Errorf("datapath: channels must be 1 or 2: %d", c.Channels))
	}
	if err := c.Radio.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("datapath: %w", err))
	}
	if err := c.SetupTime.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("datapath: setupTime: %w", err))
	}
	return errors.Join(errs...)
}

func (c *SyncConfig) Validate(format iq.Format) error {
	s := ofdm.Settings{Threshold: c.Threshold, PacketSize: c.PacketSize, OutputSelect: c.OutputSelect}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if err := c.OutputSelect.ValidateFormat(format); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	return nil
}

func (d *DeviceConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Type   DeviceType `yaml:"type"`
		ID     string     `yaml:"id"`
		Config yaml.Node  `yaml:"config"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	device := DeviceConfig{
		Type: DeviceType(strings.ToLower(string(raw.Type))),
		ID:   raw.ID,
	}

	var target any
	switch device.Type {
	case DeviceSim:
		c := sim.DefaultConfig()
		device.Sim, target = &c, &c
	case DeviceUHD:
		device.UHD = &uhd.Config{}
		target = device.UHD
	case DeviceHackRF:
		device.HackRF = &hackrf.Config{}
		target = device.HackRF
	case DeviceRTLSDR:
		device.RTL = &rtl.Config{}
		target = device.RTL
	default:
		return fmt.Errorf("device: unknown type '%s'", raw.Type)
	}

	if !raw.Config.IsZero() {
		if err := raw.Config.Decode(target); err != nil {
			return fmt.Errorf("device: decoding %s config: %w", device.Type, err)
		}
	}

	if device.ID == "" {
		device.ID = string(device.Type) + "0"
	}

	*d = device
	return nil
}

func (d *DeviceConfig) Validate() error {
	switch {
	case d.Sim != nil:
		return d.Sim.Validate()
	case d.UHD != nil:
		return d.UHD.Validate()
	case d.HackRF != nil:
		return d.HackRF.Validate()
	case d.RTL != nil:
		return d.RTL.Validate()
	default:
		return fmt.Errorf("device: no configuration for type '%s'", d.Type)
	}
}

// Settings returns the typed device configuration, for the ledger
func (d *DeviceConfig) Settings() any {
	switch {
	case d.Sim != nil:
		return d.Sim
	case d.UHD != nil:
		return d.UHD
	case d.HackRF != nil:
		return d.HackRF
	default:
		return d.RTL
	}
}

type TimeDuration time.Duration

func (d TimeDuration) String() string {
	return time.Duration(d).String()
}

func (d *TimeDuration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("TimeDuration: failed to parse: %s", err)
	}

	*d = TimeDuration(duration)
	return nil
}

func (d TimeDuration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d *TimeDuration) UnmarshalJSON(bytes []byte) error {
	var v string
	if err := json.Unmarshal(bytes, &v); err != nil {
		return err
	}

	duration, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("TimeDuration: failed to parse: %s", err)
	}

	*d = TimeDuration(duration)
	return nil
}

func (d TimeDuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *TimeDuration) Validate() error {
	if time.Duration(*d) < 0 {
		return fmt.Errorf("TimeDuration: must not be negative: %s", time.Duration(*d))
	}
	return nil
}
