package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/roman-kulish/rfnoc-capture/internal/datapath"
	"github.com/roman-kulish/rfnoc-capture/internal/iq"
	"github.com/roman-kulish/rfnoc-capture/internal/ofdm"
	"github.com/roman-kulish/rfnoc-capture/internal/sink"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	if err := config.Validate(); err != nil {
		t.Fatalf("Expected default config to be valid, got: %v", err)
	}

	rc := config.ReceiverConfig()
	if rc.Samples != 6912 {
		t.Errorf("Expected 6912 samples, got %d", rc.Samples)
	}
	if rc.Delay != 500*time.Millisecond {
		t.Errorf("Expected 500ms delay, got %s", rc.Delay)
	}

	sc := config.SinkConfig()
	if name := sink.FileName(sc, sink.RunMeasurement, -1); name != "rx_samples_raw.sc16.dat" {
		t.Errorf("Expected file name rx_samples_raw.sc16.dat, got %s", name)
	}
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
settings:
  logLevel: debug
device:
  type: sim
  id: bench
  config:
    channels: 2
    amplitude: 0.25
datapath:
  mode: schmidl_cox
  channels: 2
  reference: internal
  setupTime: 10ms
sync:
  threshold: 4096
  packetSize: 1024
  outputSelect: 2
measurement:
  samples: 4096
  measurements: 3
  delay: 250ms
  timed: true
  startIn: 1s
  format: int32
output:
  directory: /tmp/out
  baseName: burst
  scope: measurement
  compress: true
storage:
  enabled: true
  dbPath: /tmp/out/ledger.db
`)

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.Settings.LogLevel != "debug" {
		t.Errorf("Expected log level debug, got %s", config.Settings.LogLevel)
	}
	if config.Device.Type != DeviceSim || config.Device.ID != "bench" {
		t.Errorf("Expected sim device bench, got %s %s", config.Device.Type, config.Device.ID)
	}
	if config.Device.Sim == nil {
		t.Fatalf("Expected sim config to be set")
	}
	if config.Device.Sim.Channels != 2 || config.Device.Sim.Amplitude != 0.25 {
		t.Errorf("Expected 2 channels at 0.25, got %d at %g", config.Device.Sim.Channels, config.Device.Sim.Amplitude)
	}
	if config.Device.Sim.MasterClock != 200e6 {
		t.Errorf("Expected default master clock to be kept, got %g", config.Device.Sim.MasterClock)
	}
	if config.Datapath.Mode != datapath.ModeSchmidlCox {
		t.Errorf("Expected schmidl_cox datapath, got %s", config.Datapath.Mode)
	}
	if config.Datapath.Radio.Rate != 200e6 {
		t.Errorf("Expected default rate to be kept, got %g", config.Datapath.Radio.Rate)
	}
	if time.Duration(config.Datapath.SetupTime) != 10*time.Millisecond {
		t.Errorf("Expected 10ms setup time, got %s", config.Datapath.SetupTime)
	}
	if config.Measurement.Format != iq.FormatInt32 {
		t.Errorf("Expected int32 format, got %s", config.Measurement.Format)
	}
	if time.Duration(config.Measurement.StartIn) != time.Second {
		t.Errorf("Expected 1s start, got %s", config.Measurement.StartIn)
	}

	settings := config.SyncSettings()
	if settings.Threshold != 4096 || settings.PacketSize != 1024 || settings.OutputSelect != ofdm.OutputMetricMSB {
		t.Errorf("Unexpected sync settings: %+v", settings)
	}

	sc := config.SinkConfig()
	if sc.Tag == "" {
		t.Errorf("Expected sync tag in sink config")
	}
	if name := sink.FileName(sc, 2, -1); name != "burst_schmidl_cox.metricMSB_m0002.int32.dat.zst" {
		t.Errorf("Unexpected file name: %s", name)
	}
}

func TestLoadConfig_DeviceDefaults(t *testing.T) {
	path := writeConfig(t, `
device:
  type: RTLSDR
  config:
    frequency: 1090000000
    sampleRate: 2400000
datapath:
  reference: internal
`)

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if config.Device.Type != DeviceRTLSDR {
		t.Errorf("Expected rtlsdr device, got %s", config.Device.Type)
	}
	if config.Device.ID != "rtlsdr0" {
		t.Errorf("Expected default id rtlsdr0, got %s", config.Device.ID)
	}
	if config.Device.RTL == nil || config.Device.Sim != nil {
		t.Errorf("Expected only the rtl config to be set")
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "unknown field",
			content: "measurement:\n  nsamps: 10\n",
			want:    "nsamps",
		},
		{
			name:    "unknown device",
			content: "device:\n  type: bladerf\n",
			want:    "unknown type",
		},
		{
			name:    "more channels than the simulated radio",
			content: "datapath:\n  channels: 2\n",
			want:    "simulated radio has 1",
		},
		{
			name:    "int32 on raw datapath",
			content: "measurement:\n  format: int32\n",
			want:    "int32",
		},
		{
			name:    "sync on exec device",
			content: "device:\n  type: hackrf\n  config:\n    frequency: 100000000\n    sampleRate: 10000000\ndatapath:\n  mode: schmidl_cox\nmeasurement:\n  format: int32\n",
			want:    "processing graph",
		},
		{
			name:    "start without timed mode",
			content: "measurement:\n  startIn: 1s\n",
			want:    "startIn",
		},
		{
			name:    "storage without path",
			content: "storage:\n  enabled: true\n",
			want:    "dbPath",
		},
		{
			name:    "mqtt without broker",
			content: "mqtt:\n  enabled: true\n",
			want:    "broker",
		},
		{
			name:    "bad duration",
			content: "measurement:\n  delay: soon\n",
			want:    "TimeDuration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			if err == nil {
				t.Fatalf("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got: %v", tt.want, err)
			}
		})
	}
}
