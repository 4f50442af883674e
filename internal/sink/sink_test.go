package sink

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/roman-kulish/rfnoc-capture/internal/iq"
)

func testConfig(dir string) Config {
	return Config{
		Directory: dir,
		BaseName:  "rx_samples",
		Datapath:  "schmidl_cox",
		Tag:       "signal",
		Format:    iq.FormatSC16,
		Scope:     ScopeMeasurement,
	}
}

func TestFileName(t *testing.T) {
	c := testConfig("")

	tests := []struct {
		name        string
		mutate      func(c *Config)
		measurement int
		channel     int
		want        string
	}{
		{name: "run scope", measurement: RunMeasurement, channel: -1, want: "rx_samples_schmidl_cox.signal.sc16.dat"},
		{name: "measurement scope", measurement: 7, channel: -1, want: "rx_samples_schmidl_cox.signal_m0007.sc16.dat"},
		{name: "split channel", measurement: 0, channel: 1, want: "rx_samples_schmidl_cox.signal_m0000_ch1.sc16.dat"},
		{
			name:        "raw compressed",
			mutate:      func(c *Config) { c.Datapath, c.Tag, c.Format, c.Compress = "raw", "", iq.FormatFC32, true },
			measurement: RunMeasurement,
			channel:     -1,
			want:        "rx_samples_raw.fc32.dat.zst",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := c
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}
			if got := FileName(cfg, tt.measurement, tt.channel); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	c := testConfig("")
	c.BaseName = ""
	c.Scope = "forever"
	if err := c.Validate(); err == nil {
		t.Error("Expected validation error, got nil")
	}
	if _, err := ParseScope("Run"); err != nil {
		t.Errorf("Expected run scope to parse, got %v", err)
	}
}

func TestFileOpener_SplitChannels(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.SplitChannels = true
	cfg.Metadata = true

	opener, err := NewFileOpener(cfg, WithAttributes(map[string]any{"rate": 200e6}))
	if err != nil {
		t.Fatalf("Failed to create opener: %v", err)
	}

	s, err := opener.Open(Target{RunID: "run-1", Measurement: 2, Channels: 2})
	if err != nil {
		t.Fatalf("Failed to open sink: %v", err)
	}

	if _, err := s.Writer(0).Write([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}
	if _, err := s.Writer(1).Write([]byte{5, 6, 7, 8, 9, 10, 11, 12}); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}
	s.Annotate(Measurement{Index: 2, Requested: 1, Accepted: 1, Bytes: 12, Status: "complete"})

	if err := s.Close(); err != nil {
		t.Fatalf("Failed to close sink: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Expected second close to be a no-op, got %v", err)
	}

	files := s.Files()
	if len(files) != 2 {
		t.Fatalf("Expected 2 files, got %d", len(files))
	}
	data, _ := os.ReadFile(files[1])
	if len(data) != 8 {
		t.Errorf("Expected 8 bytes in channel 1, got %d", len(data))
	}

	metaPath, ok := MetadataPath(files[1])
	if !ok {
		t.Fatal("Expected metadata sidecar next to the channel file")
	}
	meta, err := ReadMetadata(metaPath)
	if err != nil {
		t.Fatalf("Failed to read metadata: %v", err)
	}
	if meta.RunID != "run-1" || meta.Channels != 2 || !meta.SplitChannels {
		t.Errorf("Unexpected metadata %+v", meta)
	}
	if len(meta.Measurements) != 1 || meta.Measurements[0].Bytes != 12 {
		t.Errorf("Unexpected measurements %+v", meta.Measurements)
	}
	if meta.Attributes["rate"] != 200e6 {
		t.Errorf("Expected rate attribute, got %v", meta.Attributes["rate"])
	}
}

func TestFileOpener_CompressedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.Scope = ScopeRun
	cfg.Compress = true

	opener, err := NewFileOpener(cfg)
	if err != nil {
		t.Fatalf("Failed to create opener: %v", err)
	}
	s, err := opener.Open(Target{Measurement: RunMeasurement, Channels: 1})
	if err != nil {
		t.Fatalf("Failed to open sink: %v", err)
	}

	payload := bytes.Repeat([]byte{0x64, 0x00, 0xCE, 0xFF}, 1000)
	if _, err := s.Writer(0).Write(payload); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Failed to close sink: %v", err)
	}

	path := filepath.Join(dir, "rx_samples_schmidl_cox.signal.sc16.dat.zst")
	r, err := OpenReader(path)
	if err != nil {
		t.Fatalf("Failed to open reader: %v", err)
	}
	defer r.Close()

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("Failed to read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Expected %d decompressed bytes, got %d", len(payload), len(got))
	}
}

func TestFileOpener_NoClobber(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.NoClobber = true

	opener, _ := NewFileOpener(cfg)
	s, err := opener.Open(Target{Measurement: 0, Channels: 1})
	if err != nil {
		t.Fatalf("Failed to open sink: %v", err)
	}
	_ = s.Close()

	if _, err := opener.Open(Target{Measurement: 0, Channels: 1}); err == nil {
		t.Error("Expected error for existing file, got nil")
	}
}

func TestFileOpener_Check(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.SplitChannels = true

	existing := filepath.Join(dir, FileName(cfg, 2, 1))
	if err := os.WriteFile(existing, []byte{1}, 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	opener, _ := NewFileOpener(cfg)
	if err := opener.Check(Target{Measurement: 2, Channels: 2}); err != nil {
		t.Errorf("Expected no error when overwriting is allowed, got %v", err)
	}

	cfg.NoClobber = true
	opener, _ = NewFileOpener(cfg)
	if err := opener.Check(Target{Measurement: 1, Channels: 2}); err != nil {
		t.Errorf("Expected measurement 1 to be free, got %v", err)
	}
	if err := opener.Check(Target{Measurement: 2, Channels: 2}); !errors.Is(err, os.ErrExist) {
		t.Errorf("Expected os.ErrExist for measurement 2, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, FileName(cfg, 1, 0))); !os.IsNotExist(err) {
		t.Errorf("Expected Check not to create files")
	}
}
