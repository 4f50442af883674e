package analysis

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"math/cmplx"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"

	"github.com/roman-kulish/rfnoc-capture/internal/iq"
	"github.com/roman-kulish/rfnoc-capture/internal/sink"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func sc16Bytes(samples ...iq.SC16) []byte {
	p := make([]byte, 4*len(samples))
	for i, s := range samples {
		iq.PutSC16(p[i*4:], s)
	}
	return p
}

func int32Bytes(words ...int32) []byte {
	p := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(p[i*4:], uint32(w))
	}
	return p
}

func TestFormatFromName(t *testing.T) {
	tests := []struct {
		path    string
		want    iq.Format
		wantErr bool
	}{
		{path: "rx_raw_m0000.sc16.dat", want: iq.FormatSC16},
		{path: "/data/rx_schmidl_cox.metricLSB.int32.dat.zst", want: iq.FormatInt32},
		{path: "rx_raw_ch1.fc32.dat", want: iq.FormatFC32},
		{path: "samples.bin", wantErr: true},
		{path: "rx.cs8.dat", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := FormatFromName(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FormatFromName() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestLoad_SC16(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rx_raw.sc16.dat")
	writeFile(t, path, sc16Bytes(
		iq.SC16{I: 16384, Q: 0},
		iq.SC16{I: 0, Q: -16384},
		iq.SC16{I: -32768, Q: 16384},
	))

	c, err := Load(path, "")
	if err != nil {
		t.Fatalf("Failed to load capture: %v", err)
	}
	if c.Format != iq.FormatSC16 || c.Len() != 3 || c.Metadata != nil {
		t.Fatalf("Unexpected capture: format=%s len=%d", c.Format, c.Len())
	}

	re, err := c.Series(ModeReal)
	if err != nil {
		t.Fatalf("Failed to build series: %v", err)
	}
	want := []float64{0.5, 0, -1}
	for i := range want {
		if re[i] != want[i] {
			t.Errorf("Expected real[%d] = %v, got %v", i, want[i], re[i])
		}
	}

	mag, err := c.Series(ModeMagnitude)
	if err != nil {
		t.Fatalf("Failed to build series: %v", err)
	}
	if mag[1] != 0.5 {
		t.Errorf("Expected magnitude 0.5, got %v", mag[1])
	}

	if _, err = c.Series(ModeMetric); !errors.Is(err, ErrNoMetric) {
		t.Errorf("Expected ErrNoMetric, got %v", err)
	}
}

func TestLoad_Int32Compressed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rx_schmidl_cox.metricLSB_m0000.int32.dat.zst")

	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatalf("Failed to create encoder: %v", err)
	}
	if _, err = zw.Write(int32Bytes(1, 20, 30, 25, 2, 1, 40, 50, 45, 3)); err != nil {
		t.Fatalf("Failed to compress: %v", err)
	}
	if err = zw.Close(); err != nil {
		t.Fatalf("Failed to close encoder: %v", err)
	}
	writeFile(t, path, buf.Bytes())

	meta, err := json.Marshal(sink.Metadata{
		RunID:    "run-1",
		Format:   "int32",
		Channels: 1,
		Measurements: []sink.Measurement{
			{Index: 0, Accepted: 5},
			{Index: 1, Accepted: 5},
		},
	})
	if err != nil {
		t.Fatalf("Failed to marshal metadata: %v", err)
	}
	writeFile(t, filepath.Join(dir, "rx_schmidl_cox.metricLSB_m0000.int32.dat.json"), meta)

	c, err := Load(path, iq.FormatInt32)
	if err != nil {
		t.Fatalf("Failed to load capture: %v", err)
	}
	if len(c.Metric) != 10 || c.Metadata == nil || c.Metadata.RunID != "run-1" {
		t.Fatalf("Unexpected capture: %d words, metadata %+v", len(c.Metric), c.Metadata)
	}

	blocks := c.Blocks()
	if len(blocks) != 2 || blocks[1].Start != 5 || blocks[1].End != 10 {
		t.Fatalf("Unexpected blocks: %+v", blocks)
	}

	detections, err := c.DetectMetric(10)
	if err != nil {
		t.Fatalf("Failed to detect: %v", err)
	}
	wantIdx := []int{2, 7}
	for i, d := range detections {
		if !d.Found() || d.Index != wantIdx[i] {
			t.Errorf("Expected block %d index %d, got %+v", i, wantIdx[i], d)
		}
	}
	if detections[1].Offset != 2 || detections[1].Value != 50 {
		t.Errorf("Unexpected detection: %+v", detections[1])
	}
}

func TestDetectSignal(t *testing.T) {
	const half = 8

	preamble := make([]complex64, half)
	for i := range preamble {
		preamble[i] = complex64(cmplx.Rect(0.5, float64(i*i)))
	}

	var samples []complex64
	samples = append(samples, make([]complex64, 20)...)
	samples = append(samples, preamble...)
	samples = append(samples, preamble...)
	samples = append(samples, make([]complex64, 20)...)

	c := &Capture{Format: iq.FormatFC32, Samples: samples}
	detections := c.DetectSignal(half, 0.9)
	if len(detections) != 1 || !detections[0].Found() {
		t.Fatalf("Expected one detection, got %+v", detections)
	}
	if idx := detections[0].Index; idx < 20+half || idx > 20+3*half {
		t.Errorf("Expected index around the preamble, got %d", idx)
	}

	silent := &Capture{Format: iq.FormatFC32, Samples: make([]complex64, 64)}
	if d := silent.DetectSignal(half, 0.9); d[0].Found() {
		t.Errorf("Expected no detection in silence, got %+v", d[0])
	}
}

func TestDescribe(t *testing.T) {
	s := Describe([]float64{1, -2, 3, 2})
	if s.N != 4 || s.Min != -2 || s.Max != 3 || s.ArgMax != 2 || s.Mean != 1 {
		t.Errorf("Unexpected stats: %+v", s)
	}
	if want := math.Sqrt(18.0 / 4); math.Abs(s.RMS-want) > 1e-12 {
		t.Errorf("Expected RMS %v, got %v", want, s.RMS)
	}

	if s = Describe(nil); s.N != 0 {
		t.Errorf("Expected empty stats, got %+v", s)
	}
	if s = Describe([]float64{5}); s.StdDev != 0 || s.Mean != 5 {
		t.Errorf("Unexpected single value stats: %+v", s)
	}
}

func TestSpectrum(t *testing.T) {
	const size = 64
	const bin = 5

	samples := make([]complex64, 4*size)
	for i := range samples {
		samples[i] = complex64(cmplx.Rect(0.5, 2*math.Pi*bin*float64(i)/size))
	}

	spec, err := Spectrum(samples, size)
	if err != nil {
		t.Fatalf("Failed to compute spectrum: %v", err)
	}
	if len(spec) != size {
		t.Fatalf("Expected %d bins, got %d", size, len(spec))
	}

	peak := 0
	for i := range spec {
		if spec[i] > spec[peak] {
			peak = i
		}
	}
	if peak != size/2+bin {
		t.Errorf("Expected peak at %d, got %d", size/2+bin, peak)
	}
	if want := 20 * math.Log10(0.5); math.Abs(spec[peak]-want) > 0.1 {
		t.Errorf("Expected peak power %.2f dBFS, got %.2f", want, spec[peak])
	}

	if _, err = Spectrum(samples[:10], size); err == nil {
		t.Errorf("Expected error for short input")
	}
	for _, n := range []int{0, 1} {
		if _, err = Spectrum(samples, n); err == nil {
			t.Errorf("Expected error for FFT size %d", n)
		}
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode(" Magnitude "); err != nil || m != ModeMagnitude {
		t.Errorf("Expected magnitude, got %s (%v)", m, err)
	}
	if _, err := ParseMode("phase"); err == nil {
		t.Errorf("Expected error for unknown mode")
	}
}
