package app

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"image/png"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/roman-kulish/rfnoc-capture/internal/analysis"
	"github.com/roman-kulish/rfnoc-capture/internal/iq"
	"github.com/roman-kulish/rfnoc-capture/internal/sink"
	"github.com/roman-kulish/rfnoc-capture/internal/storage"
)

func nilLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeToneCapture(t *testing.T, dir string, n int) string {
	t.Helper()

	p := make([]byte, 4*n)
	for i := 0; i < n; i++ {
		phase := 2 * math.Pi * float64(i) / 16
		iq.PutSC16(p[i*4:], iq.SC16{I: int16(8192 * math.Cos(phase)), Q: int16(8192 * math.Sin(phase))})
	}

	path := filepath.Join(dir, "rx_samples_raw.sc16.dat")
	if err := os.WriteFile(path, p, 0o644); err != nil {
		t.Fatalf("Failed to write capture: %v", err)
	}
	return path
}

func writeMetricCapture(t *testing.T, dir string) string {
	t.Helper()

	words := []int32{1, 2, 100, 3, 1, 1, 1, 1, 200, 1}
	p := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(p[i*4:], uint32(w))
	}

	path := filepath.Join(dir, "rx_samples_schmidl_cox.metricMSB.int32.dat")
	if err := os.WriteFile(path, p, 0o644); err != nil {
		t.Fatalf("Failed to write capture: %v", err)
	}

	meta, err := json.Marshal(sink.Metadata{
		RunID:    "run-1",
		Datapath: "schmidl_cox",
		Tag:      "metricMSB",
		Format:   "int32",
		Channels: 1,
		Attributes: map[string]any{
			"setup": map[string]any{"radio": map[string]any{"rate": 1e6, "frequency": 915e6}},
		},
		Measurements: []sink.Measurement{
			{Index: 0, Requested: 5, Accepted: 5, Status: "complete"},
			{Index: 1, Requested: 5, Accepted: 5, Status: "complete"},
		},
	})
	if err != nil {
		t.Fatalf("Failed to marshal metadata: %v", err)
	}
	if err = os.WriteFile(path+".json", meta, 0o644); err != nil {
		t.Fatalf("Failed to write metadata: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) string {
	t.Helper()

	var out bytes.Buffer
	cmd := NewRootCommand(nilLogger(), nil)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("Failed to execute %v: %v", args, err)
	}
	return out.String()
}

func TestInspectCommand(t *testing.T) {
	path := writeMetricCapture(t, t.TempDir())

	var s Summary
	if err := json.Unmarshal([]byte(execute(t, "inspect", "--json", path)), &s); err != nil {
		t.Fatalf("Failed to decode summary: %v", err)
	}

	if s.Format != iq.FormatInt32 || s.Samples != 10 || s.RunID != "run-1" {
		t.Errorf("Unexpected summary: %+v", s)
	}
	if len(s.Blocks) != 2 {
		t.Fatalf("Expected 2 blocks, got %d", len(s.Blocks))
	}
	if s.Blocks[1].Metric == nil || s.Blocks[1].Metric.Max != 200 || s.Blocks[1].Metric.ArgMax != 3 {
		t.Errorf("Unexpected metric stats of block 1: %+v", s.Blocks[1].Metric)
	}
}

func TestDetectCommand(t *testing.T) {
	path := writeMetricCapture(t, t.TempDir())

	var detections []analysis.Detection
	if err := json.Unmarshal([]byte(execute(t, "detect", "--json", "-t", "50", path)), &detections); err != nil {
		t.Fatalf("Failed to decode detections: %v", err)
	}

	if len(detections) != 2 {
		t.Fatalf("Expected 2 detections, got %d", len(detections))
	}
	for i, want := range []int{2, 8} {
		if detections[i].Index != want {
			t.Errorf("Expected detection %d at %d, got %d", i, want, detections[i].Index)
		}
	}

	table := execute(t, "detect", "-t", "150", path)
	if !strings.Contains(table, "OFFSET") {
		t.Errorf("Expected table header, got:\n%s", table)
	}
}

func TestDetect_SignalCaptureNeedsHalf(t *testing.T) {
	c, err := analysis.Load(writeToneCapture(t, t.TempDir(), 64), "")
	if err != nil {
		t.Fatalf("Failed to load capture: %v", err)
	}
	if _, err = detect(c, 0, 0.5); err == nil {
		t.Errorf("Expected error for a signal capture without a half length, got nil")
	}
	if _, err = detect(c, 8, 0.5); err != nil {
		t.Errorf("Expected detection on samples to succeed, got: %v", err)
	}
}

func TestSessionsCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	store := storage.NewSqliteStore(dbPath)

	ctx := context.Background()
	sessionID, err := store.CreateSession(ctx, "run-1", "sim", "sim0", nil)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	_, err = store.StoreMeasurement(ctx, sessionID, &storage.Measurement{Index: 0, Requested: 10, Accepted: 10, Status: "complete"})
	if err != nil {
		t.Fatalf("Failed to store measurement: %v", err)
	}
	if err = store.Close(); err != nil {
		t.Fatalf("Failed to close store: %v", err)
	}

	out := execute(t, "sessions", "--db", dbPath)
	if !strings.Contains(out, "run-1") || !strings.Contains(out, "sim/sim0") {
		t.Errorf("Expected session row, got:\n%s", out)
	}

	var measurements []*storage.Measurement
	if err = json.Unmarshal([]byte(execute(t, "measurements", "--json", "--db", dbPath, "-s", strconv.FormatInt(sessionID, 10))), &measurements); err != nil {
		t.Fatalf("Failed to decode measurements: %v", err)
	}
	if len(measurements) != 1 || measurements[0].Accepted != 10 {
		t.Errorf("Unexpected measurements: %+v", measurements)
	}
}

func TestPlot(t *testing.T) {
	dir := t.TempDir()
	tone := writeToneCapture(t, dir, 4096)
	metric := writeMetricCapture(t, dir)

	threshold := 50.0
	tests := []struct {
		name       string
		config     PlotConfig
		wantWidth  int
		wantHeight int
	}{
		{
			name:       "trace",
			config:     PlotConfig{Input: tone, Kind: KindTrace, Mode: analysis.ModeMagnitude, Block: -1, Width: 300, Height: 100},
			wantWidth:  300 + defaultLeftBorder + defaultRightBorder,
			wantHeight: 100 + defaultTopBorder + defaultBottomBorder,
		},
		{
			name:       "waterfall",
			config:     PlotConfig{Input: tone, Kind: KindWaterfall, Block: -1, FFTSize: 64, Theme: ThermalTheme},
			wantWidth:  64 + defaultLeftBorder + defaultRightBorder,
			wantHeight: 64 + defaultTopBorder + defaultBottomBorder,
		},
		{
			name: "metric with detections",
			config: PlotConfig{Input: metric, Kind: KindTrace, Mode: analysis.ModeMetric, Block: 1,
				Threshold: &threshold, Detect: true, Width: 200, Height: 80},
			wantWidth:  200 + defaultLeftBorder + defaultRightBorder,
			wantHeight: 80 + defaultTopBorder + defaultBottomBorder,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := tt.config
			config.Output = filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "_")+".png")
			config.Image = ImagePNG
			if config.FFTSize == 0 {
				config.FFTSize = defaultFFTSize
			}

			if err := Plot(&config, nilLogger()); err != nil {
				t.Fatalf("Failed to plot: %v", err)
			}

			f, err := os.Open(config.Output)
			if err != nil {
				t.Fatalf("Failed to open image: %v", err)
			}
			defer f.Close()

			img, err := png.DecodeConfig(f)
			if err != nil {
				t.Fatalf("Failed to decode image: %v", err)
			}
			if img.Width != tt.wantWidth || img.Height != tt.wantHeight {
				t.Errorf("Expected %dx%d image, got %dx%d", tt.wantWidth, tt.wantHeight, img.Width, img.Height)
			}
		})
	}
}

func TestPlotConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		config PlotConfig
	}{
		{name: "no output", config: PlotConfig{Image: ImagePNG, Kind: KindTrace, FFTSize: 64}},
		{name: "bad image", config: PlotConfig{Output: "x", Image: "gif", Kind: KindTrace, FFTSize: 64}},
		{name: "bad kind", config: PlotConfig{Output: "x", Image: ImagePNG, Kind: "bars", FFTSize: 64}},
		{name: "detect without threshold", config: PlotConfig{Output: "x", Image: ImagePNG, Kind: KindTrace, FFTSize: 64, Detect: true}},
		{name: "single point fft", config: PlotConfig{Output: "x", Image: ImagePNG, Kind: KindWaterfall, FFTSize: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); err == nil {
				t.Errorf("Expected error, got nil")
			}
		})
	}
}

func TestNewPowerBounds(t *testing.T) {
	power := make([]float64, 100)
	for i := range power {
		power[i] = -100 + float64(i)/10
	}
	power = append(power, math.Inf(-1))

	b := NewPowerBounds(power)
	if b.Max-b.Min < minPowerRange {
		t.Errorf("Expected at least %g dB range, got %g", minPowerRange, b.Max-b.Min)
	}
	if b.Min > -100 || b.Max < -90 {
		t.Errorf("Expected bounds to cover the data, got %g to %g", b.Min, b.Max)
	}
	if math.IsInf(b.Mean, 0) {
		t.Errorf("Expected infinite power to be ignored")
	}
}

func TestColorMapper(t *testing.T) {
	cm := NewColorMapper(GrayscaleTheme, PowerBounds{Min: -100, Max: 0})

	if got := cm.Color(-200); got != cm.colorMap[0] {
		t.Errorf("Expected power below the bounds to map to the first color, got %v", got)
	}
	if got := cm.Color(10); got != cm.colorMap[DefaultColorMapSize-1] {
		t.Errorf("Expected power above the bounds to map to the last color, got %v", got)
	}
	if got := cm.Color(math.NaN()); got != cm.colorMap[0] {
		t.Errorf("Expected NaN to map to the first color, got %v", got)
	}
}

func TestNiceStep(t *testing.T) {
	tests := []struct {
		span   float64
		pixels int
		want   float64
	}{
		{span: 1000, pixels: 1200, want: 100},
		{span: 3, pixels: 480, want: 1},
		{span: 7e6, pixels: 1200, want: 1e6},
		{span: 0.004, pixels: 120, want: 0.005},
	}

	for _, tt := range tests {
		if got := niceStep(tt.span, tt.pixels); math.Abs(got-tt.want) > tt.want*1e-9 {
			t.Errorf("niceStep(%g, %d): expected %g, got %g", tt.span, tt.pixels, tt.want, got)
		}
	}
}
