package app

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roman-kulish/rfnoc-capture/internal/analysis"
	"github.com/roman-kulish/rfnoc-capture/internal/sink"
)

const (
	ImagePNG  ImageFormat = "png"
	ImageJPEG ImageFormat = "jpeg"

	KindTrace     PlotKind = "trace"
	KindWaterfall PlotKind = "waterfall"

	defaultFFTSize = 1024
	maxRows        = 1024
)

type ImageFormat string

// PlotKind selects between a series trace and a spectrum waterfall
type PlotKind string

// PlotConfig holds the options of the plot command
type PlotConfig struct {
	Input     string
	Format    string // sample format, empty to take it from the file name
	Output    string
	Image     ImageFormat
	Kind      PlotKind
	Mode      analysis.Mode
	Block     int // measurement to plot, negative for the whole capture
	Threshold *float64
	Detect    bool
	Half      int
	FFTSize   int
	Theme     ColorTheme
	Rate      float64
	Center    float64
	Width     int
	Height    int
}

func (c *PlotConfig) Validate() error {
	switch {
	case c.Output == "":
		return errors.New("output file is required")
	case c.Image != ImagePNG && c.Image != ImageJPEG:
		return fmt.Errorf("invalid image format: %s", c.Image)
	case c.Kind != KindTrace && c.Kind != KindWaterfall:
		return fmt.Errorf("invalid plot kind: %s", c.Kind)
	case c.FFTSize < 2:
		return fmt.Errorf("invalid FFT size %d: must be at least 2", c.FFTSize)
	case c.Detect && c.Threshold == nil:
		return errors.New("detection markers need a threshold")
	}
	return nil
}

func newPlotCommand(g *globals) *cobra.Command {
	var (
		config      PlotConfig
		imageFormat string
		kind        string
		mode        string
		theme       string
		threshold   float64
	)

	cmd := &cobra.Command{
		Use:   "plot [flags] FILE",
		Short: "Render a capture file to an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config.Input = args[0]
			config.Image = ImageFormat(strings.ToLower(imageFormat))
			config.Kind = PlotKind(strings.ToLower(kind))
			if cmd.Flags().Changed("threshold") {
				config.Threshold = &threshold
			}

			var err error
			if config.Mode, err = analysis.ParseMode(mode); err != nil {
				return err
			}
			if config.Theme, err = ParseColorTheme(theme); err != nil {
				return err
			}
			if !strings.HasSuffix(config.Output, "."+string(config.Image)) {
				config.Output = fmt.Sprintf("%s.%s", config.Output, config.Image)
			}

			return Plot(&config, g.logger)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&config.Output, "output", "o", "", "Path to the output image, the extension is added when missing")
	flags.StringVarP(&config.Format, "format", "f", "", "Sample format, taken from the file name by default")
	flags.StringVar(&imageFormat, "image", string(ImagePNG), "Output image format [png, jpeg]")
	flags.StringVarP(&kind, "kind", "k", string(KindTrace), "Plot kind [trace, waterfall]")
	flags.StringVarP(&mode, "mode", "m", string(analysis.ModeMagnitude), "Trace value [magnitude, real, imag, metric]")
	flags.IntVarP(&config.Block, "block", "b", -1, "Measurement to plot, all by default")
	flags.Float64VarP(&threshold, "threshold", "t", 0, "Draw the detection threshold")
	flags.BoolVar(&config.Detect, "detect", false, "Mark the detected synchronization index")
	flags.IntVar(&config.Half, "half", 0, "Preamble half length for detection in signal captures")
	flags.IntVar(&config.FFTSize, "fft", defaultFFTSize, "Waterfall FFT size")
	flags.StringVar(&theme, "theme", string(EnhancedTheme), "Waterfall color theme [enhanced, classic, grayscale, thermal, marine]")
	flags.Float64Var(&config.Rate, "rate", 0, "Sample rate in Hz, taken from the metadata by default")
	flags.Float64Var(&config.Center, "center", 0, "Center frequency in Hz, taken from the metadata by default")
	flags.IntVar(&config.Width, "width", defaultWidth, "Trace width in pixels")
	flags.IntVar(&config.Height, "height", defaultHeight, "Trace height in pixels")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

// Plot renders the capture described by config and writes the image
func Plot(config *PlotConfig, logger *slog.Logger) error {
	if err := config.Validate(); err != nil {
		return err
	}

	c, err := loadCapture(config.Input, config.Format)
	if err != nil {
		return err
	}

	rate, center := config.Rate, config.Center
	if mRate, mCenter, ok := radioSettings(c.Metadata); ok {
		if rate == 0 {
			rate = mRate
		}
		if center == 0 {
			center = mCenter
		}
	}

	block, err := selectBlock(c, config.Block)
	if err != nil {
		return err
	}

	logger.Info("rendering capture",
		slog.String("input", config.Input),
		slog.String("kind", string(config.Kind)),
		slog.Int("start", block.Start),
		slog.Int("samples", block.Len()),
	)

	renderer := NewRenderer(RenderConfig{
		Width:      config.Width,
		Height:     config.Height,
		ColorTheme: config.Theme,
	})

	var img *image.RGBA
	switch config.Kind {
	case KindWaterfall:
		wf, err := newWaterfall(c.Samples[block.Start:block.End], config.FFTSize, rate, center)
		if err != nil {
			return err
		}
		wf.Info = fmt.Sprintf("%s; FFT %d", c.Path, config.FFTSize)

		var power []float64
		for _, row := range wf.Rows {
			power = append(power, row...)
		}
		if img, err = renderer.RenderWaterfall(wf, NewPowerBounds(power)); err != nil {
			return fmt.Errorf("rendering waterfall: %w", err)
		}

	default:
		trace, err := newTrace(c, block, config, rate)
		if err != nil {
			return err
		}
		if img, err = renderer.RenderTrace(trace); err != nil {
			return fmt.Errorf("rendering trace: %w", err)
		}
	}

	logger.Info("writing image",
		slog.String("destination", config.Output),
		slog.String("format", string(config.Image)),
		slog.Int("width", img.Bounds().Dx()),
		slog.Int("height", img.Bounds().Dy()),
	)
	return writeImage(config.Output, config.Image, img)
}

func selectBlock(c *analysis.Capture, measurement int) (analysis.Block, error) {
	if measurement < 0 {
		return analysis.Block{Measurement: -1, Start: 0, End: c.Len()}, nil
	}
	for _, b := range c.Blocks() {
		if b.Measurement == measurement {
			return b, nil
		}
	}
	return analysis.Block{}, fmt.Errorf("measurement %d not found in %s", measurement, c.Path)
}

func newTrace(c *analysis.Capture, block analysis.Block, config *PlotConfig, rate float64) (*Trace, error) {
	series, err := c.Series(config.Mode)
	if err != nil {
		return nil, err
	}

	t := Trace{
		Values:    series[block.Start:block.End],
		Offset:    block.Start,
		Rate:      rate,
		Threshold: config.Threshold,
		Info:      fmt.Sprintf("%s; %s", c.Path, config.Mode),
	}

	if config.Detect {
		detections, err := detect(c, config.Half, *config.Threshold)
		if err != nil {
			return nil, err
		}
		for _, d := range detections {
			if d.Found() && d.Index >= block.Start && d.Index < block.End {
				t.Markers = append(t.Markers, d.Index-block.Start)
			}
		}
		t.Info += fmt.Sprintf("; %d detection(s)", len(t.Markers))
	}
	return &t, nil
}

// newWaterfall averages the spectra of consecutive frames into at most
// maxRows rows
func newWaterfall(samples []complex64, size int, rate, center float64) (*Waterfall, error) {
	frames := len(samples) / size
	if frames == 0 {
		return nil, fmt.Errorf("fewer samples than the FFT size %d", size)
	}
	perRow := (frames + maxRows - 1) / maxRows

	wf := Waterfall{Rate: rate, Center: center}
	if rate > 0 {
		wf.RowDuration = time.Duration(float64(perRow*size) / rate * float64(time.Second))
	}

	step := perRow * size
	for start := 0; start+size <= len(samples); start += step {
		end := min(start+step, len(samples))
		row, err := analysis.Spectrum(samples[start:end], size)
		if err != nil {
			return nil, err
		}
		wf.Rows = append(wf.Rows, row)
	}
	return &wf, nil
}

// radioSettings reads the rate and frequency rxfile records in the sidecar
func radioSettings(meta *sink.Metadata) (rate, center float64, ok bool) {
	if meta == nil {
		return 0, 0, false
	}
	setup, _ := meta.Attributes["setup"].(map[string]any)
	radio, _ := setup["radio"].(map[string]any)
	rate, _ = radio["rate"].(float64)
	center, _ = radio["frequency"].(float64)
	return rate, center, rate > 0
}

func writeImage(path string, format ImageFormat, img image.Image) (err error) {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cErr := out.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}()

	switch format {
	case ImageJPEG:
		return jpeg.Encode(out, img, &jpeg.Options{Quality: 98})
	default:
		return png.Encode(out, img)
	}
}
