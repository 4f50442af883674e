package app

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/roman-kulish/rfnoc-capture/internal/analysis"
	"github.com/roman-kulish/rfnoc-capture/internal/iq"
	"github.com/roman-kulish/rfnoc-capture/internal/ofdm"
)

// BlockSummary describes one measurement of a capture file
type BlockSummary struct {
	Measurement int             `json:"measurement"`
	Start       int             `json:"start"`
	Samples     int             `json:"samples"`
	Magnitude   analysis.Stats  `json:"magnitude"`
	Metric      *analysis.Stats `json:"metric,omitempty"`
}

// Summary describes a capture file
type Summary struct {
	Path     string         `json:"path"`
	Format   iq.Format      `json:"format"`
	Samples  int            `json:"samples"`
	RunID    string         `json:"runId,omitempty"`
	Datapath string         `json:"datapath,omitempty"`
	Tag      string         `json:"tag,omitempty"`
	Channels int            `json:"channels,omitempty"`
	Blocks   []BlockSummary `json:"blocks"`
}

func loadCapture(path, format string) (*analysis.Capture, error) {
	var f iq.Format
	if format != "" {
		parsed, err := iq.ParseFormat(format)
		if err != nil {
			return nil, err
		}
		f = parsed
	}
	return analysis.Load(path, f)
}

// Summarize computes the per block statistics of a capture
func Summarize(c *analysis.Capture) (*Summary, error) {
	magnitude, err := c.Series(analysis.ModeMagnitude)
	if err != nil {
		return nil, err
	}

	s := Summary{Path: c.Path, Format: c.Format, Samples: c.Len()}
	if c.Metadata != nil {
		s.RunID = c.Metadata.RunID
		s.Datapath = c.Metadata.Datapath
		s.Tag = c.Metadata.Tag
		s.Channels = c.Metadata.Channels
	}

	var metric []float64
	if c.Metric != nil {
		if metric, err = c.Series(analysis.ModeMetric); err != nil {
			return nil, err
		}
	}

	for _, b := range c.Blocks() {
		bs := BlockSummary{
			Measurement: b.Measurement,
			Start:       b.Start,
			Samples:     b.Len(),
			Magnitude:   analysis.Describe(magnitude[b.Start:b.End]),
		}
		if metric != nil {
			stats := analysis.Describe(metric[b.Start:b.End])
			bs.Metric = &stats
		}
		s.Blocks = append(s.Blocks, bs)
	}
	return &s, nil
}

func newInspectCommand(g *globals) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "inspect [flags] FILE",
		Short: "Summarize a capture file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadCapture(args[0], format)
			if err != nil {
				return err
			}
			s, err := Summarize(c)
			if err != nil {
				return err
			}

			if g.json {
				return writeJSON(cmd.OutOrStdout(), s)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %s samples, %s\n", s.Path, humanize.Comma(int64(s.Samples)), s.Format)
			if s.RunID != "" {
				fmt.Fprintf(out, "run %s, datapath %s, %d channel(s)\n", s.RunID, s.Datapath, s.Channels)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tSTART\tSAMPLES\tPEAK\tMEAN\tRMS\tMETRIC MAX\tAT")
			for _, b := range s.Blocks {
				metricMax, at := "-", "-"
				if b.Metric != nil {
					metricMax = humanize.Comma(int64(b.Metric.Max))
					at = humanize.Comma(int64(b.Start + b.Metric.ArgMax))
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%.4f\t%.4f\t%.4f\t%s\t%s\n",
					b.Measurement, humanize.Comma(int64(b.Start)), humanize.Comma(int64(b.Samples)),
					b.Magnitude.Max, b.Magnitude.Mean, b.Magnitude.RMS, metricMax, at)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "Sample format, taken from the file name by default")
	return cmd
}

// detect runs the detector matching the capture: the recorded metric of an
// int32 capture, or the timing metric computed from the samples when half is set
func detect(c *analysis.Capture, half int, threshold float64) ([]analysis.Detection, error) {
	if half > 0 {
		return c.DetectSignal(half, threshold), nil
	}
	if c.Metric == nil {
		return nil, fmt.Errorf("%w: set the preamble half length to detect in signal captures", analysis.ErrNoMetric)
	}
	return c.DetectMetric(int32(threshold))
}

func newDetectCommand(g *globals) *cobra.Command {
	var (
		format    string
		half      int
		threshold float64
	)

	cmd := &cobra.Command{
		Use:   "detect [flags] FILE",
		Short: "Find the synchronization index of every measurement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadCapture(args[0], format)
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed("threshold") && half > 0 {
				threshold = 0.5
			}

			detections, err := detect(c, half, threshold)
			if err != nil {
				return err
			}
			g.logger.Debug("detector finished", "blocks", len(detections), "threshold", threshold)

			if g.json {
				return writeJSON(cmd.OutOrStdout(), detections)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tSAMPLES\tOFFSET\tINDEX\tVALUE")
			for _, d := range detections {
				if !d.Found() {
					fmt.Fprintf(tw, "%d\t%s\t-\t-\t-\n", d.Block.Measurement, humanize.Comma(int64(d.Block.Len())))
					continue
				}
				fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%s\n", d.Block.Measurement, humanize.Comma(int64(d.Block.Len())),
					d.Offset, d.Index, humanize.FtoaWithDigits(d.Value, 4))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "Sample format, taken from the file name by default")
	cmd.Flags().IntVar(&half, "half", 0, "Preamble half length in samples; computes the metric from the samples")
	cmd.Flags().Float64VarP(&threshold, "threshold", "t", float64(ofdm.DefaultThreshold), "Detection threshold")
	return cmd
}
