package app

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/roman-kulish/rfnoc-capture/internal/storage"
)

func newSessionsCommand(g *globals) *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List the recorded runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			sessions, err := store.Sessions(cmd.Context())
			if err != nil {
				return err
			}
			g.logger.Debug("sessions loaded", "count", len(sessions))

			if g.json {
				return writeJSON(cmd.OutOrStdout(), sessions)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tRUN\tDEVICE\tSTARTED\tDURATION\tMEASUREMENTS\tSTATE")
			for _, s := range sessions {
				duration, state := "-", "running"
				if s.EndTime != nil {
					duration = s.EndTime.Sub(s.StartTime).Round(time.Millisecond).String()
					state = "finished"
				}
				if s.Cancelled {
					state = "cancelled"
				}
				fmt.Fprintf(tw, "%d\t%s\t%s/%s\t%s\t%s\t%d\t%s\n",
					s.ID, s.RunID, s.DeviceType, s.DeviceID,
					s.StartTime.Local().Format(time.DateTime), duration, s.Measurements, state)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "Path to the ledger database")
	_ = cmd.MarkFlagRequired("db")
	return cmd
}

func newMeasurementsCommand(g *globals) *cobra.Command {
	var (
		dbPath      string
		sessionID   int64
		first, last int
		statuses    []string
	)

	cmd := &cobra.Command{
		Use:   "measurements",
		Short: "List the measurements of a run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			var opts []storage.ReaderOption
			if cmd.Flags().Changed("first") || cmd.Flags().Changed("last") {
				opts = append(opts, storage.WithIndexRange(first, last))
			}
			if len(statuses) > 0 {
				opts = append(opts, storage.WithStatus(statuses...))
			}

			ctx := cmd.Context()
			reader, err := store.ReadMeasurements(ctx, sessionID, opts...)
			if err != nil {
				return err
			}
			defer reader.Close()

			var measurements []*storage.Measurement
			for reader.Next(ctx) {
				measurements = append(measurements, reader.Current())
			}
			if err = reader.Error(); err != nil {
				return err
			}

			if g.json {
				return writeJSON(cmd.OutOrStdout(), measurements)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tSTATUS\tSAMPLES\tFETCHES\tOVERFLOWS\tCLIPPED\tPEAK I/Q\tWRITTEN\tFILES")
			for _, m := range measurements {
				samples := humanize.Comma(int64(m.Accepted))
				if m.Requested > 0 {
					samples += "/" + humanize.Comma(int64(m.Requested))
				}
				status := m.Status
				if m.Error != nil {
					status += ": " + *m.Error
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\t%.3f/%.3f\t%s\t%s\n",
					m.Index, status, samples, m.Fetches, m.Overflows, m.ClippedChunks,
					m.MaxI, m.MaxQ, humanize.Bytes(uint64(m.Bytes)), strings.Join(m.Files, ","))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "Path to the ledger database")
	cmd.Flags().Int64VarP(&sessionID, "session", "s", 0, "Session ID")
	cmd.Flags().IntVar(&first, "first", 0, "First measurement index")
	cmd.Flags().IntVar(&last, "last", 1<<31-1, "Last measurement index")
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Only list measurements with these statuses")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}
