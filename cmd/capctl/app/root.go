// Package app implements capctl, the offline companion of rxfile: it lists
// the capture ledger, inspects and plots capture files and runs the
// synchronization detector on them.
package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roman-kulish/rfnoc-capture/internal/storage"
)

type globals struct {
	logger   *slog.Logger
	logLevel *slog.LevelVar
	verbose  bool
	json     bool
}

// NewRootCommand returns the capctl command tree
func NewRootCommand(logger *slog.Logger, logLevel *slog.LevelVar) *cobra.Command {
	g := globals{logger: logger, logLevel: logLevel}

	root := &cobra.Command{
		Use:           "capctl",
		Short:         "Inspect rxfile captures and the capture ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if g.verbose && g.logLevel != nil {
				g.logLevel.Set(slog.LevelDebug)
			}
		},
	}
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().BoolVar(&g.json, "json", false, "Print JSON instead of tables")

	root.AddCommand(
		newSessionsCommand(&g),
		newMeasurementsCommand(&g),
		newInspectCommand(&g),
		newDetectCommand(&g),
		newPlotCommand(&g),
	)
	return root
}

func openStore(dbPath string) (*storage.SqliteStore, error) {
	if dbPath == "" {
		return nil, errors.New("db path is required")
	}
	if _, err := os.Stat(dbPath); err != nil && os.IsNotExist(err) {
		return nil, fmt.Errorf("database file '%s' does not exist: %w", dbPath, err)
	}
	return storage.NewSqliteStore(dbPath), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
