package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/roman-kulish/rfnoc-capture/internal/metrics"
	"github.com/roman-kulish/rfnoc-capture/internal/notify"
	"github.com/roman-kulish/rfnoc-capture/internal/receiver"
	"github.com/roman-kulish/rfnoc-capture/internal/sink"
	"github.com/roman-kulish/rfnoc-capture/internal/storage"
)

// ErrMeasurementsFailed is returned when the run finished but some measurements did not complete
var ErrMeasurementsFailed = errors.New("measurements failed")

// Run configures the device and the datapath, takes the measurements and
// writes them to the output sinks.
func Run(ctx context.Context, config *Config, logger *slog.Logger) (err error) {
	runID := uuid.NewString()
	logger = logger.With(slog.String("runID", runID))

	hw, err := openHardware(config, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cErr := hw.close(); cErr != nil && err == nil {
			err = fmt.Errorf("closing device: %w", cErr)
		}
	}()

	s, err := setupDatapath(ctx, hw, config, logger)
	if err != nil {
		return err
	}

	sinkConfig := config.SinkConfig()
	opener, err := sink.NewFileOpener(sinkConfig,
		sink.WithLogger(logger),
		sink.WithAttributes(map[string]any{
			"device":   config.Device.Type,
			"deviceId": config.Device.ID,
			"setup":    s,
		}),
	)
	if err != nil {
		return fmt.Errorf("creating sinks: %w", err)
	}

	options := []func(r *receiver.Receiver){
		receiver.WithLogger(logger),
		receiver.WithRunID(runID),
	}

	if config.Storage.Enabled {
		store, err := createStorage(&config.Storage)
		if err != nil {
			return fmt.Errorf("failed to create storage: %w", err)
		}
		defer store.Close()

		ledger, err := NewLedger(ctx, store, runID, string(config.Device.Type), config.Device.ID, newRunSettings(config), logger)
		if err != nil {
			return err
		}
		defer ledger.Close(ctx)

		options = append(options, receiver.WithObserver(ledger))
	}

	collector := metrics.New(
		metrics.WithLogger(logger),
		metrics.WithLabels(prometheus.Labels{"device": string(config.Device.Type)}),
	)
	options = append(options, receiver.WithObserver(collector))

	var wg sync.WaitGroup
	if config.Metrics.Listen != "" {
		serveCtx, stopServing := context.WithCancel(ctx)
		defer func() {
			stopServing()
			wg.Wait()
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := collector.Serve(serveCtx, config.Metrics.Listen); err != nil {
				logger.Error(err.Error())
			}
		}()
	}

	if config.MQTT.Enabled {
		client, err := notify.Connect(config.MQTT.Config, logger)
		if err != nil {
			return err
		}
		publisher := notify.NewPublisher(client, config.MQTT.Config, notify.WithLogger(logger))
		defer publisher.Close()

		options = append(options, receiver.WithObserver(publisher))
	}

	rc := config.ReceiverConfig()
	rc.StartAt = startAt(hw.source, config)

	rx, err := receiver.New(rc, hw.source, opener, options...)
	if err != nil {
		return err
	}

	result, err := rx.Run(ctx)
	if result != nil {
		logSummary(logger, result)
	}

	if config.Metrics.PushGateway != "" {
		if pErr := collector.Push(context.WithoutCancel(ctx), config.Metrics.PushGateway); pErr != nil {
			logger.Error(pErr.Error())
		}
	}

	if err != nil {
		return err
	}
	if n := result.Failed(); n > 0 {
		return fmt.Errorf("%w: %d of %d", ErrMeasurementsFailed, n, len(result.Measurements))
	}
	return nil
}

func logSummary(logger *slog.Logger, r *receiver.RunResult) {
	files := append([]string(nil), r.Files...)
	for _, m := range r.Measurements {
		files = append(files, m.Files...)
		if m.Status == receiver.StatusComplete || m.Status == receiver.StatusStopped {
			continue
		}
		logger.Warn("measurement incomplete",
			slog.Int("measurement", m.Index),
			slog.String("status", string(m.Status)),
			slog.String("received", humanize.Comma(int64(m.Accepted))),
			slog.String("requested", humanize.Comma(int64(m.Requested))),
		)
	}

	logger.Info("capture written", slog.Any("files", files))
}

func createStorage(config *StorageConfig) (*storage.SqliteStore, error) {
	dir := filepath.Dir(config.DBPath)

	stat, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("storage directory '%s' does not exist: %w", dir, err)
		}
		return nil, fmt.Errorf("checking storage directory '%s': %w", dir, err)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("invalid storage directory '%s'", dir)
	}

	return storage.NewSqliteStore(config.DBPath), nil
}
