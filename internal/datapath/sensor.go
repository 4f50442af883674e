package datapath

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"
)

const (
	SensorLOLocked  = "lo_locked"
	SensorRefLocked = "ref_locked"
)

// LockPollInterval is how often a lock sensor is read while waiting
const LockPollInterval = 100 * time.Millisecond

// ErrLockTimeout is returned when a sensor does not lock within the setup time
var ErrLockTimeout = errors.New("timed out waiting for sensor lock")

// SensorReader reads boolean device sensors
type SensorReader interface {
	SensorNames(ctx context.Context) ([]string, error)
	Sensor(ctx context.Context, name string) (bool, error)
}

// WaitForLock polls the named sensor until it reports a lock and then keeps
// waiting until setup has elapsed so the lock has time to settle. A device
// that does not expose the sensor is treated as locked.
func WaitForLock(ctx context.Context, sr SensorReader, name string, setup time.Duration, logger *slog.Logger) error {
	names, err := sr.SensorNames(ctx)
	if err != nil {
		return fmt.Errorf("listing sensors: %w", err)
	}
	if !slices.Contains(names, name) {
		logger.Warn("sensor not found, assuming locked", slog.String("sensor", name))
		return nil
	}

	logger.Info("waiting for lock", slog.String("sensor", name))

	deadline := time.Now().Add(setup)
	ticker := time.NewTicker(LockPollInterval)
	defer ticker.Stop()

	locked := false
	for {
		if locked && time.Now().After(deadline) {
			logger.Info("locked", slog.String("sensor", name))
			return nil
		}

		if !locked {
			if locked, err = sr.Sensor(ctx, name); err != nil {
				return fmt.Errorf("reading sensor %s: %w", name, err)
			}
			if !locked && time.Now().After(deadline) {
				return fmt.Errorf("%w: %s", ErrLockTimeout, name)
			}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
