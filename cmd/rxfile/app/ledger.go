package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roman-kulish/rfnoc-capture/internal/datapath"
	"github.com/roman-kulish/rfnoc-capture/internal/receiver"
	"github.com/roman-kulish/rfnoc-capture/internal/sink"
	"github.com/roman-kulish/rfnoc-capture/internal/storage"
)

const maxPending = 64

// runSettings is the configuration recorded with a session
type runSettings struct {
	Device      any               `json:"device"`
	Datapath    DatapathConfig    `json:"datapath"`
	Sync        *SyncConfig       `json:"sync,omitempty"`
	Measurement MeasurementConfig `json:"measurement"`
	Output      sink.Config       `json:"output"`
}

func newRunSettings(config *Config) runSettings {
	s := runSettings{
		Device:      config.Device.Settings(),
		Datapath:    config.Datapath,
		Measurement: config.Measurement,
		Output:      config.SinkConfig(),
	}
	if config.Datapath.Mode == datapath.ModeSchmidlCox {
		s.Sync = &config.Sync
	}
	return s
}

// Ledger is a receiver.Observer recording the run as a storage session.
// Measurements are stored from a separate goroutine. When maxPending records
// are already waiting, further records are dropped and logged rather than
// stalling the receive loop.
type Ledger struct {
	receiver.BaseObserver

	store     storage.Store
	sessionID int64

	records    chan *storage.Measurement
	dropped    atomic.Int64
	wg         sync.WaitGroup
	finishOnce sync.Once

	logger *slog.Logger
}

// NewLedger creates the session of runID and starts the writer goroutine
func NewLedger(ctx context.Context, store storage.Store, runID, deviceType, deviceID string, config any, logger *slog.Logger) (*Ledger, error) {
	sessionID, err := store.CreateSession(ctx, runID, deviceType, deviceID, config)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	l := Ledger{
		store:     store,
		sessionID: sessionID,
		records:   make(chan *storage.Measurement, maxPending),
		logger:    logger.With(slog.Int64("sessionID", sessionID)),
	}

	l.wg.Add(1)
	go l.handleMeasurements(context.WithoutCancel(ctx))

	return &l, nil
}

func (l *Ledger) SessionID() int64 {
	return l.sessionID
}

// Dropped returns the number of measurement records that were not stored
func (l *Ledger) Dropped() int64 {
	return l.dropped.Load()
}

func (l *Ledger) OnMeasurementEnd(_ context.Context, m *receiver.MeasurementResult) {
	select {
	case l.records <- toMeasurement(m):
	default:
		l.dropped.Add(1)
		l.logger.Error("ledger backlog full, measurement not recorded",
			slog.Int("measurement", m.Index),
			slog.Int("pending", maxPending),
		)
	}
}

// OnRunEnd waits for pending measurements and closes the session
func (l *Ledger) OnRunEnd(ctx context.Context, r *receiver.RunResult) {
	l.finish(ctx, r.FinishedAt, r.Cancelled)
}

// Close finishes the session if the run ended before reporting its result
func (l *Ledger) Close(ctx context.Context) {
	l.finish(ctx, time.Now(), ctx.Err() != nil)
}

func (l *Ledger) finish(ctx context.Context, endTime time.Time, cancelled bool) {
	l.finishOnce.Do(func() {
		close(l.records)
		l.wg.Wait()

		if err := l.store.FinishSession(context.WithoutCancel(ctx), l.sessionID, endTime, cancelled); err != nil {
			l.logger.Error(fmt.Sprintf("finishing session: %s", err.Error()))
		}
	})
}

func (l *Ledger) handleMeasurements(ctx context.Context) {
	defer l.wg.Done()

	for m := range l.records {
		if _, err := l.store.StoreMeasurement(ctx, l.sessionID, m); err != nil {
			l.logger.Error(fmt.Sprintf("storing measurement: %s", err.Error()), slog.Int("measurement", m.Index))
		}
	}
}

func toMeasurement(m *receiver.MeasurementResult) *storage.Measurement {
	rec := storage.Measurement{
		Index:         m.Index,
		StartedAt:     m.StartedAt,
		FinishedAt:    m.FinishedAt,
		Requested:     m.Requested,
		Accepted:      m.Accepted,
		Fetches:       m.Fetches,
		Overflows:     m.Overflows,
		ClippedChunks: m.ClippedChunks,
		MaxI:          m.MaxI,
		MaxQ:          m.MaxQ,
		Bytes:         m.Bytes,
		Status:        string(m.Status),
		Files:         m.Files,
		ChunkSizes:    m.ChunkSizes,
	}

	if !m.ScheduledAt.IsZero() {
		scheduled := m.ScheduledAt
		rec.ScheduledAt = &scheduled
	}
	if m.Err != nil {
		msg := m.Err.Error()
		rec.Error = &msg
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = rec.StartedAt
	}

	return &rec
}
