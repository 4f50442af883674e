package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrNoData indicates either that no measurements exist for the given parameters,
// or that all available measurements have been read from the reader.
var ErrNoData = fmt.Errorf("no data available")

// MeasurementReader provides an iterator-based interface for reading the
// measurements of a session with optional index and status filtering.
type MeasurementReader interface {
	// Session returns the session this reader is accessing.
	Session() *Session

	// Next advances the iterator and returns true if there is another measurement
	// to read, false when the iteration is complete or if an error occurred.
	Next(context.Context) bool

	// Current returns the current measurement in the iteration.
	// If called after Next() returns false, the behavior is undefined.
	Current() *Measurement

	// Error returns any error that occurred during iteration.
	// If Next() returns false, Error() should be checked to distinguish between
	// end of data and an error condition.
	Error() error

	// Close releases any resources associated with the reader.
	// After Close is called, the reader should not be used.
	Close() error
}

// ReaderOption configures a MeasurementReader with specific filtering criteria.
type ReaderOption func(*SqliteMeasurementReader)

// WithIndexRange limits the reader to measurements first..last inclusive.
func WithIndexRange(first, last int) ReaderOption {
	return func(r *SqliteMeasurementReader) {
		r.first = first
		r.last = last
	}
}

// WithStatus limits the reader to measurements with one of the given statuses.
func WithStatus(statuses ...string) ReaderOption {
	return func(r *SqliteMeasurementReader) {
		r.statuses = append(r.statuses, statuses...)
	}
}

// SqliteMeasurementReader implements MeasurementReader for SQLite database backend.
type SqliteMeasurementReader struct {
	db *sql.DB

	sessionID int64
	session   *Session

	first    int
	last     int
	statuses []string

	current *Measurement
	rows    *sql.Rows
	err     error
}

var _ MeasurementReader = (*SqliteMeasurementReader)(nil)

func newSqliteMeasurementReader(ctx context.Context, db *sql.DB, sessionID int64, opts ...ReaderOption) (*SqliteMeasurementReader, error) {
	mr := &SqliteMeasurementReader{
		db:        db,
		sessionID: sessionID,
		first:     0,
		last:      math.MaxInt32,
	}
	for _, opt := range opts {
		opt(mr)
	}
	if err := mr.init(ctx); err != nil {
		return nil, fmt.Errorf("initializing reader: %w", err)
	}
	return mr, nil
}

func (mr *SqliteMeasurementReader) init(ctx context.Context) error {
	if mr.db == nil {
		return errors.New("database connection required")
	}
	if mr.sessionID <= 0 {
		return errors.New("session ID required")
	}
	if mr.first > mr.last {
		return fmt.Errorf("invalid index range %d..%d", mr.first, mr.last)
	}

	steps := []struct {
		msg string
		fn  func(context.Context) error
	}{
		{msg: "loading session", fn: mr.loadSession},
		{msg: "initializing query", fn: mr.initQuery},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", s.msg, err)
		}
	}
	return nil
}

func (mr *SqliteMeasurementReader) loadSession(ctx context.Context) (err error) {
	stmt, err := mr.db.PrepareContext(ctx, selectSessionSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	mr.session, err = scanSession(stmt.QueryRowContext(ctx, mr.sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("session %d: %w", mr.sessionID, ErrNotFound)
	}
	return err
}

func (mr *SqliteMeasurementReader) initQuery(ctx context.Context) (err error) {
	query := selectMeasurementsSQL
	args := []any{mr.sessionID, mr.first, mr.last}

	if len(mr.statuses) > 0 {
		query += "\n    AND status IN (?" + strings.Repeat(", ?", len(mr.statuses)-1) + ")"
		for _, status := range mr.statuses {
			args = append(args, status)
		}
	}
	query += "\nORDER BY idx"

	mr.rows, err = mr.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("querying measurements: %w", err)
	}
	return nil
}

func (mr *SqliteMeasurementReader) scanMeasurement() (*Measurement, error) {
	var data measurementData
	err := mr.rows.Scan(
		&data.ID,
		&data.SessionID,
		&data.Index,
		&data.ScheduledAt,
		&data.StartedAt,
		&data.FinishedAt,
		&data.Requested,
		&data.Accepted,
		&data.Fetches,
		&data.Overflows,
		&data.ClippedChunks,
		&data.MaxI,
		&data.MaxQ,
		&data.Bytes,
		&data.Status,
		&data.Error,
		&data.Files,
		&data.ChunkSizes,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning measurement: %w", err)
	}
	return fromMeasurementData(&data)
}

func (mr *SqliteMeasurementReader) Session() *Session {
	return mr.session
}

func (mr *SqliteMeasurementReader) Next(ctx context.Context) bool {
	if mr.err != nil || mr.rows == nil {
		return false
	}

	select {
	case <-ctx.Done():
		mr.err = ctx.Err()
		return false
	default:
	}

	if !mr.rows.Next() {
		if err := mr.rows.Err(); err != nil {
			mr.err = fmt.Errorf("iterating measurements: %w", err)
			return false
		}
		mr.err = ErrNoData
		return false
	}

	mr.current, mr.err = mr.scanMeasurement()
	return mr.err == nil
}

func (mr *SqliteMeasurementReader) Current() *Measurement {
	return mr.current
}

// Error returns the iteration error, nil once all measurements have been read
func (mr *SqliteMeasurementReader) Error() error {
	if errors.Is(mr.err, ErrNoData) {
		return nil
	}
	return mr.err
}

func (mr *SqliteMeasurementReader) Close() error {
	if mr.rows == nil {
		return nil
	}
	err := mr.rows.Close()
	mr.rows = nil
	return err
}
