package receiver

import (
	"errors"
	"fmt"
)

const (
	FetchTimeout FetchKind = iota
	FetchOverflow
	FetchFatal
)

// ErrSinkWrite marks a failed write to an output sink, which aborts the run
var ErrSinkWrite = errors.New("sink write failed")

// ConfigurationError is an invalid receiver configuration, reported before any hardware interaction
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

func configErrorf(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// SinkOpenError is a failure to open an output sink
type SinkOpenError struct {
	Measurement int // -1 for the run sink
	Err         error
}

func (e *SinkOpenError) Error() string {
	if e.Measurement < 0 {
		return fmt.Sprintf("opening run sink: %v", e.Err)
	}
	return fmt.Sprintf("opening sink for measurement %d: %v", e.Measurement+1, e.Err)
}

func (e *SinkOpenError) Unwrap() error {
	return e.Err
}

// FetchKind classifies a fetch error
type FetchKind int

func (k FetchKind) String() string {
	switch k {
	case FetchTimeout:
		return "timeout"
	case FetchOverflow:
		return "overflow"
	case FetchFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// FetchError is an abnormal fetch outcome. It is contained in the measurement it occurred in.
type FetchError struct {
	Kind        FetchKind
	Measurement int
	Accepted    uint64
	Requested   uint64
	Err         error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("measurement %d: %s after %d/%d samples", e.Measurement+1, e.Kind, e.Accepted, e.Requested)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ShortfallWarning reports a measurement that ended with fewer samples than requested
type ShortfallWarning struct {
	Measurement int
	Accepted    uint64
	Requested   uint64
}

func (w *ShortfallWarning) Error() string {
	return fmt.Sprintf("measurement %d: received %d of %d samples, %d missing",
		w.Measurement+1, w.Accepted, w.Requested, w.Requested-w.Accepted)
}
