package storage

import (
	"context"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store provides an interface for the capture ledger. It records receiver runs
// as sessions and the outcome of every measurement taken in them, so captured
// files can be traced back to the run that produced them.
// All operations that write to the database should be considered atomic.
type Store interface {
	// CreateSession records the start of a receiver run and returns its unique identifier.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - runID: Run identifier, also written to the capture metadata files
	//   - deviceType: Type of the SDR device (e.g., "sim", "uhd", "hackrf")
	//   - deviceID: Unique identifier of the device (e.g., serial number)
	//   - config: Optional run configuration. Can be string, []byte, or JSON-serializable object
	//
	// Returns:
	//   - sessionID: Unique identifier for the created session
	//   - error: If session creation fails, the run ID is taken or context is cancelled
	CreateSession(ctx context.Context, runID, deviceType, deviceID string, config any) (sessionID int64, err error)

	// FinishSession marks the session as finished.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - sessionID: ID of the session to finish
	//   - endTime: Time the run finished
	//   - cancelled: Whether the run was cancelled before all measurements were taken
	//
	// Returns:
	//   - error: If the session does not exist, update fails or context is cancelled
	FinishSession(ctx context.Context, sessionID int64, endTime time.Time, cancelled bool) error

	// Session retrieves a specific session by its ID.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - id: Unique session identifier
	//
	// Returns:
	//   - session: Pointer to session data
	//   - error: ErrNotFound if there is no such session, or if retrieval fails
	Session(ctx context.Context, id int64) (session *Session, err error)

	// Sessions returns all sessions stored in the database.
	// Results are ordered by start time in ascending order.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//
	// Returns:
	//   - sessions: Slice of pointers to session data
	//   - error: If retrieval fails or context is cancelled
	Sessions(ctx context.Context) (sessions []*Session, err error)

	// StoreMeasurement saves the outcome of one measurement of a session.
	// A measurement index can be stored only once per session.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - sessionID: ID of the session this measurement belongs to
	//   - m: Measurement record
	//
	// Returns:
	//   - measurementID: Unique identifier for the stored measurement record
	//   - error: If storage fails or context is cancelled
	StoreMeasurement(ctx context.Context, sessionID int64, m *Measurement) (measurementID int64, err error)

	// Close releases all database connections and resources.
	// After Close is called, the store instance cannot be reused.
	// It is safe to call Close multiple times.
	//
	// Returns:
	//   - error: If closing fails or some resources cannot be released
	Close() error
}
