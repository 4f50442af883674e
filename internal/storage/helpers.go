package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && cErr != sql.ErrTxDone && *err == nil {
		*err = cErr
	}
}

// toNullString stores strings as is and anything else as JSON
func toNullString(v any) (sql.NullString, error) {
	switch v := v.(type) {
	case nil:
		return sql.NullString{}, nil
	case string:
		return sql.NullString{String: v, Valid: true}, nil
	case []byte:
		return sql.NullString{String: string(v), Valid: true}, nil
	default:
		p, err := json.Marshal(v)
		if err != nil {
			return sql.NullString{}, err
		}
		return sql.NullString{String: string(p), Valid: true}, nil
	}
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func toMeasurementData(sessionID int64, m *Measurement) (*measurementData, error) {
	files, err := toNullString(m.Files)
	if err != nil {
		return nil, fmt.Errorf("marshaling files: %w", err)
	}
	chunkSizes, err := toNullString(m.ChunkSizes)
	if err != nil {
		return nil, fmt.Errorf("marshaling chunk sizes: %w", err)
	}

	var errMsg sql.NullString
	if m.Error != nil {
		errMsg = sql.NullString{String: *m.Error, Valid: true}
	}

	return &measurementData{
		SessionID:     sessionID,
		Index:         m.Index,
		ScheduledAt:   toNullTime(m.ScheduledAt),
		StartedAt:     m.StartedAt.UTC(),
		FinishedAt:    m.FinishedAt.UTC(),
		Requested:     int64(m.Requested),
		Accepted:      int64(m.Accepted),
		Fetches:       m.Fetches,
		Overflows:     m.Overflows,
		ClippedChunks: m.ClippedChunks,
		MaxI:          m.MaxI,
		MaxQ:          m.MaxQ,
		Bytes:         m.Bytes,
		Status:        m.Status,
		Error:         errMsg,
		Files:         files,
		ChunkSizes:    chunkSizes,
	}, nil
}

func fromMeasurementData(d *measurementData) (*Measurement, error) {
	m := Measurement{
		ID:            d.ID,
		SessionID:     d.SessionID,
		Index:         d.Index,
		StartedAt:     d.StartedAt,
		FinishedAt:    d.FinishedAt,
		Requested:     uint64(d.Requested),
		Accepted:      uint64(d.Accepted),
		Fetches:       d.Fetches,
		Overflows:     d.Overflows,
		ClippedChunks: d.ClippedChunks,
		MaxI:          d.MaxI,
		MaxQ:          d.MaxQ,
		Bytes:         d.Bytes,
		Status:        d.Status,
	}
	if d.ScheduledAt.Valid {
		m.ScheduledAt = &d.ScheduledAt.Time
	}
	if d.Error.Valid {
		m.Error = &d.Error.String
	}
	if d.Files.Valid {
		if err := json.Unmarshal([]byte(d.Files.String), &m.Files); err != nil {
			return nil, fmt.Errorf("unmarshaling files: %w", err)
		}
	}
	if d.ChunkSizes.Valid {
		if err := json.Unmarshal([]byte(d.ChunkSizes.String), &m.ChunkSizes); err != nil {
			return nil, fmt.Errorf("unmarshaling chunk sizes: %w", err)
		}
	}
	return &m, nil
}

func fromSessionData(d *sessionData) *Session {
	s := Session{
		ID:           d.ID,
		RunID:        d.RunID,
		StartTime:    d.StartTime,
		DeviceType:   d.DeviceType,
		DeviceID:     d.DeviceID,
		Cancelled:    d.Cancelled,
		Measurements: d.Measurements,
	}
	if d.EndTime.Valid {
		s.EndTime = &d.EndTime.Time
	}
	if d.Config.Valid {
		s.Config = &d.Config.String
	}
	return &s
}
