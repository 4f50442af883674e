package storage

import (
	_ "embed"
)

const (
	insertSessionSQL = `
INSERT INTO sessions (
                      run_id,
                      start_time, 
                      device_type, 
                      device_id, 
                      config) 
VALUES (?, ?, ?, ?, ?)`

	finishSessionSQL = `
UPDATE sessions 
SET 
    end_time = ?, 
    cancelled = ? 
WHERE 
    id = ?`

	selectSessionsSQL = `
SELECT 
    s.id, 
    s.run_id,
    s.start_time, 
    s.end_time,
    s.device_type, 
    s.device_id, 
    s.config,
    s.cancelled,
    (SELECT COUNT(*) FROM measurements m WHERE m.session_id = s.id)
FROM sessions s`

	selectSessionSQL = selectSessionsSQL + `
WHERE 
    s.id = ?`

	orderSessionsSQL = `
ORDER BY s.start_time, s.id`

	insertMeasurementSQL = `
INSERT INTO measurements (session_id,
                          idx,
                          scheduled_at,
                          started_at,
                          finished_at,
                          requested,
                          accepted,
                          fetches,
                          overflows,
                          clipped_chunks,
                          max_i,
                          max_q,
                          bytes,
                          status,
                          error,
                          files,
                          chunk_sizes)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectMeasurementsSQL = `
SELECT 
    id,
    session_id,
    idx,
    scheduled_at,
    started_at,
    finished_at,
    requested,
    accepted,
    fetches,
    overflows,
    clipped_chunks,
    max_i,
    max_q,
    bytes,
    status,
    error,
    files,
    chunk_sizes
FROM measurements
WHERE 
    session_id = ?
    AND idx BETWEEN ? AND ?`
)

var (
	//go:embed schema.sql
	initSchemaSQL string

	//go:embed indexes.sql
	initIndexesSQL string
)
