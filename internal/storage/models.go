package storage

import (
	"database/sql"
	"time"
)

// Session is a receiver run
type Session struct {
	ID           int64      `json:"id"`
	RunID        string     `json:"runId"`
	StartTime    time.Time  `json:"startTime"`
	EndTime      *time.Time `json:"endTime,omitempty"`
	DeviceType   string     `json:"deviceType"`
	DeviceID     string     `json:"deviceId"`
	Config       *string    `json:"config,omitempty"`
	Cancelled    bool       `json:"cancelled"`
	Measurements int        `json:"measurements"`
}

// Measurement is the ledger record of one measurement
type Measurement struct {
	ID            int64       `json:"id"`
	SessionID     int64       `json:"sessionId"`
	Index         int         `json:"index"`
	ScheduledAt   *time.Time  `json:"scheduledAt,omitempty"`
	StartedAt     time.Time   `json:"startedAt"`
	FinishedAt    time.Time   `json:"finishedAt"`
	Requested     uint64      `json:"requested"`
	Accepted      uint64      `json:"accepted"`
	Fetches       int         `json:"fetches"`
	Overflows     int         `json:"overflows"`
	ClippedChunks int         `json:"clippedChunks"`
	MaxI          float64     `json:"maxI"`
	MaxQ          float64     `json:"maxQ"`
	Bytes         int64       `json:"bytes"`
	Status        string      `json:"status"`
	Error         *string     `json:"error,omitempty"`
	Files         []string    `json:"files"`
	ChunkSizes    map[int]int `json:"chunkSizes"`
}

type sessionData struct {
	ID           int64
	RunID        string
	StartTime    time.Time
	EndTime      sql.NullTime
	DeviceType   string
	DeviceID     string
	Config       sql.NullString
	Cancelled    bool
	Measurements int
}

type measurementData struct {
	ID            int64
	SessionID     int64
	Index         int
	ScheduledAt   sql.NullTime
	StartedAt     time.Time
	FinishedAt    time.Time
	Requested     int64
	Accepted      int64
	Fetches       int
	Overflows     int
	ClippedChunks int
	MaxI          float64
	MaxQ          float64
	Bytes         int64
	Status        string
	Error         sql.NullString
	Files         sql.NullString
	ChunkSizes    sql.NullString
}
