package receiver

import (
	"time"

	"github.com/roman-kulish/rfnoc-capture/internal/sdr"
)

const (
	StatusComplete  Status = "complete"
	StatusShortfall Status = "shortfall" // the source ended the burst early
	StatusTimeout   Status = "timeout"
	StatusFatal     Status = "fatal"
	StatusDeadline  Status = "deadline"
	StatusStopped   Status = "stopped" // continuous stream stopped by duration or cancellation
)

// Status is the outcome of a measurement
type Status string

// MeasurementResult is the record of one measurement
type MeasurementResult struct {
	Index         int
	ScheduledAt   time.Time // device time, zero when started immediately
	FirstSampleAt time.Time // device time of the first accepted sample, zero if unknown
	Requested     uint64    // zero for continuous measurements
	Accepted      uint64
	Fetches       int
	Overflows     int
	ClippedChunks int
	MaxI          float64
	MaxQ          float64
	ChunkSizes    map[int]int // chunk size -> number of chunks
	Bytes         int64
	Files         []string
	Status        Status
	Err           error
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Shortfall returns the number of samples missing from a bounded measurement
func (m *MeasurementResult) Shortfall() uint64 {
	if m.Requested <= m.Accepted {
		return 0
	}
	return m.Requested - m.Accepted
}

// Duration is the host time spent in the measurement
func (m *MeasurementResult) Duration() time.Duration {
	return m.FinishedAt.Sub(m.StartedAt)
}

// Rate is the accepted samples per second of host time
func (m *MeasurementResult) Rate() float64 {
	d := m.Duration().Seconds()
	if d <= 0 {
		return 0
	}
	return float64(m.Accepted) / d
}

// RunResult is the record of a run
type RunResult struct {
	RunID        string
	StartedAt    time.Time
	FinishedAt   time.Time
	Measurements []*MeasurementResult
	Files        []string // run scoped sink files
	Cancelled    bool
}

func (r *RunResult) Accepted() uint64 {
	var n uint64
	for _, m := range r.Measurements {
		n += m.Accepted
	}
	return n
}

func (r *RunResult) Bytes() int64 {
	var n int64
	for _, m := range r.Measurements {
		n += m.Bytes
	}
	return n
}

// Failed returns the number of measurements that did not complete
func (r *RunResult) Failed() int {
	var n int
	for _, m := range r.Measurements {
		if m.Status != StatusComplete && m.Status != StatusStopped {
			n++
		}
	}
	return n
}

// RunInfo describes a starting run
type RunInfo struct {
	RunID     string
	Config    Config
	StartedAt time.Time
}

// MeasurementInfo describes a starting measurement
type MeasurementInfo struct {
	Index       int
	ScheduledAt time.Time
	Requested   uint64
}

// ChunkInfo describes one fetch of a measurement
type ChunkInfo struct {
	Measurement int
	Chunk       sdr.Chunk
	Accepted    int // samples kept from the chunk
}
