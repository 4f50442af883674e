package sdr

import (
	"context"
	"errors"
	"time"

	"github.com/roman-kulish/rfnoc-capture/internal/iq"
)

const (
	// StreamModeNumSamplesAndDone streams NumSamples samples and ends the burst
	StreamModeNumSamplesAndDone StreamMode = iota
	// StreamModeStartContinuous streams until a StreamModeStopContinuous command
	StreamModeStartContinuous
	// StreamModeStopContinuous stops a continuous stream
	StreamModeStopContinuous
)

const (
	StatusOK ChunkStatus = iota
	StatusOverflow
	StatusTimeout
	StatusFatal
)

var (
	// ErrNotStreaming is returned when a stop is issued without an active stream
	ErrNotStreaming = errors.New("not streaming")

	// ErrInvalidCommand is returned for commands a source cannot execute
	ErrInvalidCommand = errors.New("invalid stream command")
)

type StreamMode int

func (m StreamMode) String() string {
	switch m {
	case StreamModeNumSamplesAndDone:
		return "num_samps_and_done"
	case StreamModeStartContinuous:
		return "start_continuous"
	case StreamModeStopContinuous:
		return "stop_continuous"
	default:
		return "unknown"
	}
}

// StreamCommand asks a source to deliver samples. When StreamNow is false
// acquisition begins at StartTime on the device clock.
type StreamCommand struct {
	Mode       StreamMode
	NumSamples uint64
	StreamNow  bool
	StartTime  time.Time
}

// ChunkStatus classifies the outcome of one fetch
type ChunkStatus int

func (s ChunkStatus) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusOverflow:
		return "overflow"
	case StatusTimeout:
		return "timeout"
	case StatusFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Chunk describes what a fetch put into the buffer. Count samples per channel
// are valid for OK and Overflow chunks; Timeout and Fatal chunks carry none.
// Content past Count is whatever the previous fetch left there.
type Chunk struct {
	Status     ChunkStatus
	Count      int
	Time       time.Time // device time of the first sample, zero if unknown
	EndOfBurst bool
	Err        error
}

// Source is a hardware sample stream
type Source interface {
	// Channels returns the number of channels delivered per fetch
	Channels() int

	// HostFormat returns the in-memory format Fetch fills buffers with (sc16 or fc32)
	HostFormat() iq.Format

	// Now returns the current device time used for scheduled starts
	Now() time.Time

	// IssueCommand starts or stops acquisition. It does not wait for the first sample.
	IssueCommand(ctx context.Context, cmd StreamCommand) error

	// Fetch blocks for up to timeout and fills at most buf.Capacity() samples per channel.
	Fetch(ctx context.Context, buf *iq.Buffer, timeout time.Duration) Chunk
}
