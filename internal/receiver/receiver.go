// Package receiver runs a series of bounded (or timed continuous)
// measurements against a sample source and writes the accepted samples to
// output sinks.
package receiver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/roman-kulish/rfnoc-capture/internal/iq"
	"github.com/roman-kulish/rfnoc-capture/internal/sdr"
	"github.com/roman-kulish/rfnoc-capture/internal/sink"
)

// maxDrainFetches bounds the fetches issued after stopping a continuous stream
const maxDrainFetches = 1000

// WithLogger sets the logger for the receiver
func WithLogger(logger *slog.Logger) func(r *Receiver) {
	return func(r *Receiver) {
		r.logger = logger
	}
}

// WithObserver adds an observer notified of run progress
func WithObserver(o Observer) func(r *Receiver) {
	return func(r *Receiver) {
		r.observers = append(r.observers, o)
	}
}

// WithSleeper replaces the host idle between measurements
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) func(r *Receiver) {
	return func(r *Receiver) {
		r.sleep = sleep
	}
}

// WithRunID sets the run ID instead of generating one
func WithRunID(id string) func(r *Receiver) {
	return func(r *Receiver) {
		r.runID = id
	}
}

// Receiver is the bounded streaming receiver. It is not safe for concurrent
// use; Run streams from the calling goroutine.
type Receiver struct {
	config    Config
	source    sdr.Source
	sinks     sink.Opener
	clip      *iq.ClipMonitor // nil when disabled
	observers observers
	sleep     func(ctx context.Context, d time.Duration) error
	runID     string
	logger    *slog.Logger
}

// New validates the configuration against the source. Nothing is sent to the
// hardware until Run.
func New(config Config, source sdr.Source, sinks sink.Opener, options ...func(r *Receiver)) (*Receiver, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if n := source.Channels(); n < config.Channels {
		return nil, configErrorf("channels", "source delivers %d channels, %d requested", n, config.Channels)
	}
	if f := source.HostFormat(); f != config.Format.Host() {
		return nil, configErrorf("format", "%s output needs %s samples, source delivers %s", config.Format, config.Format.Host(), f)
	}

	r := Receiver{
		config: config,
		source: source,
		sinks:  sinks,
		sleep:  sleep,
		runID:  uuid.NewString(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	// int32 carries packed metric words, not samples
	if config.ClipThreshold >= 0 && config.Format != iq.FormatInt32 {
		r.clip = iq.NewClipMonitor(config.ClipThreshold)
	}

	for _, option := range options {
		option(&r)
	}

	return &r, nil
}

// Run executes all measurements. Fetch failures are recorded in the
// measurement results; only configuration, sink open and sink write failures
// are returned as errors. Cancelling ctx stops the run between measurements
// and stops continuous measurements.
func (r *Receiver) Run(ctx context.Context) (*RunResult, error) {
	result := &RunResult{RunID: r.runID, StartedAt: time.Now()}

	buf, err := iq.NewBuffer(r.config.Format.Host(), r.config.Channels, r.config.ChunkSize)
	if err != nil {
		return result, configErrorf("chunkSize", "%v", err)
	}
	enc, err := iq.NewEncoder(r.config.Format, r.config.ChunkSize)
	if err != nil {
		return result, configErrorf("format", "%v", err)
	}

	var runSink sink.Sink
	if checker, ok := r.sinks.(sink.Checker); ok && r.sinks.Scope() == sink.ScopeMeasurement {
		for k := 0; k < r.config.Measurements; k++ {
			if err = checker.Check(sink.Target{RunID: result.RunID, Measurement: k, Channels: r.config.Channels}); err != nil {
				return result, &SinkOpenError{Measurement: k, Err: err}
			}
		}
	}

	if r.sinks.Scope() == sink.ScopeRun {
		runSink, err = r.sinks.Open(sink.Target{RunID: result.RunID, Measurement: sink.RunMeasurement, Channels: r.config.Channels})
		if err != nil {
			return result, &SinkOpenError{Measurement: sink.RunMeasurement, Err: err}
		}
		result.Files = runSink.Files()
	}

	r.logger.Info("run started",
		slog.String("runID", result.RunID),
		slog.Int("measurements", r.config.Measurements),
		slog.Uint64("samples", r.config.Samples),
		slog.String("format", r.config.Format.String()),
		slog.Int("channels", r.config.Channels),
		slog.Bool("timed", r.config.Timed),
	)
	r.observers.runStart(ctx, RunInfo{RunID: result.RunID, Config: r.config, StartedAt: result.StartedAt})

	err = r.measurements(ctx, result, runSink, buf, enc)

	if runSink != nil {
		if cerr := runSink.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("%w: closing run sink: %w", ErrSinkWrite, cerr))
		}
	}

	result.FinishedAt = time.Now()
	r.observers.runEnd(ctx, result)

	r.logger.Info("run finished",
		slog.String("runID", result.RunID),
		slog.Int("measurements", len(result.Measurements)),
		slog.Int("failed", result.Failed()),
		slog.Uint64("accepted", result.Accepted()),
		slog.String("written", humanize.Bytes(uint64(result.Bytes()))),
		slog.Duration("elapsed", result.FinishedAt.Sub(result.StartedAt)),
		slog.Bool("cancelled", result.Cancelled),
	)

	return result, err
}

func (r *Receiver) measurements(ctx context.Context, result *RunResult, runSink sink.Sink, buf *iq.Buffer, enc *iq.Encoder) error {
	sched := schedule{
		timed:   r.config.Timed,
		delay:   r.config.Delay,
		startAt: r.config.StartAt,
		now:     r.source.Now,
	}

	for k := 0; k < r.config.Measurements; k++ {
		if k > 0 && !r.config.Timed && r.config.Delay > 0 {
			if err := r.sleep(ctx, r.config.Delay); err != nil {
				r.cancelled(result, k)
				return nil
			}
		}
		if ctx.Err() != nil {
			r.cancelled(result, k)
			return nil
		}

		out := runSink
		if out == nil {
			s, err := r.sinks.Open(sink.Target{RunID: result.RunID, Measurement: k, Channels: r.config.Channels})
			if err != nil {
				return &SinkOpenError{Measurement: k, Err: err}
			}
			out = s
		}

		m, err := r.measure(ctx, k, sched.next(), out, buf, enc)

		out.Annotate(sink.Measurement{
			Index:     m.Index,
			StartTime: m.FirstSampleAt,
			Requested: m.Requested,
			Accepted:  m.Accepted,
			Bytes:     m.Bytes,
			Status:    string(m.Status),
		})

		m.Files = out.Files()
		if runSink == nil {
			if cerr := out.Close(); cerr != nil {
				err = errors.Join(err, fmt.Errorf("%w: closing sink: %w", ErrSinkWrite, cerr))
			}
		}

		result.Measurements = append(result.Measurements, m)
		r.observers.measurementEnd(ctx, m)

		if err != nil {
			return err
		}
	}

	return nil
}

func (r *Receiver) cancelled(result *RunResult, completed int) {
	result.Cancelled = true
	r.logger.Warn("run cancelled",
		slog.Int("completed", completed),
		slog.Int("measurements", r.config.Measurements),
	)
}

// measure runs one measurement. The returned error is a sink write failure;
// fetch failures end up in the result.
func (r *Receiver) measure(ctx context.Context, index int, start time.Time, out sink.Sink, buf *iq.Buffer, enc *iq.Encoder) (*MeasurementResult, error) {
	continuous := r.config.Continuous()
	logger := r.logger.With(
		slog.Int("measurement", index+1),
		slog.Int("of", r.config.Measurements),
	)

	m := &MeasurementResult{
		Index:       index,
		ScheduledAt: start,
		Requested:   r.config.Samples,
		ChunkSizes:  make(map[int]int),
		Status:      StatusComplete,
		StartedAt:   time.Now(),
	}
	r.observers.measurementStart(ctx, MeasurementInfo{Index: index, ScheduledAt: start, Requested: m.Requested})

	cmd := sdr.StreamCommand{
		Mode:       sdr.StreamModeNumSamplesAndDone,
		NumSamples: r.config.Samples,
		StreamNow:  start.IsZero(),
		StartTime:  start,
	}
	if continuous {
		cmd.Mode = sdr.StreamModeStartContinuous
	}

	var lead time.Duration
	if !start.IsZero() {
		if lead = start.Sub(r.source.Now()); lead < 0 {
			logger.Warn("scheduled start already passed", slog.Duration("late", -lead))
			lead = 0
		}
	}

	logger.Info("issuing stream command",
		slog.String("mode", cmd.Mode.String()),
		slog.Uint64("samples", cmd.NumSamples),
		slog.Duration("lead", lead),
	)
	if err := r.source.IssueCommand(ctx, cmd); err != nil {
		m.Status = StatusFatal
		m.Err = &FetchError{Kind: FetchFatal, Measurement: index, Requested: m.Requested, Err: err}
		logger.Error(m.Err.Error())
		return r.finish(logger, m), nil
	}

	var deadline time.Time
	if r.config.Duration > 0 {
		deadline = time.Now().Add(lead + r.config.Duration)
	}

	// bounded measurements always run to completion, only continuous
	// streams react to cancellation
	fetchCtx := context.WithoutCancel(ctx)
	if continuous {
		fetchCtx = ctx
	}

	timeout := r.config.FirstTimeout + lead
	endOfBurst := false

loop:
	for continuous || m.Accepted < m.Requested {
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			m.Status = StatusDeadline
			if continuous {
				m.Status = StatusStopped
			}
			break
		}
		if continuous && ctx.Err() != nil {
			m.Status = StatusStopped
			break
		}

		chunk := r.source.Fetch(fetchCtx, buf, timeout)
		m.Fetches++

		switch chunk.Status {
		case sdr.StatusFatal:
			r.observers.chunk(ctx, ChunkInfo{Measurement: index, Chunk: chunk})
			if continuous && ctx.Err() != nil {
				m.Status = StatusStopped
				break loop
			}
			m.Status = StatusFatal
			m.Err = &FetchError{Kind: FetchFatal, Measurement: index, Accepted: m.Accepted, Requested: m.Requested, Err: chunk.Err}
			logger.Error(m.Err.Error())
			endOfBurst = true
			break loop

		case sdr.StatusTimeout:
			r.observers.chunk(ctx, ChunkInfo{Measurement: index, Chunk: chunk})
			m.Status = StatusTimeout
			m.Err = &FetchError{Kind: FetchTimeout, Measurement: index, Accepted: m.Accepted, Requested: m.Requested}
			logger.Warn(m.Err.Error(), slog.Duration("timeout", timeout))
			break loop

		case sdr.StatusOverflow:
			m.Overflows++
			overflow := &FetchError{Kind: FetchOverflow, Measurement: index, Accepted: m.Accepted, Requested: m.Requested}
			logger.Warn(overflow.Error(), slog.Int("count", chunk.Count))
		}

		timeout = r.config.SubsequentTimeout

		n := chunk.Count
		if n > buf.Capacity() {
			logger.Warn("source reported more samples than the buffer holds",
				slog.Int("count", n),
				slog.Int("capacity", buf.Capacity()),
			)
			n = buf.Capacity()
		}
		if !continuous {
			n = int(min(uint64(n), m.Requested-m.Accepted))
		}

		if n > 0 {
			if m.FirstSampleAt.IsZero() {
				m.FirstSampleAt = chunk.Time
			}
			m.ChunkSizes[chunk.Count]++
			r.checkClipping(logger, m, buf, n)

			if err := r.write(out, enc, buf, n, m); err != nil {
				m.Status = StatusFatal
				m.Err = err
				logger.Error(err.Error())
				if continuous {
					r.stop(ctx, logger, buf)
				}
				return r.finish(logger, m), err
			}
			m.Accepted += uint64(n)
		}

		r.observers.chunk(ctx, ChunkInfo{Measurement: index, Chunk: chunk, Accepted: n})

		if chunk.EndOfBurst {
			endOfBurst = true
			break
		}
	}

	if continuous && !endOfBurst {
		r.stop(ctx, logger, buf)
	}

	if !continuous && m.Accepted < m.Requested {
		if m.Status == StatusComplete {
			m.Status = StatusShortfall
		}
		w := &ShortfallWarning{Measurement: index, Accepted: m.Accepted, Requested: m.Requested}
		logger.Warn(w.Error())
	}

	return r.finish(logger, m), nil
}

// stop ends a continuous stream and discards what the device still had in flight
func (r *Receiver) stop(ctx context.Context, logger *slog.Logger, buf *iq.Buffer) {
	ctx = context.WithoutCancel(ctx)

	if err := r.source.IssueCommand(ctx, sdr.StreamCommand{Mode: sdr.StreamModeStopContinuous}); err != nil {
		if !errors.Is(err, sdr.ErrNotStreaming) {
			logger.Warn("failed to stop stream", slog.String("error", err.Error()))
		}
		return
	}

	var drained int
	for i := 0; i < maxDrainFetches; i++ {
		chunk := r.source.Fetch(ctx, buf, r.config.SubsequentTimeout)
		drained += chunk.Count
		if chunk.EndOfBurst || chunk.Status == sdr.StatusTimeout || chunk.Status == sdr.StatusFatal {
			break
		}
	}
	logger.Debug("stream stopped", slog.Int("drained", drained))
}

// checkClipping is advisory, the samples are written unchanged
func (r *Receiver) checkClipping(logger *slog.Logger, m *MeasurementResult, buf *iq.Buffer, n int) {
	if r.clip == nil {
		return
	}

	clipped := false
	for ch := 0; ch < r.config.Channels; ch++ {
		rep := r.clip.Check(buf, ch, n)
		m.MaxI = max(m.MaxI, rep.MaxI)
		m.MaxQ = max(m.MaxQ, rep.MaxQ)

		if rep.Clipped {
			clipped = true
			if m.ClippedChunks == 0 {
				logger.Warn("clipping detected, reduce the gain or attenuate the input",
					slog.Int("channel", ch),
					slog.String("maxI", fmt.Sprintf("%.3f", rep.MaxI)),
					slog.String("maxQ", fmt.Sprintf("%.3f", rep.MaxQ)),
				)
			}
		}
	}
	if clipped {
		m.ClippedChunks++
	}
}

// write encodes n samples of every channel, one block per channel
func (r *Receiver) write(out sink.Sink, enc *iq.Encoder, buf *iq.Buffer, n int, m *MeasurementResult) error {
	for ch := 0; ch < r.config.Channels; ch++ {
		written, err := enc.Encode(out.Writer(ch), buf, ch, n)
		m.Bytes += int64(written)
		if err != nil {
			return fmt.Errorf("%w: measurement %d channel %d: %w", ErrSinkWrite, m.Index+1, ch, err)
		}
	}
	return nil
}

func (r *Receiver) finish(logger *slog.Logger, m *MeasurementResult) *MeasurementResult {
	m.FinishedAt = time.Now()

	logger.Info("measurement finished",
		slog.String("status", string(m.Status)),
		slog.Uint64("accepted", m.Accepted),
		slog.Uint64("requested", m.Requested),
		slog.Int("overflows", m.Overflows),
		slog.Int("clippedChunks", m.ClippedChunks),
		slog.String("written", humanize.Bytes(uint64(m.Bytes))),
		slog.String("rate", humanize.SIWithDigits(m.Rate(), 2, "S/s")),
		slog.String("chunks", formatChunkSizes(m.ChunkSizes)),
	)
	return m
}

// formatChunkSizes renders a chunk size map as "2304x2 2204x1"
func formatChunkSizes(sizes map[int]int) string {
	parts := make([]string, 0, len(sizes))
	for _, size := range slices.Sorted(maps.Keys(sizes)) {
		parts = append(parts, fmt.Sprintf("%dx%d", size, sizes[size]))
	}
	return strings.Join(parts, " ")
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
