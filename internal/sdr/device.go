package sdr

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roman-kulish/rfnoc-capture/internal/iq"
)

const (
	// QueueSize is the default number of chunks buffered between the tool and the receiver
	QueueSize = 64
)

var (
	// ErrBrokenPipe is returned when there's an error reading from stdout or stderr
	ErrBrokenPipe = errors.New("broken pipe")
)

// Handler builds the external receiver tool invocation for a stream command.
// The tool must write raw samples in Wire() format to stdout.
type Handler interface {
	Cmd(ctx context.Context, cmd StreamCommand) (*exec.Cmd, error)
	Wire() iq.Wire
	Device() string
}

// WithLogger sets the logger for the device
func WithLogger(logger *slog.Logger) func(d *Device) {
	return func(d *Device) {
		d.logger = logger.With(
			slog.String("device", d.handler.Device()),
			slog.String("deviceID", d.deviceID),
		)
	}
}

// WithQueueSize sets the number of chunks buffered before the stream overflows
func WithQueueSize(size int) func(d *Device) {
	return func(d *Device) {
		if size > 0 {
			d.queueSize = size
		}
	}
}

// WithHostFormat sets the in-memory format delivered by Fetch, sc16 by default
func WithHostFormat(format iq.Format) func(d *Device) {
	return func(d *Device) {
		d.hostFormat = format
	}
}

type frame struct {
	data []byte
	at   time.Time
}

// stream is one run of the external tool
type stream struct {
	frames   chan frame
	finished chan struct{}
	err      error // valid once finished is closed
	overflow atomic.Bool
	cancel   context.CancelFunc
}

// Device is a Source backed by an external receiver tool. Every stream command
// starts the tool, and its stdout is framed into chunks of chunkSize samples.
// When the receiver falls behind and the queue is full, chunks are dropped and
// the next delivered chunk is flagged as an overflow.
type Device struct {
	deviceID   string
	handler    Handler
	hostFormat iq.Format
	chunkSize  int
	queueSize  int

	mu          sync.Mutex
	current     *stream
	pending     []byte
	pendingAt   time.Time
	isStreaming atomic.Bool

	logger *slog.Logger
}

// NewDevice creates a new Device instance with a discard logger
func NewDevice(deviceID string, h Handler, chunkSize int, options ...func(d *Device)) (*Device, error) {
	if err := h.Wire().Validate(); err != nil {
		return nil, err
	}
	if chunkSize <= 0 {
		return nil, fmt.Errorf("invalid chunk size: %d", chunkSize)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	d := Device{
		deviceID:   deviceID,
		handler:    h,
		hostFormat: iq.FormatSC16,
		chunkSize:  chunkSize,
		queueSize:  QueueSize,
		logger:     logger,
	}

	for _, option := range options {
		option(&d)
	}

	if d.hostFormat != iq.FormatSC16 && d.hostFormat != iq.FormatFC32 {
		return nil, fmt.Errorf("invalid host format '%s'", d.hostFormat)
	}

	return &d, nil
}

func (d *Device) DeviceID() string {
	return d.deviceID
}

func (d *Device) Device() string {
	return d.handler.Device()
}

func (d *Device) Channels() int {
	return 1
}

func (d *Device) HostFormat() iq.Format {
	return d.hostFormat
}

// Now returns the host clock, external tools expose no device time
func (d *Device) Now() time.Time {
	return time.Now()
}

// IsStreaming returns true while the external tool is running
func (d *Device) IsStreaming() bool {
	return d.isStreaming.Load()
}

// IssueCommand starts the external tool, once the start time is reached for
// scheduled commands, or stops the running one.
func (d *Device) IssueCommand(ctx context.Context, cmd StreamCommand) error {
	if cmd.Mode == StreamModeStopContinuous {
		if !d.isStreaming.Load() {
			return ErrNotStreaming
		}
		d.Stop()
		return nil
	}
	if cmd.Mode == StreamModeNumSamplesAndDone && cmd.NumSamples == 0 {
		return fmt.Errorf("%w: zero samples requested", ErrInvalidCommand)
	}

	if d.isStreaming.Load() {
		d.logger.Warn("previous stream still running, stopping it")
		d.Stop()
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	execCmd, err := d.handler.Cmd(ctx, cmd)
	if err != nil {
		cancel()
		return fmt.Errorf("building command: %w", err)
	}

	stdout, err := execCmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("error creating stdout pipe: %w", err)
	}

	stderr, err := execCmd.StderrPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("error creating stderr pipe: %w", err)
	}

	s := &stream{
		frames:   make(chan frame, d.queueSize),
		finished: make(chan struct{}),
		cancel:   cancel,
	}

	d.mu.Lock()
	d.current = s
	d.pending = nil
	d.mu.Unlock()

	d.isStreaming.Store(true)

	var delay time.Duration
	if !cmd.StreamNow && !cmd.StartTime.IsZero() {
		delay = time.Until(cmd.StartTime)
	}

	go d.run(ctx, s, execCmd, stdout, stderr, delay)

	return nil
}

// run starts the tool after delay and joins the pump goroutines
func (d *Device) run(ctx context.Context, s *stream, cmd *exec.Cmd, stdout, stderr io.Reader, delay time.Duration) {
	defer func() {
		d.isStreaming.Store(false)
		close(s.finished)
	}()

	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			s.err = ctx.Err()
			return
		}
	}

	if err := cmd.Start(); err != nil {
		s.err = fmt.Errorf("error starting command: %w", err)
		return
	}

	d.logger.Info("starting samples collection...")

	done := make(chan error, 2) // expects two results from the two pumps

	go d.handleStdout(stdout, s, done)
	go d.handleStderr(stderr, done)

	var errs []error
	for i := 0; i < cap(done); i++ {
		if err := <-done; err != nil {
			s.cancel() // cancel context on error
			d.logger.Error(err.Error())

			errs = append(errs, err)
		}
	}

	close(done)

	// pipes must be fully read before Wait closes them
	if err := d.waitCmd(ctx, cmd); err != nil {
		d.logger.Error(err.Error())
		errs = append(errs, err)
	}

	d.logger.Info("samples collection stopped")

	if len(errs) > 0 {
		s.err = errors.Join(errs...)
	}
}

// Stop terminates the running tool and waits for the pumps to exit
func (d *Device) Stop() {
	d.mu.Lock()
	s := d.current
	d.mu.Unlock()

	if s == nil {
		return
	}

	s.cancel()
	<-s.finished
}

// Close stops any running stream
func (d *Device) Close() error {
	d.Stop()
	return nil
}

// Fetch returns the next chunk produced by the tool
func (d *Device) Fetch(ctx context.Context, buf *iq.Buffer, timeout time.Duration) Chunk {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.pending) > 0 {
		return d.deliver(buf, frame{data: d.pending, at: d.pendingAt}, false)
	}

	s := d.current
	if s == nil {
		return Chunk{Status: StatusFatal, Err: ErrNotStreaming}
	}

	select {
	case f := <-s.frames:
		return d.deliver(buf, f, s.overflow.Swap(false))
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case f := <-s.frames:
		return d.deliver(buf, f, s.overflow.Swap(false))

	case <-s.finished:
		select {
		case f := <-s.frames:
			return d.deliver(buf, f, s.overflow.Swap(false))
		default:
		}
		if s.err != nil && !errors.Is(s.err, context.Canceled) {
			return Chunk{Status: StatusFatal, Err: s.err}
		}
		return Chunk{Status: StatusOK, EndOfBurst: true}

	case <-timer.C:
		return Chunk{Status: StatusTimeout}

	case <-ctx.Done():
		return Chunk{Status: StatusFatal, Err: ctx.Err()}
	}
}

// deliver decodes as much of f as fits into buf and keeps the rest for the next fetch
func (d *Device) deliver(buf *iq.Buffer, f frame, overflow bool) Chunk {
	wire := d.handler.Wire()
	n := wire.Decode(buf, 0, 0, f.data)

	d.pending = nil
	if rest := f.data[n*wire.BytesPerSample():]; len(rest) >= wire.BytesPerSample() {
		d.pending = rest
		d.pendingAt = f.at
	}

	status := StatusOK
	if overflow {
		status = StatusOverflow
	}
	return Chunk{Status: status, Count: n, Time: f.at}
}

// handleStdout frames raw samples from stdout and queues them without blocking.
func (d *Device) handleStdout(stdout io.Reader, s *stream, done chan<- error) {
	frameSize := d.chunkSize * d.handler.Wire().BytesPerSample()
	reader := bufio.NewReaderSize(stdout, frameSize)

	var dropped uint64
	for {
		p := make([]byte, frameSize)
		n, err := io.ReadFull(reader, p)
		if n > 0 {
			select {
			case s.frames <- frame{data: p[:n], at: time.Now()}:
			default:
				s.overflow.Store(true)
				dropped++
				if dropped == 1 || dropped%100 == 0 {
					d.logger.Warn("receiver is not draining chunks, dropping", slog.Uint64("dropped", dropped))
				}
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, fs.ErrClosed) {
				done <- nil
				return
			}
			done <- fmt.Errorf("%w: error reading stdout: %w", ErrBrokenPipe, err)
			return
		}
	}
}

// handleStderr reads from stderr and logs errors.
func (d *Device) handleStderr(stderr io.Reader, done chan<- error) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()
		line = strings.TrimSpace(line)

		if line == "" {
			continue
		}

		d.logger.Warn(fmt.Sprintf("%s >> %s", d.handler.Device(), line)) // simple logging here
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) {
		done <- fmt.Errorf("%w: error reading stderr: %w", ErrBrokenPipe, err)
		return
	}

	done <- nil
}

// waitCmd waits for the command to exit. Exits caused by cancellation are not errors.
func (d *Device) waitCmd(ctx context.Context, cmd *exec.Cmd) error {
	if err := cmd.Wait(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("command exited with error: %w", err)
	}
	return nil
}
