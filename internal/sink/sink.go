package sink

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Target identifies what a sink is opened for
type Target struct {
	RunID       string
	Measurement int // RunMeasurement for run scoped sinks
	Channels    int
}

// Measurement is the summary of a measurement written to a sink
type Measurement struct {
	Index     int       `json:"index"`
	StartTime time.Time `json:"startTime"`
	Requested uint64    `json:"requested"`
	Accepted  uint64    `json:"accepted"`
	Bytes     int64     `json:"bytes"`
	Status    string    `json:"status"`
}

// Metadata is the JSON sidecar of a sink
type Metadata struct {
	RunID         string         `json:"runId"`
	Created       time.Time      `json:"created"`
	Datapath      string         `json:"datapath"`
	Tag           string         `json:"tag,omitempty"`
	Format        string         `json:"format"`
	Channels      int            `json:"channels"`
	SplitChannels bool           `json:"splitChannels"`
	Compressed    bool           `json:"compressed"`
	Files         []string       `json:"files"`
	Attributes    map[string]any `json:"attributes,omitempty"`
	Measurements  []Measurement  `json:"measurements"`
}

// Sink receives encoded samples. Writes for one chunk are issued channel by
// channel, so a shared file holds channels blockwise per chunk.
type Sink interface {
	// Writer returns the destination of channel ch
	Writer(ch int) io.Writer

	// Annotate records a measurement summary for the metadata sidecar
	Annotate(m Measurement)

	// Files returns the paths of the sample files
	Files() []string

	// Close flushes and closes all files
	Close() error
}

// Opener opens sinks for a scope
type Opener interface {
	Scope() Scope
	Open(t Target) (Sink, error)
}

// Checker is implemented by openers that can tell whether opening a target
// would fail, without creating anything
type Checker interface {
	Check(t Target) error
}

// WithLogger sets the logger for the opener
func WithLogger(logger *slog.Logger) func(o *FileOpener) {
	return func(o *FileOpener) {
		o.logger = logger.With(slog.String("sink", string(o.config.Scope)))
	}
}

// WithAttributes adds attributes to every metadata sidecar
func WithAttributes(attrs map[string]any) func(o *FileOpener) {
	return func(o *FileOpener) {
		for k, v := range attrs {
			o.attributes[k] = v
		}
	}
}

// FileOpener opens file sinks
type FileOpener struct {
	config     Config
	attributes map[string]any
	logger     *slog.Logger
}

func NewFileOpener(config Config, options ...func(o *FileOpener)) (*FileOpener, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.BufferSize == 0 {
		config.BufferSize = DefaultBufferSize
	}
	if config.Directory == "" {
		config.Directory = "."
	}

	o := FileOpener{
		config:     config,
		attributes: make(map[string]any),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}
	for _, option := range options {
		option(&o)
	}
	return &o, nil
}

func (o *FileOpener) Scope() Scope {
	return o.config.Scope
}

// Open creates the files of a target
func (o *FileOpener) Open(t Target) (Sink, error) {
	if t.Channels <= 0 {
		return nil, fmt.Errorf("invalid channel count: %d", t.Channels)
	}
	if err := os.MkdirAll(o.config.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	paths := o.paths(t)
	s := fileSink{split: len(paths) > 1}
	for _, path := range paths {
		f, err := o.create(path)
		if err != nil {
			return nil, errors.Join(err, s.closeFiles())
		}
		s.files = append(s.files, f)
		o.logger.Debug("file opened", slog.String("path", path))
	}

	if o.config.Metadata {
		s.metaPath = filepath.Join(o.config.Directory, MetadataName(o.config, t.Measurement))
		s.meta = &Metadata{
			RunID:         t.RunID,
			Created:       time.Now().UTC(),
			Datapath:      o.config.Datapath,
			Tag:           o.config.Tag,
			Format:        o.config.Format.String(),
			Channels:      t.Channels,
			SplitChannels: s.split,
			Compressed:    o.config.Compress,
			Files:         s.Files(),
			Attributes:    o.attributes,
		}
	}

	return &s, nil
}

// Check reports a sample file of t that already exists when overwriting is
// not allowed
func (o *FileOpener) Check(t Target) error {
	if !o.config.NoClobber {
		return nil
	}
	for _, path := range o.paths(t) {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("opening %s: %w", path, os.ErrExist)
		}
	}
	return nil
}

func (o *FileOpener) paths(t Target) []string {
	channels := []int{-1}
	if o.config.SplitChannels && t.Channels > 1 {
		channels = make([]int, t.Channels)
		for ch := range channels {
			channels[ch] = ch
		}
	}

	paths := make([]string, len(channels))
	for i, ch := range channels {
		paths[i] = filepath.Join(o.config.Directory, FileName(o.config, t.Measurement, ch))
	}
	return paths
}

func (o *FileOpener) create(path string) (*file, error) {
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if o.config.NoClobber {
		flags = os.O_CREATE | os.O_WRONLY | os.O_EXCL
	}

	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	out := file{path: path, f: f, bw: bufio.NewWriterSize(f, o.config.BufferSize)}
	out.w = out.bw

	if o.config.Compress {
		zw, err := zstd.NewWriter(out.bw)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("creating zstd encoder: %w", err)
		}
		out.zw = zw
		out.w = zw
	}
	return &out, nil
}

type file struct {
	path string
	f    *os.File
	bw   *bufio.Writer
	zw   *zstd.Encoder
	w    io.Writer
}

func (f *file) close() error {
	var errs []error
	if f.zw != nil {
		if err := f.zw.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing zstd stream %s: %w", f.path, err))
		}
	}
	if err := f.bw.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("flushing %s: %w", f.path, err))
	}
	if err := f.f.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing %s: %w", f.path, err))
	}
	return errors.Join(errs...)
}

type fileSink struct {
	files    []*file
	split    bool
	meta     *Metadata
	metaPath string

	closeOnce sync.Once
	closeErr  error
}

func (s *fileSink) Writer(ch int) io.Writer {
	if s.split {
		return s.files[ch].w
	}
	return s.files[0].w
}

func (s *fileSink) Annotate(m Measurement) {
	if s.meta != nil {
		s.meta.Measurements = append(s.meta.Measurements, m)
	}
}

func (s *fileSink) Files() []string {
	paths := make([]string, len(s.files))
	for i, f := range s.files {
		paths[i] = f.path
	}
	return paths
}

// Close flushes the files and writes the metadata sidecar. It is safe to call more than once.
func (s *fileSink) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.closeFiles()
		if s.meta != nil {
			if err := writeMetadata(s.metaPath, s.meta); err != nil {
				s.closeErr = errors.Join(s.closeErr, err)
			}
		}
	})
	return s.closeErr
}

func (s *fileSink) closeFiles() error {
	var errs []error
	for _, f := range s.files {
		errs = append(errs, f.close())
	}
	return errors.Join(errs...)
}

func writeMetadata(path string, meta *Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling metadata: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}
	return nil
}
