// Package sink writes encoded samples to files. A sink is bound either to the
// whole run or to a single measurement, and may split channels into separate
// files, compress with zstd and leave a JSON metadata sidecar behind.
package sink

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/roman-kulish/rfnoc-capture/internal/iq"
)

const (
	ScopeRun         Scope = "run"
	ScopeMeasurement Scope = "measurement"
)

const (
	// DefaultBufferSize is the write buffer size per output file
	DefaultBufferSize = 1 << 20

	// RunMeasurement is the measurement index of run scoped targets
	RunMeasurement = -1

	fileExt = ".dat"
	zstdExt = ".zst"
	metaExt = ".json"
)

// Scope binds a sink to the whole run or to one measurement
type Scope string

func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(s)) {
	case ScopeRun:
		return ScopeRun, nil
	case ScopeMeasurement:
		return ScopeMeasurement, nil
	}
	return "", fmt.Errorf("invalid sink scope '%s': must be run or measurement", s)
}

// Config describes where and how samples are written
type Config struct {
	Directory     string    `yaml:"directory" json:"directory"`
	BaseName      string    `yaml:"baseName" json:"baseName"`
	Datapath      string    `yaml:"-" json:"datapath"`
	Tag           string    `yaml:"-" json:"tag,omitempty"` // output select tag of the sync block
	Format        iq.Format `yaml:"-" json:"format"`
	Scope         Scope     `yaml:"scope" json:"scope"`
	SplitChannels bool      `yaml:"splitChannels" json:"splitChannels"`
	Compress      bool      `yaml:"compress" json:"compress"`
	Metadata      bool      `yaml:"metadata" json:"metadata"`
	NoClobber     bool      `yaml:"noClobber" json:"noClobber"` // refuse to overwrite existing files
	BufferSize    int       `yaml:"bufferSize" json:"bufferSize"`
}

func (c *Config) Validate() error {
	var errs []error
	if c.BaseName == "" {
		errs = append(errs, errors.New("sink.Config: base name is required"))
	}
	if strings.ContainsRune(c.BaseName, filepath.Separator) {
		errs = append(errs, fmt.Errorf("sink.Config: base name cannot contain a path separator: %s", c.BaseName))
	}
	if c.Datapath == "" {
		errs = append(errs, errors.New("sink.Config: datapath is required"))
	}
	if err := c.Format.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("sink.Config: %w", err))
	}
	if c.Scope != ScopeRun && c.Scope != ScopeMeasurement {
		errs = append(errs, fmt.Errorf("sink.Config: invalid scope '%s'", c.Scope))
	}
	if c.BufferSize < 0 {
		errs = append(errs, fmt.Errorf("sink.Config: buffer size cannot be negative: %d", c.BufferSize))
	}
	return errors.Join(errs...)
}

// FileName returns the file name of a measurement (RunMeasurement for run
// scope) and channel (negative when channels share one file):
//
//	<base>_<datapath>[.<tag>][_m<NNNN>][_ch<N>].<format>.dat[.zst]
func FileName(c Config, measurement, channel int) string {
	var sb strings.Builder
	sb.WriteString(c.BaseName)
	sb.WriteString("_")
	sb.WriteString(c.Datapath)
	if c.Tag != "" {
		sb.WriteString(".")
		sb.WriteString(c.Tag)
	}
	if measurement >= 0 {
		fmt.Fprintf(&sb, "_m%04d", measurement)
	}
	if channel >= 0 {
		fmt.Fprintf(&sb, "_ch%d", channel)
	}
	sb.WriteString(".")
	sb.WriteString(c.Format.String())
	sb.WriteString(fileExt)
	if c.Compress {
		sb.WriteString(zstdExt)
	}
	return sb.String()
}

// MetadataName returns the sidecar file name of a measurement
func MetadataName(c Config, measurement int) string {
	name := FileName(Config{BaseName: c.BaseName, Datapath: c.Datapath, Tag: c.Tag, Format: c.Format}, measurement, -1)
	return name + metaExt
}
