package analysis

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/roman-kulish/rfnoc-capture/internal/iq"
	"github.com/roman-kulish/rfnoc-capture/internal/sink"
)

// Capture is a decoded sample file
type Capture struct {
	Path   string
	Format iq.Format

	// Samples holds the full-scale normalized samples. int32 words are
	// unpacked into their I and Q halves.
	Samples []complex64

	// Metric holds the raw words of an int32 capture
	Metric []int32

	// Metadata is nil when the file has no sidecar
	Metadata *sink.Metadata
}

// FormatFromName returns the format encoded in a capture file name,
// e.g. "rx_raw_m0000.sc16.dat.zst" is sc16.
func FormatFromName(path string) (iq.Format, error) {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, ".zst")
	name = strings.TrimSuffix(name, ".dat")

	i := strings.LastIndex(name, ".")
	if i < 0 {
		return "", fmt.Errorf("no format in file name %s", filepath.Base(path))
	}
	return iq.ParseFormat(name[i+1:])
}

// Load decodes a capture file. An empty format is taken from the file name.
func Load(path string, format iq.Format) (*Capture, error) {
	if format == "" {
		f, err := FormatFromName(path)
		if err != nil {
			return nil, err
		}
		format = f
	}
	if err := format.Validate(); err != nil {
		return nil, err
	}

	r, err := sink.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	c := Capture{Path: path, Format: format}

	switch format {
	case iq.FormatSC16:
		samples, err := iq.DecodeSC16(data)
		if err != nil {
			return nil, err
		}
		c.Samples = make([]complex64, len(samples))
		for i, s := range samples {
			c.Samples[i] = s.Complex64()
		}

	case iq.FormatFC32:
		if c.Samples, err = iq.DecodeFC32(data); err != nil {
			return nil, err
		}

	case iq.FormatInt32:
		if c.Metric, err = iq.DecodeInt32(data); err != nil {
			return nil, err
		}
		c.Samples = make([]complex64, len(c.Metric))
		for i, w := range c.Metric {
			c.Samples[i] = iq.UnpackInt32(uint32(w)).Complex64()
		}
	}

	if metaPath, ok := sink.MetadataPath(path); ok {
		if c.Metadata, err = sink.ReadMetadata(metaPath); err != nil {
			return nil, err
		}
	}

	return &c, nil
}

// Len returns the number of samples in the capture
func (c *Capture) Len() int {
	return len(c.Samples)
}

// Block is a span of samples written by one measurement
type Block struct {
	Measurement int
	Start       int
	End         int
}

func (b Block) Len() int {
	return b.End - b.Start
}

// Blocks splits the capture into measurements using the sidecar. Files
// holding several channels blockwise count every channel in a block.
// Without a sidecar the capture is one block.
func (c *Capture) Blocks() []Block {
	if c.Metadata == nil || len(c.Metadata.Measurements) == 0 {
		return []Block{{Measurement: 0, Start: 0, End: c.Len()}}
	}

	channels := 1
	if !c.Metadata.SplitChannels && c.Metadata.Channels > 1 {
		channels = c.Metadata.Channels
	}

	var blocks []Block
	var start int
	for _, m := range c.Metadata.Measurements {
		end := min(start+int(m.Accepted)*channels, c.Len())
		blocks = append(blocks, Block{Measurement: m.Index, Start: start, End: end})
		start = end
	}
	return blocks
}
