package ofdm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roman-kulish/rfnoc-capture/internal/iq"
)

const (
	OutputSignalWithZeros OutputSelect = iota
	OutputSignal
	OutputMetricMSB
	OutputMetricLSB
)

var outputTags = map[OutputSelect]string{
	OutputSignalWithZeros: "signal_with_zeros",
	OutputSignal:          "signal",
	OutputMetricMSB:       "metricMSB",
	OutputMetricLSB:       "metricLSB",
}

// OutputSelect chooses what the synchronization block streams
type OutputSelect uint32

// ParseOutputSelect accepts a tag or the register value
func ParseOutputSelect(s string) (OutputSelect, error) {
	for sel, tag := range outputTags {
		if strings.EqualFold(tag, s) {
			return sel, nil
		}
	}
	if n, err := strconv.ParseUint(s, 10, 32); err == nil {
		if sel := OutputSelect(n); sel.Validate() == nil {
			return sel, nil
		}
	}
	return 0, fmt.Errorf("invalid output select '%s'", s)
}

// Tag is the short name used in output file names
func (o OutputSelect) Tag() string {
	if tag, ok := outputTags[o]; ok {
		return tag
	}
	return fmt.Sprintf("select%d", uint32(o))
}

func (o OutputSelect) String() string {
	return o.Tag()
}

// IsMetric returns true when the block streams the timing metric instead of samples
func (o OutputSelect) IsMetric() bool {
	return o == OutputMetricMSB || o == OutputMetricLSB
}

func (o OutputSelect) Validate() error {
	if _, ok := outputTags[o]; !ok {
		return fmt.Errorf("invalid output select %d: must be 0-3", uint32(o))
	}
	return nil
}

// ValidateFormat checks the output format fits the selected output. Metric
// words are 32-bit and only survive the int32 format; sample outputs must not
// be packed.
func (o OutputSelect) ValidateFormat(f iq.Format) error {
	if o.IsMetric() && f != iq.FormatInt32 {
		return fmt.Errorf("output select %s requires int32 format, %s given", o.Tag(), f)
	}
	if !o.IsMetric() && f == iq.FormatInt32 {
		return fmt.Errorf("int32 format requires a metric output select, %s given", o.Tag())
	}
	return nil
}

func (o OutputSelect) MarshalText() ([]byte, error) {
	return []byte(o.Tag()), nil
}

func (o *OutputSelect) UnmarshalText(text []byte) error {
	sel, err := ParseOutputSelect(string(text))
	if err != nil {
		return err
	}
	*o = sel
	return nil
}
