package hackrf

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/roman-kulish/rfnoc-capture/internal/iq"
	"github.com/roman-kulish/rfnoc-capture/internal/sdr"
	"github.com/roman-kulish/rfnoc-capture/internal/sdr/driver"
)

const (
	Runtime = "hackrf_transfer"
	Device  = "HackRF"
)

// handler struct represents a HackRF handler
type handler struct {
	binPath string
	config  *Config
}

// New creates a new HackRF handler
func New(config *Config) (sdr.Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	binPath, err := driver.FindRuntime(Runtime)
	if err != nil {
		return nil, fmt.Errorf("error finding runtime: %w", err)
	}

	return &handler{binPath, config}, nil
}

// Cmd returns an exec.Cmd receiving the samples requested by cmd
func (h handler) Cmd(ctx context.Context, cmd sdr.StreamCommand) (*exec.Cmd, error) {
	args, err := h.config.Args(cmd)
	if err != nil {
		return nil, fmt.Errorf("error creating args: %w", err)
	}
	return exec.CommandContext(ctx, h.binPath, args...), nil
}

// Wire returns signed 8-bit interleaved IQ
func (h handler) Wire() iq.Wire {
	return iq.WireSC8
}

// Device returns the device type
func (h handler) Device() string {
	return Device
}
