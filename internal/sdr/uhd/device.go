package uhd

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/roman-kulish/rfnoc-capture/internal/iq"
	"github.com/roman-kulish/rfnoc-capture/internal/sdr"
	"github.com/roman-kulish/rfnoc-capture/internal/sdr/driver"
)

const (
	Runtime = "rx_samples_to_file"
	Device  = "USRP"
)

// handler struct represents a USRP handler driven through the UHD examples
type handler struct {
	binPath string
	config  *Config
}

// New creates a new USRP handler
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

// Cmd returns an exec.Cmd for the USRP handler
func (h handler) Cmd(ctx context.Context, cmd sdr.StreamCommand) (*exec.Cmd, error) {
	args, err := h.config.CmdArgs(cmd)
	if err != nil {
		return nil, fmt.Errorf("error creating args: %w", err)
	}
	return exec.CommandContext(ctx, h.binPath, args...), nil
}

func (h handler) Wire() iq.Wire {
	return iq.WireSC16
}

func (h handler) Device() string {
	return Device
}
