// Package ofdm controls the Schmidl & Cox synchronization block through its
// user registers and analyses the timing metric it produces.
package ofdm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// User register addresses of the synchronization block
const (
	RegThreshold    uint32 = 0x00
	RegPacketSize   uint32 = 0x04
	RegOutputSelect uint32 = 0x08
)

const (
	DefaultThreshold  uint32 = 0x00200000
	DefaultPacketSize uint32 = 2304
)

// ErrReadbackMismatch is returned when a register does not hold the value written to it
var ErrReadbackMismatch = errors.New("register read back mismatch")

// RegisterBus gives access to the 32-bit user registers of a block
type RegisterBus interface {
	Peek32(ctx context.Context, addr uint32) (uint32, error)
	Poke32(ctx context.Context, addr uint32, v uint32) error
}

// Settings is the synchronization block configuration
type Settings struct {
	Threshold    uint32       `yaml:"threshold" json:"threshold"`
	PacketSize   uint32       `yaml:"packetSize" json:"packetSize"`
	OutputSelect OutputSelect `yaml:"outputSelect" json:"outputSelect"`
}

// DefaultSettings returns the settings the block is usually operated with
func DefaultSettings() Settings {
	return Settings{
		Threshold:    DefaultThreshold,
		PacketSize:   DefaultPacketSize,
		OutputSelect: OutputSignal,
	}
}

func (s *Settings) Validate() error {
	if s.PacketSize == 0 {
		return errors.New("packet size must be positive")
	}
	return s.OutputSelect.Validate()
}

// WithLogger sets the logger for the block
func WithLogger(logger *slog.Logger) func(b *Block) {
	return func(b *Block) {
		b.logger = logger.With(slog.String("block", "Schmidl_cox"))
	}
}

// Block is the register level controller of the synchronization block
type Block struct {
	bus    RegisterBus
	logger *slog.Logger
}

func NewBlock(bus RegisterBus, options ...func(b *Block)) *Block {
	b := Block{
		bus:    bus,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}
	for _, option := range options {
		option(&b)
	}
	return &b
}

// Configure writes all settings and verifies each one by reading it back
func (b *Block) Configure(ctx context.Context, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}

	registers := []struct {
		name  string
		addr  uint32
		value uint32
	}{
		{"threshold", RegThreshold, s.Threshold},
		{"packet size", RegPacketSize, s.PacketSize},
		{"output select", RegOutputSelect, uint32(s.OutputSelect)},
	}

	for _, r := range registers {
		if err := b.write(ctx, r.name, r.addr, r.value); err != nil {
			return err
		}
	}
	return nil
}

// Settings reads the current register values
func (b *Block) Settings(ctx context.Context) (Settings, error) {
	var s Settings
	var err error
	if s.Threshold, err = b.bus.Peek32(ctx, RegThreshold); err != nil {
		return Settings{}, fmt.Errorf("reading threshold: %w", err)
	}
	if s.PacketSize, err = b.bus.Peek32(ctx, RegPacketSize); err != nil {
		return Settings{}, fmt.Errorf("reading packet size: %w", err)
	}
	sel, err := b.bus.Peek32(ctx, RegOutputSelect)
	if err != nil {
		return Settings{}, fmt.Errorf("reading output select: %w", err)
	}
	s.OutputSelect = OutputSelect(sel)
	return s, nil
}

func (b *Block) write(ctx context.Context, name string, addr, value uint32) error {
	if err := b.bus.Poke32(ctx, addr, value); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}

	got, err := b.bus.Peek32(ctx, addr)
	if err != nil {
		return fmt.Errorf("reading back %s: %w", name, err)
	}
	if got != value {
		return fmt.Errorf("%w: %s at 0x%02x wrote 0x%08x, read 0x%08x", ErrReadbackMismatch, name, addr, value, got)
	}

	b.logger.Info(fmt.Sprintf("%s set", name), slog.String("value", fmt.Sprintf("0x%08x", got)))
	return nil
}
