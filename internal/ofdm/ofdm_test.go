package ofdm

import (
	"context"
	"errors"
	"math"
	"math/cmplx"
	"testing"

	"github.com/roman-kulish/rfnoc-capture/internal/iq"
)

type fakeBus struct {
	regs  map[uint32]uint32
	stuck map[uint32]bool
}

func newFakeBus() *fakeBus {
	return &fakeBus{regs: map[uint32]uint32{}, stuck: map[uint32]bool{}}
}

func (b *fakeBus) Peek32(_ context.Context, addr uint32) (uint32, error) {
	return b.regs[addr], nil
}

func (b *fakeBus) Poke32(_ context.Context, addr uint32, v uint32) error {
	if !b.stuck[addr] {
		b.regs[addr] = v
	}
	return nil
}

func TestBlock_Configure(t *testing.T) {
	bus := newFakeBus()
	block := NewBlock(bus)

	s := Settings{Threshold: DefaultThreshold, PacketSize: DefaultPacketSize, OutputSelect: OutputMetricLSB}
	if err := block.Configure(context.Background(), s); err != nil {
		t.Fatalf("Failed to configure block: %v", err)
	}

	if bus.regs[RegThreshold] != 0x00200000 {
		t.Errorf("Expected threshold 0x00200000, got 0x%08x", bus.regs[RegThreshold])
	}
	if bus.regs[RegOutputSelect] != 3 {
		t.Errorf("Expected output select 3, got %d", bus.regs[RegOutputSelect])
	}

	got, err := block.Settings(context.Background())
	if err != nil {
		t.Fatalf("Failed to read settings: %v", err)
	}
	if got != s {
		t.Errorf("Expected %+v, got %+v", s, got)
	}
}

func TestBlock_ConfigureReadbackMismatch(t *testing.T) {
	bus := newFakeBus()
	bus.stuck[RegPacketSize] = true

	err := NewBlock(bus).Configure(context.Background(), DefaultSettings())
	if !errors.Is(err, ErrReadbackMismatch) {
		t.Errorf("Expected ErrReadbackMismatch, got %v", err)
	}
}

func TestSettings_Validate(t *testing.T) {
	s := DefaultSettings()
	s.PacketSize = 0
	if err := s.Validate(); err == nil {
		t.Error("Expected error for zero packet size, got nil")
	}

	s = DefaultSettings()
	s.OutputSelect = 4
	if err := s.Validate(); err == nil {
		t.Error("Expected error for output select 4, got nil")
	}
}

func TestOutputSelect_ValidateFormat(t *testing.T) {
	tests := []struct {
		sel     OutputSelect
		format  iq.Format
		wantErr bool
	}{
		{OutputSignal, iq.FormatSC16, false},
		{OutputSignalWithZeros, iq.FormatFC32, false},
		{OutputMetricMSB, iq.FormatInt32, false},
		{OutputMetricLSB, iq.FormatSC16, true},
		{OutputSignal, iq.FormatInt32, true},
	}

	for _, tt := range tests {
		err := tt.sel.ValidateFormat(tt.format)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s/%s: error = %v, wantErr %v", tt.sel, tt.format, err, tt.wantErr)
		}
	}
}

func TestOutputSelect_Text(t *testing.T) {
	var sel OutputSelect
	if err := sel.UnmarshalText([]byte("metricmsb")); err != nil {
		t.Fatalf("Failed to parse output select: %v", err)
	}
	if sel != OutputMetricMSB || sel.Tag() != "metricMSB" {
		t.Errorf("Expected metricMSB, got %s", sel)
	}
}

func TestFindMaxIdx(t *testing.T) {
	tests := []struct {
		name   string
		metric []int32
		want   int
	}{
		{name: "never above", metric: []int32{1, 2, 3, 2}, want: -1},
		{name: "single peak", metric: []int32{0, 20, 50, 30, 0}, want: 2},
		{name: "first run only", metric: []int32{0, 20, 0, 90, 0}, want: 1},
		{name: "run open at end", metric: []int32{0, 11, 12, 15}, want: 3},
		{name: "equal to threshold continues", metric: []int32{0, 20, 10, 40, 0}, want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FindMaxIdx(tt.metric, 10); got != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestSchmidlCox_PeaksOnPreamble(t *testing.T) {
	const half = 16
	const offset = 100

	y := make([]complex64, 400)
	for i := 0; i < half; i++ {
		s := complex64(cmplx.Rect(1, float64(i*i)*0.37))
		y[offset+i] = s
		y[offset+half+i] = s
	}

	m := SchmidlCox(y, half)
	idx := FindMaxIdx(m, 0.5)
	if idx < 0 {
		t.Fatal("Expected the metric to cross 0.5")
	}

	if math.Abs(m[idx]-1) > 1e-6 {
		t.Errorf("Expected peak metric 1, got %g", m[idx])
	}
	if first, last := offset+2*half, offset+3*half; idx < first || idx > last {
		t.Errorf("Expected peak in [%d, %d], got %d", first, last, idx)
	}
	if m[offset+3*half+1] != 0 {
		t.Errorf("Expected zero metric after the burst, got %g", m[offset+3*half+1])
	}
}
