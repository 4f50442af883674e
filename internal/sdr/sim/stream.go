package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/roman-kulish/rfnoc-capture/internal/datapath"
	"github.com/roman-kulish/rfnoc-capture/internal/iq"
	"github.com/roman-kulish/rfnoc-capture/internal/ofdm"
	"github.com/roman-kulish/rfnoc-capture/internal/sdr"
)

// metricPeak is the height of a simulated frame detection, well above the default threshold
const metricPeak = 3 * ofdm.DefaultMetricThreshold

func (r *Radio) Channels() int {
	return r.config.Channels
}

func (r *Radio) HostFormat() iq.Format {
	return r.hostFormat
}

// Now returns the device time, which starts at the Unix epoch when the radio is created
func (r *Radio) Now() time.Time {
	return time.Unix(0, 0).Add(time.Since(r.created))
}

// IssueCommand implements sdr.Source
func (r *Radio) IssueCommand(_ context.Context, cmd sdr.StreamCommand) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch cmd.Mode {
	case sdr.StreamModeStopContinuous:
		if r.current == nil || !r.current.continuous {
			return sdr.ErrNotStreaming
		}
		r.current.stopping = true
		return nil

	case sdr.StreamModeNumSamplesAndDone:
		if cmd.NumSamples == 0 {
			return fmt.Errorf("%w: zero samples requested", sdr.ErrInvalidCommand)
		}

	case sdr.StreamModeStartContinuous:

	default:
		return fmt.Errorf("%w: mode %s", sdr.ErrInvalidCommand, cmd.Mode)
	}

	r.current = &stream{
		cmd:        cmd,
		continuous: cmd.Mode == sdr.StreamModeStartContinuous,
		remaining:  cmd.NumSamples,
		late:       !cmd.StreamNow && !cmd.StartTime.IsZero() && cmd.StartTime.Before(r.Now()),
	}

	r.logger.Debug("stream command issued",
		slog.String("mode", cmd.Mode.String()),
		slog.Uint64("samples", cmd.NumSamples),
		slog.Bool("now", cmd.StreamNow),
	)
	return nil
}

// Fetch implements sdr.Source
func (r *Radio) Fetch(ctx context.Context, buf *iq.Buffer, timeout time.Duration) sdr.Chunk {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.current
	if s == nil {
		return r.idle(ctx, timeout)
	}

	if s.late {
		r.current = nil
		return sdr.Chunk{Status: sdr.StatusFatal, Err: ErrLateCommand}
	}

	if s.delivered == 0 && !s.cmd.StreamNow && !s.cmd.StartTime.IsZero() {
		if wait := s.cmd.StartTime.Sub(r.Now()); wait > 0 {
			if wait > timeout {
				return r.idle(ctx, timeout)
			}
			if err := sleep(ctx, wait); err != nil {
				return sdr.Chunk{Status: sdr.StatusFatal, Err: err}
			}
		}
	}

	if s.startHost.IsZero() {
		s.startHost = time.Now()
	}

	faults := r.config.Faults
	if faults.FailAfter > 0 && s.delivered >= faults.FailAfter {
		r.current = nil
		return sdr.Chunk{Status: sdr.StatusFatal, Err: ErrInjectedFault}
	}
	if faults.StallAfter > 0 && s.delivered >= faults.StallAfter {
		return r.idle(ctx, timeout)
	}

	n := uint64(buf.Capacity())
	if !s.continuous {
		n = min(n, s.remaining)
	}
	if faults.FailAfter > 0 {
		n = min(n, faults.FailAfter-s.delivered)
	}
	if faults.StallAfter > 0 {
		n = min(n, faults.StallAfter-s.delivered)
	}

	s.chunks++
	status := sdr.StatusOK
	if faults.OverflowEvery > 0 && s.chunks%faults.OverflowEvery == 0 {
		status = sdr.StatusOverflow
		s.index += n // the dropped samples leave a phase discontinuity
	}

	chunk := sdr.Chunk{
		Status: status,
		Count:  int(n),
		Time:   r.sampleTime(s),
	}

	r.generate(buf, s.index, int(n))
	s.index += n
	s.delivered += n

	switch {
	case s.stopping:
		chunk.EndOfBurst = true
		r.current = nil
	case !s.continuous:
		s.remaining -= n
		if s.remaining == 0 {
			chunk.EndOfBurst = true
			r.current = nil
		}
	}

	if r.config.Realtime {
		due := s.startHost.Add(time.Duration(float64(s.index) / r.rate() * float64(time.Second)))
		if wait := time.Until(due); wait > 0 {
			if err := sleep(ctx, wait); err != nil {
				return sdr.Chunk{Status: sdr.StatusFatal, Err: err}
			}
		}
	}

	return chunk
}

// idle blocks for the timeout like hardware with nothing to deliver
func (r *Radio) idle(ctx context.Context, timeout time.Duration) sdr.Chunk {
	if err := sleep(ctx, timeout); err != nil {
		return sdr.Chunk{Status: sdr.StatusFatal, Err: err}
	}
	return sdr.Chunk{Status: sdr.StatusTimeout}
}

func (r *Radio) rate() float64 {
	return r.settings[0][datapath.SettingRate]
}

func (r *Radio) sampleTime(s *stream) time.Time {
	start := s.cmd.StartTime
	if s.cmd.StreamNow || start.IsZero() {
		start = time.Unix(0, 0).Add(s.startHost.Sub(r.created))
	}
	return start.Add(time.Duration(float64(s.index) / r.rate() * float64(time.Second)))
}

// generate fills n samples per channel starting at stream sample index
func (r *Radio) generate(buf *iq.Buffer, index uint64, n int) {
	sel := ofdm.OutputSelect(r.registers[ofdm.RegOutputSelect])
	packet := uint64(max(1, r.registers[ofdm.RegPacketSize]))

	step := 2 * math.Pi * r.config.ToneOffset / r.rate()
	delta := r.config.PhaseDelta * math.Pi / 180

	for ch := 0; ch < min(buf.Channels(), r.config.Channels); ch++ {
		for i := 0; i < n; i++ {
			k := index + uint64(i)
			pos := k % packet

			if r.syncPath && sel.IsMetric() {
				if buf.Format() == iq.FormatSC16 {
					buf.SC16(ch)[i] = iq.UnpackInt32(r.metricWord(sel, pos, packet))
				}
				continue
			}

			var v complex64
			if !(r.syncPath && sel == ofdm.OutputSignalWithZeros && pos < packet/4) {
				phase := step*float64(k) + delta*float64(ch)
				v = complex64(complex(
					r.config.Amplitude*math.Cos(phase)+r.rng.NormFloat64()*r.config.NoiseLevel,
					r.config.Amplitude*math.Sin(phase)+r.rng.NormFloat64()*r.config.NoiseLevel,
				))
			}

			switch buf.Format() {
			case iq.FormatSC16:
				buf.SC16(ch)[i] = iq.SC16FromComplex64(v)
			case iq.FormatFC32:
				buf.FC32(ch)[i] = v
			}
		}
	}
}

// metricWord is a triangular detection peak centered in every packet
func (r *Radio) metricWord(sel ofdm.OutputSelect, pos, packet uint64) uint32 {
	center := float64(packet) / 2
	width := math.Max(1, float64(packet)/8)
	level := math.Max(0, 1-math.Abs(float64(pos)-center)/width)

	v := uint64(level*metricPeak) + uint64(r.rng.Intn(1024))
	if sel == ofdm.OutputMetricMSB {
		return uint32(v >> 16)
	}
	return uint32(v)
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
