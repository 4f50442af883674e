package receiver

import "time"

// schedule yields measurement start times on the device clock. Each start is
// derived from the previous one, so the spacing never drifts with host timing.
type schedule struct {
	timed   bool
	delay   time.Duration
	startAt time.Time
	now     func() time.Time

	last time.Time
}

// next returns the start of the next measurement, zero for "now"
func (s *schedule) next() time.Time {
	if !s.timed {
		return time.Time{}
	}

	switch {
	case !s.last.IsZero():
		s.last = s.last.Add(s.delay)
	case !s.startAt.IsZero():
		s.last = s.startAt
	default:
		s.last = s.now().Add(s.delay)
	}
	return s.last
}
