package receiver

import (
	"testing"
	"time"
)

func TestSchedule(t *testing.T) {
	now := time.Unix(100, 0)
	calls := 0
	clock := func() time.Time {
		calls++
		return now.Add(time.Duration(calls) * time.Hour) // a drifting clock must not matter
	}

	s := schedule{timed: true, delay: time.Second, now: clock}
	first := s.next()
	for k := 1; k < 5; k++ {
		if got, want := s.next(), first.Add(time.Duration(k)*time.Second); !got.Equal(want) {
			t.Errorf("Start %d: expected %v, got %v", k, want, got)
		}
	}
	if calls != 1 {
		t.Errorf("Expected the clock to be read once, got %d", calls)
	}

	explicit := schedule{timed: true, delay: time.Second, startAt: now, now: clock}
	if got := explicit.next(); !got.Equal(now) {
		t.Errorf("Expected explicit start %v, got %v", now, got)
	}

	immediate := schedule{delay: time.Second, now: clock}
	if got := immediate.next(); !got.IsZero() {
		t.Errorf("Expected zero start in immediate mode, got %v", got)
	}
}
