package transport

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduleOrder(t *testing.T) {
	s := NewScheduler()
	var got []string

	s.Schedule(30*time.Millisecond, func(time.Duration) { got = append(got, "c") })
	s.Schedule(10*time.Millisecond, func(time.Duration) { got = append(got, "a") })
	s.Schedule(10*time.Millisecond, func(time.Duration) { got = append(got, "b") })
	s.Schedule(50*time.Millisecond, func(time.Duration) { got = append(got, "late") })

	if n := s.AdvanceTo(30 * time.Millisecond); n != 3 {
		t.Errorf("AdvanceTo() fired %d, want 3", n)
	}
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("fired %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("fired[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if s.Now() != 30*time.Millisecond {
		t.Errorf("Now() = %v, want 30ms", s.Now())
	}
	if s.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", s.Pending())
	}
}

func TestScheduleReceivesScheduledTime(t *testing.T) {
	s := NewScheduler()
	var at time.Duration
	s.Schedule(7*time.Millisecond, func(t time.Duration) { at = t })
	s.AdvanceTo(time.Second)
	if at != 7*time.Millisecond {
		t.Errorf("callback time = %v, want 7ms", at)
	}
}

func TestRepeatAbsoluteTimes(t *testing.T) {
	s := NewScheduler()
	interval := time.Second / 3
	var times []time.Duration
	var indexes []int

	s.Repeat(0, interval, func(at time.Duration, n int) {
		times = append(times, at)
		indexes = append(indexes, n)
	})

	// advance in uneven chunks
	for _, step := range []time.Duration{1, 400 * time.Millisecond, 7 * time.Millisecond, 2 * time.Second} {
		s.Advance(step)
	}

	if len(times) < 7 {
		t.Fatalf("fired %d times, want at least 7", len(times))
	}
	for n, at := range times {
		if want := time.Duration(n) * interval; at != want {
			t.Errorf("occurrence %d at %v, want %v", n, at, want)
		}
		if indexes[n] != n {
			t.Errorf("occurrence %d index = %d", n, indexes[n])
		}
		if n > 0 && at <= times[n-1] {
			t.Errorf("occurrence %d not strictly after %d", n, n-1)
		}
	}
}

func TestCancel(t *testing.T) {
	s := NewScheduler()
	fired := false
	id := s.Schedule(time.Millisecond, func(time.Duration) { fired = true })

	if !s.Cancel(id) {
		t.Error("Cancel() = false for pending event")
	}
	if s.Cancel(id) {
		t.Error("Cancel() = true for already cancelled event")
	}
	s.AdvanceTo(time.Second)
	if fired {
		t.Error("cancelled event fired")
	}
}

func TestCancelRepeatFromCallback(t *testing.T) {
	s := NewScheduler()
	count := 0
	var id EventID
	id = s.Repeat(0, 10*time.Millisecond, func(at time.Duration, n int) {
		count++
		if n == 2 {
			s.Cancel(id)
		}
	})

	s.AdvanceTo(time.Second)
	if count != 3 {
		t.Errorf("repeat fired %d times, want 3", count)
	}
	if s.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", s.Pending())
	}
}

func TestScheduleFromCallback(t *testing.T) {
	s := NewScheduler()
	var order []time.Duration
	s.Schedule(10*time.Millisecond, func(at time.Duration) {
		order = append(order, at)
		s.Schedule(at+5*time.Millisecond, func(at time.Duration) { order = append(order, at) })
	})

	s.AdvanceTo(20 * time.Millisecond)
	if len(order) != 2 || order[1] != 15*time.Millisecond {
		t.Errorf("order = %v, want [10ms 15ms]", order)
	}
}

func TestCancelAll(t *testing.T) {
	s := NewScheduler()
	s.Schedule(time.Millisecond, func(time.Duration) { t.Error("event fired after CancelAll") })
	s.Repeat(0, time.Millisecond, func(time.Duration, int) { t.Error("repeat fired after CancelAll") })
	s.CancelAll()
	s.AdvanceTo(time.Second)
	if _, ok := s.Next(); ok {
		t.Error("Next() reported a pending event after CancelAll")
	}
}

func TestClockNeverMovesBackwards(t *testing.T) {
	s := NewScheduler()
	s.AdvanceTo(time.Second)
	s.AdvanceTo(500 * time.Millisecond)
	if s.Now() != time.Second {
		t.Errorf("Now() = %v, want 1s", s.Now())
	}
}

type fakeClock struct{ now atomic.Int64 }

func (c *fakeClock) Now() time.Duration { return time.Duration(c.now.Load()) }

func TestRunnerAdvancesWithLookahead(t *testing.T) {
	s := NewScheduler()
	clock := &fakeClock{}
	fired := make(chan time.Duration, 1)
	s.Schedule(40*time.Millisecond, func(at time.Duration) { fired <- at })

	r := NewRunner(s, clock, 50*time.Millisecond, time.Millisecond)
	r.Start(context.Background())
	defer r.Stop()

	select {
	case at := <-fired:
		if at != 40*time.Millisecond {
			t.Errorf("fired at %v, want 40ms", at)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event inside the lookahead window never fired")
	}
}

func TestRunnerStopIsIdempotent(t *testing.T) {
	r := NewRunner(NewScheduler(), NewWallClock(), 0, time.Millisecond)
	r.Stop()
	r.Start(context.Background())
	r.Start(context.Background())
	r.Stop()
	r.Stop()
}
