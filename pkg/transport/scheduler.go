// Package transport provides the logical clock that every timed beatgrid
// component schedules against.
//
// Events are stored with absolute times relative to the scheduler's origin and
// fire in strictly increasing (time, insertion) order when the clock is advanced.
// Nothing fires on its own: a test advances the clock by hand, while Run drives
// it from a real audio clock with a small lookahead.
package transport

import (
	"container/heap"
	"sync"
	"time"
)

// EventID identifies a scheduled event for cancellation
type EventID uint64

// Func is called with the event's scheduled time
type Func func(at time.Duration)

// RepeatFunc is called with the occurrence's scheduled time and its index (0, 1, 2, ...)
type RepeatFunc func(at time.Duration, n int)

type event struct {
	id    EventID
	at    time.Duration
	seq   uint64
	index int

	fn Func

	// repeat state
	repeat   RepeatFunc
	start    time.Duration
	interval time.Duration
	n        int
}

type eventQueue []*event

func (q eventQueue) Len() int { return len(q) }
func (q eventQueue) Less(i, j int) bool {
	if q[i].at != q[j].at {
		return q[i].at < q[j].at
	}
	return q[i].seq < q[j].seq
}
func (q eventQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}
func (q *eventQueue) Push(x any) {
	e := x.(*event)
	e.index = len(*q)
	*q = append(*q, e)
}
func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}

// Scheduler is a logical clock with a queue of timed callbacks
type Scheduler struct {
	mu     sync.Mutex
	now    time.Duration
	queue  eventQueue
	byID   map[EventID]*event
	nextID EventID
	seq    uint64
}

// NewScheduler creates a scheduler at time zero
func NewScheduler() *Scheduler {
	return &Scheduler{byID: make(map[EventID]*event)}
}

// Now returns the scheduler's logical time
func (s *Scheduler) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *Scheduler) push(e *event) EventID {
	s.nextID++
	s.seq++
	e.id = s.nextID
	e.seq = s.seq
	heap.Push(&s.queue, e)
	s.byID[e.id] = e
	return e.id
}

// Schedule queues fn to run at the absolute time at. Times in the past fire on the next advance.
func (s *Scheduler) Schedule(at time.Duration, fn Func) EventID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.push(&event{at: at, fn: fn})
}

// After queues fn to run d after the current logical time
func (s *Scheduler) After(d time.Duration, fn Func) EventID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.push(&event{at: s.now + d, fn: fn})
}

// Repeat queues fn at start, start+interval, start+2*interval, ... until cancelled.
// Occurrence n is computed as start + n*interval so errors never accumulate.
func (s *Scheduler) Repeat(start, interval time.Duration, fn RepeatFunc) EventID {
	if interval <= 0 {
		interval = time.Millisecond
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.push(&event{at: start, repeat: fn, start: start, interval: interval})
}

// Cancel removes a pending event. It reports whether the event was still pending.
func (s *Scheduler) Cancel(id EventID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok {
		return false
	}
	delete(s.byID, id)
	if e.index >= 0 {
		heap.Remove(&s.queue, e.index)
	}
	return true
}

// CancelAll drops every pending event
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = nil
	s.byID = make(map[EventID]*event)
}

// Pending returns the number of queued events
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Next returns the time of the earliest pending event
func (s *Scheduler) Next() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return 0, false
	}
	return s.queue[0].at, true
}

// AdvanceTo fires every event due at or before t, in order, then sets the clock to t.
// Callbacks run without the scheduler lock held, so they may schedule or cancel events.
// The clock never moves backwards.
func (s *Scheduler) AdvanceTo(t time.Duration) int {
	fired := 0
	for {
		s.mu.Lock()
		if len(s.queue) == 0 || s.queue[0].at > t {
			if t > s.now {
				s.now = t
			}
			s.mu.Unlock()
			return fired
		}

		e := heap.Pop(&s.queue).(*event)
		if e.at > s.now {
			s.now = e.at
		}

		var fn func()
		if e.repeat != nil {
			at, n, cb := e.at, e.n, e.repeat
			fn = func() { cb(at, n) }

			// requeue the next occurrence under the same id
			e.n++
			e.at = e.start + time.Duration(e.n)*e.interval
			s.seq++
			e.seq = s.seq
			heap.Push(&s.queue, e)
		} else {
			delete(s.byID, e.id)
			at, cb := e.at, e.fn
			fn = func() { cb(at) }
		}
		s.mu.Unlock()

		fn()
		fired++
	}
}

// Advance moves the clock forward by d
func (s *Scheduler) Advance(d time.Duration) int {
	return s.AdvanceTo(s.Now() + d)
}
