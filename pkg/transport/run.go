package transport

import (
	"context"
	"sync"
	"time"
)

// Default timing for Run
const (
	DefaultLookahead = 100 * time.Millisecond
	DefaultInterval  = 25 * time.Millisecond
)

// Clock reports elapsed playback time. An audio device implements it from the
// number of frames it has rendered.
type Clock interface {
	Now() time.Duration
}

// WallClock measures time since it was created
type WallClock struct {
	start time.Time
}

// NewWallClock starts a wall clock at zero
func NewWallClock() *WallClock {
	return &WallClock{start: time.Now()}
}

// Now returns the time since the clock started
func (c *WallClock) Now() time.Duration {
	return time.Since(c.start)
}

// Run advances the scheduler to clock.Now()+lookahead every interval until ctx
// is done. Events therefore fire slightly ahead of their scheduled time and
// receive that time as an argument, which the audio device honours.
func Run(ctx context.Context, s *Scheduler, clock Clock, lookahead, interval time.Duration) {
	if lookahead < 0 {
		lookahead = DefaultLookahead
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.AdvanceTo(clock.Now() + lookahead)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.AdvanceTo(clock.Now() + lookahead)
		}
	}
}

// Runner owns a background Run loop with explicit Start and Stop
type Runner struct {
	sched     *Scheduler
	clock     Clock
	lookahead time.Duration
	interval  time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRunner creates a runner that drives sched from clock
func NewRunner(sched *Scheduler, clock Clock, lookahead, interval time.Duration) *Runner {
	return &Runner{sched: sched, clock: clock, lookahead: lookahead, interval: interval}
}

// Start launches the loop. Starting a running runner is a no-op.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		Run(ctx, r.sched, r.clock, r.lookahead, r.interval)
	}(r.done)
}

// Stop ends the loop and waits for it to exit
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
