package sequencer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/james-see/beatgrid/pkg/pattern"
	"github.com/james-see/beatgrid/pkg/transport"
)

type trigger struct {
	lane int
	at   time.Duration
}

type fakeVoices struct {
	backend  *fakeBackend
	disposed bool
}

func (v *fakeVoices) Start(lane int, at time.Duration) {
	v.backend.mu.Lock()
	defer v.backend.mu.Unlock()
	if v.disposed {
		return
	}
	v.backend.starts = append(v.backend.starts, trigger{lane, at})
}

func (v *fakeVoices) Dispose() {
	v.backend.mu.Lock()
	defer v.backend.mu.Unlock()
	v.disposed = true
	v.backend.disposed++
}

type fakeBackend struct {
	mu        sync.Mutex
	unlockErr error
	starts    []trigger
	previews  []int
	pools     int
	disposed  int
}

func (b *fakeBackend) Unlock(ctx context.Context) error { return b.unlockErr }

func (b *fakeBackend) NewVoices() (Voices, error) {
	b.mu.Lock()
	b.pools++
	b.mu.Unlock()
	return &fakeVoices{backend: b}, nil
}

func (b *fakeBackend) Preview(lane int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.previews = append(b.previews, lane)
	return nil
}

func newTestEngine(b *fakeBackend) (*Engine, *transport.Scheduler, *[]int) {
	sched := transport.NewScheduler()
	var steps []int
	e := New(b, sched, WithStepObserver(func(step int) { steps = append(steps, step) }))
	return e, sched, &steps
}

func TestOneShotSingleNote(t *testing.T) {
	b := &fakeBackend{}
	e, sched, steps := newTestEngine(b)
	p, _ := pattern.New().Set(0, 0, true)

	completions := 0
	ok := e.Play(context.Background(), p, PlayOptions{BPM: 120, OnComplete: func() { completions++ }})
	if !ok {
		t.Fatal("Play() = false, want true")
	}
	if !e.IsPlaying() {
		t.Error("IsPlaying() = false after Play()")
	}

	sched.Advance(10 * time.Second)

	if len(b.starts) != 1 {
		t.Fatalf("sample starts = %d, want 1", len(b.starts))
	}
	if b.starts[0] != (trigger{lane: 0, at: 0}) {
		t.Errorf("start = %+v, want lane 0 at 0", b.starts[0])
	}
	if completions != 1 {
		t.Errorf("OnComplete called %d times, want 1", completions)
	}

	want := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, NoStep}
	if len(*steps) != len(want) {
		t.Fatalf("steps = %v, want %v", *steps, want)
	}
	for i := range want {
		if (*steps)[i] != want[i] {
			t.Errorf("steps[%d] = %d, want %d", i, (*steps)[i], want[i])
		}
	}

	if e.IsPlaying() || e.ActiveStep() != NoStep {
		t.Errorf("after completion IsPlaying() = %v ActiveStep() = %d", e.IsPlaying(), e.ActiveStep())
	}
	if sched.Pending() != 0 {
		t.Errorf("Pending() = %d after completion, want 0", sched.Pending())
	}
}

func TestOneShotCompletesAfterFullBar(t *testing.T) {
	b := &fakeBackend{}
	e, sched, _ := newTestEngine(b)

	done := false
	e.Play(context.Background(), pattern.New(), PlayOptions{BPM: 120, OnComplete: func() { done = true }})

	// 16 steps of 125ms
	sched.AdvanceTo(2*time.Second - time.Nanosecond)
	if done {
		t.Error("OnComplete called before the bar ended")
	}
	sched.AdvanceTo(2 * time.Second)
	if !done {
		t.Error("OnComplete not called at the end of the bar")
	}
}

func TestTickTimesAreAbsolute(t *testing.T) {
	b := &fakeBackend{}
	e, sched, _ := newTestEngine(b)

	p := pattern.New()
	for c := 0; c < pattern.Cols; c++ {
		p, _ = p.Set(0, c, true)
	}
	p, _ = p.Set(3, 5, true)

	sched.AdvanceTo(time.Second) // origin is not zero
	e.Play(context.Background(), p, PlayOptions{BPM: 90, Loop: true})

	// advance irregularly
	for i := 0; i < 50; i++ {
		sched.Advance(time.Duration(17+i%5) * time.Millisecond)
	}

	step := pattern.StepDuration(90)
	var kicks []time.Duration
	for _, s := range b.starts {
		if s.lane == 0 {
			kicks = append(kicks, s.at)
		}
	}
	if len(kicks) < 6 {
		t.Fatalf("only %d kicks triggered", len(kicks))
	}
	for n, at := range kicks {
		if want := time.Second + time.Duration(n)*step; at != want {
			t.Errorf("tick %d at %v, want %v", n, at, want)
		}
	}

	// lanes on the same step share the scheduled time
	for _, s := range b.starts {
		if s.lane == 3 && s.at != kicks[5] {
			t.Errorf("lane 3 at %v, want %v", s.at, kicks[5])
		}
	}
}

func TestLivePatternUpdate(t *testing.T) {
	b := &fakeBackend{}
	sched := transport.NewScheduler()

	var e *Engine
	e = New(b, sched, WithStepObserver(func(step int) {
		if step == 3 {
			p, _ := pattern.New().Set(1, 4, true)
			if !e.UpdatePattern(p) {
				t.Error("UpdatePattern() = false while playing")
			}
		}
	}))

	e.Play(context.Background(), pattern.New(), PlayOptions{BPM: 120, Loop: true})
	sched.AdvanceTo(3 * pattern.StepDuration(120))
	if len(b.starts) != 0 {
		t.Fatalf("starts = %v before tick 4, want none", b.starts)
	}

	sched.AdvanceTo(4 * pattern.StepDuration(120))
	if len(b.starts) != 1 {
		t.Fatalf("starts = %v, want one trigger at tick 4", b.starts)
	}
	if got := b.starts[0]; got.lane != 1 || got.at != 4*pattern.StepDuration(120) {
		t.Errorf("trigger = %+v, want lane 1 at tick 4", got)
	}

	// still looping: the next bar plays it again
	sched.AdvanceTo(pattern.BarDuration(120) + 4*pattern.StepDuration(120))
	if len(b.starts) != 2 {
		t.Errorf("starts = %d after second bar, want 2", len(b.starts))
	}
	e.Stop()
}

func TestStop(t *testing.T) {
	b := &fakeBackend{}
	e, sched, steps := newTestEngine(b)
	p, _ := pattern.New().Set(0, 8, true)

	completions := 0
	e.Play(context.Background(), p, PlayOptions{BPM: 120, OnComplete: func() { completions++ }})
	sched.AdvanceTo(3 * pattern.StepDuration(120))

	e.Stop()
	if e.IsPlaying() || e.ActiveStep() != NoStep {
		t.Errorf("after Stop() IsPlaying() = %v ActiveStep() = %d", e.IsPlaying(), e.ActiveStep())
	}
	if sched.Pending() != 0 {
		t.Errorf("Pending() = %d after Stop(), want 0", sched.Pending())
	}
	if b.disposed != 1 {
		t.Errorf("voice pools disposed = %d, want 1", b.disposed)
	}

	n := len(*steps)
	e.Stop()
	e.Stop()
	if len(*steps) != n {
		t.Error("Stop() while idle notified the observer")
	}
	if b.disposed != 1 {
		t.Errorf("voice pools disposed = %d after repeated Stop(), want 1", b.disposed)
	}

	sched.Advance(10 * time.Second)
	if len(b.starts) != 0 {
		t.Errorf("starts = %v after Stop(), want none", b.starts)
	}
	if completions != 0 {
		t.Errorf("OnComplete called %d times after Stop(), want 0", completions)
	}
}

func TestPlayWhileLocked(t *testing.T) {
	b := &fakeBackend{unlockErr: ErrAudioLocked}
	e, sched, steps := newTestEngine(b)

	if e.Play(context.Background(), pattern.New(), PlayOptions{}) {
		t.Error("Play() = true with locked audio")
	}
	if e.IsPlaying() || e.ActiveStep() != NoStep {
		t.Error("engine left idle state after failed Play()")
	}
	if sched.Pending() != 0 || len(*steps) != 0 || b.pools != 0 {
		t.Error("failed Play() scheduled work")
	}

	// retry after the gesture
	b.unlockErr = nil
	if !e.Play(context.Background(), pattern.New(), PlayOptions{Loop: true}) {
		t.Error("Play() = false after unlock")
	}
	e.Close()
}

func TestReentrantPlay(t *testing.T) {
	b := &fakeBackend{}
	e, sched, _ := newTestEngine(b)
	p, _ := pattern.New().Set(2, 0, true)

	first := 0
	e.Play(context.Background(), p, PlayOptions{BPM: 120, OnComplete: func() { first++ }})
	sched.AdvanceTo(pattern.StepDuration(120))
	e.Play(context.Background(), p, PlayOptions{BPM: 120, Loop: true})

	if b.pools != 2 || b.disposed != 1 {
		t.Errorf("pools = %d disposed = %d, want 2 and 1", b.pools, b.disposed)
	}
	if sched.Pending() != 1 {
		t.Errorf("Pending() = %d, want only the new session's ticks", sched.Pending())
	}

	sched.Advance(5 * time.Second)
	if first != 0 {
		t.Errorf("replaced session completed %d times", first)
	}
	e.Stop()
}

func TestPlayStep(t *testing.T) {
	b := &fakeBackend{}
	e, sched, steps := newTestEngine(b)

	if err := e.PlayStep(6); err != nil {
		t.Fatalf("PlayStep() error = %v", err)
	}
	if len(b.previews) != 1 || b.previews[0] != 6 {
		t.Errorf("previews = %v, want [6]", b.previews)
	}
	if e.IsPlaying() || sched.Pending() != 0 || len(*steps) != 0 {
		t.Error("PlayStep() touched the transport")
	}

	if err := e.PlayStep(7); !errors.Is(err, pattern.ErrOutOfRange) {
		t.Errorf("PlayStep(7) error = %v, want ErrOutOfRange", err)
	}
}

func TestUpdatePatternWhileIdle(t *testing.T) {
	e, _, _ := newTestEngine(&fakeBackend{})
	if e.UpdatePattern(pattern.New()) {
		t.Error("UpdatePattern() = true while idle")
	}
}

func TestClose(t *testing.T) {
	b := &fakeBackend{}
	e, _, _ := newTestEngine(b)
	e.Play(context.Background(), pattern.New(), PlayOptions{Loop: true})
	e.Close()
	if e.IsPlaying() {
		t.Error("IsPlaying() = true after Close()")
	}
	if e.Play(context.Background(), pattern.New(), PlayOptions{}) {
		t.Error("Play() = true after Close()")
	}
}

func TestSlot(t *testing.T) {
	p, _ := pattern.New().Set(4, 4, true)
	s := NewSlot(pattern.New())
	s.Store(p)
	if s.Load() != p {
		t.Error("Load() did not return the stored pattern")
	}
}
