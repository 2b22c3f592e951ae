// Package sequencer drives a beatgrid pattern through an audio backend in time
// with the transport.
package sequencer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/james-see/beatgrid/pkg/pattern"
	"github.com/james-see/beatgrid/pkg/transport"
)

// NoStep is the active step while the engine is idle
const NoStep = -1

// PlayOptions configures one playback session
type PlayOptions struct {
	BPM  int
	Loop bool
	// OnComplete is called once when a non-looping pass finishes on its own.
	// It is not called when playback is stopped.
	OnComplete func()
}

// Option configures an Engine
type Option func(*Engine)

// WithStepObserver registers a callback for active-step changes. It receives
// 0..15 on each tick and NoStep when playback ends.
func WithStepObserver(fn func(step int)) Option {
	return func(e *Engine) {
		e.observer = fn
	}
}

// WithLogger sets the engine's logger
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

type session struct {
	slot       *Slot
	loop       bool
	onComplete func()
	voices     Voices
	origin     time.Duration
	step       time.Duration
	repeatID   transport.EventID
	doneID     transport.EventID
	done       bool
}

// Engine is the step sequencer. It owns at most one playback session.
type Engine struct {
	backend  Backend
	sched    *transport.Scheduler
	observer func(step int)
	logger   *slog.Logger

	mu      sync.Mutex
	session *session
	active  int
	epoch   uint64
	closed  bool
}

// New creates an idle engine that schedules on sched and plays through backend
func New(backend Backend, sched *transport.Scheduler, opts ...Option) *Engine {
	e := &Engine{
		backend: backend,
		sched:   sched,
		logger:  slog.Default(),
		active:  NoStep,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Play starts a new session with p, replacing any current one. It returns
// false, leaving the engine idle, when the audio output is unavailable; the
// caller may retry on the next user gesture.
func (e *Engine) Play(ctx context.Context, p pattern.Pattern, opts PlayOptions) bool {
	e.Stop()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	epoch := e.epoch
	e.mu.Unlock()

	if err := e.backend.Unlock(ctx); err != nil {
		e.logger.Warn("audio output unavailable, playback not started", "error", err)
		return false
	}
	voices, err := e.backend.NewVoices()
	if err != nil {
		e.logger.Warn("could not allocate voices, playback not started", "error", err)
		return false
	}

	bpm := opts.BPM
	if bpm == 0 {
		bpm = pattern.DefaultBPM
	}
	bpm = pattern.ClampBPM(bpm)

	e.mu.Lock()
	defer e.mu.Unlock()

	// a Stop or another Play ran while the output was unlocking
	if e.closed || e.epoch != epoch || e.session != nil {
		voices.Dispose()
		return false
	}

	s := &session{
		slot:       NewSlot(p),
		loop:       opts.Loop,
		onComplete: opts.OnComplete,
		voices:     voices,
		origin:     e.sched.Now(),
		step:       pattern.StepDuration(bpm),
	}
	s.repeatID = e.sched.Repeat(s.origin, s.step, func(at time.Duration, n int) {
		e.tick(s, at, n)
	})
	e.session = s

	e.logger.Debug("playback started", "bpm", bpm, "loop", opts.Loop, "notes", p.CountNotes())
	return true
}

// tick plays column n%16 of the live pattern at the tick's scheduled time
func (e *Engine) tick(s *session, at time.Duration, n int) {
	e.mu.Lock()
	if e.session != s {
		e.mu.Unlock()
		return
	}

	col := n % pattern.Cols
	e.active = col

	p := s.slot.Load()
	for row := 0; row < pattern.Rows; row++ {
		if p[row][col] {
			s.voices.Start(row, at)
		}
	}

	if !s.loop && n == pattern.Cols-1 {
		e.sched.Cancel(s.repeatID)
		s.doneID = e.sched.Schedule(s.origin+pattern.Cols*s.step, func(time.Duration) {
			e.complete(s)
		})
	}

	observer := e.observer
	e.mu.Unlock()

	if observer != nil {
		observer(col)
	}
}

// complete ends a one-shot session after its last step
func (e *Engine) complete(s *session) {
	e.mu.Lock()
	if e.session != s || s.done {
		e.mu.Unlock()
		return
	}
	s.done = true
	e.active = NoStep
	e.session = nil
	s.voices.Dispose()
	observer := e.observer
	e.mu.Unlock()

	e.logger.Debug("playback complete")
	if observer != nil {
		observer(NoStep)
	}
	if s.onComplete != nil {
		s.onComplete()
	}
}

// Stop cancels every pending tick, disposes the session's voices and resets
// the active step. Calling Stop while idle does nothing.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.epoch++
	s := e.session
	if s == nil {
		e.mu.Unlock()
		return
	}

	e.sched.Cancel(s.repeatID)
	if s.doneID != 0 {
		e.sched.Cancel(s.doneID)
	}
	s.done = true
	s.voices.Dispose()
	e.session = nil
	e.active = NoStep
	observer := e.observer
	e.mu.Unlock()

	e.logger.Debug("playback stopped")
	if observer != nil {
		observer(NoStep)
	}
}

// UpdatePattern swaps the live pattern. The change is heard from the next
// step boundary; steps already triggered are unaffected. It reports whether a
// session was running.
func (e *Engine) UpdatePattern(p pattern.Pattern) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return false
	}
	e.session.slot.Store(p)
	return true
}

// PlayStep previews one lane immediately, outside any session
func (e *Engine) PlayStep(lane int) error {
	if lane < 0 || lane >= pattern.Rows {
		return fmt.Errorf("%w: lane %d", pattern.ErrOutOfRange, lane)
	}
	if err := e.backend.Preview(lane); err != nil {
		e.logger.Warn("preview failed", "lane", lane, "error", err)
		return err
	}
	return nil
}

// ActiveStep returns the step being played, or NoStep
func (e *Engine) ActiveStep() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// IsPlaying reports whether a session is running
func (e *Engine) IsPlaying() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session != nil
}

// Close stops playback and rejects further Play calls
func (e *Engine) Close() {
	e.Stop()
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
}
