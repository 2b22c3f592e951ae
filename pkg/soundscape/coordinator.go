// Package soundscape keeps a single ambient track playing behind the sequencer,
// fading between tracks when the player moves around.
package soundscape

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/james-see/beatgrid/pkg/transport"
)

// Fade timing
const (
	FadeStep        = 50 * time.Millisecond
	FadeInDuration  = 2 * time.Second
	FadeOutDuration = 1 * time.Second
	DefaultVolume   = 0.5
)

// ErrClosed is returned by Play after Close
var ErrClosed = errors.New("soundscape coordinator closed")

// Stream is one loaded long-form track
type Stream interface {
	Play() error
	Pause()
	// Rewind seeks back to the start
	Rewind() error
	SetVolume(v float64)
	Volume() float64
	IsPlaying() bool
	SetLoop(loop bool)
}

// Loader opens the stream for a resource path
type Loader interface {
	Load(ctx context.Context, path string) (Stream, error)
}

// LoaderFunc adapts a function to Loader
type LoaderFunc func(ctx context.Context, path string) (Stream, error)

// Load calls f
func (f LoaderFunc) Load(ctx context.Context, path string) (Stream, error) {
	return f(ctx, path)
}

// Options controls how Play replaces the current track
type Options struct {
	// ForceStop halts the previous track at once instead of fading it out
	ForceStop bool
	Loop      bool
}

type entry struct {
	path   string
	stream Stream
	level  float64 // fade level 0..1
	fadeID transport.EventID
}

// Coordinator owns the current ambient stream and every cached one
type Coordinator struct {
	loader Loader
	sched  *transport.Scheduler
	logger *slog.Logger

	mu      sync.Mutex
	cache   map[string]*entry
	current *entry
	muted   bool
	volume  float64
	closed  bool
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithLogger sets the coordinator's logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithVolume sets the initial volume
func WithVolume(v float64) Option {
	return func(c *Coordinator) {
		c.volume = clamp01(v)
	}
}

// WithMuted sets the initial mute state
func WithMuted(muted bool) Option {
	return func(c *Coordinator) {
		c.muted = muted
	}
}

// New creates a coordinator that loads tracks with loader and fades on sched
func New(loader Loader, sched *transport.Scheduler, opts ...Option) *Coordinator {
	c := &Coordinator{
		loader: loader,
		sched:  sched,
		logger: slog.Default(),
		cache:  make(map[string]*entry),
		volume: DefaultVolume,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func (c *Coordinator) gain(e *entry) float64 {
	if c.muted {
		return 0
	}
	return c.volume * e.level
}

func (c *Coordinator) apply(e *entry) {
	e.stream.SetVolume(c.gain(e))
}

func (c *Coordinator) cancelFade(e *entry) {
	if e.fadeID != 0 {
		c.sched.Cancel(e.fadeID)
		e.fadeID = 0
	}
}

// halt pauses and rewinds a stream right away
func (c *Coordinator) halt(e *entry) {
	c.cancelFade(e)
	e.stream.Pause()
	if err := e.stream.Rewind(); err != nil {
		c.logger.Warn("soundscape rewind failed", "path", e.path, "error", err)
	}
	e.level = 0
	c.apply(e)
}

func (c *Coordinator) entry(ctx context.Context, path string) (*entry, error) {
	c.mu.Lock()
	e, ok := c.cache[path]
	c.mu.Unlock()
	if ok {
		return e, nil
	}

	stream, err := c.loader.Load(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load soundscape %s: %w", path, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.cache[path]; ok {
		return existing, nil
	}
	e = &entry{path: path, stream: stream}
	c.cache[path] = e
	c.logger.Debug("soundscape cached", "path", path)
	return e, nil
}

// Play makes path the current soundscape. The previous one fades out, or stops
// at once with ForceStop. The new track starts from the beginning and fades in.
// Playing the track that is already current does nothing.
func (c *Coordinator) Play(ctx context.Context, path string, opts Options) error {
	e, err := c.entry(ctx, path)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	if prev := c.current; prev != nil {
		if prev == e && e.stream.IsPlaying() {
			e.stream.SetLoop(opts.Loop)
			return nil
		}
		if prev != e {
			if opts.ForceStop {
				c.halt(prev)
			} else {
				c.fadeOut(prev)
			}
		}
	}

	c.halt(e)
	e.stream.SetLoop(opts.Loop)
	c.current = e
	if err := e.stream.Play(); err != nil {
		c.current = nil
		return fmt.Errorf("failed to play soundscape %s: %w", path, err)
	}
	c.fadeIn(e)
	return nil
}

// fadeIn ramps the entry from silence to full level in FadeStep increments
func (c *Coordinator) fadeIn(e *entry) {
	c.cancelFade(e)
	steps := int(FadeInDuration / FadeStep)
	e.level = 0
	c.apply(e)

	var id transport.EventID
	id = c.sched.Repeat(c.sched.Now()+FadeStep, FadeStep, func(_ time.Duration, n int) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if e.fadeID != id {
			return
		}
		e.level = float64(n+1) / float64(steps)
		if n+1 >= steps {
			e.level = 1
			c.cancelFade(e)
		}
		c.apply(e)
	})
	e.fadeID = id
}

// fadeOut ramps the entry from its current level to silence, then pauses and rewinds it
func (c *Coordinator) fadeOut(e *entry) {
	c.cancelFade(e)
	if !e.stream.IsPlaying() {
		c.halt(e)
		return
	}
	steps := int(FadeOutDuration / FadeStep)
	from := e.level

	var id transport.EventID
	id = c.sched.Repeat(c.sched.Now()+FadeStep, FadeStep, func(_ time.Duration, n int) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if e.fadeID != id {
			return
		}
		if n+1 >= steps {
			c.halt(e)
			return
		}
		e.level = from * (1 - float64(n+1)/float64(steps))
		c.apply(e)
	})
	e.fadeID = id
}

// FadeOut fades a cached track to silence, then pauses and rewinds it.
// It reports whether the track is loaded.
func (c *Coordinator) FadeOut(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.cache[path]
	if !ok {
		return false
	}
	if c.current == e {
		c.current = nil
	}
	c.fadeOut(e)
	return true
}

// SetMuted zeroes or restores the gain of every stream without stopping playback
func (c *Coordinator) SetMuted(muted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.muted = muted
	for _, e := range c.cache {
		c.apply(e)
	}
}

// Muted reports the mute state
func (c *Coordinator) Muted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

// SetVolume sets the master level (clamped to 0..1) on every stream
func (c *Coordinator) SetVolume(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.volume = clamp01(v)
	for _, e := range c.cache {
		c.apply(e)
	}
}

// Volume returns the master level
func (c *Coordinator) Volume() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volume
}

// StopAllImmediately pauses and rewinds every cached stream and cancels any fade
func (c *Coordinator) StopAllImmediately() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.cache {
		c.halt(e)
	}
	c.current = nil
}

// Current returns the path of the current soundscape, or ""
func (c *Coordinator) Current() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return ""
	}
	return c.current.path
}

// Close stops everything and drops the cache
func (c *Coordinator) Close() {
	c.StopAllImmediately()
	c.mu.Lock()
	c.cache = make(map[string]*entry)
	c.closed = true
	c.mu.Unlock()
}
