package sequencer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/james-see/beatgrid/pkg/pattern"
)

// ErrAudioLocked is returned by a backend whose output has not been unlocked yet
var ErrAudioLocked = errors.New("audio output is locked")

// Backend is the audio output the engine plays through
type Backend interface {
	// Unlock prepares the output device. It may block until the device is ready
	// and fails when no output is available.
	Unlock(ctx context.Context) error
	// NewVoices allocates the voice pool for one playback session
	NewVoices() (Voices, error)
	// Preview plays a lane's sample once, immediately
	Preview(lane int) error
}

// Voices is the sample-trigger pool owned by one playback session
type Voices interface {
	// Start triggers the lane's sample at the given transport time
	Start(lane int, at time.Duration)
	// Dispose drops voices that have not started yet; sounding voices finish naturally
	Dispose()
}

// Slot is the engine's live pattern cell. Each tick loads it, so a Store is
// heard from the next step boundary onward.
type Slot struct {
	mu sync.RWMutex
	p  pattern.Pattern
}

// NewSlot creates a slot holding p
func NewSlot(p pattern.Pattern) *Slot {
	return &Slot{p: p}
}

// Load returns the current pattern
func (s *Slot) Load() pattern.Pattern {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.p
}

// Store replaces the pattern
func (s *Slot) Store(p pattern.Pattern) {
	s.mu.Lock()
	s.p = p
	s.mu.Unlock()
}
