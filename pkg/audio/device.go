// Package audio plays beats and soundscapes on the system output through oto
package audio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/james-see/beatgrid/pkg/converter"
	"github.com/james-see/beatgrid/pkg/sequencer"
	"github.com/james-see/beatgrid/pkg/soundscape"
)

// DefaultBufferSize is the output buffer length requested from the driver
const DefaultBufferSize = 40 * time.Millisecond

// Device is the oto output. It implements sequencer.Backend for the step
// engine and transport.Clock for the scheduler, with one mixer player
// carrying every drum voice.
type Device struct {
	ctx    *oto.Context
	ready  chan struct{}
	mixer  *Mixer
	logger *slog.Logger

	sampleRate int

	mu      sync.Mutex
	player  *oto.Player
	streams []*Stream
}

// Open creates the oto context. Only one Device may exist per process.
func Open(kit converter.Kit, sampleRate int, logger *slog.Logger) (*Device, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   DefaultBufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open audio output: %w", err)
	}
	return &Device{
		ctx:        ctx,
		ready:      ready,
		mixer:      NewMixer(kit, sampleRate),
		logger:     logger,
		sampleRate: sampleRate,
	}, nil
}

func (d *Device) isReady() bool {
	select {
	case <-d.ready:
		return true
	default:
		return false
	}
}

// Unlock waits for the driver and starts the mixer player
func (d *Device) Unlock(ctx context.Context) error {
	select {
	case <-d.ready:
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", sequencer.ErrAudioLocked, ctx.Err())
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player == nil {
		d.player = d.ctx.NewPlayer(d.mixer)
		d.player.Play()
		d.logger.Debug("audio output started", "sampleRate", d.sampleRate)
	}
	return nil
}

// NewVoices implements sequencer.Backend
func (d *Device) NewVoices() (sequencer.Voices, error) {
	if !d.isReady() {
		return nil, sequencer.ErrAudioLocked
	}
	return &voicePool{mixer: d.mixer}, nil
}

// Preview sounds one lane right away
func (d *Device) Preview(lane int) error {
	if !d.isReady() {
		return sequencer.ErrAudioLocked
	}
	if err := d.Unlock(context.Background()); err != nil {
		return err
	}
	d.mixer.triggerNow(lane)
	return nil
}

// Now implements transport.Clock. It stands still until the output starts.
func (d *Device) Now() time.Duration {
	return d.mixer.Now()
}

// Mixer returns the drum mixer
func (d *Device) Mixer() *Mixer {
	return d.mixer
}

// Loader returns a soundscape loader decoding MP3 and WAV tracks for this device
func (d *Device) Loader() soundscape.Loader {
	return soundscape.LoaderFunc(func(ctx context.Context, path string) (soundscape.Stream, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pcm, err := DecodeFile(path, d.sampleRate)
		if err != nil {
			return nil, err
		}
		src := NewLoopReader(pcm)
		s := &Stream{device: d, src: src, player: d.ctx.NewPlayer(src)}

		d.mu.Lock()
		d.streams = append(d.streams, s)
		d.mu.Unlock()
		d.logger.Debug("loaded soundscape track", "path", path, "bytes", len(pcm))
		return s, nil
	})
}

// Close pauses every player
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player != nil {
		d.player.Pause()
	}
	for _, s := range d.streams {
		s.player.Pause()
	}
	return nil
}

// Stream is one decoded soundscape track on its own oto player
type Stream struct {
	device *Device
	src    *LoopReader
	player *oto.Player
}

// Play starts or resumes the track
func (s *Stream) Play() error {
	if !s.device.isReady() {
		return sequencer.ErrAudioLocked
	}
	s.player.Play()
	return nil
}

// Pause stops the track where it is
func (s *Stream) Pause() {
	s.player.Pause()
}

// Rewind seeks back to the start
func (s *Stream) Rewind() error {
	_, err := s.player.Seek(0, io.SeekStart)
	return err
}

// SetVolume sets the player volume within 0..1
func (s *Stream) SetVolume(v float64) {
	s.player.SetVolume(v)
}

// Volume returns the player volume
func (s *Stream) Volume() float64 {
	return s.player.Volume()
}

// IsPlaying reports whether the player is running
func (s *Stream) IsPlaying() bool {
	return s.player.IsPlaying()
}

// SetLoop turns wrapping at the end of the track on or off
func (s *Stream) SetLoop(loop bool) {
	s.src.SetLoop(loop)
}

var (
	_ sequencer.Backend = (*Device)(nil)
	_ soundscape.Stream = (*Stream)(nil)
)
