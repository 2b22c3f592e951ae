package soundscape

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/james-see/beatgrid/pkg/transport"
)

type fakeStream struct {
	playing  bool
	position time.Duration
	volume   float64
	loop     bool
	volumes  []float64
}

func (s *fakeStream) Play() error {
	s.playing = true
	return nil
}
func (s *fakeStream) Pause() { s.playing = false }
func (s *fakeStream) Rewind() error {
	s.position = 0
	return nil
}
func (s *fakeStream) SetVolume(v float64) {
	s.volume = v
	s.volumes = append(s.volumes, v)
}
func (s *fakeStream) Volume() float64 { return s.volume }
func (s *fakeStream) IsPlaying() bool { return s.playing }
func (s *fakeStream) SetLoop(loop bool) { s.loop = loop }

type fakeLoader struct {
	streams map[string]*fakeStream
	loads   int
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{streams: make(map[string]*fakeStream)}
}

func (l *fakeLoader) Load(ctx context.Context, path string) (Stream, error) {
	if path == "missing.mp3" {
		return nil, errors.New("not found")
	}
	l.loads++
	s := &fakeStream{position: 42 * time.Second}
	l.streams[path] = s
	return s, nil
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestForceStopSwitch(t *testing.T) {
	loader := newFakeLoader()
	sched := transport.NewScheduler()
	c := New(loader, sched)
	ctx := context.Background()

	if err := c.Play(ctx, "a.mp3", Options{ForceStop: true}); err != nil {
		t.Fatalf("Play(a) error = %v", err)
	}
	sched.Advance(300 * time.Millisecond)
	loader.streams["a.mp3"].position = 12 * time.Second

	if err := c.Play(ctx, "b.mp3", Options{ForceStop: true}); err != nil {
		t.Fatalf("Play(b) error = %v", err)
	}

	a, b := loader.streams["a.mp3"], loader.streams["b.mp3"]
	if a.playing {
		t.Error("a is still playing after force-stop")
	}
	if a.position != 0 {
		t.Errorf("a position = %v, want 0", a.position)
	}
	if !b.playing {
		t.Error("b is not playing")
	}
	if c.Current() != "b.mp3" {
		t.Errorf("Current() = %q, want b.mp3", c.Current())
	}

	// a must stay silent even as the scheduler keeps running
	sched.Advance(5 * time.Second)
	if a.playing || a.volume != 0 {
		t.Errorf("a playing=%v volume=%v after switch", a.playing, a.volume)
	}
}

func TestPlayFadesIn(t *testing.T) {
	loader := newFakeLoader()
	sched := transport.NewScheduler()
	c := New(loader, sched, WithVolume(0.8))

	if err := c.Play(context.Background(), "amb.mp3", Options{Loop: true}); err != nil {
		t.Fatal(err)
	}
	s := loader.streams["amb.mp3"]
	if s.volume != 0 {
		t.Errorf("initial volume = %v, want 0", s.volume)
	}
	if !s.loop {
		t.Error("loop flag not passed to stream")
	}

	sched.AdvanceTo(FadeInDuration / 2)
	if !approx(s.volume, 0.4) {
		t.Errorf("volume halfway = %v, want 0.4", s.volume)
	}

	sched.AdvanceTo(FadeInDuration)
	if !approx(s.volume, 0.8) {
		t.Errorf("volume after fade = %v, want 0.8", s.volume)
	}
	if sched.Pending() != 0 {
		t.Errorf("Pending() = %d after fade-in, want 0", sched.Pending())
	}

	// discrete, non-decreasing steps
	for i := 1; i < len(s.volumes); i++ {
		if s.volumes[i] < s.volumes[i-1] {
			t.Errorf("fade-in went down at step %d: %v", i, s.volumes)
			break
		}
	}
}

func TestFadeOutOnSwitch(t *testing.T) {
	loader := newFakeLoader()
	sched := transport.NewScheduler()
	c := New(loader, sched, WithVolume(1))
	ctx := context.Background()

	c.Play(ctx, "a.mp3", Options{})
	sched.AdvanceTo(FadeInDuration)
	c.Play(ctx, "b.mp3", Options{})

	a := loader.streams["a.mp3"]
	if !a.playing {
		t.Error("a stopped immediately, want a fade-out")
	}

	sched.Advance(FadeOutDuration / 2)
	if !approx(a.volume, 0.5) {
		t.Errorf("a volume halfway through fade-out = %v, want 0.5", a.volume)
	}

	sched.Advance(FadeOutDuration / 2)
	if a.playing || a.position != 0 || a.volume != 0 {
		t.Errorf("after fade-out a playing=%v position=%v volume=%v", a.playing, a.position, a.volume)
	}
	if !loader.streams["b.mp3"].playing {
		t.Error("b is not playing")
	}
}

func TestMuteKeepsPlaying(t *testing.T) {
	loader := newFakeLoader()
	sched := transport.NewScheduler()
	c := New(loader, sched, WithVolume(0.6))

	c.Play(context.Background(), "a.mp3", Options{})
	sched.AdvanceTo(FadeInDuration)
	s := loader.streams["a.mp3"]

	c.SetMuted(true)
	if s.volume != 0 || !s.playing {
		t.Errorf("muted: volume=%v playing=%v, want 0 and true", s.volume, s.playing)
	}
	if !c.Muted() {
		t.Error("Muted() = false")
	}

	c.SetVolume(0.3)
	if s.volume != 0 {
		t.Errorf("volume change while muted made stream audible: %v", s.volume)
	}

	c.SetMuted(false)
	if !approx(s.volume, 0.3) {
		t.Errorf("unmuted volume = %v, want 0.3", s.volume)
	}

	c.SetVolume(5)
	if c.Volume() != 1 {
		t.Errorf("Volume() = %v, want clamped 1", c.Volume())
	}
}

func TestStopAllImmediately(t *testing.T) {
	loader := newFakeLoader()
	sched := transport.NewScheduler()
	c := New(loader, sched)

	c.StopAllImmediately() // nothing loaded

	c.Play(context.Background(), "a.mp3", Options{})
	c.Play(context.Background(), "b.mp3", Options{})
	c.StopAllImmediately()

	for path, s := range loader.streams {
		if s.playing || s.position != 0 {
			t.Errorf("%s playing=%v position=%v after StopAllImmediately", path, s.playing, s.position)
		}
	}
	if sched.Pending() != 0 {
		t.Errorf("Pending() = %d, want no fades left", sched.Pending())
	}
	if c.Current() != "" {
		t.Errorf("Current() = %q, want empty", c.Current())
	}
}

func TestStreamsAreCached(t *testing.T) {
	loader := newFakeLoader()
	c := New(loader, transport.NewScheduler())
	ctx := context.Background()

	c.Play(ctx, "a.mp3", Options{ForceStop: true})
	c.Play(ctx, "b.mp3", Options{ForceStop: true})
	c.Play(ctx, "a.mp3", Options{ForceStop: true})
	c.Play(ctx, "a.mp3", Options{ForceStop: true})

	if loader.loads != 2 {
		t.Errorf("loads = %d, want 2", loader.loads)
	}
}

func TestPlayLoadError(t *testing.T) {
	loader := newFakeLoader()
	c := New(loader, transport.NewScheduler())

	c.Play(context.Background(), "a.mp3", Options{})
	if err := c.Play(context.Background(), "missing.mp3", Options{}); err == nil {
		t.Error("Play() of a missing track should fail")
	}
	if c.Current() != "a.mp3" {
		t.Errorf("Current() = %q, failed load should keep a.mp3", c.Current())
	}
}

func TestFadeOutByPath(t *testing.T) {
	loader := newFakeLoader()
	sched := transport.NewScheduler()
	c := New(loader, sched)

	if c.FadeOut("nothing.mp3") {
		t.Error("FadeOut() = true for an unloaded track")
	}

	c.Play(context.Background(), "a.mp3", Options{})
	sched.AdvanceTo(FadeInDuration)
	if !c.FadeOut("a.mp3") {
		t.Fatal("FadeOut() = false")
	}
	sched.Advance(FadeOutDuration)
	if s := loader.streams["a.mp3"]; s.playing {
		t.Error("a still playing after FadeOut")
	}

	// a faded track comes back from the cache on the next Play
	if err := c.Play(context.Background(), "a.mp3", Options{}); err != nil {
		t.Fatal(err)
	}
	sched.Advance(FadeInDuration)
	if s := loader.streams["a.mp3"]; !s.playing || !approx(s.volume, DefaultVolume) {
		t.Errorf("after replay playing=%v volume=%v", s.playing, s.volume)
	}
	if loader.loads != 1 {
		t.Errorf("loads = %d, want 1", loader.loads)
	}
}

func TestClose(t *testing.T) {
	loader := newFakeLoader()
	c := New(loader, transport.NewScheduler())
	c.Play(context.Background(), "a.mp3", Options{})
	c.Close()

	if loader.streams["a.mp3"].playing {
		t.Error("stream playing after Close()")
	}
	if err := c.Play(context.Background(), "a.mp3", Options{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Play() after Close() error = %v, want ErrClosed", err)
	}
}
