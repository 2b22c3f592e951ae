package audio

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/james-see/beatgrid/pkg/converter"
)

const testRate = 1000 // one frame per millisecond

func testKit() converter.Kit {
	var kit converter.Kit
	kit[0] = converter.Sample{Name: "kick", SampleRate: testRate, Data: []float64{0.5, 0.5}}
	kit[1] = converter.Sample{Name: "snare", SampleRate: testRate, Data: []float64{-0.5}}
	return kit
}

// readFrames renders n frames and returns the left channel
func readFrames(t *testing.T, m *Mixer, n int) []int16 {
	t.Helper()
	buf := make([]byte, n*bytesPerFrame)
	got, err := m.Read(buf)
	if err != nil || got != len(buf) {
		t.Fatalf("Read() = %d, %v, want %d", got, err, len(buf))
	}
	out := make([]int16, n)
	for i := range out {
		left := int16(binary.LittleEndian.Uint16(buf[i*bytesPerFrame:]))
		right := int16(binary.LittleEndian.Uint16(buf[i*bytesPerFrame+bytesPerSample:]))
		if left != right {
			t.Fatalf("frame %d: left %d != right %d", i, left, right)
		}
		out[i] = left
	}
	return out
}

func TestMixerStartsAtScheduledFrame(t *testing.T) {
	m := NewMixer(testKit(), testRate)
	pool := &voicePool{mixer: m}
	pool.Start(0, 3*time.Millisecond)

	hit := converter.Quantize(0.5 * converter.MixGain)
	want := []int16{0, 0, 0, hit, hit, 0, 0, 0}
	got := readFrames(t, m, 8)
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frame %d = %d, want %d", i, got[i], want[i])
		}
	}
	if now := m.Now(); now != 8*time.Millisecond {
		t.Errorf("Now() = %v, want 8ms", now)
	}
	if m.Active() != 0 {
		t.Errorf("Active() = %d after the voice finished, want 0", m.Active())
	}
}

func TestMixerVoiceSpansReads(t *testing.T) {
	m := NewMixer(testKit(), testRate)
	pool := &voicePool{mixer: m}
	pool.Start(0, 3*time.Millisecond)

	hit := converter.Quantize(0.5 * converter.MixGain)
	first := readFrames(t, m, 4)
	if first[3] != hit {
		t.Errorf("first read frame 3 = %d, want %d", first[3], hit)
	}
	second := readFrames(t, m, 4)
	if second[0] != hit || second[1] != 0 {
		t.Errorf("second read = %v, want tail at frame 0 only", second)
	}
}

func TestMixerSumsVoices(t *testing.T) {
	m := NewMixer(testKit(), testRate)
	pool := &voicePool{mixer: m}
	pool.Start(0, 0)
	pool.Start(1, 0)

	got := readFrames(t, m, 2)
	if got[0] != 0 {
		t.Errorf("frame 0 = %d, want kick and snare to cancel", got[0])
	}
	if want := converter.Quantize(0.5 * converter.MixGain); got[1] != want {
		t.Errorf("frame 1 = %d, want %d", got[1], want)
	}
}

func TestMixerLateTrigger(t *testing.T) {
	m := NewMixer(testKit(), testRate)
	readFrames(t, m, 10)

	pool := &voicePool{mixer: m}
	pool.Start(1, 2*time.Millisecond)
	got := readFrames(t, m, 2)
	if want := converter.Quantize(-0.5 * converter.MixGain); got[0] != want {
		t.Errorf("late voice frame = %d, want %d on the next frame", got[0], want)
	}
}

func TestMixerIgnoresBadLanes(t *testing.T) {
	m := NewMixer(testKit(), testRate)
	pool := &voicePool{mixer: m}
	pool.Start(-1, 0)
	pool.Start(7, 0)
	pool.Start(5, 0) // empty sample
	if m.Active() != 0 {
		t.Errorf("Active() = %d, want 0", m.Active())
	}
}

func TestVoicePoolDispose(t *testing.T) {
	m := NewMixer(testKit(), testRate)
	a := &voicePool{mixer: m}
	b := &voicePool{mixer: m}
	a.Start(0, 20*time.Millisecond)
	a.Start(0, 30*time.Millisecond)
	b.Start(1, 20*time.Millisecond)

	a.Dispose()
	if m.Active() != 1 {
		t.Fatalf("Active() after Dispose = %d, want 1", m.Active())
	}
	a.Start(0, 40*time.Millisecond)
	if m.Active() != 1 {
		t.Errorf("Start after Dispose queued a voice")
	}
}

func TestVoicePoolDisposeKeepsSounding(t *testing.T) {
	kit := testKit()
	kit[2] = converter.Sample{Data: []float64{0.25, 0.25, 0.25, 0.25}}
	m := NewMixer(kit, testRate)
	pool := &voicePool{mixer: m}
	pool.Start(2, 0)
	readFrames(t, m, 2)

	pool.Dispose()
	got := readFrames(t, m, 2)
	if got[1] == 0 {
		t.Error("Dispose cut off a voice that was already sounding")
	}
}

func TestMixerTriggerNow(t *testing.T) {
	m := NewMixer(testKit(), testRate)
	readFrames(t, m, 5)
	m.triggerNow(1)
	got := readFrames(t, m, 1)
	if got[0] == 0 {
		t.Error("triggerNow() did not sound on the next frame")
	}
}
