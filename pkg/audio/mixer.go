package audio

import (
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/james-see/beatgrid/pkg/converter"
	"github.com/james-see/beatgrid/pkg/pattern"
)

const (
	channels       = 2
	bytesPerSample = 2
	bytesPerFrame  = channels * bytesPerSample
)

// voice is one triggered sample. start is the frame at which it begins.
type voice struct {
	data  []float64
	start int64
	pos   int
	pool  *voicePool
}

// Mixer renders triggered samples into interleaved stereo int16 little-endian
// audio. It counts the frames it has produced and uses that count as the
// transport clock, so a voice scheduled for time t starts at exactly frame
// t*sampleRate regardless of when it was triggered.
type Mixer struct {
	sampleRate int
	kit        converter.Kit
	gain       float64

	mu     sync.Mutex
	frame  int64
	voices []*voice
	sum    []float64
}

// NewMixer creates a mixer for the kit at sampleRate
func NewMixer(kit converter.Kit, sampleRate int) *Mixer {
	return &Mixer{
		sampleRate: sampleRate,
		kit:        kit,
		gain:       converter.MixGain,
	}
}

// Now returns the time of the next frame to be rendered
func (m *Mixer) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frameTime(m.frame)
}

func (m *Mixer) frameTime(frame int64) time.Duration {
	return time.Duration(frame * int64(time.Second) / int64(m.sampleRate))
}

func (m *Mixer) timeFrame(at time.Duration) int64 {
	return int64(math.Round(at.Seconds() * float64(m.sampleRate)))
}

// trigger queues the lane's sample at transport time at. Late triggers start on the next frame.
func (m *Mixer) trigger(lane int, at time.Duration, pool *voicePool) {
	if lane < 0 || lane >= pattern.Rows {
		return
	}
	data := m.kit[lane].Data
	if len(data) == 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	start := m.timeFrame(at)
	if start < m.frame {
		start = m.frame
	}
	m.voices = append(m.voices, &voice{data: data, start: start, pool: pool})
}

// triggerNow starts the lane's sample on the next rendered frame
func (m *Mixer) triggerNow(lane int) {
	m.mu.Lock()
	now := m.frameTime(m.frame)
	m.mu.Unlock()
	m.trigger(lane, now, nil)
}

// dropPending removes the pool's voices that have not started sounding
func (m *Mixer) dropPending(pool *voicePool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.voices[:0]
	for _, v := range m.voices {
		if v.pool == pool && v.pos == 0 && v.start >= m.frame {
			continue
		}
		kept = append(kept, v)
	}
	for i := len(kept); i < len(m.voices); i++ {
		m.voices[i] = nil
	}
	m.voices = kept
}

// Active returns the number of queued or sounding voices
func (m *Mixer) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.voices)
}

// Read renders len(p)/4 frames. It never returns an error.
func (m *Mixer) Read(p []byte) (int, error) {
	frames := len(p) / bytesPerFrame
	if frames == 0 {
		return 0, nil
	}

	m.mu.Lock()
	if cap(m.sum) < frames {
		m.sum = make([]float64, frames)
	}
	sum := m.sum[:frames]
	for i := range sum {
		sum[i] = 0
	}

	end := m.frame + int64(frames)
	kept := m.voices[:0]
	for _, v := range m.voices {
		if v.start >= end {
			kept = append(kept, v)
			continue
		}
		offset := 0
		if v.start > m.frame {
			offset = int(v.start - m.frame)
		}
		n := len(v.data) - v.pos
		if n > frames-offset {
			n = frames - offset
		}
		for i := 0; i < n; i++ {
			sum[offset+i] += v.data[v.pos+i] * m.gain
		}
		v.pos += n
		if v.pos < len(v.data) {
			kept = append(kept, v)
		}
	}
	for i := len(kept); i < len(m.voices); i++ {
		m.voices[i] = nil
	}
	m.voices = kept
	m.frame = end
	m.mu.Unlock()

	for i, s := range sum {
		v := uint16(converter.Quantize(s))
		binary.LittleEndian.PutUint16(p[i*bytesPerFrame:], v)
		binary.LittleEndian.PutUint16(p[i*bytesPerFrame+bytesPerSample:], v)
	}
	return frames * bytesPerFrame, nil
}

// voicePool is the per-session handle given to the sequencer
type voicePool struct {
	mixer *Mixer

	mu       sync.Mutex
	disposed bool
}

// Start implements sequencer.Voices
func (vp *voicePool) Start(lane int, at time.Duration) {
	vp.mu.Lock()
	disposed := vp.disposed
	vp.mu.Unlock()
	if disposed {
		return
	}
	vp.mixer.trigger(lane, at, vp)
}

// Dispose implements sequencer.Voices. Voices already sounding play out.
func (vp *voicePool) Dispose() {
	vp.mu.Lock()
	vp.disposed = true
	vp.mu.Unlock()
	vp.mixer.dropPending(vp)
}
