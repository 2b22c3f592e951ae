package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

// ErrUnsupportedTrack is returned for files that are neither MP3 nor WAV
var ErrUnsupportedTrack = errors.New("unsupported track format")

// DecodeFile reads an MP3 or WAV file into interleaved stereo int16 PCM at sampleRate
func DecodeFile(path string, sampleRate int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return DecodeMP3(f, sampleRate)
	case ".wav", ".wave":
		return DecodeWAV(f, sampleRate)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTrack, path)
	}
}

// DecodeMP3 decodes a whole MP3 stream. go-mp3 always yields 16-bit stereo.
func DecodeMP3(r io.Reader, sampleRate int) ([]byte, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open mp3: %w", err)
	}
	pcm, err := io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("failed to decode mp3: %w", err)
	}
	return ResampleStereo(pcm, decoder.SampleRate(), sampleRate), nil
}

// DecodeWAV decodes a PCM WAV stream. Mono input is duplicated to both channels;
// extra channels beyond two are dropped.
func DecodeWAV(r io.ReadSeeker, sampleRate int) ([]byte, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("%w: invalid wav", ErrUnsupportedTrack)
	}
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode wav: %w", err)
	}

	ch := buf.Format.NumChannels
	if ch < 1 {
		ch = 1
	}
	shift := int(decoder.BitDepth) - 16
	frames := len(buf.Data) / ch

	out := make([]byte, frames*bytesPerFrame)
	for i := 0; i < frames; i++ {
		left := buf.Data[i*ch]
		right := left
		if ch > 1 {
			right = buf.Data[i*ch+1]
		}
		binary.LittleEndian.PutUint16(out[i*bytesPerFrame:], uint16(toInt16(left, shift)))
		binary.LittleEndian.PutUint16(out[i*bytesPerFrame+bytesPerSample:], uint16(toInt16(right, shift)))
	}
	return ResampleStereo(out, buf.Format.SampleRate, sampleRate), nil
}

func toInt16(v, shift int) int16 {
	switch {
	case shift > 0:
		v >>= shift
	case shift < 0:
		v <<= -shift
	}
	if v > math.MaxInt16 {
		v = math.MaxInt16
	}
	if v < math.MinInt16 {
		v = math.MinInt16
	}
	return int16(v)
}

// ResampleStereo converts stereo int16 PCM between rates with linear interpolation
func ResampleStereo(pcm []byte, from, to int) []byte {
	if from <= 0 || to <= 0 || from == to {
		return pcm
	}
	frames := len(pcm) / bytesPerFrame
	if frames == 0 {
		return pcm
	}
	sample := func(frame, channel int) float64 {
		return float64(int16(binary.LittleEndian.Uint16(pcm[frame*bytesPerFrame+channel*bytesPerSample:])))
	}

	ratio := float64(from) / float64(to)
	n := int(float64(frames) / ratio)
	out := make([]byte, n*bytesPerFrame)
	last := frames - 1
	for i := 0; i < n; i++ {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		for c := 0; c < channels; c++ {
			var v float64
			if idx >= last {
				v = sample(last, c)
			} else {
				v = sample(idx, c)*(1-frac) + sample(idx+1, c)*frac
			}
			binary.LittleEndian.PutUint16(out[i*bytesPerFrame+c*bytesPerSample:], uint16(int16(math.Round(v))))
		}
	}
	return out
}

// LoopReader serves a PCM buffer, wrapping to the start when looping is on
type LoopReader struct {
	mu   sync.Mutex
	data []byte
	pos  int64
	loop bool
}

// NewLoopReader wraps pcm
func NewLoopReader(pcm []byte) *LoopReader {
	return &LoopReader{data: pcm}
}

// SetLoop turns wrapping on or off
func (l *LoopReader) SetLoop(loop bool) {
	l.mu.Lock()
	l.loop = loop
	l.mu.Unlock()
}

func (l *LoopReader) Read(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.data) == 0 {
		return 0, io.EOF
	}
	n := 0
	for n < len(p) {
		if l.pos >= int64(len(l.data)) {
			if !l.loop {
				break
			}
			l.pos = 0
		}
		c := copy(p[n:], l.data[l.pos:])
		n += c
		l.pos += int64(c)
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Seek implements io.Seeker over the unlooped buffer
func (l *LoopReader) Seek(offset int64, whence int) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = l.pos + offset
	case io.SeekEnd:
		abs = int64(len(l.data)) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, errors.New("negative position")
	}
	l.pos = abs
	return abs, nil
}

// Len returns the buffer size in bytes
func (l *LoopReader) Len() int {
	return len(l.data)
}

var _ io.ReadSeeker = (*LoopReader)(nil)
