package converter

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/james-see/beatgrid/pkg/pattern"
	"github.com/viterin/vek"
)

// WAV render constants
const (
	MixGain        = 0.3
	WAVHeaderSize  = 44
	wavChannels    = 1
	wavBitsPerSamp = 16
)

// ErrInvalidWAV is returned for byte streams that are not a canonical PCM WAV file
var ErrInvalidWAV = errors.New("invalid WAV data")

// WAVSampleCount returns the rendered length of one bar in samples
func WAVSampleCount(bpm, sampleRate int) int {
	return int(math.Round(float64(pattern.Cols) * pattern.SecondsPerStep(bpm) * float64(sampleRate)))
}

// RenderWAV mixes the kit's samples at every active step into a float buffer
// covering exactly one bar. Values are clamped to [-1, 1].
func RenderWAV(p pattern.Pattern, bpm int, kit Kit, sampleRate int) []float64 {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	out := make([]float64, WAVSampleCount(bpm, sampleRate))
	samplesPerStep := pattern.SecondsPerStep(bpm) * float64(sampleRate)

	var scaled [pattern.Rows][]float64
	for lane := range kit {
		data := kit[lane].Data
		if len(data) == 0 {
			continue
		}
		scaled[lane] = vek.MulNumber_Into(make([]float64, len(data)), data, MixGain)
	}

	for _, n := range p.Notes() {
		voice := scaled[n.Row]
		if len(voice) == 0 {
			continue
		}
		offset := int(math.Round(float64(n.Col) * samplesPerStep))
		if offset >= len(out) {
			continue
		}
		end := offset + len(voice)
		if end > len(out) {
			end = len(out)
		}
		vek.Add_Inplace(out[offset:end], voice[:end-offset])
	}

	for i, v := range out {
		if v > 1 {
			out[i] = 1
		} else if v < -1 {
			out[i] = -1
		}
	}
	return out
}

// Quantize converts a clamped float sample to signed 16-bit PCM
func Quantize(v float64) int16 {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	if v < 0 {
		return int16(v * 32768)
	}
	return int16(v * 32767)
}

// EncodeWAV writes mono float samples as a 16-bit PCM WAV file
func EncodeWAV(samples []float64, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %d", ErrInvalidWAV, sampleRate)
	}

	buf := new(bytes.Buffer)
	buf.Grow(WAVHeaderSize + len(samples)*2)
	writeWAVHeader(buf, len(samples), sampleRate)

	pcm := make([]int16, len(samples))
	for i, v := range samples {
		pcm[i] = Quantize(v)
	}
	if err := binary.Write(buf, binary.LittleEndian, pcm); err != nil {
		return nil, fmt.Errorf("failed to write sample data: %w", err)
	}
	return buf.Bytes(), nil
}

// writeWAVHeader writes the canonical 44-byte RIFF header for mono int16 audio
func writeWAVHeader(buf *bytes.Buffer, numSamples, sampleRate int) {
	blockAlign := wavChannels * wavBitsPerSamp / 8
	dataSize := numSamples * blockAlign

	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(buf, binary.LittleEndian, uint16(wavChannels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate*blockAlign))
	_ = binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(buf, binary.LittleEndian, uint16(wavBitsPerSamp))
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(dataSize))
}

// WAVInfo is the parsed canonical header of a rendered file
type WAVInfo struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	DataSize      uint32
}

// NumSamples returns the frame count described by the header
func (w WAVInfo) NumSamples() int {
	if w.BlockAlign == 0 {
		return 0
	}
	return int(w.DataSize) / int(w.BlockAlign)
}

// ParseWAVHeader reads the fixed 44-byte header written by EncodeWAV
func ParseWAVHeader(data []byte) (WAVInfo, error) {
	var info WAVInfo
	if len(data) < WAVHeaderSize {
		return info, fmt.Errorf("%w: %d bytes is shorter than the header", ErrInvalidWAV, len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return info, fmt.Errorf("%w: missing RIFF/WAVE magic", ErrInvalidWAV)
	}
	if string(data[12:16]) != "fmt " || string(data[36:40]) != "data" {
		return info, fmt.Errorf("%w: not a canonical header", ErrInvalidWAV)
	}

	le := binary.LittleEndian
	info.AudioFormat = le.Uint16(data[20:22])
	info.Channels = le.Uint16(data[22:24])
	info.SampleRate = le.Uint32(data[24:28])
	info.ByteRate = le.Uint32(data[28:32])
	info.BlockAlign = le.Uint16(data[32:34])
	info.BitsPerSample = le.Uint16(data[34:36])
	info.DataSize = le.Uint32(data[40:44])
	return info, nil
}

// renderBeatWAV loads the kit and produces the WAV bytes for an export
func (c *Converter) renderBeatWAV(p pattern.Pattern, bpm int, kit Kit) ([]byte, error) {
	samples := RenderWAV(p, bpm, kit, c.sampleRate)
	data, err := EncodeWAV(samples, c.sampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to encode WAV: %w", err)
	}
	return data, nil
}
