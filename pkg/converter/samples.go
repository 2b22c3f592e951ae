package converter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/go-audio/wav"
	"github.com/james-see/beatgrid/pkg/pattern"
)

// DefaultSampleRate is used when the audio backend does not report one
const DefaultSampleRate = 44100

// Synthetic click parameters
const (
	clickDuration = 0.010 // seconds
	clickDecay    = 0.002 // seconds, exponential time constant
)

// clickFrequency gives each lane's fallback click its own pitch
var clickFrequency = [pattern.Rows]float64{60, 200, 8000, 6000, 110, 220, 1500}

// Sample is a mono one-shot at a known rate, values in [-1, 1]
type Sample struct {
	Name       string
	SampleRate int
	Data       []float64
}

// Kit holds one sample per lane
type Kit [pattern.Rows]Sample

// SampleLoader loads the one-shot for a lane
type SampleLoader interface {
	LoadSample(ctx context.Context, inst pattern.Instrument, sampleRate int) (Sample, error)
}

// LoadKit loads every lane, substituting a synthetic click for any sample that fails.
// It never fails; problems are logged.
func LoadKit(ctx context.Context, loader SampleLoader, sampleRate int, logger *slog.Logger) Kit {
	if logger == nil {
		logger = slog.Default()
	}
	var kit Kit
	for _, inst := range pattern.Instruments {
		if loader == nil {
			kit[inst.Index] = SyntheticClick(inst.Index, sampleRate)
			continue
		}
		s, err := loader.LoadSample(ctx, inst, sampleRate)
		if err != nil {
			logger.Warn("sample unavailable, using synthetic click",
				"lane", inst.Index, "instrument", inst.Name, "error", err)
			kit[inst.Index] = SyntheticClick(inst.Index, sampleRate)
			continue
		}
		kit[inst.Index] = s
	}
	return kit
}

// SyntheticClick returns a short exponentially damped sine burst for a lane
func SyntheticClick(lane, sampleRate int) Sample {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	freq := 1000.0
	if lane >= 0 && lane < pattern.Rows {
		freq = clickFrequency[lane]
	}
	n := int(clickDuration * float64(sampleRate))
	data := make([]float64, n)
	for i := range data {
		t := float64(i) / float64(sampleRate)
		data[i] = math.Sin(2*math.Pi*freq*t) * math.Exp(-t/clickDecay)
	}
	return Sample{Name: "click", SampleRate: sampleRate, Data: data}
}

// FileSampleLoader reads PCM WAV one-shots from a directory
type FileSampleLoader struct {
	Dir string
	// Files overrides the default file name per lane when non-empty
	Files map[int]string
}

// NewFileSampleLoader creates a loader rooted at dir
func NewFileSampleLoader(dir string) *FileSampleLoader {
	return &FileSampleLoader{Dir: dir}
}

// LoadSample decodes the lane's WAV file, mixes it down to mono and resamples it
func (l *FileSampleLoader) LoadSample(ctx context.Context, inst pattern.Instrument, sampleRate int) (Sample, error) {
	if err := ctx.Err(); err != nil {
		return Sample{}, err
	}

	name := inst.Sample
	if override, ok := l.Files[inst.Index]; ok && override != "" {
		name = override
	}
	path := filepath.Join(l.Dir, name)

	f, err := os.Open(path)
	if err != nil {
		return Sample{}, fmt.Errorf("failed to open sample: %w", err)
	}
	defer func() { _ = f.Close() }()

	s, err := DecodeWAVSample(f)
	if err != nil {
		return Sample{}, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	s.Name = name
	return Resample(s, sampleRate), nil
}

// ErrUnsupportedWAV is returned for files the sample decoder cannot read
var ErrUnsupportedWAV = errors.New("unsupported WAV data")

// DecodeWAVSample decodes a PCM WAV stream into a mono sample
func DecodeWAVSample(r io.ReadSeeker) (Sample, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return Sample{}, ErrUnsupportedWAV
	}
	if decoder.WavAudioFormat != 1 {
		return Sample{}, fmt.Errorf("%w: format %d is not PCM", ErrUnsupportedWAV, decoder.WavAudioFormat)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return Sample{}, fmt.Errorf("failed to read PCM data: %w", err)
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	bitDepth := int(decoder.BitDepth)
	if bitDepth == 0 {
		bitDepth = 16
	}
	scale := math.Pow(2, float64(bitDepth-1))

	frames := len(buf.Data) / channels
	data := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for ch := 0; ch < channels; ch++ {
			sum += float64(buf.Data[i*channels+ch])
		}
		data[i] = sum / float64(channels) / scale
	}

	return Sample{SampleRate: buf.Format.SampleRate, Data: data}, nil
}

// Resample converts a sample to the target rate with linear interpolation
func Resample(s Sample, rate int) Sample {
	if rate <= 0 || s.SampleRate <= 0 || s.SampleRate == rate || len(s.Data) == 0 {
		if s.SampleRate <= 0 {
			s.SampleRate = rate
		}
		return s
	}
	ratio := float64(s.SampleRate) / float64(rate)
	n := int(float64(len(s.Data)) / ratio)
	out := make([]float64, n)
	last := len(s.Data) - 1
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= last {
			out[i] = s.Data[last]
			continue
		}
		frac := pos - float64(idx)
		out[i] = s.Data[idx]*(1-frac) + s.Data[idx+1]*frac
	}
	return Sample{Name: s.Name, SampleRate: rate, Data: out}
}
