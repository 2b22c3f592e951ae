// Package converter renders beatgrid patterns to MIDI, WAV and JSON files and reads them back
package converter

import (
	"log/slog"
	"time"

	"github.com/james-see/beatgrid/pkg/pattern"
)

// Beat is a pattern plus the metadata that travels with it in exports
type Beat struct {
	Name        string
	Author      string
	Description string
	Pattern     pattern.Pattern
	BPM         int
	CreatedAt   time.Time
}

// Export is a rendered file ready for download
type Export struct {
	Data     []byte
	Filename string
	MIMEType string
	Format   Format
}

// Converter handles format conversions
type Converter struct {
	samples    SampleLoader
	sampleRate int
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Converter
type Option func(*Converter)

// WithSampleRate sets the WAV render rate
func WithSampleRate(rate int) Option {
	return func(c *Converter) {
		if rate > 0 {
			c.sampleRate = rate
		}
	}
}

// WithLogger sets the logger used for non-fatal export problems
func WithLogger(logger *slog.Logger) Option {
	return func(c *Converter) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides the time source used for export timestamps
func WithClock(now func() time.Time) Option {
	return func(c *Converter) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a new Converter that loads WAV samples through the given loader.
// A nil loader renders every lane with the synthetic click.
func New(samples SampleLoader, opts ...Option) *Converter {
	c := &Converter{
		samples:    samples,
		sampleRate: DefaultSampleRate,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetSampleLoader returns the current sample loader
func (c *Converter) GetSampleLoader() SampleLoader {
	return c.samples
}

// SetSampleLoader sets the sample loader used for WAV export
func (c *Converter) SetSampleLoader(samples SampleLoader) {
	c.samples = samples
}

// SampleRate returns the WAV render rate
func (c *Converter) SampleRate() int {
	return c.sampleRate
}
