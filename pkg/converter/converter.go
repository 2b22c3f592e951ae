package converter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/james-see/beatgrid/pkg/pattern"
)

// Format represents a file format
type Format string

const (
	FormatMIDI    Format = "midi"
	FormatWAV     Format = "wav"
	FormatJSON    Format = "json"
	FormatUnknown Format = "unknown"
)

// ErrUnsupportedConversion is returned for format pairs the converter cannot handle
var ErrUnsupportedConversion = errors.New("unsupported conversion")

// ParseFormat maps a user-supplied name ("mid", "wav", ...) to a Format
func ParseFormat(name string) Format {
	switch strings.ToLower(strings.TrimPrefix(name, ".")) {
	case "mid", "midi":
		return FormatMIDI
	case "wav", "wave":
		return FormatWAV
	case "json":
		return FormatJSON
	default:
		return FormatUnknown
	}
}

// DetectFormat detects the format of a file based on its extension
func DetectFormat(filename string) Format {
	return ParseFormat(filepath.Ext(filename))
}

// DetectFormatFromContent detects format from file content
func DetectFormatFromContent(data []byte) Format {
	if len(data) >= 4 && string(data[:4]) == "MThd" {
		return FormatMIDI
	}
	if len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WAVE" {
		return FormatWAV
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return FormatJSON
	}
	return FormatUnknown
}

// MIMEType returns the download content type for a format
func MIMEType(f Format) string {
	switch f {
	case FormatMIDI:
		return "audio/midi"
	case FormatWAV:
		return "audio/wav"
	case FormatJSON:
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

// Extension returns the file extension written for a format
func Extension(f Format) string {
	switch f {
	case FormatMIDI:
		return ".mid"
	case FormatWAV:
		return ".wav"
	case FormatJSON:
		return ".json"
	default:
		return ".bin"
	}
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// Filename suggests a download name for a beat, e.g. "my-beat-120bpm.mid"
func Filename(name string, bpm int, f Format) string {
	slug := strings.Trim(slugInvalid.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if slug == "" {
		slug = "beat"
	}
	return fmt.Sprintf("%s-%dbpm%s", slug, pattern.ClampBPM(bpm), Extension(f))
}

// Export renders the beat in the requested format
func (c *Converter) Export(ctx context.Context, b Beat, f Format) (Export, error) {
	b.BPM = pattern.ClampBPM(b.BPM)

	var (
		data []byte
		err  error
	)
	switch f {
	case FormatMIDI:
		data, err = EncodeMIDI(b.Pattern, b.BPM)
	case FormatWAV:
		kit := LoadKit(ctx, c.samples, c.sampleRate, c.logger)
		data, err = c.renderBeatWAV(b.Pattern, b.BPM, kit)
	case FormatJSON:
		data, err = EncodeJSON(b, c.now())
	default:
		return Export{}, fmt.Errorf("%w: export to %s", ErrUnsupportedConversion, f)
	}
	if err != nil {
		return Export{}, err
	}

	c.logger.Debug("beat exported", "format", f, "bytes", len(data), "notes", b.Pattern.CountNotes())
	return Export{
		Data:     data,
		Filename: Filename(b.Name, b.BPM, f),
		MIMEType: MIMEType(f),
		Format:   f,
	}, nil
}

// Import reads a beat back from MIDI or JSON. FormatUnknown sniffs the content.
func (c *Converter) Import(data []byte, f Format) (Beat, error) {
	if f == FormatUnknown {
		f = DetectFormatFromContent(data)
	}
	switch f {
	case FormatMIDI:
		p, bpm, err := DecodeMIDI(data)
		if err != nil {
			return Beat{}, err
		}
		return Beat{Pattern: p, BPM: bpm}, nil
	case FormatJSON:
		return DecodeJSON(data)
	default:
		return Beat{}, fmt.Errorf("%w: import from %s", ErrUnsupportedConversion, f)
	}
}

// ConvertFile converts a file from one format to another
func (c *Converter) ConvertFile(ctx context.Context, inputPath, outputPath string) error {
	outputFormat := DetectFormat(outputPath)
	if outputFormat == FormatUnknown {
		return errors.New("cannot determine output format from filename")
	}

	data, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("failed to read input file: %w", err)
	}

	inputFormat := DetectFormat(inputPath)
	if inputFormat == FormatUnknown {
		inputFormat = DetectFormatFromContent(data)
	}

	beat, err := c.Import(data, inputFormat)
	if err != nil {
		return fmt.Errorf("conversion failed: %w", err)
	}
	if beat.Name == "" {
		beat.Name = strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	}

	out, err := c.Export(ctx, beat, outputFormat)
	if err != nil {
		return fmt.Errorf("conversion failed: %w", err)
	}

	if err := os.WriteFile(outputPath, out.Data, 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}

// GetSupportedConversions returns a list of supported conversion paths
func GetSupportedConversions() []string {
	return []string{
		"midi -> json",
		"midi -> wav",
		"json -> midi",
		"json -> wav",
		"midi -> midi",
		"json -> json",
	}
}
