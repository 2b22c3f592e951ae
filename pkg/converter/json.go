package converter

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/james-see/beatgrid/pkg/pattern"
)

// JSONFormatVersion is written to every JSON export
const JSONFormatVersion = "1.0"

// ErrInvalidJSON is returned when a JSON import cannot be parsed
var ErrInvalidJSON = errors.New("invalid beat JSON")

// InstrumentInfo describes a lane in the JSON export
type InstrumentInfo struct {
	Index    int    `json:"index"`
	Name     string `json:"name"`
	MIDINote uint8  `json:"midiNote"`
	Color    string `json:"color"`
}

// BeatFile is the versioned JSON export document
type BeatFile struct {
	FormatVersion     string           `json:"formatVersion"`
	Name              string           `json:"name"`
	Author            string           `json:"author"`
	Description       string           `json:"description"`
	CreatedAt         string           `json:"createdAt"`
	BPM               int              `json:"bpm"`
	TotalSteps        int              `json:"totalSteps"`
	TotalNotes        int              `json:"totalNotes"`
	Instruments       []InstrumentInfo `json:"instruments"`
	ActiveInstruments []string         `json:"activeInstruments"`
	Grid              [][]bool         `json:"grid"`
	Timestamp         int64            `json:"timestamp"`
}

// importFile accepts both the versioned document and the legacy {grid, bpm} form
type importFile struct {
	Name        string   `json:"name"`
	Author      string   `json:"author"`
	Description string   `json:"description"`
	CreatedAt   string   `json:"createdAt"`
	BPM         *int     `json:"bpm"`
	Grid        [][]bool `json:"grid"`
	Timestamp   int64    `json:"timestamp"`
}

func instrumentInfo(inst pattern.Instrument) InstrumentInfo {
	return InstrumentInfo{
		Index:    inst.Index,
		Name:     inst.Name,
		MIDINote: inst.MIDINote,
		Color:    inst.Color,
	}
}

// Lanes describes every instrument lane in order
func Lanes() []InstrumentInfo {
	lanes := make([]InstrumentInfo, 0, pattern.Rows)
	for _, inst := range pattern.Instruments {
		lanes = append(lanes, instrumentInfo(inst))
	}
	return lanes
}

// NewBeatFile builds the export document for a beat
func NewBeatFile(b Beat, now time.Time) BeatFile {
	created := b.CreatedAt
	if created.IsZero() {
		created = now
	}

	instruments := make([]InstrumentInfo, 0, pattern.Rows)
	for _, inst := range pattern.Instruments {
		instruments = append(instruments, instrumentInfo(inst))
	}
	active := make([]string, 0, pattern.Rows)
	for _, row := range b.Pattern.ActiveRows() {
		active = append(active, pattern.Instruments[row].Name)
	}

	return BeatFile{
		FormatVersion:     JSONFormatVersion,
		Name:              b.Name,
		Author:            b.Author,
		Description:       b.Description,
		CreatedAt:         created.UTC().Format(time.RFC3339),
		BPM:               pattern.ClampBPM(b.BPM),
		TotalSteps:        pattern.Cols,
		TotalNotes:        b.Pattern.CountNotes(),
		Instruments:       instruments,
		ActiveInstruments: active,
		Grid:              b.Pattern.Grid(),
		Timestamp:         now.UnixMilli(),
	}
}

// EncodeJSON renders the beat as an indented JSON export
func EncodeJSON(b Beat, now time.Time) ([]byte, error) {
	data, err := json.MarshalIndent(NewBeatFile(b, now), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal beat: %w", err)
	}
	return data, nil
}

// DecodeJSON parses a JSON export or a legacy {grid, bpm} document.
// A missing bpm defaults to 120; any bpm is clamped. The grid must be exactly 7x16.
func DecodeJSON(data []byte) (Beat, error) {
	var f importFile
	if err := json.Unmarshal(data, &f); err != nil {
		return Beat{}, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	p, err := pattern.FromGrid(f.Grid)
	if err != nil {
		return Beat{}, err
	}

	bpm := pattern.DefaultBPM
	if f.BPM != nil {
		bpm = pattern.ClampBPM(*f.BPM)
	}

	b := Beat{
		Name:        f.Name,
		Author:      f.Author,
		Description: f.Description,
		Pattern:     p,
		BPM:         bpm,
	}
	if f.CreatedAt != "" {
		if t, err := time.Parse(time.RFC3339, f.CreatedAt); err == nil {
			b.CreatedAt = t
		}
	}
	if b.CreatedAt.IsZero() && f.Timestamp > 0 {
		b.CreatedAt = time.UnixMilli(f.Timestamp).UTC()
	}
	return b, nil
}
