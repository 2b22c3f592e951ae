// Package pattern provides the 7x16 drum grid shared by every beatgrid component
package pattern

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Grid dimensions and tempo limits
const (
	Rows         = 7
	Cols         = 16
	StepsPerBeat = 4
	MinBPM       = 60
	MaxBPM       = 200
	DefaultBPM   = 120
)

var (
	// ErrInvalidPattern is returned when an external grid is not exactly 7x16
	ErrInvalidPattern = errors.New("invalid pattern")
	// ErrOutOfRange is returned for a row or column outside the grid
	ErrOutOfRange = errors.New("cell out of range")
)

// Instrument describes the fixed drum bound to one lane
type Instrument struct {
	Index    int
	Name     string
	MIDINote uint8 // General MIDI percussion key
	Color    string
	Sample   string // default one-shot file name
}

// Instruments is the lane table. Order is part of the MIDI/WAV export contract.
var Instruments = [Rows]Instrument{
	{Index: 0, Name: "Kick", MIDINote: 36, Color: "#ef4444", Sample: "kick.wav"},
	{Index: 1, Name: "Snare", MIDINote: 38, Color: "#f59e0b", Sample: "snare.wav"},
	{Index: 2, Name: "Closed Hat", MIDINote: 42, Color: "#eab308", Sample: "hihat-closed.wav"},
	{Index: 3, Name: "Open Hat", MIDINote: 46, Color: "#22c55e", Sample: "hihat-open.wav"},
	{Index: 4, Name: "Low Tom", MIDINote: 45, Color: "#06b6d4", Sample: "tom-low.wav"},
	{Index: 5, Name: "High Tom", MIDINote: 48, Color: "#6366f1", Sample: "tom-high.wav"},
	{Index: 6, Name: "Clap", MIDINote: 39, Color: "#d946ef", Sample: "clap.wav"},
}

// LaneForNote returns the lane bound to a GM percussion key
func LaneForNote(note uint8) (int, bool) {
	for _, inst := range Instruments {
		if inst.MIDINote == note {
			return inst.Index, true
		}
	}
	return -1, false
}

// Pattern is a grid of notes indexed [row][col]
type Pattern [Rows][Cols]bool

// Note is one active cell
type Note struct {
	Row int
	Col int
}

// New returns an empty pattern
func New() Pattern {
	return Pattern{}
}

func inBounds(row, col int) bool {
	return row >= 0 && row < Rows && col >= 0 && col < Cols
}

// Get reports whether the cell is set. Out of range cells are never set.
func (p Pattern) Get(row, col int) bool {
	if !inBounds(row, col) {
		return false
	}
	return p[row][col]
}

// Set returns a copy of p with the cell set to on
func (p Pattern) Set(row, col int, on bool) (Pattern, error) {
	if !inBounds(row, col) {
		return p, fmt.Errorf("%w: row %d col %d", ErrOutOfRange, row, col)
	}
	p[row][col] = on
	return p, nil
}

// Toggle returns a copy of p with the cell flipped
func (p Pattern) Toggle(row, col int) (Pattern, error) {
	if !inBounds(row, col) {
		return p, fmt.Errorf("%w: row %d col %d", ErrOutOfRange, row, col)
	}
	p[row][col] = !p[row][col]
	return p, nil
}

// CountNotes returns the number of active cells
func (p Pattern) CountNotes() int {
	n := 0
	for r := range p {
		for c := range p[r] {
			if p[r][c] {
				n++
			}
		}
	}
	return n
}

// ColumnHasAnyNote reports whether any lane plays on the step
func (p Pattern) ColumnHasAnyNote(col int) bool {
	if col < 0 || col >= Cols {
		return false
	}
	for r := 0; r < Rows; r++ {
		if p[r][col] {
			return true
		}
	}
	return false
}

// RowActive reports whether the lane plays at least once
func (p Pattern) RowActive(row int) bool {
	if row < 0 || row >= Rows {
		return false
	}
	for c := 0; c < Cols; c++ {
		if p[row][c] {
			return true
		}
	}
	return false
}

// ActiveRows returns the lanes that play at least once, in lane order
func (p Pattern) ActiveRows() []int {
	var rows []int
	for r := 0; r < Rows; r++ {
		if p.RowActive(r) {
			rows = append(rows, r)
		}
	}
	return rows
}

// Notes returns every active cell ordered by column, then row
func (p Pattern) Notes() []Note {
	notes := make([]Note, 0, p.CountNotes())
	for c := 0; c < Cols; c++ {
		for r := 0; r < Rows; r++ {
			if p[r][c] {
				notes = append(notes, Note{Row: r, Col: c})
			}
		}
	}
	return notes
}

// IsEmpty reports whether no cell is set
func (p Pattern) IsEmpty() bool {
	return p.CountNotes() == 0
}

// FromGrid validates an externally supplied grid and copies it into a Pattern
func FromGrid(grid [][]bool) (Pattern, error) {
	var p Pattern
	if len(grid) != Rows {
		return p, fmt.Errorf("%w: expected %d rows, got %d", ErrInvalidPattern, Rows, len(grid))
	}
	for r, row := range grid {
		if len(row) != Cols {
			return p, fmt.Errorf("%w: row %d has %d steps, expected %d", ErrInvalidPattern, r, len(row), Cols)
		}
	}
	for r, row := range grid {
		copy(p[r][:], row)
	}
	return p, nil
}

// Grid returns the pattern as nested slices for JSON encoding
func (p Pattern) Grid() [][]bool {
	grid := make([][]bool, Rows)
	for r := range p {
		grid[r] = make([]bool, Cols)
		copy(grid[r], p[r][:])
	}
	return grid
}

// Bits returns the compact row-major '0'/'1' form (length 112)
func (p Pattern) Bits() string {
	var b strings.Builder
	b.Grow(Rows * Cols)
	for r := range p {
		for c := range p[r] {
			if p[r][c] {
				b.WriteByte('1')
			} else {
				b.WriteByte('0')
			}
		}
	}
	return b.String()
}

// ParseBits parses the compact form produced by Bits
func ParseBits(s string) (Pattern, error) {
	var p Pattern
	if len(s) != Rows*Cols {
		return p, fmt.Errorf("%w: expected %d cells, got %d", ErrInvalidPattern, Rows*Cols, len(s))
	}
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '1':
			p[i/Cols][i%Cols] = true
		case '0':
		default:
			return Pattern{}, fmt.Errorf("%w: unexpected %q at cell %d", ErrInvalidPattern, s[i], i)
		}
	}
	return p, nil
}

// String renders the grid one lane per line, 'x' for a note and '.' for a rest
func (p Pattern) String() string {
	var b strings.Builder
	for r := range p {
		for c := range p[r] {
			if p[r][c] {
				b.WriteByte('x')
			} else {
				b.WriteByte('.')
			}
		}
		if r < Rows-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// ClampBPM forces a tempo into [MinBPM, MaxBPM]
func ClampBPM(bpm int) int {
	if bpm < MinBPM {
		return MinBPM
	}
	if bpm > MaxBPM {
		return MaxBPM
	}
	return bpm
}

// SecondsPerStep returns the length of one sixteenth-note step
func SecondsPerStep(bpm int) float64 {
	return 60.0 / float64(ClampBPM(bpm)) / StepsPerBeat
}

// StepDuration is SecondsPerStep as a time.Duration
func StepDuration(bpm int) time.Duration {
	return time.Duration(SecondsPerStep(bpm) * float64(time.Second))
}

// BarDuration returns the length of one full 16-step pass
func BarDuration(bpm int) time.Duration {
	return time.Duration(SecondsPerStep(bpm) * Cols * float64(time.Second))
}
