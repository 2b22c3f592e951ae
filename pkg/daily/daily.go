// Package daily generates the reproducible puzzle beats: one per calendar day
// and one per challenge level.
package daily

import (
	"fmt"
	"strconv"
	"time"

	"github.com/james-see/beatgrid/pkg/pattern"
)

// Generator limits
const (
	MinBPM       = 70
	MaxBPM       = 110
	MinNotes     = 6
	MaxNotes     = 12
	PuzzleRows   = 3 // kick, snare, closed hat
	MaxChallenge = 50
)

// Epoch is the day of beat number 1
var Epoch = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

// Beat is a generated puzzle target
type Beat struct {
	Number  int
	Pattern pattern.Pattern
	BPM     int
	Seed    string
}

// Name returns the display name, e.g. "Daily Beat #42"
func (b Beat) Name() string {
	return fmt.Sprintf("Daily Beat #%d", b.Number)
}

// Key returns the persistence key for the beat
func (b Beat) Key() string {
	return "daily-" + strconv.Itoa(b.Number)
}

// Number returns the beat number for the calendar date of t in its own location.
// The epoch day is 1; earlier dates give numbers below 1.
func Number(t time.Time) int {
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return int(day.Sub(Epoch).Hours()/24) + 1
}

// Today returns the beat for the calendar date of now
func Today(now time.Time) Beat {
	return Generate(Number(now))
}

// Generate returns the beat for a beat number. The same number always gives
// the same pattern and tempo.
func Generate(number int) Beat {
	seed := "DailyBeat" + strconv.Itoa(number)
	rng := NewRand(seed)
	bpmRng := NewRand("DailyBeatBPM" + strconv.Itoa(number))

	target := MinNotes + rng.Intn(MaxNotes-MinNotes+1)
	p := generate(rng, PuzzleRows, target)

	return Beat{
		Number:  number,
		Pattern: p,
		BPM:     MinBPM + bpmRng.Intn(MaxBPM-MinBPM+1),
		Seed:    seed,
	}
}

// generate places one note in column 0, then draws (row, column) pairs from
// the first rows lanes until target notes are placed, never reusing a column.
func generate(rng *Rand, rows, target int) pattern.Pattern {
	if target > pattern.Cols {
		target = pattern.Cols
	}
	if target < 1 {
		target = 1
	}

	var p pattern.Pattern
	used := make(map[int]bool, pattern.Cols)

	p[rng.Intn(rows)][0] = true
	used[0] = true
	count := 1

	for count < target {
		row := rng.Intn(rows)
		col := rng.Intn(pattern.Cols)
		if used[col] {
			continue
		}
		used[col] = true
		p[row][col] = true
		count++
	}
	return p
}

// Challenge returns the target for a progressive challenge level (1 and up).
// Higher levels use more lanes, more notes and a faster tempo.
func Challenge(level int) Beat {
	if level < 1 {
		level = 1
	}
	if level > MaxChallenge {
		level = MaxChallenge
	}

	seed := "Challenge" + strconv.Itoa(level)
	rng := NewRand(seed)

	rows := PuzzleRows + (level-1)/3
	if rows > pattern.Rows {
		rows = pattern.Rows
	}
	notes := 4 + level
	if notes > pattern.Cols {
		notes = pattern.Cols
	}
	bpm := pattern.ClampBPM(80 + 4*(level-1))
	if bpm > 160 {
		bpm = 160
	}

	return Beat{
		Number:  level,
		Pattern: generate(rng, rows, notes),
		BPM:     bpm,
		Seed:    seed,
	}
}
