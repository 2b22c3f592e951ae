package converter

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/james-see/beatgrid/pkg/pattern"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// MIDI export constants
const (
	TicksPerQuarter = 480
	TicksPerStep    = TicksPerQuarter / pattern.StepsPerBeat
	NoteLength      = TicksPerStep / 4
	DrumChannel     = 9 // MIDI channel 10
	NoteVelocity    = 100
)

// ErrInvalidMIDI is returned when data cannot be parsed as a standard MIDI file
var ErrInvalidMIDI = errors.New("invalid MIDI data")

type midiEvent struct {
	tick uint32
	on   bool
	note uint8
}

// EncodeMIDI renders the pattern as a format 0 standard MIDI file on the GM drum channel
func EncodeMIDI(p pattern.Pattern, bpm int) ([]byte, error) {
	bpm = pattern.ClampBPM(bpm)

	var events []midiEvent
	for _, n := range p.Notes() {
		start := uint32(n.Col * TicksPerStep)
		note := pattern.Instruments[n.Row].MIDINote
		events = append(events,
			midiEvent{tick: start, on: true, note: note},
			midiEvent{tick: start + NoteLength, on: false, note: note},
		)
	}

	// note-offs sort ahead of note-ons that share a tick
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].tick != events[j].tick {
			return events[i].tick < events[j].tick
		}
		return !events[i].on && events[j].on
	})

	var track smf.Track

	microsecondsPerBeat := uint32(math.Round(60000000.0 / float64(bpm)))
	tempoData := smf.Message([]byte{
		0xFF, 0x51, 0x03,
		byte(microsecondsPerBeat >> 16),
		byte(microsecondsPerBeat >> 8),
		byte(microsecondsPerBeat),
	})
	track.Add(0, tempoData)

	var currentTick uint32
	for _, ev := range events {
		delta := ev.tick - currentTick
		if ev.on {
			track.Add(delta, midi.NoteOn(DrumChannel, ev.note, NoteVelocity))
		} else {
			track.Add(delta, midi.NoteOff(DrumChannel, ev.note))
		}
		currentTick = ev.tick
	}

	track.Close(0)

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(TicksPerQuarter)
	// every event carries its status byte
	s.NoRunningStatus = true
	if err := s.Add(track); err != nil {
		return nil, fmt.Errorf("failed to add track: %w", err)
	}

	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write MIDI: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeMIDI recovers the note-on positions and tempo of a MIDI file.
// Notes outside the drum map are ignored; steps past the first bar wrap.
func DecodeMIDI(data []byte) (pattern.Pattern, int, error) {
	var p pattern.Pattern

	s, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return p, 0, fmt.Errorf("%w: %v", ErrInvalidMIDI, err)
	}

	resolution := uint16(TicksPerQuarter)
	if mt, ok := s.TimeFormat.(smf.MetricTicks); ok && mt.Resolution() > 0 {
		resolution = mt.Resolution()
	}
	ticksPerStep := int64(resolution) / pattern.StepsPerBeat
	if ticksPerStep == 0 {
		ticksPerStep = 1
	}

	bpm := pattern.DefaultBPM
	tempoSeen := false

	for _, track := range s.Tracks {
		var currentTick int64
		for _, ev := range track {
			currentTick += int64(ev.Delta)
			msg := ev.Message

			// tempo meta message (FF 51 03 tt tt tt), first one wins
			if len(msg) >= 6 && msg[0] == 0xFF && msg[1] == 0x51 && msg[2] == 0x03 {
				us := uint32(msg[3])<<16 | uint32(msg[4])<<8 | uint32(msg[5])
				if us > 0 && !tempoSeen {
					bpm = int(math.Round(60000000.0 / float64(us)))
					tempoSeen = true
				}
				continue
			}

			// Note On (0x90-0x9F) with non-zero velocity
			if len(msg) >= 3 && msg[0] >= 0x90 && msg[0] <= 0x9F && msg[2] > 0 {
				lane, ok := pattern.LaneForNote(msg[1])
				if !ok {
					continue
				}
				step := int(currentTick/ticksPerStep) % pattern.Cols
				p[lane][step] = true
			}
		}
	}

	return p, pattern.ClampBPM(bpm), nil
}
