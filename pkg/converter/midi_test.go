package converter

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math/rand"
	"testing"

	"github.com/james-see/beatgrid/pkg/pattern"
)

func TestEncodeMIDIHeader(t *testing.T) {
	p, _ := pattern.New().Set(0, 0, true)

	data, err := EncodeMIDI(p, 120)
	if err != nil {
		t.Fatalf("EncodeMIDI() error = %v", err)
	}

	header := []byte{
		'M', 'T', 'h', 'd',
		0x00, 0x00, 0x00, 0x06,
		0x00, 0x00, // format 0
		0x00, 0x01, // one track
		0x01, 0xE0, // 480 ticks per quarter
	}
	if !bytes.Equal(data[:14], header) {
		t.Fatalf("header = % X, want % X", data[:14], header)
	}

	if string(data[14:18]) != "MTrk" {
		t.Fatalf("track chunk id = %q, want MTrk", data[14:18])
	}
	trackLen := binary.BigEndian.Uint32(data[18:22])
	if int(trackLen) != len(data)-22 {
		t.Errorf("MTrk length = %d, want %d", trackLen, len(data)-22)
	}

	// delta 0 tempo 500000us, delta 0 note-on ch10 key 36 vel 100
	events := []byte{0x00, 0xFF, 0x51, 0x03, 0x07, 0xA1, 0x20, 0x00, 0x99, 0x24, 0x64}
	if !bytes.Equal(data[22:22+len(events)], events) {
		t.Errorf("first events = % X, want % X", data[22:22+len(events)], events)
	}

	eot := []byte{0xFF, 0x2F, 0x00}
	if !bytes.HasSuffix(data, eot) {
		t.Errorf("track does not end with end-of-track, got % X", data[len(data)-3:])
	}
}

func TestEncodeMIDISharedStep(t *testing.T) {
	p, _ := pattern.New().Set(0, 0, true)
	p, _ = p.Set(2, 0, true)

	data, err := EncodeMIDI(p, 120)
	if err != nil {
		t.Fatalf("EncodeMIDI() error = %v", err)
	}

	track := []byte{
		0x00, 0xFF, 0x51, 0x03, 0x07, 0xA1, 0x20, // tempo 500000us
		0x00, 0x99, 0x24, 0x64, // kick on
		0x00, 0x99, 0x2A, 0x64, // closed hat on
		0x1E, 0x89, 0x24, 0x00, // kick off
		0x00, 0x89, 0x2A, 0x00, // closed hat off
		0x00, 0xFF, 0x2F, 0x00, // end of track
	}
	if got := binary.BigEndian.Uint32(data[18:22]); int(got) != len(track) {
		t.Errorf("MTrk length = %d, want %d", got, len(track))
	}
	if !bytes.Equal(data[22:], track) {
		t.Errorf("track = % X, want % X", data[22:], track)
	}
}

func TestEncodeMIDITempo(t *testing.T) {
	tests := []struct {
		bpm   int
		tempo uint32
	}{
		{60, 1000000},
		{90, 666667},
		{120, 500000},
		{200, 300000},
		{30, 1000000}, // clamped to 60
	}

	for _, tt := range tests {
		data, err := EncodeMIDI(pattern.New(), tt.bpm)
		if err != nil {
			t.Fatalf("EncodeMIDI() error = %v", err)
		}
		got := uint32(data[26])<<16 | uint32(data[27])<<8 | uint32(data[28])
		if got != tt.tempo {
			t.Errorf("EncodeMIDI(bpm=%d) tempo = %d, want %d", tt.bpm, got, tt.tempo)
		}
	}
}

func TestEncodeMIDIDeterministic(t *testing.T) {
	p := pattern.New()
	p, _ = p.Set(0, 0, true)
	p, _ = p.Set(2, 0, true)
	p, _ = p.Set(1, 4, true)

	a, err := EncodeMIDI(p, 100)
	if err != nil {
		t.Fatal(err)
	}
	b, err := EncodeMIDI(p, 100)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("EncodeMIDI() is not deterministic")
	}
}

func TestMIDIRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	fixed := pattern.New()
	for c := 0; c < pattern.Cols; c++ {
		for r := 0; r < pattern.Rows; r++ {
			fixed, _ = fixed.Set(r, c, true)
		}
	}

	cases := []struct {
		name string
		p    pattern.Pattern
		bpm  int
	}{
		{"empty", pattern.New(), 120},
		{"full", fixed, 200},
	}
	for i := 0; i < 20; i++ {
		var p pattern.Pattern
		for r := 0; r < pattern.Rows; r++ {
			for c := 0; c < pattern.Cols; c++ {
				p[r][c] = rng.Intn(4) == 0
			}
		}
		cases = append(cases, struct {
			name string
			p    pattern.Pattern
			bpm  int
		}{"random", p, pattern.MinBPM + rng.Intn(pattern.MaxBPM-pattern.MinBPM+1)})
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeMIDI(tt.p, tt.bpm)
			if err != nil {
				t.Fatalf("EncodeMIDI() error = %v", err)
			}
			got, bpm, err := DecodeMIDI(data)
			if err != nil {
				t.Fatalf("DecodeMIDI() error = %v", err)
			}
			if got != tt.p {
				t.Errorf("DecodeMIDI() pattern =\n%v\nwant\n%v", got, tt.p)
			}
			if bpm != tt.bpm {
				t.Errorf("DecodeMIDI() bpm = %d, want %d", bpm, tt.bpm)
			}
		})
	}
}

func TestDecodeMIDIInvalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"garbage", []byte("not a midi file")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := DecodeMIDI(tt.data); !errors.Is(err, ErrInvalidMIDI) {
				t.Errorf("DecodeMIDI() error = %v, want ErrInvalidMIDI", err)
			}
		})
	}
}
