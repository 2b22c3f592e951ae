package mcptools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/james-see/beatgrid/pkg/converter"
	"github.com/james-see/beatgrid/pkg/daily"
	"github.com/james-see/beatgrid/pkg/logging"
	"github.com/james-see/beatgrid/pkg/pattern"
	"github.com/james-see/beatgrid/pkg/share"
	"github.com/james-see/beatgrid/pkg/store"
)

const baseURL = "https://beatgrid.example/"

func newTools() *Tools {
	fixed := time.Date(2025, time.January, 10, 12, 0, 0, 0, time.UTC)
	conv := converter.New(nil, converter.WithLogger(logging.Discard()))
	return New(conv, store.NewMemoryStore(), baseURL,
		WithClock(func() time.Time { return fixed }),
		WithLogger(logging.Discard()))
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult, err error) string {
	t.Helper()
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if len(res.Content) == 0 {
		t.Fatal("empty result")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want mcp.TextContent", res.Content[0])
	}
	return text.Text
}

func kickPattern() pattern.Pattern {
	var p pattern.Pattern
	p[0][0] = true
	p[0][8] = true
	p[1][4] = true
	return p
}

func TestDailyBeatDefaultsToToday(t *testing.T) {
	tools := newTools()
	res, err := tools.DailyBeat(context.Background(), call(nil))
	var v BeatView
	if err := json.Unmarshal([]byte(resultText(t, res, err)), &v); err != nil {
		t.Fatal(err)
	}

	want := daily.Generate(10)
	if v.Number != 10 || v.Name != want.Name() || v.BPM != want.BPM || v.Grid != want.Pattern.Bits() {
		t.Errorf("DailyBeat() = %+v, want beat #10", v)
	}
	if len(v.Lanes) != pattern.Rows || !strings.HasPrefix(v.Lanes[0], "Kick") {
		t.Errorf("Lanes = %q", v.Lanes)
	}
	if !strings.HasPrefix(v.Link, baseURL) {
		t.Errorf("Link = %q", v.Link)
	}
}

func TestDailyBeatNumber(t *testing.T) {
	tools := newTools()
	res, err := tools.DailyBeat(context.Background(), call(map[string]any{"number": 42}))
	var v BeatView
	json.Unmarshal([]byte(resultText(t, res, err)), &v)
	if v.Number != 42 || v.Grid != daily.Generate(42).Pattern.Bits() {
		t.Errorf("DailyBeat(42) = %+v", v)
	}
}

func TestChallenge(t *testing.T) {
	tools := newTools()
	res, err := tools.Challenge(context.Background(), call(map[string]any{"level": 4}))
	var v BeatView
	json.Unmarshal([]byte(resultText(t, res, err)), &v)
	if v.Name != "Challenge Level 4" || v.Grid != daily.Challenge(4).Pattern.Bits() {
		t.Errorf("Challenge(4) = %+v", v)
	}

	res, err = tools.Challenge(context.Background(), call(nil))
	if err != nil || !res.IsError {
		t.Errorf("Challenge() without level = %v, %v, want a tool error", res, err)
	}
}

func TestExport(t *testing.T) {
	tools := newTools()
	tests := []struct {
		format string
		mime   string
		prefix string
	}{
		{"midi", "audio/midi", "MThd"},
		{"wav", "audio/wav", "RIFF"},
		{"json", "application/json", "{"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			res, err := tools.Export(context.Background(), call(map[string]any{
				"grid":   kickPattern().Bits(),
				"bpm":    100,
				"format": tt.format,
				"name":   "Four Floor",
			}))
			var v ExportView
			if err := json.Unmarshal([]byte(resultText(t, res, err)), &v); err != nil {
				t.Fatal(err)
			}
			if v.MIMEType != tt.mime {
				t.Errorf("MIMEType = %q, want %q", v.MIMEType, tt.mime)
			}
			if !strings.HasPrefix(v.Filename, "four-floor-100bpm.") {
				t.Errorf("Filename = %q", v.Filename)
			}
			data, err := base64.StdEncoding.DecodeString(v.Data)
			if err != nil {
				t.Fatal(err)
			}
			if len(data) != v.Size || !strings.HasPrefix(string(data), tt.prefix) {
				t.Errorf("data starts %q, size %d, want prefix %q", data[:4], v.Size, tt.prefix)
			}
		})
	}
}

func TestExportErrors(t *testing.T) {
	tools := newTools()
	tests := []struct {
		name string
		args map[string]any
	}{
		{"short grid", map[string]any{"grid": "0101", "format": "midi"}},
		{"bad format", map[string]any{"grid": kickPattern().Bits(), "format": "mp3"}},
		{"missing format", map[string]any{"grid": kickPattern().Bits()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tools.Export(context.Background(), call(tt.args))
			if err != nil || !res.IsError {
				t.Errorf("Export() = %v, %v, want a tool error", res, err)
			}
		})
	}
}

func TestShareLinkRoundTrip(t *testing.T) {
	tools := newTools()
	res, err := tools.ShareLink(context.Background(), call(map[string]any{
		"grid": kickPattern().Bits(),
		"bpm":  95,
		"name": "Loop",
	}))
	text := resultText(t, res, err)
	lines := strings.Split(strings.TrimSpace(text), "\n")
	link := lines[len(lines)-1]
	if !strings.HasPrefix(link, baseURL) {
		t.Fatalf("last line = %q, want the link", link)
	}

	b, err := share.DecodeURL(link)
	if err != nil {
		t.Fatal(err)
	}
	if b.Pattern != kickPattern() || b.BPM != 95 || b.Name != "Loop" {
		t.Errorf("decoded = %+v", b)
	}

	res, err = tools.OpenLink(context.Background(), call(map[string]any{"link": link}))
	var v BeatView
	json.Unmarshal([]byte(resultText(t, res, err)), &v)
	if v.Grid != kickPattern().Bits() || v.BPM != 95 {
		t.Errorf("OpenLink() = %+v", v)
	}

	res, err = tools.OpenLink(context.Background(), call(map[string]any{"link": baseURL + "?beat=%%%"}))
	if err != nil || !res.IsError {
		t.Errorf("OpenLink() on garbage = %v, %v, want a tool error", res, err)
	}
}

func TestGrade(t *testing.T) {
	tools := newTools()
	target := kickPattern()
	guess := target
	guess[1][4] = false
	guess[2][2] = true

	res, err := tools.Grade(context.Background(), call(map[string]any{
		"guess":  guess.Bits(),
		"target": target.Bits(),
	}))
	var v GradeView
	json.Unmarshal([]byte(resultText(t, res, err)), &v)
	if v.Solved || v.Correct != 2 || v.Incorrect != 1 || v.Missing != 1 {
		t.Errorf("Grade() = %+v", v)
	}
	if v.Rows[0] != "o.......o......." || v.Rows[2] != "..x............." {
		t.Errorf("Rows = %q", v.Rows)
	}

	res, err = tools.Grade(context.Background(), call(map[string]any{
		"guess":  target.Bits(),
		"target": target.Bits(),
	}))
	json.Unmarshal([]byte(resultText(t, res, err)), &v)
	if !v.Solved {
		t.Error("Grade() of the target itself should be solved")
	}
}

func TestSaveAndListBeats(t *testing.T) {
	tools := newTools()
	res, err := tools.SaveBeat(context.Background(), call(map[string]any{
		"grid": kickPattern().Bits(),
		"bpm":  300,
		"name": "Too Fast",
	}))
	key := resultText(t, res, err)
	if !strings.HasPrefix(key, "custom-") {
		t.Errorf("key = %q", key)
	}

	res, err = tools.ListBeats(context.Background(), call(nil))
	var views []BeatView
	json.Unmarshal([]byte(resultText(t, res, err)), &views)
	if len(views) != 1 || views[0].Name != "Too Fast" || views[0].BPM != pattern.MaxBPM {
		t.Errorf("ListBeats() = %+v", views)
	}
}

func TestServerRegistersTools(t *testing.T) {
	s := newTools().Server("test")
	if s == nil {
		t.Fatal("Server() = nil")
	}
	noRepo := New(converter.New(nil), nil, baseURL)
	if noRepo.Server("test") == nil {
		t.Fatal("Server() without a store = nil")
	}
}
