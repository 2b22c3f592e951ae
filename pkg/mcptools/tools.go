// Package mcptools exposes beatgrid over the Model Context Protocol so an
// assistant can fetch puzzle beats, export files and build share links.
package mcptools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/james-see/beatgrid/pkg/converter"
	"github.com/james-see/beatgrid/pkg/daily"
	"github.com/james-see/beatgrid/pkg/pattern"
	"github.com/james-see/beatgrid/pkg/share"
	"github.com/james-see/beatgrid/pkg/store"
)

// ServerName is reported to MCP clients
const ServerName = "beatgrid"

// Tools holds the state the tool handlers need
type Tools struct {
	conv    *converter.Converter
	repo    store.Repository
	baseURL string
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures Tools
type Option func(*Tools)

// WithClock overrides the clock used for today's beat
func WithClock(now func() time.Time) Option {
	return func(t *Tools) { t.now = now }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tools) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// New creates the tool set. repo may be nil, which disables the save and list tools.
func New(conv *converter.Converter, repo store.Repository, baseURL string, opts ...Option) *Tools {
	t := &Tools{
		conv:    conv,
		repo:    repo,
		baseURL: baseURL,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Server builds an MCP server with every tool registered
func (t *Tools) Server(version string) *server.MCPServer {
	s := server.NewMCPServer(ServerName, version, server.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool("beatgrid_daily-beat",
		mcp.WithDescription("Returns the daily puzzle beat. Without a number, today's beat is returned."),
		mcp.WithNumber("number", mcp.Description("Beat number (1 is 2025-01-01).")),
	), t.DailyBeat)

	s.AddTool(mcp.NewTool("beatgrid_challenge",
		mcp.WithDescription("Returns the target beat for a challenge level."),
		mcp.WithNumber("level", mcp.Required(), mcp.Description("Challenge level (1-50).")),
	), t.Challenge)

	s.AddTool(mcp.NewTool("beatgrid_export",
		mcp.WithDescription("Exports a beat as MIDI, WAV or JSON. The file is returned base64 encoded."),
		mcp.WithString("grid", mcp.Required(), mcp.Description(gridDescription)),
		mcp.WithNumber("bpm", mcp.Description("Tempo (60-200, default 120).")),
		mcp.WithString("format", mcp.Required(), mcp.Enum("midi", "wav", "json")),
		mcp.WithString("name", mcp.Description("Beat name used for the file name.")),
	), t.Export)

	s.AddTool(mcp.NewTool("beatgrid_share-link",
		mcp.WithDescription("Builds a share link that opens the beat."),
		mcp.WithString("grid", mcp.Required(), mcp.Description(gridDescription)),
		mcp.WithNumber("bpm", mcp.Description("Tempo (60-200, default 120).")),
		mcp.WithString("name", mcp.Description("Beat name.")),
	), t.ShareLink)

	s.AddTool(mcp.NewTool("beatgrid_open-link",
		mcp.WithDescription("Decodes a share link or bare payload into a beat."),
		mcp.WithString("link", mcp.Required()),
	), t.OpenLink)

	s.AddTool(mcp.NewTool("beatgrid_grade",
		mcp.WithDescription("Grades a guess against a target grid cell by cell."),
		mcp.WithString("guess", mcp.Required(), mcp.Description(gridDescription)),
		mcp.WithString("target", mcp.Required(), mcp.Description(gridDescription)),
	), t.Grade)

	if t.repo != nil {
		s.AddTool(mcp.NewTool("beatgrid_save-beat",
			mcp.WithDescription("Saves a beat to the library and returns its key."),
			mcp.WithString("grid", mcp.Required(), mcp.Description(gridDescription)),
			mcp.WithNumber("bpm", mcp.Description("Tempo (60-200, default 120).")),
			mcp.WithString("name", mcp.Description("Beat name.")),
			mcp.WithString("key", mcp.Description("Existing key to overwrite.")),
		), t.SaveBeat)

		s.AddTool(mcp.NewTool("beatgrid_list-beats",
			mcp.WithDescription("Lists the saved beats."),
		), t.ListBeats)
	}

	return s
}

// ServeStdio runs the server on stdin/stdout until the client disconnects
func (t *Tools) ServeStdio(version string) error {
	t.logger.Info("starting MCP server", "name", ServerName, "version", version)
	return server.ServeStdio(t.Server(version))
}

const gridDescription = "112 characters of 0/1, seven lanes of sixteen steps, row-major " +
	"(kick, snare, closed hat, open hat, low tom, high tom, clap)."

// BeatView is the JSON shape tools return for a beat
type BeatView struct {
	Name   string   `json:"name"`
	Number int      `json:"number,omitempty"`
	BPM    int      `json:"bpm"`
	Grid   string   `json:"grid"`
	Lanes  []string `json:"lanes"`
	Notes  int      `json:"notes"`
	Link   string   `json:"link,omitempty"`
}

func (t *Tools) view(name string, number int, p pattern.Pattern, bpm int) BeatView {
	v := BeatView{
		Name:   name,
		Number: number,
		BPM:    bpm,
		Grid:   p.Bits(),
		Notes:  p.CountNotes(),
	}
	for row := 0; row < pattern.Rows; row++ {
		var line []byte
		for col := 0; col < pattern.Cols; col++ {
			if p[row][col] {
				line = append(line, 'x')
			} else {
				line = append(line, '.')
			}
		}
		v.Lanes = append(v.Lanes, fmt.Sprintf("%-10s %s", pattern.Instruments[row].Name, line))
	}
	if t.baseURL != "" {
		if link, err := share.EncodeURL(t.baseURL, share.Beat{Name: name, BPM: bpm, Pattern: p}); err == nil {
			v.Link = link
		}
	}
	return v
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func requireGrid(request mcp.CallToolRequest, key string) (pattern.Pattern, error) {
	bits, err := request.RequireString(key)
	if err != nil {
		return pattern.Pattern{}, err
	}
	return pattern.ParseBits(bits)
}

// DailyBeat handles beatgrid_daily-beat
func (t *Tools) DailyBeat(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n := request.GetInt("number", 0)
	if n < 1 {
		n = daily.Number(t.now())
	}
	t.logger.Debug("mcp daily beat", "number", n)
	b := daily.Generate(n)
	return jsonResult(t.view(b.Name(), b.Number, b.Pattern, b.BPM))
}

// Challenge handles beatgrid_challenge
func (t *Tools) Challenge(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	level, err := request.RequireInt("level")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	b := daily.Challenge(level)
	return jsonResult(t.view(fmt.Sprintf("Challenge Level %d", b.Number), b.Number, b.Pattern, b.BPM))
}

// ExportView is the JSON shape of an exported file
type ExportView struct {
	Filename string `json:"filename"`
	MIMEType string `json:"mimeType"`
	Size     int    `json:"size"`
	Data     string `json:"data"`
}

// Export handles beatgrid_export
func (t *Tools) Export(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := requireGrid(request, "grid")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	formatName, err := request.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	format := converter.ParseFormat(formatName)
	if format == converter.FormatUnknown {
		return mcp.NewToolResultError(fmt.Sprintf("unknown format %q", formatName)), nil
	}

	beat := converter.Beat{
		Name:    request.GetString("name", ""),
		Pattern: p,
		BPM:     pattern.ClampBPM(request.GetInt("bpm", pattern.DefaultBPM)),
	}
	out, err := t.conv.Export(ctx, beat, format)
	if err != nil {
		return nil, fmt.Errorf("failed to export beat: %w", err)
	}
	t.logger.Info("mcp export", "format", formatName, "file", out.Filename, "bytes", len(out.Data))
	return jsonResult(ExportView{
		Filename: out.Filename,
		MIMEType: out.MIMEType,
		Size:     len(out.Data),
		Data:     base64.StdEncoding.EncodeToString(out.Data),
	})
}

// ShareLink handles beatgrid_share-link
func (t *Tools) ShareLink(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := requireGrid(request, "grid")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	b := share.Beat{
		Name:    request.GetString("name", ""),
		BPM:     pattern.ClampBPM(request.GetInt("bpm", pattern.DefaultBPM)),
		Pattern: p,
	}
	link, err := share.EncodeURL(t.baseURL, b)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := share.BeatText(b, link)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(text), nil
}

// OpenLink handles beatgrid_open-link
func (t *Tools) OpenLink(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	link, err := request.RequireString("link")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	b, err := share.DecodeURL(link)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(t.view(b.Name, 0, b.Pattern, b.BPM))
}

// GradeView is the JSON shape of a graded guess
type GradeView struct {
	Solved    bool     `json:"solved"`
	Correct   int      `json:"correct"`
	Incorrect int      `json:"incorrect"`
	Missing   int      `json:"missing"`
	Rows      []string `json:"rows"`
}

// Grade handles beatgrid_grade. Rows use 'o' for a correct note, 'x' for a
// wrong one and '.' for an empty cell.
func (t *Tools) Grade(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	guess, err := requireGrid(request, "guess")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	target, err := requireGrid(request, "target")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	attempt := pattern.Grade(guess, target)
	sum := share.Summarize(guess, target)
	v := GradeView{
		Solved:    attempt.Solved(),
		Correct:   sum.Correct,
		Incorrect: sum.Incorrect,
		Missing:   sum.Missing,
	}
	for row := 0; row < pattern.Rows; row++ {
		line := make([]byte, pattern.Cols)
		for col := range line {
			switch attempt.Result[row][col] {
			case pattern.CellCorrect:
				line[col] = 'o'
			case pattern.CellIncorrect:
				line[col] = 'x'
			default:
				line[col] = '.'
			}
		}
		v.Rows = append(v.Rows, string(line))
	}
	return jsonResult(v)
}

// SaveBeat handles beatgrid_save-beat
func (t *Tools) SaveBeat(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := requireGrid(request, "grid")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	key := request.GetString("key", "")
	if key == "" {
		key = store.NewKey()
	}
	bpm := pattern.ClampBPM(request.GetInt("bpm", pattern.DefaultBPM))
	if err := t.repo.Save(ctx, key, p, bpm, request.GetString("name", "")); err != nil {
		return nil, fmt.Errorf("failed to save beat: %w", err)
	}
	return mcp.NewToolResultText(key), nil
}

// ListBeats handles beatgrid_list-beats
func (t *Tools) ListBeats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	recs, err := t.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list beats: %w", err)
	}
	views := make([]BeatView, 0, len(recs))
	for _, r := range recs {
		v := t.view(r.Name, 0, r.Pattern, r.BPM)
		v.Link = ""
		views = append(views, v)
	}
	return jsonResult(views)
}
