package share

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/james-see/beatgrid/pkg/pattern"
)

// Result squares
const (
	SquareCorrect   = "🟩"
	SquareIncorrect = "🟥"
	SquareMissing   = "⬛"
)

// DefaultMaxAttempts is the number of guesses a daily puzzle allows
const DefaultMaxAttempts = 6

const resultTemplate = `{{ .Title }} {{ if .Solved }}{{ len .Attempts }}{{ else }}X{{ end }}/{{ .MaxAttempts }} ♪{{ .BPM }}
{{ range .Attempts -}}
{{ repeat .Correct "🟩" }}{{ repeat .Incorrect "🟥" }}{{ repeat .Missing "⬛" }}
{{ end -}}
{{ with .URL }}{{ . }}
{{ end }}`

const beatTemplate = `{{ default "Untitled beat" .Name | trim }} ({{ .BPM }} BPM, {{ .Notes }} {{ if eq .Notes 1 }}note{{ else }}notes{{ end }})
{{ range .Lanes }}{{ printf "%-10s" .Name }} {{ .Steps }}
{{ end -}}
{{ with .URL }}{{ . }}
{{ end }}`

var templates = template.Must(
	template.Must(template.New("result").Funcs(sprig.TxtFuncMap()).Parse(resultTemplate)).
		New("beat").Parse(beatTemplate),
)

// AttemptSummary is one guess as it appears in a result text
type AttemptSummary struct {
	Correct   int
	Incorrect int
	Missing   int
}

// Summarize counts an attempt's cells for sharing
func Summarize(submitted, target pattern.Pattern) AttemptSummary {
	a := pattern.Grade(submitted, target)
	return AttemptSummary{
		Correct:   a.Count(pattern.CellCorrect),
		Incorrect: a.Count(pattern.CellIncorrect),
		Missing:   pattern.Missing(submitted, target),
	}
}

// Result describes a finished puzzle
type Result struct {
	Title       string
	BPM         int
	Attempts    []AttemptSummary
	MaxAttempts int
	Solved      bool
	URL         string
}

// ResultText renders the spoiler-free summary of a puzzle
func ResultText(r Result) (string, error) {
	if r.MaxAttempts == 0 {
		r.MaxAttempts = DefaultMaxAttempts
	}
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "result", r); err != nil {
		return "", fmt.Errorf("failed to render result: %w", err)
	}
	return buf.String(), nil
}

type laneLine struct {
	Name  string
	Steps string
}

// BeatText renders a beat as a plain-text grid, one lane per line, with an optional link
func BeatText(b Beat, link string) (string, error) {
	var lanes []laneLine
	for _, row := range b.Pattern.ActiveRows() {
		steps := make([]byte, pattern.Cols)
		for c := range steps {
			steps[c] = '.'
			if b.Pattern[row][c] {
				steps[c] = 'x'
			}
		}
		lanes = append(lanes, laneLine{Name: pattern.Instruments[row].Name, Steps: string(steps)})
	}

	data := map[string]any{
		"Name":  b.Name,
		"BPM":   pattern.ClampBPM(b.BPM),
		"Notes": b.Pattern.CountNotes(),
		"Lanes": lanes,
		"URL":   link,
	}
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "beat", data); err != nil {
		return "", fmt.Errorf("failed to render beat: %w", err)
	}
	return buf.String(), nil
}
