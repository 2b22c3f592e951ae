// Package tui provides the terminal grid editor for beatgrid
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/james-see/beatgrid/pkg/converter"
	"github.com/james-see/beatgrid/pkg/daily"
	"github.com/james-see/beatgrid/pkg/pattern"
	"github.com/james-see/beatgrid/pkg/sequencer"
	"github.com/james-see/beatgrid/pkg/share"
	"github.com/james-see/beatgrid/pkg/soundscape"
	"github.com/james-see/beatgrid/pkg/store"
)

// State represents the current TUI state
type State int

const (
	StateMenu State = iota
	StateGrid
	StateFilePicker
	StateExporting
	StateResult
)

// Mode is what the grid is being used for
type Mode int

const (
	ModeJam Mode = iota
	ModeDaily
	ModeChallenge
)

// MenuItem represents a menu option
type MenuItem struct {
	Title       string
	Description string
	Mode        Mode
	Import      bool
}

var menuItems = []MenuItem{
	{Title: "Jam", Description: "Program a loop on an empty grid", Mode: ModeJam},
	{Title: "Daily Beat", Description: "Listen to today's beat and rebuild it", Mode: ModeDaily},
	{Title: "Challenge", Description: "Work through the challenge levels", Mode: ModeChallenge},
	{Title: "Import", Description: "Open a MIDI or JSON beat file", Mode: ModeJam, Import: true},
	{Title: "Exit", Description: "Exit the application"},
}

// BPMStep is the tempo change per key press
const BPMStep = 5

// Tracks names the soundscape files played in the editor
type Tracks struct {
	Ambient string
	Victory string
	Loss    string
}

// Deps wires the model to the rest of the application. Every field is
// optional except Converter; without an Engine the editor is silent.
type Deps struct {
	Engine     *sequencer.Engine
	Steps      <-chan int
	Converter  *converter.Converter
	Store      store.Repository
	Sharer     *share.Sharer
	Soundscape *soundscape.Coordinator
	Tracks     Tracks
	BaseURL    string
	OutputDir  string
	Author     string
	Now        func() time.Time
	Logger     *slog.Logger
}

// StepChannel returns a channel for Deps.Steps and the matching
// sequencer.WithStepObserver callback. Updates are dropped when the UI lags.
func StepChannel() (chan int, func(step int)) {
	ch := make(chan int, 32)
	return ch, func(step int) {
		select {
		case ch <- step:
		default:
		}
	}
}

// Model represents the TUI model
type Model struct {
	deps       Deps
	ctx        context.Context
	state      State
	menuIndex  int
	filePicker filepicker.Model
	spinner    spinner.Model

	mode       Mode
	name       string
	grid       pattern.Pattern
	bpm        int
	cursorRow  int
	cursorCol  int
	activeStep int
	playing    bool
	// playGen counts play and stop requests; playReq is the generation of
	// the play request still in flight, or 0
	playGen int
	playReq int

	target   pattern.Pattern
	level    int
	beatKey  string
	attempts []pattern.Attempt
	solved   bool
	failed   bool

	returnTo     State
	status       string
	shareText    string
	selectedFile string
	outputFile   string
	err          error
	width        int
	height       int
}

type stepMsg int

type playStartedMsg struct {
	gen    int
	ok     bool
	target bool
}

type exportDoneMsg struct {
	outputFile string
	err        error
}

type importDoneMsg struct {
	beat converter.Beat
	err  error
}

type shareDoneMsg struct {
	notice share.Notice
	text   string
	err    error
}

type savedMsg struct {
	key string
	err error
}

// New creates a new TUI model
func New(deps Deps) Model {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Sharer == nil {
		deps.Sharer = share.NewSharer(deps.Logger, share.NewClipboardChannel())
	}
	if deps.OutputDir == "" {
		deps.OutputDir, _ = os.Getwd()
	}

	// Initialize file picker
	fp := filepicker.New()
	fp.AllowedTypes = []string{".mid", ".midi", ".json"}
	fp.CurrentDirectory, _ = os.Getwd()

	// Initialize spinner
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(acidGreen)

	return Model{
		deps:       deps,
		ctx:        context.Background(),
		state:      StateMenu,
		filePicker: fp,
		spinner:    s,
		bpm:        pattern.DefaultBPM,
		activeStep: sequencer.NoStep,
		level:      1,
	}
}

// Init initializes the TUI model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForStep())
}

func (m Model) waitForStep() tea.Cmd {
	if m.deps.Steps == nil {
		return nil
	}
	ch := m.deps.Steps
	return func() tea.Msg {
		step, ok := <-ch
		if !ok {
			return nil
		}
		return stepMsg(step)
	}
}

// Update handles TUI updates
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// Handle file picker state first - it needs to receive all messages
	if m.state == StateFilePicker {
		if keyMsg, ok := msg.(tea.KeyMsg); ok {
			switch keyMsg.String() {
			case "esc":
				m.state = StateMenu
				return m, nil
			case "q", "ctrl+c":
				return m.quit()
			}
		}

		var cmd tea.Cmd
		m.filePicker, cmd = m.filePicker.Update(msg)

		if didSelect, path := m.filePicker.DidSelectFile(msg); didSelect {
			m.selectedFile = path
			m.returnTo = StateMenu
			m.state = StateExporting
			return m, tea.Batch(m.spinner.Tick, m.importFile(path))
		}
		return m, cmd
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.filePicker.SetHeight(msg.Height - 10)
		return m, nil

	case tea.KeyMsg:
		switch m.state {
		case StateMenu:
			return m.updateMenu(msg)
		case StateGrid:
			return m.updateGrid(msg)
		case StateResult:
			return m.updateResult(msg)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case stepMsg:
		m.activeStep = int(msg)
		if m.activeStep == sequencer.NoStep && m.deps.Engine != nil && !m.deps.Engine.IsPlaying() {
			m.playing = false
		}
		return m, m.waitForStep()

	case playStartedMsg:
		if msg.gen != m.playGen {
			// superseded by a later stop; silence a session that started anyway
			if msg.ok && m.playReq == 0 && !m.playing && m.deps.Engine != nil {
				m.deps.Engine.Stop()
			}
			return m, nil
		}
		m.playReq = 0
		if !msg.ok {
			m.playing = false
			m.status = "Audio output unavailable"
			return m, nil
		}
		m.playing = true
		if msg.target {
			m.status = "Listening to the target"
		}
		return m, nil

	case exportDoneMsg:
		m.state = StateResult
		m.outputFile = msg.outputFile
		m.err = msg.err
		return m, nil

	case importDoneMsg:
		if msg.err != nil {
			m.state = StateResult
			m.err = msg.err
			return m, nil
		}
		m.startJam(msg.beat.Name, msg.beat.Pattern, msg.beat.BPM)
		m.status = "Imported " + filepath.Base(m.selectedFile)
		return m, m.playAmbient()

	case shareDoneMsg:
		if msg.err != nil {
			m.status = msg.err.Error()
			return m, nil
		}
		m.status = msg.notice.Message
		m.shareText = ""
		if !msg.notice.OK {
			m.shareText = msg.text
		}
		return m, nil

	case savedMsg:
		if msg.err != nil {
			m.status = "Save failed: " + msg.err.Error()
		} else {
			m.beatKey = msg.key
			m.status = "Saved"
		}
		return m, nil
	}

	return m, nil
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	if m.deps.Engine != nil {
		m.deps.Engine.Stop()
	}
	if m.deps.Soundscape != nil {
		m.deps.Soundscape.StopAllImmediately()
	}
	return m, tea.Quit
}

func (m Model) updateMenu(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.menuIndex > 0 {
			m.menuIndex--
		}
	case "down", "j":
		if m.menuIndex < len(menuItems)-1 {
			m.menuIndex++
		}
	case "enter":
		if m.menuIndex == len(menuItems)-1 {
			return m.quit()
		}
		item := menuItems[m.menuIndex]
		if item.Import {
			m.state = StateFilePicker
			return m, m.filePicker.Init()
		}
		switch item.Mode {
		case ModeDaily:
			m.startDaily()
		case ModeChallenge:
			m.startChallenge(m.level)
		default:
			m.startJam("", pattern.New(), m.bpm)
		}
		return m, m.playAmbient()
	case "q", "ctrl+c":
		return m.quit()
	}
	return m, nil
}

func (m *Model) resetGrid() {
	m.state = StateGrid
	m.grid = pattern.New()
	m.cursorRow, m.cursorCol = 0, 0
	m.activeStep = sequencer.NoStep
	m.attempts = nil
	m.solved, m.failed = false, false
	m.status, m.shareText = "", ""
	m.beatKey = ""
}

func (m *Model) startJam(name string, p pattern.Pattern, bpm int) {
	m.resetGrid()
	m.mode = ModeJam
	m.name = name
	m.grid = p
	m.bpm = pattern.ClampBPM(bpm)
}

func (m *Model) startDaily() {
	m.resetGrid()
	b := daily.Today(m.deps.Now())
	m.mode = ModeDaily
	m.name = b.Name()
	m.target = b.Pattern
	m.bpm = b.BPM
	m.beatKey = b.Key()
	m.restoreProgress()
}

func (m *Model) startChallenge(level int) {
	m.resetGrid()
	b := daily.Challenge(level)
	m.mode = ModeChallenge
	m.level = b.Number
	m.name = fmt.Sprintf("Challenge Level %d", b.Number)
	m.target = b.Pattern
	m.bpm = b.BPM
}

// restoreProgress loads the last submitted grid for today's beat
func (m *Model) restoreProgress() {
	if m.deps.Store == nil {
		return
	}
	rec, ok, err := m.deps.Store.Load(m.ctx, m.beatKey)
	if err != nil {
		m.deps.Logger.Warn("could not load saved progress", "key", m.beatKey, "error", err)
		return
	}
	if ok {
		m.grid = rec.Pattern
	}
}

func (m Model) puzzle() bool {
	return m.mode == ModeDaily || m.mode == ModeChallenge
}

func (m Model) finished() bool {
	return m.solved || m.failed
}

func (m Model) updateGrid(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.cursorRow > 0 {
			m.cursorRow--
		}
	case "down", "j":
		if m.cursorRow < pattern.Rows-1 {
			m.cursorRow++
		}
	case "left", "h":
		if m.cursorCol > 0 {
			m.cursorCol--
		}
	case "right", "l":
		if m.cursorCol < pattern.Cols-1 {
			m.cursorCol++
		}
	case " ", "space", "x":
		return m.toggle()
	case "c":
		if m.finished() {
			return m, nil
		}
		m.grid = pattern.New()
		m.livePattern()
	case "p":
		return m.togglePlay()
	case "t":
		if !m.puzzle() {
			return m, nil
		}
		return m.playTarget()
	case "enter":
		return m.submit()
	case "n":
		if m.mode == ModeChallenge && m.solved && m.level < daily.MaxChallenge {
			m.stopPlayback()
			m.startChallenge(m.level + 1)
			return m, m.playAmbient()
		}
	case "+", "=":
		cmd := m.changeBPM(BPMStep)
		return m, cmd
	case "-", "_":
		cmd := m.changeBPM(-BPMStep)
		return m, cmd
	case "e":
		return m.startExport(converter.FormatMIDI)
	case "w":
		return m.startExport(converter.FormatWAV)
	case "J":
		return m.startExport(converter.FormatJSON)
	case "s":
		return m, m.share()
	case "ctrl+s":
		if m.mode != ModeJam || m.deps.Store == nil {
			return m, nil
		}
		return m, m.save()
	case "m":
		if m.deps.Soundscape != nil {
			muted := !m.deps.Soundscape.Muted()
			m.deps.Soundscape.SetMuted(muted)
			if muted {
				m.status = "Soundscape muted"
			} else {
				m.status = "Soundscape on"
			}
		}
	case "esc":
		m.stopPlayback()
		if m.deps.Soundscape != nil {
			m.deps.Soundscape.FadeOut(m.deps.Soundscape.Current())
		}
		m.state = StateMenu
	case "q", "ctrl+c":
		return m.quit()
	}
	return m, nil
}

func (m Model) toggle() (tea.Model, tea.Cmd) {
	if m.finished() {
		return m, nil
	}
	p, err := m.grid.Toggle(m.cursorRow, m.cursorCol)
	if err != nil {
		return m, nil
	}
	m.grid = p
	m.livePattern()
	if p[m.cursorRow][m.cursorCol] && !m.playing && m.deps.Engine != nil {
		if err := m.deps.Engine.PlayStep(m.cursorRow); err != nil {
			m.deps.Logger.Debug("preview failed", "lane", m.cursorRow, "error", err)
		}
	}
	return m, nil
}

// livePattern pushes the edited grid into a running loop
func (m *Model) livePattern() {
	if m.playing && m.deps.Engine != nil {
		m.deps.Engine.UpdatePattern(m.grid)
	}
}

// changeBPM restarts a running loop since the tempo is fixed per session
func (m *Model) changeBPM(delta int) tea.Cmd {
	if m.puzzle() {
		return nil
	}
	m.bpm = pattern.ClampBPM(m.bpm + delta)
	if m.playing && m.deps.Engine != nil {
		return m.play(m.grid, true, false)
	}
	return nil
}

func (m *Model) stopPlayback() {
	m.playGen++
	m.playReq = 0
	if m.deps.Engine != nil {
		m.deps.Engine.Stop()
	}
	m.playing = false
	m.activeStep = sequencer.NoStep
}

func (m Model) togglePlay() (tea.Model, tea.Cmd) {
	if m.deps.Engine == nil {
		m.status = "No audio output"
		return m, nil
	}
	if m.playing || m.playReq != 0 {
		m.stopPlayback()
		return m, nil
	}
	cmd := m.play(m.grid, true, false)
	return m, cmd
}

func (m Model) playTarget() (tea.Model, tea.Cmd) {
	if m.deps.Engine == nil {
		m.status = "No audio output"
		return m, nil
	}
	m.stopPlayback()
	cmd := m.play(m.target, false, true)
	return m, cmd
}

func (m *Model) play(p pattern.Pattern, loop, target bool) tea.Cmd {
	m.playGen++
	m.playReq = m.playGen
	gen := m.playGen
	engine := m.deps.Engine
	ctx := m.ctx
	bpm := m.bpm
	return func() tea.Msg {
		ok := engine.Play(ctx, p, sequencer.PlayOptions{BPM: bpm, Loop: loop})
		return playStartedMsg{gen: gen, ok: ok, target: target}
	}
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	if !m.puzzle() || m.finished() {
		return m, nil
	}
	if m.grid.IsEmpty() {
		m.status = "Place some notes first"
		return m, nil
	}

	a := pattern.Grade(m.grid, m.target)
	m.attempts = append(m.attempts, a)
	var cmd tea.Cmd
	switch {
	case a.Solved():
		m.solved = true
		m.status = fmt.Sprintf("Solved in %d!", len(m.attempts))
		cmd = m.playTrack(m.deps.Tracks.Victory, false)
	case len(m.attempts) >= share.DefaultMaxAttempts:
		m.failed = true
		m.status = "Out of attempts"
		cmd = m.playTrack(m.deps.Tracks.Loss, false)
	default:
		m.status = fmt.Sprintf("Attempt %d of %d", len(m.attempts), share.DefaultMaxAttempts)
	}

	if m.mode == ModeDaily && m.deps.Store != nil {
		if err := m.deps.Store.Save(m.ctx, m.beatKey, m.grid, m.bpm, m.name); err != nil {
			m.deps.Logger.Warn("could not save progress", "key", m.beatKey, "error", err)
		}
	}
	return m, cmd
}

func (m Model) playAmbient() tea.Cmd {
	return m.playTrack(m.deps.Tracks.Ambient, true)
}

func (m Model) playTrack(path string, loop bool) tea.Cmd {
	sc := m.deps.Soundscape
	if sc == nil || path == "" {
		return nil
	}
	ctx := m.ctx
	logger := m.deps.Logger
	return func() tea.Msg {
		if err := sc.Play(ctx, path, soundscape.Options{Loop: loop, ForceStop: !loop}); err != nil {
			logger.Debug("soundscape unavailable", "path", path, "error", err)
		}
		return nil
	}
}

func (m Model) beat() converter.Beat {
	return converter.Beat{
		Name:      m.name,
		Author:    m.deps.Author,
		Pattern:   m.grid,
		BPM:       m.bpm,
		CreatedAt: m.deps.Now(),
	}
}

func (m Model) startExport(f converter.Format) (tea.Model, tea.Cmd) {
	m.returnTo = StateGrid
	m.state = StateExporting
	return m, tea.Batch(m.spinner.Tick, m.export(f))
}

func (m Model) export(f converter.Format) tea.Cmd {
	conv := m.deps.Converter
	ctx := m.ctx
	b := m.beat()
	dir := m.deps.OutputDir
	return func() tea.Msg {
		out, err := conv.Export(ctx, b, f)
		if err != nil {
			return exportDoneMsg{err: err}
		}
		path := filepath.Join(dir, out.Filename)
		if err := os.WriteFile(path, out.Data, 0644); err != nil {
			return exportDoneMsg{err: err}
		}
		return exportDoneMsg{outputFile: path}
	}
}

func (m Model) importFile(path string) tea.Cmd {
	conv := m.deps.Converter
	return func() tea.Msg {
		data, err := os.ReadFile(path)
		if err != nil {
			return importDoneMsg{err: err}
		}
		b, err := conv.Import(data, converter.DetectFormat(path))
		if err != nil {
			return importDoneMsg{err: err}
		}
		if b.Name == "" {
			b.Name = filepath.Base(path)
		}
		return importDoneMsg{beat: b}
	}
}

// renderShare builds what the share key sends: the spoiler-free result of a
// finished puzzle, otherwise the beat itself with a link.
func (m Model) renderShare() (string, error) {
	if m.puzzle() && m.finished() {
		r := share.Result{
			Title:       m.name,
			BPM:         m.bpm,
			MaxAttempts: share.DefaultMaxAttempts,
			Solved:      m.solved,
			URL:         m.deps.BaseURL,
		}
		for _, a := range m.attempts {
			r.Attempts = append(r.Attempts, share.Summarize(a.Grid, m.target))
		}
		return share.ResultText(r)
	}

	b := share.Beat{Name: m.name, BPM: m.bpm, Pattern: m.grid}
	link := ""
	if m.deps.BaseURL != "" {
		var err error
		if link, err = share.EncodeURL(m.deps.BaseURL, b); err != nil {
			return "", err
		}
	}
	return share.BeatText(b, link)
}

func (m Model) share() tea.Cmd {
	if m.puzzle() && !m.finished() {
		return func() tea.Msg {
			return shareDoneMsg{notice: share.Notice{Message: "Finish the puzzle to share your result", OK: true}}
		}
	}
	text, err := m.renderShare()
	sharer := m.deps.Sharer
	ctx := m.ctx
	return func() tea.Msg {
		if err != nil {
			return shareDoneMsg{err: err}
		}
		return shareDoneMsg{notice: sharer.Share(ctx, text), text: text}
	}
}

func (m Model) save() tea.Cmd {
	repo := m.deps.Store
	ctx := m.ctx
	key := m.beatKey
	if key == "" {
		key = store.NewKey()
	}
	p, bpm, name := m.grid, m.bpm, m.name
	return func() tea.Msg {
		return savedMsg{key: key, err: repo.Save(ctx, key, p, bpm, name)}
	}
}

func (m Model) updateResult(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter", "esc":
		m.err = nil
		m.outputFile = ""
		m.selectedFile = ""
		m.state = m.returnTo
		return m, nil
	case "q", "ctrl+c":
		return m.quit()
	}
	return m, nil
}

// Run starts the TUI application
func Run(deps Deps) error {
	p := tea.NewProgram(New(deps), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
