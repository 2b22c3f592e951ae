package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/james-see/beatgrid/pkg/pattern"
	"github.com/james-see/beatgrid/pkg/share"
)

// Acid-inspired color scheme
var (
	acidGreen  = lipgloss.Color("#39FF14")
	acidYellow = lipgloss.Color("#FFFF00")
	silverGray = lipgloss.Color("#C0C0C0")
	darkGray   = lipgloss.Color("#333333")
	dimGray    = lipgloss.Color("#666666")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(acidGreen).
			Background(darkGray).
			Padding(0, 2).
			MarginBottom(1)

	menuStyle = lipgloss.NewStyle().
			Foreground(silverGray).
			PaddingLeft(2)

	selectedStyle = lipgloss.NewStyle().
			Foreground(acidGreen).
			Bold(true).
			PaddingLeft(2)

	statusStyle = lipgloss.NewStyle().
			Foreground(acidYellow).
			PaddingTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(acidGreen).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(dimGray).
			MarginTop(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(acidGreen).
			Padding(1, 2)

	laneStyle   = lipgloss.NewStyle().Width(11).Foreground(silverGray)
	restStyle   = lipgloss.NewStyle().Foreground(dimGray)
	cursorStyle = lipgloss.NewStyle().Reverse(true)
	headStyle   = lipgloss.NewStyle().Background(darkGray)
	wrongStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
)

// View renders the TUI
func (m Model) View() string {
	var s strings.Builder

	s.WriteString(asciiLogo())
	s.WriteString("\n")

	switch m.state {
	case StateMenu:
		s.WriteString(m.viewMenu())
		s.WriteString("\n")
		s.WriteString(helpStyle.Render("↑/↓: navigate • enter: select • q: quit"))
	case StateGrid:
		s.WriteString(m.viewGrid())
	case StateFilePicker:
		s.WriteString(m.viewFilePicker())
	case StateExporting:
		s.WriteString(m.viewWorking())
	case StateResult:
		s.WriteString(m.viewResult())
	}

	return s.String()
}

func (m Model) viewMenu() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" SELECT MODE "))
	s.WriteString("\n\n")

	for i, item := range menuItems {
		if i == m.menuIndex {
			s.WriteString(selectedStyle.Render(fmt.Sprintf("▸ %s", item.Title)))
			s.WriteString("\n")
			s.WriteString(lipgloss.NewStyle().Foreground(acidYellow).PaddingLeft(4).Render(item.Description))
		} else {
			s.WriteString(menuStyle.Render(fmt.Sprintf("  %s", item.Title)))
		}
		s.WriteString("\n")
	}

	return boxStyle.Render(s.String())
}

// lastResult is the grading of the most recent attempt, if any
func (m Model) lastResult() (pattern.Attempt, bool) {
	if len(m.attempts) == 0 {
		return pattern.Attempt{}, false
	}
	last := m.attempts[len(m.attempts)-1]
	return last, last.Grid == m.grid
}

func (m Model) cell(row, col int) string {
	on := m.grid[row][col]
	glyph := "·"
	style := restStyle
	if on {
		glyph = "■"
		style = lipgloss.NewStyle().Foreground(lipgloss.Color(pattern.Instruments[row].Color))
		if a, graded := m.lastResult(); graded && a.Result[row][col] == pattern.CellIncorrect {
			glyph = "✗"
			style = wrongStyle
		}
	}
	if col == m.activeStep {
		style = style.Inherit(headStyle)
	}
	if row == m.cursorRow && col == m.cursorCol {
		style = style.Inherit(cursorStyle)
	}
	return style.Render(glyph)
}

func (m Model) viewGrid() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" " + strings.ToUpper(m.title()) + " "))
	s.WriteString("\n")
	s.WriteString(fmt.Sprintf("♪ %d BPM  %d notes", m.bpm, m.grid.CountNotes()))
	if m.playing {
		s.WriteString(successStyle.Render("  ▶ playing"))
	}
	s.WriteString("\n\n")

	for row := 0; row < pattern.Rows; row++ {
		s.WriteString(laneStyle.Render(pattern.Instruments[row].Name))
		for col := 0; col < pattern.Cols; col++ {
			if col > 0 && col%pattern.StepsPerBeat == 0 {
				s.WriteString(" ")
			}
			s.WriteString(m.cell(row, col))
		}
		s.WriteString("\n")
	}

	if len(m.attempts) > 0 {
		s.WriteString("\n")
		for _, a := range m.attempts {
			sum := share.Summarize(a.Grid, m.target)
			s.WriteString(strings.Repeat(share.SquareCorrect, sum.Correct))
			s.WriteString(strings.Repeat(share.SquareIncorrect, sum.Incorrect))
			s.WriteString(strings.Repeat(share.SquareMissing, sum.Missing))
			s.WriteString("\n")
		}
	}

	if m.status != "" {
		s.WriteString(statusStyle.Render(m.status))
		s.WriteString("\n")
	}
	if m.shareText != "" {
		s.WriteString("\n")
		s.WriteString(m.shareText)
	}

	s.WriteString(helpStyle.Render(m.gridHelp()))
	return boxStyle.Render(s.String())
}

func (m Model) title() string {
	if m.name != "" {
		return m.name
	}
	return "Jam"
}

func (m Model) gridHelp() string {
	keys := []string{"arrows: move", "space: toggle", "p: play/stop"}
	if m.mode == ModeDaily || m.mode == ModeChallenge {
		keys = append(keys, "t: hear target", "enter: submit")
		if m.mode == ModeChallenge && m.solved {
			keys = append(keys, "n: next level")
		}
	} else {
		keys = append(keys, "+/-: tempo", "ctrl+s: save")
	}
	keys = append(keys, "e/w/J: export midi/wav/json", "s: share", "m: mute", "esc: menu")
	return strings.Join(keys, " • ")
}

func (m Model) viewFilePicker() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" SELECT BEAT FILE "))
	s.WriteString("\n\n")
	s.WriteString(m.filePicker.View())
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("esc: back to menu"))

	return s.String()
}

func (m Model) viewWorking() string {
	var s strings.Builder

	if m.selectedFile != "" {
		s.WriteString(titleStyle.Render(" IMPORTING "))
		s.WriteString("\n\n")
		s.WriteString(fmt.Sprintf("%s Reading %s...\n", m.spinner.View(), filepath.Base(m.selectedFile)))
	} else {
		s.WriteString(titleStyle.Render(" EXPORTING "))
		s.WriteString("\n\n")
		s.WriteString(fmt.Sprintf("%s Rendering %s...\n", m.spinner.View(), m.title()))
	}

	return boxStyle.Render(s.String())
}

func (m Model) viewResult() string {
	var s strings.Builder

	if m.err != nil {
		s.WriteString(titleStyle.Render(" ERROR "))
		s.WriteString("\n\n")
		s.WriteString(errorStyle.Render(fmt.Sprintf("✗ Failed: %s", m.err.Error())))
	} else {
		s.WriteString(titleStyle.Render(" SUCCESS "))
		s.WriteString("\n\n")
		s.WriteString(successStyle.Render("✓ Export complete!"))
		s.WriteString("\n\n")
		s.WriteString(fmt.Sprintf("Output: %s", filepath.Base(m.outputFile)))
	}

	s.WriteString("\n\n")
	s.WriteString(helpStyle.Render("Press enter to continue"))

	return boxStyle.Render(s.String())
}

func asciiLogo() string {
	logo := `
  ___  ___   _ _____ ___ ___ ___ ___
 | _ )| __| /_\_   _/ __| _ \_ _|   \
 | _ \| _| / _ \| || (_ |   /| || |) |
 |___/|___/_/ \_\_| \___|_|_\___|___/
`
	return lipgloss.NewStyle().Foreground(acidGreen).Render(logo)
}
