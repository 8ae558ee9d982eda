// Package watchview implements the bubbletea progress dashboard `simulate
// run --watch` renders: a message-driven Update/View split tracking
// simulation phase and tick count.
package watchview

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	phaseStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("33"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failureStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

// PhaseMsg reports the Simulation Context entering a new lifecycle phase.
type PhaseMsg struct {
	Phase string
	Time  time.Time
}

// TickMsg reports one completed main-loop iteration.
type TickMsg struct {
	EventTime time.Time
}

// DoneMsg reports Run returning, successfully or not.
type DoneMsg struct {
	Err error
}

// Model is the dashboard's bubbletea state.
type Model struct {
	specName string
	phase    string
	ticks    int
	lastEvt  time.Time
	done     bool
	err      error
}

// New constructs a Model for the given spec name.
func New(specName string) Model {
	return Model{specName: specName, phase: "Initialization"}
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch v := msg.(type) {
	case PhaseMsg:
		m.phase = v.Phase
		return m, nil
	case TickMsg:
		m.ticks++
		m.lastEvt = v.EventTime
		return m, nil
	case DoneMsg:
		m.done = true
		m.err = v.Err
		return m, tea.Quit
	case tea.KeyMsg:
		if v.String() == "ctrl+c" || v.String() == "q" {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m Model) View() string {
	header := titleStyle.Render(fmt.Sprintf("simulate run — %s", m.specName))
	status := phaseStyle.Render("phase: " + m.phase)
	ticks := runningStyle.Render(fmt.Sprintf("ticks: %d", m.ticks))
	if !m.lastEvt.IsZero() {
		ticks += runningStyle.Render(fmt.Sprintf("  event_time: %s", m.lastEvt.Format(time.RFC3339)))
	}

	if m.done {
		if m.err != nil {
			return header + "\n" + status + "\n" + ticks + "\n" + failureStyle.Render("failed: "+m.err.Error()) + "\n"
		}
		return header + "\n" + status + "\n" + ticks + "\n" + successStyle.Render("run complete") + "\n"
	}
	return header + "\n" + status + "\n" + ticks + "\n"
}
