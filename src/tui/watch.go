// Package tui renders the live wait view and the run history.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"bbpipe/src/bitbucket"
	"bbpipe/src/broker"
	"bbpipe/src/contracts"
)

// maxTransitions is how many state changes the view keeps on screen.
const maxTransitions = 6

// EventMsg delivers one observed pipeline state to the model.
type EventMsg contracts.PipelineEvent

// DoneMsg ends the view once the wait has returned.
type DoneMsg struct {
	Outcome bitbucket.Outcome
	Err     error
}

type eventsClosedMsg struct{}

// WatchModel shows a spinner and the latest state of a pipeline while the
// CLI waits on it.
type WatchModel struct {
	title       string
	events      <-chan broker.Message
	spinner     spinner.Model
	styles      *StyleConfig
	last        *contracts.PipelineEvent
	transitions []string
	width       int

	done    bool
	aborted bool
	outcome bitbucket.Outcome
	err     error
}

// NewWatchModel creates a model that reads pipeline events from events.
// events may be nil when the caller sends EventMsg itself.
func NewWatchModel(title string, events <-chan broker.Message) WatchModel {
	styles := DefaultStyles()
	return WatchModel{
		title:  title,
		events: events,
		styles: styles,
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(lipgloss.NewStyle().Foreground(styles.SpinnerColor)),
		),
	}
}

// waitForEvent blocks on the next decodable event. Undecodable messages are
// skipped.
func waitForEvent(ch <-chan broker.Message) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		for {
			msg, ok := <-ch
			if !ok {
				return eventsClosedMsg{}
			}
			ev, err := broker.DecodePipelineEvent(msg)
			if err != nil {
				continue
			}
			return EventMsg(ev)
		}
	}
}

func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events))
}

func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			if !m.done {
				m.aborted = true
			}
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case EventMsg:
		ev := contracts.PipelineEvent(msg)
		status := eventStatus(ev)
		if m.last == nil || eventStatus(*m.last) != status {
			m.transitions = append(m.transitions, fmt.Sprintf("round %d: %s", ev.Round, status))
			if len(m.transitions) > maxTransitions {
				m.transitions = m.transitions[len(m.transitions)-maxTransitions:]
			}
		}
		m.last = &ev
		return m, waitForEvent(m.events)

	case eventsClosedMsg:
		m.events = nil

	case DoneMsg:
		m.done = true
		m.outcome = msg.Outcome
		m.err = msg.Err
		return m, tea.Quit
	}

	return m, nil
}

// eventStatus formats an event's state the way Pipeline.Describe does.
func eventStatus(ev contracts.PipelineEvent) string {
	switch {
	case ev.Result != "":
		return fmt.Sprintf("%s (%s)", ev.State, ev.Result)
	case ev.Stage != "":
		return ev.State + "/" + ev.Stage
	default:
		return ev.State
	}
}

func (m WatchModel) buildLabel() string {
	if m.last == nil || m.last.BuildNumber == 0 {
		return "Build"
	}
	return fmt.Sprintf("Build #%d", m.last.BuildNumber)
}

func (m WatchModel) View() string {
	var b strings.Builder

	b.WriteString(m.styles.TitleStyle().Render(m.title))
	b.WriteString("\n")
	if m.last != nil {
		if m.last.Branch != "" {
			b.WriteString(m.styles.HelpStyle().Render(fmt.Sprintf("%s on %s", m.buildLabel(), m.last.Branch)))
			b.WriteString("\n")
		}
		if m.last.BuildURL != "" {
			b.WriteString(m.styles.HelpStyle().Render(m.last.BuildURL))
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")

	var status string
	switch {
	case m.done:
		status = m.resultLine()
	case m.last != nil:
		status = fmt.Sprintf("%s %s  round %d", m.spinner.View(), eventStatus(*m.last), m.last.Round)
	default:
		status = fmt.Sprintf("%s Waiting for first status...", m.spinner.View())
	}

	lines := append([]string{status}, m.transitions...)
	b.WriteString(m.styles.PanelStyle().Render(strings.Join(lines, "\n")))
	b.WriteString("\n")

	if !m.done {
		b.WriteString(m.styles.HelpStyle().Render("q: stop waiting"))
		b.WriteString("\n")
	}
	return b.String()
}

func (m WatchModel) resultLine() string {
	if m.err != nil {
		text := fmt.Sprintf("%s %s: %v", OutcomeSymbol(bitbucket.OutcomeFailure), m.buildLabel(), m.err)
		if m.width > 4 {
			text = wrapLine(text, m.width-4)
		}
		return m.styles.OutcomeStyle(bitbucket.OutcomeFailure).Render(text)
	}

	var text string
	switch m.outcome {
	case bitbucket.OutcomeSuccess:
		text = m.buildLabel() + " complete!"
	case bitbucket.OutcomeFailure:
		text = m.buildLabel() + " failed."
	default:
		text = m.buildLabel() + " incomplete."
	}
	return m.styles.OutcomeStyle(m.outcome).Render(OutcomeSymbol(m.outcome) + " " + text)
}

// Done reports whether the wait finished before the view closed.
func (m WatchModel) Done() bool { return m.done }

// Aborted reports whether the user closed the view before the wait ended.
func (m WatchModel) Aborted() bool { return m.aborted }

// Outcome is the outcome carried by DoneMsg.
func (m WatchModel) Outcome() bitbucket.Outcome { return m.outcome }

// Err is the error carried by DoneMsg.
func (m WatchModel) Err() error { return m.err }
