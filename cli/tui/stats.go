package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/justapithecus/sluice/metrics"
	"github.com/justapithecus/sluice/pipeline"
)

// pollInterval is how often the live view refreshes the metrics snapshot.
const pollInterval = 250 * time.Millisecond

// LiveView bundles everything the live pipe TUI needs: the collector to
// poll while the pipe runs, and the channel the result arrives on.
type LiveView struct {
	PipeID    string
	Collector *metrics.Collector
	Done      <-chan *pipeline.Result
}

// PipeModel is a Bubble Tea model showing a running pipe's counters,
// refreshed from the metrics collector until the result lands.
type PipeModel struct {
	view     *LiveView
	snap     metrics.Snapshot
	result   *pipeline.Result
	width    int
	height   int
	quitting bool
}

// NewPipeModel creates a live pipe model.
func NewPipeModel(view *LiveView) PipeModel {
	return PipeModel{view: view, snap: view.Collector.Snapshot()}
}

type tickMsg time.Time

type resultMsg struct{ result *pipeline.Result }

func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitResult(done <-chan *pipeline.Result) tea.Cmd {
	return func() tea.Msg {
		return resultMsg{result: <-done}
	}
}

// Init implements tea.Model.
func (m PipeModel) Init() tea.Cmd {
	cmds := []tea.Cmd{tickCmd()}
	if m.view.Done != nil {
		cmds = append(cmds, waitResult(m.view.Done))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m PipeModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		m.snap = m.view.Collector.Snapshot()
		if m.result != nil {
			return m, nil
		}
		return m, tickCmd()

	case resultMsg:
		m.result = msg.result
		m.snap = m.view.Collector.Snapshot()
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m PipeModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render(fmt.Sprintf("Pipe %s", m.view.PipeID)))
	b.WriteString("\n\n")

	boxes := []string{
		m.renderStatBox("Received", m.snap.RecordsReceived, highlightColor),
		m.renderStatBox("Persisted", m.snap.RecordsPersisted, successColor),
		m.renderStatBox("Dropped", m.snap.RecordsDropped, warningColor),
		m.renderStatBox("Frames", m.snap.FramesDecoded, primaryColor),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))

	if m.snap.FrameDecodeErrors > 0 {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("%s %s",
			LabelStyle.Render("Decode Errors:"),
			ErrorStyle.Render(fmt.Sprintf("%d", m.snap.FrameDecodeErrors))))
	}

	b.WriteString("\n")
	if m.result != nil {
		status := string(m.result.Outcome.Status)
		b.WriteString(fmt.Sprintf("%s %s",
			LabelStyle.Render("Outcome:"),
			StateStyle(status).Render(status)))
		if m.result.Outcome.Message != "" {
			b.WriteString("\n")
			b.WriteString(fmt.Sprintf("%s %s",
				LabelStyle.Render("Message:"),
				ValueStyle.Render(m.result.Outcome.Message)))
		}
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("%s %s",
			LabelStyle.Render("Duration:"),
			ValueStyle.Render(m.result.Duration.Round(time.Millisecond).String())))
	} else {
		b.WriteString(fmt.Sprintf("%s %s",
			LabelStyle.Render("Outcome:"),
			WarningStyle.Render("running")))
	}

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return b.String() + "\n" + help
}

func (m PipeModel) renderStatBox(label string, value int64, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)

	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)

	content := lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr)

	return boxStyle.Render(content)
}

// keyMap defines key bindings.
type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// RunPipeTUI runs the live pipe TUI until the user quits.
func RunPipeTUI(view *LiveView) error {
	model := NewPipeModel(view)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderSummary renders a static styled summary of a finished pipe, for
// the --stats flag without full TUI mode.
func RenderSummary(result *pipeline.Result) string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render(fmt.Sprintf("Pipe %s", result.Meta.PipeID)))
	b.WriteString("\n")

	status := string(result.Outcome.Status)
	rows := []struct {
		label string
		value string
		style lipgloss.Style
	}{
		{"Outcome:", status, StateStyle(status)},
		{"Received:", fmt.Sprintf("%d", result.Received), ValueStyle},
		{"Persisted:", fmt.Sprintf("%d", result.Persisted), ValueStyle},
		{"Dropped:", fmt.Sprintf("%d", result.Dropped), ValueStyle},
		{"Flushes:", fmt.Sprintf("%d", result.BatcherStats.Flushes), ValueStyle},
		{"Duration:", result.Duration.Round(time.Millisecond).String(), ValueStyle},
	}
	for _, row := range rows {
		b.WriteString(fmt.Sprintf("%s %s\n",
			LabelStyle.Render(row.label),
			row.style.Render(row.value)))
	}
	if result.Outcome.Message != "" {
		b.WriteString(fmt.Sprintf("%s %s\n",
			LabelStyle.Render("Message:"),
			ValueStyle.Render(result.Outcome.Message)))
	}

	return BoxStyle.Render(strings.TrimRight(b.String(), "\n"))
}
