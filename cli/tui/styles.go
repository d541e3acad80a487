// Package tui implements the interactive views behind the --tui flag.
//
// Views are strictly opt-in and render the same payloads the plain
// renderers receive; nothing is computed only for the TUI.
package tui

import "github.com/charmbracelet/lipgloss"

// Palette shared by every view.
var (
	primaryColor   = lipgloss.Color("#7C3AED")
	successColor   = lipgloss.Color("#10B981")
	warningColor   = lipgloss.Color("#F59E0B")
	errorColor     = lipgloss.Color("#EF4444")
	mutedColor     = lipgloss.Color("#6B7280")
	highlightColor = lipgloss.Color("#3B82F6")
	textColor      = lipgloss.Color("#FFFFFF")
)

var (
	// TitleStyle heads a view.
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(primaryColor).MarginBottom(1)

	// LabelStyle and ValueStyle form the label/value rows of a summary.
	LabelStyle = lipgloss.NewStyle().Foreground(mutedColor).Width(16)
	ValueStyle = lipgloss.NewStyle().Foreground(textColor)

	// Outcome accents.
	SuccessStyle = lipgloss.NewStyle().Foreground(successColor)
	WarningStyle = lipgloss.NewStyle().Foreground(warningColor)
	ErrorStyle   = lipgloss.NewStyle().Foreground(errorColor)

	// BoxStyle frames the finished-pipe summary.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(1, 2)

	// HelpStyle renders the key hints at the bottom of a view.
	HelpStyle = lipgloss.NewStyle().Foreground(mutedColor).MarginTop(1)

	// StatBoxStyle and its value/label companions compose one counter
	// tile in the live view's stat row.
	StatBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(highlightColor).
			Padding(0, 2).
			Width(20).
			Align(lipgloss.Center)
	StatValueStyle = lipgloss.NewStyle().Bold(true).Foreground(textColor).Align(lipgloss.Center)
	StatLabelStyle = lipgloss.NewStyle().Foreground(mutedColor).Align(lipgloss.Center)
)

// StateStyle picks the accent for an outcome or lifecycle state string.
// Unrecognized states render plain.
func StateStyle(state string) lipgloss.Style {
	switch state {
	case "completed", "active":
		return SuccessStyle
	case "running", "in_progress":
		return WarningStyle
	case "stream_error", "sink_error", "cancelled", "failed", "error":
		return ErrorStyle
	}
	return ValueStyle
}
