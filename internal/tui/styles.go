package tui

import "github.com/charmbracelet/lipgloss"

var (
	primary = lipgloss.Color("39")
	accent  = lipgloss.Color("170")
	muted   = lipgloss.Color("240")
	danger  = lipgloss.Color("196")
	success = lipgloss.Color("42")
)

type styles struct {
	Header    lipgloss.Style
	User      lipgloss.Style
	Responder lipgloss.Style
	Timestamp lipgloss.Style
	Body      lipgloss.Style
	Failed    lipgloss.Style
	Panel     lipgloss.Style
	Hint      lipgloss.Style
	Error     lipgloss.Style
	Success   lipgloss.Style
	Input     lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(primary).
			Padding(0, 1),
		User:      lipgloss.NewStyle().Bold(true).Foreground(primary).MarginTop(1),
		Responder: lipgloss.NewStyle().Bold(true).Foreground(accent).MarginTop(1),
		Timestamp: lipgloss.NewStyle().Foreground(muted),
		Body:      lipgloss.NewStyle().PaddingLeft(2),
		Failed:    lipgloss.NewStyle().PaddingLeft(2).Foreground(danger),
		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(muted).
			Padding(0, 1),
		Hint:    lipgloss.NewStyle().Foreground(muted).Italic(true),
		Error:   lipgloss.NewStyle().Foreground(danger),
		Success: lipgloss.NewStyle().Foreground(success),
		Input: lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), true, false, false, false).
			BorderForeground(muted),
	}
}
