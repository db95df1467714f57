package console

import "github.com/charmbracelet/lipgloss"

// Dracula palette.
const (
	draculaComment = "#6272A4"
	draculaCyan    = "#8BE9FD"
	draculaGreen   = "#50FA7B"
	draculaPink    = "#FF79C6"
	draculaRed     = "#FF5555"
	draculaYellow  = "#F1FA8C"
)

type styles struct {
	title, index, address, help, prompt, reply, err lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:   lipgloss.NewStyle().Foreground(lipgloss.Color(draculaPink)).Bold(true),
		index:   lipgloss.NewStyle().Foreground(lipgloss.Color(draculaYellow)),
		address: lipgloss.NewStyle().Foreground(lipgloss.Color(draculaComment)),
		help:    lipgloss.NewStyle().Foreground(lipgloss.Color(draculaComment)),
		prompt:  lipgloss.NewStyle().Foreground(lipgloss.Color(draculaCyan)),
		reply:   lipgloss.NewStyle().Foreground(lipgloss.Color(draculaGreen)),
		err:     lipgloss.NewStyle().Foreground(lipgloss.Color(draculaRed)).Bold(true),
	}
}
