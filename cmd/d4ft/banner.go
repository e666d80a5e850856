package main

import "github.com/charmbracelet/lipgloss"

var completionStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("42")).
	Padding(0, 1).
	BorderStyle(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("42"))

// completionBanner renders a short styled summary line for a finished
// transfer.
func completionBanner(summary string) string {
	return completionStyle.Render(summary)
}
