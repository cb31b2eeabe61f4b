// Package theme holds the terminal palette and shared styles.
package theme

import "charm.land/lipgloss/v2"

var (
	Primary = lipgloss.Color("#2563EB") // Blue
	Success = lipgloss.Color("#16A34A") // Green
	Error   = lipgloss.Color("#DC2626") // Red
	Text    = lipgloss.Color("#F8FAFC") // White
	TextDim = lipgloss.Color("#94A3B8") // Slate
)

var (
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(Primary)

	Body = lipgloss.NewStyle().
		Foreground(Text)

	Hint = lipgloss.NewStyle().
		Foreground(TextDim).
		Italic(true)

	Correct = lipgloss.NewStyle().
		Foreground(Success).
		Bold(true)

	Wrong = lipgloss.NewStyle().
		Foreground(Error).
		Bold(true)
)
