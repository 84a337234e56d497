// Package theme holds the palette and shared styles of the terminal client.
package theme

import "charm.land/lipgloss/v2"

// Palette
var (
	Brand   = lipgloss.Color("#3B82F6") // Electric blue
	Track   = lipgloss.Color("#06B6D4") // Cyan
	Good    = lipgloss.Color("#10B981") // Emerald
	Bad     = lipgloss.Color("#EF4444") // Red
	Zap     = lipgloss.Color("#FDE047") // Bolt yellow
	Text    = lipgloss.Color("#F1F5F9")
	Muted   = lipgloss.Color("#A1A1AA")
	Outline = lipgloss.Color("#3F3F46")
)

var (
	Title = lipgloss.NewStyle().Bold(true).Foreground(Brand)
	Body  = lipgloss.NewStyle().Foreground(Text)
	Hint  = lipgloss.NewStyle().Foreground(Muted).Italic(true)

	Card = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Outline).
		Padding(0, 2)

	// Banner frames celebrations and results.
	Banner = lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(Zap).
		Bold(true).
		Padding(0, 2)

	Correct   = lipgloss.NewStyle().Foreground(Good).Bold(true)
	Incorrect = lipgloss.NewStyle().Foreground(Bad).Bold(true)
	Hearts    = lipgloss.NewStyle().Foreground(Bad)
	Zaps      = lipgloss.NewStyle().Foreground(Zap).Bold(true)

	ProgressFilled = lipgloss.NewStyle().Background(Track)
	ProgressEmpty  = lipgloss.NewStyle().Background(Outline)
)
