package theme

import (
	"charm.land/lipgloss/v2"
)

// Color palette, kid-friendly and bright
var (
	Primary   = lipgloss.Color("#8B5CF6") // Vivid Purple
	Secondary = lipgloss.Color("#14B8A6") // Teal
	Accent    = lipgloss.Color("#F97316") // Orange
	Success   = lipgloss.Color("#22C55E") // Green
	Warning   = lipgloss.Color("#EAB308") // Amber
	Error     = lipgloss.Color("#F43F5E") // Rose
	Text      = lipgloss.Color("#F8FAFC") // White
	TextDim   = lipgloss.Color("#94A3B8") // Slate
	BgCard    = lipgloss.Color("#1E293B") // Dark Slate
	Border    = lipgloss.Color("#334155") // Slate
)

// Typography
var (
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(Primary)

	Subtitle = lipgloss.NewStyle().
			Foreground(TextDim)

	Body = lipgloss.NewStyle().
		Foreground(Text)

	Hint = lipgloss.NewStyle().
		Foreground(TextDim).
		Italic(true)

	Label = lipgloss.NewStyle().
		Foreground(TextDim).
		Width(18)
)

// Chat
var (
	ChildName = lipgloss.NewStyle().
			Foreground(Secondary).
			Bold(true)

	BuddyName = lipgloss.NewStyle().
			Foreground(Primary).
			Bold(true)

	Reply = lipgloss.NewStyle().
		Foreground(Text)

	// Notice marks replies the child sees instead of a model answer.
	Notice = lipgloss.NewStyle().
		Foreground(Accent)

	Flag = lipgloss.NewStyle().
		Foreground(BgCard).
		Background(Warning).
		Padding(0, 1)
)

// Cards
var (
	Card = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Border).
		Padding(0, 1)

	UrgentCard = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Error).
			Padding(0, 1)
)

// Severity levels
var (
	SeverityLow = lipgloss.NewStyle().
			Foreground(Success)

	SeverityMedium = lipgloss.NewStyle().
			Foreground(Warning).
			Bold(true)

	SeverityHigh = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)
)

// Bars
var (
	BarFilled = lipgloss.NewStyle().
			Background(Secondary)

	BarEmpty = lipgloss.NewStyle().
			Background(Border)
)
