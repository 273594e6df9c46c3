package theme

import (
	"strings"

	"charm.land/lipgloss/v2"
)

// Severity renders a severity word in its color. Unknown levels render
// plain.
func Severity(level string) string {
	switch level {
	case "low":
		return SeverityLow.Render(level)
	case "medium":
		return SeverityMedium.Render(level)
	case "high":
		return SeverityHigh.Render(level)
	}
	return level
}

// Flags renders each flag as a badge.
func Flags(flags []string) string {
	badges := make([]string, 0, len(flags))
	for _, f := range flags {
		badges = append(badges, Flag.Render(f))
	}
	return strings.Join(badges, " ")
}

// Bar renders value/total as a horizontal bar of width cells.
func Bar(value, total float64, width int) string {
	if width < 4 {
		width = 4
	}
	ratio := 0.0
	if total > 0 {
		ratio = value / total
	}
	filled := int(float64(width) * ratio)
	filled = min(max(filled, 0), width)
	return BarFilled.Render(strings.Repeat(" ", filled)) +
		BarEmpty.Render(strings.Repeat(" ", width-filled))
}

// Field renders a dimmed fixed-width label followed by its value.
func Field(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, Label.Render(label), Body.Render(value))
}
