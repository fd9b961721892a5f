package tui

import "github.com/charmbracelet/lipgloss"

var (
	// Colors
	colorPrimary   = lipgloss.Color("#7D56F4") // Purple
	colorSecondary = lipgloss.Color("#F4A956") // Orange
	colorText      = lipgloss.Color("#FAFAFA") // White/Light Gray
	colorSubtext   = lipgloss.Color("#777777") // Gray
	colorSuccess   = lipgloss.Color("#43BF6D") // Green
	colorError     = lipgloss.Color("#FF5F5F") // Red

	styleTitle = lipgloss.NewStyle().
			Background(colorPrimary).
			Foreground(colorText).
			Padding(0, 1).
			Bold(true)

	stylePanel = lipgloss.NewStyle().
			Border(lipgloss.ThickBorder()).
			BorderForeground(colorSubtext).
			Padding(0, 1)

	styleBoard = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorPrimary)

	styleLabel = lipgloss.NewStyle().
			Foreground(colorSubtext).
			Width(10)

	styleValue = lipgloss.NewStyle().
			Foreground(colorText)

	styleSelf = lipgloss.NewStyle().
			Foreground(colorSecondary).
			Bold(true)

	stylePlayer = lipgloss.NewStyle().
			Foreground(colorSuccess)

	styleWall = lipgloss.NewStyle().
			Foreground(colorSubtext)

	styleError = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	styleChatFrom = lipgloss.NewStyle().
			Foreground(colorSecondary)
)

// phaseStyle colors the phase badge.
func phaseStyle(name string) lipgloss.Style {
	base := lipgloss.NewStyle().Padding(0, 1).Bold(true).Foreground(colorText)
	switch name {
	case "InGame":
		return base.Background(colorSuccess)
	case "StartingGame":
		return base.Background(colorSecondary)
	default:
		return base.Background(colorSubtext)
	}
}
