package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorRed    = lipgloss.Color("#FF5F5F")
	colorGreen  = lipgloss.Color("#5FFF87")
	colorYellow = lipgloss.Color("#FFD75F")
	colorGray   = lipgloss.Color("#666666")
	colorCyan   = lipgloss.Color("#5FD7FF")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)

	recordingDotStyle = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	pausedDotStyle    = lipgloss.NewStyle().Foreground(colorYellow).Bold(true)
	idleDotStyle      = lipgloss.NewStyle().Foreground(colorGray)
	readyDotStyle     = lipgloss.NewStyle().Foreground(colorGreen)

	stageStyle = lipgloss.NewStyle().Foreground(colorYellow)
	errorStyle = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	helpStyle  = lipgloss.NewStyle().Foreground(colorGray)

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorGray).
			Padding(0, 1)

	paneTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
)
