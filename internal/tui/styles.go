package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorPrimary = lipgloss.Color("63")
	colorSubtle  = lipgloss.Color("240")
	colorUp      = lipgloss.Color("42")
	colorDown    = lipgloss.Color("196")
	colorWarn    = lipgloss.Color("220")
	colorText    = lipgloss.Color("252")
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorText).
			Background(colorPrimary).
			Padding(0, 1)

	tabStyle = lipgloss.NewStyle().
			Foreground(colorSubtle).
			Padding(0, 1)

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorSubtle).
			Padding(0, 1).
			Width(26)

	cardTitleStyle = lipgloss.NewStyle().Foreground(colorSubtle)
	cardValueStyle = lipgloss.NewStyle().Bold(true).Foreground(colorText)
	upStyle        = lipgloss.NewStyle().Foreground(colorUp)
	downStyle      = lipgloss.NewStyle().Foreground(colorDown)
	noticeStyle    = lipgloss.NewStyle().Foreground(colorWarn)
	mutedStyle     = lipgloss.NewStyle().Foreground(colorSubtle)
	selectedStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)
	errorStyle     = lipgloss.NewStyle().Foreground(colorDown)
)
