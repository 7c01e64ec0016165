package dashboard

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/beamtop/beamtop/internal/ui"
)

// Width breakpoints for the responsive layout.
const (
	breakpointCompact = 80
	breakpointWide    = 120
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(ui.ColorPrimary).
			Bold(true).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Foreground(ui.ColorInfo).
			Bold(true)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(ui.ColorMuted)

	labelStyle = lipgloss.NewStyle().
			Foreground(ui.ColorSecondary)

	valueStyle = lipgloss.NewStyle().
			Foreground(ui.ColorPrimary)

	mutedStyle = lipgloss.NewStyle().
			Foreground(ui.ColorMuted)

	partialStyle = lipgloss.NewStyle().
			Foreground(ui.ColorWarning)

	errorStyle = lipgloss.NewStyle().
			Foreground(ui.ColorError)

	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ui.ColorMuted).
			Padding(0, 1)

	footerStyle = lipgloss.NewStyle().
			Foreground(ui.ColorMuted).
			Padding(0, 1)
)
