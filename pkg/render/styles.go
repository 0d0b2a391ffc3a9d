package render

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/codeGROOVE-dev/merge-ready/pkg/readiness"
)

var (
	colorReady   = lipgloss.Color("#10B981")
	colorPending = lipgloss.Color("#F59E0B")
	colorBlocked = lipgloss.Color("#EF4444")
	colorMuted   = lipgloss.Color("#9CA3AF")
	colorBorder  = lipgloss.Color("#374151")
	colorTitle   = lipgloss.Color("#F3F4F6")
)

var (
	badgeStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorTitle)

	headingStyle = lipgloss.NewStyle().
			Bold(true).
			MarginTop(1)

	mutedStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	issueStyle = lipgloss.NewStyle().
			Foreground(colorBlocked)

	actionStyle = lipgloss.NewStyle().
			Foreground(colorPending)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)
)

// statusColor returns the badge color for a status.
func statusColor(s readiness.Status) lipgloss.Color {
	switch s {
	case readiness.StatusReady:
		return colorReady
	case readiness.StatusPending:
		return colorPending
	default:
		return colorBlocked
	}
}

// checkStyle colors a normalized check state.
func checkStyle(s readiness.CheckState) lipgloss.Style {
	switch s {
	case readiness.CheckSuccess:
		return lipgloss.NewStyle().Foreground(colorReady)
	case readiness.CheckPending:
		return lipgloss.NewStyle().Foreground(colorPending)
	default:
		return lipgloss.NewStyle().Foreground(colorBlocked)
	}
}
