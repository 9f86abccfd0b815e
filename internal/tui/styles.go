package tui

import (
	"github.com/JPM1118/shipsbell/internal/coordinator"
	"github.com/charmbracelet/lipgloss"
)

var (
	// Colors
	colorActive   = lipgloss.Color("2")  // green
	colorDeferred = lipgloss.Color("3")  // yellow
	colorInactive = lipgloss.Color("8")  // dim gray
	colorDenied   = lipgloss.Color("1")  // red
	colorHeader   = lipgloss.Color("12") // bright blue
	colorMuted    = lipgloss.Color("8")  // dim
	colorClock    = lipgloss.Color("6")  // cyan

	// Styles
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorHeader)

	subheaderStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	clockStyle = lipgloss.NewStyle().
			Foreground(colorClock).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	grantedStyle = lipgloss.NewStyle().
			Foreground(colorActive)

	deniedStyle = lipgloss.NewStyle().
			Foreground(colorDenied)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	notificationBarStyle = lipgloss.NewStyle().
				Foreground(colorMuted).
				Italic(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(colorDenied)
)

// modeStyle returns the style for the ringer mode badge.
func modeStyle(m coordinator.Mode) lipgloss.Style {
	switch m {
	case coordinator.ModeActive:
		return lipgloss.NewStyle().Foreground(colorActive).Bold(true)
	case coordinator.ModeDeferred:
		return lipgloss.NewStyle().Foreground(colorDeferred).Bold(true)
	default:
		return lipgloss.NewStyle().Foreground(colorInactive)
	}
}
