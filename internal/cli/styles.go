package cli

import "github.com/charmbracelet/lipgloss"

// Adaptive colors that work on light and dark terminals.
var (
	colorPurple = lipgloss.AdaptiveColor{Light: "#7B2FBE", Dark: "#B97EFF"}
	colorGreen  = lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#04B575"}
	colorRed    = lipgloss.AdaptiveColor{Light: "#FF4672", Dark: "#FF4672"}
	colorSubtle = lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"}
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPurple).
			PaddingRight(1)

	successStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorGreen)

	failureStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorRed)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorSubtle).
			PaddingLeft(2).
			Width(12)

	valueStyle = lipgloss.NewStyle().
			Bold(true)

	hintStyle = lipgloss.NewStyle().
			Foreground(colorSubtle).
			Italic(true)
)
