// Package theme holds the console styles for batch narration.
package theme

import "github.com/charmbracelet/lipgloss"

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue   = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen  = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed    = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorGray   = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite  = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
)

// HeaderStyle marks the start of a processing batch.
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	Background(ColorBlue).
	Padding(0, 1)

// SubjectStyle highlights the message currently under review.
var SubjectStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorBlue)

// RegisteredStyle marks a successful registration line.
var RegisteredStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorGreen)

// DownloadedStyle marks a kept-without-registration line.
var DownloadedStyle = lipgloss.NewStyle().
	Foreground(ColorYellow)

// SkippedStyle marks a discarded message line.
var SkippedStyle = lipgloss.NewStyle().
	Foreground(ColorGray)

// ErrorStyle marks a failed message line.
var ErrorStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorRed)

// SummaryStyle wraps the end-of-batch totals.
var SummaryStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Italic(true)

// OutcomeStyle returns the line style for a ledger outcome value.
func OutcomeStyle(outcome string) lipgloss.Style {
	switch outcome {
	case "REGISTERED":
		return RegisteredStyle
	case "DOWNLOADED":
		return DownloadedStyle
	case "SKIPPED":
		return SkippedStyle
	default:
		return ErrorStyle
	}
}
