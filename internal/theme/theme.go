package theme

import "github.com/charmbracelet/lipgloss"

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue   = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen  = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed    = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorOrange = lipgloss.AdaptiveColor{Dark: "#FFA94D", Light: "#C05621"}
	ColorGray   = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite  = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	ColorSubtle = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#CBD5E0"}
	ColorBorder = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

// HeaderStyle is used for section titles in command output.
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	Background(ColorBlue).
	Padding(0, 1)

// TableHeaderStyle is used for table column headers.
var TableHeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorBlue).
	Padding(0, 1)

// CellStyle is the base style for table cells.
var CellStyle = lipgloss.NewStyle().
	Padding(0, 1)

// HelpStyle is used for hints and empty-state messages.
var HelpStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Italic(true)

// ErrorStyle is used for error lines printed to the terminal.
var ErrorStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorRed)

// OutcomeStyle returns a color-coded style for an outcome name as
// stored in the history log.
func OutcomeStyle(outcome string) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Padding(0, 1)

	switch outcome {
	case "replied":
		return base.Foreground(ColorGreen)
	case "dropped":
		return base.Foreground(ColorGray)
	case "rate_limited":
		return base.Foreground(ColorYellow)
	case "send_failed":
		return base.Foreground(ColorOrange)
	case "failed":
		return base.Foreground(ColorRed)
	default:
		return base.Foreground(ColorGray)
	}
}

// UsageStyle colors a request count by how close it is to limit.
func UsageStyle(count, limit int) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Padding(0, 1)

	switch {
	case limit > 0 && count >= limit:
		return base.Foreground(ColorRed)
	case limit > 0 && count*5 >= limit*4:
		return base.Foreground(ColorYellow)
	default:
		return base.Foreground(ColorGreen)
	}
}
