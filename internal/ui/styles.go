package ui

import "github.com/charmbracelet/lipgloss"

// Styles holds the lipgloss styles used by the terminal UI.
type Styles struct {
	Title       lipgloss.Style
	Selected    lipgloss.Style
	Item        lipgloss.Style
	Description lipgloss.Style
	Playing     lipgloss.Style
	History     lipgloss.Style
	Info        lipgloss.Style
	Error       lipgloss.Style
	Controls    lipgloss.Style
}

// DefaultStyles returns the standard color scheme. When noColor is set
// (NO_COLOR environment or config) only bold and reverse are used.
func DefaultStyles(noColor bool) Styles {
	if noColor {
		reset := lipgloss.NewStyle()
		return Styles{
			Title:       reset.Bold(true),
			Selected:    reset.Reverse(true),
			Item:        reset,
			Description: reset,
			Playing:     reset.Bold(true),
			History:     reset,
			Info:        reset.Bold(true),
			Error:       reset.Bold(true).Underline(true),
			Controls:    reset,
		}
	}
	return Styles{
		Title:       lipgloss.NewStyle().Foreground(lipgloss.Color("#8EEBFF")).Bold(true),
		Selected:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FFA7C4")).Bold(true),
		Item:        lipgloss.NewStyle().Foreground(lipgloss.Color("#E6E6FA")),
		Description: lipgloss.NewStyle().Foreground(lipgloss.Color("#6C6F93")),
		Playing:     lipgloss.NewStyle().Foreground(lipgloss.Color("#5CFF5C")).Bold(true),
		History:     lipgloss.NewStyle().Foreground(lipgloss.Color("#E6E6FA")),
		Info:        lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD166")).Bold(true),
		Error:       lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F56")).Bold(true),
		Controls:    lipgloss.NewStyle().Foreground(lipgloss.Color("#6C6F93")),
	}
}
