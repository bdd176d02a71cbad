package output

import "github.com/charmbracelet/lipgloss"

// Styles holds the lipgloss styles used in text mode.
type Styles struct {
	Header1   lipgloss.Style
	Header2   lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Info      lipgloss.Style
	ModelPath lipgloss.Style
}

// NewStyles returns colored styles, or plain ones when color is false.
func NewStyles(color bool) *Styles {
	if !color {
		plain := lipgloss.NewStyle()
		return &Styles{
			Header1: plain, Header2: plain, Bold: plain, Muted: plain,
			Success: plain, Warning: plain, Error: plain, Info: plain, ModelPath: plain,
		}
	}
	return &Styles{
		Header1:   lipgloss.NewStyle().Bold(true).Underline(true).Foreground(lipgloss.Color("12")),
		Header2:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14")),
		Bold:      lipgloss.NewStyle().Bold(true),
		Muted:     lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		Success:   lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		Warning:   lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		Error:     lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		Info:      lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
		ModelPath: lipgloss.NewStyle().Foreground(lipgloss.Color("13")),
	}
}
