package ui

import "github.com/charmbracelet/lipgloss"

// Styles are the Lip Gloss styles of the interactive board.
type Styles struct {
	Title, Section, Success, Pending, Accent, Muted, Error lipgloss.Style
	Selected, Done, Help, Status                           lipgloss.Style
	Frame, InputFrame                                      lipgloss.Style
}

// StylesFor derives board styles from a theme. Empty colors leave the
// terminal default in place.
func StylesFor(t Theme) Styles {
	fg := func(c lipgloss.Color) lipgloss.Style {
		s := lipgloss.NewStyle()
		if c != "" {
			s = s.Foreground(c)
		}
		return s
	}
	frame := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	if t.BorderColor != "" {
		frame = frame.BorderForeground(t.BorderColor)
	}
	if t.Name == "mono" {
		frame = frame.Border(lipgloss.NormalBorder())
	}
	return Styles{
		Title:      fg(t.TitleColor).Bold(true),
		Section:    fg(t.AccentColor).Bold(true),
		Success:    fg(t.SuccessColor),
		Pending:    fg(t.PendingColor),
		Accent:     fg(t.AccentColor),
		Muted:      lipgloss.NewStyle().Faint(true),
		Error:      fg(t.ErrorColor).Bold(true),
		Selected:   lipgloss.NewStyle().Bold(true).Reverse(true),
		Done:       lipgloss.NewStyle().Faint(true).Strikethrough(true),
		Help:       lipgloss.NewStyle().Faint(true),
		Status:     fg(t.ErrorColor),
		Frame:      frame,
		InputFrame: frame,
	}
}
