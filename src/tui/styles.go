package tui

import (
	"github.com/charmbracelet/lipgloss"

	"bbpipe/src/bitbucket"
)

// StyleConfig holds all customizable style colors for the wait UI.
type StyleConfig struct {
	PrimaryBlue   lipgloss.Color
	TextPrimary   lipgloss.Color
	TextSecondary lipgloss.Color
	BorderColor   lipgloss.Color
	SpinnerColor  lipgloss.Color

	// Outcome colors
	Success       lipgloss.Color
	Failure       lipgloss.Color
	Indeterminate lipgloss.Color
}

// DefaultStyles returns the default color palette
func DefaultStyles() *StyleConfig {
	return &StyleConfig{
		PrimaryBlue:   lipgloss.Color("#8AB4F8"),
		TextPrimary:   lipgloss.Color("#E8EAED"),
		TextSecondary: lipgloss.Color("#9AA0A6"),
		BorderColor:   lipgloss.Color("#5F6368"),
		SpinnerColor:  lipgloss.Color("#FFD700"),
		Success:       lipgloss.Color("#34A853"),
		Failure:       lipgloss.Color("#EA4335"),
		Indeterminate: lipgloss.Color("#FBBC04"),
	}
}

// TitleStyle returns a title lipgloss style using this config
func (s *StyleConfig) TitleStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(s.PrimaryBlue).
		Bold(true)
}

// HelpStyle returns a help text lipgloss style using this config
func (s *StyleConfig) HelpStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(s.TextSecondary)
}

// PanelStyle frames the live status block.
func (s *StyleConfig) PanelStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(s.TextPrimary).
		Padding(0, 1).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(s.BorderColor)
}

// OutcomeStyle colors text by outcome.
func (s *StyleConfig) OutcomeStyle(o bitbucket.Outcome) lipgloss.Style {
	style := lipgloss.NewStyle().Bold(true)
	switch o {
	case bitbucket.OutcomeSuccess:
		return style.Foreground(s.Success)
	case bitbucket.OutcomeFailure:
		return style.Foreground(s.Failure)
	default:
		return style.Foreground(s.Indeterminate)
	}
}

// OutcomeSymbol is the one-character marker shown next to an outcome.
func OutcomeSymbol(o bitbucket.Outcome) string {
	switch o {
	case bitbucket.OutcomeSuccess:
		return "✓"
	case bitbucket.OutcomeFailure:
		return "✗"
	default:
		return "•"
	}
}
