package tui

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"
)

// VisualWidth returns the number of terminal cells s occupies, ignoring ANSI
// styling.
func VisualWidth(s string) int {
	return runewidth.StringWidth(ansi.Strip(s))
}

// fitCell makes s exactly width cells wide. Longer values are cut, ending in
// "..." when marked is set and the column has room for it. Styling survives.
func fitCell(s string, width int, marked bool) string {
	if width <= 0 {
		return ""
	}
	s = strings.TrimSpace(s)
	if VisualWidth(s) > width {
		tail := ""
		if marked && width > 3 {
			tail = "..."
		}
		s = ansi.Truncate(s, width, tail)
	}
	// A wide rune cut at the boundary can leave the cell one short.
	return s + strings.Repeat(" ", width-VisualWidth(s))
}

// wrapLine breaks a status or error line to fit width cells. Paths and URLs
// also break after "/" so a long build link does not overflow the panel.
func wrapLine(s string, width int) string {
	if width <= 0 {
		return s
	}
	return ansi.Wrap(s, width, " /")
}
