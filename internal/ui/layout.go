package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/KimADR/smt-finalV2-sub001/internal/theme"
)

// Layout manages the header / content / status bar split of the terminal.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	StatusBarHeight int
}

// NewLayout creates a Layout with the given terminal dimensions.
// HeaderHeight and StatusBarHeight default to 1.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		StatusBarHeight: 1,
	}
}

// ContentWidth returns the full available width.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the height available for the main content area,
// accounting for the header and status bar.
func (l Layout) ContentHeight() int {
	return l.Height - l.HeaderHeight - l.StatusBarHeight
}

// RenderHeader renders the top header bar with a title on the left and the
// already styled connection label on the right.
func (l Layout) RenderHeader(title string, connection string) string {
	titleRendered := theme.HeaderStyle.Render(title)

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		titleRendered,
		fill(theme.HeaderStyle, l.Width-lipgloss.Width(titleRendered)-lipgloss.Width(connection)),
		connection,
	)
}

// RenderStatusBar renders the bottom status bar with keyboard hints.
func (l Layout) RenderStatusBar(hints string) string {
	return l.renderBar(theme.StatusBarStyle, hints)
}

// RenderErrorBar renders the bottom bar in the error style.
func (l Layout) RenderErrorBar(message string) string {
	return l.renderBar(theme.ErrorBarStyle, message)
}

func (l Layout) renderBar(style lipgloss.Style, text string) string {
	rendered := style.Render(text)
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered, fill(style, l.Width-lipgloss.Width(rendered)))
}

// fill returns width cells painted with style's background.
func fill(style lipgloss.Style, width int) string {
	if width < 0 {
		width = 0
	}
	return lipgloss.NewStyle().
		Width(width).
		Background(style.GetBackground()).
		Render("")
}

// RenderWithFrame composes a full terminal view by vertically joining
// the header, content area, and status bar.
func (l Layout) RenderWithFrame(
	header string,
	content string,
	statusBar string,
) string {
	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		content,
		statusBar,
	)
}
