package inbox

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/KimADR/smt-finalV2-sub001/internal/model"
	"github.com/KimADR/smt-finalV2-sub001/internal/theme"
)

// NotificationItem wraps a model.Notification so it can be used in a
// bubbles/list.
type NotificationItem struct {
	Notification model.Notification
}

// FilterValue returns the string used for fuzzy filtering.
func (i NotificationItem) FilterValue() string { return i.Notification.Title }

// Title returns the notification headline.
func (i NotificationItem) Title() string { return i.Notification.Title }

// Description returns a short summary line for the list.
func (i NotificationItem) Description() string {
	parts := []string{
		string(alertType(i.Notification)),
		entrepriseLabel(i.Notification),
		relativeTime(i.Notification.CreatedAt),
	}
	return strings.Join(parts, " | ")
}

// ItemDelegate implements list.ItemDelegate for rendering notifications.
type ItemDelegate struct{}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single notification line.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(NotificationItem)
	if !ok {
		return
	}
	n := it.Notification

	marker := "●"
	if n.Read {
		marker = "○"
	}

	badge := ""
	if t := alertType(n); t != "" {
		badge = theme.AlertTypeStyle(t).Render(string(t)) + " "
	}

	title := n.Title
	if title == "" {
		title = n.Message
	}

	entreprise := ""
	if label := entrepriseLabel(n); label != "" {
		entreprise = lipgloss.NewStyle().
			Foreground(theme.ColorMagenta).
			Render("  " + label)
	}

	pending := ""
	if n.IsTemporary() {
		pending = theme.PendingStyle.Render(" …")
	}

	timeStr := lipgloss.NewStyle().
		Foreground(theme.ColorGray).
		Render(relativeTime(n.CreatedAt))

	line := fmt.Sprintf("%s %s%s%s%s  %s", marker, badge, title, entreprise, pending, timeStr)

	if n.Read {
		line = theme.DimmedStyle.Render(line)
	}

	if index == m.Index() {
		line = theme.SelectedItemStyle.Render(line)
	} else {
		line = theme.ListItemStyle.Render(line)
	}

	fmt.Fprint(w, line)
}

func alertType(n model.Notification) model.AlertType {
	if n.Alert == nil {
		return ""
	}
	return n.Alert.Type
}

func entrepriseLabel(n model.Notification) string {
	if n.Alert == nil || n.Alert.Entreprise == nil {
		return ""
	}
	e := n.Alert.Entreprise
	switch {
	case e.Name != "":
		return e.Name
	case e.Siret != "":
		return "SIRET " + e.Siret
	default:
		return ""
	}
}

// relativeTime returns a human-friendly relative time string.
func relativeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Local().Format("Jan 02")
	}
}
