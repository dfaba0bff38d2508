package inbox

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/KimADR/smt-finalV2-sub001/internal/keys"
	"github.com/KimADR/smt-finalV2-sub001/internal/model"
	"github.com/KimADR/smt-finalV2-sub001/internal/notify"
	"github.com/KimADR/smt-finalV2-sub001/internal/theme"
)

// actionTimeout bounds a single mutation round trip.
const actionTimeout = 15 * time.Second

// Mutator performs the inbox actions. *notify.Reconciler implements it.
type Mutator interface {
	MarkRead(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64, opts ...notify.DeleteOption) error
	Refresh(ctx context.Context) error
}

// ActionFailedMsg is sent when a mutation or refresh fails.
type ActionFailedMsg struct {
	Action string
	Err    error
}

func (m ActionFailedMsg) Error() string {
	return fmt.Sprintf("%s failed: %v", m.Action, m.Err)
}

// ActionDoneMsg is sent when a mutation succeeds.
type ActionDoneMsg struct {
	Action string
}

type pendingDelete struct {
	id            int64
	title         string
	highAssurance bool
}

// Model is the notification inbox view.
type Model struct {
	list    list.Model
	mutator Mutator
	keys    *keys.KeyMap

	confirm   *huh.Form
	confirmed *bool
	pending   *pendingDelete

	width  int
	height int
}

// New creates an empty inbox.
func New(mut Mutator, k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height)
	l.Title = "Notifications"
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle
	// Quitting is the root model's job; esc must not end the program.
	l.KeyMap.Quit.SetEnabled(false)

	return Model{
		list:    l,
		mutator: mut,
		keys:    k,
		width:   width,
		height:  height,
	}
}

// SetNotifications replaces the listed notifications, keeping the cursor
// in range.
func (m *Model) SetNotifications(ns []model.Notification) tea.Cmd {
	items := make([]list.Item, len(ns))
	for i, n := range ns {
		items[i] = NotificationItem{Notification: n}
	}
	idx := m.list.Index()
	cmd := m.list.SetItems(items)
	if idx >= len(items) && len(items) > 0 {
		m.list.Select(len(items) - 1)
	}
	return cmd
}

// Selected returns the focused notification.
func (m Model) Selected() (model.Notification, bool) {
	it, ok := m.list.SelectedItem().(NotificationItem)
	if !ok {
		return model.Notification{}, false
	}
	return it.Notification, true
}

// Confirming reports whether the delete confirmation has the focus.
func (m Model) Confirming() bool {
	return m.confirm != nil
}

// Update handles messages for the inbox.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.confirm != nil {
		return m.updateConfirm(msg)
	}

	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, m.keys.MarkRead):
			n, ok := m.Selected()
			if !ok || n.Read {
				return m, nil
			}
			return m, m.markRead(n.ID)

		case key.Matches(msg, m.keys.Delete):
			return m.startDelete(false)

		case key.Matches(msg, m.keys.DeleteHighAssurance):
			return m.startDelete(true)

		case key.Matches(msg, m.keys.Refresh):
			return m, m.refresh()
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) startDelete(highAssurance bool) (Model, tea.Cmd) {
	n, ok := m.Selected()
	if !ok {
		return m, nil
	}
	m.pending = &pendingDelete{id: n.ID, title: n.Title, highAssurance: highAssurance}
	m.confirmed = new(bool)
	m.confirm = m.buildDeleteConfirmForm()
	return m, m.confirm.Init()
}

func (m Model) buildDeleteConfirmForm() *huh.Form {
	desc := "The notification is removed from your inbox."
	if m.pending.highAssurance {
		desc = "The notification stays hidden for five minutes even if the server is slow to catch up."
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Delete %q?", m.pending.title)).
				Description(desc).
				Affirmative("Yes, delete").
				Negative("Cancel").
				Value(m.confirmed),
		),
	).WithWidth(m.width - 4).WithShowHelp(false)
}

func (m Model) updateConfirm(msg tea.Msg) (Model, tea.Cmd) {
	mdl, cmd := m.confirm.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.confirm = f
	}

	switch m.confirm.State {
	case huh.StateCompleted:
		return m.resolveDelete(*m.confirmed)
	case huh.StateAborted:
		return m.resolveDelete(false)
	}
	return m, cmd
}

// resolveDelete closes the confirmation and, when confirmed, issues the
// delete for the pending notification.
func (m Model) resolveDelete(confirmed bool) (Model, tea.Cmd) {
	p := m.pending
	m.confirm = nil
	m.confirmed = nil
	m.pending = nil

	if !confirmed || p == nil {
		return m, nil
	}
	var opts []notify.DeleteOption
	if p.highAssurance {
		opts = append(opts, notify.HighAssurance())
	}
	return m, m.delete(p.id, opts...)
}

func (m Model) markRead(id int64) tea.Cmd {
	mut := m.mutator
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()

		if err := mut.MarkRead(ctx, id); err != nil {
			return ActionFailedMsg{Action: "mark read", Err: err}
		}
		return ActionDoneMsg{Action: "mark read"}
	}
}

func (m Model) delete(id int64, opts ...notify.DeleteOption) tea.Cmd {
	mut := m.mutator
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()

		if err := mut.Delete(ctx, id, opts...); err != nil {
			return ActionFailedMsg{Action: "delete", Err: err}
		}
		return ActionDoneMsg{Action: "delete"}
	}
}

func (m Model) refresh() tea.Cmd {
	mut := m.mutator
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()

		if err := mut.Refresh(ctx); err != nil {
			return ActionFailedMsg{Action: "refresh", Err: err}
		}
		return ActionDoneMsg{Action: "refresh"}
	}
}

// View renders the inbox.
func (m Model) View() string {
	if m.confirm != nil {
		return lipgloss.NewStyle().
			Padding(1, 2).
			Width(m.width).
			Height(m.height).
			Render(m.confirm.View())
	}

	if len(m.list.Items()) == 0 {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render("No notifications.\n\nNew alerts show up here as they are raised.")
	}

	return m.list.View()
}

// SetSize updates the inbox dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height)
}
