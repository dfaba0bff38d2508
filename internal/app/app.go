package app

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/KimADR/smt-finalV2-sub001/internal/keys"
	"github.com/KimADR/smt-finalV2-sub001/internal/notify"
	"github.com/KimADR/smt-finalV2-sub001/internal/push"
	appsync "github.com/KimADR/smt-finalV2-sub001/internal/sync"
	"github.com/KimADR/smt-finalV2-sub001/internal/theme"
	"github.com/KimADR/smt-finalV2-sub001/internal/ui"
	helpview "github.com/KimADR/smt-finalV2-sub001/internal/ui/help"
	"github.com/KimADR/smt-finalV2-sub001/internal/ui/inbox"
)

// errorDisplayTime is how long a failed action stays in the status bar.
const errorDisplayTime = 5 * time.Second

// clearErrorMsg expires the status bar error with the matching sequence.
type clearErrorMsg struct {
	seq int
}

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewInbox ViewState = iota
	ViewHelp
)

// Model is the root Bubble Tea model. It routes input between the inbox and
// the help overlay and renders the reconciled view pushed by the bridge.
type Model struct {
	currentView ViewState
	layout      ui.Layout
	keys        *keys.KeyMap
	inbox       inbox.Model
	helpView    helpview.Model
	bridge      *appsync.Bridge
	source      notify.EventSource
	ready       bool

	unread int
	status push.Status

	errorMessage string
	errorSeq     int
}

// New creates the root model. src is the live push source fed into the
// reconciler once the program starts.
func New(rec *notify.Reconciler, bridge *appsync.Bridge, src notify.EventSource) Model {
	k := keys.DefaultKeyMap()
	return Model{
		currentView: ViewInbox,
		keys:        k,
		inbox:       inbox.New(rec, k, 80, 22),
		helpView:    helpview.New(k, 80, 22),
		bridge:      bridge,
		source:      src,
		unread:      rec.UnreadCount(),
		status:      bridge.Status(),
	}
}

// Init starts the push listener and subscribes to its output.
func (m Model) Init() tea.Cmd {
	return m.bridge.Start(m.source)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		m.inbox.SetSize(m.layout.ContentWidth(), m.layout.ContentHeight())
		m.helpView.SetSize(m.layout.ContentWidth(), m.layout.ContentHeight())
		return m, nil

	case appsync.ViewChangedMsg:
		m.unread = msg.Snapshot.Unread
		cmd := m.inbox.SetNotifications(msg.Snapshot.Notifications)
		return m, tea.Batch(cmd, m.bridge.WaitForNextChange())

	case appsync.StatusMsg:
		m.status = msg.Status
		return m, m.bridge.WaitForNextStatus()

	case appsync.ListenStoppedMsg:
		m.status = push.Status{State: push.StateDisconnected, Err: msg.Err}
		return m, nil

	case inbox.ActionFailedMsg:
		m.errorSeq++
		m.errorMessage = msg.Error()
		seq := m.errorSeq
		return m, tea.Tick(errorDisplayTime, func(time.Time) tea.Msg {
			return clearErrorMsg{seq: seq}
		})

	case inbox.ActionDoneMsg:
		m.errorMessage = ""
		return m, nil

	case clearErrorMsg:
		if msg.seq == m.errorSeq {
			m.errorMessage = ""
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.bridge.Stop()
			return m, tea.Quit
		}
		if m.currentView == ViewInbox && m.inbox.Confirming() {
			break
		}

		switch {
		case key.Matches(msg, m.keys.Quit):
			m.bridge.Stop()
			return m, tea.Quit

		case key.Matches(msg, m.keys.Help):
			if m.currentView == ViewHelp {
				m.currentView = ViewInbox
			} else {
				m.currentView = ViewHelp
			}
			return m, nil

		case key.Matches(msg, m.keys.Back):
			if m.currentView == ViewHelp {
				m.currentView = ViewInbox
				return m, nil
			}
		}
	}

	return m.updateActiveView(msg)
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewInbox:
		m.inbox, cmd = m.inbox.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	title := "Treasury alerts"
	if m.unread > 0 {
		title = fmt.Sprintf("Treasury alerts [%d unread]", m.unread)
	}
	header := m.layout.RenderHeader(title, m.connectionLabel())

	var content string
	switch m.currentView {
	case ViewHelp:
		content = m.helpView.View()
	default:
		content = m.inbox.View()
	}

	statusBar := m.layout.RenderStatusBar(m.keyHints())
	if m.errorMessage != "" {
		statusBar = m.layout.RenderErrorBar("⚠ " + m.errorMessage)
	}

	return m.layout.RenderWithFrame(header, content, statusBar)
}

// connectionLabel describes the push connection for the header.
func (m Model) connectionLabel() string {
	switch m.status.State {
	case push.StateConnected:
		return theme.TransportStyle(true).Render("● live via " + m.status.Transport)
	case push.StateConnecting:
		if m.status.Transport == "" {
			return theme.TransportStyle(false).Render("connecting…")
		}
		return theme.TransportStyle(false).Render("connecting (" + m.status.Transport + ")…")
	default:
		return theme.TransportStyle(false).Render("⚠ offline, retrying")
	}
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	switch {
	case m.currentView == ViewHelp:
		return "? close help | esc back"
	case m.inbox.Confirming():
		return "←/→ choose | enter confirm"
	default:
		return "q quit | ? help | m mark read | d delete | D delete (5m) | r refresh"
	}
}
