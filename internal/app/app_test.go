package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/KimADR/smt-finalV2-sub001/internal/model"
	"github.com/KimADR/smt-finalV2-sub001/internal/notify"
	"github.com/KimADR/smt-finalV2-sub001/internal/push"
	appsync "github.com/KimADR/smt-finalV2-sub001/internal/sync"
	"github.com/KimADR/smt-finalV2-sub001/internal/ui/inbox"
)

type emptyStore struct{}

func (emptyStore) ListNotifications(context.Context, model.Principal) ([]model.Notification, error) {
	return nil, nil
}
func (emptyStore) MarkNotificationRead(context.Context, int64) error { return nil }
func (emptyStore) DeleteNotification(context.Context, int64) error { return nil }

func newTestModel(t *testing.T) Model {
	t.Helper()

	rec := notify.NewReconciler(emptyStore{}, model.Principal{UserID: 7, Role: model.RoleAgent}, notify.Options{})
	t.Cleanup(rec.Close)

	m := New(rec, appsync.New(rec, nil), nil)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(Model)
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

func TestHeaderShowsUnreadCount(t *testing.T) {
	m := newTestModel(t)

	m = update(t, m, appsync.ViewChangedMsg{Snapshot: notify.Snapshot{
		Notifications: []model.Notification{
			{ID: 1, Title: "Seuil dépassé"},
			{ID: 2, Title: "Échéance TVA"},
		},
		Unread: 2,
	}})

	view := m.View()
	if !strings.Contains(view, "[2 unread]") {
		t.Errorf("header missing unread count:\n%s", view)
	}
	if !strings.Contains(view, "Échéance TVA") {
		t.Errorf("inbox missing notification:\n%s", view)
	}
}

func TestHeaderShowsTransport(t *testing.T) {
	m := newTestModel(t)

	m = update(t, m, appsync.StatusMsg{Status: push.Status{State: push.StateConnected, Transport: "websocket"}})
	if !strings.Contains(m.View(), "live via websocket") {
		t.Errorf("header missing transport:\n%s", m.View())
	}

	m = update(t, m, appsync.ListenStoppedMsg{Err: errors.New("gone")})
	if !strings.Contains(m.View(), "offline") {
		t.Errorf("header should report offline:\n%s", m.View())
	}
}

func TestActionErrorIsTransient(t *testing.T) {
	m := newTestModel(t)

	next, cmd := m.Update(inbox.ActionFailedMsg{Action: "delete", Err: errors.New("server unavailable")})
	m = next.(Model)
	if cmd == nil {
		t.Fatal("expected a clear timer")
	}
	if !strings.Contains(m.View(), "delete failed: server unavailable") {
		t.Errorf("status bar missing error:\n%s", m.View())
	}

	// A stale timer does not clear a newer error.
	m = update(t, m, clearErrorMsg{seq: m.errorSeq - 1})
	if m.errorMessage == "" {
		t.Error("stale clear removed the error")
	}

	m = update(t, m, clearErrorMsg{seq: m.errorSeq})
	if m.errorMessage != "" {
		t.Errorf("errorMessage = %q, want cleared", m.errorMessage)
	}
}

func TestHelpToggle(t *testing.T) {
	m := newTestModel(t)

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'?'}})
	if m.currentView != ViewHelp {
		t.Fatalf("currentView = %v, want help", m.currentView)
	}
	if !strings.Contains(m.View(), "Keyboard Shortcuts") {
		t.Error("help view not rendered")
	}

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.currentView != ViewInbox {
		t.Errorf("currentView = %v, want inbox", m.currentView)
	}
}
