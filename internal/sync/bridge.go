package sync

import (
	"context"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/KimADR/smt-finalV2-sub001/internal/notify"
	"github.com/KimADR/smt-finalV2-sub001/internal/push"
)

// sweepInterval is how often expired suppressions are pruned.
const sweepInterval = 30 * time.Second

// ViewChangedMsg is a tea.Msg carrying the reconciled inbox.
type ViewChangedMsg struct {
	Snapshot notify.Snapshot
}

// StatusMsg is a tea.Msg sent when the push connection changes state.
type StatusMsg struct {
	Status push.Status
}

// ListenStoppedMsg is sent when the push listener exits for good.
type ListenStoppedMsg struct {
	Err error
}

// Bridge runs the reconciler's background work and relays its output to the
// Bubble Tea runtime. Each Wait* command delivers one message; callers
// re-issue it after handling the message to keep listening.
type Bridge struct {
	rec *notify.Reconciler
	log *zap.Logger

	statusCh  chan struct{}
	stoppedCh chan error
	stopCh    chan struct{}

	mu      gosync.Mutex
	status  push.Status
	running bool
	cancel  context.CancelFunc
}

// New creates a bridge for rec.
func New(rec *notify.Reconciler, log *zap.Logger) *Bridge {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bridge{
		rec:       rec,
		log:       log.Named("bridge"),
		statusCh:  make(chan struct{}, 1),
		stoppedCh: make(chan error, 1),
		stopCh:    make(chan struct{}),
		status:    push.Status{State: push.StateConnecting},
	}
}

// OnStatus records a connection status change. Pass it to
// push.WithStatus so the subscription reports through the bridge.
func (b *Bridge) OnStatus(s push.Status) {
	b.mu.Lock()
	b.status = s
	b.mu.Unlock()

	select {
	case b.statusCh <- struct{}{}:
	default:
		// A wake-up is already pending; it will read the latest status.
	}
}

// Status returns the last reported connection status.
func (b *Bridge) Status() push.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// Start begins feeding src into the reconciler and returns the commands
// that listen for view and status changes.
func (b *Bridge) Start(src notify.EventSource) tea.Cmd {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.running = true
	b.mu.Unlock()

	go func() {
		err := b.rec.Listen(ctx, src)
		if ctx.Err() == nil {
			b.log.Warn("push listener stopped", zap.Error(err))
		}
		b.stoppedCh <- err
	}()
	go b.rec.Tracker().RunSweeper(sweepInterval, b.stopCh)

	return tea.Batch(
		b.WaitForNextChange(),
		b.WaitForNextStatus(),
		b.waitForStopped(),
	)
}

// Stop halts the listener and the sweeper and cancels pending
// reconciliations.
func (b *Bridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return
	}
	b.cancel()
	close(b.stopCh)
	b.rec.Close()
	b.running = false
}

// WaitForNextChange returns a tea.Cmd that waits for the next view change.
func (b *Bridge) WaitForNextChange() tea.Cmd {
	changes := b.rec.Changes()
	return func() tea.Msg {
		select {
		case snap := <-changes:
			return ViewChangedMsg{Snapshot: snap}
		case <-b.stopCh:
			return nil
		}
	}
}

// WaitForNextStatus returns a tea.Cmd that waits for the next connection
// status change.
func (b *Bridge) WaitForNextStatus() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-b.statusCh:
			return StatusMsg{Status: b.Status()}
		case <-b.stopCh:
			return nil
		}
	}
}

func (b *Bridge) waitForStopped() tea.Cmd {
	return func() tea.Msg {
		select {
		case err := <-b.stoppedCh:
			return ListenStoppedMsg{Err: err}
		case <-b.stopCh:
			return nil
		}
	}
}
