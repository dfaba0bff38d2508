package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KimADR/smt-finalV2-sub001/internal/model"
	"github.com/KimADR/smt-finalV2-sub001/internal/store"
)

// ErrUnknownNotification is returned for ids that are not in the view.
var ErrUnknownNotification = errors.New("notification not in view")

const (
	// DefaultMaxVisible caps the view after push events.
	DefaultMaxVisible = 50

	// DefaultPushRefetchDelay gives the store time to persist a pushed
	// notification before reconciling.
	DefaultPushRefetchDelay = 500 * time.Millisecond

	// DefaultDeleteRefetchDelay is the follow-up fetch after a delete.
	DefaultDeleteRefetchDelay = 600 * time.Millisecond

	// fetchTimeout bounds a single background fetch.
	fetchTimeout = 30 * time.Second

	// firstTempID is one above the first temporary id handed out.
	firstTempID = -1000
)

// Timer is a pending background reconciliation.
type Timer interface {
	Stop() bool
}

// Options tunes a Reconciler. Zero values select the defaults.
type Options struct {
	PushRefetchDelay    time.Duration
	DeleteRefetchDelay  time.Duration
	MaxVisible          int
	SuppressionWindow   time.Duration
	HighAssuranceWindow time.Duration

	Logger *zap.Logger

	// AfterFunc schedules background reconciliations. Defaults to
	// time.AfterFunc.
	AfterFunc func(d time.Duration, f func()) Timer

	// Now is the tracker clock. Defaults to time.Now.
	Now func() time.Time
}

// OptionsFromConfig maps the reconcile config section onto Options.
func OptionsFromConfig(cfg model.ReconcileConfig, log *zap.Logger) Options {
	return Options{
		PushRefetchDelay:    cfg.PushRefetchDelay(),
		DeleteRefetchDelay:  cfg.DeleteRefetchDelay(),
		MaxVisible:          cfg.MaxVisible,
		SuppressionWindow:   cfg.SuppressionWindow(),
		HighAssuranceWindow: cfg.HighAssuranceWindow(),
		Logger:              log,
	}
}

func (o Options) withDefaults() Options {
	if o.PushRefetchDelay <= 0 {
		o.PushRefetchDelay = DefaultPushRefetchDelay
	}
	if o.DeleteRefetchDelay <= 0 {
		o.DeleteRefetchDelay = DefaultDeleteRefetchDelay
	}
	if o.MaxVisible <= 0 {
		o.MaxVisible = DefaultMaxVisible
	}
	if o.SuppressionWindow <= 0 {
		o.SuppressionWindow = DefaultSuppressionWindow
	}
	if o.HighAssuranceWindow <= 0 {
		o.HighAssuranceWindow = HighAssuranceWindow
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.AfterFunc == nil {
		o.AfterFunc = func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		}
	}
	return o
}

// Snapshot is a consistent copy of the view.
type Snapshot struct {
	Notifications []model.Notification
	Unread        int
}

// EventSource delivers push events until ctx is done.
type EventSource interface {
	Run(ctx context.Context, handle func(model.PushEvent)) error
}

// Reconciler merges the initial fetch, live push events and background
// re-fetches into a single notification view for one principal, honoring
// local deletions and read marks.
//
// The view is only replaced wholesale under mu, so readers never observe a
// partially merged state. Store calls are made without holding mu.
type Reconciler struct {
	store     store.Store
	principal model.Principal
	tracker   *Tracker
	opts      Options
	log       *zap.Logger

	mu       sync.Mutex
	view     []model.Notification
	lastTemp int64
	timers   map[uint64]Timer
	timerSeq uint64
	closed   bool

	changes chan Snapshot
}

// NewReconciler creates a reconciler with an empty view.
func NewReconciler(s store.Store, p model.Principal, opts Options) *Reconciler {
	opts = opts.withDefaults()
	return &Reconciler{
		store:     s,
		principal: p,
		tracker:   NewTracker(opts.Now),
		opts:      opts,
		log:       opts.Logger.With(zap.Int64("user_id", p.UserID)),
		view:      []model.Notification{},
		lastTemp:  firstTempID,
		timers:    make(map[uint64]Timer),
		changes:   make(chan Snapshot, 16),
	}
}

// Principal returns the user the view is built for.
func (r *Reconciler) Principal() model.Principal {
	return r.principal
}

// Tracker exposes the local mutation tracker.
func (r *Reconciler) Tracker() *Tracker {
	return r.tracker
}

// Start seeds the view with the store's current listing. On failure the view
// stays empty and the error is returned.
func (r *Reconciler) Start(ctx context.Context) error {
	records, err := r.store.ListNotifications(ctx, r.principal)
	if err != nil {
		r.log.Warn("initial notification fetch failed", zap.Error(err))
		return fmt.Errorf("loading notifications: %w", err)
	}
	r.ApplyInitialFetch(records)
	return nil
}

// Listen feeds events from src into ApplyPushEvent until ctx is done.
func (r *Reconciler) Listen(ctx context.Context, src EventSource) error {
	return src.Run(ctx, func(ev model.PushEvent) {
		r.ApplyPushEvent(ev)
	})
}

// Refresh reconciles the view against a fresh store listing.
func (r *Reconciler) Refresh(ctx context.Context) error {
	records, err := r.store.ListNotifications(ctx, r.principal)
	if err != nil {
		r.log.Warn("notification refresh failed", zap.Error(err))
		return fmt.Errorf("refreshing notifications: %w", err)
	}
	r.ApplyBackgroundFetch(records)
	return nil
}

// ApplyInitialFetch replaces the view with the scoped, deduplicated listing.
func (r *Reconciler) ApplyInitialFetch(records []model.Notification) {
	next := Dedup(visible(records, r.principal))

	r.mu.Lock()
	defer r.mu.Unlock()
	r.replaceLocked(next)
}

// ApplyPushEvent inserts a temporary notification for ev and schedules a
// reconciliation that will swap it for the store copy. It returns the
// temporary record and whether it was inserted.
//
// Events without an alert are ignored: nothing would tie the temporary to
// its store copy. The next background fetch picks those up.
func (r *Reconciler) ApplyPushEvent(ev model.PushEvent) (model.Notification, bool) {
	if ev.Type != "" && ev.Type != model.EventNotificationCreated {
		return model.Notification{}, false
	}
	if ev.Alert == nil || ev.Alert.ID == 0 {
		r.log.Debug("push event without alert", zap.String("event_id", ev.ID))
		return model.Notification{}, false
	}

	owner := ev.UserID
	if owner == 0 {
		owner = r.principal.UserID
	}
	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	r.mu.Lock()
	r.lastTemp--
	temp := model.Notification{
		ID:          r.lastTemp,
		OwnerUserID: owner,
		Alert:       ev.Alert,
		Title:       ev.Title,
		Message:     ev.Message,
		CreatedAt:   createdAt,
	}

	if !InScope(temp, r.principal) {
		r.mu.Unlock()
		r.log.Debug("push event out of scope", zap.String("event_id", ev.ID))
		return model.Notification{}, false
	}
	if r.tracker.Suppresses(temp) {
		r.mu.Unlock()
		r.log.Debug("push event suppressed",
			zap.String("event_id", ev.ID),
			zap.Stringer("key", temp.BusinessKey()),
		)
		return model.Notification{}, false
	}

	next := make([]model.Notification, 0, len(r.view)+1)
	next = append(next, temp)
	next = append(next, r.view...)
	next = Dedup(next)
	if len(next) > r.opts.MaxVisible {
		next = next[:r.opts.MaxVisible]
	}
	r.replaceLocked(next)
	r.mu.Unlock()

	r.scheduleRefetch(r.opts.PushRefetchDelay)
	return temp, true
}

// ApplyBackgroundFetch merges an authoritative listing into the view.
//
// Suppressed records are dropped, temporaries superseded by a store copy
// are replaced, and local read marks survive a store copy that still
// reports unread.
func (r *Reconciler) ApplyBackgroundFetch(records []model.Notification) {
	scoped := visible(records, r.principal)

	// Filtering under mu keeps a concurrent Delete from landing between the
	// suppression check and the merge.
	r.mu.Lock()

	server := make([]model.Notification, 0, len(scoped))
	serverKeys := make(map[model.BusinessKey]bool, len(scoped))
	for _, n := range scoped {
		if r.tracker.Suppresses(n) {
			continue
		}
		server = append(server, n)
		serverKeys[n.BusinessKey()] = true
	}

	var temps, positives []model.Notification
	readByID := make(map[int64]bool)
	tempReadByKey := make(map[model.BusinessKey]bool)
	for _, n := range r.view {
		if n.IsTemporary() {
			temps = append(temps, n)
			if n.Read {
				tempReadByKey[n.BusinessKey()] = true
			}
			continue
		}
		positives = append(positives, n)
		if n.Read {
			readByID[n.ID] = true
		}
	}

	// Read marks made on a temporary never reached the store.
	var propagate []int64
	for i := range server {
		if server[i].Read {
			continue
		}
		if readByID[server[i].ID] {
			server[i].Read = true
		} else if tempReadByKey[server[i].BusinessKey()] {
			server[i].Read = true
			propagate = append(propagate, server[i].ID)
		}
	}

	merged := make([]model.Notification, 0, len(server)+len(temps)+len(positives))
	merged = append(merged, server...)
	for _, n := range temps {
		if serverKeys[n.BusinessKey()] || r.tracker.Suppresses(n) {
			continue
		}
		merged = append(merged, n)
	}
	for _, n := range positives {
		if r.tracker.Suppresses(n) {
			continue
		}
		merged = append(merged, n)
	}

	r.replaceLocked(Dedup(merged))
	r.mu.Unlock()

	if len(propagate) > 0 {
		go r.propagateRead(propagate)
	}
}

// View returns a copy of the current notifications, most relevant first.
func (r *Reconciler) View() []model.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.Notification, len(r.view))
	copy(out, r.view)
	return out
}

// UnreadCount returns the number of unread notifications in the view.
func (r *Reconciler) UnreadCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return countUnread(r.view)
}

// Changes delivers a snapshot after every view replacement. Slow readers
// only miss intermediate snapshots, never the latest one.
func (r *Reconciler) Changes() <-chan Snapshot {
	return r.changes
}

// Close cancels pending background reconciliations.
func (r *Reconciler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
	}
}

// replaceLocked swaps in next and publishes a snapshot. r.mu must be held.
func (r *Reconciler) replaceLocked(next []model.Notification) {
	r.view = next

	snap := Snapshot{
		Notifications: make([]model.Notification, len(next)),
		Unread:        countUnread(next),
	}
	copy(snap.Notifications, next)

	for {
		select {
		case r.changes <- snap:
			return
		default:
		}
		// Full: drop the oldest pending snapshot and retry.
		select {
		case <-r.changes:
		default:
		}
	}
}

// scheduleRefetch runs a background reconciliation after delay. AfterFunc is
// called without holding mu, so it may run the callback inline.
func (r *Reconciler) scheduleRefetch(delay time.Duration) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.timerSeq++
	id := r.timerSeq
	r.mu.Unlock()

	var fired bool // guarded by mu
	t := r.opts.AfterFunc(delay, func() {
		r.mu.Lock()
		fired = true
		delete(r.timers, id)
		closed := r.closed
		r.mu.Unlock()

		if !closed {
			r.backgroundRefresh()
		}
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.closed:
		t.Stop()
	case !fired:
		r.timers[id] = t
	}
}

// backgroundRefresh is the fire-and-forget follow-up fetch. Failures leave
// the view untouched.
func (r *Reconciler) backgroundRefresh() {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	_ = r.Refresh(ctx)
}

// propagateRead sends read marks made on temporaries to the store.
func (r *Reconciler) propagateRead(ids []int64) {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	for _, id := range ids {
		if err := r.store.MarkNotificationRead(ctx, id); err != nil {
			r.log.Warn("propagating read mark failed", zap.Int64("id", id), zap.Error(err))
		}
	}
}

func countUnread(ns []model.Notification) int {
	unread := 0
	for _, n := range ns {
		if !n.Read {
			unread++
		}
	}
	return unread
}

func indexOf(ns []model.Notification, id int64) int {
	for i, n := range ns {
		if n.ID == id {
			return i
		}
	}
	return -1
}
