package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/KimADR/smt-finalV2-sub001/internal/model"
	"github.com/KimADR/smt-finalV2-sub001/internal/store"
)

type deleteOptions struct {
	highAssurance bool
}

// DeleteOption customizes Delete.
type DeleteOption func(*deleteOptions)

// HighAssurance keeps the deleted notification suppressed for the longer
// high-assurance window, for backends that propagate deletes slowly.
func HighAssurance() DeleteOption {
	return func(o *deleteOptions) {
		o.highAssurance = true
	}
}

// MarkRead optimistically marks a notification read, then confirms with the
// store. The flag is reverted if the store rejects the change. Marking an
// already-read notification is a no-op.
//
// A temporary notification is confirmed against its store copy when one can
// be found; otherwise the mark stays local and is carried over once the
// store copy arrives.
func (r *Reconciler) MarkRead(ctx context.Context, id int64) error {
	r.mu.Lock()
	idx := indexOf(r.view, id)
	if idx < 0 {
		r.mu.Unlock()
		return fmt.Errorf("marking notification %d read: %w", id, ErrUnknownNotification)
	}
	n := r.view[idx]
	if n.Read {
		r.mu.Unlock()
		return nil
	}
	r.setReadLocked(id, true)
	r.mu.Unlock()

	target := id
	if n.IsTemporary() {
		serverID, ok := r.resolveServerID(ctx, n.BusinessKey())
		if !ok {
			return nil
		}
		target = serverID
	}

	if err := r.store.MarkNotificationRead(ctx, target); err != nil {
		r.mu.Lock()
		r.setReadLocked(id, false)
		r.mu.Unlock()

		r.log.Warn("mark read rejected", zap.Int64("id", target), zap.Error(err))
		return fmt.Errorf("marking notification %d read: %w", target, err)
	}
	return nil
}

// Delete removes a notification from the store and the view.
//
// A temporary notification is redirected to its store copy, found by
// business key in a fresh listing. If the store has no copy yet it is
// removed locally without contacting the store. A not-found answer from the
// store counts as success. On success the original id, any resolved store id
// and the business key are suppressed, and a follow-up reconciliation is
// scheduled. On failure the view is left unchanged.
func (r *Reconciler) Delete(ctx context.Context, id int64, opts ...DeleteOption) error {
	var o deleteOptions
	for _, opt := range opts {
		opt(&o)
	}
	window := r.opts.SuppressionWindow
	if o.highAssurance {
		window = r.opts.HighAssuranceWindow
	}

	r.mu.Lock()
	var key *model.BusinessKey
	idx := indexOf(r.view, id)
	if idx >= 0 {
		k := r.view[idx].BusinessKey()
		key = &k
	}
	r.mu.Unlock()

	target := id
	if id < 0 {
		if key == nil {
			// Already gone, e.g. superseded or deleted twice.
			return nil
		}
		serverID, ok := r.resolveServerID(ctx, *key)
		if !ok {
			r.forget(window, key, id)
			return nil
		}
		target = serverID
	}

	err := r.store.DeleteNotification(ctx, target)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		r.log.Warn("delete rejected", zap.Int64("id", target), zap.Error(err))
		return fmt.Errorf("deleting notification %d: %w", target, err)
	}

	r.forget(window, key, id, target)
	r.scheduleRefetch(r.opts.DeleteRefetchDelay)
	return nil
}

// forget suppresses ids and key, then drops every matching record from the
// view.
func (r *Reconciler) forget(window time.Duration, key *model.BusinessKey, ids ...int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	drop := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if drop[id] {
			continue
		}
		drop[id] = true
		r.tracker.MarkDeleted(id, key, window)
	}

	next := make([]model.Notification, 0, len(r.view))
	for _, n := range r.view {
		if drop[n.ID] || (key != nil && n.BusinessKey() == *key) {
			continue
		}
		next = append(next, n)
	}
	r.replaceLocked(next)
}

// setReadLocked replaces the record with id by a copy carrying read.
// r.mu must be held.
func (r *Reconciler) setReadLocked(id int64, read bool) {
	idx := indexOf(r.view, id)
	if idx < 0 || r.view[idx].Read == read {
		return
	}

	next := make([]model.Notification, len(r.view))
	copy(next, r.view)
	next[idx].Read = read
	r.replaceLocked(next)
}

// resolveServerID looks up the store id of the notification with key.
// Listing failures count as "not found".
func (r *Reconciler) resolveServerID(ctx context.Context, key model.BusinessKey) (int64, bool) {
	records, err := r.store.ListNotifications(ctx, r.principal)
	if err != nil {
		r.log.Warn("resolving temporary notification failed",
			zap.Stringer("key", key),
			zap.Error(err),
		)
		return 0, false
	}

	for _, n := range visible(records, r.principal) {
		if n.ID > 0 && n.BusinessKey() == key {
			return n.ID, true
		}
	}
	return 0, false
}
