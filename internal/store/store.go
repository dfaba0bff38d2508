package store

import (
	"context"
	"errors"

	"github.com/KimADR/smt-finalV2-sub001/internal/model"
)

// ErrNotFound is returned when a notification does not exist or has already
// been deleted.
var ErrNotFound = errors.New("notification not found")

// Store is the authoritative notification store as seen by a client.
type Store interface {
	// ListNotifications returns the principal's notifications, newest
	// first. Soft-deleted rows may be included with Deleted set.
	ListNotifications(ctx context.Context, p model.Principal) ([]model.Notification, error)

	// MarkNotificationRead marks a single notification as read.
	MarkNotificationRead(ctx context.Context, id int64) error

	// DeleteNotification deletes a notification, returning ErrNotFound
	// when there is nothing to delete.
	DeleteNotification(ctx context.Context, id int64) error
}

// Backend is a Store the notification server can also write to.
type Backend interface {
	Store

	// CreateNotification persists n and returns it with its assigned id.
	CreateNotification(ctx context.Context, n model.Notification) (model.Notification, error)

	// GetNotification returns a single notification by id.
	GetNotification(ctx context.Context, id int64) (*model.Notification, error)

	Close() error
}

// listLimit bounds a single listing.
const listLimit = 200
