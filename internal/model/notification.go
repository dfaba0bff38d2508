package model

import (
	"fmt"
	"time"
)

// Notification announces an alert (or a plain message) to a single user.
//
// Positive IDs are assigned by the notification store. Negative IDs are
// temporary: they are minted by the client for notifications created from a
// push event before the store copy is known.
type Notification struct {
	// ID is the store identifier, or a negative temporary identifier.
	ID int64 `json:"id"`

	// OwnerUserID is the user the notification was addressed to.
	OwnerUserID int64 `json:"owner_user_id"`

	// AlertID references the announced alert when the snapshot is absent.
	AlertID *int64 `json:"alert_id,omitempty"`

	// Alert is the embedded alert snapshot, passed through unmodified.
	Alert *Alert `json:"alert,omitempty"`

	// Title is the short human-readable headline.
	Title string `json:"title"`

	// Message is the notification body.
	Message string `json:"message"`

	// Read indicates whether the owner has seen this notification.
	Read bool `json:"read"`

	// Deleted is the store's soft-delete flag.
	Deleted bool `json:"deleted"`

	// CreatedAt is when the notification was generated.
	CreatedAt time.Time `json:"created_at"`
}

// IsTemporary reports whether the notification only exists client side.
func (n Notification) IsTemporary() bool {
	return n.ID < 0
}

// ReferencedAlertID returns the id of the announced alert, if any.
func (n Notification) ReferencedAlertID() (int64, bool) {
	if n.Alert != nil && n.Alert.ID != 0 {
		return n.Alert.ID, true
	}
	if n.AlertID != nil {
		return *n.AlertID, true
	}
	return 0, false
}

// BusinessKey returns the domain identity of the notification: the alert it
// announces, or its own id when it announces no alert.
func (n Notification) BusinessKey() BusinessKey {
	if alertID, ok := n.ReferencedAlertID(); ok {
		return AlertKey(alertID)
	}
	return IDKey(n.ID)
}

// KeyKind separates the alert-derived key space from the id fallback.
type KeyKind int

const (
	KeyAlert KeyKind = iota
	KeyID
)

// BusinessKey is the deduplication identity of a notification.
type BusinessKey struct {
	Kind  KeyKind
	Value int64
}

// AlertKey returns the business key for an alert id.
func AlertKey(alertID int64) BusinessKey {
	return BusinessKey{Kind: KeyAlert, Value: alertID}
}

// IDKey returns the fallback business key for a notification id.
func IDKey(id int64) BusinessKey {
	return BusinessKey{Kind: KeyID, Value: id}
}

func (k BusinessKey) String() string {
	if k.Kind == KeyAlert {
		return fmt.Sprintf("alert:%d", k.Value)
	}
	return fmt.Sprintf("id:%d", k.Value)
}
