package model

import "time"

// Entreprise is the tenant an alert belongs to.
type Entreprise struct {
	ID    int64  `json:"id"`
	Siret string `json:"siret,omitempty"`
	Name  string `json:"name,omitempty"`
}

// AlertType classifies what triggered an alert.
type AlertType string

const (
	AlertThreshold AlertType = "THRESHOLD"
	AlertDeadline  AlertType = "DEADLINE"
	AlertOverdue   AlertType = "OVERDUE"
	AlertInfo      AlertType = "INFO"
)

// Alert is the snapshot of a domain alert embedded in a notification, e.g. a
// financial movement crossing a threshold or an upcoming tax deadline.
type Alert struct {
	ID         int64       `json:"id"`
	Type       AlertType   `json:"type,omitempty"`
	Message    string      `json:"message,omitempty"`
	Amount     float64     `json:"amount,omitempty"`
	DueDate    *time.Time  `json:"due_date,omitempty"`
	Entreprise *Entreprise `json:"entreprise,omitempty"`
	CreatedAt  time.Time   `json:"created_at,omitempty"`
}

// PushEvent is delivered over a live push transport when the store creates a
// notification. It carries the alert snapshot but not the store id, which is
// only learned on the next fetch.
type PushEvent struct {
	// ID is the transport-level event identifier.
	ID string `json:"id"`

	// Seq orders events inside the server replay buffer.
	Seq int64 `json:"seq,omitempty"`

	// Type is the event name, e.g. "notification.created".
	Type string `json:"type"`

	UserID    int64     `json:"user_id"`
	Title     string    `json:"title,omitempty"`
	Message   string    `json:"message,omitempty"`
	Alert     *Alert    `json:"alert,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// EventNotificationCreated is the only push event type the client consumes.
const EventNotificationCreated = "notification.created"
