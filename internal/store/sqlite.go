package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/KimADR/smt-finalV2-sub001/internal/model"
)

// SQLiteStore implements the Backend interface using a local SQLite database.
type SQLiteStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// An in-memory database only lives as long as its connection.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

const notificationColumns = `
	id, owner_user_id, alert_id, entreprise_id, entreprise_siret,
	title, message, alert, read, deleted, created_at`

// CreateNotification inserts n and returns it with its assigned id.
// A zero CreatedAt is set to the current time.
func (s *SQLiteStore) CreateNotification(
	ctx context.Context,
	n model.Notification,
) (model.Notification, error) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}

	alertJSON, entID, siret, err := alertColumns(n)
	if err != nil {
		return model.Notification{}, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (
			owner_user_id, alert_id, entreprise_id, entreprise_siret,
			title, message, alert, read, deleted, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.OwnerUserID, nullableID(referencedAlert(n)), entID, siret,
		n.Title, n.Message, alertJSON,
		boolToInt(n.Read), boolToInt(n.Deleted), n.CreatedAt.UTC(),
	)
	if err != nil {
		return model.Notification{}, fmt.Errorf("inserting notification: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return model.Notification{}, fmt.Errorf("reading notification id: %w", err)
	}
	n.ID = id
	return n, nil
}

// ListNotifications returns the notifications addressed to p, newest first.
// Soft-deleted rows are included so clients can observe deletions. Tenant
// scoping is left to the caller.
func (s *SQLiteStore) ListNotifications(
	ctx context.Context,
	p model.Principal,
) ([]model.Notification, error) {
	query := "SELECT" + notificationColumns + " FROM notifications WHERE owner_user_id = ?" +
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT %d", listLimit)

	rows, err := s.db.QueryxContext(ctx, query, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	defer rows.Close()

	notifications := []model.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}

	return notifications, rows.Err()
}

// GetNotification retrieves a single notification by its ID.
func (s *SQLiteStore) GetNotification(
	ctx context.Context,
	id int64,
) (*model.Notification, error) {
	row := s.db.QueryRowxContext(ctx,
		"SELECT"+notificationColumns+" FROM notifications WHERE id = ?", id)

	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("getting notification %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting notification %d: %w", id, err)
	}

	return &n, nil
}

// MarkNotificationRead sets the read flag on a live notification.
func (s *SQLiteStore) MarkNotificationRead(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET read = 1 WHERE id = ? AND deleted = 0", id)
	if err != nil {
		return fmt.Errorf("marking notification %d read: %w", id, err)
	}
	return expectOneRow(res, id)
}

// DeleteNotification soft-deletes a notification. Deleting a missing or
// already deleted notification returns ErrNotFound.
func (s *SQLiteStore) DeleteNotification(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET deleted = 1 WHERE id = ? AND deleted = 0", id)
	if err != nil {
		return fmt.Errorf("deleting notification %d: %w", id, err)
	}
	return expectOneRow(res, id)
}

// rowScanner is satisfied by both *sqlx.Rows and *sqlx.Row.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanNotification scans a notification row selected with notificationColumns.
func scanNotification(row rowScanner) (model.Notification, error) {
	var (
		n         model.Notification
		alertID   sql.NullInt64
		entID     sql.NullInt64
		siret     string
		alertJSON string
		read      int
		deleted   int
		createdAt time.Time
	)

	err := row.Scan(
		&n.ID, &n.OwnerUserID, &alertID, &entID, &siret,
		&n.Title, &n.Message, &alertJSON, &read, &deleted, &createdAt,
	)
	if err != nil {
		return model.Notification{}, fmt.Errorf("scanning notification row: %w", err)
	}

	n.Read = read != 0
	n.Deleted = deleted != 0
	n.CreatedAt = createdAt
	if alertID.Valid {
		v := alertID.Int64
		n.AlertID = &v
	}

	if alertJSON != "" {
		var a model.Alert
		if err := json.Unmarshal([]byte(alertJSON), &a); err != nil {
			return model.Notification{}, fmt.Errorf("unmarshaling alert of notification %d: %w", n.ID, err)
		}
		n.Alert = &a
	}

	return n, nil
}

// alertColumns derives the denormalized alert columns of n.
func alertColumns(n model.Notification) (alertJSON string, entID sql.NullInt64, siret string, err error) {
	if n.Alert == nil {
		return "", sql.NullInt64{}, "", nil
	}

	raw, err := json.Marshal(n.Alert)
	if err != nil {
		return "", sql.NullInt64{}, "", fmt.Errorf("marshaling alert: %w", err)
	}
	if ent := n.Alert.Entreprise; ent != nil {
		if ent.ID != 0 {
			entID = sql.NullInt64{Int64: ent.ID, Valid: true}
		}
		siret = ent.Siret
	}
	return string(raw), entID, siret, nil
}

func referencedAlert(n model.Notification) *int64 {
	id, ok := n.ReferencedAlertID()
	if !ok {
		return nil
	}
	return &id
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func expectOneRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking notification %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("notification %d: %w", id, ErrNotFound)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
