package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/KimADR/smt-finalV2-sub001/internal/model"
)

// PostgresStore implements the Backend interface on a PostgreSQL pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn, verifies the connection and creates the
// notification table when missing.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating notification schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateNotification(
	ctx context.Context,
	n model.Notification,
) (model.Notification, error) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	var alertJSON []byte
	var entID *int64
	var siret string
	if n.Alert != nil {
		raw, err := json.Marshal(n.Alert)
		if err != nil {
			return model.Notification{}, fmt.Errorf("marshaling alert: %w", err)
		}
		alertJSON = raw
		if ent := n.Alert.Entreprise; ent != nil {
			if ent.ID != 0 {
				id := ent.ID
				entID = &id
			}
			siret = ent.Siret
		}
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO notifications (
			owner_user_id, alert_id, entreprise_id, entreprise_siret,
			title, message, alert, read, deleted, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		n.OwnerUserID, referencedAlert(n), entID, siret,
		n.Title, n.Message, alertJSON, n.Read, n.Deleted, n.CreatedAt,
	).Scan(&n.ID)
	if err != nil {
		return model.Notification{}, fmt.Errorf("inserting notification: %w", err)
	}

	return n, nil
}

func (s *PostgresStore) ListNotifications(
	ctx context.Context,
	p model.Principal,
) ([]model.Notification, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT"+notificationColumns+` FROM notifications
		WHERE owner_user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`,
		p.UserID, listLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	defer rows.Close()

	notifications := []model.Notification{}
	for rows.Next() {
		n, err := scanPgNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}

	return notifications, rows.Err()
}

func (s *PostgresStore) GetNotification(ctx context.Context, id int64) (*model.Notification, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT"+notificationColumns+" FROM notifications WHERE id = $1", id)

	n, err := scanPgNotification(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("getting notification %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting notification %d: %w", id, err)
	}
	return &n, nil
}

func (s *PostgresStore) MarkNotificationRead(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE notifications SET read = TRUE WHERE id = $1 AND NOT deleted", id)
	if err != nil {
		return fmt.Errorf("marking notification %d read: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("notification %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) DeleteNotification(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE notifications SET deleted = TRUE WHERE id = $1 AND NOT deleted", id)
	if err != nil {
		return fmt.Errorf("deleting notification %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("notification %d: %w", id, ErrNotFound)
	}
	return nil
}

func scanPgNotification(row pgx.Row) (model.Notification, error) {
	var (
		n         model.Notification
		entID     *int64
		siret     string
		alertJSON []byte
	)

	err := row.Scan(
		&n.ID, &n.OwnerUserID, &n.AlertID, &entID, &siret,
		&n.Title, &n.Message, &alertJSON, &n.Read, &n.Deleted, &n.CreatedAt,
	)
	if err != nil {
		return model.Notification{}, fmt.Errorf("scanning notification row: %w", err)
	}

	if len(alertJSON) > 0 {
		var a model.Alert
		if err := json.Unmarshal(alertJSON, &a); err != nil {
			return model.Notification{}, fmt.Errorf("unmarshaling alert of notification %d: %w", n.ID, err)
		}
		n.Alert = &a
	}
	return n, nil
}
