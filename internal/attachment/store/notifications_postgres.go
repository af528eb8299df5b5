package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"coverline/internal/attachment/models"
	id "coverline/pkg/domain"
	"coverline/pkg/platform/sentinel"
	"coverline/pkg/platform/tx"
)

type PostgresNotificationStore struct {
	db *sql.DB
}

func NewPostgresNotificationStore(db *sql.DB) *PostgresNotificationStore {
	return &PostgresNotificationStore{db: db}
}

const notificationColumns = `id, user_id, claim_id, message, read, created_at`

func (s *PostgresNotificationStore) Save(ctx context.Context, n *models.Notification) error {
	var claimID uuid.NullUUID
	if n.ClaimID != nil {
		claimID = uuid.NullUUID{UUID: uuid.UUID(*n.ClaimID), Valid: true}
	}
	_, err := tx.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET read = EXCLUDED.read`,
		uuid.UUID(n.ID), uuid.UUID(n.UserID), claimID, n.Message, n.Read, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save notification: %w", err)
	}
	return nil
}

func (s *PostgresNotificationStore) FindByID(ctx context.Context, notificationID id.NotificationID) (*models.Notification, error) {
	row := tx.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, uuid.UUID(notificationID))
	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return n, err
}

func (s *PostgresNotificationStore) ListByUser(ctx context.Context, userID id.UserID) ([]*models.Notification, error) {
	rows, err := tx.Exec(ctx, s.db).QueryContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE user_id = $1 ORDER BY created_at DESC`, uuid.UUID(userID))
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return out, nil
}

func scanNotification(row scanner) (*models.Notification, error) {
	var (
		n       models.Notification
		noteID  uuid.UUID
		userID  uuid.UUID
		claimID uuid.NullUUID
	)
	if err := row.Scan(&noteID, &userID, &claimID, &n.Message, &n.Read, &n.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan notification: %w", err)
	}
	n.ID = id.NotificationID(noteID)
	n.UserID = id.UserID(userID)
	if claimID.Valid {
		cid := id.ClaimID(claimID.UUID)
		n.ClaimID = &cid
	}
	return &n, nil
}
