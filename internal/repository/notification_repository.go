package repository

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/enrollment-portal/internal/domain"
)

var notificationColumns = []string{"id", "user_id", "title", "message", "type", "read", "created_at"}

// NotificationRepository persists in-app notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	CreateMany(ctx context.Context, items []domain.Notification) error
	ListLatest(ctx context.Context, userID string, limit int) ([]domain.Notification, error)
	MarkRead(ctx context.Context, id, userID string) error
}

type notificationRepository struct {
	db DBInterface
}

// NewNotificationRepository constructs repository.
func NewNotificationRepository(db DBInterface) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	const query = `
        INSERT INTO notifications (user_id, title, message, type)
        VALUES ($1, $2, $3, $4)
        RETURNING id, read, created_at`
	return r.db.QueryRow(ctx, query, n.UserID, n.Title, n.Message, n.Type).
		Scan(&n.ID, &n.Read, &n.CreatedAt)
}

// CreateMany inserts all notifications in one statement.
func (r *notificationRepository) CreateMany(ctx context.Context, items []domain.Notification) error {
	if len(items) == 0 {
		return nil
	}
	b := psql.Insert("notifications").Columns("user_id", "title", "message", "type")
	for _, n := range items {
		b = b.Values(n.UserID, n.Title, n.Message, n.Type)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build notification insert: %w", err)
	}
	_, err = r.db.Exec(ctx, query, args...)
	return err
}

func (r *notificationRepository) ListLatest(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	query := `SELECT ` + columnList(notificationColumns) + `
        FROM notifications WHERE user_id=$1
        ORDER BY created_at DESC
        LIMIT $2`
	var items []domain.Notification
	if err := pgxscan.Select(ctx, r.db, &items, query, userID, limit); err != nil {
		return nil, fmt.Errorf("scan notifications: %w", err)
	}
	return items, nil
}

// MarkRead flags a notification as read; it only matches rows owned by userID.
func (r *notificationRepository) MarkRead(ctx context.Context, id, userID string) error {
	const query = `UPDATE notifications SET read=TRUE WHERE id=$1 AND user_id=$2`
	cmd, err := r.db.Exec(ctx, query, id, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
