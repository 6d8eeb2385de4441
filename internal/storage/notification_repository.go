package storage

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"

	"github.com/library-reservations/backend/internal/storage/models"
)

var notificationColumns = []any{
	"id", "user_ref", "title", "message", "target_kind", "target_id", "is_read", "created_at",
}

// NotificationRepository provides data access for notifications.
type NotificationRepository struct {
	BaseRepository
}

// NewNotificationRepository creates a new notification repository.
func NewNotificationRepository(db *DB) *NotificationRepository {
	return &NotificationRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// WithTx returns a repository bound to tx.
func (r *NotificationRepository) WithTx(tx *sqlx.Tx) *NotificationRepository {
	return &NotificationRepository{BaseRepository: r.withTx(tx)}
}

// Create inserts a new unread notification.
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	n.ID = GenerateID()
	n.CreatedAt = r.Now()
	n.IsRead = false

	_, err := r.Q().ExecContext(ctx, `
		INSERT INTO notifications (id, user_ref, title, message, target_kind, target_id, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)
	`, n.ID, n.UserRef, n.Title, n.Message, string(n.TargetKind), n.TargetID, n.CreatedAt)

	if err != nil {
		return fmt.Errorf("inserting notification: %w", err)
	}

	return nil
}

// GetByID retrieves a notification by its ID.
func (r *NotificationRepository) GetByID(ctx context.Context, id string) (*models.Notification, error) {
	n := &models.Notification{}
	ds := dialect.From("notifications").Select(notificationColumns...).Where(goqu.C("id").Eq(id))
	found, err := r.getOne(ctx, n, ds)
	if err != nil {
		return nil, fmt.Errorf("querying notification: %w", err)
	}
	if !found {
		return nil, nil
	}
	return n, nil
}

// ListByUser retrieves a user's notifications, unread first and newest first within each group.
func (r *NotificationRepository) ListByUser(ctx context.Context, userRef string, unreadOnly bool) ([]models.Notification, error) {
	conds := []exp.Expression{goqu.C("user_ref").Eq(userRef)}
	if unreadOnly {
		conds = append(conds, goqu.C("is_read").IsFalse())
	}

	ds := dialect.From("notifications").Select(notificationColumns...).
		Where(conds...).
		Order(goqu.C("is_read").Asc(), goqu.C("created_at").Desc(), goqu.I("rowid").Desc())

	var list []models.Notification
	if err := r.selectAll(ctx, &list, ds); err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	return list, nil
}

// CountUnread returns the number of unread notifications of a user.
func (r *NotificationRepository) CountUnread(ctx context.Context, userRef string) (int, error) {
	n, err := r.count(ctx, dialect.From("notifications").Where(goqu.C("user_ref").Eq(userRef), goqu.C("is_read").IsFalse()))
	if err != nil {
		return 0, fmt.Errorf("counting unread notifications: %w", err)
	}
	return n, nil
}

// MarkRead flags the given notifications as read. Already-read ones are left untouched.
func (r *NotificationRepository) MarkRead(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query, args, err := dialect.Update("notifications").
		Set(goqu.Record{"is_read": true}).
		Where(goqu.C("id").In(ids), goqu.C("is_read").IsFalse()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return 0, fmt.Errorf("building query: %w", err)
	}

	result, err := r.Q().ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("marking notifications read: %w", err)
	}

	return result.RowsAffected()
}
