package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cura-emr/scheduling-api/internal/models"
)

const notificationColumns = "id, organization_id, user_id, title, message, type, priority, status, related_entity_type, related_entity_id, scheduled_for, created_at"

// NotificationRepository manages persistence for notifications.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs a NotificationRepository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a notification row.
func (r *NotificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	const query = `INSERT INTO notifications (id, organization_id, user_id, title, message, type, priority, status, related_entity_type, related_entity_id, scheduled_for, created_at)
		VALUES (:id, :organization_id, :user_id, :title, :message, :type, :priority, :status, :related_entity_type, :related_entity_id, :scheduled_for, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, notification); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// ListDue returns pending scheduled notifications whose fire time has passed.
func (r *NotificationRepository) ListDue(ctx context.Context, before time.Time, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf("SELECT %s FROM notifications WHERE status = 'pending' AND scheduled_for IS NOT NULL AND scheduled_for <= $1 ORDER BY scheduled_for ASC LIMIT %d", notificationColumns, limit)
	var notifications []models.Notification
	if err := r.db.SelectContext(ctx, &notifications, query, before); err != nil {
		return nil, fmt.Errorf("list due notifications: %w", err)
	}
	return notifications, nil
}

// ListByUser returns a user's notifications, newest first.
func (r *NotificationRepository) ListByUser(ctx context.Context, organizationID, userID int64, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	query := fmt.Sprintf("SELECT %s FROM notifications WHERE organization_id = $1 AND user_id = $2 ORDER BY created_at DESC LIMIT %d", notificationColumns, limit)
	var notifications []models.Notification
	if err := r.db.SelectContext(ctx, &notifications, query, organizationID, userID); err != nil {
		return nil, fmt.Errorf("list user notifications: %w", err)
	}
	return notifications, nil
}

// CancelPendingByEntity marks an entity's undelivered scheduled notifications
// cancelled. Used to retire stale reminders when an appointment moves or is
// cancelled.
func (r *NotificationRepository) CancelPendingByEntity(ctx context.Context, entityType string, entityID int64) error {
	const query = `UPDATE notifications SET status = 'cancelled'
		WHERE related_entity_type = $1 AND related_entity_id = $2 AND status = 'pending' AND scheduled_for IS NOT NULL`
	if _, err := r.db.ExecContext(ctx, query, entityType, entityID); err != nil {
		return fmt.Errorf("cancel pending notifications: %w", err)
	}
	return nil
}

// MarkSent flips a notification to sent.
func (r *NotificationRepository) MarkSent(ctx context.Context, id string) error {
	const query = `UPDATE notifications SET status = 'sent' WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("mark notification sent: %w", err)
	}
	return nil
}
