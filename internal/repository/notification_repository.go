package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/wanderdesk/wanderdesk-api/internal/models"
)

// NotificationRepository persists user notifications. The notifications
// table carries a unique index over (user_id, event_key) which backs the
// event deduplication guarantee; Create intentionally lets the violation
// escape so callers can treat it as "duplicate", not as failure.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const notificationColumns = `id, agency_id, user_id, type, title, message, entity_type, entity_id, event_key, is_read, created_at`

// Create inserts a notification row. A unique violation on the event key
// index is returned unwrapped for IsUniqueViolation checks.
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Type == "" {
		n.Type = models.NotificationNormal
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO notifications (id, agency_id, user_id, type, title, message, entity_type, entity_id, event_key, is_read, created_at)
	VALUES (:id, :agency_id, :user_id, :type, :title, :message, :entity_type, :entity_id, :event_key, :is_read, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, n); err != nil {
		return err
	}
	return nil
}

// FindByUserAndEventKey returns the notification already recorded for this
// user and event key, or sql.ErrNoRows. This is the dedup fast path; the
// unique index is the net behind it.
func (r *NotificationRepository) FindByUserAndEventKey(ctx context.Context, userID, eventKey string) (*models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = $1 AND event_key = $2 LIMIT 1`
	var n models.Notification
	if err := r.db.GetContext(ctx, &n, query, userID, eventKey); err != nil {
		return nil, err
	}
	return &n, nil
}

// List returns a user's notifications, newest first.
func (r *NotificationRepository) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + notificationColumns + ` FROM notifications WHERE agency_id = $1 AND user_id = $2`)
	args := []interface{}{filter.AgencyID, filter.UserID}

	if filter.UnreadOnly {
		builder.WriteString(" AND is_read = FALSE")
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, (page-1)*limit))

	var notifications []models.Notification
	if err := r.db.SelectContext(ctx, &notifications, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return notifications, nil
}

// CountUnread returns the user's unread notification count.
func (r *NotificationRepository) CountUnread(ctx context.Context, agencyID, userID string) (int, error) {
	const query = `SELECT COUNT(*) FROM notifications WHERE agency_id = $1 AND user_id = $2 AND is_read = FALSE`
	var count int
	if err := r.db.GetContext(ctx, &count, query, agencyID, userID); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead flags one of the user's notifications as read.
func (r *NotificationRepository) MarkRead(ctx context.Context, userID, id string) error {
	const query = `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check notification update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkAllRead flags every unread notification of the user as read and
// returns how many were flipped.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, agencyID, userID string) (int64, error) {
	const query = `UPDATE notifications SET is_read = TRUE WHERE agency_id = $1 AND user_id = $2 AND is_read = FALSE`
	result, err := r.db.ExecContext(ctx, query, agencyID, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check notification update rows: %w", err)
	}
	return rows, nil
}
