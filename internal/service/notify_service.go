package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/wanderdesk/wanderdesk-api/internal/models"
	"github.com/wanderdesk/wanderdesk-api/internal/repository"
	appErrors "github.com/wanderdesk/wanderdesk-api/pkg/errors"
)

type notificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	FindByUserAndEventKey(ctx context.Context, userID, eventKey string) (*models.Notification, error)
	List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, error)
	CountUnread(ctx context.Context, agencyID, userID string) (int, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, agencyID, userID string) (int64, error)
}

type adminDirectory interface {
	ListAdminIDs(ctx context.Context, agencyID string) ([]string, error)
}

type notifyMetrics interface {
	RecordNotificationCreated()
}

// CreateOutcome reports what TryCreate did with a notification. Exactly one
// of Created and Duplicate is true on success; a duplicate is a normal
// outcome, not an error.
type CreateOutcome struct {
	Created   bool   `json:"created"`
	Duplicate bool   `json:"duplicate"`
	ID        string `json:"id,omitempty"`
}

// NotificationInput is one message to deliver, without a recipient. The
// same input is reused across a fan-out; EventKey, when set, deduplicates
// per recipient.
type NotificationInput struct {
	AgencyID   string
	Type       models.NotificationType
	Title      string
	Message    string
	EntityType string
	EntityID   string
	EventKey   string
}

// NotifyService creates notifications with at-most-once delivery per
// (recipient, event key). The application-level existence check is a fast
// path only; the unique index on the notifications table is the actual
// guarantee, and an insert losing that race reports a duplicate.
type NotifyService struct {
	repo    notificationStore
	admins  adminDirectory
	metrics notifyMetrics
	logger  *zap.Logger
}

// NotifyServiceOption configures the service.
type NotifyServiceOption func(*NotifyService)

// WithNotifyMetrics wires the created-notification counter.
func WithNotifyMetrics(m notifyMetrics) NotifyServiceOption {
	return func(s *NotifyService) {
		s.metrics = m
	}
}

// NewNotifyService constructs the service.
func NewNotifyService(repo notificationStore, admins adminDirectory, logger *zap.Logger, opts ...NotifyServiceOption) *NotifyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &NotifyService{repo: repo, admins: admins, logger: logger}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// TryCreate inserts one notification. With an event key set, an existing
// row for the same recipient and key short-circuits to a duplicate outcome,
// and a unique violation on insert is absorbed the same way.
func (s *NotifyService) TryCreate(ctx context.Context, n *models.Notification) (CreateOutcome, error) {
	if n == nil {
		return CreateOutcome{}, appErrors.Clone(appErrors.ErrValidation, "notification is required")
	}
	if strings.TrimSpace(n.UserID) == "" {
		return CreateOutcome{}, appErrors.Clone(appErrors.ErrValidation, "recipient is required")
	}
	if !n.Type.Valid() {
		n.Type = models.NotificationNormal
	}

	if n.EventKey != nil && *n.EventKey != "" {
		existing, err := s.repo.FindByUserAndEventKey(ctx, n.UserID, *n.EventKey)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return CreateOutcome{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check event key")
		}
		if err == nil {
			return CreateOutcome{Duplicate: true, ID: existing.ID}, nil
		}
	}

	if err := s.repo.Create(ctx, n); err != nil {
		if repository.IsUniqueViolation(err) {
			s.logger.Debug("notification lost dedup race",
				zap.String("user_id", n.UserID),
				zap.Stringp("event_key", n.EventKey))
			return CreateOutcome{Duplicate: true}, nil
		}
		return CreateOutcome{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create notification")
	}
	if s.metrics != nil {
		s.metrics.RecordNotificationCreated()
	}
	return CreateOutcome{Created: true, ID: n.ID}, nil
}

// Notify delivers the input to a single recipient.
func (s *NotifyService) Notify(ctx context.Context, userID string, input NotificationInput) (CreateOutcome, error) {
	return s.TryCreate(ctx, buildNotification(userID, input))
}

// FanOut delivers the input to every distinct recipient. Per-recipient
// failures are logged and skipped; FanOut itself only fails when no
// recipient could be notified. Returns the number of notifications created
// after deduplication.
func (s *NotifyService) FanOut(ctx context.Context, input NotificationInput, recipients []string) (int, error) {
	seen := make(map[string]struct{}, len(recipients))
	created := 0
	attempted := 0
	var lastErr error

	for _, userID := range recipients {
		if userID == "" {
			continue
		}
		if _, ok := seen[userID]; ok {
			continue
		}
		seen[userID] = struct{}{}
		attempted++

		outcome, err := s.TryCreate(ctx, buildNotification(userID, input))
		if err != nil {
			lastErr = err
			s.logger.Warn("fan-out delivery failed",
				zap.String("user_id", userID),
				zap.String("event_key", input.EventKey),
				zap.Error(err))
			continue
		}
		if outcome.Created {
			created++
		}
	}

	if created == 0 && attempted > 0 && lastErr != nil {
		return 0, lastErr
	}
	return created, nil
}

// NotifyAdmins resolves the tenant's admins, merges in any extra recipients
// (typically the trip owner) and fans out to the combined set.
func (s *NotifyService) NotifyAdmins(ctx context.Context, input NotificationInput, extra ...string) (int, error) {
	admins, err := s.admins.ListAdminIDs(ctx, input.AgencyID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve admin recipients")
	}
	return s.FanOut(ctx, input, append(admins, extra...))
}

// List returns the caller's notifications, newest first.
func (s *NotifyService) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, error) {
	notifications, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return notifications, nil
}

// CountUnread returns the caller's unread badge count.
func (s *NotifyService) CountUnread(ctx context.Context, agencyID, userID string) (int, error) {
	count, err := s.repo.CountUnread(ctx, agencyID, userID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count unread notifications")
	}
	return count, nil
}

// MarkRead marks one of the caller's notifications as read.
func (s *NotifyService) MarkRead(ctx context.Context, userID, id string) error {
	if err := s.repo.MarkRead(ctx, userID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	return nil
}

// MarkAllRead marks every unread notification for the caller as read and
// returns how many were flipped.
func (s *NotifyService) MarkAllRead(ctx context.Context, agencyID, userID string) (int64, error) {
	count, err := s.repo.MarkAllRead(ctx, agencyID, userID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications read")
	}
	return count, nil
}

func buildNotification(userID string, input NotificationInput) *models.Notification {
	n := &models.Notification{
		AgencyID: input.AgencyID,
		UserID:   userID,
		Type:     input.Type,
		Title:    input.Title,
		Message:  input.Message,
	}
	if input.EntityType != "" {
		entityType := input.EntityType
		n.EntityType = &entityType
	}
	if input.EntityID != "" {
		entityID := input.EntityID
		n.EntityID = &entityID
	}
	if input.EventKey != "" {
		eventKey := input.EventKey
		n.EventKey = &eventKey
	}
	return n
}
