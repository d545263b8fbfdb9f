package models

import (
	"strings"
	"time"
)

// NotificationType is the severity tier. Urgent is reserved for
// time-critical conditions: payments due within hours, travel about to
// start. Everything else is normal.
type NotificationType string

const (
	NotificationNormal NotificationType = "normal"
	NotificationUrgent NotificationType = "urgent"
)

// Valid reports whether t is a known tier.
func (t NotificationType) Valid() bool {
	return t == NotificationNormal || t == NotificationUrgent
}

// Event type constants name the rule or workflow event behind a
// notification. They form the first segment of the event key.
const (
	EventQuoteFollowUp      = "quote_followup"
	EventTaskReminder       = "task_reminder"
	EventTaskOverdue        = "task_overdue"
	EventFeedbackReminder   = "feedback_reminder"
	EventCommissionFollowUp = "commission_followup"
	EventPaymentDeadline    = "payment_deadline"
	EventTravelReadiness    = "travel_readiness"
	EventApprovalPending    = "approval_pending"
	EventApprovalResolved   = "approval_resolved"
)

// Notification is one in-app message for one user. EventKey, when set,
// carries the deduplication identity: at most one row ever exists per
// (user, event key) pair, and a second insert is silently dropped.
// Notifications without an event key are always created.
type Notification struct {
	ID         string           `db:"id" json:"id"`
	AgencyID   string           `db:"agency_id" json:"agencyId"`
	UserID     string           `db:"user_id" json:"userId"`
	Type       NotificationType `db:"type" json:"type"`
	Title      string           `db:"title" json:"title"`
	Message    string           `db:"message" json:"message"`
	EntityType *string          `db:"entity_type" json:"entityType,omitempty"`
	EntityID   *string          `db:"entity_id" json:"entityId,omitempty"`
	EventKey   *string          `db:"event_key" json:"eventKey,omitempty"`
	IsRead     bool             `db:"is_read" json:"isRead"`
	CreatedAt  time.Time        `db:"created_at" json:"createdAt"`
}

// NotificationFilter narrows notification listings.
type NotificationFilter struct {
	AgencyID   string
	UserID     string
	UnreadOnly bool
	Page       int
	Limit      int
}

// EventKey builds the canonical deduplication key for an event:
// eventType:entityType:entityID, with optional extra segments appended for
// rules that fire more than once per entity (a day bucket, a booking id).
// Empty extras are skipped so callers can pass optional parts untested.
func EventKey(eventType, entityType, entityID string, extra ...string) string {
	parts := make([]string, 0, 3+len(extra))
	parts = append(parts, eventType, entityType, entityID)
	for _, e := range extra {
		if e != "" {
			parts = append(parts, e)
		}
	}
	return strings.Join(parts, ":")
}

// DayBucket formats t as a UTC calendar day for use as an event key segment.
// Recurring rules include it so a reminder suppressed today can fire again
// tomorrow.
func DayBucket(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
