package models

import "time"

// TaskStatus is the task lifecycle. Overdue is not written by read paths:
// a reconciliation pass relabels open tasks whose due date slipped, and
// listings derive the label in memory in between.
type TaskStatus string

const (
	TaskOpen      TaskStatus = "open"
	TaskOverdue   TaskStatus = "overdue"
	TaskCompleted TaskStatus = "completed"
)

// Valid reports whether s is a known task status.
func (s TaskStatus) Valid() bool {
	return s == TaskOpen || s == TaskOverdue || s == TaskCompleted
}

// Open reports whether the task still needs doing.
func (s TaskStatus) Open() bool {
	return s == TaskOpen || s == TaskOverdue
}

// TaskPriority mirrors the notification tiers.
type TaskPriority string

const (
	TaskPriorityNormal TaskPriority = "normal"
	TaskPriorityUrgent TaskPriority = "urgent"
)

// Valid reports whether p is a known priority.
func (p TaskPriority) Valid() bool {
	return p == TaskPriorityNormal || p == TaskPriorityUrgent
}

// Task source events, used by the deadline generator to mark the rule that
// created a task. A unique index over (trip_id, source_event) for
// non-completed system tasks keeps each rule to one live task per trip.
const (
	TaskSourceFinalPayment   = "final_payment"
	TaskSourcePreTravel      = "pre_travel"
	TaskSourceBookingPayment = "booking_payment"
)

// Task categories group tasks in the UI.
const (
	TaskCategoryPayment     = "payment"
	TaskCategoryPreparation = "preparation"
	TaskCategoryFollowUp    = "follow_up"
	TaskCategoryGeneral     = "general"
)

// Task is one to-do for an agent, created by hand or generated from a
// deadline rule. Generated tasks carry IsSystemGenerated plus a SourceEvent
// naming the rule and originating record.
type Task struct {
	ID                string       `db:"id" json:"id"`
	AgencyID          string       `db:"agency_id" json:"agencyId"`
	TripID            *string      `db:"trip_id" json:"tripId,omitempty"`
	BookingID         *string      `db:"booking_id" json:"bookingId,omitempty"`
	AssigneeID        string       `db:"assignee_id" json:"assigneeId"`
	Title             string       `db:"title" json:"title"`
	Description       *string      `db:"description" json:"description,omitempty"`
	Category          string       `db:"category" json:"category"`
	Priority          TaskPriority `db:"priority" json:"priority"`
	DueDate           *time.Time   `db:"due_date" json:"dueDate,omitempty"`
	Status            TaskStatus   `db:"status" json:"status"`
	IsSystemGenerated bool         `db:"is_system_generated" json:"isSystemGenerated"`
	SourceEvent       *string      `db:"source_event" json:"sourceEvent,omitempty"`
	CompletedAt       *time.Time   `db:"completed_at" json:"completedAt,omitempty"`
	CreatedAt         time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time    `db:"updated_at" json:"updatedAt"`
}

// OverdueAt reports whether the task is still open with a due date before
// now. Used to derive the overdue label without writing.
func (t *Task) OverdueAt(now time.Time) bool {
	return t.Status.Open() && t.DueDate != nil && t.DueDate.Before(now)
}

// TaskFilter narrows task listings.
type TaskFilter struct {
	AgencyID    string
	AssigneeID  *string
	TripID      *string
	Status      *TaskStatus
	OverdueOnly bool
	Page        int
	Limit       int
}
