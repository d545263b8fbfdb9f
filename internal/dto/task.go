package dto

import (
	"time"

	"github.com/wanderdesk/wanderdesk-api/internal/models"
)

// CreateTaskRequest payload for creating a manual task.
type CreateTaskRequest struct {
	TripID      string              `json:"tripId"`
	BookingID   string              `json:"bookingId"`
	AssigneeID  string              `json:"assigneeId"`
	Title       string              `json:"title" validate:"required"`
	Description string              `json:"description"`
	Category    string              `json:"category"`
	Priority    models.TaskPriority `json:"priority"`
	DueDate     *time.Time          `json:"dueDate"`
}

// TaskQuery mirrors supported listing filters.
type TaskQuery struct {
	AssigneeID  string
	TripID      string
	Status      models.TaskStatus
	OverdueOnly bool
	Page        int
	Limit       int
}
