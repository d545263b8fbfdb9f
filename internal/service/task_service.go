package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wanderdesk/wanderdesk-api/internal/dto"
	"github.com/wanderdesk/wanderdesk-api/internal/models"
	appErrors "github.com/wanderdesk/wanderdesk-api/pkg/errors"
)

type taskStore interface {
	Create(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, agencyID, id string) (*models.Task, error)
	List(ctx context.Context, filter models.TaskFilter) ([]models.Task, error)
	Complete(ctx context.Context, agencyID, id string, completedAt time.Time) error
}

type taskTripReader interface {
	GetByID(ctx context.Context, agencyID, id string) (*models.Trip, error)
}

type taskBookingReader interface {
	GetByID(ctx context.Context, agencyID, id string) (*models.Booking, error)
}

type taskUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// TaskService manages manual tasks. Generated tasks come from the deadline
// rules in AutomationService; both kinds share the tasks table and this list
// surface. Listings relabel late open tasks as overdue in memory, so the
// label is current even between reconciliation passes.
type TaskService struct {
	tasks    taskStore
	trips    taskTripReader
	bookings taskBookingReader
	users    taskUserReader
	audit    auditLogger
	logger   *zap.Logger
	now      func() time.Time
}

// TaskOption customizes the service.
type TaskOption func(*TaskService)

// WithTaskAudit records completions in the audit trail.
func WithTaskAudit(audit auditLogger) TaskOption {
	return func(s *TaskService) {
		s.audit = audit
	}
}

// WithTaskClock overrides the time source.
func WithTaskClock(now func() time.Time) TaskOption {
	return func(s *TaskService) {
		s.now = now
	}
}

// NewTaskService constructs the service.
func NewTaskService(tasks taskStore, trips taskTripReader, bookings taskBookingReader, users taskUserReader, logger *zap.Logger, opts ...TaskOption) *TaskService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &TaskService{
		tasks:    tasks,
		trips:    trips,
		bookings: bookings,
		users:    users,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create files a manual task. The assignee defaults to the caller; an
// explicit assignee must be an active member of the same agency. Linked
// trips and bookings are resolved within the caller's agency so a task can
// never point into another tenant.
func (s *TaskService) Create(ctx context.Context, actor *models.JWTClaims, req dto.CreateTaskRequest) (*models.Task, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "title is required")
	}
	if req.Priority != "" && !req.Priority.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown priority %q", req.Priority))
	}
	if req.Category != "" && !validTaskCategory(req.Category) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown category %q", req.Category))
	}

	assignee := req.AssigneeID
	if assignee == "" {
		assignee = actor.UserID
	}
	if assignee != actor.UserID {
		user, err := s.users.FindByID(ctx, assignee)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrValidation, "assignee does not exist")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up assignee")
		}
		if user.AgencyID != actor.AgencyID || !user.Active {
			return nil, appErrors.Clone(appErrors.ErrValidation, "assignee is not an active member of this agency")
		}
	}

	if req.TripID != "" {
		if _, err := s.trips.GetByID(ctx, actor.AgencyID, req.TripID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "trip not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load trip")
		}
	}
	if req.BookingID != "" {
		booking, err := s.bookings.GetByID(ctx, actor.AgencyID, req.BookingID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "booking not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booking")
		}
		if req.TripID != "" && booking.TripID != req.TripID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "booking does not belong to the trip")
		}
	}

	task := &models.Task{
		AgencyID:    actor.AgencyID,
		TripID:      optionalString(req.TripID),
		BookingID:   optionalString(req.BookingID),
		AssigneeID:  assignee,
		Title:       title,
		Description: optionalString(req.Description),
		Category:    req.Category,
		Priority:    req.Priority,
		DueDate:     req.DueDate,
		Status:      models.TaskOpen,
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create task")
	}
	return task, nil
}

// List returns tasks for the agency, relabeling late open tasks as overdue.
func (s *TaskService) List(ctx context.Context, actor *models.JWTClaims, query dto.TaskQuery) ([]models.Task, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	filter := models.TaskFilter{
		AgencyID:    actor.AgencyID,
		OverdueOnly: query.OverdueOnly,
		Page:        query.Page,
		Limit:       query.Limit,
	}
	if query.AssigneeID != "" {
		assignee := query.AssigneeID
		filter.AssigneeID = &assignee
	}
	if query.TripID != "" {
		tripID := query.TripID
		filter.TripID = &tripID
	}
	if query.Status != "" {
		if !query.Status.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", query.Status))
		}
		status := query.Status
		filter.Status = &status
	}

	tasks, err := s.tasks.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list tasks")
	}
	now := s.now()
	for i := range tasks {
		if tasks[i].OverdueAt(now) {
			tasks[i].Status = models.TaskOverdue
		}
	}
	return tasks, nil
}

// Get returns one task, with the same overdue relabeling as List.
func (s *TaskService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.Task, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	task, err := s.tasks.GetByID(ctx, actor.AgencyID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "task not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load task")
	}
	if task.OverdueAt(s.now()) {
		task.Status = models.TaskOverdue
	}
	return task, nil
}

// Complete marks a task done. Completing an already completed task is a
// conflict, not a no-op, so double submissions surface to the caller.
func (s *TaskService) Complete(ctx context.Context, actor *models.JWTClaims, id string) (*models.Task, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	task, err := s.tasks.GetByID(ctx, actor.AgencyID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "task not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load task")
	}
	if task.Status == models.TaskCompleted {
		return nil, appErrors.Clone(appErrors.ErrConflict, "task is already completed")
	}

	completedAt := s.now()
	if err := s.tasks.Complete(ctx, actor.AgencyID, id, completedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "task is already completed")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete task")
	}
	task.Status = models.TaskCompleted
	task.CompletedAt = &completedAt
	task.UpdatedAt = completedAt

	s.emitTaskAudit(ctx, &models.AuditLog{
		AgencyID:   actor.AgencyID,
		UserID:     &actor.UserID,
		Action:     models.AuditActionTaskComplete,
		Resource:   "task",
		ResourceID: &task.ID,
	})
	return task, nil
}

func (s *TaskService) emitTaskAudit(ctx context.Context, log *models.AuditLog) {
	if s.audit == nil || log == nil {
		return
	}
	log.IPAddress = "system"
	log.UserAgent = "task-service"
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func validTaskCategory(category string) bool {
	switch category {
	case models.TaskCategoryPayment, models.TaskCategoryPreparation, models.TaskCategoryFollowUp, models.TaskCategoryGeneral:
		return true
	}
	return false
}
