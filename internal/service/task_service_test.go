package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wanderdesk/wanderdesk-api/internal/dto"
	"github.com/wanderdesk/wanderdesk-api/internal/models"
	appErrors "github.com/wanderdesk/wanderdesk-api/pkg/errors"
)

var taskTestNow = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

type stubTaskStore struct {
	tasks       map[string]*models.Task
	created     []*models.Task
	listed      []models.Task
	lastFilter  models.TaskFilter
	completeErr error
	completed   []string
}

func (s *stubTaskStore) Create(ctx context.Context, task *models.Task) error {
	task.ID = fmt.Sprintf("task-%d", len(s.created)+1)
	task.CreatedAt = taskTestNow
	task.UpdatedAt = taskTestNow
	s.created = append(s.created, task)
	return nil
}

func (s *stubTaskStore) GetByID(ctx context.Context, agencyID, id string) (*models.Task, error) {
	task, ok := s.tasks[id]
	if !ok || task.AgencyID != agencyID {
		return nil, sql.ErrNoRows
	}
	clone := *task
	return &clone, nil
}

func (s *stubTaskStore) List(ctx context.Context, filter models.TaskFilter) ([]models.Task, error) {
	s.lastFilter = filter
	return s.listed, nil
}

func (s *stubTaskStore) Complete(ctx context.Context, agencyID, id string, completedAt time.Time) error {
	if s.completeErr != nil {
		return s.completeErr
	}
	s.completed = append(s.completed, id)
	return nil
}

type stubUserReader struct {
	users map[string]*models.User
}

func (s *stubUserReader) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := s.users[id]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func newTaskFixture(store *stubTaskStore, trips *stubTripSource, bookings *stubBookingReader, users *stubUserReader, opts ...TaskOption) *TaskService {
	opts = append(opts, WithTaskClock(func() time.Time { return taskTestNow }))
	return NewTaskService(store, trips, bookings, users, zap.NewNop(), opts...)
}

func TestCreateManualTaskDefaultsToSelf(t *testing.T) {
	store := &stubTaskStore{}
	svc := newTaskFixture(store, &stubTripSource{}, &stubBookingReader{}, &stubUserReader{})

	task, err := svc.Create(context.Background(), approvalClaims("agent-1", models.RoleAgent), dto.CreateTaskRequest{
		Title:    "  Call the Hyatt about a crib  ",
		Priority: models.TaskPriorityNormal,
		Category: models.TaskCategoryFollowUp,
	})
	require.NoError(t, err)
	assert.Equal(t, "agent-1", task.AssigneeID)
	assert.Equal(t, "agency-1", task.AgencyID)
	assert.Equal(t, "Call the Hyatt about a crib", task.Title)
	assert.Equal(t, models.TaskOpen, task.Status)
	assert.Nil(t, task.TripID)
	assert.False(t, task.IsSystemGenerated)
	require.Len(t, store.created, 1)
}

func TestCreateTaskValidatesReferences(t *testing.T) {
	trips := &stubTripSource{byID: map[string]*models.Trip{
		"trip-1": {ID: "trip-1", AgencyID: "agency-1", Stage: models.StageBooked},
	}}
	bookings := &stubBookingReader{bookings: map[string]*models.Booking{
		"bk-1": {ID: "bk-1", AgencyID: "agency-1", TripID: "trip-2"},
	}}
	users := &stubUserReader{users: map[string]*models.User{
		"agent-2":     {ID: "agent-2", AgencyID: "agency-1", Active: true},
		"agent-other": {ID: "agent-other", AgencyID: "agency-2", Active: true},
		"agent-idle":  {ID: "agent-idle", AgencyID: "agency-1", Active: false},
	}}
	svc := newTaskFixture(&stubTaskStore{}, trips, bookings, users)
	actor := approvalClaims("agent-1", models.RoleAgent)

	_, err := svc.Create(context.Background(), actor, dto.CreateTaskRequest{Title: "   "})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Create(context.Background(), actor, dto.CreateTaskRequest{Title: "x", Priority: "critical"})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Create(context.Background(), actor, dto.CreateTaskRequest{Title: "x", Category: "errands"})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Create(context.Background(), actor, dto.CreateTaskRequest{Title: "x", AssigneeID: "agent-other"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "active member")

	_, err = svc.Create(context.Background(), actor, dto.CreateTaskRequest{Title: "x", AssigneeID: "agent-idle"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "active member")

	_, err = svc.Create(context.Background(), actor, dto.CreateTaskRequest{Title: "x", TripID: "trip-missing"})
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = svc.Create(context.Background(), actor, dto.CreateTaskRequest{Title: "x", TripID: "trip-1", BookingID: "bk-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not belong to the trip")

	task, err := svc.Create(context.Background(), actor, dto.CreateTaskRequest{Title: "x", TripID: "trip-1", AssigneeID: "agent-2"})
	require.NoError(t, err)
	assert.Equal(t, "agent-2", task.AssigneeID)
}

func TestListRelabelsOverdueTasks(t *testing.T) {
	yesterday := taskTestNow.Add(-24 * time.Hour)
	nextWeek := taskTestNow.Add(7 * 24 * time.Hour)
	store := &stubTaskStore{listed: []models.Task{
		{ID: "t-late", Status: models.TaskOpen, DueDate: &yesterday},
		{ID: "t-soon", Status: models.TaskOpen, DueDate: &nextWeek},
		{ID: "t-done", Status: models.TaskCompleted, DueDate: &yesterday},
	}}
	svc := newTaskFixture(store, &stubTripSource{}, &stubBookingReader{}, &stubUserReader{})

	tasks, err := svc.List(context.Background(), approvalClaims("agent-1", models.RoleAgent), dto.TaskQuery{
		AssigneeID: "agent-1",
		Status:     models.TaskOpen,
	})
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, models.TaskOverdue, tasks[0].Status)
	assert.Equal(t, models.TaskOpen, tasks[1].Status)
	assert.Equal(t, models.TaskCompleted, tasks[2].Status)

	require.NotNil(t, store.lastFilter.AssigneeID)
	assert.Equal(t, "agent-1", *store.lastFilter.AssigneeID)
	require.NotNil(t, store.lastFilter.Status)
	assert.Equal(t, models.TaskOpen, *store.lastFilter.Status)

	_, err = svc.List(context.Background(), approvalClaims("agent-1", models.RoleAgent), dto.TaskQuery{Status: "someday"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCompleteTask(t *testing.T) {
	due := taskTestNow.Add(-48 * time.Hour)
	store := &stubTaskStore{tasks: map[string]*models.Task{
		"task-1": {ID: "task-1", AgencyID: "agency-1", Status: models.TaskOverdue, DueDate: &due},
		"task-2": {ID: "task-2", AgencyID: "agency-1", Status: models.TaskCompleted},
	}}
	audit := &stubAuditSink{}
	svc := newTaskFixture(store, &stubTripSource{}, &stubBookingReader{}, &stubUserReader{}, WithTaskAudit(audit))
	actor := approvalClaims("agent-1", models.RoleAgent)

	task, err := svc.Complete(context.Background(), actor, "task-1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, task.Status)
	require.NotNil(t, task.CompletedAt)
	assert.Equal(t, taskTestNow, *task.CompletedAt)
	assert.Equal(t, []string{"task-1"}, store.completed)

	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionTaskComplete, audit.entries[0].Action)

	_, err = svc.Complete(context.Background(), actor, "task-2")
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	_, err = svc.Complete(context.Background(), actor, "task-missing")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	store.completeErr = sql.ErrNoRows
	_, err = svc.Complete(context.Background(), actor, "task-1")
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestGetRelabelsOverdueTask(t *testing.T) {
	due := taskTestNow.Add(-time.Hour)
	store := &stubTaskStore{tasks: map[string]*models.Task{
		"task-1": {ID: "task-1", AgencyID: "agency-1", Status: models.TaskOpen, DueDate: &due},
	}}
	svc := newTaskFixture(store, &stubTripSource{}, &stubBookingReader{}, &stubUserReader{})

	task, err := svc.Get(context.Background(), approvalClaims("agent-1", models.RoleAgent), "task-1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskOverdue, task.Status)
	assert.Equal(t, models.TaskOpen, store.tasks["task-1"].Status)
}
