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

// TaskRepository persists tasks. System-generated tasks are guarded by a
// partial unique index over (trip_id, source_event) for rows that are still
// open, the second dedup mechanism next to the notification event key.
type TaskRepository struct {
	db *sqlx.DB
}

// NewTaskRepository constructs the repository.
func NewTaskRepository(db *sqlx.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

const taskColumns = `id, agency_id, trip_id, booking_id, assignee_id, title, description, category, priority, due_date, status, is_system_generated, source_event, completed_at, created_at, updated_at`

func fillTaskDefaults(task *models.Task) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Status == "" {
		task.Status = models.TaskOpen
	}
	if task.Priority == "" {
		task.Priority = models.TaskPriorityNormal
	}
	if task.Category == "" {
		task.Category = models.TaskCategoryGeneral
	}
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
}

const insertTaskQuery = `INSERT INTO tasks
	(id, agency_id, trip_id, booking_id, assignee_id, title, description, category, priority, due_date, status, is_system_generated, source_event, completed_at, created_at, updated_at)
	VALUES (:id, :agency_id, :trip_id, :booking_id, :assignee_id, :title, :description, :category, :priority, :due_date, :status, :is_system_generated, :source_event, :completed_at, :created_at, :updated_at)`

// Create inserts a manually created task row.
func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	fillTaskDefaults(task)
	if _, err := r.db.NamedExecContext(ctx, insertTaskQuery, task); err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// CreateSystem inserts a system-generated task unless an open task with the
// same (trip_id, source_event) already exists. The partial unique index
// absorbs the insert, so two racing generators produce exactly one row.
// Returns whether a row was actually created.
func (r *TaskRepository) CreateSystem(ctx context.Context, task *models.Task) (bool, error) {
	fillTaskDefaults(task)
	task.IsSystemGenerated = true
	query := insertTaskQuery + ` ON CONFLICT (trip_id, source_event) WHERE status <> 'completed' AND source_event IS NOT NULL DO NOTHING`
	result, err := r.db.NamedExecContext(ctx, query, task)
	if err != nil {
		return false, fmt.Errorf("create system task: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check system task rows: %w", err)
	}
	return rows > 0, nil
}

// HasOpenSystemTask reports whether an open system-generated task exists for
// the trip and source event. Fast-path check in front of CreateSystem.
func (r *TaskRepository) HasOpenSystemTask(ctx context.Context, tripID, sourceEvent string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM tasks WHERE trip_id = $1 AND source_event = $2 AND is_system_generated AND status <> 'completed')`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, tripID, sourceEvent); err != nil {
		return false, fmt.Errorf("check open system task: %w", err)
	}
	return exists, nil
}

// GetByID fetches a task scoped to an agency.
func (r *TaskRepository) GetByID(ctx context.Context, agencyID, id string) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND agency_id = $2`
	var task models.Task
	if err := r.db.GetContext(ctx, &task, query, id, agencyID); err != nil {
		return nil, err
	}
	return &task, nil
}

// List returns tasks matching the filter, soonest due first with undated
// tasks last.
func (r *TaskRepository) List(ctx context.Context, filter models.TaskFilter) ([]models.Task, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + taskColumns + ` FROM tasks WHERE agency_id = $1`)
	args := []interface{}{filter.AgencyID}

	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		builder.WriteString(fmt.Sprintf(" AND assignee_id = $%d", len(args)))
	}
	if filter.TripID != nil {
		args = append(args, *filter.TripID)
		builder.WriteString(fmt.Sprintf(" AND trip_id = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		builder.WriteString(fmt.Sprintf(" AND status = $%d", len(args)))
	}
	if filter.OverdueOnly {
		args = append(args, time.Now().UTC())
		builder.WriteString(fmt.Sprintf(" AND status <> 'completed' AND due_date IS NOT NULL AND due_date < $%d", len(args)))
	}
	builder.WriteString(" ORDER BY due_date ASC NULLS LAST, created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, (page-1)*limit))

	var tasks []models.Task
	if err := r.db.SelectContext(ctx, &tasks, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// ListDueBetween returns open tasks of the given priority due inside the
// window, soonest first. Feeds the task reminder rule.
func (r *TaskRepository) ListDueBetween(ctx context.Context, from, until time.Time, priority models.TaskPriority, limit int) ([]models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
	WHERE status = $1 AND priority = $2 AND due_date IS NOT NULL AND due_date >= $3 AND due_date <= $4
	ORDER BY due_date ASC LIMIT $5`
	var tasks []models.Task
	if err := r.db.SelectContext(ctx, &tasks, query, models.TaskOpen, priority, from, until, limit); err != nil {
		return nil, fmt.Errorf("list tasks due between: %w", err)
	}
	return tasks, nil
}

// Complete marks a task done. Guarded on status so completing twice, or
// completing a task someone else finished, reports sql.ErrNoRows.
func (r *TaskRepository) Complete(ctx context.Context, agencyID, id string, completedAt time.Time) error {
	const query = `UPDATE tasks SET status = $1, completed_at = $2, updated_at = $2 WHERE id = $3 AND agency_id = $4 AND status <> $1`
	result, err := r.db.ExecContext(ctx, query, models.TaskCompleted, completedAt, id, agencyID)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check task completion rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkOverdue relabels open tasks whose due date has passed and returns the
// rows it flipped. Runs as an explicit reconciliation step so list queries
// stay read-only.
func (r *TaskRepository) MarkOverdue(ctx context.Context, now time.Time, limit int) ([]models.Task, error) {
	query := `UPDATE tasks SET status = $1, updated_at = $2
	WHERE id IN (SELECT id FROM tasks WHERE status = $3 AND due_date IS NOT NULL AND due_date < $2 ORDER BY due_date ASC LIMIT $4)
	RETURNING ` + taskColumns
	var tasks []models.Task
	if err := r.db.SelectContext(ctx, &tasks, query, models.TaskOverdue, now, models.TaskOpen, limit); err != nil {
		return nil, fmt.Errorf("mark tasks overdue: %w", err)
	}
	return tasks, nil
}
