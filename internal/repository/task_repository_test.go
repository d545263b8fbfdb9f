package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/wanderdesk/wanderdesk-api/internal/models"
)

func newTaskRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func taskRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "agency_id", "trip_id", "booking_id", "assignee_id", "title", "description", "category", "priority", "due_date", "status", "is_system_generated", "source_event", "completed_at", "created_at", "updated_at"})
}

func TestTaskRepositoryCreateSystemDedup(t *testing.T) {
	db, mock, cleanup := newTaskRepoMock(t)
	defer cleanup()

	repo := NewTaskRepository(db)
	tripID := "trip-1"
	source := "final_payment:trip:trip-1"

	// The arbiter clause must restate the partial index predicate exactly,
	// otherwise Postgres cannot infer uq_tasks_source_event.
	arbiter := regexp.QuoteMeta("ON CONFLICT (trip_id, source_event) WHERE status <> 'completed' AND source_event IS NOT NULL DO NOTHING")

	mock.ExpectExec("(?s)INSERT INTO tasks.*" + arbiter).
		WillReturnResult(sqlmock.NewResult(1, 1))
	task := &models.Task{
		AgencyID:    "agency-1",
		TripID:      &tripID,
		AssigneeID:  "user-1",
		Title:       "Collect final payment",
		SourceEvent: &source,
	}
	created, err := repo.CreateSystem(context.Background(), task)
	require.NoError(t, err)
	require.True(t, created)
	require.True(t, task.IsSystemGenerated)
	require.Equal(t, models.TaskOpen, task.Status)

	// Conflict with the partial unique index absorbs the second insert.
	mock.ExpectExec("(?s)INSERT INTO tasks.*" + arbiter).
		WillReturnResult(sqlmock.NewResult(0, 0))
	created, err = repo.CreateSystem(context.Background(), &models.Task{
		AgencyID:    "agency-1",
		TripID:      &tripID,
		AssigneeID:  "user-1",
		Title:       "Collect final payment",
		SourceEvent: &source,
	})
	require.NoError(t, err)
	require.False(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepositoryHasOpenSystemTask(t *testing.T) {
	db, mock, cleanup := newTaskRepoMock(t)
	defer cleanup()

	repo := NewTaskRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("trip-1", "pre_travel:trip:trip-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.HasOpenSystemTask(context.Background(), "trip-1", "pre_travel:trip:trip-1")
	require.NoError(t, err)
	require.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepositoryCompleteGuard(t *testing.T) {
	db, mock, cleanup := newTaskRepoMock(t)
	defer cleanup()

	repo := NewTaskRepository(db)
	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE tasks SET status")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Complete(context.Background(), "agency-1", "task-1", now))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE tasks SET status")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.Complete(context.Background(), "agency-1", "task-1", now)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepositoryMarkOverdueReturnsFlipped(t *testing.T) {
	db, mock, cleanup := newTaskRepoMock(t)
	defer cleanup()

	repo := NewTaskRepository(db)
	now := time.Now().UTC()
	due := now.Add(-2 * time.Hour)
	rows := taskRows().
		AddRow("task-1", "agency-1", "trip-1", nil, "user-1", "Collect final payment", nil, "payment", "urgent", due, "overdue", true, "final_payment:trip:trip-1", nil, now.Add(-48*time.Hour), now)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE tasks SET status")).
		WillReturnRows(rows)

	flipped, err := repo.MarkOverdue(context.Background(), now, 100)
	require.NoError(t, err)
	require.Len(t, flipped, 1)
	require.Equal(t, models.TaskOverdue, flipped[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}
