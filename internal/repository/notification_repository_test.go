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

func newNotificationRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestNotificationRepositoryCreateFillsDefaults(t *testing.T) {
	db, mock, cleanup := newNotificationRepoMock(t)
	defer cleanup()

	repo := NewNotificationRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notifications")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	key := "quote_followup:trip:trip-1:2026-03-02"
	n := &models.Notification{
		AgencyID: "agency-1",
		UserID:   "user-1",
		Title:    "Quote needs a follow-up",
		Message:  "Bali Honeymoon has been quoted for 4 days",
		EventKey: &key,
	}
	require.NoError(t, repo.Create(context.Background(), n))
	require.NotEmpty(t, n.ID)
	require.Equal(t, models.NotificationNormal, n.Type)
	require.False(t, n.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryFindByUserAndEventKey(t *testing.T) {
	db, mock, cleanup := newNotificationRepoMock(t)
	defer cleanup()

	repo := NewNotificationRepository(db)
	key := "payment_deadline:booking:booking-1:2026-03-02"
	rows := sqlmock.NewRows([]string{"id", "agency_id", "user_id", "type", "title", "message", "entity_type", "entity_id", "event_key", "is_read", "created_at"}).
		AddRow("notif-1", "agency-1", "user-1", "urgent", "Payment due", "Final payment due tomorrow", "booking", "booking-1", key, false, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, agency_id, user_id, type")).
		WithArgs("user-1", key).
		WillReturnRows(rows)

	found, err := repo.FindByUserAndEventKey(context.Background(), "user-1", key)
	require.NoError(t, err)
	require.Equal(t, "notif-1", found.ID)
	require.NoError(t, mock.ExpectationsWereMet())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, agency_id, user_id, type")).
		WithArgs("user-1", "missing").
		WillReturnError(sql.ErrNoRows)
	_, err = repo.FindByUserAndEventKey(context.Background(), "user-1", "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestNotificationRepositoryMarkRead(t *testing.T) {
	db, mock, cleanup := newNotificationRepoMock(t)
	defer cleanup()

	repo := NewNotificationRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE notifications SET is_read = TRUE")).
		WithArgs("notif-1", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkRead(context.Background(), "user-1", "notif-1"))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE notifications SET is_read = TRUE")).
		WithArgs("notif-2", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.MarkRead(context.Background(), "user-1", "notif-2")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
