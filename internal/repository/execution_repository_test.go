package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/wanderdesk/wanderdesk-api/internal/models"
)

func newExecutionRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func executionResolveParams() ResolveParams {
	return ResolveParams{
		ID:         "apr-1",
		AgencyID:   "agency-1",
		ResolvedBy: "admin-1",
		ResolvedAt: time.Now().UTC(),
	}
}

func TestExecutionRepositoryApplyTripStage(t *testing.T) {
	db, mock, cleanup := newExecutionRepoMock(t)
	defer cleanup()

	repo := NewExecutionRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT stage FROM trips")).
		WithArgs("trip-1", "agency-1").
		WillReturnRows(sqlmock.NewRows([]string{"stage"}).AddRow("quoted"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE trips SET stage")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO change_history")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE approval_requests SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	drift, err := repo.ApplyTripStage(context.Background(), TripStageParams{
		Resolve:   executionResolveParams(),
		TripID:    "trip-1",
		FromStage: models.StageQuoted,
		ToStage:   models.StageBooked,
		ChangedBy: "admin-1",
		Audit:     models.AuditLog{AgencyID: "agency-1", Resource: "approval_requests"},
	})
	require.NoError(t, err)
	require.Nil(t, drift)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutionRepositoryApplyTripStageDrift(t *testing.T) {
	db, mock, cleanup := newExecutionRepoMock(t)
	defer cleanup()

	repo := NewExecutionRepository(db)

	// Trip moved to booked behind the approval's back: no trip update, the
	// approval is committed as execution_failed.
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT stage FROM trips")).
		WithArgs("trip-1", "agency-1").
		WillReturnRows(sqlmock.NewRows([]string{"stage"}).AddRow("booked"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE approval_requests SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	drift, err := repo.ApplyTripStage(context.Background(), TripStageParams{
		Resolve:   executionResolveParams(),
		TripID:    "trip-1",
		FromStage: models.StageQuoted,
		ToStage:   models.StageBooked,
		ChangedBy: "admin-1",
		Audit:     models.AuditLog{AgencyID: "agency-1", Resource: "approval_requests"},
	})
	require.NoError(t, err)
	require.NotNil(t, drift)
	require.Equal(t, models.StageQuoted, drift.Expected)
	require.Equal(t, models.StageBooked, drift.Current)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutionRepositoryApplyBookingChange(t *testing.T) {
	db, mock, cleanup := newExecutionRepoMock(t)
	defer cleanup()

	repo := NewExecutionRepository(db)
	now := time.Now()
	lockRows := sqlmock.NewRows([]string{"id", "agency_id", "trip_id", "kind", "supplier", "confirmation_number", "status", "payment_status", "commission_status", "total_price", "commission_amount", "deposit_due_date", "final_payment_due_date", "created_at", "updated_at"}).
		AddRow("booking-1", "agency-1", "trip-1", "cruise", "Oceanic", nil, "quoted", "deposit_paid", "expected", 4200.0, 420.0, nil, nil, now, now)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, agency_id, trip_id, kind")).
		WithArgs("booking-1", "agency-1").
		WillReturnRows(lockRows)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE bookings SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO change_history")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE approval_requests SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	status := models.BookingBooked
	history, err := repo.ApplyBookingChange(context.Background(), BookingChangeParams{
		Resolve:   executionResolveParams(),
		BookingID: "booking-1",
		SetStatus: &status,
		ChangedBy: "admin-1",
		Audit:     models.AuditLog{AgencyID: "agency-1", Resource: "approval_requests"},
	})
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, "status", history[0].Field)
	require.Equal(t, "quoted", *history[0].OldValue)
	require.Equal(t, "booked", *history[0].NewValue)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutionRepositoryApplyTripFields(t *testing.T) {
	db, mock, cleanup := newExecutionRepoMock(t)
	defer cleanup()

	repo := NewExecutionRepository(db)
	now := time.Now()
	lockRows := sqlmock.NewRows([]string{"id", "agency_id", "client_id", "owner_id", "title", "destination", "stage", "travel_start_date", "travel_end_date", "quote_sent_at", "final_payment_due_date", "completed_at", "created_at", "updated_at"}).
		AddRow("trip-1", "agency-1", "client-1", "user-1", "Bali Honeymoon", "Bali", "completed", nil, nil, nil, nil, now, now, now)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, agency_id, client_id")).
		WithArgs("trip-1", "agency-1").
		WillReturnRows(lockRows)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE trips SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO change_history")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE approval_requests SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	newTitle := "Bali Honeymoon (rebooked)"
	history, err := repo.ApplyTripFields(context.Background(), TripFieldsParams{
		Resolve:   executionResolveParams(),
		TripID:    "trip-1",
		Updates:   []TripFieldUpdate{{Column: models.TripFieldTitle, Value: newTitle, Text: &newTitle}},
		ChangedBy: "admin-1",
		Audit:     models.AuditLog{AgencyID: "agency-1", Resource: "approval_requests"},
	})
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, "Bali Honeymoon", *history[0].OldValue)
	require.Equal(t, newTitle, *history[0].NewValue)
	require.NoError(t, mock.ExpectationsWereMet())
}
