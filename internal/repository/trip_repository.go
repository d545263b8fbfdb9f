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

// TripRepository provides database access for trips, including the bounded
// candidate queries the automation rules run on.
type TripRepository struct {
	db *sqlx.DB
}

// NewTripRepository constructs the repository.
func NewTripRepository(db *sqlx.DB) *TripRepository {
	return &TripRepository{db: db}
}

const tripColumns = `id, agency_id, client_id, owner_id, title, destination, stage, travel_start_date, travel_end_date, quote_sent_at, final_payment_due_date, completed_at, created_at, updated_at`

func prefixedTripColumns(alias string) string {
	cols := strings.Split(tripColumns, ", ")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

// Create inserts a new trip row.
func (r *TripRepository) Create(ctx context.Context, trip *models.Trip) error {
	if trip.ID == "" {
		trip.ID = uuid.NewString()
	}
	if trip.Stage == "" {
		trip.Stage = models.StageInquiry
	}
	now := time.Now().UTC()
	if trip.CreatedAt.IsZero() {
		trip.CreatedAt = now
	}
	trip.UpdatedAt = now
	const query = `INSERT INTO trips
	(id, agency_id, client_id, owner_id, title, destination, stage, travel_start_date, travel_end_date, quote_sent_at, final_payment_due_date, completed_at, created_at, updated_at)
	VALUES (:id, :agency_id, :client_id, :owner_id, :title, :destination, :stage, :travel_start_date, :travel_end_date, :quote_sent_at, :final_payment_due_date, :completed_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, trip); err != nil {
		return fmt.Errorf("create trip: %w", err)
	}
	return nil
}

// GetByID fetches a trip scoped to an agency.
func (r *TripRepository) GetByID(ctx context.Context, agencyID, id string) (*models.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips WHERE id = $1 AND agency_id = $2`
	var trip models.Trip
	if err := r.db.GetContext(ctx, &trip, query, id, agencyID); err != nil {
		return nil, err
	}
	return &trip, nil
}

// List returns trips matching the filter (sorted latest first).
func (r *TripRepository) List(ctx context.Context, filter models.TripFilter) ([]models.Trip, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + tripColumns + ` FROM trips WHERE agency_id = $1`)
	args := []interface{}{filter.AgencyID}

	if filter.OwnerID != nil {
		args = append(args, *filter.OwnerID)
		builder.WriteString(fmt.Sprintf(" AND owner_id = $%d", len(args)))
	}
	if filter.ClientID != nil {
		args = append(args, *filter.ClientID)
		builder.WriteString(fmt.Sprintf(" AND client_id = $%d", len(args)))
	}
	if filter.Stage != nil {
		args = append(args, *filter.Stage)
		builder.WriteString(fmt.Sprintf(" AND stage = $%d", len(args)))
	}
	if filter.Destination != nil {
		args = append(args, "%"+strings.ToLower(*filter.Destination)+"%")
		builder.WriteString(fmt.Sprintf(" AND LOWER(destination) LIKE $%d", len(args)))
	}
	if filter.Search != nil {
		args = append(args, "%"+strings.ToLower(*filter.Search)+"%")
		builder.WriteString(fmt.Sprintf(" AND (LOWER(title) LIKE $%d OR LOWER(destination) LIKE $%d)", len(args), len(args)))
	}
	builder.WriteString(" ORDER BY updated_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, (page-1)*limit))

	var trips []models.Trip
	if err := r.db.SelectContext(ctx, &trips, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list trips: %w", err)
	}
	return trips, nil
}

// Update persists the editable trip fields.
func (r *TripRepository) Update(ctx context.Context, trip *models.Trip) error {
	trip.UpdatedAt = time.Now().UTC()
	const query = `UPDATE trips SET title = :title, destination = :destination, travel_start_date = :travel_start_date,
	travel_end_date = :travel_end_date, quote_sent_at = :quote_sent_at, final_payment_due_date = :final_payment_due_date,
	owner_id = :owner_id, updated_at = :updated_at
	WHERE id = :id AND agency_id = :agency_id`
	result, err := r.db.NamedExecContext(ctx, query, trip)
	if err != nil {
		return fmt.Errorf("update trip: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check trip update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateStage moves a trip between stages, guarded by the stage the caller
// read. CompletedAt is set when entering completed and cleared when leaving
// it.
func (r *TripRepository) UpdateStage(ctx context.Context, agencyID, id string, from, to models.TripStage) error {
	now := time.Now().UTC()
	var completedAt *time.Time
	if to == models.StageCompleted {
		completedAt = &now
	}
	const query = `UPDATE trips SET stage = $1, completed_at = $2, updated_at = $3 WHERE id = $4 AND agency_id = $5 AND stage = $6`
	result, err := r.db.ExecContext(ctx, query, to, completedAt, now, id, agencyID, from)
	if err != nil {
		return fmt.Errorf("update trip stage: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check trip stage rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListStaleQuotes returns quoted trips untouched since the cutoff, oldest
// first.
func (r *TripRepository) ListStaleQuotes(ctx context.Context, cutoff time.Time, limit int) ([]models.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips WHERE stage = $1 AND updated_at <= $2 ORDER BY updated_at ASC LIMIT $3`
	var trips []models.Trip
	if err := r.db.SelectContext(ctx, &trips, query, models.StageQuoted, cutoff, limit); err != nil {
		return nil, fmt.Errorf("list stale quotes: %w", err)
	}
	return trips, nil
}

// ListAwaitingFeedback returns trips completed before the cutoff that have
// no feedback row yet.
func (r *TripRepository) ListAwaitingFeedback(ctx context.Context, cutoff time.Time, limit int) ([]models.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips t WHERE t.stage = $1 AND t.completed_at IS NOT NULL AND t.completed_at <= $2
	AND NOT EXISTS (SELECT 1 FROM feedback f WHERE f.trip_id = t.id)
	ORDER BY t.completed_at ASC LIMIT $3`
	var trips []models.Trip
	if err := r.db.SelectContext(ctx, &trips, query, models.StageCompleted, cutoff, limit); err != nil {
		return nil, fmt.Errorf("list trips awaiting feedback: %w", err)
	}
	return trips, nil
}

// TripCommission is a trip joined with its outstanding expected commission,
// summed across suppliers.
type TripCommission struct {
	models.Trip
	Outstanding float64 `db:"outstanding"`
}

// ListOutstandingCommissions returns trips completed before the cutoff that
// still have bookings with commission marked expected, with the amounts
// aggregated per trip.
func (r *TripRepository) ListOutstandingCommissions(ctx context.Context, cutoff time.Time, limit int) ([]TripCommission, error) {
	query := `SELECT ` + prefixedTripColumns("t") + `, COALESCE(SUM(b.commission_amount), 0) AS outstanding
	FROM trips t
	JOIN bookings b ON b.trip_id = t.id AND b.commission_status = $1 AND b.status <> $2
	WHERE t.stage = $3 AND t.completed_at IS NOT NULL AND t.completed_at <= $4
	GROUP BY t.id
	ORDER BY t.completed_at ASC LIMIT $5`
	var rows []TripCommission
	err := r.db.SelectContext(ctx, &rows, query,
		models.CommissionExpected, models.BookingCanceled, models.StageCompleted, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list outstanding commissions: %w", err)
	}
	return rows, nil
}

// ListDepartingBetween returns booked trips whose travel starts inside the
// window, soonest first. Trips still in inquiry or quoted are not committed,
// and traveling trips have already departed.
func (r *TripRepository) ListDepartingBetween(ctx context.Context, from, until time.Time, limit int) ([]models.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips
	WHERE stage = $1 AND travel_start_date IS NOT NULL AND travel_start_date >= $2 AND travel_start_date <= $3
	ORDER BY travel_start_date ASC LIMIT $4`
	var trips []models.Trip
	err := r.db.SelectContext(ctx, &trips, query,
		models.StageBooked, from, until, limit)
	if err != nil {
		return nil, fmt.Errorf("list departing trips: %w", err)
	}
	return trips, nil
}

// ListFinalPaymentsDue returns booked trips whose final payment date falls
// on or before the horizon.
func (r *TripRepository) ListFinalPaymentsDue(ctx context.Context, until time.Time, limit int) ([]models.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips
	WHERE stage = $1 AND final_payment_due_date IS NOT NULL AND final_payment_due_date <= $2
	ORDER BY final_payment_due_date ASC LIMIT $3`
	var trips []models.Trip
	if err := r.db.SelectContext(ctx, &trips, query, models.StageBooked, until, limit); err != nil {
		return nil, fmt.Errorf("list final payments due: %w", err)
	}
	return trips, nil
}
