package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/wanderdesk/wanderdesk-api/internal/models"
)

// BookingRepository provides database access for bookings.
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository constructs the repository.
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

const bookingColumns = `id, agency_id, trip_id, kind, supplier, confirmation_number, status, payment_status, commission_status, total_price, commission_amount, deposit_due_date, final_payment_due_date, created_at, updated_at`

// Create inserts a new booking row.
func (r *BookingRepository) Create(ctx context.Context, booking *models.Booking) error {
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	if booking.Status == "" {
		booking.Status = models.BookingPlanned
	}
	if booking.PaymentStatus == "" {
		booking.PaymentStatus = models.PaymentNotPaid
	}
	if booking.CommissionStatus == "" {
		booking.CommissionStatus = models.CommissionExpected
	}
	now := time.Now().UTC()
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = now
	}
	booking.UpdatedAt = now
	const query = `INSERT INTO bookings
	(id, agency_id, trip_id, kind, supplier, confirmation_number, status, payment_status, commission_status, total_price, commission_amount, deposit_due_date, final_payment_due_date, created_at, updated_at)
	VALUES (:id, :agency_id, :trip_id, :kind, :supplier, :confirmation_number, :status, :payment_status, :commission_status, :total_price, :commission_amount, :deposit_due_date, :final_payment_due_date, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, booking); err != nil {
		return fmt.Errorf("create booking: %w", err)
	}
	return nil
}

// GetByID fetches a booking scoped to an agency.
func (r *BookingRepository) GetByID(ctx context.Context, agencyID, id string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1 AND agency_id = $2`
	var booking models.Booking
	if err := r.db.GetContext(ctx, &booking, query, id, agencyID); err != nil {
		return nil, err
	}
	return &booking, nil
}

// List returns bookings matching the filter.
func (r *BookingRepository) List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + bookingColumns + ` FROM bookings WHERE agency_id = $1`)
	args := []interface{}{filter.AgencyID}

	if filter.TripID != nil {
		args = append(args, *filter.TripID)
		builder.WriteString(fmt.Sprintf(" AND trip_id = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		builder.WriteString(fmt.Sprintf(" AND status = $%d", len(args)))
	}
	if filter.PaymentStatus != nil {
		args = append(args, *filter.PaymentStatus)
		builder.WriteString(fmt.Sprintf(" AND payment_status = $%d", len(args)))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, (page-1)*limit))

	var bookings []models.Booking
	if err := r.db.SelectContext(ctx, &bookings, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return bookings, nil
}

// ListByTrip returns every booking attached to a trip.
func (r *BookingRepository) ListByTrip(ctx context.Context, tripID string) ([]models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE trip_id = $1 ORDER BY created_at ASC`
	var bookings []models.Booking
	if err := r.db.SelectContext(ctx, &bookings, query, tripID); err != nil {
		return nil, fmt.Errorf("list bookings by trip: %w", err)
	}
	return bookings, nil
}

// Update persists the editable booking fields.
func (r *BookingRepository) Update(ctx context.Context, booking *models.Booking) error {
	booking.UpdatedAt = time.Now().UTC()
	const query = `UPDATE bookings SET kind = :kind, supplier = :supplier, confirmation_number = :confirmation_number,
	total_price = :total_price, commission_amount = :commission_amount, deposit_due_date = :deposit_due_date,
	final_payment_due_date = :final_payment_due_date, updated_at = :updated_at
	WHERE id = :id AND agency_id = :agency_id`
	if _, err := r.db.NamedExecContext(ctx, query, booking); err != nil {
		return fmt.Errorf("update booking: %w", err)
	}
	return nil
}

// ListPaymentsDueBetween returns non-canceled bookings not yet paid in full
// whose final payment falls inside the window, soonest first.
func (r *BookingRepository) ListPaymentsDueBetween(ctx context.Context, from, until time.Time, limit int) ([]models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
	WHERE status <> $1 AND payment_status <> $2
	AND final_payment_due_date IS NOT NULL AND final_payment_due_date >= $3 AND final_payment_due_date <= $4
	ORDER BY final_payment_due_date ASC LIMIT $5`
	var bookings []models.Booking
	err := r.db.SelectContext(ctx, &bookings, query,
		models.BookingCanceled, models.PaymentPaidInFull, from, until, limit)
	if err != nil {
		return nil, fmt.Errorf("list payments due: %w", err)
	}
	return bookings, nil
}
