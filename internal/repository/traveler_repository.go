package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/wanderdesk/wanderdesk-api/internal/models"
)

// TravelerRepository provides database access for trip travelers.
type TravelerRepository struct {
	db *sqlx.DB
}

// NewTravelerRepository constructs the repository.
func NewTravelerRepository(db *sqlx.DB) *TravelerRepository {
	return &TravelerRepository{db: db}
}

const travelerColumns = `id, agency_id, trip_id, full_name, date_of_birth, passport_status, passport_expiry, is_primary, created_at, updated_at`

// Create inserts a traveler row.
func (r *TravelerRepository) Create(ctx context.Context, traveler *models.Traveler) error {
	if traveler.ID == "" {
		traveler.ID = uuid.NewString()
	}
	if traveler.PassportStatus == "" {
		traveler.PassportStatus = models.PassportUnknown
	}
	now := time.Now().UTC()
	if traveler.CreatedAt.IsZero() {
		traveler.CreatedAt = now
	}
	traveler.UpdatedAt = now
	const query = `INSERT INTO travelers
	(id, agency_id, trip_id, full_name, date_of_birth, passport_status, passport_expiry, is_primary, created_at, updated_at)
	VALUES (:id, :agency_id, :trip_id, :full_name, :date_of_birth, :passport_status, :passport_expiry, :is_primary, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, traveler); err != nil {
		return fmt.Errorf("create traveler: %w", err)
	}
	return nil
}

// ListByTrip returns every traveler on a trip, primary first.
func (r *TravelerRepository) ListByTrip(ctx context.Context, tripID string) ([]models.Traveler, error) {
	query := `SELECT ` + travelerColumns + ` FROM travelers WHERE trip_id = $1 ORDER BY is_primary DESC, created_at ASC`
	var travelers []models.Traveler
	if err := r.db.SelectContext(ctx, &travelers, query, tripID); err != nil {
		return nil, fmt.Errorf("list travelers by trip: %w", err)
	}
	return travelers, nil
}

// Update persists the editable traveler fields.
func (r *TravelerRepository) Update(ctx context.Context, traveler *models.Traveler) error {
	traveler.UpdatedAt = time.Now().UTC()
	const query = `UPDATE travelers SET full_name = :full_name, date_of_birth = :date_of_birth,
	passport_status = :passport_status, passport_expiry = :passport_expiry, is_primary = :is_primary, updated_at = :updated_at
	WHERE id = :id AND agency_id = :agency_id`
	if _, err := r.db.NamedExecContext(ctx, query, traveler); err != nil {
		return fmt.Errorf("update traveler: %w", err)
	}
	return nil
}
