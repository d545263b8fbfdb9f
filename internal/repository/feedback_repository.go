package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/wanderdesk/wanderdesk-api/internal/models"
)

// FeedbackRepository provides database access for post-trip feedback.
type FeedbackRepository struct {
	db *sqlx.DB
}

// NewFeedbackRepository constructs the repository.
func NewFeedbackRepository(db *sqlx.DB) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

// Create inserts a feedback row. One per trip; a second insert hits the
// unique index and surfaces as a unique violation for the caller to map.
func (r *FeedbackRepository) Create(ctx context.Context, feedback *models.Feedback) error {
	if feedback.ID == "" {
		feedback.ID = uuid.NewString()
	}
	if feedback.CreatedAt.IsZero() {
		feedback.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO feedback (id, agency_id, trip_id, rating, comments, created_at)
	VALUES (:id, :agency_id, :trip_id, :rating, :comments, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, feedback); err != nil {
		return fmt.Errorf("create feedback: %w", err)
	}
	return nil
}

// GetByTrip fetches the feedback left for a trip, if any.
func (r *FeedbackRepository) GetByTrip(ctx context.Context, agencyID, tripID string) (*models.Feedback, error) {
	const query = `SELECT id, agency_id, trip_id, rating, comments, created_at FROM feedback WHERE trip_id = $1 AND agency_id = $2`
	var feedback models.Feedback
	if err := r.db.GetContext(ctx, &feedback, query, tripID, agencyID); err != nil {
		return nil, err
	}
	return &feedback, nil
}
