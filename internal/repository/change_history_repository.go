package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/wanderdesk/wanderdesk-api/internal/models"
)

// ChangeHistoryRepository reads the field-level change trail. Writes happen
// inside execution transactions; this repository only serves the history
// views.
type ChangeHistoryRepository struct {
	db *sqlx.DB
}

// NewChangeHistoryRepository constructs the repository.
func NewChangeHistoryRepository(db *sqlx.DB) *ChangeHistoryRepository {
	return &ChangeHistoryRepository{db: db}
}

// ListByEntity returns the recorded changes for one entity, newest first.
func (r *ChangeHistoryRepository) ListByEntity(ctx context.Context, agencyID, entityType, entityID string, limit int) ([]models.ChangeHistory, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	const query = `SELECT id, agency_id, entity_type, entity_id, field, old_value, new_value, changed_by, approval_id, created_at
	FROM change_history WHERE agency_id = $1 AND entity_type = $2 AND entity_id = $3
	ORDER BY created_at DESC LIMIT $4`
	var rows []models.ChangeHistory
	if err := r.db.SelectContext(ctx, &rows, query, agencyID, entityType, entityID, limit); err != nil {
		return nil, fmt.Errorf("list change history: %w", err)
	}
	return rows, nil
}
