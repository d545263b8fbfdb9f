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

// ApprovalRepository persists approval requests. Pending exclusivity is
// enforced by a partial unique index over (agency_id, entity_type,
// entity_id, action_type) for pending rows; Create returns the raw unique
// violation so callers can map it to a conflict.
type ApprovalRepository struct {
	db *sqlx.DB
}

// NewApprovalRepository constructs the repository.
func NewApprovalRepository(db *sqlx.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

const approvalColumns = `id, agency_id, action_type, entity_type, entity_id, payload, note, status, requested_by, resolved_by, response_note, created_at, resolved_at`

// Create inserts a new approval request row.
func (r *ApprovalRepository) Create(ctx context.Context, req *models.ApprovalRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Status == "" {
		req.Status = models.ApprovalPending
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO approval_requests
	(id, agency_id, action_type, entity_type, entity_id, payload, note, status, requested_by, resolved_by, response_note, created_at, resolved_at)
	VALUES (:id, :agency_id, :action_type, :entity_type, :entity_id, :payload, :note, :status, :requested_by, :resolved_by, :response_note, :created_at, :resolved_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		return err
	}
	return nil
}

// HasPending reports whether a pending request already exists for the
// entity and action. Fast-path check; the partial unique index is the net.
func (r *ApprovalRepository) HasPending(ctx context.Context, agencyID, entityType, entityID string, action models.ActionType) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM approval_requests WHERE agency_id = $1 AND entity_type = $2 AND entity_id = $3 AND action_type = $4 AND status = $5)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, agencyID, entityType, entityID, action, models.ApprovalPending); err != nil {
		return false, fmt.Errorf("check pending approval: %w", err)
	}
	return exists, nil
}

// GetByID fetches an approval request scoped to an agency.
func (r *ApprovalRepository) GetByID(ctx context.Context, agencyID, id string) (*models.ApprovalRequest, error) {
	query := `SELECT ` + approvalColumns + ` FROM approval_requests WHERE id = $1 AND agency_id = $2`
	var req models.ApprovalRequest
	if err := r.db.GetContext(ctx, &req, query, id, agencyID); err != nil {
		return nil, err
	}
	return &req, nil
}

// List returns approval requests matching the filter (newest first).
func (r *ApprovalRepository) List(ctx context.Context, filter models.ApprovalFilter) ([]models.ApprovalRequest, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + approvalColumns + ` FROM approval_requests WHERE agency_id = $1`)
	args := []interface{}{filter.AgencyID}

	if filter.Status != nil {
		args = append(args, *filter.Status)
		builder.WriteString(fmt.Sprintf(" AND status = $%d", len(args)))
	}
	if filter.ActionType != nil {
		args = append(args, *filter.ActionType)
		builder.WriteString(fmt.Sprintf(" AND action_type = $%d", len(args)))
	}
	if filter.RequestedBy != nil {
		args = append(args, *filter.RequestedBy)
		builder.WriteString(fmt.Sprintf(" AND requested_by = $%d", len(args)))
	}
	if filter.EntityID != nil {
		args = append(args, *filter.EntityID)
		builder.WriteString(fmt.Sprintf(" AND entity_id = $%d", len(args)))
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

	var requests []models.ApprovalRequest
	if err := r.db.SelectContext(ctx, &requests, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list approval requests: %w", err)
	}
	return requests, nil
}

// ResolveParams groups the columns written when a request leaves pending.
type ResolveParams struct {
	ID           string
	AgencyID     string
	Status       models.ApprovalStatus
	ResolvedBy   string
	ResponseNote *string
	ResolvedAt   time.Time
}

// Resolve moves a pending request to a terminal status. Guarded on
// status='pending' so a second resolver loses with sql.ErrNoRows.
func (r *ApprovalRepository) Resolve(ctx context.Context, params ResolveParams) error {
	const query = `UPDATE approval_requests SET status = :status, resolved_by = :resolved_by, response_note = :response_note, resolved_at = :resolved_at
	WHERE id = :id AND agency_id = :agency_id AND status = 'pending'`
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":            params.ID,
		"agency_id":     params.AgencyID,
		"status":        params.Status,
		"resolved_by":   params.ResolvedBy,
		"response_note": params.ResponseNote,
		"resolved_at":   params.ResolvedAt,
	})
	if err != nil {
		return fmt.Errorf("resolve approval request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check approval resolve rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
