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

// ClientRepository provides database access for agency clients.
type ClientRepository struct {
	db *sqlx.DB
}

// NewClientRepository constructs the repository.
func NewClientRepository(db *sqlx.DB) *ClientRepository {
	return &ClientRepository{db: db}
}

const clientColumns = `id, agency_id, full_name, email, phone, notes, created_at, updated_at`

// Create inserts a client row.
func (r *ClientRepository) Create(ctx context.Context, client *models.Client) error {
	if client.ID == "" {
		client.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if client.CreatedAt.IsZero() {
		client.CreatedAt = now
	}
	client.UpdatedAt = now
	const query = `INSERT INTO clients (id, agency_id, full_name, email, phone, notes, created_at, updated_at)
	VALUES (:id, :agency_id, :full_name, :email, :phone, :notes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, client); err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	return nil
}

// GetByID fetches a client scoped to an agency.
func (r *ClientRepository) GetByID(ctx context.Context, agencyID, id string) (*models.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE id = $1 AND agency_id = $2`
	var client models.Client
	if err := r.db.GetContext(ctx, &client, query, id, agencyID); err != nil {
		return nil, err
	}
	return &client, nil
}

// List returns clients matching the filter, alphabetically.
func (r *ClientRepository) List(ctx context.Context, filter models.ClientFilter) ([]models.Client, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + clientColumns + ` FROM clients WHERE agency_id = $1`)
	args := []interface{}{filter.AgencyID}

	if filter.Search != nil {
		args = append(args, "%"+strings.ToLower(*filter.Search)+"%")
		builder.WriteString(fmt.Sprintf(" AND (LOWER(full_name) LIKE $%d OR LOWER(COALESCE(email, '')) LIKE $%d)", len(args), len(args)))
	}
	builder.WriteString(" ORDER BY full_name ASC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, (page-1)*limit))

	var clients []models.Client
	if err := r.db.SelectContext(ctx, &clients, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	return clients, nil
}

// Update persists the editable client fields.
func (r *ClientRepository) Update(ctx context.Context, client *models.Client) error {
	client.UpdatedAt = time.Now().UTC()
	const query = `UPDATE clients SET full_name = :full_name, email = :email, phone = :phone, notes = :notes, updated_at = :updated_at
	WHERE id = :id AND agency_id = :agency_id`
	if _, err := r.db.NamedExecContext(ctx, query, client); err != nil {
		return fmt.Errorf("update client: %w", err)
	}
	return nil
}
