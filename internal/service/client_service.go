package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/wanderdesk/wanderdesk-api/internal/models"
	appErrors "github.com/wanderdesk/wanderdesk-api/pkg/errors"
)

type clientStore interface {
	Create(ctx context.Context, client *models.Client) error
	GetByID(ctx context.Context, agencyID, id string) (*models.Client, error)
	List(ctx context.Context, filter models.ClientFilter) ([]models.Client, error)
	Update(ctx context.Context, client *models.Client) error
}

// UpsertClientRequest holds payload for creating or editing a client.
// Contact details are optional; the readiness evaluator flags trips whose
// client has neither an email nor a phone number.
type UpsertClientRequest struct {
	FullName string  `json:"fullName" validate:"required"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Phone    *string `json:"phone"`
	Notes    *string `json:"notes"`
}

// ClientQuery mirrors supported listing filters.
type ClientQuery struct {
	Search string
	Page   int
	Limit  int
}

// ClientService manages the agency's client book.
type ClientService struct {
	clients   clientStore
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClientService constructs the service.
func NewClientService(clients clientStore, validate *validator.Validate, logger *zap.Logger) *ClientService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClientService{clients: clients, validator: validate, logger: logger}
}

// Create adds a client to the caller's agency.
func (s *ClientService) Create(ctx context.Context, actor *models.JWTClaims, req UpsertClientRequest) (*models.Client, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid client payload")
	}

	client := &models.Client{
		AgencyID: actor.AgencyID,
		FullName: req.FullName,
		Email:    req.Email,
		Phone:    req.Phone,
		Notes:    req.Notes,
	}
	if err := s.clients.Create(ctx, client); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create client")
	}
	return client, nil
}

// Get returns one client of the caller's agency.
func (s *ClientService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.Client, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	return s.loadClient(ctx, actor.AgencyID, id)
}

// List returns clients matching the query.
func (s *ClientService) List(ctx context.Context, actor *models.JWTClaims, query ClientQuery) ([]models.Client, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	filter := models.ClientFilter{
		AgencyID: actor.AgencyID,
		Page:     query.Page,
		Limit:    query.Limit,
	}
	if query.Search != "" {
		filter.Search = &query.Search
	}
	clients, err := s.clients.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list clients")
	}
	return clients, nil
}

// Update edits a client's details.
func (s *ClientService) Update(ctx context.Context, actor *models.JWTClaims, id string, req UpsertClientRequest) (*models.Client, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid client payload")
	}

	client, err := s.loadClient(ctx, actor.AgencyID, id)
	if err != nil {
		return nil, err
	}

	client.FullName = req.FullName
	client.Email = req.Email
	client.Phone = req.Phone
	client.Notes = req.Notes

	if err := s.clients.Update(ctx, client); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update client")
	}
	return client, nil
}

func (s *ClientService) loadClient(ctx context.Context, agencyID, id string) (*models.Client, error) {
	client, err := s.clients.GetByID(ctx, agencyID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "client not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load client")
	}
	return client, nil
}
