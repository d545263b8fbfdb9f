package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wanderdesk/wanderdesk-api/internal/models"
	appErrors "github.com/wanderdesk/wanderdesk-api/pkg/errors"
)

type stubClientStore struct {
	clients    map[string]*models.Client
	created    []*models.Client
	updated    []*models.Client
	listed     []models.Client
	lastFilter models.ClientFilter
}

func (s *stubClientStore) Create(ctx context.Context, client *models.Client) error {
	client.ID = fmt.Sprintf("client-%d", len(s.created)+1)
	s.created = append(s.created, client)
	return nil
}

func (s *stubClientStore) GetByID(ctx context.Context, agencyID, id string) (*models.Client, error) {
	client, ok := s.clients[id]
	if !ok || client.AgencyID != agencyID {
		return nil, sql.ErrNoRows
	}
	clone := *client
	return &clone, nil
}

func (s *stubClientStore) List(ctx context.Context, filter models.ClientFilter) ([]models.Client, error) {
	s.lastFilter = filter
	return s.listed, nil
}

func (s *stubClientStore) Update(ctx context.Context, client *models.Client) error {
	s.updated = append(s.updated, client)
	return nil
}

func TestCreateClient(t *testing.T) {
	store := &stubClientStore{}
	svc := NewClientService(store, nil, zap.NewNop())
	actor := approvalClaims("agent-1", models.RoleAgent)

	email := "rosa@example.com"
	client, err := svc.Create(context.Background(), actor, UpsertClientRequest{
		FullName: "Rosa Delgado",
		Email:    &email,
	})
	require.NoError(t, err)
	assert.Equal(t, "agency-1", client.AgencyID)
	assert.Equal(t, "Rosa Delgado", client.FullName)
	require.Len(t, store.created, 1)

	_, err = svc.Create(context.Background(), actor, UpsertClientRequest{})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	bad := "not-an-email"
	_, err = svc.Create(context.Background(), actor, UpsertClientRequest{FullName: "x", Email: &bad})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Create(context.Background(), nil, UpsertClientRequest{FullName: "x"})
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestListClientsPassesSearchFilter(t *testing.T) {
	store := &stubClientStore{listed: []models.Client{{ID: "client-1"}}}
	svc := NewClientService(store, nil, zap.NewNop())

	clients, err := svc.List(context.Background(), approvalClaims("agent-1", models.RoleAgent), ClientQuery{
		Search: "delgado",
		Page:   2,
		Limit:  10,
	})
	require.NoError(t, err)
	assert.Len(t, clients, 1)
	assert.Equal(t, "agency-1", store.lastFilter.AgencyID)
	require.NotNil(t, store.lastFilter.Search)
	assert.Equal(t, "delgado", *store.lastFilter.Search)
	assert.Equal(t, 2, store.lastFilter.Page)
}

func TestUpdateClient(t *testing.T) {
	store := &stubClientStore{clients: map[string]*models.Client{
		"client-1": {ID: "client-1", AgencyID: "agency-1", FullName: "Rosa Delgado"},
		"client-2": {ID: "client-2", AgencyID: "agency-2", FullName: "Someone Else"},
	}}
	svc := NewClientService(store, nil, zap.NewNop())
	actor := approvalClaims("agent-1", models.RoleAgent)

	phone := "+1 403 555 0188"
	client, err := svc.Update(context.Background(), actor, "client-1", UpsertClientRequest{
		FullName: "Rosa Delgado-Marsh",
		Phone:    &phone,
	})
	require.NoError(t, err)
	assert.Equal(t, "Rosa Delgado-Marsh", client.FullName)
	require.NotNil(t, client.Phone)
	assert.Nil(t, client.Email)
	require.Len(t, store.updated, 1)

	_, err = svc.Update(context.Background(), actor, "client-2", UpsertClientRequest{FullName: "x"})
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
