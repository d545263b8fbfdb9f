package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wanderdesk/wanderdesk-api/internal/models"
	appErrors "github.com/wanderdesk/wanderdesk-api/pkg/errors"
)

var tripTestNow = time.Date(2026, 6, 15, 8, 0, 0, 0, time.UTC)

type stageMove struct {
	from models.TripStage
	to   models.TripStage
}

type stubTripCrudStore struct {
	trips      map[string]*models.Trip
	created    []*models.Trip
	updated    []*models.Trip
	moves      []stageMove
	stageErr   error
	listed     []models.Trip
	lastFilter models.TripFilter
}

func (s *stubTripCrudStore) Create(ctx context.Context, trip *models.Trip) error {
	trip.ID = fmt.Sprintf("trip-%d", len(s.created)+1)
	trip.CreatedAt = tripTestNow
	trip.UpdatedAt = tripTestNow
	s.created = append(s.created, trip)
	return nil
}

func (s *stubTripCrudStore) GetByID(ctx context.Context, agencyID, id string) (*models.Trip, error) {
	trip, ok := s.trips[id]
	if !ok || trip.AgencyID != agencyID {
		return nil, sql.ErrNoRows
	}
	clone := *trip
	return &clone, nil
}

func (s *stubTripCrudStore) List(ctx context.Context, filter models.TripFilter) ([]models.Trip, error) {
	s.lastFilter = filter
	return s.listed, nil
}

func (s *stubTripCrudStore) Update(ctx context.Context, trip *models.Trip) error {
	s.updated = append(s.updated, trip)
	return nil
}

func (s *stubTripCrudStore) UpdateStage(ctx context.Context, agencyID, id string, from, to models.TripStage) error {
	if s.stageErr != nil {
		return s.stageErr
	}
	s.moves = append(s.moves, stageMove{from: from, to: to})
	return nil
}

type stubClientReader struct {
	clients map[string]*models.Client
}

func (s *stubClientReader) GetByID(ctx context.Context, agencyID, id string) (*models.Client, error) {
	if client, ok := s.clients[id]; ok {
		return client, nil
	}
	return nil, sql.ErrNoRows
}

type stubTravelerStore struct {
	created []*models.Traveler
	byTrip  map[string][]models.Traveler
}

func (s *stubTravelerStore) Create(ctx context.Context, traveler *models.Traveler) error {
	traveler.ID = fmt.Sprintf("tv-%d", len(s.created)+1)
	s.created = append(s.created, traveler)
	return nil
}

func (s *stubTravelerStore) ListByTrip(ctx context.Context, tripID string) ([]models.Traveler, error) {
	return s.byTrip[tripID], nil
}

type stubFeedbackStore struct {
	created   []*models.Feedback
	createErr error
	byTrip    map[string]*models.Feedback
}

func (s *stubFeedbackStore) Create(ctx context.Context, feedback *models.Feedback) error {
	if s.createErr != nil {
		return s.createErr
	}
	feedback.ID = fmt.Sprintf("fb-%d", len(s.created)+1)
	s.created = append(s.created, feedback)
	return nil
}

func (s *stubFeedbackStore) GetByTrip(ctx context.Context, agencyID, tripID string) (*models.Feedback, error) {
	if feedback, ok := s.byTrip[tripID]; ok {
		return feedback, nil
	}
	return nil, sql.ErrNoRows
}

func newTripFixture(store *stubTripCrudStore, clients *stubClientReader, users *stubUserReader, travelers *stubTravelerStore, feedback *stubFeedbackStore) *TripService {
	return NewTripService(store, clients, users, travelers, feedback, nil, zap.NewNop(),
		WithTripClock(func() time.Time { return tripTestNow }))
}

func TestCreateTripStartsAtInquiry(t *testing.T) {
	store := &stubTripCrudStore{}
	clients := &stubClientReader{clients: map[string]*models.Client{
		"cl-1": {ID: "cl-1", AgencyID: "agency-1", FullName: "Iris Tanaka"},
	}}
	svc := newTripFixture(store, clients, &stubUserReader{}, &stubTravelerStore{}, &stubFeedbackStore{})
	actor := approvalClaims("agent-1", models.RoleAgent)

	trip, err := svc.Create(context.Background(), actor, CreateTripRequest{
		ClientID:    "cl-1",
		Title:       "Tanaka family in Portugal",
		Destination: "Lisbon, Portugal",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StageInquiry, trip.Stage)
	assert.Equal(t, "agent-1", trip.OwnerID)
	assert.Equal(t, "agency-1", trip.AgencyID)
	require.Len(t, store.created, 1)

	_, err = svc.Create(context.Background(), actor, CreateTripRequest{
		ClientID:    "cl-missing",
		Title:       "x",
		Destination: "y",
	})
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = svc.Create(context.Background(), actor, CreateTripRequest{ClientID: "cl-1"})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUpdateTripRefusesLockedStages(t *testing.T) {
	store := &stubTripCrudStore{trips: map[string]*models.Trip{
		"trip-open": {ID: "trip-open", AgencyID: "agency-1", Stage: models.StageQuoted, OwnerID: "agent-1"},
		"trip-done": {ID: "trip-done", AgencyID: "agency-1", Stage: models.StageCompleted, OwnerID: "agent-1"},
	}}
	svc := newTripFixture(store, &stubClientReader{}, &stubUserReader{}, &stubTravelerStore{}, &stubFeedbackStore{})
	actor := approvalClaims("agent-1", models.RoleAgent)

	req := UpdateTripRequest{Title: "Reworked itinerary", Destination: "Porto, Portugal"}
	trip, err := svc.Update(context.Background(), actor, "trip-open", req)
	require.NoError(t, err)
	assert.Equal(t, "Reworked itinerary", trip.Title)
	require.Len(t, store.updated, 1)

	_, err = svc.Update(context.Background(), actor, "trip-done", req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
	assert.Contains(t, err.Error(), "modify_locked_trip")
}

func TestChangeStageForwardMovesAreDirect(t *testing.T) {
	store := &stubTripCrudStore{trips: map[string]*models.Trip{
		"trip-1": {ID: "trip-1", AgencyID: "agency-1", Stage: models.StageQuoted},
	}}
	svc := newTripFixture(store, &stubClientReader{}, &stubUserReader{}, &stubTravelerStore{}, &stubFeedbackStore{})
	actor := approvalClaims("agent-1", models.RoleAgent)

	trip, err := svc.ChangeStage(context.Background(), actor, "trip-1", ChangeTripStageRequest{ToStage: models.StageBooked})
	require.NoError(t, err)
	assert.Equal(t, models.StageBooked, trip.Stage)
	require.Len(t, store.moves, 1)
	assert.Equal(t, stageMove{from: models.StageQuoted, to: models.StageBooked}, store.moves[0])

	store.stageErr = sql.ErrNoRows
	_, err = svc.ChangeStage(context.Background(), actor, "trip-1", ChangeTripStageRequest{ToStage: models.StageBooked})
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestChangeStageGuardedTransitionsNeedApproval(t *testing.T) {
	store := &stubTripCrudStore{trips: map[string]*models.Trip{
		"trip-booked":    {ID: "trip-booked", AgencyID: "agency-1", Stage: models.StageBooked},
		"trip-traveling": {ID: "trip-traveling", AgencyID: "agency-1", Stage: models.StageTraveling},
		"trip-inquiry":   {ID: "trip-inquiry", AgencyID: "agency-1", Stage: models.StageInquiry},
		"trip-done":      {ID: "trip-done", AgencyID: "agency-1", Stage: models.StageCompleted},
		"trip-dead":      {ID: "trip-dead", AgencyID: "agency-1", Stage: models.StageCanceled},
	}}
	svc := newTripFixture(store, &stubClientReader{}, &stubUserReader{}, &stubTravelerStore{}, &stubFeedbackStore{})
	actor := approvalClaims("agent-1", models.RoleAgent)

	_, err := svc.ChangeStage(context.Background(), actor, "trip-booked", ChangeTripStageRequest{ToStage: models.StageCanceled})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
	assert.Contains(t, err.Error(), "stage_change approval")

	_, err = svc.ChangeStage(context.Background(), actor, "trip-traveling", ChangeTripStageRequest{ToStage: models.StageBooked})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backward")

	_, err = svc.ChangeStage(context.Background(), actor, "trip-done", ChangeTripStageRequest{ToStage: models.StageTraveling})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reopen_trip")

	_, err = svc.ChangeStage(context.Background(), actor, "trip-dead", ChangeTripStageRequest{ToStage: models.StageQuoted})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "canceled trips cannot change stage")

	_, err = svc.ChangeStage(context.Background(), actor, "trip-inquiry", ChangeTripStageRequest{ToStage: models.StageInquiry})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	trip, err := svc.ChangeStage(context.Background(), actor, "trip-inquiry", ChangeTripStageRequest{ToStage: models.StageCanceled})
	require.NoError(t, err)
	assert.Equal(t, models.StageCanceled, trip.Stage)
}

func TestChangeStageCompletionStampsCompletedAt(t *testing.T) {
	store := &stubTripCrudStore{trips: map[string]*models.Trip{
		"trip-1": {ID: "trip-1", AgencyID: "agency-1", Stage: models.StageTraveling},
	}}
	svc := newTripFixture(store, &stubClientReader{}, &stubUserReader{}, &stubTravelerStore{}, &stubFeedbackStore{})

	trip, err := svc.ChangeStage(context.Background(), approvalClaims("agent-1", models.RoleAgent), "trip-1", ChangeTripStageRequest{ToStage: models.StageCompleted})
	require.NoError(t, err)
	require.NotNil(t, trip.CompletedAt)
	assert.Equal(t, tripTestNow, *trip.CompletedAt)
}

func TestAddTravelerToLockedTripFails(t *testing.T) {
	store := &stubTripCrudStore{trips: map[string]*models.Trip{
		"trip-open": {ID: "trip-open", AgencyID: "agency-1", Stage: models.StageBooked},
		"trip-done": {ID: "trip-done", AgencyID: "agency-1", Stage: models.StageCompleted},
	}}
	travelers := &stubTravelerStore{}
	svc := newTripFixture(store, &stubClientReader{}, &stubUserReader{}, travelers, &stubFeedbackStore{})
	actor := approvalClaims("agent-1", models.RoleAgent)

	traveler, err := svc.AddTraveler(context.Background(), actor, "trip-open", AddTravelerRequest{
		FullName:  "Noa Tanaka",
		IsPrimary: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "trip-open", traveler.TripID)
	assert.Equal(t, "agency-1", traveler.AgencyID)
	require.Len(t, travelers.created, 1)

	_, err = svc.AddTraveler(context.Background(), actor, "trip-done", AddTravelerRequest{FullName: "Late Addition"})
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)

	_, err = svc.AddTraveler(context.Background(), actor, "trip-open", AddTravelerRequest{
		FullName:       "Bad Passport",
		PassportStatus: "maybe",
	})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRecordFeedbackOncePerCompletedTrip(t *testing.T) {
	store := &stubTripCrudStore{trips: map[string]*models.Trip{
		"trip-done": {ID: "trip-done", AgencyID: "agency-1", Stage: models.StageCompleted},
		"trip-live": {ID: "trip-live", AgencyID: "agency-1", Stage: models.StageTraveling},
	}}
	feedback := &stubFeedbackStore{}
	svc := newTripFixture(store, &stubClientReader{}, &stubUserReader{}, &stubTravelerStore{}, feedback)
	actor := approvalClaims("agent-1", models.RoleAgent)

	fb, err := svc.RecordFeedback(context.Background(), actor, "trip-done", RecordFeedbackRequest{Rating: 5, Comments: "Flawless"})
	require.NoError(t, err)
	assert.Equal(t, 5, fb.Rating)
	require.NotNil(t, fb.Comments)

	_, err = svc.RecordFeedback(context.Background(), actor, "trip-live", RecordFeedbackRequest{Rating: 4})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)

	feedback.createErr = &pq.Error{Code: "23505"}
	_, err = svc.RecordFeedback(context.Background(), actor, "trip-done", RecordFeedbackRequest{Rating: 3})
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	_, err = svc.RecordFeedback(context.Background(), actor, "trip-done", RecordFeedbackRequest{Rating: 9})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestListTripsBuildsFilter(t *testing.T) {
	store := &stubTripCrudStore{listed: []models.Trip{{ID: "trip-1"}}}
	svc := newTripFixture(store, &stubClientReader{}, &stubUserReader{}, &stubTravelerStore{}, &stubFeedbackStore{})

	trips, err := svc.List(context.Background(), approvalClaims("agent-1", models.RoleAgent), TripQuery{
		OwnerID: "agent-1",
		Stage:   models.StageQuoted,
		Search:  "lisbon",
	})
	require.NoError(t, err)
	assert.Len(t, trips, 1)
	assert.Equal(t, "agency-1", store.lastFilter.AgencyID)
	require.NotNil(t, store.lastFilter.OwnerID)
	require.NotNil(t, store.lastFilter.Stage)
	require.NotNil(t, store.lastFilter.Search)
	assert.Equal(t, "lisbon", *store.lastFilter.Search)

	_, err = svc.List(context.Background(), approvalClaims("agent-1", models.RoleAgent), TripQuery{Stage: "waitlisted"})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
