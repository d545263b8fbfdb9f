package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/wanderdesk/wanderdesk-api/internal/models"
	"github.com/wanderdesk/wanderdesk-api/internal/repository"
	appErrors "github.com/wanderdesk/wanderdesk-api/pkg/errors"
)

type tripStore interface {
	Create(ctx context.Context, trip *models.Trip) error
	GetByID(ctx context.Context, agencyID, id string) (*models.Trip, error)
	List(ctx context.Context, filter models.TripFilter) ([]models.Trip, error)
	Update(ctx context.Context, trip *models.Trip) error
	UpdateStage(ctx context.Context, agencyID, id string, from, to models.TripStage) error
}

type tripClientReader interface {
	GetByID(ctx context.Context, agencyID, id string) (*models.Client, error)
}

type tripUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type tripTravelerStore interface {
	Create(ctx context.Context, traveler *models.Traveler) error
	ListByTrip(ctx context.Context, tripID string) ([]models.Traveler, error)
}

type tripFeedbackStore interface {
	Create(ctx context.Context, feedback *models.Feedback) error
	GetByTrip(ctx context.Context, agencyID, tripID string) (*models.Feedback, error)
}

// CreateTripRequest holds payload for opening a trip.
type CreateTripRequest struct {
	ClientID            string     `json:"clientId" validate:"required"`
	Title               string     `json:"title" validate:"required"`
	Destination         string     `json:"destination" validate:"required"`
	OwnerID             string     `json:"ownerId"`
	TravelStartDate     *time.Time `json:"travelStartDate"`
	TravelEndDate       *time.Time `json:"travelEndDate"`
	FinalPaymentDueDate *time.Time `json:"finalPaymentDueDate"`
}

// UpdateTripRequest holds payload for editing an unlocked trip.
type UpdateTripRequest struct {
	Title               string     `json:"title" validate:"required"`
	Destination         string     `json:"destination" validate:"required"`
	OwnerID             string     `json:"ownerId"`
	TravelStartDate     *time.Time `json:"travelStartDate"`
	TravelEndDate       *time.Time `json:"travelEndDate"`
	QuoteSentAt         *time.Time `json:"quoteSentAt"`
	FinalPaymentDueDate *time.Time `json:"finalPaymentDueDate"`
}

// ChangeTripStageRequest names the stage the caller wants the trip in.
type ChangeTripStageRequest struct {
	ToStage models.TripStage `json:"toStage" validate:"required"`
}

// AddTravelerRequest holds payload for attaching a traveler to a trip.
type AddTravelerRequest struct {
	FullName       string                `json:"fullName" validate:"required"`
	DateOfBirth    *time.Time            `json:"dateOfBirth"`
	PassportStatus models.PassportStatus `json:"passportStatus"`
	PassportExpiry *time.Time            `json:"passportExpiry"`
	IsPrimary      bool                  `json:"isPrimary"`
}

// RecordFeedbackRequest holds the client's post-trip rating.
type RecordFeedbackRequest struct {
	Rating   int    `json:"rating" validate:"required,min=1,max=5"`
	Comments string `json:"comments"`
}

// TripQuery mirrors supported listing filters.
type TripQuery struct {
	OwnerID     string
	ClientID    string
	Stage       models.TripStage
	Destination string
	Search      string
	Page        int
	Limit       int
}

// TripService manages the trip lifecycle up to the approval boundary. Locked
// stages and guarded transitions are refused here with an error naming the
// approval action to use instead.
type TripService struct {
	trips     tripStore
	clients   tripClientReader
	users     tripUserReader
	travelers tripTravelerStore
	feedback  tripFeedbackStore
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// TripOption customizes the service.
type TripOption func(*TripService)

// WithTripClock overrides the time source.
func WithTripClock(now func() time.Time) TripOption {
	return func(s *TripService) {
		s.now = now
	}
}

// NewTripService constructs the service.
func NewTripService(trips tripStore, clients tripClientReader, users tripUserReader, travelers tripTravelerStore, feedback tripFeedbackStore, validate *validator.Validate, logger *zap.Logger, opts ...TripOption) *TripService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &TripService{
		trips:     trips,
		clients:   clients,
		users:     users,
		travelers: travelers,
		feedback:  feedback,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create opens a trip at the inquiry stage for a client of the caller's
// agency.
func (s *TripService) Create(ctx context.Context, actor *models.JWTClaims, req CreateTripRequest) (*models.Trip, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid trip payload")
	}
	if _, err := s.clients.GetByID(ctx, actor.AgencyID, req.ClientID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "client not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load client")
	}
	owner, err := s.resolveOwner(ctx, actor, req.OwnerID)
	if err != nil {
		return nil, err
	}

	trip := &models.Trip{
		AgencyID:            actor.AgencyID,
		ClientID:            req.ClientID,
		OwnerID:             owner,
		Title:               req.Title,
		Destination:         req.Destination,
		Stage:               models.StageInquiry,
		TravelStartDate:     req.TravelStartDate,
		TravelEndDate:       req.TravelEndDate,
		FinalPaymentDueDate: req.FinalPaymentDueDate,
	}
	if err := s.trips.Create(ctx, trip); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create trip")
	}
	return trip, nil
}

// Get returns one trip.
func (s *TripService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.Trip, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	return s.loadOwnTrip(ctx, actor.AgencyID, id)
}

// List returns trips for the agency.
func (s *TripService) List(ctx context.Context, actor *models.JWTClaims, query TripQuery) ([]models.Trip, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	filter := models.TripFilter{
		AgencyID: actor.AgencyID,
		Page:     query.Page,
		Limit:    query.Limit,
	}
	if query.OwnerID != "" {
		owner := query.OwnerID
		filter.OwnerID = &owner
	}
	if query.ClientID != "" {
		client := query.ClientID
		filter.ClientID = &client
	}
	if query.Stage != "" {
		if !query.Stage.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown stage %q", query.Stage))
		}
		stage := query.Stage
		filter.Stage = &stage
	}
	if query.Destination != "" {
		destination := query.Destination
		filter.Destination = &destination
	}
	if query.Search != "" {
		search := query.Search
		filter.Search = &search
	}

	trips, err := s.trips.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list trips")
	}
	return trips, nil
}

// Update edits an unlocked trip's descriptive fields. Trips in a locked
// stage can only change through a modify_locked_trip approval.
func (s *TripService) Update(ctx context.Context, actor *models.JWTClaims, id string, req UpdateTripRequest) (*models.Trip, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid trip payload")
	}
	trip, err := s.loadOwnTrip(ctx, actor.AgencyID, id)
	if err != nil {
		return nil, err
	}
	if trip.Stage.Locked() {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "trip is locked; submit a modify_locked_trip approval instead")
	}
	owner := trip.OwnerID
	if req.OwnerID != "" {
		owner, err = s.resolveOwner(ctx, actor, req.OwnerID)
		if err != nil {
			return nil, err
		}
	}

	trip.Title = req.Title
	trip.Destination = req.Destination
	trip.OwnerID = owner
	trip.TravelStartDate = req.TravelStartDate
	trip.TravelEndDate = req.TravelEndDate
	trip.QuoteSentAt = req.QuoteSentAt
	trip.FinalPaymentDueDate = req.FinalPaymentDueDate
	if err := s.trips.Update(ctx, trip); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "trip not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update trip")
	}
	return trip, nil
}

// ChangeStage moves a trip forward through its lifecycle. Forward moves and
// early cancellations apply directly with a guard on the stage the caller
// read; everything else is the approval workflow's territory.
func (s *TripService) ChangeStage(ctx context.Context, actor *models.JWTClaims, id string, req ChangeTripStageRequest) (*models.Trip, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	to := req.ToStage
	if !to.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown stage %q", to))
	}
	trip, err := s.loadOwnTrip(ctx, actor.AgencyID, id)
	if err != nil {
		return nil, err
	}
	from := trip.Stage
	if from == to {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("trip is already %s", to))
	}
	switch {
	case from == models.StageCompleted:
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "reopening a completed trip requires a reopen_trip approval")
	case from == models.StageCanceled:
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "canceled trips cannot change stage")
	case to == models.StageCanceled:
		if from == models.StageBooked || from == models.StageTraveling {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("canceling a %s trip requires a stage_change approval", from))
		}
	case stageRank(to) < stageRank(from):
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "moving a trip backward requires a stage_change approval")
	}

	if err := s.trips.UpdateStage(ctx, actor.AgencyID, id, from, to); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "trip stage changed concurrently; reload and retry")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to change trip stage")
	}

	now := s.now()
	trip.Stage = to
	trip.UpdatedAt = now
	if to == models.StageCompleted {
		trip.CompletedAt = &now
	}
	return trip, nil
}

// AddTraveler attaches a traveler to an unlocked trip.
func (s *TripService) AddTraveler(ctx context.Context, actor *models.JWTClaims, tripID string, req AddTravelerRequest) (*models.Traveler, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid traveler payload")
	}
	if req.PassportStatus != "" && !req.PassportStatus.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown passport status %q", req.PassportStatus))
	}
	trip, err := s.loadOwnTrip(ctx, actor.AgencyID, tripID)
	if err != nil {
		return nil, err
	}
	if trip.Stage.Locked() {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("trip is %s; travelers can no longer change", trip.Stage))
	}

	traveler := &models.Traveler{
		AgencyID:       actor.AgencyID,
		TripID:         trip.ID,
		FullName:       req.FullName,
		DateOfBirth:    req.DateOfBirth,
		PassportStatus: req.PassportStatus,
		PassportExpiry: req.PassportExpiry,
		IsPrimary:      req.IsPrimary,
	}
	if err := s.travelers.Create(ctx, traveler); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add traveler")
	}
	return traveler, nil
}

// ListTravelers returns the travelers on a trip, primary first.
func (s *TripService) ListTravelers(ctx context.Context, actor *models.JWTClaims, tripID string) ([]models.Traveler, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	trip, err := s.loadOwnTrip(ctx, actor.AgencyID, tripID)
	if err != nil {
		return nil, err
	}
	travelers, err := s.travelers.ListByTrip(ctx, trip.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list travelers")
	}
	return travelers, nil
}

// RecordFeedback stores the client's post-trip rating. One per trip; the
// unique index backstops concurrent submissions.
func (s *TripService) RecordFeedback(ctx context.Context, actor *models.JWTClaims, tripID string, req RecordFeedbackRequest) (*models.Feedback, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid feedback payload")
	}
	trip, err := s.loadOwnTrip(ctx, actor.AgencyID, tripID)
	if err != nil {
		return nil, err
	}
	if trip.Stage != models.StageCompleted {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "feedback is only recorded for completed trips")
	}

	feedback := &models.Feedback{
		AgencyID: actor.AgencyID,
		TripID:   trip.ID,
		Rating:   req.Rating,
		Comments: optionalString(req.Comments),
	}
	if err := s.feedback.Create(ctx, feedback); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "feedback already recorded for this trip")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record feedback")
	}
	return feedback, nil
}

// GetFeedback returns the feedback left for a trip, if any.
func (s *TripService) GetFeedback(ctx context.Context, actor *models.JWTClaims, tripID string) (*models.Feedback, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	feedback, err := s.feedback.GetByTrip(ctx, actor.AgencyID, tripID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no feedback recorded for this trip")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load feedback")
	}
	return feedback, nil
}

func (s *TripService) loadOwnTrip(ctx context.Context, agencyID, id string) (*models.Trip, error) {
	trip, err := s.trips.GetByID(ctx, agencyID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "trip not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load trip")
	}
	return trip, nil
}

func (s *TripService) resolveOwner(ctx context.Context, actor *models.JWTClaims, ownerID string) (string, error) {
	if ownerID == "" || ownerID == actor.UserID {
		return actor.UserID, nil
	}
	user, err := s.users.FindByID(ctx, ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrValidation, "owner does not exist")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up owner")
	}
	if user.AgencyID != actor.AgencyID || !user.Active {
		return "", appErrors.Clone(appErrors.ErrValidation, "owner is not an active member of this agency")
	}
	return ownerID, nil
}

func stageRank(stage models.TripStage) int {
	switch stage {
	case models.StageInquiry:
		return 0
	case models.StageQuoted:
		return 1
	case models.StageBooked:
		return 2
	case models.StageTraveling:
		return 3
	case models.StageCompleted:
		return 4
	}
	return -1
}
