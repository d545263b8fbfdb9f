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
	appErrors "github.com/wanderdesk/wanderdesk-api/pkg/errors"
)

type bookingStore interface {
	Create(ctx context.Context, booking *models.Booking) error
	GetByID(ctx context.Context, agencyID, id string) (*models.Booking, error)
	List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error)
	Update(ctx context.Context, booking *models.Booking) error
}

type bookingTripReader interface {
	GetByID(ctx context.Context, agencyID, id string) (*models.Trip, error)
}

// CreateBookingRequest holds payload for attaching a booking to a trip.
type CreateBookingRequest struct {
	TripID              string     `json:"tripId" validate:"required"`
	Kind                string     `json:"kind" validate:"required"`
	Supplier            string     `json:"supplier" validate:"required"`
	ConfirmationNumber  *string    `json:"confirmationNumber"`
	TotalPrice          *float64   `json:"totalPrice"`
	CommissionAmount    *float64   `json:"commissionAmount"`
	DepositDueDate      *time.Time `json:"depositDueDate"`
	FinalPaymentDueDate *time.Time `json:"finalPaymentDueDate"`
}

// UpdateBookingRequest holds the descriptive fields an agent may edit
// directly. Status, payment and commission moves go through approvals.
type UpdateBookingRequest struct {
	Kind                string     `json:"kind" validate:"required"`
	Supplier            string     `json:"supplier" validate:"required"`
	ConfirmationNumber  *string    `json:"confirmationNumber"`
	TotalPrice          *float64   `json:"totalPrice"`
	CommissionAmount    *float64   `json:"commissionAmount"`
	DepositDueDate      *time.Time `json:"depositDueDate"`
	FinalPaymentDueDate *time.Time `json:"finalPaymentDueDate"`
}

// BookingQuery mirrors supported listing filters.
type BookingQuery struct {
	TripID        string
	Status        models.BookingStatus
	PaymentStatus models.PaymentStatus
	Page          int
	Limit         int
}

// BookingService manages trip components up to the approval boundary:
// creation and descriptive edits are direct, while booking confirmation and
// payment or commission changes require an approved request.
type BookingService struct {
	bookings  bookingStore
	trips     bookingTripReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewBookingService constructs the service.
func NewBookingService(bookings bookingStore, trips bookingTripReader, validate *validator.Validate, logger *zap.Logger) *BookingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookingService{bookings: bookings, trips: trips, validator: validate, logger: logger}
}

// Create attaches a booking to an active trip of the caller's agency.
func (s *BookingService) Create(ctx context.Context, actor *models.JWTClaims, req CreateBookingRequest) (*models.Booking, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking payload")
	}

	trip, err := s.trips.GetByID(ctx, actor.AgencyID, req.TripID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "trip not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load trip")
	}
	if !trip.Stage.Active() && trip.Stage != models.StageInquiry {
		return nil, appErrors.Clone(appErrors.ErrConflict,
			fmt.Sprintf("cannot add bookings to a %s trip", trip.Stage))
	}

	booking := &models.Booking{
		AgencyID:            actor.AgencyID,
		TripID:              trip.ID,
		Kind:                req.Kind,
		Supplier:            req.Supplier,
		ConfirmationNumber:  req.ConfirmationNumber,
		TotalPrice:          req.TotalPrice,
		CommissionAmount:    req.CommissionAmount,
		DepositDueDate:      req.DepositDueDate,
		FinalPaymentDueDate: req.FinalPaymentDueDate,
	}
	if err := s.bookings.Create(ctx, booking); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create booking")
	}

	s.logger.Info("booking created",
		zap.String("bookingId", booking.ID),
		zap.String("tripId", trip.ID),
		zap.String("supplier", booking.Supplier))
	return booking, nil
}

// Get returns one booking of the caller's agency.
func (s *BookingService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.Booking, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	return s.loadBooking(ctx, actor.AgencyID, id)
}

// List returns bookings matching the query.
func (s *BookingService) List(ctx context.Context, actor *models.JWTClaims, query BookingQuery) ([]models.Booking, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	filter := models.BookingFilter{
		AgencyID: actor.AgencyID,
		Page:     query.Page,
		Limit:    query.Limit,
	}
	if query.TripID != "" {
		filter.TripID = &query.TripID
	}
	if query.Status != "" {
		if !query.Status.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown booking status %q", query.Status))
		}
		filter.Status = &query.Status
	}
	if query.PaymentStatus != "" {
		if !query.PaymentStatus.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown payment status %q", query.PaymentStatus))
		}
		filter.PaymentStatus = &query.PaymentStatus
	}

	bookings, err := s.bookings.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list bookings")
	}
	return bookings, nil
}

// Update edits the descriptive fields of a booking. Attempts to move the
// guarded columns are refused with a pointer at the approval action.
func (s *BookingService) Update(ctx context.Context, actor *models.JWTClaims, id string, req UpdateBookingRequest) (*models.Booking, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking payload")
	}

	booking, err := s.loadBooking(ctx, actor.AgencyID, id)
	if err != nil {
		return nil, err
	}
	if booking.Status == models.BookingCanceled {
		return nil, appErrors.Clone(appErrors.ErrConflict, "canceled bookings cannot be edited")
	}

	booking.Kind = req.Kind
	booking.Supplier = req.Supplier
	booking.ConfirmationNumber = req.ConfirmationNumber
	booking.TotalPrice = req.TotalPrice
	booking.CommissionAmount = req.CommissionAmount
	booking.DepositDueDate = req.DepositDueDate
	booking.FinalPaymentDueDate = req.FinalPaymentDueDate

	if err := s.bookings.Update(ctx, booking); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update booking")
	}
	return booking, nil
}

func (s *BookingService) loadBooking(ctx context.Context, agencyID, id string) (*models.Booking, error) {
	booking, err := s.bookings.GetByID(ctx, agencyID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "booking not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booking")
	}
	return booking, nil
}
