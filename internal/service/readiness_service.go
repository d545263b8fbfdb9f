package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/wanderdesk/wanderdesk-api/internal/dto"
	"github.com/wanderdesk/wanderdesk-api/internal/models"
	appErrors "github.com/wanderdesk/wanderdesk-api/pkg/errors"
)

type readinessTripSource interface {
	GetByID(ctx context.Context, agencyID, id string) (*models.Trip, error)
}

type readinessTravelerSource interface {
	ListByTrip(ctx context.Context, tripID string) ([]models.Traveler, error)
}

type readinessBookingSource interface {
	ListByTrip(ctx context.Context, tripID string) ([]models.Booking, error)
}

type readinessClientSource interface {
	GetByID(ctx context.Context, agencyID, id string) (*models.Client, error)
}

// ReadinessInput bundles everything the evaluator inspects for one trip.
type ReadinessInput struct {
	Trip      *models.Trip
	Client    *models.Client
	Travelers []models.Traveler
	Bookings  []models.Booking
}

// passportExpiryMonths is the horizon many destinations require a passport
// to outlive the travel dates by.
const passportExpiryMonths = 6

// EvaluateTripReadiness runs every pre-departure check and accumulates the
// gaps in check order; it never short-circuits, so the report always lists
// the full set of problems. The function is pure: it reads the input and
// touches nothing else.
func EvaluateTripReadiness(input ReadinessInput) dto.ReadinessReport {
	report := dto.ReadinessReport{MissingItems: []string{}}
	if input.Trip != nil {
		report.TripID = input.Trip.ID
	}
	add := func(format string, args ...interface{}) {
		report.MissingItems = append(report.MissingItems, fmt.Sprintf(format, args...))
	}

	if len(input.Travelers) == 0 {
		add("No travelers added")
	}
	for _, traveler := range input.Travelers {
		if traveler.PassportStatus != models.PassportYes {
			add("Passport missing or unverified for %s", traveler.FullName)
		}
		if input.Trip != nil && input.Trip.TravelStartDate != nil && traveler.PassportExpiry != nil {
			horizon := input.Trip.TravelStartDate.AddDate(0, passportExpiryMonths, 0)
			if traveler.PassportExpiry.Before(horizon) {
				add("Passport for %s expires within %d months of departure", traveler.FullName, passportExpiryMonths)
			}
		}
		if traveler.DateOfBirth == nil {
			add("Missing date of birth for %s", traveler.FullName)
		}
	}

	active := 0
	for _, booking := range input.Bookings {
		if booking.Status == models.BookingCanceled {
			continue
		}
		active++
	}
	if active == 0 {
		add("No active bookings on this trip")
	}
	for _, booking := range input.Bookings {
		if booking.Status == models.BookingCanceled {
			continue
		}
		label := fmt.Sprintf("%s (%s)", booking.Kind, booking.Supplier)
		switch booking.Status {
		case models.BookingPlanned, models.BookingQuoted:
			add("%s is not confirmed", label)
		case models.BookingBooked:
			if booking.ConfirmationNumber == nil || *booking.ConfirmationNumber == "" {
				add("%s has no confirmation number", label)
			}
		}
		if booking.PaymentStatus != models.PaymentPaidInFull {
			add("%s is not fully paid", label)
		}
	}

	if input.Client == nil || !clientReachable(input.Client) {
		add("Client has no contact method on file")
	}

	report.IsComplete = len(report.MissingItems) == 0
	return report
}

func clientReachable(client *models.Client) bool {
	if client.Email != nil && *client.Email != "" {
		return true
	}
	if client.Phone != nil && *client.Phone != "" {
		return true
	}
	return false
}

// ReadinessService loads a trip's records and delegates to the pure
// evaluator. Consumed by the readiness endpoint and the travel-readiness
// scanner.
type ReadinessService struct {
	trips     readinessTripSource
	travelers readinessTravelerSource
	bookings  readinessBookingSource
	clients   readinessClientSource
	logger    *zap.Logger
}

// NewReadinessService constructs the service.
func NewReadinessService(
	trips readinessTripSource,
	travelers readinessTravelerSource,
	bookings readinessBookingSource,
	clients readinessClientSource,
	logger *zap.Logger,
) *ReadinessService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReadinessService{trips: trips, travelers: travelers, bookings: bookings, clients: clients, logger: logger}
}

// EvaluateTrip assembles the trip's travelers, bookings and client record
// and returns the readiness report.
func (s *ReadinessService) EvaluateTrip(ctx context.Context, agencyID, tripID string) (*dto.ReadinessReport, error) {
	trip, err := s.trips.GetByID(ctx, agencyID, tripID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "trip not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load trip")
	}

	travelers, err := s.travelers.ListByTrip(ctx, trip.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load travelers")
	}
	bookings, err := s.bookings.ListByTrip(ctx, trip.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load bookings")
	}

	client, err := s.clients.GetByID(ctx, agencyID, trip.ClientID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load client")
		}
		// A dangling client reference reads as an unreachable client.
		s.logger.Warn("trip references missing client", zap.String("trip_id", trip.ID), zap.String("client_id", trip.ClientID))
		client = nil
	}

	report := EvaluateTripReadiness(ReadinessInput{
		Trip:      trip,
		Client:    client,
		Travelers: travelers,
		Bookings:  bookings,
	})
	return &report, nil
}
