package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/wanderdesk/wanderdesk-api/internal/dto"
	"github.com/wanderdesk/wanderdesk-api/internal/models"
	"github.com/wanderdesk/wanderdesk-api/internal/service"
	appErrors "github.com/wanderdesk/wanderdesk-api/pkg/errors"
	"github.com/wanderdesk/wanderdesk-api/pkg/response"
)

type tripService interface {
	Create(ctx context.Context, actor *models.JWTClaims, req service.CreateTripRequest) (*models.Trip, error)
	Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.Trip, error)
	List(ctx context.Context, actor *models.JWTClaims, query service.TripQuery) ([]models.Trip, error)
	Update(ctx context.Context, actor *models.JWTClaims, id string, req service.UpdateTripRequest) (*models.Trip, error)
	ChangeStage(ctx context.Context, actor *models.JWTClaims, id string, req service.ChangeTripStageRequest) (*models.Trip, error)
	AddTraveler(ctx context.Context, actor *models.JWTClaims, tripID string, req service.AddTravelerRequest) (*models.Traveler, error)
	ListTravelers(ctx context.Context, actor *models.JWTClaims, tripID string) ([]models.Traveler, error)
	RecordFeedback(ctx context.Context, actor *models.JWTClaims, tripID string, req service.RecordFeedbackRequest) (*models.Feedback, error)
	GetFeedback(ctx context.Context, actor *models.JWTClaims, tripID string) (*models.Feedback, error)
}

type readinessEvaluator interface {
	EvaluateTrip(ctx context.Context, agencyID, tripID string) (*dto.ReadinessReport, error)
}

// TripHandler exposes trip lifecycle endpoints, travelers, feedback and the
// readiness report.
type TripHandler struct {
	service   tripService
	readiness readinessEvaluator
}

// NewTripHandler constructs the handler.
func NewTripHandler(svc tripService, readiness readinessEvaluator) *TripHandler {
	return &TripHandler{service: svc, readiness: readiness}
}

// Create godoc
// @Summary Open a trip
// @Tags Trips
// @Accept json
// @Produce json
// @Param payload body service.CreateTripRequest true "Trip payload"
// @Success 201 {object} response.Envelope
// @Router /trips [post]
func (h *TripHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.CreateTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid trip payload"))
		return
	}
	trip, err := h.service.Create(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, trip, nil)
}

// List godoc
// @Summary List trips
// @Tags Trips
// @Produce json
// @Param owner query string false "Owner filter"
// @Param client query string false "Client filter"
// @Param stage query string false "Stage filter"
// @Param destination query string false "Destination filter"
// @Param search query string false "Title search"
// @Success 200 {object} response.Envelope
// @Router /trips [get]
func (h *TripHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query := service.TripQuery{
		OwnerID:     strings.TrimSpace(c.Query("owner")),
		ClientID:    strings.TrimSpace(c.Query("client")),
		Destination: strings.TrimSpace(c.Query("destination")),
		Search:      strings.TrimSpace(c.Query("search")),
	}
	if raw := c.Query("stage"); raw != "" {
		query.Stage = models.TripStage(strings.ToLower(raw))
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		query.Page = page
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		query.Limit = limit
	}
	trips, err := h.service.List(c.Request.Context(), claims, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, trips, nil)
}

// Get godoc
// @Summary Get trip detail
// @Tags Trips
// @Produce json
// @Param id path string true "Trip ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /trips/{id} [get]
func (h *TripHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	trip, err := h.service.Get(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, trip, nil)
}

// Update godoc
// @Summary Update an unlocked trip
// @Description Locked trips (completed or canceled) return 412 pointing at the modify_locked_trip approval action
// @Tags Trips
// @Accept json
// @Produce json
// @Param id path string true "Trip ID"
// @Param payload body service.UpdateTripRequest true "Trip payload"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /trips/{id} [put]
func (h *TripHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.UpdateTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid trip payload"))
		return
	}
	trip, err := h.service.Update(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, trip, nil)
}

// ChangeStage godoc
// @Summary Move a trip to another stage
// @Description Forward moves apply directly; backward moves, late cancellations and reopening require an approval and are refused here
// @Tags Trips
// @Accept json
// @Produce json
// @Param id path string true "Trip ID"
// @Param payload body service.ChangeTripStageRequest true "Target stage"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /trips/{id}/stage [post]
func (h *TripHandler) ChangeStage(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.ChangeTripStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid stage payload"))
		return
	}
	trip, err := h.service.ChangeStage(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, trip, nil)
}

// AddTraveler godoc
// @Summary Attach a traveler to a trip
// @Tags Trips
// @Accept json
// @Produce json
// @Param id path string true "Trip ID"
// @Param payload body service.AddTravelerRequest true "Traveler payload"
// @Success 201 {object} response.Envelope
// @Router /trips/{id}/travelers [post]
func (h *TripHandler) AddTraveler(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.AddTravelerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid traveler payload"))
		return
	}
	traveler, err := h.service.AddTraveler(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, traveler, nil)
}

// ListTravelers godoc
// @Summary List travelers of a trip
// @Tags Trips
// @Produce json
// @Param id path string true "Trip ID"
// @Success 200 {object} response.Envelope
// @Router /trips/{id}/travelers [get]
func (h *TripHandler) ListTravelers(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	travelers, err := h.service.ListTravelers(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, travelers, nil)
}

// RecordFeedback godoc
// @Summary Record post-trip feedback
// @Tags Trips
// @Accept json
// @Produce json
// @Param id path string true "Trip ID"
// @Param payload body service.RecordFeedbackRequest true "Feedback payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /trips/{id}/feedback [post]
func (h *TripHandler) RecordFeedback(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.RecordFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid feedback payload"))
		return
	}
	feedback, err := h.service.RecordFeedback(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, feedback, nil)
}

// GetFeedback godoc
// @Summary Get the feedback recorded for a trip
// @Tags Trips
// @Produce json
// @Param id path string true "Trip ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /trips/{id}/feedback [get]
func (h *TripHandler) GetFeedback(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	feedback, err := h.service.GetFeedback(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, feedback, nil)
}

// Readiness godoc
// @Summary Evaluate travel readiness for a trip
// @Description Returns every missing or invalid item blocking departure, accumulated rather than short-circuited
// @Tags Trips
// @Produce json
// @Param id path string true "Trip ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /trips/{id}/readiness [get]
func (h *TripHandler) Readiness(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	report, err := h.readiness.EvaluateTrip(c.Request.Context(), claims.AgencyID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}
