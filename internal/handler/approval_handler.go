package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/wanderdesk/wanderdesk-api/internal/dto"
	"github.com/wanderdesk/wanderdesk-api/internal/models"
	appErrors "github.com/wanderdesk/wanderdesk-api/pkg/errors"
	"github.com/wanderdesk/wanderdesk-api/pkg/response"
)

type approvalService interface {
	Submit(ctx context.Context, actor *models.JWTClaims, req dto.CreateApprovalRequest) (*models.ApprovalRequest, error)
	List(ctx context.Context, actor *models.JWTClaims, query dto.ApprovalQuery) ([]models.ApprovalRequest, error)
	Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.ApprovalRequest, error)
	Approve(ctx context.Context, actor *models.JWTClaims, id string, decision dto.ResolveApprovalRequest) (*dto.ApprovalResolution, error)
	Deny(ctx context.Context, actor *models.JWTClaims, id string, decision dto.ResolveApprovalRequest) (*models.ApprovalRequest, error)
}

// ApprovalHandler exposes the approval workflow endpoints.
type ApprovalHandler struct {
	service approvalService
}

// NewApprovalHandler constructs the handler.
func NewApprovalHandler(service approvalService) *ApprovalHandler {
	return &ApprovalHandler{service: service}
}

// Create godoc
// @Summary Submit an approval request
// @Description Request a guarded action; rejected with 409 when a pending request already exists for the same entity and action
// @Tags Approvals
// @Accept json
// @Produce json
// @Param payload body dto.CreateApprovalRequest true "Approval payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /approvals [post]
func (h *ApprovalHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid approval payload"))
		return
	}
	request, err := h.service.Submit(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, request, nil)
}

// List godoc
// @Summary List approval requests
// @Description Admins see every request of their agency; agents see their own
// @Tags Approvals
// @Produce json
// @Param status query string false "Status filter"
// @Param action query string false "Action type filter"
// @Param entity query string false "Entity id filter"
// @Success 200 {object} response.Envelope
// @Router /approvals [get]
func (h *ApprovalHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query := dto.ApprovalQuery{
		EntityID: strings.TrimSpace(c.Query("entity")),
	}
	if raw := c.Query("status"); raw != "" {
		query.Status = models.ApprovalStatus(strings.ToLower(raw))
	}
	if raw := c.Query("action"); raw != "" {
		query.ActionType = models.ActionType(strings.ToLower(raw))
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		query.Page = page
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		query.Limit = limit
	}
	requests, err := h.service.List(c.Request.Context(), claims, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, nil)
}

// Get godoc
// @Summary Get approval request detail
// @Tags Approvals
// @Produce json
// @Param id path string true "Approval ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /approvals/{id} [get]
func (h *ApprovalHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	request, err := h.service.Get(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Approve godoc
// @Summary Approve a pending request
// @Description Executes the requested action and returns the execution result inline; a drifted entity yields an execution_failed resolution, not a transport error
// @Tags Approvals
// @Accept json
// @Produce json
// @Param id path string true "Approval ID"
// @Param payload body dto.ResolveApprovalRequest false "Resolution note"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /approvals/{id}/approve [post]
func (h *ApprovalHandler) Approve(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var decision dto.ResolveApprovalRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&decision); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid resolution payload"))
			return
		}
	}
	resolution, err := h.service.Approve(c.Request.Context(), claims, c.Param("id"), decision)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resolution, nil)
}

// Deny godoc
// @Summary Deny a pending request
// @Tags Approvals
// @Accept json
// @Produce json
// @Param id path string true "Approval ID"
// @Param payload body dto.ResolveApprovalRequest false "Resolution note"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /approvals/{id}/deny [post]
func (h *ApprovalHandler) Deny(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var decision dto.ResolveApprovalRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&decision); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid resolution payload"))
			return
		}
	}
	request, err := h.service.Deny(c.Request.Context(), claims, c.Param("id"), decision)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}
