package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wanderdesk/wanderdesk-api/internal/dto"
	appErrors "github.com/wanderdesk/wanderdesk-api/pkg/errors"
	"github.com/wanderdesk/wanderdesk-api/pkg/response"
)

type automationService interface {
	ScanStaleQuotes(ctx context.Context, days int) (dto.ScanResult, error)
	ScanTaskReminders(ctx context.Context, days int) (dto.ScanResult, error)
	ScanFeedbackReminders(ctx context.Context, days int) (dto.ScanResult, error)
	ScanCommissions(ctx context.Context, days int) (dto.ScanResult, error)
	ScanPaymentDeadlines(ctx context.Context, hours int) (dto.ScanResult, error)
	ScanTravelReadiness(ctx context.Context, hours int) (dto.ScanResult, error)
	GenerateDeadlineTasks(ctx context.Context) (dto.ScanResult, error)
	ReconcileOverdue(ctx context.Context) (dto.ScanResult, error)
	RunAll(ctx context.Context) (*dto.AutomationSummary, error)
	LastRun(ctx context.Context) (*dto.AutomationSummary, error)
}

// scanOverride is the optional request body for a single-rule scan. Days and
// hours default to the configured rule windows when omitted or zero.
type scanOverride struct {
	Days  int `json:"days"`
	Hours int `json:"hours"`
}

// AutomationHandler exposes the rule scanner endpoints. All routes are
// admin-only; an out-of-process scheduler or an admin clicking "run now" are
// the expected callers.
type AutomationHandler struct {
	service automationService
}

// NewAutomationHandler constructs the handler.
func NewAutomationHandler(service automationService) *AutomationHandler {
	return &AutomationHandler{service: service}
}

func (h *AutomationHandler) bindOverride(c *gin.Context) (scanOverride, bool) {
	var override scanOverride
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&override); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid scan payload"))
			return override, false
		}
	}
	return override, true
}

func (h *AutomationHandler) respond(c *gin.Context, result dto.ScanResult, err error) {
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ScanQuoteFollowUps godoc
// @Summary Scan for stale quotes
// @Tags Automation
// @Accept json
// @Produce json
// @Param payload body scanOverride false "Window override in days"
// @Success 200 {object} response.Envelope
// @Router /automation/scan/quote-followups [post]
func (h *AutomationHandler) ScanQuoteFollowUps(c *gin.Context) {
	override, ok := h.bindOverride(c)
	if !ok {
		return
	}
	result, err := h.service.ScanStaleQuotes(c.Request.Context(), override.Days)
	h.respond(c, result, err)
}

// ScanTaskReminders godoc
// @Summary Scan for upcoming task due dates
// @Tags Automation
// @Accept json
// @Produce json
// @Param payload body scanOverride false "Window override in days"
// @Success 200 {object} response.Envelope
// @Router /automation/scan/task-reminders [post]
func (h *AutomationHandler) ScanTaskReminders(c *gin.Context) {
	override, ok := h.bindOverride(c)
	if !ok {
		return
	}
	result, err := h.service.ScanTaskReminders(c.Request.Context(), override.Days)
	h.respond(c, result, err)
}

// ScanFeedback godoc
// @Summary Scan for completed trips without feedback
// @Tags Automation
// @Accept json
// @Produce json
// @Param payload body scanOverride false "Window override in days"
// @Success 200 {object} response.Envelope
// @Router /automation/scan/feedback [post]
func (h *AutomationHandler) ScanFeedback(c *gin.Context) {
	override, ok := h.bindOverride(c)
	if !ok {
		return
	}
	result, err := h.service.ScanFeedbackReminders(c.Request.Context(), override.Days)
	h.respond(c, result, err)
}

// ScanCommissions godoc
// @Summary Scan for outstanding commissions
// @Tags Automation
// @Accept json
// @Produce json
// @Param payload body scanOverride false "Window override in days"
// @Success 200 {object} response.Envelope
// @Router /automation/scan/commission-followups [post]
func (h *AutomationHandler) ScanCommissions(c *gin.Context) {
	override, ok := h.bindOverride(c)
	if !ok {
		return
	}
	result, err := h.service.ScanCommissions(c.Request.Context(), override.Days)
	h.respond(c, result, err)
}

// ScanPaymentDeadlines godoc
// @Summary Scan for imminent payment deadlines
// @Tags Automation
// @Accept json
// @Produce json
// @Param payload body scanOverride false "Window override in hours"
// @Success 200 {object} response.Envelope
// @Router /automation/scan/payment-deadlines [post]
func (h *AutomationHandler) ScanPaymentDeadlines(c *gin.Context) {
	override, ok := h.bindOverride(c)
	if !ok {
		return
	}
	result, err := h.service.ScanPaymentDeadlines(c.Request.Context(), override.Hours)
	h.respond(c, result, err)
}

// ScanTravelReadiness godoc
// @Summary Scan for imminent departures with readiness gaps
// @Tags Automation
// @Accept json
// @Produce json
// @Param payload body scanOverride false "Window override in hours"
// @Success 200 {object} response.Envelope
// @Router /automation/scan/travel-readiness [post]
func (h *AutomationHandler) ScanTravelReadiness(c *gin.Context) {
	override, ok := h.bindOverride(c)
	if !ok {
		return
	}
	result, err := h.service.ScanTravelReadiness(c.Request.Context(), override.Hours)
	h.respond(c, result, err)
}

// GenerateDeadlineTasks godoc
// @Summary Generate deadline tasks
// @Description Creates system tasks for final payments, pre-travel checklists and supplier balances, one live task per rule and trip
// @Tags Automation
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /automation/scan/deadline-tasks [post]
func (h *AutomationHandler) GenerateDeadlineTasks(c *gin.Context) {
	result, err := h.service.GenerateDeadlineTasks(c.Request.Context())
	h.respond(c, result, err)
}

// ReconcileOverdue godoc
// @Summary Relabel open tasks whose due date has passed
// @Tags Automation
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /automation/tasks/reconcile [post]
func (h *AutomationHandler) ReconcileOverdue(c *gin.Context) {
	result, err := h.service.ReconcileOverdue(c.Request.Context())
	h.respond(c, result, err)
}

// RunAll godoc
// @Summary Run every automation rule
// @Description Runs all scanners with the configured defaults; one failing rule is reported on its result and does not stop the rest
// @Tags Automation
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /automation/run [post]
func (h *AutomationHandler) RunAll(c *gin.Context) {
	summary, err := h.service.RunAll(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// LastRun godoc
// @Summary Get the most recent automation run summary
// @Tags Automation
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /automation/last-run [get]
func (h *AutomationHandler) LastRun(c *gin.Context) {
	summary, err := h.service.LastRun(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
