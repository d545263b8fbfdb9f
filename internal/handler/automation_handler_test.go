package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanderdesk/wanderdesk-api/internal/dto"
	appErrors "github.com/wanderdesk/wanderdesk-api/pkg/errors"
)

type stubAutomationService struct {
	lastDays  int
	lastHours int
	result    dto.ScanResult
	summary   *dto.AutomationSummary
	err       error
}

func (s *stubAutomationService) ScanStaleQuotes(ctx context.Context, days int) (dto.ScanResult, error) {
	s.lastDays = days
	return s.result, s.err
}

func (s *stubAutomationService) ScanTaskReminders(ctx context.Context, days int) (dto.ScanResult, error) {
	s.lastDays = days
	return s.result, s.err
}

func (s *stubAutomationService) ScanFeedbackReminders(ctx context.Context, days int) (dto.ScanResult, error) {
	s.lastDays = days
	return s.result, s.err
}

func (s *stubAutomationService) ScanCommissions(ctx context.Context, days int) (dto.ScanResult, error) {
	s.lastDays = days
	return s.result, s.err
}

func (s *stubAutomationService) ScanPaymentDeadlines(ctx context.Context, hours int) (dto.ScanResult, error) {
	s.lastHours = hours
	return s.result, s.err
}

func (s *stubAutomationService) ScanTravelReadiness(ctx context.Context, hours int) (dto.ScanResult, error) {
	s.lastHours = hours
	return s.result, s.err
}

func (s *stubAutomationService) GenerateDeadlineTasks(ctx context.Context) (dto.ScanResult, error) {
	return s.result, s.err
}

func (s *stubAutomationService) ReconcileOverdue(ctx context.Context) (dto.ScanResult, error) {
	return s.result, s.err
}

func (s *stubAutomationService) RunAll(ctx context.Context) (*dto.AutomationSummary, error) {
	return s.summary, s.err
}

func (s *stubAutomationService) LastRun(ctx context.Context) (*dto.AutomationSummary, error) {
	return s.summary, s.err
}

func newAutomationRouter(svc *stubAutomationService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewAutomationHandler(svc)
	r := gin.New()
	r.POST("/automation/scan/quote-followups", h.ScanQuoteFollowUps)
	r.POST("/automation/scan/payment-deadlines", h.ScanPaymentDeadlines)
	r.POST("/automation/run", h.RunAll)
	r.GET("/automation/last-run", h.LastRun)
	return r
}

func TestScanAcceptsWindowOverride(t *testing.T) {
	svc := &stubAutomationService{result: dto.ScanResult{Rule: "quote_follow_up", Checked: 4, Created: 2}}
	r := newAutomationRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/automation/scan/quote-followups", strings.NewReader(`{"days":10}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 10, svc.lastDays)

	var envelope struct {
		Data dto.ScanResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "quote_follow_up", envelope.Data.Rule)
	assert.Equal(t, 2, envelope.Data.Created)
}

func TestScanDefaultsWithoutBody(t *testing.T) {
	svc := &stubAutomationService{result: dto.ScanResult{Rule: "payment_deadline"}}
	r := newAutomationRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/automation/scan/payment-deadlines", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, svc.lastHours)
}

func TestScanRejectsMalformedOverride(t *testing.T) {
	svc := &stubAutomationService{}
	r := newAutomationRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/automation/scan/quote-followups", strings.NewReader(`{"days":"ten"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLastRunNotFound(t *testing.T) {
	svc := &stubAutomationService{err: appErrors.Clone(appErrors.ErrNotFound, "no automation run recorded yet")}
	r := newAutomationRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/automation/last-run", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRunAllReturnsSummary(t *testing.T) {
	svc := &stubAutomationService{summary: &dto.AutomationSummary{
		Created: 7,
		Results: []dto.ScanResult{{Rule: "quote_follow_up", Created: 3}, {Rule: "deadline_tasks", Created: 4}},
	}}
	r := newAutomationRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/automation/run", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var envelope struct {
		Data dto.AutomationSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, 7, envelope.Data.Created)
	assert.Len(t, envelope.Data.Results, 2)
}
