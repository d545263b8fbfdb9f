package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wanderdesk/wanderdesk-api/internal/dto"
	"github.com/wanderdesk/wanderdesk-api/internal/models"
	"github.com/wanderdesk/wanderdesk-api/internal/repository"
	appErrors "github.com/wanderdesk/wanderdesk-api/pkg/errors"
)

type recordingNotifier struct {
	inputs     []NotificationInput
	recipients []string
	adminFan   []NotificationInput
	extras     [][]string
	seen       map[string]bool
	err        error
}

func (r *recordingNotifier) Notify(ctx context.Context, userID string, input NotificationInput) (CreateOutcome, error) {
	if r.err != nil {
		return CreateOutcome{}, r.err
	}
	if r.seen == nil {
		r.seen = map[string]bool{}
	}
	key := userID + "|" + input.EventKey
	if r.seen[key] {
		return CreateOutcome{Duplicate: true}, nil
	}
	r.seen[key] = true
	r.recipients = append(r.recipients, userID)
	r.inputs = append(r.inputs, input)
	return CreateOutcome{Created: true, ID: "n-" + userID}, nil
}

func (r *recordingNotifier) NotifyAdmins(ctx context.Context, input NotificationInput, extra ...string) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	r.adminFan = append(r.adminFan, input)
	r.extras = append(r.extras, extra)
	return 2 + len(extra), nil
}

type stubTripSource struct {
	stale       []models.Trip
	staleErr    error
	feedback    []models.Trip
	commissions []repository.TripCommission
	departing   []models.Trip
	finalDue    []models.Trip
	byID        map[string]*models.Trip
}

func (s *stubTripSource) GetByID(ctx context.Context, agencyID, id string) (*models.Trip, error) {
	if trip, ok := s.byID[id]; ok {
		return trip, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubTripSource) ListStaleQuotes(ctx context.Context, cutoff time.Time, limit int) ([]models.Trip, error) {
	return s.stale, s.staleErr
}

func (s *stubTripSource) ListAwaitingFeedback(ctx context.Context, cutoff time.Time, limit int) ([]models.Trip, error) {
	return s.feedback, nil
}

func (s *stubTripSource) ListOutstandingCommissions(ctx context.Context, cutoff time.Time, limit int) ([]repository.TripCommission, error) {
	return s.commissions, nil
}

func (s *stubTripSource) ListDepartingBetween(ctx context.Context, from, until time.Time, limit int) ([]models.Trip, error) {
	return s.departing, nil
}

func (s *stubTripSource) ListFinalPaymentsDue(ctx context.Context, until time.Time, limit int) ([]models.Trip, error) {
	return s.finalDue, nil
}

type stubTaskSource struct {
	due     []models.Task
	open    map[string]bool
	created []*models.Task
	flipped []models.Task
}

func (s *stubTaskSource) ListDueBetween(ctx context.Context, from, until time.Time, priority models.TaskPriority, limit int) ([]models.Task, error) {
	return s.due, nil
}

func (s *stubTaskSource) CreateSystem(ctx context.Context, task *models.Task) (bool, error) {
	if s.open == nil {
		s.open = map[string]bool{}
	}
	key := *task.TripID + "|" + *task.SourceEvent
	if s.open[key] {
		return false, nil
	}
	s.open[key] = true
	s.created = append(s.created, task)
	return true, nil
}

func (s *stubTaskSource) HasOpenSystemTask(ctx context.Context, tripID, sourceEvent string) (bool, error) {
	return s.open[tripID+"|"+sourceEvent], nil
}

func (s *stubTaskSource) MarkOverdue(ctx context.Context, now time.Time, limit int) ([]models.Task, error) {
	return s.flipped, nil
}

type stubBookingSource struct {
	due []models.Booking
}

func (s *stubBookingSource) ListPaymentsDueBetween(ctx context.Context, from, until time.Time, limit int) ([]models.Booking, error) {
	return s.due, nil
}

type stubReadiness struct {
	reports map[string]*dto.ReadinessReport
}

func (s *stubReadiness) EvaluateTrip(ctx context.Context, agencyID, tripID string) (*dto.ReadinessReport, error) {
	if report, ok := s.reports[tripID]; ok {
		return report, nil
	}
	return &dto.ReadinessReport{TripID: tripID, IsComplete: true, MissingItems: []string{}}, nil
}

type stubAutomationCache struct {
	values map[string]interface{}
}

func (c *stubAutomationCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := c.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func (c *stubAutomationCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c.values == nil {
		c.values = map[string]interface{}{}
	}
	c.values[key] = value
	return nil
}

type stubAuditSink struct {
	entries []*models.AuditLog
}

func (s *stubAuditSink) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.entries = append(s.entries, log)
	return nil
}

type countingAutomationMetrics struct {
	rules map[string]string
	tasks int
}

func (m *countingAutomationMetrics) RecordRuleRun(rule, outcome string) {
	if m.rules == nil {
		m.rules = map[string]string{}
	}
	m.rules[rule] = outcome
}

func (m *countingAutomationMetrics) RecordTaskGenerated() {
	m.tasks++
}

var automationTestNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newAutomationFixture(trips *stubTripSource, tasks *stubTaskSource, bookings *stubBookingSource, notifier *recordingNotifier, readiness *stubReadiness, opts ...AutomationOption) *AutomationService {
	if readiness == nil {
		readiness = &stubReadiness{}
	}
	opts = append(opts, WithAutomationClock(func() time.Time { return automationTestNow }))
	return NewAutomationService(trips, tasks, bookings, notifier, readiness, AutomationConfig{}, zap.NewNop(), opts...)
}

func TestScanStaleQuotesNotifiesOwners(t *testing.T) {
	trips := &stubTripSource{stale: []models.Trip{
		{ID: "t1", AgencyID: "agency-1", OwnerID: "agent-1", Title: "Lisbon Getaway", UpdatedAt: automationTestNow.Add(-5 * 24 * time.Hour)},
		{ID: "t2", AgencyID: "agency-1", OwnerID: "agent-2", Title: "Kyoto Spring", UpdatedAt: automationTestNow.Add(-4 * 24 * time.Hour)},
	}}
	notifier := &recordingNotifier{}
	svc := newAutomationFixture(trips, &stubTaskSource{}, &stubBookingSource{}, notifier, nil)

	result, err := svc.ScanStaleQuotes(context.Background(), 3)
	require.NoError(t, err)

	assert.Equal(t, "quote_followup", result.Rule)
	assert.Equal(t, 2, result.Checked)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, []string{"agent-1", "agent-2"}, notifier.recipients)
	assert.Equal(t, "quote_followup:trip:t1:2026-03-01", notifier.inputs[0].EventKey)
	assert.Contains(t, notifier.inputs[0].Message, "5 days")
	assert.Equal(t, models.NotificationNormal, notifier.inputs[0].Type)
}

func TestScanStaleQuotesSecondRunIsIdempotent(t *testing.T) {
	trips := &stubTripSource{stale: []models.Trip{
		{ID: "t1", AgencyID: "agency-1", OwnerID: "agent-1", Title: "Lisbon Getaway", UpdatedAt: automationTestNow.Add(-5 * 24 * time.Hour)},
	}}
	notifier := &recordingNotifier{}
	svc := newAutomationFixture(trips, &stubTaskSource{}, &stubBookingSource{}, notifier, nil)

	first, err := svc.ScanStaleQuotes(context.Background(), 3)
	require.NoError(t, err)
	second, err := svc.ScanStaleQuotes(context.Background(), 3)
	require.NoError(t, err)

	assert.Equal(t, 1, first.Created)
	assert.Equal(t, 1, second.Checked)
	assert.Equal(t, 0, second.Created)
}

func TestScanTaskRemindersUsesHorizonText(t *testing.T) {
	due := automationTestNow.Add(30 * time.Hour)
	tasks := &stubTaskSource{due: []models.Task{
		{ID: "task-1", AgencyID: "agency-1", AssigneeID: "agent-1", Title: "Send invoice", DueDate: &due},
	}}
	notifier := &recordingNotifier{}
	svc := newAutomationFixture(&stubTripSource{}, tasks, &stubBookingSource{}, notifier, nil)

	result, err := svc.ScanTaskReminders(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Created)
	assert.Contains(t, notifier.inputs[0].Message, "due tomorrow")
	assert.Equal(t, "task_reminder:task:task-1:2026-03-01", notifier.inputs[0].EventKey)
}

func TestScanCommissionsAggregatedMessage(t *testing.T) {
	completed := automationTestNow.Add(-40 * 24 * time.Hour)
	trips := &stubTripSource{commissions: []repository.TripCommission{
		{Trip: models.Trip{ID: "t1", AgencyID: "agency-1", OwnerID: "agent-1", Title: "Lisbon Getaway", CompletedAt: &completed}, Outstanding: 612.5},
	}}
	notifier := &recordingNotifier{}
	svc := newAutomationFixture(trips, &stubTaskSource{}, &stubBookingSource{}, notifier, nil)

	result, err := svc.ScanCommissions(context.Background(), 30)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Created)
	assert.Contains(t, notifier.inputs[0].Message, "612.50")
	assert.Equal(t, "commission_followup:trip:t1:2026-03-01", notifier.inputs[0].EventKey)
}

func TestScanPaymentDeadlinesSkipsCanceledTrips(t *testing.T) {
	due := automationTestNow.Add(30 * time.Hour)
	bookings := &stubBookingSource{due: []models.Booking{
		{ID: "b1", AgencyID: "agency-1", TripID: "t1", Kind: "cruise", Supplier: "BlueLine", FinalPaymentDueDate: &due},
		{ID: "b2", AgencyID: "agency-1", TripID: "t2", Kind: "hotel", Supplier: "Seaside Resort", FinalPaymentDueDate: &due},
	}}
	trips := &stubTripSource{byID: map[string]*models.Trip{
		"t1": {ID: "t1", AgencyID: "agency-1", OwnerID: "agent-1", Title: "Lisbon Getaway", Stage: models.StageBooked},
		"t2": {ID: "t2", AgencyID: "agency-1", OwnerID: "agent-2", Title: "Dropped Plans", Stage: models.StageCanceled},
	}}
	notifier := &recordingNotifier{}
	svc := newAutomationFixture(trips, &stubTaskSource{}, bookings, notifier, nil)

	result, err := svc.ScanPaymentDeadlines(context.Background(), 48)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Checked)
	assert.Equal(t, 3, result.Created)
	require.Len(t, notifier.adminFan, 1)
	assert.Equal(t, models.NotificationUrgent, notifier.adminFan[0].Type)
	assert.Contains(t, notifier.adminFan[0].Message, "due tomorrow")
	assert.Equal(t, "payment_deadline:booking:b1:2026-03-01", notifier.adminFan[0].EventKey)
	assert.Equal(t, []string{"agent-1"}, notifier.extras[0])
}

func TestScanTravelReadinessSkipsCompleteTrips(t *testing.T) {
	soon := automationTestNow.Add(20 * time.Hour)
	trips := &stubTripSource{departing: []models.Trip{
		{ID: "t1", AgencyID: "agency-1", OwnerID: "agent-1", Title: "Lisbon Getaway", Stage: models.StageBooked, TravelStartDate: &soon},
		{ID: "t2", AgencyID: "agency-1", OwnerID: "agent-2", Title: "Kyoto Spring", Stage: models.StageBooked, TravelStartDate: &soon},
	}}
	readiness := &stubReadiness{reports: map[string]*dto.ReadinessReport{
		"t1": {TripID: "t1", MissingItems: []string{"No travelers added", "Client has no contact method on file"}},
	}}
	notifier := &recordingNotifier{}
	svc := newAutomationFixture(trips, &stubTaskSource{}, &stubBookingSource{}, notifier, readiness)

	result, err := svc.ScanTravelReadiness(context.Background(), 48)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Checked)
	assert.Equal(t, 3, result.Created)
	require.Len(t, notifier.adminFan, 1)
	assert.Contains(t, notifier.adminFan[0].Message, "departs in less than 24 hours")
	assert.Contains(t, notifier.adminFan[0].Message, "2 readiness gaps")
	assert.Contains(t, notifier.adminFan[0].Message, "No travelers added")
}

func TestGenerateDeadlineTasksGuardedBySourceEvent(t *testing.T) {
	finalPay := automationTestNow.Add(3 * 24 * time.Hour)
	start := automationTestNow.Add(10 * 24 * time.Hour)
	trips := &stubTripSource{
		finalDue:  []models.Trip{{ID: "t1", AgencyID: "agency-1", OwnerID: "agent-1", Title: "Lisbon Getaway", FinalPaymentDueDate: &finalPay}},
		departing: []models.Trip{{ID: "t2", AgencyID: "agency-1", OwnerID: "agent-2", Title: "Kyoto Spring", TravelStartDate: &start}},
	}
	tasks := &stubTaskSource{open: map[string]bool{"t1|final_payment:trip:t1": true}}
	metrics := &countingAutomationMetrics{}
	svc := newAutomationFixture(trips, tasks, &stubBookingSource{}, &recordingNotifier{}, nil, WithAutomationMetrics(metrics))

	result, err := svc.GenerateDeadlineTasks(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "deadline_tasks", result.Rule)
	assert.Equal(t, 2, result.Checked)
	assert.Equal(t, 1, result.Created)
	require.Len(t, tasks.created, 1)

	task := tasks.created[0]
	assert.Equal(t, "pre_travel:trip:t2", *task.SourceEvent)
	assert.Equal(t, models.TaskCategoryPreparation, task.Category)
	assert.Equal(t, models.TaskPriorityNormal, task.Priority)
	assert.Equal(t, start.AddDate(0, 0, -7), *task.DueDate)
	assert.Equal(t, 1, metrics.tasks)
}

func TestGenerateDeadlineTasksClampsPastPrepDue(t *testing.T) {
	start := automationTestNow.Add(2 * 24 * time.Hour)
	trips := &stubTripSource{
		departing: []models.Trip{{ID: "t1", AgencyID: "agency-1", OwnerID: "agent-1", Title: "Lisbon Getaway", TravelStartDate: &start}},
	}
	tasks := &stubTaskSource{}
	svc := newAutomationFixture(trips, tasks, &stubBookingSource{}, &recordingNotifier{}, nil)

	_, err := svc.GenerateDeadlineTasks(context.Background())
	require.NoError(t, err)

	require.Len(t, tasks.created, 1)
	assert.Equal(t, start, *tasks.created[0].DueDate)
}

func TestReconcileOverdueNotifiesAssignees(t *testing.T) {
	due := automationTestNow.Add(-26 * time.Hour)
	tasks := &stubTaskSource{flipped: []models.Task{
		{ID: "task-1", AgencyID: "agency-1", AssigneeID: "agent-1", Title: "Send invoice", Priority: models.TaskPriorityNormal, DueDate: &due},
		{ID: "task-2", AgencyID: "agency-1", AssigneeID: "agent-2", Title: "Call supplier", Priority: models.TaskPriorityUrgent, DueDate: &due},
	}}
	notifier := &recordingNotifier{}
	svc := newAutomationFixture(&stubTripSource{}, tasks, &stubBookingSource{}, notifier, nil)

	result, err := svc.ReconcileOverdue(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Checked)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, models.NotificationNormal, notifier.inputs[0].Type)
	assert.Equal(t, models.NotificationUrgent, notifier.inputs[1].Type)
	assert.Equal(t, "task_overdue:task:task-1", notifier.inputs[0].EventKey)
	assert.Contains(t, notifier.inputs[0].Message, "2026-02-28")
}

func TestRunAllIsolatesRuleFailures(t *testing.T) {
	trips := &stubTripSource{staleErr: errors.New("db offline")}
	cache := &stubAutomationCache{}
	audit := &stubAuditSink{}
	metrics := &countingAutomationMetrics{}
	svc := newAutomationFixture(trips, &stubTaskSource{}, &stubBookingSource{}, &recordingNotifier{}, nil,
		WithAutomationCache(cache), WithAutomationAudit(audit), WithAutomationMetrics(metrics))

	summary, err := svc.RunAll(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.Results, 8)
	assert.Equal(t, 1, summary.Failed)
	assert.Contains(t, summary.Results[0].Error, "db offline")
	assert.NotEmpty(t, summary.Duration)
	assert.Equal(t, "error", metrics.rules["quote_followup"])
	assert.Equal(t, "ok", metrics.rules["deadline_tasks"])

	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionAutomationRun, audit.entries[0].Action)
	assert.Empty(t, audit.entries[0].AgencyID)

	cached, err := svc.LastRun(context.Background())
	require.NoError(t, err)
	assert.Len(t, cached.Results, 8)
}

func TestLastRunWithoutHistory(t *testing.T) {
	svc := newAutomationFixture(&stubTripSource{}, &stubTaskSource{}, &stubBookingSource{}, &recordingNotifier{}, nil,
		WithAutomationCache(&stubAutomationCache{}))

	_, err := svc.LastRun(context.Background())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestHorizonText(t *testing.T) {
	cases := []struct {
		hours float64
		want  string
	}{
		{20, "due in less than 24 hours"},
		{24, "due in less than 24 hours"},
		{30, "due tomorrow"},
		{48, "due tomorrow"},
		{49, "due in 3 days"},
		{170, "due in 8 days"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, horizonText("due", tc.hours), "hours=%v", tc.hours)
	}
	assert.True(t, strings.HasPrefix(horizonText("departs", 12), "departs"))
}
