package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wanderdesk/wanderdesk-api/internal/dto"
	"github.com/wanderdesk/wanderdesk-api/internal/models"
	"github.com/wanderdesk/wanderdesk-api/internal/repository"
	appErrors "github.com/wanderdesk/wanderdesk-api/pkg/errors"
)

type automationTripSource interface {
	GetByID(ctx context.Context, agencyID, id string) (*models.Trip, error)
	ListStaleQuotes(ctx context.Context, cutoff time.Time, limit int) ([]models.Trip, error)
	ListAwaitingFeedback(ctx context.Context, cutoff time.Time, limit int) ([]models.Trip, error)
	ListOutstandingCommissions(ctx context.Context, cutoff time.Time, limit int) ([]repository.TripCommission, error)
	ListDepartingBetween(ctx context.Context, from, until time.Time, limit int) ([]models.Trip, error)
	ListFinalPaymentsDue(ctx context.Context, until time.Time, limit int) ([]models.Trip, error)
}

type automationTaskSource interface {
	ListDueBetween(ctx context.Context, from, until time.Time, priority models.TaskPriority, limit int) ([]models.Task, error)
	CreateSystem(ctx context.Context, task *models.Task) (bool, error)
	HasOpenSystemTask(ctx context.Context, tripID, sourceEvent string) (bool, error)
	MarkOverdue(ctx context.Context, now time.Time, limit int) ([]models.Task, error)
}

type automationBookingSource interface {
	ListPaymentsDueBetween(ctx context.Context, from, until time.Time, limit int) ([]models.Booking, error)
}

type automationNotifier interface {
	Notify(ctx context.Context, userID string, input NotificationInput) (CreateOutcome, error)
	NotifyAdmins(ctx context.Context, input NotificationInput, extra ...string) (int, error)
}

type automationReadiness interface {
	EvaluateTrip(ctx context.Context, agencyID, tripID string) (*dto.ReadinessReport, error)
}

type automationCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type automationMetrics interface {
	RecordRuleRun(rule, outcome string)
	RecordTaskGenerated()
}

const ruleDeadlineTasks = "deadline_tasks"

const (
	automationLastRunKey = "automation:last_run"
	automationLastRunTTL = 24 * time.Hour
)

// preTravelLeadDays is how far ahead of departure the preparation task is
// due.
const preTravelLeadDays = 7

// AutomationConfig carries the rule thresholds. Zero values fall back to the
// product defaults, so an empty config is usable as-is.
type AutomationConfig struct {
	QuoteFollowUpDays    int
	TaskReminderDays     int
	FeedbackReminderDays int
	CommissionDays       int
	PaymentDeadlineHours int
	TravelReadinessHours int
	FinalPaymentDays     int
	PreTravelDays        int
	BookingPaymentDays   int
	BatchSize            int
}

func (c AutomationConfig) withDefaults() AutomationConfig {
	if c.QuoteFollowUpDays <= 0 {
		c.QuoteFollowUpDays = 3
	}
	if c.TaskReminderDays <= 0 {
		c.TaskReminderDays = 7
	}
	if c.FeedbackReminderDays <= 0 {
		c.FeedbackReminderDays = 7
	}
	if c.CommissionDays <= 0 {
		c.CommissionDays = 30
	}
	if c.PaymentDeadlineHours <= 0 {
		c.PaymentDeadlineHours = 48
	}
	if c.TravelReadinessHours <= 0 {
		c.TravelReadinessHours = 48
	}
	if c.FinalPaymentDays <= 0 {
		c.FinalPaymentDays = 7
	}
	if c.PreTravelDays <= 0 {
		c.PreTravelDays = 14
	}
	if c.BookingPaymentDays <= 0 {
		c.BookingPaymentDays = 7
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 500
	}
	return c
}

// AutomationService runs the time-window rules: it scans for entities that
// crossed a threshold, emits deduplicated notifications, generates deadline
// tasks and reconciles overdue ones. Rules scan across agencies in one pass;
// every notification and task still lands under the entity's own agency.
type AutomationService struct {
	trips     automationTripSource
	tasks     automationTaskSource
	bookings  automationBookingSource
	notifier  automationNotifier
	readiness automationReadiness
	cfg       AutomationConfig
	audit     auditLogger
	cache     automationCache
	metrics   automationMetrics
	logger    *zap.Logger
	now       func() time.Time
}

// AutomationOption customizes the service.
type AutomationOption func(*AutomationService)

// WithAutomationAudit records an audit entry for each aggregate run.
func WithAutomationAudit(audit auditLogger) AutomationOption {
	return func(s *AutomationService) {
		s.audit = audit
	}
}

// WithAutomationCache stores the latest run summary for the dashboard.
func WithAutomationCache(cache automationCache) AutomationOption {
	return func(s *AutomationService) {
		s.cache = cache
	}
}

// WithAutomationMetrics wires rule counters.
func WithAutomationMetrics(metrics automationMetrics) AutomationOption {
	return func(s *AutomationService) {
		s.metrics = metrics
	}
}

// WithAutomationClock overrides the time source.
func WithAutomationClock(now func() time.Time) AutomationOption {
	return func(s *AutomationService) {
		s.now = now
	}
}

// NewAutomationService constructs the service.
func NewAutomationService(
	trips automationTripSource,
	tasks automationTaskSource,
	bookings automationBookingSource,
	notifier automationNotifier,
	readiness automationReadiness,
	cfg AutomationConfig,
	logger *zap.Logger,
	opts ...AutomationOption,
) *AutomationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &AutomationService{
		trips:     trips,
		tasks:     tasks,
		bookings:  bookings,
		notifier:  notifier,
		readiness: readiness,
		cfg:       cfg.withDefaults(),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// horizonText renders a deadline distance the way agents read it: anything
// inside a day is "in less than 24 hours", inside two days is "tomorrow",
// beyond that a day count rounded up.
func horizonText(verb string, hours float64) string {
	switch {
	case hours <= 24:
		return verb + " in less than 24 hours"
	case hours <= 48:
		return verb + " tomorrow"
	default:
		return fmt.Sprintf("%s in %d days", verb, int(math.Ceil(hours/24)))
	}
}

func gapPreview(items []string) string {
	const show = 3
	if len(items) <= show {
		return strings.Join(items, "; ")
	}
	return fmt.Sprintf("%s; and %d more", strings.Join(items[:show], "; "), len(items)-show)
}

func (s *AutomationService) finishRule(result dto.ScanResult, err error) (dto.ScanResult, error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	if s.metrics != nil {
		s.metrics.RecordRuleRun(result.Rule, outcome)
	}
	return result, err
}

// ScanStaleQuotes notifies each owner of a quoted trip that has not moved
// for the threshold. days <= 0 uses the configured default.
func (s *AutomationService) ScanStaleQuotes(ctx context.Context, days int) (dto.ScanResult, error) {
	result := dto.ScanResult{Rule: models.EventQuoteFollowUp}
	if days <= 0 {
		days = s.cfg.QuoteFollowUpDays
	}
	now := s.now()
	cutoff := now.Add(-time.Duration(days) * 24 * time.Hour)

	trips, err := s.trips.ListStaleQuotes(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		return s.finishRule(result, err)
	}
	result.Checked = len(trips)

	for _, trip := range trips {
		age := int(now.Sub(trip.UpdatedAt).Hours() / 24)
		outcome, err := s.notifier.Notify(ctx, trip.OwnerID, NotificationInput{
			AgencyID:   trip.AgencyID,
			Type:       models.NotificationNormal,
			Title:      "Quote follow-up needed",
			Message:    fmt.Sprintf("Trip %q has sat in quoted for %d days without changes", trip.Title, age),
			EntityType: "trip",
			EntityID:   trip.ID,
			EventKey:   models.EventKey(models.EventQuoteFollowUp, "trip", trip.ID, models.DayBucket(now)),
		})
		if err != nil {
			return s.finishRule(result, err)
		}
		if outcome.Created {
			result.Created++
		}
	}
	return s.finishRule(result, nil)
}

// ScanTaskReminders notifies assignees of normal-priority tasks coming due
// inside the window. Urgent tasks already demand attention on their own.
func (s *AutomationService) ScanTaskReminders(ctx context.Context, days int) (dto.ScanResult, error) {
	result := dto.ScanResult{Rule: models.EventTaskReminder}
	if days <= 0 {
		days = s.cfg.TaskReminderDays
	}
	now := s.now()
	until := now.Add(time.Duration(days) * 24 * time.Hour)

	tasks, err := s.tasks.ListDueBetween(ctx, now, until, models.TaskPriorityNormal, s.cfg.BatchSize)
	if err != nil {
		return s.finishRule(result, err)
	}
	result.Checked = len(tasks)

	for _, task := range tasks {
		if task.DueDate == nil {
			continue
		}
		left := task.DueDate.Sub(now).Hours()
		outcome, err := s.notifier.Notify(ctx, task.AssigneeID, NotificationInput{
			AgencyID:   task.AgencyID,
			Type:       models.NotificationNormal,
			Title:      "Task due soon",
			Message:    fmt.Sprintf("Task %q is %s", task.Title, horizonText("due", left)),
			EntityType: "task",
			EntityID:   task.ID,
			EventKey:   models.EventKey(models.EventTaskReminder, "task", task.ID, models.DayBucket(now)),
		})
		if err != nil {
			return s.finishRule(result, err)
		}
		if outcome.Created {
			result.Created++
		}
	}
	return s.finishRule(result, nil)
}

// ScanFeedbackReminders notifies owners of completed trips that still have
// no feedback after the threshold.
func (s *AutomationService) ScanFeedbackReminders(ctx context.Context, days int) (dto.ScanResult, error) {
	result := dto.ScanResult{Rule: models.EventFeedbackReminder}
	if days <= 0 {
		days = s.cfg.FeedbackReminderDays
	}
	now := s.now()
	cutoff := now.Add(-time.Duration(days) * 24 * time.Hour)

	trips, err := s.trips.ListAwaitingFeedback(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		return s.finishRule(result, err)
	}
	result.Checked = len(trips)

	for _, trip := range trips {
		if trip.CompletedAt == nil {
			continue
		}
		age := int(now.Sub(*trip.CompletedAt).Hours() / 24)
		outcome, err := s.notifier.Notify(ctx, trip.OwnerID, NotificationInput{
			AgencyID:   trip.AgencyID,
			Type:       models.NotificationNormal,
			Title:      "Request client feedback",
			Message:    fmt.Sprintf("Trip %q wrapped up %d days ago with no client feedback yet", trip.Title, age),
			EntityType: "trip",
			EntityID:   trip.ID,
			EventKey:   models.EventKey(models.EventFeedbackReminder, "trip", trip.ID, models.DayBucket(now)),
		})
		if err != nil {
			return s.finishRule(result, err)
		}
		if outcome.Created {
			result.Created++
		}
	}
	return s.finishRule(result, nil)
}

// ScanCommissions notifies owners of completed trips whose suppliers still
// owe commission, with the outstanding amounts summed per trip.
func (s *AutomationService) ScanCommissions(ctx context.Context, days int) (dto.ScanResult, error) {
	result := dto.ScanResult{Rule: models.EventCommissionFollowUp}
	if days <= 0 {
		days = s.cfg.CommissionDays
	}
	now := s.now()
	cutoff := now.Add(-time.Duration(days) * 24 * time.Hour)

	rows, err := s.trips.ListOutstandingCommissions(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		return s.finishRule(result, err)
	}
	result.Checked = len(rows)

	for _, row := range rows {
		outcome, err := s.notifier.Notify(ctx, row.OwnerID, NotificationInput{
			AgencyID:   row.AgencyID,
			Type:       models.NotificationNormal,
			Title:      "Commission follow-up",
			Message:    fmt.Sprintf("%.2f in commission is still expected on trip %q", row.Outstanding, row.Title),
			EntityType: "trip",
			EntityID:   row.ID,
			EventKey:   models.EventKey(models.EventCommissionFollowUp, "trip", row.ID, models.DayBucket(now)),
		})
		if err != nil {
			return s.finishRule(result, err)
		}
		if outcome.Created {
			result.Created++
		}
	}
	return s.finishRule(result, nil)
}

// ScanPaymentDeadlines alerts admins and the trip owner about bookings whose
// final payment comes due inside the window and is not yet fully paid.
func (s *AutomationService) ScanPaymentDeadlines(ctx context.Context, hours int) (dto.ScanResult, error) {
	result := dto.ScanResult{Rule: models.EventPaymentDeadline}
	if hours <= 0 {
		hours = s.cfg.PaymentDeadlineHours
	}
	now := s.now()
	until := now.Add(time.Duration(hours) * time.Hour)

	bookings, err := s.bookings.ListPaymentsDueBetween(ctx, now, until, s.cfg.BatchSize)
	if err != nil {
		return s.finishRule(result, err)
	}
	result.Checked = len(bookings)

	for _, booking := range bookings {
		if booking.FinalPaymentDueDate == nil {
			continue
		}
		trip, err := s.trips.GetByID(ctx, booking.AgencyID, booking.TripID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				s.logger.Warn("booking references missing trip",
					zap.String("booking_id", booking.ID), zap.String("trip_id", booking.TripID))
				continue
			}
			return s.finishRule(result, err)
		}
		if trip.Stage == models.StageCanceled {
			continue
		}
		left := booking.FinalPaymentDueDate.Sub(now).Hours()
		created, err := s.notifier.NotifyAdmins(ctx, NotificationInput{
			AgencyID:   booking.AgencyID,
			Type:       models.NotificationUrgent,
			Title:      "Payment deadline approaching",
			Message:    fmt.Sprintf("Final payment for the %s booking with %s on trip %q is %s", booking.Kind, booking.Supplier, trip.Title, horizonText("due", left)),
			EntityType: "booking",
			EntityID:   booking.ID,
			EventKey:   models.EventKey(models.EventPaymentDeadline, "booking", booking.ID, models.DayBucket(now)),
		}, trip.OwnerID)
		if err != nil {
			return s.finishRule(result, err)
		}
		result.Created += created
	}
	return s.finishRule(result, nil)
}

// ScanTravelReadiness alerts admins and the owner about trips departing
// inside the window that still have readiness gaps.
func (s *AutomationService) ScanTravelReadiness(ctx context.Context, hours int) (dto.ScanResult, error) {
	result := dto.ScanResult{Rule: models.EventTravelReadiness}
	if hours <= 0 {
		hours = s.cfg.TravelReadinessHours
	}
	now := s.now()
	until := now.Add(time.Duration(hours) * time.Hour)

	trips, err := s.trips.ListDepartingBetween(ctx, now, until, s.cfg.BatchSize)
	if err != nil {
		return s.finishRule(result, err)
	}
	result.Checked = len(trips)

	for _, trip := range trips {
		if trip.TravelStartDate == nil {
			continue
		}
		report, err := s.readiness.EvaluateTrip(ctx, trip.AgencyID, trip.ID)
		if err != nil {
			return s.finishRule(result, err)
		}
		if report.IsComplete {
			continue
		}
		left := trip.TravelStartDate.Sub(now).Hours()
		created, err := s.notifier.NotifyAdmins(ctx, NotificationInput{
			AgencyID:   trip.AgencyID,
			Type:       models.NotificationUrgent,
			Title:      "Trip not travel ready",
			Message:    fmt.Sprintf("Trip %q %s with %d readiness gaps: %s", trip.Title, horizonText("departs", left), len(report.MissingItems), gapPreview(report.MissingItems)),
			EntityType: "trip",
			EntityID:   trip.ID,
			EventKey:   models.EventKey(models.EventTravelReadiness, "trip", trip.ID, models.DayBucket(now)),
		}, trip.OwnerID)
		if err != nil {
			return s.finishRule(result, err)
		}
		result.Created += created
	}
	return s.finishRule(result, nil)
}

// GenerateDeadlineTasks creates system tasks for final payments, pre-travel
// preparation and per-booking payments. Each candidate is guarded by its
// source event: as long as an open system task for that event exists, no
// second one is created.
func (s *AutomationService) GenerateDeadlineTasks(ctx context.Context) (dto.ScanResult, error) {
	result := dto.ScanResult{Rule: ruleDeadlineTasks}
	now := s.now()

	finalDue, err := s.trips.ListFinalPaymentsDue(ctx, now.Add(time.Duration(s.cfg.FinalPaymentDays)*24*time.Hour), s.cfg.BatchSize)
	if err != nil {
		return s.finishRule(result, err)
	}
	result.Checked += len(finalDue)
	for _, trip := range finalDue {
		if trip.FinalPaymentDueDate == nil {
			continue
		}
		tripID := trip.ID
		source := models.EventKey(models.TaskSourceFinalPayment, "trip", trip.ID)
		desc := fmt.Sprintf("Final payment for %q is due %s", trip.Title, trip.FinalPaymentDueDate.UTC().Format("2006-01-02"))
		created, err := s.ensureSystemTask(ctx, &models.Task{
			AgencyID:    trip.AgencyID,
			TripID:      &tripID,
			AssigneeID:  trip.OwnerID,
			Title:       fmt.Sprintf("Collect final payment for %q", trip.Title),
			Description: &desc,
			Category:    models.TaskCategoryPayment,
			Priority:    models.TaskPriorityUrgent,
			DueDate:     trip.FinalPaymentDueDate,
			SourceEvent: &source,
		})
		if err != nil {
			return s.finishRule(result, err)
		}
		if created {
			result.Created++
		}
	}

	departing, err := s.trips.ListDepartingBetween(ctx, now, now.Add(time.Duration(s.cfg.PreTravelDays)*24*time.Hour), s.cfg.BatchSize)
	if err != nil {
		return s.finishRule(result, err)
	}
	result.Checked += len(departing)
	for _, trip := range departing {
		if trip.TravelStartDate == nil {
			continue
		}
		due := trip.TravelStartDate.AddDate(0, 0, -preTravelLeadDays)
		if due.Before(now) {
			due = *trip.TravelStartDate
		}
		tripID := trip.ID
		source := models.EventKey(models.TaskSourcePreTravel, "trip", trip.ID)
		desc := fmt.Sprintf("Confirm documents, payments and supplier confirmations before %q departs on %s", trip.Title, trip.TravelStartDate.UTC().Format("2006-01-02"))
		created, err := s.ensureSystemTask(ctx, &models.Task{
			AgencyID:    trip.AgencyID,
			TripID:      &tripID,
			AssigneeID:  trip.OwnerID,
			Title:       fmt.Sprintf("Prepare %q for departure", trip.Title),
			Description: &desc,
			Category:    models.TaskCategoryPreparation,
			Priority:    models.TaskPriorityNormal,
			DueDate:     &due,
			SourceEvent: &source,
		})
		if err != nil {
			return s.finishRule(result, err)
		}
		if created {
			result.Created++
		}
	}

	bookings, err := s.bookings.ListPaymentsDueBetween(ctx, now, now.Add(time.Duration(s.cfg.BookingPaymentDays)*24*time.Hour), s.cfg.BatchSize)
	if err != nil {
		return s.finishRule(result, err)
	}
	result.Checked += len(bookings)
	for _, booking := range bookings {
		trip, err := s.trips.GetByID(ctx, booking.AgencyID, booking.TripID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				s.logger.Warn("booking references missing trip",
					zap.String("booking_id", booking.ID), zap.String("trip_id", booking.TripID))
				continue
			}
			return s.finishRule(result, err)
		}
		if trip.Stage == models.StageCanceled {
			continue
		}
		tripID := booking.TripID
		bookingID := booking.ID
		source := models.EventKey(models.TaskSourceBookingPayment, "booking", booking.ID)
		desc := fmt.Sprintf("Payment for the %s booking with %s on trip %q", booking.Kind, booking.Supplier, trip.Title)
		created, err := s.ensureSystemTask(ctx, &models.Task{
			AgencyID:    booking.AgencyID,
			TripID:      &tripID,
			BookingID:   &bookingID,
			AssigneeID:  trip.OwnerID,
			Title:       fmt.Sprintf("Collect payment for %s booking (%s)", booking.Kind, booking.Supplier),
			Description: &desc,
			Category:    models.TaskCategoryPayment,
			Priority:    models.TaskPriorityUrgent,
			DueDate:     booking.FinalPaymentDueDate,
			SourceEvent: &source,
		})
		if err != nil {
			return s.finishRule(result, err)
		}
		if created {
			result.Created++
		}
	}
	return s.finishRule(result, nil)
}

// ensureSystemTask creates a system task unless an open one with the same
// source event already exists. The probe is only the fast path; the partial
// unique index settles concurrent generators.
func (s *AutomationService) ensureSystemTask(ctx context.Context, task *models.Task) (bool, error) {
	if task.TripID != nil && task.SourceEvent != nil {
		exists, err := s.tasks.HasOpenSystemTask(ctx, *task.TripID, *task.SourceEvent)
		if err != nil {
			return false, err
		}
		if exists {
			return false, nil
		}
	}
	created, err := s.tasks.CreateSystem(ctx, task)
	if err != nil {
		return false, err
	}
	if created && s.metrics != nil {
		s.metrics.RecordTaskGenerated()
	}
	return created, nil
}

// ReconcileOverdue relabels open tasks whose due date slipped and tells each
// assignee once per task. Runs as its own step so list queries never write.
func (s *AutomationService) ReconcileOverdue(ctx context.Context) (dto.ScanResult, error) {
	result := dto.ScanResult{Rule: models.EventTaskOverdue}
	now := s.now()

	flipped, err := s.tasks.MarkOverdue(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return s.finishRule(result, err)
	}
	result.Checked = len(flipped)

	for _, task := range flipped {
		tier := models.NotificationNormal
		if task.Priority == models.TaskPriorityUrgent {
			tier = models.NotificationUrgent
		}
		due := ""
		if task.DueDate != nil {
			due = task.DueDate.UTC().Format("2006-01-02")
		}
		outcome, err := s.notifier.Notify(ctx, task.AssigneeID, NotificationInput{
			AgencyID:   task.AgencyID,
			Type:       tier,
			Title:      "Task overdue",
			Message:    fmt.Sprintf("Task %q was due %s", task.Title, due),
			EntityType: "task",
			EntityID:   task.ID,
			EventKey:   models.EventKey(models.EventTaskOverdue, "task", task.ID),
		})
		if err != nil {
			return s.finishRule(result, err)
		}
		if outcome.Created {
			result.Created++
		}
	}
	return s.finishRule(result, nil)
}

// RunAll executes every rule in sequence with the configured defaults. A
// failing rule is recorded on its result and does not stop the rest. The
// summary is cached for the dashboard and written to the audit trail.
func (s *AutomationService) RunAll(ctx context.Context) (*dto.AutomationSummary, error) {
	started := s.now()
	summary := &dto.AutomationSummary{RanAt: started, Results: make([]dto.ScanResult, 0, 8)}

	collect := func(result dto.ScanResult, err error) {
		if err != nil {
			result.Error = err.Error()
			summary.Failed++
			s.logger.Error("automation rule failed", zap.String("rule", result.Rule), zap.Error(err))
		}
		summary.Created += result.Created
		summary.Results = append(summary.Results, result)
	}

	collect(s.ScanStaleQuotes(ctx, 0))
	collect(s.ScanTaskReminders(ctx, 0))
	collect(s.ScanFeedbackReminders(ctx, 0))
	collect(s.ScanCommissions(ctx, 0))
	collect(s.ScanPaymentDeadlines(ctx, 0))
	collect(s.ScanTravelReadiness(ctx, 0))
	collect(s.GenerateDeadlineTasks(ctx))
	collect(s.ReconcileOverdue(ctx))

	summary.Duration = s.now().Sub(started).String()

	if s.cache != nil {
		if err := s.cache.Set(ctx, automationLastRunKey, summary, automationLastRunTTL); err != nil {
			s.logger.Warn("failed to cache automation summary", zap.Error(err))
		}
	}
	s.emitRunAudit(ctx, summary)

	s.logger.Info("automation run finished",
		zap.Int("created", summary.Created),
		zap.Int("failed", summary.Failed),
		zap.String("duration", summary.Duration))
	return summary, nil
}

// LastRun returns the cached summary of the most recent aggregate run.
func (s *AutomationService) LastRun(ctx context.Context) (*dto.AutomationSummary, error) {
	if s.cache == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no automation run recorded")
	}
	var summary dto.AutomationSummary
	if err := s.cache.Get(ctx, automationLastRunKey, &summary); err != nil {
		if appErrors.FromError(err).Code == appErrors.ErrCacheMiss.Code {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no automation run recorded")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load automation summary")
	}
	return &summary, nil
}

// Automation runs are system-wide, so the audit row carries no agency and no
// user.
func (s *AutomationService) emitRunAudit(ctx context.Context, summary *dto.AutomationSummary) {
	if s.audit == nil {
		return
	}
	payload, err := json.Marshal(summary)
	if err != nil {
		s.logger.Warn("failed to encode automation summary", zap.Error(err))
		payload = nil
	}
	entry := &models.AuditLog{
		Action:    models.AuditActionAutomationRun,
		Resource:  "automation",
		NewValues: payload,
		IPAddress: "system",
		UserAgent: "automation-service",
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
