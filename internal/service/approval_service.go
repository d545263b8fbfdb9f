package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wanderdesk/wanderdesk-api/internal/dto"
	"github.com/wanderdesk/wanderdesk-api/internal/models"
	"github.com/wanderdesk/wanderdesk-api/internal/repository"
	appErrors "github.com/wanderdesk/wanderdesk-api/pkg/errors"
)

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type approvalStore interface {
	Create(ctx context.Context, req *models.ApprovalRequest) error
	HasPending(ctx context.Context, agencyID, entityType, entityID string, action models.ActionType) (bool, error)
	GetByID(ctx context.Context, agencyID, id string) (*models.ApprovalRequest, error)
	List(ctx context.Context, filter models.ApprovalFilter) ([]models.ApprovalRequest, error)
	Resolve(ctx context.Context, params repository.ResolveParams) error
}

type approvalExecutor interface {
	ApplyBookingChange(ctx context.Context, params repository.BookingChangeParams) ([]models.ChangeHistory, error)
	ApplyTripStage(ctx context.Context, params repository.TripStageParams) (*models.StageDrift, error)
	ApplyTripFields(ctx context.Context, params repository.TripFieldsParams) ([]models.ChangeHistory, error)
}

type approvalTripReader interface {
	GetByID(ctx context.Context, agencyID, id string) (*models.Trip, error)
}

type approvalBookingReader interface {
	GetByID(ctx context.Context, agencyID, id string) (*models.Booking, error)
}

type approvalNotifier interface {
	Notify(ctx context.Context, userID string, input NotificationInput) (CreateOutcome, error)
	NotifyAdmins(ctx context.Context, input NotificationInput, extra ...string) (int, error)
}

type approvalMetrics interface {
	RecordApprovalResolved(status models.ApprovalStatus)
}

// ApprovalService runs the request/approve/deny lifecycle for guarded
// actions. Preconditions are checked twice: loosely at submission so agents
// get immediate feedback, and authoritatively inside the executor's
// transaction, under a row lock, at approval time.
type ApprovalService struct {
	approvals approvalStore
	executor  approvalExecutor
	trips     approvalTripReader
	bookings  approvalBookingReader
	notifier  approvalNotifier
	audit     auditLogger
	metrics   approvalMetrics
	logger    *zap.Logger
	now       func() time.Time
}

// ApprovalOption customizes the service.
type ApprovalOption func(*ApprovalService)

// WithApprovalAudit records submit and deny decisions in the audit trail.
// Approved executions write their audit row inside the executor transaction.
func WithApprovalAudit(audit auditLogger) ApprovalOption {
	return func(s *ApprovalService) {
		s.audit = audit
	}
}

// WithApprovalMetrics wires resolution counters.
func WithApprovalMetrics(metrics approvalMetrics) ApprovalOption {
	return func(s *ApprovalService) {
		s.metrics = metrics
	}
}

// WithApprovalClock overrides the time source.
func WithApprovalClock(now func() time.Time) ApprovalOption {
	return func(s *ApprovalService) {
		s.now = now
	}
}

// NewApprovalService constructs the service.
func NewApprovalService(
	approvals approvalStore,
	executor approvalExecutor,
	trips approvalTripReader,
	bookings approvalBookingReader,
	notifier approvalNotifier,
	logger *zap.Logger,
	opts ...ApprovalOption,
) *ApprovalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ApprovalService{
		approvals: approvals,
		executor:  executor,
		trips:     trips,
		bookings:  bookings,
		notifier:  notifier,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates and files a new approval request. The typed payload is
// parsed here so malformed requests never reach an approver, and the target
// entity is loaded to reject requests that are impossible from the start.
func (s *ApprovalService) Submit(ctx context.Context, actor *models.JWTClaims, req dto.CreateApprovalRequest) (*models.ApprovalRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !req.ActionType.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown action type %q", req.ActionType))
	}
	if strings.TrimSpace(req.EntityID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "entityId is required")
	}

	payload := req.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	parsed, err := models.ParseActionPayload(req.ActionType, payload)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	if err := s.checkPreconditions(ctx, actor.AgencyID, req.EntityID, parsed); err != nil {
		return nil, err
	}

	entityType := req.ActionType.EntityType()
	pending, err := s.approvals.HasPending(ctx, actor.AgencyID, entityType, req.EntityID, req.ActionType)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check pending approvals")
	}
	if pending {
		return nil, appErrors.ErrDuplicateRequest
	}

	request := &models.ApprovalRequest{
		AgencyID:    actor.AgencyID,
		ActionType:  req.ActionType,
		EntityType:  entityType,
		EntityID:    req.EntityID,
		Payload:     payload,
		Note:        optionalString(req.Note),
		Status:      models.ApprovalPending,
		RequestedBy: actor.UserID,
	}
	if err := s.approvals.Create(ctx, request); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.ErrDuplicateRequest
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create approval request")
	}

	s.emitAudit(ctx, &models.AuditLog{
		AgencyID:   actor.AgencyID,
		UserID:     &actor.UserID,
		Action:     models.AuditActionApprovalSubmit,
		Resource:   entityType,
		ResourceID: &request.EntityID,
		NewValues:  payload,
	})

	if s.notifier != nil {
		_, err := s.notifier.NotifyAdmins(ctx, NotificationInput{
			AgencyID:   actor.AgencyID,
			Type:       models.NotificationNormal,
			Title:      "Approval requested",
			Message:    fmt.Sprintf("%s wants to %s (%s %s)", actor.FullName, actionText(req.ActionType), entityType, req.EntityID),
			EntityType: "approval",
			EntityID:   request.ID,
			EventKey:   models.EventKey(models.EventApprovalPending, "approval", request.ID),
		})
		if err != nil {
			s.logger.Warn("failed to notify admins of approval request",
				zap.String("approval_id", request.ID), zap.Error(err))
		}
	}
	return request, nil
}

// List returns approval requests for the agency. Admins see everything;
// agents only their own submissions.
func (s *ApprovalService) List(ctx context.Context, actor *models.JWTClaims, query dto.ApprovalQuery) ([]models.ApprovalRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	filter := models.ApprovalFilter{
		AgencyID: actor.AgencyID,
		Page:     query.Page,
		Limit:    query.Limit,
	}
	if query.Status != "" {
		if !query.Status.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", query.Status))
		}
		status := query.Status
		filter.Status = &status
	}
	if query.ActionType != "" {
		if !query.ActionType.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown action type %q", query.ActionType))
		}
		action := query.ActionType
		filter.ActionType = &action
	}
	if query.EntityID != "" {
		entityID := query.EntityID
		filter.EntityID = &entityID
	}
	if actor.Role != models.RoleAdmin {
		requester := actor.UserID
		filter.RequestedBy = &requester
	}

	requests, err := s.approvals.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list approval requests")
	}
	return requests, nil
}

// Get returns one request. Agents can only read their own.
func (s *ApprovalService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.ApprovalRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	request, err := s.loadRequest(ctx, actor.AgencyID, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleAdmin && request.RequestedBy != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	return request, nil
}

// Approve executes the requested action and resolves the request, all in
// one transaction owned by the executor. Stage drift is not an error: the
// request is persisted as execution_failed and the drift comes back in the
// resolution for the caller to report. An infrastructure failure rolls the
// whole unit back and leaves the request pending and retryable.
func (s *ApprovalService) Approve(ctx context.Context, actor *models.JWTClaims, id string, decision dto.ResolveApprovalRequest) (*dto.ApprovalResolution, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	request, err := s.loadRequest(ctx, actor.AgencyID, id)
	if err != nil {
		return nil, err
	}
	if request.Status != models.ApprovalPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("request is already %s", request.Status))
	}
	payload, err := models.ParseActionPayload(request.ActionType, request.Payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "stored payload is invalid")
	}

	resolvedAt := s.now()
	resolve := repository.ResolveParams{
		ID:           request.ID,
		AgencyID:     request.AgencyID,
		Status:       models.ApprovalApproved,
		ResolvedBy:   actor.UserID,
		ResponseNote: optionalString(decision.ResponseNote),
		ResolvedAt:   resolvedAt,
	}
	audit := models.AuditLog{
		AgencyID:   request.AgencyID,
		UserID:     &actor.UserID,
		Resource:   request.EntityType,
		ResourceID: &request.EntityID,
		IPAddress:  "system",
		UserAgent:  "approval-service",
	}

	resolution := &dto.ApprovalResolution{Request: request, Executed: true}

	switch p := payload.(type) {
	case models.ConfirmBookingPayload:
		status := models.BookingBooked
		changes, execErr := s.executor.ApplyBookingChange(ctx, repository.BookingChangeParams{
			Resolve:   resolve,
			BookingID: request.EntityID,
			SetStatus: &status,
			ChangedBy: actor.UserID,
			Audit:     audit,
		})
		if execErr != nil {
			return nil, s.execError(execErr)
		}
		resolution.Changes = changes
	case models.MarkPaymentReceivedPayload:
		paid := models.PaymentPaidInFull
		changes, execErr := s.executor.ApplyBookingChange(ctx, repository.BookingChangeParams{
			Resolve:          resolve,
			BookingID:        request.EntityID,
			SetPaymentStatus: &paid,
			ChangedBy:        actor.UserID,
			Audit:            audit,
		})
		if execErr != nil {
			return nil, s.execError(execErr)
		}
		resolution.Changes = changes
	case models.ChangeCommissionStatusPayload:
		target := p.Target
		changes, execErr := s.executor.ApplyBookingChange(ctx, repository.BookingChangeParams{
			Resolve:       resolve,
			BookingID:     request.EntityID,
			SetCommission: &target,
			ChangedBy:     actor.UserID,
			Audit:         audit,
		})
		if execErr != nil {
			return nil, s.execError(execErr)
		}
		resolution.Changes = changes
	case models.StageChangePayload:
		drift, execErr := s.applyStage(ctx, resolve, request, p.FromStage, p.ToStage, actor.UserID, audit)
		if execErr != nil {
			return nil, execErr
		}
		s.recordDrift(resolution, request, drift)
	case models.ReopenTripPayload:
		drift, execErr := s.applyStage(ctx, resolve, request, p.FromStage, p.ToStage, actor.UserID, audit)
		if execErr != nil {
			return nil, execErr
		}
		s.recordDrift(resolution, request, drift)
	case models.ModifyLockedTripPayload:
		updates, buildErr := buildTripFieldUpdates(p)
		if buildErr != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, buildErr.Error())
		}
		changes, execErr := s.executor.ApplyTripFields(ctx, repository.TripFieldsParams{
			Resolve:   resolve,
			TripID:    request.EntityID,
			Updates:   updates,
			ChangedBy: actor.UserID,
			Audit:     audit,
		})
		if execErr != nil {
			return nil, s.execError(execErr)
		}
		resolution.Changes = changes
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown action type %q", request.ActionType))
	}

	if resolution.Executed {
		request.Status = models.ApprovalApproved
	}
	request.ResolvedBy = &actor.UserID
	request.ResponseNote = resolve.ResponseNote
	request.ResolvedAt = &resolvedAt

	if s.metrics != nil {
		s.metrics.RecordApprovalResolved(request.Status)
	}
	s.notifyRequester(ctx, request, resolution)
	return resolution, nil
}

// Deny resolves the request without touching the target entity.
func (s *ApprovalService) Deny(ctx context.Context, actor *models.JWTClaims, id string, decision dto.ResolveApprovalRequest) (*models.ApprovalRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	request, err := s.loadRequest(ctx, actor.AgencyID, id)
	if err != nil {
		return nil, err
	}
	if request.Status != models.ApprovalPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("request is already %s", request.Status))
	}

	resolvedAt := s.now()
	note := optionalString(decision.ResponseNote)
	err = s.approvals.Resolve(ctx, repository.ResolveParams{
		ID:           request.ID,
		AgencyID:     request.AgencyID,
		Status:       models.ApprovalDenied,
		ResolvedBy:   actor.UserID,
		ResponseNote: note,
		ResolvedAt:   resolvedAt,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "request was already resolved")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deny approval request")
	}

	request.Status = models.ApprovalDenied
	request.ResolvedBy = &actor.UserID
	request.ResponseNote = note
	request.ResolvedAt = &resolvedAt

	s.emitAudit(ctx, &models.AuditLog{
		AgencyID:   request.AgencyID,
		UserID:     &actor.UserID,
		Action:     models.AuditActionApprovalDeny,
		Resource:   request.EntityType,
		ResourceID: &request.EntityID,
	})
	if s.metrics != nil {
		s.metrics.RecordApprovalResolved(models.ApprovalDenied)
	}
	s.notifyRequester(ctx, request, nil)
	return request, nil
}

func (s *ApprovalService) applyStage(ctx context.Context, resolve repository.ResolveParams, request *models.ApprovalRequest, from, to models.TripStage, actorID string, audit models.AuditLog) (*models.StageDrift, error) {
	drift, err := s.executor.ApplyTripStage(ctx, repository.TripStageParams{
		Resolve:   resolve,
		TripID:    request.EntityID,
		FromStage: from,
		ToStage:   to,
		ChangedBy: actorID,
		Audit:     audit,
	})
	if err != nil {
		return nil, s.execError(err)
	}
	return drift, nil
}

func (s *ApprovalService) recordDrift(resolution *dto.ApprovalResolution, request *models.ApprovalRequest, drift *models.StageDrift) {
	if drift == nil {
		return
	}
	resolution.Executed = false
	resolution.Drift = drift
	resolution.FailureReason = fmt.Sprintf("trip stage is %s, expected %s", drift.Current, drift.Expected)
	request.Status = models.ApprovalExecutionFailed
}

// checkPreconditions loads the target entity and rejects requests that can
// never be approved. These checks are advisory: the executor re-verifies
// under a lock.
func (s *ApprovalService) checkPreconditions(ctx context.Context, agencyID, entityID string, payload models.ActionPayload) error {
	switch p := payload.(type) {
	case models.ConfirmBookingPayload:
		booking, err := s.loadBooking(ctx, agencyID, entityID)
		if err != nil {
			return err
		}
		if booking.Status == models.BookingCanceled {
			return appErrors.Clone(appErrors.ErrPreconditionFailed, "booking is canceled")
		}
		if booking.Status == models.BookingBooked {
			return appErrors.Clone(appErrors.ErrConflict, "booking is already confirmed")
		}
	case models.MarkPaymentReceivedPayload:
		booking, err := s.loadBooking(ctx, agencyID, entityID)
		if err != nil {
			return err
		}
		if booking.Status == models.BookingCanceled {
			return appErrors.Clone(appErrors.ErrPreconditionFailed, "booking is canceled")
		}
		if booking.PaymentStatus == models.PaymentPaidInFull {
			return appErrors.Clone(appErrors.ErrConflict, "booking is already paid in full")
		}
	case models.ChangeCommissionStatusPayload:
		booking, err := s.loadBooking(ctx, agencyID, entityID)
		if err != nil {
			return err
		}
		if booking.CommissionStatus == p.Target {
			return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("commission status is already %s", p.Target))
		}
	case models.StageChangePayload:
		trip, err := s.loadTrip(ctx, agencyID, entityID)
		if err != nil {
			return err
		}
		if trip.Stage != p.FromStage {
			return appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("trip is %s, not %s", trip.Stage, p.FromStage))
		}
	case models.ReopenTripPayload:
		trip, err := s.loadTrip(ctx, agencyID, entityID)
		if err != nil {
			return err
		}
		if trip.Stage != models.StageCompleted {
			return appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("trip is %s, only completed trips can be reopened", trip.Stage))
		}
	case models.ModifyLockedTripPayload:
		trip, err := s.loadTrip(ctx, agencyID, entityID)
		if err != nil {
			return err
		}
		if !trip.Stage.Locked() {
			return appErrors.Clone(appErrors.ErrPreconditionFailed, "trip is not locked; edit it directly")
		}
		if _, err := buildTripFieldUpdates(p); err != nil {
			return appErrors.Clone(appErrors.ErrValidation, err.Error())
		}
	}
	return nil
}

func (s *ApprovalService) loadRequest(ctx context.Context, agencyID, id string) (*models.ApprovalRequest, error) {
	request, err := s.approvals.GetByID(ctx, agencyID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "approval request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approval request")
	}
	return request, nil
}

func (s *ApprovalService) loadTrip(ctx context.Context, agencyID, id string) (*models.Trip, error) {
	trip, err := s.trips.GetByID(ctx, agencyID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "trip not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load trip")
	}
	return trip, nil
}

func (s *ApprovalService) loadBooking(ctx context.Context, agencyID, id string) (*models.Booking, error) {
	booking, err := s.bookings.GetByID(ctx, agencyID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "booking not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booking")
	}
	return booking, nil
}

// execError maps executor failures. A vanished pending row or target means
// someone else won the race; everything else is an infrastructure failure
// that left the request pending.
func (s *ApprovalService) execError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrConflict, "request was already resolved or the target no longer exists")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to execute approved action")
}

func (s *ApprovalService) notifyRequester(ctx context.Context, request *models.ApprovalRequest, resolution *dto.ApprovalResolution) {
	if s.notifier == nil {
		return
	}
	title := "Approval granted"
	message := fmt.Sprintf("Your request to %s was approved and applied", actionText(request.ActionType))
	tier := models.NotificationNormal
	switch request.Status {
	case models.ApprovalDenied:
		title = "Approval denied"
		message = fmt.Sprintf("Your request to %s was denied", actionText(request.ActionType))
		if request.ResponseNote != nil && *request.ResponseNote != "" {
			message += ": " + *request.ResponseNote
		}
	case models.ApprovalExecutionFailed:
		title = "Approval could not be applied"
		tier = models.NotificationUrgent
		message = fmt.Sprintf("Your request to %s was approved but not applied", actionText(request.ActionType))
		if resolution != nil && resolution.FailureReason != "" {
			message += ": " + resolution.FailureReason
		}
	}
	_, err := s.notifier.Notify(ctx, request.RequestedBy, NotificationInput{
		AgencyID:   request.AgencyID,
		Type:       tier,
		Title:      title,
		Message:    message,
		EntityType: "approval",
		EntityID:   request.ID,
		EventKey:   models.EventKey(models.EventApprovalResolved, "approval", request.ID),
	})
	if err != nil {
		s.logger.Warn("failed to notify requester",
			zap.String("approval_id", request.ID), zap.Error(err))
	}
}

func (s *ApprovalService) emitAudit(ctx context.Context, log *models.AuditLog) {
	if s.audit == nil || log == nil {
		return
	}
	log.IPAddress = "system"
	log.UserAgent = "approval-service"
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func actionText(action models.ActionType) string {
	switch action {
	case models.ActionConfirmBooking:
		return "confirm a booking"
	case models.ActionMarkPaymentReceived:
		return "mark a payment received"
	case models.ActionChangeCommissionStatus:
		return "change a commission status"
	case models.ActionStageChange:
		return "change a trip stage"
	case models.ActionReopenTrip:
		return "reopen a trip"
	case models.ActionModifyLockedTrip:
		return "modify a locked trip"
	default:
		return string(action)
	}
}

// buildTripFieldUpdates converts proposed changes into column updates in a
// stable order. Date columns must parse as YYYY-MM-DD; entries without a new
// value are skipped.
func buildTripFieldUpdates(payload models.ModifyLockedTripPayload) ([]repository.TripFieldUpdate, error) {
	fields := make([]string, 0, len(payload.ProposedChanges))
	for field := range payload.ProposedChanges {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	updates := make([]repository.TripFieldUpdate, 0, len(fields))
	for _, field := range fields {
		change := payload.ProposedChanges[field]
		if change.New == nil {
			continue
		}
		update := repository.TripFieldUpdate{Column: field, Text: change.New}
		switch field {
		case models.TripFieldTravelStartDate, models.TripFieldTravelEndDate, models.TripFieldFinalPaymentDueDate:
			parsed, err := time.Parse("2006-01-02", *change.New)
			if err != nil {
				return nil, fmt.Errorf("field %q: invalid date %q, want YYYY-MM-DD", field, *change.New)
			}
			update.Value = parsed
		default:
			update.Value = *change.New
		}
		updates = append(updates, update)
	}
	if len(updates) == 0 {
		return nil, fmt.Errorf("proposedChanges carries no new values")
	}
	return updates, nil
}

func optionalString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}
