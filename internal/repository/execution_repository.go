package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/wanderdesk/wanderdesk-api/internal/models"
)

// ExecutionRepository applies approved actions. Each Apply method runs one
// transaction covering the whole unit: lock the target row, verify the
// recorded precondition, mutate, write the change-history and audit rows,
// and flip the approval status. Nothing is observable half-applied.
//
// A failed stage precondition is not an error: the transaction still
// commits, persisting the approval as execution_failed, and the drift
// detail is returned for the caller to report.
type ExecutionRepository struct {
	db *sqlx.DB
}

// NewExecutionRepository constructs the repository.
func NewExecutionRepository(db *sqlx.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

// BookingChangeParams carries an unconditional booking field update.
type BookingChangeParams struct {
	Resolve          ResolveParams
	BookingID        string
	SetStatus        *models.BookingStatus
	SetPaymentStatus *models.PaymentStatus
	SetCommission    *models.CommissionStatus
	ChangedBy        string
	Audit            models.AuditLog
}

// ApplyBookingChange locks the booking, applies the requested field
// updates, records history for fields that actually changed and resolves
// the approval, all in one transaction.
func (r *ExecutionRepository) ApplyBookingChange(ctx context.Context, params BookingChangeParams) ([]models.ChangeHistory, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin booking execution: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var booking models.Booking
	lockQuery := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1 AND agency_id = $2 FOR UPDATE`
	if err = tx.GetContext(ctx, &booking, lockQuery, params.BookingID, params.Resolve.AgencyID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	setParts := []string{"updated_at = $1"}
	args := []interface{}{now}
	var history []models.ChangeHistory

	record := func(field, oldValue, newValue string) {
		if oldValue == newValue {
			return
		}
		history = append(history, models.ChangeHistory{
			AgencyID:   params.Resolve.AgencyID,
			EntityType: "booking",
			EntityID:   booking.ID,
			Field:      field,
			OldValue:   &oldValue,
			NewValue:   &newValue,
			ChangedBy:  params.ChangedBy,
			ApprovalID: &params.Resolve.ID,
		})
	}

	if params.SetStatus != nil {
		args = append(args, *params.SetStatus)
		setParts = append(setParts, fmt.Sprintf("status = $%d", len(args)))
		record("status", string(booking.Status), string(*params.SetStatus))
	}
	if params.SetPaymentStatus != nil {
		args = append(args, *params.SetPaymentStatus)
		setParts = append(setParts, fmt.Sprintf("payment_status = $%d", len(args)))
		record("payment_status", string(booking.PaymentStatus), string(*params.SetPaymentStatus))
	}
	if params.SetCommission != nil {
		args = append(args, *params.SetCommission)
		setParts = append(setParts, fmt.Sprintf("commission_status = $%d", len(args)))
		record("commission_status", string(booking.CommissionStatus), string(*params.SetCommission))
	}

	args = append(args, booking.ID)
	updateQuery := fmt.Sprintf("UPDATE bookings SET %s WHERE id = $%d", strings.Join(setParts, ", "), len(args))
	if _, err = tx.ExecContext(ctx, updateQuery, args...); err != nil {
		return nil, fmt.Errorf("apply booking change: %w", err)
	}

	if err = insertHistoryTx(ctx, tx, history); err != nil {
		return nil, err
	}
	audit := params.Audit
	audit.Action = models.AuditActionApprovalApprove
	if audit.NewValues == nil {
		audit.NewValues, _ = json.Marshal(history)
	}
	if err = insertAuditTx(ctx, tx, audit); err != nil {
		return nil, err
	}
	if err = resolveTx(ctx, tx, params.Resolve, models.ApprovalApproved); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit booking execution: %w", err)
	}
	return history, nil
}

// TripStageParams carries a guarded stage transition.
type TripStageParams struct {
	Resolve   ResolveParams
	TripID    string
	FromStage models.TripStage
	ToStage   models.TripStage
	ChangedBy string
	Audit     models.AuditLog
}

// ApplyTripStage locks the trip and compares its stage to the one recorded
// at request time. On a match it applies the transition and resolves the
// approval as approved; on drift it resolves it as execution_failed and
// returns the drift, leaving the trip untouched. Both outcomes commit.
func (r *ExecutionRepository) ApplyTripStage(ctx context.Context, params TripStageParams) (*models.StageDrift, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin stage execution: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current struct {
		Stage models.TripStage `db:"stage"`
	}
	const lockQuery = `SELECT stage FROM trips WHERE id = $1 AND agency_id = $2 FOR UPDATE`
	if err = tx.GetContext(ctx, &current, lockQuery, params.TripID, params.Resolve.AgencyID); err != nil {
		return nil, err
	}

	if current.Stage != params.FromStage {
		drift := &models.StageDrift{Expected: params.FromStage, Current: current.Stage}
		audit := params.Audit
		audit.Action = models.AuditActionApprovalFailed
		audit.NewValues, _ = json.Marshal(drift)
		if err = insertAuditTx(ctx, tx, audit); err != nil {
			return nil, err
		}
		if err = resolveTx(ctx, tx, params.Resolve, models.ApprovalExecutionFailed); err != nil {
			return nil, err
		}
		if err = tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit failed stage execution: %w", err)
		}
		return drift, nil
	}

	now := time.Now().UTC()
	var completedAt *time.Time
	if params.ToStage == models.StageCompleted {
		completedAt = &now
	}
	const updateQuery = `UPDATE trips SET stage = $1, completed_at = $2, updated_at = $3 WHERE id = $4`
	if _, err = tx.ExecContext(ctx, updateQuery, params.ToStage, completedAt, now, params.TripID); err != nil {
		return nil, fmt.Errorf("apply stage change: %w", err)
	}

	oldStage := string(params.FromStage)
	newStage := string(params.ToStage)
	history := []models.ChangeHistory{{
		AgencyID:   params.Resolve.AgencyID,
		EntityType: "trip",
		EntityID:   params.TripID,
		Field:      "stage",
		OldValue:   &oldStage,
		NewValue:   &newStage,
		ChangedBy:  params.ChangedBy,
		ApprovalID: &params.Resolve.ID,
	}}
	if err = insertHistoryTx(ctx, tx, history); err != nil {
		return nil, err
	}
	audit := params.Audit
	audit.Action = models.AuditActionApprovalApprove
	audit.NewValues, _ = json.Marshal(map[string]string{"stage": newStage})
	if err = insertAuditTx(ctx, tx, audit); err != nil {
		return nil, err
	}
	if err = resolveTx(ctx, tx, params.Resolve, models.ApprovalApproved); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit stage execution: %w", err)
	}
	return nil, nil
}

// TripFieldUpdate is one column write for a locked-trip modification. Value
// is the driver-level value; Text is its history representation.
type TripFieldUpdate struct {
	Column string
	Value  interface{}
	Text   *string
}

// TripFieldsParams carries a modify_locked_trip execution.
type TripFieldsParams struct {
	Resolve   ResolveParams
	TripID    string
	Updates   []TripFieldUpdate
	ChangedBy string
	Audit     models.AuditLog
}

// ApplyTripFields locks the trip and applies a partial set of column
// updates, recording one history row per applied field with the old value
// read under the lock.
func (r *ExecutionRepository) ApplyTripFields(ctx context.Context, params TripFieldsParams) ([]models.ChangeHistory, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin field execution: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var trip models.Trip
	lockQuery := `SELECT ` + tripColumns + ` FROM trips WHERE id = $1 AND agency_id = $2 FOR UPDATE`
	if err = tx.GetContext(ctx, &trip, lockQuery, params.TripID, params.Resolve.AgencyID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	setParts := []string{"updated_at = $1"}
	args := []interface{}{now}
	history := make([]models.ChangeHistory, 0, len(params.Updates))

	for _, update := range params.Updates {
		if !models.EditableTripField(update.Column) {
			err = fmt.Errorf("field %q is not editable", update.Column)
			return nil, err
		}
		args = append(args, update.Value)
		setParts = append(setParts, fmt.Sprintf("%s = $%d", update.Column, len(args)))
		history = append(history, models.ChangeHistory{
			AgencyID:   params.Resolve.AgencyID,
			EntityType: "trip",
			EntityID:   trip.ID,
			Field:      update.Column,
			OldValue:   tripFieldText(&trip, update.Column),
			NewValue:   update.Text,
			ChangedBy:  params.ChangedBy,
			ApprovalID: &params.Resolve.ID,
		})
	}

	args = append(args, trip.ID)
	updateQuery := fmt.Sprintf("UPDATE trips SET %s WHERE id = $%d", strings.Join(setParts, ", "), len(args))
	if _, err = tx.ExecContext(ctx, updateQuery, args...); err != nil {
		return nil, fmt.Errorf("apply trip fields: %w", err)
	}

	if err = insertHistoryTx(ctx, tx, history); err != nil {
		return nil, err
	}
	audit := params.Audit
	audit.Action = models.AuditActionApprovalApprove
	audit.NewValues, _ = json.Marshal(history)
	if err = insertAuditTx(ctx, tx, audit); err != nil {
		return nil, err
	}
	if err = resolveTx(ctx, tx, params.Resolve, models.ApprovalApproved); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit field execution: %w", err)
	}
	return history, nil
}

// tripFieldText renders the current value of an editable trip column for
// the history row.
func tripFieldText(trip *models.Trip, column string) *string {
	formatDate := func(t *time.Time) *string {
		if t == nil {
			return nil
		}
		s := t.UTC().Format("2006-01-02")
		return &s
	}
	switch column {
	case models.TripFieldTitle:
		s := trip.Title
		return &s
	case models.TripFieldDestination:
		s := trip.Destination
		return &s
	case models.TripFieldTravelStartDate:
		return formatDate(trip.TravelStartDate)
	case models.TripFieldTravelEndDate:
		return formatDate(trip.TravelEndDate)
	case models.TripFieldFinalPaymentDueDate:
		return formatDate(trip.FinalPaymentDueDate)
	}
	return nil
}

const insertHistoryQuery = `INSERT INTO change_history (id, agency_id, entity_type, entity_id, field, old_value, new_value, changed_by, approval_id, created_at)
	VALUES (:id, :agency_id, :entity_type, :entity_id, :field, :old_value, :new_value, :changed_by, :approval_id, :created_at)`

func insertHistoryTx(ctx context.Context, tx *sqlx.Tx, rows []models.ChangeHistory) error {
	now := time.Now().UTC()
	for i := range rows {
		if rows[i].ID == "" {
			rows[i].ID = uuid.NewString()
		}
		if rows[i].CreatedAt.IsZero() {
			rows[i].CreatedAt = now
		}
		if _, err := tx.NamedExecContext(ctx, insertHistoryQuery, rows[i]); err != nil {
			return fmt.Errorf("insert change history: %w", err)
		}
	}
	return nil
}

func insertAuditTx(ctx context.Context, tx *sqlx.Tx, log models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, agency_id, user_id, action, resource, resource_id, old_values, new_values, ip_address, user_agent, created_at)
	VALUES (:id, :agency_id, :user_id, :action, :resource, :resource_id, :old_values, :new_values, :ip_address, :user_agent, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func resolveTx(ctx context.Context, tx *sqlx.Tx, params ResolveParams, status models.ApprovalStatus) error {
	const query = `UPDATE approval_requests SET status = :status, resolved_by = :resolved_by, response_note = :response_note, resolved_at = :resolved_at
	WHERE id = :id AND agency_id = :agency_id AND status = 'pending'`
	result, err := tx.NamedExecContext(ctx, query, map[string]interface{}{
		"id":            params.ID,
		"agency_id":     params.AgencyID,
		"status":        status,
		"resolved_by":   params.ResolvedBy,
		"response_note": params.ResponseNote,
		"resolved_at":   params.ResolvedAt,
	})
	if err != nil {
		return fmt.Errorf("resolve approval in execution: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check execution resolve rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
