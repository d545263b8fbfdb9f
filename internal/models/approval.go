package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ActionType identifies the guarded operation an approval request wants to
// perform. The set is closed: every type has exactly one payload shape and
// one executor.
type ActionType string

const (
	ActionConfirmBooking         ActionType = "confirm_booking"
	ActionMarkPaymentReceived    ActionType = "mark_payment_received"
	ActionChangeCommissionStatus ActionType = "change_commission_status"
	ActionStageChange            ActionType = "stage_change"
	ActionReopenTrip             ActionType = "reopen_trip"
	ActionModifyLockedTrip       ActionType = "modify_locked_trip"
)

// Valid reports whether a is a known action type.
func (a ActionType) Valid() bool {
	switch a {
	case ActionConfirmBooking, ActionMarkPaymentReceived, ActionChangeCommissionStatus,
		ActionStageChange, ActionReopenTrip, ActionModifyLockedTrip:
		return true
	}
	return false
}

// EntityType returns the kind of record the action operates on.
func (a ActionType) EntityType() string {
	switch a {
	case ActionConfirmBooking, ActionMarkPaymentReceived, ActionChangeCommissionStatus:
		return "booking"
	default:
		return "trip"
	}
}

// ApprovalStatus is the request lifecycle. execution_failed means an admin
// approved but the entity had drifted, so nothing was applied.
type ApprovalStatus string

const (
	ApprovalPending         ApprovalStatus = "pending"
	ApprovalApproved        ApprovalStatus = "approved"
	ApprovalDenied          ApprovalStatus = "denied"
	ApprovalExecutionFailed ApprovalStatus = "execution_failed"
)

// Valid reports whether s is a known approval status.
func (s ApprovalStatus) Valid() bool {
	return s == ApprovalPending || s.Resolved()
}

// Resolved reports whether the request has left the pending state.
func (s ApprovalStatus) Resolved() bool {
	return s == ApprovalApproved || s == ApprovalDenied || s == ApprovalExecutionFailed
}

// StageDrift describes a stage precondition that no longer held at execution
// time: the trip was at Expected when the request was created but had moved
// to Current by the time an admin approved it.
type StageDrift struct {
	Expected TripStage `json:"expected"`
	Current  TripStage `json:"current"`
}

// ApprovalRequest is one agent-submitted request to perform a guarded action.
// Payload holds the typed action payload as JSON; parse it with
// ParseActionPayload before acting on it.
type ApprovalRequest struct {
	ID           string          `db:"id" json:"id"`
	AgencyID     string          `db:"agency_id" json:"agencyId"`
	ActionType   ActionType      `db:"action_type" json:"actionType"`
	EntityType   string          `db:"entity_type" json:"entityType"`
	EntityID     string          `db:"entity_id" json:"entityId"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	Note         *string         `db:"note" json:"note,omitempty"`
	Status       ApprovalStatus  `db:"status" json:"status"`
	RequestedBy  string          `db:"requested_by" json:"requestedBy"`
	ResolvedBy   *string         `db:"resolved_by" json:"resolvedBy,omitempty"`
	ResponseNote *string         `db:"response_note" json:"responseNote,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
	ResolvedAt   *time.Time      `db:"resolved_at" json:"resolvedAt,omitempty"`
}

// ApprovalFilter narrows approval listings.
type ApprovalFilter struct {
	AgencyID    string
	Status      *ApprovalStatus
	ActionType  *ActionType
	RequestedBy *string
	EntityID    *string
	Page        int
	Limit       int
}

// ActionPayload is the tagged union of per-action payloads. Exactly one
// concrete type exists per ActionType.
type ActionPayload interface {
	actionPayload()
}

// ConfirmBookingPayload carries no fields: confirming a booking flips its
// status to booked.
type ConfirmBookingPayload struct{}

func (ConfirmBookingPayload) actionPayload() {}

// MarkPaymentReceivedPayload carries no fields: the booking's payment status
// moves to paid_in_full.
type MarkPaymentReceivedPayload struct{}

func (MarkPaymentReceivedPayload) actionPayload() {}

// ChangeCommissionStatusPayload moves a booking's commission tracking to
// Target.
type ChangeCommissionStatusPayload struct {
	Target CommissionStatus `json:"target"`
}

func (ChangeCommissionStatusPayload) actionPayload() {}

// StageChangePayload moves a trip from one stage to another. FromStage is a
// precondition: execution fails if the trip has drifted away from it.
type StageChangePayload struct {
	FromStage TripStage `json:"fromStage"`
	ToStage   TripStage `json:"toStage"`
}

func (StageChangePayload) actionPayload() {}

// ReopenTripPayload moves a completed trip back into an active stage.
type ReopenTripPayload struct {
	FromStage TripStage `json:"fromStage"`
	ToStage   TripStage `json:"toStage"`
}

func (ReopenTripPayload) actionPayload() {}

// FieldChange is one proposed column edit inside a modify_locked_trip
// payload. Old is informational; New is the value to write, and a nil New
// leaves the field untouched.
type FieldChange struct {
	Old *string `json:"old,omitempty"`
	New *string `json:"new,omitempty"`
}

// ModifyLockedTripPayload carries a partial set of field edits for a trip in
// a locked stage. Keys are column names from the editable set.
type ModifyLockedTripPayload struct {
	ProposedChanges map[string]FieldChange `json:"proposedChanges"`
}

func (ModifyLockedTripPayload) actionPayload() {}

// ParseActionPayload decodes and validates the payload for the given action
// type. It is the single entry point for payload handling: both submission
// and execution go through it, so a request that was accepted always parses
// again at execution time.
func ParseActionPayload(action ActionType, raw json.RawMessage) (ActionPayload, error) {
	switch action {
	case ActionConfirmBooking:
		return ConfirmBookingPayload{}, nil
	case ActionMarkPaymentReceived:
		return MarkPaymentReceivedPayload{}, nil
	case ActionChangeCommissionStatus:
		var p ChangeCommissionStatusPayload
		if err := unmarshalPayload(raw, &p); err != nil {
			return nil, err
		}
		if !p.Target.Valid() {
			return nil, fmt.Errorf("invalid commission status %q", p.Target)
		}
		return p, nil
	case ActionStageChange:
		var p StageChangePayload
		if err := unmarshalPayload(raw, &p); err != nil {
			return nil, err
		}
		if !p.FromStage.Valid() || !p.ToStage.Valid() {
			return nil, fmt.Errorf("invalid stage in %q -> %q", p.FromStage, p.ToStage)
		}
		if p.FromStage == p.ToStage {
			return nil, fmt.Errorf("stage change must move to a different stage")
		}
		return p, nil
	case ActionReopenTrip:
		var p ReopenTripPayload
		if err := unmarshalPayload(raw, &p); err != nil {
			return nil, err
		}
		if p.FromStage != StageCompleted {
			return nil, fmt.Errorf("reopen requires a completed trip, got %q", p.FromStage)
		}
		if !p.ToStage.Active() {
			return nil, fmt.Errorf("reopen target %q is not an active stage", p.ToStage)
		}
		return p, nil
	case ActionModifyLockedTrip:
		var p ModifyLockedTripPayload
		if err := unmarshalPayload(raw, &p); err != nil {
			return nil, err
		}
		if len(p.ProposedChanges) == 0 {
			return nil, fmt.Errorf("proposedChanges must not be empty")
		}
		applied := 0
		for field, change := range p.ProposedChanges {
			if !EditableTripField(field) {
				return nil, fmt.Errorf("field %q is not editable", field)
			}
			if change.New != nil {
				applied++
			}
		}
		if applied == 0 {
			return nil, fmt.Errorf("proposedChanges carries no new values")
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown action type %q", action)
	}
}

func unmarshalPayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return fmt.Errorf("payload is required")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}
