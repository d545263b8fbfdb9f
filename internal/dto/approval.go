package dto

import (
	"encoding/json"

	"github.com/wanderdesk/wanderdesk-api/internal/models"
)

// CreateApprovalRequest payload for submitting a guarded action for review.
type CreateApprovalRequest struct {
	ActionType models.ActionType `json:"actionType"`
	EntityID   string            `json:"entityId"`
	Payload    json.RawMessage   `json:"payload"`
	Note       string            `json:"note"`
}

// ResolveApprovalRequest captures the admin decision and optional note.
type ResolveApprovalRequest struct {
	ResponseNote string `json:"responseNote"`
}

// ApprovalQuery mirrors supported listing filters.
type ApprovalQuery struct {
	Status     models.ApprovalStatus
	ActionType models.ActionType
	EntityID   string
	Page       int
	Limit      int
}

// ApprovalResolution is the outcome of an approve call, returned inline.
// When the entity drifted between submission and approval, Executed is
// false, Drift carries the expected versus current stage, and the request's
// status is execution_failed. Changes lists the field-level history rows the
// executor actually wrote.
type ApprovalResolution struct {
	Request       *models.ApprovalRequest `json:"request"`
	Executed      bool                    `json:"executed"`
	FailureReason string                  `json:"failureReason,omitempty"`
	Drift         *models.StageDrift      `json:"drift,omitempty"`
	Changes       []models.ChangeHistory  `json:"changes,omitempty"`
}
