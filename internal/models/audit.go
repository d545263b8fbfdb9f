package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionLogin           = "LOGIN"
	AuditActionLogout          = "LOGOUT"
	AuditActionPasswordChange  = "PASSWORD_CHANGE"
	AuditActionApprovalSubmit  = "APPROVAL_SUBMIT"
	AuditActionApprovalApprove = "APPROVAL_APPROVE"
	AuditActionApprovalDeny    = "APPROVAL_DENY"
	AuditActionApprovalFailed  = "APPROVAL_EXECUTION_FAILED"
	AuditActionTaskComplete    = "TASK_COMPLETE"
	AuditActionAutomationRun   = "AUTOMATION_RUN"
	AuditActionUserCreate      = "USER_CREATE"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	AgencyID   string    `db:"agency_id" json:"agencyId"`
	UserID     *string   `db:"user_id" json:"userId,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resourceId,omitempty"`
	OldValues  []byte    `db:"old_values" json:"oldValues,omitempty"`
	NewValues  []byte    `db:"new_values" json:"newValues,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ipAddress"`
	UserAgent  string    `db:"user_agent" json:"userAgent"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}
