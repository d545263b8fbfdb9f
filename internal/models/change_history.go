package models

import "time"

// ChangeHistory is one field-level change applied to an entity by an
// approved action. Executors write one row per field in the same
// transaction as the change itself, so history never disagrees with the
// data.
type ChangeHistory struct {
	ID         string    `db:"id" json:"id"`
	AgencyID   string    `db:"agency_id" json:"agencyId"`
	EntityType string    `db:"entity_type" json:"entityType"`
	EntityID   string    `db:"entity_id" json:"entityId"`
	Field      string    `db:"field" json:"field"`
	OldValue   *string   `db:"old_value" json:"oldValue,omitempty"`
	NewValue   *string   `db:"new_value" json:"newValue,omitempty"`
	ChangedBy  string    `db:"changed_by" json:"changedBy"`
	ApprovalID *string   `db:"approval_id" json:"approvalId,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}
