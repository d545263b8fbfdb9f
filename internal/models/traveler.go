package models

import "time"

// PassportStatus records what we know about a traveler's passport. "unknown"
// means the agent has not asked yet, which readiness checks treat as a gap.
type PassportStatus string

const (
	PassportYes     PassportStatus = "yes"
	PassportNo      PassportStatus = "no"
	PassportUnknown PassportStatus = "unknown"
)

// Valid reports whether s is a known passport status.
func (s PassportStatus) Valid() bool {
	switch s {
	case PassportYes, PassportNo, PassportUnknown:
		return true
	}
	return false
}

// Traveler is one person going on a trip. A trip usually carries the client
// plus companions; each needs their own documents.
type Traveler struct {
	ID             string         `db:"id" json:"id"`
	AgencyID       string         `db:"agency_id" json:"agencyId"`
	TripID         string         `db:"trip_id" json:"tripId"`
	FullName       string         `db:"full_name" json:"fullName"`
	DateOfBirth    *time.Time     `db:"date_of_birth" json:"dateOfBirth,omitempty"`
	PassportStatus PassportStatus `db:"passport_status" json:"passportStatus"`
	PassportExpiry *time.Time     `db:"passport_expiry" json:"passportExpiry,omitempty"`
	IsPrimary      bool           `db:"is_primary" json:"isPrimary"`
	CreatedAt      time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updatedAt"`
}
