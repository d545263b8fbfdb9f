package models

import "time"

// Client is the person the agency sells to. Travelers belong to trips;
// clients own trips and receive the invoices.
type Client struct {
	ID        string    `db:"id" json:"id"`
	AgencyID  string    `db:"agency_id" json:"agencyId"`
	FullName  string    `db:"full_name" json:"fullName"`
	Email     *string   `db:"email" json:"email,omitempty"`
	Phone     *string   `db:"phone" json:"phone,omitempty"`
	Notes     *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// ClientFilter narrows client listings.
type ClientFilter struct {
	AgencyID string
	Search   *string
	Page     int
	Limit    int
}
