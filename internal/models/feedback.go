package models

import "time"

// Feedback is a post-trip survey response from the client. The feedback
// reminder rule looks for completed trips with no row here.
type Feedback struct {
	ID        string    `db:"id" json:"id"`
	AgencyID  string    `db:"agency_id" json:"agencyId"`
	TripID    string    `db:"trip_id" json:"tripId"`
	Rating    int       `db:"rating" json:"rating"`
	Comments  *string   `db:"comments" json:"comments,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
