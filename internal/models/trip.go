package models

import "time"

// TripStage identifies where a trip sits in its lifecycle.
type TripStage string

const (
	StageInquiry   TripStage = "inquiry"
	StageQuoted    TripStage = "quoted"
	StageBooked    TripStage = "booked"
	StageTraveling TripStage = "traveling"
	StageCompleted TripStage = "completed"
	StageCanceled  TripStage = "canceled"
)

// Valid reports whether s is one of the known lifecycle stages.
func (s TripStage) Valid() bool {
	switch s {
	case StageInquiry, StageQuoted, StageBooked, StageTraveling, StageCompleted, StageCanceled:
		return true
	}
	return false
}

// Active reports whether the trip is still being worked: quoted, booked or
// traveling. Inquiry is pre-pipeline, completed and canceled are terminal.
func (s TripStage) Active() bool {
	switch s {
	case StageQuoted, StageBooked, StageTraveling:
		return true
	}
	return false
}

// Locked reports whether direct edits to the trip require an approval.
func (s TripStage) Locked() bool {
	return s == StageCompleted || s == StageCanceled
}

// Trip is the aggregate root of the back office: one client journey from
// first inquiry to completion, owned by a single agent within an agency.
type Trip struct {
	ID                  string     `db:"id" json:"id"`
	AgencyID            string     `db:"agency_id" json:"agencyId"`
	ClientID            string     `db:"client_id" json:"clientId"`
	OwnerID             string     `db:"owner_id" json:"ownerId"`
	Title               string     `db:"title" json:"title"`
	Destination         string     `db:"destination" json:"destination"`
	Stage               TripStage  `db:"stage" json:"stage"`
	TravelStartDate     *time.Time `db:"travel_start_date" json:"travelStartDate,omitempty"`
	TravelEndDate       *time.Time `db:"travel_end_date" json:"travelEndDate,omitempty"`
	QuoteSentAt         *time.Time `db:"quote_sent_at" json:"quoteSentAt,omitempty"`
	FinalPaymentDueDate *time.Time `db:"final_payment_due_date" json:"finalPaymentDueDate,omitempty"`
	CompletedAt         *time.Time `db:"completed_at" json:"completedAt,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updatedAt"`
}

// TripFilter narrows trip listings.
type TripFilter struct {
	AgencyID    string
	OwnerID     *string
	ClientID    *string
	Stage       *TripStage
	Destination *string
	Search      *string
	Page        int
	Limit       int
}

// TripFieldTitle and friends name the trip columns an approved
// modify_locked_trip action may touch.
const (
	TripFieldTitle               = "title"
	TripFieldDestination         = "destination"
	TripFieldTravelStartDate     = "travel_start_date"
	TripFieldTravelEndDate       = "travel_end_date"
	TripFieldFinalPaymentDueDate = "final_payment_due_date"
)

// EditableTripField reports whether name is a column modify_locked_trip
// approvals are allowed to change.
func EditableTripField(name string) bool {
	switch name {
	case TripFieldTitle, TripFieldDestination, TripFieldTravelStartDate,
		TripFieldTravelEndDate, TripFieldFinalPaymentDueDate:
		return true
	}
	return false
}
