package models

import "time"

// BookingStatus tracks a booking component's own lifecycle, which can lag or
// lead the parent trip's stage.
type BookingStatus string

const (
	BookingPlanned  BookingStatus = "planned"
	BookingQuoted   BookingStatus = "quoted"
	BookingBooked   BookingStatus = "booked"
	BookingCanceled BookingStatus = "canceled"
)

// Valid reports whether s is a known booking status.
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingPlanned, BookingQuoted, BookingBooked, BookingCanceled:
		return true
	}
	return false
}

// PaymentStatus tracks how much of a booking has been paid.
type PaymentStatus string

const (
	PaymentNotPaid     PaymentStatus = "not_paid"
	PaymentDepositPaid PaymentStatus = "deposit_paid"
	PaymentPaidInFull  PaymentStatus = "paid_in_full"
)

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentNotPaid, PaymentDepositPaid, PaymentPaidInFull:
		return true
	}
	return false
}

// CommissionStatus tracks whether the agency's commission on a booking has
// been collected from the supplier.
type CommissionStatus string

const (
	CommissionExpected CommissionStatus = "expected"
	CommissionReceived CommissionStatus = "received"
	CommissionWaived   CommissionStatus = "waived"
)

// Valid reports whether s is a known commission status.
func (s CommissionStatus) Valid() bool {
	switch s {
	case CommissionExpected, CommissionReceived, CommissionWaived:
		return true
	}
	return false
}

// Booking kinds name the component type. Stored as free text with these as
// the conventional set.
const (
	BookingKindFlight    = "flight"
	BookingKindHotel     = "hotel"
	BookingKindCruise    = "cruise"
	BookingKindTour      = "tour"
	BookingKindTransfer  = "transfer"
	BookingKindInsurance = "insurance"
	BookingKindOther     = "other"
)

// Booking is one sellable component of a trip: a flight, hotel stay, cruise
// cabin and so on, with its own supplier, payment and commission tracking.
type Booking struct {
	ID                  string           `db:"id" json:"id"`
	AgencyID            string           `db:"agency_id" json:"agencyId"`
	TripID              string           `db:"trip_id" json:"tripId"`
	Kind                string           `db:"kind" json:"kind"`
	Supplier            string           `db:"supplier" json:"supplier"`
	ConfirmationNumber  *string          `db:"confirmation_number" json:"confirmationNumber,omitempty"`
	Status              BookingStatus    `db:"status" json:"status"`
	PaymentStatus       PaymentStatus    `db:"payment_status" json:"paymentStatus"`
	CommissionStatus    CommissionStatus `db:"commission_status" json:"commissionStatus"`
	TotalPrice          *float64         `db:"total_price" json:"totalPrice,omitempty"`
	CommissionAmount    *float64         `db:"commission_amount" json:"commissionAmount,omitempty"`
	DepositDueDate      *time.Time       `db:"deposit_due_date" json:"depositDueDate,omitempty"`
	FinalPaymentDueDate *time.Time       `db:"final_payment_due_date" json:"finalPaymentDueDate,omitempty"`
	CreatedAt           time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt           time.Time        `db:"updated_at" json:"updatedAt"`
}

// BookingFilter narrows booking listings.
type BookingFilter struct {
	AgencyID      string
	TripID        *string
	Status        *BookingStatus
	PaymentStatus *PaymentStatus
	Page          int
	Limit         int
}
