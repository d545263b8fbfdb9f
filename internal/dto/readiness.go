package dto

// ReadinessReport is the pre-departure evaluation for one trip. IsComplete
// is true only when no gaps were found; MissingItems lists every gap in
// check order, one human-readable line each.
type ReadinessReport struct {
	TripID       string   `json:"tripId"`
	IsComplete   bool     `json:"isComplete"`
	MissingItems []string `json:"missingItems"`
}
