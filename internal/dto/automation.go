package dto

import "time"

// ScanResult reports one automation rule pass: how many candidate rows the
// rule examined and how many notifications or tasks it actually created
// after deduplication.
type ScanResult struct {
	Rule    string `json:"rule"`
	Checked int    `json:"checked"`
	Created int    `json:"created"`
	Error   string `json:"error,omitempty"`
}

// AutomationSummary aggregates a full automation run across all rules.
type AutomationSummary struct {
	RanAt    time.Time    `json:"ranAt"`
	Duration string       `json:"duration"`
	Results  []ScanResult `json:"results"`
	Created  int          `json:"created"`
	Failed   int          `json:"failed"`
}
