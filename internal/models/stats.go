package models

// WindowSummary is the aggregate health of a slice of events in a window.
// SuccessRate is a percentage (0-100).
type WindowSummary struct {
	TotalEvents    int     `json:"total_events"`
	ApprovedEvents int     `json:"approved_events"`
	SuccessRate    float64 `json:"success_rate"`
}

// CountryRate is one country's volume and success rate inside a window.
type CountryRate struct {
	Country        string  `json:"country"`
	TotalEvents    int     `json:"total_events"`
	ApprovedEvents int     `json:"approved_events"`
	SuccessRate    float64 `json:"success_rate"`
}
