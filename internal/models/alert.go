package models

import "time"

// AlertSeverity ranks how urgently an alert needs attention.
type AlertSeverity string

const (
	SeverityCritical AlertSeverity = "critical"
	SeverityWarning  AlertSeverity = "warning"
	SeverityInfo     AlertSeverity = "info"
)

// AlertType classifies the anomaly that triggered an alert.
type AlertType string

const (
	AlertProviderFailure       AlertType = "provider_failure"
	AlertProviderDegraded      AlertType = "provider_degraded"
	AlertCountryConversionDrop AlertType = "country_conversion_drop"
	AlertErrorSpike            AlertType = "error_spike"
	AlertHighErrorRate         AlertType = "high_error_rate"
)

// TimeWindow is a half-open evaluation range [Start, End).
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// MerchantImpact summarizes one merchant's health inside a window.
type MerchantImpact struct {
	MerchantName string  `json:"merchant_name"`
	TotalEvents  int     `json:"total_events"`
	SuccessRate  float64 `json:"success_rate"`
	FailedEvents int     `json:"failed_events"`
}

// CountryImpact summarizes one country's health inside a window.
type CountryImpact struct {
	Country      string  `json:"country"`
	TotalEvents  int     `json:"total_events"`
	SuccessRate  float64 `json:"success_rate"`
	FailedEvents int     `json:"failed_events"`
}

// CountryDrop describes a country's relative conversion drop between two
// adjacent windows.
type CountryDrop struct {
	Country             string  `json:"country"`
	CurrentSuccessRate  float64 `json:"current_success_rate"`
	PreviousSuccessRate float64 `json:"previous_success_rate"`
	DropPercentage      float64 `json:"drop_percentage"`
	CurrentVolume       int     `json:"current_volume"`
}

// FailureCount is one failure reason's occurrence count within a window.
type FailureCount struct {
	Reason FailureReason `json:"reason"`
	Count  int           `json:"count"`
}

// AlertEvent is a detected anomaly. Alerts are recomputed on every
// detection cycle and never persisted by the core.
type AlertEvent struct {
	Severity AlertSeverity `json:"severity"`
	Type     AlertType     `json:"type"`
	Title    string        `json:"title"`
	Message  string        `json:"message"`

	// Dimension under alarm, when the alert is provider-scoped.
	Provider string `json:"provider,omitempty"`

	// Metrics that triggered the alert.
	SuccessRate         float64          `json:"success_rate,omitempty"`
	PreviousSuccessRate float64          `json:"previous_success_rate,omitempty"`
	DropPercentage      float64          `json:"drop_percentage,omitempty"`
	TotalEvents         int              `json:"total_events,omitempty"`
	FailedEvents        int              `json:"failed_events,omitempty"`
	ErrorReason         FailureReason    `json:"error_reason,omitempty"`
	ErrorCount          int              `json:"error_count,omitempty"`
	TopFailures         []FailureCount   `json:"top_failures,omitempty"`
	MerchantsAffected   []MerchantImpact `json:"merchants_affected,omitempty"`
	CountriesAffected   []CountryImpact  `json:"countries_affected,omitempty"`
	CountryAnalysis     []CountryDrop    `json:"country_analysis,omitempty"`

	DetectedAt time.Time  `json:"detected_at"`
	Window     TimeWindow `json:"time_window"`
	// Previous window, set only for trend-comparison alerts.
	PreviousWindow *TimeWindow `json:"previous_window,omitempty"`
}

// AlertSummary aggregates one detection pass by severity and type.
type AlertSummary struct {
	TotalAlerts     int                   `json:"total_alerts"`
	BySeverity      map[AlertSeverity]int `json:"by_severity"`
	ByType          map[AlertType]int     `json:"by_type"`
	Alerts          []AlertEvent          `json:"alerts"`
	GeneratedAt     time.Time             `json:"generated_at"`
	TimeWindowHours int                   `json:"time_window_hours"`
}
