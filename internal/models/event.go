package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PaymentStatus is the normalized status category of a payment event.
type PaymentStatus string

const (
	StatusApproved    PaymentStatus = "approved"
	StatusFailed      PaymentStatus = "failed"
	StatusPending     PaymentStatus = "pending"
	StatusCancelled   PaymentStatus = "cancelled"
	StatusRefunded    PaymentStatus = "refunded"
	StatusUnprocessed PaymentStatus = "unprocessed"
)

// FailureReason is the closed set of normalized failure causes.
type FailureReason string

const (
	// Bank / card issues
	ReasonInsufficientFunds FailureReason = "insufficient_funds"
	ReasonCardDeclined      FailureReason = "card_declined"
	ReasonExpiredCard       FailureReason = "expired_card"
	ReasonInvalidCard       FailureReason = "invalid_card"
	ReasonBankDecline       FailureReason = "bank_decline"

	// Security / fraud
	ReasonFraudSuspected    FailureReason = "fraud_suspected"
	ReasonSecurityViolation FailureReason = "security_violation"
	ReasonBlockedCard       FailureReason = "blocked_card"

	// Technical
	ReasonNetworkError  FailureReason = "network_error"
	ReasonTimeout       FailureReason = "timeout"
	ReasonProviderError FailureReason = "provider_error"
	ReasonSystemError   FailureReason = "system_error"

	// Merchant / configuration
	ReasonInvalidMerchant    FailureReason = "invalid_merchant"
	ReasonMerchantNotActive  FailureReason = "merchant_not_active"
	ReasonConfigurationError FailureReason = "configuration_error"

	// Transaction
	ReasonDuplicateTransaction FailureReason = "duplicate_transaction"
	ReasonAmountExceeded       FailureReason = "amount_exceeded"
	ReasonInvalidCurrency      FailureReason = "invalid_currency"

	ReasonUnknown       FailureReason = "unknown"
	ReasonNotApplicable FailureReason = "not_applicable"
)

// ErrorSource identifies who caused a failure, for root-cause analysis.
type ErrorSource string

const (
	SourceProvider ErrorSource = "provider"
	SourceMerchant ErrorSource = "merchant"
	SourceCustomer ErrorSource = "customer"
	SourceSystem   ErrorSource = "system"
	SourceNetwork  ErrorSource = "network"
	SourceUnknown  ErrorSource = "unknown"
)

// NormalizationMethod records how an event was normalized.
type NormalizationMethod string

const (
	MethodRuleBased NormalizationMethod = "rule_based"
	MethodAIBased   NormalizationMethod = "ai_based"
	MethodHybrid    NormalizationMethod = "hybrid"
	MethodManual    NormalizationMethod = "manual"
	MethodFallback  NormalizationMethod = "fallback"
)

// NormalizedPaymentEvent is the canonical payment event shape. Events are
// created once by a normalizer, persisted once by the orchestrator, and
// never mutated afterwards.
type NormalizedPaymentEvent struct {
	ID uuid.UUID `json:"id" db:"id"`

	// Core payment fields
	MerchantName    string  `json:"merchant_name" db:"merchant_name"`
	Provider        string  `json:"provider" db:"provider"`
	Country         string  `json:"country" db:"country"`
	TransactionalID *string `json:"transactional_id,omitempty" db:"transactional_id"`

	// Status
	StatusCategory PaymentStatus  `json:"status_category" db:"status_category"`
	FailureReason  *FailureReason `json:"failure_reason,omitempty" db:"failure_reason"`
	ErrorSource    *ErrorSource   `json:"error_source,omitempty" db:"error_source"`
	HTTPStatusCode *int           `json:"http_status_code,omitempty" db:"http_status_code"`

	// Financial. Many failure events carry no financial data, so amount and
	// currency are both optional; an amount without a currency is invalid.
	Amount              *float64 `json:"amount,omitempty" db:"amount"`
	Currency            *string  `json:"currency,omitempty" db:"currency"`
	AmountUSDEquivalent *float64 `json:"amount_usd_equivalent,omitempty" db:"amount_usd_equivalent"`

	// Provider details
	ProviderTransactionID *string `json:"provider_transaction_id,omitempty" db:"provider_transaction_id"`
	ProviderStatus        *string `json:"provider_status,omitempty" db:"provider_status"`
	LatencyMs             *int    `json:"latency_ms,omitempty" db:"latency_ms"`

	// Normalization metadata
	NormalizationMethod NormalizationMethod    `json:"normalization_method" db:"normalization_method"`
	ConfidenceScore     float64                `json:"confidence_score" db:"confidence_score"`
	RawData             map[string]interface{} `json:"raw_data" db:"raw_data"`
	EventMetadata       map[string]interface{} `json:"event_metadata,omitempty" db:"event_metadata"`

	// Timestamps
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	NormalizedAt time.Time `json:"normalized_at" db:"normalized_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// NewEvent returns an event with identity and timestamps initialized.
func NewEvent() *NormalizedPaymentEvent {
	now := time.Now().UTC()
	return &NormalizedPaymentEvent{
		ID:            uuid.New(),
		RawData:       map[string]interface{}{},
		EventMetadata: map[string]interface{}{},
		CreatedAt:     now,
		NormalizedAt:  now,
		UpdatedAt:     now,
	}
}

// Validate checks the event's structural invariants before persistence.
func (e *NormalizedPaymentEvent) Validate() error {
	if e.MerchantName == "" {
		return &ValidationError{Field: "merchant_name", Reason: "cannot be empty"}
	}
	if e.Provider == "" {
		return &ValidationError{Field: "provider", Reason: "cannot be empty"}
	}
	if len(e.Country) != 2 {
		return &ValidationError{Field: "country", Reason: "must be an ISO 3166-1 alpha-2 code"}
	}
	switch e.StatusCategory {
	case StatusApproved, StatusFailed, StatusPending, StatusCancelled, StatusRefunded, StatusUnprocessed:
	default:
		return &ValidationError{Field: "status_category", Reason: "unknown status category"}
	}
	if e.Amount != nil && e.Currency == nil {
		return &ValidationError{Field: "currency", Reason: "required when amount is present"}
	}
	if e.Currency != nil && len(*e.Currency) != 3 {
		return &ValidationError{Field: "currency", Reason: "must be an ISO 4217 code"}
	}
	if e.HTTPStatusCode != nil && (*e.HTTPStatusCode < 100 || *e.HTTPStatusCode > 599) {
		return &ValidationError{Field: "http_status_code", Reason: "must be between 100 and 599"}
	}
	if e.ConfidenceScore < 0 || e.ConfidenceScore > 1 {
		return &ValidationError{Field: "confidence_score", Reason: "must be within [0,1]"}
	}
	if e.NormalizationMethod == "" {
		return &ValidationError{Field: "normalization_method", Reason: "cannot be empty"}
	}
	return nil
}

// ToJSON serializes the event.
func (e *NormalizedPaymentEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}
