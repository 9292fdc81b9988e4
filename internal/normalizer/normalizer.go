// Package normalizer turns heterogeneous raw provider payloads into
// canonical payment events. Two strategies exist: a deterministic
// rule-based path backed by per-provider mappers, and a language-model
// fallback for shapes no mapper recognizes.
package normalizer

import (
	"context"
	"errors"
	"time"

	"github.com/paywatch/paywatch/internal/models"
)

// ErrNoMapper signals that no rule-based mapper recognizes an event
// shape. It is an expected outcome of the rule path, not a failure.
var ErrNoMapper = errors.New("no rule-based mapper available for event")

// Normalizer converts a raw payload into a canonical event.
type Normalizer interface {
	CanNormalize(raw map[string]interface{}) bool
	Normalize(ctx context.Context, raw map[string]interface{}) (*models.NormalizedPaymentEvent, error)
}

// ExtractedFields are the common fields a provider mapper pulls out of a
// raw event. Nil means the payload did not carry the field.
type ExtractedFields struct {
	ProviderTransactionID *string
	MerchantID            *string
	Amount                *float64
	Currency              *string
	CountryCode           *string
	CreatedAt             *time.Time
	UpdatedAt             *time.Time
}

// ProviderMapper is a deterministic extractor for one provider's event
// shape. Confidence is a fixed constant reflecting mapper maturity.
type ProviderMapper interface {
	Name() string
	Confidence() float64
	CanHandle(raw map[string]interface{}) bool
	MapStatus(raw map[string]interface{}) models.PaymentStatus
	MapFailureReason(raw map[string]interface{}) *models.FailureReason
	ExtractFields(raw map[string]interface{}) (ExtractedFields, error)
}

// JSON-decoded payload accessors. Numbers arrive as float64 from
// encoding/json; ints can appear when payloads are built in-process.

func getString(raw map[string]interface{}, key string) string {
	v, _ := raw[key].(string)
	return v
}

func getMap(raw map[string]interface{}, key string) map[string]interface{} {
	v, _ := raw[key].(map[string]interface{})
	return v
}

func getNumber(raw map[string]interface{}, key string) (float64, bool) {
	switch v := raw[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func reasonPtr(r models.FailureReason) *models.FailureReason { return &r }
