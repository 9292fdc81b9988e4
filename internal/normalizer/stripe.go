package normalizer

import (
	"strings"
	"time"

	"github.com/paywatch/paywatch/internal/models"
)

// StripeMapper maps Stripe payment_intent, charge and refund objects.
type StripeMapper struct{}

func (StripeMapper) Name() string        { return "stripe" }
func (StripeMapper) Confidence() float64 { return 0.85 }

// CanHandle detects Stripe events by object type or id prefix.
func (StripeMapper) CanHandle(raw map[string]interface{}) bool {
	switch getString(raw, "object") {
	case "payment_intent", "charge", "refund":
		return true
	}
	id := getString(raw, "id")
	return strings.HasPrefix(id, "pi_") || strings.HasPrefix(id, "ch_") || strings.HasPrefix(id, "re_")
}

var stripeStatusMap = map[string]models.PaymentStatus{
	"requires_payment_method": models.StatusPending,
	"requires_confirmation":   models.StatusPending,
	"requires_action":         models.StatusPending,
	"processing":              models.StatusPending,
	"succeeded":               models.StatusApproved,
	"canceled":                models.StatusCancelled,
	"failed":                  models.StatusFailed,
}

func (StripeMapper) MapStatus(raw map[string]interface{}) models.PaymentStatus {
	if status, ok := stripeStatusMap[strings.ToLower(getString(raw, "status"))]; ok {
		return status
	}
	return models.StatusPending
}

var stripeErrorMap = map[string]models.FailureReason{
	"card_declined":           models.ReasonCardDeclined,
	"insufficient_funds":      models.ReasonInsufficientFunds,
	"expired_card":            models.ReasonExpiredCard,
	"incorrect_cvc":           models.ReasonInvalidCard,
	"processing_error":        models.ReasonProviderError,
	"card_velocity_exceeded":  models.ReasonSecurityViolation,
	"fraudulent":              models.ReasonFraudSuspected,
	"authentication_required": models.ReasonSecurityViolation,
	"three_d_secure_failed":   models.ReasonSecurityViolation,
	"lost_card":               models.ReasonBlockedCard,
	"stolen_card":             models.ReasonBlockedCard,
	"blocked_card":            models.ReasonBlockedCard,
}

// MapFailureReason reads last_payment_error.code, falling back to the
// charge-level failure_code.
func (StripeMapper) MapFailureReason(raw map[string]interface{}) *models.FailureReason {
	code := ""
	if lpe := getMap(raw, "last_payment_error"); lpe != nil {
		code = getString(lpe, "code")
	} else {
		code = getString(raw, "failure_code")
	}
	if code == "" {
		return nil
	}
	if reason, ok := stripeErrorMap[code]; ok {
		return reasonPtr(reason)
	}
	return nil
}

// ExtractFields pulls the transaction id, minor-unit amount, currency and
// created timestamp. Stripe amounts are in cents.
func (StripeMapper) ExtractFields(raw map[string]interface{}) (ExtractedFields, error) {
	fields := ExtractedFields{}

	if id := getString(raw, "id"); id != "" {
		fields.ProviderTransactionID = strPtr(id)
	}

	// Amount and currency travel together; leave both nil when either is
	// missing rather than defaulting to zero.
	if cents, ok := getNumber(raw, "amount"); ok {
		if cur := getString(raw, "currency"); cur != "" {
			fields.Amount = floatPtr(cents / 100.0)
			fields.Currency = strPtr(strings.ToUpper(cur))
		}
	}

	if created, ok := getNumber(raw, "created"); ok {
		t := time.Unix(int64(created), 0).UTC()
		fields.CreatedAt = &t
		fields.UpdatedAt = &t
	}

	if md := getMap(raw, "metadata"); md != nil {
		if merchant := getString(md, "merchant_id"); merchant != "" {
			fields.MerchantID = strPtr(merchant)
		} else if merchant := getString(md, "merchant"); merchant != "" {
			fields.MerchantID = strPtr(merchant)
		}
	}

	// Stripe payment intents do not carry a country.
	return fields, nil
}
