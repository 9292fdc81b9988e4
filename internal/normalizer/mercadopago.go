package normalizer

import (
	"fmt"
	"strings"
	"time"

	"github.com/paywatch/paywatch/internal/models"
)

// MercadoPagoMapper maps MercadoPago payment resources.
type MercadoPagoMapper struct{}

func (MercadoPagoMapper) Name() string        { return "mercadopago" }
func (MercadoPagoMapper) Confidence() float64 { return 0.80 }

// CanHandle detects MercadoPago events by collector_id or payment_method_id.
func (MercadoPagoMapper) CanHandle(raw map[string]interface{}) bool {
	if _, ok := raw["collector_id"]; ok {
		return true
	}
	_, ok := raw["payment_method_id"]
	return ok
}

var mercadoPagoStatusMap = map[string]models.PaymentStatus{
	"approved":   models.StatusApproved,
	"rejected":   models.StatusFailed,
	"pending":    models.StatusPending,
	"in_process": models.StatusPending,
	"cancelled":  models.StatusCancelled,
	"refunded":   models.StatusRefunded,
}

func (MercadoPagoMapper) MapStatus(raw map[string]interface{}) models.PaymentStatus {
	if status, ok := mercadoPagoStatusMap[strings.ToLower(getString(raw, "status"))]; ok {
		return status
	}
	return models.StatusPending
}

var mercadoPagoDetailMap = map[string]models.FailureReason{
	"cc_rejected_insufficient_amount":      models.ReasonInsufficientFunds,
	"cc_rejected_bad_filled_security_code": models.ReasonInvalidCard,
	"cc_rejected_blacklist":                models.ReasonBlockedCard,
	"cc_rejected_high_risk":                models.ReasonFraudSuspected,
	"cc_rejected_call_for_authorize":       models.ReasonSecurityViolation,
}

// MapFailureReason reads status_detail, only for rejected payments.
func (MercadoPagoMapper) MapFailureReason(raw map[string]interface{}) *models.FailureReason {
	detail := strings.ToLower(getString(raw, "status_detail"))
	if detail == "" || getString(raw, "status") != "rejected" {
		return nil
	}
	if reason, ok := mercadoPagoDetailMap[detail]; ok {
		return reasonPtr(reason)
	}
	return reasonPtr(models.ReasonCardDeclined)
}

// ExtractFields reads MercadoPago's major-unit transaction_amount. The
// numeric id and collector_id are stringified.
func (MercadoPagoMapper) ExtractFields(raw map[string]interface{}) (ExtractedFields, error) {
	fields := ExtractedFields{}

	if id, ok := raw["id"]; ok {
		fields.ProviderTransactionID = strPtr(stringify(id))
	}
	if collector, ok := raw["collector_id"]; ok {
		fields.MerchantID = strPtr(stringify(collector))
	}

	if amount, ok := getNumber(raw, "transaction_amount"); ok {
		if cur := getString(raw, "currency_id"); cur != "" {
			fields.Amount = floatPtr(amount)
			fields.Currency = strPtr(strings.ToUpper(cur))
		}
	}

	if created := getString(raw, "date_created"); created != "" {
		if t, err := time.Parse(time.RFC3339, created); err == nil {
			utc := t.UTC()
			fields.CreatedAt = &utc
		}
	}
	if updated := getString(raw, "date_last_updated"); updated != "" {
		if t, err := time.Parse(time.RFC3339, updated); err == nil {
			utc := t.UTC()
			fields.UpdatedAt = &utc
		}
	}

	return fields, nil
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// JSON numbers decode as float64; MercadoPago ids are integral.
		return fmt.Sprintf("%.0f", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
