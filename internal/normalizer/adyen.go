package normalizer

import (
	"strings"

	"github.com/paywatch/paywatch/internal/models"
)

// AdyenMapper maps Adyen payment notifications.
type AdyenMapper struct{}

func (AdyenMapper) Name() string        { return "adyen" }
func (AdyenMapper) Confidence() float64 { return 0.80 }

// CanHandle detects Adyen events by pspReference or additionalData.
func (AdyenMapper) CanHandle(raw map[string]interface{}) bool {
	if _, ok := raw["pspReference"]; ok {
		return true
	}
	if ad := getMap(raw, "additionalData"); ad != nil {
		return getString(ad, "paymentMethod") != ""
	}
	return false
}

var adyenResultMap = map[string]models.PaymentStatus{
	"authorised": models.StatusApproved,
	"refused":    models.StatusFailed,
	"error":      models.StatusFailed,
	"cancelled":  models.StatusCancelled,
	"pending":    models.StatusPending,
	"received":   models.StatusPending,
}

func (AdyenMapper) MapStatus(raw map[string]interface{}) models.PaymentStatus {
	if status, ok := adyenResultMap[strings.ToLower(getString(raw, "resultCode"))]; ok {
		return status
	}
	return models.StatusPending
}

// MapFailureReason classifies Adyen's free-text refusalReason by keyword;
// Adyen publishes 200+ codes, unknown ones fall back to card_declined.
func (AdyenMapper) MapFailureReason(raw map[string]interface{}) *models.FailureReason {
	refusal := strings.ToLower(getString(raw, "refusalReason"))
	if refusal == "" {
		return nil
	}

	switch {
	case strings.Contains(refusal, "fraud"), strings.Contains(refusal, "security"):
		return reasonPtr(models.ReasonFraudSuspected)
	case strings.Contains(refusal, "insufficient"):
		return reasonPtr(models.ReasonInsufficientFunds)
	case strings.Contains(refusal, "expired"):
		return reasonPtr(models.ReasonExpiredCard)
	case strings.Contains(refusal, "cvc"), strings.Contains(refusal, "cvv"):
		return reasonPtr(models.ReasonInvalidCard)
	case strings.Contains(refusal, "3d"), strings.Contains(refusal, "3ds"):
		return reasonPtr(models.ReasonSecurityViolation)
	default:
		return reasonPtr(models.ReasonCardDeclined)
	}
}

// ExtractFields reads Adyen's nested amount {"currency": "...", "value": N}
// where value is in minor units.
func (AdyenMapper) ExtractFields(raw map[string]interface{}) (ExtractedFields, error) {
	fields := ExtractedFields{}

	if psp := getString(raw, "pspReference"); psp != "" {
		fields.ProviderTransactionID = strPtr(psp)
	}
	if merchant := getString(raw, "merchantReference"); merchant != "" {
		fields.MerchantID = strPtr(merchant)
	}

	if amountData := getMap(raw, "amount"); amountData != nil {
		if value, ok := getNumber(amountData, "value"); ok {
			if cur := getString(amountData, "currency"); cur != "" {
				fields.Amount = floatPtr(value / 100.0)
				fields.Currency = strPtr(strings.ToUpper(cur))
			}
		}
	}

	if country := getString(raw, "countryCode"); len(country) == 2 {
		fields.CountryCode = strPtr(strings.ToUpper(country))
	}

	return fields, nil
}
