package normalizer

import (
	"context"
	"strings"
	"time"

	"github.com/paywatch/paywatch/internal/ai"
	"github.com/paywatch/paywatch/internal/currency"
	"github.com/paywatch/paywatch/internal/logging"
	"github.com/paywatch/paywatch/internal/models"
)

// aiConfidence is fixed: structured extraction is considered reliable
// whenever it succeeds at all.
const aiConfidence = 0.95

// Extractor is the structured-extraction surface of the ai package.
type Extractor interface {
	Extract(ctx context.Context, raw map[string]interface{}) (*ai.Result, error)
}

// AIBased is the universal fallback normalizer: it accepts any shape and
// delegates field extraction to a language model. Fields the model does
// not find in the payload stay nil; downstream consumers must tolerate
// sparse events.
type AIBased struct {
	client Extractor
	logger *logging.Logger
}

// NewAIBased builds the normalizer around an extraction client.
func NewAIBased(client Extractor) *AIBased {
	return &AIBased{
		client: client,
		logger: logging.NewLogger("ai_normalizer"),
	}
}

// CanNormalize always returns true; the AI path is the catch-all.
func (n *AIBased) CanNormalize(raw map[string]interface{}) bool {
	return true
}

// Normalize runs structured extraction and maps the result onto the
// canonical event. Transient model failures were already retried inside
// the client; whatever error escapes here is final for this event.
func (n *AIBased) Normalize(ctx context.Context, raw map[string]interface{}) (*models.NormalizedPaymentEvent, error) {
	start := time.Now()

	result, err := n.client.Extract(ctx, raw)
	if err != nil {
		n.logger.Error("ai normalization failed", err, map[string]interface{}{
			"event_keys": keysOf(raw),
		})
		return nil, err
	}

	event := models.NewEvent()
	event.Provider = strings.ToLower(result.Provider)
	event.StatusCategory = result.StatusCategory
	event.FailureReason = result.FailureReason
	event.ErrorSource = result.ErrorSource
	event.HTTPStatusCode = result.HTTPStatusCode
	event.NormalizationMethod = models.MethodAIBased
	event.ConfidenceScore = aiConfidence
	event.RawData = raw

	if result.MerchantName != nil && *result.MerchantName != "" {
		event.MerchantName = *result.MerchantName
	} else {
		event.MerchantName = "unknown_merchant"
	}
	if result.Country != nil && *result.Country != "" {
		event.Country = strings.ToUpper(*result.Country)
	} else {
		event.Country = "XX"
	}
	if tid := getString(raw, "transactional_id"); tid != "" {
		event.TransactionalID = strPtr(tid)
	}

	event.Amount = result.Amount
	if result.Currency != nil {
		event.Currency = strPtr(strings.ToUpper(*result.Currency))
	}
	if result.Amount != nil && event.Currency != nil {
		if usd, ok := currency.ToUSD(*result.Amount, *event.Currency); ok {
			event.AmountUSDEquivalent = floatPtr(usd)
		}
	}

	event.ProviderTransactionID = result.ProviderTransactionID
	event.ProviderStatus = result.ProviderStatus
	event.LatencyMs = result.LatencyMs

	event.EventMetadata = map[string]interface{}{
		"model_used":               result.Model,
		"model_fallback":           result.Fallback,
		"normalization_latency_ms": time.Since(start).Milliseconds(),
	}

	n.logger.Info("ai normalization successful", map[string]interface{}{
		"provider":       event.Provider,
		"transaction_id": deref(event.ProviderTransactionID),
		"status":         string(event.StatusCategory),
		"model":          result.Model,
		"fallback":       result.Fallback,
	})

	return event, nil
}

func keysOf(raw map[string]interface{}) []string {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	return keys
}
