package normalizer

import (
	"context"
	"fmt"
	"time"

	"github.com/paywatch/paywatch/internal/currency"
	"github.com/paywatch/paywatch/internal/logging"
	"github.com/paywatch/paywatch/internal/models"
)

// RuleBased normalizes events from known providers using deterministic
// per-provider mappers. Registration order is significant: the first
// mapper whose CanHandle returns true wins, so an id-prefix heuristic for
// one provider cannot shadow a structurally-distinct later provider.
type RuleBased struct {
	mappers []ProviderMapper
	logger  *logging.Logger
}

// NewRuleBased builds the normalizer with the default mapper registry.
func NewRuleBased() *RuleBased {
	return NewRuleBasedWithMappers(
		StripeMapper{},
		AdyenMapper{},
		MercadoPagoMapper{},
	)
}

// NewRuleBasedWithMappers builds the normalizer with an explicit mapper
// order, for tests and custom deployments.
func NewRuleBasedWithMappers(mappers ...ProviderMapper) *RuleBased {
	return &RuleBased{
		mappers: mappers,
		logger:  logging.NewLogger("rule_normalizer"),
	}
}

// CanNormalize reports whether any mapper recognizes the event shape.
func (n *RuleBased) CanNormalize(raw map[string]interface{}) bool {
	return n.selectMapper(raw) != nil
}

func (n *RuleBased) selectMapper(raw map[string]interface{}) ProviderMapper {
	for _, m := range n.mappers {
		if m.CanHandle(raw) {
			return m
		}
	}
	return nil
}

// Normalize maps the event with the first matching mapper. Returns
// ErrNoMapper when nothing matches; an extraction failure by a matched
// mapper is a hard normalization error, not a soft miss.
func (n *RuleBased) Normalize(ctx context.Context, raw map[string]interface{}) (*models.NormalizedPaymentEvent, error) {
	start := time.Now()

	mapper := n.selectMapper(raw)
	if mapper == nil {
		return nil, ErrNoMapper
	}

	statusCategory := mapper.MapStatus(raw)
	failureReason := mapper.MapFailureReason(raw)
	fields, err := mapper.ExtractFields(raw)
	if err != nil {
		n.logger.Error("rule-based extraction failed", err, map[string]interface{}{
			"provider": mapper.Name(),
		})
		return nil, models.NewNormalizationError(
			fmt.Sprintf("%s mapper extraction failed", mapper.Name()), err)
	}

	event := models.NewEvent()
	event.Provider = mapper.Name()
	event.StatusCategory = statusCategory
	event.FailureReason = failureReason
	event.NormalizationMethod = models.MethodRuleBased
	event.ConfidenceScore = mapper.Confidence()
	event.RawData = raw

	event.MerchantName = firstNonEmpty(deref(fields.MerchantID), getString(raw, "merchant_name"), "unknown_merchant")
	event.Country = firstNonEmpty(deref(fields.CountryCode), getString(raw, "merchant_country"), "XX")
	if tid := getString(raw, "transactional_id"); tid != "" {
		event.TransactionalID = strPtr(tid)
	}

	event.Amount = fields.Amount
	event.Currency = fields.Currency
	if fields.Amount != nil && fields.Currency != nil {
		if usd, ok := currency.ToUSD(*fields.Amount, *fields.Currency); ok {
			event.AmountUSDEquivalent = floatPtr(usd)
		}
	}

	event.ProviderTransactionID = fields.ProviderTransactionID
	if status := getString(raw, "status"); status != "" {
		event.ProviderStatus = strPtr(status)
	}
	if fields.CreatedAt != nil {
		event.CreatedAt = *fields.CreatedAt
	}
	if fields.UpdatedAt != nil {
		event.UpdatedAt = *fields.UpdatedAt
	}

	event.EventMetadata = map[string]interface{}{
		"mapper_used":              mapper.Name(),
		"normalization_latency_ms": time.Since(start).Milliseconds(),
	}

	n.logger.Info("rule-based normalization successful", map[string]interface{}{
		"provider":       mapper.Name(),
		"transaction_id": deref(event.ProviderTransactionID),
		"status":         string(statusCategory),
	})

	return event, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
