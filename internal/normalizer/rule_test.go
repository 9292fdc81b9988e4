package normalizer

import (
	"context"
	"errors"
	"testing"

	"github.com/paywatch/paywatch/internal/models"
)

func TestRuleBasedStripePaymentIntent(t *testing.T) {
	n := NewRuleBased()
	raw := map[string]interface{}{
		"object":   "payment_intent",
		"id":       "pi_1",
		"amount":   float64(5000),
		"currency": "usd",
		"status":   "succeeded",
	}

	if !n.CanNormalize(raw) {
		t.Fatal("expected stripe payload to be recognized")
	}

	event, err := n.Normalize(context.Background(), raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	if event.Provider != "stripe" {
		t.Errorf("provider = %q, want stripe", event.Provider)
	}
	if event.StatusCategory != models.StatusApproved {
		t.Errorf("status = %q, want approved", event.StatusCategory)
	}
	if event.Amount == nil || *event.Amount != 50.00 {
		t.Errorf("amount = %v, want 50.00", event.Amount)
	}
	if event.Currency == nil || *event.Currency != "USD" {
		t.Errorf("currency = %v, want USD", event.Currency)
	}
	if event.AmountUSDEquivalent == nil || *event.AmountUSDEquivalent != 50.00 {
		t.Errorf("usd equivalent = %v, want 50.00", event.AmountUSDEquivalent)
	}
	if event.NormalizationMethod != models.MethodRuleBased {
		t.Errorf("method = %q, want rule_based", event.NormalizationMethod)
	}
	if event.ConfidenceScore != 0.85 {
		t.Errorf("confidence = %v, want 0.85", event.ConfidenceScore)
	}
	if event.ProviderTransactionID == nil || *event.ProviderTransactionID != "pi_1" {
		t.Errorf("provider transaction id = %v, want pi_1", event.ProviderTransactionID)
	}
}

func TestRuleBasedNoMapper(t *testing.T) {
	n := NewRuleBased()
	raw := map[string]interface{}{
		"some_field": "some_value",
		"status":     "ok",
	}

	if n.CanNormalize(raw) {
		t.Fatal("expected unrecognized payload")
	}
	if _, err := n.Normalize(context.Background(), raw); !errors.Is(err, ErrNoMapper) {
		t.Fatalf("err = %v, want ErrNoMapper", err)
	}
}

func TestRuleBasedMissingFinancialData(t *testing.T) {
	n := NewRuleBased()

	tests := []struct {
		name string
		raw  map[string]interface{}
	}{
		{
			name: "amount without currency",
			raw: map[string]interface{}{
				"object": "payment_intent",
				"id":     "pi_2",
				"amount": float64(1200),
				"status": "failed",
			},
		},
		{
			name: "no financial data at all",
			raw: map[string]interface{}{
				"object": "payment_intent",
				"id":     "pi_3",
				"status": "failed",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := n.Normalize(context.Background(), tt.raw)
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			if event.Amount != nil {
				t.Errorf("amount = %v, want nil", *event.Amount)
			}
			if event.Currency != nil {
				t.Errorf("currency = %v, want nil", *event.Currency)
			}
			if event.AmountUSDEquivalent != nil {
				t.Errorf("usd equivalent = %v, want nil", *event.AmountUSDEquivalent)
			}
		})
	}
}

func TestRuleBasedMerchantEnrichmentFallback(t *testing.T) {
	n := NewRuleBased()
	raw := map[string]interface{}{
		"object":           "payment_intent",
		"id":               "pi_4",
		"status":           "succeeded",
		"merchant_name":    "acme-store",
		"merchant_country": "br",
		"transactional_id": "txn-77",
	}

	event, err := n.Normalize(context.Background(), raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if event.MerchantName != "acme-store" {
		t.Errorf("merchant = %q, want acme-store", event.MerchantName)
	}
	if event.Country != "br" {
		t.Errorf("country = %q, want br", event.Country)
	}
	if event.TransactionalID == nil || *event.TransactionalID != "txn-77" {
		t.Errorf("transactional id = %v, want txn-77", event.TransactionalID)
	}
}

// failingMapper matches everything and fails extraction.
type failingMapper struct{}

func (failingMapper) Name() string                                { return "broken" }
func (failingMapper) Confidence() float64                         { return 0.5 }
func (failingMapper) CanHandle(map[string]interface{}) bool       { return true }
func (failingMapper) MapStatus(map[string]interface{}) models.PaymentStatus {
	return models.StatusUnprocessed
}
func (failingMapper) MapFailureReason(map[string]interface{}) *models.FailureReason { return nil }
func (failingMapper) ExtractFields(map[string]interface{}) (ExtractedFields, error) {
	return ExtractedFields{}, errors.New("malformed payload")
}

func TestRuleBasedExtractionErrorIsHardFailure(t *testing.T) {
	n := NewRuleBasedWithMappers(failingMapper{})

	_, err := n.Normalize(context.Background(), map[string]interface{}{"any": "thing"})
	if err == nil {
		t.Fatal("expected hard failure")
	}
	if errors.Is(err, ErrNoMapper) {
		t.Fatal("extraction failure must not look like a soft miss")
	}
	var nerr *models.NormalizationError
	if !errors.As(err, &nerr) {
		t.Fatalf("err = %T, want *models.NormalizationError", err)
	}
}

func TestRuleBasedMapperPrecedence(t *testing.T) {
	n := NewRuleBased()
	// Carries both a stripe id prefix and a collector_id; registration
	// order makes stripe win.
	raw := map[string]interface{}{
		"id":           "pi_9",
		"collector_id": float64(123),
		"status":       "succeeded",
	}

	event, err := n.Normalize(context.Background(), raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if event.Provider != "stripe" {
		t.Errorf("provider = %q, want stripe (first registered match)", event.Provider)
	}
}

func TestRuleBasedIdempotentMapping(t *testing.T) {
	n := NewRuleBased()
	raw := map[string]interface{}{
		"object":       "charge",
		"id":           "ch_1",
		"amount":       float64(990),
		"currency":     "eur",
		"status":       "failed",
		"failure_code": "insufficient_funds",
	}

	first, err := n.Normalize(context.Background(), raw)
	if err != nil {
		t.Fatalf("first Normalize: %v", err)
	}
	second, err := n.Normalize(context.Background(), raw)
	if err != nil {
		t.Fatalf("second Normalize: %v", err)
	}

	if first.StatusCategory != second.StatusCategory {
		t.Errorf("status differs between runs: %q vs %q", first.StatusCategory, second.StatusCategory)
	}
	if *first.FailureReason != *second.FailureReason {
		t.Errorf("failure reason differs between runs")
	}
	if *first.Amount != *second.Amount {
		t.Errorf("amount differs between runs")
	}
}
