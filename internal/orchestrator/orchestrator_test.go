package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/paywatch/paywatch/internal/models"
	"github.com/paywatch/paywatch/internal/normalizer"
	"github.com/paywatch/paywatch/internal/repository"
)

// fakeNormalizer records calls and returns a canned event or error.
type fakeNormalizer struct {
	canNormalize bool
	event        *models.NormalizedPaymentEvent
	err          error
	calls        int
}

func (f *fakeNormalizer) CanNormalize(raw map[string]interface{}) bool {
	return f.canNormalize
}

func (f *fakeNormalizer) Normalize(ctx context.Context, raw map[string]interface{}) (*models.NormalizedPaymentEvent, error) {
	f.calls++
	return f.event, f.err
}

// fakeStore records saves in memory.
type fakeStore struct {
	saved    []*models.NormalizedPaymentEvent
	existing map[string]*models.NormalizedPaymentEvent
	saveErr  error
}

func (f *fakeStore) Save(ctx context.Context, event *models.NormalizedPaymentEvent) (*models.NormalizedPaymentEvent, error) {
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	f.saved = append(f.saved, event)
	return event, nil
}

func (f *fakeStore) GetByProviderTransactionID(ctx context.Context, id string) (*models.NormalizedPaymentEvent, error) {
	return f.existing[id], nil
}

func (f *fakeStore) GetByFilters(ctx context.Context, _ repository.Filters) ([]models.NormalizedPaymentEvent, error) {
	return nil, nil
}

func (f *fakeStore) GetUnprocessed(ctx context.Context, _ int) ([]models.NormalizedPaymentEvent, error) {
	return nil, nil
}

func (f *fakeStore) CountByStatus(ctx context.Context, _ models.PaymentStatus) (int, error) {
	return len(f.saved), nil
}

func ruleEvent() *models.NormalizedPaymentEvent {
	e := models.NewEvent()
	e.Provider = "stripe"
	e.StatusCategory = models.StatusApproved
	e.NormalizationMethod = models.MethodRuleBased
	e.ConfidenceScore = 0.85
	return e
}

func aiEvent() *models.NormalizedPaymentEvent {
	e := models.NewEvent()
	e.Provider = "unknown_gateway"
	e.StatusCategory = models.StatusFailed
	e.NormalizationMethod = models.MethodAIBased
	e.ConfidenceScore = 0.95
	return e
}

func TestIngestPrefersRuleBased(t *testing.T) {
	rule := &fakeNormalizer{canNormalize: true, event: ruleEvent()}
	aiNorm := &fakeNormalizer{canNormalize: true, event: aiEvent()}
	store := &fakeStore{}

	event, err := New(rule, aiNorm, store).Ingest(context.Background(), map[string]interface{}{"id": "pi_1"}, "")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if aiNorm.calls != 0 {
		t.Errorf("ai normalizer called %d times, want 0 when a mapper matches", aiNorm.calls)
	}
	if event.NormalizationMethod != models.MethodRuleBased {
		t.Errorf("method = %q, want rule_based", event.NormalizationMethod)
	}
	if len(store.saved) != 1 {
		t.Errorf("saved %d events, want exactly 1", len(store.saved))
	}
}

func TestIngestFallsBackToAI(t *testing.T) {
	rule := &fakeNormalizer{canNormalize: false}
	aiNorm := &fakeNormalizer{canNormalize: true, event: aiEvent()}
	store := &fakeStore{}

	event, err := New(rule, aiNorm, store).Ingest(context.Background(), map[string]interface{}{"weird": true}, "")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if rule.calls != 0 {
		t.Errorf("rule normalizer called %d times on an unclaimed payload", rule.calls)
	}
	if aiNorm.calls != 1 {
		t.Errorf("ai normalizer called %d times, want 1", aiNorm.calls)
	}
	if event.NormalizationMethod != models.MethodAIBased {
		t.Errorf("method = %q, want ai_based", event.NormalizationMethod)
	}
}

func TestIngestRuleHardFailureDoesNotFallBack(t *testing.T) {
	rule := &fakeNormalizer{
		canNormalize: true,
		err:          models.NewNormalizationError("stripe mapper extraction failed", errors.New("boom")),
	}
	aiNorm := &fakeNormalizer{canNormalize: true, event: aiEvent()}
	store := &fakeStore{}

	_, err := New(rule, aiNorm, store).Ingest(context.Background(), map[string]interface{}{"id": "pi_1"}, "")
	if err == nil {
		t.Fatal("expected error")
	}
	if aiNorm.calls != 0 {
		t.Error("a matched mapper's extraction failure must not be retried via AI")
	}
	if len(store.saved) != 0 {
		t.Errorf("saved %d events on failure, want 0", len(store.saved))
	}
}

func TestIngestSoftMissFromClaimedPayloadFallsBack(t *testing.T) {
	rule := &fakeNormalizer{canNormalize: true, err: normalizer.ErrNoMapper}
	aiNorm := &fakeNormalizer{canNormalize: true, event: aiEvent()}
	store := &fakeStore{}

	event, err := New(rule, aiNorm, store).Ingest(context.Background(), map[string]interface{}{"id": "x"}, "")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if aiNorm.calls != 1 {
		t.Errorf("ai normalizer called %d times, want 1", aiNorm.calls)
	}
	if event.NormalizationMethod != models.MethodAIBased {
		t.Errorf("method = %q, want ai_based", event.NormalizationMethod)
	}
}

func TestIngestPersistFailureSurfaces(t *testing.T) {
	rule := &fakeNormalizer{canNormalize: true, event: ruleEvent()}
	store := &fakeStore{saveErr: &models.RepositoryError{Op: "save event", Err: errors.New("connection reset")}}

	_, err := New(rule, &fakeNormalizer{}, store).Ingest(context.Background(), map[string]interface{}{"id": "pi_1"}, "")
	if err == nil {
		t.Fatal("expected persistence failure to surface")
	}
	var rerr *models.RepositoryError
	if !errors.As(err, &rerr) {
		t.Fatalf("err = %T, want wrapped *models.RepositoryError", err)
	}
}

func TestIngestDeduplicatesByProviderTransactionID(t *testing.T) {
	existing := ruleEvent()
	txn := "pi_dup"
	existing.ProviderTransactionID = &txn

	fresh := ruleEvent()
	fresh.ProviderTransactionID = &txn

	rule := &fakeNormalizer{canNormalize: true, event: fresh}
	store := &fakeStore{existing: map[string]*models.NormalizedPaymentEvent{txn: existing}}

	event, err := New(rule, &fakeNormalizer{}, store).Ingest(context.Background(), map[string]interface{}{"id": "pi_dup"}, "")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if len(store.saved) != 0 {
		t.Errorf("saved %d events for a duplicate, want 0", len(store.saved))
	}
	if event.ID != existing.ID {
		t.Error("expected the previously persisted event back")
	}
}
