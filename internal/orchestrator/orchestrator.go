// Package orchestrator routes raw payloads through the normalization
// chain and persists exactly one event per successful run.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/paywatch/paywatch/internal/logging"
	"github.com/paywatch/paywatch/internal/metrics"
	"github.com/paywatch/paywatch/internal/models"
	"github.com/paywatch/paywatch/internal/normalizer"
	"github.com/paywatch/paywatch/internal/repository"
)

// Orchestrator decides between deterministic and AI normalization for
// each payload. Rule-based mapping always wins when a mapper claims the
// payload; the AI path is the fallback for unrecognized shapes.
type Orchestrator struct {
	rule     normalizer.Normalizer
	ai       normalizer.Normalizer
	store    repository.Store
	archiver Archiver
	logger   *logging.Logger
}

// Archiver stores a raw payload for later audit. Optional.
type Archiver interface {
	PutPayload(ctx context.Context, eventID string, payload []byte) (string, error)
}

func New(rule, ai normalizer.Normalizer, store repository.Store) *Orchestrator {
	return &Orchestrator{
		rule:   rule,
		ai:     ai,
		store:  store,
		logger: logging.NewLogger("orchestrator"),
	}
}

// WithArchiver enables raw payload archival after persistence.
func (o *Orchestrator) WithArchiver(a Archiver) *Orchestrator {
	o.archiver = a
	return o
}

// Ingest normalizes one raw payload and persists the result. The
// providerHint is accepted for API compatibility with upstream callers
// but routing is decided by payload shape alone.
func (o *Orchestrator) Ingest(ctx context.Context, raw map[string]interface{}, providerHint string) (*models.NormalizedPaymentEvent, error) {
	_ = providerHint
	start := time.Now()

	event, err := o.normalize(ctx, raw)
	if err != nil {
		return nil, err
	}

	// The raw feed is at-least-once; a record reprocessed after a failed
	// acknowledgment must not produce a duplicate event.
	if event.ProviderTransactionID != nil {
		existing, err := o.store.GetByProviderTransactionID(ctx, *event.ProviderTransactionID)
		if err != nil {
			return nil, fmt.Errorf("dedupe lookup: %w", err)
		}
		if existing != nil {
			o.logger.Info("duplicate event skipped", map[string]interface{}{
				"provider_transaction_id": *event.ProviderTransactionID,
				"event_id":                existing.ID.String(),
			})
			return existing, nil
		}
	}

	saved, err := o.store.Save(ctx, event)
	if err != nil {
		metrics.NormalizationFailures.WithLabelValues("persist").Inc()
		o.logger.Error("failed to persist normalized event", err, map[string]interface{}{
			"event_id": event.ID.String(),
			"provider": event.Provider,
		})
		return nil, fmt.Errorf("persist event: %w", err)
	}
	event = saved

	o.archive(ctx, event, raw)

	metrics.EventsNormalized.WithLabelValues(string(event.NormalizationMethod), event.Provider).Inc()
	metrics.IngestDuration.Observe(float64(time.Since(start).Milliseconds()))
	o.logger.Info("event normalized", map[string]interface{}{
		"event_id":   event.ID.String(),
		"provider":   event.Provider,
		"method":     string(event.NormalizationMethod),
		"status":     string(event.StatusCategory),
		"confidence": event.ConfidenceScore,
	})
	return event, nil
}

// archive stores the original payload in object storage. Best effort;
// a failure is logged, never surfaced.
func (o *Orchestrator) archive(ctx context.Context, event *models.NormalizedPaymentEvent, raw map[string]interface{}) {
	if o.archiver == nil {
		return
	}
	body, err := json.Marshal(raw)
	if err != nil {
		o.logger.Warn("raw payload not archivable", map[string]interface{}{"event_id": event.ID.String()})
		return
	}
	if _, err := o.archiver.PutPayload(ctx, event.ID.String(), body); err != nil {
		o.logger.Warn("raw payload archive failed", map[string]interface{}{
			"event_id": event.ID.String(),
			"error":    err.Error(),
		})
	}
}

func (o *Orchestrator) normalize(ctx context.Context, raw map[string]interface{}) (*models.NormalizedPaymentEvent, error) {
	if o.rule.CanNormalize(raw) {
		event, err := o.rule.Normalize(ctx, raw)
		if err == nil {
			return event, nil
		}
		if !errors.Is(err, normalizer.ErrNoMapper) {
			metrics.NormalizationFailures.WithLabelValues("rule").Inc()
			return nil, fmt.Errorf("rule-based normalization: %w", err)
		}
		// A mapper claimed the payload and then declined to map it.
		// Fall through to the AI path.
		o.logger.Warn("rule mapper declined claimed payload")
	}

	event, err := o.ai.Normalize(ctx, raw)
	if err != nil {
		metrics.NormalizationFailures.WithLabelValues("ai").Inc()
		return nil, fmt.Errorf("ai normalization: %w", err)
	}
	return event, nil
}
