package repository

import (
	"context"

	"github.com/paywatch/paywatch/internal/models"
)

// Schema creates the normalized events table and the indexes the query
// and alerting paths rely on. Applied by deployment tooling and by the
// integration tests.
const Schema = `
CREATE TABLE IF NOT EXISTS normalized_payment_events (
	id UUID PRIMARY KEY,
	merchant_name TEXT NOT NULL,
	provider TEXT NOT NULL,
	country CHAR(2) NOT NULL,
	transactional_id TEXT,
	status_category TEXT NOT NULL,
	failure_reason TEXT,
	error_source TEXT,
	http_status_code INT,
	amount DOUBLE PRECISION,
	currency CHAR(3),
	amount_usd_equivalent DOUBLE PRECISION,
	provider_transaction_id TEXT,
	provider_status TEXT,
	latency_ms INT,
	normalization_method TEXT NOT NULL,
	confidence_score DOUBLE PRECISION NOT NULL,
	raw_data JSONB NOT NULL DEFAULT '{}',
	event_metadata JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL,
	normalized_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_provider_status
	ON normalized_payment_events (provider, status_category);
CREATE INDEX IF NOT EXISTS idx_events_merchant_country
	ON normalized_payment_events (merchant_name, country);
CREATE INDEX IF NOT EXISTS idx_events_created_at
	ON normalized_payment_events (created_at);
CREATE INDEX IF NOT EXISTS idx_events_transactional_id
	ON normalized_payment_events (transactional_id);
CREATE INDEX IF NOT EXISTS idx_events_provider_txn
	ON normalized_payment_events (provider_transaction_id);
CREATE INDEX IF NOT EXISTS idx_events_error_analysis
	ON normalized_payment_events (error_source, failure_reason, status_category);
`

// Migrate applies the schema. Idempotent.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, Schema); err != nil {
		return &models.RepositoryError{Op: "migrate", Err: err}
	}
	return nil
}
