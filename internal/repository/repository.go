// Package repository persists normalized payment events in PostgreSQL and
// serves the aggregate window queries the alert engine runs. Events are
// immutable after insert, so reads need no locking beyond normal
// transactional writes.
package repository

import (
	"context"

	"github.com/paywatch/paywatch/internal/models"
)

// Filters narrows GetByFilters. Zero values mean "any".
type Filters struct {
	Provider string
	Status   models.PaymentStatus
	Merchant string
	Country  string
	Limit    int
	Offset   int
}

// Store is the write/read contract the orchestrator depends on.
type Store interface {
	Save(ctx context.Context, event *models.NormalizedPaymentEvent) (*models.NormalizedPaymentEvent, error)
	GetByProviderTransactionID(ctx context.Context, id string) (*models.NormalizedPaymentEvent, error)
	GetByFilters(ctx context.Context, f Filters) ([]models.NormalizedPaymentEvent, error)
	GetUnprocessed(ctx context.Context, limit int) ([]models.NormalizedPaymentEvent, error)
	CountByStatus(ctx context.Context, status models.PaymentStatus) (int, error)
}
