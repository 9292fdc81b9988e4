package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/paywatch/paywatch/internal/models"
)

const queryTimeout = 5 * time.Second

// Postgres is the production Store backed by lib/pq.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens a connection pool and verifies it.
func NewPostgres(dsn string, maxConnections int) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(maxConnections)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Postgres{db: db}, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// DB exposes the underlying pool for schema setup in tests.
func (p *Postgres) DB() *sql.DB {
	return p.db
}

const insertEventSQL = `
	INSERT INTO normalized_payment_events (
		id, merchant_name, provider, country, transactional_id,
		status_category, failure_reason, error_source, http_status_code,
		amount, currency, amount_usd_equivalent,
		provider_transaction_id, provider_status, latency_ms,
		normalization_method, confidence_score, raw_data, event_metadata,
		created_at, normalized_at, updated_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
`

// Save inserts one event. Events are write-once; there is no update path.
func (p *Postgres) Save(ctx context.Context, event *models.NormalizedPaymentEvent) (*models.NormalizedPaymentEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if err := event.Validate(); err != nil {
		return nil, err
	}

	rawJSON, err := json.Marshal(event.RawData)
	if err != nil {
		return nil, &models.RepositoryError{Op: "marshal raw_data", Err: err}
	}
	metaJSON := []byte("null")
	if event.EventMetadata != nil {
		metaJSON, err = json.Marshal(event.EventMetadata)
		if err != nil {
			return nil, &models.RepositoryError{Op: "marshal event_metadata", Err: err}
		}
	}

	_, err = p.db.ExecContext(ctx, insertEventSQL,
		event.ID, event.MerchantName, event.Provider, event.Country, event.TransactionalID,
		event.StatusCategory, nullableReason(event.FailureReason), nullableSource(event.ErrorSource), event.HTTPStatusCode,
		event.Amount, event.Currency, event.AmountUSDEquivalent,
		event.ProviderTransactionID, event.ProviderStatus, event.LatencyMs,
		event.NormalizationMethod, event.ConfidenceScore, rawJSON, metaJSON,
		event.CreatedAt, event.NormalizedAt, event.UpdatedAt,
	)
	if err != nil {
		return nil, &models.RepositoryError{Op: "insert event", Err: err}
	}

	return event, nil
}

const selectEventSQL = `
	SELECT id, merchant_name, provider, country, transactional_id,
		status_category, failure_reason, error_source, http_status_code,
		amount, currency, amount_usd_equivalent,
		provider_transaction_id, provider_status, latency_ms,
		normalization_method, confidence_score, raw_data, event_metadata,
		created_at, normalized_at, updated_at
	FROM normalized_payment_events
`

// GetByProviderTransactionID looks an event up by the provider's own
// transaction id; used for at-least-once dedupe. Returns (nil, nil) when
// no event matches.
func (p *Postgres) GetByProviderTransactionID(ctx context.Context, id string) (*models.NormalizedPaymentEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	row := p.db.QueryRowContext(ctx, selectEventSQL+` WHERE provider_transaction_id = $1 ORDER BY created_at DESC LIMIT 1`, id)
	event, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &models.RepositoryError{Op: "get by provider transaction id", Err: err}
	}
	return event, nil
}

// GetByFilters returns events matching the given filters, newest first.
func (p *Postgres) GetByFilters(ctx context.Context, f Filters) ([]models.NormalizedPaymentEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := selectEventSQL + ` WHERE 1=1`
	args := []interface{}{}
	n := 0
	add := func(clause string, v interface{}) {
		n++
		query += fmt.Sprintf(" AND %s = $%d", clause, n)
		args = append(args, v)
	}
	if f.Provider != "" {
		add("provider", f.Provider)
	}
	if f.Status != "" {
		add("status_category", string(f.Status))
	}
	if f.Merchant != "" {
		add("merchant_name", f.Merchant)
	}
	if f.Country != "" {
		add("country", f.Country)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", n+1, n+2)
	args = append(args, limit, f.Offset)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &models.RepositoryError{Op: "get by filters", Err: err}
	}
	defer rows.Close()

	var events []models.NormalizedPaymentEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, &models.RepositoryError{Op: "scan event", Err: err}
		}
		events = append(events, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, &models.RepositoryError{Op: "iterate events", Err: err}
	}
	return events, nil
}

// GetUnprocessed returns events whose status category stayed
// unprocessed, oldest first, for reprocessing runs.
func (p *Postgres) GetUnprocessed(ctx context.Context, limit int) ([]models.NormalizedPaymentEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx,
		selectEventSQL+` WHERE status_category = $1 ORDER BY created_at ASC LIMIT $2`,
		string(models.StatusUnprocessed), limit)
	if err != nil {
		return nil, &models.RepositoryError{Op: "get unprocessed", Err: err}
	}
	defer rows.Close()

	var events []models.NormalizedPaymentEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, &models.RepositoryError{Op: "scan event", Err: err}
		}
		events = append(events, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, &models.RepositoryError{Op: "iterate events", Err: err}
	}
	return events, nil
}

// CountByStatus counts events in a status category.
func (p *Postgres) CountByStatus(ctx context.Context, status models.PaymentStatus) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var count int
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM normalized_payment_events WHERE status_category = $1`,
		string(status)).Scan(&count)
	if err != nil {
		return 0, &models.RepositoryError{Op: "count by status", Err: err}
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(r rowScanner) (*models.NormalizedPaymentEvent, error) {
	var (
		event         models.NormalizedPaymentEvent
		id            uuid.UUID
		failureReason sql.NullString
		errorSource   sql.NullString
		rawJSON       []byte
		metaJSON      []byte
	)
	err := r.Scan(
		&id, &event.MerchantName, &event.Provider, &event.Country, &event.TransactionalID,
		&event.StatusCategory, &failureReason, &errorSource, &event.HTTPStatusCode,
		&event.Amount, &event.Currency, &event.AmountUSDEquivalent,
		&event.ProviderTransactionID, &event.ProviderStatus, &event.LatencyMs,
		&event.NormalizationMethod, &event.ConfidenceScore, &rawJSON, &metaJSON,
		&event.CreatedAt, &event.NormalizedAt, &event.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	event.ID = id
	if failureReason.Valid {
		reason := models.FailureReason(failureReason.String)
		event.FailureReason = &reason
	}
	if errorSource.Valid {
		source := models.ErrorSource(errorSource.String)
		event.ErrorSource = &source
	}
	if len(rawJSON) > 0 {
		if err := json.Unmarshal(rawJSON, &event.RawData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal raw_data: %w", err)
		}
	}
	if len(metaJSON) > 0 && string(metaJSON) != "null" {
		if err := json.Unmarshal(metaJSON, &event.EventMetadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event_metadata: %w", err)
		}
	}
	return &event, nil
}

func nullableReason(r *models.FailureReason) interface{} {
	if r == nil {
		return nil
	}
	return string(*r)
}

func nullableSource(s *models.ErrorSource) interface{} {
	if s == nil {
		return nil
	}
	return string(*s)
}

func roundRate(approved, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(approved)/float64(total)*100*100) / 100
}
