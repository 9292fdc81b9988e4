// Package datalake reads raw provider payloads from the ingestion
// store and marks them processed once the pipeline has persisted a
// normalized event for them.
package datalake

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/paywatch/paywatch/internal/models"
)

const queryTimeout = 5 * time.Second

// Source is the raw event feed the background worker drains.
type Source interface {
	// GetUnprocessedBatch returns up to limit unprocessed records,
	// oldest first.
	GetUnprocessedBatch(ctx context.Context, limit int) ([]models.RawIngestionRecord, error)
	// MarkProcessed acknowledges records in a single statement.
	MarkProcessed(ctx context.Context, ids []string) error
}

// Postgres reads raw ingestion records from the data lake database.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string, maxConnections int) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open data lake connection: %w", err)
	}

	db.SetMaxOpenConns(maxConnections)
	db.SetMaxIdleConns(maxConnections / 2)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping data lake: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS raw_ingestion_records (
	id UUID PRIMARY KEY,
	payload JSONB NOT NULL,
	is_processed BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_raw_unprocessed
	ON raw_ingestion_records (created_at) WHERE is_processed = FALSE;
`

// Migrate applies the raw record schema. Idempotent.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return &models.RepositoryError{Op: "migrate data lake", Err: err}
	}
	return nil
}

func (p *Postgres) GetUnprocessedBatch(ctx context.Context, limit int) ([]models.RawIngestionRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := p.db.QueryContext(ctx, `
		SELECT id, payload, is_processed, created_at
		FROM raw_ingestion_records
		WHERE is_processed = FALSE
		ORDER BY created_at ASC
		LIMIT $1`,
		limit)
	if err != nil {
		return nil, &models.RepositoryError{Op: "fetch unprocessed batch", Err: err}
	}
	defer rows.Close()

	var records []models.RawIngestionRecord
	for rows.Next() {
		var rec models.RawIngestionRecord
		var payload []byte
		if err := rows.Scan(&rec.ID, &payload, &rec.Processed, &rec.CreatedAt); err != nil {
			return nil, &models.RepositoryError{Op: "scan raw record", Err: err}
		}
		if err := json.Unmarshal(payload, &rec.Payload); err != nil {
			return nil, &models.RepositoryError{Op: "decode raw payload", Err: err}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (p *Postgres) MarkProcessed(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if _, err := p.db.ExecContext(ctx, `
		UPDATE raw_ingestion_records
		SET is_processed = TRUE
		WHERE id = ANY($1)`,
		pq.Array(ids)); err != nil {
		return &models.RepositoryError{Op: "mark processed", Err: err}
	}
	return nil
}

// Insert stores a raw payload for later processing. Used by ingestion
// endpoints and test fixtures.
func (p *Postgres) Insert(ctx context.Context, payload models.RawPayload) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	id := uuid.NewString()
	body, err := json.Marshal(payload)
	if err != nil {
		return "", &models.RepositoryError{Op: "encode raw payload", Err: err}
	}
	if _, err := p.db.ExecContext(ctx, `
		INSERT INTO raw_ingestion_records (id, payload, is_processed, created_at)
		VALUES ($1, $2, FALSE, NOW())`,
		id, body); err != nil {
		return "", &models.RepositoryError{Op: "insert raw record", Err: err}
	}
	return id, nil
}
