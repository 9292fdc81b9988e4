package repository

import (
	"context"
	"strconv"

	"github.com/paywatch/paywatch/internal/models"
)

// Aggregate window queries for the alert detection engine. All windows
// are half-open: created_at >= start AND created_at < end.

// ActiveProviders lists providers that produced at least one event in the
// window, highest volume first.
func (p *Postgres) ActiveProviders(ctx context.Context, win models.TimeWindow) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := p.db.QueryContext(ctx, `
		SELECT provider FROM normalized_payment_events
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY provider
		ORDER BY COUNT(*) DESC`,
		win.Start, win.End)
	if err != nil {
		return nil, &models.RepositoryError{Op: "active providers", Err: err}
	}
	defer rows.Close()

	var providers []string
	for rows.Next() {
		var provider string
		if err := rows.Scan(&provider); err != nil {
			return nil, &models.RepositoryError{Op: "scan provider", Err: err}
		}
		providers = append(providers, provider)
	}
	return providers, rows.Err()
}

// ProviderSummary computes one provider's volume and success rate.
func (p *Postgres) ProviderSummary(ctx context.Context, provider string, win models.TimeWindow) (models.WindowSummary, error) {
	return p.summary(ctx, provider, win)
}

// GlobalSummary computes the system-wide volume and success rate.
func (p *Postgres) GlobalSummary(ctx context.Context, win models.TimeWindow) (models.WindowSummary, error) {
	return p.summary(ctx, "", win)
}

func (p *Postgres) summary(ctx context.Context, provider string, win models.TimeWindow) (models.WindowSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN status_category = 'approved' THEN 1 ELSE 0 END), 0)
		FROM normalized_payment_events
		WHERE created_at >= $1 AND created_at < $2`
	args := []interface{}{win.Start, win.End}
	if provider != "" {
		query += ` AND provider = $3`
		args = append(args, provider)
	}

	var s models.WindowSummary
	if err := p.db.QueryRowContext(ctx, query, args...).Scan(&s.TotalEvents, &s.ApprovedEvents); err != nil {
		return models.WindowSummary{}, &models.RepositoryError{Op: "window summary", Err: err}
	}
	s.SuccessRate = roundRate(s.ApprovedEvents, s.TotalEvents)
	return s, nil
}

// TopFailureReasons ranks failure reasons by occurrence count in the
// window. An empty provider means all providers.
func (p *Postgres) TopFailureReasons(ctx context.Context, provider string, win models.TimeWindow, limit int) ([]models.FailureCount, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		SELECT failure_reason, COUNT(*)
		FROM normalized_payment_events
		WHERE failure_reason IS NOT NULL
			AND created_at >= $1 AND created_at < $2`
	args := []interface{}{win.Start, win.End}
	if provider != "" {
		query += ` AND provider = $3`
		args = append(args, provider)
	}
	query += ` GROUP BY failure_reason ORDER BY COUNT(*) DESC LIMIT $` + strconv.Itoa(len(args)+1)
	args = append(args, limit)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &models.RepositoryError{Op: "top failure reasons", Err: err}
	}
	defer rows.Close()

	var out []models.FailureCount
	for rows.Next() {
		var fc models.FailureCount
		if err := rows.Scan(&fc.Reason, &fc.Count); err != nil {
			return nil, &models.RepositoryError{Op: "scan failure count", Err: err}
		}
		out = append(out, fc)
	}
	return out, rows.Err()
}

// AffectedMerchants returns a provider's highest-volume merchants with
// their per-merchant success rates.
func (p *Postgres) AffectedMerchants(ctx context.Context, provider string, win models.TimeWindow, limit int) ([]models.MerchantImpact, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := p.db.QueryContext(ctx, `
		SELECT merchant_name, COUNT(*),
			COALESCE(SUM(CASE WHEN status_category = 'approved' THEN 1 ELSE 0 END), 0)
		FROM normalized_payment_events
		WHERE provider = $1 AND created_at >= $2 AND created_at < $3
		GROUP BY merchant_name
		ORDER BY COUNT(*) DESC
		LIMIT $4`,
		provider, win.Start, win.End, limit)
	if err != nil {
		return nil, &models.RepositoryError{Op: "affected merchants", Err: err}
	}
	defer rows.Close()

	var out []models.MerchantImpact
	for rows.Next() {
		var name string
		var total, approved int
		if err := rows.Scan(&name, &total, &approved); err != nil {
			return nil, &models.RepositoryError{Op: "scan merchant impact", Err: err}
		}
		out = append(out, models.MerchantImpact{
			MerchantName: name,
			TotalEvents:  total,
			SuccessRate:  roundRate(approved, total),
			FailedEvents: total - approved,
		})
	}
	return out, rows.Err()
}

// AffectedCountries returns a provider's highest-volume countries with
// their per-country success rates.
func (p *Postgres) AffectedCountries(ctx context.Context, provider string, win models.TimeWindow, limit int) ([]models.CountryImpact, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := p.db.QueryContext(ctx, `
		SELECT country, COUNT(*),
			COALESCE(SUM(CASE WHEN status_category = 'approved' THEN 1 ELSE 0 END), 0)
		FROM normalized_payment_events
		WHERE provider = $1 AND created_at >= $2 AND created_at < $3
		GROUP BY country
		ORDER BY COUNT(*) DESC
		LIMIT $4`,
		provider, win.Start, win.End, limit)
	if err != nil {
		return nil, &models.RepositoryError{Op: "affected countries", Err: err}
	}
	defer rows.Close()

	var out []models.CountryImpact
	for rows.Next() {
		var country string
		var total, approved int
		if err := rows.Scan(&country, &total, &approved); err != nil {
			return nil, &models.RepositoryError{Op: "scan country impact", Err: err}
		}
		out = append(out, models.CountryImpact{
			Country:      country,
			TotalEvents:  total,
			SuccessRate:  roundRate(approved, total),
			FailedEvents: total - approved,
		})
	}
	return out, rows.Err()
}

// CountryRates returns per-country volume and success rates across all
// providers in the window.
func (p *Postgres) CountryRates(ctx context.Context, win models.TimeWindow) ([]models.CountryRate, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := p.db.QueryContext(ctx, `
		SELECT country, COUNT(*),
			COALESCE(SUM(CASE WHEN status_category = 'approved' THEN 1 ELSE 0 END), 0)
		FROM normalized_payment_events
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY country`,
		win.Start, win.End)
	if err != nil {
		return nil, &models.RepositoryError{Op: "country rates", Err: err}
	}
	defer rows.Close()

	var out []models.CountryRate
	for rows.Next() {
		var cr models.CountryRate
		if err := rows.Scan(&cr.Country, &cr.TotalEvents, &cr.ApprovedEvents); err != nil {
			return nil, &models.RepositoryError{Op: "scan country rate", Err: err}
		}
		cr.SuccessRate = roundRate(cr.ApprovedEvents, cr.TotalEvents)
		out = append(out, cr)
	}
	return out, rows.Err()
}
