// Package alerts evaluates the normalized event stream for operational
// anomalies: provider outages, regional conversion drops and error
// spikes. The engine is stateless; every detection pass recomputes its
// windows from the store.
package alerts

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/paywatch/paywatch/internal/logging"
	"github.com/paywatch/paywatch/internal/metrics"
	"github.com/paywatch/paywatch/internal/models"
)

// Detection thresholds. Success rates are percentages in [0, 100].
const (
	criticalSuccessRate = 60.0
	warningSuccessRate  = 80.0
	healthySuccessRate  = 95.0

	conversionDropPct  = 20.0
	countryDropFloor   = 5.0
	criticalErrorCount = 50
	warningErrorCount  = 20
)

// Stats is the read-only aggregate view of the event store the engine
// consumes. Implemented by repository.Postgres.
type Stats interface {
	ActiveProviders(ctx context.Context, win models.TimeWindow) ([]string, error)
	ProviderSummary(ctx context.Context, provider string, win models.TimeWindow) (models.WindowSummary, error)
	GlobalSummary(ctx context.Context, win models.TimeWindow) (models.WindowSummary, error)
	TopFailureReasons(ctx context.Context, provider string, win models.TimeWindow, limit int) ([]models.FailureCount, error)
	AffectedMerchants(ctx context.Context, provider string, win models.TimeWindow, limit int) ([]models.MerchantImpact, error)
	AffectedCountries(ctx context.Context, provider string, win models.TimeWindow, limit int) ([]models.CountryImpact, error)
	CountryRates(ctx context.Context, win models.TimeWindow) ([]models.CountryRate, error)
}

// Engine runs the sub-detectors and unions their alerts.
type Engine struct {
	stats  Stats
	logger *logging.Logger
	now    func() time.Time
}

func NewEngine(stats Stats) *Engine {
	return &Engine{
		stats:  stats,
		logger: logging.NewLogger("alerts"),
		now:    time.Now,
	}
}

// DetectAll evaluates every sub-detector over [now - windowHours, now)
// and returns the union: provider alerts first, then country alerts,
// then error alerts, then the system status info alert.
func (e *Engine) DetectAll(ctx context.Context, windowHours int) ([]models.AlertEvent, error) {
	now := e.now().UTC()
	win := models.TimeWindow{Start: now.Add(-time.Duration(windowHours) * time.Hour), End: now}

	var alerts []models.AlertEvent

	providerAlerts, err := e.detectProviderHealth(ctx, win)
	if err != nil {
		return nil, err
	}
	alerts = append(alerts, providerAlerts...)

	countryAlerts, err := e.detectConversionDrop(ctx, win)
	if err != nil {
		return nil, err
	}
	alerts = append(alerts, countryAlerts...)

	errorAlerts, err := e.detectErrorSpike(ctx, win)
	if err != nil {
		return nil, err
	}
	alerts = append(alerts, errorAlerts...)

	systemAlerts, err := e.detectSystemHealth(ctx, win)
	if err != nil {
		return nil, err
	}
	alerts = append(alerts, systemAlerts...)

	for _, a := range alerts {
		metrics.AlertsEmitted.WithLabelValues(string(a.Severity), string(a.Type)).Inc()
	}
	e.logger.Info("detection pass complete", map[string]interface{}{
		"window_hours": windowHours,
		"alerts":       len(alerts),
	})
	return alerts, nil
}

func (e *Engine) detectProviderHealth(ctx context.Context, win models.TimeWindow) ([]models.AlertEvent, error) {
	providers, err := e.stats.ActiveProviders(ctx, win)
	if err != nil {
		return nil, fmt.Errorf("list active providers: %w", err)
	}

	var alerts []models.AlertEvent
	for _, provider := range providers {
		summary, err := e.stats.ProviderSummary(ctx, provider, win)
		if err != nil {
			return nil, fmt.Errorf("summarize provider %s: %w", provider, err)
		}
		if summary.TotalEvents == 0 {
			continue
		}

		switch {
		case summary.SuccessRate < criticalSuccessRate:
			alert, err := e.providerAlert(ctx, provider, summary, win, models.SeverityCritical)
			if err != nil {
				return nil, err
			}
			alerts = append(alerts, alert)
		case summary.SuccessRate < warningSuccessRate:
			alert, err := e.providerAlert(ctx, provider, summary, win, models.SeverityWarning)
			if err != nil {
				return nil, err
			}
			alerts = append(alerts, alert)
		}
	}
	return alerts, nil
}

// detectSystemHealth runs last and reports an info-level status when the
// system as a whole is healthy.
func (e *Engine) detectSystemHealth(ctx context.Context, win models.TimeWindow) ([]models.AlertEvent, error) {
	global, err := e.stats.GlobalSummary(ctx, win)
	if err != nil {
		return nil, fmt.Errorf("global summary: %w", err)
	}
	if global.TotalEvents == 0 || global.SuccessRate < healthySuccessRate {
		return nil, nil
	}
	return []models.AlertEvent{{
		Severity:    models.SeverityInfo,
		Type:        models.AlertHighErrorRate,
		Title:       "Payment system operating normally",
		Message:     fmt.Sprintf("Global success rate is %.2f%% across %d events", global.SuccessRate, global.TotalEvents),
		SuccessRate: global.SuccessRate,
		TotalEvents: global.TotalEvents,
		DetectedAt:  e.now().UTC(),
		Window:      win,
	}}, nil
}

func (e *Engine) providerAlert(ctx context.Context, provider string, summary models.WindowSummary, win models.TimeWindow, severity models.AlertSeverity) (models.AlertEvent, error) {
	merchantLimit := 3
	if severity == models.SeverityCritical {
		merchantLimit = 5
	}

	merchants, err := e.stats.AffectedMerchants(ctx, provider, win, merchantLimit)
	if err != nil {
		return models.AlertEvent{}, fmt.Errorf("affected merchants for %s: %w", provider, err)
	}
	failures, err := e.stats.TopFailureReasons(ctx, provider, win, 3)
	if err != nil {
		return models.AlertEvent{}, fmt.Errorf("top failures for %s: %w", provider, err)
	}

	alert := models.AlertEvent{
		Severity:          severity,
		Type:              models.AlertProviderDegraded,
		Title:             fmt.Sprintf("Provider %s degraded", provider),
		Message:           fmt.Sprintf("Provider %s success rate dropped to %.2f%% (%d of %d events approved)", provider, summary.SuccessRate, summary.ApprovedEvents, summary.TotalEvents),
		Provider:          provider,
		SuccessRate:       summary.SuccessRate,
		TotalEvents:       summary.TotalEvents,
		FailedEvents:      summary.TotalEvents - summary.ApprovedEvents,
		TopFailures:       failures,
		MerchantsAffected: merchants,
		DetectedAt:        e.now().UTC(),
		Window:            win,
	}
	if severity == models.SeverityCritical {
		alert.Type = models.AlertProviderFailure
		alert.Title = fmt.Sprintf("Provider %s failing", provider)
		countries, err := e.stats.AffectedCountries(ctx, provider, win, 5)
		if err != nil {
			return models.AlertEvent{}, fmt.Errorf("affected countries for %s: %w", provider, err)
		}
		alert.CountriesAffected = countries
	}
	return alert, nil
}

func (e *Engine) detectConversionDrop(ctx context.Context, win models.TimeWindow) ([]models.AlertEvent, error) {
	length := win.End.Sub(win.Start)
	prev := models.TimeWindow{Start: win.Start.Add(-length), End: win.Start}

	current, err := e.stats.GlobalSummary(ctx, win)
	if err != nil {
		return nil, fmt.Errorf("current window summary: %w", err)
	}
	previous, err := e.stats.GlobalSummary(ctx, prev)
	if err != nil {
		return nil, fmt.Errorf("previous window summary: %w", err)
	}
	if previous.TotalEvents == 0 || previous.SuccessRate == 0 {
		return nil, nil
	}

	drop := relativeDrop(previous.SuccessRate, current.SuccessRate)
	if drop <= conversionDropPct {
		return nil, nil
	}

	analysis, err := e.countryAnalysis(ctx, win, prev)
	if err != nil {
		return nil, err
	}

	return []models.AlertEvent{{
		Severity:            models.SeverityCritical,
		Type:                models.AlertCountryConversionDrop,
		Title:               "Conversion rate drop detected",
		Message:             fmt.Sprintf("Global success rate fell %.2f%% relative to the previous window (%.2f%% -> %.2f%%)", drop, previous.SuccessRate, current.SuccessRate),
		SuccessRate:         current.SuccessRate,
		PreviousSuccessRate: previous.SuccessRate,
		DropPercentage:      drop,
		TotalEvents:         current.TotalEvents,
		CountryAnalysis:     analysis,
		DetectedAt:          e.now().UTC(),
		Window:              win,
		PreviousWindow:      &prev,
	}}, nil
}

// countryAnalysis ranks countries present in both windows by relative
// success-rate drop, keeping only drops above the inclusion floor.
func (e *Engine) countryAnalysis(ctx context.Context, win, prev models.TimeWindow) ([]models.CountryDrop, error) {
	currentRates, err := e.stats.CountryRates(ctx, win)
	if err != nil {
		return nil, fmt.Errorf("current country rates: %w", err)
	}
	previousRates, err := e.stats.CountryRates(ctx, prev)
	if err != nil {
		return nil, fmt.Errorf("previous country rates: %w", err)
	}

	prevByCountry := make(map[string]models.CountryRate, len(previousRates))
	for _, cr := range previousRates {
		prevByCountry[cr.Country] = cr
	}

	var drops []models.CountryDrop
	for _, cur := range currentRates {
		before, ok := prevByCountry[cur.Country]
		if !ok || before.TotalEvents == 0 || before.SuccessRate == 0 {
			continue
		}
		drop := relativeDrop(before.SuccessRate, cur.SuccessRate)
		if drop <= countryDropFloor {
			continue
		}
		drops = append(drops, models.CountryDrop{
			Country:             cur.Country,
			CurrentSuccessRate:  cur.SuccessRate,
			PreviousSuccessRate: before.SuccessRate,
			DropPercentage:      drop,
			CurrentVolume:       cur.TotalEvents,
		})
	}

	sort.SliceStable(drops, func(i, j int) bool {
		return drops[i].DropPercentage > drops[j].DropPercentage
	})
	return drops, nil
}

func (e *Engine) detectErrorSpike(ctx context.Context, win models.TimeWindow) ([]models.AlertEvent, error) {
	failures, err := e.stats.TopFailureReasons(ctx, "", win, 5)
	if err != nil {
		return nil, fmt.Errorf("rank failure reasons: %w", err)
	}
	if len(failures) == 0 {
		return nil, nil
	}

	top := failures[0]
	var severity models.AlertSeverity
	switch {
	case top.Count > criticalErrorCount:
		severity = models.SeverityCritical
	case top.Count > warningErrorCount:
		severity = models.SeverityWarning
	default:
		return nil, nil
	}

	return []models.AlertEvent{{
		Severity:    severity,
		Type:        models.AlertErrorSpike,
		Title:       fmt.Sprintf("Error spike: %s", top.Reason),
		Message:     fmt.Sprintf("Failure reason %s occurred %d times in the window", top.Reason, top.Count),
		ErrorReason: top.Reason,
		ErrorCount:  top.Count,
		TopFailures: failures,
		DetectedAt:  e.now().UTC(),
		Window:      win,
	}}, nil
}

// TopIssues orders alerts for triage: critical strictly before warning
// before info, preserving detection order within a severity.
func TopIssues(alerts []models.AlertEvent, limit int) []models.AlertEvent {
	ranked := make([]models.AlertEvent, len(alerts))
	copy(ranked, alerts)
	sort.SliceStable(ranked, func(i, j int) bool {
		return severityRank(ranked[i].Severity) < severityRank(ranked[j].Severity)
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

func severityRank(s models.AlertSeverity) int {
	switch s {
	case models.SeverityCritical:
		return 0
	case models.SeverityWarning:
		return 1
	default:
		return 2
	}
}

// Summary runs one detection pass and aggregates the results by
// severity and type.
func (e *Engine) Summary(ctx context.Context, windowHours int) (models.AlertSummary, error) {
	alerts, err := e.DetectAll(ctx, windowHours)
	if err != nil {
		return models.AlertSummary{}, err
	}

	summary := models.AlertSummary{
		TotalAlerts:     len(alerts),
		BySeverity:      make(map[models.AlertSeverity]int),
		ByType:          make(map[models.AlertType]int),
		Alerts:          alerts,
		GeneratedAt:     e.now().UTC(),
		TimeWindowHours: windowHours,
	}
	for _, a := range alerts {
		summary.BySeverity[a.Severity]++
		summary.ByType[a.Type]++
	}
	return summary, nil
}

// relativeDrop returns how far current fell below previous, as a
// percentage of previous, rounded to 2 decimals. Negative results mean
// an improvement.
func relativeDrop(previous, current float64) float64 {
	drop := (previous - current) / previous * 100
	return math.Round(drop*100) / 100
}
