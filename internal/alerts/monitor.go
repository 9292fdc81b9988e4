package alerts

import (
	"context"
	"sync"
	"time"

	"github.com/paywatch/paywatch/internal/logging"
	"github.com/paywatch/paywatch/internal/models"
)

// Sender delivers one alert to an external channel.
type Sender interface {
	SendAlert(ctx context.Context, alert models.AlertEvent) (string, error)
}

// Monitor runs detection passes on a fixed interval and forwards every
// critical and warning alert to the sender. Informational alerts are
// logged only.
type Monitor struct {
	engine      *Engine
	sender      Sender
	interval    time.Duration
	windowHours int
	logger      *logging.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMonitor(engine *Engine, sender Sender, interval time.Duration, windowHours int) *Monitor {
	return &Monitor{
		engine:      engine,
		sender:      sender,
		interval:    interval,
		windowHours: windowHours,
		logger:      logging.NewLogger("alert-monitor"),
	}
}

func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.runPass(ctx)
			}
		}
	}()
	m.logger.Info("alert monitor started", map[string]interface{}{
		"interval_seconds": m.interval.Seconds(),
		"window_hours":     m.windowHours,
	})
}

func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

func (m *Monitor) runPass(ctx context.Context) {
	alerts, err := m.engine.DetectAll(ctx, m.windowHours)
	if err != nil {
		m.logger.Error("detection pass failed", err)
		return
	}

	for _, alert := range alerts {
		if alert.Severity == models.SeverityInfo {
			m.logger.Info(alert.Title, map[string]interface{}{"type": string(alert.Type)})
			continue
		}
		if _, err := m.sender.SendAlert(ctx, alert); err != nil {
			m.logger.Error("alert delivery failed", err, map[string]interface{}{
				"type":     string(alert.Type),
				"severity": string(alert.Severity),
			})
		}
	}
}
