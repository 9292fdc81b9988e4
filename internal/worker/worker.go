// Package worker drains the raw ingestion feed on a fixed interval and
// pushes each record through the normalization pipeline.
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paywatch/paywatch/internal/datalake"
	"github.com/paywatch/paywatch/internal/logging"
	"github.com/paywatch/paywatch/internal/metrics"
	"github.com/paywatch/paywatch/internal/models"
)

// Ingestor normalizes and persists one raw payload.
type Ingestor interface {
	Ingest(ctx context.Context, raw map[string]interface{}, providerHint string) (*models.NormalizedPaymentEvent, error)
}

// Worker polls the data lake for unprocessed records. Only records that
// normalized and persisted successfully are acknowledged; failures stay
// unprocessed and are retried on a later cycle.
type Worker struct {
	source    datalake.Source
	ingestor  Ingestor
	interval  time.Duration
	batchSize int
	logger    *logging.Logger

	running atomic.Bool
	// inCycle guards against overlapping cycles when one run outlasts
	// the polling interval.
	inCycle atomic.Bool
	quit    chan struct{}
	wg      sync.WaitGroup
}

func New(source datalake.Source, ingestor Ingestor, interval time.Duration, batchSize int) *Worker {
	return &Worker{
		source:    source,
		ingestor:  ingestor,
		interval:  interval,
		batchSize: batchSize,
		logger:    logging.NewLogger("worker"),
	}
}

// Start launches the polling loop. Calling Start on a running worker is
// a no-op.
func (w *Worker) Start(ctx context.Context) {
	if !w.running.CompareAndSwap(false, true) {
		w.logger.Warn("worker already running, start ignored")
		return
	}

	w.quit = make(chan struct{})
	w.wg.Add(1)
	go w.run(ctx)
	w.logger.Info("worker started", map[string]interface{}{
		"interval_seconds": w.interval.Seconds(),
		"batch_size":       w.batchSize,
	})
}

// Stop halts scheduling and waits for any in-flight cycle to finish.
// The current cycle is never interrupted mid-record.
func (w *Worker) Stop() {
	if !w.running.CompareAndSwap(true, false) {
		return
	}
	close(w.quit)
	w.wg.Wait()
	w.logger.Info("worker stopped")
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Drain immediately on start rather than waiting a full interval.
	w.cycle(ctx)

	for {
		select {
		case <-w.quit:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.cycle(ctx)
		}
	}
}

func (w *Worker) cycle(ctx context.Context) {
	if !w.inCycle.CompareAndSwap(false, true) {
		metrics.WorkerCycles.WithLabelValues("skipped").Inc()
		w.logger.Warn("previous cycle still running, skipping tick")
		return
	}
	defer w.inCycle.Store(false)

	processed, failed, err := w.RunOnce(ctx)
	if err != nil {
		metrics.WorkerCycles.WithLabelValues("error").Inc()
		w.logger.Error("worker cycle failed", err)
		return
	}
	metrics.WorkerCycles.WithLabelValues("ok").Inc()
	if processed > 0 || failed > 0 {
		w.logger.Info("worker cycle complete", map[string]interface{}{
			"processed": processed,
			"failed":    failed,
		})
	}
}

// RunOnce drains one batch and returns how many records succeeded and
// failed. Failures are isolated per record; one bad payload never
// blocks the rest of the batch.
func (w *Worker) RunOnce(ctx context.Context) (processed, failed int, err error) {
	records, err := w.source.GetUnprocessedBatch(ctx, w.batchSize)
	if err != nil {
		return 0, 0, err
	}
	if len(records) == 0 {
		return 0, 0, nil
	}
	metrics.WorkerBatchSize.Observe(float64(len(records)))

	done := make([]string, 0, len(records))
	for i := range records {
		rec := &records[i]
		if _, err := w.ingestor.Ingest(ctx, rec.EnrichedPayload(), rec.ProviderHint()); err != nil {
			failed++
			w.logger.Error("record normalization failed", err, map[string]interface{}{
				"record_id": rec.ID,
			})
			continue
		}
		done = append(done, rec.ID)
	}

	if len(done) > 0 {
		if err := w.source.MarkProcessed(ctx, done); err != nil {
			return len(done), failed, err
		}
	}
	return len(done), failed, nil
}
