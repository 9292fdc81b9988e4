// The worker binary runs the full pipeline: it drains the raw
// ingestion feed, normalizes and persists events, runs alert detection
// on an interval and serves Prometheus metrics.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/paywatch/paywatch/internal/ai"
	"github.com/paywatch/paywatch/internal/alerts"
	"github.com/paywatch/paywatch/internal/archive"
	"github.com/paywatch/paywatch/internal/config"
	"github.com/paywatch/paywatch/internal/datalake"
	"github.com/paywatch/paywatch/internal/logging"
	"github.com/paywatch/paywatch/internal/normalizer"
	"github.com/paywatch/paywatch/internal/notify"
	"github.com/paywatch/paywatch/internal/orchestrator"
	"github.com/paywatch/paywatch/internal/repository"
	"github.com/paywatch/paywatch/internal/worker"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	runOnce := flag.Bool("once", false, "process one batch and exit")
	migrate := flag.Bool("migrate", false, "apply database schemas and exit")
	flag.Parse()

	if err := run(*configPath, *runOnce, *migrate); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, runOnce, migrate bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := logging.NewLogger("main")

	store, err := repository.NewPostgres(cfg.DSN(), 10)
	if err != nil {
		return fmt.Errorf("connect event store: %w", err)
	}
	defer store.Close()

	source, err := datalake.NewPostgres(cfg.DataLakeDSN, 5)
	if err != nil {
		return fmt.Errorf("connect data lake: %w", err)
	}
	defer source.Close()

	if migrate {
		ctx := context.Background()
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		if err := source.Migrate(ctx); err != nil {
			return err
		}
		logger.Info("schemas applied")
		return nil
	}

	aiClient := ai.NewClient(cfg)
	orch := orchestrator.New(normalizer.NewRuleBased(), normalizer.NewAIBased(aiClient), store)

	if cfg.HasArchive() {
		archiver, err := archive.NewClient(cfg.ArchiveEndpoint, cfg.ArchiveAccessKey, cfg.ArchiveSecretKey, cfg.ArchiveBucket, cfg.ArchiveUseSSL)
		if err != nil {
			return fmt.Errorf("connect archive: %w", err)
		}
		if err := archiver.EnsureBucket(context.Background()); err != nil {
			return fmt.Errorf("prepare archive bucket: %w", err)
		}
		orch = orch.WithArchiver(archiver)
	}

	if runOnce {
		w := worker.New(source, orch, cfg.WorkerInterval, cfg.WorkerBatch)
		processed, failed, err := w.RunOnce(context.Background())
		if err != nil {
			return err
		}
		logger.Info("batch complete", map[string]interface{}{
			"processed": processed,
			"failed":    failed,
		})
		return nil
	}

	var sender alerts.Sender
	if cfg.AMQPURL != "" {
		notifier, err := notify.NewAMQPNotifier(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return fmt.Errorf("connect alert broker: %w", err)
		}
		defer notifier.Close()
		sender = notifier.WithNarrator(aiClient)
	} else {
		sender = notify.NewLogNotifier()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := worker.New(source, orch, cfg.WorkerInterval, cfg.WorkerBatch)
	w.Start(ctx)
	defer w.Stop()

	monitor := alerts.NewMonitor(alerts.NewEngine(store), sender, cfg.AlertInterval, cfg.AlertWindowHours)
	monitor.Start(ctx)
	defer monitor.Stop()

	http.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, nil); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", err)
		}
	}()
	logger.Info("pipeline running", map[string]interface{}{
		"metrics_addr": cfg.MetricsAddr,
		"environment":  cfg.Environment,
	})

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info("shutdown signal received")
	return nil
}
