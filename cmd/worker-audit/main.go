// Command worker-audit runs the Temporal worker for catalog audit workflows.
// Supports stub mode (fixtures) and production mode (Shopify + feed source).
package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/syncshop/catalog-audit/internal/audit"
	"github.com/syncshop/catalog-audit/internal/config"
	"github.com/syncshop/catalog-audit/internal/connectors"
	"github.com/syncshop/catalog-audit/internal/observability"
	"github.com/syncshop/catalog-audit/internal/ratelimit"
	"github.com/syncshop/catalog-audit/internal/store"
	"github.com/syncshop/catalog-audit/internal/temporal/activities"
	"github.com/syncshop/catalog-audit/internal/temporal/queues"
	"github.com/syncshop/catalog-audit/internal/temporal/versioning"
	"github.com/syncshop/catalog-audit/internal/temporal/workflows"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}
	logger := observability.InitLogger(cfg.LogLevel)
	ctx := context.Background()

	if cfg.OTelEnabled {
		shutdown, err := observability.InitTracer(ctx, "worker-audit", cfg.ShopName)
		if err != nil {
			logger.Error("otel init failed", "error", err)
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	metrics, err := observability.NewMetrics()
	if err != nil {
		logger.Error("metrics init failed", "error", err)
		os.Exit(1)
	}

	set, err := connectors.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("connector setup failed", "error", err)
		os.Exit(1)
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error("create db dir", "error", err)
			os.Exit(1)
		}
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Error("open session store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	acts := &activities.Activities{
		Shop:      cfg.ShopName,
		Auditor:   audit.NewRunner(set.Feeds, set.Shop, logger, metrics),
		Store:     st,
		Shopify:   set.Shop,
		Platform:  set.Shop,
		Budget:    ratelimit.NewActionBudget(60, time.Hour),
		Metrics:   metrics,
		Logger:    logger,
		ChunkSize: cfg.MutationChunkSize,
	}
	if set.Publisher != nil {
		acts.Publisher = set.Publisher
	}

	c, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
		Logger:    observability.NewTemporalSlogAdapter(logger),
	})
	if err != nil {
		logger.Error("unable to create Temporal client", "error", err)
		os.Exit(1)
	}
	defer c.Close()

	names, err := queues.ParseQueues(cfg.WorkerQueues)
	if err != nil {
		logger.Error("queue config", "error", err)
		os.Exit(1)
	}
	configs := queues.DefaultConfigs()

	var workers []worker.Worker
	for _, name := range names {
		w := worker.New(c, name, configs[name].Options)
		if name == versioning.QueueAudit {
			w.RegisterWorkflow(workflows.AuditWorkflow)
			w.RegisterWorkflow(workflows.ScheduledAuditWorkflow)
		}
		w.RegisterActivity(acts)
		if err := w.Start(); err != nil {
			logger.Error("worker start failed", "queue", name, "error", err)
			os.Exit(1)
		}
		workers = append(workers, w)
		logger.Info("worker started", "queue", name, "mode", cfg.Mode)
	}

	<-worker.InterruptCh()
	for _, w := range workers {
		w.Stop()
	}
	logger.Info("worker stopped")
}
