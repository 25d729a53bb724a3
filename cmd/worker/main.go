package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loomline-erp/loomline-erp/internal/app"
	"github.com/loomline-erp/loomline-erp/internal/inventory"
	jobmetrics "github.com/loomline-erp/loomline-erp/internal/jobs"
	"github.com/loomline-erp/loomline-erp/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := jobmetrics.NewMetrics(nil)
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(cfg.WorkerMetricsAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics listener", slog.Any("error", err))
		}
	}()

	inventoryRepo := inventory.NewRepository(pool)
	ledgerJob := jobs.NewLedgerIntegrityJob(inventoryRepo, logger, metrics, cfg.LedgerScanConcurrency)
	reorderJob := jobs.NewReorderScanJob(pool, logger, metrics)

	ledgerTask, err := jobs.NewLedgerIntegrityTask(time.Now().UTC())
	if err != nil {
		logger.Error("build ledger task", slog.Any("error", err))
		os.Exit(1)
	}
	reorderTask, err := jobs.NewReorderScanTask(time.Now().UTC())
	if err != nil {
		logger.Error("build reorder task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLedgerIntegrity, Handler: ledgerJob.Handle},
			{Type: jobs.TaskReorderScan, Handler: reorderJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 2 * * *", Task: ledgerTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 * * * *", Task: reorderTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
