package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/loomline-erp/loomline-erp/cmd/loomline/cli"
	"github.com/loomline-erp/loomline-erp/internal/app"
	"github.com/loomline-erp/loomline-erp/internal/authz"
	"github.com/loomline-erp/loomline-erp/internal/inventory"
	"github.com/loomline-erp/loomline-erp/internal/masterdata"
	"github.com/loomline-erp/loomline-erp/internal/mrp"
	"github.com/loomline-erp/loomline-erp/internal/observability"
	"github.com/loomline-erp/loomline-erp/internal/procurement"
	"github.com/loomline-erp/loomline-erp/internal/production"
	"github.com/loomline-erp/loomline-erp/internal/sequence"
	"github.com/loomline-erp/loomline-erp/internal/shared"
	"github.com/loomline-erp/loomline-erp/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	triggerJob := flag.String("trigger-job", "", "enqueue a background job by name and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if *triggerJob != "" {
		jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
		if err != nil {
			logger.Error("init jobs cli", slog.Any("error", err))
			os.Exit(1)
		}
		defer jobsCLI.Close()
		info, err := jobsCLI.Trigger(ctx, *triggerJob)
		if err != nil {
			logger.Error("trigger job", slog.Any("error", err))
			os.Exit(1)
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", *triggerJob, info.ID, info.Queue)
		return
	}

	dbpool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(dbpool)
	gate := authz.NewPinGate(authz.NewPinSource(dbpool), redisClient, logger, cfg.StepUpMaxFailures, cfg.StepUpLockout)
	engine := inventory.NewEngine()
	sequencer := sequence.NewSequencer()
	metrics := observability.NewMetrics()

	inventoryRepo := inventory.NewRepository(dbpool)
	inventoryService := inventory.NewService(inventoryRepo, engine, sequencer, gate, nil)
	inventoryHandler := inventory.NewHandler(logger, inventoryService)

	procurementRepo := procurement.NewRepository(dbpool)
	procurementService := procurement.NewService(procurementRepo, engine, sequencer, gate, auditLogger, nil)
	procurementHandler := procurement.NewHandler(logger, procurementService)

	mrpRepo := mrp.NewRepository(dbpool)
	planner := mrp.NewPlanner(mrpRepo, mrpRepo)

	productionRepo := production.NewRepository(dbpool)
	productionService := production.NewService(productionRepo, planner, engine, sequencer, auditLogger, nil)
	productionHandler := production.NewHandler(logger, productionService)

	masterdataRepo := masterdata.NewRepository(dbpool)
	masterdataService := masterdata.NewService(masterdataRepo, gate, auditLogger)
	masterdataHandler := masterdata.NewHandler(logger, masterdataService)

	jobsInspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobsInspector.Close(); err != nil {
			logger.Warn("jobs inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(jobsInspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Pool:               dbpool,
		InventoryHandler:   inventoryHandler,
		ProcurementHandler: procurementHandler,
		ProductionHandler:  productionHandler,
		MasterDataHandler:  masterdataHandler,
		JobsHandler:        jobsHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
