package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/cashplan-fin/cashplan-fin/internal/app"
	"github.com/cashplan-fin/cashplan-fin/internal/creditors"
	"github.com/cashplan-fin/cashplan-fin/internal/forecast"
	"github.com/cashplan-fin/cashplan-fin/internal/masterdata/suppliers"
	"github.com/cashplan-fin/cashplan-fin/internal/observability"
	"github.com/cashplan-fin/cashplan-fin/internal/planner"
	"github.com/cashplan-fin/cashplan-fin/internal/platform/cache"
	"github.com/cashplan-fin/cashplan-fin/internal/platform/db"
	"github.com/cashplan-fin/cashplan-fin/internal/policy"
	"github.com/cashplan-fin/cashplan-fin/internal/rules"
	"github.com/cashplan-fin/cashplan-fin/internal/shared"
	"github.com/cashplan-fin/cashplan-fin/jobs"
)

// ruleEffects feeds applied rule effects into the policy fold without tying
// the policy service to the rules service.
type ruleEffects struct {
	repo rules.Repository
}

func (r ruleEffects) AppliedEffects(ctx context.Context) ([]rules.PolicyEffect, error) {
	return r.repo.ListAppliedEffects(ctx)
}

// jobTrigger adapts the queue client to the narrow trigger interfaces the
// handlers accept.
type jobTrigger struct {
	client *jobs.Client
}

func (t jobTrigger) PlanGenerate(ctx context.Context, reason string) error {
	_, err := t.client.EnqueuePlanGenerate(ctx, jobs.PlanGeneratePayload{Trigger: reason})
	return err
}

func (t jobTrigger) ForecastRefresh(ctx context.Context) error {
	_, err := t.client.EnqueueForecastRefresh(ctx)
	return err
}

func (t jobTrigger) Retry(ctx context.Context) error {
	_, err := t.client.EnqueueRulesApplyPending(ctx)
	return err
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(os.Args) > 1 && os.Args[1] != "serve" {
		code := runCLI(ctx, os.Args[1:])
		stop()
		os.Exit(code)
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	engineMetrics := observability.NewEngineMetrics(nil)

	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("connect job queue", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	trigger := jobTrigger{client: jobsClient}

	suppliersRepo := suppliers.NewRepository(dbpool)
	suppliersService := suppliers.NewService(suppliersRepo, suppliers.Defaults{
		CoreMaxDelayDays: cfg.CoreMaxDelayDays,
		FlexMaxDelayDays: cfg.FlexMaxDelayDays,
	})
	suppliersHandler := suppliers.NewHandler(logger, suppliersService, trigger)

	creditorsRepo := creditors.NewRepository(dbpool)
	creditorsService := creditors.NewService(creditorsRepo)
	creditorsHandler := creditors.NewHandler(logger, creditorsService)

	rulesRepo := rules.NewRepository(dbpool)
	policyCache := policy.NewCache(redisClient, 10*time.Minute)
	policyService := policy.NewService(suppliersService, ruleEffects{repo: rulesRepo}, policyCache, logger)
	rulesService := rules.NewService(rulesRepo, suppliersService, policyService, auditLogger, logger)
	rulesHandler := rules.NewHandler(logger, rulesService, idempotencyStore)
	policyHandler := policy.NewHandler(logger, policyService)

	forecastRepo := forecast.NewRepository(dbpool)
	forecastService := forecast.NewService(forecastRepo, cfg.ForecastMaxAge, logger)
	forecastHandler := forecast.NewHandler(logger, forecastService, trigger)

	plannerRepo := planner.NewRepository(dbpool)
	runLock := shared.NewRunLock(redisClient, shared.PlanRunLockKey(), cfg.RunLockTTL)
	plannerEngine := planner.NewEngine(planner.EngineParams{
		Repo:        plannerRepo,
		Forecasts:   forecastService,
		Lock:        runLock,
		Audit:       auditLogger,
		Metrics:     engineMetrics,
		Logger:      logger,
		HorizonDays: cfg.PlanHorizonDays,
	})
	plannerHandler := planner.NewHandler(logger, plannerEngine, idempotencyStore)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		SuppliersHandler: suppliersHandler,
		CreditorsHandler: creditorsHandler,
		RulesHandler:     rulesHandler,
		PolicyHandler:    policyHandler,
		PlannerHandler:   plannerHandler,
		ForecastHandler:  forecastHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
