package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/cashplan-fin/cashplan-fin/internal/app"
	"github.com/cashplan-fin/cashplan-fin/internal/forecast"
	jobmetrics "github.com/cashplan-fin/cashplan-fin/internal/jobs"
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

type ruleEffects struct {
	repo rules.Repository
}

func (r ruleEffects) AppliedEffects(ctx context.Context) ([]rules.PolicyEffect, error) {
	return r.repo.ListAppliedEffects(ctx)
}

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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

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

	jobMetrics := jobmetrics.NewMetrics(nil)
	engineMetrics := observability.NewEngineMetrics(nil)
	auditLogger := shared.NewAuditLogger(pool)

	suppliersService := suppliers.NewService(suppliers.NewRepository(pool), suppliers.Defaults{
		CoreMaxDelayDays: cfg.CoreMaxDelayDays,
		FlexMaxDelayDays: cfg.FlexMaxDelayDays,
	})
	rulesRepo := rules.NewRepository(pool)
	policyCache := policy.NewCache(redisClient, 10*time.Minute)
	policyService := policy.NewService(suppliersService, ruleEffects{repo: rulesRepo}, policyCache, logger)
	rulesService := rules.NewService(rulesRepo, suppliersService, policyService, auditLogger, logger)

	forecastService := forecast.NewService(forecast.NewRepository(pool), cfg.ForecastMaxAge, logger)

	runLock := shared.NewRunLock(redisClient, shared.PlanRunLockKey(), cfg.RunLockTTL)
	plannerEngine := planner.NewEngine(planner.EngineParams{
		Repo:        planner.NewRepository(pool),
		Forecasts:   forecastService,
		Lock:        runLock,
		Audit:       auditLogger,
		Metrics:     engineMetrics,
		Logger:      logger,
		HorizonDays: cfg.PlanHorizonDays,
	})

	var provider forecast.Provider
	if cfg.ForecastProviderURL != "" {
		provider = forecast.NewHTTPProvider(cfg.ForecastProviderURL)
	}

	generateJob := jobs.NewPlanGenerateJob(plannerEngine, logger, jobMetrics)
	rulesJob := jobs.NewRulesApplyJob(rulesService, logger, jobMetrics)
	refreshJob := jobs.NewForecastRefreshJob(forecastService, provider, logger, jobMetrics)
	cleanupJob := jobs.NewIdempotencyCleanupJob(shared.NewIdempotencyStore(pool), logger, jobMetrics)

	generateTask, err := jobs.NewPlanGenerateTask(jobs.PlanGeneratePayload{Trigger: "cron"})
	if err != nil {
		logger.Error("build generate task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskPlanGenerate, Handler: generateJob.Handle},
			{Type: jobs.TaskRulesApplyPending, Handler: rulesJob.Handle},
			{Type: jobs.TaskForecastRefresh, Handler: refreshJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "30 0 * * *", Task: jobs.NewForecastRefreshTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 1 1 * *", Task: generateTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 1 * * *", Task: jobs.NewRulesApplyPendingTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 2 * * *", Task: jobs.NewIdempotencyCleanupTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
