package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/cashplan-fin/cashplan-fin/internal/jobs"
	"github.com/cashplan-fin/cashplan-fin/internal/planner"
	"github.com/cashplan-fin/cashplan-fin/internal/shared"
)

// PlanGenerator runs one plan regeneration pass.
type PlanGenerator interface {
	Generate(ctx context.Context, horizonDays int) (planner.RunResult, error)
}

// PlanGenerateJob regenerates the payment plan on schedule or on demand.
type PlanGenerateJob struct {
	Engine  PlanGenerator
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewPlanGenerateJob initialises the regeneration handler.
func NewPlanGenerateJob(engine PlanGenerator, logger *slog.Logger, metrics *jobmetrics.Metrics) *PlanGenerateJob {
	return &PlanGenerateJob{Engine: engine, Logger: logger, Metrics: metrics}
}

// Handle executes one regeneration run. A run already holding the lock is
// treated as success so overlapping cron fires do not pile up retries.
func (j *PlanGenerateJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Engine == nil {
		return errors.New("plan generate: handler not configured")
	}
	var payload PlanGeneratePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.Metrics.Track(TaskPlanGenerate)
	logger := j.logger()
	if payload.Trigger != "" {
		logger = logger.With(slog.String("trigger", payload.Trigger))
	}

	ctx = shared.ContextWithActor(ctx, "scheduler")
	res, err := j.Engine.Generate(ctx, payload.HorizonDays)
	if err != nil {
		if errors.Is(err, shared.ErrLockHeld) {
			logger.Warn("regeneration skipped, another run holds the lock")
			return tracker.End(nil)
		}
		logger.Error("regeneration failed", slog.Any("error", err))
		return tracker.End(err)
	}

	logger.Info("plan regenerated",
		slog.String("run_id", res.RunID.String()),
		slog.Int("entries", len(res.Entries)),
		slog.Int("deficit_dates", len(res.Deficits)))
	return tracker.End(nil)
}

func (j *PlanGenerateJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPlanGenerate))
	}
	return slog.Default().With(slog.String("job", TaskPlanGenerate))
}
