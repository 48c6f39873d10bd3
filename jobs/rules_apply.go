package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/cashplan-fin/cashplan-fin/internal/jobs"
	"github.com/cashplan-fin/cashplan-fin/internal/shared"
)

// PendingRuleApplier retries compilation of rule changes stored without an
// effect.
type PendingRuleApplier interface {
	ApplyPending(ctx context.Context) (applied, failed int, err error)
}

// RulesApplyJob re-runs the compiler over pending rule changes, picking up
// sentences the grammar has since learned to parse.
type RulesApplyJob struct {
	Rules   PendingRuleApplier
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewRulesApplyJob initialises the pending-rules handler.
func NewRulesApplyJob(rules PendingRuleApplier, logger *slog.Logger, metrics *jobmetrics.Metrics) *RulesApplyJob {
	return &RulesApplyJob{Rules: rules, Logger: logger, Metrics: metrics}
}

// Handle processes every stored rule change that has no compiled effect yet.
func (j *RulesApplyJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Rules == nil {
		return errors.New("rules apply: handler not configured")
	}
	tracker := j.Metrics.Track(TaskRulesApplyPending)

	applied, failed, err := j.Rules.ApplyPending(shared.ContextWithActor(ctx, "scheduler"))
	if err != nil {
		j.logger().Error("apply pending failed", slog.Any("error", err))
		return tracker.End(err)
	}
	j.logger().Info("pending rules processed",
		slog.Int("applied", applied),
		slog.Int("still_pending", failed))
	return tracker.End(nil)
}

func (j *RulesApplyJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskRulesApplyPending))
	}
	return slog.Default().With(slog.String("job", TaskRulesApplyPending))
}
