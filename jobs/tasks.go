package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskPlanGenerate regenerates the payment plan from the latest forecast.
	TaskPlanGenerate = "plan:generate"
	// TaskRulesApplyPending re-attempts compilation of stored rule changes
	// that could not be parsed when they were submitted.
	TaskRulesApplyPending = "rules:apply_pending"
	// TaskForecastRefresh pulls a fresh balance forecast from the configured
	// provider into the forecast run store.
	TaskForecastRefresh = "forecast:refresh"
	// TaskIdempotencyCleanup prunes consumed request keys past retention.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// PlanGeneratePayload carries run parameters for a scheduled regeneration.
type PlanGeneratePayload struct {
	HorizonDays int    `json:"horizon_days,omitempty"`
	Trigger     string `json:"trigger,omitempty"`
}

// NewPlanGenerateTask constructs an Asynq task for a plan regeneration run.
func NewPlanGenerateTask(payload PlanGeneratePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPlanGenerate, data, asynq.Queue(QueueDefault)), nil
}

// NewRulesApplyPendingTask constructs an Asynq task that retries rule changes
// stored without a compiled effect.
func NewRulesApplyPendingTask() *asynq.Task {
	return asynq.NewTask(TaskRulesApplyPending, nil, asynq.Queue(QueueDefault))
}

// NewForecastRefreshTask constructs an Asynq task that refreshes the forecast.
func NewForecastRefreshTask() *asynq.Task {
	return asynq.NewTask(TaskForecastRefresh, nil, asynq.Queue(QueueDefault))
}

// NewIdempotencyCleanupTask constructs an Asynq task that prunes old
// idempotency keys.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil, asynq.Queue(QueueDefault))
}
