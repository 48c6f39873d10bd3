package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/cashplan-fin/cashplan-fin/internal/forecast"
	jobmetrics "github.com/cashplan-fin/cashplan-fin/internal/jobs"
)

// ForecastRefresher pulls a run from a provider and stores it.
type ForecastRefresher interface {
	Refresh(ctx context.Context, src forecast.Provider) (forecast.Run, error)
}

// ForecastRefreshJob keeps the stored forecast fresh by polling the
// configured provider.
type ForecastRefreshJob struct {
	Forecasts ForecastRefresher
	Source    forecast.Provider
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewForecastRefreshJob initialises the refresh handler.
func NewForecastRefreshJob(forecasts ForecastRefresher, source forecast.Provider, logger *slog.Logger, metrics *jobmetrics.Metrics) *ForecastRefreshJob {
	return &ForecastRefreshJob{Forecasts: forecasts, Source: source, Logger: logger, Metrics: metrics}
}

// Handle fetches the provider's current forecast and stores it. Without a
// configured provider the job is a no-op; runs then arrive over HTTP only.
func (j *ForecastRefreshJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Forecasts == nil {
		return errors.New("forecast refresh: handler not configured")
	}
	if j.Source == nil {
		j.logger().Info("no forecast provider configured, skipping")
		return nil
	}
	tracker := j.Metrics.Track(TaskForecastRefresh)

	run, err := j.Forecasts.Refresh(ctx, j.Source)
	if err != nil {
		j.logger().Error("refresh failed", slog.Any("error", err))
		return tracker.End(err)
	}
	j.logger().Info("forecast refreshed",
		slog.Int64("forecast_id", run.ID),
		slog.Int("horizon_days", run.HorizonDays),
		slog.Int("balance_dates", len(run.Balances)))
	return tracker.End(nil)
}

func (j *ForecastRefreshJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskForecastRefresh))
	}
	return slog.Default().With(slog.String("job", TaskForecastRefresh))
}
