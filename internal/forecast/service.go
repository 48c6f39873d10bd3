package forecast

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Service gates forecast intake and staleness checks.
type Service struct {
	repo   Repository
	maxAge time.Duration
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo Repository, maxAge time.Duration, logger *slog.Logger) *Service {
	return &Service{repo: repo, maxAge: maxAge, logger: logger, now: time.Now}
}

// Register stores an externally computed forecast run.
func (s *Service) Register(ctx context.Context, run Run) (Run, error) {
	if run.RunDate.IsZero() {
		run.RunDate = s.now().UTC()
	}
	if err := run.Validate(); err != nil {
		return Run{}, err
	}
	stored, err := s.repo.Insert(ctx, run)
	if err != nil {
		return Run{}, err
	}
	s.logger.Info("forecast run registered",
		slog.Int64("forecast_id", stored.ID),
		slog.Int("horizon_days", stored.HorizonDays),
		slog.Int("balance_dates", len(stored.Balances)))
	return stored, nil
}

// Refresh pulls a fresh run from the provider and stores it.
func (s *Service) Refresh(ctx context.Context, src Provider) (Run, error) {
	run, err := src.Fetch(ctx)
	if err != nil {
		return Run{}, err
	}
	return s.Register(ctx, run)
}

// Latest returns the newest forecast run usable for the requested horizon.
// Stale or too-short runs yield ErrUnavailable; a horizon of zero accepts
// any fresh run.
func (s *Service) Latest(ctx context.Context, horizonDays int) (Run, error) {
	run, err := s.repo.Latest(ctx)
	if err != nil {
		return Run{}, err
	}
	if age := s.now().Sub(run.RunDate); s.maxAge > 0 && age > s.maxAge {
		return Run{}, fmt.Errorf("forecast: run %d is %s old: %w", run.ID, age.Round(time.Minute), ErrUnavailable)
	}
	if horizonDays > 0 && run.HorizonDays < horizonDays {
		return Run{}, fmt.Errorf("forecast: run %d covers %d days, need %d: %w", run.ID, run.HorizonDays, horizonDays, ErrUnavailable)
	}
	return run, nil
}

// History lists recent runs, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]Run, error) {
	return s.repo.List(ctx, limit)
}
