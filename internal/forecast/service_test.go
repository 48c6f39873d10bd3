package forecast

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	runs   []Run
	nextID int64
}

func (m *memoryRepo) Insert(_ context.Context, run Run) (Run, error) {
	m.nextID++
	run.ID = m.nextID
	run.CreatedAt = run.RunDate
	m.runs = append(m.runs, run)
	return run, nil
}

func (m *memoryRepo) Latest(_ context.Context) (Run, error) {
	if len(m.runs) == 0 {
		return Run{}, ErrUnavailable
	}
	latest := m.runs[0]
	for _, r := range m.runs[1:] {
		if r.RunDate.After(latest.RunDate) {
			latest = r
		}
	}
	return latest, nil
}

func (m *memoryRepo) List(_ context.Context, limit int) ([]Run, error) {
	if limit <= 0 || limit > len(m.runs) {
		limit = len(m.runs)
	}
	out := make([]Run, len(m.runs))
	copy(out, m.runs)
	return out[:limit], nil
}

func newTestService(now time.Time) (*Service, *memoryRepo) {
	repo := &memoryRepo{}
	svc := NewService(repo, 7*24*time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return now }
	return svc, repo
}

func TestLatestWithoutRuns(t *testing.T) {
	svc, _ := newTestService(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))

	_, err := svc.Latest(context.Background(), 91)
	require.True(t, errors.Is(err, ErrUnavailable))
}

func TestLatestRejectsStaleRun(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, repo := newTestService(now)
	repo.runs = []Run{{
		ID:          1,
		RunDate:     now.Add(-8 * 24 * time.Hour),
		HorizonDays: 91,
		Balances:    map[string]decimal.Decimal{"2024-03-10": decimal.NewFromInt(1000)},
	}}

	_, err := svc.Latest(context.Background(), 91)
	require.True(t, errors.Is(err, ErrUnavailable))
}

func TestLatestRejectsShortHorizon(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, repo := newTestService(now)
	repo.runs = []Run{{
		ID:          1,
		RunDate:     now.Add(-time.Hour),
		HorizonDays: 14,
		Balances:    map[string]decimal.Decimal{"2024-03-10": decimal.NewFromInt(1000)},
	}}

	_, err := svc.Latest(context.Background(), 91)
	require.True(t, errors.Is(err, ErrUnavailable))

	run, err := svc.Latest(context.Background(), 14)
	require.NoError(t, err)
	require.Equal(t, int64(1), run.ID)
}

func TestLatestPicksNewestRun(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, repo := newTestService(now)
	repo.runs = []Run{
		{ID: 1, RunDate: now.Add(-48 * time.Hour), HorizonDays: 91, Balances: map[string]decimal.Decimal{"2024-03-08": decimal.NewFromInt(100)}},
		{ID: 2, RunDate: now.Add(-time.Hour), HorizonDays: 91, Balances: map[string]decimal.Decimal{"2024-03-10": decimal.NewFromInt(200)}},
	}

	run, err := svc.Latest(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, int64(2), run.ID)
}

func TestRegisterValidatesPayload(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(now)
	ctx := context.Background()

	_, err := svc.Register(ctx, Run{HorizonDays: 91})
	require.Error(t, err)

	_, err = svc.Register(ctx, Run{
		HorizonDays: 91,
		Balances:    map[string]decimal.Decimal{"March 10": decimal.NewFromInt(100)},
	})
	require.Error(t, err)
}

func TestRegisterStampsRunDate(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(now)

	run, err := svc.Register(context.Background(), Run{
		HorizonDays: 91,
		Balances:    map[string]decimal.Decimal{"2024-03-10": decimal.NewFromInt(100)},
	})
	require.NoError(t, err)
	require.Equal(t, now, run.RunDate)
	require.Equal(t, int64(1), run.ID)
}
