package planner

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cashplan-fin/cashplan-fin/internal/creditors"
	"github.com/cashplan-fin/cashplan-fin/internal/forecast"
	"github.com/cashplan-fin/cashplan-fin/internal/observability"
	"github.com/cashplan-fin/cashplan-fin/internal/policy"
	"github.com/cashplan-fin/cashplan-fin/internal/shared"
)

// ForecastSource provides the newest usable forecast for a horizon.
type ForecastSource interface {
	Latest(ctx context.Context, horizonDays int) (forecast.Run, error)
}

// Locker serialises generation runs against each other and against rule
// application jobs.
type Locker interface {
	Acquire(ctx context.Context, token string) error
	Release(ctx context.Context) error
}

// AuditRecorder writes audit trail rows for state-changing operations.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// EngineParams wires the generation engine.
type EngineParams struct {
	Repo        Repository
	Forecasts   ForecastSource
	Lock        Locker
	Audit       AuditRecorder
	Metrics     *observability.EngineMetrics
	Logger      *slog.Logger
	HorizonDays int
}

// Engine orchestrates generation runs and manual overrides.
type Engine struct {
	repo      Repository
	forecasts ForecastSource
	lock      Locker
	audit     AuditRecorder
	metrics   *observability.EngineMetrics
	logger    *slog.Logger
	horizon   int
	now       func() time.Time
}

func NewEngine(p EngineParams) *Engine {
	horizon := p.HorizonDays
	if horizon <= 0 {
		horizon = 91
	}
	return &Engine{
		repo:      p.Repo,
		forecasts: p.Forecasts,
		lock:      p.Lock,
		audit:     p.Audit,
		metrics:   p.Metrics,
		logger:    p.Logger,
		horizon:   horizon,
		now:       time.Now,
	}
}

// Generate runs one full allocation pass: acquire the run lock, load the
// freshest forecast, snapshot inputs, fold policies, allocate, and persist
// the generated entry set atomically. Without a usable forecast nothing is
// written and the run fails whole.
func (e *Engine) Generate(ctx context.Context, horizonDays int) (RunResult, error) {
	if horizonDays <= 0 {
		horizonDays = e.horizon
	}
	runID := uuid.New()
	if err := e.lock.Acquire(ctx, runID.String()); err != nil {
		return RunResult{}, err
	}
	defer func() { _ = e.lock.Release(ctx) }()

	logger := e.logger.With(slog.String("run_id", runID.String()), slog.Int("horizon_days", horizonDays))

	fc, err := e.forecasts.Latest(ctx, horizonDays)
	if err != nil {
		e.metrics.RunCompleted("failed", 0, 0)
		return RunResult{}, err
	}

	start := day(e.now())
	end := start.AddDate(0, 0, horizonDays-1)

	timer := e.metrics.Stage(observability.StageSnapshot)
	snap, err := e.repo.Snapshot(ctx, end)
	timer.Done()
	if err != nil {
		e.metrics.RunCompleted("failed", 0, 0)
		return RunResult{}, err
	}

	timer = e.metrics.Stage(observability.StagePolicy)
	policies := policy.Fold(snap.Suppliers, snap.Effects)
	timer.Done()

	for i := range snap.Creditors {
		snap.Creditors[i].AgingDays = snap.Creditors[i].AgingAsOf(start)
	}
	manual, outstanding := Reconcile(snap.Creditors, snap.Entries)

	timer = e.metrics.Stage(observability.StageAllocate)
	entries, deficits := Allocate(Input{
		Start:       start,
		HorizonDays: horizonDays,
		Balances:    fc.Balances,
		Policies:    policies,
		Creditors:   snap.Creditors,
		Outstanding: outstanding,
		Manual:      manual,
	})
	timer.Done()

	rid := runID
	for i := range entries {
		entries[i].RunID = &rid
	}

	timer = e.metrics.Stage(observability.StagePersist)
	err = e.repo.ReplaceGenerated(ctx, runID, entries)
	timer.Done()
	if err != nil {
		e.metrics.RunCompleted("failed", 0, 0)
		return RunResult{}, fmt.Errorf("planner: persist run %s: %w", runID, err)
	}

	e.metrics.RunCompleted("ok", len(entries), len(deficits))
	e.recordAudit(ctx, logger, "plan.generated", "payment_plan", runID.String(), map[string]any{
		"entries":       len(entries),
		"deficit_dates": len(deficits),
		"horizon_days":  horizonDays,
		"forecast_id":   fc.ID,
	})
	logger.Info("payment plan generated",
		slog.Int("entries", len(entries)),
		slog.Int("deficit_dates", len(deficits)),
		slog.Int64("forecast_id", fc.ID))

	return RunResult{
		RunID:       runID,
		GeneratedAt: e.now(),
		HorizonDays: horizonDays,
		Entries:     entries,
		Deficits:    deficits,
	}, nil
}

// CurrentPlan lists the stored schedule, manual and generated, by date.
func (e *Engine) CurrentPlan(ctx context.Context) ([]PlanEntry, error) {
	return e.repo.ListEntries(ctx)
}

// Deficits recomputes the deficit schedule from the current plan against
// the newest usable forecast.
func (e *Engine) Deficits(ctx context.Context) ([]Deficit, error) {
	fc, err := e.forecasts.Latest(ctx, 0)
	if err != nil {
		return nil, err
	}
	entries, err := e.repo.ListEntries(ctx)
	if err != nil {
		return nil, err
	}

	horizon := e.horizon
	if fc.HorizonDays > 0 && fc.HorizonDays < horizon {
		horizon = fc.HorizonDays
	}
	led := newLedger(BuildCurve(day(e.now()), horizon, fc.Balances))
	for _, entry := range entries {
		led.commit(entry.ScheduledDate, entry.Amount)
	}
	return led.deficits(), nil
}

// OverrideRequest describes one manual plan entry.
type OverrideRequest struct {
	CreditorID int64
	Date       time.Time
	Amount     decimal.Decimal
	Note       string
}

// Override records a manual entry for a creditor. The creditor's generated
// entries are removed in the same transaction and re-derived on the next
// run around the override.
func (e *Engine) Override(ctx context.Context, req OverrideRequest) (PlanEntry, error) {
	entry := PlanEntry{
		CreditorID:    req.CreditorID,
		ScheduledDate: day(req.Date),
		Amount:        req.Amount,
		Note:          req.Note,
		Source:        SourceManual,
	}
	stored, err := e.repo.OverrideEntry(ctx, entry)
	if err != nil {
		return PlanEntry{}, err
	}

	e.recordAudit(ctx, e.logger, "plan.overridden", "payment_plan_entry", strconv.FormatInt(stored.ID, 10), map[string]any{
		"creditor_id":    stored.CreditorID,
		"scheduled_date": stored.ScheduledDate.Format(forecast.DateLayout),
		"amount":         stored.Amount.String(),
	})
	e.logger.Info("plan entry overridden",
		slog.Int64("entry_id", stored.ID),
		slog.Int64("creditor_id", stored.CreditorID))
	return stored, nil
}

func (e *Engine) recordAudit(ctx context.Context, logger *slog.Logger, action, entity, entityID string, meta map[string]any) {
	if e.audit == nil {
		return
	}
	err := e.audit.Record(ctx, shared.AuditLog{
		Actor:    shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Meta:     meta,
	})
	if err != nil {
		logger.Warn("audit write failed", slog.Any("error", err))
	}
}

// validateOverride enforces the manual-entry contract: a payable creditor,
// a positive amount, a date on or after the invoice date, and total manual
// coverage never exceeding the creditor's outstanding amount.
func validateOverride(c creditors.Creditor, existing []PlanEntry, entry PlanEntry) error {
	if c.Status != creditors.StatusPayment {
		return fmt.Errorf("planner: creditor %d is not payable: %w", c.ID, ErrValidation)
	}
	if !entry.Amount.IsPositive() {
		return fmt.Errorf("planner: amount must be positive: %w", ErrValidation)
	}
	if day(entry.ScheduledDate).Before(day(c.InvoiceDate)) {
		return fmt.Errorf("planner: scheduled date precedes invoice date: %w", ErrValidation)
	}

	covered := decimal.Zero
	for _, ex := range existing {
		if ex.Source == SourceManual {
			covered = covered.Add(ex.Amount)
		}
	}
	total := covered.Add(entry.Amount)
	if total.GreaterThan(c.Amount) {
		return fmt.Errorf("planner: manual total %s exceeds outstanding %s: %w", total, c.Amount, ErrValidation)
	}
	return nil
}
