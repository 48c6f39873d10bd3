package planner

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cashplan-fin/cashplan-fin/internal/creditors"
	"github.com/cashplan-fin/cashplan-fin/internal/policy"
)

// Input is the consistent snapshot one generation run allocates against.
// Outstanding optionally nets creditor amounts of manual coverage; when nil
// the ingested amounts are used as-is.
type Input struct {
	Start       time.Time
	HorizonDays int
	Balances    map[string]decimal.Decimal
	Policies    map[int64]policy.Policy
	Creditors   []creditors.Creditor
	Outstanding map[int64]decimal.Decimal
	Manual      []PlanEntry
}

// Allocate runs the deterministic greedy pass over one input snapshot. It
// returns the generated entries in allocation order plus the deficit dates
// left by the full schedule, manual entries included. Identical inputs
// always produce identical output.
func Allocate(in Input) ([]PlanEntry, []Deficit) {
	if in.HorizonDays <= 0 {
		return nil, nil
	}
	curve := BuildCurve(in.Start, in.HorizonDays, in.Balances)
	led := newLedger(curve)
	for _, m := range in.Manual {
		led.commit(m.ScheduledDate, m.Amount)
	}

	start := day(in.Start)
	end := curve.Date(curve.Days() - 1)

	var entries []PlanEntry
	for _, c := range orderQueue(in) {
		amount := c.Amount
		if in.Outstanding != nil {
			amount = in.Outstanding[c.ID]
		}
		if !amount.IsPositive() {
			continue
		}
		entries = append(entries, placeObligation(led, c, in.Policies[c.SupplierID], amount, start, end)...)
	}
	return entries, led.deficits()
}

// orderQueue sorts obligations into the run's total order: priority class
// descending, aging descending, due date ascending, creditor id ascending.
// The id tiebreak makes equal-key output reproducible.
func orderQueue(in Input) []creditors.Creditor {
	queue := make([]creditors.Creditor, len(in.Creditors))
	copy(queue, in.Creditors)
	sort.Slice(queue, func(i, j int) bool {
		a, b := queue[i], queue[j]
		pa, pb := in.Policies[a.SupplierID].Priority, in.Policies[b.SupplierID].Priority
		if pa != pb {
			return pa > pb
		}
		if a.AgingDays != b.AgingDays {
			return a.AgingDays > b.AgingDays
		}
		if !a.DueDate.Equal(b.DueDate) {
			return a.DueDate.Before(b.DueDate)
		}
		return a.ID < b.ID
	})
	return queue
}

// placeObligation schedules one obligation. Preference order: earliest
// feasible date in [due, due+maxDelay]; else forced placement at the
// deadline, split only when the deadline can absorb part of the amount and
// a later horizon date clears the remainder.
func placeObligation(led *ledger, c creditors.Creditor, pol policy.Policy, amount decimal.Decimal, start, end time.Time) []PlanEntry {
	due := day(c.DueDate)
	deadline := due.AddDate(0, 0, pol.MaxDelayDays)

	first := due
	if first.Before(start) {
		first = start
	}
	if first.After(end) {
		first = end
	}
	last := deadline
	if last.Before(first) {
		last = first
	}
	if last.After(end) {
		last = end
	}

	for i := led.curve.Index(first); i <= led.curve.Index(last); i++ {
		if led.headroom(i).GreaterThanOrEqual(amount) {
			date := led.curve.Date(i)
			led.commit(date, amount)
			return []PlanEntry{newEntry(c.ID, date, amount, date.After(deadline))}
		}
	}

	// No feasible date in the window. Force at the deadline, splitting off
	// what the deadline can still absorb when a later date clears the rest.
	forced := last
	fit := led.headroom(led.curve.Index(forced)).RoundDown(2)
	if fit.IsPositive() && fit.LessThan(amount) {
		for i := led.curve.Index(forced) + 1; i < led.curve.Days(); i++ {
			date := led.curve.Date(i)
			if !date.After(deadline) {
				continue
			}
			if led.headroom(i).GreaterThanOrEqual(amount) {
				led.commit(forced, fit)
				led.commit(date, amount.Sub(fit))
				return []PlanEntry{
					newEntry(c.ID, forced, fit, true),
					newEntry(c.ID, date, amount.Sub(fit), true),
				}
			}
		}
	}

	led.commit(forced, amount)
	return []PlanEntry{newEntry(c.ID, forced, amount, true)}
}

func newEntry(creditorID int64, date time.Time, amount decimal.Decimal, deficit bool) PlanEntry {
	return PlanEntry{
		CreditorID:    creditorID,
		ScheduledDate: date,
		Amount:        amount,
		Note:          noteGenerated,
		Source:        SourceGenerated,
		DeficitFlag:   deficit,
	}
}

// ledger tracks committed outflows against the balance curve during a run.
type ledger struct {
	curve Curve
	out   []decimal.Decimal
}

func newLedger(curve Curve) *ledger {
	return &ledger{curve: curve, out: make([]decimal.Decimal, curve.Days())}
}

// commit books an outflow. Dates before the horizon weigh on every horizon
// day; dates beyond it cannot constrain the window and are ignored.
func (l *ledger) commit(d time.Time, amount decimal.Decimal) {
	i := l.curve.Index(d)
	if i >= l.curve.Days() {
		return
	}
	if i < 0 {
		i = 0
	}
	l.out[i] = l.out[i].Add(amount)
}

// headroom is the largest amount placeable at day i without driving any day
// from i through the horizon end negative.
func (l *ledger) headroom(i int) decimal.Decimal {
	cum := decimal.Zero
	for j := 0; j < i && j < len(l.out); j++ {
		cum = cum.Add(l.out[j])
	}
	minAvail := decimal.Zero
	for j := i; j < l.curve.Days(); j++ {
		cum = cum.Add(l.out[j])
		avail := l.curve.Balance(j).Sub(cum)
		if j == i || avail.LessThan(minAvail) {
			minAvail = avail
		}
	}
	return minAvail
}

func (l *ledger) deficits() []Deficit {
	return DetectDeficits(l.curve, l.out)
}
