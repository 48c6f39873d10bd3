package planner

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cashplan-fin/cashplan-fin/internal/forecast"
)

// Curve is a dense daily balance series over the planning horizon.
type Curve struct {
	start time.Time
	bal   []decimal.Decimal
}

// BuildCurve expands a sparse date→balance forecast into one balance per
// horizon day. Gaps carry the last known balance forward; days before the
// first forecast point take that first balance.
func BuildCurve(start time.Time, horizonDays int, balances map[string]decimal.Decimal) Curve {
	type point struct {
		date time.Time
		bal  decimal.Decimal
	}
	points := make([]point, 0, len(balances))
	for key, bal := range balances {
		d, err := time.Parse(forecast.DateLayout, key)
		if err != nil {
			continue
		}
		points = append(points, point{date: d, bal: bal})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].date.Before(points[j].date) })

	start = day(start)
	if horizonDays < 0 {
		horizonDays = 0
	}
	bal := make([]decimal.Decimal, horizonDays)
	current := decimal.Zero
	if len(points) > 0 {
		current = points[0].bal
	}
	next := 0
	for i := 0; i < horizonDays; i++ {
		d := start.AddDate(0, 0, i)
		for next < len(points) && !points[next].date.After(d) {
			current = points[next].bal
			next++
		}
		bal[i] = current
	}
	return Curve{start: start, bal: bal}
}

// Days returns the horizon length in days.
func (c Curve) Days() int { return len(c.bal) }

// Date returns the calendar date of day i.
func (c Curve) Date(i int) time.Time { return c.start.AddDate(0, 0, i) }

// Index returns the day offset of d from the curve start. May be negative
// or past the end for dates outside the horizon.
func (c Curve) Index(d time.Time) int {
	return int(day(d).Sub(c.start).Hours() / 24)
}

// Balance returns the forecast balance of day i.
func (c Curve) Balance(i int) decimal.Decimal { return c.bal[i] }

// Deficit marks one date where scheduled outflows outrun the forecast.
type Deficit struct {
	Date      time.Time       `json:"date"`
	Shortfall decimal.Decimal `json:"shortfall"`
}

// DetectDeficits reports every horizon date whose forecast balance minus
// cumulative committed outflow goes negative, in date order. Shortfall is
// the magnitude of the negative running figure. Pure over its inputs.
func DetectDeficits(curve Curve, outflows []decimal.Decimal) []Deficit {
	var out []Deficit
	cum := decimal.Zero
	for i := 0; i < curve.Days(); i++ {
		if i < len(outflows) {
			cum = cum.Add(outflows[i])
		}
		avail := curve.Balance(i).Sub(cum)
		if avail.IsNegative() {
			out = append(out, Deficit{Date: curve.Date(i), Shortfall: avail.Neg()})
		}
	}
	return out
}
