// Package planner turns a forecast balance curve, outstanding payables and
// effective supplier policies into a day-by-day disbursement schedule. The
// allocation core is a deterministic greedy pass; infeasible cash positions
// are flagged and reported, never fatal.
package planner

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Source distinguishes engine output from operator overrides.
type Source string

const (
	SourceGenerated Source = "generated"
	SourceManual    Source = "manual"
)

const noteGenerated = "Auto-generated draft"

// ErrValidation rejects a manual override before anything is written.
var ErrValidation = errors.New("planner: validation failed")

// PlanEntry is one scheduled disbursement against a creditor. DeficitFlag
// marks entries the engine could not place cleanly: forced placements and
// split remainders pushed beyond the allowed window.
type PlanEntry struct {
	ID            int64           `json:"id"`
	CreditorID    int64           `json:"creditor_id"`
	ScheduledDate time.Time       `json:"scheduled_date"`
	Amount        decimal.Decimal `json:"amount"`
	Note          string          `json:"note,omitempty"`
	Source        Source          `json:"source"`
	DeficitFlag   bool            `json:"deficit_flag"`
	RunID         *uuid.UUID      `json:"run_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// RunResult is the outcome of one generation run.
type RunResult struct {
	RunID       uuid.UUID   `json:"run_id"`
	GeneratedAt time.Time   `json:"generated_at"`
	HorizonDays int         `json:"horizon_days"`
	Entries     []PlanEntry `json:"entries"`
	Deficits    []Deficit   `json:"deficits"`
}

// day normalises a timestamp to its UTC calendar date.
func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
