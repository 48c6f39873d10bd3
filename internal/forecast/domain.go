package forecast

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the key format of the balances payload.
const DateLayout = "2006-01-02"

// ErrUnavailable signals that no usable forecast exists: none registered,
// the newest run is older than the configured max age, or its horizon is
// shorter than requested. Plan generation treats this as fatal.
var ErrUnavailable = errors.New("forecast: no usable forecast run")

// Run is one externally produced forecast of daily closing balances.
// Consumed read-only by the planner.
type Run struct {
	ID          int64                      `json:"id"`
	RunDate     time.Time                  `json:"run_date"`
	HorizonDays int                        `json:"horizon_days"`
	Balances    map[string]decimal.Decimal `json:"balances"`
	CreatedAt   time.Time                  `json:"created_at"`
}

// Validate checks the registered payload. Balance values may be negative;
// a forecast that dips below zero is exactly what the planner needs to see.
func (r Run) Validate() error {
	if r.HorizonDays <= 0 {
		return errors.New("forecast: horizon_days must be positive")
	}
	if len(r.Balances) == 0 {
		return errors.New("forecast: balances payload is empty")
	}
	for key := range r.Balances {
		if _, err := time.Parse(DateLayout, key); err != nil {
			return fmt.Errorf("forecast: balance key %q is not a date", key)
		}
	}
	return nil
}

// Start returns the earliest balance date in the payload.
func (r Run) Start() (time.Time, bool) {
	var start time.Time
	found := false
	for key := range r.Balances {
		d, err := time.Parse(DateLayout, key)
		if err != nil {
			continue
		}
		if !found || d.Before(start) {
			start = d
			found = true
		}
	}
	return start, found
}
