package planner

import (
	"github.com/shopspring/decimal"

	"github.com/cashplan-fin/cashplan-fin/internal/creditors"
)

// Reconcile prepares a regeneration run from the prior plan state: manual
// entries survive verbatim and act as pre-committed outflows, and each
// creditor's amount is netted of its manual coverage. Creditors fully
// covered by manual entries end up with a non-positive outstanding amount
// and drop out of the allocation queue. Generated entries from prior runs
// are discarded; the run re-derives them.
func Reconcile(creds []creditors.Creditor, existing []PlanEntry) ([]PlanEntry, map[int64]decimal.Decimal) {
	var manual []PlanEntry
	covered := map[int64]decimal.Decimal{}
	for _, e := range existing {
		if e.Source != SourceManual {
			continue
		}
		manual = append(manual, e)
		covered[e.CreditorID] = covered[e.CreditorID].Add(e.Amount)
	}

	outstanding := make(map[int64]decimal.Decimal, len(creds))
	for _, c := range creds {
		outstanding[c.ID] = c.Amount.Sub(covered[c.ID])
	}
	return manual, outstanding
}
