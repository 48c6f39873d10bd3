// Package policy derives the current effective payment policy per supplier
// by folding applied rule changes over supplier base records. The fold is
// pure and reproducible: replaying the same ordered effects always yields
// the same policies, so every cached snapshot can be rebuilt from history.
package policy

import (
	"errors"
	"strings"

	"github.com/cashplan-fin/cashplan-fin/internal/masterdata/suppliers"
	"github.com/cashplan-fin/cashplan-fin/internal/rules"
)

// ErrNotFound indicates a supplier without a policy, i.e. an unknown supplier.
var ErrNotFound = errors.New("policy: supplier not found")

// Policy is the effective payment policy for one supplier.
type Policy struct {
	SupplierID   int64  `json:"supplier_id"`
	SupplierName string `json:"supplier_name"`
	SupplierType string `json:"supplier_type"`
	MaxDelayDays int    `json:"max_delay_days"`
	Priority     int    `json:"priority"`
}

// BasePriority maps the supplier type to its starting priority class. Core
// suppliers outrank flex suppliers when cash is constrained.
func BasePriority(supplierType string) int {
	if supplierType == suppliers.TypeCore {
		return 1
	}
	return 0
}

// Fold computes effective policies from supplier base records and applied
// rule effects in application order. Later effects override earlier ones for
// the same supplier and field; a delay decrement never drops below zero.
func Fold(sups []suppliers.Supplier, effects []rules.PolicyEffect) map[int64]Policy {
	policies := make(map[int64]Policy, len(sups))
	for _, sup := range sups {
		policies[sup.ID] = Policy{
			SupplierID:   sup.ID,
			SupplierName: sup.Name,
			SupplierType: sup.Type,
			MaxDelayDays: sup.MaxDelayDays,
			Priority:     BasePriority(sup.Type),
		}
	}

	for _, effect := range effects {
		for id, p := range policies {
			if !matches(effect.Selector, sups, id) {
				continue
			}
			switch effect.Field {
			case rules.FieldMaxDelayDays:
				p.MaxDelayDays = applyOp(p.MaxDelayDays, effect.Operation, effect.Value)
				if p.MaxDelayDays < 0 {
					p.MaxDelayDays = 0
				}
			case rules.FieldPriority:
				p.Priority = applyOp(p.Priority, effect.Operation, effect.Value)
			}
			policies[id] = p
		}
	}
	return policies
}

func applyOp(current int, op rules.Operation, value int) int {
	if op == rules.OpSet {
		return value
	}
	return current + value
}

func matches(sel rules.Selector, sups []suppliers.Supplier, supplierID int64) bool {
	for _, sup := range sups {
		if sup.ID != supplierID {
			continue
		}
		switch sel.Type {
		case rules.SelectBySupplierID:
			return sup.ID == sel.SupplierID
		case rules.SelectBySupplierType:
			return sup.Type == sel.SupplierType
		case rules.SelectByNamePattern:
			return strings.EqualFold(sup.Name, sel.NamePattern)
		}
	}
	return false
}
