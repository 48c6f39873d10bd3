package policy

import (
	"reflect"
	"testing"

	"github.com/cashplan-fin/cashplan-fin/internal/masterdata/suppliers"
	"github.com/cashplan-fin/cashplan-fin/internal/rules"
)

func sup(id int64, name, typ string, delay int) suppliers.Supplier {
	return suppliers.Supplier{ID: id, Name: name, Type: typ, MaxDelayDays: delay}
}

func TestFoldBasePolicies(t *testing.T) {
	policies := Fold([]suppliers.Supplier{
		sup(1, "Acme Corp", suppliers.TypeCore, 5),
		sup(2, "Globex", suppliers.TypeFlex, 3),
	}, nil)

	acme := policies[1]
	if acme.MaxDelayDays != 5 || acme.Priority != 1 {
		t.Fatalf("core base policy = %+v, want delay 5 priority 1", acme)
	}
	globex := policies[2]
	if globex.MaxDelayDays != 3 || globex.Priority != 0 {
		t.Fatalf("flex base policy = %+v, want delay 3 priority 0", globex)
	}
}

func TestFoldTypeSelectorExtendsDelay(t *testing.T) {
	sups := []suppliers.Supplier{
		sup(1, "Acme Corp", suppliers.TypeCore, 5),
		sup(2, "Globex", suppliers.TypeFlex, 3),
	}
	effects := []rules.PolicyEffect{{
		Selector:  rules.Selector{Type: rules.SelectBySupplierType, SupplierType: suppliers.TypeFlex},
		Field:     rules.FieldMaxDelayDays,
		Operation: rules.OpAdd,
		Value:     10,
	}}

	policies := Fold(sups, effects)
	if got := policies[2].MaxDelayDays; got != 13 {
		t.Fatalf("flex delay after +10 = %d, want 13", got)
	}
	if got := policies[1].MaxDelayDays; got != 5 {
		t.Fatalf("core delay = %d, want untouched 5", got)
	}
}

func TestFoldLaterEffectOverridesEarlier(t *testing.T) {
	sups := []suppliers.Supplier{sup(1, "Acme Corp", suppliers.TypeFlex, 3)}
	nameSel := rules.Selector{Type: rules.SelectByNamePattern, NamePattern: "Acme Corp"}
	effects := []rules.PolicyEffect{
		{Selector: nameSel, Field: rules.FieldMaxDelayDays, Operation: rules.OpSet, Value: 7},
		{Selector: nameSel, Field: rules.FieldMaxDelayDays, Operation: rules.OpAdd, Value: 2},
		{Selector: nameSel, Field: rules.FieldMaxDelayDays, Operation: rules.OpSet, Value: 4},
	}

	policies := Fold(sups, effects)
	if got := policies[1].MaxDelayDays; got != 4 {
		t.Fatalf("delay after set/add/set = %d, want last set 4", got)
	}
}

func TestFoldDelayNeverNegative(t *testing.T) {
	sups := []suppliers.Supplier{sup(1, "Acme Corp", suppliers.TypeFlex, 3)}
	effects := []rules.PolicyEffect{{
		Selector:  rules.Selector{Type: rules.SelectBySupplierID, SupplierID: 1},
		Field:     rules.FieldMaxDelayDays,
		Operation: rules.OpAdd,
		Value:     -10,
	}}

	policies := Fold(sups, effects)
	if got := policies[1].MaxDelayDays; got != 0 {
		t.Fatalf("delay after -10 = %d, want clamp to 0", got)
	}
}

func TestFoldNameSelectorIgnoresCase(t *testing.T) {
	sups := []suppliers.Supplier{sup(1, "Acme Corp", suppliers.TypeFlex, 3)}
	effects := []rules.PolicyEffect{{
		Selector:  rules.Selector{Type: rules.SelectByNamePattern, NamePattern: "acme corp"},
		Field:     rules.FieldPriority,
		Operation: rules.OpAdd,
		Value:     1,
	}}

	policies := Fold(sups, effects)
	if got := policies[1].Priority; got != 1 {
		t.Fatalf("priority = %d, want 1 after case-insensitive name match", got)
	}
}

func TestFoldIDSelectorTargetsOneSupplier(t *testing.T) {
	sups := []suppliers.Supplier{
		sup(1, "Acme Corp", suppliers.TypeCore, 5),
		sup(2, "Globex", suppliers.TypeCore, 5),
	}
	effects := []rules.PolicyEffect{{
		Selector:  rules.Selector{Type: rules.SelectBySupplierID, SupplierID: 2},
		Field:     rules.FieldPriority,
		Operation: rules.OpSet,
		Value:     -1,
	}}

	policies := Fold(sups, effects)
	if got := policies[1].Priority; got != 1 {
		t.Fatalf("supplier 1 priority = %d, want base 1", got)
	}
	if got := policies[2].Priority; got != -1 {
		t.Fatalf("supplier 2 priority = %d, want -1", got)
	}
}

func TestFoldReplayIsDeterministic(t *testing.T) {
	sups := []suppliers.Supplier{
		sup(1, "Acme Corp", suppliers.TypeCore, 5),
		sup(2, "Globex", suppliers.TypeFlex, 3),
		sup(3, "Initech", suppliers.TypeFlex, 8),
	}
	effects := []rules.PolicyEffect{
		{Selector: rules.Selector{Type: rules.SelectBySupplierType, SupplierType: suppliers.TypeFlex}, Field: rules.FieldMaxDelayDays, Operation: rules.OpAdd, Value: 10},
		{Selector: rules.Selector{Type: rules.SelectByNamePattern, NamePattern: "Initech"}, Field: rules.FieldMaxDelayDays, Operation: rules.OpSet, Value: 2},
		{Selector: rules.Selector{Type: rules.SelectBySupplierID, SupplierID: 1}, Field: rules.FieldPriority, Operation: rules.OpAdd, Value: 1},
	}

	first := Fold(sups, effects)
	second := Fold(sups, effects)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("replaying identical effects produced different policies:\n%+v\n%+v", first, second)
	}
	if got := first[3].MaxDelayDays; got != 2 {
		t.Fatalf("Initech delay = %d, want later set 2 to override earlier add", got)
	}
}
