package rules

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cashplan-fin/cashplan-fin/internal/masterdata/suppliers"
)

type memoryRepo struct {
	nextID int64
	rules  []RuleChange
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{nextID: 1}
}

func (m *memoryRepo) Insert(_ context.Context, text string) (RuleChange, error) {
	rc := RuleChange{ID: m.nextID, Text: text, CreatedAt: time.Now()}
	m.nextID++
	m.rules = append(m.rules, rc)
	return rc, nil
}

func (m *memoryRepo) Get(_ context.Context, id int64) (RuleChange, error) {
	for _, rc := range m.rules {
		if rc.ID == id {
			return rc, nil
		}
	}
	return RuleChange{}, ErrNotFound
}

func (m *memoryRepo) List(_ context.Context, _, _ int) ([]RuleChange, int, error) {
	return m.rules, len(m.rules), nil
}

func (m *memoryRepo) ListPending(context.Context) ([]RuleChange, error) {
	var out []RuleChange
	for _, rc := range m.rules {
		if !rc.Applied {
			out = append(out, rc)
		}
	}
	return out, nil
}

func (m *memoryRepo) ListAppliedEffects(context.Context) ([]PolicyEffect, error) {
	var out []PolicyEffect
	for _, rc := range m.rules {
		if rc.Applied && rc.Effect != nil {
			out = append(out, *rc.Effect)
		}
	}
	return out, nil
}

func (m *memoryRepo) MarkApplied(_ context.Context, id int64, effect PolicyEffect, at time.Time) error {
	for i, rc := range m.rules {
		if rc.ID == id && !rc.Applied {
			e := effect
			m.rules[i].Applied = true
			m.rules[i].Effect = &e
			m.rules[i].AppliedAt = &at
			m.rules[i].LastError = ""
			return nil
		}
	}
	return ErrNotFound
}

func (m *memoryRepo) RecordError(_ context.Context, id int64, msg string) error {
	for i, rc := range m.rules {
		if rc.ID == id {
			m.rules[i].LastError = msg
			return nil
		}
	}
	return ErrNotFound
}

type staticDirectory struct {
	suppliers []suppliers.Supplier
}

func (d *staticDirectory) ListAll(context.Context) ([]suppliers.Supplier, error) {
	return d.suppliers, nil
}

type countingInvalidator struct {
	calls int
}

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.calls++
	return nil
}

func newTestService(dir *staticDirectory) (*Service, *memoryRepo, *countingInvalidator) {
	repo := newMemoryRepo()
	inv := &countingInvalidator{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, dir, inv, nil, logger), repo, inv
}

func TestApplyValidRule(t *testing.T) {
	dir := &staticDirectory{suppliers: []suppliers.Supplier{{ID: 1, Name: "Acme Corp", Type: suppliers.TypeFlex, MaxDelayDays: 3}}}
	svc, repo, inv := newTestService(dir)

	result, err := svc.Apply(context.Background(), "delay Acme Corp by 10 extra days")
	require.NoError(t, err)
	require.True(t, result.Success)
	require.NotNil(t, result.Effect)
	require.Equal(t, FieldMaxDelayDays, result.Effect.Field)
	require.Equal(t, OpAdd, result.Effect.Operation)
	require.Equal(t, 10, result.Effect.Value)

	require.True(t, repo.rules[0].Applied)
	require.NotNil(t, repo.rules[0].Effect)
	require.Equal(t, 1, inv.calls)
}

func TestApplyUnparsableRuleIsStoredUnapplied(t *testing.T) {
	svc, repo, inv := newTestService(&staticDirectory{})

	result, err := svc.Apply(context.Background(), "please pay everyone early")
	require.NoError(t, err)
	require.False(t, result.Success)
	require.NotEmpty(t, result.ParseError)
	require.Nil(t, result.Effect)

	require.Len(t, repo.rules, 1)
	require.False(t, repo.rules[0].Applied)
	require.NotEmpty(t, repo.rules[0].LastError)
	require.Equal(t, 0, inv.calls)
}

func TestApplyUnknownSupplierStaysPending(t *testing.T) {
	svc, repo, _ := newTestService(&staticDirectory{})

	result, err := svc.Apply(context.Background(), "prioritize Ghost Corp payments")
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Contains(t, result.ParseError, "unknown supplier")
	require.False(t, repo.rules[0].Applied)
}

func TestApplyTypeSelectorNeedsNoLookup(t *testing.T) {
	svc, _, inv := newTestService(&staticDirectory{})

	result, err := svc.Apply(context.Background(), "delay all flex suppliers by 5 extra days")
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 1, inv.calls)
}

func TestApplyPendingAppliesAfterSupplierCreated(t *testing.T) {
	dir := &staticDirectory{}
	svc, repo, _ := newTestService(dir)

	result, err := svc.Apply(context.Background(), "set Acme Corp max delay to 7 days")
	require.NoError(t, err)
	require.False(t, result.Success)

	dir.suppliers = []suppliers.Supplier{{ID: 1, Name: "Acme Corp", Type: suppliers.TypeCore, MaxDelayDays: 5}}

	applied, failed, err := svc.ApplyPending(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, applied)
	require.Equal(t, 0, failed)
	require.True(t, repo.rules[0].Applied)
}

func TestApplyPendingCountsFailures(t *testing.T) {
	svc, _, _ := newTestService(&staticDirectory{})

	_, err := svc.Apply(context.Background(), "total nonsense")
	require.NoError(t, err)
	_, err = svc.Apply(context.Background(), "delay all core suppliers by 1 extra day")
	require.NoError(t, err)

	applied, failed, err := svc.ApplyPending(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, applied)
	require.Equal(t, 1, failed)
}

func TestReapplyAlreadyAppliedIsIdempotent(t *testing.T) {
	dir := &staticDirectory{suppliers: []suppliers.Supplier{{ID: 1, Name: "Acme Corp", Type: suppliers.TypeFlex}}}
	svc, _, inv := newTestService(dir)

	result, err := svc.Apply(context.Background(), "prioritize Acme Corp payments")
	require.NoError(t, err)
	require.True(t, result.Success)

	again, err := svc.Reapply(context.Background(), result.Rule.ID)
	require.NoError(t, err)
	require.True(t, again.Success)
	require.Equal(t, 1, inv.calls)
}

func TestAppliedEffectsPreserveOrder(t *testing.T) {
	dir := &staticDirectory{suppliers: []suppliers.Supplier{{ID: 1, Name: "Acme Corp", Type: suppliers.TypeFlex}}}
	svc, _, _ := newTestService(dir)

	_, err := svc.Apply(context.Background(), "set Acme Corp max delay to 7 days")
	require.NoError(t, err)
	_, err = svc.Apply(context.Background(), "delay Acme Corp by 3 extra days")
	require.NoError(t, err)

	effects, err := svc.AppliedEffects(context.Background())
	require.NoError(t, err)
	require.Len(t, effects, 2)
	require.Equal(t, OpSet, effects[0].Operation)
	require.Equal(t, OpAdd, effects[1].Operation)
}
