package suppliers

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cashplan-fin/cashplan-fin/internal/masterdata/shared"
)

type memoryRepo struct {
	nextID    int64
	suppliers map[int64]Supplier
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{nextID: 1, suppliers: map[int64]Supplier{}}
}

func (m *memoryRepo) List(_ context.Context, filters shared.ListFilters) ([]Supplier, int, error) {
	all, _ := m.ListAll(context.Background())
	var out []Supplier
	for _, s := range all {
		if filters.Search != "" && !strings.Contains(strings.ToLower(s.Name), strings.ToLower(filters.Search)) {
			continue
		}
		if filters.SupplierType != nil && s.Type != *filters.SupplierType {
			continue
		}
		out = append(out, s)
	}
	return out, len(out), nil
}

func (m *memoryRepo) ListAll(context.Context) ([]Supplier, error) {
	out := make([]Supplier, 0, len(m.suppliers))
	for _, s := range m.suppliers {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryRepo) Get(_ context.Context, id int64) (Supplier, error) {
	s, ok := m.suppliers[id]
	if !ok {
		return Supplier{}, shared.ErrNotFound
	}
	return s, nil
}

func (m *memoryRepo) Create(_ context.Context, s Supplier) (Supplier, error) {
	s.ID = m.nextID
	m.nextID++
	m.suppliers[s.ID] = s
	return s, nil
}

func (m *memoryRepo) Update(_ context.Context, id int64, s Supplier) error {
	if _, ok := m.suppliers[id]; !ok {
		return shared.ErrNotFound
	}
	s.ID = id
	m.suppliers[id] = s
	return nil
}

func (m *memoryRepo) Delete(_ context.Context, id int64) error {
	if _, ok := m.suppliers[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.suppliers, id)
	return nil
}

func newTestService() (*Service, *memoryRepo) {
	repo := newMemoryRepo()
	return NewService(repo, Defaults{CoreMaxDelayDays: 5, FlexMaxDelayDays: 15}), repo
}

func TestCreateAppliesTypeDefaults(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	core, err := svc.Create(ctx, Supplier{Name: "Acme Corp", Type: TypeCore, MaxDelayDays: -1})
	require.NoError(t, err)
	require.Equal(t, 5, core.MaxDelayDays)

	flex, err := svc.Create(ctx, Supplier{Name: "Bolt Ltd", Type: TypeFlex, MaxDelayDays: -1})
	require.NoError(t, err)
	require.Equal(t, 15, flex.MaxDelayDays)
}

func TestCreateKeepsExplicitDelay(t *testing.T) {
	svc, _ := newTestService()

	s, err := svc.Create(context.Background(), Supplier{Name: "Acme Corp", Type: TypeCore, MaxDelayDays: 30})
	require.NoError(t, err)
	require.Equal(t, 30, s.MaxDelayDays)
}

func TestCreateRejectsUnknownType(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Create(context.Background(), Supplier{Name: "Acme Corp", Type: "preferred", MaxDelayDays: 3})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateRequiresName(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Create(context.Background(), Supplier{Type: TypeCore, MaxDelayDays: 3})
	require.ErrorIs(t, err, shared.ErrRequiredField)
}

func TestUpdateUnknownSupplier(t *testing.T) {
	svc, _ := newTestService()

	err := svc.Update(context.Background(), 99, Supplier{Name: "Ghost", Type: TypeFlex, MaxDelayDays: 1})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestListFiltersByType(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, Supplier{Name: "Acme Corp", Type: TypeCore, MaxDelayDays: -1})
	require.NoError(t, err)
	_, err = svc.Create(ctx, Supplier{Name: "Bolt Ltd", Type: TypeFlex, MaxDelayDays: -1})
	require.NoError(t, err)

	flex := TypeFlex
	got, total, err := svc.List(ctx, shared.ListFilters{SupplierType: &flex})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, "Bolt Ltd", got[0].Name)
}
