package policy

import (
	"context"
	"log/slog"
	"sort"

	"golang.org/x/sync/singleflight"

	"github.com/cashplan-fin/cashplan-fin/internal/masterdata/suppliers"
	"github.com/cashplan-fin/cashplan-fin/internal/rules"
)

// SupplierDirectory lists the supplier base records the fold starts from.
type SupplierDirectory interface {
	ListAll(ctx context.Context) ([]suppliers.Supplier, error)
}

// EffectsSource returns applied rule effects in application order.
type EffectsSource interface {
	AppliedEffects(ctx context.Context) ([]rules.PolicyEffect, error)
}

// Service answers effective-policy queries, caching derived snapshots.
type Service struct {
	directory SupplierDirectory
	effects   EffectsSource
	cache     *Cache
	group     singleflight.Group
	logger    *slog.Logger
}

func NewService(directory SupplierDirectory, effects EffectsSource, cache *Cache, logger *slog.Logger) *Service {
	return &Service{directory: directory, effects: effects, cache: cache, logger: logger}
}

// EffectiveAll returns the effective policy for every supplier, sorted by
// supplier id.
func (s *Service) EffectiveAll(ctx context.Context) ([]Policy, error) {
	key, err := s.cache.BuildKey(ctx, "cashplan", "policy", "all")
	if err != nil {
		return nil, err
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		var out []Policy
		err := s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (interface{}, error) {
			return s.rebuild(ctx)
		})
		return out, err
	})
	if err != nil {
		return nil, err
	}
	return v.([]Policy), nil
}

// EffectivePolicy returns the effective policy for one supplier.
func (s *Service) EffectivePolicy(ctx context.Context, supplierID int64) (Policy, error) {
	all, err := s.EffectiveAll(ctx)
	if err != nil {
		return Policy{}, err
	}
	for _, p := range all {
		if p.SupplierID == supplierID {
			return p, nil
		}
	}
	return Policy{}, ErrNotFound
}

// Invalidate drops derived snapshots after rule history changed.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

func (s *Service) rebuild(ctx context.Context) ([]Policy, error) {
	sups, err := s.directory.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	effects, err := s.effects.AppliedEffects(ctx)
	if err != nil {
		return nil, err
	}
	byID := Fold(sups, effects)
	out := make([]Policy, 0, len(byID))
	for _, p := range byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SupplierID < out[j].SupplierID })
	s.logger.Debug("policy snapshot rebuilt",
		slog.Int("suppliers", len(sups)),
		slog.Int("effects", len(effects)))
	return out, nil
}
