package suppliers

import (
	"context"
	"fmt"

	"github.com/cashplan-fin/cashplan-fin/internal/masterdata/shared"
)

// Defaults supplies the per-type max delay applied when a supplier is created
// without an explicit override.
type Defaults struct {
	CoreMaxDelayDays int
	FlexMaxDelayDays int
}

type Service struct {
	repo     Repository
	defaults Defaults
}

func NewService(repo Repository, defaults Defaults) *Service {
	return &Service{repo: repo, defaults: defaults}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Supplier, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) ListAll(ctx context.Context) ([]Supplier, error) {
	return s.repo.ListAll(ctx)
}

func (s *Service) Get(ctx context.Context, id int64) (Supplier, error) {
	if id <= 0 {
		return Supplier{}, shared.ErrInvalidID
	}
	return s.repo.Get(ctx, id)
}

// Create persists a supplier, filling the max delay from the type default when
// the caller leaves it negative.
func (s *Service) Create(ctx context.Context, supplier Supplier) (Supplier, error) {
	if supplier.MaxDelayDays < 0 {
		supplier.MaxDelayDays = s.defaultDelay(supplier.Type)
	}
	if err := s.validate(supplier); err != nil {
		return Supplier{}, err
	}
	return s.repo.Create(ctx, supplier)
}

func (s *Service) Update(ctx context.Context, id int64, supplier Supplier) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	if err := s.validate(supplier); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, supplier)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	return s.repo.Delete(ctx, id)
}

func (s *Service) defaultDelay(supplierType string) int {
	if supplierType == TypeCore {
		return s.defaults.CoreMaxDelayDays
	}
	return s.defaults.FlexMaxDelayDays
}

func (s *Service) validate(sup Supplier) error {
	if sup.Name == "" {
		return fmt.Errorf("%w: name", shared.ErrRequiredField)
	}
	if !ValidType(sup.Type) {
		return fmt.Errorf("%w: type must be core or flex", shared.ErrValidation)
	}
	if sup.MaxDelayDays < 0 {
		return fmt.Errorf("%w: max_delay_days must not be negative", shared.ErrValidation)
	}
	return nil
}
