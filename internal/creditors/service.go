package creditors

import (
	"context"
	"fmt"
	"time"

	"github.com/cashplan-fin/cashplan-fin/internal/masterdata/shared"
)

// Service exposes creditor listing and the normalized-import boundary.
type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Creditor, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Creditor, error) {
	if id <= 0 {
		return Creditor{}, ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

// Outstanding returns every payable obligation with aging recomputed as of now.
func (s *Service) Outstanding(ctx context.Context) ([]Creditor, error) {
	list, err := s.repo.ListOutstanding(ctx)
	if err != nil {
		return nil, err
	}
	asOf := s.now()
	for i := range list {
		list[i].AgingDays = list[i].AgingAsOf(asOf)
	}
	return list, nil
}

// Import persists normalized creditor records produced by the external
// ingestion pipeline. Each record is validated; the batch is rejected whole
// on the first invalid row.
func (s *Service) Import(ctx context.Context, records []Creditor) (int, error) {
	if len(records) == 0 {
		return 0, fmt.Errorf("%w: empty batch", ErrInvalid)
	}
	asOf := s.now()
	for i := range records {
		if err := records[i].Validate(); err != nil {
			return 0, fmt.Errorf("record %d: %w", i, err)
		}
		records[i].AgingDays = records[i].AgingAsOf(asOf)
	}
	return s.repo.Insert(ctx, records)
}
