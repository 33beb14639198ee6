package service

import (
	"context"

	"github.com/wareflow/wareflow-backend/internal/stock/repository"
)

// AvailabilityResult reports how much stock is on hand for a barcode.
type AvailabilityResult struct {
	Barcode    string `json:"barcode"`
	Warehouse  string `json:"warehouse"`
	Available  int    `json:"available"`
	Requested  int    `json:"requested,omitempty"`
	Sufficient *bool  `json:"sufficient,omitempty"`
}

// Availability sums active batch quantities for a barcode. When qty is
// positive the result also reports whether that quantity could be covered.
func (s *AllocationService) Availability(ctx context.Context, warehouse, barcode string, qty int) (*AvailabilityResult, error) {
	available, err := s.batchRepo.SumAvailable(ctx, barcode, warehouse)
	if err != nil {
		return nil, err
	}

	result := &AvailabilityResult{
		Barcode:   barcode,
		Warehouse: warehouse,
		Available: available,
	}
	if qty > 0 {
		result.Requested = qty
		sufficient := available >= qty
		result.Sufficient = &sufficient
	}
	return result, nil
}

// ListBatches returns active batches for a barcode in FIFO order.
func (s *AllocationService) ListBatches(ctx context.Context, warehouse, barcode string) ([]*repository.StockBatch, error) {
	return s.batchRepo.ListActiveFIFO(ctx, barcode, warehouse)
}

// ListLedger returns movement ledger entries matching the filter.
func (s *AllocationService) ListLedger(ctx context.Context, filter repository.LedgerFilter) ([]*repository.LedgerEntry, int64, error) {
	return s.ledgerRepo.List(ctx, filter)
}

// ListDispatches returns dispatch headers matching the filter.
func (s *AllocationService) ListDispatches(ctx context.Context, filter repository.DispatchFilter) ([]*repository.Dispatch, int64, error) {
	return s.dispatchRepo.List(ctx, filter)
}

// UpdateDispatchStatus updates a dispatch header's fulfillment status.
func (s *AllocationService) UpdateDispatchStatus(ctx context.Context, id, status string, processedBy, remarks *string) error {
	return s.dispatchRepo.UpdateStatus(ctx, id, status, processedBy, remarks)
}
