package service

import (
	"github.com/wareflow/wareflow-backend/internal/stock/repository"
)

// BatchCut is one deduction against a single batch.
type BatchCut struct {
	BatchID string `json:"batch_id"`
	Qty     int    `json:"qty"`
}

// AllocationPlan is the FIFO consumption plan for one line item. When the
// request cannot be covered, Cuts is nil and Available carries the total that
// was on hand.
type AllocationPlan struct {
	Barcode   string     `json:"barcode"`
	Requested int        `json:"requested"`
	Available int        `json:"available"`
	Cuts      []BatchCut `json:"cuts,omitempty"`
}

// Satisfied reports whether the plan fully covers the requested quantity.
func (p *AllocationPlan) Satisfied() bool {
	return len(p.Cuts) > 0 && p.Available >= p.Requested
}

// Shortfall is available minus requested; negative when stock falls short.
func (p *AllocationPlan) Shortfall() int {
	return p.Available - p.Requested
}

// PlanAllocation walks batches in the order given (oldest first) and carves
// out cuts until the requested quantity is met. It never mutates anything;
// callers apply the cuts under their own transaction. batches must already be
// in FIFO order with a deterministic tie-break.
func PlanAllocation(barcode string, batches []*repository.StockBatch, requested int) *AllocationPlan {
	plan := &AllocationPlan{Barcode: barcode, Requested: requested}

	remaining := requested
	for _, b := range batches {
		plan.Available += b.QtyAvailable
		if remaining <= 0 {
			continue
		}
		take := b.QtyAvailable
		if take > remaining {
			take = remaining
		}
		plan.Cuts = append(plan.Cuts, BatchCut{BatchID: b.ID, Qty: take})
		remaining -= take
	}

	if remaining > 0 {
		plan.Cuts = nil
	}
	return plan
}
