package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wareflow/wareflow-backend/internal/stock/repository"
)

func fifoBatches(quantities ...int) []*repository.StockBatch {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	batches := make([]*repository.StockBatch, 0, len(quantities))
	for i, qty := range quantities {
		batches = append(batches, &repository.StockBatch{
			ID:           string(rune('a' + i)),
			Barcode:      "B1",
			ProductName:  "Widget",
			Warehouse:    "W1",
			QtyReceived:  qty,
			QtyAvailable: qty,
			Status:       repository.BatchStatusActive,
			CreatedAt:    base.Add(time.Duration(i) * time.Hour),
		})
	}
	return batches
}

func TestPlanAllocation_SpansBatchesOldestFirst(t *testing.T) {
	batches := fifoBatches(5, 3)

	plan := PlanAllocation("B1", batches, 7)

	require.True(t, plan.Satisfied())
	assert.Equal(t, 7, plan.Requested)
	assert.Equal(t, 8, plan.Available)
	require.Len(t, plan.Cuts, 2)
	assert.Equal(t, batches[0].ID, plan.Cuts[0].BatchID)
	assert.Equal(t, 5, plan.Cuts[0].Qty)
	assert.Equal(t, batches[1].ID, plan.Cuts[1].BatchID)
	assert.Equal(t, 2, plan.Cuts[1].Qty)
}

func TestPlanAllocation_ExactlyDrainsStock(t *testing.T) {
	batches := fifoBatches(5, 3)

	plan := PlanAllocation("B1", batches, 8)

	require.True(t, plan.Satisfied())
	require.Len(t, plan.Cuts, 2)
	assert.Equal(t, 5, plan.Cuts[0].Qty)
	assert.Equal(t, 3, plan.Cuts[1].Qty)

	total := 0
	for _, cut := range plan.Cuts {
		total += cut.Qty
	}
	assert.Equal(t, plan.Requested, total)
}

func TestPlanAllocation_Shortfall(t *testing.T) {
	batches := fifoBatches(5, 3)

	plan := PlanAllocation("B1", batches, 9)

	assert.False(t, plan.Satisfied())
	assert.Nil(t, plan.Cuts)
	assert.Equal(t, 8, plan.Available)
	assert.Equal(t, -1, plan.Shortfall())
}

func TestPlanAllocation_NoBatches(t *testing.T) {
	plan := PlanAllocation("B1", nil, 1)

	assert.False(t, plan.Satisfied())
	assert.Equal(t, 0, plan.Available)
	assert.Equal(t, -1, plan.Shortfall())
}

func TestPlanAllocation_SingleBatchPartialCut(t *testing.T) {
	batches := fifoBatches(10)

	plan := PlanAllocation("B1", batches, 4)

	require.True(t, plan.Satisfied())
	require.Len(t, plan.Cuts, 1)
	assert.Equal(t, 4, plan.Cuts[0].Qty)
	assert.Equal(t, 10, plan.Available)
	assert.Equal(t, 6, plan.Shortfall())
}

func TestPlanAllocation_SkipsNothingInOrder(t *testing.T) {
	// Many small batches: the plan must touch them strictly in sequence.
	batches := fifoBatches(1, 1, 1, 1, 1)

	plan := PlanAllocation("B1", batches, 3)

	require.True(t, plan.Satisfied())
	require.Len(t, plan.Cuts, 3)
	for i, cut := range plan.Cuts {
		assert.Equal(t, batches[i].ID, cut.BatchID)
		assert.Equal(t, 1, cut.Qty)
	}
}
