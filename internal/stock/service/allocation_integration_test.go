package service_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wareflow/wareflow-backend/internal/stock/repository"
	"github.com/wareflow/wareflow-backend/internal/stock/service"
	"github.com/wareflow/wareflow-backend/pkg/config"
	"github.com/wareflow/wareflow-backend/pkg/errors"
	"github.com/wareflow/wareflow-backend/pkg/logger"
	"github.com/wareflow/wareflow-backend/pkg/testutil"
)

var suite *testutil.IntegrationSuite

func TestMain(m *testing.M) {
	ctx := context.Background()

	var err error
	suite, err = testutil.NewIntegrationSuite(ctx)
	if err != nil {
		log.Fatalf("failed to create integration suite: %v", err)
	}
	defer testutil.TerminateContainer(ctx)

	os.Exit(m.Run())
}

func newTestService() *service.AllocationService {
	batchRepo := repository.NewBatchRepository(suite.DB)
	ledgerRepo := repository.NewLedgerRepository(suite.DB)
	dispatchRepo := repository.NewDispatchRepository(suite.DB)
	damageRepo := repository.NewDamageRecoveryRepository(suite.DB)
	testLog := logger.New("test", "test")

	return service.NewAllocationService(
		suite.DB, batchRepo, ledgerRepo, dispatchRepo, damageRepo,
		nil, // no event publisher needed for service tests
		config.AllocationConfig{MaxAttempts: 3, CommitTimeout: 10 * time.Second},
		testLog,
	)
}

func dispatchRequest(orderRef, awb string, lines ...service.ProductLine) *service.DispatchRequest {
	return &service.DispatchRequest{
		Warehouse: "W1",
		OrderRef:  orderRef,
		Customer:  "Acme Retail",
		AWB:       awb,
		Products:  lines,
	}
}

func countLedger(t *testing.T, ctx context.Context, filter repository.LedgerFilter) int64 {
	t.Helper()
	_, total, err := repository.NewLedgerRepository(suite.DB).List(ctx, filter)
	require.NoError(t, err)
	return total
}

func TestDispatch_ConsumesFIFOAcrossBatches(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := testutil.DefaultTestContext(t)
	suite.Reset(t, ctx)
	svc := newTestService()

	seeded, err := suite.Fixtures.SeedBatches(ctx, "4006381333931", "W1", 5, 3)
	require.NoError(t, err)

	result, err := svc.Dispatch(ctx, dispatchRequest("ORD-1", "AWB-1",
		service.ProductLine{Product: "Widget | 4006381333931", Qty: 7},
	))
	require.NoError(t, err)
	assert.Equal(t, 7, result.TotalQty)
	assert.Equal(t, 1, result.Products)
	assert.Contains(t, result.Reference, "DISPATCH_")
	assert.Contains(t, result.Reference, "AWB-1")

	batchRepo := repository.NewBatchRepository(suite.DB)

	// Oldest batch fully drained and flipped to exhausted.
	first, err := batchRepo.GetByID(ctx, seeded[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 0, first.QtyAvailable)
	assert.Equal(t, repository.BatchStatusExhausted, first.Status)

	// Second batch carries the remainder.
	second, err := batchRepo.GetByID(ctx, seeded[1].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, second.QtyAvailable)
	assert.Equal(t, repository.BatchStatusActive, second.Status)

	// One ledger entry for the line with the full requested quantity.
	entries, total, err := repository.NewLedgerRepository(suite.DB).List(ctx, repository.LedgerFilter{
		Warehouse: "W1",
		Barcode:   "4006381333931",
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	assert.Equal(t, repository.MovementDispatch, entries[0].MovementType)
	assert.Equal(t, repository.DirectionOut, entries[0].Direction)
	assert.Equal(t, 7, entries[0].Qty)
	assert.Equal(t, result.Reference, entries[0].Reference)
}

func TestDispatch_InsufficientStockLeavesNothingBehind(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := testutil.DefaultTestContext(t)
	suite.Reset(t, ctx)
	svc := newTestService()

	_, err := suite.Fixtures.SeedBatches(ctx, "4006381333931", "W1", 5, 3)
	require.NoError(t, err)

	_, err = svc.Dispatch(ctx, dispatchRequest("ORD-2", "AWB-2",
		service.ProductLine{Product: "Widget | 4006381333931", Qty: 9},
	))
	require.Error(t, err)

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "INSUFFICIENT_STOCK", appErr.Code)
	assert.Equal(t, "8", appErr.Details["available"])
	assert.Equal(t, "9", appErr.Details["requested"])
	assert.Equal(t, "-1", appErr.Details["shortfall"])

	// No batch was touched, no ledger entry, no dispatch header.
	available, err := repository.NewBatchRepository(suite.DB).SumAvailable(ctx, "4006381333931", "W1")
	require.NoError(t, err)
	assert.Equal(t, 8, available)
	assert.EqualValues(t, 0, countLedger(t, ctx, repository.LedgerFilter{Warehouse: "W1"}))

	_, totalDispatches, err := repository.NewDispatchRepository(suite.DB).List(ctx, repository.DispatchFilter{Warehouse: "W1"})
	require.NoError(t, err)
	assert.EqualValues(t, 0, totalDispatches)
}

func TestDispatch_MultiLineIsAtomic(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := testutil.DefaultTestContext(t)
	suite.Reset(t, ctx)
	svc := newTestService()

	_, err := suite.Fixtures.SeedBatches(ctx, "111", "W1", 10)
	require.NoError(t, err)
	_, err = suite.Fixtures.SeedBatches(ctx, "222", "W1", 2)
	require.NoError(t, err)

	// Second line falls short: the first line's stock must stay untouched.
	_, err = svc.Dispatch(ctx, dispatchRequest("ORD-3", "AWB-3",
		service.ProductLine{Product: "Widget | 111", Qty: 4},
		service.ProductLine{Product: "Gadget | 222", Qty: 5},
	))
	require.Error(t, err)

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "INSUFFICIENT_STOCK", appErr.Code)
	assert.Equal(t, "222", appErr.Details["barcode"])

	batchRepo := repository.NewBatchRepository(suite.DB)
	available, err := batchRepo.SumAvailable(ctx, "111", "W1")
	require.NoError(t, err)
	assert.Equal(t, 10, available)
	assert.EqualValues(t, 0, countLedger(t, ctx, repository.LedgerFilter{Warehouse: "W1"}))
}

func TestDispatch_MultiLineHeaderCarriesFirstProduct(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := testutil.DefaultTestContext(t)
	suite.Reset(t, ctx)
	svc := newTestService()

	_, err := suite.Fixtures.SeedBatches(ctx, "111", "W1", 10)
	require.NoError(t, err)
	_, err = suite.Fixtures.SeedBatches(ctx, "222", "W1", 10)
	require.NoError(t, err)

	result, err := svc.Dispatch(ctx, dispatchRequest("ORD-4", "AWB-4",
		service.ProductLine{Product: "Widget | 111", Qty: 4},
		service.ProductLine{Product: "Gadget | 222", Qty: 2},
	))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Products)
	assert.Equal(t, 6, result.TotalQty)

	dispatches, _, err := repository.NewDispatchRepository(suite.DB).List(ctx, repository.DispatchFilter{Warehouse: "W1"})
	require.NoError(t, err)
	require.Len(t, dispatches, 1)
	assert.Equal(t, "111", dispatches[0].Barcode)
	assert.Equal(t, "Widget", dispatches[0].ProductName)
	assert.Equal(t, 6, dispatches[0].TotalQty)

	// But the ledger carries one entry per line.
	assert.EqualValues(t, 2, countLedger(t, ctx, repository.LedgerFilter{Warehouse: "W1"}))
}

func TestDispatch_ConcurrentRequestsNeverOversell(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := testutil.DefaultTestContext(t)
	suite.Reset(t, ctx)
	svc := newTestService()

	_, err := suite.Fixtures.SeedBatches(ctx, "4006381333931", "W1", 10, 10)
	require.NoError(t, err)

	const workers = 10
	const qtyEach = 3

	var wg sync.WaitGroup
	results := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.Dispatch(ctx, dispatchRequest(
				fmt.Sprintf("ORD-C%d", i), fmt.Sprintf("AWB-C%d", i),
				service.ProductLine{Product: "Widget | 4006381333931", Qty: qtyEach},
			))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		var appErr *errors.AppError
		require.True(t, errors.As(err, &appErr), "unexpected error type: %v", err)
		assert.Contains(t, []string{"INSUFFICIENT_STOCK", "CONCURRENT_CONFLICT"}, appErr.Code)
	}

	// 20 units on hand, 3 per request: at most 6 requests can ever commit,
	// and the contention must not wedge every request.
	assert.LessOrEqual(t, succeeded, 6)
	assert.GreaterOrEqual(t, succeeded, 1)

	available, err := repository.NewBatchRepository(suite.DB).SumAvailable(ctx, "4006381333931", "W1")
	require.NoError(t, err)
	assert.Equal(t, 20-succeeded*qtyEach, available)

	// The ledger accounts for exactly what was committed.
	assert.EqualValues(t, succeeded, countLedger(t, ctx, repository.LedgerFilter{Warehouse: "W1"}))
}

func TestTransfer_MovesStockBetweenWarehouses(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := testutil.DefaultTestContext(t)
	suite.Reset(t, ctx)
	svc := newTestService()

	_, err := suite.Fixtures.SeedBatches(ctx, "111", "W1", 6)
	require.NoError(t, err)

	result, err := svc.Transfer(ctx, &service.TransferRequest{
		Reference:   "TRF-1",
		Source:      "W1",
		Destination: "W2",
		Products: []service.ProductLine{
			{Product: "Widget | Blue | 111", Qty: 4},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, result.TotalQty)

	batchRepo := repository.NewBatchRepository(suite.DB)
	sourceLeft, err := batchRepo.SumAvailable(ctx, "111", "W1")
	require.NoError(t, err)
	assert.Equal(t, 2, sourceLeft)

	// Destination got a fresh batch for the moved quantity.
	destBatches, err := batchRepo.ListActiveFIFO(ctx, "111", "W2")
	require.NoError(t, err)
	require.Len(t, destBatches, 1)
	assert.Equal(t, 4, destBatches[0].QtyAvailable)
	assert.Equal(t, 4, destBatches[0].QtyReceived)
	require.NotNil(t, destBatches[0].Variant)
	assert.Equal(t, "Blue", *destBatches[0].Variant)

	// One OUT entry at the source, one IN entry at the destination.
	outEntries, _, err := repository.NewLedgerRepository(suite.DB).List(ctx, repository.LedgerFilter{Warehouse: "W1"})
	require.NoError(t, err)
	require.Len(t, outEntries, 1)
	assert.Equal(t, repository.DirectionOut, outEntries[0].Direction)
	assert.Equal(t, "TRF-1", outEntries[0].Reference)

	inEntries, _, err := repository.NewLedgerRepository(suite.DB).List(ctx, repository.LedgerFilter{Warehouse: "W2"})
	require.NoError(t, err)
	require.Len(t, inEntries, 1)
	assert.Equal(t, repository.DirectionIn, inEntries[0].Direction)
	assert.Equal(t, repository.MovementTransfer, inEntries[0].MovementType)
}

func TestTransfer_InsufficientSourceStock(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := testutil.DefaultTestContext(t)
	suite.Reset(t, ctx)
	svc := newTestService()

	_, err := suite.Fixtures.SeedBatches(ctx, "111", "W1", 2)
	require.NoError(t, err)

	_, err = svc.Transfer(ctx, &service.TransferRequest{
		Reference:   "TRF-2",
		Source:      "W1",
		Destination: "W2",
		Products: []service.ProductLine{
			{Product: "Widget | 111", Qty: 5},
		},
	})
	require.Error(t, err)

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "INSUFFICIENT_STOCK", appErr.Code)

	// Nothing moved, nothing created at the destination.
	batchRepo := repository.NewBatchRepository(suite.DB)
	destBatches, err := batchRepo.ListActiveFIFO(ctx, "111", "W2")
	require.NoError(t, err)
	assert.Empty(t, destBatches)
}

func TestDamageRecovery_LedgerAndLogOnly(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := testutil.DefaultTestContext(t)
	suite.Reset(t, ctx)
	svc := newTestService()

	_, err := suite.Fixtures.SeedBatches(ctx, "111", "W1", 10)
	require.NoError(t, err)

	result, err := svc.DamageRecovery(ctx, &service.DamageRecoveryRequest{
		Warehouse:   "W1",
		Action:      repository.ActionDamage,
		Barcode:     "111",
		ProductName: "Widget",
		Qty:         2,
	})
	require.NoError(t, err)
	assert.Contains(t, result.Reference, "DAMAGE_")
	assert.Contains(t, result.Reference, result.LogID)

	// Batch quantities are intentionally untouched by damage entries.
	available, err := repository.NewBatchRepository(suite.DB).SumAvailable(ctx, "111", "W1")
	require.NoError(t, err)
	assert.Equal(t, 10, available)

	entries, _, err := repository.NewLedgerRepository(suite.DB).List(ctx, repository.LedgerFilter{
		Warehouse:    "W1",
		MovementType: repository.MovementDamage,
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, repository.DirectionOut, entries[0].Direction)
	assert.Equal(t, 2, entries[0].Qty)

	logs, err := repository.NewDamageRecoveryRepository(suite.DB).List(ctx, "W1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, repository.ActionDamage, logs[0].Action)
}

func TestDamageRecovery_RecoveryGoesIn(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := testutil.DefaultTestContext(t)
	suite.Reset(t, ctx)
	svc := newTestService()

	result, err := svc.DamageRecovery(ctx, &service.DamageRecoveryRequest{
		Warehouse:   "W1",
		Action:      repository.ActionRecovery,
		Barcode:     "111",
		ProductName: "Widget",
		Qty:         3,
	})
	require.NoError(t, err)
	assert.Contains(t, result.Reference, "RECOVERY_")

	entries, _, err := repository.NewLedgerRepository(suite.DB).List(ctx, repository.LedgerFilter{
		Warehouse:    "W1",
		MovementType: repository.MovementRecovery,
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, repository.DirectionIn, entries[0].Direction)
}

func TestReturn_WritesInboundLedgerOnly(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := testutil.DefaultTestContext(t)
	suite.Reset(t, ctx)
	svc := newTestService()

	result, err := svc.Return(ctx, &service.ReturnRequest{
		Warehouse:   "W1",
		Barcode:     "111",
		ProductName: "Widget",
		Qty:         2,
		Reference:   "RET-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "RET-1", result.Reference)

	entries, _, err := repository.NewLedgerRepository(suite.DB).List(ctx, repository.LedgerFilter{
		Warehouse:    "W1",
		MovementType: repository.MovementReturn,
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, repository.DirectionIn, entries[0].Direction)

	// Returns do not recreate batches; re-entry happens through intake.
	batches, err := repository.NewBatchRepository(suite.DB).ListActiveFIFO(ctx, "111", "W1")
	require.NoError(t, err)
	assert.Empty(t, batches)
}

func TestIntake_CreatesBatchesWithoutLedgerEntries(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := testutil.DefaultTestContext(t)
	suite.Reset(t, ctx)
	svc := newTestService()

	result, err := svc.Intake(ctx, &service.IntakeRequest{
		Warehouse: "W1",
		Batches: []service.IntakeLine{
			{Product: "Widget | 111", Qty: 10},
			{Product: "Gadget | Red | 222", Qty: 4},
		},
	})
	require.NoError(t, err)
	assert.Len(t, result.BatchIDs, 2)
	assert.Equal(t, 14, result.TotalQty)

	batchRepo := repository.NewBatchRepository(suite.DB)
	available, err := batchRepo.SumAvailable(ctx, "111", "W1")
	require.NoError(t, err)
	assert.Equal(t, 10, available)

	assert.EqualValues(t, 0, countLedger(t, ctx, repository.LedgerFilter{Warehouse: "W1"}))
}

func TestAvailability(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := testutil.DefaultTestContext(t)
	suite.Reset(t, ctx)
	svc := newTestService()

	_, err := suite.Fixtures.SeedBatches(ctx, "111", "W1", 5, 3)
	require.NoError(t, err)

	result, err := svc.Availability(ctx, "W1", "111", 7)
	require.NoError(t, err)
	assert.Equal(t, 8, result.Available)
	require.NotNil(t, result.Sufficient)
	assert.True(t, *result.Sufficient)

	result, err = svc.Availability(ctx, "W1", "111", 9)
	require.NoError(t, err)
	require.NotNil(t, result.Sufficient)
	assert.False(t, *result.Sufficient)

	// Without a requested quantity only the total is reported.
	result, err = svc.Availability(ctx, "W1", "111", 0)
	require.NoError(t, err)
	assert.Equal(t, 8, result.Available)
	assert.Nil(t, result.Sufficient)
}
