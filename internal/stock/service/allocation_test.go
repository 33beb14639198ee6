package service

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wareflow/wareflow-backend/internal/stock/repository"
	"github.com/wareflow/wareflow-backend/pkg/config"
	"github.com/wareflow/wareflow-backend/pkg/database"
	"github.com/wareflow/wareflow-backend/pkg/errors"
	"github.com/wareflow/wareflow-backend/pkg/logger"
	"github.com/wareflow/wareflow-backend/pkg/testutil"
)

func newMockService(t *testing.T, cfg config.AllocationConfig) (*AllocationService, *testutil.MockDB) {
	mockDB := testutil.NewMockDB(t)
	t.Cleanup(func() { mockDB.Close() })

	log := logger.New("test", "test")
	db := database.Wrap(mockDB.DB, log)

	svc := NewAllocationService(
		db,
		repository.NewBatchRepository(db),
		repository.NewLedgerRepository(db),
		repository.NewDispatchRepository(db),
		repository.NewDamageRecoveryRepository(db),
		nil,
		cfg,
		log,
	)
	return svc, mockDB
}

func TestDispatch_RejectsEmptyProductList(t *testing.T) {
	svc, mockDB := newMockService(t, config.AllocationConfig{MaxAttempts: 3})

	// No expectations: an empty order must be rejected before any
	// transaction is opened.
	_, err := svc.Dispatch(context.Background(), &DispatchRequest{
		Warehouse: "WH-BLR",
		OrderRef:  "ORD-1",
		Customer:  "Asha",
		AWB:       "AWB-1",
		Products:  nil,
	})
	require.Error(t, err)

	var appErr *errors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
	assert.Contains(t, appErr.Details, "products")

	mockDB.ExpectationsWereMet(t)
}

func TestTransfer_RejectsEmptyProductList(t *testing.T) {
	svc, mockDB := newMockService(t, config.AllocationConfig{MaxAttempts: 3})

	_, err := svc.Transfer(context.Background(), &TransferRequest{
		Reference:   "TRF-1",
		Source:      "WH-BLR",
		Destination: "WH-DEL",
		Products:    []ProductLine{},
	})
	require.Error(t, err)

	var appErr *errors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)

	mockDB.ExpectationsWereMet(t)
}

func expectDispatchAttempt(mockDB *testutil.MockDB) {
	mockDB.ExpectBegin()
	mockDB.Mock.ExpectQuery("SELECT \\* FROM stock_batches").
		WithArgs("BC-100", "WH-BLR").
		WillReturnRows(sqlmock.NewRows(testutil.BatchColumns()).
			AddRow("batch-1", "BC-100", "Widget", nil, "WH-BLR", 10, 10, "active", time.Now()))
	mockDB.Mock.ExpectQuery("INSERT INTO warehouse_dispatches").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
}

func TestDispatch_RetriesSerializationFailure(t *testing.T) {
	svc, mockDB := newMockService(t, config.AllocationConfig{MaxAttempts: 2})

	// First attempt: the decrement hits a serialization failure and the
	// transaction rolls back.
	expectDispatchAttempt(mockDB)
	mockDB.Mock.ExpectExec("UPDATE stock_batches").
		WithArgs("batch-1", 3).
		WillReturnError(&pq.Error{Code: "40001"})
	mockDB.ExpectRollback()

	// Second attempt: a fresh transaction runs the whole request again and
	// commits.
	expectDispatchAttempt(mockDB)
	mockDB.Mock.ExpectExec("UPDATE stock_batches").
		WithArgs("batch-1", 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.Mock.ExpectExec("INSERT INTO inventory_ledger").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	result, err := svc.Dispatch(context.Background(), &DispatchRequest{
		Warehouse: "WH-BLR",
		OrderRef:  "ORD-1",
		Customer:  "Asha",
		AWB:       "AWB-1",
		Products:  []ProductLine{{Product: "Widget | BC-100", Qty: 3}},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.TotalQty)

	mockDB.ExpectationsWereMet(t)
}

func TestDispatch_SerializationFailuresExhaustRetries(t *testing.T) {
	svc, mockDB := newMockService(t, config.AllocationConfig{MaxAttempts: 2})

	for i := 0; i < 2; i++ {
		expectDispatchAttempt(mockDB)
		mockDB.Mock.ExpectExec("UPDATE stock_batches").
			WithArgs("batch-1", 3).
			WillReturnError(&pq.Error{Code: "40001"})
		mockDB.ExpectRollback()
	}

	_, err := svc.Dispatch(context.Background(), &DispatchRequest{
		Warehouse: "WH-BLR",
		OrderRef:  "ORD-1",
		Customer:  "Asha",
		AWB:       "AWB-1",
		Products:  []ProductLine{{Product: "Widget | BC-100", Qty: 3}},
	})
	require.Error(t, err)

	var appErr *errors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "CONCURRENT_CONFLICT", appErr.Code)

	// ExpectationsWereMet proves the second attempt actually ran.
	mockDB.ExpectationsWereMet(t)
}
