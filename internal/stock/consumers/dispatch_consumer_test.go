package consumers

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wareflow/wareflow-backend/internal/stock/repository"
	"github.com/wareflow/wareflow-backend/internal/stock/service"
	"github.com/wareflow/wareflow-backend/pkg/config"
	"github.com/wareflow/wareflow-backend/pkg/database"
	"github.com/wareflow/wareflow-backend/pkg/logger"
	"github.com/wareflow/wareflow-backend/pkg/messaging"
	"github.com/wareflow/wareflow-backend/pkg/testutil"
)

func newTestConsumer(t *testing.T) (*OrderEventConsumer, *testutil.MockDB) {
	mockDB := testutil.NewMockDB(t)
	t.Cleanup(func() { mockDB.Close() })

	log := logger.New("test", "test")
	db := database.Wrap(mockDB.DB, log)

	svc := service.NewAllocationService(
		db,
		repository.NewBatchRepository(db),
		repository.NewLedgerRepository(db),
		repository.NewDispatchRepository(db),
		repository.NewDamageRecoveryRepository(db),
		nil,
		config.AllocationConfig{MaxAttempts: 3},
		log,
	)

	return &OrderEventConsumer{service: svc, logger: log}, mockDB
}

func dispatchEvent(t *testing.T, data messaging.OrderDispatchRequestedEvent) *messaging.Event {
	body, err := json.Marshal(data)
	require.NoError(t, err)
	return &messaging.Event{
		ID:   "evt-1",
		Type: messaging.EventOrderDispatchRequested,
		Data: body,
	}
}

func TestHandleDispatchRequested_AcksEventWithoutProducts(t *testing.T) {
	consumer, mockDB := newTestConsumer(t)

	event := dispatchEvent(t, messaging.OrderDispatchRequestedEvent{
		Warehouse:    "WH-BLR",
		OrderRef:     "ORD-1",
		CustomerName: "Asha",
		AWBNumber:    "AWB-1",
	})

	// A payload with no product lines can never succeed; the handler must
	// ack it without opening a transaction.
	err := consumer.handleDispatchRequested(context.Background(), event)
	require.NoError(t, err)

	mockDB.ExpectationsWereMet(t)
}

func TestHandleDispatchRequested_AcksEventWithMissingFields(t *testing.T) {
	consumer, mockDB := newTestConsumer(t)

	event := dispatchEvent(t, messaging.OrderDispatchRequestedEvent{
		OrderRef: "ORD-2",
	})

	err := consumer.handleDispatchRequested(context.Background(), event)
	require.NoError(t, err)

	mockDB.ExpectationsWereMet(t)
}
