package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// Stock movement events, published after the allocation transaction commits
	EventStockDispatched     = "stock.dispatched"
	EventStockTransferred    = "stock.transferred"
	EventStockDamageRecovery = "stock.damage_recovery"
	EventStockReturned       = "stock.returned"
	EventBatchesReceived     = "stock.batches.received"

	// Order events consumed from the order service
	EventOrderDispatchRequested = "orders.dispatch.requested"
)

// Exchange names
const (
	ExchangeStockEvents = "stock.events"
	ExchangeOrderEvents = "orders.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// MovementLine describes one allocated line item in a movement event
type MovementLine struct {
	Barcode     string `json:"barcode"`
	ProductName string `json:"product_name"`
	Qty         int    `json:"qty"`
}

// StockDispatchedEvent is published when a dispatch allocation commits
type StockDispatchedEvent struct {
	DispatchID string         `json:"dispatch_id"`
	OrderRef   string         `json:"order_ref"`
	AWB        string         `json:"awb"`
	Warehouse  string         `json:"warehouse"`
	Lines      []MovementLine `json:"lines"`
	TotalQty   int            `json:"total_qty"`
}

// StockTransferredEvent is published when both legs of a transfer commit
type StockTransferredEvent struct {
	Reference   string         `json:"reference"`
	Source      string         `json:"source"`
	Destination string         `json:"destination"`
	Lines       []MovementLine `json:"lines"`
	TotalQty    int            `json:"total_qty"`
}

// DamageRecoveryEvent is published when a damage or recovery entry commits
type DamageRecoveryEvent struct {
	Action      string `json:"action"` // DAMAGE or RECOVERY
	Barcode     string `json:"barcode"`
	ProductName string `json:"product_name"`
	Warehouse   string `json:"warehouse"`
	Qty         int    `json:"qty"`
	Reference   string `json:"reference"`
}

// StockReturnedEvent is published when a return entry commits
type StockReturnedEvent struct {
	Barcode     string `json:"barcode"`
	ProductName string `json:"product_name"`
	Warehouse   string `json:"warehouse"`
	Qty         int    `json:"qty"`
	Reference   string `json:"reference"`
}

// BatchesReceivedEvent is published when an intake creates new batches
type BatchesReceivedEvent struct {
	Warehouse string   `json:"warehouse"`
	BatchIDs  []string `json:"batch_ids"`
	TotalQty  int      `json:"total_qty"`
}

// OrderDispatchRequestedEvent is consumed from the order service; it carries
// the same payload shape the HTTP dispatch endpoint accepts.
type OrderDispatchRequestedEvent struct {
	Warehouse    string `json:"warehouse"`
	OrderRef     string `json:"order_ref"`
	CustomerName string `json:"customer_name"`
	AWBNumber    string `json:"awb_number"`
	Products     []struct {
		Name string `json:"name"`
		Qty  int    `json:"qty"`
	} `json:"products"`
}
