package consumers

import (
	"context"

	"github.com/wareflow/wareflow-backend/internal/stock/service"
	"github.com/wareflow/wareflow-backend/pkg/errors"
	"github.com/wareflow/wareflow-backend/pkg/httputil"
	"github.com/wareflow/wareflow-backend/pkg/logger"
	"github.com/wareflow/wareflow-backend/pkg/messaging"
)

// OrderEventConsumer consumes dispatch requests from the order service and
// drives the same allocation path as the HTTP endpoint.
type OrderEventConsumer struct {
	consumer *messaging.Consumer
	service  *service.AllocationService
	logger   *logger.Logger
}

// NewOrderEventConsumer creates a new order event consumer
func NewOrderEventConsumer(rmq *messaging.RabbitMQ, svc *service.AllocationService, log *logger.Logger) (*OrderEventConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, "stock-service.order-events", log)
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(messaging.ExchangeOrderEvents, "orders.dispatch.#"); err != nil {
		return nil, err
	}

	c := &OrderEventConsumer{
		consumer: consumer,
		service:  svc,
		logger:   log,
	}

	consumer.RegisterHandler(messaging.EventOrderDispatchRequested, c.handleDispatchRequested)

	return c, nil
}

// Start starts consuming messages
func (c *OrderEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

func (c *OrderEventConsumer) handleDispatchRequested(ctx context.Context, event *messaging.Event) error {
	var data messaging.OrderDispatchRequestedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	c.logger.Info().
		Str("order_ref", data.OrderRef).
		Str("warehouse", data.Warehouse).
		Int("products", len(data.Products)).
		Msg("received order dispatch request")

	req := &service.DispatchRequest{
		Warehouse: data.Warehouse,
		OrderRef:  data.OrderRef,
		Customer:  data.CustomerName,
		AWB:       data.AWBNumber,
	}
	for _, p := range data.Products {
		req.Products = append(req.Products, service.ProductLine{
			Product: p.Name,
			Qty:     p.Qty,
		})
	}

	// Events do not pass through the HTTP validation layer, so run the same
	// checks here before touching stock.
	if err := httputil.Validate(req); err != nil {
		c.logger.Error().Err(err).
			Str("order_ref", data.OrderRef).
			Msg("dispatch request rejected")
		return nil
	}

	ctx = messaging.WithCorrelationID(ctx, event.CorrelationID)
	result, err := c.service.Dispatch(ctx, req)
	if err != nil {
		// Insufficient stock and bad payloads will not heal on redelivery;
		// ack them and rely on the failure log for follow-up. Concurrency
		// conflicts are worth another delivery against fresh state.
		var appErr *errors.AppError
		if errors.As(err, &appErr) && appErr.StatusCode < 500 && appErr.Code != "CONCURRENT_CONFLICT" {
			c.logger.Error().Err(err).
				Str("order_ref", data.OrderRef).
				Msg("dispatch request rejected")
			return nil
		}
		return err
	}

	c.logger.Info().
		Str("order_ref", data.OrderRef).
		Str("dispatch_id", result.DispatchID).
		Int("total_qty", result.TotalQty).
		Msg("order dispatch committed")
	return nil
}
