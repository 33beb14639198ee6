package events

import (
	"context"

	"github.com/wareflow/wareflow-backend/pkg/logger"
	"github.com/wareflow/wareflow-backend/pkg/messaging"
)

// StockEventPublisher publishes stock movement events after commit. Publish
// failures are logged, never surfaced: the movement already committed and the
// ledger is the source of truth.
type StockEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewStockEventPublisher creates a new stock event publisher
func NewStockEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*StockEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeStockEvents, "stock-service", log)
	if err != nil {
		return nil, err
	}

	return &StockEventPublisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

// PublishStockDispatched publishes a stock dispatched event
func (p *StockEventPublisher) PublishStockDispatched(ctx context.Context, data messaging.StockDispatchedEvent) {
	if p == nil {
		return
	}
	if err := p.publisher.Publish(ctx, messaging.EventStockDispatched, data); err != nil {
		p.logger.Error().Err(err).Str("order_ref", data.OrderRef).Msg("failed to publish stock dispatched event")
	}
}

// PublishStockTransferred publishes a stock transferred event
func (p *StockEventPublisher) PublishStockTransferred(ctx context.Context, data messaging.StockTransferredEvent) {
	if p == nil {
		return
	}
	if err := p.publisher.Publish(ctx, messaging.EventStockTransferred, data); err != nil {
		p.logger.Error().Err(err).Str("reference", data.Reference).Msg("failed to publish stock transferred event")
	}
}

// PublishDamageRecovery publishes a damage/recovery event
func (p *StockEventPublisher) PublishDamageRecovery(ctx context.Context, data messaging.DamageRecoveryEvent) {
	if p == nil {
		return
	}
	if err := p.publisher.Publish(ctx, messaging.EventStockDamageRecovery, data); err != nil {
		p.logger.Error().Err(err).Str("barcode", data.Barcode).Msg("failed to publish damage recovery event")
	}
}

// PublishStockReturned publishes a stock returned event
func (p *StockEventPublisher) PublishStockReturned(ctx context.Context, data messaging.StockReturnedEvent) {
	if p == nil {
		return
	}
	if err := p.publisher.Publish(ctx, messaging.EventStockReturned, data); err != nil {
		p.logger.Error().Err(err).Str("reference", data.Reference).Msg("failed to publish stock returned event")
	}
}

// PublishBatchesReceived publishes a batches received event
func (p *StockEventPublisher) PublishBatchesReceived(ctx context.Context, data messaging.BatchesReceivedEvent) {
	if p == nil {
		return
	}
	if err := p.publisher.Publish(ctx, messaging.EventBatchesReceived, data); err != nil {
		p.logger.Error().Err(err).Str("warehouse", data.Warehouse).Msg("failed to publish batches received event")
	}
}
