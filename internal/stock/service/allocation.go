package service

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/wareflow/wareflow-backend/internal/stock/events"
	"github.com/wareflow/wareflow-backend/internal/stock/repository"
	"github.com/wareflow/wareflow-backend/pkg/config"
	"github.com/wareflow/wareflow-backend/pkg/database"
	"github.com/wareflow/wareflow-backend/pkg/errors"
	"github.com/wareflow/wareflow-backend/pkg/logger"
	"github.com/wareflow/wareflow-backend/pkg/messaging"
)

// AllocationService coordinates stock movements. Every mutating operation
// runs inside a single transaction: plans are computed first against a read
// snapshot, then applied through conditional decrements, so a concurrent
// consumer can never push a batch below zero.
type AllocationService struct {
	db           *database.DB
	batchRepo    *repository.BatchRepository
	ledgerRepo   *repository.LedgerRepository
	dispatchRepo *repository.DispatchRepository
	damageRepo   *repository.DamageRecoveryRepository
	publisher    *events.StockEventPublisher
	cfg          config.AllocationConfig
	logger       *logger.Logger
}

// NewAllocationService creates a new allocation service
func NewAllocationService(
	db *database.DB,
	batchRepo *repository.BatchRepository,
	ledgerRepo *repository.LedgerRepository,
	dispatchRepo *repository.DispatchRepository,
	damageRepo *repository.DamageRecoveryRepository,
	publisher *events.StockEventPublisher,
	cfg config.AllocationConfig,
	log *logger.Logger,
) *AllocationService {
	return &AllocationService{
		db:           db,
		batchRepo:    batchRepo,
		ledgerRepo:   ledgerRepo,
		dispatchRepo: dispatchRepo,
		damageRepo:   damageRepo,
		publisher:    publisher,
		cfg:          cfg,
		logger:       log,
	}
}

// conflictError signals that a conditional decrement lost a race. It aborts
// the transaction and makes the whole request eligible for a retry against
// fresh state.
type conflictError struct {
	barcode string
}

func (e *conflictError) Error() string {
	return fmt.Sprintf("batch for barcode %s was consumed concurrently", e.barcode)
}

// withRetry runs fn inside a transaction, retrying the whole request when a
// conditional decrement reports a lost race or the database reports a
// serialization conflict. Any other error surfaces immediately with the
// transaction rolled back.
func (s *AllocationService) withRetry(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	attempts := s.cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastConflict *conflictError
	for attempt := 1; attempt <= attempts; attempt++ {
		txCtx := ctx
		cancel := context.CancelFunc(func() {})
		if s.cfg.CommitTimeout > 0 {
			txCtx, cancel = context.WithTimeout(ctx, s.cfg.CommitTimeout)
		}
		err := s.db.Transaction(txCtx, fn)
		cancel()
		if err == nil {
			return nil
		}

		var conflict *conflictError
		if errors.As(err, &conflict) {
			lastConflict = conflict
			s.logger.Warn().
				Int("attempt", attempt).
				Str("barcode", conflict.barcode).
				Msg("allocation lost a concurrent race, retrying")
			continue
		}
		// Serialization failures and deadlocks surface as ErrConcurrentUpdate
		// from the pq error mapping; they retry the same way a lost
		// conditional decrement does.
		if errors.Is(err, errors.ErrConcurrentUpdate) {
			s.logger.Warn().
				Int("attempt", attempt).
				Msg("allocation transaction hit a serialization conflict, retrying")
			continue
		}
		return err
	}

	barcode := ""
	if lastConflict != nil {
		barcode = lastConflict.barcode
	}
	return errors.ConcurrentConflict(barcode)
}

// planLine reads the FIFO snapshot for one line and computes its plan.
func (s *AllocationService) planLine(ctx context.Context, tx *sqlx.Tx, warehouse string, line AllocationLine) (*AllocationPlan, error) {
	batches, err := s.batchRepo.ListActiveFIFOTx(ctx, tx, line.Barcode, warehouse)
	if err != nil {
		return nil, err
	}
	plan := PlanAllocation(line.Barcode, batches, line.Qty)
	if !plan.Satisfied() {
		return nil, errors.InsufficientStock(line.Barcode, plan.Available, line.Qty)
	}
	return plan, nil
}

// applyPlan executes every cut of a plan through the conditional decrement.
func (s *AllocationService) applyPlan(ctx context.Context, tx *sqlx.Tx, plan *AllocationPlan) error {
	for _, cut := range plan.Cuts {
		ok, err := s.batchRepo.DeductTx(ctx, tx, cut.BatchID, cut.Qty)
		if err != nil {
			return err
		}
		if !ok {
			return &conflictError{barcode: plan.Barcode}
		}
	}
	return nil
}

// DispatchResult summarizes a committed dispatch.
type DispatchResult struct {
	DispatchID string `json:"dispatch_id"`
	OrderRef   string `json:"order_ref"`
	AWB        string `json:"awb"`
	Warehouse  string `json:"warehouse"`
	Reference  string `json:"reference"`
	Products   int    `json:"products"`
	TotalQty   int    `json:"total_qty"`
}

// Dispatch allocates every line of an order FIFO and records the movement.
// All lines commit together or not at all.
func (s *AllocationService) Dispatch(ctx context.Context, req *DispatchRequest) (*DispatchResult, error) {
	lines, err := normalizeLines(req.Products)
	if err != nil {
		return nil, err
	}

	var result *DispatchResult
	var eventLines []messaging.MovementLine

	err = s.withRetry(ctx, func(tx *sqlx.Tx) error {
		plans := make([]*AllocationPlan, len(lines))
		totalQty := 0
		for i, line := range lines {
			plan, err := s.planLine(ctx, tx, req.Warehouse, line)
			if err != nil {
				return err
			}
			plans[i] = plan
			totalQty += line.Qty
		}

		// One header per order, carrying the first line's identity.
		dispatch := &repository.Dispatch{
			Warehouse:     req.Warehouse,
			OrderRef:      req.OrderRef,
			Customer:      req.Customer,
			AWB:           req.AWB,
			ProductName:   lines[0].ProductName,
			Barcode:       lines[0].Barcode,
			TotalQty:      totalQty,
			Logistics:     req.Logistics,
			ParcelType:    req.ParcelType,
			Weight:        req.Weight,
			PaymentMode:   req.PaymentMode,
			InvoiceAmount: req.InvoiceAmount,
			ProcessedBy:   req.ProcessedBy,
			Remarks:       req.Remarks,
		}
		if err := s.dispatchRepo.CreateTx(ctx, tx, dispatch); err != nil {
			return err
		}

		reference := fmt.Sprintf("DISPATCH_%s_%s", dispatch.ID, req.AWB)
		eventLines = eventLines[:0]
		for i, line := range lines {
			if err := s.applyPlan(ctx, tx, plans[i]); err != nil {
				return err
			}
			if err := s.ledgerRepo.AppendTx(ctx, tx, &repository.LedgerEntry{
				MovementType: repository.MovementDispatch,
				Barcode:      line.Barcode,
				ProductName:  line.ProductName,
				Warehouse:    req.Warehouse,
				Qty:          line.Qty,
				Direction:    repository.DirectionOut,
				Reference:    reference,
			}); err != nil {
				return err
			}
			eventLines = append(eventLines, messaging.MovementLine{
				Barcode:     line.Barcode,
				ProductName: line.ProductName,
				Qty:         line.Qty,
			})
		}

		result = &DispatchResult{
			DispatchID: dispatch.ID,
			OrderRef:   req.OrderRef,
			AWB:        req.AWB,
			Warehouse:  req.Warehouse,
			Reference:  reference,
			Products:   len(lines),
			TotalQty:   totalQty,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("dispatch_id", result.DispatchID).
		Str("order_ref", result.OrderRef).
		Int("total_qty", result.TotalQty).
		Msg("dispatch committed")

	s.publisher.PublishStockDispatched(ctx, messaging.StockDispatchedEvent{
		DispatchID: result.DispatchID,
		OrderRef:   result.OrderRef,
		AWB:        result.AWB,
		Warehouse:  result.Warehouse,
		Lines:      eventLines,
		TotalQty:   result.TotalQty,
	})
	return result, nil
}

// TransferResult summarizes a committed transfer.
type TransferResult struct {
	Reference   string `json:"reference"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Products    int    `json:"products"`
	TotalQty    int    `json:"total_qty"`
}

// Transfer moves stock between warehouses. The outbound leg at the source
// commits first; only then is the destination replenished in a transaction of
// its own, so destination batches never exist for stock that was not
// actually released.
func (s *AllocationService) Transfer(ctx context.Context, req *TransferRequest) (*TransferResult, error) {
	lines, err := normalizeLines(req.Products)
	if err != nil {
		return nil, err
	}

	totalQty := 0
	for _, line := range lines {
		totalQty += line.Qty
	}

	err = s.withRetry(ctx, func(tx *sqlx.Tx) error {
		plans := make([]*AllocationPlan, len(lines))
		for i, line := range lines {
			plan, err := s.planLine(ctx, tx, req.Source, line)
			if err != nil {
				return err
			}
			plans[i] = plan
		}
		for i, line := range lines {
			if err := s.applyPlan(ctx, tx, plans[i]); err != nil {
				return err
			}
			if err := s.ledgerRepo.AppendTx(ctx, tx, &repository.LedgerEntry{
				MovementType: repository.MovementTransfer,
				Barcode:      line.Barcode,
				ProductName:  line.ProductName,
				Warehouse:    req.Source,
				Qty:          line.Qty,
				Direction:    repository.DirectionOut,
				Reference:    req.Reference,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Inbound leg. The source leg already committed: a failure here leaves
	// the released stock visible only in the ledger, which the caller must
	// reconcile from the returned error.
	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		for _, line := range lines {
			batch := &repository.StockBatch{
				Barcode:      line.Barcode,
				ProductName:  line.ProductName,
				Warehouse:    req.Destination,
				QtyReceived:  line.Qty,
				QtyAvailable: line.Qty,
			}
			if line.Variant != "" {
				v := line.Variant
				batch.Variant = &v
			}
			if err := s.batchRepo.CreateTx(ctx, tx, batch); err != nil {
				return err
			}
			if err := s.ledgerRepo.AppendTx(ctx, tx, &repository.LedgerEntry{
				MovementType: repository.MovementTransfer,
				Barcode:      line.Barcode,
				ProductName:  line.ProductName,
				Warehouse:    req.Destination,
				Qty:          line.Qty,
				Direction:    repository.DirectionIn,
				Reference:    req.Reference,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error().Err(err).
			Str("reference", req.Reference).
			Str("source", req.Source).
			Str("destination", req.Destination).
			Msg("transfer inbound leg failed after source leg committed")
		return nil, err
	}

	result := &TransferResult{
		Reference:   req.Reference,
		Source:      req.Source,
		Destination: req.Destination,
		Products:    len(lines),
		TotalQty:    totalQty,
	}

	eventLines := make([]messaging.MovementLine, 0, len(lines))
	for _, line := range lines {
		eventLines = append(eventLines, messaging.MovementLine{
			Barcode:     line.Barcode,
			ProductName: line.ProductName,
			Qty:         line.Qty,
		})
	}
	s.publisher.PublishStockTransferred(ctx, messaging.StockTransferredEvent{
		Reference:   req.Reference,
		Source:      req.Source,
		Destination: req.Destination,
		Lines:       eventLines,
		TotalQty:    totalQty,
	})
	return result, nil
}

// DamageRecoveryResult summarizes a committed damage or recovery entry.
type DamageRecoveryResult struct {
	LogID     string `json:"log_id"`
	Action    string `json:"action"`
	Reference string `json:"reference"`
	Qty       int    `json:"qty"`
}

// DamageRecovery records a damage (OUT) or recovery (IN) event. Batch
// quantities are left untouched: these entries adjust the audit trail, the
// physical stock correction happens through intake.
func (s *AllocationService) DamageRecovery(ctx context.Context, req *DamageRecoveryRequest) (*DamageRecoveryResult, error) {
	qty := normalizeQty(req.Qty)

	direction := repository.DirectionOut
	movement := repository.MovementDamage
	if req.Action == repository.ActionRecovery {
		direction = repository.DirectionIn
		movement = repository.MovementRecovery
	}

	var result *DamageRecoveryResult
	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		log := &repository.DamageRecoveryLog{
			Warehouse:   req.Warehouse,
			Barcode:     req.Barcode,
			ProductName: req.ProductName,
			Action:      req.Action,
			Qty:         qty,
			Reason:      req.Reason,
			ReportedBy:  req.ReportedBy,
		}
		if err := s.damageRepo.CreateTx(ctx, tx, log); err != nil {
			return err
		}

		reference := fmt.Sprintf("%s_%s", req.Action, log.ID)
		if err := s.ledgerRepo.AppendTx(ctx, tx, &repository.LedgerEntry{
			MovementType: movement,
			Barcode:      req.Barcode,
			ProductName:  req.ProductName,
			Warehouse:    req.Warehouse,
			Qty:          qty,
			Direction:    direction,
			Reference:    reference,
		}); err != nil {
			return err
		}

		result = &DamageRecoveryResult{
			LogID:     log.ID,
			Action:    req.Action,
			Reference: reference,
			Qty:       qty,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publisher.PublishDamageRecovery(ctx, messaging.DamageRecoveryEvent{
		Action:      req.Action,
		Barcode:     req.Barcode,
		ProductName: req.ProductName,
		Warehouse:   req.Warehouse,
		Qty:         qty,
		Reference:   result.Reference,
	})
	return result, nil
}

// ReturnResult summarizes a committed return entry.
type ReturnResult struct {
	Reference string `json:"reference"`
	Qty       int    `json:"qty"`
}

// Return records an inbound customer return in the ledger. No batch is
// recreated: returned goods re-enter sellable stock through intake after
// inspection.
func (s *AllocationService) Return(ctx context.Context, req *ReturnRequest) (*ReturnResult, error) {
	qty := normalizeQty(req.Qty)

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		return s.ledgerRepo.AppendTx(ctx, tx, &repository.LedgerEntry{
			MovementType: repository.MovementReturn,
			Barcode:      req.Barcode,
			ProductName:  req.ProductName,
			Warehouse:    req.Warehouse,
			Qty:          qty,
			Direction:    repository.DirectionIn,
			Reference:    req.Reference,
		})
	})
	if err != nil {
		return nil, err
	}

	s.publisher.PublishStockReturned(ctx, messaging.StockReturnedEvent{
		Barcode:     req.Barcode,
		ProductName: req.ProductName,
		Warehouse:   req.Warehouse,
		Qty:         qty,
		Reference:   req.Reference,
	})
	return &ReturnResult{Reference: req.Reference, Qty: qty}, nil
}

// IntakeResult summarizes a committed batch intake.
type IntakeResult struct {
	Warehouse string   `json:"warehouse"`
	BatchIDs  []string `json:"batch_ids"`
	TotalQty  int      `json:"total_qty"`
}

// Intake creates new stock batches. Intake records receipt on the batch rows
// themselves; the ledger only tracks movements.
func (s *AllocationService) Intake(ctx context.Context, req *IntakeRequest) (*IntakeResult, error) {
	type newBatch struct {
		name    string
		variant string
		barcode string
		qty     int
	}
	entries := make([]newBatch, 0, len(req.Batches))
	totalQty := 0
	for _, b := range req.Batches {
		name, variant, barcode, err := ParseDescriptor(b.Product)
		if err != nil {
			return nil, err
		}
		entries = append(entries, newBatch{name: name, variant: variant, barcode: barcode, qty: b.Qty})
		totalQty += b.Qty
	}

	batchIDs := make([]string, 0, len(entries))
	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		batchIDs = batchIDs[:0]
		for _, e := range entries {
			batch := &repository.StockBatch{
				Barcode:      e.barcode,
				ProductName:  e.name,
				Warehouse:    req.Warehouse,
				QtyReceived:  e.qty,
				QtyAvailable: e.qty,
			}
			if e.variant != "" {
				v := e.variant
				batch.Variant = &v
			}
			if err := s.batchRepo.CreateTx(ctx, tx, batch); err != nil {
				return err
			}
			batchIDs = append(batchIDs, batch.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("warehouse", req.Warehouse).
		Int("batches", len(batchIDs)).
		Int("total_qty", totalQty).
		Msg("batch intake committed")

	s.publisher.PublishBatchesReceived(ctx, messaging.BatchesReceivedEvent{
		Warehouse: req.Warehouse,
		BatchIDs:  batchIDs,
		TotalQty:  totalQty,
	})
	return &IntakeResult{Warehouse: req.Warehouse, BatchIDs: batchIDs, TotalQty: totalQty}, nil
}
