package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/wareflow/wareflow-backend/pkg/database"
	"github.com/wareflow/wareflow-backend/pkg/errors"
)

// Batch lifecycle statuses
const (
	BatchStatusActive    = "active"
	BatchStatusExhausted = "exhausted"
)

// StockBatch is a lot of a specific product at a specific warehouse. Batches
// are created on intake, drained by allocation, and never deleted.
type StockBatch struct {
	ID           string    `db:"id" json:"id"`
	Barcode      string    `db:"barcode" json:"barcode"`
	ProductName  string    `db:"product_name" json:"product_name"`
	Variant      *string   `db:"variant" json:"variant,omitempty"`
	Warehouse    string    `db:"warehouse" json:"warehouse"`
	QtyReceived  int       `db:"qty_received" json:"qty_received"`
	QtyAvailable int       `db:"qty_available" json:"qty_available"`
	Status       string    `db:"status" json:"status"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// BatchRepository handles stock batch persistence
type BatchRepository struct {
	db *database.DB
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(db *database.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// Create inserts a new batch outside a transaction (single intake row)
func (r *BatchRepository) Create(ctx context.Context, batch *StockBatch) error {
	return r.create(ctx, r.db, batch)
}

// CreateTx inserts a new batch inside an open transaction
func (r *BatchRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, batch *StockBatch) error {
	return r.create(ctx, tx, batch)
}

func (r *BatchRepository) create(ctx context.Context, q sqlx.ExtContext, batch *StockBatch) error {
	if batch.ID == "" {
		batch.ID = uuid.New().String()
	}
	if batch.Status == "" {
		batch.Status = BatchStatusActive
	}
	if batch.QtyReceived == 0 {
		batch.QtyReceived = batch.QtyAvailable
	}

	query := `
		INSERT INTO stock_batches (
			id, barcode, product_name, variant, warehouse,
			qty_received, qty_available, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	row := q.QueryRowxContext(ctx, query,
		batch.ID, batch.Barcode, batch.ProductName, batch.Variant,
		batch.Warehouse, batch.QtyReceived, batch.QtyAvailable, batch.Status,
	)
	if err := row.Scan(&batch.CreatedAt); err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByID returns a single batch
func (r *BatchRepository) GetByID(ctx context.Context, id string) (*StockBatch, error) {
	var batch StockBatch
	query := `SELECT * FROM stock_batches WHERE id = $1`
	if err := r.db.GetContext(ctx, &batch, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("batch")
		}
		return nil, err
	}
	return &batch, nil
}

const activeFIFOQuery = `
	SELECT * FROM stock_batches
	WHERE barcode = $1 AND warehouse = $2
	  AND status = 'active' AND qty_available > 0
	ORDER BY created_at ASC, id ASC
`

// ListActiveFIFO lists the consumable batches for a barcode at a warehouse,
// oldest first. Ties on created_at break by id so the order is deterministic.
func (r *BatchRepository) ListActiveFIFO(ctx context.Context, barcode, warehouse string) ([]*StockBatch, error) {
	var batches []*StockBatch
	if err := r.db.SelectContext(ctx, &batches, activeFIFOQuery, barcode, warehouse); err != nil {
		return nil, err
	}
	return batches, nil
}

// ListActiveFIFOTx is ListActiveFIFO inside an open transaction, used by the
// allocation coordinator for its plan snapshot.
func (r *BatchRepository) ListActiveFIFOTx(ctx context.Context, tx *sqlx.Tx, barcode, warehouse string) ([]*StockBatch, error) {
	var batches []*StockBatch
	if err := tx.SelectContext(ctx, &batches, activeFIFOQuery, barcode, warehouse); err != nil {
		return nil, err
	}
	return batches, nil
}

// SumAvailable returns the total consumable quantity for a barcode at a warehouse
func (r *BatchRepository) SumAvailable(ctx context.Context, barcode, warehouse string) (int, error) {
	var total int
	query := `
		SELECT COALESCE(SUM(qty_available), 0)
		FROM stock_batches
		WHERE barcode = $1 AND warehouse = $2 AND status = 'active'
	`
	if err := r.db.GetContext(ctx, &total, query, barcode, warehouse); err != nil {
		return 0, err
	}
	return total, nil
}

// DeductTx atomically decrements a batch by qty, flipping the batch to
// exhausted when it hits zero. The WHERE guard makes the decrement
// conditional: it returns false, without error, when another transaction
// consumed the batch first and the remaining quantity no longer covers qty.
func (r *BatchRepository) DeductTx(ctx context.Context, tx *sqlx.Tx, batchID string, qty int) (bool, error) {
	query := `
		UPDATE stock_batches
		SET qty_available = qty_available - $2,
		    status = CASE WHEN qty_available - $2 = 0 THEN 'exhausted' ELSE 'active' END
		WHERE id = $1 AND status = 'active' AND qty_available >= $2
	`
	result, err := tx.ExecContext(ctx, query, batchID, qty)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return false, appErr
		}
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}
