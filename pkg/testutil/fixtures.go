package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// BatchFixture represents test stock batch data
type BatchFixture struct {
	ID           string
	Barcode      string
	ProductName  string
	Variant      string
	Warehouse    string
	QtyReceived  int
	QtyAvailable int
	Status       string
	CreatedAt    time.Time
}

// FixtureFactory seeds stock test data
type FixtureFactory struct {
	db  *sqlx.DB
	seq int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory(db *sqlx.DB) *FixtureFactory {
	return &FixtureFactory{db: db}
}

// NewBatch builds a batch fixture with sensible defaults. The creation time
// advances with each call so FIFO ordering in tests is deterministic.
func (f *FixtureFactory) NewBatch(barcode, warehouse string, qty int) *BatchFixture {
	f.seq++
	return &BatchFixture{
		ID:           uuid.New().String(),
		Barcode:      barcode,
		ProductName:  fmt.Sprintf("Product %s", barcode),
		Warehouse:    warehouse,
		QtyReceived:  qty,
		QtyAvailable: qty,
		Status:       "active",
		CreatedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(f.seq) * time.Minute),
	}
}

// InsertBatch persists a batch fixture
func (f *FixtureFactory) InsertBatch(ctx context.Context, b *BatchFixture) error {
	var variant *string
	if b.Variant != "" {
		variant = &b.Variant
	}
	_, err := f.db.ExecContext(ctx, `
		INSERT INTO stock_batches (
			id, barcode, product_name, variant, warehouse,
			qty_received, qty_available, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, b.ID, b.Barcode, b.ProductName, variant, b.Warehouse,
		b.QtyReceived, b.QtyAvailable, b.Status, b.CreatedAt)
	return err
}

// SeedBatches inserts a FIFO sequence of batches for one barcode: quantities
// in order, each created after the previous one.
func (f *FixtureFactory) SeedBatches(ctx context.Context, barcode, warehouse string, quantities ...int) ([]*BatchFixture, error) {
	batches := make([]*BatchFixture, 0, len(quantities))
	for _, qty := range quantities {
		b := f.NewBatch(barcode, warehouse, qty)
		if err := f.InsertBatch(ctx, b); err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, nil
}

// Descriptor builds the composite product descriptor for a fixture
func (b *BatchFixture) Descriptor() string {
	if b.Variant != "" {
		return fmt.Sprintf("%s | %s | %s", b.ProductName, b.Variant, b.Barcode)
	}
	return fmt.Sprintf("%s | %s", b.ProductName, b.Barcode)
}
