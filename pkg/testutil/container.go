// Package testutil provides testing utilities for Wareflow backend services.
// It includes a PostgreSQL testcontainer harness, mock factories, and common
// stock fixtures.
package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer wraps a testcontainers PostgreSQL instance
type PostgresContainer struct {
	*postgres.PostgresContainer
	DSN string
}

// PostgresContainerConfig configures the test PostgreSQL container
type PostgresContainerConfig struct {
	Database string
	Username string
	Password string
	Image    string // Optional: defaults to postgres:15-alpine
}

// DefaultPostgresConfig returns sensible defaults for test containers
func DefaultPostgresConfig() PostgresContainerConfig {
	return PostgresContainerConfig{
		Database: "wareflow_test",
		Username: "test",
		Password: "test",
		Image:    "postgres:15-alpine",
	}
}

// NewPostgresContainer creates a new PostgreSQL test container.
//
// Usage:
//
//	func TestMain(m *testing.M) {
//	    ctx := context.Background()
//	    container, err := testutil.NewPostgresContainer(ctx, testutil.DefaultPostgresConfig())
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer container.Terminate(ctx)
//
//	    code := m.Run()
//	    os.Exit(code)
//	}
func NewPostgresContainer(ctx context.Context, cfg PostgresContainerConfig) (*PostgresContainer, error) {
	if cfg.Image == "" {
		cfg.Image = "postgres:15-alpine"
	}
	if cfg.Database == "" {
		cfg.Database = "wareflow_test"
	}
	if cfg.Username == "" {
		cfg.Username = "test"
	}
	if cfg.Password == "" {
		cfg.Password = "test"
	}

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage(cfg.Image),
		postgres.WithDatabase(cfg.Database),
		postgres.WithUsername(cfg.Username),
		postgres.WithPassword(cfg.Password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	return &PostgresContainer{
		PostgresContainer: container,
		DSN:               dsn,
	}, nil
}

// Connect returns a sqlx.DB connection to the container
func (c *PostgresContainer) Connect(ctx context.Context) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", c.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}
	return db, nil
}

// Terminate stops and removes the container
func (c *PostgresContainer) Terminate(ctx context.Context) error {
	return c.PostgresContainer.Terminate(ctx)
}

// CreateStockSchema creates the stock service tables. Constraint names are
// the ones database.MapPQError matches on, so tests exercise the same error
// translation the repositories rely on.
func (c *PostgresContainer) CreateStockSchema(ctx context.Context, db *sqlx.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS stock_batches (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			barcode TEXT NOT NULL,
			product_name TEXT NOT NULL,
			variant TEXT,
			warehouse TEXT NOT NULL,
			qty_received INTEGER NOT NULL CONSTRAINT qty_positive CHECK (qty_received > 0),
			qty_available INTEGER NOT NULL CONSTRAINT qty_available_non_negative CHECK (qty_available >= 0),
			status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'exhausted')),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_stock_batches_fifo
			ON stock_batches (barcode, warehouse, created_at, id)
			WHERE status = 'active';

		CREATE TABLE IF NOT EXISTS inventory_ledger (
			id UUID PRIMARY KEY,
			event_time TIMESTAMPTZ NOT NULL DEFAULT now(),
			movement_type TEXT NOT NULL CONSTRAINT movement_type_valid
				CHECK (movement_type IN ('DISPATCH', 'TRANSFER', 'DAMAGE', 'RECOVERY', 'RETURN')),
			barcode TEXT NOT NULL,
			product_name TEXT NOT NULL,
			warehouse TEXT NOT NULL,
			qty INTEGER NOT NULL CONSTRAINT ledger_qty_positive CHECK (qty > 0),
			direction TEXT NOT NULL CONSTRAINT direction_valid CHECK (direction IN ('IN', 'OUT')),
			reference TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_inventory_ledger_time ON inventory_ledger (event_time DESC);
		CREATE INDEX IF NOT EXISTS idx_inventory_ledger_barcode ON inventory_ledger (barcode, warehouse);

		CREATE TABLE IF NOT EXISTS warehouse_dispatches (
			id UUID PRIMARY KEY,
			warehouse TEXT NOT NULL,
			order_ref TEXT NOT NULL CONSTRAINT uq_dispatch_order_ref UNIQUE,
			customer TEXT NOT NULL,
			awb TEXT NOT NULL CONSTRAINT uq_dispatch_awb UNIQUE,
			product_name TEXT NOT NULL,
			barcode TEXT NOT NULL,
			total_qty INTEGER NOT NULL CHECK (total_qty > 0),
			logistics TEXT,
			parcel_type TEXT NOT NULL DEFAULT 'Forward',
			weight DOUBLE PRECISION NOT NULL DEFAULT 0,
			payment_mode TEXT,
			invoice_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
			processed_by TEXT,
			remarks TEXT,
			status TEXT NOT NULL DEFAULT 'pending'
				CHECK (status IN ('pending', 'shipped', 'delivered', 'cancelled')),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS damage_recovery_log (
			id UUID PRIMARY KEY,
			warehouse TEXT NOT NULL,
			barcode TEXT NOT NULL,
			product_name TEXT NOT NULL,
			action TEXT NOT NULL CHECK (action IN ('DAMAGE', 'RECOVERY')),
			qty INTEGER NOT NULL CHECK (qty > 0),
			reason TEXT,
			reported_by TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create stock schema: %w", err)
	}
	return nil
}

// TruncateStockTables empties all stock tables between tests
func (c *PostgresContainer) TruncateStockTables(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		TRUNCATE stock_batches, inventory_ledger, warehouse_dispatches, damage_recovery_log
	`)
	return err
}
