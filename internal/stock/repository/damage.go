package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/wareflow/wareflow-backend/pkg/database"
)

// Damage/recovery actions
const (
	ActionDamage   = "DAMAGE"
	ActionRecovery = "RECOVERY"
)

// DamageRecoveryLog records a single damage or recovery event. These rows are
// audit-only; batch quantities are never touched by damage or recovery.
type DamageRecoveryLog struct {
	ID          string    `db:"id" json:"id"`
	Warehouse   string    `db:"warehouse" json:"warehouse"`
	Barcode     string    `db:"barcode" json:"barcode"`
	ProductName string    `db:"product_name" json:"product_name"`
	Action      string    `db:"action" json:"action"`
	Qty         int       `db:"qty" json:"qty"`
	Reason      *string   `db:"reason" json:"reason,omitempty"`
	ReportedBy  *string   `db:"reported_by" json:"reported_by,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// DamageRecoveryRepository handles damage_recovery_log persistence
type DamageRecoveryRepository struct {
	db *database.DB
}

// NewDamageRecoveryRepository creates a new damage/recovery repository
func NewDamageRecoveryRepository(db *database.DB) *DamageRecoveryRepository {
	return &DamageRecoveryRepository{db: db}
}

// CreateTx inserts a damage/recovery log row inside an open transaction
func (r *DamageRecoveryRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, log *DamageRecoveryLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}

	query := `
		INSERT INTO damage_recovery_log (
			id, warehouse, barcode, product_name, action, qty, reason, reported_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	row := tx.QueryRowxContext(ctx, query,
		log.ID, log.Warehouse, log.Barcode, log.ProductName, log.Action,
		log.Qty, log.Reason, log.ReportedBy,
	)
	if err := row.Scan(&log.CreatedAt); err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// List returns damage/recovery log rows for a warehouse, newest first
func (r *DamageRecoveryRepository) List(ctx context.Context, warehouse string, limit int) ([]*DamageRecoveryLog, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}
	query := `
		SELECT * FROM damage_recovery_log
		WHERE warehouse = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	var logs []*DamageRecoveryLog
	if err := r.db.SelectContext(ctx, &logs, query, warehouse, limit); err != nil {
		return nil, err
	}
	return logs, nil
}
