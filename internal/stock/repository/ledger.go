package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/wareflow/wareflow-backend/pkg/database"
)

// Movement types recorded in the ledger
const (
	MovementDispatch = "DISPATCH"
	MovementTransfer = "TRANSFER"
	MovementDamage   = "DAMAGE"
	MovementRecovery = "RECOVERY"
	MovementReturn   = "RETURN"
)

// Ledger entry directions
const (
	DirectionIn  = "IN"
	DirectionOut = "OUT"
)

// LedgerEntry is an immutable record of a single inventory movement.
// Entries are only ever appended, inside the transaction that mutates the
// batches they describe.
type LedgerEntry struct {
	ID           string    `db:"id" json:"id"`
	EventTime    time.Time `db:"event_time" json:"event_time"`
	MovementType string    `db:"movement_type" json:"movement_type"`
	Barcode      string    `db:"barcode" json:"barcode"`
	ProductName  string    `db:"product_name" json:"product_name"`
	Warehouse    string    `db:"warehouse" json:"warehouse"`
	Qty          int       `db:"qty" json:"qty"`
	Direction    string    `db:"direction" json:"direction"`
	Reference    string    `db:"reference" json:"reference"`
}

// LedgerFilter filters ledger listings
type LedgerFilter struct {
	Warehouse    string
	Barcode      string
	MovementType string
	DateFrom     time.Time
	DateTo       time.Time
	Page         int
	PerPage      int
}

// LedgerRepository handles the append-only movement ledger
type LedgerRepository struct {
	db *database.DB
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *database.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// AppendTx appends one ledger entry inside an open allocation transaction.
// Never call this outside a transaction scope: a ledger entry without its
// batch mutation (or vice versa) must be impossible.
func (r *LedgerRepository) AppendTx(ctx context.Context, tx *sqlx.Tx, entry *LedgerEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.EventTime.IsZero() {
		entry.EventTime = time.Now().UTC()
	}

	query := `
		INSERT INTO inventory_ledger (
			id, event_time, movement_type, barcode, product_name,
			warehouse, qty, direction, reference
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	if _, err := tx.ExecContext(ctx, query,
		entry.ID, entry.EventTime, entry.MovementType, entry.Barcode,
		entry.ProductName, entry.Warehouse, entry.Qty, entry.Direction,
		entry.Reference,
	); err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// List returns ledger entries matching the filter, newest first
func (r *LedgerRepository) List(ctx context.Context, filter LedgerFilter) ([]*LedgerEntry, int64, error) {
	where := ""
	args := []interface{}{}
	add := func(cond string, val interface{}) {
		args = append(args, val)
		if where == "" {
			where = "WHERE "
		} else {
			where += " AND "
		}
		where += fmt.Sprintf(cond, len(args))
	}

	if filter.Warehouse != "" {
		add("warehouse = $%d", filter.Warehouse)
	}
	if filter.Barcode != "" {
		add("barcode = $%d", filter.Barcode)
	}
	if filter.MovementType != "" {
		add("movement_type = $%d", filter.MovementType)
	}
	if !filter.DateFrom.IsZero() {
		add("event_time >= $%d", filter.DateFrom)
	}
	if !filter.DateTo.IsZero() {
		add("event_time <= $%d", filter.DateTo)
	}

	var total int64
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM inventory_ledger %s`, where)
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage < 1 || perPage > 200 {
		perPage = 50
	}

	query := fmt.Sprintf(`
		SELECT * FROM inventory_ledger
		%s
		ORDER BY event_time DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)+1, len(args)+2)
	args = append(args, perPage, (page-1)*perPage)

	var entries []*LedgerEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
