package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/wareflow/wareflow-backend/pkg/database"
	"github.com/wareflow/wareflow-backend/pkg/errors"
)

// Dispatch statuses
const (
	DispatchStatusPending   = "pending"
	DispatchStatusShipped   = "shipped"
	DispatchStatusDelivered = "delivered"
	DispatchStatusCancelled = "cancelled"
)

// Dispatch is the order header persisted when a dispatch allocation commits.
// A multi-product order still gets one header row carrying the first
// product's identity and the summed quantity; the per-product detail lives in
// the ledger.
type Dispatch struct {
	ID            string    `db:"id" json:"id"`
	Warehouse     string    `db:"warehouse" json:"warehouse"`
	OrderRef      string    `db:"order_ref" json:"order_ref"`
	Customer      string    `db:"customer" json:"customer"`
	AWB           string    `db:"awb" json:"awb"`
	ProductName   string    `db:"product_name" json:"product_name"`
	Barcode       string    `db:"barcode" json:"barcode"`
	TotalQty      int       `db:"total_qty" json:"total_qty"`
	Logistics     *string   `db:"logistics" json:"logistics,omitempty"`
	ParcelType    string    `db:"parcel_type" json:"parcel_type"`
	Weight        float64   `db:"weight" json:"weight"`
	PaymentMode   *string   `db:"payment_mode" json:"payment_mode,omitempty"`
	InvoiceAmount float64   `db:"invoice_amount" json:"invoice_amount"`
	ProcessedBy   *string   `db:"processed_by" json:"processed_by,omitempty"`
	Remarks       *string   `db:"remarks" json:"remarks,omitempty"`
	Status        string    `db:"status" json:"status"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// DispatchFilter filters dispatch listings
type DispatchFilter struct {
	Warehouse string
	Status    string
	DateFrom  time.Time
	DateTo    time.Time
	Search    string
	Page      int
	PerPage   int
}

// DispatchRepository handles dispatch header persistence
type DispatchRepository struct {
	db *database.DB
}

// NewDispatchRepository creates a new dispatch repository
func NewDispatchRepository(db *database.DB) *DispatchRepository {
	return &DispatchRepository{db: db}
}

// CreateTx inserts the dispatch header inside an open allocation transaction
func (r *DispatchRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, d *Dispatch) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.Status == "" {
		d.Status = DispatchStatusPending
	}
	if d.ParcelType == "" {
		d.ParcelType = "Forward"
	}

	query := `
		INSERT INTO warehouse_dispatches (
			id, warehouse, order_ref, customer, awb, product_name, barcode,
			total_qty, logistics, parcel_type, weight, payment_mode,
			invoice_amount, processed_by, remarks, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING created_at
	`

	row := tx.QueryRowxContext(ctx, query,
		d.ID, d.Warehouse, d.OrderRef, d.Customer, d.AWB, d.ProductName,
		d.Barcode, d.TotalQty, d.Logistics, d.ParcelType, d.Weight,
		d.PaymentMode, d.InvoiceAmount, d.ProcessedBy, d.Remarks, d.Status,
	)
	if err := row.Scan(&d.CreatedAt); err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// List returns dispatch headers matching the filter, newest first
func (r *DispatchRepository) List(ctx context.Context, filter DispatchFilter) ([]*Dispatch, int64, error) {
	where := ""
	args := []interface{}{}
	add := func(cond string, vals ...interface{}) {
		start := len(args)
		args = append(args, vals...)
		if where == "" {
			where = "WHERE "
		} else {
			where += " AND "
		}
		switch len(vals) {
		case 1:
			where += fmt.Sprintf(cond, start+1)
		case 5:
			where += fmt.Sprintf(cond, start+1, start+2, start+3, start+4, start+5)
		}
	}

	if filter.Warehouse != "" {
		add("warehouse = $%d", filter.Warehouse)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if !filter.DateFrom.IsZero() {
		add("created_at >= $%d", filter.DateFrom)
	}
	if !filter.DateTo.IsZero() {
		add("created_at <= $%d", filter.DateTo)
	}
	if filter.Search != "" {
		term := "%" + filter.Search + "%"
		add("(product_name ILIKE $%d OR barcode ILIKE $%d OR awb ILIKE $%d OR order_ref ILIKE $%d OR customer ILIKE $%d)",
			term, term, term, term, term)
	}

	var total int64
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM warehouse_dispatches %s`, where)
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
		SELECT * FROM warehouse_dispatches
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)+1, len(args)+2)
	args = append(args, perPage, (page-1)*perPage)

	var dispatches []*Dispatch
	if err := r.db.SelectContext(ctx, &dispatches, query, args...); err != nil {
		return nil, 0, err
	}
	return dispatches, total, nil
}

// UpdateStatus updates the status of a dispatch header
func (r *DispatchRepository) UpdateStatus(ctx context.Context, id, status string, processedBy, remarks *string) error {
	query := `
		UPDATE warehouse_dispatches
		SET status = $2, processed_by = COALESCE($3, processed_by), remarks = COALESCE($4, remarks)
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, status, processedBy, remarks)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.NotFound("dispatch")
	}
	return nil
}
