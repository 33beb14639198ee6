package service

import (
	"fmt"
	"strings"

	"github.com/wareflow/wareflow-backend/pkg/errors"
)

// ProductLine is one raw line item as submitted by callers. Product is the
// composite descriptor "name | variant | barcode".
type ProductLine struct {
	Product string `json:"product" validate:"required"`
	Qty     int    `json:"qty"`
}

// AllocationLine is a normalized line item ready for planning.
type AllocationLine struct {
	Barcode     string
	ProductName string
	Variant     string
	Qty         int
}

// DispatchRequest is the payload for dispatching stock against an order.
type DispatchRequest struct {
	Warehouse     string        `json:"warehouse" validate:"required"`
	OrderRef      string        `json:"order_ref" validate:"required"`
	Customer      string        `json:"customer" validate:"required"`
	AWB           string        `json:"awb" validate:"required"`
	Products      []ProductLine `json:"products" validate:"required,min=1,dive"`
	Logistics     *string       `json:"logistics,omitempty"`
	ParcelType    string        `json:"parcel_type,omitempty"`
	Weight        float64       `json:"weight,omitempty"`
	PaymentMode   *string       `json:"payment_mode,omitempty"`
	InvoiceAmount float64       `json:"invoice_amount,omitempty"`
	ProcessedBy   *string       `json:"processed_by,omitempty"`
	Remarks       *string       `json:"remarks,omitempty"`
}

// TransferRequest moves stock between two warehouses.
type TransferRequest struct {
	Reference   string        `json:"reference" validate:"required"`
	Source      string        `json:"source" validate:"required"`
	Destination string        `json:"destination" validate:"required,nefield=Source"`
	Products    []ProductLine `json:"products" validate:"required,min=1,dive"`
}

// DamageRecoveryRequest records a damage or recovery event.
type DamageRecoveryRequest struct {
	Warehouse   string  `json:"warehouse" validate:"required"`
	Action      string  `json:"action" validate:"required,oneof=DAMAGE RECOVERY"`
	Barcode     string  `json:"barcode" validate:"required"`
	ProductName string  `json:"product_name" validate:"required"`
	Qty         int     `json:"qty"`
	Reason      *string `json:"reason,omitempty"`
	ReportedBy  *string `json:"reported_by,omitempty"`
}

// ReturnRequest records an inbound customer return.
type ReturnRequest struct {
	Warehouse   string `json:"warehouse" validate:"required"`
	Barcode     string `json:"barcode" validate:"required"`
	ProductName string `json:"product_name" validate:"required"`
	Qty         int    `json:"qty"`
	Reference   string `json:"reference" validate:"required"`
}

// IntakeLine is one batch to create on intake.
type IntakeLine struct {
	Product string `json:"product" validate:"required"`
	Qty     int    `json:"qty" validate:"required,gt=0"`
}

// IntakeRequest creates new stock batches for a warehouse.
type IntakeRequest struct {
	Warehouse string       `json:"warehouse" validate:"required"`
	Batches   []IntakeLine `json:"batches" validate:"required,min=1,dive"`
}

// ParseDescriptor splits a composite product descriptor of the form
// "name | variant | barcode". The first segment is the canonical name, the
// last is the barcode, anything in between joins into the variant. A
// descriptor without a pipe has no barcode and cannot be allocated.
func ParseDescriptor(descriptor string) (name, variant, barcode string, err error) {
	descriptor = strings.TrimSpace(descriptor)
	if descriptor == "" {
		return "", "", "", errors.BadRequest("product descriptor is empty")
	}
	if !strings.Contains(descriptor, "|") {
		return "", "", "", errors.BadRequest(fmt.Sprintf("product descriptor %q has no barcode segment", descriptor))
	}

	parts := strings.Split(descriptor, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	name = parts[0]
	barcode = parts[len(parts)-1]
	if len(parts) > 2 {
		variant = strings.Join(parts[1:len(parts)-1], " | ")
	}
	if name == "" || barcode == "" {
		return "", "", "", errors.BadRequest(fmt.Sprintf("product descriptor %q is missing a name or barcode", descriptor))
	}
	return name, variant, barcode, nil
}

// normalizeLines parses every product descriptor and applies the quantity
// default. Quantities that are zero or negative fall back to 1, matching the
// dispatch form behavior upstream callers rely on.
func normalizeLines(lines []ProductLine) ([]AllocationLine, error) {
	if len(lines) == 0 {
		return nil, errors.Validation(map[string]string{
			"products": "must contain at least one line",
		})
	}
	out := make([]AllocationLine, 0, len(lines))
	for _, l := range lines {
		name, variant, barcode, err := ParseDescriptor(l.Product)
		if err != nil {
			return nil, err
		}
		qty := l.Qty
		if qty < 1 {
			qty = 1
		}
		out = append(out, AllocationLine{
			Barcode:     barcode,
			ProductName: name,
			Variant:     variant,
			Qty:         qty,
		})
	}
	return out, nil
}

// normalizeQty applies the default-to-1 rule for single-line operations.
func normalizeQty(qty int) int {
	if qty < 1 {
		return 1
	}
	return qty
}
