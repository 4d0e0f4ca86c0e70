package inventory

import (
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// MovementType classifies a stock movement. The direction of each type is
// fixed: inbound types add stock, outbound types remove it.
type MovementType string

const (
	MovementPurchase           MovementType = "PURCHASE"
	MovementSale               MovementType = "SALE"
	MovementAdjustmentIn       MovementType = "ADJUSTMENT_IN"
	MovementAdjustmentOut      MovementType = "ADJUSTMENT_OUT"
	MovementReturnFromCustomer MovementType = "RETURN_FROM_CUSTOMER"
	MovementReturnToSupplier   MovementType = "RETURN_TO_SUPPLIER"
	MovementTransferIn         MovementType = "TRANSFER_IN"
	MovementTransferOut        MovementType = "TRANSFER_OUT"
)

// Direction returns +1 for inbound types and -1 for outbound types, or an
// error for an unknown type.
func (t MovementType) Direction() (float64, error) {
	switch t {
	case MovementPurchase, MovementAdjustmentIn, MovementReturnFromCustomer, MovementTransferIn:
		return 1, nil
	case MovementSale, MovementAdjustmentOut, MovementReturnToSupplier, MovementTransferOut:
		return -1, nil
	}
	return 0, shared.Validationf("movement_type", "unknown movement type %q", t)
}

// Movement is an immutable append-only record of one stock change. OldStock
// and NewStock capture the product stock level around the mutation.
type Movement struct {
	ID          int64              `json:"id"`
	ProductID   int64              `json:"product_id"`
	WarehouseID int64              `json:"warehouse_id"`
	Type        MovementType       `json:"type"`
	Quantity    float64            `json:"quantity"`
	OldStock    float64            `json:"old_stock"`
	NewStock    float64            `json:"new_stock"`
	Reference   shared.DocumentRef `json:"reference,omitzero"`
	Note        string             `json:"note,omitempty"`
	CreatedBy   int64              `json:"created_by"`
	CreatedAt   time.Time          `json:"created_at"`
}

// WarehouseStock tracks per (warehouse, product) quantity and reservations.
// AvailableQuantity is cached derived state, recomputed inside the same
// transaction as every mutation of its inputs.
type WarehouseStock struct {
	WarehouseID       int64     `json:"warehouse_id"`
	ProductID         int64     `json:"product_id"`
	Quantity          float64   `json:"quantity"`
	ReservedQuantity  float64   `json:"reserved_quantity"`
	AvailableQuantity float64   `json:"available_quantity"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Recompute refreshes the cached available quantity.
func (ws *WarehouseStock) Recompute() {
	ws.AvailableQuantity = ws.Quantity - ws.ReservedQuantity
}

// AdjustmentStatus enumerates stock adjustment lifecycle values.
type AdjustmentStatus string

const (
	AdjustmentStatusDraft     AdjustmentStatus = "DRAFT"
	AdjustmentStatusApproved  AdjustmentStatus = "APPROVED"
	AdjustmentStatusCancelled AdjustmentStatus = "CANCELLED"
)

// StockAdjustment is a batch stock correction document. Approval is one way
// and emits one movement per line.
type StockAdjustment struct {
	ID          int64            `json:"id"`
	Number      string           `json:"number"`
	WarehouseID int64            `json:"warehouse_id"`
	Date        time.Time        `json:"date"`
	Note        string           `json:"note,omitempty"`
	Status      AdjustmentStatus `json:"status"`
	CreatedBy   int64            `json:"created_by"`
	ApprovedBy  *int64           `json:"approved_by,omitempty"`
	ApprovedAt  *time.Time       `json:"approved_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	Lines       []AdjustmentLine `json:"lines,omitempty"`
}

// AdjustmentLine records the stock correction for one product.
type AdjustmentLine struct {
	ID                 int64   `json:"id"`
	AdjustmentID       int64   `json:"adjustment_id"`
	ProductID          int64   `json:"product_id"`
	CurrentQuantity    float64 `json:"current_quantity"`
	NewQuantity        float64 `json:"new_quantity"`
	AdjustmentQuantity float64 `json:"adjustment_quantity"`
}

// MovementInput groups fields for one stock movement.
type MovementInput struct {
	ProductID   int64
	WarehouseID int64
	Type        MovementType
	Quantity    float64
	Reference   shared.DocumentRef
	Note        string
	ActorID     int64
}

// Validate checks minimum movement criteria.
func (in MovementInput) Validate() error {
	if in.ProductID == 0 {
		return shared.Validationf("product_id", "product required")
	}
	if in.WarehouseID == 0 {
		return shared.Validationf("warehouse_id", "warehouse required")
	}
	if in.Quantity <= 0 {
		return shared.Validationf("quantity", "quantity must be > 0")
	}
	if _, err := in.Type.Direction(); err != nil {
		return err
	}
	return in.Reference.Validate()
}

// AdjustmentLineInput describes one target quantity in an adjustment request.
type AdjustmentLineInput struct {
	ProductID   int64
	NewQuantity float64
}

// AdjustmentInput groups fields for creating a draft stock adjustment.
type AdjustmentInput struct {
	WarehouseID int64
	Date        time.Time
	Note        string
	CreatedBy   int64
	Lines       []AdjustmentLineInput
}

// Validate checks minimum adjustment criteria.
func (in AdjustmentInput) Validate() error {
	if in.WarehouseID == 0 {
		return shared.Validationf("warehouse_id", "warehouse required")
	}
	if len(in.Lines) == 0 {
		return shared.Validationf("lines", "at least one line required")
	}
	for idx, line := range in.Lines {
		if line.ProductID == 0 {
			return shared.Validationf("lines", "line %d missing product", idx)
		}
		if line.NewQuantity < 0 {
			return shared.Validationf("lines", "line %d negative quantity", idx)
		}
	}
	return nil
}

// ProductStock is the inventory-facing projection of a product.
type ProductStock struct {
	ID                 int64
	TrackInventory     bool
	AllowNegativeStock bool
	CurrentStock       float64
}

// CanSell reports whether quantity can be sold: tracking disabled, negative
// stock allowed, or enough stock on hand.
func (p ProductStock) CanSell(quantity float64) bool {
	if !p.TrackInventory || p.AllowNegativeStock {
		return true
	}
	return p.CurrentStock >= quantity
}
