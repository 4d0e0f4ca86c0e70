package trading

import (
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// DocKind separates sales invoices from procurement purchases. Both share the
// same totals math and payment application.
type DocKind string

const (
	KindInvoice  DocKind = "INVOICE"
	KindPurchase DocKind = "PURCHASE"
)

// DocumentStatus enumerates trading document lifecycle values. Invoices use
// DRAFT, SENT, PAID, OVERDUE, CANCELLED; purchases use DRAFT, SENT, RECEIVED,
// COMPLETED, OVERDUE, CANCELLED.
type DocumentStatus string

const (
	StatusDraft     DocumentStatus = "DRAFT"
	StatusSent      DocumentStatus = "SENT"
	StatusReceived  DocumentStatus = "RECEIVED"
	StatusPaid      DocumentStatus = "PAID"
	StatusCompleted DocumentStatus = "COMPLETED"
	StatusOverdue   DocumentStatus = "OVERDUE"
	StatusCancelled DocumentStatus = "CANCELLED"
)

// IsTerminal reports whether no further transitions are allowed.
func (s DocumentStatus) IsTerminal() bool {
	return s == StatusCancelled
}

// PaymentStatus tracks how much of the document has been settled.
type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "UNPAID"
	PaymentPartial PaymentStatus = "PARTIAL"
	PaymentPaid    PaymentStatus = "PAID"
)

// LineStatus tracks per-line receipt progress on purchases.
type LineStatus string

const (
	LinePending  LineStatus = "PENDING"
	LinePartial  LineStatus = "PARTIAL"
	LineReceived LineStatus = "RECEIVED"
)

// Line is one document line item. Subtotal, DiscountAmount, TaxAmount, and
// TotalAmount are derived by Calculate and never set independently.
type Line struct {
	ID                 int64      `json:"id"`
	DocumentID         int64      `json:"document_id"`
	ProductID          int64      `json:"product_id"`
	Description        string     `json:"description,omitempty"`
	Quantity           float64    `json:"quantity"`
	UnitPrice          float64    `json:"unit_price"`
	DiscountPercentage float64    `json:"discount_percentage"`
	DiscountAmount     float64    `json:"discount_amount"`
	Taxable            bool       `json:"taxable"`
	TaxRate            float64    `json:"tax_rate"`
	Subtotal           float64    `json:"subtotal"`
	TaxAmount          float64    `json:"tax_amount"`
	TotalAmount        float64    `json:"total_amount"`
	ReservedQuantity   float64    `json:"reserved_quantity,omitempty"`
	ReceivedQuantity   float64    `json:"received_quantity,omitempty"`
	Status             LineStatus `json:"status,omitempty"`
}

// Calculate derives the line amounts. A discount percentage above zero
// overwrites the flat discount amount; a flat amount entered directly is kept
// only while the percentage is zero.
func (l *Line) Calculate() {
	l.Subtotal = l.Quantity * l.UnitPrice
	if l.DiscountPercentage > 0 {
		l.DiscountAmount = l.Subtotal * l.DiscountPercentage / 100
	}
	taxable := l.Subtotal - l.DiscountAmount
	if l.Taxable {
		l.TaxAmount = taxable * l.TaxRate / 100
	} else {
		l.TaxAmount = 0
	}
	l.TotalAmount = taxable + l.TaxAmount
}

// Remaining returns the quantity not yet received.
func (l Line) Remaining() float64 {
	remaining := l.Quantity - l.ReceivedQuantity
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Document is a sales invoice or a purchase order. All aggregate amounts are
// derived by CalculateTotals inside the same transaction as any line or
// payment mutation.
type Document struct {
	ID                 int64          `json:"id"`
	Kind               DocKind        `json:"kind"`
	Number             string         `json:"number"`
	CounterpartyID     int64          `json:"counterparty_id"`
	WarehouseID        int64          `json:"warehouse_id,omitempty"`
	DocumentDate       time.Time      `json:"document_date"`
	DueDate            time.Time      `json:"due_date"`
	Currency           string         `json:"currency"`
	ExchangeRate       float64        `json:"exchange_rate"`
	Subtotal           float64        `json:"subtotal"`
	DiscountPercentage float64        `json:"discount_percentage"`
	DiscountAmount     float64        `json:"discount_amount"`
	TaxAmount          float64        `json:"tax_amount"`
	ShippingCost       float64        `json:"shipping_cost,omitempty"`
	TotalAmount        float64        `json:"total_amount"`
	PaidAmount         float64        `json:"paid_amount"`
	BalanceDue         float64        `json:"balance_due"`
	Status             DocumentStatus `json:"status"`
	PaymentStatus      PaymentStatus  `json:"payment_status"`
	Notes              string         `json:"notes,omitempty"`
	CreatedBy          int64          `json:"created_by"`
	ApprovedBy         *int64         `json:"approved_by,omitempty"`
	ApprovedAt         *time.Time     `json:"approved_at,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	Lines              []Line         `json:"lines,omitempty"`
}

// CalculateTotals derives the document aggregates from its lines and the
// current paid amount. Safe to call repeatedly. Shipping applies to purchases
// only.
func (d *Document) CalculateTotals() {
	var subtotal, tax float64
	for i := range d.Lines {
		d.Lines[i].Calculate()
		subtotal += d.Lines[i].Subtotal - d.Lines[i].DiscountAmount
		tax += d.Lines[i].TaxAmount
	}
	d.Subtotal = subtotal
	if d.DiscountPercentage > 0 {
		d.DiscountAmount = d.Subtotal * d.DiscountPercentage / 100
	}
	d.TaxAmount = tax
	d.TotalAmount = (d.Subtotal - d.DiscountAmount) + d.TaxAmount
	if d.Kind == KindPurchase {
		d.TotalAmount += d.ShippingCost
	}
	d.BalanceDue = d.TotalAmount - d.PaidAmount
}

// ApplyPayment increments the paid amount and refreshes the derived payment
// state. Overpayment is kept as a credit: balance_due goes negative.
func (d *Document) ApplyPayment(amount float64) {
	d.PaidAmount += amount
	d.BalanceDue = d.TotalAmount - d.PaidAmount
	switch {
	case d.BalanceDue <= 0:
		d.PaymentStatus = PaymentPaid
		if d.Kind == KindInvoice {
			d.Status = StatusPaid
		} else if d.Status == StatusReceived {
			d.Status = StatusCompleted
		}
	case d.PaidAmount > 0:
		d.PaymentStatus = PaymentPartial
	}
}

// IsOverdue reports whether the document is past due with an open balance.
func (d Document) IsOverdue(now time.Time) bool {
	if d.Status == StatusCancelled || d.DueDate.IsZero() {
		return false
	}
	return now.After(d.DueDate) && d.BalanceDue > 0
}

// DaysOverdue returns the whole days past due, zero when not overdue.
func (d Document) DaysOverdue(now time.Time) int {
	if !d.IsOverdue(now) {
		return 0
	}
	return int(now.Sub(d.DueDate).Hours() / 24)
}

// AgingRow buckets a counterparty's outstanding balances by days past due.
type AgingRow struct {
	CounterpartyID int64   `json:"counterparty_id"`
	Current        float64 `json:"current"`
	Days1To30      float64 `json:"days_1_30"`
	Days31To60     float64 `json:"days_31_60"`
	Days61To90     float64 `json:"days_61_90"`
	Over90         float64 `json:"over_90"`
	Total          float64 `json:"total"`
}

func (r *AgingRow) add(balance float64, daysOverdue int) {
	switch {
	case daysOverdue <= 0:
		r.Current += balance
	case daysOverdue <= 30:
		r.Days1To30 += balance
	case daysOverdue <= 60:
		r.Days31To60 += balance
	case daysOverdue <= 90:
		r.Days61To90 += balance
	default:
		r.Over90 += balance
	}
	r.Total += balance
}

// FullyReceived reports whether every line has been received in full.
func (d Document) FullyReceived() bool {
	for _, line := range d.Lines {
		if line.Remaining() > 0 {
			return false
		}
	}
	return true
}

// LineInput describes one line in a document request.
type LineInput struct {
	ProductID          int64
	Description        string
	Quantity           float64
	UnitPrice          float64
	DiscountPercentage float64
	DiscountAmount     float64
	Taxable            bool
	TaxRate            float64
}

// DocumentInput groups fields for creating a draft document.
type DocumentInput struct {
	CounterpartyID     int64
	WarehouseID        int64
	DocumentDate       time.Time
	DueDate            time.Time
	Currency           string
	ExchangeRate       float64
	DiscountPercentage float64
	DiscountAmount     float64
	ShippingCost       float64
	Notes              string
	CreatedBy          int64
	Lines              []LineInput
}

// Validate checks minimum document criteria.
func (in DocumentInput) Validate() error {
	if in.CounterpartyID == 0 {
		return shared.Validationf("counterparty_id", "counterparty required")
	}
	if len(in.Lines) == 0 {
		return shared.Validationf("lines", "at least one line required")
	}
	for idx, line := range in.Lines {
		if line.ProductID == 0 && line.Description == "" {
			return shared.Validationf("lines", "line %d needs a product or description", idx)
		}
		if line.Quantity <= 0 {
			return shared.Validationf("lines", "line %d quantity must be > 0", idx)
		}
		if line.UnitPrice < 0 {
			return shared.Validationf("lines", "line %d negative unit price", idx)
		}
		if line.DiscountPercentage < 0 || line.DiscountPercentage > 100 {
			return shared.Validationf("lines", "line %d discount percentage out of range", idx)
		}
		if line.TaxRate < 0 {
			return shared.Validationf("lines", "line %d negative tax rate", idx)
		}
	}
	if in.DiscountPercentage < 0 || in.DiscountPercentage > 100 {
		return shared.Validationf("discount_percentage", "discount percentage out of range")
	}
	if in.ShippingCost < 0 {
		return shared.Validationf("shipping_cost", "negative shipping cost")
	}
	return nil
}

// PaymentInput groups fields for applying a payment to a document.
type PaymentInput struct {
	Amount  float64
	Date    time.Time
	Method  string
	Notes   string
	ActorID int64
}

// Validate rejects non-positive amounts. Overpayment is allowed and tracked
// as negative balance due.
func (in PaymentInput) Validate() error {
	if in.Amount <= 0 {
		return shared.Validationf("amount", "amount must be > 0")
	}
	return nil
}

// ReceiptItem targets one purchase line for receiving.
type ReceiptItem struct {
	LineID   int64
	Quantity float64
}

func buildLines(inputs []LineInput) []Line {
	lines := make([]Line, 0, len(inputs))
	for _, in := range inputs {
		line := Line{
			ProductID:          in.ProductID,
			Description:        in.Description,
			Quantity:           in.Quantity,
			UnitPrice:          in.UnitPrice,
			DiscountPercentage: in.DiscountPercentage,
			DiscountAmount:     in.DiscountAmount,
			Taxable:            in.Taxable,
			TaxRate:            in.TaxRate,
			Status:             LinePending,
		}
		line.Calculate()
		lines = append(lines, line)
	}
	return lines
}
