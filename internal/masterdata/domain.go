package masterdata

import (
	"errors"
	"time"
)

// ProductStatus enumerates product lifecycle values.
type ProductStatus string

const (
	ProductStatusActive       ProductStatus = "ACTIVE"
	ProductStatusInactive     ProductStatus = "INACTIVE"
	ProductStatusDiscontinued ProductStatus = "DISCONTINUED"
)

// PartyStatus enumerates counterparty lifecycle values.
type PartyStatus string

const (
	PartyStatusActive   PartyStatus = "ACTIVE"
	PartyStatusInactive PartyStatus = "INACTIVE"
	PartyStatusBlocked  PartyStatus = "BLOCKED"
)

// Product is a sellable or purchasable item. CurrentStock is mutated only by
// the inventory module inside its own transactions.
type Product struct {
	ID                 int64         `json:"id"`
	Code               string        `json:"code"`
	Name               string        `json:"name"`
	Description        string        `json:"description,omitempty"`
	Unit               string        `json:"unit"`
	CostPrice          float64       `json:"cost_price"`
	SellingPrice       float64       `json:"selling_price"`
	IsTaxable          bool          `json:"is_taxable"`
	TaxRate            float64       `json:"tax_rate"`
	TrackInventory     bool          `json:"track_inventory"`
	AllowNegativeStock bool          `json:"allow_negative_stock"`
	CurrentStock       float64       `json:"current_stock"`
	MinimumStock       float64       `json:"minimum_stock"`
	MaximumStock       float64       `json:"maximum_stock"`
	ReorderPoint       float64       `json:"reorder_point"`
	Status             ProductStatus `json:"status"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// IsLowStock reports whether the product is at or below its minimum level.
func (p Product) IsLowStock() bool {
	return p.TrackInventory && p.CurrentStock <= p.MinimumStock
}

// IsOutOfStock reports whether the product has no stock left.
func (p Product) IsOutOfStock() bool {
	return p.TrackInventory && p.CurrentStock <= 0
}

// StockValue returns current stock valued at cost.
func (p Product) StockValue() float64 {
	return p.CurrentStock * p.CostPrice
}

// Customer is a sales counterparty. CurrentBalance is positive when the
// customer owes the business; it is mutated only through payment application
// inside trading/payment transactions.
type Customer struct {
	ID                 int64       `json:"id"`
	Code               string      `json:"code"`
	Name               string      `json:"name"`
	Email              string      `json:"email,omitempty"`
	Phone              string      `json:"phone,omitempty"`
	TaxNumber          string      `json:"tax_number,omitempty"`
	CreditLimit        float64     `json:"credit_limit"`
	CurrentBalance     float64     `json:"current_balance"`
	PaymentTermsDays   int         `json:"payment_terms_days"`
	Currency           string      `json:"currency"`
	DiscountPercentage float64     `json:"discount_percentage"`
	Status             PartyStatus `json:"status"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// CreditAvailable returns the remaining credit headroom, never negative.
func (c Customer) CreditAvailable() float64 {
	if c.CreditLimit <= c.CurrentBalance {
		return 0
	}
	return c.CreditLimit - c.CurrentBalance
}

// IsCreditExceeded reports whether adding amount would break the limit.
func (c Customer) IsCreditExceeded(amount float64) bool {
	return c.CreditLimit > 0 && c.CurrentBalance+amount > c.CreditLimit
}

// Supplier is a procurement counterparty. CurrentBalance is positive when the
// business owes the supplier.
type Supplier struct {
	ID               int64       `json:"id"`
	Code             string      `json:"code"`
	Name             string      `json:"name"`
	Email            string      `json:"email,omitempty"`
	Phone            string      `json:"phone,omitempty"`
	TaxNumber        string      `json:"tax_number,omitempty"`
	CurrentBalance   float64     `json:"current_balance"`
	PaymentTermsDays int         `json:"payment_terms_days"`
	Currency         string      `json:"currency"`
	Status           PartyStatus `json:"status"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// Warehouse is a stock location.
type Warehouse struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	IsDefault bool      `json:"is_default"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProductInput groups fields for creating or updating a product.
type ProductInput struct {
	Name               string
	Description        string
	Unit               string
	CostPrice          float64
	SellingPrice       float64
	IsTaxable          bool
	TaxRate            float64
	TrackInventory     bool
	AllowNegativeStock bool
	MinimumStock       float64
	MaximumStock       float64
	ReorderPoint       float64
}

// CustomerInput groups fields for creating a customer.
type CustomerInput struct {
	Name               string
	Email              string
	Phone              string
	TaxNumber          string
	CreditLimit        float64
	PaymentTermsDays   int
	Currency           string
	DiscountPercentage float64
}

// SupplierInput groups fields for creating a supplier.
type SupplierInput struct {
	Name             string
	Email            string
	Phone            string
	TaxNumber        string
	PaymentTermsDays int
	Currency         string
}

// WarehouseInput groups fields for creating a warehouse.
type WarehouseInput struct {
	Code      string
	Name      string
	Address   string
	IsDefault bool
}

var (
	// ErrNameRequired indicates a missing display name.
	ErrNameRequired = errors.New("masterdata: name required")
	// ErrNegativePrice indicates a negative price or cost.
	ErrNegativePrice = errors.New("masterdata: prices must be >= 0")
)

// Validate checks minimum product criteria.
func (in ProductInput) Validate() error {
	if in.Name == "" {
		return ErrNameRequired
	}
	if in.CostPrice < 0 || in.SellingPrice < 0 {
		return ErrNegativePrice
	}
	if in.TaxRate < 0 {
		return errors.New("masterdata: tax rate must be >= 0")
	}
	return nil
}

// Validate checks minimum customer criteria.
func (in CustomerInput) Validate() error {
	if in.Name == "" {
		return ErrNameRequired
	}
	if in.CreditLimit < 0 {
		return errors.New("masterdata: credit limit must be >= 0")
	}
	return nil
}

// Validate checks minimum supplier criteria.
func (in SupplierInput) Validate() error {
	if in.Name == "" {
		return ErrNameRequired
	}
	return nil
}

// Validate checks minimum warehouse criteria.
func (in WarehouseInput) Validate() error {
	if in.Code == "" || in.Name == "" {
		return errors.New("masterdata: warehouse code and name required")
	}
	return nil
}
