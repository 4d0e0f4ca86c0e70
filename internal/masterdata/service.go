package masterdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetProduct(ctx context.Context, id int64) (Product, error)
	GetCustomer(ctx context.Context, id int64) (Customer, error)
	GetSupplier(ctx context.Context, id int64) (Supplier, error)
	ListProducts(ctx context.Context, onlyLowStock bool) ([]Product, error)
	ListCustomers(ctx context.Context) ([]Customer, error)
	ListSuppliers(ctx context.Context) ([]Supplier, error)
	ListWarehouses(ctx context.Context) ([]Warehouse, error)
}

// AuditPort records masterdata changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates master data maintenance. Codes are drawn from the
// shared sequence store inside the same transaction that inserts the row, so
// concurrent creates never collide.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the masterdata service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateProduct registers a product with a PRD-0001 style code.
func (s *Service) CreateProduct(ctx context.Context, input ProductInput, actorID int64) (Product, error) {
	if err := input.Validate(); err != nil {
		return Product{}, err
	}
	var product Product
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		code, err := tx.NextProductCode(ctx)
		if err != nil {
			return err
		}
		product, err = tx.InsertProduct(ctx, code, input)
		return err
	})
	if err != nil {
		return Product{}, err
	}
	s.recordAudit(ctx, actorID, "product.create", "product", product.ID, map[string]any{"code": product.Code})
	return product, nil
}

// CreateCustomer registers a customer with a CUS-001 style code.
func (s *Service) CreateCustomer(ctx context.Context, input CustomerInput, actorID int64) (Customer, error) {
	if err := input.Validate(); err != nil {
		return Customer{}, err
	}
	var customer Customer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		code, err := tx.NextCustomerCode(ctx)
		if err != nil {
			return err
		}
		customer, err = tx.InsertCustomer(ctx, code, input)
		return err
	})
	if err != nil {
		return Customer{}, err
	}
	s.recordAudit(ctx, actorID, "customer.create", "customer", customer.ID, map[string]any{"code": customer.Code})
	return customer, nil
}

// CreateSupplier registers a supplier with a SUP-001 style code.
func (s *Service) CreateSupplier(ctx context.Context, input SupplierInput, actorID int64) (Supplier, error) {
	if err := input.Validate(); err != nil {
		return Supplier{}, err
	}
	var supplier Supplier
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		code, err := tx.NextSupplierCode(ctx)
		if err != nil {
			return err
		}
		supplier, err = tx.InsertSupplier(ctx, code, input)
		return err
	})
	if err != nil {
		return Supplier{}, err
	}
	s.recordAudit(ctx, actorID, "supplier.create", "supplier", supplier.ID, map[string]any{"code": supplier.Code})
	return supplier, nil
}

// CreateWarehouse registers a warehouse. Warehouse codes are caller supplied.
func (s *Service) CreateWarehouse(ctx context.Context, input WarehouseInput, actorID int64) (Warehouse, error) {
	if err := input.Validate(); err != nil {
		return Warehouse{}, err
	}
	var warehouse Warehouse
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		warehouse, err = tx.InsertWarehouse(ctx, input)
		return err
	})
	if err != nil {
		return Warehouse{}, err
	}
	s.recordAudit(ctx, actorID, "warehouse.create", "warehouse", warehouse.ID, map[string]any{"code": warehouse.Code})
	return warehouse, nil
}

// GetProduct fetches one product.
func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	if id == 0 {
		return Product{}, errors.New("masterdata: product id required")
	}
	return s.repo.GetProduct(ctx, id)
}

// GetCustomer fetches one customer.
func (s *Service) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	if id == 0 {
		return Customer{}, errors.New("masterdata: customer id required")
	}
	return s.repo.GetCustomer(ctx, id)
}

// GetSupplier fetches one supplier.
func (s *Service) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	if id == 0 {
		return Supplier{}, errors.New("masterdata: supplier id required")
	}
	return s.repo.GetSupplier(ctx, id)
}

// ListProducts lists products, optionally only those at or below minimum
// stock.
func (s *Service) ListProducts(ctx context.Context, onlyLowStock bool) ([]Product, error) {
	return s.repo.ListProducts(ctx, onlyLowStock)
}

// ListCustomers lists customers.
func (s *Service) ListCustomers(ctx context.Context) ([]Customer, error) {
	return s.repo.ListCustomers(ctx)
}

// ListSuppliers lists suppliers.
func (s *Service) ListSuppliers(ctx context.Context) ([]Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

// ListWarehouses lists warehouses.
func (s *Service) ListWarehouses(ctx context.Context) ([]Warehouse, error) {
	return s.repo.ListWarehouses(ctx)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
		At:       s.now(),
	})
}
