package masterdata

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository persists master data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
	seq  *shared.SequenceStore
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, seq *shared.SequenceStore) *Repository {
	return &Repository{pool: pool, seq: seq}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	NextProductCode(ctx context.Context) (string, error)
	NextCustomerCode(ctx context.Context) (string, error)
	NextSupplierCode(ctx context.Context) (string, error)
	InsertProduct(ctx context.Context, code string, input ProductInput) (Product, error)
	InsertCustomer(ctx context.Context, code string, input CustomerInput) (Customer, error)
	InsertSupplier(ctx context.Context, code string, input SupplierInput) (Supplier, error)
	InsertWarehouse(ctx context.Context, input WarehouseInput) (Warehouse, error)
}

type txRepository struct {
	tx  pgx.Tx
	seq *shared.SequenceStore
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("masterdata repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx, seq: r.seq}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const productColumns = `id, code, name, description, unit, cost_price, selling_price, is_taxable, tax_rate,
track_inventory, allow_negative_stock, current_stock, minimum_stock, maximum_stock, reorder_point, status, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Description, &p.Unit, &p.CostPrice, &p.SellingPrice, &p.IsTaxable, &p.TaxRate,
		&p.TrackInventory, &p.AllowNegativeStock, &p.CurrentStock, &p.MinimumStock, &p.MaximumStock, &p.ReorderPoint, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	if r == nil {
		return Product{}, errors.New("masterdata repository not initialised")
	}
	p, err := scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, shared.ErrNotFound
	}
	return p, err
}

func (r *Repository) ListProducts(ctx context.Context, onlyLowStock bool) ([]Product, error) {
	if r == nil {
		return nil, errors.New("masterdata repository not initialised")
	}
	query := `SELECT ` + productColumns + ` FROM products`
	if onlyLowStock {
		query += ` WHERE track_inventory AND current_stock <= minimum_stock`
	}
	query += ` ORDER BY code ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	products := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

const customerColumns = `id, code, name, email, phone, tax_number, credit_limit, current_balance,
payment_terms_days, currency, discount_percentage, status, created_at, updated_at`

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.Code, &c.Name, &c.Email, &c.Phone, &c.TaxNumber, &c.CreditLimit, &c.CurrentBalance,
		&c.PaymentTermsDays, &c.Currency, &c.DiscountPercentage, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (r *Repository) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	if r == nil {
		return Customer{}, errors.New("masterdata repository not initialised")
	}
	c, err := scanCustomer(r.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, shared.ErrNotFound
	}
	return c, err
}

func (r *Repository) ListCustomers(ctx context.Context) ([]Customer, error) {
	if r == nil {
		return nil, errors.New("masterdata repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT `+customerColumns+` FROM customers ORDER BY code ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	customers := []Customer{}
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

const supplierColumns = `id, code, name, email, phone, tax_number, current_balance,
payment_terms_days, currency, status, created_at, updated_at`

func scanSupplier(row pgx.Row) (Supplier, error) {
	var s Supplier
	err := row.Scan(&s.ID, &s.Code, &s.Name, &s.Email, &s.Phone, &s.TaxNumber, &s.CurrentBalance,
		&s.PaymentTermsDays, &s.Currency, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func (r *Repository) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	if r == nil {
		return Supplier{}, errors.New("masterdata repository not initialised")
	}
	s, err := scanSupplier(r.pool.QueryRow(ctx, `SELECT `+supplierColumns+` FROM suppliers WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Supplier{}, shared.ErrNotFound
	}
	return s, err
}

func (r *Repository) ListSuppliers(ctx context.Context) ([]Supplier, error) {
	if r == nil {
		return nil, errors.New("masterdata repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT `+supplierColumns+` FROM suppliers ORDER BY code ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	suppliers := []Supplier{}
	for rows.Next() {
		s, err := scanSupplier(rows)
		if err != nil {
			return nil, err
		}
		suppliers = append(suppliers, s)
	}
	return suppliers, rows.Err()
}

func (r *Repository) ListWarehouses(ctx context.Context) ([]Warehouse, error) {
	if r == nil {
		return nil, errors.New("masterdata repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id, code, name, address, is_default, is_active, created_at, updated_at
FROM warehouses ORDER BY code ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	warehouses := []Warehouse{}
	for rows.Next() {
		var w Warehouse
		if err := rows.Scan(&w.ID, &w.Code, &w.Name, &w.Address, &w.IsDefault, &w.IsActive, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		warehouses = append(warehouses, w)
	}
	return warehouses, rows.Err()
}

func (r *txRepository) NextProductCode(ctx context.Context) (string, error) {
	return r.seq.NextProductCode(ctx, r.tx)
}

func (r *txRepository) NextCustomerCode(ctx context.Context) (string, error) {
	return r.seq.NextCustomerCode(ctx, r.tx)
}

func (r *txRepository) NextSupplierCode(ctx context.Context) (string, error) {
	return r.seq.NextSupplierCode(ctx, r.tx)
}

func (r *txRepository) InsertProduct(ctx context.Context, code string, input ProductInput) (Product, error) {
	return scanProduct(r.tx.QueryRow(ctx, `INSERT INTO products (code, name, description, unit, cost_price, selling_price, is_taxable, tax_rate,
track_inventory, allow_negative_stock, current_stock, minimum_stock, maximum_stock, reorder_point, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,0,$11,$12,$13,$14,NOW(),NOW())
RETURNING `+productColumns,
		code, input.Name, input.Description, input.Unit, toNumeric(input.CostPrice), toNumeric(input.SellingPrice), input.IsTaxable, toNumeric(input.TaxRate),
		input.TrackInventory, input.AllowNegativeStock, input.MinimumStock, input.MaximumStock, input.ReorderPoint, string(ProductStatusActive)))
}

func (r *txRepository) InsertCustomer(ctx context.Context, code string, input CustomerInput) (Customer, error) {
	currency := input.Currency
	if currency == "" {
		currency = "USD"
	}
	return scanCustomer(r.tx.QueryRow(ctx, `INSERT INTO customers (code, name, email, phone, tax_number, credit_limit, current_balance,
payment_terms_days, currency, discount_percentage, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,0,$7,$8,$9,$10,NOW(),NOW())
RETURNING `+customerColumns,
		code, input.Name, input.Email, input.Phone, input.TaxNumber, toNumeric(input.CreditLimit),
		input.PaymentTermsDays, currency, toNumeric(input.DiscountPercentage), string(PartyStatusActive)))
}

func (r *txRepository) InsertSupplier(ctx context.Context, code string, input SupplierInput) (Supplier, error) {
	currency := input.Currency
	if currency == "" {
		currency = "USD"
	}
	return scanSupplier(r.tx.QueryRow(ctx, `INSERT INTO suppliers (code, name, email, phone, tax_number, current_balance,
payment_terms_days, currency, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,0,$6,$7,$8,NOW(),NOW())
RETURNING `+supplierColumns,
		code, input.Name, input.Email, input.Phone, input.TaxNumber,
		input.PaymentTermsDays, currency, string(PartyStatusActive)))
}

func (r *txRepository) InsertWarehouse(ctx context.Context, input WarehouseInput) (Warehouse, error) {
	var w Warehouse
	err := r.tx.QueryRow(ctx, `INSERT INTO warehouses (code, name, address, is_default, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,TRUE,NOW(),NOW())
RETURNING id, code, name, address, is_default, is_active, created_at, updated_at`,
		input.Code, input.Name, input.Address, input.IsDefault).
		Scan(&w.ID, &w.Code, &w.Name, &w.Address, &w.IsDefault, &w.IsActive, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}

func toNumeric(v float64) any {
	return fmt.Sprintf("%.2f", v)
}
