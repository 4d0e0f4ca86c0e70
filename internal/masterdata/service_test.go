package masterdata

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	products    map[int64]Product
	customers   map[int64]Customer
	suppliers   map[int64]Supplier
	warehouses  map[int64]Warehouse
	productSeq  int
	customerSeq int
	supplierSeq int
	nextID      int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		products:   map[int64]Product{},
		customers:  map[int64]Customer{},
		suppliers:  map[int64]Supplier{},
		warehouses: map[int64]Warehouse{},
	}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: m})
}

func (m *memoryRepo) GetProduct(_ context.Context, id int64) (Product, error) {
	return m.products[id], nil
}

func (m *memoryRepo) GetCustomer(_ context.Context, id int64) (Customer, error) {
	return m.customers[id], nil
}

func (m *memoryRepo) GetSupplier(_ context.Context, id int64) (Supplier, error) {
	return m.suppliers[id], nil
}

func (m *memoryRepo) ListProducts(_ context.Context, onlyLowStock bool) ([]Product, error) {
	var out []Product
	for _, p := range m.products {
		if onlyLowStock && !p.IsLowStock() {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *memoryRepo) ListCustomers(_ context.Context) ([]Customer, error) {
	var out []Customer
	for _, c := range m.customers {
		out = append(out, c)
	}
	return out, nil
}

func (m *memoryRepo) ListSuppliers(_ context.Context) ([]Supplier, error) {
	var out []Supplier
	for _, s := range m.suppliers {
		out = append(out, s)
	}
	return out, nil
}

func (m *memoryRepo) ListWarehouses(_ context.Context) ([]Warehouse, error) {
	var out []Warehouse
	for _, w := range m.warehouses {
		out = append(out, w)
	}
	return out, nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) NextProductCode(context.Context) (string, error) {
	t.repo.productSeq++
	return fmt.Sprintf("PRD-%04d", t.repo.productSeq), nil
}

func (t *memoryTx) NextCustomerCode(context.Context) (string, error) {
	t.repo.customerSeq++
	return fmt.Sprintf("CUS-%03d", t.repo.customerSeq), nil
}

func (t *memoryTx) NextSupplierCode(context.Context) (string, error) {
	t.repo.supplierSeq++
	return fmt.Sprintf("SUP-%03d", t.repo.supplierSeq), nil
}

func (t *memoryTx) InsertProduct(_ context.Context, code string, input ProductInput) (Product, error) {
	t.repo.nextID++
	p := Product{
		ID:             t.repo.nextID,
		Code:           code,
		Name:           input.Name,
		Unit:           input.Unit,
		CostPrice:      input.CostPrice,
		SellingPrice:   input.SellingPrice,
		IsTaxable:      input.IsTaxable,
		TaxRate:        input.TaxRate,
		TrackInventory: input.TrackInventory,
		MinimumStock:   input.MinimumStock,
		Status:         ProductStatusActive,
	}
	t.repo.products[p.ID] = p
	return p, nil
}

func (t *memoryTx) InsertCustomer(_ context.Context, code string, input CustomerInput) (Customer, error) {
	t.repo.nextID++
	c := Customer{
		ID:               t.repo.nextID,
		Code:             code,
		Name:             input.Name,
		CreditLimit:      input.CreditLimit,
		PaymentTermsDays: input.PaymentTermsDays,
		Currency:         input.Currency,
		Status:           PartyStatusActive,
	}
	t.repo.customers[c.ID] = c
	return c, nil
}

func (t *memoryTx) InsertSupplier(_ context.Context, code string, input SupplierInput) (Supplier, error) {
	t.repo.nextID++
	s := Supplier{
		ID:     t.repo.nextID,
		Code:   code,
		Name:   input.Name,
		Status: PartyStatusActive,
	}
	t.repo.suppliers[s.ID] = s
	return s, nil
}

func (t *memoryTx) InsertWarehouse(_ context.Context, input WarehouseInput) (Warehouse, error) {
	t.repo.nextID++
	w := Warehouse{
		ID:        t.repo.nextID,
		Code:      input.Code,
		Name:      input.Name,
		IsDefault: input.IsDefault,
		IsActive:  true,
	}
	t.repo.warehouses[w.ID] = w
	return w, nil
}

func newTestService() (*Service, *memoryRepo) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	svc.WithNow(func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) })
	return svc, repo
}

func TestCreateProductAssignsCode(t *testing.T) {
	svc, _ := newTestService()

	first, err := svc.CreateProduct(context.Background(), ProductInput{Name: "Widget", Unit: "pcs", SellingPrice: 10}, 1)
	require.NoError(t, err)
	require.Equal(t, "PRD-0001", first.Code)
	require.Equal(t, ProductStatusActive, first.Status)

	second, err := svc.CreateProduct(context.Background(), ProductInput{Name: "Gadget", Unit: "pcs"}, 1)
	require.NoError(t, err)
	require.Equal(t, "PRD-0002", second.Code)
}

func TestCreateProductRejectsInvalid(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateProduct(context.Background(), ProductInput{}, 1)
	require.ErrorIs(t, err, ErrNameRequired)

	_, err = svc.CreateProduct(context.Background(), ProductInput{Name: "Widget", CostPrice: -1}, 1)
	require.ErrorIs(t, err, ErrNegativePrice)
}

func TestCreateCounterpartyCodes(t *testing.T) {
	svc, _ := newTestService()

	customer, err := svc.CreateCustomer(context.Background(), CustomerInput{Name: "Acme Ltd", CreditLimit: 5000}, 1)
	require.NoError(t, err)
	require.Equal(t, "CUS-001", customer.Code)

	supplier, err := svc.CreateSupplier(context.Background(), SupplierInput{Name: "Parts Co"}, 1)
	require.NoError(t, err)
	require.Equal(t, "SUP-001", supplier.Code)
}

func TestListProductsLowStockFilter(t *testing.T) {
	svc, repo := newTestService()

	_, err := svc.CreateProduct(context.Background(), ProductInput{Name: "Tracked", TrackInventory: true, MinimumStock: 5}, 1)
	require.NoError(t, err)
	healthy, err := svc.CreateProduct(context.Background(), ProductInput{Name: "Healthy", TrackInventory: true, MinimumStock: 5}, 1)
	require.NoError(t, err)

	p := repo.products[healthy.ID]
	p.CurrentStock = 20
	repo.products[healthy.ID] = p

	low, err := svc.ListProducts(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, low, 1)
	require.Equal(t, "Tracked", low[0].Name)
}

func TestCreateWarehouseRequiresCode(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateWarehouse(context.Background(), WarehouseInput{Name: "Main"}, 1)
	require.Error(t, err)

	wh, err := svc.CreateWarehouse(context.Background(), WarehouseInput{Code: "WH-MAIN", Name: "Main", IsDefault: true}, 1)
	require.NoError(t, err)
	require.True(t, wh.IsActive)
}
