package inventory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryRepo struct {
	products      map[int64]ProductStock
	stocks        map[string]WarehouseStock
	movements     []Movement
	adjustments   map[int64]StockAdjustment
	nextMoveID    int64
	nextAdjID     int64
	nextLineID    int64
	adjustmentSeq int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		products:    make(map[int64]ProductStock),
		stocks:      make(map[string]WarehouseStock),
		adjustments: make(map[int64]StockAdjustment),
	}
}

func stockKey(warehouseID, productID int64) string {
	return fmt.Sprintf("%d:%d", warehouseID, productID)
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetProductStock(_ context.Context, productID int64) (ProductStock, error) {
	product, ok := r.products[productID]
	if !ok {
		return ProductStock{}, shared.ErrNotFound
	}
	return product, nil
}

func (r *memoryRepo) GetWarehouseStock(_ context.Context, warehouseID, productID int64) (WarehouseStock, error) {
	stock, ok := r.stocks[stockKey(warehouseID, productID)]
	if !ok {
		return WarehouseStock{}, shared.ErrNotFound
	}
	return stock, nil
}

func (r *memoryRepo) ListMovements(_ context.Context, filter MovementFilter) ([]Movement, error) {
	out := []Movement{}
	for _, m := range r.movements {
		if filter.ProductID != 0 && m.ProductID != filter.ProductID {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *memoryRepo) GetAdjustment(_ context.Context, id int64) (StockAdjustment, error) {
	adjustment, ok := r.adjustments[id]
	if !ok {
		return StockAdjustment{}, shared.ErrNotFound
	}
	return adjustment, nil
}

func (r *memoryRepo) ListAdjustments(_ context.Context, status AdjustmentStatus, _ int) ([]StockAdjustment, error) {
	out := []StockAdjustment{}
	for _, adjustment := range r.adjustments {
		if status == "" || adjustment.Status == status {
			out = append(out, adjustment)
		}
	}
	return out, nil
}

func (tx *memoryTx) GetProductStockForUpdate(_ context.Context, productID int64) (ProductStock, error) {
	product, ok := tx.repo.products[productID]
	if !ok {
		return ProductStock{}, shared.ErrNotFound
	}
	return product, nil
}

func (tx *memoryTx) SetProductStock(_ context.Context, productID int64, quantity float64) error {
	product := tx.repo.products[productID]
	product.CurrentStock = quantity
	tx.repo.products[productID] = product
	return nil
}

func (tx *memoryTx) GetWarehouseStockForUpdate(_ context.Context, warehouseID, productID int64) (WarehouseStock, error) {
	stock, ok := tx.repo.stocks[stockKey(warehouseID, productID)]
	if !ok {
		return WarehouseStock{WarehouseID: warehouseID, ProductID: productID}, ErrStockNotFound
	}
	return stock, nil
}

func (tx *memoryTx) UpsertWarehouseStock(_ context.Context, stock WarehouseStock) error {
	tx.repo.stocks[stockKey(stock.WarehouseID, stock.ProductID)] = stock
	return nil
}

func (tx *memoryTx) InsertMovement(_ context.Context, movement Movement) (Movement, error) {
	tx.repo.nextMoveID++
	movement.ID = tx.repo.nextMoveID
	tx.repo.movements = append(tx.repo.movements, movement)
	return movement, nil
}

func (tx *memoryTx) NextAdjustmentNumber(_ context.Context) (string, error) {
	tx.repo.adjustmentSeq++
	return fmt.Sprintf("ADJ-%06d", tx.repo.adjustmentSeq), nil
}

func (tx *memoryTx) InsertAdjustment(_ context.Context, number string, input AdjustmentInput) (StockAdjustment, error) {
	tx.repo.nextAdjID++
	adjustment := StockAdjustment{
		ID:          tx.repo.nextAdjID,
		Number:      number,
		WarehouseID: input.WarehouseID,
		Date:        input.Date,
		Note:        input.Note,
		Status:      AdjustmentStatusDraft,
		CreatedBy:   input.CreatedBy,
	}
	tx.repo.adjustments[adjustment.ID] = adjustment
	return adjustment, nil
}

func (tx *memoryTx) InsertAdjustmentLines(_ context.Context, adjustmentID int64, lines []AdjustmentLine) ([]AdjustmentLine, error) {
	out := make([]AdjustmentLine, 0, len(lines))
	for _, line := range lines {
		tx.repo.nextLineID++
		line.ID = tx.repo.nextLineID
		line.AdjustmentID = adjustmentID
		out = append(out, line)
	}
	adjustment := tx.repo.adjustments[adjustmentID]
	adjustment.Lines = out
	tx.repo.adjustments[adjustmentID] = adjustment
	return out, nil
}

func (tx *memoryTx) GetAdjustmentForUpdate(_ context.Context, id int64) (StockAdjustment, error) {
	adjustment, ok := tx.repo.adjustments[id]
	if !ok {
		return StockAdjustment{}, shared.ErrNotFound
	}
	return adjustment, nil
}

func (tx *memoryTx) SetAdjustmentStatus(_ context.Context, id int64, status AdjustmentStatus, approvedBy *int64, approvedAt *time.Time) error {
	adjustment := tx.repo.adjustments[id]
	adjustment.Status = status
	if approvedBy != nil {
		adjustment.ApprovedBy = approvedBy
	}
	if approvedAt != nil {
		adjustment.ApprovedAt = approvedAt
	}
	tx.repo.adjustments[id] = adjustment
	return nil
}

func seedProduct(repo *memoryRepo, id int64, stock float64, allowNegative bool) {
	repo.products[id] = ProductStock{ID: id, TrackInventory: true, AllowNegativeStock: allowNegative, CurrentStock: stock}
}

func TestMovementDirections(t *testing.T) {
	inbound := []MovementType{MovementPurchase, MovementAdjustmentIn, MovementReturnFromCustomer, MovementTransferIn}
	for _, mt := range inbound {
		dir, err := mt.Direction()
		require.NoError(t, err)
		require.Equal(t, 1.0, dir)
	}
	outbound := []MovementType{MovementSale, MovementAdjustmentOut, MovementReturnToSupplier, MovementTransferOut}
	for _, mt := range outbound {
		dir, err := mt.Direction()
		require.NoError(t, err)
		require.Equal(t, -1.0, dir)
	}
	_, err := MovementType("TELEPORT").Direction()
	require.Error(t, err)
}

func TestUpdateStockRecordsMovement(t *testing.T) {
	repo := newMemoryRepo()
	seedProduct(repo, 1, 10, false)
	svc := NewService(repo, nil)
	ctx := context.Background()

	movement, err := svc.UpdateStock(ctx, MovementInput{ProductID: 1, WarehouseID: 1, Type: MovementPurchase, Quantity: 5})
	require.NoError(t, err)
	require.InDelta(t, 10.0, movement.OldStock, 0.0001)
	require.InDelta(t, 15.0, movement.NewStock, 0.0001)

	movement, err = svc.UpdateStock(ctx, MovementInput{ProductID: 1, WarehouseID: 1, Type: MovementSale, Quantity: 3})
	require.NoError(t, err)
	require.InDelta(t, 15.0, movement.OldStock, 0.0001)
	require.InDelta(t, 12.0, movement.NewStock, 0.0001)

	stock, err := svc.GetWarehouseStock(ctx, 1, 1)
	require.NoError(t, err)
	require.InDelta(t, 12.0, stock.Quantity, 0.0001)
	require.InDelta(t, 12.0, stock.AvailableQuantity, 0.0001)

	movements, err := svc.ListMovements(ctx, MovementFilter{ProductID: 1})
	require.NoError(t, err)
	require.Len(t, movements, 2)
}

func TestUpdateStockNegativeGuard(t *testing.T) {
	repo := newMemoryRepo()
	seedProduct(repo, 1, 2, false)
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.UpdateStock(ctx, MovementInput{ProductID: 1, WarehouseID: 1, Type: MovementSale, Quantity: 5})
	require.True(t, shared.IsInsufficientStock(err))

	product, err := repo.GetProductStock(ctx, 1)
	require.NoError(t, err)
	require.InDelta(t, 2.0, product.CurrentStock, 0.0001)

	seedProduct(repo, 2, 2, true)
	movement, err := svc.UpdateStock(ctx, MovementInput{ProductID: 2, WarehouseID: 1, Type: MovementSale, Quantity: 5})
	require.NoError(t, err)
	require.InDelta(t, -3.0, movement.NewStock, 0.0001)
}

func TestUpdateStockGlobalNegativeOverride(t *testing.T) {
	repo := newMemoryRepo()
	seedProduct(repo, 1, 2, false)
	svc := NewService(repo, nil)
	svc.AllowNegativeStock(true)
	ctx := context.Background()

	movement, err := svc.UpdateStock(ctx, MovementInput{ProductID: 1, WarehouseID: 1, Type: MovementSale, Quantity: 5})
	require.NoError(t, err)
	require.InDelta(t, -3.0, movement.NewStock, 0.0001)

	ok, err := svc.CanSell(ctx, 1, 100)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCanSell(t *testing.T) {
	repo := newMemoryRepo()
	seedProduct(repo, 1, 4, false)
	repo.products[2] = ProductStock{ID: 2, TrackInventory: false}
	repo.products[3] = ProductStock{ID: 3, TrackInventory: true, AllowNegativeStock: true}
	svc := NewService(repo, nil)
	ctx := context.Background()

	ok, err := svc.CanSell(ctx, 1, 4)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.CanSell(ctx, 1, 5)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = svc.CanSell(ctx, 2, 100)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.CanSell(ctx, 3, 100)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestReserveRelease(t *testing.T) {
	repo := newMemoryRepo()
	seedProduct(repo, 1, 10, false)
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.UpdateStock(ctx, MovementInput{ProductID: 1, WarehouseID: 1, Type: MovementPurchase, Quantity: 10})
	require.NoError(t, err)

	stock, err := svc.Reserve(ctx, 1, 1, 7)
	require.NoError(t, err)
	require.InDelta(t, 7.0, stock.ReservedQuantity, 0.0001)
	require.InDelta(t, 3.0, stock.AvailableQuantity, 0.0001)

	_, err = svc.Reserve(ctx, 1, 1, 5)
	require.True(t, shared.IsInsufficientStock(err))

	stock, err = svc.GetWarehouseStock(ctx, 1, 1)
	require.NoError(t, err)
	require.InDelta(t, 3.0, stock.AvailableQuantity, 0.0001)

	stock, err = svc.Release(ctx, 1, 1, 100)
	require.NoError(t, err)
	require.InDelta(t, 0.0, stock.ReservedQuantity, 0.0001)
	require.InDelta(t, 10.0, stock.AvailableQuantity, 0.0001)
}

func TestReserveMissingStockRow(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.Reserve(ctx, 1, 1, 1)
	require.True(t, shared.IsInsufficientStock(err))

	stock, err := svc.Release(ctx, 1, 1, 1)
	require.NoError(t, err)
	require.Zero(t, stock.ReservedQuantity)
}

func TestAdjustmentApprove(t *testing.T) {
	repo := newMemoryRepo()
	seedProduct(repo, 1, 50, false)
	svc := NewService(repo, nil)
	ctx := context.Background()

	adjustment, err := svc.CreateAdjustment(ctx, AdjustmentInput{
		WarehouseID: 1,
		CreatedBy:   3,
		Lines:       []AdjustmentLineInput{{ProductID: 1, NewQuantity: 40}},
	})
	require.NoError(t, err)
	require.Equal(t, AdjustmentStatusDraft, adjustment.Status)
	require.Equal(t, "ADJ-000001", adjustment.Number)
	require.InDelta(t, -10.0, adjustment.Lines[0].AdjustmentQuantity, 0.0001)

	approved, err := svc.ApproveAdjustment(ctx, adjustment.ID, 9)
	require.NoError(t, err)
	require.Equal(t, AdjustmentStatusApproved, approved.Status)

	product, err := repo.GetProductStock(ctx, 1)
	require.NoError(t, err)
	require.InDelta(t, 40.0, product.CurrentStock, 0.0001)

	movements, err := svc.ListMovements(ctx, MovementFilter{ProductID: 1})
	require.NoError(t, err)
	require.Len(t, movements, 1)
	require.Equal(t, MovementAdjustmentOut, movements[0].Type)
	require.InDelta(t, 10.0, movements[0].Quantity, 0.0001)
	require.Equal(t, shared.RefAdjustment, movements[0].Reference.Kind)

	_, err = svc.ApproveAdjustment(ctx, adjustment.ID, 9)
	require.True(t, shared.IsInvalidState(err))
}

func TestAdjustmentCancel(t *testing.T) {
	repo := newMemoryRepo()
	seedProduct(repo, 1, 50, false)
	svc := NewService(repo, nil)
	ctx := context.Background()

	adjustment, err := svc.CreateAdjustment(ctx, AdjustmentInput{
		WarehouseID: 1,
		Lines:       []AdjustmentLineInput{{ProductID: 1, NewQuantity: 55}},
	})
	require.NoError(t, err)

	cancelled, err := svc.CancelAdjustment(ctx, adjustment.ID, 1)
	require.NoError(t, err)
	require.Equal(t, AdjustmentStatusCancelled, cancelled.Status)

	_, err = svc.ApproveAdjustment(ctx, adjustment.ID, 1)
	require.True(t, shared.IsInvalidState(err))

	product, err := repo.GetProductStock(ctx, 1)
	require.NoError(t, err)
	require.InDelta(t, 50.0, product.CurrentStock, 0.0001)
}

func TestUntrackedProductSkipsMovement(t *testing.T) {
	repo := newMemoryRepo()
	repo.products[1] = ProductStock{ID: 1, TrackInventory: false}
	svc := NewService(repo, nil)
	ctx := context.Background()

	movement, err := svc.UpdateStock(ctx, MovementInput{ProductID: 1, WarehouseID: 1, Type: MovementSale, Quantity: 5})
	require.NoError(t, err)
	require.Zero(t, movement.ID)
	require.Empty(t, repo.movements)
}
