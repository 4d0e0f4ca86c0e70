package inventory

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
	GetProductStock(ctx context.Context, productID int64) (ProductStock, error)
	GetWarehouseStock(ctx context.Context, warehouseID, productID int64) (WarehouseStock, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
	GetAdjustment(ctx context.Context, id int64) (StockAdjustment, error)
	ListAdjustments(ctx context.Context, status AdjustmentStatus, limit int) ([]StockAdjustment, error)
}

// AuditPort records inventory events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MovementFilter narrows movement history queries.
type MovementFilter struct {
	ProductID   int64
	WarehouseID int64
	Type        MovementType
	From        time.Time
	To          time.Time
	Limit       int
}

// Service tracks stock levels, reservations, and adjustment documents. Every
// mutation runs in one repeatable-read transaction with the stock rows locked
// for update.
type Service struct {
	repo          RepositoryPort
	audit         AuditPort
	allowNegative bool
	now           func() time.Time
}

// NewService constructs the inventory service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// AllowNegativeStock lifts the negative-stock guard globally, regardless of
// the per-product flag.
func (s *Service) AllowNegativeStock(enabled bool) {
	s.allowNegative = enabled
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// UpdateStock applies one movement: mutates product and warehouse stock and
// appends an immutable movement record. Products without inventory tracking
// are left untouched.
func (s *Service) UpdateStock(ctx context.Context, input MovementInput) (Movement, error) {
	if err := input.Validate(); err != nil {
		return Movement{}, err
	}
	var movement Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		movement, err = s.applyMovement(ctx, tx, input, s.now())
		return err
	})
	if err != nil {
		return Movement{}, err
	}
	s.recordAudit(ctx, input.ActorID, "stock.move", "movement", movement.ID, map[string]any{
		"type":     string(input.Type),
		"product":  input.ProductID,
		"quantity": input.Quantity,
	})
	return movement, nil
}

// applyMovement is the single write path for stock changes, shared by direct
// movements and adjustment approval so both run under the same row locks.
func (s *Service) applyMovement(ctx context.Context, tx TxRepository, input MovementInput, at time.Time) (Movement, error) {
	direction, err := input.Type.Direction()
	if err != nil {
		return Movement{}, err
	}
	product, err := tx.GetProductStockForUpdate(ctx, input.ProductID)
	if err != nil {
		return Movement{}, err
	}
	if !product.TrackInventory {
		return Movement{}, nil
	}
	delta := direction * input.Quantity
	oldStock := product.CurrentStock
	newStock := oldStock + delta
	if delta < 0 && newStock < 0 && !product.AllowNegativeStock && !s.allowNegative {
		return Movement{}, &shared.InsufficientStockError{
			ProductID:   input.ProductID,
			WarehouseID: input.WarehouseID,
			Requested:   input.Quantity,
			Available:   oldStock,
		}
	}
	if err := tx.SetProductStock(ctx, input.ProductID, newStock); err != nil {
		return Movement{}, err
	}
	stock, err := tx.GetWarehouseStockForUpdate(ctx, input.WarehouseID, input.ProductID)
	if err != nil && !errors.Is(err, ErrStockNotFound) {
		return Movement{}, err
	}
	stock.Quantity += delta
	stock.Recompute()
	if err := tx.UpsertWarehouseStock(ctx, stock); err != nil {
		return Movement{}, err
	}
	return tx.InsertMovement(ctx, Movement{
		ProductID:   input.ProductID,
		WarehouseID: input.WarehouseID,
		Type:        input.Type,
		Quantity:    input.Quantity,
		OldStock:    oldStock,
		NewStock:    newStock,
		Reference:   input.Reference,
		Note:        input.Note,
		CreatedBy:   input.ActorID,
		CreatedAt:   at,
	})
}

// CanSell reports whether the requested quantity can be sold.
func (s *Service) CanSell(ctx context.Context, productID int64, quantity float64) (bool, error) {
	if quantity <= 0 {
		return false, shared.Validationf("quantity", "quantity must be > 0")
	}
	product, err := s.repo.GetProductStock(ctx, productID)
	if err != nil {
		return false, err
	}
	return s.allowNegative || product.CanSell(quantity), nil
}

// Reserve places a hold on warehouse stock. It succeeds only when the
// available quantity covers the request; on failure nothing changes.
func (s *Service) Reserve(ctx context.Context, warehouseID, productID int64, quantity float64) (WarehouseStock, error) {
	if quantity <= 0 {
		return WarehouseStock{}, shared.Validationf("quantity", "quantity must be > 0")
	}
	var stock WarehouseStock
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		stock, err = reserveStock(ctx, tx, warehouseID, productID, quantity)
		return err
	})
	return stock, err
}

func reserveStock(ctx context.Context, tx TxRepository, warehouseID, productID int64, quantity float64) (WarehouseStock, error) {
	stock, err := tx.GetWarehouseStockForUpdate(ctx, warehouseID, productID)
	if err != nil {
		if errors.Is(err, ErrStockNotFound) {
			return WarehouseStock{}, &shared.InsufficientStockError{
				ProductID:   productID,
				WarehouseID: warehouseID,
				Requested:   quantity,
				Available:   0,
			}
		}
		return WarehouseStock{}, err
	}
	if stock.AvailableQuantity < quantity {
		return WarehouseStock{}, &shared.InsufficientStockError{
			ProductID:   productID,
			WarehouseID: warehouseID,
			Requested:   quantity,
			Available:   stock.AvailableQuantity,
		}
	}
	stock.ReservedQuantity += quantity
	stock.Recompute()
	if err := tx.UpsertWarehouseStock(ctx, stock); err != nil {
		return WarehouseStock{}, err
	}
	return stock, nil
}

// Release drops a hold, clamped at zero. Releasing more than is reserved is
// not an error.
func (s *Service) Release(ctx context.Context, warehouseID, productID int64, quantity float64) (WarehouseStock, error) {
	if quantity <= 0 {
		return WarehouseStock{}, shared.Validationf("quantity", "quantity must be > 0")
	}
	var stock WarehouseStock
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		stock, err = releaseStock(ctx, tx, warehouseID, productID, quantity)
		return err
	})
	return stock, err
}

func releaseStock(ctx context.Context, tx TxRepository, warehouseID, productID int64, quantity float64) (WarehouseStock, error) {
	stock, err := tx.GetWarehouseStockForUpdate(ctx, warehouseID, productID)
	if err != nil {
		if errors.Is(err, ErrStockNotFound) {
			return WarehouseStock{WarehouseID: warehouseID, ProductID: productID}, nil
		}
		return WarehouseStock{}, err
	}
	released := quantity
	if released > stock.ReservedQuantity {
		released = stock.ReservedQuantity
	}
	stock.ReservedQuantity -= released
	stock.Recompute()
	if err := tx.UpsertWarehouseStock(ctx, stock); err != nil {
		return WarehouseStock{}, err
	}
	return stock, nil
}

// GetWarehouseStock reads one stock record.
func (s *Service) GetWarehouseStock(ctx context.Context, warehouseID, productID int64) (WarehouseStock, error) {
	return s.repo.GetWarehouseStock(ctx, warehouseID, productID)
}

// ListMovements retrieves movement history.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	return s.repo.ListMovements(ctx, filter)
}

// CreateAdjustment persists a draft stock correction, capturing the current
// product stock per line at creation time.
func (s *Service) CreateAdjustment(ctx context.Context, input AdjustmentInput) (StockAdjustment, error) {
	if err := input.Validate(); err != nil {
		return StockAdjustment{}, err
	}
	if input.Date.IsZero() {
		input.Date = s.now()
	}
	var adjustment StockAdjustment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		lines := make([]AdjustmentLine, 0, len(input.Lines))
		for _, line := range input.Lines {
			product, err := tx.GetProductStockForUpdate(ctx, line.ProductID)
			if err != nil {
				return err
			}
			lines = append(lines, AdjustmentLine{
				ProductID:          line.ProductID,
				CurrentQuantity:    product.CurrentStock,
				NewQuantity:        line.NewQuantity,
				AdjustmentQuantity: line.NewQuantity - product.CurrentStock,
			})
		}
		number, err := tx.NextAdjustmentNumber(ctx)
		if err != nil {
			return err
		}
		adjustment, err = tx.InsertAdjustment(ctx, number, input)
		if err != nil {
			return err
		}
		adjustment.Lines, err = tx.InsertAdjustmentLines(ctx, adjustment.ID, lines)
		return err
	})
	if err != nil {
		return StockAdjustment{}, err
	}
	s.recordAudit(ctx, input.CreatedBy, "adjustment.create", "stock_adjustment", adjustment.ID, map[string]any{"number": adjustment.Number})
	return adjustment, nil
}

// GetAdjustment fetches one adjustment with lines.
func (s *Service) GetAdjustment(ctx context.Context, id int64) (StockAdjustment, error) {
	return s.repo.GetAdjustment(ctx, id)
}

// ListAdjustments retrieves adjustments, optionally filtered by status.
func (s *Service) ListAdjustments(ctx context.Context, status AdjustmentStatus, limit int) ([]StockAdjustment, error) {
	return s.repo.ListAdjustments(ctx, status, limit)
}

// ApproveAdjustment transitions a draft to APPROVED and emits one movement
// per line, classified by the sign of the adjustment quantity. Lines with a
// zero delta emit nothing.
func (s *Service) ApproveAdjustment(ctx context.Context, id, actorID int64) (StockAdjustment, error) {
	if id == 0 {
		return StockAdjustment{}, errors.New("inventory: adjustment id required")
	}
	var adjustment StockAdjustment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetAdjustmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != AdjustmentStatusDraft {
			return &shared.InvalidStateError{Entity: "stock adjustment", State: string(current.Status), Op: "approve"}
		}
		at := s.now()
		for _, line := range current.Lines {
			delta := line.AdjustmentQuantity
			if delta == 0 {
				continue
			}
			movementType := MovementAdjustmentIn
			quantity := delta
			if delta < 0 {
				movementType = MovementAdjustmentOut
				quantity = -delta
			}
			if _, err := s.applyMovement(ctx, tx, MovementInput{
				ProductID:   line.ProductID,
				WarehouseID: current.WarehouseID,
				Type:        movementType,
				Quantity:    quantity,
				Reference:   shared.NewRef(shared.RefAdjustment, current.ID, current.Number),
				Note:        current.Note,
				ActorID:     actorID,
			}, at); err != nil {
				return err
			}
		}
		if err := tx.SetAdjustmentStatus(ctx, id, AdjustmentStatusApproved, &actorID, &at); err != nil {
			return err
		}
		current.Status = AdjustmentStatusApproved
		current.ApprovedBy = &actorID
		current.ApprovedAt = &at
		adjustment = current
		return nil
	})
	if err != nil {
		return StockAdjustment{}, err
	}
	s.recordAudit(ctx, actorID, "adjustment.approve", "stock_adjustment", adjustment.ID, map[string]any{"number": adjustment.Number})
	return adjustment, nil
}

// CancelAdjustment transitions a draft to CANCELLED.
func (s *Service) CancelAdjustment(ctx context.Context, id, actorID int64) (StockAdjustment, error) {
	if id == 0 {
		return StockAdjustment{}, errors.New("inventory: adjustment id required")
	}
	var adjustment StockAdjustment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetAdjustmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != AdjustmentStatusDraft {
			return &shared.InvalidStateError{Entity: "stock adjustment", State: string(current.Status), Op: "cancel"}
		}
		if err := tx.SetAdjustmentStatus(ctx, id, AdjustmentStatusCancelled, nil, nil); err != nil {
			return err
		}
		current.Status = AdjustmentStatusCancelled
		adjustment = current
		return nil
	})
	if err != nil {
		return StockAdjustment{}, err
	}
	s.recordAudit(ctx, actorID, "adjustment.cancel", "stock_adjustment", adjustment.ID, nil)
	return adjustment, nil
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
