package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
	seq  *shared.SequenceStore
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, seq *shared.SequenceStore) *Repository {
	return &Repository{pool: pool, seq: seq}
}

// ErrStockNotFound indicates a missing warehouse stock row.
var ErrStockNotFound = errors.New("inventory: warehouse stock not found")

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetProductStockForUpdate(ctx context.Context, productID int64) (ProductStock, error)
	SetProductStock(ctx context.Context, productID int64, quantity float64) error
	GetWarehouseStockForUpdate(ctx context.Context, warehouseID, productID int64) (WarehouseStock, error)
	UpsertWarehouseStock(ctx context.Context, stock WarehouseStock) error
	InsertMovement(ctx context.Context, movement Movement) (Movement, error)
	NextAdjustmentNumber(ctx context.Context) (string, error)
	InsertAdjustment(ctx context.Context, number string, input AdjustmentInput) (StockAdjustment, error)
	InsertAdjustmentLines(ctx context.Context, adjustmentID int64, lines []AdjustmentLine) ([]AdjustmentLine, error)
	GetAdjustmentForUpdate(ctx context.Context, id int64) (StockAdjustment, error)
	SetAdjustmentStatus(ctx context.Context, id int64, status AdjustmentStatus, approvedBy *int64, approvedAt *time.Time) error
}

type txRepository struct {
	tx  pgx.Tx
	seq *shared.SequenceStore
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
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

func (r *Repository) GetProductStock(ctx context.Context, productID int64) (ProductStock, error) {
	if r == nil {
		return ProductStock{}, errors.New("inventory repository not initialised")
	}
	var p ProductStock
	err := r.pool.QueryRow(ctx, `SELECT id, track_inventory, allow_negative_stock, current_stock
FROM products WHERE id=$1`, productID).
		Scan(&p.ID, &p.TrackInventory, &p.AllowNegativeStock, &p.CurrentStock)
	if errors.Is(err, pgx.ErrNoRows) {
		return ProductStock{}, shared.ErrNotFound
	}
	return p, err
}

func (r *Repository) GetWarehouseStock(ctx context.Context, warehouseID, productID int64) (WarehouseStock, error) {
	if r == nil {
		return WarehouseStock{}, errors.New("inventory repository not initialised")
	}
	var ws WarehouseStock
	err := r.pool.QueryRow(ctx, `SELECT warehouse_id, product_id, quantity, reserved_quantity, available_quantity, updated_at
FROM warehouse_stocks WHERE warehouse_id=$1 AND product_id=$2`, warehouseID, productID).
		Scan(&ws.WarehouseID, &ws.ProductID, &ws.Quantity, &ws.ReservedQuantity, &ws.AvailableQuantity, &ws.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return WarehouseStock{}, shared.ErrNotFound
	}
	return ws, err
}

func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if r == nil {
		return nil, errors.New("inventory repository not initialised")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, warehouse_id, type, quantity, old_stock, new_stock,
reference_kind, reference_id, reference_number, note, created_by, created_at
FROM inventory_movements
WHERE ($1 = 0 OR product_id = $1)
  AND ($2 = 0 OR warehouse_id = $2)
  AND ($3 = '' OR type = $3)
  AND created_at BETWEEN COALESCE($4, '-infinity') AND COALESCE($5, 'infinity')
ORDER BY id DESC
LIMIT $6`, filter.ProductID, filter.WarehouseID, string(filter.Type), nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

const adjustmentColumns = `id, number, warehouse_id, date, note, status, created_by, approved_by, approved_at, created_at, updated_at`

func scanAdjustment(row pgx.Row) (StockAdjustment, error) {
	var a StockAdjustment
	err := row.Scan(&a.ID, &a.Number, &a.WarehouseID, &a.Date, &a.Note, &a.Status, &a.CreatedBy, &a.ApprovedBy, &a.ApprovedAt, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r *Repository) GetAdjustment(ctx context.Context, id int64) (StockAdjustment, error) {
	if r == nil {
		return StockAdjustment{}, errors.New("inventory repository not initialised")
	}
	adjustment, err := scanAdjustment(r.pool.QueryRow(ctx, `SELECT `+adjustmentColumns+` FROM stock_adjustments WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockAdjustment{}, shared.ErrNotFound
		}
		return StockAdjustment{}, err
	}
	adjustment.Lines, err = queryAdjustmentLines(ctx, r.pool, id)
	return adjustment, err
}

func (r *Repository) ListAdjustments(ctx context.Context, status AdjustmentStatus, limit int) ([]StockAdjustment, error) {
	if r == nil {
		return nil, errors.New("inventory repository not initialised")
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT `+adjustmentColumns+` FROM stock_adjustments
WHERE ($1 = '' OR status = $1)
ORDER BY id DESC
LIMIT $2`, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	adjustments := []StockAdjustment{}
	for rows.Next() {
		a, err := scanAdjustment(rows)
		if err != nil {
			return nil, err
		}
		adjustments = append(adjustments, a)
	}
	return adjustments, rows.Err()
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryAdjustmentLines(ctx context.Context, q querier, adjustmentID int64) ([]AdjustmentLine, error) {
	rows, err := q.Query(ctx, `SELECT id, adjustment_id, product_id, current_quantity, new_quantity, adjustment_quantity
FROM stock_adjustment_lines WHERE adjustment_id=$1 ORDER BY id ASC`, adjustmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []AdjustmentLine{}
	for rows.Next() {
		var line AdjustmentLine
		if err := rows.Scan(&line.ID, &line.AdjustmentID, &line.ProductID, &line.CurrentQuantity, &line.NewQuantity, &line.AdjustmentQuantity); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func scanMovement(row pgx.Row) (Movement, error) {
	var m Movement
	var refKind, refNumber *string
	var refID *int64
	err := row.Scan(&m.ID, &m.ProductID, &m.WarehouseID, &m.Type, &m.Quantity, &m.OldStock, &m.NewStock,
		&refKind, &refID, &refNumber, &m.Note, &m.CreatedBy, &m.CreatedAt)
	if err != nil {
		return Movement{}, err
	}
	if refKind != nil && refID != nil {
		number := ""
		if refNumber != nil {
			number = *refNumber
		}
		m.Reference = shared.NewRef(shared.RefKind(*refKind), *refID, number)
	}
	return m, nil
}

func (r *txRepository) GetProductStockForUpdate(ctx context.Context, productID int64) (ProductStock, error) {
	var p ProductStock
	err := r.tx.QueryRow(ctx, `SELECT id, track_inventory, allow_negative_stock, current_stock
FROM products WHERE id=$1 FOR UPDATE`, productID).
		Scan(&p.ID, &p.TrackInventory, &p.AllowNegativeStock, &p.CurrentStock)
	if errors.Is(err, pgx.ErrNoRows) {
		return ProductStock{}, shared.ErrNotFound
	}
	return p, err
}

func (r *txRepository) SetProductStock(ctx context.Context, productID int64, quantity float64) error {
	_, err := r.tx.Exec(ctx, `UPDATE products SET current_stock=$2, updated_at=NOW() WHERE id=$1`, productID, quantity)
	return err
}

func (r *txRepository) GetWarehouseStockForUpdate(ctx context.Context, warehouseID, productID int64) (WarehouseStock, error) {
	var ws WarehouseStock
	err := r.tx.QueryRow(ctx, `SELECT warehouse_id, product_id, quantity, reserved_quantity, available_quantity, updated_at
FROM warehouse_stocks WHERE warehouse_id=$1 AND product_id=$2 FOR UPDATE`, warehouseID, productID).
		Scan(&ws.WarehouseID, &ws.ProductID, &ws.Quantity, &ws.ReservedQuantity, &ws.AvailableQuantity, &ws.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return WarehouseStock{WarehouseID: warehouseID, ProductID: productID}, ErrStockNotFound
		}
		return WarehouseStock{}, err
	}
	return ws, nil
}

func (r *txRepository) UpsertWarehouseStock(ctx context.Context, stock WarehouseStock) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO warehouse_stocks (warehouse_id, product_id, quantity, reserved_quantity, available_quantity, updated_at)
VALUES ($1,$2,$3,$4,$5,NOW())
ON CONFLICT (warehouse_id, product_id) DO UPDATE SET quantity=EXCLUDED.quantity, reserved_quantity=EXCLUDED.reserved_quantity, available_quantity=EXCLUDED.available_quantity, updated_at=NOW()`,
		stock.WarehouseID, stock.ProductID, stock.Quantity, stock.ReservedQuantity, stock.AvailableQuantity)
	return err
}

func (r *txRepository) InsertMovement(ctx context.Context, movement Movement) (Movement, error) {
	var refKind, refNumber any
	var refID any
	if !movement.Reference.IsZero() {
		refKind = string(movement.Reference.Kind)
		refID = movement.Reference.ID
		refNumber = movement.Reference.Number
	}
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_movements (product_id, warehouse_id, type, quantity, old_stock, new_stock,
reference_kind, reference_id, reference_number, note, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
RETURNING id`,
		movement.ProductID, movement.WarehouseID, string(movement.Type), movement.Quantity, movement.OldStock, movement.NewStock,
		refKind, refID, refNumber, movement.Note, movement.CreatedBy, movement.CreatedAt).Scan(&movement.ID)
	return movement, err
}

func (r *txRepository) NextAdjustmentNumber(ctx context.Context) (string, error) {
	return r.seq.NextAdjustmentNumber(ctx, r.tx)
}

func (r *txRepository) InsertAdjustment(ctx context.Context, number string, input AdjustmentInput) (StockAdjustment, error) {
	return scanAdjustment(r.tx.QueryRow(ctx, `INSERT INTO stock_adjustments (number, warehouse_id, date, note, status, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW())
RETURNING `+adjustmentColumns,
		number, input.WarehouseID, input.Date, input.Note, string(AdjustmentStatusDraft), input.CreatedBy))
}

func (r *txRepository) InsertAdjustmentLines(ctx context.Context, adjustmentID int64, lines []AdjustmentLine) ([]AdjustmentLine, error) {
	out := make([]AdjustmentLine, 0, len(lines))
	for _, line := range lines {
		inserted := line
		inserted.AdjustmentID = adjustmentID
		err := r.tx.QueryRow(ctx, `INSERT INTO stock_adjustment_lines (adjustment_id, product_id, current_quantity, new_quantity, adjustment_quantity)
VALUES ($1,$2,$3,$4,$5)
RETURNING id`,
			adjustmentID, line.ProductID, line.CurrentQuantity, line.NewQuantity, line.AdjustmentQuantity).Scan(&inserted.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, inserted)
	}
	return out, nil
}

func (r *txRepository) GetAdjustmentForUpdate(ctx context.Context, id int64) (StockAdjustment, error) {
	adjustment, err := scanAdjustment(r.tx.QueryRow(ctx, `SELECT `+adjustmentColumns+` FROM stock_adjustments WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockAdjustment{}, shared.ErrNotFound
		}
		return StockAdjustment{}, err
	}
	adjustment.Lines, err = queryAdjustmentLines(ctx, r.tx, id)
	return adjustment, err
}

func (r *txRepository) SetAdjustmentStatus(ctx context.Context, id int64, status AdjustmentStatus, approvedBy *int64, approvedAt *time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE stock_adjustments SET status=$2, approved_by=COALESCE($3, approved_by), approved_at=COALESCE($4, approved_at), updated_at=NOW() WHERE id=$1`,
		id, string(status), approvedBy, approvedAt)
	return err
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
