package trading

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository persists trading documents in PostgreSQL.
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
	NextDocumentNumber(ctx context.Context, kind DocKind, prefix string, date time.Time) (string, error)
	InsertDocument(ctx context.Context, doc Document) (Document, error)
	InsertLines(ctx context.Context, documentID int64, lines []Line) ([]Line, error)
	GetDocumentForUpdate(ctx context.Context, id int64) (Document, error)
	UpdateDocument(ctx context.Context, doc Document) error
	ReplaceLines(ctx context.Context, documentID int64, lines []Line) ([]Line, error)
	UpdateLineReservation(ctx context.Context, lineID int64, reserved float64) error
	UpdateLineReceipt(ctx context.Context, lineID int64, received float64, status LineStatus) error
	ApplyCounterpartyBalance(ctx context.Context, kind DocKind, counterpartyID int64, delta float64) error
	ListDueForUpdate(ctx context.Context, asOf time.Time) ([]Document, error)
}

type txRepository struct {
	tx  pgx.Tx
	seq *shared.SequenceStore
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("trading repository not initialised")
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

const documentColumns = `id, kind, number, counterparty_id, warehouse_id, document_date, due_date,
currency, exchange_rate, subtotal, discount_percentage, discount_amount, tax_amount, shipping_cost,
total_amount, paid_amount, balance_due, status, payment_status, notes, created_by,
approved_by, approved_at, created_at, updated_at`

func scanDocument(row pgx.Row) (Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.Kind, &d.Number, &d.CounterpartyID, &d.WarehouseID, &d.DocumentDate, &d.DueDate,
		&d.Currency, &d.ExchangeRate, &d.Subtotal, &d.DiscountPercentage, &d.DiscountAmount, &d.TaxAmount, &d.ShippingCost,
		&d.TotalAmount, &d.PaidAmount, &d.BalanceDue, &d.Status, &d.PaymentStatus, &d.Notes, &d.CreatedBy,
		&d.ApprovedBy, &d.ApprovedAt, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

const lineColumns = `id, document_id, product_id, description, quantity, unit_price,
discount_percentage, discount_amount, taxable, tax_rate, subtotal, tax_amount, total_amount,
reserved_quantity, received_quantity, status`

func scanLine(row pgx.Row) (Line, error) {
	var l Line
	err := row.Scan(&l.ID, &l.DocumentID, &l.ProductID, &l.Description, &l.Quantity, &l.UnitPrice,
		&l.DiscountPercentage, &l.DiscountAmount, &l.Taxable, &l.TaxRate, &l.Subtotal, &l.TaxAmount, &l.TotalAmount,
		&l.ReservedQuantity, &l.ReceivedQuantity, &l.Status)
	return l, err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryLines(ctx context.Context, q querier, documentID int64) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT `+lineColumns+` FROM trading_document_lines WHERE document_id=$1 ORDER BY id ASC`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []Line{}
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *Repository) GetDocument(ctx context.Context, id int64) (Document, error) {
	if r == nil {
		return Document{}, errors.New("trading repository not initialised")
	}
	doc, err := scanDocument(r.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM trading_documents WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, shared.ErrNotFound
		}
		return Document{}, err
	}
	doc.Lines, err = queryLines(ctx, r.pool, id)
	return doc, err
}

func (r *Repository) ListDocuments(ctx context.Context, kind DocKind, status DocumentStatus, limit int) ([]Document, error) {
	if r == nil {
		return nil, errors.New("trading repository not initialised")
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT `+documentColumns+` FROM trading_documents
WHERE kind = $1 AND ($2 = '' OR status = $2)
ORDER BY id DESC
LIMIT $3`, string(kind), string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	documents := []Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		documents = append(documents, d)
	}
	return documents, rows.Err()
}

// ListOutstanding returns documents of the kind that still carry a balance,
// excluding drafts and cancelled documents.
func (r *Repository) ListOutstanding(ctx context.Context, kind DocKind) ([]Document, error) {
	if r == nil {
		return nil, errors.New("trading repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT `+documentColumns+` FROM trading_documents
WHERE kind = $1 AND balance_due > 0 AND status NOT IN ('DRAFT', 'CANCELLED')
ORDER BY counterparty_id ASC, due_date ASC`, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	documents := []Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		documents = append(documents, d)
	}
	return documents, rows.Err()
}

func (r *txRepository) NextDocumentNumber(ctx context.Context, kind DocKind, prefix string, date time.Time) (string, error) {
	domain := shared.SeqInvoice
	if kind == KindPurchase {
		domain = shared.SeqPurchase
	}
	return r.seq.NextDocumentNumber(ctx, r.tx, domain, prefix, date)
}

func (r *txRepository) InsertDocument(ctx context.Context, doc Document) (Document, error) {
	return scanDocument(r.tx.QueryRow(ctx, `INSERT INTO trading_documents (kind, number, counterparty_id, warehouse_id, document_date, due_date,
currency, exchange_rate, subtotal, discount_percentage, discount_amount, tax_amount, shipping_cost,
total_amount, paid_amount, balance_due, status, payment_status, notes, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,NOW(),NOW())
RETURNING `+documentColumns,
		string(doc.Kind), doc.Number, doc.CounterpartyID, doc.WarehouseID, doc.DocumentDate, doc.DueDate,
		doc.Currency, toNumeric(doc.ExchangeRate), toNumeric(doc.Subtotal), toNumeric(doc.DiscountPercentage),
		toNumeric(doc.DiscountAmount), toNumeric(doc.TaxAmount), toNumeric(doc.ShippingCost),
		toNumeric(doc.TotalAmount), toNumeric(doc.PaidAmount), toNumeric(doc.BalanceDue),
		string(doc.Status), string(doc.PaymentStatus), doc.Notes, doc.CreatedBy))
}

func (r *txRepository) InsertLines(ctx context.Context, documentID int64, lines []Line) ([]Line, error) {
	out := make([]Line, 0, len(lines))
	for _, line := range lines {
		inserted, err := scanLine(r.tx.QueryRow(ctx, `INSERT INTO trading_document_lines (document_id, product_id, description, quantity, unit_price,
discount_percentage, discount_amount, taxable, tax_rate, subtotal, tax_amount, total_amount,
reserved_quantity, received_quantity, status)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
RETURNING `+lineColumns,
			documentID, line.ProductID, line.Description, toNumeric(line.Quantity), toNumeric(line.UnitPrice),
			toNumeric(line.DiscountPercentage), toNumeric(line.DiscountAmount), line.Taxable, toNumeric(line.TaxRate),
			toNumeric(line.Subtotal), toNumeric(line.TaxAmount), toNumeric(line.TotalAmount),
			toNumeric(line.ReservedQuantity), toNumeric(line.ReceivedQuantity), string(line.Status)))
		if err != nil {
			return nil, err
		}
		out = append(out, inserted)
	}
	return out, nil
}

func (r *txRepository) GetDocumentForUpdate(ctx context.Context, id int64) (Document, error) {
	doc, err := scanDocument(r.tx.QueryRow(ctx, `SELECT `+documentColumns+` FROM trading_documents WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, shared.ErrNotFound
		}
		return Document{}, err
	}
	doc.Lines, err = queryLines(ctx, r.tx, id)
	return doc, err
}

func (r *txRepository) UpdateDocument(ctx context.Context, doc Document) error {
	_, err := r.tx.Exec(ctx, `UPDATE trading_documents SET subtotal=$2, discount_percentage=$3, discount_amount=$4, tax_amount=$5,
shipping_cost=$6, total_amount=$7, paid_amount=$8, balance_due=$9, status=$10, payment_status=$11, notes=$12,
approved_by=$13, approved_at=$14, updated_at=NOW()
WHERE id=$1`,
		doc.ID, toNumeric(doc.Subtotal), toNumeric(doc.DiscountPercentage), toNumeric(doc.DiscountAmount), toNumeric(doc.TaxAmount),
		toNumeric(doc.ShippingCost), toNumeric(doc.TotalAmount), toNumeric(doc.PaidAmount), toNumeric(doc.BalanceDue),
		string(doc.Status), string(doc.PaymentStatus), doc.Notes, doc.ApprovedBy, doc.ApprovedAt)
	return err
}

func (r *txRepository) ReplaceLines(ctx context.Context, documentID int64, lines []Line) ([]Line, error) {
	if _, err := r.tx.Exec(ctx, `DELETE FROM trading_document_lines WHERE document_id=$1`, documentID); err != nil {
		return nil, err
	}
	return r.InsertLines(ctx, documentID, lines)
}

func (r *txRepository) UpdateLineReservation(ctx context.Context, lineID int64, reserved float64) error {
	_, err := r.tx.Exec(ctx, `UPDATE trading_document_lines SET reserved_quantity=$2 WHERE id=$1`, lineID, toNumeric(reserved))
	return err
}

func (r *txRepository) UpdateLineReceipt(ctx context.Context, lineID int64, received float64, status LineStatus) error {
	_, err := r.tx.Exec(ctx, `UPDATE trading_document_lines SET received_quantity=$2, status=$3 WHERE id=$1`,
		lineID, toNumeric(received), string(status))
	return err
}

// ApplyCounterpartyBalance adjusts the customer or supplier running balance.
// Invoices settle against customers, purchases against suppliers.
func (r *txRepository) ApplyCounterpartyBalance(ctx context.Context, kind DocKind, counterpartyID int64, delta float64) error {
	table := "customers"
	if kind == KindPurchase {
		table = "suppliers"
	}
	_, err := r.tx.Exec(ctx, `UPDATE `+table+` SET current_balance = current_balance + $2, updated_at = NOW() WHERE id=$1`,
		counterpartyID, toNumeric(delta))
	return err
}

func (r *txRepository) ListDueForUpdate(ctx context.Context, asOf time.Time) ([]Document, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+documentColumns+` FROM trading_documents
WHERE status IN ('SENT', 'RECEIVED') AND due_date < $1 AND balance_due > 0
ORDER BY id ASC
FOR UPDATE`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	documents := []Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		documents = append(documents, d)
	}
	return documents, rows.Err()
}

func toNumeric(v float64) any {
	return fmt.Sprintf("%.2f", v)
}
