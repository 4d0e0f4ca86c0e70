package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository persists payments and account mappings in PostgreSQL.
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
	NextPaymentNumber(ctx context.Context, receipt bool) (string, error)
	InsertPayment(ctx context.Context, number string, input PaymentInput) (Payment, error)
	GetPaymentForUpdate(ctx context.Context, id int64) (Payment, error)
	SetPosted(ctx context.Context, id, entryID, actorID int64, at time.Time) error
	SetStatus(ctx context.Context, id int64, status Status) error
	UpsertMapping(ctx context.Context, purpose string, accountID int64) error
}

type txRepository struct {
	tx  pgx.Tx
	seq *shared.SequenceStore
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("payments repository not initialised")
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

const paymentColumns = `id, number, type, party_type, party_id, party_name, date, amount, method,
bank_account_id, reference_kind, reference_id, reference_number, notes, status,
journal_entry_id, posted_by, posted_at, created_by, created_at, updated_at`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	var refKind, refNumber *string
	var refID *int64
	err := row.Scan(&p.ID, &p.Number, &p.Type, &p.PartyType, &p.PartyID, &p.PartyName, &p.Date, &p.Amount, &p.Method,
		&p.BankAccountID, &refKind, &refID, &refNumber, &p.Notes, &p.Status,
		&p.JournalEntryID, &p.PostedBy, &p.PostedAt, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Payment{}, err
	}
	if refKind != nil && refID != nil {
		number := ""
		if refNumber != nil {
			number = *refNumber
		}
		p.Reference = shared.NewRef(shared.RefKind(*refKind), *refID, number)
	}
	return p, nil
}

func (r *Repository) GetPayment(ctx context.Context, id int64) (Payment, error) {
	if r == nil {
		return Payment{}, errors.New("payments repository not initialised")
	}
	p, err := scanPayment(r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, shared.ErrNotFound
	}
	return p, err
}

func (r *Repository) ListPayments(ctx context.Context, paymentType PaymentType, status Status, limit int) ([]Payment, error) {
	if r == nil {
		return nil, errors.New("payments repository not initialised")
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT `+paymentColumns+` FROM payments
WHERE ($1 = '' OR type = $1) AND ($2 = '' OR status = $2)
ORDER BY id DESC
LIMIT $3`, string(paymentType), string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	payments := []Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// GetMappedAccount resolves an account mapping purpose to a ledger account id.
func (r *Repository) GetMappedAccount(ctx context.Context, purpose string) (int64, error) {
	if r == nil {
		return 0, errors.New("payments repository not initialised")
	}
	var accountID int64
	err := r.pool.QueryRow(ctx, `SELECT account_id FROM account_mappings WHERE purpose=$1`, purpose).Scan(&accountID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, shared.ErrNotFound
	}
	return accountID, err
}

// ListMappings returns every configured purpose to account binding.
func (r *Repository) ListMappings(ctx context.Context) (map[string]int64, error) {
	if r == nil {
		return nil, errors.New("payments repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT purpose, account_id FROM account_mappings ORDER BY purpose ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	mappings := map[string]int64{}
	for rows.Next() {
		var purpose string
		var accountID int64
		if err := rows.Scan(&purpose, &accountID); err != nil {
			return nil, err
		}
		mappings[purpose] = accountID
	}
	return mappings, rows.Err()
}

func (r *txRepository) NextPaymentNumber(ctx context.Context, receipt bool) (string, error) {
	return r.seq.NextPaymentNumber(ctx, r.tx, receipt)
}

func (r *txRepository) InsertPayment(ctx context.Context, number string, input PaymentInput) (Payment, error) {
	var refKind, refNumber any
	var refID any
	if !input.Reference.IsZero() {
		refKind = string(input.Reference.Kind)
		refID = input.Reference.ID
		refNumber = input.Reference.Number
	}
	return scanPayment(r.tx.QueryRow(ctx, `INSERT INTO payments (number, type, party_type, party_id, party_name, date, amount, method,
bank_account_id, reference_kind, reference_id, reference_number, notes, status, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,NOW(),NOW())
RETURNING `+paymentColumns,
		number, string(input.Type), string(input.PartyType), input.PartyID, input.PartyName, input.Date,
		toNumeric(input.Amount), input.Method, input.BankAccountID, refKind, refID, refNumber,
		input.Notes, string(StatusDraft), input.CreatedBy))
}

func (r *txRepository) GetPaymentForUpdate(ctx context.Context, id int64) (Payment, error) {
	p, err := scanPayment(r.tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, shared.ErrNotFound
	}
	return p, err
}

func (r *txRepository) SetPosted(ctx context.Context, id, entryID, actorID int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE payments SET status=$2, journal_entry_id=$3, posted_by=$4, posted_at=$5, updated_at=NOW() WHERE id=$1`,
		id, string(StatusPosted), entryID, actorID, at)
	return err
}

func (r *txRepository) SetStatus(ctx context.Context, id int64, status Status) error {
	_, err := r.tx.Exec(ctx, `UPDATE payments SET status=$2, updated_at=NOW() WHERE id=$1`, id, string(status))
	return err
}

func (r *txRepository) UpsertMapping(ctx context.Context, purpose string, accountID int64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO account_mappings (purpose, account_id)
VALUES ($1, $2)
ON CONFLICT (purpose) DO UPDATE SET account_id = EXCLUDED.account_id`, purpose, accountID)
	return err
}

func toNumeric(v float64) any {
	return fmt.Sprintf("%.2f", v)
}
