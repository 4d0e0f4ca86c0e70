package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository persists ledger data in PostgreSQL.
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
	NextJournalNumber(ctx context.Context) (string, error)
	InsertAccount(ctx context.Context, input AccountInput) (Account, error)
	GetAccountForUpdate(ctx context.Context, id int64) (Account, error)
	ApplyAccountDelta(ctx context.Context, accountID int64, delta float64) error
	CountAccountLines(ctx context.Context, accountID int64) (int64, error)
	CountAccountChildren(ctx context.Context, accountID int64) (int64, error)
	DeleteAccount(ctx context.Context, id int64) error
	InsertEntry(ctx context.Context, number string, input EntryInput) (JournalEntry, error)
	InsertLines(ctx context.Context, entryID int64, lines []LineInput) ([]JournalLine, error)
	GetEntryForUpdate(ctx context.Context, id int64) (JournalEntry, []JournalLine, error)
	ReplaceLines(ctx context.Context, entryID int64, lines []LineInput) ([]JournalLine, error)
	SetPosted(ctx context.Context, id, actorID int64, at time.Time) error
	SetReversed(ctx context.Context, id, reversalID int64) error
	DeleteEntry(ctx context.Context, id int64) error
}

type txRepository struct {
	tx  pgx.Tx
	seq *shared.SequenceStore
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
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

const accountColumns = `id, code, name, type, normal_balance, parent_id, opening_balance, current_balance,
is_system_account, allow_posting, is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.NormalBalance, &a.ParentID, &a.OpeningBalance, &a.CurrentBalance,
		&a.IsSystemAccount, &a.AllowPosting, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r *Repository) GetAccount(ctx context.Context, id int64) (Account, error) {
	if r == nil {
		return Account{}, errors.New("ledger repository not initialised")
	}
	a, err := scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM ledger_accounts WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, shared.ErrNotFound
	}
	return a, err
}

func (r *Repository) GetAccountByCode(ctx context.Context, code string) (Account, error) {
	if r == nil {
		return Account{}, errors.New("ledger repository not initialised")
	}
	a, err := scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM ledger_accounts WHERE code=$1`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, shared.ErrNotFound
	}
	return a, err
}

func (r *Repository) ListAccounts(ctx context.Context) ([]Account, error) {
	if r == nil {
		return nil, errors.New("ledger repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT `+accountColumns+` FROM ledger_accounts ORDER BY code ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	accounts := []Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

const entryColumns = `id, number, date, description, reference_kind, reference_id, reference_number,
status, created_by, posted_by, posted_at, reversal_of_id, created_at, updated_at`

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var e JournalEntry
	var refKind, refNumber *string
	var refID *int64
	err := row.Scan(&e.ID, &e.Number, &e.Date, &e.Description, &refKind, &refID, &refNumber,
		&e.Status, &e.CreatedBy, &e.PostedBy, &e.PostedAt, &e.ReversalOfID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return JournalEntry{}, err
	}
	if refKind != nil && refID != nil {
		number := ""
		if refNumber != nil {
			number = *refNumber
		}
		e.Reference = shared.NewRef(shared.RefKind(*refKind), *refID, number)
	}
	return e, nil
}

func (r *Repository) GetEntry(ctx context.Context, id int64) (JournalEntry, error) {
	if r == nil {
		return JournalEntry{}, errors.New("ledger repository not initialised")
	}
	entry, err := scanEntry(r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, shared.ErrNotFound
		}
		return JournalEntry{}, err
	}
	entry.Lines, err = queryLines(ctx, r.pool, id)
	return entry, err
}

func (r *Repository) ListEntries(ctx context.Context, status JournalStatus, limit int) ([]JournalEntry, error) {
	if r == nil {
		return nil, errors.New("ledger repository not initialised")
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries
WHERE ($1 = '' OR status = $1)
ORDER BY id DESC
LIMIT $2`, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []JournalEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SumPostedLines totals debit and credit of posted lines for an account up to
// the cutoff date.
func (r *Repository) SumPostedLines(ctx context.Context, accountID int64, cutoff time.Time) (float64, float64, error) {
	if r == nil {
		return 0, 0, errors.New("ledger repository not initialised")
	}
	var debit, credit float64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
FROM journal_lines l
JOIN journal_entries e ON e.id = l.entry_id
WHERE l.account_id = $1 AND e.status IN ('POSTED', 'REVERSED') AND e.date <= $2`, accountID, cutoff).Scan(&debit, &credit)
	return debit, credit, err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryLines(ctx context.Context, q querier, entryID int64) ([]JournalLine, error) {
	rows, err := q.Query(ctx, `SELECT id, entry_id, account_id, debit, credit, memo
FROM journal_lines WHERE entry_id=$1 ORDER BY id ASC`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []JournalLine{}
	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.ID, &line.EntryID, &line.AccountID, &line.Debit, &line.Credit, &line.Memo); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *txRepository) NextJournalNumber(ctx context.Context) (string, error) {
	return r.seq.NextJournalNumber(ctx, r.tx)
}

func (r *txRepository) InsertAccount(ctx context.Context, input AccountInput) (Account, error) {
	return scanAccount(r.tx.QueryRow(ctx, `INSERT INTO ledger_accounts (code, name, type, normal_balance, parent_id, opening_balance, current_balance,
is_system_account, allow_posting, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$6,$7,$8,TRUE,NOW(),NOW())
RETURNING `+accountColumns,
		input.Code, input.Name, string(input.Type), string(input.NormalBalance), input.ParentID,
		toNumeric(input.OpeningBalance), input.IsSystemAccount, input.AllowPosting))
}

func (r *txRepository) GetAccountForUpdate(ctx context.Context, id int64) (Account, error) {
	a, err := scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM ledger_accounts WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, shared.ErrNotFound
	}
	return a, err
}

func (r *txRepository) ApplyAccountDelta(ctx context.Context, accountID int64, delta float64) error {
	_, err := r.tx.Exec(ctx, `UPDATE ledger_accounts SET current_balance = current_balance + $2, updated_at = NOW() WHERE id=$1`,
		accountID, toNumeric(delta))
	return err
}

func (r *txRepository) CountAccountLines(ctx context.Context, accountID int64) (int64, error) {
	var count int64
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM journal_lines WHERE account_id=$1`, accountID).Scan(&count)
	return count, err
}

func (r *txRepository) CountAccountChildren(ctx context.Context, accountID int64) (int64, error) {
	var count int64
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_accounts WHERE parent_id=$1`, accountID).Scan(&count)
	return count, err
}

func (r *txRepository) DeleteAccount(ctx context.Context, id int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM ledger_accounts WHERE id=$1`, id)
	return err
}

func (r *txRepository) InsertEntry(ctx context.Context, number string, input EntryInput) (JournalEntry, error) {
	var refKind, refNumber any
	var refID any
	if !input.Reference.IsZero() {
		refKind = string(input.Reference.Kind)
		refID = input.Reference.ID
		refNumber = input.Reference.Number
	}
	return scanEntry(r.tx.QueryRow(ctx, `INSERT INTO journal_entries (number, date, description, reference_kind, reference_id, reference_number,
status, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW(),NOW())
RETURNING `+entryColumns,
		number, input.Date, input.Description, refKind, refID, refNumber,
		string(JournalStatusDraft), input.CreatedBy))
}

func (r *txRepository) InsertLines(ctx context.Context, entryID int64, lines []LineInput) ([]JournalLine, error) {
	out := make([]JournalLine, 0, len(lines))
	for _, line := range lines {
		var inserted JournalLine
		err := r.tx.QueryRow(ctx, `INSERT INTO journal_lines (entry_id, account_id, debit, credit, memo)
VALUES ($1,$2,$3,$4,$5)
RETURNING id, entry_id, account_id, debit, credit, memo`,
			entryID, line.AccountID, toNumeric(line.Debit), toNumeric(line.Credit), line.Memo).
			Scan(&inserted.ID, &inserted.EntryID, &inserted.AccountID, &inserted.Debit, &inserted.Credit, &inserted.Memo)
		if err != nil {
			return nil, err
		}
		out = append(out, inserted)
	}
	return out, nil
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, id int64) (JournalEntry, []JournalLine, error) {
	entry, err := scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, nil, shared.ErrNotFound
		}
		return JournalEntry{}, nil, err
	}
	lines, err := queryLines(ctx, r.tx, id)
	if err != nil {
		return JournalEntry{}, nil, err
	}
	return entry, lines, nil
}

func (r *txRepository) ReplaceLines(ctx context.Context, entryID int64, lines []LineInput) ([]JournalLine, error) {
	if _, err := r.tx.Exec(ctx, `DELETE FROM journal_lines WHERE entry_id=$1`, entryID); err != nil {
		return nil, err
	}
	return r.InsertLines(ctx, entryID, lines)
}

func (r *txRepository) SetPosted(ctx context.Context, id, actorID int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status=$2, posted_by=$3, posted_at=$4, updated_at=NOW() WHERE id=$1`,
		id, string(JournalStatusPosted), actorID, at)
	return err
}

func (r *txRepository) SetReversed(ctx context.Context, id, reversalID int64) error {
	if _, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status=$2, updated_at=NOW() WHERE id=$1`,
		id, string(JournalStatusReversed)); err != nil {
		return err
	}
	_, err := r.tx.Exec(ctx, `UPDATE journal_entries SET reversal_of_id=$2, updated_at=NOW() WHERE id=$1`, reversalID, id)
	return err
}

func (r *txRepository) DeleteEntry(ctx context.Context, id int64) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM journal_lines WHERE entry_id=$1`, id); err != nil {
		return err
	}
	_, err := r.tx.Exec(ctx, `DELETE FROM journal_entries WHERE id=$1`, id)
	return err
}

func toNumeric(v float64) any {
	return fmt.Sprintf("%.2f", v)
}
