package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Sequence domains. Each owns an independent counter row.
const (
	SeqProduct    = "product"
	SeqCustomer   = "customer"
	SeqSupplier   = "supplier"
	SeqJournal    = "journal"
	SeqReceipt    = "receipt"
	SeqPayment    = "payment"
	SeqAdjustment = "adjustment"
	SeqInvoice    = "invoice"
	SeqPurchase   = "purchase"
)

// Querier is the subset of pgx used by the sequence store, satisfied by both
// pgxpool.Pool and pgx.Tx so numbers can be drawn inside a caller transaction.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SequenceStore issues unique monotonically increasing numbers per domain.
// The counter lives in a single row that is upserted and incremented in one
// statement, so concurrent callers serialise on the row lock instead of
// racing a max-plus-one scan.
type SequenceStore struct{}

// NewSequenceStore constructs the store.
func NewSequenceStore() *SequenceStore {
	return &SequenceStore{}
}

// Next returns the next value for a domain. Yearly domains (invoices,
// purchases) pass the document year so the counter restarts per year; others
// pass zero.
func (s *SequenceStore) Next(ctx context.Context, q Querier, domain string, year int) (int64, error) {
	if s == nil {
		return 0, errors.New("sequence store not initialised")
	}
	if domain == "" {
		return 0, errors.New("sequence domain required")
	}
	var value int64
	err := q.QueryRow(ctx, `INSERT INTO doc_sequences (domain, year, value)
VALUES ($1, $2, 1)
ON CONFLICT (domain, year) DO UPDATE SET value = doc_sequences.value + 1
RETURNING value`, domain, year).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("sequence %s: %w", domain, err)
	}
	return value, nil
}

// NextProductCode formats PRD-0001.
func (s *SequenceStore) NextProductCode(ctx context.Context, q Querier) (string, error) {
	n, err := s.Next(ctx, q, SeqProduct, 0)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("PRD-%04d", n), nil
}

// NextCustomerCode formats CUS-001.
func (s *SequenceStore) NextCustomerCode(ctx context.Context, q Querier) (string, error) {
	n, err := s.Next(ctx, q, SeqCustomer, 0)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CUS-%03d", n), nil
}

// NextSupplierCode formats SUP-001.
func (s *SequenceStore) NextSupplierCode(ctx context.Context, q Querier) (string, error) {
	n, err := s.Next(ctx, q, SeqSupplier, 0)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SUP-%03d", n), nil
}

// NextJournalNumber formats JE-000001.
func (s *SequenceStore) NextJournalNumber(ctx context.Context, q Querier) (string, error) {
	n, err := s.Next(ctx, q, SeqJournal, 0)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("JE-%06d", n), nil
}

// NextPaymentNumber formats RCP-000001 for receipts and PAY-000001 for
// outgoing payments.
func (s *SequenceStore) NextPaymentNumber(ctx context.Context, q Querier, receipt bool) (string, error) {
	domain, prefix := SeqPayment, "PAY"
	if receipt {
		domain, prefix = SeqReceipt, "RCP"
	}
	n, err := s.Next(ctx, q, domain, 0)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%06d", prefix, n), nil
}

// NextAdjustmentNumber formats ADJ-000001.
func (s *SequenceStore) NextAdjustmentNumber(ctx context.Context, q Querier) (string, error) {
	n, err := s.Next(ctx, q, SeqAdjustment, 0)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ADJ-%06d", n), nil
}

// NextDocumentNumber formats {prefix}-{year}-{seq:03d} for trading documents,
// restarting the counter each year.
func (s *SequenceStore) NextDocumentNumber(ctx context.Context, q Querier, domain, prefix string, date time.Time) (string, error) {
	if prefix == "" {
		return "", errors.New("document prefix required")
	}
	year := date.Year()
	n, err := s.Next(ctx, q, domain, year)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%d-%03d", prefix, year, n), nil
}
