package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/internal/trading"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPayment(ctx context.Context, id int64) (Payment, error)
	ListPayments(ctx context.Context, paymentType PaymentType, status Status, limit int) ([]Payment, error)
	GetMappedAccount(ctx context.Context, purpose string) (int64, error)
}

// LedgerPort is the journal collaborator. Satisfied by ledger.Service.
type LedgerPort interface {
	CreateEntry(ctx context.Context, input ledger.EntryInput) (ledger.JournalEntry, error)
	Post(ctx context.Context, entryID, actorID int64) (ledger.JournalEntry, error)
}

// TradingPort applies a posted payment to its referenced document.
// Satisfied by trading.Service.
type TradingPort interface {
	AddPayment(ctx context.Context, documentID int64, input trading.PaymentInput) (trading.Document, error)
}

// AuditPort records payment events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service turns cash movements into balanced two-line journal postings and,
// when a payment references a trading document, settles the document.
type Service struct {
	repo    RepositoryPort
	ledger  LedgerPort
	trading TradingPort
	audit   AuditPort
	now     func() time.Time
}

// NewService constructs the payments service.
func NewService(repo RepositoryPort, ledgerSvc LedgerPort, tradingSvc TradingPort, audit AuditPort) *Service {
	return &Service{repo: repo, ledger: ledgerSvc, trading: tradingSvc, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create persists a draft payment with a sequence-issued number.
func (s *Service) Create(ctx context.Context, input PaymentInput) (Payment, error) {
	if err := input.Validate(); err != nil {
		return Payment{}, err
	}
	if input.Date.IsZero() {
		input.Date = s.now()
	}
	if input.Method == "" {
		input.Method = "cash"
	}
	var payment Payment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextPaymentNumber(ctx, input.Type == TypeReceipt)
		if err != nil {
			return err
		}
		payment, err = tx.InsertPayment(ctx, number, input)
		return err
	})
	if err != nil {
		return Payment{}, err
	}
	s.recordAudit(ctx, input.CreatedBy, "payment.create", payment, nil)
	return payment, nil
}

// Get fetches one payment.
func (s *Service) Get(ctx context.Context, id int64) (Payment, error) {
	return s.repo.GetPayment(ctx, id)
}

// List retrieves payments, optionally filtered by type and status.
func (s *Service) List(ctx context.Context, paymentType PaymentType, status Status, limit int) ([]Payment, error) {
	return s.repo.ListPayments(ctx, paymentType, status, limit)
}

// Post transitions a draft to POSTED. It builds a two-line journal entry
// (receipt: debit cash, credit party account; payment: the inverse), posts it
// through the ledger, applies the amount to any referenced trading document,
// and stamps the payment with the entry id.
func (s *Service) Post(ctx context.Context, id, actorID int64) (Payment, error) {
	payment, err := s.repo.GetPayment(ctx, id)
	if err != nil {
		return Payment{}, err
	}
	if payment.Status != StatusDraft {
		return Payment{}, &shared.InvalidStateError{Entity: "payment", State: string(payment.Status), Op: "post"}
	}

	cashAccountID, err := s.cashAccount(ctx, payment)
	if err != nil {
		return Payment{}, err
	}
	partyAccountID, err := s.repo.GetMappedAccount(ctx, payment.PartyMapping())
	if err != nil {
		return Payment{}, fmt.Errorf("payments: account mapping %s: %w", payment.PartyMapping(), err)
	}

	debitAccount, creditAccount := cashAccountID, partyAccountID
	if payment.Type == TypePayment {
		debitAccount, creditAccount = partyAccountID, cashAccountID
	}
	entry, err := s.ledger.CreateEntry(ctx, ledger.EntryInput{
		Date:        payment.Date,
		Description: payment.Description(),
		Reference:   shared.NewRef(shared.RefPayment, payment.ID, payment.Number),
		CreatedBy:   actorID,
		Lines: []ledger.LineInput{
			{AccountID: debitAccount, Debit: payment.Amount, Memo: payment.Number},
			{AccountID: creditAccount, Credit: payment.Amount, Memo: payment.Number},
		},
	})
	if err != nil {
		return Payment{}, err
	}
	if _, err := s.ledger.Post(ctx, entry.ID, actorID); err != nil {
		return Payment{}, err
	}

	if !payment.Reference.IsZero() && s.trading != nil {
		if _, err := s.trading.AddPayment(ctx, payment.Reference.ID, trading.PaymentInput{
			Amount:  payment.Amount,
			Date:    payment.Date,
			Method:  payment.Method,
			Notes:   payment.Notes,
			ActorID: actorID,
		}); err != nil {
			return Payment{}, err
		}
	}

	at := s.now()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetPaymentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != StatusDraft {
			return &shared.InvalidStateError{Entity: "payment", State: string(current.Status), Op: "post"}
		}
		if err := tx.SetPosted(ctx, id, entry.ID, actorID, at); err != nil {
			return err
		}
		current.Status = StatusPosted
		current.JournalEntryID = &entry.ID
		current.PostedBy = &actorID
		current.PostedAt = &at
		payment = current
		return nil
	})
	if err != nil {
		return Payment{}, err
	}
	s.recordAudit(ctx, actorID, "payment.post", payment, map[string]any{"journal_entry_id": entry.ID})
	return payment, nil
}

// Cancel discards a draft payment.
func (s *Service) Cancel(ctx context.Context, id, actorID int64) (Payment, error) {
	var payment Payment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetPaymentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != StatusDraft {
			return &shared.InvalidStateError{Entity: "payment", State: string(current.Status), Op: "cancel"}
		}
		if err := tx.SetStatus(ctx, id, StatusCancelled); err != nil {
			return err
		}
		current.Status = StatusCancelled
		payment = current
		return nil
	})
	if err != nil {
		return Payment{}, err
	}
	s.recordAudit(ctx, actorID, "payment.cancel", payment, nil)
	return payment, nil
}

// SetMapping binds an account mapping purpose to a ledger account.
func (s *Service) SetMapping(ctx context.Context, purpose string, accountID int64, actorID int64) error {
	switch purpose {
	case MappingCash, MappingReceivable, MappingPayable, MappingSuspense:
	default:
		return shared.Validationf("purpose", "unknown mapping purpose %q", purpose)
	}
	if accountID == 0 {
		return shared.Validationf("account_id", "account required")
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpsertMapping(ctx, purpose, accountID)
	})
	if err != nil {
		return err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "payment.set_mapping",
			Entity:   "account_mapping",
			EntityID: purpose,
			Meta:     map[string]any{"account_id": accountID},
			At:       s.now(),
		})
	}
	return nil
}

// cashAccount resolves the debit/credit cash side: an explicit bank account
// wins over the cash mapping.
func (s *Service) cashAccount(ctx context.Context, payment Payment) (int64, error) {
	if payment.BankAccountID != nil && *payment.BankAccountID != 0 {
		return *payment.BankAccountID, nil
	}
	accountID, err := s.repo.GetMappedAccount(ctx, MappingCash)
	if err != nil {
		return 0, fmt.Errorf("payments: account mapping %s: %w", MappingCash, err)
	}
	return accountID, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, payment Payment, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["number"] = payment.Number
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "payment",
		EntityID: fmt.Sprintf("%d", payment.ID),
		Meta:     meta,
		At:       s.now(),
	})
}
