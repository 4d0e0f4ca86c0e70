package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetAccount(ctx context.Context, id int64) (Account, error)
	GetAccountByCode(ctx context.Context, code string) (Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	GetEntry(ctx context.Context, id int64) (JournalEntry, error)
	ListEntries(ctx context.Context, status JournalStatus, limit int) ([]JournalEntry, error)
	SumPostedLines(ctx context.Context, accountID int64, cutoff time.Time) (debit, credit float64, err error)
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates the chart of accounts and the journal lifecycle.
// Posting applies every line's signed delta to its account balance inside one
// transaction, all lines or none.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateAccount adds a chart-of-accounts node. The normal balance defaults by
// type when unset, and the opening balance seeds the current balance.
func (s *Service) CreateAccount(ctx context.Context, input AccountInput, actorID int64) (Account, error) {
	if err := input.Validate(); err != nil {
		return Account{}, err
	}
	if input.NormalBalance == "" {
		input.NormalBalance = DefaultNormalBalance(input.Type)
	}
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if input.ParentID != nil {
			if _, err := tx.GetAccountForUpdate(ctx, *input.ParentID); err != nil {
				if errors.Is(err, shared.ErrNotFound) {
					return shared.Validationf("parent_id", "parent account %d not found", *input.ParentID)
				}
				return err
			}
		}
		var err error
		account, err = tx.InsertAccount(ctx, input)
		return err
	})
	if err != nil {
		return Account{}, err
	}
	s.recordAudit(ctx, actorID, "account.create", "account", account.ID, map[string]any{"code": account.Code})
	return account, nil
}

// GetAccount fetches one account.
func (s *Service) GetAccount(ctx context.Context, id int64) (Account, error) {
	return s.repo.GetAccount(ctx, id)
}

// GetAccountByCode fetches one account by its code.
func (s *Service) GetAccountByCode(ctx context.Context, code string) (Account, error) {
	return s.repo.GetAccountByCode(ctx, code)
}

// ListAccounts retrieves all chart of accounts entries.
func (s *Service) ListAccounts(ctx context.Context) ([]Account, error) {
	return s.repo.ListAccounts(ctx)
}

// DeleteAccount removes an account that is neither system-flagged nor
// referenced by journal lines.
func (s *Service) DeleteAccount(ctx context.Context, id int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		account, err := tx.GetAccountForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if account.IsSystemAccount {
			return ErrSystemAccount
		}
		lines, err := tx.CountAccountLines(ctx, id)
		if err != nil {
			return err
		}
		if lines > 0 {
			return ErrAccountInUse
		}
		children, err := tx.CountAccountChildren(ctx, id)
		if err != nil {
			return err
		}
		if children > 0 {
			return ErrAccountInUse
		}
		return tx.DeleteAccount(ctx, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "account.delete", "account", id, nil)
	return nil
}

// BalanceAsOf returns the opening balance plus the signed sum of all posted
// lines dated on or before the cutoff. A zero cutoff means "now".
func (s *Service) BalanceAsOf(ctx context.Context, accountID int64, cutoff time.Time) (float64, error) {
	account, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	if cutoff.IsZero() {
		cutoff = s.now()
	}
	debit, credit, err := s.repo.SumPostedLines(ctx, accountID, cutoff)
	if err != nil {
		return 0, err
	}
	return account.OpeningBalance + account.PostingDelta(debit, credit), nil
}

// FullCode returns the dot-joined code path from the root account down, e.g.
// "1000.1100.1110".
func (s *Service) FullCode(ctx context.Context, id int64) (string, error) {
	return s.accountPath(ctx, id, ".", func(a Account) string { return a.Code })
}

// FullName returns the chevron-joined name path from the root account down,
// e.g. "Assets > Current Assets > Cash".
func (s *Service) FullName(ctx context.Context, id int64) (string, error) {
	return s.accountPath(ctx, id, " > ", func(a Account) string { return a.Name })
}

// maxAccountDepth bounds the parent-chain walk. The chain is acyclic by
// construction; hitting the cap means stored data is corrupt.
const maxAccountDepth = 16

func (s *Service) accountPath(ctx context.Context, id int64, sep string, part func(Account) string) (string, error) {
	parts := []string{}
	next := &id
	for depth := 0; next != nil; depth++ {
		if depth >= maxAccountDepth {
			return "", fmt.Errorf("ledger: account %d parent chain too deep: %w", id, shared.ErrConsistency)
		}
		account, err := s.repo.GetAccount(ctx, *next)
		if err != nil {
			return "", err
		}
		parts = append([]string{part(account)}, parts...)
		next = account.ParentID
	}
	return strings.Join(parts, sep), nil
}

// CreateEntry persists a new draft journal entry with a JE number drawn
// inside the same transaction.
func (s *Service) CreateEntry(ctx context.Context, input EntryInput) (JournalEntry, error) {
	if err := input.Validate(); err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, line := range input.Lines {
			account, err := tx.GetAccountForUpdate(ctx, line.AccountID)
			if err != nil {
				if errors.Is(err, shared.ErrNotFound) {
					return shared.Validationf("lines", "account %d not found", line.AccountID)
				}
				return err
			}
			if !account.AllowPosting {
				return ErrAccountClosed
			}
		}
		number, err := tx.NextJournalNumber(ctx)
		if err != nil {
			return err
		}
		entry, err = tx.InsertEntry(ctx, number, input)
		if err != nil {
			return err
		}
		entry.Lines, err = tx.InsertLines(ctx, entry.ID, input.Lines)
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.recordAudit(ctx, input.CreatedBy, "journal.create", "journal_entry", entry.ID, map[string]any{"number": entry.Number})
	return entry, nil
}

// GetEntry fetches one journal entry with its lines.
func (s *Service) GetEntry(ctx context.Context, id int64) (JournalEntry, error) {
	return s.repo.GetEntry(ctx, id)
}

// ListEntries retrieves journal entries, optionally filtered by status.
func (s *Service) ListEntries(ctx context.Context, status JournalStatus, limit int) ([]JournalEntry, error) {
	return s.repo.ListEntries(ctx, status, limit)
}

// UpdateDraftLines replaces the lines of a draft entry. Balance is still only
// enforced at post.
func (s *Service) UpdateDraftLines(ctx context.Context, id int64, lines []LineInput, actorID int64) (JournalEntry, error) {
	if err := validateLines(lines); err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, _, err := tx.GetEntryForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != JournalStatusDraft {
			return invalidState("journal entry", string(current.Status), "update lines")
		}
		for _, line := range lines {
			account, err := tx.GetAccountForUpdate(ctx, line.AccountID)
			if err != nil {
				if errors.Is(err, shared.ErrNotFound) {
					return shared.Validationf("lines", "account %d not found", line.AccountID)
				}
				return err
			}
			if !account.AllowPosting {
				return ErrAccountClosed
			}
		}
		current.Lines, err = tx.ReplaceLines(ctx, id, lines)
		entry = current
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.recordAudit(ctx, actorID, "journal.update_lines", "journal_entry", id, map[string]any{"lines": len(lines)})
	return entry, nil
}

// DeleteDraft discards a draft entry. Posted entries can only be reversed.
func (s *Service) DeleteDraft(ctx context.Context, id int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, _, err := tx.GetEntryForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if entry.Status != JournalStatusDraft {
			return invalidState("journal entry", string(entry.Status), "delete")
		}
		return tx.DeleteEntry(ctx, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "journal.delete", "journal_entry", id, nil)
	return nil
}

// Post transitions a draft entry to POSTED and applies every line to its
// account balance, in line order, within one transaction.
func (s *Service) Post(ctx context.Context, entryID, actorID int64) (JournalEntry, error) {
	if entryID == 0 {
		return JournalEntry{}, errors.New("ledger: entry id required")
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, lines, err := tx.GetEntryForUpdate(ctx, entryID)
		if err != nil {
			return err
		}
		if current.Status != JournalStatusDraft {
			return invalidState("journal entry", string(current.Status), "post")
		}
		if !IsBalanced(lines) {
			return ErrUnbalanced
		}
		postedAt := s.now()
		if err := tx.SetPosted(ctx, current.ID, actorID, postedAt); err != nil {
			return err
		}
		if err := applyLines(ctx, tx, lines); err != nil {
			return err
		}
		current.Status = JournalStatusPosted
		current.PostedBy = &actorID
		current.PostedAt = &postedAt
		current.Lines = lines
		entry = current
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.recordAudit(ctx, actorID, "journal.post", "journal_entry", entry.ID, map[string]any{"number": entry.Number})
	return entry, nil
}

// Reverse creates a new entry with every line's debit/credit swapped, posts
// it, and flips the original to REVERSED. The reversal is posted in the same
// transaction so account balances return to their pre-posting values without
// an intermediate draft state.
func (s *Service) Reverse(ctx context.Context, input ReverseInput) (JournalEntry, error) {
	if input.EntryID == 0 {
		return JournalEntry{}, errors.New("ledger: entry id required")
	}
	var reversal JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, lines, err := tx.GetEntryForUpdate(ctx, input.EntryID)
		if err != nil {
			return err
		}
		if original.Status != JournalStatusPosted {
			return invalidState("journal entry", string(original.Status), "reverse")
		}
		number, err := tx.NextJournalNumber(ctx)
		if err != nil {
			return err
		}
		date := original.Date
		if input.Date != nil {
			date = *input.Date
		}
		posting := EntryInput{
			Date:        date,
			Description: defaultReversalDescription(input.Description, original.Number),
			Reference:   shared.NewRef(shared.RefReversal, original.ID, original.Number),
			CreatedBy:   input.ActorID,
			Lines:       swapLines(lines),
		}
		inserted, err := tx.InsertEntry(ctx, number, posting)
		if err != nil {
			return err
		}
		insertedLines, err := tx.InsertLines(ctx, inserted.ID, posting.Lines)
		if err != nil {
			return err
		}
		postedAt := s.now()
		if err := tx.SetPosted(ctx, inserted.ID, input.ActorID, postedAt); err != nil {
			return err
		}
		if err := applyLines(ctx, tx, insertedLines); err != nil {
			return err
		}
		if err := tx.SetReversed(ctx, original.ID, inserted.ID); err != nil {
			return err
		}
		inserted.Status = JournalStatusPosted
		inserted.PostedBy = &input.ActorID
		inserted.PostedAt = &postedAt
		inserted.ReversalOfID = &original.ID
		inserted.Lines = insertedLines
		reversal = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.recordAudit(ctx, input.ActorID, "journal.reverse", "journal_entry", input.EntryID, map[string]any{
		"reversal_id":     reversal.ID,
		"reversal_number": reversal.Number,
	})
	return reversal, nil
}

// applyLines mutates every referenced account balance by the line's signed
// delta, exactly once per line, in line order.
func applyLines(ctx context.Context, tx TxRepository, lines []JournalLine) error {
	for _, line := range lines {
		account, err := tx.GetAccountForUpdate(ctx, line.AccountID)
		if err != nil {
			return err
		}
		delta := account.PostingDelta(line.Debit, line.Credit)
		if err := tx.ApplyAccountDelta(ctx, line.AccountID, delta); err != nil {
			return err
		}
	}
	return nil
}

func swapLines(lines []JournalLine) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, LineInput{
			AccountID: line.AccountID,
			Debit:     line.Credit,
			Credit:    line.Debit,
			Memo:      line.Memo,
		})
	}
	return out
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
