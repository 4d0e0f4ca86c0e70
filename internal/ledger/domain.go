package ledger

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// AccountType enumerates chart-of-accounts classifications.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// NormalBalance is the side on which an account type naturally increases.
type NormalBalance string

const (
	NormalBalanceDebit  NormalBalance = "DEBIT"
	NormalBalanceCredit NormalBalance = "CREDIT"
)

// DefaultNormalBalance returns the conventional side for an account type.
func DefaultNormalBalance(t AccountType) NormalBalance {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return NormalBalanceDebit
	default:
		return NormalBalanceCredit
	}
}

// JournalStatus enumerates journal lifecycle values. Transitions are one way:
// DRAFT to POSTED to REVERSED; a draft may also be deleted.
type JournalStatus string

const (
	JournalStatusDraft    JournalStatus = "DRAFT"
	JournalStatusPosted   JournalStatus = "POSTED"
	JournalStatusReversed JournalStatus = "REVERSED"
)

// BalanceTolerance is the maximum debit/credit drift accepted when posting.
const BalanceTolerance = 0.01

// Account models a chart of accounts node. CurrentBalance is mutated only by
// posted journal lines, exactly once per line.
type Account struct {
	ID              int64         `json:"id"`
	Code            string        `json:"code"`
	Name            string        `json:"name"`
	Type            AccountType   `json:"type"`
	NormalBalance   NormalBalance `json:"normal_balance"`
	ParentID        *int64        `json:"parent_id,omitempty"`
	OpeningBalance  float64       `json:"opening_balance"`
	CurrentBalance  float64       `json:"current_balance"`
	IsSystemAccount bool          `json:"is_system_account"`
	AllowPosting    bool          `json:"allow_posting"`
	IsActive        bool          `json:"is_active"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// PostingDelta converts a debit/credit pair into the signed balance change
// for this account. Debit-normal accounts grow with debits, credit-normal
// accounts grow with credits.
func (a Account) PostingDelta(debit, credit float64) float64 {
	if a.NormalBalance == NormalBalanceDebit {
		return debit - credit
	}
	return credit - debit
}

// JournalEntry captures one balanced financial event and its lines.
type JournalEntry struct {
	ID           int64              `json:"id"`
	Number       string             `json:"number"`
	Date         time.Time          `json:"date"`
	Description  string             `json:"description"`
	Reference    shared.DocumentRef `json:"reference,omitzero"`
	Status       JournalStatus      `json:"status"`
	CreatedBy    int64              `json:"created_by"`
	PostedBy     *int64             `json:"posted_by,omitempty"`
	PostedAt     *time.Time         `json:"posted_at,omitempty"`
	ReversalOfID *int64             `json:"reversal_of_id,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
	Lines        []JournalLine      `json:"lines,omitempty"`
}

// JournalLine stores a debit or credit amount for an account. Amounts are
// non-negative and at most one side is active per line.
type JournalLine struct {
	ID        int64   `json:"id"`
	EntryID   int64   `json:"entry_id"`
	AccountID int64   `json:"account_id"`
	Debit     float64 `json:"debit"`
	Credit    float64 `json:"credit"`
	Memo      string  `json:"memo,omitempty"`
}

// CalculateTotals sums line debits and credits independently. Pure, callable
// any number of times.
func CalculateTotals(lines []JournalLine) (debit, credit float64) {
	for _, line := range lines {
		debit += line.Debit
		credit += line.Credit
	}
	return debit, credit
}

// IsBalanced reports whether the lines balance within tolerance.
func IsBalanced(lines []JournalLine) bool {
	debit, credit := CalculateTotals(lines)
	return math.Abs(debit-credit) < BalanceTolerance
}

// LineInput describes one journal line in an entry request.
type LineInput struct {
	AccountID int64
	Debit     float64
	Credit    float64
	Memo      string
}

// EntryInput groups fields required to create a draft journal entry. Lines
// need not balance while the entry is a draft; balance is enforced at post.
type EntryInput struct {
	Date        time.Time
	Description string
	Reference   shared.DocumentRef
	CreatedBy   int64
	Lines       []LineInput
}

// AccountInput groups fields for creating an account.
type AccountInput struct {
	Code            string
	Name            string
	Type            AccountType
	NormalBalance   NormalBalance
	ParentID        *int64
	OpeningBalance  float64
	IsSystemAccount bool
	AllowPosting    bool
}

// ReverseInput wraps parameters for reversal.
type ReverseInput struct {
	EntryID     int64
	ActorID     int64
	Date        *time.Time
	Description string
}

var (
	// ErrUnbalanced indicates total debits differ from total credits.
	ErrUnbalanced = &shared.ValidationError{Field: "lines", Reason: "total debits must equal total credits"}
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = &shared.ValidationError{Field: "lines", Reason: "journal requires at least two lines"}
	// ErrAccountClosed indicates a posting to an account with posting disabled.
	ErrAccountClosed = &shared.ValidationError{Field: "lines", Reason: "account does not allow direct posting"}
	// ErrSystemAccount indicates a delete attempt on a system account.
	ErrSystemAccount = errors.New("ledger: system account cannot be deleted")
	// ErrAccountInUse indicates a delete attempt on an account with history.
	ErrAccountInUse = errors.New("ledger: account has journal lines")
)

// Validate ensures entry input meets minimum criteria.
func (in EntryInput) Validate() error {
	if in.Date.IsZero() {
		return shared.Validationf("date", "date required")
	}
	if err := validateLines(in.Lines); err != nil {
		return err
	}
	if !in.Reference.IsZero() {
		if err := in.Reference.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func validateLines(lines []LineInput) error {
	if len(lines) < 2 {
		return ErrTooFewLines
	}
	for idx, line := range lines {
		if line.AccountID == 0 {
			return shared.Validationf("lines", "line %d missing account", idx)
		}
		if line.Debit < 0 || line.Credit < 0 {
			return shared.Validationf("lines", "line %d negative amount", idx)
		}
		if line.Debit > 0 && line.Credit > 0 {
			return shared.Validationf("lines", "line %d cannot be both debit and credit", idx)
		}
	}
	return nil
}

// Validate ensures account input meets minimum criteria.
func (in AccountInput) Validate() error {
	if in.Code == "" {
		return shared.Validationf("code", "code required")
	}
	if in.Name == "" {
		return shared.Validationf("name", "name required")
	}
	switch in.Type {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
	default:
		return shared.Validationf("type", "unknown account type %q", in.Type)
	}
	switch in.NormalBalance {
	case "", NormalBalanceDebit, NormalBalanceCredit:
	default:
		return shared.Validationf("normal_balance", "unknown normal balance %q", in.NormalBalance)
	}
	return nil
}

func invalidState(entity string, state, op string) error {
	return &shared.InvalidStateError{Entity: entity, State: state, Op: op}
}

func defaultReversalDescription(description, number string) string {
	if description != "" {
		return description
	}
	return fmt.Sprintf("Reversal of %s", number)
}
