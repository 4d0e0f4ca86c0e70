package payments

import (
	"fmt"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// PaymentType separates incoming receipts from outgoing payments.
type PaymentType string

const (
	TypeReceipt PaymentType = "RECEIPT"
	TypePayment PaymentType = "PAYMENT"
)

// PartyType identifies who the money moves against. It selects the ledger
// account the counterparty side of the posting lands on.
type PartyType string

const (
	PartyCustomer PartyType = "CUSTOMER"
	PartySupplier PartyType = "SUPPLIER"
	PartyOther    PartyType = "OTHER"
)

// Status is the payment lifecycle. Posting is one-way; only drafts cancel.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusPosted    Status = "POSTED"
	StatusCancelled Status = "CANCELLED"
)

// Account mapping purposes. Rows in account_mappings bind each purpose to a
// ledger account id.
const (
	MappingCash       = "cash"
	MappingReceivable = "accounts_receivable"
	MappingPayable    = "accounts_payable"
	MappingSuspense   = "suspense"
)

var paymentMethods = map[string]bool{"cash": true, "bank": true, "check": true, "card": true}

// Payment is a cash movement, optionally tied to a trading document. Posting
// builds exactly one two-line journal entry.
type Payment struct {
	ID             int64              `json:"id"`
	Number         string             `json:"number"`
	Type           PaymentType        `json:"type"`
	PartyType      PartyType          `json:"party_type"`
	PartyID        int64              `json:"party_id,omitempty"`
	PartyName      string             `json:"party_name,omitempty"`
	Date           time.Time          `json:"date"`
	Amount         float64            `json:"amount"`
	Method         string             `json:"method"`
	BankAccountID  *int64             `json:"bank_account_id,omitempty"`
	Reference      shared.DocumentRef `json:"reference,omitzero"`
	Notes          string             `json:"notes,omitempty"`
	Status         Status             `json:"status"`
	JournalEntryID *int64             `json:"journal_entry_id,omitempty"`
	PostedBy       *int64             `json:"posted_by,omitempty"`
	PostedAt       *time.Time         `json:"posted_at,omitempty"`
	CreatedBy      int64              `json:"created_by"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// PartyMapping returns the account mapping purpose for the counterparty side.
func (p Payment) PartyMapping() string {
	switch p.PartyType {
	case PartyCustomer:
		return MappingReceivable
	case PartySupplier:
		return MappingPayable
	}
	return MappingSuspense
}

// Description renders the journal entry description for the posting.
func (p Payment) Description() string {
	verb := "Payment"
	if p.Type == TypeReceipt {
		verb = "Receipt"
	}
	if p.PartyName != "" {
		return fmt.Sprintf("%s %s - %s", verb, p.Number, p.PartyName)
	}
	return fmt.Sprintf("%s %s", verb, p.Number)
}

// PaymentInput groups fields for creating a draft payment.
type PaymentInput struct {
	Type          PaymentType
	PartyType     PartyType
	PartyID       int64
	PartyName     string
	Date          time.Time
	Amount        float64
	Method        string
	BankAccountID *int64
	Reference     shared.DocumentRef
	Notes         string
	CreatedBy     int64
}

// Validate checks minimum payment criteria. References may only point at
// trading documents.
func (in PaymentInput) Validate() error {
	switch in.Type {
	case TypeReceipt, TypePayment:
	default:
		return shared.Validationf("type", "unknown payment type %q", in.Type)
	}
	switch in.PartyType {
	case PartyCustomer, PartySupplier, PartyOther:
	default:
		return shared.Validationf("party_type", "unknown party type %q", in.PartyType)
	}
	if in.PartyType != PartyOther && in.PartyID == 0 {
		return shared.Validationf("party_id", "party required for %s", in.PartyType)
	}
	if in.Amount <= 0 {
		return shared.Validationf("amount", "amount must be > 0")
	}
	if in.Method != "" && !paymentMethods[in.Method] {
		return shared.Validationf("method", "unknown payment method %q", in.Method)
	}
	if !in.Reference.IsZero() {
		if err := in.Reference.Validate(); err != nil {
			return err
		}
		if in.Reference.Kind != shared.RefInvoice && in.Reference.Kind != shared.RefPurchase {
			return shared.Validationf("reference", "payments may only reference invoices or purchases")
		}
	}
	return nil
}
