package payments

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/internal/trading"
)

type memoryRepo struct {
	payments map[int64]Payment
	mappings map[string]int64
	seq      map[string]int64
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		payments: map[int64]Payment{},
		mappings: map[string]int64{},
		seq:      map[string]int64{},
	}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{m: m})
}

func (m *memoryRepo) GetPayment(_ context.Context, id int64) (Payment, error) {
	payment, ok := m.payments[id]
	if !ok {
		return Payment{}, shared.ErrNotFound
	}
	return payment, nil
}

func (m *memoryRepo) ListPayments(_ context.Context, paymentType PaymentType, status Status, _ int) ([]Payment, error) {
	var out []Payment
	for _, payment := range m.payments {
		if paymentType != "" && payment.Type != paymentType {
			continue
		}
		if status != "" && payment.Status != status {
			continue
		}
		out = append(out, payment)
	}
	return out, nil
}

func (m *memoryRepo) GetMappedAccount(_ context.Context, purpose string) (int64, error) {
	accountID, ok := m.mappings[purpose]
	if !ok {
		return 0, shared.ErrNotFound
	}
	return accountID, nil
}

type memoryTx struct {
	m *memoryRepo
}

func (t *memoryTx) NextPaymentNumber(_ context.Context, receipt bool) (string, error) {
	domain, prefix := "payment", "PAY"
	if receipt {
		domain, prefix = "receipt", "RCP"
	}
	t.m.seq[domain]++
	return fmt.Sprintf("%s-%06d", prefix, t.m.seq[domain]), nil
}

func (t *memoryTx) InsertPayment(_ context.Context, number string, input PaymentInput) (Payment, error) {
	t.m.nextID++
	payment := Payment{
		ID:            t.m.nextID,
		Number:        number,
		Type:          input.Type,
		PartyType:     input.PartyType,
		PartyID:       input.PartyID,
		PartyName:     input.PartyName,
		Date:          input.Date,
		Amount:        input.Amount,
		Method:        input.Method,
		BankAccountID: input.BankAccountID,
		Reference:     input.Reference,
		Notes:         input.Notes,
		Status:        StatusDraft,
		CreatedBy:     input.CreatedBy,
		CreatedAt:     time.Now(),
	}
	t.m.payments[payment.ID] = payment
	return payment, nil
}

func (t *memoryTx) GetPaymentForUpdate(ctx context.Context, id int64) (Payment, error) {
	return t.m.GetPayment(ctx, id)
}

func (t *memoryTx) SetPosted(_ context.Context, id, entryID, actorID int64, at time.Time) error {
	payment, ok := t.m.payments[id]
	if !ok {
		return shared.ErrNotFound
	}
	payment.Status = StatusPosted
	payment.JournalEntryID = &entryID
	payment.PostedBy = &actorID
	payment.PostedAt = &at
	t.m.payments[id] = payment
	return nil
}

func (t *memoryTx) SetStatus(_ context.Context, id int64, status Status) error {
	payment, ok := t.m.payments[id]
	if !ok {
		return shared.ErrNotFound
	}
	payment.Status = status
	t.m.payments[id] = payment
	return nil
}

func (t *memoryTx) UpsertMapping(_ context.Context, purpose string, accountID int64) error {
	t.m.mappings[purpose] = accountID
	return nil
}

type fakeLedger struct {
	entries []ledger.EntryInput
	posted  []int64
	nextID  int64
}

func (f *fakeLedger) CreateEntry(_ context.Context, input ledger.EntryInput) (ledger.JournalEntry, error) {
	f.entries = append(f.entries, input)
	f.nextID++
	return ledger.JournalEntry{ID: f.nextID, Status: ledger.JournalStatusDraft}, nil
}

func (f *fakeLedger) Post(_ context.Context, entryID, _ int64) (ledger.JournalEntry, error) {
	f.posted = append(f.posted, entryID)
	return ledger.JournalEntry{ID: entryID, Status: ledger.JournalStatusPosted}, nil
}

type tradingCall struct {
	documentID int64
	amount     float64
}

type fakeTrading struct {
	calls []tradingCall
}

func (f *fakeTrading) AddPayment(_ context.Context, documentID int64, input trading.PaymentInput) (trading.Document, error) {
	f.calls = append(f.calls, tradingCall{documentID: documentID, amount: input.Amount})
	return trading.Document{ID: documentID, PaidAmount: input.Amount}, nil
}

func newTestService() (*Service, *memoryRepo, *fakeLedger, *fakeTrading) {
	repo := newMemoryRepo()
	ledgerSvc := &fakeLedger{}
	tradingSvc := &fakeTrading{}
	svc := NewService(repo, ledgerSvc, tradingSvc, nil)
	svc.WithNow(func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) })
	return svc, repo, ledgerSvc, tradingSvc
}

func seedMappings(repo *memoryRepo) {
	repo.mappings[MappingCash] = 100
	repo.mappings[MappingReceivable] = 200
	repo.mappings[MappingPayable] = 300
	repo.mappings[MappingSuspense] = 400
}

func TestCreateAssignsNumbers(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	receipt, err := svc.Create(ctx, PaymentInput{Type: TypeReceipt, PartyType: PartyCustomer, PartyID: 1, Amount: 230})
	require.NoError(t, err)
	require.Equal(t, "RCP-000001", receipt.Number)
	require.Equal(t, StatusDraft, receipt.Status)
	require.Equal(t, "cash", receipt.Method)

	payment, err := svc.Create(ctx, PaymentInput{Type: TypePayment, PartyType: PartySupplier, PartyID: 2, Amount: 50, Method: "bank"})
	require.NoError(t, err)
	require.Equal(t, "PAY-000001", payment.Number)
	require.Equal(t, "bank", payment.Method)
}

func TestPostReceiptDebitsCashCreditsReceivable(t *testing.T) {
	svc, repo, ledgerSvc, _ := newTestService()
	seedMappings(repo)
	ctx := context.Background()

	receipt, err := svc.Create(ctx, PaymentInput{Type: TypeReceipt, PartyType: PartyCustomer, PartyID: 1, Amount: 230})
	require.NoError(t, err)

	posted, err := svc.Post(ctx, receipt.ID, 9)
	require.NoError(t, err)
	require.Equal(t, StatusPosted, posted.Status)
	require.NotNil(t, posted.JournalEntryID)
	require.NotNil(t, posted.PostedBy)
	require.Equal(t, int64(9), *posted.PostedBy)

	require.Len(t, ledgerSvc.entries, 1)
	entry := ledgerSvc.entries[0]
	require.Equal(t, shared.RefPayment, entry.Reference.Kind)
	require.Equal(t, receipt.Number, entry.Reference.Number)
	require.Len(t, entry.Lines, 2)
	require.Equal(t, int64(100), entry.Lines[0].AccountID)
	require.InDelta(t, 230.0, entry.Lines[0].Debit, 0.001)
	require.Equal(t, int64(200), entry.Lines[1].AccountID)
	require.InDelta(t, 230.0, entry.Lines[1].Credit, 0.001)
	require.Equal(t, []int64{*posted.JournalEntryID}, ledgerSvc.posted)
}

func TestPostPaymentDebitsPayableCreditsCash(t *testing.T) {
	svc, repo, ledgerSvc, _ := newTestService()
	seedMappings(repo)
	ctx := context.Background()

	payment, err := svc.Create(ctx, PaymentInput{Type: TypePayment, PartyType: PartySupplier, PartyID: 2, Amount: 120})
	require.NoError(t, err)
	_, err = svc.Post(ctx, payment.ID, 9)
	require.NoError(t, err)

	entry := ledgerSvc.entries[0]
	require.Equal(t, int64(300), entry.Lines[0].AccountID)
	require.InDelta(t, 120.0, entry.Lines[0].Debit, 0.001)
	require.Equal(t, int64(100), entry.Lines[1].AccountID)
	require.InDelta(t, 120.0, entry.Lines[1].Credit, 0.001)
}

func TestPostOtherPartyUsesSuspense(t *testing.T) {
	svc, repo, ledgerSvc, _ := newTestService()
	seedMappings(repo)
	ctx := context.Background()

	receipt, err := svc.Create(ctx, PaymentInput{Type: TypeReceipt, PartyType: PartyOther, PartyName: "Walk-in", Amount: 40})
	require.NoError(t, err)
	_, err = svc.Post(ctx, receipt.ID, 9)
	require.NoError(t, err)
	require.Equal(t, int64(400), ledgerSvc.entries[0].Lines[1].AccountID)
}

func TestPostBankAccountOverridesCash(t *testing.T) {
	svc, repo, ledgerSvc, _ := newTestService()
	seedMappings(repo)
	ctx := context.Background()

	bank := int64(150)
	receipt, err := svc.Create(ctx, PaymentInput{Type: TypeReceipt, PartyType: PartyCustomer, PartyID: 1, Amount: 60, Method: "bank", BankAccountID: &bank})
	require.NoError(t, err)
	_, err = svc.Post(ctx, receipt.ID, 9)
	require.NoError(t, err)
	require.Equal(t, bank, ledgerSvc.entries[0].Lines[0].AccountID)
}

func TestPostAppliesToReferencedDocument(t *testing.T) {
	svc, repo, _, tradingSvc := newTestService()
	seedMappings(repo)
	ctx := context.Background()

	receipt, err := svc.Create(ctx, PaymentInput{
		Type:      TypeReceipt,
		PartyType: PartyCustomer,
		PartyID:   1,
		Amount:    230,
		Reference: shared.NewRef(shared.RefInvoice, 7, "INV-2025-007"),
	})
	require.NoError(t, err)
	_, err = svc.Post(ctx, receipt.ID, 9)
	require.NoError(t, err)
	require.Equal(t, []tradingCall{{documentID: 7, amount: 230}}, tradingSvc.calls)
}

func TestPostMissingMappingFails(t *testing.T) {
	svc, repo, ledgerSvc, _ := newTestService()
	ctx := context.Background()

	receipt, err := svc.Create(ctx, PaymentInput{Type: TypeReceipt, PartyType: PartyCustomer, PartyID: 1, Amount: 10})
	require.NoError(t, err)
	_, err = svc.Post(ctx, receipt.ID, 9)
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Empty(t, ledgerSvc.entries)

	current, err := repo.GetPayment(ctx, receipt.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, current.Status)
}

func TestPostDraftOnly(t *testing.T) {
	svc, repo, _, _ := newTestService()
	seedMappings(repo)
	ctx := context.Background()

	receipt, err := svc.Create(ctx, PaymentInput{Type: TypeReceipt, PartyType: PartyCustomer, PartyID: 1, Amount: 10})
	require.NoError(t, err)
	_, err = svc.Post(ctx, receipt.ID, 9)
	require.NoError(t, err)
	_, err = svc.Post(ctx, receipt.ID, 9)
	require.True(t, shared.IsInvalidState(err))
}

func TestCancelDraftOnly(t *testing.T) {
	svc, repo, _, _ := newTestService()
	seedMappings(repo)
	ctx := context.Background()

	receipt, err := svc.Create(ctx, PaymentInput{Type: TypeReceipt, PartyType: PartyCustomer, PartyID: 1, Amount: 10})
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, receipt.ID, 9)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)

	_, err = svc.Cancel(ctx, receipt.ID, 9)
	require.True(t, shared.IsInvalidState(err))
}

func TestSetMappingValidatesPurpose(t *testing.T) {
	svc, repo, _, _ := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.SetMapping(ctx, MappingCash, 100, 9))
	require.Equal(t, int64(100), repo.mappings[MappingCash])

	err := svc.SetMapping(ctx, "petty_cash", 100, 9)
	require.True(t, shared.IsValidation(err))
	err = svc.SetMapping(ctx, MappingCash, 0, 9)
	require.True(t, shared.IsValidation(err))
}
