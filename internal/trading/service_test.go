package trading

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryRepo struct {
	documents  map[int64]Document
	lines      map[int64]Line
	balances   map[string]float64
	seq        map[string]int64
	nextDocID  int64
	nextLineID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		documents: map[int64]Document{},
		lines:     map[int64]Line{},
		balances:  map[string]float64{},
		seq:       map[string]int64{},
	}
}

func (m *memoryRepo) docWithLines(id int64) (Document, error) {
	doc, ok := m.documents[id]
	if !ok {
		return Document{}, shared.ErrNotFound
	}
	var lines []Line
	for _, line := range m.lines {
		if line.DocumentID == id {
			lines = append(lines, line)
		}
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ID < lines[j].ID })
	doc.Lines = lines
	return doc, nil
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{m: m})
}

func (m *memoryRepo) GetDocument(_ context.Context, id int64) (Document, error) {
	return m.docWithLines(id)
}

func (m *memoryRepo) ListDocuments(_ context.Context, kind DocKind, status DocumentStatus, _ int) ([]Document, error) {
	var out []Document
	for id, doc := range m.documents {
		if doc.Kind != kind {
			continue
		}
		if status != "" && doc.Status != status {
			continue
		}
		full, _ := m.docWithLines(id)
		out = append(out, full)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryRepo) ListOutstanding(_ context.Context, kind DocKind) ([]Document, error) {
	var out []Document
	for id, doc := range m.documents {
		if doc.Kind != kind || doc.BalanceDue <= 0 {
			continue
		}
		if doc.Status == StatusDraft || doc.Status == StatusCancelled {
			continue
		}
		full, _ := m.docWithLines(id)
		out = append(out, full)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memoryTx struct {
	m *memoryRepo
}

func (t *memoryTx) NextDocumentNumber(_ context.Context, kind DocKind, prefix string, date time.Time) (string, error) {
	key := fmt.Sprintf("%s-%d", kind, date.Year())
	t.m.seq[key]++
	return fmt.Sprintf("%s-%d-%03d", prefix, date.Year(), t.m.seq[key]), nil
}

func (t *memoryTx) InsertDocument(_ context.Context, doc Document) (Document, error) {
	t.m.nextDocID++
	doc.ID = t.m.nextDocID
	doc.CreatedAt = time.Now()
	doc.UpdatedAt = doc.CreatedAt
	stored := doc
	stored.Lines = nil
	t.m.documents[doc.ID] = stored
	doc.Lines = nil
	return doc, nil
}

func (t *memoryTx) InsertLines(_ context.Context, documentID int64, lines []Line) ([]Line, error) {
	out := make([]Line, 0, len(lines))
	for _, line := range lines {
		t.m.nextLineID++
		line.ID = t.m.nextLineID
		line.DocumentID = documentID
		t.m.lines[line.ID] = line
		out = append(out, line)
	}
	return out, nil
}

func (t *memoryTx) GetDocumentForUpdate(_ context.Context, id int64) (Document, error) {
	return t.m.docWithLines(id)
}

func (t *memoryTx) UpdateDocument(_ context.Context, doc Document) error {
	if _, ok := t.m.documents[doc.ID]; !ok {
		return shared.ErrNotFound
	}
	doc.Lines = nil
	doc.UpdatedAt = time.Now()
	t.m.documents[doc.ID] = doc
	return nil
}

func (t *memoryTx) ReplaceLines(ctx context.Context, documentID int64, lines []Line) ([]Line, error) {
	for id, line := range t.m.lines {
		if line.DocumentID == documentID {
			delete(t.m.lines, id)
		}
	}
	return t.InsertLines(ctx, documentID, lines)
}

func (t *memoryTx) UpdateLineReservation(_ context.Context, lineID int64, reserved float64) error {
	line, ok := t.m.lines[lineID]
	if !ok {
		return shared.ErrNotFound
	}
	line.ReservedQuantity = reserved
	t.m.lines[lineID] = line
	return nil
}

func (t *memoryTx) UpdateLineReceipt(_ context.Context, lineID int64, received float64, status LineStatus) error {
	line, ok := t.m.lines[lineID]
	if !ok {
		return shared.ErrNotFound
	}
	line.ReceivedQuantity = received
	line.Status = status
	t.m.lines[lineID] = line
	return nil
}

func (t *memoryTx) ApplyCounterpartyBalance(_ context.Context, kind DocKind, counterpartyID int64, delta float64) error {
	t.m.balances[fmt.Sprintf("%s:%d", kind, counterpartyID)] += delta
	return nil
}

func (t *memoryTx) ListDueForUpdate(_ context.Context, asOf time.Time) ([]Document, error) {
	var out []Document
	for id, doc := range t.m.documents {
		if doc.Status != StatusSent && doc.Status != StatusReceived {
			continue
		}
		if doc.DueDate.IsZero() || !doc.DueDate.Before(asOf) || doc.BalanceDue <= 0 {
			continue
		}
		full, _ := t.m.docWithLines(id)
		out = append(out, full)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type stockCall struct {
	warehouseID int64
	productID   int64
	quantity    float64
}

type fakeStock struct {
	reserves           []stockCall
	releases           []stockCall
	movements          []inventory.MovementInput
	failReserveProduct int64
}

func (f *fakeStock) CanSell(_ context.Context, _ int64, _ float64) (bool, error) {
	return true, nil
}

func (f *fakeStock) Reserve(_ context.Context, warehouseID, productID int64, quantity float64) (inventory.WarehouseStock, error) {
	if productID == f.failReserveProduct {
		return inventory.WarehouseStock{}, &shared.InsufficientStockError{
			ProductID: productID, WarehouseID: warehouseID, Requested: quantity,
		}
	}
	f.reserves = append(f.reserves, stockCall{warehouseID, productID, quantity})
	return inventory.WarehouseStock{WarehouseID: warehouseID, ProductID: productID, ReservedQuantity: quantity}, nil
}

func (f *fakeStock) Release(_ context.Context, warehouseID, productID int64, quantity float64) (inventory.WarehouseStock, error) {
	f.releases = append(f.releases, stockCall{warehouseID, productID, quantity})
	return inventory.WarehouseStock{WarehouseID: warehouseID, ProductID: productID}, nil
}

func (f *fakeStock) UpdateStock(_ context.Context, input inventory.MovementInput) (inventory.Movement, error) {
	f.movements = append(f.movements, input)
	return inventory.Movement{ProductID: input.ProductID, WarehouseID: input.WarehouseID, Quantity: input.Quantity}, nil
}

func newTestService() (*Service, *memoryRepo, *fakeStock) {
	repo := newMemoryRepo()
	stock := &fakeStock{}
	svc := NewService(repo, stock, nil, Config{})
	svc.WithNow(func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) })
	return svc, repo, stock
}

func taxedInput() DocumentInput {
	return DocumentInput{
		CounterpartyID: 1,
		DocumentDate:   time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		DueDate:        time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC),
		CreatedBy:      9,
		Lines:          []LineInput{{ProductID: 1, Quantity: 2, UnitPrice: 100, Taxable: true, TaxRate: 15}},
	}
}

func TestCreateInvoiceComputesTotals(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	doc, err := svc.CreateInvoice(ctx, taxedInput())
	require.NoError(t, err)
	require.Equal(t, "INV-2025-001", doc.Number)
	require.Equal(t, KindInvoice, doc.Kind)
	require.Equal(t, StatusDraft, doc.Status)
	require.Equal(t, PaymentUnpaid, doc.PaymentStatus)
	require.InDelta(t, 200.0, doc.Subtotal, 0.001)
	require.InDelta(t, 30.0, doc.TaxAmount, 0.001)
	require.InDelta(t, 230.0, doc.TotalAmount, 0.001)
	require.InDelta(t, 230.0, doc.BalanceDue, 0.001)
	require.Len(t, doc.Lines, 1)
	require.NotZero(t, doc.Lines[0].ID)

	second, err := svc.CreateInvoice(ctx, taxedInput())
	require.NoError(t, err)
	require.Equal(t, "INV-2025-002", second.Number)
}

func TestCreatePurchaseAddsShipping(t *testing.T) {
	svc, _, _ := newTestService()
	input := DocumentInput{
		CounterpartyID: 2,
		DocumentDate:   time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		ShippingCost:   20,
		Lines:          []LineInput{{ProductID: 3, Quantity: 1, UnitPrice: 100}},
	}
	doc, err := svc.CreatePurchase(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, "PUR-2025-001", doc.Number)
	require.InDelta(t, 120.0, doc.TotalAmount, 0.001)
}

func TestAddPaymentSettlesInvoice(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	doc, err := svc.CreateInvoice(ctx, taxedInput())
	require.NoError(t, err)

	doc, err = svc.AddPayment(ctx, doc.ID, PaymentInput{Amount: 100})
	require.NoError(t, err)
	require.Equal(t, PaymentPartial, doc.PaymentStatus)
	require.InDelta(t, 130.0, doc.BalanceDue, 0.001)

	doc, err = svc.AddPayment(ctx, doc.ID, PaymentInput{Amount: 130})
	require.NoError(t, err)
	require.Equal(t, PaymentPaid, doc.PaymentStatus)
	require.Equal(t, StatusPaid, doc.Status)
	require.InDelta(t, -230.0, repo.balances["INVOICE:1"], 0.001)
}

func TestAddPaymentRejectsInvalid(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	doc, err := svc.CreateInvoice(ctx, taxedInput())
	require.NoError(t, err)

	_, err = svc.AddPayment(ctx, doc.ID, PaymentInput{Amount: 0})
	require.True(t, shared.IsValidation(err))

	_, err = svc.Cancel(ctx, doc.ID, "void", 9)
	require.NoError(t, err)
	_, err = svc.AddPayment(ctx, doc.ID, PaymentInput{Amount: 50})
	require.True(t, shared.IsInvalidState(err))
}

func TestSendReservesStock(t *testing.T) {
	svc, _, stock := newTestService()
	ctx := context.Background()

	input := taxedInput()
	input.WarehouseID = 7
	input.Lines = append(input.Lines, LineInput{ProductID: 2, Quantity: 4, UnitPrice: 50})
	doc, err := svc.CreateInvoice(ctx, input)
	require.NoError(t, err)

	doc, err = svc.Send(ctx, doc.ID, 9)
	require.NoError(t, err)
	require.Equal(t, StatusSent, doc.Status)
	require.Len(t, stock.reserves, 2)
	require.Equal(t, stockCall{7, 1, 2}, stock.reserves[0])
	require.Equal(t, stockCall{7, 2, 4}, stock.reserves[1])
	require.InDelta(t, 2.0, doc.Lines[0].ReservedQuantity, 0.001)
	require.InDelta(t, 4.0, doc.Lines[1].ReservedQuantity, 0.001)

	_, err = svc.Send(ctx, doc.ID, 9)
	require.True(t, shared.IsInvalidState(err))
}

func TestSendReservationFailureRollsBack(t *testing.T) {
	svc, repo, stock := newTestService()
	stock.failReserveProduct = 2
	ctx := context.Background()

	input := taxedInput()
	input.WarehouseID = 7
	input.Lines = append(input.Lines, LineInput{ProductID: 2, Quantity: 4, UnitPrice: 50})
	doc, err := svc.CreateInvoice(ctx, input)
	require.NoError(t, err)

	_, err = svc.Send(ctx, doc.ID, 9)
	require.True(t, shared.IsInsufficientStock(err))
	require.Len(t, stock.releases, 1)
	require.Equal(t, stockCall{7, 1, 2}, stock.releases[0])

	current, err := repo.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, current.Status)
	require.Zero(t, current.Lines[0].ReservedQuantity)
}

func TestFulfillPostsSaleMovements(t *testing.T) {
	svc, _, stock := newTestService()
	ctx := context.Background()

	input := taxedInput()
	input.WarehouseID = 7
	doc, err := svc.CreateInvoice(ctx, input)
	require.NoError(t, err)
	doc, err = svc.Send(ctx, doc.ID, 9)
	require.NoError(t, err)

	doc, err = svc.Fulfill(ctx, doc.ID, 9)
	require.NoError(t, err)
	require.Len(t, stock.releases, 1)
	require.Len(t, stock.movements, 1)
	require.Equal(t, inventory.MovementSale, stock.movements[0].Type)
	require.Equal(t, shared.RefInvoice, stock.movements[0].Reference.Kind)
	require.Equal(t, doc.Number, stock.movements[0].Reference.Number)
	require.Zero(t, doc.Lines[0].ReservedQuantity)
}

func TestFulfillRequiresSentInvoice(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	doc, err := svc.CreateInvoice(ctx, taxedInput())
	require.NoError(t, err)
	_, err = svc.Fulfill(ctx, doc.ID, 9)
	require.True(t, shared.IsInvalidState(err))
}

func purchaseInput() DocumentInput {
	return DocumentInput{
		CounterpartyID: 5,
		WarehouseID:    7,
		DocumentDate:   time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		DueDate:        time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC),
		Lines: []LineInput{
			{ProductID: 1, Quantity: 10, UnitPrice: 4},
			{ProductID: 2, Quantity: 5, UnitPrice: 12},
		},
	}
}

func TestApproveAndReceivePurchase(t *testing.T) {
	svc, _, stock := newTestService()
	ctx := context.Background()

	doc, err := svc.CreatePurchase(ctx, purchaseInput())
	require.NoError(t, err)

	doc, err = svc.Approve(ctx, doc.ID, 9)
	require.NoError(t, err)
	require.Equal(t, StatusSent, doc.Status)
	require.NotNil(t, doc.ApprovedBy)
	require.Equal(t, int64(9), *doc.ApprovedBy)

	doc, err = svc.ReceiveItems(ctx, doc.ID, nil, 9)
	require.NoError(t, err)
	require.Equal(t, StatusReceived, doc.Status)
	require.Len(t, stock.movements, 2)
	require.Equal(t, inventory.MovementPurchase, stock.movements[0].Type)
	require.Equal(t, shared.RefPurchase, stock.movements[0].Reference.Kind)
	for _, line := range doc.Lines {
		require.Equal(t, LineReceived, line.Status)
		require.Zero(t, line.Remaining())
	}

	doc, err = svc.AddPayment(ctx, doc.ID, PaymentInput{Amount: doc.TotalAmount})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, doc.Status)
}

func TestReceivePartialQuantities(t *testing.T) {
	svc, _, stock := newTestService()
	ctx := context.Background()

	doc, err := svc.CreatePurchase(ctx, purchaseInput())
	require.NoError(t, err)
	doc, err = svc.Approve(ctx, doc.ID, 9)
	require.NoError(t, err)

	doc, err = svc.ReceiveItems(ctx, doc.ID, []ReceiptItem{{LineID: doc.Lines[0].ID, Quantity: 4}}, 9)
	require.NoError(t, err)
	require.Equal(t, LinePartial, doc.Lines[0].Status)
	require.InDelta(t, 6.0, doc.Lines[0].Remaining(), 0.001)
	require.Equal(t, LinePending, doc.Lines[1].Status)
	require.Len(t, stock.movements, 1)
	require.InDelta(t, 4.0, stock.movements[0].Quantity, 0.001)
	require.False(t, doc.FullyReceived())

	doc, err = svc.ReceiveItems(ctx, doc.ID, nil, 9)
	require.NoError(t, err)
	require.True(t, doc.FullyReceived())
}

func TestReceiveCompletesWhenAlreadyPaid(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	doc, err := svc.CreatePurchase(ctx, purchaseInput())
	require.NoError(t, err)
	doc, err = svc.Approve(ctx, doc.ID, 9)
	require.NoError(t, err)
	doc, err = svc.AddPayment(ctx, doc.ID, PaymentInput{Amount: doc.TotalAmount})
	require.NoError(t, err)
	require.Equal(t, StatusSent, doc.Status)

	doc, err = svc.ReceiveItems(ctx, doc.ID, nil, 9)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, doc.Status)
}

func TestCancelReleasesReservations(t *testing.T) {
	svc, _, stock := newTestService()
	ctx := context.Background()

	input := taxedInput()
	input.WarehouseID = 7
	doc, err := svc.CreateInvoice(ctx, input)
	require.NoError(t, err)
	doc, err = svc.Send(ctx, doc.ID, 9)
	require.NoError(t, err)

	doc, err = svc.Cancel(ctx, doc.ID, "customer withdrew order", 9)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, doc.Status)
	require.Contains(t, doc.Notes, "Cancelled: customer withdrew order")
	require.Len(t, stock.releases, 1)
	require.Equal(t, stockCall{7, 1, 2}, stock.releases[0])

	_, err = svc.Cancel(ctx, doc.ID, "again", 9)
	require.True(t, shared.IsInvalidState(err))
}

func TestMarkOverdue(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	overdue, err := svc.CreateInvoice(ctx, taxedInput())
	require.NoError(t, err)
	_, err = svc.Send(ctx, overdue.ID, 9)
	require.NoError(t, err)

	draft, err := svc.CreateInvoice(ctx, taxedInput())
	require.NoError(t, err)

	paid, err := svc.CreateInvoice(ctx, taxedInput())
	require.NoError(t, err)
	_, err = svc.Send(ctx, paid.ID, 9)
	require.NoError(t, err)
	_, err = svc.AddPayment(ctx, paid.ID, PaymentInput{Amount: 230})
	require.NoError(t, err)

	flagged, err := svc.MarkOverdue(ctx, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, flagged, 1)
	require.Equal(t, overdue.ID, flagged[0].ID)
	require.Equal(t, StatusOverdue, flagged[0].Status)

	current, err := svc.Get(ctx, draft.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, current.Status)

	current, err = svc.Get(ctx, paid.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, current.Status)
}

func TestReplaceLinesDraftOnly(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	doc, err := svc.CreateInvoice(ctx, taxedInput())
	require.NoError(t, err)

	doc, err = svc.ReplaceLines(ctx, doc.ID, []LineInput{
		{ProductID: 4, Quantity: 1, UnitPrice: 500},
	}, 9)
	require.NoError(t, err)
	require.Len(t, doc.Lines, 1)
	require.Equal(t, int64(4), doc.Lines[0].ProductID)
	require.InDelta(t, 500.0, doc.TotalAmount, 0.001)

	_, err = svc.Send(ctx, doc.ID, 9)
	require.NoError(t, err)
	_, err = svc.ReplaceLines(ctx, doc.ID, []LineInput{{ProductID: 4, Quantity: 2, UnitPrice: 1}}, 9)
	require.True(t, shared.IsInvalidState(err))
}

func TestAgingBucketsByDueDate(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	seed := func(counterparty int64, due time.Time) int64 {
		input := taxedInput()
		input.CounterpartyID = counterparty
		input.DueDate = due
		doc, err := svc.CreateInvoice(ctx, input)
		require.NoError(t, err)
		_, err = svc.Send(ctx, doc.ID, 9)
		require.NoError(t, err)
		return doc.ID
	}

	asOf := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	seed(1, asOf.AddDate(0, 0, 10))  // not yet due
	seed(1, asOf.AddDate(0, 0, -10)) // 10 days overdue
	seed(2, asOf.AddDate(0, 0, -45)) // 45 days overdue
	paidID := seed(2, asOf.AddDate(0, 0, -100))
	_, err := svc.AddPayment(ctx, paidID, PaymentInput{Amount: 230})
	require.NoError(t, err)

	rows, err := svc.Aging(ctx, KindInvoice, asOf)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.Equal(t, int64(1), rows[0].CounterpartyID)
	require.InDelta(t, 230.0, rows[0].Current, 0.001)
	require.InDelta(t, 230.0, rows[0].Days1To30, 0.001)
	require.InDelta(t, 460.0, rows[0].Total, 0.001)

	require.Equal(t, int64(2), rows[1].CounterpartyID)
	require.InDelta(t, 230.0, rows[1].Days31To60, 0.001)
	require.InDelta(t, 0.0, rows[1].Over90, 0.001)
	require.InDelta(t, 230.0, rows[1].Total, 0.001)
}
