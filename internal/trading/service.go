package trading

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetDocument(ctx context.Context, id int64) (Document, error)
	ListDocuments(ctx context.Context, kind DocKind, status DocumentStatus, limit int) ([]Document, error)
	ListOutstanding(ctx context.Context, kind DocKind) ([]Document, error)
}

// InventoryPort is the stock collaborator: reservation, release, and
// movements. Satisfied by inventory.Service.
type InventoryPort interface {
	CanSell(ctx context.Context, productID int64, quantity float64) (bool, error)
	Reserve(ctx context.Context, warehouseID, productID int64, quantity float64) (inventory.WarehouseStock, error)
	Release(ctx context.Context, warehouseID, productID int64, quantity float64) (inventory.WarehouseStock, error)
	UpdateStock(ctx context.Context, input inventory.MovementInput) (inventory.Movement, error)
}

// AuditPort records trading events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Config carries the company-configured document number prefixes.
type Config struct {
	InvoicePrefix  string
	PurchasePrefix string
}

// Service runs the shared invoice/purchase document engine. Payment
// application updates the document and the counterparty balance in one
// transaction.
type Service struct {
	repo  RepositoryPort
	stock InventoryPort
	audit AuditPort
	cfg   Config
	now   func() time.Time
}

// NewService constructs the trading service.
func NewService(repo RepositoryPort, stock InventoryPort, audit AuditPort, cfg Config) *Service {
	if cfg.InvoicePrefix == "" {
		cfg.InvoicePrefix = "INV"
	}
	if cfg.PurchasePrefix == "" {
		cfg.PurchasePrefix = "PUR"
	}
	return &Service{repo: repo, stock: stock, audit: audit, cfg: cfg, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateInvoice persists a draft sales invoice.
func (s *Service) CreateInvoice(ctx context.Context, input DocumentInput) (Document, error) {
	return s.createDocument(ctx, KindInvoice, input)
}

// CreatePurchase persists a draft purchase order.
func (s *Service) CreatePurchase(ctx context.Context, input DocumentInput) (Document, error) {
	return s.createDocument(ctx, KindPurchase, input)
}

func (s *Service) createDocument(ctx context.Context, kind DocKind, input DocumentInput) (Document, error) {
	if err := input.Validate(); err != nil {
		return Document{}, err
	}
	if input.DocumentDate.IsZero() {
		input.DocumentDate = s.now()
	}
	if input.Currency == "" {
		input.Currency = "USD"
	}
	if input.ExchangeRate == 0 {
		input.ExchangeRate = 1
	}
	doc := Document{
		Kind:               kind,
		CounterpartyID:     input.CounterpartyID,
		WarehouseID:        input.WarehouseID,
		DocumentDate:       input.DocumentDate,
		DueDate:            input.DueDate,
		Currency:           input.Currency,
		ExchangeRate:       input.ExchangeRate,
		DiscountPercentage: input.DiscountPercentage,
		DiscountAmount:     input.DiscountAmount,
		ShippingCost:       input.ShippingCost,
		Status:             StatusDraft,
		PaymentStatus:      PaymentUnpaid,
		Notes:              input.Notes,
		CreatedBy:          input.CreatedBy,
		Lines:              buildLines(input.Lines),
	}
	doc.CalculateTotals()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		prefix := s.cfg.InvoicePrefix
		if kind == KindPurchase {
			prefix = s.cfg.PurchasePrefix
		}
		number, err := tx.NextDocumentNumber(ctx, kind, prefix, input.DocumentDate)
		if err != nil {
			return err
		}
		doc.Number = number
		inserted, err := tx.InsertDocument(ctx, doc)
		if err != nil {
			return err
		}
		inserted.Lines, err = tx.InsertLines(ctx, inserted.ID, doc.Lines)
		if err != nil {
			return err
		}
		doc = inserted
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	s.recordAudit(ctx, input.CreatedBy, "document.create", doc, nil)
	return doc, nil
}

// Get fetches one document with lines.
func (s *Service) Get(ctx context.Context, id int64) (Document, error) {
	return s.repo.GetDocument(ctx, id)
}

// List retrieves documents of one kind, optionally filtered by status.
func (s *Service) List(ctx context.Context, kind DocKind, status DocumentStatus, limit int) ([]Document, error) {
	return s.repo.ListDocuments(ctx, kind, status, limit)
}

// Aging buckets outstanding balances per counterparty by days past due as of
// the given date. A zero asOf means "now".
func (s *Service) Aging(ctx context.Context, kind DocKind, asOf time.Time) ([]AgingRow, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	documents, err := s.repo.ListOutstanding(ctx, kind)
	if err != nil {
		return nil, err
	}
	byParty := map[int64]*AgingRow{}
	order := []int64{}
	for _, doc := range documents {
		row, ok := byParty[doc.CounterpartyID]
		if !ok {
			row = &AgingRow{CounterpartyID: doc.CounterpartyID}
			byParty[doc.CounterpartyID] = row
			order = append(order, doc.CounterpartyID)
		}
		row.add(doc.BalanceDue, doc.DaysOverdue(asOf))
	}
	rows := make([]AgingRow, 0, len(order))
	for _, id := range order {
		rows = append(rows, *byParty[id])
	}
	return rows, nil
}

// ReplaceLines swaps the line set of a draft and recomputes totals inside the
// same transaction.
func (s *Service) ReplaceLines(ctx context.Context, id int64, inputs []LineInput, actorID int64) (Document, error) {
	if len(inputs) == 0 {
		return Document{}, shared.Validationf("lines", "at least one line required")
	}
	for idx, line := range inputs {
		if line.Quantity <= 0 {
			return Document{}, shared.Validationf("lines", "line %d quantity must be > 0", idx)
		}
	}
	var doc Document
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetDocumentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != StatusDraft {
			return invalidState(current, "replace lines")
		}
		current.Lines = buildLines(inputs)
		current.CalculateTotals()
		current.Lines, err = tx.ReplaceLines(ctx, current.ID, current.Lines)
		if err != nil {
			return err
		}
		if err := tx.UpdateDocument(ctx, current); err != nil {
			return err
		}
		doc = current
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	s.recordAudit(ctx, actorID, "document.replace_lines", doc, nil)
	return doc, nil
}

// AddPayment applies a payment: paid amount and derived status on the
// document, minus amount on the counterparty balance, one transaction.
func (s *Service) AddPayment(ctx context.Context, id int64, input PaymentInput) (Document, error) {
	if err := input.Validate(); err != nil {
		return Document{}, err
	}
	var doc Document
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetDocumentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status == StatusCancelled {
			return invalidState(current, "add payment")
		}
		current.ApplyPayment(input.Amount)
		if err := tx.UpdateDocument(ctx, current); err != nil {
			return err
		}
		if err := tx.ApplyCounterpartyBalance(ctx, current.Kind, current.CounterpartyID, -input.Amount); err != nil {
			return err
		}
		doc = current
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	s.recordAudit(ctx, input.ActorID, "document.add_payment", doc, map[string]any{
		"amount": input.Amount,
		"method": input.Method,
	})
	return doc, nil
}

// Send transitions a draft invoice to SENT and reserves stock for every
// tracked line. A failed reservation releases the ones already taken and
// leaves the invoice untouched.
func (s *Service) Send(ctx context.Context, id int64, actorID int64) (Document, error) {
	doc, err := s.repo.GetDocument(ctx, id)
	if err != nil {
		return Document{}, err
	}
	if doc.Kind != KindInvoice {
		return Document{}, shared.Validationf("id", "document %s is not an invoice", doc.Number)
	}
	if doc.Status != StatusDraft {
		return Document{}, invalidState(doc, "send")
	}
	reserved := make([]Line, 0, len(doc.Lines))
	if doc.WarehouseID != 0 {
		for _, line := range doc.Lines {
			if line.ProductID == 0 {
				continue
			}
			if _, err := s.stock.Reserve(ctx, doc.WarehouseID, line.ProductID, line.Quantity); err != nil {
				for _, taken := range reserved {
					_, _ = s.stock.Release(ctx, doc.WarehouseID, taken.ProductID, taken.Quantity)
				}
				return Document{}, err
			}
			reserved = append(reserved, line)
		}
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetDocumentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != StatusDraft {
			return invalidState(current, "send")
		}
		current.Status = StatusSent
		for i := range current.Lines {
			for _, taken := range reserved {
				if current.Lines[i].ID == taken.ID {
					current.Lines[i].ReservedQuantity = taken.Quantity
					if err := tx.UpdateLineReservation(ctx, taken.ID, taken.Quantity); err != nil {
						return err
					}
				}
			}
		}
		if err := tx.UpdateDocument(ctx, current); err != nil {
			return err
		}
		doc = current
		return nil
	})
	if err != nil {
		for _, taken := range reserved {
			_, _ = s.stock.Release(ctx, doc.WarehouseID, taken.ProductID, taken.Quantity)
		}
		return Document{}, err
	}
	s.recordAudit(ctx, actorID, "document.send", doc, nil)
	return doc, nil
}

// Fulfill ships a sent invoice: posts one sale movement per tracked line and
// consumes its reservation.
func (s *Service) Fulfill(ctx context.Context, id int64, actorID int64) (Document, error) {
	doc, err := s.repo.GetDocument(ctx, id)
	if err != nil {
		return Document{}, err
	}
	if doc.Kind != KindInvoice {
		return Document{}, shared.Validationf("id", "document %s is not an invoice", doc.Number)
	}
	if doc.Status != StatusSent && doc.Status != StatusPaid && doc.Status != StatusOverdue {
		return Document{}, invalidState(doc, "fulfill")
	}
	for _, line := range doc.Lines {
		if line.ProductID == 0 || doc.WarehouseID == 0 {
			continue
		}
		if line.ReservedQuantity > 0 {
			if _, err := s.stock.Release(ctx, doc.WarehouseID, line.ProductID, line.ReservedQuantity); err != nil {
				return Document{}, err
			}
		}
		if _, err := s.stock.UpdateStock(ctx, inventory.MovementInput{
			ProductID:   line.ProductID,
			WarehouseID: doc.WarehouseID,
			Type:        inventory.MovementSale,
			Quantity:    line.Quantity,
			Reference:   shared.NewRef(shared.RefInvoice, doc.ID, doc.Number),
			ActorID:     actorID,
		}); err != nil {
			return Document{}, err
		}
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetDocumentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		for i := range current.Lines {
			if current.Lines[i].ReservedQuantity == 0 {
				continue
			}
			current.Lines[i].ReservedQuantity = 0
			if err := tx.UpdateLineReservation(ctx, current.Lines[i].ID, 0); err != nil {
				return err
			}
		}
		doc = current
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	s.recordAudit(ctx, actorID, "document.fulfill", doc, nil)
	return doc, nil
}

// Approve transitions a draft purchase to SENT with an approver stamp.
func (s *Service) Approve(ctx context.Context, id int64, actorID int64) (Document, error) {
	var doc Document
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetDocumentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Kind != KindPurchase {
			return shared.Validationf("id", "document %s is not a purchase", current.Number)
		}
		if current.Status != StatusDraft {
			return invalidState(current, "approve")
		}
		at := s.now()
		current.Status = StatusSent
		current.ApprovedBy = &actorID
		current.ApprovedAt = &at
		if err := tx.UpdateDocument(ctx, current); err != nil {
			return err
		}
		doc = current
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	s.recordAudit(ctx, actorID, "document.approve", doc, nil)
	return doc, nil
}

// ReceiveItems books incoming purchase stock. With no explicit items every
// remaining quantity is received. The purchase moves to RECEIVED, or straight
// to COMPLETED when already fully paid.
func (s *Service) ReceiveItems(ctx context.Context, id int64, items []ReceiptItem, actorID int64) (Document, error) {
	doc, err := s.repo.GetDocument(ctx, id)
	if err != nil {
		return Document{}, err
	}
	if doc.Kind != KindPurchase {
		return Document{}, shared.Validationf("id", "document %s is not a purchase", doc.Number)
	}
	if doc.Status != StatusSent && doc.Status != StatusReceived && doc.Status != StatusOverdue {
		return Document{}, invalidState(doc, "receive items")
	}

	receipts := map[int64]float64{}
	if len(items) == 0 {
		for _, line := range doc.Lines {
			if remaining := line.Remaining(); remaining > 0 {
				receipts[line.ID] = remaining
			}
		}
	} else {
		byID := map[int64]Line{}
		for _, line := range doc.Lines {
			byID[line.ID] = line
		}
		for _, item := range items {
			line, ok := byID[item.LineID]
			if !ok {
				return Document{}, shared.Validationf("items", "line %d not on document", item.LineID)
			}
			quantity := item.Quantity
			if quantity <= 0 {
				quantity = line.Remaining()
			}
			if quantity <= 0 {
				continue
			}
			receipts[item.LineID] = quantity
		}
	}

	for _, line := range doc.Lines {
		quantity, ok := receipts[line.ID]
		if !ok || line.ProductID == 0 || doc.WarehouseID == 0 {
			continue
		}
		if _, err := s.stock.UpdateStock(ctx, inventory.MovementInput{
			ProductID:   line.ProductID,
			WarehouseID: doc.WarehouseID,
			Type:        inventory.MovementPurchase,
			Quantity:    quantity,
			Reference:   shared.NewRef(shared.RefPurchase, doc.ID, doc.Number),
			ActorID:     actorID,
		}); err != nil {
			return Document{}, err
		}
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetDocumentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		for i := range current.Lines {
			quantity, ok := receipts[current.Lines[i].ID]
			if !ok {
				continue
			}
			current.Lines[i].ReceivedQuantity += quantity
			switch {
			case current.Lines[i].Remaining() <= 0:
				current.Lines[i].Status = LineReceived
			case current.Lines[i].ReceivedQuantity > 0:
				current.Lines[i].Status = LinePartial
			}
			if err := tx.UpdateLineReceipt(ctx, current.Lines[i].ID, current.Lines[i].ReceivedQuantity, current.Lines[i].Status); err != nil {
				return err
			}
		}
		current.Status = StatusReceived
		if current.PaidAmount >= current.TotalAmount {
			current.Status = StatusCompleted
		}
		if err := tx.UpdateDocument(ctx, current); err != nil {
			return err
		}
		doc = current
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	s.recordAudit(ctx, actorID, "document.receive", doc, map[string]any{"lines": len(receipts)})
	return doc, nil
}

// Cancel moves any non-terminal document to CANCELLED, appending the reason
// to its notes and releasing invoice reservations.
func (s *Service) Cancel(ctx context.Context, id int64, reason string, actorID int64) (Document, error) {
	var doc Document
	var toRelease []Line
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetDocumentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status.IsTerminal() {
			return invalidState(current, "cancel")
		}
		current.Status = StatusCancelled
		if reason != "" {
			note := fmt.Sprintf("Cancelled: %s", reason)
			if current.Notes != "" {
				current.Notes = strings.TrimRight(current.Notes, "\n") + "\n" + note
			} else {
				current.Notes = note
			}
		}
		for i := range current.Lines {
			if current.Lines[i].ReservedQuantity > 0 {
				toRelease = append(toRelease, current.Lines[i])
				current.Lines[i].ReservedQuantity = 0
				if err := tx.UpdateLineReservation(ctx, current.Lines[i].ID, 0); err != nil {
					return err
				}
			}
		}
		if err := tx.UpdateDocument(ctx, current); err != nil {
			return err
		}
		doc = current
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	for _, line := range toRelease {
		_, _ = s.stock.Release(ctx, doc.WarehouseID, line.ProductID, line.Quantity)
	}
	s.recordAudit(ctx, actorID, "document.cancel", doc, map[string]any{"reason": reason})
	return doc, nil
}

// MarkOverdue flips every open document past its due date to OVERDUE and
// returns the ones changed. Run by the background worker.
func (s *Service) MarkOverdue(ctx context.Context, asOf time.Time) ([]Document, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	var flagged []Document
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		due, err := tx.ListDueForUpdate(ctx, asOf)
		if err != nil {
			return err
		}
		for _, doc := range due {
			if !doc.IsOverdue(asOf) {
				continue
			}
			doc.Status = StatusOverdue
			if err := tx.UpdateDocument(ctx, doc); err != nil {
				return err
			}
			flagged = append(flagged, doc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return flagged, nil
}

func invalidState(doc Document, op string) error {
	entity := "invoice"
	if doc.Kind == KindPurchase {
		entity = "purchase"
	}
	return &shared.InvalidStateError{Entity: entity, State: string(doc.Status), Op: op}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, doc Document, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["number"] = doc.Number
	meta["kind"] = string(doc.Kind)
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "trading_document",
		EntityID: fmt.Sprintf("%d", doc.ID),
		Meta:     meta,
		At:       s.now(),
	})
}
