package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/masterdata"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/internal/trading"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskOverdueScan flags unpaid trading documents past their due date.
	TaskOverdueScan = "trading:overdue_scan"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "shared:idempotency_cleanup"
	// TaskLowStockScan reports tracked products at or below minimum stock.
	TaskLowStockScan = "inventory:low_stock_scan"
)

// OverdueScanPayload carries the cutoff for the overdue pass. A zero AsOf
// means "now".
type OverdueScanPayload struct {
	AsOf time.Time `json:"as_of,omitzero"`
}

// NewOverdueScanTask constructs the overdue scan task.
func NewOverdueScanTask(asOf time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(OverdueScanPayload{AsOf: asOf})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOverdueScan, body, asynq.Queue(QueueDefault)), nil
}

// IdempotencyCleanupPayload carries the retention window.
type IdempotencyCleanupPayload struct {
	OlderThan time.Duration `json:"older_than"`
}

// NewIdempotencyCleanupTask constructs the idempotency cleanup task.
func NewIdempotencyCleanupTask(olderThan time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{OlderThan: olderThan})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}

// LowStockScanPayload carries scheduling metadata.
type LowStockScanPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewLowStockScanTask constructs the low stock scan task.
func NewLowStockScanTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(LowStockScanPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockScan, body, asynq.Queue(QueueDefault)), nil
}

// OverdueMarker flips open documents past due to overdue. Satisfied by
// trading.Service.
type OverdueMarker interface {
	MarkOverdue(ctx context.Context, asOf time.Time) ([]trading.Document, error)
}

// ProductLister reads products, optionally only those at or below minimum
// stock. Satisfied by masterdata.Service.
type ProductLister interface {
	ListProducts(ctx context.Context, onlyLowStock bool) ([]masterdata.Product, error)
}

// IdempotencyCleaner prunes stored idempotency keys. Satisfied by
// shared.IdempotencyStore.
type IdempotencyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// Tasks bundles the task handlers with their collaborators.
type Tasks struct {
	Logger      *slog.Logger
	Trading     OverdueMarker
	Products    ProductLister
	Idempotency IdempotencyCleaner
}

// HandleOverdueScan processes TaskOverdueScan tasks.
func (t *Tasks) HandleOverdueScan(ctx context.Context, task *asynq.Task) error {
	var payload OverdueScanPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	flagged, err := t.Trading.MarkOverdue(ctx, payload.AsOf)
	if err != nil {
		return err
	}
	t.Logger.Info("overdue scan complete", slog.Int("flagged", len(flagged)))
	for _, doc := range flagged {
		t.Logger.Warn("document overdue",
			slog.String("number", doc.Number),
			slog.String("kind", string(doc.Kind)),
			slog.Float64("balance_due", doc.BalanceDue))
	}
	return nil
}

// HandleIdempotencyCleanup processes TaskIdempotencyCleanup tasks.
func (t *Tasks) HandleIdempotencyCleanup(ctx context.Context, task *asynq.Task) error {
	var payload IdempotencyCleanupPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.OlderThan <= 0 {
		payload.OlderThan = 24 * time.Hour
	}
	if err := t.Idempotency.Cleanup(ctx, payload.OlderThan); err != nil {
		return err
	}
	t.Logger.Info("idempotency cleanup complete", slog.Duration("older_than", payload.OlderThan))
	return nil
}

// HandleLowStockScan processes TaskLowStockScan tasks.
func (t *Tasks) HandleLowStockScan(ctx context.Context, task *asynq.Task) error {
	var payload LowStockScanPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	products, err := t.Products.ListProducts(ctx, true)
	if err != nil {
		return err
	}
	t.Logger.Info("low stock scan complete", slog.Int("low", len(products)))
	for _, p := range products {
		t.Logger.Warn("product below minimum stock",
			slog.String("code", p.Code),
			slog.Float64("current", p.CurrentStock),
			slog.Float64("minimum", p.MinimumStock))
	}
	return nil
}

var _ IdempotencyCleaner = (*shared.IdempotencyStore)(nil)
