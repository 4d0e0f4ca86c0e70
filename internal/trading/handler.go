package trading

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires HTTP endpoints for invoices and purchases.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the trading handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountInvoiceRoutes registers the sales invoice routes.
func (h *Handler) MountInvoiceRoutes(r chi.Router) {
	r.Get("/", h.list(KindInvoice))
	r.Get("/aging", h.aging(KindInvoice))
	r.Post("/", h.create(KindInvoice))
	r.Get("/{id}", h.get(KindInvoice))
	r.Put("/{id}/lines", h.replaceLines(KindInvoice))
	r.Post("/{id}/send", h.send)
	r.Post("/{id}/fulfill", h.fulfill)
	r.Post("/{id}/payments", h.addPayment(KindInvoice))
	r.Post("/{id}/cancel", h.cancel(KindInvoice))
}

// MountPurchaseRoutes registers the purchase order routes.
func (h *Handler) MountPurchaseRoutes(r chi.Router) {
	r.Get("/", h.list(KindPurchase))
	r.Get("/aging", h.aging(KindPurchase))
	r.Post("/", h.create(KindPurchase))
	r.Get("/{id}", h.get(KindPurchase))
	r.Put("/{id}/lines", h.replaceLines(KindPurchase))
	r.Post("/{id}/approve", h.approve)
	r.Post("/{id}/receive", h.receive)
	r.Post("/{id}/payments", h.addPayment(KindPurchase))
	r.Post("/{id}/cancel", h.cancel(KindPurchase))
}

type lineRequest struct {
	ProductID          int64   `json:"product_id"`
	Description        string  `json:"description"`
	Quantity           float64 `json:"quantity" validate:"gt=0"`
	UnitPrice          float64 `json:"unit_price" validate:"gte=0"`
	DiscountPercentage float64 `json:"discount_percentage" validate:"gte=0,lte=100"`
	DiscountAmount     float64 `json:"discount_amount" validate:"gte=0"`
	Taxable            bool    `json:"taxable"`
	TaxRate            float64 `json:"tax_rate" validate:"gte=0"`
}

type createDocumentRequest struct {
	CounterpartyID     int64         `json:"counterparty_id" validate:"required"`
	WarehouseID        int64         `json:"warehouse_id"`
	DocumentDate       string        `json:"document_date"`
	DueDate            string        `json:"due_date"`
	Currency           string        `json:"currency" validate:"omitempty,len=3"`
	ExchangeRate       float64       `json:"exchange_rate" validate:"gte=0"`
	DiscountPercentage float64       `json:"discount_percentage" validate:"gte=0,lte=100"`
	DiscountAmount     float64       `json:"discount_amount" validate:"gte=0"`
	ShippingCost       float64       `json:"shipping_cost" validate:"gte=0"`
	Notes              string        `json:"notes"`
	Lines              []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

func toLineInputs(lines []lineRequest) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, LineInput{
			ProductID:          line.ProductID,
			Description:        line.Description,
			Quantity:           line.Quantity,
			UnitPrice:          line.UnitPrice,
			DiscountPercentage: line.DiscountPercentage,
			DiscountAmount:     line.DiscountAmount,
			Taxable:            line.Taxable,
			TaxRate:            line.TaxRate,
		})
	}
	return out
}

func (h *Handler) create(kind DocKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createDocumentRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body is not valid JSON")
			return
		}
		if err := h.validate.Struct(req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		input := DocumentInput{
			CounterpartyID:     req.CounterpartyID,
			WarehouseID:        req.WarehouseID,
			Currency:           req.Currency,
			ExchangeRate:       req.ExchangeRate,
			DiscountPercentage: req.DiscountPercentage,
			DiscountAmount:     req.DiscountAmount,
			ShippingCost:       req.ShippingCost,
			Notes:              req.Notes,
			CreatedBy:          shared.ActorFromContext(r.Context()),
			Lines:              toLineInputs(req.Lines),
		}
		var err error
		if input.DocumentDate, err = parseDate(req.DocumentDate); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "document_date must be YYYY-MM-DD")
			return
		}
		if input.DueDate, err = parseDate(req.DueDate); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "due_date must be YYYY-MM-DD")
			return
		}
		var doc Document
		if kind == KindInvoice {
			doc, err = h.service.CreateInvoice(r.Context(), input)
		} else {
			doc, err = h.service.CreatePurchase(r.Context(), input)
		}
		if err != nil {
			h.logger.Error("create document", slog.String("kind", string(kind)), slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, doc)
	}
}

func (h *Handler) list(kind DocKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := DocumentStatus(r.URL.Query().Get("status"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		documents, err := h.service.List(r.Context(), kind, status, limit)
		if err != nil {
			h.logger.Error("list documents", slog.String("kind", string(kind)), slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, documents)
	}
}

func (h *Handler) aging(kind DocKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var asOf time.Time
		if raw := r.URL.Query().Get("as_of"); raw != "" {
			parsed, err := time.Parse("2006-01-02", raw)
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "as_of must be YYYY-MM-DD")
				return
			}
			asOf = parsed
		}
		rows, err := h.service.Aging(r.Context(), kind, asOf)
		if err != nil {
			h.logger.Error("aging report", slog.String("kind", string(kind)), slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, rows)
	}
}

func (h *Handler) get(kind DocKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, ok := h.fetch(w, r, kind)
		if !ok {
			return
		}
		httpx.JSON(w, http.StatusOK, doc)
	}
}

type replaceLinesRequest struct {
	Lines []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) replaceLines(kind DocKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, ok := h.fetch(w, r, kind)
		if !ok {
			return
		}
		var req replaceLinesRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body is not valid JSON")
			return
		}
		if err := h.validate.Struct(req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		updated, err := h.service.ReplaceLines(r.Context(), doc.ID, toLineInputs(req.Lines), shared.ActorFromContext(r.Context()))
		if err != nil {
			h.logger.Error("replace lines", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, updated)
	}
}

type paymentRequest struct {
	Amount float64 `json:"amount" validate:"gt=0"`
	Date   string  `json:"date"`
	Method string  `json:"method"`
	Notes  string  `json:"notes"`
}

func (h *Handler) addPayment(kind DocKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, ok := h.fetch(w, r, kind)
		if !ok {
			return
		}
		var req paymentRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body is not valid JSON")
			return
		}
		if err := h.validate.Struct(req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		input := PaymentInput{
			Amount:  req.Amount,
			Method:  req.Method,
			Notes:   req.Notes,
			ActorID: shared.ActorFromContext(r.Context()),
		}
		var err error
		if input.Date, err = parseDate(req.Date); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "date must be YYYY-MM-DD")
			return
		}
		updated, err := h.service.AddPayment(r.Context(), doc.ID, input)
		if err != nil {
			h.logger.Error("add payment", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, updated)
	}
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Identifier", "id must be numeric")
		return
	}
	doc, err := h.service.Send(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("send invoice", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) fulfill(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Identifier", "id must be numeric")
		return
	}
	doc, err := h.service.Fulfill(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("fulfill invoice", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Identifier", "id must be numeric")
		return
	}
	doc, err := h.service.Approve(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("approve purchase", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

type receiveRequest struct {
	Items []struct {
		LineID   int64   `json:"line_id" validate:"required"`
		Quantity float64 `json:"quantity" validate:"gte=0"`
	} `json:"items" validate:"dive"`
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Identifier", "id must be numeric")
		return
	}
	var req receiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body is not valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	items := make([]ReceiptItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, ReceiptItem{LineID: item.LineID, Quantity: item.Quantity})
	}
	doc, err := h.service.ReceiveItems(r.Context(), id, items, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("receive items", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) cancel(kind DocKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, ok := h.fetch(w, r, kind)
		if !ok {
			return
		}
		var req cancelRequest
		_ = httpx.DecodeJSON(r, &req)
		updated, err := h.service.Cancel(r.Context(), doc.ID, req.Reason, shared.ActorFromContext(r.Context()))
		if err != nil {
			h.logger.Error("cancel document", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, updated)
	}
}

// fetch loads the document and enforces that it belongs to the mounted kind,
// so a purchase id cannot be addressed through the invoice routes.
func (h *Handler) fetch(w http.ResponseWriter, r *http.Request, kind DocKind) (Document, bool) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Identifier", "id must be numeric")
		return Document{}, false
	}
	doc, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return Document{}, false
	}
	if doc.Kind != kind {
		httpx.RespondError(w, shared.ErrNotFound)
		return Document{}, false
	}
	return doc, true
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", raw)
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
