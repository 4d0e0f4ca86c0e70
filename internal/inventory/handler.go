package inventory

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// IdempotencyGuard deduplicates replayed movement requests. Satisfied by
// shared.IdempotencyStore.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Handler wires HTTP endpoints for the inventory module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	idem     IdempotencyGuard
	validate *validator.Validate
}

// NewHandler constructs the inventory handler. A nil guard disables
// idempotency checks.
func NewHandler(logger *slog.Logger, service *Service, idem IdempotencyGuard) *Handler {
	return &Handler{logger: logger, service: service, idem: idem, validate: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/movements", h.createMovement)
	r.Get("/movements", h.listMovements)
	r.Get("/stock", h.getStock)
	r.Get("/can-sell", h.canSell)
	r.Post("/reservations", h.reserve)
	r.Delete("/reservations", h.release)
	r.Route("/adjustments", func(r chi.Router) {
		r.Get("/", h.listAdjustments)
		r.Post("/", h.createAdjustment)
		r.Get("/{id}", h.getAdjustment)
		r.Post("/{id}/approve", h.approveAdjustment)
		r.Post("/{id}/cancel", h.cancelAdjustment)
	})
}

type movementRequest struct {
	ProductID   int64   `json:"product_id" validate:"required"`
	WarehouseID int64   `json:"warehouse_id" validate:"required"`
	Type        string  `json:"type" validate:"required"`
	Quantity    float64 `json:"quantity" validate:"gt=0"`
	RefKind     string  `json:"reference_kind"`
	RefID       int64   `json:"reference_id"`
	RefNumber   string  `json:"reference_number"`
	Note        string  `json:"note"`
}

func (h *Handler) createMovement(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body is not valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var ref shared.DocumentRef
	if req.RefKind != "" {
		kind, err := shared.ParseRefKind(req.RefKind)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		ref = shared.NewRef(kind, req.RefID, req.RefNumber)
	}
	idemKey := r.Header.Get("Idempotency-Key")
	if idemKey != "" && h.idem != nil {
		if err := h.idem.CheckAndInsert(r.Context(), idemKey, "inventory"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				httpx.Problem(w, http.StatusConflict, "Duplicate Request", "movement already processed")
				return
			}
			httpx.RespondError(w, err)
			return
		}
	}
	movement, err := h.service.UpdateStock(r.Context(), MovementInput{
		ProductID:   req.ProductID,
		WarehouseID: req.WarehouseID,
		Type:        MovementType(req.Type),
		Quantity:    req.Quantity,
		Reference:   ref,
		Note:        req.Note,
		ActorID:     shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		if idemKey != "" && h.idem != nil {
			_ = h.idem.Delete(r.Context(), idemKey)
		}
		h.logger.Error("create movement", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movement)
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := MovementFilter{Type: MovementType(q.Get("type"))}
	filter.ProductID, _ = strconv.ParseInt(q.Get("product_id"), 10, 64)
	filter.WarehouseID, _ = strconv.ParseInt(q.Get("warehouse_id"), 10, 64)
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	if raw := q.Get("from"); raw != "" {
		from, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "from must be YYYY-MM-DD")
			return
		}
		filter.From = from
	}
	if raw := q.Get("to"); raw != "" {
		to, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "to must be YYYY-MM-DD")
			return
		}
		filter.To = to.Add(24*time.Hour - time.Nanosecond)
	}
	movements, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		h.logger.Error("list movements", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, movements)
}

func (h *Handler) getStock(w http.ResponseWriter, r *http.Request) {
	warehouseID, err1 := strconv.ParseInt(r.URL.Query().Get("warehouse_id"), 10, 64)
	productID, err2 := strconv.ParseInt(r.URL.Query().Get("product_id"), 10, 64)
	if err1 != nil || err2 != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "warehouse_id and product_id are required")
		return
	}
	stock, err := h.service.GetWarehouseStock(r.Context(), warehouseID, productID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stock)
}

func (h *Handler) canSell(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(r.URL.Query().Get("product_id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "product_id is required")
		return
	}
	quantity, err := strconv.ParseFloat(r.URL.Query().Get("quantity"), 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "quantity is required")
		return
	}
	ok, err := h.service.CanSell(r.Context(), productID, quantity)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"product_id": productID, "quantity": quantity, "can_sell": ok})
}

type reservationRequest struct {
	WarehouseID int64   `json:"warehouse_id" validate:"required"`
	ProductID   int64   `json:"product_id" validate:"required"`
	Quantity    float64 `json:"quantity" validate:"gt=0"`
}

func (h *Handler) reserve(w http.ResponseWriter, r *http.Request) {
	var req reservationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body is not valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	stock, err := h.service.Reserve(r.Context(), req.WarehouseID, req.ProductID, req.Quantity)
	if err != nil {
		h.logger.Error("reserve stock", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stock)
}

func (h *Handler) release(w http.ResponseWriter, r *http.Request) {
	var req reservationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body is not valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	stock, err := h.service.Release(r.Context(), req.WarehouseID, req.ProductID, req.Quantity)
	if err != nil {
		h.logger.Error("release stock", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stock)
}

type adjustmentLineRequest struct {
	ProductID   int64   `json:"product_id" validate:"required"`
	NewQuantity float64 `json:"new_quantity" validate:"gte=0"`
}

type createAdjustmentRequest struct {
	WarehouseID int64                   `json:"warehouse_id" validate:"required"`
	Date        string                  `json:"date"`
	Note        string                  `json:"note"`
	Lines       []adjustmentLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) createAdjustment(w http.ResponseWriter, r *http.Request) {
	var req createAdjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body is not valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := AdjustmentInput{
		WarehouseID: req.WarehouseID,
		Note:        req.Note,
		CreatedBy:   shared.ActorFromContext(r.Context()),
	}
	if req.Date != "" {
		date, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "date must be YYYY-MM-DD")
			return
		}
		input.Date = date
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, AdjustmentLineInput{ProductID: line.ProductID, NewQuantity: line.NewQuantity})
	}
	adjustment, err := h.service.CreateAdjustment(r.Context(), input)
	if err != nil {
		h.logger.Error("create adjustment", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, adjustment)
}

func (h *Handler) getAdjustment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Identifier", "id must be numeric")
		return
	}
	adjustment, err := h.service.GetAdjustment(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, adjustment)
}

func (h *Handler) listAdjustments(w http.ResponseWriter, r *http.Request) {
	status := AdjustmentStatus(r.URL.Query().Get("status"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	adjustments, err := h.service.ListAdjustments(r.Context(), status, limit)
	if err != nil {
		h.logger.Error("list adjustments", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, adjustments)
}

func (h *Handler) approveAdjustment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Identifier", "id must be numeric")
		return
	}
	adjustment, err := h.service.ApproveAdjustment(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("approve adjustment", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, adjustment)
}

func (h *Handler) cancelAdjustment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Identifier", "id must be numeric")
		return
	}
	adjustment, err := h.service.CancelAdjustment(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("cancel adjustment", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, adjustment)
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
