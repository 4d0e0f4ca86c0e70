package payments

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

// Handler wires HTTP endpoints for the payments module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	repo     *Repository
	validate *validator.Validate
}

// NewHandler constructs the payments handler.
func NewHandler(logger *slog.Logger, service *Service, repo *Repository) *Handler {
	return &Handler{logger: logger, service: service, repo: repo, validate: validator.New()}
}

// MountRoutes registers payment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Post("/{id}/post", h.post)
	r.Post("/{id}/cancel", h.cancel)
	r.Get("/mappings", h.listMappings)
	r.Put("/mappings", h.setMapping)
}

type createPaymentRequest struct {
	Type          string  `json:"type" validate:"required,oneof=RECEIPT PAYMENT"`
	PartyType     string  `json:"party_type" validate:"required,oneof=CUSTOMER SUPPLIER OTHER"`
	PartyID       int64   `json:"party_id"`
	PartyName     string  `json:"party_name"`
	Date          string  `json:"date"`
	Amount        float64 `json:"amount" validate:"gt=0"`
	Method        string  `json:"method" validate:"omitempty,oneof=cash bank check card"`
	BankAccountID *int64  `json:"bank_account_id"`
	RefKind       string  `json:"reference_kind"`
	RefID         int64   `json:"reference_id"`
	RefNumber     string  `json:"reference_number"`
	Notes         string  `json:"notes"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body is not valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := PaymentInput{
		Type:          PaymentType(req.Type),
		PartyType:     PartyType(req.PartyType),
		PartyID:       req.PartyID,
		PartyName:     req.PartyName,
		Amount:        req.Amount,
		Method:        req.Method,
		BankAccountID: req.BankAccountID,
		Notes:         req.Notes,
		CreatedBy:     shared.ActorFromContext(r.Context()),
	}
	if req.RefKind != "" {
		kind, err := shared.ParseRefKind(req.RefKind)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		input.Reference = shared.NewRef(kind, req.RefID, req.RefNumber)
	}
	if req.Date != "" {
		date, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "date must be YYYY-MM-DD")
			return
		}
		input.Date = date
	}
	payment, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.logger.Error("create payment", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, payment)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	payments, err := h.service.List(r.Context(), PaymentType(q.Get("type")), Status(q.Get("status")), limit)
	if err != nil {
		h.logger.Error("list payments", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payments)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Identifier", "id must be numeric")
		return
	}
	payment, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payment)
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Identifier", "id must be numeric")
		return
	}
	payment, err := h.service.Post(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("post payment", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payment)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Identifier", "id must be numeric")
		return
	}
	payment, err := h.service.Cancel(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("cancel payment", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payment)
}

func (h *Handler) listMappings(w http.ResponseWriter, r *http.Request) {
	mappings, err := h.repo.ListMappings(r.Context())
	if err != nil {
		h.logger.Error("list mappings", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, mappings)
}

type setMappingRequest struct {
	Purpose   string `json:"purpose" validate:"required"`
	AccountID int64  `json:"account_id" validate:"required"`
}

func (h *Handler) setMapping(w http.ResponseWriter, r *http.Request) {
	var req setMappingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body is not valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.SetMapping(r.Context(), req.Purpose, req.AccountID, shared.ActorFromContext(r.Context())); err != nil {
		h.logger.Error("set mapping", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"purpose": req.Purpose, "account_id": req.AccountID})
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
