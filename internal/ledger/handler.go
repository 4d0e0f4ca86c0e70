package ledger

import (
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

// Handler wires HTTP endpoints for the ledger module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the ledger handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/accounts", func(r chi.Router) {
		r.Get("/", h.listAccounts)
		r.Post("/", h.createAccount)
		r.Get("/{id}", h.getAccount)
		r.Get("/{id}/balance", h.accountBalance)
		r.Get("/{id}/path", h.accountPath)
		r.Delete("/{id}", h.deleteAccount)
	})
	r.Route("/journals", func(r chi.Router) {
		r.Get("/", h.listEntries)
		r.Post("/", h.createEntry)
		r.Get("/{id}", h.getEntry)
		r.Put("/{id}/lines", h.updateDraftLines)
		r.Delete("/{id}", h.deleteDraft)
		r.Post("/{id}/post", h.postEntry)
		r.Post("/{id}/reverse", h.reverseEntry)
	})
}

type createAccountRequest struct {
	Code            string  `json:"code" validate:"required"`
	Name            string  `json:"name" validate:"required"`
	Type            string  `json:"type" validate:"required,oneof=ASSET LIABILITY EQUITY REVENUE EXPENSE"`
	NormalBalance   string  `json:"normal_balance" validate:"omitempty,oneof=DEBIT CREDIT"`
	ParentID        *int64  `json:"parent_id"`
	OpeningBalance  float64 `json:"opening_balance"`
	IsSystemAccount bool    `json:"is_system_account"`
	AllowPosting    *bool   `json:"allow_posting"`
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body is not valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	allowPosting := true
	if req.AllowPosting != nil {
		allowPosting = *req.AllowPosting
	}
	account, err := h.service.CreateAccount(r.Context(), AccountInput{
		Code:            req.Code,
		Name:            req.Name,
		Type:            AccountType(req.Type),
		NormalBalance:   NormalBalance(req.NormalBalance),
		ParentID:        req.ParentID,
		OpeningBalance:  req.OpeningBalance,
		IsSystemAccount: req.IsSystemAccount,
		AllowPosting:    allowPosting,
	}, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("create account", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Identifier", "id must be numeric")
		return
	}
	account, err := h.service.GetAccount(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListAccounts(r.Context())
	if err != nil {
		h.logger.Error("list accounts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, accounts)
}

func (h *Handler) accountBalance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Identifier", "id must be numeric")
		return
	}
	var cutoff time.Time
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		cutoff, err = time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "as_of must be YYYY-MM-DD")
			return
		}
		cutoff = cutoff.Add(24*time.Hour - time.Nanosecond)
	}
	balance, err := h.service.BalanceAsOf(r.Context(), id, cutoff)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"account_id": id, "balance": balance})
}

func (h *Handler) accountPath(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Identifier", "id must be numeric")
		return
	}
	code, err := h.service.FullCode(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	name, err := h.service.FullName(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"account_id": id, "full_code": code, "full_name": name})
}

func (h *Handler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Identifier", "id must be numeric")
		return
	}
	if err := h.service.DeleteAccount(r.Context(), id, shared.ActorFromContext(r.Context())); err != nil {
		h.logger.Error("delete account", slog.Any("error", err))
		if errors.Is(err, ErrSystemAccount) || errors.Is(err, ErrAccountInUse) {
			httpx.Problem(w, http.StatusConflict, "Account Protected", err.Error())
		} else {
			httpx.RespondError(w, err)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type entryLineRequest struct {
	AccountID int64   `json:"account_id" validate:"required"`
	Debit     float64 `json:"debit" validate:"gte=0"`
	Credit    float64 `json:"credit" validate:"gte=0"`
	Memo      string  `json:"memo"`
}

type createEntryRequest struct {
	Date        string             `json:"date" validate:"required"`
	Description string             `json:"description"`
	RefKind     string             `json:"reference_kind"`
	RefID       int64              `json:"reference_id"`
	RefNumber   string             `json:"reference_number"`
	Lines       []entryLineRequest `json:"lines" validate:"required,min=2,dive"`
}

func (h *Handler) createEntry(w http.ResponseWriter, r *http.Request) {
	var req createEntryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body is not valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "date must be YYYY-MM-DD")
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
	lines := make([]LineInput, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, LineInput{AccountID: line.AccountID, Debit: line.Debit, Credit: line.Credit, Memo: line.Memo})
	}
	entry, err := h.service.CreateEntry(r.Context(), EntryInput{
		Date:        date,
		Description: req.Description,
		Reference:   ref,
		CreatedBy:   shared.ActorFromContext(r.Context()),
		Lines:       lines,
	})
	if err != nil {
		h.logger.Error("create journal entry", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) getEntry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Identifier", "id must be numeric")
		return
	}
	entry, err := h.service.GetEntry(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) listEntries(w http.ResponseWriter, r *http.Request) {
	status := JournalStatus(r.URL.Query().Get("status"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.service.ListEntries(r.Context(), status, limit)
	if err != nil {
		h.logger.Error("list journal entries", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

type updateLinesRequest struct {
	Lines []entryLineRequest `json:"lines" validate:"required,min=2,dive"`
}

func (h *Handler) updateDraftLines(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Identifier", "id must be numeric")
		return
	}
	var req updateLinesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body is not valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	lines := make([]LineInput, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, LineInput{AccountID: line.AccountID, Debit: line.Debit, Credit: line.Credit, Memo: line.Memo})
	}
	entry, err := h.service.UpdateDraftLines(r.Context(), id, lines, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("update draft lines", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) deleteDraft(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Identifier", "id must be numeric")
		return
	}
	if err := h.service.DeleteDraft(r.Context(), id, shared.ActorFromContext(r.Context())); err != nil {
		h.logger.Error("delete draft entry", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) postEntry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Identifier", "id must be numeric")
		return
	}
	entry, err := h.service.Post(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("post journal entry", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

type reverseEntryRequest struct {
	Date        string `json:"date"`
	Description string `json:"description"`
}

func (h *Handler) reverseEntry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Identifier", "id must be numeric")
		return
	}
	var req reverseEntryRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body is not valid JSON")
			return
		}
	}
	input := ReverseInput{EntryID: id, ActorID: shared.ActorFromContext(r.Context()), Description: req.Description}
	if req.Date != "" {
		date, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "date must be YYYY-MM-DD")
			return
		}
		input.Date = &date
	}
	reversal, err := h.service.Reverse(r.Context(), input)
	if err != nil {
		h.logger.Error("reverse journal entry", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, reversal)
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
