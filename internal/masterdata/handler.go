package masterdata

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires HTTP endpoints for master data.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the masterdata handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers master data routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.listProducts)
		r.Post("/", h.createProduct)
		r.Get("/{id}", h.getProduct)
	})
	r.Route("/customers", func(r chi.Router) {
		r.Get("/", h.listCustomers)
		r.Post("/", h.createCustomer)
		r.Get("/{id}", h.getCustomer)
	})
	r.Route("/suppliers", func(r chi.Router) {
		r.Get("/", h.listSuppliers)
		r.Post("/", h.createSupplier)
		r.Get("/{id}", h.getSupplier)
	})
	r.Route("/warehouses", func(r chi.Router) {
		r.Get("/", h.listWarehouses)
		r.Post("/", h.createWarehouse)
	})
}

type createProductRequest struct {
	Name               string  `json:"name" validate:"required"`
	Description        string  `json:"description"`
	Unit               string  `json:"unit"`
	CostPrice          float64 `json:"cost_price" validate:"gte=0"`
	SellingPrice       float64 `json:"selling_price" validate:"gte=0"`
	IsTaxable          bool    `json:"is_taxable"`
	TaxRate            float64 `json:"tax_rate" validate:"gte=0"`
	TrackInventory     bool    `json:"track_inventory"`
	AllowNegativeStock bool    `json:"allow_negative_stock"`
	MinimumStock       float64 `json:"minimum_stock" validate:"gte=0"`
	MaximumStock       float64 `json:"maximum_stock" validate:"gte=0"`
	ReorderPoint       float64 `json:"reorder_point" validate:"gte=0"`
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body is not valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	product, err := h.service.CreateProduct(r.Context(), ProductInput{
		Name:               req.Name,
		Description:        req.Description,
		Unit:               req.Unit,
		CostPrice:          req.CostPrice,
		SellingPrice:       req.SellingPrice,
		IsTaxable:          req.IsTaxable,
		TaxRate:            req.TaxRate,
		TrackInventory:     req.TrackInventory,
		AllowNegativeStock: req.AllowNegativeStock,
		MinimumStock:       req.MinimumStock,
		MaximumStock:       req.MaximumStock,
		ReorderPoint:       req.ReorderPoint,
	}, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("create product", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, product)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Identifier", "id must be numeric")
		return
	}
	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	onlyLowStock := r.URL.Query().Get("low_stock") == "1"
	products, err := h.service.ListProducts(r.Context(), onlyLowStock)
	if err != nil {
		h.logger.Error("list products", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, products)
}

type createCustomerRequest struct {
	Name               string  `json:"name" validate:"required"`
	Email              string  `json:"email" validate:"omitempty,email"`
	Phone              string  `json:"phone"`
	TaxNumber          string  `json:"tax_number"`
	CreditLimit        float64 `json:"credit_limit" validate:"gte=0"`
	PaymentTermsDays   int     `json:"payment_terms_days" validate:"gte=0"`
	Currency           string  `json:"currency" validate:"omitempty,len=3"`
	DiscountPercentage float64 `json:"discount_percentage" validate:"gte=0,lte=100"`
}

func (h *Handler) createCustomer(w http.ResponseWriter, r *http.Request) {
	var req createCustomerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body is not valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	customer, err := h.service.CreateCustomer(r.Context(), CustomerInput{
		Name:               req.Name,
		Email:              req.Email,
		Phone:              req.Phone,
		TaxNumber:          req.TaxNumber,
		CreditLimit:        req.CreditLimit,
		PaymentTermsDays:   req.PaymentTermsDays,
		Currency:           req.Currency,
		DiscountPercentage: req.DiscountPercentage,
	}, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("create customer", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, customer)
}

func (h *Handler) getCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Identifier", "id must be numeric")
		return
	}
	customer, err := h.service.GetCustomer(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, customer)
}

func (h *Handler) listCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.service.ListCustomers(r.Context())
	if err != nil {
		h.logger.Error("list customers", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, customers)
}

type createSupplierRequest struct {
	Name             string `json:"name" validate:"required"`
	Email            string `json:"email" validate:"omitempty,email"`
	Phone            string `json:"phone"`
	TaxNumber        string `json:"tax_number"`
	PaymentTermsDays int    `json:"payment_terms_days" validate:"gte=0"`
	Currency         string `json:"currency" validate:"omitempty,len=3"`
}

func (h *Handler) createSupplier(w http.ResponseWriter, r *http.Request) {
	var req createSupplierRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body is not valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	supplier, err := h.service.CreateSupplier(r.Context(), SupplierInput{
		Name:             req.Name,
		Email:            req.Email,
		Phone:            req.Phone,
		TaxNumber:        req.TaxNumber,
		PaymentTermsDays: req.PaymentTermsDays,
		Currency:         req.Currency,
	}, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("create supplier", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, supplier)
}

func (h *Handler) getSupplier(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Identifier", "id must be numeric")
		return
	}
	supplier, err := h.service.GetSupplier(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, supplier)
}

func (h *Handler) listSuppliers(w http.ResponseWriter, r *http.Request) {
	suppliers, err := h.service.ListSuppliers(r.Context())
	if err != nil {
		h.logger.Error("list suppliers", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, suppliers)
}

type createWarehouseRequest struct {
	Code      string `json:"code" validate:"required"`
	Name      string `json:"name" validate:"required"`
	Address   string `json:"address"`
	IsDefault bool   `json:"is_default"`
}

func (h *Handler) createWarehouse(w http.ResponseWriter, r *http.Request) {
	var req createWarehouseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body is not valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	warehouse, err := h.service.CreateWarehouse(r.Context(), WarehouseInput{
		Code:      req.Code,
		Name:      req.Name,
		Address:   req.Address,
		IsDefault: req.IsDefault,
	}, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("create warehouse", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, warehouse)
}

func (h *Handler) listWarehouses(w http.ResponseWriter, r *http.Request) {
	warehouses, err := h.service.ListWarehouses(r.Context())
	if err != nil {
		h.logger.Error("list warehouses", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, warehouses)
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
