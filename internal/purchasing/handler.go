package purchasing

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/kasirpos/kasirpos/internal/platform/httpx"
	"github.com/kasirpos/kasirpos/internal/shared"
)

// Handler wires the purchasing HTTP surface.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers purchasing routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/purchases", h.create)
	r.Get("/purchases/pending", h.listPending)
	r.Get("/purchases/{purchaseID}", h.get)
	r.Post("/purchases/{purchaseID}/receive", h.receive)
}

type purchaseItemRequest struct {
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	Qty       int     `json:"qty" validate:"required,gte=1"`
	Cost      float64 `json:"cost" validate:"gte=0"`
}

type createPurchaseRequest struct {
	SupplierID   int64                 `json:"supplier_id" validate:"required,gt=0"`
	PurchaseDate string                `json:"purchase_date" validate:"omitempty,datetime=2006-01-02"`
	Note         string                `json:"note" validate:"max=500"`
	Items        []purchaseItemRequest `json:"items" validate:"required,min=1,dive"`
}

type purchaseItemResponse struct {
	ProductID int64  `json:"product_id"`
	Qty       int    `json:"qty"`
	Cost      string `json:"cost"`
	Subtotal  string `json:"subtotal"`
}

type purchaseResponse struct {
	ID           int64                  `json:"id"`
	Invoice      string                 `json:"invoice"`
	SupplierID   int64                  `json:"supplier_id"`
	OperatorID   int64                  `json:"operator_id"`
	PurchaseDate string                 `json:"purchase_date"`
	Total        string                 `json:"total"`
	Status       string                 `json:"status"`
	Note         string                 `json:"note,omitempty"`
	ReceivedAt   string                 `json:"received_at,omitempty"`
	Items        []purchaseItemResponse `json:"items"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createPurchaseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}

	input := CreateInput{
		SupplierID: req.SupplierID,
		OperatorID: shared.OperatorFromContext(r.Context()),
		Note:       req.Note,
	}
	if req.PurchaseDate != "" {
		day, err := time.Parse("2006-01-02", req.PurchaseDate)
		if err != nil {
			httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "invalid purchase_date")
			return
		}
		input.PurchaseDate = day
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, CreateItemInput{
			ProductID: item.ProductID,
			Qty:       item.Qty,
			Cost:      decimal.NewFromFloat(item.Cost),
		})
	}

	purchase, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"message": "purchase order created",
		"data":    toPurchaseResponse(purchase),
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	purchaseID, err := strconv.ParseInt(chi.URLParam(r, "purchaseID"), 10, 64)
	if err != nil || purchaseID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid purchase id")
		return
	}
	purchase, err := h.service.Get(r.Context(), purchaseID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPurchaseResponse(purchase))
}

func (h *Handler) listPending(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	purchases, err := h.service.ListPending(r.Context(), limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]purchaseResponse, 0, len(purchases))
	for i := range purchases {
		out = append(out, toPurchaseResponse(&purchases[i]))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	purchaseID, err := strconv.ParseInt(chi.URLParam(r, "purchaseID"), 10, 64)
	if err != nil || purchaseID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid purchase id")
		return
	}
	purchase, err := h.service.Receive(r.Context(), purchaseID, shared.OperatorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"message": "purchase received",
		"data":    toPurchaseResponse(purchase),
	})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrNotPending):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrInvalidInput):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	default:
		h.logger.Error("purchasing request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func toPurchaseResponse(p *Purchase) purchaseResponse {
	resp := purchaseResponse{
		ID:           p.ID,
		Invoice:      p.Invoice,
		SupplierID:   p.SupplierID,
		OperatorID:   p.OperatorID,
		PurchaseDate: p.PurchaseDate.Format("2006-01-02"),
		Total:        p.Total.StringFixed(2),
		Status:       string(p.Status),
		Note:         p.Note,
	}
	if p.ReceivedAt != nil {
		resp.ReceivedAt = p.ReceivedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	for _, item := range p.Items {
		resp.Items = append(resp.Items, purchaseItemResponse{
			ProductID: item.ProductID,
			Qty:       item.Qty,
			Cost:      item.Cost.StringFixed(2),
			Subtotal:  item.Subtotal.StringFixed(2),
		})
	}
	return resp
}
