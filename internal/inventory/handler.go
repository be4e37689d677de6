package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/kasirpos/kasirpos/internal/platform/httpx"
	"github.com/kasirpos/kasirpos/internal/shared"
)

// Handler wires HTTP endpoints for the stock ledger.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers ledger routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/inventory/adjustments", h.postAdjustment)
	r.Get("/inventory/ledger", h.listLedger)
	r.Get("/inventory/reconcile/{productID}", h.reconcile)
}

type adjustmentRequest struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Delta     int    `json:"delta" validate:"required"`
	Note      string `json:"note" validate:"max=500"`
}

func (h *Handler) postAdjustment(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}

	entry, err := h.service.PostAdjustment(r.Context(), AdjustmentInput{
		ProductID:  req.ProductID,
		Delta:      req.Delta,
		Note:       req.Note,
		OperatorID: shared.OperatorFromContext(r.Context()),
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrProductNotFound):
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
		case errors.Is(err, ErrNegativeStock), errors.Is(err, ErrInvalidQuantity):
			httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		default:
			h.logger.Error("post adjustment", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		}
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) listLedger(w http.ResponseWriter, r *http.Request) {
	productID, _ := strconv.ParseInt(r.URL.Query().Get("product_id"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	filter := LedgerFilter{
		ProductID: productID,
		Type:      MovementType(r.URL.Query().Get("type")),
		Limit:     limit,
	}
	if v := r.URL.Query().Get("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.From = t
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.To = t
		}
	}

	entries, err := h.service.ListEntries(r.Context(), filter)
	if err != nil {
		h.logger.Error("list ledger", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil || productID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid product id")
		return
	}

	rec, err := h.service.Reconcile(r.Context(), productID)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		h.logger.Error("reconcile", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}
