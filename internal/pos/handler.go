package pos

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/kasirpos/kasirpos/internal/platform/httpx"
	"github.com/kasirpos/kasirpos/internal/shared"
)

// Handler wires the POS HTTP surface.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	printer  *message.Printer
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
		printer:  message.NewPrinter(language.Indonesian),
	}
}

// MountRoutes registers POS routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/pos/sales", h.commitSale)
	r.Get("/pos/sales/{saleID}", h.getSale)
	r.Post("/pos/sales/{saleID}/print", h.printReceipt)
	r.Post("/pos/customers", h.quickAddCustomer)
	r.Get("/pos/summary/today", h.todaySummary)
}

type saleLineRequest struct {
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	Qty       int     `json:"qty" validate:"required,gte=1"`
	Price     float64 `json:"price" validate:"gte=0"`
	Discount  float64 `json:"discount" validate:"gte=0"`
}

type commitSaleRequest struct {
	CustomerID       *int64            `json:"customer_id" validate:"omitempty,gt=0"`
	PaymentMethod    string            `json:"payment_method" validate:"required,oneof=cash debit credit qris transfer"`
	PaymentReference string            `json:"payment_reference" validate:"max=100"`
	Items            []saleLineRequest `json:"items" validate:"required,min=1,dive"`
	Discount         float64           `json:"discount" validate:"gte=0"`
	TaxRate          *float64          `json:"tax_rate" validate:"omitempty,gte=0,lte=100"`
	CashReceived     *float64          `json:"cash_received" validate:"omitempty,gte=0"`
	Note             string            `json:"note" validate:"max=500"`
}

type saleItemResponse struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	ProductSKU  string `json:"product_sku"`
	Qty         int    `json:"qty"`
	Price       string `json:"price"`
	Discount    string `json:"discount"`
	Subtotal    string `json:"subtotal"`
}

type saleResponse struct {
	ID               int64              `json:"id"`
	Invoice          string             `json:"invoice"`
	OperatorID       int64              `json:"operator_id"`
	CustomerID       *int64             `json:"customer_id,omitempty"`
	SaleDate         string             `json:"sale_date"`
	Subtotal         string             `json:"subtotal"`
	Tax              string             `json:"tax"`
	Discount         string             `json:"discount"`
	Total            string             `json:"total"`
	PaymentMethod    string             `json:"payment_method"`
	CashReceived     string             `json:"cash_received"`
	Change           string             `json:"change"`
	PaymentReference string             `json:"payment_reference,omitempty"`
	Status           string             `json:"status"`
	Note             string             `json:"note,omitempty"`
	PrintCount       int                `json:"print_count"`
	Items            []saleItemResponse `json:"items"`
}

func (h *Handler) commitSale(w http.ResponseWriter, r *http.Request) {
	var req commitSaleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}

	input := CommitSaleInput{
		OperatorID:       shared.OperatorFromContext(r.Context()),
		CustomerID:       req.CustomerID,
		Method:           PaymentMethod(req.PaymentMethod),
		PaymentReference: req.PaymentReference,
		Discount:         decimal.NewFromFloat(req.Discount),
		Note:             req.Note,
	}
	if req.TaxRate != nil {
		rate := decimal.NewFromFloat(*req.TaxRate)
		input.TaxRate = &rate
	}
	if req.CashReceived != nil {
		cash := decimal.NewFromFloat(*req.CashReceived)
		input.CashReceived = &cash
	}
	for _, item := range req.Items {
		input.Lines = append(input.Lines, CartLine{
			ProductID: item.ProductID,
			Qty:       item.Qty,
			Price:     decimal.NewFromFloat(item.Price),
			Discount:  decimal.NewFromFloat(item.Discount),
		})
	}

	sale, err := h.service.CommitSale(r.Context(), input)
	if err != nil {
		h.respondSaleError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"message": "sale created",
		"data":    toSaleResponse(sale),
	})
}

func (h *Handler) getSale(w http.ResponseWriter, r *http.Request) {
	saleID, err := strconv.ParseInt(chi.URLParam(r, "saleID"), 10, 64)
	if err != nil || saleID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid sale id")
		return
	}
	sale, err := h.service.GetSale(r.Context(), saleID)
	if err != nil {
		h.respondSaleError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toSaleResponse(sale))
}

func (h *Handler) printReceipt(w http.ResponseWriter, r *http.Request) {
	saleID, err := strconv.ParseInt(chi.URLParam(r, "saleID"), 10, 64)
	if err != nil || saleID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid sale id")
		return
	}
	sale, err := h.service.PrintReceipt(r.Context(), saleID)
	if err != nil {
		h.respondSaleError(w, err)
		return
	}

	total, _ := sale.Total.Float64()
	change, _ := sale.Change.Float64()
	httpx.JSON(w, http.StatusOK, map[string]any{
		"sale":             toSaleResponse(sale),
		"formatted_total":  h.printer.Sprintf("Rp %.2f", total),
		"formatted_change": h.printer.Sprintf("Rp %.2f", change),
	})
}

type quickCustomerRequest struct {
	Name  string `json:"name" validate:"required,max=255"`
	Phone string `json:"phone" validate:"max=15"`
}

func (h *Handler) quickAddCustomer(w http.ResponseWriter, r *http.Request) {
	var req quickCustomerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}

	customer, err := h.service.QuickAddCustomer(r.Context(), req.Name, req.Phone)
	if err != nil {
		h.respondSaleError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, customer)
}

func (h *Handler) todaySummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.TodaySummary(r.Context())
	if err != nil {
		h.respondSaleError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"transactions": summary.Transactions,
		"total_sales":  summary.TotalSales.StringFixed(2),
	})
}

// respondSaleError maps the engine's error taxonomy onto HTTP statuses.
func (h *Handler) respondSaleError(w http.ResponseWriter, err error) {
	var (
		validationErr *ValidationError
		notFoundErr   *NotFoundError
		stockErr      *InsufficientStockError
		paymentErr    *InsufficientPaymentError
	)
	switch {
	case errors.As(err, &validationErr):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", validationErr.Reason)
	case errors.As(err, &notFoundErr):
		httpx.Problem(w, http.StatusNotFound, "Not Found", notFoundErr.Error())
	case errors.As(err, &stockErr):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Stock", stockErr.Error())
	case errors.As(err, &paymentErr):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Payment", paymentErr.Error())
	case errors.Is(err, ErrConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", "transaction conflict, please try again")
	case errors.Is(err, ErrPhoneTaken):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrSaleNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		h.logger.Error("pos request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func toSaleResponse(sale *Sale) saleResponse {
	resp := saleResponse{
		ID:               sale.ID,
		Invoice:          sale.Invoice,
		OperatorID:       sale.OperatorID,
		CustomerID:       sale.CustomerID,
		SaleDate:         sale.SaleDate.Format("2006-01-02T15:04:05Z07:00"),
		Subtotal:         sale.Subtotal.StringFixed(2),
		Tax:              sale.Tax.StringFixed(2),
		Discount:         sale.Discount.StringFixed(2),
		Total:            sale.Total.StringFixed(2),
		PaymentMethod:    string(sale.PaymentMethod),
		CashReceived:     sale.CashReceived.StringFixed(2),
		Change:           sale.Change.StringFixed(2),
		PaymentReference: sale.PaymentReference,
		Status:           string(sale.Status),
		Note:             sale.Note,
		PrintCount:       sale.PrintCount,
	}
	for _, item := range sale.Items {
		resp.Items = append(resp.Items, saleItemResponse{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			ProductSKU:  item.ProductSKU,
			Qty:         item.Qty,
			Price:       item.Price.StringFixed(2),
			Discount:    item.Discount.StringFixed(2),
			Subtotal:    item.Subtotal.StringFixed(2),
		})
	}
	return resp
}
