package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeLowStockAlert fires when a sale or adjustment leaves a product
	// at or below its minimum stock threshold.
	TaskTypeLowStockAlert = "pos:low_stock_alert"
)

// LowStockPayload carries the product snapshot taken at commit time.
type LowStockPayload struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	SKU       string `json:"sku"`
	Stock     int    `json:"stock"`
	MinStock  int    `json:"min_stock"`
}

// NewLowStockAlertTask constructs an Asynq task.
func NewLowStockAlertTask(payload LowStockPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeLowStockAlert, data), nil
}

// HandleLowStockAlertTask processes TaskTypeLowStockAlert tasks. It logs the
// alert for the back office; notification channels hang off this handler.
func HandleLowStockAlertTask(ctx context.Context, t *asynq.Task) error {
	var payload LowStockPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	slog.Default().Warn("low stock",
		slog.Int64("product_id", payload.ProductID),
		slog.String("sku", payload.SKU),
		slog.String("name", payload.Name),
		slog.Int("stock", payload.Stock),
		slog.Int("min_stock", payload.MinStock),
	)
	return nil
}
