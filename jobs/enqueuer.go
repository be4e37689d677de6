package jobs

import (
	"context"

	"github.com/hibiken/asynq"

	"github.com/kasirpos/kasirpos/internal/pos"
)

// Enqueuer submits jobs to the queue. It satisfies the sale-commit engine's
// alert port so low-stock notifications leave the request path.
type Enqueuer struct {
	client *asynq.Client
}

// NewEnqueuer constructs an Enqueuer over a shared Asynq client.
func NewEnqueuer(redisOpts asynq.RedisClientOpt) *Enqueuer {
	return &Enqueuer{client: asynq.NewClient(redisOpts)}
}

// LowStock enqueues a low-stock alert task.
func (e *Enqueuer) LowStock(ctx context.Context, alert pos.LowStockAlert) error {
	task, err := NewLowStockAlertTask(LowStockPayload{
		ProductID: alert.ProductID,
		Name:      alert.Name,
		SKU:       alert.SKU,
		Stock:     alert.Stock,
		MinStock:  alert.MinStock,
	})
	if err != nil {
		return err
	}
	_, err = e.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault), asynq.MaxRetry(3))
	return err
}

// Close releases client resources.
func (e *Enqueuer) Close() error {
	return e.client.Close()
}
