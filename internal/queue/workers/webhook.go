package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/nikhilbhutani/promptlab/internal/queue"
)

type Deliverer interface {
	Deliver(ctx context.Context, webhookID uuid.UUID, event string, payload []byte, attempt int) error
}

type WebhookWorker struct {
	deliverer Deliverer
}

func NewWebhookWorker(d Deliverer) *WebhookWorker {
	return &WebhookWorker{deliverer: d}
}

func (w *WebhookWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.WebhookDeliverPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}

	webhookID, err := uuid.Parse(payload.WebhookID)
	if err != nil {
		return fmt.Errorf("parse webhook ID: %w: %w", err, asynq.SkipRetry)
	}

	attempt := 1
	if n, ok := asynq.GetRetryCount(ctx); ok {
		attempt = n + 1
	}

	slog.InfoContext(ctx, "delivering webhook", "webhook_id", webhookID, "event", payload.Event, "attempt", attempt)
	return w.deliverer.Deliver(ctx, webhookID, payload.Event, payload.Payload, attempt)
}
