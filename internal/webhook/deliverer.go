package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/promptlab/internal/database"
)

// Deliverer performs one signed HTTP delivery and records its outcome.
type Deliverer struct {
	db         database.Querier
	httpClient *http.Client
}

func NewDeliverer(db database.Querier, timeout time.Duration) *Deliverer {
	return &Deliverer{
		db: db,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Deliver posts payload to the webhook. A transport error or a 4xx/5xx response is
// returned so the queue retries; a deleted or inactive webhook is skipped.
func (d *Deliverer) Deliver(ctx context.Context, webhookID uuid.UUID, event string, payload []byte, attempt int) error {
	var (
		url, secret string
		active      bool
	)
	err := d.db.QueryRow(ctx,
		"SELECT url, secret, is_active FROM webhooks WHERE id = $1", webhookID,
	).Scan(&url, &secret, &active)
	if database.IsNoRows(err) || (err == nil && !active) {
		slog.InfoContext(ctx, "skipping delivery to missing or inactive webhook", "webhook_id", webhookID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load webhook: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		d.recordDelivery(ctx, webhookID, event, payload, 0, attempt)
		return fmt.Errorf("create webhook request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Webhook-Event", event)
	httpReq.Header.Set("X-Webhook-Signature", Sign(payload, secret))
	httpReq.Header.Set("X-Webhook-ID", webhookID.String())

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		slog.ErrorContext(ctx, "webhook delivery failed", "error", err, "webhook_id", webhookID)
		d.recordDelivery(ctx, webhookID, event, payload, 0, attempt)
		return fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()

	d.recordDelivery(ctx, webhookID, event, payload, resp.StatusCode, attempt)

	if resp.StatusCode >= 400 {
		slog.WarnContext(ctx, "webhook received non-success response", "status", resp.StatusCode, "webhook_id", webhookID)
		return fmt.Errorf("webhook %s responded %d", webhookID, resp.StatusCode)
	}
	return nil
}

func (d *Deliverer) recordDelivery(ctx context.Context, webhookID uuid.UUID, event string, payload []byte, status, attempt int) {
	var deliveredAt *time.Time
	if status > 0 && status < 400 {
		now := time.Now()
		deliveredAt = &now
	}

	_, err := d.db.Exec(ctx,
		`INSERT INTO webhook_deliveries (webhook_id, event, payload, response_status, attempts, delivered_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		webhookID, event, payload, status, attempt, deliveredAt,
	)
	if err != nil {
		slog.ErrorContext(ctx, "failed to record webhook delivery", "error", err)
	}
}

// Sign returns the X-Webhook-Signature value for payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return fmt.Sprintf("sha256=%s", hex.EncodeToString(mac.Sum(nil)))
}
