package webhook

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/promptlab/internal/database"
	"github.com/nikhilbhutani/promptlab/internal/models"
	"github.com/nikhilbhutani/promptlab/internal/queue"
)

// Events lists what a webhook may subscribe to.
var Events = []string{
	models.EventMergeRequestOpened,
	models.EventMergeRequestMerged,
	models.EventMergeRequestRejected,
}

// Enqueuer hands deliveries to the background worker.
type Enqueuer interface {
	EnqueueWebhookDeliver(ctx context.Context, payload queue.WebhookDeliverPayload) error
}

type Service struct {
	db       database.Querier
	enqueuer Enqueuer
}

func NewService(db database.Querier, enqueuer Enqueuer) *Service {
	return &Service{db: db, enqueuer: enqueuer}
}

type CreateRequest struct {
	PromptID *uuid.UUID `json:"prompt_id,omitempty"`
	URL      string     `json:"url"`
	Events   []string   `json:"events"`
}

func (r CreateRequest) validate() error {
	u, err := url.Parse(r.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: url must be an absolute http(s) URL", models.ErrValidation)
	}
	if len(r.Events) == 0 {
		return fmt.Errorf("%w: at least one event is required", models.ErrValidation)
	}
	for _, e := range r.Events {
		if !slices.Contains(Events, e) {
			return fmt.Errorf("%w: unknown event %q", models.ErrValidation, e)
		}
	}
	return nil
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Webhook, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	secret, err := generateSecret()
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	eventsJSON, err := json.Marshal(req.Events)
	if err != nil {
		return nil, fmt.Errorf("marshal events: %w", err)
	}

	var wh models.Webhook
	err = s.db.QueryRow(ctx,
		`INSERT INTO webhooks (prompt_id, url, events, secret, is_active)
		 VALUES ($1, $2, $3, $4, true)
		 RETURNING id, prompt_id, url, events, is_active, created_at`,
		req.PromptID, req.URL, eventsJSON, secret,
	).Scan(&wh.ID, &wh.PromptID, &wh.URL, &wh.Events, &wh.IsActive, &wh.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert webhook: %w", err)
	}

	// Return secret only on creation
	wh.Secret = secret

	return &wh, nil
}

// List returns the webhooks of one prompt, or the global ones when promptID is nil.
func (s *Service) List(ctx context.Context, promptID *uuid.UUID) ([]models.Webhook, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, prompt_id, url, events, is_active, created_at
		 FROM webhooks WHERE prompt_id IS NOT DISTINCT FROM $1 ORDER BY created_at DESC`,
		promptID,
	)
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	defer rows.Close()

	webhooks := []models.Webhook{}
	for rows.Next() {
		var wh models.Webhook
		if err := rows.Scan(&wh.ID, &wh.PromptID, &wh.URL, &wh.Events, &wh.IsActive, &wh.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}
		webhooks = append(webhooks, wh)
	}
	return webhooks, rows.Err()
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, "DELETE FROM webhooks WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: webhook %s", models.ErrNotFound, id)
	}
	return nil
}

// Envelope is the JSON body every delivery carries.
type Envelope struct {
	Event     string    `json:"event"`
	PromptID  uuid.UUID `json:"prompt_id"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Dispatch queues an event for every active webhook of the prompt and every global
// webhook subscribed to it.
func (s *Service) Dispatch(ctx context.Context, promptID uuid.UUID, event string, payload any) error {
	rows, err := s.db.Query(ctx,
		`SELECT id FROM webhooks
		 WHERE is_active = true AND (prompt_id IS NULL OR prompt_id = $1) AND events @> $2::jsonb`,
		promptID, fmt.Sprintf(`[%q]`, event),
	)
	if err != nil {
		return fmt.Errorf("find matching webhooks: %w", err)
	}

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan webhook: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("find matching webhooks: %w", err)
	}
	if len(ids) == 0 || s.enqueuer == nil {
		return nil
	}

	body, err := json.Marshal(Envelope{Event: event, PromptID: promptID, Timestamp: time.Now().UTC(), Data: payload})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	var failed int
	for _, id := range ids {
		err := s.enqueuer.EnqueueWebhookDeliver(ctx, queue.WebhookDeliverPayload{
			WebhookID: id.String(),
			Event:     event,
			Payload:   body,
		})
		if err != nil {
			failed++
			slog.WarnContext(ctx, "webhook enqueue failed", "webhook_id", id, "event", event, "error", err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("enqueue webhook deliveries: %d of %d failed", failed, len(ids))
	}
	return nil
}

func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "whsec_" + hex.EncodeToString(b), nil
}
