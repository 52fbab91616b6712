package queue

import "encoding/json"

const (
	TypeWebhookDeliver = "webhook:deliver"
)

type WebhookDeliverPayload struct {
	WebhookID string          `json:"webhook_id"`
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
}
