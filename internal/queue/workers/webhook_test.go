package workers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/promptlab/internal/queue"
)

type recordingDeliverer struct {
	webhookID uuid.UUID
	event     string
	payload   []byte
	attempt   int
	err       error
}

func (d *recordingDeliverer) Deliver(_ context.Context, id uuid.UUID, event string, payload []byte, attempt int) error {
	d.webhookID, d.event, d.payload, d.attempt = id, event, payload, attempt
	return d.err
}

func TestWebhookWorker_ProcessTask(t *testing.T) {
	id := uuid.New()
	data, err := json.Marshal(queue.WebhookDeliverPayload{
		WebhookID: id.String(),
		Event:     "merge_request.merged",
		Payload:   json.RawMessage(`{"ok":true}`),
	})
	require.NoError(t, err)

	d := &recordingDeliverer{}
	err = NewWebhookWorker(d).ProcessTask(context.Background(), asynq.NewTask(queue.TypeWebhookDeliver, data))
	require.NoError(t, err)
	assert.Equal(t, id, d.webhookID)
	assert.Equal(t, "merge_request.merged", d.event)
	assert.JSONEq(t, `{"ok":true}`, string(d.payload))
	assert.Equal(t, 1, d.attempt)
}

func TestWebhookWorker_BadPayloadSkipsRetry(t *testing.T) {
	d := &recordingDeliverer{}
	err := NewWebhookWorker(d).ProcessTask(context.Background(), asynq.NewTask(queue.TypeWebhookDeliver, []byte(`{"webhook_id":"nope"}`)))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestWebhookWorker_DeliveryErrorIsReturned(t *testing.T) {
	data, _ := json.Marshal(queue.WebhookDeliverPayload{WebhookID: uuid.NewString(), Event: "e", Payload: json.RawMessage(`{}`)})
	d := &recordingDeliverer{err: assert.AnError}
	err := NewWebhookWorker(d).ProcessTask(context.Background(), asynq.NewTask(queue.TypeWebhookDeliver, data))
	assert.ErrorIs(t, err, assert.AnError)
}
