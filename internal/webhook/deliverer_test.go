package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSign(t *testing.T) {
	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte(`{}`))
	assert.Equal(t, "sha256="+hex.EncodeToString(mac.Sum(nil)), Sign([]byte(`{}`), "secret"))
	assert.Equal(t, Sign([]byte("a"), "k"), Sign([]byte("a"), "k"))
	assert.NotEqual(t, Sign([]byte("a"), "k"), Sign([]byte("a"), "other"))
}

func TestDeliverer_Deliver(t *testing.T) {
	payload := []byte(`{"event":"merge_request.merged"}`)
	var (
		gotBody   []byte
		gotHeader http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("SELECT url, secret, is_active FROM webhooks").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"url", "secret", "is_active"}).AddRow(srv.URL, "s3cret", true))
	mock.ExpectExec("INSERT INTO webhook_deliveries").
		WithArgs(id, "merge_request.merged", payload, http.StatusNoContent, 2, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = NewDeliverer(mock, time.Second).Deliver(context.Background(), id, "merge_request.merged", payload, 2)
	require.NoError(t, err)

	assert.Equal(t, payload, gotBody)
	assert.Equal(t, "merge_request.merged", gotHeader.Get("X-Webhook-Event"))
	assert.Equal(t, id.String(), gotHeader.Get("X-Webhook-ID"))
	assert.Equal(t, Sign(payload, "s3cret"), gotHeader.Get("X-Webhook-Signature"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliverer_ErrorStatusIsRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("SELECT url, secret, is_active FROM webhooks").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"url", "secret", "is_active"}).AddRow(srv.URL, "s", true))
	mock.ExpectExec("INSERT INTO webhook_deliveries").
		WithArgs(id, "e", []byte(`{}`), http.StatusBadGateway, 1, (*time.Time)(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = NewDeliverer(mock, time.Second).Deliver(context.Background(), id, "e", []byte(`{}`), 1)
	assert.ErrorContains(t, err, "responded 502")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliverer_InactiveWebhookSkipped(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("SELECT url, secret, is_active FROM webhooks").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"url", "secret", "is_active"}).AddRow("http://unused", "s", false))

	err = NewDeliverer(mock, time.Second).Deliver(context.Background(), id, "e", []byte(`{}`), 1)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
