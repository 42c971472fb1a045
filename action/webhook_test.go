package action

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookHandler(t *testing.T) {
	var got webhookRequest
	var key, token string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		key = r.Header.Get("Idempotency-Key")
		token = r.Header.Get("X-Api-Key")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ticket":"T-42"}`))
	}))
	defer srv.Close()

	h := NewWebhookHandler(srv.URL, WithHeader("X-Api-Key", "secret"), WithHTTPClient(srv.Client()))
	res, err := h.Execute(context.Background(), ScheduleMeeting, map[string]any{"title": "Sync"})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "T-42", res.Payload["ticket"])
	assert.Equal(t, ScheduleMeeting, got.Action)
	assert.Equal(t, key, got.IdempotencyKey)
	assert.NotEmpty(t, key)
	assert.Equal(t, "secret", token)
}

func TestWebhookHandler_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewWebhookHandler(srv.URL).Execute(context.Background(), SendEmail, nil)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.False(t, IsTransient(err))
}

func TestWebhookHandler_DeliverInvoice(t *testing.T) {
	var got map[string]any
	var key string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key = r.Header.Get("Idempotency-Key")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	h := NewInvoiceHandler(NewWebhookHandler(srv.URL))
	res, err := h.Execute(context.Background(), GenerateInvoice, invoiceSlots())
	require.NoError(t, err)
	assert.Equal(t, res.Payload["number"], key)
	assert.Equal(t, GenerateInvoice, got["action"])
}
