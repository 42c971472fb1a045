package action

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxWebhookResponse bounds how much of a webhook reply is read.
const maxWebhookResponse = 1 << 20

// StatusError is returned when a webhook answers with a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook %s returned status %d", e.URL, e.StatusCode)
}

// WebhookHandler forwards actions to an HTTP endpoint.
//
// Each call POSTs a JSON document:
//
//	{"action": "generate_invoice", "slots": {...}, "idempotency_key": "..."}
//
// with the same key in the Idempotency-Key header. The key comes from
// WithIdempotencyKey when the context carries one. A 2xx reply is a success;
// a JSON object body becomes the result payload. Any other status is a
// *StatusError.
//
// WebhookHandler also implements InvoiceSink, so generated invoices can be
// delivered to the same kind of endpoint.
type WebhookHandler struct {
	url     string
	client  *http.Client
	headers map[string]string
}

// WebhookOption configures a WebhookHandler.
type WebhookOption func(*WebhookHandler)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) WebhookOption {
	return func(h *WebhookHandler) {
		h.client = c
	}
}

// WithHeader adds a header to every request, for example an API key.
func WithHeader(key, value string) WebhookOption {
	return func(h *WebhookHandler) {
		h.headers[key] = value
	}
}

// NewWebhookHandler returns a handler posting to url.
func NewWebhookHandler(url string, opts ...WebhookOption) *WebhookHandler {
	h := &WebhookHandler{
		url:     url,
		client:  &http.Client{Timeout: 30 * time.Second},
		headers: make(map[string]string),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type webhookRequest struct {
	Action         string `json:"action"`
	Slots          any    `json:"slots"`
	IdempotencyKey string `json:"idempotency_key"`
}

// Execute implements Handler.
func (h *WebhookHandler) Execute(ctx context.Context, name string, slots map[string]any) (Result, error) {
	payload, err := h.post(ctx, webhookRequest{
		Action:         name,
		Slots:          slots,
		IdempotencyKey: idempotencyKey(ctx),
	})
	if err != nil {
		return Result{}, err
	}
	return Result{
		Action:  name,
		Success: true,
		Detail:  "The request has been submitted.",
		Payload: payload,
	}, nil
}

// Deliver implements InvoiceSink.
func (h *WebhookHandler) Deliver(ctx context.Context, inv Invoice) error {
	_, err := h.post(ctx, webhookRequest{
		Action:         GenerateInvoice,
		Slots:          inv,
		IdempotencyKey: inv.Number,
	})
	return err
}

func (h *WebhookHandler) post(ctx context.Context, body webhookRequest) (map[string]any, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode webhook body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", body.IdempotencyKey)
	for key, value := range h.headers {
		req.Header.Set(key, value)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxWebhookResponse))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: h.url, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var payload map[string]any
	if len(bytes.TrimSpace(respBody)) > 0 {
		// Non-object replies are accepted and ignored.
		_ = json.Unmarshal(respBody, &payload)
	}
	return payload, nil
}
