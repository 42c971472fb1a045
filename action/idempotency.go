package action

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

type idempotencyKeyCtx struct{}

// WithIdempotencyKey returns a context carrying key. Handlers that can
// deduplicate downstream (the webhook, invoice numbering) use it in place
// of a fresh key, so every attempt of one logical action presents the same
// identity. Retrying sets it before the first attempt.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKeyCtx{}, key)
}

// IdempotencyKey returns the key set by WithIdempotencyKey, if any.
func IdempotencyKey(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(idempotencyKeyCtx{}).(string)
	return key, ok && key != ""
}

// idempotencyKey returns the context key or a new random one.
func idempotencyKey(ctx context.Context) string {
	if key, ok := IdempotencyKey(ctx); ok {
		return key
	}
	return uuid.NewString()
}

// invoiceNumber derives the invoice number from the context key, so a
// retried invoice keeps its number. Without a key the number is random.
func invoiceNumber(ctx context.Context) string {
	id := uuid.New()
	if key, ok := IdempotencyKey(ctx); ok {
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(key))
	}
	return "INV-" + strings.ToUpper(id.String()[:8])
}
