package action

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"google.golang.org/api/googleapi"
)

// ErrInvalidRetryPolicy is returned by RetryPolicy.Validate.
var ErrInvalidRetryPolicy = errors.New("invalid retry policy")

// RetryPolicy defines automatic retries for transient action failures.
//
// Retrying an action can repeat its side effect. Attempts share an
// idempotency key so endpoints that honour it deduplicate; handlers without
// one (Gmail, Calendar) should only retry failures known to precede the effect.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of attempts including the first.
	// A value of 1 means no retries.
	MaxAttempts int

	// BaseDelay is the base delay for exponential backoff between retries.
	BaseDelay time.Duration

	// MaxDelay caps the exponential delay. Zero means no cap.
	MaxDelay time.Duration

	// Retryable reports whether err may be retried. If nil, IsTransient is used.
	Retryable func(error) bool
}

// Validate checks the policy:
//   - MaxAttempts must be >= 1
//   - If both MaxDelay and BaseDelay are > 0, MaxDelay must be >= BaseDelay
func (rp *RetryPolicy) Validate() error {
	if rp.MaxAttempts < 1 {
		return ErrInvalidRetryPolicy
	}
	if rp.MaxDelay > 0 && rp.BaseDelay > 0 && rp.MaxDelay < rp.BaseDelay {
		return ErrInvalidRetryPolicy
	}
	return nil
}

// IsTransient reports whether err is a throttling or server-side failure:
// HTTP 429 and 5xx from webhooks or Google APIs, and network timeouts.
func IsTransient(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return transientStatus(statusErr.StatusCode)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return transientStatus(apiErr.Code)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

func transientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// Retrying wraps h so that transient failures are retried under policy.
type Retrying struct {
	next   Handler
	policy RetryPolicy
}

// NewRetrying returns h wrapped with policy.
func NewRetrying(h Handler, policy RetryPolicy) (*Retrying, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if policy.Retryable == nil {
		policy.Retryable = IsTransient
	}
	return &Retrying{next: h, policy: policy}, nil
}

// Execute implements Handler. All attempts share one idempotency key: the
// one already in ctx, or a new one.
func (r *Retrying) Execute(ctx context.Context, name string, slots map[string]any) (Result, error) {
	if _, ok := IdempotencyKey(ctx); !ok {
		ctx = WithIdempotencyKey(ctx, uuid.NewString())
	}

	var lastErr error
	for attempt := 0; attempt < r.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := computeBackoff(attempt-1, r.policy.BaseDelay, r.policy.MaxDelay)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return Result{}, ctx.Err()
			case <-timer.C:
			}
		}

		res, err := r.next.Execute(ctx, name, slots)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !r.policy.Retryable(err) {
			return Result{}, err
		}
	}
	return Result{}, fmt.Errorf("%s failed after %d attempts: %w", name, r.policy.MaxAttempts, lastErr)
}

// computeBackoff returns min(base * 2^attempt, maxDelay) + jitter(0, base).
func computeBackoff(attempt int, base, maxDelay time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base * (1 << attempt)
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}
	return delay + time.Duration(rand.Int64N(int64(base))) // #nosec G404 -- jitter for retry timing, not security
}
