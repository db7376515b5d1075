package gateway

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// Retry budget for a single gateway call: 3 attempts total, base delay
// doubling each time, capped.
const (
	retryAttempts = 3
	retryBase     = 500 * time.Millisecond
	retryCap      = 5 * time.Second
)

// withRetry runs fn under the gateway retry budget. Only transient
// failures are retried; business errors return immediately.
func withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithCappedDuration(retryCap, retry.NewExponential(retryBase))
	backoff = retry.WithMaxRetries(retryAttempts-1, backoff)

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if IsTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}
