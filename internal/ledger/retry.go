package ledger

import (
	"context"
	"time"
)

// RetryPolicy bounds retries of transient gateway failures.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, Backoff: 250 * time.Millisecond, MaxBackoff: 5 * time.Second}
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.Backoff * time.Duration(1<<uint(attempt))
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	return d
}

// Retry runs fn until it succeeds, fails with a non-transient error, the
// retries are exhausted or ctx is done. The last error is returned.
func Retry(ctx context.Context, p RetryPolicy, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.delay(attempt - 1)):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil || !IsTransient(lastErr) {
			return lastErr
		}
	}
	return lastErr
}
