// Package retry wraps network-calling operations in bounded exponential backoff.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Policy bounds how an operation is retried. The operation is invoked at most
// MaxAttempts times; the wait before attempt n+1 is InitialDelay doubled n-1 times.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
}

// DefaultPolicy mirrors the documented configuration defaults.
var DefaultPolicy = Policy{
	MaxAttempts:  3,
	InitialDelay: time.Second,
}

// Do runs op under the policy, returning the first success or the last error
// once attempts are exhausted. Context cancellation aborts between attempts.
func Do[T any](ctx context.Context, policy Policy, logger zerolog.Logger, name string, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if policy.MaxAttempts < 1 {
		return zero, fmt.Errorf("retry policy for %s has no attempts", name)
	}

	delay := policy.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == policy.MaxAttempts {
			break
		}

		logger.Warn().
			Err(err).
			Str("op", name).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("operation failed, backing off")

		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("%s aborted: %w", name, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}

	return zero, fmt.Errorf("%s failed after %d attempts: %w", name, policy.MaxAttempts, lastErr)
}
