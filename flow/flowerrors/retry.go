package flowerrors

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/goldentooth/flow-engine/flow"
	"github.com/goldentooth/flow-engine/flow/core"
)

// Backoff returns how long to wait after the given failed attempt (1-based)
// before the next one.
type Backoff func(attempt int) time.Duration

// NoBackoff retries immediately.
func NoBackoff() Backoff {
	return func(int) time.Duration { return 0 }
}

// ConstantBackoff always waits delay.
func ConstantBackoff(delay time.Duration) Backoff {
	return func(int) time.Duration { return delay }
}

// LinearBackoff waits delay after the first failure, 2*delay after the
// second, and so on.
func LinearBackoff(delay time.Duration) Backoff {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * delay
	}
}

// ExponentialBackoff doubles the wait after every failure, starting at
// initial. A positive maxDelay caps the wait.
func ExponentialBackoff(initial, maxDelay time.Duration) Backoff {
	return func(attempt int) time.Duration {
		delay := time.Duration(float64(initial) * math.Pow(2, float64(attempt-1)))
		if maxDelay > 0 && (delay > maxDelay || delay < 0) {
			return maxDelay
		}
		return delay
	}
}

type retryConfig struct {
	MaxAttempts int `validate:"gte=1"`
}

// Retry runs inner on every item on its own, retrying a failed run until it
// succeeds or maxAttempts runs have failed. Only the outputs of the
// successful run are emitted. Exhaustion ends the stream with an
// ExecutionError wrapping the last failure. A nil backoff retries
// immediately.
//
// Retry panics with a ConfigurationError if maxAttempts < 1.
func Retry[IN, OUT any](maxAttempts int, backoff Backoff, inner flow.Flow[IN, OUT]) flow.Flow[IN, OUT] {
	return RetryWhen(maxAttempts, backoff, nil, inner)
}

// RetryWhen is Retry with a predicate deciding whether a failure is worth
// another attempt. A nil shouldRetry retries every failure.
func RetryWhen[IN, OUT any](maxAttempts int, backoff Backoff, shouldRetry func(err error, attempt int) bool, inner flow.Flow[IN, OUT]) flow.Flow[IN, OUT] {
	core.MustValidate("retry", retryConfig{MaxAttempts: maxAttempts})
	if backoff == nil {
		backoff = NoBackoff()
	}
	name := fmt.Sprintf("retry(%d, %s)", maxAttempts, inner.Name())

	return perItem(name, func(ctx context.Context, v IN) ([]OUT, error) {
		var lastErr error
		for n := 1; n <= maxAttempts; n++ {
			outs, err := attempt(ctx, inner, v)
			if err == nil {
				return outs, nil
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			if n == maxAttempts || (shouldRetry != nil && !shouldRetry(err, n)) {
				return nil, &core.ExecutionError{Stage: name, Err: fmt.Errorf("failed after %d attempts: %w", n, lastErr)}
			}
			if !sleep(ctx, backoff(n)) {
				return nil, ctx.Err()
			}
		}
		return nil, lastErr
	})
}
