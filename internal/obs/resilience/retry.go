// Package resilience implements the generic retry and circuit-breaker
// helpers the host daemon wraps around peer dials and anti-entropy
// sync rounds.
package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
)

// Retry runs fn up to attempts times, sleeping between attempts on an
// exponential backoff schedule (jittered, capped at 60s) supplied by
// backoff.ExponentialBackOff.
func Retry[T any](ctx context.Context, attempts int, delay time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	if attempts <= 0 {
		return zero, nil
	}

	meter := otel.Meter("meshstore")
	attemptCounter, _ := meter.Int64Counter("meshstore_resilience_retry_attempts_total")
	successCounter, _ := meter.Int64Counter("meshstore_resilience_retry_success_total")
	failCounter, _ := meter.Int64Counter("meshstore_resilience_retry_fail_total")

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = delay
	bo.MaxInterval = 60 * time.Second
	bo.MaxElapsedTime = 0 // attempts bounds the loop, not elapsed time

	var lastErr error
	for i := 0; i < attempts; i++ {
		v, err := fn()
		attemptCounter.Add(ctx, 1)
		if err == nil {
			successCounter.Add(ctx, 1)
			return v, nil
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			failCounter.Add(ctx, 1)
			return zero, ctx.Err()
		case <-time.After(bo.NextBackOff()):
		}
	}
	failCounter.Add(ctx, 1)
	return zero, lastErr
}
