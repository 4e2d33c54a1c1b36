package fetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for retry operations.
var (
	upstreamRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "srp_upstream_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	upstreamRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "srp_upstream_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 4, 8, 16},
	}, []string{"error_class"})

	upstreamRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "srp_upstream_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// DefaultInitialBackoff is the delay before the first retry. Each following
// retry doubles it.
const DefaultInitialBackoff = 500 * time.Millisecond

// waitFunc blocks for d or until ctx is done.
type waitFunc func(ctx context.Context, d time.Duration) error

// sleep is the production waitFunc.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// backoffFor returns the delay after the given failed attempt (1-based).
func backoffFor(initial time.Duration, attempt int) time.Duration {
	return initial << (attempt - 1)
}

// retryWithBackoff runs fn up to maxAttempts times. fn reports the classification of
// its failure; only retryable classes are attempted again. Cancellation of ctx stops
// the loop immediately.
func retryWithBackoff(
	ctx context.Context,
	maxAttempts int,
	initial time.Duration,
	wait waitFunc,
	fn func(attempt int) (ErrorClass, error),
) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	var lastClass ErrorClass
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		class, err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr, lastClass = err, class

		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		}
		if !shouldRetry(class) {
			return err
		}
		if attempt == maxAttempts {
			break
		}

		backoff := backoffFor(initial, attempt)
		upstreamRetriesTotal.WithLabelValues(string(class)).Inc()
		upstreamRetryBackoffSeconds.WithLabelValues(string(class)).Observe(backoff.Seconds())

		if err := wait(ctx, backoff); err != nil {
			return fmt.Errorf("%w: %w", ErrCancelled, err)
		}
	}

	upstreamRetryExhaustedTotal.WithLabelValues(string(lastClass)).Inc()
	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, maxAttempts, lastErr)
}
