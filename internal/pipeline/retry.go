package pipeline

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/prepwise/interview-engine/internal/adapter/observability"
)

// retryWithBackoff runs op up to maxAttempts times with exponential waits
// (initial, 2*initial, 4*initial, ...) and no jitter. It stops early when
// ctx expires or op returns a backoff.Permanent error.
func retryWithBackoff(ctx context.Context, stage string, maxAttempts int, initial time.Duration, op func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = initial
	expo.Multiplier = 2
	expo.RandomizationFactor = 0
	expo.MaxInterval = 32 * initial
	expo.MaxElapsedTime = 0
	expo.Reset()

	attempt := 0
	wrapped := func() error {
		attempt++
		err := op()
		if err != nil && attempt < maxAttempts {
			observability.RecordRetry(stage)
		}
		return err
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(maxAttempts-1)), ctx)
	return backoff.Retry(wrapped, bo)
}
