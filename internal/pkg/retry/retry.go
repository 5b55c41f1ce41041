package retry

import (
	"context"
	"time"

	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
)

// Do runs fn up to attempts times, doubling the delay between runs.
// Only rate-limited failures are retried; anything else returns
// immediately. Callers apply this at the provider-call boundary, never
// around orchestrator state transitions.
func Do(ctx context.Context, attempts int, baseDelay time.Duration, fn func(ctx context.Context) error) error {
	if attempts <= 0 {
		attempts = 1
	}
	delay := baseDelay
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !appErr.IsRateLimited(lastErr) {
			return lastErr
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return lastErr
}
