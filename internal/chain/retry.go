package chain

import (
	"context"
	"time"
)

// withRetry calls fn up to maxAttempts times, sleeping delay between attempts.
// Only errors classified by IsTransient are retried; onRetry, if set, sees each one.
func withRetry(
	ctx context.Context,
	maxAttempts int,
	delay time.Duration,
	fn func(context.Context) error,
	onRetry func(attempt int, err error),
) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt >= maxAttempts || !IsTransient(err) {
			return err
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}
		if delay <= 0 {
			continue
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
