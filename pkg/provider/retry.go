package provider

import (
	"context"
	"time"
)

const (
	// retryMaxAttempts is the total attempt budget per backend call,
	// including the first try.
	retryMaxAttempts = 3

	// retryBaseDelay is the backoff before the first retry; it doubles
	// per attempt up to retryMaxDelay.
	retryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay caps the backoff.
	retryMaxDelay = 5 * time.Second
)

// withRetry runs fn up to retryMaxAttempts times with exponential
// backoff, retrying only errors Retryable classifies as transient.
// The last error is returned on exhaustion. Context cancellation stops
// the loop immediately.
func withRetry(
	ctx context.Context,
	fn func(ctx context.Context) (*Result, error),
) (*Result, error) {
	var lastErr error

	delay := retryBaseDelay

	for attempt := 0; attempt < retryMaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		lastErr = err

		if ctx.Err() != nil || !Retryable(err) {
			return nil, lastErr
		}

		if attempt == retryMaxAttempts-1 {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()

			return nil, lastErr
		case <-timer.C:
		}

		delay *= 2
		if delay > retryMaxDelay {
			delay = retryMaxDelay
		}
	}

	return nil, lastErr
}
