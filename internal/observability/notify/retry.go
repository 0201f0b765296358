package notify

import (
	"context"
	"time"
)

// BackoffStep is the linear backoff unit between delivery attempts.
const BackoffStep = 200 * time.Millisecond

// Retry runs send up to retryLimit+1 times with linear backoff and returns the last error.
func Retry(ctx context.Context, retryLimit int, send func(context.Context) error) error {
	if retryLimit < 0 {
		retryLimit = 0
	}
	attempts := retryLimit + 1

	var lastErr error
	for attempt := range attempts {
		err := send(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt == attempts-1 {
			break
		}

		timer := time.NewTimer(time.Duration(attempt+1) * BackoffStep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}
