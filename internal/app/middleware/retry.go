package middleware

import (
	"context"
	"time"

	"carchat/internal/app/commands"
)

// RetryPolicy decides which failures are worth another attempt.
type RetryPolicy struct {
	// Retryable reports whether err may succeed on a repeated call.
	Retryable func(error) bool
	// Backoff holds the waits between attempts; its length bounds the retries.
	Backoff []time.Duration
	// OnRetry is called before each wait, mainly for logs and metrics.
	OnRetry func(cmd commands.Command, attempt int, err error)
}

// Retry re-dispatches a command that failed with a retryable error. It must be the
// outermost middleware so every attempt runs in a fresh transaction.
func Retry(policy RetryPolicy) CommandMiddleware {
	if policy.Retryable == nil {
		panic("middleware: retry classifier required")
	}
	return func(next commands.Bus) commands.Bus {
		nextFn := wrapCommand(next)
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			attempt := 0
			for {
				res, err := nextFn(ctx, cmd)
				if err == nil || !policy.Retryable(err) || attempt >= len(policy.Backoff) {
					return res, err
				}
				if policy.OnRetry != nil {
					policy.OnRetry(cmd, attempt+1, err)
				}
				timer := time.NewTimer(policy.Backoff[attempt])
				select {
				case <-ctx.Done():
					timer.Stop()
					return nil, err
				case <-timer.C:
				}
				attempt++
			}
		})
	}
}
