package pipeline

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/dgallion1/talkturns/internal/sink"
)

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	return sink.IsRetryable(err)
}

// Backoff returns a duration for attempt n (0-indexed) with jitter.
func Backoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * time.Second
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int64N(int64(base) / 2))
	return base + jitter
}

const MaxRetries = 3

// backoff is swapped out by tests.
var backoff = Backoff

// withRetry runs fn up to MaxRetries times while it fails with a retryable error.
func withRetry(ctx context.Context, log *slog.Logger, op string, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || !IsRetryable(err) || attempt == MaxRetries-1 {
			return err
		}
		log.Warn("retryable error", "op", op, "attempt", attempt, "error", err)
		select {
		case <-time.After(backoff(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
