// Package retry runs upstream calls with bounded exponential backoff.
package retry

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Config bounds how often and how slowly an operation is retried.
type Config struct {
	// MaxAttempts counts the first call. 1 disables retries.
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultConfig returns three attempts starting at 500ms.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	}
}

func (c Config) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	if c.InitialInterval > 0 {
		exp.InitialInterval = c.InitialInterval
	}
	if c.MaxInterval > 0 {
		exp.MaxInterval = c.MaxInterval
	}
	// attempts, not wall clock, bound the loop
	exp.MaxElapsedTime = 0

	attempts := c.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(attempts-1)), ctx)
}

// Do calls op until it succeeds, returns a Permanent error, the attempts are
// used up or ctx is done. The last error is returned.
func Do(ctx context.Context, cfg Config, op func(ctx context.Context) error) error {
	_, err := DoValue(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, cfg Config, op func(ctx context.Context) (T, error)) (T, error) {
	attempt := 0
	operation := func() (T, error) {
		attempt++
		if err := ctx.Err(); err != nil {
			var zero T
			return zero, backoff.Permanent(err)
		}
		return op(ctx)
	}

	notify := func(err error, wait time.Duration) {
		slog.Debug("retrying upstream call",
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
	}

	return backoff.RetryNotifyWithData(operation, cfg.backOff(ctx), notify)
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// IsRetryableStatus reports whether an HTTP status is worth retrying:
// 429 and every 5xx.
func IsRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
