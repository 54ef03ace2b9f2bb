package crawler

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"sjsage522/adwatcher/logger"
	"sjsage522/adwatcher/pkg/errors"

	"github.com/cenkalti/backoff/v4"
)

// retryPolicy retries an operation with exponential back-off
type retryPolicy struct {
	attempts  int
	baseDelay time.Duration
	log       *logger.Logger
}

// backOff doubles the delay after every failed attempt, without jitter
func (r retryPolicy) backOff(ctx context.Context, attempts int) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.baseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = r.baseDelay << (attempts - 1)
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// do runs fn until it succeeds or attempts run out. A CrawlerError that is
// not retryable and a done ctx end it early.
func (r retryPolicy) do(ctx context.Context, op string, fn func(context.Context) error) error {
	attempts := r.attempts
	if attempts < 1 {
		attempts = 1
	}

	tries := 0
	err := backoff.RetryNotify(func() error {
		tries++
		err := fn(ctx)
		var ce *errors.CrawlerError
		if stderrors.As(err, &ce) && !ce.IsRetryable() {
			return backoff.Permanent(err)
		}
		return err
	}, r.backOff(ctx, attempts), func(err error, next time.Duration) {
		r.log.Warn().
			Err(err).
			Int("attempt", tries).
			Int("max_attempts", attempts).
			Dur("retry_in", next).
			Msgf("%s failed", op)
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil || tries < attempts {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, attempts, err)
}
