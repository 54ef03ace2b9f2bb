package crawler

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"sjsage522/adwatcher/logger"
	"sjsage522/adwatcher/pkg/errors"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy(t *testing.T) {
	policy := retryPolicy{attempts: 3, baseDelay: time.Millisecond, log: logger.Nop()}

	t.Run("succeeds after failures", func(t *testing.T) {
		calls := 0
		err := policy.do(context.Background(), "save", func(context.Context) error {
			calls++
			if calls < 3 {
				return stderrors.New("locked")
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after all attempts", func(t *testing.T) {
		calls := 0
		cause := stderrors.New("disk full")
		err := policy.do(context.Background(), "save", func(context.Context) error {
			calls++
			return cause
		})
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on a permanent error", func(t *testing.T) {
		calls := 0
		err := policy.do(context.Background(), "save", func(context.Context) error {
			calls++
			return errors.NewValidation("www.olx.ua", "bad summary")
		})
		assert.Error(t, err)
		assert.Equal(t, errors.ErrorTypeValidation, errors.TypeOf(err))
		assert.Equal(t, 1, calls)
	})

	t.Run("stops when the context is done", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := retryPolicy{attempts: 5, baseDelay: time.Hour, log: logger.Nop()}.do(ctx, "save", func(context.Context) error {
			calls++
			cancel()
			return stderrors.New("timeout")
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}
