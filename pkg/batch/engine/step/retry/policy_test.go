package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/tigerroll/surfin-flow/pkg/batch/core/config"
	"github.com/tigerroll/surfin-flow/pkg/batch/engine/step/retry"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
)

func fast(attempts int, retryable ...string) retry.Policy {
	return retry.Policy{
		MaxAttempts:         attempts,
		InitialInterval:     time.Millisecond,
		MaxInterval:         time.Millisecond,
		Multiplier:          1,
		RetryableExceptions: retryable,
	}
}

func TestShouldRetry(t *testing.T) {
	p := fast(3, "connection reset")

	assert.False(t, p.ShouldRetry(nil))
	assert.True(t, p.ShouldRetry(exception.NewBatchError("writer", "deadlock", nil, false, true)))
	assert.False(t, p.ShouldRetry(exception.NewBatchError("writer", "bad sql", nil, false, false)))
	assert.True(t, p.ShouldRetry(errors.New("read tcp: connection reset by peer")))
	assert.False(t, p.ShouldRetry(errors.New("syntax error")))
}

func TestDo(t *testing.T) {
	transient := exception.NewBatchError("writer", "deadlock", nil, false, true)

	t.Run("succeeds after retries", func(t *testing.T) {
		var notified []int
		v, err := retry.Do(context.Background(), fast(3), func(attempt int) (int, error) {
			if attempt < 3 {
				return 0, transient
			}
			return attempt, nil
		}, func(attempt int, _ error, _ time.Duration) { notified = append(notified, attempt) })

		require.NoError(t, err)
		assert.Equal(t, 3, v)
		assert.Equal(t, []int{1, 2}, notified)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		_, err := retry.Do(context.Background(), fast(2), func(int) (int, error) {
			calls++
			return 0, transient
		}, nil)

		assert.Equal(t, 2, calls)
		assert.True(t, errors.Is(err, transient))
	})

	t.Run("permanent errors stop at once", func(t *testing.T) {
		calls := 0
		permanent := errors.New("constraint violation")
		_, err := retry.Do(context.Background(), fast(5), func(int) (int, error) {
			calls++
			return 0, permanent
		}, nil)

		assert.Equal(t, 1, calls)
		assert.Equal(t, permanent, err)
	})

	t.Run("no retry runs once", func(t *testing.T) {
		calls := 0
		_, err := retry.Do(context.Background(), retry.NoRetry(), func(int) (int, error) {
			calls++
			return 0, transient
		}, nil)

		assert.Equal(t, 1, calls)
		assert.Error(t, err)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		slow := retry.Policy{MaxAttempts: 5, InitialInterval: time.Hour, MaxInterval: time.Hour, Multiplier: 1}
		calls := 0
		_, err := retry.Do(ctx, slow, func(int) (int, error) {
			calls++
			cancel()
			return 0, transient
		}, nil)

		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})
}

func TestFromConfigDefaults(t *testing.T) {
	p := retry.FromConfig(config.RetryConfig{})
	assert.Equal(t, retry.DefaultPolicy(), p)

	p = retry.FromConfig(config.RetryConfig{MaxAttempts: 5, RetryableExceptions: []string{"sql.ErrConnDone"}})
	assert.Equal(t, 5, p.MaxAttempts)
	assert.Equal(t, retry.DefaultInitialInterval, p.InitialInterval)
	assert.Equal(t, []string{"sql.ErrConnDone"}, p.RetryableExceptions)
}
