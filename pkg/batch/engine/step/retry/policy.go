// Package retry bounds the re-execution of failed reads and chunk writes.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	config "github.com/tigerroll/surfin-flow/pkg/batch/core/config"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
)

// Default policy values.
const (
	DefaultMaxAttempts     = 3
	DefaultInitialInterval = 100 * time.Millisecond
	DefaultMaxInterval     = 2 * time.Second
	DefaultMultiplier      = 2.0
)

// Policy defines retry logic.
// It determines whether an error is retryable and how long to wait between attempts.
type Policy struct {
	// MaxAttempts is the total number of attempts, the first one included.
	// 1 disables retrying.
	MaxAttempts int
	// InitialInterval is the wait before the second attempt.
	InitialInterval time.Duration
	// MaxInterval caps the exponential growth of the wait.
	MaxInterval time.Duration
	// Multiplier is applied to the wait after every attempt.
	Multiplier float64
	// RetryableExceptions lists error type names (see exception.IsErrorOfType) that are
	// retried in addition to BatchErrors flagged retryable.
	RetryableExceptions []string
}

// DefaultPolicy returns the default bounded exponential policy.
// Returns: 3 attempts, 100ms initial wait doubling up to 2s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     DefaultMaxAttempts,
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
		Multiplier:      DefaultMultiplier,
	}
}

// NoRetry returns a policy that runs an operation exactly once.
func NoRetry() Policy {
	return Policy{MaxAttempts: 1}
}

// FromConfig builds a Policy from the retry configuration section. Zero values fall
// back to the defaults.
// cfg: The retry configuration.
// Returns: A Policy with every field set.
func FromConfig(cfg config.RetryConfig) Policy {
	p := Policy{
		MaxAttempts:         cfg.MaxAttempts,
		InitialInterval:     cfg.InitialInterval,
		MaxInterval:         cfg.MaxInterval,
		Multiplier:          cfg.Multiplier,
		RetryableExceptions: cfg.RetryableExceptions,
	}
	return p.withDefaults()
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = DefaultInitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = DefaultMaxInterval
	}
	if p.Multiplier < 1 {
		p.Multiplier = DefaultMultiplier
	}
	return p
}

// ShouldRetry determines if an error is retryable.
// The determination is based on the IsRetryable flag of BatchError, or by matching
// against the configured list of retryable exceptions.
// err: The error to evaluate.
// Returns: true if the error is retryable, false otherwise.
func (p Policy) ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if exception.IsRetryable(err) {
		return true
	}
	for _, typeName := range p.RetryableExceptions {
		if exception.IsErrorOfType(err, typeName) {
			return true
		}
	}
	return false
}

func (p Policy) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = p.Multiplier
	return b
}

// NotifyFunc is called before each retry with the number of the attempt that failed.
type NotifyFunc func(attempt int, err error, wait time.Duration)

// Do runs op until it succeeds, fails with a non-retryable error, exhausts MaxAttempts
// or ctx is done. attempt starts at 1.
// ctx: The context bounding all attempts and waits.
// op: The operation to run.
// notify: Called before every retry; may be nil.
// Returns: op's result, or the last error.
func Do[T any](ctx context.Context, p Policy, op func(attempt int) (T, error), notify NotifyFunc) (T, error) {
	p = p.withDefaults()
	if p.MaxAttempts == 1 {
		return op(1)
	}

	attempt := 0
	operation := func() (T, error) {
		attempt++
		res, err := op(attempt)
		if err != nil && !p.ShouldRetry(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}
	res, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(p.newBackOff()),
		backoff.WithMaxTries(uint(p.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			if notify != nil {
				notify(attempt, err, wait)
			}
		}),
	)
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	return res, err
}
