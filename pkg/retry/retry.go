// Package retry runs an operation with exponential backoff, retrying only
// failures classified as transient.
package retry

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/agentstation/corroborate/pkg/constants"
	"github.com/agentstation/corroborate/pkg/errors"
)

// BackoffFunc returns how long to wait before retry number n (n starts at 0).
type BackoffFunc func(n int, base, max time.Duration) time.Duration

// Policy controls how Do retries.
type Policy struct {
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	Base        time.Duration `mapstructure:"base" yaml:"base"`
	Max         time.Duration `mapstructure:"max" yaml:"max"`
	// Jitter randomises each wait by up to this fraction. Zero keeps the
	// schedule exact.
	Jitter float64 `mapstructure:"jitter" yaml:"jitter,omitempty"`

	// Backoff replaces the doubling schedule.
	Backoff BackoffFunc `mapstructure:"-" yaml:"-" json:"-"`
	// Retryable defaults to errors.IsTransient.
	Retryable func(error) bool `mapstructure:"-" yaml:"-" json:"-"`
	// OnRetry is called before each wait.
	OnRetry func(attempt int, err error, wait time.Duration) `mapstructure:"-" yaml:"-" json:"-"`
}

// DefaultPolicy returns three attempts starting at one second, capped at thirty.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: constants.MaxRetries,
		Base:        constants.RetryBackoff,
		Max:         constants.MaxRetryBackoff,
	}
}

// Validate rejects unusable settings.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return errors.NewConfigError("retry", "max attempts must be at least 1", nil)
	}
	if p.Base < 0 || p.Max < 0 {
		return errors.NewConfigError("retry", "backoff durations must not be negative", nil)
	}
	if p.Max > 0 && p.Base > p.Max {
		return errors.NewConfigError("retry", "base backoff exceeds max backoff", nil)
	}
	if p.Jitter < 0 || p.Jitter >= 1 {
		return errors.NewConfigError("retry", "jitter must be within [0,1)", nil)
	}
	return nil
}

// schedule returns the backoff for one Do call: base doubling up to max,
// or the custom Backoff.
func (p Policy) schedule() backoff.BackOff {
	if p.Backoff != nil {
		return &funcBackOff{fn: p.Backoff, base: p.Base, max: p.Max}
	}
	max := p.Max
	if max <= 0 {
		max = time.Duration(math.MaxInt64)
	}
	return &backoff.ExponentialBackOff{
		InitialInterval:     p.Base,
		RandomizationFactor: p.Jitter,
		Multiplier:          2,
		MaxInterval:         max,
	}
}

// funcBackOff adapts a BackoffFunc to backoff.BackOff.
type funcBackOff struct {
	fn        BackoffFunc
	base, max time.Duration
	n         int
}

func (b *funcBackOff) NextBackOff() time.Duration {
	d := b.fn(b.n, b.base, b.max)
	b.n++
	return d
}

func (b *funcBackOff) Reset() { b.n = 0 }

// Do calls fn until it succeeds, returns a non-retryable error, the attempts
// are exhausted, or ctx is done. It returns the number of attempts made and
// the last error fn returned.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = errors.IsTransient
	}
	maxAttempts := max(p.MaxAttempts, 1)

	var attempts int
	var last error
	operation := func() (struct{}, error) {
		attempts++
		last = fn(ctx)
		if last != nil && !retryable(last) {
			return struct{}{}, backoff.Permanent(last)
		}
		return struct{}{}, last
	}
	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(p.schedule()),
		backoff.WithMaxTries(uint(maxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			if p.OnRetry != nil {
				p.OnRetry(attempts, err, wait)
			}
		}),
	)
	if err != nil {
		// Cancellation while waiting reports the failure that caused the wait.
		return attempts, last
	}
	return attempts, nil
}
