package sources

import (
	"time"

	"github.com/agentstation/corroborate/pkg/constants"
	"github.com/agentstation/corroborate/pkg/errors"
	"github.com/agentstation/corroborate/pkg/retry"
)

// options configures a Gatherer.
type options struct {
	retry       retry.Policy
	deadline    time.Duration
	callTimeout time.Duration
	workers     int
	now         func() time.Time
}

// Option is a functional option for NewGatherer.
type Option func(*options) error

func defaultOptions() *options {
	return &options{
		retry:       retry.DefaultPolicy(),
		deadline:    constants.DefaultRequestDeadline,
		callTimeout: constants.DefaultProviderTimeout,
		workers:     constants.MaxConcurrentProviders,
		now:         time.Now,
	}
}

func (o *options) apply(opts ...Option) (*options, error) {
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// WithRetryPolicy sets the retry policy applied inside each breaker admission.
func WithRetryPolicy(p retry.Policy) Option {
	return func(o *options) error {
		if err := p.Validate(); err != nil {
			return err
		}
		o.retry = p
		return nil
	}
}

// WithDeadline sets the overall gather deadline.
func WithDeadline(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return errors.NewConfigError("gather", "deadline must be positive", nil)
		}
		o.deadline = d
		return nil
	}
}

// WithDefaultCallTimeout sets the transport timeout for providers that declare none.
func WithDefaultCallTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return errors.NewConfigError("gather", "call timeout must be positive", nil)
		}
		o.callTimeout = d
		return nil
	}
}

// WithWorkers bounds how many providers are fetched at once.
func WithWorkers(n int) Option {
	return func(o *options) error {
		if n < 1 {
			return errors.NewConfigError("gather", "workers must be at least 1", nil)
		}
		o.workers = n
		return nil
	}
}

// WithClock replaces the wall clock used for fetch timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) error {
		if now != nil {
			o.now = now
		}
		return nil
	}
}
