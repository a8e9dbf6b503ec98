package panel

import (
	"time"

	"github.com/agentstation/corroborate/pkg/constants"
	"github.com/agentstation/corroborate/pkg/errors"
)

type options struct {
	quorum  int
	timeout time.Duration
	workers int
}

// Option is a functional option for New.
type Option func(*options) error

func defaultOptions() *options {
	return &options{
		quorum:  constants.DefaultQuorum,
		timeout: constants.DefaultAgentTimeout,
		workers: constants.MaxConcurrentAgents,
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

// WithQuorum sets the minimum number of valid signals.
func WithQuorum(n int) Option {
	return func(o *options) error {
		if n < 1 {
			return errors.NewConfigError("panel", "quorum must be at least 1", nil)
		}
		o.quorum = n
		return nil
	}
}

// WithAgentTimeout bounds each agent call.
func WithAgentTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return errors.NewConfigError("panel", "agent timeout must be positive", nil)
		}
		o.timeout = d
		return nil
	}
}

// WithWorkers bounds how many agents run at once.
func WithWorkers(n int) Option {
	return func(o *options) error {
		if n < 1 {
			return errors.NewConfigError("panel", "workers must be at least 1", nil)
		}
		o.workers = n
		return nil
	}
}
