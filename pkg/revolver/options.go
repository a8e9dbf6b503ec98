package revolver

import (
	"math"

	"github.com/agentstation/corroborate/pkg/constants"
	"github.com/agentstation/corroborate/pkg/errors"
)

type options struct {
	weights     Weights
	fallbackCap float64
	workers     int
}

// Option is a functional option for New.
type Option func(*options) error

func defaultOptions() *options {
	return &options{
		weights:     DefaultWeights(),
		fallbackCap: constants.FallbackConfidenceCap,
		workers:     constants.MaxConcurrentAgents,
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

// WithWeights replaces the score weights.
func WithWeights(w Weights) Option {
	return func(o *options) error {
		if err := w.Validate(); err != nil {
			return err
		}
		o.weights = w
		return nil
	}
}

// WithFallbackCap sets the highest confidence a fallback decision may carry.
func WithFallbackCap(c float64) Option {
	return func(o *options) error {
		if math.IsNaN(c) || c < 0 || c > 1 {
			return errors.NewConfigError("revolver", "fallback cap must be within [0,1]", nil)
		}
		o.fallbackCap = c
		return nil
	}
}

// WithWorkers bounds how many fields ResolveAll decides at once.
func WithWorkers(n int) Option {
	return func(o *options) error {
		if n < 1 {
			return errors.NewConfigError("revolver", "workers must be at least 1", nil)
		}
		o.workers = n
		return nil
	}
}
