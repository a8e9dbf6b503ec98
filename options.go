package corroborate

import (
	"time"

	"github.com/agentstation/corroborate/pkg/audit"
	"github.com/agentstation/corroborate/pkg/breaker"
	"github.com/agentstation/corroborate/pkg/classifier"
	"github.com/agentstation/corroborate/pkg/errors"
	"github.com/agentstation/corroborate/pkg/panel"
)

// options holds everything New needs besides Config.
type options struct {
	cfg      Config
	schema   *classifier.Schema
	agents   []panel.Agent
	registry *panel.Registry
	breakers *breaker.Registry
	tracker  audit.Tracker
	sinks    []RecordSink
	now      func() time.Time
}

// Option is a function that configures an Engine
type Option func(*options) error

func defaultOptions() *options {
	return &options{
		cfg: DefaultConfig(),
		now: time.Now,
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

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(o *options) error {
		o.cfg = cfg
		return nil
	}
}

// WithSchema sets the field schema. Config tolerances are applied on top.
func WithSchema(schema *classifier.Schema) Option {
	return func(o *options) error {
		if schema == nil {
			return errors.NewConfigError("engine", "schema must not be nil", nil)
		}
		o.schema = schema
		return nil
	}
}

// WithAgents uses exactly these agents instead of building a panel from
// the registry. The configured panel size is ignored.
func WithAgents(agents ...panel.Agent) Option {
	return func(o *options) error {
		o.agents = agents
		return nil
	}
}

// WithAgentRegistry builds the panel from registry instead of the built-in
// strategies.
func WithAgentRegistry(registry *panel.Registry) Option {
	return func(o *options) error {
		o.registry = registry
		return nil
	}
}

// WithBreakers shares an existing breaker registry, so several engines
// see the same provider health.
func WithBreakers(registry *breaker.Registry) Option {
	return func(o *options) error {
		o.breakers = registry
		return nil
	}
}

// WithTracker installs a tracker that keeps audit entries across requests.
func WithTracker(tracker audit.Tracker) Option {
	return func(o *options) error {
		o.tracker = tracker
		return nil
	}
}

// WithSink adds a persistence collaborator that receives every record.
func WithSink(sink RecordSink) Option {
	return func(o *options) error {
		if sink == nil {
			return errors.NewConfigError("engine", "sink must not be nil", nil)
		}
		o.sinks = append(o.sinks, sink)
		return nil
	}
}

// WithClock replaces the wall clock used for timestamps, recency, and breakers.
func WithClock(now func() time.Time) Option {
	return func(o *options) error {
		if now != nil {
			o.now = now
		}
		return nil
	}
}
