// Package corroborate resolves company facts reported by several
// third-party sources into one record, choosing a value for every field and
// recording how each choice was made.
//
// An Engine gathers from the request's providers in parallel behind
// per-provider circuit breakers, classifies each field as unanimous,
// conflicting, or absent, asks an evaluator panel about the conflicts, and
// lets the revolver score the panel's signals into a decision.
package corroborate

import (
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentstation/corroborate/pkg/audit"
	"github.com/agentstation/corroborate/pkg/breaker"
	"github.com/agentstation/corroborate/pkg/classifier"
	"github.com/agentstation/corroborate/pkg/logging"
	"github.com/agentstation/corroborate/pkg/panel"
	"github.com/agentstation/corroborate/pkg/records"
	"github.com/agentstation/corroborate/pkg/revolver"
	"github.com/agentstation/corroborate/pkg/sources"
)

const tracerName = "github.com/agentstation/corroborate"

// Engine runs resolve requests. It is safe for concurrent use. The breaker
// registry is shared between requests, and so is the audit tracker when one
// is enabled with WithTracker or Config.AuditHistory.
type Engine struct {
	cfg        Config
	gatherer   *sources.Gatherer
	classifier *classifier.Classifier
	panel      *panel.Panel
	revolver   *revolver.Revolver
	tracker    audit.Tracker
	sinks      []RecordSink
	hooks      *hooks
	tracer     trace.Tracer
	now        func() time.Time
}

// New validates the configuration and builds an Engine.
func New(opts ...Option) (*Engine, error) {
	o, err := defaultOptions().apply(opts...)
	if err != nil {
		return nil, err
	}
	cfg := o.cfg
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	schema := o.schema
	if schema == nil {
		schema = classifier.DefaultSchema()
	}
	for field, tol := range cfg.Tolerances {
		if schema, err = schema.WithTolerance(records.FieldName(field), tol); err != nil {
			return nil, err
		}
	}

	breakers := o.breakers
	if breakers == nil {
		breakers = breaker.NewRegistry(cfg.Breaker,
			breaker.WithClock(o.now),
			breaker.WithStateChange(logStateChange),
		)
	}
	gatherer, err := sources.NewGatherer(breakers,
		sources.WithRetryPolicy(cfg.Retry),
		sources.WithDeadline(cfg.RequestDeadline),
		sources.WithDefaultCallTimeout(cfg.ProviderTimeout),
		sources.WithWorkers(cfg.Workers),
		sources.WithClock(o.now),
	)
	if err != nil {
		return nil, err
	}

	agents := o.agents
	if agents == nil {
		registry := o.registry
		if registry == nil {
			registry = panel.DefaultRegistry()
		}
		if agents, err = registry.Build(cfg.Panel.Size); err != nil {
			return nil, err
		}
	}
	pnl, err := panel.New(agents,
		panel.WithQuorum(cfg.Panel.Quorum),
		panel.WithAgentTimeout(cfg.Panel.AgentTimeout),
		panel.WithWorkers(cfg.Workers),
	)
	if err != nil {
		return nil, err
	}

	rev, err := revolver.New(schema,
		revolver.WithWeights(cfg.Weights),
		revolver.WithFallbackCap(cfg.FallbackCap),
		revolver.WithWorkers(cfg.Workers),
	)
	if err != nil {
		return nil, err
	}

	tracker := o.tracker
	if tracker == nil && cfg.AuditHistory > 0 {
		tracker = audit.NewTracker(cfg.AuditHistory)
	}

	return &Engine{
		cfg:        cfg,
		gatherer:   gatherer,
		classifier: classifier.New(schema),
		panel:      pnl,
		revolver:   rev,
		tracker:    tracker,
		sinks:      o.sinks,
		hooks:      newHooks(),
		tracer:     otel.Tracer(tracerName),
		now:        o.now,
	}, nil
}

func logStateChange(name string, from, to breaker.State) {
	logging.Default().Warn().
		Str("source_id", name).
		Stringer("from", from).
		Stringer("to", to).
		Msg("Circuit breaker state changed")
}

// Config returns the validated configuration.
func (e *Engine) Config() Config { return e.cfg }

// Schema returns the field schema in use, tolerances applied.
func (e *Engine) Schema() *classifier.Schema { return e.classifier.Schema() }

// Breakers returns a snapshot of every provider's breaker.
func (e *Engine) Breakers() []breaker.Status { return e.gatherer.Breakers().Snapshot() }

// Tracker returns the cross-request audit tracker, or nil when none is enabled.
func (e *Engine) Tracker() audit.Tracker { return e.tracker }

// PanelAgents lists the evaluator agents in panel order.
func (e *Engine) PanelAgents() []string { return e.panel.AgentIDs() }

// OnFieldResolved registers a callback for every field decision.
func (e *Engine) OnFieldResolved(fn FieldResolvedHook) { e.hooks.OnFieldResolved(fn) }

// OnRecord registers a callback for every finished record.
func (e *Engine) OnRecord(fn RecordHook) { e.hooks.OnRecord(fn) }

// OnAudit registers a callback that receives each request's audit entries.
func (e *Engine) OnAudit(fn AuditHook) { e.hooks.OnAudit(fn) }
