// Package panel runs a set of independent evaluator agents over a
// conflicting field and collects their signals.
package panel

import (
	"context"
	"fmt"
	"sort"

	"github.com/sourcegraph/conc/pool"

	"github.com/agentstation/corroborate/pkg/constants"
	"github.com/agentstation/corroborate/pkg/errors"
	"github.com/agentstation/corroborate/pkg/logging"
	"github.com/agentstation/corroborate/pkg/records"
)

// Outcome is the panel's result for one field.
type Outcome struct {
	Field     records.FieldName
	Signals   []records.PanelSignal
	Failures  []*errors.AgentEvaluationError
	Quorum    int
	QuorumMet bool
	// Valid counts signals that passed validation, kept even when quorum
	// is not met and Signals is emptied.
	Valid int
}

// Err returns a QuorumNotMetError when the panel fell short.
func (o Outcome) Err() error {
	if o.QuorumMet {
		return nil
	}
	return errors.NewQuorumNotMetError(string(o.Field), o.Valid, o.Quorum)
}

// Panel evaluates conflicting fields with a fixed set of agents.
type Panel struct {
	agents []Agent
	opts   *options
}

// New creates a panel. Agent IDs must be unique. A quorum larger than the
// panel is allowed but never met, so every conflict takes the fallback.
func New(agents []Agent, opts ...Option) (*Panel, error) {
	o, err := defaultOptions().apply(opts...)
	if err != nil {
		return nil, err
	}
	if len(agents) < constants.MinPanelSize || len(agents) > constants.MaxPanelSize {
		return nil, errors.NewConfigError("panel",
			fmt.Sprintf("panel size %d outside [%d, %d]", len(agents), constants.MinPanelSize, constants.MaxPanelSize), nil)
	}
	if o.quorum > len(agents) {
		logging.Default().Warn().
			Int("quorum", o.quorum).
			Int("panel_size", len(agents)).
			Msg("Quorum exceeds panel size, conflicting fields will use the fallback")
	}
	seen := make(map[string]bool, len(agents))
	for _, a := range agents {
		if a == nil {
			return nil, errors.NewConfigError("panel", "nil agent", nil)
		}
		if seen[a.ID()] {
			return nil, errors.NewConfigError("panel", fmt.Sprintf("duplicate agent id %s", a.ID()), nil)
		}
		seen[a.ID()] = true
	}
	return &Panel{agents: append([]Agent(nil), agents...), opts: o}, nil
}

// Size returns the number of agents.
func (p *Panel) Size() int { return len(p.agents) }

// Quorum returns the minimum number of valid signals.
func (p *Panel) Quorum() int { return p.opts.quorum }

// AgentIDs lists the agents in panel order.
func (p *Panel) AgentIDs() []string {
	ids := make([]string, len(p.agents))
	for i, a := range p.agents {
		ids[i] = a.ID()
	}
	return ids
}

type result struct {
	signal records.PanelSignal
	err    *errors.AgentEvaluationError
}

// Evaluate asks every agent about the field in parallel. Each agent sees
// only the candidates and ec, never another agent's signal.
func (p *Panel) Evaluate(ctx context.Context, field records.FieldName, candidates []records.Candidate, ec Context) Outcome {
	ctx = logging.WithFieldName(ctx, string(field))
	logger := logging.FromContext(ctx)

	rp := pool.NewWithResults[result]().WithMaxGoroutines(p.opts.workers)
	for _, a := range p.agents {
		rp.Go(func() result {
			return p.evaluateOne(ctx, a, field, candidates, ec)
		})
	}
	results := rp.Wait()

	out := Outcome{Field: field, Quorum: p.opts.quorum}
	for _, r := range results {
		if r.err != nil {
			logging.FromContext(logging.WithAgent(ctx, r.err.Agent)).Warn().
				Err(r.err.Err).
				Msg("Excluding agent signal")
			out.Failures = append(out.Failures, r.err)
			continue
		}
		out.Signals = append(out.Signals, r.signal)
	}
	sort.Slice(out.Signals, func(i, j int) bool { return out.Signals[i].AgentID < out.Signals[j].AgentID })
	sort.Slice(out.Failures, func(i, j int) bool { return out.Failures[i].Agent < out.Failures[j].Agent })

	out.Valid = len(out.Signals)
	out.QuorumMet = out.Valid >= p.opts.quorum
	if !out.QuorumMet {
		logger.Warn().
			Int("valid_signals", out.Valid).
			Int("quorum", p.opts.quorum).
			Msg("Panel quorum not met")
		out.Signals = nil
		return out
	}

	logger.Debug().
		Int("valid_signals", out.Valid).
		Int("failed_agents", len(out.Failures)).
		Msg("Panel evaluation complete")
	return out
}

// evaluateOne runs one agent under the per-agent timeout. An agent that
// ignores cancellation is abandoned when the timeout fires.
func (p *Panel) evaluateOne(ctx context.Context, a Agent, field records.FieldName, candidates []records.Candidate, ec Context) result {
	id := a.ID()
	fail := func(err error) result {
		return result{err: errors.NewAgentEvaluationError(id, string(field), err)}
	}

	callCtx, cancel := context.WithTimeout(ctx, p.opts.timeout)
	defer cancel()

	type reply struct {
		signal records.PanelSignal
		err    error
	}
	ch := make(chan reply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- reply{err: fmt.Errorf("agent panicked: %v", r)}
			}
		}()
		s, err := a.Evaluate(callCtx, field, append([]records.Candidate(nil), candidates...), ec)
		ch <- reply{signal: s, err: err}
	}()

	var rep reply
	select {
	case rep = <-ch:
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return fail(ctx.Err())
		}
		return fail(errors.NewTimeoutError("evaluate", p.opts.timeout.String(), "agent did not answer in time"))
	}

	if rep.err != nil {
		return fail(rep.err)
	}
	if rep.signal.AgentID != id {
		return fail(errors.NewValidationError("agent_id", rep.signal.AgentID, "must match the agent that produced it"))
	}
	if rep.signal.Field != field {
		return fail(errors.NewValidationError("field", rep.signal.Field, "signal names a different field"))
	}
	if err := rep.signal.Validate(); err != nil {
		return fail(err)
	}
	return result{signal: rep.signal}
}
