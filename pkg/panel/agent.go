package panel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentstation/corroborate/pkg/classifier"
	"github.com/agentstation/corroborate/pkg/errors"
	"github.com/agentstation/corroborate/pkg/records"
)

// Context is what an agent knows about the field besides its candidates.
type Context struct {
	Subject  records.Subject
	Spec     classifier.FieldSpec
	Clusters []classifier.Cluster
	// Now is fixed per request so recency scoring is reproducible.
	Now time.Time
}

// Agent evaluates one conflicting field and returns a signal.
type Agent interface {
	ID() string
	Evaluate(ctx context.Context, field records.FieldName, candidates []records.Candidate, ec Context) (records.PanelSignal, error)
}

// EvaluateFunc is the Agent.Evaluate signature.
type EvaluateFunc func(ctx context.Context, field records.FieldName, candidates []records.Candidate, ec Context) (records.PanelSignal, error)

// AgentFunc adapts a plain function to the Agent interface.
type AgentFunc struct {
	id string
	fn EvaluateFunc
}

// NewAgent pairs an ID with an evaluate function.
func NewAgent(id string, fn EvaluateFunc) Agent {
	return &AgentFunc{id: id, fn: fn}
}

func (a *AgentFunc) ID() string { return a.id }

func (a *AgentFunc) Evaluate(ctx context.Context, field records.FieldName, candidates []records.Candidate, ec Context) (records.PanelSignal, error) {
	return a.fn(ctx, field, candidates, ec)
}

// Factory builds the index-th agent of a strategy. Strategies vary their
// parameters by index so a panel of N agents holds N distinct perspectives.
type Factory func(id string, index int) (Agent, error)

type registration struct {
	name  string
	build Factory
}

// Registry holds agent strategies in registration order.
type Registry struct {
	mu      sync.RWMutex
	entries []registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a strategy under name.
func (r *Registry) Register(name string, build Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.name == name {
			return errors.NewConfigError("panel", fmt.Sprintf("strategy %s already registered", name), nil)
		}
	}
	r.entries = append(r.entries, registration{name: name, build: build})
	return nil
}

// Names lists strategies in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		names = append(names, e.name)
	}
	return names
}

// Build creates size agents by cycling through the registered strategies.
// Agent IDs are "<strategy>-<nn>".
func (r *Registry) Build(size int) ([]Agent, error) {
	r.mu.RLock()
	entries := append([]registration(nil), r.entries...)
	r.mu.RUnlock()

	if len(entries) == 0 {
		return nil, errors.NewConfigError("panel", "no agent strategies registered", nil)
	}
	if size < 1 {
		return nil, errors.NewConfigError("panel", "panel size must be at least 1", nil)
	}

	agents := make([]Agent, 0, size)
	for i := 0; i < size; i++ {
		e := entries[i%len(entries)]
		index := i / len(entries)
		id := fmt.Sprintf("%s-%02d", e.name, index+1)
		a, err := e.build(id, index)
		if err != nil {
			return nil, errors.NewConfigError("panel", fmt.Sprintf("build agent %s", id), err)
		}
		agents = append(agents, a)
	}
	return agents, nil
}
