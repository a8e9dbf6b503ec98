package sources

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/agentstation/corroborate/pkg/errors"
	"github.com/agentstation/corroborate/pkg/records"
)

// AuthConfig describes how a provider's API key is presented.
type AuthConfig struct {
	// KeyEnv names the environment variable holding the key.
	KeyEnv string `mapstructure:"key_env" yaml:"key_env,omitempty"`
	// Scheme is bearer, basic, or direct. Empty means bearer.
	Scheme string `mapstructure:"scheme" yaml:"scheme,omitempty"`
	// Header overrides the Authorization header name.
	Header string `mapstructure:"header" yaml:"header,omitempty"`
	// QueryParam sends the key as a query parameter instead of a header.
	QueryParam string `mapstructure:"query_param" yaml:"query_param,omitempty"`
}

// ProviderConfig is the declarative form of a provider, as loaded from config.
type ProviderConfig struct {
	ID      string        `mapstructure:"id" yaml:"id"`
	Kind    string        `mapstructure:"kind" yaml:"kind"`
	Tier    int           `mapstructure:"tier" yaml:"tier"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout,omitempty"`

	// URL is a template with {domain} and {name} placeholders (httpjson).
	URL string `mapstructure:"url" yaml:"url,omitempty"`
	// Auth configures credentials (httpjson).
	Auth AuthConfig `mapstructure:"auth" yaml:"auth,omitempty"`
	// Fields maps record fields to dotted JSON paths (httpjson).
	Fields map[string]string `mapstructure:"fields" yaml:"fields,omitempty"`
	// Path points at a data file (fixture).
	Path string `mapstructure:"path" yaml:"path,omitempty"`
	// Disabled providers are skipped when building.
	Disabled bool `mapstructure:"disabled" yaml:"disabled,omitempty"`
}

// Validate checks the fields common to every kind.
func (c ProviderConfig) Validate() error {
	if c.ID == "" {
		return errors.NewConfigError("providers", "provider id is required", nil)
	}
	if c.Kind == "" {
		return errors.NewConfigError("providers", fmt.Sprintf("provider %s: kind is required", c.ID), nil)
	}
	if !records.Tier(c.Tier).Valid() {
		return errors.NewConfigError("providers", fmt.Sprintf("provider %s: tier must be at least 1", c.ID), nil)
	}
	if c.Timeout < 0 {
		return errors.NewConfigError("providers", fmt.Sprintf("provider %s: timeout must not be negative", c.ID), nil)
	}
	return nil
}

// Factory builds a Provider from its config.
type Factory func(cfg ProviderConfig) (Provider, error)

// Registry maps provider kinds to factories. It is built explicitly and
// passed to whoever loads configuration.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory for kind.
func (r *Registry) Register(kind string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[kind]; exists {
		return errors.NewConfigError("providers", fmt.Sprintf("kind %s already registered", kind), nil)
	}
	r.factories[kind] = f
	return nil
}

// Has reports whether kind is registered.
func (r *Registry) Has(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[kind]
	return ok
}

// Kinds lists registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Build constructs a provider from cfg.
func (r *Registry) Build(cfg ProviderConfig) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	f, ok := r.factories[cfg.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.NewConfigError("providers", fmt.Sprintf("provider %s: unknown kind %q", cfg.ID, cfg.Kind), nil)
	}
	p, err := f(cfg)
	if err != nil {
		return nil, errors.NewConfigError("providers", fmt.Sprintf("provider %s", cfg.ID), err)
	}
	return p, nil
}

// BuildAll constructs every enabled provider, stopping at the first error.
func (r *Registry) BuildAll(cfgs []ProviderConfig) ([]Provider, error) {
	out := make([]Provider, 0, len(cfgs))
	for _, cfg := range cfgs {
		if cfg.Disabled {
			continue
		}
		p, err := r.Build(cfg)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
