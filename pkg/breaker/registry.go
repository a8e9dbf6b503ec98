package breaker

import (
	"sort"
	"sync"
	"time"
)

// Registry holds one breaker per provider. It is the only state shared
// between concurrent resolve requests.
type Registry struct {
	mu       sync.Mutex
	cfg      Config
	opts     []Option
	breakers map[string]*Breaker
}

// NewRegistry creates an empty registry whose breakers use cfg.
func NewRegistry(cfg Config, opts ...Option) *Registry {
	return &Registry{
		cfg:      cfg,
		opts:     opts,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for name, creating it on first use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := New(name, r.cfg, r.opts...)
	r.breakers[name] = b
	return b
}

// Snapshot returns the status of every known breaker, sorted by name.
func (r *Registry) Snapshot() []Status {
	r.mu.Lock()
	list := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		list = append(list, b)
	}
	r.mu.Unlock()

	out := make([]Status, 0, len(list))
	for _, b := range list {
		out = append(out, b.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Config returns the registry's breaker configuration.
func (r *Registry) Config() Config {
	return r.cfg
}

// ManualClock is a settable clock for exercising cooldowns.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock returns a clock fixed at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the clock's current time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
