// Package breaker implements a per-provider circuit breaker.
//
// A breaker starts Closed. After Threshold consecutive counted failures it
// opens and rejects calls for Cooldown. The first call after the cooldown is
// admitted as a single HalfOpen trial; its success closes the circuit and its
// failure re-opens it for another cooldown.
package breaker

import (
	"fmt"
	"sync"
	"time"

	"github.com/agentstation/corroborate/pkg/constants"
	"github.com/agentstation/corroborate/pkg/errors"
)

// State is a breaker's position in its state machine.
type State int

const (
	// Closed admits every call.
	Closed State = iota
	// Open rejects every call until the cooldown elapses.
	Open
	// HalfOpen admits exactly one trial call.
	HalfOpen
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Outcome is how an admitted call ended.
type Outcome int

const (
	// Success resets the failure count.
	Success Outcome = iota
	// Failure counts toward opening the circuit.
	Failure
	// Ignored neither counts as success nor failure, e.g. caller cancellation.
	Ignored
)

// Config tunes a breaker.
type Config struct {
	Threshold int           `mapstructure:"threshold" yaml:"threshold"`
	Cooldown  time.Duration `mapstructure:"cooldown" yaml:"cooldown"`
}

// DefaultConfig returns the default threshold and cooldown.
func DefaultConfig() Config {
	return Config{
		Threshold: constants.BreakerFailureThreshold,
		Cooldown:  constants.BreakerCooldown,
	}
}

// Validate rejects non-positive settings.
func (c Config) Validate() error {
	if c.Threshold < 1 {
		return errors.NewConfigError("breaker", "threshold must be at least 1", nil)
	}
	if c.Cooldown <= 0 {
		return errors.NewConfigError("breaker", "cooldown must be positive", nil)
	}
	return nil
}

// Breaker guards calls to one provider. It is safe for concurrent use.
type Breaker struct {
	name string
	cfg  Config
	now  func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	trial    bool
	onChange func(name string, from, to State)
}

// New creates a closed breaker.
func New(name string, cfg Config, opts ...Option) *Breaker {
	b := &Breaker{name: name, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

// WithStateChange registers a callback invoked, under the breaker lock, on
// every transition.
func WithStateChange(fn func(name string, from, to State)) Option {
	return func(b *Breaker) {
		b.onChange = fn
	}
}

// Name returns the guarded provider's ID.
func (b *Breaker) Name() string { return b.name }

// State returns the current state, promoting Open to HalfOpen when the
// cooldown has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.promote()
	return b.state
}

// Failures returns the current consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Allow asks to make a call. On admission it returns a done function that
// must be called exactly once with the call's outcome. On rejection it
// returns a CircuitOpenError and the provider must not be called.
func (b *Breaker) Allow() (done func(Outcome), err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.promote()
	switch b.state {
	case Open:
		remaining := b.cfg.Cooldown - b.now().Sub(b.openedAt)
		return nil, &errors.CircuitOpenError{Provider: b.name, RetryIn: remaining.Round(time.Millisecond).String()}
	case HalfOpen:
		if b.trial {
			return nil, &errors.CircuitOpenError{Provider: b.name}
		}
		b.trial = true
		return b.finish(true), nil
	default:
		return b.finish(false), nil
	}
}

func (b *Breaker) finish(trial bool) func(Outcome) {
	var once sync.Once
	return func(o Outcome) {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.record(o, trial)
		})
	}
}

func (b *Breaker) record(o Outcome, trial bool) {
	if trial {
		b.trial = false
	} else if b.state != Closed {
		// Admitted before the circuit opened; the trial decides from here.
		return
	}
	switch o {
	case Success:
		b.failures = 0
		if b.state != Closed {
			b.transition(Closed)
		}
	case Failure:
		b.failures++
		if trial || b.failures >= b.cfg.Threshold {
			b.openedAt = b.now()
			if b.state != Open {
				b.transition(Open)
			}
		}
	}
}

// promote moves Open to HalfOpen once the cooldown has elapsed. Callers hold mu.
func (b *Breaker) promote() {
	if b.state == Open && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		b.transition(HalfOpen)
	}
}

func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	if b.onChange != nil {
		b.onChange(b.name, from, to)
	}
}

// Status is a point-in-time view of a breaker.
type Status struct {
	Name     string    `json:"name" yaml:"name"`
	State    State     `json:"state" yaml:"state"`
	Failures int       `json:"failures" yaml:"failures"`
	OpenedAt time.Time `json:"opened_at,omitempty" yaml:"opened_at,omitempty"`
}

// Status returns a snapshot of the breaker.
func (b *Breaker) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.promote()
	return Status{Name: b.name, State: b.state, Failures: b.failures, OpenedAt: b.openedAt}
}
