package corroborate

import (
	"fmt"
	"time"

	"github.com/agentstation/corroborate/pkg/breaker"
	"github.com/agentstation/corroborate/pkg/constants"
	"github.com/agentstation/corroborate/pkg/errors"
	"github.com/agentstation/corroborate/pkg/retry"
	"github.com/agentstation/corroborate/pkg/revolver"
)

// Config is the engine's tunable surface. The zero value is not valid;
// start from DefaultConfig.
type Config struct {
	// RequestDeadline bounds a whole Resolve call.
	RequestDeadline time.Duration `mapstructure:"request_deadline" yaml:"request_deadline" json:"request_deadline"`
	// ProviderTimeout is used for providers that declare no timeout.
	ProviderTimeout time.Duration `mapstructure:"provider_timeout" yaml:"provider_timeout" json:"provider_timeout"`
	// Workers bounds each per-request worker pool.
	Workers int `mapstructure:"workers" yaml:"workers" json:"workers"`

	Panel   PanelConfig    `mapstructure:"panel" yaml:"panel" json:"panel"`
	Breaker breaker.Config `mapstructure:"breaker" yaml:"breaker" json:"breaker"`
	Retry   retry.Policy   `mapstructure:"retry" yaml:"retry" json:"retry"`

	// Tolerances overrides the numeric tolerance of schema fields.
	Tolerances  map[string]float64 `mapstructure:"tolerances" yaml:"tolerances,omitempty" json:"tolerances,omitempty"`
	Weights     revolver.Weights   `mapstructure:"weights" yaml:"weights" json:"weights"`
	FallbackCap float64            `mapstructure:"fallback_cap" yaml:"fallback_cap" json:"fallback_cap"`

	// AuditHistory keeps up to this many entries per subject field across
	// requests. Zero keeps none; each request's entries still reach OnAudit.
	AuditHistory int `mapstructure:"audit_history" yaml:"audit_history" json:"audit_history"`
}

// PanelConfig sizes the evaluator panel.
type PanelConfig struct {
	Size         int           `mapstructure:"size" yaml:"size" json:"size"`
	Quorum       int           `mapstructure:"quorum" yaml:"quorum" json:"quorum"`
	AgentTimeout time.Duration `mapstructure:"agent_timeout" yaml:"agent_timeout" json:"agent_timeout"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		RequestDeadline: constants.DefaultRequestDeadline,
		ProviderTimeout: constants.DefaultProviderTimeout,
		Workers:         constants.MaxConcurrentProviders,
		Panel: PanelConfig{
			Size:         constants.DefaultPanelSize,
			Quorum:       constants.DefaultQuorum,
			AgentTimeout: constants.DefaultAgentTimeout,
		},
		Breaker:     breaker.DefaultConfig(),
		Retry:       retry.DefaultPolicy(),
		Weights:     revolver.DefaultWeights(),
		FallbackCap: constants.FallbackConfidenceCap,
	}
}

// Validate returns a ConfigError describing the first problem found.
func (c Config) Validate() error {
	if c.RequestDeadline <= 0 {
		return errors.NewConfigError("engine", "request deadline must be positive", nil)
	}
	if c.ProviderTimeout <= 0 {
		return errors.NewConfigError("engine", "provider timeout must be positive", nil)
	}
	if c.Workers < 1 {
		return errors.NewConfigError("engine", "workers must be at least 1", nil)
	}
	if c.Panel.Size < constants.MinPanelSize || c.Panel.Size > constants.MaxPanelSize {
		return errors.NewConfigError("engine",
			fmt.Sprintf("panel size %d outside [%d, %d]", c.Panel.Size, constants.MinPanelSize, constants.MaxPanelSize), nil)
	}
	if c.Panel.Quorum < 1 {
		return errors.NewConfigError("engine", fmt.Sprintf("quorum %d must be at least 1", c.Panel.Quorum), nil)
	}
	if c.Panel.AgentTimeout <= 0 {
		return errors.NewConfigError("engine", "agent timeout must be positive", nil)
	}
	if err := c.Breaker.Validate(); err != nil {
		return err
	}
	if err := c.Retry.Validate(); err != nil {
		return err
	}
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	if c.AuditHistory < 0 {
		return errors.NewConfigError("engine", "audit history must not be negative", nil)
	}
	if c.FallbackCap < 0 || c.FallbackCap > 1 {
		return errors.NewConfigError("engine", "fallback cap must be within [0,1]", nil)
	}
	return nil
}
