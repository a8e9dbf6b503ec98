// Package agents wires model-backed evaluator agents into a panel registry
// from configuration.
package agents

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/agentstation/corroborate/internal/agents/gemini"
	"github.com/agentstation/corroborate/internal/agents/openai"
	"github.com/agentstation/corroborate/pkg/errors"
	"github.com/agentstation/corroborate/pkg/panel"
)

// Kinds of model-backed agents.
const (
	KindOpenAI = "openai"
	KindGemini = "gemini"
)

// Config declares one model-backed strategy.
type Config struct {
	// Name is the strategy name; agent IDs are "<name>-<nn>". Defaults to Kind.
	Name        string   `mapstructure:"name" yaml:"name"`
	Kind        string   `mapstructure:"kind" yaml:"kind"`
	Model       string   `mapstructure:"model" yaml:"model"`
	KeyEnv      string   `mapstructure:"key_env" yaml:"key_env"`
	BaseURL     string   `mapstructure:"base_url" yaml:"base_url"`
	Temperature *float64 `mapstructure:"temperature" yaml:"temperature"`
	Disabled    bool     `mapstructure:"disabled" yaml:"disabled"`
}

// StrategyName returns Name or Kind.
func (c Config) StrategyName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Kind
}

func (c Config) keyEnv() string {
	if c.KeyEnv != "" {
		return c.KeyEnv
	}
	switch c.Kind {
	case KindOpenAI:
		return "OPENAI_API_KEY"
	case KindGemini:
		return "GEMINI_API_KEY"
	}
	return ""
}

// Validate checks the kind is known.
func (c Config) Validate() error {
	switch c.Kind {
	case KindOpenAI, KindGemini:
		return nil
	case "":
		return errors.NewConfigError("agents", "agent kind is required", nil)
	default:
		return errors.NewConfigError("agents", fmt.Sprintf("unknown agent kind %q", c.Kind), nil)
	}
}

// Factory returns a panel factory for c. The API key is read from the
// environment when the panel is built.
func (c Config) Factory() (panel.Factory, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return func(id string, index int) (panel.Agent, error) {
		key := strings.TrimSpace(os.Getenv(c.keyEnv()))
		switch c.Kind {
		case KindOpenAI:
			return openai.New(id, index, openai.Config{
				APIKey:      key,
				BaseURL:     c.BaseURL,
				Model:       c.Model,
				Temperature: c.Temperature,
			})
		default:
			return gemini.New(context.Background(), id, index, gemini.Config{
				APIKey:      key,
				BaseURL:     c.BaseURL,
				Model:       c.Model,
				Temperature: c.Temperature,
			})
		}
	}, nil
}

// Register adds every enabled config to registry as a strategy.
func Register(registry *panel.Registry, configs []Config) error {
	for _, c := range configs {
		if c.Disabled {
			continue
		}
		factory, err := c.Factory()
		if err != nil {
			return err
		}
		if err := registry.Register(c.StrategyName(), factory); err != nil {
			return err
		}
	}
	return nil
}
