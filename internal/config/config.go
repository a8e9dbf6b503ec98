// Package config loads the CLI's configuration from a YAML file, .env files
// and CORROBORATE_* environment variables.
package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/agentstation/corroborate"
	"github.com/agentstation/corroborate/internal/agents"
	"github.com/agentstation/corroborate/internal/persistence/postgres"
	"github.com/agentstation/corroborate/internal/telemetry"
	"github.com/agentstation/corroborate/pkg/constants"
	"github.com/agentstation/corroborate/pkg/errors"
	"github.com/agentstation/corroborate/pkg/logging"
	"github.com/agentstation/corroborate/pkg/save"
	"github.com/agentstation/corroborate/pkg/sources"
)

// File is the full configuration document.
type File struct {
	Engine    corroborate.Config       `mapstructure:"engine" yaml:"engine"`
	Providers []sources.ProviderConfig `mapstructure:"providers" yaml:"providers"`
	Agents    []agents.Config          `mapstructure:"agents" yaml:"agents,omitempty"`
	Logging   logging.Config           `mapstructure:"logging" yaml:"logging"`
	Telemetry telemetry.Config         `mapstructure:"telemetry" yaml:"telemetry,omitempty"`
	Storage   Storage                  `mapstructure:"storage" yaml:"storage"`

	// Path is the config file that was read, if any.
	Path string `mapstructure:"-" yaml:"-"`
}

// Storage selects where resolved records are persisted.
type Storage struct {
	// Dir enables the file sink.
	Dir string `mapstructure:"dir" yaml:"dir,omitempty"`
	// Format is json or yaml.
	Format   string          `mapstructure:"format" yaml:"format"`
	Postgres postgres.Config `mapstructure:"postgres" yaml:"postgres,omitempty"`
	// AuditFile receives the audit report after each run.
	AuditFile string `mapstructure:"audit_file" yaml:"audit_file,omitempty"`
}

// Load reads configuration in order of precedence:
//  1. CORROBORATE_* environment variables (including .env and .env.local)
//  2. the config file at path, or ./corroborate.yaml, or ~/.corroborate.yaml
//  3. defaults
//
// A missing config file is not an error; an explicit path that cannot be
// read is.
func Load(path string) (*File, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.NewConfigError("config", fmt.Sprintf("reading %s", path), err)
		}
	} else {
		v.SetConfigName(constants.DefaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", constants.DefaultConfigName))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !stderrors.As(err, &notFound) {
				return nil, errors.NewConfigError("config", "reading config file", err)
			}
		}
	}

	var f File
	if err := v.Unmarshal(&f); err != nil {
		return nil, errors.NewConfigError("config", "decoding configuration", err)
	}
	f.Path = v.ConfigFileUsed()
	f.resolvePaths()
	f.Telemetry = f.Telemetry.FromEnv()

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks every section.
func (f *File) Validate() error {
	if err := f.Engine.Validate(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(f.Providers))
	for _, p := range f.Providers {
		if err := p.Validate(); err != nil {
			return err
		}
		if seen[p.ID] {
			return errors.NewConfigError("providers", fmt.Sprintf("duplicate provider id %q", p.ID), nil)
		}
		seen[p.ID] = true
	}
	for _, a := range f.Agents {
		if err := a.Validate(); err != nil {
			return err
		}
	}
	if _, err := save.ParseFormat(f.Storage.Format); err != nil {
		return errors.NewConfigError("storage", "invalid format", err)
	}
	return nil
}

// resolvePaths makes relative fixture paths relative to the config file.
func (f *File) resolvePaths() {
	if f.Path == "" {
		return
	}
	base := filepath.Dir(f.Path)
	for i, p := range f.Providers {
		if p.Path != "" && !filepath.IsAbs(p.Path) {
			f.Providers[i].Path = filepath.Join(base, p.Path)
		}
	}
}

// setDefaults registers every scalar key so that environment variables can
// override values the config file never mentions.
func setDefaults(v *viper.Viper) {
	d := corroborate.DefaultConfig()
	defaults := map[string]any{
		"engine.request_deadline":    d.RequestDeadline,
		"engine.provider_timeout":    d.ProviderTimeout,
		"engine.workers":             d.Workers,
		"engine.panel.size":          d.Panel.Size,
		"engine.panel.quorum":        d.Panel.Quorum,
		"engine.panel.agent_timeout": d.Panel.AgentTimeout,
		"engine.breaker.threshold":   d.Breaker.Threshold,
		"engine.breaker.cooldown":    d.Breaker.Cooldown,
		"engine.retry.max_attempts":  d.Retry.MaxAttempts,
		"engine.retry.base":          d.Retry.Base,
		"engine.retry.max":           d.Retry.Max,
		"engine.retry.jitter":        d.Retry.Jitter,
		"engine.weights.reliability": d.Weights.Reliability,
		"engine.weights.agreement":   d.Weights.Agreement,
		"engine.weights.confidence":  d.Weights.Confidence,
		"engine.weights.recency":     d.Weights.Recency,
		"engine.fallback_cap":        d.FallbackCap,
		"engine.audit_history":       d.AuditHistory,

		"logging.level":       "info",
		"logging.format":      "auto",
		"logging.output":      "stderr",
		"logging.time_format": "kitchen",
		"logging.no_color":    false,
		"logging.caller":      false,

		"telemetry.endpoint":        "",
		"telemetry.headers":         "",
		"telemetry.service_name":    "",
		"telemetry.service_version": "",

		"storage.dir":                "",
		"storage.format":             "yaml",
		"storage.audit_file":         "",
		"storage.postgres.dsn":       "",
		"storage.postgres.max_conns": 0,
		"storage.postgres.min_conns": 0,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// loadEnvFiles loads .env then .env.local; existing variables win.
func loadEnvFiles() {
	for _, envFile := range []string{".env", ".env.local"} {
		_ = godotenv.Load(envFile)
	}
}
