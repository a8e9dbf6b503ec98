// Package app wires configuration, logging, and the resolve engine into the
// corroborate CLI.
package app

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/agentstation/corroborate/internal/config"
	"github.com/agentstation/corroborate/internal/providers"
	"github.com/agentstation/corroborate/pkg/sources"
)

// App holds the CLI's dependencies.
type App struct {
	version string
	commit  string
	date    string
	builtBy string

	flags *Flags

	mu       sync.Mutex
	settings *config.File
	logger   *zerolog.Logger

	providers *sources.Registry
	stdout    io.Writer
}

// New creates an App. Configuration is loaded when a command runs so that
// the --config flag is honored.
func New(version, commit, date, builtBy string, opts ...Option) (*App, error) {
	a := &App{
		version:   version,
		commit:    commit,
		date:      date,
		builtBy:   builtBy,
		flags:     &Flags{},
		providers: providers.NewRegistry(),
		stdout:    os.Stdout,
	}
	logger := NewLogger(a.flags, nil)
	a.logger = &logger

	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Version returns the version information.
func (a *App) Version() string { return a.version }

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger { return a.logger }

// Settings returns the loaded configuration, loading it on first use.
func (a *App) Settings() (*config.File, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.settings != nil {
		return a.settings, nil
	}
	f, err := config.Load(a.flags.ConfigFile)
	if err != nil {
		return nil, err
	}
	a.settings = f
	return f, nil
}

// Option configures an App.
type Option func(*App) error

// WithSettings sets the configuration instead of loading it.
func WithSettings(f *config.File) Option {
	return func(a *App) error {
		a.settings = f
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}

// WithOutput redirects command output.
func WithOutput(w io.Writer) Option {
	return func(a *App) error {
		a.stdout = w
		return nil
	}
}

// WithProviderRegistry replaces the built-in provider kinds.
func WithProviderRegistry(r *sources.Registry) Option {
	return func(a *App) error {
		a.providers = r
		return nil
	}
}
