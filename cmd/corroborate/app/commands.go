package app

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentstation/corroborate"
	"github.com/agentstation/corroborate/internal/agents"
	"github.com/agentstation/corroborate/internal/cmd/output"
	"github.com/agentstation/corroborate/internal/config"
	"github.com/agentstation/corroborate/internal/persistence/files"
	"github.com/agentstation/corroborate/internal/persistence/postgres"
	"github.com/agentstation/corroborate/internal/telemetry"
	"github.com/agentstation/corroborate/pkg/audit"
	"github.com/agentstation/corroborate/pkg/errors"
	"github.com/agentstation/corroborate/pkg/logging"
	"github.com/agentstation/corroborate/pkg/panel"
	"github.com/agentstation/corroborate/pkg/records"
	"github.com/agentstation/corroborate/pkg/save"
	"github.com/agentstation/corroborate/pkg/sources"
)

type resolveFlags struct {
	name      string
	domain    string
	only      []string
	saveDir   string
	auditFile string
}

// NewResolveCommand creates the resolve command.
func (a *App) NewResolveCommand() *cobra.Command {
	rf := &resolveFlags{}
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve one company into a record",
		Example: `  corroborate resolve --name "Acme Corp" --domain acme.com
  corroborate resolve --domain acme.com -o wide --audit-file audit.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runResolve(cmd.Context(), rf)
		},
	}
	cmd.Flags().StringVar(&rf.name, "name", "", "company name")
	cmd.Flags().StringVar(&rf.domain, "domain", "", "company domain")
	cmd.Flags().StringSliceVar(&rf.only, "providers", nil, "only use these provider IDs")
	cmd.Flags().StringVar(&rf.saveDir, "save-dir", "", "write the record under this directory (overrides storage.dir)")
	cmd.Flags().StringVar(&rf.auditFile, "audit-file", "", "write the audit report to this YAML file")
	return cmd
}

func (a *App) runResolve(ctx context.Context, rf *resolveFlags) error {
	settings, err := a.Settings()
	if err != nil {
		return err
	}
	ctx = logging.WithLogger(ctx, a.logger)

	subject := records.Subject{Name: rf.name, Domain: rf.domain}
	if subject.IsZero() {
		return errors.NewValidationError("subject", "", "--name or --domain is required")
	}

	provs, err := a.buildProviders(settings.Providers, rf.only)
	if err != nil {
		return err
	}

	tel, err := telemetry.Setup(ctx, settings.Telemetry)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Tracing disabled")
	}
	defer func() { _ = tel.Shutdown(context.WithoutCancel(ctx)) }()

	registry := panel.DefaultRegistry()
	if err := agents.Register(registry, settings.Agents); err != nil {
		return err
	}

	opts := []corroborate.Option{
		corroborate.WithConfig(settings.Engine),
		corroborate.WithAgentRegistry(registry),
	}

	storage := settings.Storage
	if rf.saveDir != "" {
		storage.Dir = rf.saveDir
	}
	sinkOpts, closeSinks, err := openSinks(ctx, storage)
	if err != nil {
		return err
	}
	defer closeSinks()
	opts = append(opts, sinkOpts...)

	engine, err := corroborate.New(opts...)
	if err != nil {
		return err
	}

	var entries []audit.Entry
	engine.OnAudit(func(es []audit.Entry) { entries = es })

	rec, err := engine.Resolve(ctx, sources.GatherRequest{Subject: subject, Providers: provs})
	if err != nil {
		return err
	}

	format := a.format()
	if err := output.WriteRecord(a.stdout, rec, format); err != nil {
		return err
	}
	if format == output.FormatWide {
		fmt.Fprintln(a.stdout)
		if err := output.NewFormatter(format).Format(a.stdout, output.BreakersTable(engine.Breakers())); err != nil {
			return err
		}
	}

	auditFile := rf.auditFile
	if auditFile == "" {
		auditFile = storage.AuditFile
	}
	if auditFile != "" {
		report := audit.GenerateReport(audit.NewTrail(entries...))
		if err := report.WriteYAML(auditFile); err != nil {
			return err
		}
		a.logger.Info().Str("path", auditFile).Msg("Wrote audit report")
	}
	return nil
}

// buildProviders constructs the enabled providers, optionally restricted to
// the given IDs.
func (a *App) buildProviders(cfgs []sources.ProviderConfig, only []string) ([]sources.Provider, error) {
	if len(only) > 0 {
		want := make(map[string]bool, len(only))
		for _, id := range only {
			want[strings.TrimSpace(id)] = true
		}
		filtered := make([]sources.ProviderConfig, 0, len(only))
		for _, c := range cfgs {
			if want[c.ID] {
				filtered = append(filtered, c)
				delete(want, c.ID)
			}
		}
		if len(want) > 0 {
			missing := make([]string, 0, len(want))
			for id := range want {
				missing = append(missing, id)
			}
			sort.Strings(missing)
			return nil, errors.NewNotFoundError("provider", strings.Join(missing, ", "))
		}
		cfgs = filtered
	}
	if len(cfgs) == 0 {
		return nil, errors.NewConfigError("providers", "no providers configured", nil)
	}
	return a.providers.BuildAll(cfgs)
}

// openSinks returns engine options for the configured record sinks and a
// function that releases them.
func openSinks(ctx context.Context, storage config.Storage) ([]corroborate.Option, func(), error) {
	var opts []corroborate.Option
	noop := func() {}

	if storage.Dir != "" {
		format, err := save.ParseFormat(storage.Format)
		if err != nil {
			return nil, noop, err
		}
		sink, err := files.New(storage.Dir, format)
		if err != nil {
			return nil, noop, err
		}
		opts = append(opts, corroborate.WithSink(sink))
	}

	if !storage.Postgres.Enabled() {
		return opts, noop, nil
	}
	store, err := postgres.New(ctx, storage.Postgres)
	if err != nil {
		return nil, noop, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, noop, err
	}
	return append(opts, corroborate.WithSink(store)), store.Close, nil
}

// NewProvidersCommand creates the providers command.
func (a *App) NewProvidersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List configured providers and registered kinds",
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := a.Settings()
			if err != nil {
				return err
			}
			format := a.format()
			switch format {
			case output.FormatJSON, output.FormatYAML:
				return output.NewFormatter(format).Format(a.stdout, settings.Providers)
			}
			if err := output.NewFormatter(format).Format(a.stdout, output.ProvidersTable(settings.Providers)); err != nil {
				return err
			}
			_, err = fmt.Fprintf(a.stdout, "\nKinds: %s\n", strings.Join(a.providers.Kinds(), ", "))
			return err
		},
	}
}

// NewConfigCommand creates the config command.
func (a *App) NewConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := a.Settings()
			if err != nil {
				return err
			}
			redacted := *settings
			if redacted.Storage.Postgres.DSN != "" {
				redacted.Storage.Postgres.DSN = "<redacted>"
			}
			if redacted.Telemetry.Headers != "" {
				redacted.Telemetry.Headers = "<redacted>"
			}
			if settings.Path != "" {
				fmt.Fprintf(a.stdout, "# %s\n", settings.Path)
			}
			return output.NewFormatter(output.FormatYAML).Format(a.stdout, redacted)
		},
	}
}

// VersionInfo is printed by the version command.
type VersionInfo struct {
	Version string `json:"version" yaml:"version"`
	Commit  string `json:"commit" yaml:"commit"`
	Date    string `json:"date" yaml:"date"`
	BuiltBy string `json:"built_by" yaml:"built_by"`
}

// NewVersionCommand creates the version command.
func (a *App) NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !a.flags.Verbose && a.flags.Format == "" {
				_, err := fmt.Fprintf(a.stdout, "corroborate %s\n", a.version)
				return err
			}
			info := VersionInfo{Version: a.version, Commit: a.commit, Date: a.date, BuiltBy: a.builtBy}
			return output.NewFormatter(a.format()).Format(a.stdout, info)
		},
	}
}
