package app

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentstation/corroborate/internal/cmd/output"
)

// Execute runs the CLI with the given arguments.
func (a *App) Execute(ctx context.Context, args []string) error {
	rootCmd := a.createRootCommand()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(a.stdout)
	return rootCmd.ExecuteContext(ctx)
}

func (a *App) createRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "corroborate",
		Short:   "Resolve company facts from many sources into one record",
		Version: a.version,
		Long: `Corroborate gathers company facts from every configured provider in
parallel, classifies each field as unanimous, conflicting, or absent, and
resolves conflicts with a panel of evaluator agents and a weighted scoring
model. Every decision is recorded with the rules that produced it.`,
		PersistentPreRunE: a.setupCommand,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.flags.ConfigFile, "config", "", "config file (default ./corroborate.yaml)")
	flags.BoolVarP(&a.flags.Verbose, "verbose", "v", false, "verbose output (shortcut for --log-level=debug)")
	flags.BoolVarP(&a.flags.Quiet, "quiet", "q", false, "minimal output (shortcut for --log-level=warn)")
	flags.BoolVar(&a.flags.NoColor, "no-color", false, "disable colored output")
	flags.StringVarP(&a.flags.Format, "format", "o", "", "output format: table, wide, json, yaml")
	flags.StringVar(&a.flags.LogLevel, "log-level", "", "log level: trace, debug, info, warn, error (overrides -v/-q)")

	rootCmd.SetVersionTemplate("corroborate {{.Version}}\n")

	rootCmd.AddCommand(
		a.NewResolveCommand(),
		a.NewProvidersCommand(),
		a.NewConfigCommand(),
		a.NewVersionCommand(),
	)
	return rootCmd
}

// setupCommand loads configuration and rebuilds the logger from flags.
func (a *App) setupCommand(cmd *cobra.Command, _ []string) error {
	if _, err := output.ParseFormat(a.flags.Format); err != nil {
		return err
	}
	if cmd.Name() == "version" {
		return nil
	}
	settings, err := a.Settings()
	if err != nil {
		return err
	}
	logger := NewLogger(a.flags, &settings.Logging)
	a.logger = &logger
	return nil
}

// format returns the output format, detecting it from the terminal when
// no flag was given.
func (a *App) format() output.Format {
	return output.DetectFormat(a.flags.Format)
}

// ExitOnError prints err and exits with status 1.
func ExitOnError(err error) {
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}
