package app

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/agentstation/corroborate/pkg/logging"
)

// NewLogger builds the CLI logger. Level precedence, highest first:
//  1. --log-level
//  2. -v/--verbose (debug)
//  3. -q/--quiet (warn)
//  4. logging.level from config or CORROBORATE_LOGGING_LEVEL
//  5. info
func NewLogger(flags *Flags, base *logging.Config) zerolog.Logger {
	cfg := logging.DefaultConfig()
	if base != nil {
		c := *base
		cfg = &c
	}
	cfg.Level = determineLogLevel(flags, cfg.Level)
	if flags.NoColor {
		cfg.NoColor = true
	}
	if cfg.Level == "debug" || cfg.Level == "trace" {
		cfg.AddCaller = true
	}
	return logging.NewLoggerFromConfig(cfg)
}

func determineLogLevel(flags *Flags, configured string) string {
	if flags.LogLevel != "" {
		validated := validateLogLevel(flags.LogLevel)
		if validated != flags.LogLevel {
			fmt.Fprintf(os.Stderr, "Warning: invalid log level %q, using %q\n", flags.LogLevel, validated)
		}
		return validated
	}

	if flags.Verbose && flags.Quiet {
		fmt.Fprintf(os.Stderr, "Warning: both --verbose and --quiet specified, using --quiet\n")
		return "warn"
	}
	if flags.Verbose {
		return "debug"
	}
	if flags.Quiet {
		return "warn"
	}
	if configured != "" {
		return validateLogLevel(configured)
	}
	return "info"
}

// validateLogLevel returns level if known, otherwise "info".
func validateLogLevel(level string) string {
	switch level {
	case "trace", "debug", "info", "warn", "error":
		return level
	}
	return "info"
}
