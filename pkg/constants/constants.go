// Package constants provides shared constants used throughout the corroborate codebase.
// This includes timeouts, limits, scoring defaults, file permissions, and other
// configuration values that should be consistent across the application.
package constants

import "time"

// Timeout constants define various timeout durations used in the engine
const (
	// DefaultRequestDeadline bounds a whole resolve request, from first fetch to record
	DefaultRequestDeadline = 20 * time.Second

	// DefaultProviderTimeout is the per-call transport timeout for a single provider
	DefaultProviderTimeout = 5 * time.Second

	// DefaultAgentTimeout bounds a single evaluator agent call
	DefaultAgentTimeout = 4 * time.Second

	// DefaultHTTPTimeout is the standard timeout for outbound HTTP clients
	DefaultHTTPTimeout = 30 * time.Second

	// CommandTimeout is the default timeout for CLI commands
	CommandTimeout = 2 * time.Minute

	// RetryBackoff is the base backoff duration for retries
	RetryBackoff = 1 * time.Second

	// MaxRetryBackoff is the maximum backoff duration for retries
	MaxRetryBackoff = 30 * time.Second

	// BreakerCooldown is how long an open circuit rejects calls before a trial
	BreakerCooldown = 30 * time.Second
)

// Limit constants define various limits and capacities
const (
	// MaxRetries is the maximum number of attempts for a failed provider call
	MaxRetries = 3

	// BreakerFailureThreshold is the number of consecutive failures that opens a circuit
	BreakerFailureThreshold = 5

	// DefaultPanelSize is the number of evaluator agents consulted per conflicting field
	DefaultPanelSize = 12

	// MinPanelSize and MaxPanelSize bound the configurable panel size
	MinPanelSize = 1
	MaxPanelSize = 64

	// DefaultQuorum is the minimum number of valid signals needed to score a field
	DefaultQuorum = 3

	// MaxConcurrentProviders is the default worker pool size for provider fetches
	MaxConcurrentProviders = 16

	// MaxConcurrentAgents is the default worker pool size for panel agents
	MaxConcurrentAgents = 16

	// MaxProviders is the maximum number of providers in one request
	MaxProviders = 100
)

// Scoring constants
const (
	// DefaultNumericTolerance is the relative difference under which two numbers are equal
	DefaultNumericTolerance = 0.05

	// ReliabilityWeight, AgreementWeight and ConfidenceWeight are the default score weights
	ReliabilityWeight = 0.4
	AgreementWeight   = 0.3
	ConfidenceWeight  = 0.3

	// RecencyWeight is off unless configured
	RecencyWeight = 0.0

	// FallbackConfidenceCap is the highest confidence a no-quorum decision may carry
	FallbackConfidenceCap = 0.3

	// ScoreEpsilon is the margin under which two scores are treated as tied
	ScoreEpsilon = 1e-9

	// RecencyHalfLife is the default age at which a recency score halves
	RecencyHalfLife = 365 * 24 * time.Hour
)

// File permission constants define standard Unix file permissions
const (
	// DirPermissions is the default permission for created directories (rwxr-xr-x)
	DirPermissions = 0755

	// FilePermissions is the default permission for created files (rw-r--r--)
	FilePermissions = 0644
)

// Environment
const (
	// EnvPrefix is the prefix for configuration environment variables
	EnvPrefix = "CORROBORATE"

	// DefaultConfigName is the config file name looked up without extension
	DefaultConfigName = "corroborate"
)
