// Package errors provides custom error types for the corroborate engine.
// These errors let callers tell transient provider failures from fatal ones,
// record agent failures and quorum misses, and reject bad configuration early.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// New returns an error that formats as the given text.
// It's an alias for the standard library errors.New for convenience.
var New = errors.New

// Sentinel errors for the corroborate engine
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates that provided input was invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidConfig indicates a configuration value was rejected
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrAPIKeyRequired indicates that an API key is required but not provided
	ErrAPIKeyRequired = errors.New("API key required")

	// ErrProviderTransient indicates a provider failure that may succeed on retry
	ErrProviderTransient = errors.New("transient provider failure")

	// ErrProviderFatal indicates a provider failure that will not succeed on retry
	ErrProviderFatal = errors.New("fatal provider failure")

	// ErrProviderUnavailable indicates that a provider is temporarily unavailable
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrRateLimited indicates that the provider rate limit has been exceeded
	ErrRateLimited = errors.New("rate limited")

	// ErrCircuitOpen indicates a call was rejected by an open circuit breaker
	ErrCircuitOpen = errors.New("circuit open")

	// ErrAgentEvaluation indicates an evaluator agent failed or returned an invalid signal
	ErrAgentEvaluation = errors.New("agent evaluation failed")

	// ErrQuorumNotMet indicates too few valid signals were collected for a field
	ErrQuorumNotMet = errors.New("quorum not met")

	// ErrTimeout indicates that an operation timed out
	ErrTimeout = errors.New("operation timed out")
)

// NotFoundError represents an error when a resource is not found
type NotFoundError struct {
	Resource string
	ID       string
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Resource, e.ID)
}

// Is implements errors.Is support
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ValidationError represents a validation failure
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Is implements errors.Is support
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field string, value any, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// ConfigError represents a configuration error. It is fatal at startup and
// never produced once a request is running.
type ConfigError struct {
	Component string
	Message   string
	Err       error
}

// ConfigurationError is the name the engine documentation uses for ConfigError.
type ConfigurationError = ConfigError

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// NewConfigError creates a new ConfigError
func NewConfigError(component, message string, err error) *ConfigError {
	return &ConfigError{
		Component: component,
		Message:   message,
		Err:       err,
	}
}

// APIError represents a non-success HTTP response from a provider or agent backend
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
	Endpoint   string
	Err        error
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("API error from %s (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error from %s: %s", e.Provider, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *APIError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support. 429 and 5xx are transient, other 4xx are fatal.
func (e *APIError) Is(target error) bool {
	switch {
	case e.StatusCode == 429:
		return target == ErrRateLimited || target == ErrProviderTransient
	case e.StatusCode >= 500:
		return target == ErrProviderUnavailable || target == ErrProviderTransient
	case e.StatusCode >= 400:
		return target == ErrProviderFatal
	}
	return false
}

// NewAPIError creates a new APIError
func NewAPIError(provider string, statusCode int, message string) *APIError {
	return &APIError{
		Provider:   provider,
		StatusCode: statusCode,
		Message:    message,
	}
}

// ProviderError records why a provider produced no values.
type ProviderError struct {
	Provider  string
	Transient bool
	Attempts  int
	Err       error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	kind := "fatal"
	if e.Transient {
		kind = "transient"
	}
	if e.Attempts > 1 {
		return fmt.Sprintf("%s failure from provider %s after %d attempts: %v", kind, e.Provider, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s failure from provider %s: %v", kind, e.Provider, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *ProviderError) Is(target error) bool {
	if e.Transient {
		return target == ErrProviderTransient
	}
	return target == ErrProviderFatal
}

// NewProviderTransientError wraps err as a retryable provider failure
func NewProviderTransientError(provider string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Transient: true, Attempts: 1, Err: err}
}

// NewProviderFatalError wraps err as a non-retryable provider failure
func NewProviderFatalError(provider string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Attempts: 1, Err: err}
}

// CircuitOpenError is returned in place of calling a provider whose breaker is open
type CircuitOpenError struct {
	Provider string
	RetryIn  string
}

// Error implements the error interface
func (e *CircuitOpenError) Error() string {
	if e.RetryIn != "" {
		return fmt.Sprintf("circuit open for provider %s, retry in %s", e.Provider, e.RetryIn)
	}
	return fmt.Sprintf("circuit open for provider %s", e.Provider)
}

// Is implements errors.Is support
func (e *CircuitOpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}

// AgentEvaluationError records an evaluator agent that failed, timed out,
// panicked, or produced a signal that did not validate.
type AgentEvaluationError struct {
	Agent string
	Field string
	Err   error
}

// Error implements the error interface
func (e *AgentEvaluationError) Error() string {
	return fmt.Sprintf("agent %s failed on field %s: %v", e.Agent, e.Field, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *AgentEvaluationError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *AgentEvaluationError) Is(target error) bool {
	return target == ErrAgentEvaluation
}

// NewAgentEvaluationError creates a new AgentEvaluationError
func NewAgentEvaluationError(agent, field string, err error) *AgentEvaluationError {
	return &AgentEvaluationError{Agent: agent, Field: field, Err: err}
}

// QuorumNotMetError records a field whose panel returned too few valid signals
type QuorumNotMetError struct {
	Field string
	Got   int
	Want  int
}

// Error implements the error interface
func (e *QuorumNotMetError) Error() string {
	return fmt.Sprintf("quorum not met for field %s: %d valid signals, need %d", e.Field, e.Got, e.Want)
}

// Is implements errors.Is support
func (e *QuorumNotMetError) Is(target error) bool {
	return target == ErrQuorumNotMet
}

// NewQuorumNotMetError creates a new QuorumNotMetError
func NewQuorumNotMetError(field string, got, want int) *QuorumNotMetError {
	return &QuorumNotMetError{Field: field, Got: got, Want: want}
}

// TimeoutError represents an operation timeout
type TimeoutError struct {
	Operation string
	Duration  string
	Message   string
}

// Error implements the error interface
func (e *TimeoutError) Error() string {
	if e.Duration != "" {
		return fmt.Sprintf("operation %s timed out after %s: %s", e.Operation, e.Duration, e.Message)
	}
	return fmt.Sprintf("operation %s timed out: %s", e.Operation, e.Message)
}

// Is implements errors.Is support
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout || target == ErrProviderTransient
}

// NewTimeoutError creates a new TimeoutError
func NewTimeoutError(operation, duration, message string) *TimeoutError {
	return &TimeoutError{
		Operation: operation,
		Duration:  duration,
		Message:   message,
	}
}

// AuthenticationError represents a missing or rejected credential
type AuthenticationError struct {
	Provider string
	Method   string
	Message  string
	Err      error
}

// Error implements the error interface
func (e *AuthenticationError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("authentication error for %s (%s): %s", e.Provider, e.Method, e.Message)
	}
	return fmt.Sprintf("authentication error (%s): %s", e.Method, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support. Authentication never heals on retry.
func (e *AuthenticationError) Is(target error) bool {
	return target == ErrAPIKeyRequired || target == ErrProviderFatal
}

// NewAuthenticationError creates a new AuthenticationError
func NewAuthenticationError(provider, method, message string, err error) *AuthenticationError {
	return &AuthenticationError{
		Provider: provider,
		Method:   method,
		Message:  message,
		Err:      err,
	}
}

// IOError represents an error during I/O operations
type IOError struct {
	Operation string
	Path      string
	Err       error
}

// Error implements the error interface
func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("IO error during %s of %s: %v", e.Operation, e.Path, e.Err)
	}
	return fmt.Sprintf("IO error during %s: %v", e.Operation, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *IOError) Unwrap() error {
	return e.Err
}

// Helper functions for error checking

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsConfigError checks if an error is a configuration error
func IsConfigError(err error) bool {
	return errors.Is(err, ErrInvalidConfig)
}

// IsRateLimited checks if an error is a rate limit error
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsTimeout checks if an error is a timeout error
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// IsCircuitOpen checks if a call was rejected by a breaker
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

// IsQuorumNotMet checks if an error reports a missed quorum
func IsQuorumNotMet(err error) bool {
	return errors.Is(err, ErrQuorumNotMet)
}

// IsFatal reports whether err is a provider failure that retrying cannot fix.
func IsFatal(err error) bool {
	return errors.Is(err, ErrProviderFatal)
}

// IsTransient reports whether err is worth retrying. Caller cancellation is
// never transient; timeouts, rate limits, and 5xx responses are. Errors that
// carry no classification are treated as transient network failures.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrProviderFatal) || errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrInvalidInput) {
		return false
	}
	if errors.Is(err, ErrProviderTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) {
		return timeout.Timeout()
	}
	return true
}

// Helper wrapping functions for common patterns

// WrapValidation wraps an error as a ValidationError
func WrapValidation(field string, err error) error {
	if err == nil {
		return nil
	}
	return &ValidationError{Field: field, Message: err.Error()}
}

// WrapIO wraps an error as an IOError
func WrapIO(operation, path string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Operation: operation, Path: path, Err: err}
}

// WrapAPI wraps an error as an APIError
func WrapAPI(provider string, statusCode int, err error) error {
	if err == nil {
		return nil
	}
	return &APIError{
		Provider:   provider,
		StatusCode: statusCode,
		Message:    err.Error(),
		Err:        err,
	}
}
