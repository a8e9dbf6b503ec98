package errors_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	pkgerrors "github.com/agentstation/corroborate/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := pkgerrors.New("test error")
	assert.NotNil(t, err)
	assert.Equal(t, "test error", err.Error())
}

func TestAPIErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
		fatal     bool
		rateLimit bool
	}{
		{"rate limited", 429, true, false, true},
		{"server error", 503, true, false, false},
		{"bad gateway", 502, true, false, false},
		{"unauthorized", 401, false, true, false},
		{"not found", 404, false, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := pkgerrors.NewAPIError("crunchbase", tt.status, "boom")
			assert.Equal(t, tt.transient, pkgerrors.IsTransient(err))
			assert.Equal(t, tt.fatal, pkgerrors.IsFatal(err))
			assert.Equal(t, tt.rateLimit, pkgerrors.IsRateLimited(err))
			assert.Contains(t, err.Error(), fmt.Sprintf("status %d", tt.status))
		})
	}
}

func TestProviderError(t *testing.T) {
	t.Run("transient", func(t *testing.T) {
		err := pkgerrors.NewProviderTransientError("registry", errors.New("connection reset"))
		assert.True(t, errors.Is(err, pkgerrors.ErrProviderTransient))
		assert.False(t, errors.Is(err, pkgerrors.ErrProviderFatal))
		assert.True(t, pkgerrors.IsTransient(err))
		assert.Contains(t, err.Error(), "transient failure from provider registry")
	})

	t.Run("fatal", func(t *testing.T) {
		err := pkgerrors.NewProviderFatalError("registry", errors.New("schema mismatch"))
		assert.True(t, pkgerrors.IsFatal(err))
		assert.False(t, pkgerrors.IsTransient(err))
	})

	t.Run("attempts in message", func(t *testing.T) {
		err := &pkgerrors.ProviderError{Provider: "registry", Transient: true, Attempts: 3, Err: errors.New("503")}
		assert.Contains(t, err.Error(), "after 3 attempts")
	})

	t.Run("unwrap to api error", func(t *testing.T) {
		api := pkgerrors.NewAPIError("registry", 503, "unavailable")
		err := pkgerrors.NewProviderTransientError("registry", api)
		var target *pkgerrors.APIError
		require.True(t, errors.As(err, &target))
		assert.Equal(t, 503, target.StatusCode)
	})
}

func TestIsTransient(t *testing.T) {
	assert.False(t, pkgerrors.IsTransient(nil))
	assert.False(t, pkgerrors.IsTransient(context.Canceled))
	assert.True(t, pkgerrors.IsTransient(context.DeadlineExceeded))
	assert.True(t, pkgerrors.IsTransient(errors.New("dial tcp: i/o timeout")))
	assert.False(t, pkgerrors.IsTransient(&pkgerrors.CircuitOpenError{Provider: "x"}))
	assert.False(t, pkgerrors.IsTransient(pkgerrors.NewValidationError("domain", "", "empty")))
	assert.True(t, pkgerrors.IsTransient(pkgerrors.NewTimeoutError("fetch", "5s", "slow")))
	assert.False(t, pkgerrors.IsTransient(pkgerrors.NewAuthenticationError("x", "api_key", "missing", nil)))
}

func TestCircuitOpenError(t *testing.T) {
	err := &pkgerrors.CircuitOpenError{Provider: "opencorp", RetryIn: "12s"}
	assert.True(t, pkgerrors.IsCircuitOpen(err))
	assert.Equal(t, "circuit open for provider opencorp, retry in 12s", err.Error())
}

func TestAgentEvaluationError(t *testing.T) {
	base := errors.New("score out of range")
	err := pkgerrors.NewAgentEvaluationError("tier-01", "employee_count", base)
	assert.True(t, errors.Is(err, pkgerrors.ErrAgentEvaluation))
	assert.True(t, errors.Is(err, base))
	assert.Equal(t, "agent tier-01 failed on field employee_count: score out of range", err.Error())
}

func TestQuorumNotMetError(t *testing.T) {
	err := pkgerrors.NewQuorumNotMetError("headquarters", 2, 3)
	assert.True(t, pkgerrors.IsQuorumNotMet(err))
	assert.Equal(t, "quorum not met for field headquarters: 2 valid signals, need 3", err.Error())

	joined := errors.Join(errors.New("panel"), err)
	assert.True(t, pkgerrors.IsQuorumNotMet(joined))
}

func TestConfigError(t *testing.T) {
	t.Run("with component", func(t *testing.T) {
		err := pkgerrors.NewConfigError("revolver", "weights must sum to at most 1", nil)
		assert.Equal(t, "configuration error in revolver: weights must sum to at most 1", err.Error())
		assert.True(t, pkgerrors.IsConfigError(err))
	})

	t.Run("alias", func(t *testing.T) {
		var err error = &pkgerrors.ConfigurationError{Message: "no providers"}
		assert.True(t, pkgerrors.IsConfigError(err))
		assert.Equal(t, "configuration error: no providers", err.Error())
	})

	t.Run("unwrap", func(t *testing.T) {
		inner := errors.New("bad yaml")
		err := pkgerrors.NewConfigError("config", "load failed", inner)
		assert.True(t, errors.Is(err, inner))
	})
}

func TestValidationError(t *testing.T) {
	err := pkgerrors.NewValidationError("confidence", 1.2, "must be within [0,1]")
	assert.Equal(t, "validation failed for field confidence: must be within [0,1]", err.Error())
	assert.True(t, pkgerrors.IsValidationError(err))

	assert.Nil(t, pkgerrors.WrapValidation("x", nil))
	wrapped := pkgerrors.WrapValidation("x", errors.New("bad"))
	assert.True(t, pkgerrors.IsValidationError(wrapped))
}

func TestWrapHelpers(t *testing.T) {
	assert.Nil(t, pkgerrors.WrapIO("write", "/tmp/x", nil))
	assert.Nil(t, pkgerrors.WrapAPI("p", 500, nil))

	ioErr := pkgerrors.WrapIO("write", "/tmp/x", errors.New("disk full"))
	assert.Equal(t, "IO error during write of /tmp/x: disk full", ioErr.Error())

	apiErr := pkgerrors.WrapAPI("p", 500, errors.New("oops"))
	assert.True(t, pkgerrors.IsTransient(apiErr))
}
