package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	pkgerrors "github.com/agentstation/corroborate/pkg/errors"
	"github.com/agentstation/corroborate/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) retry.Policy {
	return retry.Policy{MaxAttempts: attempts, Base: time.Millisecond, Max: 4 * time.Millisecond}
}

func TestDoDoublesWaitsUpToMax(t *testing.T) {
	var waits []time.Duration
	p := retry.Policy{MaxAttempts: 5, Base: time.Millisecond, Max: 4 * time.Millisecond}
	p.OnRetry = func(_ int, _ error, wait time.Duration) { waits = append(waits, wait) }

	attempts, err := retry.Do(context.Background(), p, func(context.Context) error {
		return pkgerrors.NewAPIError("registry", 503, "unavailable")
	})
	require.Error(t, err)
	assert.Equal(t, 5, attempts)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond, 4 * time.Millisecond}, waits)
}

func TestDoJitterStaysInRange(t *testing.T) {
	var waits []time.Duration
	p := retry.Policy{MaxAttempts: 4, Base: 2 * time.Millisecond, Max: 8 * time.Millisecond, Jitter: 0.5}
	p.OnRetry = func(_ int, _ error, wait time.Duration) { waits = append(waits, wait) }

	_, err := retry.Do(context.Background(), p, func(context.Context) error {
		return pkgerrors.NewAPIError("registry", 503, "unavailable")
	})
	require.Error(t, err)
	require.Len(t, waits, 3)
	for i, want := range []time.Duration{2 * time.Millisecond, 4 * time.Millisecond, 8 * time.Millisecond} {
		assert.GreaterOrEqual(t, waits[i], want/2)
		assert.LessOrEqual(t, waits[i], want*3/2)
	}
}

func TestDoCustomBackoff(t *testing.T) {
	var ns []int
	p := fastPolicy(4)
	p.Backoff = func(n int, _, _ time.Duration) time.Duration {
		ns = append(ns, n)
		return 0
	}
	attempts, err := retry.Do(context.Background(), p, func(context.Context) error {
		return errors.New("connection reset")
	})
	require.Error(t, err)
	assert.Equal(t, 4, attempts)
	assert.Equal(t, []int{0, 1, 2}, ns)
}

func TestDoSucceedsFirstTry(t *testing.T) {
	calls := 0
	attempts, err := retry.Do(context.Background(), fastPolicy(3), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesTransient(t *testing.T) {
	calls := 0
	var waits []time.Duration
	p := fastPolicy(3)
	p.OnRetry = func(_ int, _ error, wait time.Duration) { waits = append(waits, wait) }

	attempts, err := retry.Do(context.Background(), p, func(context.Context) error {
		calls++
		if calls < 3 {
			return pkgerrors.NewAPIError("registry", 503, "unavailable")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, waits)
}

func TestDoStopsOnFatal(t *testing.T) {
	calls := 0
	attempts, err := retry.Do(context.Background(), fastPolicy(5), func(context.Context) error {
		calls++
		return pkgerrors.NewAPIError("registry", 401, "unauthorized")
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsFatal(err))
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	sentinel := pkgerrors.NewAPIError("registry", 429, "slow down")
	attempts, err := retry.Do(context.Background(), fastPolicy(3), func(context.Context) error {
		return sentinel
	})
	assert.Equal(t, 3, attempts)
	assert.True(t, errors.Is(err, sentinel))
	assert.True(t, pkgerrors.IsRateLimited(err))
}

func TestDoHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := retry.Policy{MaxAttempts: 5, Base: time.Hour, Max: time.Hour}

	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	attempts, err := retry.Do(ctx, p, func(context.Context) error {
		calls++
		return errors.New("connection reset")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), time.Minute)
}

func TestDoCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	attempts, err := retry.Do(ctx, fastPolicy(3), func(context.Context) error {
		t.Fatal("fn must not run")
		return nil
	})
	assert.Zero(t, attempts)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoCustomRetryable(t *testing.T) {
	p := fastPolicy(4)
	p.Retryable = func(error) bool { return false }
	calls := 0
	_, err := retry.Do(context.Background(), p, func(context.Context) error {
		calls++
		return errors.New("x")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestPolicyValidate(t *testing.T) {
	require.NoError(t, retry.DefaultPolicy().Validate())
	assert.Error(t, retry.Policy{MaxAttempts: 0}.Validate())
	assert.Error(t, retry.Policy{MaxAttempts: 1, Base: -1}.Validate())
	assert.Error(t, retry.Policy{MaxAttempts: 1, Base: time.Minute, Max: time.Second}.Validate())
	assert.Error(t, retry.Policy{MaxAttempts: 1, Jitter: 1}.Validate())
}
