package sources_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentstation/corroborate/pkg/breaker"
	pkgerrors "github.com/agentstation/corroborate/pkg/errors"
	"github.com/agentstation/corroborate/pkg/records"
	"github.com/agentstation/corroborate/pkg/retry"
	"github.com/agentstation/corroborate/pkg/sources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var acme = records.Subject{Name: "Acme", Domain: "acme.com"}

func fastRetry(attempts int) retry.Policy {
	return retry.Policy{MaxAttempts: attempts, Base: time.Millisecond, Max: 2 * time.Millisecond}
}

func newGatherer(t *testing.T, reg *breaker.Registry, opts ...sources.Option) *sources.Gatherer {
	t.Helper()
	if reg == nil {
		reg = breaker.NewRegistry(breaker.DefaultConfig())
	}
	opts = append([]sources.Option{sources.WithRetryPolicy(fastRetry(3))}, opts...)
	g, err := sources.NewGatherer(reg, opts...)
	require.NoError(t, err)
	return g
}

func static(id string, tier int, values records.FieldValues) *sources.FuncProvider {
	return sources.NewFuncProvider(records.SourceID(id), records.Tier(tier), time.Second,
		func(context.Context, records.Subject) (records.FieldValues, error) {
			return values, nil
		})
}

func failing(id string, err error, calls *atomic.Int32) *sources.FuncProvider {
	return sources.NewFuncProvider(records.SourceID(id), 2, time.Second,
		func(context.Context, records.Subject) (records.FieldValues, error) {
			if calls != nil {
				calls.Add(1)
			}
			return nil, err
		})
}

func TestGatherValidation(t *testing.T) {
	g := newGatherer(t, nil)
	_, err := g.Gather(context.Background(), sources.GatherRequest{Subject: acme})
	assert.True(t, pkgerrors.IsConfigError(err), "zero providers is a configuration error")

	_, err = g.Gather(context.Background(), sources.GatherRequest{Providers: []sources.Provider{static("a", 1, nil)}})
	assert.True(t, pkgerrors.IsConfigError(err))

	_, err = g.Gather(context.Background(), sources.GatherRequest{
		Subject:   acme,
		Providers: []sources.Provider{static("a", 1, nil), static("a", 2, nil)},
	})
	assert.True(t, pkgerrors.IsConfigError(err))

	_, err = g.Gather(context.Background(), sources.GatherRequest{
		Subject:   acme,
		Providers: []sources.Provider{static("a", 0, nil)},
	})
	assert.True(t, pkgerrors.IsConfigError(err))

	_, err = sources.NewGatherer(nil)
	assert.Error(t, err)
	_, err = sources.NewGatherer(breaker.NewRegistry(breaker.DefaultConfig()), sources.WithWorkers(0))
	assert.Error(t, err)
}

func TestGatherGracefulDegradation(t *testing.T) {
	g := newGatherer(t, nil)
	results, err := g.Gather(context.Background(), sources.GatherRequest{
		Subject: acme,
		Providers: []sources.Provider{
			static("c-ok", 2, records.FieldValues{"industry": "Software"}),
			failing("b-broken", pkgerrors.NewAPIError("b-broken", 500, "down"), nil),
			static("a-ok", 1, records.FieldValues{"employee_count": 500}),
		},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, records.SourceID("a-ok"), results[0].SourceID)
	assert.Equal(t, records.SourceID("b-broken"), results[1].SourceID)
	assert.Equal(t, records.SourceID("c-ok"), results[2].SourceID)

	assert.True(t, results[0].OK())
	assert.Equal(t, 500, results[0].FieldValues["employee_count"])
	assert.False(t, results[1].OK())
	assert.Empty(t, results[1].FieldValues)
	assert.Equal(t, 3, results[1].Attempts)
	assert.True(t, errors.Is(results[1].Err, pkgerrors.ErrProviderTransient))
	assert.True(t, results[2].OK())
}

func TestGatherFatalErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	g := newGatherer(t, nil)
	results, err := g.Gather(context.Background(), sources.GatherRequest{
		Subject:   acme,
		Providers: []sources.Provider{failing("auth", pkgerrors.NewAPIError("auth", 403, "forbidden"), &calls)},
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, pkgerrors.IsFatal(results[0].Err))
	assert.Equal(t, 1, results[0].Attempts)
}

func TestGatherRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	flaky := sources.NewFuncProvider("flaky", 1, time.Second, func(context.Context, records.Subject) (records.FieldValues, error) {
		if calls.Add(1) < 3 {
			return nil, pkgerrors.NewAPIError("flaky", 429, "slow down")
		}
		return records.FieldValues{"ceo": "Jane Roe"}, nil
	})
	g := newGatherer(t, nil)
	results, err := g.Gather(context.Background(), sources.GatherRequest{Subject: acme, Providers: []sources.Provider{flaky}})
	require.NoError(t, err)
	require.True(t, results[0].OK())
	assert.Equal(t, 3, results[0].Attempts)
}

func TestGatherCircuitBreaker(t *testing.T) {
	clock := breaker.NewManualClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	reg := breaker.NewRegistry(breaker.Config{Threshold: 5, Cooldown: 30 * time.Second}, breaker.WithClock(clock.Now))
	g := newGatherer(t, reg, sources.WithRetryPolicy(fastRetry(1)))

	var calls atomic.Int32
	shouldFail := atomic.Bool{}
	shouldFail.Store(true)
	p := sources.NewFuncProvider("flaky", 1, time.Second, func(context.Context, records.Subject) (records.FieldValues, error) {
		calls.Add(1)
		if shouldFail.Load() {
			return nil, pkgerrors.NewAPIError("flaky", 503, "unavailable")
		}
		return records.FieldValues{"industry": "Software"}, nil
	})
	req := sources.GatherRequest{Subject: acme, Providers: []sources.Provider{p}}

	for i := 0; i < 5; i++ {
		results, err := g.Gather(context.Background(), req)
		require.NoError(t, err)
		assert.False(t, results[0].OK())
	}
	assert.Equal(t, int32(5), calls.Load())
	assert.Equal(t, breaker.Open, reg.Get("flaky").State())

	// Sixth call is rejected without reaching the provider.
	results, err := g.Gather(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, pkgerrors.IsCircuitOpen(results[0].Err))
	assert.Equal(t, int32(5), calls.Load())

	// After the cooldown a single trial is admitted and closes the circuit.
	clock.Advance(30 * time.Second)
	shouldFail.Store(false)
	results, err = g.Gather(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, results[0].OK())
	assert.Equal(t, int32(6), calls.Load())
	assert.Equal(t, breaker.Closed, reg.Get("flaky").State())
}

func TestGatherDeadline(t *testing.T) {
	slow := sources.NewFuncProvider("slow", 1, time.Minute, func(ctx context.Context, _ records.Subject) (records.FieldValues, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	stuck := sources.NewFuncProvider("stuck", 1, time.Minute, func(context.Context, records.Subject) (records.FieldValues, error) {
		time.Sleep(500 * time.Millisecond)
		return records.FieldValues{"ceo": "late"}, nil
	})
	fast := static("fast", 1, records.FieldValues{"ceo": "Jane Roe"})

	g := newGatherer(t, nil, sources.WithDeadline(50*time.Millisecond))
	start := time.Now()
	results, err := g.Gather(context.Background(), sources.GatherRequest{
		Subject:   acme,
		Providers: []sources.Provider{slow, stuck, fast},
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 400*time.Millisecond, "gather returns at the deadline")
	require.Len(t, results, 3)

	assert.True(t, results[0].OK(), "fast")
	assert.False(t, results[1].OK(), "slow")
	assert.True(t, pkgerrors.IsTimeout(results[1].Err))
	assert.False(t, results[2].OK(), "stuck")
	assert.True(t, pkgerrors.IsTimeout(results[2].Err))
}

func TestGatherPerCallTimeoutIsTransient(t *testing.T) {
	var calls atomic.Int32
	slow := sources.NewFuncProvider("slow", 1, 5*time.Millisecond, func(ctx context.Context, _ records.Subject) (records.FieldValues, error) {
		calls.Add(1)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	g := newGatherer(t, nil)
	results, err := g.Gather(context.Background(), sources.GatherRequest{Subject: acme, Providers: []sources.Provider{slow}})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load(), "timeouts are retried")
	assert.True(t, pkgerrors.IsTransient(results[0].Err))
}

func TestGatherProviderPanic(t *testing.T) {
	boom := sources.NewFuncProvider("boom", 1, time.Second, func(context.Context, records.Subject) (records.FieldValues, error) {
		panic("nil map")
	})
	g := newGatherer(t, nil)
	results, err := g.Gather(context.Background(), sources.GatherRequest{
		Subject:   acme,
		Providers: []sources.Provider{boom, static("ok", 1, records.FieldValues{"ceo": "x"})},
	})
	require.NoError(t, err)
	assert.True(t, pkgerrors.IsFatal(results[0].Err))
	assert.Contains(t, results[0].Err.Error(), "panic: nil map")
	assert.True(t, results[1].OK())
}

func TestGatherCancelledDoesNotTripBreaker(t *testing.T) {
	reg := breaker.NewRegistry(breaker.Config{Threshold: 1, Cooldown: time.Hour})
	g := newGatherer(t, reg)
	ctx, cancel := context.WithCancel(context.Background())
	p := sources.NewFuncProvider("c", 1, time.Second, func(ctx context.Context, _ records.Subject) (records.FieldValues, error) {
		cancel()
		return nil, context.Canceled
	})
	results, err := g.Gather(ctx, sources.GatherRequest{Subject: acme, Providers: []sources.Provider{p}})
	require.NoError(t, err)
	assert.False(t, results[0].OK())
	assert.Equal(t, breaker.Closed, reg.Get("c").State())
}

func TestGatherBusyWorkerDoesNotHoldDeadline(t *testing.T) {
	hung := sources.NewFuncProvider("a-hung", 1, time.Minute, func(context.Context, records.Subject) (records.FieldValues, error) {
		time.Sleep(2 * time.Second)
		return records.FieldValues{"ceo": "late"}, nil
	})
	fast := static("b-fast", 1, records.FieldValues{"ceo": "Jane Roe"})

	g := newGatherer(t, nil, sources.WithDeadline(100*time.Millisecond), sources.WithWorkers(1))
	start := time.Now()
	results, err := g.Gather(context.Background(), sources.GatherRequest{
		Subject:   acme,
		Providers: []sources.Provider{hung, fast},
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second, "gather returns at the deadline")
	require.Len(t, results, 2)
	assert.False(t, results[0].OK())
	assert.True(t, pkgerrors.IsTimeout(results[0].Err))
	assert.Equal(t, records.SourceID("b-fast"), results[1].SourceID)
}

func TestGatherAbandonsProviderIgnoringCallTimeout(t *testing.T) {
	var calls atomic.Int32
	hung := sources.NewFuncProvider("a-hung", 1, 20*time.Millisecond, func(context.Context, records.Subject) (records.FieldValues, error) {
		calls.Add(1)
		time.Sleep(2 * time.Second)
		return records.FieldValues{"ceo": "late"}, nil
	})
	fast := static("b-fast", 1, records.FieldValues{"ceo": "Jane Roe"})

	g := newGatherer(t, nil, sources.WithDeadline(time.Second), sources.WithWorkers(1))
	start := time.Now()
	results, err := g.Gather(context.Background(), sources.GatherRequest{
		Subject:   acme,
		Providers: []sources.Provider{hung, fast},
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 900*time.Millisecond, "the freed worker reaches the fast provider")
	require.Len(t, results, 2)

	assert.False(t, results[0].OK())
	assert.True(t, pkgerrors.IsTransient(results[0].Err))
	assert.Equal(t, int32(3), calls.Load(), "each abandoned call is retried")
	assert.True(t, results[1].OK(), "fast provider runs once the worker is free")
	assert.Equal(t, "Jane Roe", results[1].FieldValues["ceo"])
}
