package sources

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/agentstation/corroborate/pkg/breaker"
	"github.com/agentstation/corroborate/pkg/errors"
	"github.com/agentstation/corroborate/pkg/logging"
	"github.com/agentstation/corroborate/pkg/records"
	"github.com/agentstation/corroborate/pkg/retry"
)

// Gatherer fetches from every provider of a request concurrently.
type Gatherer struct {
	breakers *breaker.Registry
	opts     *options
}

// NewGatherer creates a Gatherer. The breaker registry is shared by every
// request the Gatherer serves.
func NewGatherer(breakers *breaker.Registry, opts ...Option) (*Gatherer, error) {
	if breakers == nil {
		return nil, errors.NewConfigError("gather", "breaker registry is required", nil)
	}
	o, err := defaultOptions().apply(opts...)
	if err != nil {
		return nil, err
	}
	return &Gatherer{breakers: breakers, opts: o}, nil
}

// Breakers returns the shared breaker registry.
func (g *Gatherer) Breakers() *breaker.Registry {
	return g.breakers
}

// slots collects per-provider results. After the deadline it is sealed and
// late writers are dropped.
type slots struct {
	mu      sync.Mutex
	results []records.FetchResult
	filled  []bool
	sealed  bool
}

func (s *slots) put(i int, r records.FetchResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return
	}
	s.results[i] = r
	s.filled[i] = true
}

func (s *slots) seal() ([]records.FetchResult, []bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sealed = true
	return append([]records.FetchResult(nil), s.results...), append([]bool(nil), s.filled...)
}

// Gather returns one FetchResult per provider, ordered by source ID. It only
// returns an error when the request itself is invalid.
func (g *Gatherer) Gather(ctx context.Context, req GatherRequest) ([]records.FetchResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.opts.deadline)
	defer cancel()

	logger := logging.FromContext(ctx)
	logger.Info().
		Int("provider_count", len(req.Providers)).
		Dur("deadline", g.opts.deadline).
		Msg("Gathering from providers concurrently")

	out := &slots{
		results: make([]records.FetchResult, len(req.Providers)),
		filled:  make([]bool, len(req.Providers)),
	}

	// Dispatch runs in the background so a full pool never holds Gather
	// past the deadline. Providers still queued at the deadline are skipped.
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		p := pool.New().WithMaxGoroutines(g.opts.workers)
		for i, provider := range req.Providers {
			if ctx.Err() != nil {
				break
			}
			p.Go(func() {
				out.put(i, g.fetchOne(ctx, req.Subject, provider))
			})
		}
		p.Wait()
	}()

	select {
	case <-finished:
	case <-ctx.Done():
		// Give providers that honour cancellation a moment to report.
		select {
		case <-finished:
		case <-time.After(10 * time.Millisecond):
		}
	}

	results, filled := out.seal()
	for i, ok := range filled {
		if ok {
			continue
		}
		results[i] = g.missedDeadline(req.Providers[i])
	}
	records.SortFetchResults(results)

	var failed int
	for _, r := range results {
		if !r.OK() {
			failed++
		}
	}
	logger.Info().
		Int("succeeded", len(results)-failed).
		Int("failed", failed).
		Msg("Gather complete")

	return results, nil
}

// missedDeadline is the result for a provider that did not finish in time.
func (g *Gatherer) missedDeadline(p Provider) records.FetchResult {
	return records.FetchResult{
		SourceID:  p.ID(),
		Tier:      p.Tier(),
		FetchedAt: g.opts.now(),
		Err: &errors.ProviderError{
			Provider:  string(p.ID()),
			Transient: true,
			Err:       errors.NewTimeoutError("gather", g.opts.deadline.String(), "provider did not finish before the request deadline"),
		},
	}
}

// fetchOne runs a single provider under its breaker and the retry policy.
func (g *Gatherer) fetchOne(ctx context.Context, subject records.Subject, p Provider) records.FetchResult {
	id := p.ID()
	ctx = logging.WithProvider(ctx, string(id))
	logger := logging.FromContext(ctx)

	start := g.opts.now()
	res := records.FetchResult{SourceID: id, Tier: p.Tier()}

	// Reached the front of the queue after the deadline; the breaker never saw it.
	if err := ctx.Err(); err != nil {
		if err == context.DeadlineExceeded {
			return g.missedDeadline(p)
		}
		res.Err = err
		res.FetchedAt = start
		return res
	}

	done, err := g.breakers.Get(string(id)).Allow()
	if err != nil {
		logger.Warn().Err(err).Msg("Skipping provider - circuit open")
		res.Err = err
		res.FetchedAt = g.opts.now()
		return res
	}

	timeout := p.Timeout()
	if timeout <= 0 {
		timeout = g.opts.callTimeout
	}

	policy := g.opts.retry
	policy.OnRetry = func(attempt int, err error, wait time.Duration) {
		logger.Debug().Err(err).Int("attempt", attempt).Dur("backoff", wait).Msg("Retrying provider")
	}

	var values records.FieldValues
	attempts, err := retry.Do(ctx, policy, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		v, err := callProvider(callCtx, p, subject)
		if err != nil {
			if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
				return errors.NewTimeoutError("fetch", timeout.String(), err.Error())
			}
			return err
		}
		values = v
		return nil
	})

	res.Attempts = attempts
	res.FetchedAt = g.opts.now()
	res.Duration = res.FetchedAt.Sub(start)

	switch {
	case err == nil:
		done(breaker.Success)
		res.FieldValues = values
		logger.Info().
			Int("field_count", len(values)).
			Int("attempts", attempts).
			Msg("Fetched subject")
	case stderrors.Is(err, context.Canceled):
		done(breaker.Ignored)
		res.Err = err
		logger.Debug().Err(err).Msg("Provider call cancelled")
	default:
		done(breaker.Failure)
		res.Err = &errors.ProviderError{
			Provider:  string(id),
			Transient: errors.IsTransient(err),
			Attempts:  attempts,
			Err:       err,
		}
		logger.Warn().Err(res.Err).Int("attempts", attempts).Msg("Provider failed")
	}
	return res
}

// callProvider runs one fetch attempt. A provider that ignores cancellation
// is abandoned when ctx is done and its late reply is dropped.
func callProvider(ctx context.Context, p Provider, subject records.Subject) (records.FieldValues, error) {
	type reply struct {
		values records.FieldValues
		err    error
	}
	ch := make(chan reply, 1)
	go func() {
		v, err := safeFetch(ctx, p, subject)
		ch <- reply{values: v, err: err}
	}()
	select {
	case r := <-ch:
		return r.values, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// safeFetch converts a provider panic into a fatal error.
func safeFetch(ctx context.Context, p Provider, subject records.Subject) (values records.FieldValues, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewProviderFatalError(string(p.ID()), fmt.Errorf("panic: %v", r))
		}
	}()
	return p.Fetch(ctx, subject)
}
