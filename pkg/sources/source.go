// Package sources defines the provider contract and the Gatherer that fans a
// resolve request out to every provider concurrently.
//
// Each provider call runs under the request deadline, the provider's circuit
// breaker, a retry policy, and the provider's own transport timeout, in that
// order. A provider failure never fails the request: it is recorded on that
// provider's FetchResult and the provider contributes no values.
//
// Example usage:
//
//	breakers := breaker.NewRegistry(breaker.DefaultConfig())
//	g, err := sources.NewGatherer(breakers)
//	if err != nil {
//	    return err
//	}
//	results, err := g.Gather(ctx, sources.GatherRequest{
//	    Subject:   records.Subject{Name: "Acme", Domain: "acme.com"},
//	    Providers: providers,
//	})
package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/agentstation/corroborate/pkg/constants"
	"github.com/agentstation/corroborate/pkg/errors"
	"github.com/agentstation/corroborate/pkg/records"
)

// Provider fetches field values for a subject from one external source.
type Provider interface {
	// ID returns the provider's stable source ID.
	ID() records.SourceID
	// Tier returns the provider's static reliability rank (1 is best).
	Tier() records.Tier
	// Timeout bounds a single Fetch call. Zero means the default.
	Timeout() time.Duration
	// Fetch returns whatever fields the provider knows about the subject.
	Fetch(ctx context.Context, subject records.Subject) (records.FieldValues, error)
}

// FetchFunc is the Fetch signature, for building providers from plain functions.
type FetchFunc func(ctx context.Context, subject records.Subject) (records.FieldValues, error)

// FuncProvider adapts a FetchFunc into a Provider.
type FuncProvider struct {
	SourceID    records.SourceID
	SourceTier  records.Tier
	CallTimeout time.Duration
	FetchFn     FetchFunc
}

// NewFuncProvider creates a provider backed by fn.
func NewFuncProvider(id records.SourceID, tier records.Tier, timeout time.Duration, fn FetchFunc) *FuncProvider {
	return &FuncProvider{SourceID: id, SourceTier: tier, CallTimeout: timeout, FetchFn: fn}
}

// ID implements Provider.
func (p *FuncProvider) ID() records.SourceID { return p.SourceID }

// Tier implements Provider.
func (p *FuncProvider) Tier() records.Tier { return p.SourceTier }

// Timeout implements Provider.
func (p *FuncProvider) Timeout() time.Duration { return p.CallTimeout }

// Fetch implements Provider.
func (p *FuncProvider) Fetch(ctx context.Context, subject records.Subject) (records.FieldValues, error) {
	return p.FetchFn(ctx, subject)
}

// GatherRequest is one resolve request's fan-out input.
type GatherRequest struct {
	Subject   records.Subject
	Providers []Provider
}

// Validate rejects requests that cannot start. These are configuration
// errors and are never produced mid-request.
func (r GatherRequest) Validate() error {
	if r.Subject.IsZero() {
		return errors.NewConfigError("gather", "subject name or domain is required", nil)
	}
	if len(r.Providers) == 0 {
		return errors.NewConfigError("gather", "at least one provider is required", nil)
	}
	if len(r.Providers) > constants.MaxProviders {
		return errors.NewConfigError("gather", fmt.Sprintf("at most %d providers are allowed", constants.MaxProviders), nil)
	}
	seen := make(map[records.SourceID]bool, len(r.Providers))
	for i, p := range r.Providers {
		if p == nil {
			return errors.NewConfigError("gather", fmt.Sprintf("provider %d is nil", i), nil)
		}
		id := p.ID()
		if id == "" {
			return errors.NewConfigError("gather", fmt.Sprintf("provider %d has no ID", i), nil)
		}
		if seen[id] {
			return errors.NewConfigError("gather", fmt.Sprintf("duplicate provider %s", id), nil)
		}
		seen[id] = true
		if !p.Tier().Valid() {
			return errors.NewConfigError("gather", fmt.Sprintf("provider %s has invalid tier %d", id, p.Tier()), nil)
		}
	}
	return nil
}
