// Package fixture implements a provider backed by a YAML file of canned
// company facts. It can simulate latency and failures, which makes it useful
// for demos and for exercising retries and circuit breakers.
//
// File format:
//
//	latency: 20ms
//	fail:
//	  status: 503   # 429 and 5xx are transient, other codes fatal
//	  times: 2      # fail the first N calls; 0 fails every call
//	subjects:
//	  acme.com:
//	    as_of: 2024-05-01T00:00:00Z
//	    fields:
//	      employee_count: 500
//	      headquarters: Austin, TX
package fixture

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/agentstation/corroborate/pkg/errors"
	"github.com/agentstation/corroborate/pkg/records"
	"github.com/agentstation/corroborate/pkg/sources"
)

// File is the on-disk fixture document.
type File struct {
	Latency  string             `yaml:"latency,omitempty"`
	Fail     *Failure           `yaml:"fail,omitempty"`
	Subjects map[string]Subject `yaml:"subjects"`
}

// Failure simulates an upstream error.
type Failure struct {
	Status int `yaml:"status"`
	Times  int `yaml:"times,omitempty"`
}

// Subject is one company's canned facts.
type Subject struct {
	AsOf   string         `yaml:"as_of,omitempty"`
	Fields map[string]any `yaml:"fields"`
}

// Provider serves values from a parsed fixture file.
type Provider struct {
	cfg     sources.ProviderConfig
	latency time.Duration
	fail    *Failure
	data    map[string]entry

	mu    sync.Mutex
	calls int
}

type entry struct {
	asOf   time.Time
	fields map[string]any
}

// Load reads cfg.Path and builds a provider.
func Load(cfg sources.ProviderConfig) (*Provider, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("path is required")
	}
	data, err := os.ReadFile(cfg.Path)
	if err != nil {
		return nil, errors.WrapIO("read", cfg.Path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", cfg.Path, err)
	}
	return New(cfg, f)
}

// New builds a provider from an in-memory fixture.
func New(cfg sources.ProviderConfig, f File) (*Provider, error) {
	p := &Provider{cfg: cfg, fail: f.Fail, data: make(map[string]entry, len(f.Subjects))}
	if f.Latency != "" {
		d, err := time.ParseDuration(f.Latency)
		if err != nil {
			return nil, fmt.Errorf("latency: %w", err)
		}
		p.latency = d
	}
	for key, s := range f.Subjects {
		e := entry{fields: s.Fields}
		if s.AsOf != "" {
			t, err := time.Parse(time.RFC3339, s.AsOf)
			if err != nil {
				return nil, fmt.Errorf("subject %s as_of: %w", key, err)
			}
			e.asOf = t
		}
		p.data[records.Subject{Domain: key}.Key()] = e
	}
	return p, nil
}

// ID implements sources.Provider.
func (p *Provider) ID() records.SourceID { return records.SourceID(p.cfg.ID) }

// Tier implements sources.Provider.
func (p *Provider) Tier() records.Tier { return records.Tier(p.cfg.Tier) }

// Timeout implements sources.Provider.
func (p *Provider) Timeout() time.Duration { return p.cfg.Timeout }

// Calls returns how many times Fetch has been invoked.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Fetch implements sources.Provider. Unknown subjects yield no values.
func (p *Provider) Fetch(ctx context.Context, subject records.Subject) (records.FieldValues, error) {
	p.mu.Lock()
	p.calls++
	call := p.calls
	p.mu.Unlock()

	if p.latency > 0 {
		timer := time.NewTimer(p.latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if p.fail != nil && (p.fail.Times == 0 || call <= p.fail.Times) {
		return nil, errors.NewAPIError(p.cfg.ID, p.fail.Status, "simulated failure")
	}

	e, ok := p.data[subject.Key()]
	if !ok {
		return records.FieldValues{}, nil
	}
	values := make(records.FieldValues, len(e.fields))
	for k, v := range e.fields {
		if !e.asOf.IsZero() {
			v = records.Dated{Value: v, AsOf: e.asOf}
		}
		values[records.FieldName(k)] = v
	}
	return values, nil
}
