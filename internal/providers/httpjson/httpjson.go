// Package httpjson implements a provider that reads company facts from a
// JSON HTTP API, mapping dotted JSON paths onto record fields.
package httpjson

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/agentstation/corroborate/internal/transport"
	"github.com/agentstation/corroborate/pkg/errors"
	"github.com/agentstation/corroborate/pkg/records"
	"github.com/agentstation/corroborate/pkg/sources"
)

// Provider fetches one JSON document per subject.
type Provider struct {
	cfg    sources.ProviderConfig
	client *transport.Client
	paths  map[records.FieldName][]string
	fields []records.FieldName
}

// New creates an httpjson provider.
func New(cfg sources.ProviderConfig) (*Provider, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("url is required")
	}
	if !strings.Contains(cfg.URL, "{domain}") && !strings.Contains(cfg.URL, "{name}") {
		return nil, fmt.Errorf("url must contain {domain} or {name}")
	}
	if len(cfg.Fields) == 0 {
		return nil, fmt.Errorf("at least one field mapping is required")
	}

	p := &Provider{
		cfg:    cfg,
		client: transport.NewForProvider(cfg),
		paths:  make(map[records.FieldName][]string, len(cfg.Fields)),
	}
	for field, path := range cfg.Fields {
		if path == "" {
			return nil, fmt.Errorf("field %s has an empty path", field)
		}
		name := records.FieldName(field)
		p.paths[name] = strings.Split(path, ".")
		p.fields = append(p.fields, name)
	}
	sort.Slice(p.fields, func(i, j int) bool { return p.fields[i] < p.fields[j] })
	return p, nil
}

// Client exposes the transport client so tests can swap the HTTP client.
func (p *Provider) Client() *transport.Client { return p.client }

// ID implements sources.Provider.
func (p *Provider) ID() records.SourceID { return records.SourceID(p.cfg.ID) }

// Tier implements sources.Provider.
func (p *Provider) Tier() records.Tier { return records.Tier(p.cfg.Tier) }

// Timeout implements sources.Provider.
func (p *Provider) Timeout() time.Duration { return p.cfg.Timeout }

// Fetch implements sources.Provider.
func (p *Provider) Fetch(ctx context.Context, subject records.Subject) (records.FieldValues, error) {
	if subject.Domain == "" && strings.Contains(p.cfg.URL, "{domain}") {
		return nil, errors.NewProviderFatalError(p.cfg.ID, errors.NewValidationError("domain", "", "subject has no domain"))
	}

	var doc any
	if err := p.client.GetJSON(ctx, p.expand(subject), &doc); err != nil {
		return nil, err
	}

	values := make(records.FieldValues, len(p.fields))
	for _, field := range p.fields {
		if v, ok := lookup(doc, p.paths[field]); ok && v != nil {
			values[field] = v
		}
	}
	return values, nil
}

func (p *Provider) expand(subject records.Subject) string {
	return strings.NewReplacer(
		"{domain}", url.PathEscape(subject.Key()),
		"{name}", url.QueryEscape(subject.Name),
	).Replace(p.cfg.URL)
}

// lookup walks a decoded JSON document along path. Numeric segments index arrays.
func lookup(doc any, path []string) (any, bool) {
	cur := doc
	for _, seg := range path {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}
