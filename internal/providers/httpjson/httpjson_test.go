package httpjson

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentstation/corroborate/pkg/errors"
	"github.com/agentstation/corroborate/pkg/records"
	"github.com/agentstation/corroborate/pkg/sources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func config(url string) sources.ProviderConfig {
	return sources.ProviderConfig{
		ID:      "registry",
		Kind:    "httpjson",
		Tier:    1,
		Timeout: time.Second,
		URL:     url + "/companies/{domain}",
		Fields: map[string]string{
			"employee_count": "data.metrics.employees",
			"headquarters":   "data.location",
			"ceo":            "data.people.0.name",
			"industry":       "data.missing",
		},
	}
}

func TestNewValidation(t *testing.T) {
	_, err := New(sources.ProviderConfig{ID: "x", Fields: map[string]string{"a": "b"}})
	assert.Error(t, err)
	_, err = New(sources.ProviderConfig{ID: "x", URL: "http://x/static", Fields: map[string]string{"a": "b"}})
	assert.Error(t, err)
	_, err = New(sources.ProviderConfig{ID: "x", URL: "http://x/{domain}"})
	assert.Error(t, err)
	_, err = New(sources.ProviderConfig{ID: "x", URL: "http://x/{domain}", Fields: map[string]string{"a": ""}})
	assert.Error(t, err)
}

func TestFetchMapsPaths(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/companies/acme.com", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":{"metrics":{"employees":500},"location":"Austin, TX","people":[{"name":"Jane Roe"}]}}`))
	}))
	defer srv.Close()

	p, err := New(config(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, records.SourceID("registry"), p.ID())
	assert.Equal(t, records.Tier(1), p.Tier())
	assert.Equal(t, time.Second, p.Timeout())

	values, err := p.Fetch(context.Background(), records.Subject{Name: "Acme", Domain: "https://www.acme.com"})
	require.NoError(t, err)
	assert.Equal(t, json.Number("500"), values["employee_count"])
	assert.Equal(t, "Austin, TX", values["headquarters"])
	assert.Equal(t, "Jane Roe", values["ceo"])
	_, ok := values["industry"]
	assert.False(t, ok)
}

func TestFetchClassifiesFailures(t *testing.T) {
	var status atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	p, err := New(config(srv.URL))
	require.NoError(t, err)

	status.Store(http.StatusServiceUnavailable)
	_, err = p.Fetch(context.Background(), records.Subject{Domain: "acme.com"})
	assert.True(t, errors.IsTransient(err))

	status.Store(http.StatusNotFound)
	_, err = p.Fetch(context.Background(), records.Subject{Domain: "acme.com"})
	assert.True(t, errors.IsFatal(err))
}

func TestFetchRequiresDomain(t *testing.T) {
	p, err := New(config("http://127.0.0.1:0"))
	require.NoError(t, err)
	_, err = p.Fetch(context.Background(), records.Subject{Name: "Acme"})
	assert.True(t, errors.IsFatal(err))
}

func TestExpandByName(t *testing.T) {
	cfg := config("http://api")
	cfg.URL = "http://api/search?q={name}"
	p, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, "http://api/search?q=Acme+Corp", p.expand(records.Subject{Name: "Acme Corp"}))
}

func TestLookup(t *testing.T) {
	var doc any
	require.NoError(t, json.Unmarshal([]byte(`{"a":{"b":[1,{"c":"x"}]}}`), &doc))
	v, ok := lookup(doc, []string{"a", "b", "1", "c"})
	require.True(t, ok)
	assert.Equal(t, "x", v)

	_, ok = lookup(doc, []string{"a", "b", "7"})
	assert.False(t, ok)
	_, ok = lookup(doc, []string{"a", "b", "x"})
	assert.False(t, ok)
	_, ok = lookup(doc, []string{"a", "b", "0", "z"})
	assert.False(t, ok)
}
