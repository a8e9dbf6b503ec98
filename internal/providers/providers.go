// Package providers registers the built-in provider kinds with a sources.Registry.
package providers

import (
	"github.com/agentstation/corroborate/internal/providers/fixture"
	"github.com/agentstation/corroborate/internal/providers/httpjson"
	"github.com/agentstation/corroborate/pkg/sources"
)

// Kinds understood by NewRegistry.
const (
	KindHTTPJSON = "httpjson"
	KindFixture  = "fixture"
)

// NewRegistry returns a registry with every built-in kind registered.
func NewRegistry() *sources.Registry {
	r := sources.NewRegistry()
	// Registration into a fresh registry cannot collide.
	_ = r.Register(KindHTTPJSON, func(cfg sources.ProviderConfig) (sources.Provider, error) {
		return httpjson.New(cfg)
	})
	_ = r.Register(KindFixture, func(cfg sources.ProviderConfig) (sources.Provider, error) {
		return fixture.Load(cfg)
	})
	return r
}
