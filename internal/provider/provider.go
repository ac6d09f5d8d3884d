// Package provider defines the extraction provider capability and its
// Claude, OpenAI and DeepSeek implementations.
package provider

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/sells-group/healthmetrics-cli/internal/model"
)

// Provider performs one outbound extraction call. Implementations own only
// request/response translation; retries and fallback belong to the caller.
//
// Extract returns a *resilience.ProviderError on failure: retryable for
// timeouts, rate limits, 5xx and transport failures; permanent for
// authentication and validation failures.
type Provider interface {
	// Name returns the provider identifier (matches the configuration key).
	Name() string
	// Extract converts the request input into a provider-specific raw result.
	Extract(ctx context.Context, req model.ExtractionRequest, cfg model.ProviderConfig) (*model.RawExtractionResult, error)
}

// Registry manages available providers keyed by name.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// NewDefaultRegistry returns a registry holding the built-in providers.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewClaude())
	r.Register(NewOpenAI())
	r.Register(NewDeepSeek())
	return r
}

// Register adds a provider to the registry, replacing any with the same name.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[strings.ToLower(p.Name())] = p
}

// Get returns a provider by name.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// Names returns all registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
