package provider

import (
	"fmt"
	"sync"

	"github.com/blueberrycongee/aihub/pkg/provider"
)

// Registry holds provider factories keyed by family name ("openai",
// "anthropic", "local", "github") and the live instances constructed
// from configured connections.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]provider.Factory
	instances map[string]provider.Provider // keyed by connection id
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]provider.Factory),
		instances: make(map[string]provider.Provider),
	}
}

// RegisterFactory associates a provider family name with its constructor.
func (r *Registry) RegisterFactory(family string, factory provider.Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[family] = factory
}

// CreateProvider instantiates a provider for a connection and caches it
// under the connection id so subsequent calls reuse the same client.
func (r *Registry) CreateProvider(connectionID, family string, cfg provider.Config) (provider.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.instances[connectionID]; ok {
		return p, nil
	}

	factory, ok := r.factories[family]
	if !ok {
		return nil, fmt.Errorf("no provider factory registered for family %q", family)
	}
	p, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("create provider %q: %w", family, err)
	}
	r.instances[connectionID] = p
	return p, nil
}

// GetProvider returns the cached provider instance for a connection.
func (r *Registry) GetProvider(connectionID string) (provider.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.instances[connectionID]
	return p, ok
}

// Invalidate drops a cached provider instance, forcing a rebuild on
// next CreateProvider call (used after a connection's credentials change).
func (r *Registry) Invalidate(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.instances, connectionID)
}
