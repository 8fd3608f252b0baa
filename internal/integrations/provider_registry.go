package integrations

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry holds the providers a session can connect.
// Pattern: database/sql Register() + sync.RWMutex-protected map.
type Registry struct {
	mu        sync.RWMutex
	providers map[ProviderID]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[ProviderID]Provider),
	}
}

// DefaultRegistry returns a registry with the built-in providers, applying any
// per-provider load endpoint overrides.
func DefaultRegistry(loadEndpoints map[ProviderID]string) *Registry {
	r := NewRegistry()
	for _, p := range BuiltinProviders() {
		if ep := loadEndpoints[p.ID]; ep != "" {
			p.LoadEndpoint = ep
		}
		r.Register(p)
	}
	return r
}

// Register adds a provider to the registry.
// Panics if a provider with the same ID is already registered (like sql.Register).
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[p.ID]; exists {
		panic(fmt.Sprintf("integrations: provider %q already registered", p.ID))
	}
	if p.LoadEndpoint == "" {
		p.LoadEndpoint = DefaultLoadEndpoint
	}
	r.providers[p.ID] = p
}

// Get returns a provider by ID, or false if not found.
func (r *Registry) Get(id ProviderID) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[id]
	return p, ok
}

// Resolve looks a provider up by ID or display name, case-insensitively on the ID.
func (r *Registry) Resolve(name string) (Provider, error) {
	if p, ok := r.Get(ProviderID(strings.ToLower(name))); ok {
		return p, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.providers {
		if p.Name == name {
			return p, nil
		}
	}
	return Provider{}, fmt.Errorf("unknown provider: %s", name)
}

// All returns all registered providers in stable ID-sorted order.
func (r *Registry) All() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)

	result := make([]Provider, 0, len(ids))
	for _, id := range ids {
		result = append(result, r.providers[ProviderID(id)])
	}
	return result
}

