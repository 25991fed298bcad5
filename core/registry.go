package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// AdapterRegistry resolves a marketplace name to its adapter. Registration
// happens once at wiring time; resolution is read-heavy.
type AdapterRegistry struct {
	mu       sync.RWMutex
	adapters map[Marketplace]Adapter
}

func NewAdapterRegistry() *AdapterRegistry {
	return &AdapterRegistry{adapters: make(map[Marketplace]Adapter)}
}

func (r *AdapterRegistry) Register(adapter Adapter) error {
	if adapter == nil {
		return fmt.Errorf("core: adapter is nil")
	}
	id := Marketplace(strings.TrimSpace(strings.ToLower(string(adapter.ID()))))
	if id == "" {
		return fmt.Errorf("core: adapter marketplace id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[id]; exists {
		return fmt.Errorf("core: adapter already registered: %s", id)
	}
	r.adapters[id] = adapter
	return nil
}

func (r *AdapterRegistry) Resolve(name string) (Adapter, error) {
	marketplace, err := ParseMarketplace(name)
	if err != nil {
		return nil, NewMarketplaceNotFoundError(name)
	}
	r.mu.RLock()
	adapter, ok := r.adapters[marketplace]
	r.mu.RUnlock()
	if !ok {
		return nil, NewMarketplaceNotFoundError(name)
	}
	return adapter, nil
}

func (r *AdapterRegistry) ListSupported() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		names = append(names, string(id))
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

var _ Registry = (*AdapterRegistry)(nil)
