package pricesource

import (
	"fmt"
	"sort"
	"sync"

	"github.com/alanyoungcy/chainarb/internal/domain"
)

// Registry holds named price sources for selection by config (source.kind).
type Registry struct {
	sources map[string]domain.PriceSource
	mu      sync.RWMutex
}

// NewRegistry returns an empty registry. Call Register to add sources.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]domain.PriceSource)}
}

// Register adds a source under the given kind.
func (r *Registry) Register(kind string, s domain.PriceSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[kind] = s
}

// Get returns the source by kind, or an error if not found.
func (r *Registry) Get(kind string) (domain.PriceSource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[kind]
	if !ok {
		return nil, fmt.Errorf("price source %q not registered (have %v): %w", kind, r.kindsLocked(), domain.ErrInvalidConfig)
	}
	return s, nil
}

// Kinds returns all registered kinds, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.kindsLocked()
}

func (r *Registry) kindsLocked() []string {
	kinds := make([]string, 0, len(r.sources))
	for k := range r.sources {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
