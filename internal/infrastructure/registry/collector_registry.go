package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/leadgen/backend/internal/domain/lead"
	"github.com/leadgen/backend/internal/domain/shared"
)

// CollectorRegistry manages collector registrations by strategy identifier
type CollectorRegistry struct {
	mu         sync.RWMutex
	collectors map[string]lead.Collector
}

// NewCollectorRegistry creates a new collector registry
func NewCollectorRegistry() *CollectorRegistry {
	return &CollectorRegistry{
		collectors: make(map[string]lead.Collector),
	}
}

// Register registers a collector under its strategy name
func (r *CollectorRegistry) Register(c lead.Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := c.Name()
	if _, exists := r.collectors[name]; exists {
		return fmt.Errorf("%w: collector '%s' already registered", shared.ErrAlreadyExists, name)
	}
	r.collectors[name] = c
	return nil
}

// Get returns the collector registered for a strategy identifier
func (r *CollectorRegistry) Get(strategy string) (lead.Collector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, exists := r.collectors[strategy]
	if !exists {
		return nil, fmt.Errorf("%w: no collector registered for strategy '%s'", shared.ErrNotFound, strategy)
	}
	return c, nil
}

// List returns all registered strategy names, sorted
func (r *CollectorRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.collectors))
	for name := range r.collectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
