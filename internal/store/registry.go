package store

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"

	"resource-cache/internal/engine"
)

var errNilSchema = errors.New("schema is required")

// Registry is the name-to-store map that relation fields resolve against.
type Registry struct {
	mu     sync.RWMutex
	stores map[string]*Store
}

func NewRegistry() *Registry {
	return &Registry{
		stores: make(map[string]*Store),
	}
}

// Register adds a store under its entity-type name.
func (r *Registry) Register(s *Store) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.stores[s.name]; ok {
		return engine.DuplicateStoreError(s.name)
	}
	r.stores[s.name] = s
	return nil
}

// Get returns the store registered under name, or nil. A nil registry has
// no stores.
func (r *Registry) Get(name string) *Store {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stores[name]
}

// Names returns the registered entity-type names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.stores))
	for name := range r.stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered stores.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stores)
}

// Validate checks that every relation field targets a registered store.
// Relation reads resolve lazily, so this is only a startup sanity check.
func (r *Registry) Validate() error {
	for _, name := range r.Names() {
		s := r.Get(name)
		for _, f := range s.schema.Relations() {
			if r.Get(f.Relation.Target) == nil {
				return engine.UnknownRelatedStoreError(name, f.Relation.Target)
			}
		}
	}
	return nil
}
