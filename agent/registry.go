package agent

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/concierge/core"
)

// ErrRegistryFrozen is returned when registering after Freeze.
var ErrRegistryFrozen = errors.New("agent registry is frozen")

// Registry maps agent ids to definitions. It is safe for concurrent use and
// becomes read-only after Freeze.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Definition
	frozen bool
}

// NewRegistry creates a registry holding defs.
func NewRegistry(defs ...*Definition) (*Registry, error) {
	r := &Registry{agents: make(map[string]*Definition, len(defs))}
	for _, d := range defs {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds def. Ids must be unique.
func (r *Registry) Register(def *Definition) error {
	if def == nil {
		return &core.ValidationError{Field: "agent", Message: "definition must not be nil"}
	}
	if err := def.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrRegistryFrozen
	}
	if _, exists := r.agents[def.ID]; exists {
		return &core.ValidationError{Field: "id", Value: def.ID, Message: fmt.Sprintf("agent %s already registered", def.ID)}
	}
	r.agents[def.ID] = def
	return nil
}

// Lookup returns the definition for id or a *core.NotFoundError.
func (r *Registry) Lookup(id string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.agents[id]
	if !ok {
		return nil, &core.NotFoundError{Kind: "agent", Key: id}
	}
	return def, nil
}

// IDs returns the registered agent ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether Freeze was called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}
