package agent

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps stable names to agent implementations. It is populated
// at process startup from static configuration and read-only
// afterwards, so concurrent lookups during steady state are safe.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

// NewRegistry creates an empty agent registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]Agent)}
}

// Register adds an agent under its name. Registering a duplicate name
// is rejected at registration time.
func (r *Registry) Register(a Agent) error {
	if a == nil {
		return fmt.Errorf("register agent: nil agent")
	}
	name := a.Name()
	if name == "" {
		return fmt.Errorf("register agent: empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[name]; exists {
		return fmt.Errorf("register agent %q: already registered", name)
	}
	r.agents[name] = a
	return nil
}

// Lookup resolves an agent by name.
func (r *Registry) Lookup(name string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[name]
	return a, ok
}

// Names returns the registered agent names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
