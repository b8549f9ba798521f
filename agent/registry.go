package agent

import "sync"

// Registry holds agents by id. The orchestrator holds agents only through
// a Registry, never direct references, per Design Notes §9's cyclic
// reference rule: orchestrator -> registry -> agent, never agent ->
// orchestrator.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]Agent)}
}

// Register adds an agent under its own ID(). Returns ErrAlreadyRegistered
// if the id is taken.
func (r *Registry) Register(a Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[a.ID()]; exists {
		return ErrAlreadyRegistered
	}
	r.agents[a.ID()] = a
	return nil
}

// MustRegister panics on a registration error; useful for static wiring at
// process startup where a duplicate id is a programming error.
func (r *Registry) MustRegister(a Agent) {
	if err := r.Register(a); err != nil {
		panic(err)
	}
}

// Get returns the agent registered under id, or ErrNotFound.
func (r *Registry) Get(id string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a, nil
}

// Has reports whether id is registered. (The config loader validates a
// workflow's agent references against AgentCatalog.HasAgent, not this.)
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.agents[id]
	return ok
}

// IDs returns all registered agent ids.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	return ids
}

// Reset clears the registry. Required by Design Notes §9 for test
// isolation of the global-singleton pattern.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents = make(map[string]Agent)
}
