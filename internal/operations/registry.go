package operations

import (
	"fmt"
	"sync"
)

// Registry holds the steps of a run in registration order
type Registry struct {
	mu    sync.RWMutex
	steps map[string]Step
	order []string
}

// NewRegistry creates an empty step registry
func NewRegistry() *Registry {
	return &Registry{
		steps: make(map[string]Step),
	}
}

// Register adds a Step. IDs must be unique and non-empty.
func (r *Registry) Register(step Step) error {
	if step == nil {
		return fmt.Errorf("cannot register nil step")
	}
	id := step.ID()
	if id == "" {
		return fmt.Errorf("step ID cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.steps[id]; exists {
		return fmt.Errorf("step %s already registered", id)
	}
	r.steps[id] = step
	r.order = append(r.order, id)
	return nil
}

// Get retrieves a Step by ID
func (r *Registry) Get(id string) (Step, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	step, exists := r.steps[id]
	if !exists {
		return nil, fmt.Errorf("step %s not found", id)
	}
	return step, nil
}

// Has checks if a Step is registered
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.steps[id]
	return exists
}

// List returns all steps in registration order
func (r *Registry) List() []Step {
	r.mu.RLock()
	defer r.mu.RUnlock()

	steps := make([]Step, 0, len(r.order))
	for _, id := range r.order {
		steps = append(steps, r.steps[id])
	}
	return steps
}

// Count returns the number of registered steps
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.steps)
}

// GetDependencyOrder returns the steps topologically sorted by their
// dependencies. Ties keep registration order, so the run order is stable.
func (r *Registry) GetDependencyOrder() ([]Step, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dependents := make(map[string][]string, len(r.steps))
	inDegree := make(map[string]int, len(r.steps))
	for _, id := range r.order {
		for _, dep := range r.steps[id].GetDependencies() {
			if _, exists := r.steps[dep]; !exists {
				return nil, fmt.Errorf("step %s depends on unknown step %s", id, dep)
			}
			dependents[dep] = append(dependents[dep], id)
			inDegree[id]++
		}
	}

	// Kahn's algorithm, scanning in registration order each round
	done := make(map[string]bool, len(r.steps))
	ordered := make([]Step, 0, len(r.steps))
	for len(ordered) < len(r.steps) {
		progressed := false
		for _, id := range r.order {
			if done[id] || inDegree[id] > 0 {
				continue
			}
			done[id] = true
			ordered = append(ordered, r.steps[id])
			for _, d := range dependents[id] {
				inDegree[d]--
			}
			progressed = true
			break
		}
		if !progressed {
			return nil, fmt.Errorf("dependency cycle detected")
		}
	}

	return ordered, nil
}

// GetDependents returns the IDs of steps that depend on id, directly or
// transitively, in registration order.
func (r *Registry) GetDependents(id string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	affected := map[string]bool{id: true}
	var out []string
	for changed := true; changed; {
		changed = false
		for _, sid := range r.order {
			if affected[sid] {
				continue
			}
			for _, dep := range r.steps[sid].GetDependencies() {
				if affected[dep] {
					affected[sid] = true
					changed = true
					break
				}
			}
		}
	}
	for _, sid := range r.order {
		if sid != id && affected[sid] {
			out = append(out, sid)
		}
	}
	return out
}
