package guest

import (
	"fmt"
	"sync"
)

// Registry is the guest-definition table. Registration order is
// preserved: within one specificity group, autodetection probes guests
// in the order they were registered.
//
// A Registry is populated by the plugin-loading layer before any
// resolver is constructed and is read-only afterwards; the mutex only
// guards the population phase.
type Registry struct {
	mu    sync.RWMutex
	byID  map[ID]Definition
	order []ID
}

// NewRegistry creates an empty guest registry.
func NewRegistry() *Registry {
	return &Registry{
		byID: make(map[ID]Definition),
	}
}

// Register adds a guest definition. The ID must be non-empty and not
// already registered, and the definition must carry a detector factory.
// The parent does not have to be registered yet (or ever): a missing
// parent simply terminates the ancestry chain.
func (r *Registry) Register(def Definition) error {
	if def.ID == "" {
		return fmt.Errorf("guest ID is required")
	}
	if def.NewDetector == nil {
		return fmt.Errorf("guest %s: detector factory is required", def.ID)
	}
	if def.Parent == def.ID {
		return fmt.Errorf("guest %s: cannot be its own parent", def.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[def.ID]; exists {
		return fmt.Errorf("guest %s already registered", def.ID)
	}

	r.byID[def.ID] = def
	r.order = append(r.order, def.ID)
	return nil
}

// Lookup returns the definition for id.
func (r *Registry) Lookup(id ID) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.byID[id]
	return def, ok
}

// IDs returns all registered guest IDs in registration order.
func (r *Registry) IDs() []ID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ID, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered guests.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.order)
}

// Depth returns the ancestor depth of id: the number of parent hops
// until a guest with no (or an unregistered) parent. A root guest has
// depth 0. A cycle in the parent relation yields a CodeCycle error.
func (r *Registry) Depth(id ID) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.depthLocked(id)
}

func (r *Registry) depthLocked(id ID) (int, error) {
	depth := 0
	seen := map[ID]struct{}{id: {}}

	cur, ok := r.byID[id]
	if !ok {
		return 0, fmt.Errorf("guest %s not registered", id)
	}

	for cur.Parent != "" {
		parent, ok := r.byID[cur.Parent]
		if !ok {
			// Unregistered parent ends the ancestry, same as no parent.
			break
		}
		if _, dup := seen[cur.Parent]; dup {
			return 0, NewCycleError(cur.Parent)
		}
		seen[cur.Parent] = struct{}{}
		depth++
		cur = parent
	}

	return depth, nil
}

// CapabilitySet maps capability names to implementations for one guest.
type CapabilitySet map[string]Capability

// CapabilityRegistry is the capability table: guest ID to capability
// name to implementation. Like Registry it is populated before use and
// read-only afterwards.
type CapabilityRegistry struct {
	mu   sync.RWMutex
	byID map[ID]CapabilitySet
}

// NewCapabilityRegistry creates an empty capability registry.
func NewCapabilityRegistry() *CapabilityRegistry {
	return &CapabilityRegistry{
		byID: make(map[ID]CapabilitySet),
	}
}

// Register binds a capability implementation to a guest. A nil fn is
// accepted and recorded as a declared-but-missing binding; dispatching
// it fails with CodeCapabilityInvalid. Re-registering the same name for
// the same guest is rejected.
func (r *CapabilityRegistry) Register(id ID, name string, fn Capability) error {
	if id == "" {
		return fmt.Errorf("guest ID is required")
	}
	if name == "" {
		return fmt.Errorf("guest %s: capability name is required", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.byID[id]
	if !ok {
		set = make(CapabilitySet)
		r.byID[id] = set
	}
	if _, exists := set[name]; exists {
		return fmt.Errorf("guest %s: capability %s already registered", id, name)
	}

	set[name] = fn
	return nil
}

// Lookup returns the capability set for a guest, or nil when the guest
// has none.
func (r *CapabilityRegistry) Lookup(id ID) CapabilitySet {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.byID[id]
}

// Names returns the capability names registered for a guest.
func (r *CapabilityRegistry) Names(id ID) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byID[id]
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	return names
}
