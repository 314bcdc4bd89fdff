package capability

import (
	"fmt"
	"sync"
)

// Descriptor summarizes a registered capability.
type Descriptor struct {
	Name    string   `json:"name"`
	Kind    Kind     `json:"kind"`
	Outputs []string `json:"outputs,omitempty"`
}

// Registry maps capability names to implementations.
//
// Registration happens at startup; lookups are safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	caps  map[string]Capability
	order []string
}

// NewRegistry creates a registry holding caps.
func NewRegistry(caps ...Capability) (*Registry, error) {
	r := &Registry{caps: make(map[string]Capability)}
	for _, c := range caps {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds c to the registry.
func (r *Registry) Register(c Capability) error {
	if c == nil {
		return fmt.Errorf("%w: nil capability", ErrInvalidCapability)
	}
	name := c.Name()
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidCapability)
	}
	if !c.Kind().Valid() {
		return fmt.Errorf("%w: %s has unsupported kind %q", ErrInvalidCapability, name, c.Kind())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.caps[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateCapability, name)
	}
	r.caps[name] = c
	r.order = append(r.order, name)
	return nil
}

// Get returns the capability registered under name.
func (r *Registry) Get(name string) (Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.caps[name]
	return c, ok
}

// Lookup returns the named capability or ErrUnknownCapability.
func (r *Registry) Lookup(name string) (Capability, error) {
	c, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCapability, name)
	}
	return c, nil
}

// List returns descriptors in registration order.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		c := r.caps[name]
		out = append(out, Descriptor{
			Name:    name,
			Kind:    c.Kind(),
			Outputs: append([]string(nil), c.Outputs()...),
		})
	}
	return out
}

// Len returns the number of registered capabilities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.caps)
}
