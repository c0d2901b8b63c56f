package persona

import (
	"fmt"
	"sync"
)

// Registry manages persona instances with lazy instantiation. Instances
// are created on first Get call and cached for the process lifetime;
// concurrent first access never produces two instances for one kind.
// Constructed once at process start and injected into the components
// that need it.
type Registry struct {
	mu        sync.RWMutex
	instances map[Kind]*Instance
	sequence  []Kind
}

// NewRegistry creates a registry with the default phase sequence.
func NewRegistry() *Registry {
	r, _ := NewRegistryWithSequence(nil)
	return r
}

// NewRegistryWithSequence creates a registry with a custom phase order.
// An empty sequence means the default. Every entry must be a valid kind
// and appear at most once.
func NewRegistryWithSequence(sequence []Kind) (*Registry, error) {
	if len(sequence) == 0 {
		sequence = AllKinds()
	}
	seen := make(map[Kind]bool, len(sequence))
	for _, k := range sequence {
		if _, ok := templates[k]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownKind, k)
		}
		if seen[k] {
			return nil, fmt.Errorf("duplicate persona kind in sequence: %q", k)
		}
		seen[k] = true
	}

	return &Registry{
		instances: make(map[Kind]*Instance, len(templates)),
		sequence:  append([]Kind(nil), sequence...),
	}, nil
}

// GetPersona returns the cached instance for a kind, creating it on
// first access. Successive calls return the identical instance.
func (r *Registry) GetPersona(kind Kind) (*Instance, error) {
	r.mu.RLock()
	inst, ok := r.instances[kind]
	r.mu.RUnlock()
	if ok {
		return inst, nil
	}

	tmpl, ok := templates[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Another caller may have won the race while we were unlocked.
	if inst, ok := r.instances[kind]; ok {
		return inst, nil
	}
	inst = newInstance(tmpl)
	r.instances[kind] = inst
	return inst, nil
}

// ListKinds returns descriptors for the kinds in the registry's
// configured sequence, in phase order. A registry restricted to a
// subset of personas only advertises that subset.
func (r *Registry) ListKinds() []Descriptor {
	out := make([]Descriptor, 0, len(r.sequence))
	for _, k := range r.sequence {
		out = append(out, templates[k].Descriptor)
	}
	return out
}

// DefaultSequence returns the canonical phase order. The returned slice
// is a copy; callers may mutate it freely.
func (r *Registry) DefaultSequence() []Kind {
	return append([]Kind(nil), r.sequence...)
}

// Warm pre-creates every instance in the sequence. Called at startup so
// first requests do not pay the lazy-creation cost.
func (r *Registry) Warm() error {
	for _, k := range r.sequence {
		if _, err := r.GetPersona(k); err != nil {
			return err
		}
	}
	return nil
}
