package provider

import (
	"errors"
	"fmt"

	"github.com/phrazzld/mediagate/internal/domain"
)

// Common registry errors.
var (
	ErrNilAdapter        = errors.New("adapter cannot be nil")
	ErrDuplicateAdapter  = errors.New("adapter already registered for kind")
	ErrAdapterNotFound   = errors.New("no adapter registered for kind")
	ErrDispatchFailed    = errors.New("provider dispatch failed")
	ErrResultUnavailable = errors.New("provider result unavailable")
)

// Registry is an explicit mapping from task kind to a statically known
// adapter, resolved once at process start. Adapters are constructed by the
// composition root and passed in by reference; there is no runtime
// discovery and no global lookup.
type Registry struct {
	adapters map[domain.TaskKind]Adapter
}

// NewRegistry builds a Registry from the given adapters.
// Returns an error on nil adapters or duplicate kinds.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	registry := &Registry{
		adapters: make(map[domain.TaskKind]Adapter, len(adapters)),
	}

	for _, adapter := range adapters {
		if adapter == nil {
			return nil, ErrNilAdapter
		}
		kind := adapter.Kind()
		if _, exists := registry.adapters[kind]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAdapter, kind)
		}
		registry.adapters[kind] = adapter
	}

	return registry, nil
}

// Resolve returns the adapter registered for the given kind.
func (r *Registry) Resolve(kind domain.TaskKind) (Adapter, error) {
	adapter, exists := r.adapters[kind]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrAdapterNotFound, kind)
	}
	return adapter, nil
}
