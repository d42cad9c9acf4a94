package game

import (
	"fmt"
	"io"
)

// CollaboratorKind tags the closed set of collaborator slots a session
// can be composed with. Factories are resolved once, at facade
// construction, never by ambient lookup.
type CollaboratorKind string

const (
	KindRenderer  CollaboratorKind = "renderer"
	KindNotifier  CollaboratorKind = "notifier"
	KindChannel   CollaboratorKind = "channel"
	KindValidator CollaboratorKind = "validator"
)

// CollaboratorFactory builds a collaborator instance. A factory may fail;
// the facade rolls back previously constructed collaborators on failure.
type CollaboratorFactory func() (any, error)

// Registry maps collaborator kinds to their factories.
type Registry struct {
	factories map[CollaboratorKind]CollaboratorFactory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[CollaboratorKind]CollaboratorFactory)}
}

// Register installs a factory for a kind, replacing any previous one.
func (r *Registry) Register(kind CollaboratorKind, f CollaboratorFactory) {
	r.factories[kind] = f
}

// RegisterInstance installs an already-built collaborator.
func (r *Registry) RegisterInstance(kind CollaboratorKind, instance any) {
	r.factories[kind] = func() (any, error) { return instance, nil }
}

// Has reports whether a factory is registered for kind.
func (r *Registry) Has(kind CollaboratorKind) bool {
	_, ok := r.factories[kind]
	return ok
}

// resolve builds the collaborator for kind. Returns (nil, nil) when no
// factory is registered.
func (r *Registry) resolve(kind CollaboratorKind) (any, error) {
	f, ok := r.factories[kind]
	if !ok {
		return nil, nil
	}
	instance, err := f()
	if err != nil {
		return nil, fmt.Errorf("construct %s: %w", kind, err)
	}
	return instance, nil
}

// closeAll tears down constructed collaborators that support closing.
// Used for rollback when a later factory fails.
func closeAll(built []any) {
	for i := len(built) - 1; i >= 0; i-- {
		if c, ok := built[i].(io.Closer); ok {
			_ = c.Close()
		}
	}
}
