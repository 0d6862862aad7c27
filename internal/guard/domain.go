// Package guard defines the actor boundary of the authorization engine: the
// Actor capability set, the guard → provider registry, and the configurable
// state-field mapping that decides whether an actor is enabled.
package guard

import (
	"context"
	"fmt"
	"sync"
)

// Actor is any identity the engine can authorize. Concrete user types live
// outside the engine and satisfy this interface through a Provider.
type Actor interface {
	ActorID() int64
	GuardName() string
	Enabled() bool
}

// ActorRef is the tagged value that replaces polymorphic model references in
// pivot rows: a guard name plus the actor's id within that guard.
type ActorRef struct {
	Guard string
	ID    int64
}

// RefOf builds the pivot reference for an actor.
func RefOf(a Actor) ActorRef {
	return ActorRef{Guard: a.GuardName(), ID: a.ActorID()}
}

func (r ActorRef) String() string {
	return fmt.Sprintf("%s/%d", r.Guard, r.ID)
}

// Provider resolves actors for one guard.
type Provider interface {
	FindActor(ctx context.Context, id int64) (Actor, error)
}

// Registry maps guard names to their actor providers. Multiple guards may
// coexist, each with independent catalog rows.
type Registry struct {
	mu           sync.RWMutex
	providers    map[string]Provider
	defaultGuard string
}

// NewRegistry creates a registry with the process-wide default guard name.
func NewRegistry(defaultGuard string) *Registry {
	return &Registry{
		providers:    make(map[string]Provider),
		defaultGuard: defaultGuard,
	}
}

// Register binds a provider to a guard name, replacing any previous binding.
func (r *Registry) Register(guardName string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[guardName] = p
}

// Provider returns the provider for a guard name.
func (r *Registry) Provider(guardName string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[guardName]
	if !ok {
		return nil, fmt.Errorf("guard: no provider registered for guard %q", guardName)
	}
	return p, nil
}

// DefaultGuard returns the guard assumed when callers omit one.
func (r *Registry) DefaultGuard() string {
	return r.defaultGuard
}

// Resolve loads an actor by reference.
func (r *Registry) Resolve(ctx context.Context, ref ActorRef) (Actor, error) {
	p, err := r.Provider(ref.Guard)
	if err != nil {
		return nil, err
	}
	return p.FindActor(ctx, ref.ID)
}
