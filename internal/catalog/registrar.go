package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gatewarden/gatewarden/internal/shared"
)

// Cache keys. Each collection is cached as one atomic JSON blob; invalidation
// is coarse (all three keys at once) because writes are rare next to reads.
const (
	keyPermissions = "gatewarden:catalog:permissions"
	keySections    = "gatewarden:catalog:sections"
	keyContainers  = "gatewarden:catalog:containers"
)

// CollectionStore is the slice of the catalog store the registrar reads from.
type CollectionStore interface {
	ListPermissions(ctx context.Context) ([]Permission, error)
	ListSections(ctx context.Context) ([]Section, error)
	ListContainers(ctx context.Context) ([]Container, error)
}

// Registrar is the caching facade over the permission/section/container
// full-collection reads. With a nil client it degrades to straight-through
// store reads.
type Registrar struct {
	store  CollectionStore
	client *redis.Client
	ttl    time.Duration
}

// NewRegistrar constructs a registrar with the given cache TTL.
func NewRegistrar(store CollectionStore, client *redis.Client, ttl time.Duration) *Registrar {
	return &Registrar{store: store, client: client, ttl: ttl}
}

// GetPermissions returns the full guard-spanning permission collection.
func (r *Registrar) GetPermissions(ctx context.Context) ([]Permission, error) {
	var perms []Permission
	err := remember(ctx, r, keyPermissions, &perms, func(ctx context.Context) ([]Permission, error) {
		return r.store.ListPermissions(ctx)
	})
	return perms, err
}

// GetSections returns the full guard-spanning section collection.
func (r *Registrar) GetSections(ctx context.Context) ([]Section, error) {
	var sections []Section
	err := remember(ctx, r, keySections, &sections, func(ctx context.Context) ([]Section, error) {
		return r.store.ListSections(ctx)
	})
	return sections, err
}

// GetContainers returns the full guard-spanning container collection.
func (r *Registrar) GetContainers(ctx context.Context) ([]Container, error) {
	var containers []Container
	err := remember(ctx, r, keyContainers, &containers, func(ctx context.Context) ([]Container, error) {
		return r.store.ListContainers(ctx)
	})
	return containers, err
}

// ForgetCached drops all three collection entries unconditionally.
func (r *Registrar) ForgetCached(ctx context.Context) error {
	if r.client == nil {
		return nil
	}
	return r.client.Del(ctx, keyPermissions, keySections, keyContainers).Err()
}

// remember loads a cached collection or computes and stores it. Concurrent
// first-access calls may compute redundantly; they never observe a partially
// populated entry because the collection is one blob.
func remember[T any](ctx context.Context, r *Registrar, key string, dest *[]T, load func(context.Context) ([]T, error)) error {
	if r.client == nil {
		items, err := load(ctx)
		if err != nil {
			return err
		}
		*dest = items
		return nil
	}

	payload, err := r.client.Get(ctx, key).Bytes()
	if err == nil {
		return json.Unmarshal(payload, dest)
	}
	if !errors.Is(err, redis.Nil) {
		return err
	}

	items, err := load(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, key, raw, r.ttl).Err(); err != nil {
		return err
	}
	*dest = items
	return nil
}

// FindPermission resolves a permission ref within a guard against the cached
// collection.
func (r *Registrar) FindPermission(ctx context.Context, ref Ref, guardName string) (*Permission, error) {
	perms, err := r.GetPermissions(ctx)
	if err != nil {
		return nil, err
	}
	for i := range perms {
		p := &perms[i]
		if ref.byID && p.ID == ref.id {
			return p, nil
		}
		if !ref.byID && p.Name == ref.name && p.Guard == guardName {
			return p, nil
		}
	}
	return nil, &shared.NotFoundError{Kind: shared.KindPermission, Name: ref.name, Guard: guardName, ID: ref.id}
}

// FindSection resolves a section ref within a guard against the cached
// collection.
func (r *Registrar) FindSection(ctx context.Context, ref Ref, guardName string) (*Section, error) {
	sections, err := r.GetSections(ctx)
	if err != nil {
		return nil, err
	}
	for i := range sections {
		s := &sections[i]
		if ref.byID && s.ID == ref.id {
			return s, nil
		}
		if !ref.byID && s.Name == ref.name && s.Guard == guardName {
			return s, nil
		}
	}
	return nil, &shared.NotFoundError{Kind: shared.KindSection, Name: ref.name, Guard: guardName, ID: ref.id}
}

// FindContainer resolves a container ref within a guard against the cached
// collection.
func (r *Registrar) FindContainer(ctx context.Context, ref Ref, guardName string) (*Container, error) {
	containers, err := r.GetContainers(ctx)
	if err != nil {
		return nil, err
	}
	for i := range containers {
		c := &containers[i]
		if ref.byID && c.ID == ref.id {
			return c, nil
		}
		if !ref.byID && c.Name == ref.name && c.Guard == guardName {
			return c, nil
		}
	}
	return nil, &shared.NotFoundError{Kind: shared.KindContainer, Name: ref.name, Guard: guardName, ID: ref.id}
}
