package catalog

import (
	"context"
	"log/slog"

	"github.com/gatewarden/gatewarden/internal/shared"
)

// PivotDetacher removes association rows before an entity is hard deleted.
// It is implemented by the grants layer; the indirection keeps the catalog
// free of a dependency on pivot persistence.
type PivotDetacher interface {
	DetachPermission(ctx context.Context, permissionID int64) error
	DetachRole(ctx context.Context, roleID int64) error
	DetachSection(ctx context.Context, sectionID int64) error
	DetachContainer(ctx context.Context, containerID int64) error
}

// CreateInput carries the attributes common to all four entity factories.
type CreateInput struct {
	Guard string
	Name  string
	Label Label
	State State
	Meta  Meta
}

// Service enforces the catalog lifecycle: uniqueness on create, pivot
// detachment before delete, and cache invalidation on every write.
type Service struct {
	store        Store
	registrar    *Registrar
	pivots       PivotDetacher
	defaultGuard string
	logger       *slog.Logger
}

// NewService constructs the catalog service.
func NewService(store Store, registrar *Registrar, pivots PivotDetacher, defaultGuard string, logger *slog.Logger) *Service {
	return &Service{
		store:        store,
		registrar:    registrar,
		pivots:       pivots,
		defaultGuard: defaultGuard,
		logger:       logger,
	}
}

// Registrar exposes the caching facade for read paths.
func (s *Service) Registrar() *Registrar { return s.registrar }

// DefaultGuard returns the guard assumed when input omits one.
func (s *Service) DefaultGuard() string { return s.defaultGuard }

func (s *Service) guardOrDefault(g string) string {
	if g == "" {
		return s.defaultGuard
	}
	return g
}

func (s *Service) forget(ctx context.Context) {
	if err := s.registrar.ForgetCached(ctx); err != nil {
		s.logger.Warn("forget cached catalog", slog.Any("error", err))
	}
}

// --- permissions ---

// CreatePermission creates a permission, rejecting (name, guard) collisions
// before insert so the error type is deterministic.
func (s *Service) CreatePermission(ctx context.Context, in CreateInput) (*Permission, error) {
	in.Guard = s.guardOrDefault(in.Guard)
	if _, err := s.registrar.FindPermission(ctx, ByName(in.Name), in.Guard); err == nil {
		return nil, &shared.AlreadyExistsError{Kind: shared.KindPermission, Name: in.Name, Guard: in.Guard}
	}
	p := &Permission{Guard: in.Guard, Name: in.Name, Label: in.Label, State: in.State, Meta: in.Meta}
	if err := s.store.CreatePermission(ctx, p); err != nil {
		return nil, err
	}
	s.forget(ctx)
	return p, nil
}

// FindPermission resolves a permission by ref, defaulting the guard.
func (s *Service) FindPermission(ctx context.Context, ref Ref, guardName string) (*Permission, error) {
	return s.registrar.FindPermission(ctx, ref, s.guardOrDefault(guardName))
}

// UpdatePermission persists changed attributes and flushes the cache.
func (s *Service) UpdatePermission(ctx context.Context, p *Permission) error {
	if err := s.store.UpdatePermission(ctx, p); err != nil {
		return err
	}
	s.forget(ctx)
	return nil
}

// DeletePermission detaches every pivot row referencing the permission, then
// hard deletes it.
func (s *Service) DeletePermission(ctx context.Context, id int64) error {
	if err := s.pivots.DetachPermission(ctx, id); err != nil {
		return err
	}
	if err := s.store.DeletePermission(ctx, id); err != nil {
		return err
	}
	s.forget(ctx)
	return nil
}

// --- roles ---

// CreateRole creates a role. Roles are not registrar-cached, so the
// existence pre-check reads the store directly.
func (s *Service) CreateRole(ctx context.Context, in CreateInput) (*Role, error) {
	in.Guard = s.guardOrDefault(in.Guard)
	existing, err := s.store.FindRoleByName(ctx, in.Name, in.Guard)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &shared.AlreadyExistsError{Kind: shared.KindRole, Name: in.Name, Guard: in.Guard}
	}
	role := &Role{Guard: in.Guard, Name: in.Name, Label: in.Label, State: in.State, Meta: in.Meta}
	if err := s.store.CreateRole(ctx, role); err != nil {
		return nil, err
	}
	s.forget(ctx)
	return role, nil
}

// FindRole resolves a role by ref, defaulting the guard.
func (s *Service) FindRole(ctx context.Context, ref Ref, guardName string) (*Role, error) {
	guardName = s.guardOrDefault(guardName)
	var (
		role *Role
		err  error
	)
	if ref.byID {
		role, err = s.store.FindRoleByID(ctx, ref.id)
	} else {
		role, err = s.store.FindRoleByName(ctx, ref.name, guardName)
	}
	if err != nil {
		return nil, err
	}
	if role == nil {
		return nil, &shared.NotFoundError{Kind: shared.KindRole, Name: ref.name, Guard: guardName, ID: ref.id}
	}
	return role, nil
}

// RolesByIDs loads role entities for pivot rows.
func (s *Service) RolesByIDs(ctx context.Context, ids []int64) ([]Role, error) {
	return s.store.RolesByIDs(ctx, ids)
}

// ListRoles returns every role across guards.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.ListRoles(ctx)
}

// UpdateRole persists changed attributes and flushes the cache.
func (s *Service) UpdateRole(ctx context.Context, role *Role) error {
	if err := s.store.UpdateRole(ctx, role); err != nil {
		return err
	}
	s.forget(ctx)
	return nil
}

// DeleteRole detaches role membership, role grants and container links, then
// hard deletes the role.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	if err := s.pivots.DetachRole(ctx, id); err != nil {
		return err
	}
	if err := s.store.DeleteRole(ctx, id); err != nil {
		return err
	}
	s.forget(ctx)
	return nil
}

// --- sections ---

// CreateSection creates a section, rejecting (name, guard) collisions.
func (s *Service) CreateSection(ctx context.Context, in CreateInput, superadmin *bool, parentID *int64, order int) (*Section, error) {
	in.Guard = s.guardOrDefault(in.Guard)
	if _, err := s.registrar.FindSection(ctx, ByName(in.Name), in.Guard); err == nil {
		return nil, &shared.AlreadyExistsError{Kind: shared.KindSection, Name: in.Name, Guard: in.Guard}
	}
	if parentID != nil {
		parent, err := s.store.FindSectionByID(ctx, *parentID)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			return nil, &shared.NotFoundError{Kind: shared.KindSection, ID: *parentID}
		}
		if parent.Guard != in.Guard {
			return nil, &shared.GuardMismatchError{Kind: shared.KindSection, Expected: in.Guard, Got: parent.Guard}
		}
	}
	sec := &Section{
		Guard:      in.Guard,
		Name:       in.Name,
		Label:      in.Label,
		State:      in.State,
		Meta:       in.Meta,
		Superadmin: superadmin,
		ParentID:   parentID,
		Order:      order,
	}
	if err := s.store.CreateSection(ctx, sec); err != nil {
		return nil, err
	}
	s.forget(ctx)
	return sec, nil
}

// FindSection resolves a section by ref, defaulting the guard.
func (s *Service) FindSection(ctx context.Context, ref Ref, guardName string) (*Section, error) {
	return s.registrar.FindSection(ctx, ref, s.guardOrDefault(guardName))
}

// UpdateSection persists changed attributes and flushes the cache.
func (s *Service) UpdateSection(ctx context.Context, sec *Section) error {
	if err := s.store.UpdateSection(ctx, sec); err != nil {
		return err
	}
	s.forget(ctx)
	return nil
}

// DeleteSection detaches every pivot row referencing the section, then hard
// deletes it.
func (s *Service) DeleteSection(ctx context.Context, id int64) error {
	if err := s.pivots.DetachSection(ctx, id); err != nil {
		return err
	}
	if err := s.store.DeleteSection(ctx, id); err != nil {
		return err
	}
	s.forget(ctx)
	return nil
}

// --- containers ---

// CreateContainer creates a container, rejecting (name, guard) collisions.
func (s *Service) CreateContainer(ctx context.Context, in CreateInput) (*Container, error) {
	in.Guard = s.guardOrDefault(in.Guard)
	if _, err := s.registrar.FindContainer(ctx, ByName(in.Name), in.Guard); err == nil {
		return nil, &shared.AlreadyExistsError{Kind: shared.KindContainer, Name: in.Name, Guard: in.Guard}
	}
	c := &Container{Guard: in.Guard, Name: in.Name, Label: in.Label, State: in.State, Meta: in.Meta}
	if err := s.store.CreateContainer(ctx, c); err != nil {
		return nil, err
	}
	s.forget(ctx)
	return c, nil
}

// FindContainer resolves a container by ref, defaulting the guard.
func (s *Service) FindContainer(ctx context.Context, ref Ref, guardName string) (*Container, error) {
	return s.registrar.FindContainer(ctx, ref, s.guardOrDefault(guardName))
}

// UpdateContainer persists changed attributes and flushes the cache.
func (s *Service) UpdateContainer(ctx context.Context, c *Container) error {
	if err := s.store.UpdateContainer(ctx, c); err != nil {
		return err
	}
	s.forget(ctx)
	return nil
}

// DeleteContainer detaches every pivot row referencing the container, then
// hard deletes it.
func (s *Service) DeleteContainer(ctx context.Context, id int64) error {
	if err := s.pivots.DetachContainer(ctx, id); err != nil {
		return err
	}
	if err := s.store.DeleteContainer(ctx, id); err != nil {
		return err
	}
	s.forget(ctx)
	return nil
}
