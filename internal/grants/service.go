package grants

import (
	"context"
	"log/slog"

	"github.com/gatewarden/gatewarden/internal/catalog"
	"github.com/gatewarden/gatewarden/internal/guard"
	"github.com/gatewarden/gatewarden/internal/shared"
)

// Invalidator flushes the registrar cache after a grant write.
type Invalidator interface {
	ForgetCached(ctx context.Context) error
}

// Service performs association writes. Every write checks guard consistency
// across its arguments and invalidates the registrar cache before returning.
type Service struct {
	store  Store
	cache  Invalidator
	logger *slog.Logger
}

// NewService constructs the association service.
func NewService(store Store, cache Invalidator, logger *slog.Logger) *Service {
	return &Service{store: store, cache: cache, logger: logger}
}

// Store exposes the live pivot reads for the resolver and tree builder.
func (s *Service) Store() Store { return s.store }

func (s *Service) forget(ctx context.Context) {
	if err := s.cache.ForgetCached(ctx); err != nil {
		s.logger.Warn("forget cached catalog", slog.Any("error", err))
	}
}

func ensureGuard(expected string, kind shared.Kind, got string) error {
	if got != expected {
		return &shared.GuardMismatchError{Kind: kind, Expected: expected, Got: got}
	}
	return nil
}

// checkScope verifies that every permission plus the section and container
// share the actor's guard.
func checkScope(guardName string, perms []*catalog.Permission, section *catalog.Section, container *catalog.Container) error {
	for _, p := range perms {
		if err := ensureGuard(guardName, shared.KindPermission, p.Guard); err != nil {
			return err
		}
	}
	if err := ensureGuard(guardName, shared.KindSection, section.Guard); err != nil {
		return err
	}
	return ensureGuard(guardName, shared.KindContainer, container.Guard)
}

// GivePermissionsToRole attaches one grant row per permission on the
// (section, container) pair. Role grants carry no enabled flag.
func (s *Service) GivePermissionsToRole(ctx context.Context, role *catalog.Role, perms []*catalog.Permission, section *catalog.Section, container *catalog.Container) error {
	if err := checkScope(role.Guard, perms, section, container); err != nil {
		return err
	}
	rows := make([]RolePermission, 0, len(perms))
	for _, p := range perms {
		rows = append(rows, RolePermission{
			RoleID:       role.ID,
			PermissionID: p.ID,
			SectionID:    section.ID,
			ContainerID:  container.ID,
		})
	}
	if err := s.store.AttachRolePermissions(ctx, rows); err != nil {
		return err
	}
	s.forget(ctx)
	return nil
}

// RevokePermissionsFromRole detaches the matching grant rows.
func (s *Service) RevokePermissionsFromRole(ctx context.Context, role *catalog.Role, perms []*catalog.Permission, section *catalog.Section, container *catalog.Container) error {
	if err := checkScope(role.Guard, perms, section, container); err != nil {
		return err
	}
	for _, p := range perms {
		if err := s.store.DetachRolePermissions(ctx, role.ID, Scoped(section.ID, container.ID).WithPermission(p.ID)); err != nil {
			return err
		}
	}
	s.forget(ctx)
	return nil
}

// SyncRolePermissions detaches everything in the (section, container) scope,
// then attaches the given set.
func (s *Service) SyncRolePermissions(ctx context.Context, role *catalog.Role, perms []*catalog.Permission, section *catalog.Section, container *catalog.Container) error {
	if err := checkScope(role.Guard, perms, section, container); err != nil {
		return err
	}
	if err := s.store.DetachRolePermissions(ctx, role.ID, Scoped(section.ID, container.ID)); err != nil {
		return err
	}
	return s.GivePermissionsToRole(ctx, role, perms, section, container)
}

// GivePermissionsToActor attaches direct grants with per-permission enabled
// flags.
func (s *Service) GivePermissionsToActor(ctx context.Context, actor guard.Actor, perms []*catalog.Permission, section *catalog.Section, container *catalog.Container, flags EnabledFlags) error {
	if err := checkScope(actor.GuardName(), perms, section, container); err != nil {
		return err
	}
	ref := guard.RefOf(actor)
	rows := make([]ActorPermission, 0, len(perms))
	for i, p := range perms {
		rows = append(rows, ActorPermission{
			Actor:        ref,
			PermissionID: p.ID,
			SectionID:    section.ID,
			ContainerID:  container.ID,
			Enabled:      flags.At(i),
		})
	}
	if err := s.store.AttachActorPermissions(ctx, rows); err != nil {
		return err
	}
	s.forget(ctx)
	return nil
}

// RevokePermissionsFromActor detaches the matching direct-grant rows.
func (s *Service) RevokePermissionsFromActor(ctx context.Context, actor guard.Actor, perms []*catalog.Permission, section *catalog.Section, container *catalog.Container) error {
	if err := checkScope(actor.GuardName(), perms, section, container); err != nil {
		return err
	}
	ref := guard.RefOf(actor)
	for _, p := range perms {
		if err := s.store.DetachActorPermissions(ctx, ref, Scoped(section.ID, container.ID).WithPermission(p.ID)); err != nil {
			return err
		}
	}
	s.forget(ctx)
	return nil
}

// SyncActorPermissions detaches everything in the (section, container) scope,
// then attaches the given set.
func (s *Service) SyncActorPermissions(ctx context.Context, actor guard.Actor, perms []*catalog.Permission, section *catalog.Section, container *catalog.Container, flags EnabledFlags) error {
	if err := checkScope(actor.GuardName(), perms, section, container); err != nil {
		return err
	}
	if err := s.store.DetachActorPermissions(ctx, guard.RefOf(actor), Scoped(section.ID, container.ID)); err != nil {
		return err
	}
	return s.GivePermissionsToActor(ctx, actor, perms, section, container, flags)
}

// AssignRoles adds role membership for the actor.
func (s *Service) AssignRoles(ctx context.Context, actor guard.Actor, roles []*catalog.Role) error {
	ids := make([]int64, 0, len(roles))
	for _, role := range roles {
		if err := ensureGuard(actor.GuardName(), shared.KindRole, role.Guard); err != nil {
			return err
		}
		ids = append(ids, role.ID)
	}
	if err := s.store.AttachActorRoles(ctx, guard.RefOf(actor), ids); err != nil {
		return err
	}
	s.forget(ctx)
	return nil
}

// RemoveRoles drops role membership for the actor.
func (s *Service) RemoveRoles(ctx context.Context, actor guard.Actor, roles []*catalog.Role) error {
	ids := make([]int64, 0, len(roles))
	for _, role := range roles {
		ids = append(ids, role.ID)
	}
	if err := s.store.DetachActorRoles(ctx, guard.RefOf(actor), ids); err != nil {
		return err
	}
	s.forget(ctx)
	return nil
}

// SyncRoles replaces the actor's role memberships with the given set.
func (s *Service) SyncRoles(ctx context.Context, actor guard.Actor, roles []*catalog.Role) error {
	if err := s.store.DetachAllActorRoles(ctx, guard.RefOf(actor)); err != nil {
		return err
	}
	return s.AssignRoles(ctx, actor, roles)
}

// LinkRoleToContainer records the container as visible for the role.
func (s *Service) LinkRoleToContainer(ctx context.Context, role *catalog.Role, container *catalog.Container) error {
	if err := ensureGuard(role.Guard, shared.KindContainer, container.Guard); err != nil {
		return err
	}
	if err := s.store.LinkRoleContainer(ctx, role.ID, container.ID); err != nil {
		return err
	}
	s.forget(ctx)
	return nil
}

// UnlinkRoleFromContainer removes the visibility link.
func (s *Service) UnlinkRoleFromContainer(ctx context.Context, role *catalog.Role, container *catalog.Container) error {
	if err := s.store.UnlinkRoleContainer(ctx, role.ID, container.ID); err != nil {
		return err
	}
	s.forget(ctx)
	return nil
}

// LinkSectionToContainer places the section in the container's tree
// projection, optionally overriding the section's superadmin flag for this
// linkage.
func (s *Service) LinkSectionToContainer(ctx context.Context, section *catalog.Section, container *catalog.Container, superadmin *bool) error {
	if err := ensureGuard(section.Guard, shared.KindContainer, container.Guard); err != nil {
		return err
	}
	if err := s.store.LinkSectionContainer(ctx, SectionContainer{
		SectionID:   section.ID,
		ContainerID: container.ID,
		Superadmin:  superadmin,
	}); err != nil {
		return err
	}
	s.forget(ctx)
	return nil
}

// UnlinkSectionFromContainer removes the section from the container's tree
// projection.
func (s *Service) UnlinkSectionFromContainer(ctx context.Context, section *catalog.Section, container *catalog.Container) error {
	if err := s.store.UnlinkSectionContainer(ctx, section.ID, container.ID); err != nil {
		return err
	}
	s.forget(ctx)
	return nil
}

// DetachPermission implements catalog.PivotDetacher.
func (s *Service) DetachPermission(ctx context.Context, permissionID int64) error {
	return s.store.PurgePermission(ctx, permissionID)
}

// DetachRole implements catalog.PivotDetacher.
func (s *Service) DetachRole(ctx context.Context, roleID int64) error {
	return s.store.PurgeRole(ctx, roleID)
}

// DetachSection implements catalog.PivotDetacher.
func (s *Service) DetachSection(ctx context.Context, sectionID int64) error {
	return s.store.PurgeSection(ctx, sectionID)
}

// DetachContainer implements catalog.PivotDetacher.
func (s *Service) DetachContainer(ctx context.Context, containerID int64) error {
	return s.store.PurgeContainer(ctx, containerID)
}

// DetachActor implements the user-provider cleanup hook: dropping an actor
// removes its role memberships and direct grants.
func (s *Service) DetachActor(ctx context.Context, actor guard.ActorRef) error {
	if err := s.store.PurgeActor(ctx, actor); err != nil {
		return err
	}
	s.forget(ctx)
	return nil
}
