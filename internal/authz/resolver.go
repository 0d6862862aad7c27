// Package authz implements the permission-resolution algorithm: direct
// grants, role-derived grants, enabled/disabled cascading and guard
// isolation, plus the gate hook and the admin matrix read model.
package authz

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/gatewarden/gatewarden/internal/catalog"
	"github.com/gatewarden/gatewarden/internal/grants"
	"github.com/gatewarden/gatewarden/internal/guard"
	"github.com/gatewarden/gatewarden/internal/shared"
)

// Options carries the privileged role names, passed as configuration.
type Options struct {
	SuperuserRole string
	AdminRole     string
}

// Resolver answers "can actor X do permission P on section S in container C".
// Name resolution goes through the registrar cache; pivot rows are read live.
type Resolver struct {
	catalog *catalog.Service
	pivots  grants.Store
	opts    Options
	logger  *slog.Logger
}

// NewResolver constructs the resolver.
func NewResolver(cat *catalog.Service, pivots grants.Store, opts Options, logger *slog.Logger) *Resolver {
	return &Resolver{catalog: cat, pivots: pivots, opts: opts, logger: logger}
}

// scope is the fully resolved (permission, section, container) triple.
type scope struct {
	permission *catalog.Permission
	section    *catalog.Section
	container  *catalog.Container
}

// resolveScope resolves the three refs within guardName and enforces guard
// consistency. Name refs resolve within the guard by construction; id refs
// can land on another guard's entity, which is a caller defect.
func (r *Resolver) resolveScope(ctx context.Context, guardName string, permRef, sectionRef, containerRef catalog.Ref) (scope, error) {
	p, err := r.catalog.FindPermission(ctx, permRef, guardName)
	if err != nil {
		return scope{}, err
	}
	if p.Guard != guardName {
		return scope{}, &shared.GuardMismatchError{Kind: shared.KindPermission, Expected: guardName, Got: p.Guard}
	}
	sec, err := r.catalog.FindSection(ctx, sectionRef, guardName)
	if err != nil {
		return scope{}, err
	}
	if sec.Guard != guardName {
		return scope{}, &shared.GuardMismatchError{Kind: shared.KindSection, Expected: guardName, Got: sec.Guard}
	}
	cont, err := r.catalog.FindContainer(ctx, containerRef, guardName)
	if err != nil {
		return scope{}, err
	}
	if cont.Guard != guardName {
		return scope{}, &shared.GuardMismatchError{Kind: shared.KindContainer, Expected: guardName, Got: cont.Guard}
	}
	return scope{permission: p, section: sec, container: cont}, nil
}

// statesEnabled reports whether every entity in the scope is enabled.
func (sc scope) statesEnabled() bool {
	return sc.permission.State.Enabled() && sc.section.State.Enabled() && sc.container.State.Enabled()
}

// HasPermissionTo is the central predicate for user-like actors. With
// checkEnabled it gates on the actor, permission, section and container
// states; without, it answers whether a grant exists at all.
//
// NotFound and GuardMismatch propagate: returning false on a data error would
// be indistinguishable from a legitimate deny.
func (r *Resolver) HasPermissionTo(ctx context.Context, actor guard.Actor, permRef, sectionRef, containerRef catalog.Ref, checkEnabled bool) (bool, error) {
	sc, err := r.resolveScope(ctx, actor.GuardName(), permRef, sectionRef, containerRef)
	if err != nil {
		return false, err
	}
	if checkEnabled && !actor.Enabled() {
		return false, nil
	}
	if checkEnabled && !sc.statesEnabled() {
		return false, nil
	}
	direct, err := r.actorHasDirect(ctx, guard.RefOf(actor), sc, checkEnabled)
	if err != nil {
		return false, err
	}
	if direct {
		return true, nil
	}
	return r.hasViaRole(ctx, actor, sc, checkEnabled)
}

// RoleHasPermissionTo is the central predicate with a role as the actor.
// Role grants have no enabled flag; existence of the row suffices, but with
// checkEnabled the role itself must be enabled.
func (r *Resolver) RoleHasPermissionTo(ctx context.Context, role *catalog.Role, permRef, sectionRef, containerRef catalog.Ref, checkEnabled bool) (bool, error) {
	sc, err := r.resolveScope(ctx, role.Guard, permRef, sectionRef, containerRef)
	if err != nil {
		return false, err
	}
	if checkEnabled && !role.State.Enabled() {
		return false, nil
	}
	if checkEnabled && !sc.statesEnabled() {
		return false, nil
	}
	return r.roleHasDirect(ctx, role.ID, sc)
}

// HasDirectPermission is HasPermissionTo restricted to the direct-grant path,
// ignoring the actor's roles.
func (r *Resolver) HasDirectPermission(ctx context.Context, actor guard.Actor, permRef, sectionRef, containerRef catalog.Ref, checkEnabled bool) (bool, error) {
	sc, err := r.resolveScope(ctx, actor.GuardName(), permRef, sectionRef, containerRef)
	if err != nil {
		return false, err
	}
	if checkEnabled && (!actor.Enabled() || !sc.statesEnabled()) {
		return false, nil
	}
	return r.actorHasDirect(ctx, guard.RefOf(actor), sc, checkEnabled)
}

// HasPermissionViaRole is HasPermissionTo restricted to the role path,
// ignoring direct grants.
func (r *Resolver) HasPermissionViaRole(ctx context.Context, actor guard.Actor, permRef, sectionRef, containerRef catalog.Ref, checkEnabled bool) (bool, error) {
	sc, err := r.resolveScope(ctx, actor.GuardName(), permRef, sectionRef, containerRef)
	if err != nil {
		return false, err
	}
	if checkEnabled && (!actor.Enabled() || !sc.statesEnabled()) {
		return false, nil
	}
	return r.hasViaRole(ctx, actor, sc, checkEnabled)
}

// actorHasDirect checks the direct-grant pivot. A row counts only when its
// enabled flag is set, unless checkEnabled is off.
func (r *Resolver) actorHasDirect(ctx context.Context, ref guard.ActorRef, sc scope, checkEnabled bool) (bool, error) {
	rows, err := r.pivots.ActorPermissions(ctx, ref, grants.Scoped(sc.section.ID, sc.container.ID).WithPermission(sc.permission.ID))
	if err != nil {
		return false, err
	}
	for _, row := range rows {
		if !checkEnabled || row.Enabled {
			return true, nil
		}
	}
	return false, nil
}

// roleHasDirect checks the role-grant pivot for row existence.
func (r *Resolver) roleHasDirect(ctx context.Context, roleID int64, sc scope) (bool, error) {
	rows, err := r.pivots.RolePermissions(ctx, roleID, grants.Scoped(sc.section.ID, sc.container.ID).WithPermission(sc.permission.ID))
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// hasViaRole tests whether any of the actor's roles holds the grant,
// recursively using the role as the actor of the direct check.
func (r *Resolver) hasViaRole(ctx context.Context, actor guard.Actor, sc scope, checkEnabled bool) (bool, error) {
	roles, err := r.actorRoles(ctx, actor)
	if err != nil {
		return false, err
	}
	for i := range roles {
		role := &roles[i]
		if checkEnabled && !role.State.Enabled() {
			continue
		}
		ok, err := r.roleHasDirect(ctx, role.ID, sc)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// actorRoles loads the actor's role entities from its membership rows.
func (r *Resolver) actorRoles(ctx context.Context, actor guard.Actor) ([]catalog.Role, error) {
	memberships, err := r.pivots.ActorRoles(ctx, guard.RefOf(actor))
	if err != nil {
		return nil, err
	}
	if len(memberships) == 0 {
		return nil, nil
	}
	ids := make([]int64, 0, len(memberships))
	for _, m := range memberships {
		ids = append(ids, m.RoleID)
	}
	return r.catalog.RolesByIDs(ctx, ids)
}

// HasRole reports membership of the named role. An unknown role name is a
// plain false here, not an error: membership is a question, not a grant
// lookup.
func (r *Resolver) HasRole(ctx context.Context, actor guard.Actor, roleRef catalog.Ref, checkEnabled bool) (bool, error) {
	role, err := r.catalog.FindRole(ctx, roleRef, actor.GuardName())
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if checkEnabled && !role.State.Enabled() {
		return false, nil
	}
	memberships, err := r.pivots.ActorRoles(ctx, guard.RefOf(actor))
	if err != nil {
		return false, err
	}
	for _, m := range memberships {
		if m.RoleID == role.ID {
			return true, nil
		}
	}
	return false, nil
}

// HasAnyRole reports whether the actor holds at least one of the roles.
func (r *Resolver) HasAnyRole(ctx context.Context, actor guard.Actor, roleRefs []catalog.Ref, checkEnabled bool) (bool, error) {
	for _, ref := range roleRefs {
		ok, err := r.HasRole(ctx, actor, ref, checkEnabled)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// HasAllRoles reports whether the actor holds every one of the roles.
func (r *Resolver) HasAllRoles(ctx context.Context, actor guard.Actor, roleRefs []catalog.Ref, checkEnabled bool) (bool, error) {
	for _, ref := range roleRefs {
		ok, err := r.HasRole(ctx, actor, ref, checkEnabled)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// IsSuperuser reports membership of the configured superuser role, which
// bypasses all checks at the gate and middleware level.
func (r *Resolver) IsSuperuser(ctx context.Context, actor guard.Actor) (bool, error) {
	return r.HasRole(ctx, actor, catalog.ByName(r.opts.SuperuserRole), true)
}

// IsAdmin reports membership of the configured admin role.
func (r *Resolver) IsAdmin(ctx context.Context, actor guard.Actor) (bool, error) {
	return r.HasRole(ctx, actor, catalog.ByName(r.opts.AdminRole), true)
}

// RoleNames lists the actor's role names, filtered to enabled roles when
// checkEnabled is set.
func (r *Resolver) RoleNames(ctx context.Context, actor guard.Actor, checkEnabled bool) ([]string, error) {
	if checkEnabled && !actor.Enabled() {
		return nil, nil
	}
	roles, err := r.actorRoles(ctx, actor)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		if checkEnabled && !role.State.Enabled() {
			continue
		}
		names = append(names, role.Name)
	}
	sort.Strings(names)
	return names, nil
}

// GetDirectPermissions lists the actor's direct grants in the scope.
func (r *Resolver) GetDirectPermissions(ctx context.Context, actor guard.Actor, sectionRef, containerRef catalog.Ref, checkEnabled bool) ([]catalog.Permission, error) {
	sec, cont, err := r.resolvePair(ctx, actor.GuardName(), sectionRef, containerRef)
	if err != nil {
		return nil, err
	}
	if checkEnabled && (!actor.Enabled() || !sec.State.Enabled() || !cont.State.Enabled()) {
		return nil, nil
	}
	direct, err := r.directGrantMap(ctx, guard.RefOf(actor), sec.ID, cont.ID)
	if err != nil {
		return nil, err
	}
	ids := make(map[int64]struct{}, len(direct))
	for id, enabled := range direct {
		if checkEnabled && !enabled {
			continue
		}
		ids[id] = struct{}{}
	}
	return r.permissionsByIDs(ctx, ids, checkEnabled)
}

// GetPermissionsViaRoles lists the grants the actor inherits through roles in
// the scope.
func (r *Resolver) GetPermissionsViaRoles(ctx context.Context, actor guard.Actor, sectionRef, containerRef catalog.Ref, checkEnabled bool) ([]catalog.Permission, error) {
	sec, cont, err := r.resolvePair(ctx, actor.GuardName(), sectionRef, containerRef)
	if err != nil {
		return nil, err
	}
	if checkEnabled && (!actor.Enabled() || !sec.State.Enabled() || !cont.State.Enabled()) {
		return nil, nil
	}
	ids, err := r.rolePermissionIDs(ctx, actor, sec.ID, cont.ID, checkEnabled)
	if err != nil {
		return nil, err
	}
	return r.permissionsByIDs(ctx, ids, checkEnabled)
}

// GetAllPermissions merges direct and role-derived grants for display. When a
// permission appears on both sides, the direct grant's enabled flag wins: an
// existing-but-disabled direct row suppresses the role grant.
func (r *Resolver) GetAllPermissions(ctx context.Context, actor guard.Actor, sectionRef, containerRef catalog.Ref, checkEnabled bool) ([]catalog.Permission, error) {
	sec, cont, err := r.resolvePair(ctx, actor.GuardName(), sectionRef, containerRef)
	if err != nil {
		return nil, err
	}
	if checkEnabled && (!actor.Enabled() || !sec.State.Enabled() || !cont.State.Enabled()) {
		return nil, nil
	}

	direct, err := r.directGrantMap(ctx, guard.RefOf(actor), sec.ID, cont.ID)
	if err != nil {
		return nil, err
	}
	viaRoles, err := r.rolePermissionIDs(ctx, actor, sec.ID, cont.ID, checkEnabled)
	if err != nil {
		return nil, err
	}

	merged := make(map[int64]struct{})
	for id := range viaRoles {
		if enabled, ok := direct[id]; ok && checkEnabled && !enabled {
			continue
		}
		merged[id] = struct{}{}
	}
	for id, enabled := range direct {
		if checkEnabled && !enabled {
			continue
		}
		merged[id] = struct{}{}
	}
	return r.permissionsByIDs(ctx, merged, checkEnabled)
}

// PermissionsTree maps every section name of the actor's guard to the
// resolved permission set within one container.
func (r *Resolver) PermissionsTree(ctx context.Context, actor guard.Actor, containerRef catalog.Ref, checkEnabled bool) (map[string][]catalog.Permission, error) {
	if checkEnabled && !actor.Enabled() {
		return map[string][]catalog.Permission{}, nil
	}
	sections, err := r.catalog.Registrar().GetSections(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]catalog.Permission)
	for i := range sections {
		sec := &sections[i]
		if sec.Guard != actor.GuardName() {
			continue
		}
		if checkEnabled && !sec.State.Enabled() {
			continue
		}
		perms, err := r.GetAllPermissions(ctx, actor, catalog.ByID(sec.ID), containerRef, checkEnabled)
		if err != nil {
			return nil, err
		}
		out[sec.Name] = perms
	}
	return out, nil
}

func (r *Resolver) resolvePair(ctx context.Context, guardName string, sectionRef, containerRef catalog.Ref) (*catalog.Section, *catalog.Container, error) {
	sec, err := r.catalog.FindSection(ctx, sectionRef, guardName)
	if err != nil {
		return nil, nil, err
	}
	if sec.Guard != guardName {
		return nil, nil, &shared.GuardMismatchError{Kind: shared.KindSection, Expected: guardName, Got: sec.Guard}
	}
	cont, err := r.catalog.FindContainer(ctx, containerRef, guardName)
	if err != nil {
		return nil, nil, err
	}
	if cont.Guard != guardName {
		return nil, nil, &shared.GuardMismatchError{Kind: shared.KindContainer, Expected: guardName, Got: cont.Guard}
	}
	return sec, cont, nil
}

// directGrantMap loads the actor's direct rows in scope as permission id →
// enabled flag.
func (r *Resolver) directGrantMap(ctx context.Context, ref guard.ActorRef, sectionID, containerID int64) (map[int64]bool, error) {
	rows, err := r.pivots.ActorPermissions(ctx, ref, grants.Scoped(sectionID, containerID))
	if err != nil {
		return nil, err
	}
	out := make(map[int64]bool, len(rows))
	for _, row := range rows {
		out[row.PermissionID] = row.Enabled
	}
	return out, nil
}

// rolePermissionIDs collects the permission ids granted by the actor's roles
// in scope.
func (r *Resolver) rolePermissionIDs(ctx context.Context, actor guard.Actor, sectionID, containerID int64, checkEnabled bool) (map[int64]struct{}, error) {
	roles, err := r.actorRoles(ctx, actor)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]struct{})
	for i := range roles {
		role := &roles[i]
		if checkEnabled && !role.State.Enabled() {
			continue
		}
		rows, err := r.pivots.RolePermissions(ctx, role.ID, grants.Scoped(sectionID, containerID))
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			out[row.PermissionID] = struct{}{}
		}
	}
	return out, nil
}

// permissionsByIDs resolves cached permission entities, filters disabled ones
// in checkEnabled mode, and sorts by name for stable display.
func (r *Resolver) permissionsByIDs(ctx context.Context, ids map[int64]struct{}, checkEnabled bool) ([]catalog.Permission, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	all, err := r.catalog.Registrar().GetPermissions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]catalog.Permission, 0, len(ids))
	for _, p := range all {
		if _, ok := ids[p.ID]; !ok {
			continue
		}
		if checkEnabled && !p.State.Enabled() {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
