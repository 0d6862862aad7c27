package authz

import (
	"context"
	"io"
	"testing"

	"log/slog"

	"github.com/gatewarden/gatewarden/internal/catalog"
	"github.com/gatewarden/gatewarden/internal/grants"
	"github.com/gatewarden/gatewarden/internal/guard"
)

// Fixture entity ids, shared by the resolver and gate tests.
const (
	permRead   int64 = 1
	permUpdate int64 = 2
	permPurge  int64 = 3 // disabled

	secDashboard int64 = 10
	secArchive   int64 = 11 // disabled
	secAPIHome   int64 = 12 // guard "api"

	contMain   int64 = 20
	contClosed int64 = 21 // disabled

	roleEditor    int64 = 30
	roleGhost     int64 = 31 // disabled
	roleSuperuser int64 = 32
	roleAdmin     int64 = 33
)

type testActor struct {
	id      int64
	guard   string
	enabled bool
}

func (a testActor) ActorID() int64    { return a.id }
func (a testActor) GuardName() string { return a.guard }
func (a testActor) Enabled() bool     { return a.enabled }

// memCatalog is a fixture-backed catalog.Store. Writes are supported only as
// far as the tests need them.
type memCatalog struct {
	perms      []catalog.Permission
	roles      []catalog.Role
	sections   []catalog.Section
	containers []catalog.Container
}

func (m *memCatalog) CreatePermission(ctx context.Context, p *catalog.Permission) error {
	m.perms = append(m.perms, *p)
	return nil
}

func (m *memCatalog) UpdatePermission(ctx context.Context, p *catalog.Permission) error { return nil }
func (m *memCatalog) DeletePermission(ctx context.Context, id int64) error              { return nil }

func (m *memCatalog) ListPermissions(ctx context.Context) ([]catalog.Permission, error) {
	return append([]catalog.Permission(nil), m.perms...), nil
}

func (m *memCatalog) FindPermissionByID(ctx context.Context, id int64) (*catalog.Permission, error) {
	for i := range m.perms {
		if m.perms[i].ID == id {
			p := m.perms[i]
			return &p, nil
		}
	}
	return nil, nil
}

func (m *memCatalog) CreateRole(ctx context.Context, r *catalog.Role) error {
	m.roles = append(m.roles, *r)
	return nil
}

func (m *memCatalog) UpdateRole(ctx context.Context, r *catalog.Role) error { return nil }
func (m *memCatalog) DeleteRole(ctx context.Context, id int64) error        { return nil }

func (m *memCatalog) ListRoles(ctx context.Context) ([]catalog.Role, error) {
	return append([]catalog.Role(nil), m.roles...), nil
}

func (m *memCatalog) FindRoleByID(ctx context.Context, id int64) (*catalog.Role, error) {
	for i := range m.roles {
		if m.roles[i].ID == id {
			r := m.roles[i]
			return &r, nil
		}
	}
	return nil, nil
}

func (m *memCatalog) FindRoleByName(ctx context.Context, name, guardName string) (*catalog.Role, error) {
	for i := range m.roles {
		if m.roles[i].Name == name && m.roles[i].Guard == guardName {
			r := m.roles[i]
			return &r, nil
		}
	}
	return nil, nil
}

func (m *memCatalog) RolesByIDs(ctx context.Context, ids []int64) ([]catalog.Role, error) {
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []catalog.Role
	for i := range m.roles {
		if want[m.roles[i].ID] {
			out = append(out, m.roles[i])
		}
	}
	return out, nil
}

func (m *memCatalog) CreateSection(ctx context.Context, s *catalog.Section) error {
	m.sections = append(m.sections, *s)
	return nil
}

func (m *memCatalog) UpdateSection(ctx context.Context, s *catalog.Section) error { return nil }
func (m *memCatalog) DeleteSection(ctx context.Context, id int64) error           { return nil }

func (m *memCatalog) ListSections(ctx context.Context) ([]catalog.Section, error) {
	return append([]catalog.Section(nil), m.sections...), nil
}

func (m *memCatalog) FindSectionByID(ctx context.Context, id int64) (*catalog.Section, error) {
	for i := range m.sections {
		if m.sections[i].ID == id {
			s := m.sections[i]
			return &s, nil
		}
	}
	return nil, nil
}

func (m *memCatalog) CreateContainer(ctx context.Context, c *catalog.Container) error {
	m.containers = append(m.containers, *c)
	return nil
}

func (m *memCatalog) UpdateContainer(ctx context.Context, c *catalog.Container) error { return nil }
func (m *memCatalog) DeleteContainer(ctx context.Context, id int64) error             { return nil }

func (m *memCatalog) ListContainers(ctx context.Context) ([]catalog.Container, error) {
	return append([]catalog.Container(nil), m.containers...), nil
}

func (m *memCatalog) FindContainerByID(ctx context.Context, id int64) (*catalog.Container, error) {
	for i := range m.containers {
		if m.containers[i].ID == id {
			c := m.containers[i]
			return &c, nil
		}
	}
	return nil, nil
}

type nopDetacher struct{}

func (nopDetacher) DetachPermission(ctx context.Context, id int64) error { return nil }
func (nopDetacher) DetachRole(ctx context.Context, id int64) error       { return nil }
func (nopDetacher) DetachSection(ctx context.Context, id int64) error    { return nil }
func (nopDetacher) DetachContainer(ctx context.Context, id int64) error  { return nil }

// pivotStore is a fixture-backed grants.Store. Only the read side matters to
// the resolver; writes are no-ops.
type pivotStore struct {
	rolePerms  []grants.RolePermission
	actorPerms []grants.ActorPermission
	actorRoles []grants.ActorRole
	secLinks   []grants.SectionContainer
}

func filterMatch(f grants.Filter, permissionID, sectionID, containerID int64) bool {
	if f.PermissionID != nil && *f.PermissionID != permissionID {
		return false
	}
	if f.SectionID != nil && *f.SectionID != sectionID {
		return false
	}
	if f.ContainerID != nil && *f.ContainerID != containerID {
		return false
	}
	return true
}

func (s *pivotStore) RolePermissions(ctx context.Context, roleID int64, f grants.Filter) ([]grants.RolePermission, error) {
	var out []grants.RolePermission
	for _, row := range s.rolePerms {
		if row.RoleID == roleID && filterMatch(f, row.PermissionID, row.SectionID, row.ContainerID) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *pivotStore) ActorPermissions(ctx context.Context, actor guard.ActorRef, f grants.Filter) ([]grants.ActorPermission, error) {
	var out []grants.ActorPermission
	for _, row := range s.actorPerms {
		if row.Actor == actor && filterMatch(f, row.PermissionID, row.SectionID, row.ContainerID) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *pivotStore) ActorRoles(ctx context.Context, actor guard.ActorRef) ([]grants.ActorRole, error) {
	var out []grants.ActorRole
	for _, row := range s.actorRoles {
		if row.Actor == actor {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *pivotStore) RoleContainers(ctx context.Context, roleID int64) ([]grants.RoleContainer, error) {
	return nil, nil
}

func (s *pivotStore) SectionContainers(ctx context.Context, sectionID int64) ([]grants.SectionContainer, error) {
	var out []grants.SectionContainer
	for _, row := range s.secLinks {
		if row.SectionID == sectionID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *pivotStore) ContainerSections(ctx context.Context, containerID int64) ([]grants.SectionContainer, error) {
	var out []grants.SectionContainer
	for _, row := range s.secLinks {
		if row.ContainerID == containerID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *pivotStore) AttachRolePermissions(ctx context.Context, rows []grants.RolePermission) error {
	s.rolePerms = append(s.rolePerms, rows...)
	return nil
}

func (s *pivotStore) DetachRolePermissions(ctx context.Context, roleID int64, f grants.Filter) error {
	return nil
}

func (s *pivotStore) AttachActorPermissions(ctx context.Context, rows []grants.ActorPermission) error {
	s.actorPerms = append(s.actorPerms, rows...)
	return nil
}

func (s *pivotStore) DetachActorPermissions(ctx context.Context, actor guard.ActorRef, f grants.Filter) error {
	return nil
}

func (s *pivotStore) AttachActorRoles(ctx context.Context, actor guard.ActorRef, roleIDs []int64) error {
	for _, id := range roleIDs {
		s.actorRoles = append(s.actorRoles, grants.ActorRole{Actor: actor, RoleID: id})
	}
	return nil
}

func (s *pivotStore) DetachActorRoles(ctx context.Context, actor guard.ActorRef, roleIDs []int64) error {
	return nil
}

func (s *pivotStore) DetachAllActorRoles(ctx context.Context, actor guard.ActorRef) error {
	return nil
}

func (s *pivotStore) LinkRoleContainer(ctx context.Context, roleID, containerID int64) error {
	return nil
}

func (s *pivotStore) UnlinkRoleContainer(ctx context.Context, roleID, containerID int64) error {
	return nil
}

func (s *pivotStore) LinkSectionContainer(ctx context.Context, link grants.SectionContainer) error {
	s.secLinks = append(s.secLinks, link)
	return nil
}

func (s *pivotStore) UnlinkSectionContainer(ctx context.Context, sectionID, containerID int64) error {
	return nil
}

func (s *pivotStore) PurgePermission(ctx context.Context, permissionID int64) error { return nil }
func (s *pivotStore) PurgeRole(ctx context.Context, roleID int64) error             { return nil }
func (s *pivotStore) PurgeSection(ctx context.Context, sectionID int64) error       { return nil }
func (s *pivotStore) PurgeContainer(ctx context.Context, containerID int64) error   { return nil }
func (s *pivotStore) PurgeActor(ctx context.Context, actor guard.ActorRef) error    { return nil }

type fixture struct {
	resolver *Resolver
	pivots   *pivotStore
	store    *memCatalog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := &memCatalog{
		perms: []catalog.Permission{
			{ID: permRead, Guard: "web", Name: "read", State: catalog.StateEnabled},
			{ID: permUpdate, Guard: "web", Name: "update", State: catalog.StateEnabled},
			{ID: permPurge, Guard: "web", Name: "purge", State: catalog.StateDisabled},
		},
		roles: []catalog.Role{
			{ID: roleEditor, Guard: "web", Name: "editor", State: catalog.StateEnabled},
			{ID: roleGhost, Guard: "web", Name: "ghost", State: catalog.StateDisabled},
			{ID: roleSuperuser, Guard: "web", Name: "superuser", State: catalog.StateEnabled},
			{ID: roleAdmin, Guard: "web", Name: "admin", State: catalog.StateEnabled},
		},
		sections: []catalog.Section{
			{ID: secDashboard, Guard: "web", Name: "dashboard", State: catalog.StateEnabled},
			{ID: secArchive, Guard: "web", Name: "archive", State: catalog.StateDisabled},
			{ID: secAPIHome, Guard: "api", Name: "home", State: catalog.StateEnabled},
		},
		containers: []catalog.Container{
			{ID: contMain, Guard: "web", Name: "main", State: catalog.StateEnabled},
			{ID: contClosed, Guard: "web", Name: "closed", State: catalog.StateDisabled},
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registrar := catalog.NewRegistrar(store, nil, 0)
	catalogService := catalog.NewService(store, registrar, nopDetacher{}, "web", logger)
	pivots := &pivotStore{}
	resolver := NewResolver(catalogService, pivots, Options{SuperuserRole: "superuser", AdminRole: "admin"}, logger)
	return &fixture{resolver: resolver, pivots: pivots, store: store}
}

func (f *fixture) grantDirect(actor guard.Actor, permissionID, sectionID, containerID int64, enabled bool) {
	f.pivots.actorPerms = append(f.pivots.actorPerms, grants.ActorPermission{
		Actor:        guard.RefOf(actor),
		PermissionID: permissionID,
		SectionID:    sectionID,
		ContainerID:  containerID,
		Enabled:      enabled,
	})
}

func (f *fixture) grantRole(roleID, permissionID, sectionID, containerID int64) {
	f.pivots.rolePerms = append(f.pivots.rolePerms, grants.RolePermission{
		RoleID:       roleID,
		PermissionID: permissionID,
		SectionID:    sectionID,
		ContainerID:  containerID,
	})
}

func (f *fixture) addMember(actor guard.Actor, roleID int64) {
	f.pivots.actorRoles = append(f.pivots.actorRoles, grants.ActorRole{Actor: guard.RefOf(actor), RoleID: roleID})
}
