package catalog

import (
	"context"
	"sync"

	"github.com/gatewarden/gatewarden/internal/shared"
)

// memStore is an in-memory Store used across the catalog tests. List calls
// are counted so the registrar tests can assert cache behavior.
type memStore struct {
	mu         sync.Mutex
	perms      []Permission
	roles      []Role
	sections   []Section
	containers []Container
	nextID     int64

	listPermissionCalls int
	listSectionCalls    int
	listContainerCalls  int
}

func newMemStore() *memStore {
	return &memStore{nextID: 1}
}

func (m *memStore) id() int64 {
	v := m.nextID
	m.nextID++
	return v
}

func (m *memStore) CreatePermission(ctx context.Context, p *Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == 0 {
		p.ID = m.id()
	}
	m.perms = append(m.perms, *p)
	return nil
}

func (m *memStore) UpdatePermission(ctx context.Context, p *Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.perms {
		if m.perms[i].ID == p.ID {
			m.perms[i] = *p
			return nil
		}
	}
	return &shared.NotFoundError{Kind: shared.KindPermission, ID: p.ID}
}

func (m *memStore) DeletePermission(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.perms {
		if m.perms[i].ID == id {
			m.perms = append(m.perms[:i], m.perms[i+1:]...)
			return nil
		}
	}
	return &shared.NotFoundError{Kind: shared.KindPermission, ID: id}
}

func (m *memStore) ListPermissions(ctx context.Context) ([]Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listPermissionCalls++
	out := make([]Permission, len(m.perms))
	copy(out, m.perms)
	return out, nil
}

func (m *memStore) FindPermissionByID(ctx context.Context, id int64) (*Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.perms {
		if m.perms[i].ID == id {
			p := m.perms[i]
			return &p, nil
		}
	}
	return nil, nil
}

func (m *memStore) CreateRole(ctx context.Context, r *Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == 0 {
		r.ID = m.id()
	}
	m.roles = append(m.roles, *r)
	return nil
}

func (m *memStore) UpdateRole(ctx context.Context, r *Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.roles {
		if m.roles[i].ID == r.ID {
			m.roles[i] = *r
			return nil
		}
	}
	return &shared.NotFoundError{Kind: shared.KindRole, ID: r.ID}
}

func (m *memStore) DeleteRole(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.roles {
		if m.roles[i].ID == id {
			m.roles = append(m.roles[:i], m.roles[i+1:]...)
			return nil
		}
	}
	return &shared.NotFoundError{Kind: shared.KindRole, ID: id}
}

func (m *memStore) ListRoles(ctx context.Context) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Role, len(m.roles))
	copy(out, m.roles)
	return out, nil
}

func (m *memStore) FindRoleByID(ctx context.Context, id int64) (*Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.roles {
		if m.roles[i].ID == id {
			r := m.roles[i]
			return &r, nil
		}
	}
	return nil, nil
}

func (m *memStore) FindRoleByName(ctx context.Context, name, guardName string) (*Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.roles {
		if m.roles[i].Name == name && m.roles[i].Guard == guardName {
			r := m.roles[i]
			return &r, nil
		}
	}
	return nil, nil
}

func (m *memStore) RolesByIDs(ctx context.Context, ids []int64) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []Role
	for i := range m.roles {
		if want[m.roles[i].ID] {
			out = append(out, m.roles[i])
		}
	}
	return out, nil
}

func (m *memStore) CreateSection(ctx context.Context, s *Section) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == 0 {
		s.ID = m.id()
	}
	m.sections = append(m.sections, *s)
	return nil
}

func (m *memStore) UpdateSection(ctx context.Context, s *Section) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.sections {
		if m.sections[i].ID == s.ID {
			m.sections[i] = *s
			return nil
		}
	}
	return &shared.NotFoundError{Kind: shared.KindSection, ID: s.ID}
}

func (m *memStore) DeleteSection(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.sections {
		if m.sections[i].ID == id {
			m.sections = append(m.sections[:i], m.sections[i+1:]...)
			return nil
		}
	}
	return &shared.NotFoundError{Kind: shared.KindSection, ID: id}
}

func (m *memStore) ListSections(ctx context.Context) ([]Section, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listSectionCalls++
	out := make([]Section, len(m.sections))
	copy(out, m.sections)
	return out, nil
}

func (m *memStore) FindSectionByID(ctx context.Context, id int64) (*Section, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.sections {
		if m.sections[i].ID == id {
			s := m.sections[i]
			return &s, nil
		}
	}
	return nil, nil
}

func (m *memStore) CreateContainer(ctx context.Context, c *Container) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == 0 {
		c.ID = m.id()
	}
	m.containers = append(m.containers, *c)
	return nil
}

func (m *memStore) UpdateContainer(ctx context.Context, c *Container) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.containers {
		if m.containers[i].ID == c.ID {
			m.containers[i] = *c
			return nil
		}
	}
	return &shared.NotFoundError{Kind: shared.KindContainer, ID: c.ID}
}

func (m *memStore) DeleteContainer(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.containers {
		if m.containers[i].ID == id {
			m.containers = append(m.containers[:i], m.containers[i+1:]...)
			return nil
		}
	}
	return &shared.NotFoundError{Kind: shared.KindContainer, ID: id}
}

func (m *memStore) ListContainers(ctx context.Context) ([]Container, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listContainerCalls++
	out := make([]Container, len(m.containers))
	copy(out, m.containers)
	return out, nil
}

func (m *memStore) FindContainerByID(ctx context.Context, id int64) (*Container, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.containers {
		if m.containers[i].ID == id {
			c := m.containers[i]
			return &c, nil
		}
	}
	return nil, nil
}

// stubDetacher records which pivot detach hooks ran.
type stubDetacher struct {
	permissionIDs []int64
	roleIDs       []int64
	sectionIDs    []int64
	containerIDs  []int64
}

func (d *stubDetacher) DetachPermission(ctx context.Context, id int64) error {
	d.permissionIDs = append(d.permissionIDs, id)
	return nil
}

func (d *stubDetacher) DetachRole(ctx context.Context, id int64) error {
	d.roleIDs = append(d.roleIDs, id)
	return nil
}

func (d *stubDetacher) DetachSection(ctx context.Context, id int64) error {
	d.sectionIDs = append(d.sectionIDs, id)
	return nil
}

func (d *stubDetacher) DetachContainer(ctx context.Context, id int64) error {
	d.containerIDs = append(d.containerIDs, id)
	return nil
}
