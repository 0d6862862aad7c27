package sectiontree

import (
	"context"
	"errors"
	"io"
	"testing"

	"log/slog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewarden/gatewarden/internal/catalog"
	"github.com/gatewarden/gatewarden/internal/shared"
)

// sectionCatalog is a catalog.Store fixture carrying sections only; the other
// entity families are irrelevant to tree mutations.
type sectionCatalog struct {
	sections []catalog.Section
	nextID   int64
}

func (m *sectionCatalog) CreatePermission(ctx context.Context, p *catalog.Permission) error {
	return nil
}
func (m *sectionCatalog) UpdatePermission(ctx context.Context, p *catalog.Permission) error {
	return nil
}
func (m *sectionCatalog) DeletePermission(ctx context.Context, id int64) error { return nil }
func (m *sectionCatalog) ListPermissions(ctx context.Context) ([]catalog.Permission, error) {
	return nil, nil
}
func (m *sectionCatalog) FindPermissionByID(ctx context.Context, id int64) (*catalog.Permission, error) {
	return nil, nil
}

func (m *sectionCatalog) CreateRole(ctx context.Context, r *catalog.Role) error { return nil }
func (m *sectionCatalog) UpdateRole(ctx context.Context, r *catalog.Role) error { return nil }
func (m *sectionCatalog) DeleteRole(ctx context.Context, id int64) error        { return nil }
func (m *sectionCatalog) ListRoles(ctx context.Context) ([]catalog.Role, error) { return nil, nil }
func (m *sectionCatalog) FindRoleByID(ctx context.Context, id int64) (*catalog.Role, error) {
	return nil, nil
}
func (m *sectionCatalog) FindRoleByName(ctx context.Context, name, guardName string) (*catalog.Role, error) {
	return nil, nil
}
func (m *sectionCatalog) RolesByIDs(ctx context.Context, ids []int64) ([]catalog.Role, error) {
	return nil, nil
}

func (m *sectionCatalog) CreateSection(ctx context.Context, s *catalog.Section) error {
	if s.ID == 0 {
		m.nextID++
		s.ID = m.nextID + 1000
	}
	m.sections = append(m.sections, *s)
	return nil
}

func (m *sectionCatalog) UpdateSection(ctx context.Context, s *catalog.Section) error {
	for i := range m.sections {
		if m.sections[i].ID == s.ID {
			m.sections[i] = *s
			return nil
		}
	}
	return &shared.NotFoundError{Kind: shared.KindSection, ID: s.ID}
}

func (m *sectionCatalog) DeleteSection(ctx context.Context, id int64) error { return nil }

func (m *sectionCatalog) ListSections(ctx context.Context) ([]catalog.Section, error) {
	return append([]catalog.Section(nil), m.sections...), nil
}

func (m *sectionCatalog) FindSectionByID(ctx context.Context, id int64) (*catalog.Section, error) {
	for i := range m.sections {
		if m.sections[i].ID == id {
			s := m.sections[i]
			return &s, nil
		}
	}
	return nil, nil
}

func (m *sectionCatalog) CreateContainer(ctx context.Context, c *catalog.Container) error { return nil }
func (m *sectionCatalog) UpdateContainer(ctx context.Context, c *catalog.Container) error { return nil }
func (m *sectionCatalog) DeleteContainer(ctx context.Context, id int64) error             { return nil }
func (m *sectionCatalog) ListContainers(ctx context.Context) ([]catalog.Container, error) {
	return nil, nil
}
func (m *sectionCatalog) FindContainerByID(ctx context.Context, id int64) (*catalog.Container, error) {
	return nil, nil
}

type treeDetacher struct{}

func (treeDetacher) DetachPermission(ctx context.Context, id int64) error { return nil }
func (treeDetacher) DetachRole(ctx context.Context, id int64) error       { return nil }
func (treeDetacher) DetachSection(ctx context.Context, id int64) error    { return nil }
func (treeDetacher) DetachContainer(ctx context.Context, id int64) error  { return nil }

// treeStore is a Store mock recording Reposition calls.
type treeStore struct {
	parents      map[int64]*int64
	maxOrder     int
	hasSiblings  bool
	repositions  []Reposition
	maxCalls     int
	parentsCalls int
}

func (m *treeStore) SiblingParents(ctx context.Context, ids []int64) (map[int64]*int64, error) {
	m.parentsCalls++
	out := make(map[int64]*int64, len(ids))
	for _, id := range ids {
		if p, ok := m.parents[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (m *treeStore) MaxSiblingOrder(ctx context.Context, guardName string, parentID *int64) (int, bool, error) {
	m.maxCalls++
	return m.maxOrder, m.hasSiblings, nil
}

func (m *treeStore) Reposition(ctx context.Context, r Reposition) error {
	m.repositions = append(m.repositions, r)
	return nil
}

// newTreeFixture seeds a small web-guard forest:
//
//	root(1) ── branch(2) ── leaf(3)
//	other(4)
func newTreeFixture(t *testing.T) (*Service, *treeStore, *sectionCatalog) {
	t.Helper()
	store := &sectionCatalog{sections: []catalog.Section{
		{ID: 1, Guard: "web", Name: "root", State: catalog.StateEnabled, Order: 0},
		{ID: 2, Guard: "web", Name: "branch", State: catalog.StateEnabled, ParentID: ptr(int64(1)), Order: 0},
		{ID: 3, Guard: "web", Name: "leaf", State: catalog.StateEnabled, ParentID: ptr(int64(2)), Order: 0},
		{ID: 4, Guard: "web", Name: "other", State: catalog.StateEnabled, Order: 1},
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registrar := catalog.NewRegistrar(store, nil, 0)
	catalogService := catalog.NewService(store, registrar, treeDetacher{}, "web", logger)

	trees := &treeStore{parents: map[int64]*int64{
		1: nil,
		2: ptr(int64(1)),
		3: ptr(int64(2)),
		4: nil,
	}}
	builder := NewBuilder(registrar, &linksFake{})
	return NewService(trees, catalogService, builder, logger), trees, store
}

func TestMoveRepositions(t *testing.T) {
	svc, trees, _ := newTreeFixture(t)

	err := svc.Move(context.Background(), "web", MoveInput{
		SectionID:   4,
		ParentID:    ptr(int64(1)),
		Position:    1,
		PreSiblings: []int64{2},
	})
	require.NoError(t, err)

	require.Len(t, trees.repositions, 1)
	r := trees.repositions[0]
	assert.Equal(t, int64(4), r.SectionID)
	require.NotNil(t, r.ParentID)
	assert.Equal(t, int64(1), *r.ParentID)
	assert.Equal(t, 1, r.Position)
	assert.Equal(t, []int64{2}, r.PreSiblings)
	assert.Empty(t, r.Siblings)
}

func TestMoveToRootKeepsNilParent(t *testing.T) {
	svc, trees, _ := newTreeFixture(t)

	err := svc.Move(context.Background(), "web", MoveInput{
		SectionID: 3,
		Position:  0,
		Siblings:  []int64{1, 4},
	})
	require.NoError(t, err)

	require.Len(t, trees.repositions, 1)
	assert.Nil(t, trees.repositions[0].ParentID)
}

func TestMoveRejectsUnknownSection(t *testing.T) {
	svc, trees, _ := newTreeFixture(t)

	err := svc.Move(context.Background(), "web", MoveInput{SectionID: 99})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrNotFound))
	assert.Empty(t, trees.repositions)
}

func TestMoveRejectsUnknownSibling(t *testing.T) {
	svc, trees, _ := newTreeFixture(t)

	err := svc.Move(context.Background(), "web", MoveInput{
		SectionID: 4,
		ParentID:  ptr(int64(1)),
		Siblings:  []int64{99},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrNotFound))
	assert.Empty(t, trees.repositions)
}

func TestMoveRejectsSiblingUnderOtherParent(t *testing.T) {
	svc, trees, _ := newTreeFixture(t)

	// Section 3 sits under 2, not under the destination parent 1.
	err := svc.Move(context.Background(), "web", MoveInput{
		SectionID: 4,
		ParentID:  ptr(int64(1)),
		Siblings:  []int64{3},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))
	assert.Empty(t, trees.repositions)
}

func TestMoveRejectsSelfInSiblingList(t *testing.T) {
	svc, trees, _ := newTreeFixture(t)

	err := svc.Move(context.Background(), "web", MoveInput{
		SectionID:   4,
		ParentID:    ptr(int64(1)),
		PreSiblings: []int64{4},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))
	assert.Empty(t, trees.repositions)
}

func TestMoveRejectsDescendantParent(t *testing.T) {
	svc, trees, _ := newTreeFixture(t)

	// Moving root(1) under leaf(3) would fold the subtree into itself.
	err := svc.Move(context.Background(), "web", MoveInput{
		SectionID: 1,
		ParentID:  ptr(int64(3)),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrSectionCycle))
	assert.Empty(t, trees.repositions)
}

func TestMoveRejectsForeignGuard(t *testing.T) {
	svc, trees, store := newTreeFixture(t)
	store.sections = append(store.sections, catalog.Section{
		ID: 50, Guard: "api", Name: "api-root", State: catalog.StateEnabled,
	})

	err := svc.Move(context.Background(), "web", MoveInput{SectionID: 50})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrGuardMismatch))
	assert.Empty(t, trees.repositions)
}

func TestAddAppendsAfterSiblings(t *testing.T) {
	svc, trees, store := newTreeFixture(t)
	trees.maxOrder = 4
	trees.hasSiblings = true

	sec, err := svc.Add(context.Background(), AddInput{
		Guard:    "web",
		Code:     "reports",
		Name:     "Reports",
		Locale:   "en",
		State:    catalog.StateEnabled,
		ParentID: ptr(int64(1)),
	})
	require.NoError(t, err)

	assert.Equal(t, 5, sec.Order)
	assert.Equal(t, "Reports", sec.Label.In("en"))
	require.NotNil(t, sec.Superadmin)
	assert.False(t, *sec.Superadmin)

	stored, err := store.FindSectionByID(context.Background(), sec.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 5, stored.Order)
}

func TestAddFirstChildStartsAtZero(t *testing.T) {
	svc, trees, _ := newTreeFixture(t)
	trees.hasSiblings = false

	sec, err := svc.Add(context.Background(), AddInput{
		Guard:  "web",
		Code:   "reports",
		Name:   "Reports",
		Locale: "en",
		State:  catalog.StateEnabled,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, sec.Order)
}

func TestAddRejectsCodeCollision(t *testing.T) {
	svc, _, _ := newTreeFixture(t)

	_, err := svc.Add(context.Background(), AddInput{
		Guard:  "web",
		Code:   "root",
		Name:   "Root again",
		Locale: "en",
		State:  catalog.StateEnabled,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrAlreadyExists))
}

func TestRenameSectionRejectsCollision(t *testing.T) {
	svc, _, store := newTreeFixture(t)
	ctx := context.Background()

	err := svc.RenameSection(ctx, "web", 4, "root")
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrAlreadyExists))

	require.NoError(t, svc.RenameSection(ctx, "web", 4, "misc"))
	sec, err := store.FindSectionByID(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, "misc", sec.Name)
}

func TestSetSectionStateValidates(t *testing.T) {
	svc, _, store := newTreeFixture(t)
	ctx := context.Background()

	err := svc.SetSectionState(ctx, "web", 4, catalog.State(7))
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))

	require.NoError(t, svc.SetSectionState(ctx, "web", 4, catalog.StateDisabled))
	sec, err := store.FindSectionByID(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, catalog.StateDisabled, sec.State)
}

func TestSetSectionSuperadmin(t *testing.T) {
	svc, _, store := newTreeFixture(t)
	ctx := context.Background()

	require.NoError(t, svc.SetSectionSuperadmin(ctx, "web", 2, true))
	sec, err := store.FindSectionByID(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, sec.Superadmin)
	assert.True(t, *sec.Superadmin)
}
