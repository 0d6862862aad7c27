package sectiontree

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewarden/gatewarden/internal/catalog"
	"github.com/gatewarden/gatewarden/internal/grants"
	"github.com/gatewarden/gatewarden/internal/shared"
)

type sectionsFake struct {
	sections []catalog.Section
}

func (f *sectionsFake) GetSections(ctx context.Context) ([]catalog.Section, error) {
	return append([]catalog.Section(nil), f.sections...), nil
}

type linksFake struct {
	links []grants.SectionContainer
}

func (f *linksFake) ContainerSections(ctx context.Context, containerID int64) ([]grants.SectionContainer, error) {
	var out []grants.SectionContainer
	for _, row := range f.links {
		if row.ContainerID == containerID {
			out = append(out, row)
		}
	}
	return out, nil
}

func ptr[T any](v T) *T { return &v }

func section(id int64, guardName string, parent *int64, order int, state catalog.State) catalog.Section {
	return catalog.Section{ID: id, Guard: guardName, Name: "", State: state, ParentID: parent, Order: order}
}

func names(nodes []Node) []int64 {
	out := make([]int64, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Section.ID)
	}
	return out
}

func TestGlobalTreeOrdersSiblings(t *testing.T) {
	src := &sectionsFake{sections: []catalog.Section{
		section(1, "web", nil, 1, catalog.StateEnabled),
		section(2, "web", nil, 0, catalog.StateEnabled),
		// Same order: id breaks the tie.
		section(3, "web", nil, 1, catalog.StateEnabled),
		section(4, "web", ptr(int64(2)), 1, catalog.StateEnabled),
		section(5, "web", ptr(int64(2)), 0, catalog.StateEnabled),
		// Another guard never shows up.
		section(6, "api", nil, 0, catalog.StateEnabled),
	}}
	builder := NewBuilder(src, &linksFake{})

	tree, err := builder.GlobalTree(context.Background(), "web", false)
	require.NoError(t, err)

	assert.Equal(t, []int64{2, 1, 3}, names(tree))
	require.Equal(t, int64(2), tree[0].Section.ID)
	assert.Equal(t, []int64{5, 4}, names(tree[0].Children))
	assert.Nil(t, tree[0].Linked, "global mode carries no linkage annotations")
}

func TestGlobalTreeOnlyEnabledDropsSubtrees(t *testing.T) {
	src := &sectionsFake{sections: []catalog.Section{
		section(1, "web", nil, 0, catalog.StateEnabled),
		section(2, "web", nil, 1, catalog.StateDisabled),
		// Child of the disabled root: orphaned, silently excluded.
		section(3, "web", ptr(int64(2)), 0, catalog.StateEnabled),
	}}
	builder := NewBuilder(src, &linksFake{})

	tree, err := builder.GlobalTree(context.Background(), "web", true)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, names(tree))
}

func TestContainerTreeAnnotatesLinkage(t *testing.T) {
	src := &sectionsFake{sections: []catalog.Section{
		{ID: 1, Guard: "web", State: catalog.StateEnabled, Order: 0, Superadmin: ptr(true)},
		{ID: 2, Guard: "web", State: catalog.StateEnabled, Order: 1, Superadmin: ptr(true)},
		{ID: 3, Guard: "web", State: catalog.StateEnabled, Order: 2},
	}}
	links := &linksFake{links: []grants.SectionContainer{
		// Pivot override beats the section's own flag.
		{SectionID: 1, ContainerID: 9, Superadmin: ptr(false)},
		// Null pivot inherits the section's flag.
		{SectionID: 3, ContainerID: 9, Superadmin: nil},
	}}
	builder := NewBuilder(src, links)
	container := &catalog.Container{ID: 9, Guard: "web", State: catalog.StateEnabled}

	tree, err := builder.ContainerTree(context.Background(), container, false)
	require.NoError(t, err)
	require.Len(t, tree, 3)

	linked := tree[0]
	require.NotNil(t, linked.Linked)
	assert.True(t, *linked.Linked)
	require.NotNil(t, linked.SuperadminForced)
	assert.False(t, *linked.SuperadminForced)

	unlinked := tree[1]
	require.NotNil(t, unlinked.Linked)
	assert.False(t, *unlinked.Linked)
	require.NotNil(t, unlinked.SuperadminForced)
	assert.True(t, *unlinked.SuperadminForced, "unlinked nodes keep the section's own flag")

	inherited := tree[2]
	require.NotNil(t, inherited.Linked)
	assert.True(t, *inherited.Linked)
	assert.Nil(t, inherited.SuperadminForced)
}

func TestBuildSubtree(t *testing.T) {
	src := &sectionsFake{sections: []catalog.Section{
		section(1, "web", nil, 0, catalog.StateEnabled),
		section(2, "web", ptr(int64(1)), 0, catalog.StateEnabled),
		section(3, "web", ptr(int64(2)), 0, catalog.StateEnabled),
	}}
	builder := NewBuilder(src, &linksFake{})

	tree, err := builder.Build(context.Background(), BuildOptions{Guard: "web", RootID: ptr(int64(2))})
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, names(tree))
}

func TestBuildDetectsParentCycle(t *testing.T) {
	src := &sectionsFake{sections: []catalog.Section{
		section(1, "web", nil, 0, catalog.StateEnabled),
		section(2, "web", ptr(int64(3)), 0, catalog.StateEnabled),
		section(3, "web", ptr(int64(2)), 0, catalog.StateEnabled),
	}}
	builder := NewBuilder(src, &linksFake{})

	_, err := builder.GlobalTree(context.Background(), "web", false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrSectionCycle))
}

func TestBuildLoadsPermissionsPerNode(t *testing.T) {
	src := &sectionsFake{sections: []catalog.Section{
		section(1, "web", nil, 0, catalog.StateEnabled),
	}}
	builder := NewBuilder(src, &linksFake{})

	loader := func(ctx context.Context, sec *catalog.Section) ([]catalog.Permission, error) {
		return []catalog.Permission{{ID: 7, Guard: "web", Name: "read", State: catalog.StateEnabled}}, nil
	}

	tree, err := builder.Build(context.Background(), BuildOptions{Guard: "web", Permissions: loader})
	require.NoError(t, err)
	require.Len(t, tree, 1)
	require.Len(t, tree[0].Permissions, 1)
	assert.Equal(t, "read", tree[0].Permissions[0].Name)
}
