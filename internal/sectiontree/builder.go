// Package sectiontree builds and mutates the section hierarchy: ordered
// forests per guard, optionally projected through a container's linkage, with
// the superadmin inheritance rule applied per node.
package sectiontree

import (
	"context"
	"fmt"
	"sort"

	"github.com/gatewarden/gatewarden/internal/catalog"
	"github.com/gatewarden/gatewarden/internal/grants"
	"github.com/gatewarden/gatewarden/internal/shared"
)

// Node is one section in the assembled tree. Linked and SuperadminForced are
// only set in container mode; Permissions only when a loader is supplied.
type Node struct {
	Section          catalog.Section      `json:"model"`
	Children         []Node               `json:"children"`
	Linked           *bool                `json:"is,omitempty"`
	SuperadminForced *bool                `json:"superadmin_forced,omitempty"`
	Permissions      []catalog.Permission `json:"permissions,omitempty"`
}

// SectionSource provides the full section collection, normally the registrar
// cache.
type SectionSource interface {
	GetSections(ctx context.Context) ([]catalog.Section, error)
}

// LinkSource provides the section↔container pivot rows for container mode.
type LinkSource interface {
	ContainerSections(ctx context.Context, containerID int64) ([]grants.SectionContainer, error)
}

// PermissionLoader optionally annotates each node with resolved permissions.
type PermissionLoader func(ctx context.Context, section *catalog.Section) ([]catalog.Permission, error)

// BuildOptions selects the tree variant. A nil Container is global mode:
// scoped by Guard only, no linkage annotations. RootID restricts the build to
// one subtree.
type BuildOptions struct {
	Guard       string
	OnlyEnabled bool
	RootID      *int64
	Container   *catalog.Container
	Permissions PermissionLoader
}

// Builder assembles section trees from the cached collection and live pivot
// rows. Construction is iterative over a parent→children adjacency map, so a
// corrupted parent chain surfaces as ErrSectionCycle instead of unbounded
// recursion.
type Builder struct {
	sections SectionSource
	links    LinkSource
}

// NewBuilder constructs a Builder.
func NewBuilder(sections SectionSource, links LinkSource) *Builder {
	return &Builder{sections: sections, links: links}
}

// GlobalTree builds the full forest of a guard, for the administrative
// section editor.
func (b *Builder) GlobalTree(ctx context.Context, guardName string, onlyEnabled bool) ([]Node, error) {
	return b.Build(ctx, BuildOptions{Guard: guardName, OnlyEnabled: onlyEnabled})
}

// ContainerTree builds the forest of the container's guard annotated with the
// container's linkage and the effective superadmin flag per node.
func (b *Builder) ContainerTree(ctx context.Context, container *catalog.Container, onlyEnabled bool) ([]Node, error) {
	return b.Build(ctx, BuildOptions{Guard: container.Guard, OnlyEnabled: onlyEnabled, Container: container})
}

// Build assembles the tree described by opts.
func (b *Builder) Build(ctx context.Context, opts BuildOptions) ([]Node, error) {
	all, err := b.sections.GetSections(ctx)
	if err != nil {
		return nil, err
	}

	guardName := opts.Guard
	if opts.Container != nil {
		guardName = opts.Container.Guard
	}

	arena := make(map[int64]*catalog.Section)
	children := make(map[int64][]int64) // key 0 holds the roots
	for i := range all {
		sec := &all[i]
		if sec.Guard != guardName {
			continue
		}
		if opts.OnlyEnabled && !sec.State.Enabled() {
			continue
		}
		arena[sec.ID] = sec
		parent := int64(0)
		if sec.ParentID != nil {
			parent = *sec.ParentID
		}
		children[parent] = append(children[parent], sec.ID)
	}
	for parent := range children {
		ids := children[parent]
		sort.Slice(ids, func(i, j int) bool {
			a, b := arena[ids[i]], arena[ids[j]]
			if a.Order != b.Order {
				return a.Order < b.Order
			}
			return a.ID < b.ID
		})
	}

	var links map[int64]*bool
	if opts.Container != nil {
		rows, err := b.links.ContainerSections(ctx, opts.Container.ID)
		if err != nil {
			return nil, err
		}
		links = make(map[int64]*bool, len(rows))
		for _, row := range rows {
			links[row.SectionID] = row.Superadmin
		}
	}

	rootKey := int64(0)
	if opts.RootID != nil {
		rootKey = *opts.RootID
	}

	out, visited, err := b.assemble(ctx, arena, children, links, rootKey, opts)
	if err != nil {
		return nil, err
	}
	// A full build must account for every section in the arena; a subtree
	// build legitimately leaves the rest unvisited.
	if opts.RootID == nil {
		if err := classifyUnvisited(arena, visited); err != nil {
			return nil, err
		}
	}
	return out, nil
}

type buildTask struct {
	parent int64
	dst    *[]Node
}

// assemble walks the adjacency map with an explicit stack. Each sibling group
// is allocated at its final length up front so child slots stay addressable
// while their own subtrees are filled in.
func (b *Builder) assemble(ctx context.Context, arena map[int64]*catalog.Section, children map[int64][]int64, links map[int64]*bool, rootKey int64, opts BuildOptions) ([]Node, map[int64]bool, error) {
	var out []Node
	visited := make(map[int64]bool, len(arena))
	stack := []buildTask{{parent: rootKey, dst: &out}}

	for len(stack) > 0 {
		task := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		ids := children[task.parent]
		if len(ids) == 0 {
			continue
		}
		nodes := make([]Node, len(ids))
		for i, id := range ids {
			if visited[id] {
				return nil, nil, fmt.Errorf("%w: section %d reached twice", shared.ErrSectionCycle, id)
			}
			visited[id] = true

			node := Node{Section: *arena[id]}
			if links != nil {
				linked := false
				if pivot, ok := links[id]; ok {
					linked = true
					node.SuperadminForced = effectiveSuperadmin(pivot, node.Section.Superadmin)
				} else {
					node.SuperadminForced = node.Section.Superadmin
				}
				node.Linked = &linked
			}
			if opts.Permissions != nil {
				perms, err := opts.Permissions(ctx, arena[id])
				if err != nil {
					return nil, nil, err
				}
				node.Permissions = perms
			}
			nodes[i] = node
		}
		*task.dst = nodes
		for i := range nodes {
			stack = append(stack, buildTask{parent: nodes[i].Section.ID, dst: &nodes[i].Children})
		}
	}
	return out, visited, nil
}

// effectiveSuperadmin applies the inheritance rule: a non-null pivot value
// overrides the section's own flag for that container.
func effectiveSuperadmin(pivot, own *bool) *bool {
	if pivot != nil {
		return pivot
	}
	return own
}

// classifyUnvisited separates harmless orphans (parent filtered out or
// missing) from genuine parent-chain cycles.
func classifyUnvisited(arena map[int64]*catalog.Section, visited map[int64]bool) error {
	for id, sec := range arena {
		if visited[id] {
			continue
		}
		seen := map[int64]bool{id: true}
		cur := sec
		for {
			if cur.ParentID == nil {
				break
			}
			next, ok := arena[*cur.ParentID]
			if !ok {
				// Parent filtered out (disabled) or deleted: orphan subtree,
				// silently excluded like the recursive query would.
				break
			}
			if seen[next.ID] {
				return fmt.Errorf("%w: section %d participates in a parent cycle", shared.ErrSectionCycle, next.ID)
			}
			seen[next.ID] = true
			cur = next
		}
	}
	return nil
}
