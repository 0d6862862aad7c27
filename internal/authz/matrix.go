package authz

import (
	"context"
	"sort"

	"github.com/gatewarden/gatewarden/internal/catalog"
	"github.com/gatewarden/gatewarden/internal/grants"
	"github.com/gatewarden/gatewarden/internal/guard"
)

// MatrixCell is one (subject, permission) intersection. Enabled is only set
// for direct actor grants, which carry a flag; role grants are presence-only.
type MatrixCell struct {
	PermissionID   int64  `json:"permission_id"`
	PermissionName string `json:"permission_name"`
	Granted        bool   `json:"granted"`
	Enabled        *bool  `json:"enabled,omitempty"`
}

// MatrixRow is one subject's grants across every permission of the guard.
type MatrixRow struct {
	SubjectID   int64        `json:"subject_id"`
	SubjectName string       `json:"subject_name"`
	Cells       []MatrixCell `json:"cells"`
}

// Matrix is the admin-screen read model: subjects x permissions within one
// (section, container) scope. Disabled entities are included; the matrix is
// an editing surface, not an authorization answer.
type Matrix struct {
	SectionID   int64       `json:"section_id"`
	ContainerID int64       `json:"container_id"`
	Guard       string      `json:"guard"`
	Rows        []MatrixRow `json:"rows"`
}

// RoleMatrix builds the roles x permissions grid for a guard within the given
// scope.
func (r *Resolver) RoleMatrix(ctx context.Context, guardName string, sectionRef, containerRef catalog.Ref) (*Matrix, error) {
	sec, cont, err := r.resolvePair(ctx, guardName, sectionRef, containerRef)
	if err != nil {
		return nil, err
	}
	perms, err := r.guardPermissions(ctx, guardName)
	if err != nil {
		return nil, err
	}
	roles, err := r.catalog.ListRoles(ctx)
	if err != nil {
		return nil, err
	}

	m := &Matrix{SectionID: sec.ID, ContainerID: cont.ID, Guard: guardName}
	for i := range roles {
		role := &roles[i]
		if role.Guard != guardName {
			continue
		}
		rows, err := r.pivots.RolePermissions(ctx, role.ID, grants.Scoped(sec.ID, cont.ID))
		if err != nil {
			return nil, err
		}
		granted := make(map[int64]struct{}, len(rows))
		for _, row := range rows {
			granted[row.PermissionID] = struct{}{}
		}
		m.Rows = append(m.Rows, matrixRow(role.ID, role.Name, perms, func(permID int64) (bool, *bool) {
			_, ok := granted[permID]
			return ok, nil
		}))
	}
	return m, nil
}

// ActorMatrixRow builds a single actor's direct-grant row within the given
// scope, exposing the per-row enabled flag for editing.
func (r *Resolver) ActorMatrixRow(ctx context.Context, actor guard.Actor, sectionRef, containerRef catalog.Ref) (*MatrixRow, error) {
	sec, cont, err := r.resolvePair(ctx, actor.GuardName(), sectionRef, containerRef)
	if err != nil {
		return nil, err
	}
	perms, err := r.guardPermissions(ctx, actor.GuardName())
	if err != nil {
		return nil, err
	}
	direct, err := r.directGrantMap(ctx, guard.RefOf(actor), sec.ID, cont.ID)
	if err != nil {
		return nil, err
	}
	row := matrixRow(actor.ActorID(), "", perms, func(permID int64) (bool, *bool) {
		enabled, ok := direct[permID]
		if !ok {
			return false, nil
		}
		return true, &enabled
	})
	return &row, nil
}

func matrixRow(subjectID int64, subjectName string, perms []catalog.Permission, lookup func(permID int64) (bool, *bool)) MatrixRow {
	row := MatrixRow{SubjectID: subjectID, SubjectName: subjectName, Cells: make([]MatrixCell, 0, len(perms))}
	for _, p := range perms {
		granted, enabled := lookup(p.ID)
		row.Cells = append(row.Cells, MatrixCell{
			PermissionID:   p.ID,
			PermissionName: p.Name,
			Granted:        granted,
			Enabled:        enabled,
		})
	}
	return row
}

// guardPermissions filters the cached collection to one guard, sorted by name
// so matrix columns are stable.
func (r *Resolver) guardPermissions(ctx context.Context, guardName string) ([]catalog.Permission, error) {
	all, err := r.catalog.Registrar().GetPermissions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]catalog.Permission, 0, len(all))
	for _, p := range all {
		if p.Guard == guardName {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
