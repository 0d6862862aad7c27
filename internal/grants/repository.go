package grants

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatewarden/gatewarden/internal/guard"
	"github.com/gatewarden/gatewarden/internal/shared"
)

// Store is the persistence contract for pivot rows.
type Store interface {
	RolePermissions(ctx context.Context, roleID int64, f Filter) ([]RolePermission, error)
	ActorPermissions(ctx context.Context, actor guard.ActorRef, f Filter) ([]ActorPermission, error)
	ActorRoles(ctx context.Context, actor guard.ActorRef) ([]ActorRole, error)
	RoleContainers(ctx context.Context, roleID int64) ([]RoleContainer, error)
	SectionContainers(ctx context.Context, sectionID int64) ([]SectionContainer, error)
	ContainerSections(ctx context.Context, containerID int64) ([]SectionContainer, error)

	AttachRolePermissions(ctx context.Context, rows []RolePermission) error
	DetachRolePermissions(ctx context.Context, roleID int64, f Filter) error
	AttachActorPermissions(ctx context.Context, rows []ActorPermission) error
	DetachActorPermissions(ctx context.Context, actor guard.ActorRef, f Filter) error
	AttachActorRoles(ctx context.Context, actor guard.ActorRef, roleIDs []int64) error
	DetachActorRoles(ctx context.Context, actor guard.ActorRef, roleIDs []int64) error
	DetachAllActorRoles(ctx context.Context, actor guard.ActorRef) error
	LinkRoleContainer(ctx context.Context, roleID, containerID int64) error
	UnlinkRoleContainer(ctx context.Context, roleID, containerID int64) error
	LinkSectionContainer(ctx context.Context, link SectionContainer) error
	UnlinkSectionContainer(ctx context.Context, sectionID, containerID int64) error

	PurgePermission(ctx context.Context, permissionID int64) error
	PurgeRole(ctx context.Context, roleID int64) error
	PurgeSection(ctx context.Context, sectionID int64) error
	PurgeContainer(ctx context.Context, containerID int64) error
	PurgeActor(ctx context.Context, actor guard.ActorRef) error
}

// Repository provides PostgreSQL backed persistence for pivot rows.
type Repository struct {
	db     *pgxpool.Pool
	schema shared.SchemaConfig
}

// NewRepository constructs a repository over the given pool and table names.
func NewRepository(db *pgxpool.Pool, schema shared.SchemaConfig) *Repository {
	return &Repository{db: db, schema: schema}
}

// filterClause appends pivot filter predicates starting at placeholder $n.
func filterClause(f Filter, n int, args []any) (string, []any) {
	var sb strings.Builder
	if f.PermissionID != nil {
		sb.WriteString(fmt.Sprintf(" AND permission_id = $%d", n))
		args = append(args, *f.PermissionID)
		n++
	}
	if f.SectionID != nil {
		sb.WriteString(fmt.Sprintf(" AND section_id = $%d", n))
		args = append(args, *f.SectionID)
		n++
	}
	if f.ContainerID != nil {
		sb.WriteString(fmt.Sprintf(" AND container_id = $%d", n))
		args = append(args, *f.ContainerID)
	}
	return sb.String(), args
}

func (r *Repository) RolePermissions(ctx context.Context, roleID int64, f Filter) ([]RolePermission, error) {
	args := []any{roleID}
	clause, args := filterClause(f, 2, args)
	query := fmt.Sprintf(`SELECT role_id, permission_id, section_id, container_id FROM %s WHERE role_id = $1%s`,
		r.schema.RoleHasPermissions, clause)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RolePermission
	for rows.Next() {
		var rp RolePermission
		if err := rows.Scan(&rp.RoleID, &rp.PermissionID, &rp.SectionID, &rp.ContainerID); err != nil {
			return nil, err
		}
		out = append(out, rp)
	}
	return out, rows.Err()
}

func (r *Repository) ActorPermissions(ctx context.Context, actor guard.ActorRef, f Filter) ([]ActorPermission, error) {
	args := []any{actor.Guard, actor.ID}
	clause, args := filterClause(f, 3, args)
	query := fmt.Sprintf(`SELECT model_guard, model_id, permission_id, section_id, container_id, enabled FROM %s WHERE model_guard = $1 AND model_id = $2%s`,
		r.schema.ModelHasPermissions, clause)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ActorPermission
	for rows.Next() {
		var ap ActorPermission
		if err := rows.Scan(&ap.Actor.Guard, &ap.Actor.ID, &ap.PermissionID, &ap.SectionID, &ap.ContainerID, &ap.Enabled); err != nil {
			return nil, err
		}
		out = append(out, ap)
	}
	return out, rows.Err()
}

func (r *Repository) ActorRoles(ctx context.Context, actor guard.ActorRef) ([]ActorRole, error) {
	query := fmt.Sprintf(`SELECT model_guard, model_id, role_id FROM %s WHERE model_guard = $1 AND model_id = $2`,
		r.schema.ModelHasRoles)
	rows, err := r.db.Query(ctx, query, actor.Guard, actor.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ActorRole
	for rows.Next() {
		var ar ActorRole
		if err := rows.Scan(&ar.Actor.Guard, &ar.Actor.ID, &ar.RoleID); err != nil {
			return nil, err
		}
		out = append(out, ar)
	}
	return out, rows.Err()
}

func (r *Repository) RoleContainers(ctx context.Context, roleID int64) ([]RoleContainer, error) {
	query := fmt.Sprintf(`SELECT role_id, container_id FROM %s WHERE role_id = $1`, r.schema.ContainerRole)
	rows, err := r.db.Query(ctx, query, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RoleContainer
	for rows.Next() {
		var rc RoleContainer
		if err := rows.Scan(&rc.RoleID, &rc.ContainerID); err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

func (r *Repository) SectionContainers(ctx context.Context, sectionID int64) ([]SectionContainer, error) {
	query := fmt.Sprintf(`SELECT section_id, container_id, superadmin FROM %s WHERE section_id = $1`, r.schema.ContainerSection)
	return r.scanSectionContainers(ctx, query, sectionID)
}

func (r *Repository) ContainerSections(ctx context.Context, containerID int64) ([]SectionContainer, error) {
	query := fmt.Sprintf(`SELECT section_id, container_id, superadmin FROM %s WHERE container_id = $1`, r.schema.ContainerSection)
	return r.scanSectionContainers(ctx, query, containerID)
}

func (r *Repository) scanSectionContainers(ctx context.Context, query string, arg any) ([]SectionContainer, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SectionContainer
	for rows.Next() {
		var sc SectionContainer
		if err := rows.Scan(&sc.SectionID, &sc.ContainerID, &sc.Superadmin); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (r *Repository) AttachRolePermissions(ctx context.Context, rows []RolePermission) error {
	query := fmt.Sprintf(`INSERT INTO %s (role_id, permission_id, section_id, container_id)
		VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`, r.schema.RoleHasPermissions)
	for _, rp := range rows {
		if _, err := r.db.Exec(ctx, query, rp.RoleID, rp.PermissionID, rp.SectionID, rp.ContainerID); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) DetachRolePermissions(ctx context.Context, roleID int64, f Filter) error {
	args := []any{roleID}
	clause, args := filterClause(f, 2, args)
	query := fmt.Sprintf(`DELETE FROM %s WHERE role_id = $1%s`, r.schema.RoleHasPermissions, clause)
	_, err := r.db.Exec(ctx, query, args...)
	return err
}

func (r *Repository) AttachActorPermissions(ctx context.Context, rows []ActorPermission) error {
	query := fmt.Sprintf(`INSERT INTO %s (model_guard, model_id, permission_id, section_id, container_id, enabled)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (model_guard, model_id, permission_id, section_id, container_id)
		DO UPDATE SET enabled = EXCLUDED.enabled`, r.schema.ModelHasPermissions)
	for _, ap := range rows {
		if _, err := r.db.Exec(ctx, query, ap.Actor.Guard, ap.Actor.ID, ap.PermissionID, ap.SectionID, ap.ContainerID, ap.Enabled); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) DetachActorPermissions(ctx context.Context, actor guard.ActorRef, f Filter) error {
	args := []any{actor.Guard, actor.ID}
	clause, args := filterClause(f, 3, args)
	query := fmt.Sprintf(`DELETE FROM %s WHERE model_guard = $1 AND model_id = $2%s`, r.schema.ModelHasPermissions, clause)
	_, err := r.db.Exec(ctx, query, args...)
	return err
}

func (r *Repository) AttachActorRoles(ctx context.Context, actor guard.ActorRef, roleIDs []int64) error {
	query := fmt.Sprintf(`INSERT INTO %s (model_guard, model_id, role_id)
		VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`, r.schema.ModelHasRoles)
	for _, id := range roleIDs {
		if _, err := r.db.Exec(ctx, query, actor.Guard, actor.ID, id); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) DetachActorRoles(ctx context.Context, actor guard.ActorRef, roleIDs []int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE model_guard = $1 AND model_id = $2 AND role_id = ANY($3)`, r.schema.ModelHasRoles)
	_, err := r.db.Exec(ctx, query, actor.Guard, actor.ID, roleIDs)
	return err
}

func (r *Repository) DetachAllActorRoles(ctx context.Context, actor guard.ActorRef) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE model_guard = $1 AND model_id = $2`, r.schema.ModelHasRoles)
	_, err := r.db.Exec(ctx, query, actor.Guard, actor.ID)
	return err
}

func (r *Repository) LinkRoleContainer(ctx context.Context, roleID, containerID int64) error {
	query := fmt.Sprintf(`INSERT INTO %s (role_id, container_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, r.schema.ContainerRole)
	_, err := r.db.Exec(ctx, query, roleID, containerID)
	return err
}

func (r *Repository) UnlinkRoleContainer(ctx context.Context, roleID, containerID int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE role_id = $1 AND container_id = $2`, r.schema.ContainerRole)
	_, err := r.db.Exec(ctx, query, roleID, containerID)
	return err
}

func (r *Repository) LinkSectionContainer(ctx context.Context, link SectionContainer) error {
	query := fmt.Sprintf(`INSERT INTO %s (section_id, container_id, superadmin)
		VALUES ($1, $2, $3)
		ON CONFLICT (section_id, container_id) DO UPDATE SET superadmin = EXCLUDED.superadmin`, r.schema.ContainerSection)
	_, err := r.db.Exec(ctx, query, link.SectionID, link.ContainerID, link.Superadmin)
	return err
}

func (r *Repository) UnlinkSectionContainer(ctx context.Context, sectionID, containerID int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE section_id = $1 AND container_id = $2`, r.schema.ContainerSection)
	_, err := r.db.Exec(ctx, query, sectionID, containerID)
	return err
}

func (r *Repository) PurgePermission(ctx context.Context, permissionID int64) error {
	for _, table := range []string{r.schema.RoleHasPermissions, r.schema.ModelHasPermissions} {
		query := fmt.Sprintf(`DELETE FROM %s WHERE permission_id = $1`, table)
		if _, err := r.db.Exec(ctx, query, permissionID); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) PurgeRole(ctx context.Context, roleID int64) error {
	for _, table := range []string{r.schema.RoleHasPermissions, r.schema.ModelHasRoles, r.schema.ContainerRole} {
		query := fmt.Sprintf(`DELETE FROM %s WHERE role_id = $1`, table)
		if _, err := r.db.Exec(ctx, query, roleID); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) PurgeSection(ctx context.Context, sectionID int64) error {
	for _, table := range []string{r.schema.RoleHasPermissions, r.schema.ModelHasPermissions, r.schema.ContainerSection} {
		query := fmt.Sprintf(`DELETE FROM %s WHERE section_id = $1`, table)
		if _, err := r.db.Exec(ctx, query, sectionID); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) PurgeContainer(ctx context.Context, containerID int64) error {
	for _, table := range []string{r.schema.RoleHasPermissions, r.schema.ModelHasPermissions, r.schema.ContainerRole, r.schema.ContainerSection} {
		query := fmt.Sprintf(`DELETE FROM %s WHERE container_id = $1`, table)
		if _, err := r.db.Exec(ctx, query, containerID); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) PurgeActor(ctx context.Context, actor guard.ActorRef) error {
	for _, table := range []string{r.schema.ModelHasPermissions, r.schema.ModelHasRoles} {
		query := fmt.Sprintf(`DELETE FROM %s WHERE model_guard = $1 AND model_id = $2`, table)
		if _, err := r.db.Exec(ctx, query, actor.Guard, actor.ID); err != nil {
			return err
		}
	}
	return nil
}
