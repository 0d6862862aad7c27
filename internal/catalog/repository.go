package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatewarden/gatewarden/internal/shared"
)

const uniqueViolation = "23505"

// Store is the persistence contract for the catalog entities.
type Store interface {
	CreatePermission(ctx context.Context, p *Permission) error
	UpdatePermission(ctx context.Context, p *Permission) error
	DeletePermission(ctx context.Context, id int64) error
	ListPermissions(ctx context.Context) ([]Permission, error)
	FindPermissionByID(ctx context.Context, id int64) (*Permission, error)

	CreateRole(ctx context.Context, r *Role) error
	UpdateRole(ctx context.Context, r *Role) error
	DeleteRole(ctx context.Context, id int64) error
	ListRoles(ctx context.Context) ([]Role, error)
	FindRoleByID(ctx context.Context, id int64) (*Role, error)
	FindRoleByName(ctx context.Context, name, guardName string) (*Role, error)
	RolesByIDs(ctx context.Context, ids []int64) ([]Role, error)

	CreateSection(ctx context.Context, s *Section) error
	UpdateSection(ctx context.Context, s *Section) error
	DeleteSection(ctx context.Context, id int64) error
	ListSections(ctx context.Context) ([]Section, error)
	FindSectionByID(ctx context.Context, id int64) (*Section, error)

	CreateContainer(ctx context.Context, c *Container) error
	UpdateContainer(ctx context.Context, c *Container) error
	DeleteContainer(ctx context.Context, id int64) error
	ListContainers(ctx context.Context) ([]Container, error)
	FindContainerByID(ctx context.Context, id int64) (*Container, error)
}

// Repository provides PostgreSQL backed persistence for the catalog.
type Repository struct {
	db     *pgxpool.Pool
	schema shared.SchemaConfig
}

// NewRepository constructs a repository over the given pool and table names.
func NewRepository(db *pgxpool.Pool, schema shared.SchemaConfig) *Repository {
	return &Repository{db: db, schema: schema}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func marshalJSONB(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalJSONB(raw []byte, dest any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dest)
}

// --- permissions ---

func (r *Repository) CreatePermission(ctx context.Context, p *Permission) error {
	label, err := marshalJSONB(p.Label)
	if err != nil {
		return err
	}
	meta, err := marshalJSONB(p.Meta)
	if err != nil {
		return err
	}
	now := time.Now()
	query := fmt.Sprintf(`INSERT INTO %s (guard_name, name, label, state, meta, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`, r.schema.Permissions)
	if err := r.db.QueryRow(ctx, query, p.Guard, p.Name, label, p.State, meta, now, now).Scan(&p.ID); err != nil {
		if isUniqueViolation(err) {
			return &shared.AlreadyExistsError{Kind: shared.KindPermission, Name: p.Name, Guard: p.Guard}
		}
		return err
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

func (r *Repository) UpdatePermission(ctx context.Context, p *Permission) error {
	label, err := marshalJSONB(p.Label)
	if err != nil {
		return err
	}
	meta, err := marshalJSONB(p.Meta)
	if err != nil {
		return err
	}
	now := time.Now()
	query := fmt.Sprintf(`UPDATE %s SET name = $1, label = $2, state = $3, meta = $4, updated_at = $5 WHERE id = $6`, r.schema.Permissions)
	tag, err := r.db.Exec(ctx, query, p.Name, label, p.State, meta, now, p.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &shared.NotFoundError{Kind: shared.KindPermission, ID: p.ID}
	}
	p.UpdatedAt = now
	return nil
}

func (r *Repository) DeletePermission(ctx context.Context, id int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.schema.Permissions)
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &shared.NotFoundError{Kind: shared.KindPermission, ID: id}
	}
	return nil
}

func (r *Repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	query := fmt.Sprintf(`SELECT id, guard_name, name, label, state, meta, created_at, updated_at FROM %s ORDER BY guard_name, name`, r.schema.Permissions)
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (r *Repository) FindPermissionByID(ctx context.Context, id int64) (*Permission, error) {
	query := fmt.Sprintf(`SELECT id, guard_name, name, label, state, meta, created_at, updated_at FROM %s WHERE id = $1`, r.schema.Permissions)
	rows, err := r.db.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	p, err := scanPermission(rows)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanPermission(rows pgx.Rows) (Permission, error) {
	var (
		p          Permission
		label, meta []byte
	)
	if err := rows.Scan(&p.ID, &p.Guard, &p.Name, &label, &p.State, &meta, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Permission{}, err
	}
	if err := unmarshalJSONB(label, &p.Label); err != nil {
		return Permission{}, err
	}
	if err := unmarshalJSONB(meta, &p.Meta); err != nil {
		return Permission{}, err
	}
	return p, nil
}

// --- roles ---

func (r *Repository) CreateRole(ctx context.Context, role *Role) error {
	label, err := marshalJSONB(role.Label)
	if err != nil {
		return err
	}
	meta, err := marshalJSONB(role.Meta)
	if err != nil {
		return err
	}
	now := time.Now()
	query := fmt.Sprintf(`INSERT INTO %s (guard_name, name, label, state, meta, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`, r.schema.Roles)
	if err := r.db.QueryRow(ctx, query, role.Guard, role.Name, label, role.State, meta, now, now).Scan(&role.ID); err != nil {
		if isUniqueViolation(err) {
			return &shared.AlreadyExistsError{Kind: shared.KindRole, Name: role.Name, Guard: role.Guard}
		}
		return err
	}
	role.CreatedAt = now
	role.UpdatedAt = now
	return nil
}

func (r *Repository) UpdateRole(ctx context.Context, role *Role) error {
	label, err := marshalJSONB(role.Label)
	if err != nil {
		return err
	}
	meta, err := marshalJSONB(role.Meta)
	if err != nil {
		return err
	}
	now := time.Now()
	query := fmt.Sprintf(`UPDATE %s SET name = $1, label = $2, state = $3, meta = $4, updated_at = $5 WHERE id = $6`, r.schema.Roles)
	tag, err := r.db.Exec(ctx, query, role.Name, label, role.State, meta, now, role.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &shared.NotFoundError{Kind: shared.KindRole, ID: role.ID}
	}
	role.UpdatedAt = now
	return nil
}

func (r *Repository) DeleteRole(ctx context.Context, id int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.schema.Roles)
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &shared.NotFoundError{Kind: shared.KindRole, ID: id}
	}
	return nil
}

func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	query := fmt.Sprintf(`SELECT id, guard_name, name, label, state, meta, created_at, updated_at FROM %s ORDER BY guard_name, name`, r.schema.Roles)
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (r *Repository) FindRoleByID(ctx context.Context, id int64) (*Role, error) {
	query := fmt.Sprintf(`SELECT id, guard_name, name, label, state, meta, created_at, updated_at FROM %s WHERE id = $1`, r.schema.Roles)
	return r.findRole(ctx, query, id)
}

func (r *Repository) FindRoleByName(ctx context.Context, name, guardName string) (*Role, error) {
	query := fmt.Sprintf(`SELECT id, guard_name, name, label, state, meta, created_at, updated_at FROM %s WHERE name = $1 AND guard_name = $2`, r.schema.Roles)
	return r.findRole(ctx, query, name, guardName)
}

func (r *Repository) findRole(ctx context.Context, query string, args ...any) (*Role, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	role, err := scanRole(rows)
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *Repository) RolesByIDs(ctx context.Context, ids []int64) ([]Role, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT id, guard_name, name, label, state, meta, created_at, updated_at FROM %s WHERE id = ANY($1) ORDER BY name`, r.schema.Roles)
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func scanRole(rows pgx.Rows) (Role, error) {
	var (
		role        Role
		label, meta []byte
	)
	if err := rows.Scan(&role.ID, &role.Guard, &role.Name, &label, &role.State, &meta, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return Role{}, err
	}
	if err := unmarshalJSONB(label, &role.Label); err != nil {
		return Role{}, err
	}
	if err := unmarshalJSONB(meta, &role.Meta); err != nil {
		return Role{}, err
	}
	return role, nil
}

// --- sections ---

func (r *Repository) CreateSection(ctx context.Context, s *Section) error {
	label, err := marshalJSONB(s.Label)
	if err != nil {
		return err
	}
	meta, err := marshalJSONB(s.Meta)
	if err != nil {
		return err
	}
	now := time.Now()
	query := fmt.Sprintf(`INSERT INTO %s (guard_name, name, label, state, meta, superadmin, parent_id, sort_order, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`, r.schema.Sections)
	if err := r.db.QueryRow(ctx, query, s.Guard, s.Name, label, s.State, meta, s.Superadmin, s.ParentID, s.Order, now, now).Scan(&s.ID); err != nil {
		if isUniqueViolation(err) {
			return &shared.AlreadyExistsError{Kind: shared.KindSection, Name: s.Name, Guard: s.Guard}
		}
		return err
	}
	s.CreatedAt = now
	s.UpdatedAt = now
	return nil
}

func (r *Repository) UpdateSection(ctx context.Context, s *Section) error {
	label, err := marshalJSONB(s.Label)
	if err != nil {
		return err
	}
	meta, err := marshalJSONB(s.Meta)
	if err != nil {
		return err
	}
	now := time.Now()
	query := fmt.Sprintf(`UPDATE %s SET name = $1, label = $2, state = $3, meta = $4, superadmin = $5, parent_id = $6, sort_order = $7, updated_at = $8 WHERE id = $9`, r.schema.Sections)
	tag, err := r.db.Exec(ctx, query, s.Name, label, s.State, meta, s.Superadmin, s.ParentID, s.Order, now, s.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &shared.NotFoundError{Kind: shared.KindSection, ID: s.ID}
	}
	s.UpdatedAt = now
	return nil
}

func (r *Repository) DeleteSection(ctx context.Context, id int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.schema.Sections)
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &shared.NotFoundError{Kind: shared.KindSection, ID: id}
	}
	return nil
}

func (r *Repository) ListSections(ctx context.Context) ([]Section, error) {
	query := fmt.Sprintf(`SELECT id, guard_name, name, label, state, meta, superadmin, parent_id, sort_order, created_at, updated_at FROM %s ORDER BY guard_name, parent_id NULLS FIRST, sort_order`, r.schema.Sections)
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sections []Section
	for rows.Next() {
		s, err := scanSection(rows)
		if err != nil {
			return nil, err
		}
		sections = append(sections, s)
	}
	return sections, rows.Err()
}

func (r *Repository) FindSectionByID(ctx context.Context, id int64) (*Section, error) {
	query := fmt.Sprintf(`SELECT id, guard_name, name, label, state, meta, superadmin, parent_id, sort_order, created_at, updated_at FROM %s WHERE id = $1`, r.schema.Sections)
	rows, err := r.db.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	s, err := scanSection(rows)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func scanSection(rows pgx.Rows) (Section, error) {
	var (
		s           Section
		label, meta []byte
	)
	if err := rows.Scan(&s.ID, &s.Guard, &s.Name, &label, &s.State, &meta, &s.Superadmin, &s.ParentID, &s.Order, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return Section{}, err
	}
	if err := unmarshalJSONB(label, &s.Label); err != nil {
		return Section{}, err
	}
	if err := unmarshalJSONB(meta, &s.Meta); err != nil {
		return Section{}, err
	}
	return s, nil
}

// --- containers ---

func (r *Repository) CreateContainer(ctx context.Context, c *Container) error {
	label, err := marshalJSONB(c.Label)
	if err != nil {
		return err
	}
	meta, err := marshalJSONB(c.Meta)
	if err != nil {
		return err
	}
	now := time.Now()
	query := fmt.Sprintf(`INSERT INTO %s (guard_name, name, label, state, meta, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`, r.schema.Containers)
	if err := r.db.QueryRow(ctx, query, c.Guard, c.Name, label, c.State, meta, now, now).Scan(&c.ID); err != nil {
		if isUniqueViolation(err) {
			return &shared.AlreadyExistsError{Kind: shared.KindContainer, Name: c.Name, Guard: c.Guard}
		}
		return err
	}
	c.CreatedAt = now
	c.UpdatedAt = now
	return nil
}

func (r *Repository) UpdateContainer(ctx context.Context, c *Container) error {
	label, err := marshalJSONB(c.Label)
	if err != nil {
		return err
	}
	meta, err := marshalJSONB(c.Meta)
	if err != nil {
		return err
	}
	now := time.Now()
	query := fmt.Sprintf(`UPDATE %s SET name = $1, label = $2, state = $3, meta = $4, updated_at = $5 WHERE id = $6`, r.schema.Containers)
	tag, err := r.db.Exec(ctx, query, c.Name, label, c.State, meta, now, c.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &shared.NotFoundError{Kind: shared.KindContainer, ID: c.ID}
	}
	c.UpdatedAt = now
	return nil
}

func (r *Repository) DeleteContainer(ctx context.Context, id int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.schema.Containers)
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &shared.NotFoundError{Kind: shared.KindContainer, ID: id}
	}
	return nil
}

func (r *Repository) ListContainers(ctx context.Context) ([]Container, error) {
	query := fmt.Sprintf(`SELECT id, guard_name, name, label, state, meta, created_at, updated_at FROM %s ORDER BY guard_name, name`, r.schema.Containers)
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var containers []Container
	for rows.Next() {
		c, err := scanContainer(rows)
		if err != nil {
			return nil, err
		}
		containers = append(containers, c)
	}
	return containers, rows.Err()
}

func (r *Repository) FindContainerByID(ctx context.Context, id int64) (*Container, error) {
	query := fmt.Sprintf(`SELECT id, guard_name, name, label, state, meta, created_at, updated_at FROM %s WHERE id = $1`, r.schema.Containers)
	rows, err := r.db.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	c, err := scanContainer(rows)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func scanContainer(rows pgx.Rows) (Container, error) {
	var (
		c           Container
		label, meta []byte
	)
	if err := rows.Scan(&c.ID, &c.Guard, &c.Name, &label, &c.State, &meta, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return Container{}, err
	}
	if err := unmarshalJSONB(label, &c.Label); err != nil {
		return Container{}, err
	}
	if err := unmarshalJSONB(meta, &c.Meta); err != nil {
		return Container{}, err
	}
	return c, nil
}
