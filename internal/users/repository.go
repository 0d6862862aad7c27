package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatewarden/gatewarden/internal/shared"
)

// Repository provides PostgreSQL backed persistence for user accounts.
type Repository struct {
	pool   *pgxpool.Pool
	schema shared.SchemaConfig
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool, schema shared.SchemaConfig) *Repository {
	return &Repository{pool: pool, schema: schema}
}

// SupportsSoftDelete reports the delete strategy. This implementation hard
// deletes; the capability is explicit so callers never probe for it at
// runtime.
func (r *Repository) SupportsSoftDelete() bool { return false }

const userColumns = `id, guard_name, email, name, password_hash, state, created_at, updated_at`

// Create inserts a user. A (guard, email) collision surfaces as
// AlreadyExistsError.
func (r *Repository) Create(ctx context.Context, u *User) error {
	now := time.Now().UTC()
	query := fmt.Sprintf(`INSERT INTO %s (guard_name, email, name, password_hash, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`, r.schema.Users)
	err := r.pool.QueryRow(ctx, query, u.Guard, u.Email, u.Name, u.PasswordHash, u.State, now, now).Scan(&u.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return &shared.AlreadyExistsError{Kind: shared.KindUser, Name: u.Email, Guard: u.Guard}
		}
		return fmt.Errorf("users: create: %w", err)
	}
	u.CreatedAt = now
	u.UpdatedAt = now
	return nil
}

// FindByID loads one user or nil when absent.
func (r *Repository) FindByID(ctx context.Context, id int64) (*User, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, userColumns, r.schema.Users)
	return r.findOne(ctx, query, id)
}

// FindByEmail loads one user within a guard or nil when absent.
func (r *Repository) FindByEmail(ctx context.Context, email, guardName string) (*User, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE email = $1 AND guard_name = $2`, userColumns, r.schema.Users)
	return r.findOne(ctx, query, email, guardName)
}

func (r *Repository) findOne(ctx context.Context, query string, args ...any) (*User, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("users: find: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	u, err := scanUser(rows)
	if err != nil {
		return nil, err
	}
	return &u, rows.Err()
}

// List returns all users of one guard ordered by id.
func (r *Repository) List(ctx context.Context, guardName string) ([]User, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE guard_name = $1 ORDER BY id`, userColumns, r.schema.Users)
	rows, err := r.pool.Query(ctx, query, guardName)
	if err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Update persists name and state changes.
func (r *Repository) Update(ctx context.Context, u *User) error {
	query := fmt.Sprintf(`UPDATE %s SET name = $1, state = $2, updated_at = $3 WHERE id = $4`, r.schema.Users)
	tag, err := r.pool.Exec(ctx, query, u.Name, u.State, time.Now().UTC(), u.ID)
	if err != nil {
		return fmt.Errorf("users: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &shared.NotFoundError{Kind: shared.KindUser, ID: u.ID}
	}
	return nil
}

// Delete removes the user row.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.schema.Users)
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("users: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &shared.NotFoundError{Kind: shared.KindUser, ID: id}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Guard, &u.Email, &u.Name, &u.PasswordHash, &u.State, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return User{}, fmt.Errorf("users: scan: %w", err)
	}
	return u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
