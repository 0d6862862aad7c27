package users

import (
	"context"
	"fmt"

	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/gatewarden/gatewarden/internal/guard"
	"github.com/gatewarden/gatewarden/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	SupportsSoftDelete() bool
	Create(ctx context.Context, u *User) error
	FindByID(ctx context.Context, id int64) (*User, error)
	FindByEmail(ctx context.Context, email, guardName string) (*User, error)
	List(ctx context.Context, guardName string) ([]User, error)
	Update(ctx context.Context, u *User) error
	Delete(ctx context.Context, id int64) error
}

// GrantDetacher removes an actor's role memberships and direct grants. It is
// implemented by the grants layer.
type GrantDetacher interface {
	DetachActor(ctx context.Context, actor guard.ActorRef) error
}

// Service handles account lifecycle and interprets the state attribute
// through the guard's mapping.
type Service struct {
	repo    RepositoryPort
	grants  GrantDetacher
	mapping guard.StateMapping
	logger  *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, grants GrantDetacher, mapping guard.StateMapping, logger *slog.Logger) *Service {
	return &Service{repo: repo, grants: grants, mapping: mapping, logger: logger}
}

// CreateInput carries the attributes for a new account.
type CreateInput struct {
	Guard    string
	Email    string
	Name     string
	Password string
	State    string
}

// Create hashes the password and inserts the account.
func (s *Service) Create(ctx context.Context, in CreateInput) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("users: hash password: %w", err)
	}
	u := &User{
		Guard:        in.Guard,
		Email:        in.Email,
		Name:         in.Name,
		PasswordHash: string(hash),
		State:        in.State,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	s.materialize(u)
	return u, nil
}

// Authenticate verifies credentials and returns the account. Failures are
// uniform so callers cannot distinguish a missing account from a bad
// password.
func (s *Service) Authenticate(ctx context.Context, email, guardName, password string) (*User, error) {
	u, err := s.repo.FindByEmail(ctx, email, guardName)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, &shared.UnauthorizedError{}
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, &shared.UnauthorizedError{}
	}
	s.materialize(u)
	return u, nil
}

// Find loads one account.
func (s *Service) Find(ctx context.Context, id int64) (*User, error) {
	u, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, &shared.NotFoundError{Kind: shared.KindUser, ID: id}
	}
	s.materialize(u)
	return u, nil
}

// List returns every account of one guard.
func (s *Service) List(ctx context.Context, guardName string) ([]User, error) {
	out, err := s.repo.List(ctx, guardName)
	if err != nil {
		return nil, err
	}
	for i := range out {
		s.materialize(&out[i])
	}
	return out, nil
}

// SetState updates the raw state attribute.
func (s *Service) SetState(ctx context.Context, id int64, state string) (*User, error) {
	u, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	u.State = state
	if err := s.repo.Update(ctx, u); err != nil {
		return nil, err
	}
	s.materialize(u)
	return u, nil
}

// Rename updates the display name.
func (s *Service) Rename(ctx context.Context, id int64, name string) (*User, error) {
	u, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Name = name
	if err := s.repo.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Delete removes the account. Grants are detached first so a later account
// with a recycled id can never inherit them; the repository's delete strategy
// is a declared capability, so this holds for hard deletes only — soft
// deleting repositories keep their grants.
func (s *Service) Delete(ctx context.Context, id int64) error {
	u, err := s.Find(ctx, id)
	if err != nil {
		return err
	}
	if !s.repo.SupportsSoftDelete() {
		if err := s.grants.DetachActor(ctx, guard.RefOf(u)); err != nil {
			return err
		}
	}
	return s.repo.Delete(ctx, id)
}

func (s *Service) materialize(u *User) {
	u.enabled = s.mapping.Resolve(u.State)
}
