package shared

import (
	"errors"
	"fmt"
)

// Sentinel errors for the authorization domain. Typed errors below unwrap to
// these so callers can classify with errors.Is without losing detail.
var (
	// ErrNotFound indicates a catalog entity lookup by name or id missed.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists indicates a (name, guard) collision on create.
	ErrAlreadyExists = errors.New("already exists")
	// ErrGuardMismatch indicates entities from different guards were used
	// together. This is a call-site defect, never user input.
	ErrGuardMismatch = errors.New("guard mismatch")
	// ErrMalformedScope indicates a scope argument list of the wrong shape.
	ErrMalformedScope = errors.New("malformed scope arguments")
	// ErrUnauthorized is the terminal negative outcome of a check.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrValidation indicates a request failed validation.
	ErrValidation = errors.New("validation failed")
	// ErrSectionCycle indicates the section parent chain loops.
	ErrSectionCycle = errors.New("section parent cycle")
)

// Kind names an authorization entity class in error messages.
type Kind string

const (
	KindPermission Kind = "permission"
	KindRole       Kind = "role"
	KindSection    Kind = "section"
	KindContainer  Kind = "container"
	KindUser       Kind = "user"
	KindGuard      Kind = "guard"
)

// NotFoundError reports a missed lookup. Either Name or ID is set.
type NotFoundError struct {
	Kind  Kind
	Name  string
	Guard string
	ID    int64
}

func (e *NotFoundError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s %q does not exist for guard %q", e.Kind, e.Name, e.Guard)
	}
	return fmt.Sprintf("%s id %d does not exist", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// AlreadyExistsError reports a create collision on (name, guard).
type AlreadyExistsError struct {
	Kind  Kind
	Name  string
	Guard string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s %q already exists for guard %q", e.Kind, e.Name, e.Guard)
}

func (e *AlreadyExistsError) Unwrap() error { return ErrAlreadyExists }

// GuardMismatchError reports entities of different guards used in one check.
type GuardMismatchError struct {
	Kind     Kind
	Expected string
	Got      string
}

func (e *GuardMismatchError) Error() string {
	return fmt.Sprintf("%s guard %q does not match expected guard %q", e.Kind, e.Got, e.Expected)
}

func (e *GuardMismatchError) Unwrap() error { return ErrGuardMismatch }

// MalformedScopeError reports a gate invocation whose scope argument list is
// not exactly (section, container), or whose arguments are of an unusable
// type.
type MalformedScopeError struct {
	Got    int
	Reason string
}

func (e *MalformedScopeError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("malformed scope arguments: %s", e.Reason)
	}
	return fmt.Sprintf("expected exactly 2 scope arguments (section, container), got %d", e.Got)
}

func (e *MalformedScopeError) Unwrap() error { return ErrMalformedScope }

// UnauthorizedError carries the permission and scope a check failed for.
type UnauthorizedError struct {
	Permission string
	Section    string
	Container  string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("not authorized for %q on section %q in container %q", e.Permission, e.Section, e.Container)
}

func (e *UnauthorizedError) Unwrap() error { return ErrUnauthorized }
