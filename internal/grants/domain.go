// Package grants owns the pivot rows binding actors, roles, permissions,
// sections and containers, and the write operations over them. Pivot rows are
// never cached; they are read live on every check.
package grants

import (
	"github.com/gatewarden/gatewarden/internal/guard"
)

// RolePermission grants a permission to a role within one (section,
// container) pair. Presence of the row is the grant; there is no enabled
// flag on role grants.
type RolePermission struct {
	RoleID       int64 `json:"role_id"`
	PermissionID int64 `json:"permission_id"`
	SectionID    int64 `json:"section_id"`
	ContainerID  int64 `json:"container_id"`
}

// ActorPermission grants a permission directly to an actor within one
// (section, container) pair. The Enabled flag lets the row exist but be
// turned off, which overrides whatever a role would grant for the same
// (permission, section, container) tuple.
type ActorPermission struct {
	Actor        guard.ActorRef `json:"actor"`
	PermissionID int64          `json:"permission_id"`
	SectionID    int64          `json:"section_id"`
	ContainerID  int64          `json:"container_id"`
	Enabled      bool           `json:"enabled"`
}

// ActorRole is plain role membership, unscoped.
type ActorRole struct {
	Actor  guard.ActorRef `json:"actor"`
	RoleID int64          `json:"role_id"`
}

// RoleContainer scopes which containers a role is visible in. Administrative
// scoping only, not an authorization gate.
type RoleContainer struct {
	RoleID      int64 `json:"role_id"`
	ContainerID int64 `json:"container_id"`
}

// SectionContainer declares that a section belongs to a container's tree
// projection. A non-nil Superadmin overrides the section's own superadmin
// flag for that container.
type SectionContainer struct {
	SectionID   int64 `json:"section_id"`
	ContainerID int64 `json:"container_id"`
	Superadmin  *bool `json:"superadmin,omitempty"`
}

// Filter narrows pivot reads to avoid loading full sets. Nil fields are
// ignored.
type Filter struct {
	PermissionID *int64
	SectionID    *int64
	ContainerID  *int64
}

// Scoped builds the common (section, container) filter.
func Scoped(sectionID, containerID int64) Filter {
	return Filter{SectionID: &sectionID, ContainerID: &containerID}
}

// WithPermission narrows the filter to one permission.
func (f Filter) WithPermission(permissionID int64) Filter {
	f.PermissionID = &permissionID
	return f
}

// EnabledFlags carries the enabled flag(s) for a direct-grant write: either a
// single value applied to all permissions or one flag per permission, padded
// with false when the slice is short.
type EnabledFlags struct {
	per   []bool
	all   bool
	isPer bool
}

// AllEnabled applies one flag to every permission in the write.
func AllEnabled(v bool) EnabledFlags { return EnabledFlags{all: v} }

// EnabledPer applies one flag per permission, in order.
func EnabledPer(flags []bool) EnabledFlags { return EnabledFlags{per: flags, isPer: true} }

// At returns the flag for the i-th permission.
func (f EnabledFlags) At(i int) bool {
	if !f.isPer {
		return f.all
	}
	if i < len(f.per) {
		return f.per[i]
	}
	return false
}
