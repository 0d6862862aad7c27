// Package catalog owns the five core entities of the authorization engine
// (permissions, roles, sections, containers and their guard scoping), their
// persistence contract, and the read-through registrar cache.
package catalog

import (
	"time"
)

// State marks an entity as enabled or disabled. Disabled entities keep their
// grants but stop taking effect in enabled-checked evaluations.
type State int16

const (
	StateDisabled State = 0
	StateEnabled  State = 1
)

// Enabled reports whether the state is the enabled value.
func (s State) Enabled() bool { return s == StateEnabled }

// Valid reports whether the state is one of the two known values.
func (s State) Valid() bool { return s == StateDisabled || s == StateEnabled }

// Meta is a free-form attribute bag stored as JSONB.
type Meta map[string]any

// Permission is an atomic capability, unique by (guard, name). The canonical
// names read/create/update/delete are conventional, not enforced.
type Permission struct {
	ID        int64     `json:"id"`
	Guard     string    `json:"guard"`
	Name      string    `json:"name"`
	Label     Label     `json:"label,omitempty"`
	State     State     `json:"state"`
	Meta      Meta      `json:"meta,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Role groups permissions. Two role names are privileged by configuration:
// the superuser role bypasses all checks, the admin role is elevated but not
// unlimited.
type Role struct {
	ID        int64     `json:"id"`
	Guard     string    `json:"guard"`
	Name      string    `json:"name"`
	Label     Label     `json:"label,omitempty"`
	State     State     `json:"state"`
	Meta      Meta      `json:"meta,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ActorID implements guard.Actor so a role can stand in as the actor of a
// direct-permission check.
func (r *Role) ActorID() int64 { return r.ID }

// GuardName implements guard.Actor.
func (r *Role) GuardName() string { return r.Guard }

// Enabled implements guard.Actor.
func (r *Role) Enabled() bool { return r.State.Enabled() }

// Section is a node in the per-guard authorization hierarchy. Root sections
// have a nil ParentID; Order is a dense per-sibling-group sort key.
type Section struct {
	ID         int64     `json:"id"`
	Guard      string    `json:"guard"`
	Name       string    `json:"name"`
	Label      Label     `json:"label,omitempty"`
	State      State     `json:"state"`
	Meta       Meta      `json:"meta,omitempty"`
	Superadmin *bool     `json:"superadmin,omitempty"`
	ParentID   *int64    `json:"parent_id,omitempty"`
	Order      int       `json:"order"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Container is a flat per-guard scope (tenant, site, workspace) orthogonal to
// sections. Grants always target a (section, container) pair.
type Container struct {
	ID        int64     `json:"id"`
	Guard     string    `json:"guard"`
	Name      string    `json:"name"`
	Label     Label     `json:"label,omitempty"`
	State     State     `json:"state"`
	Meta      Meta      `json:"meta,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ref identifies a catalog entity by name or by id. Public entry points
// accept refs and resolve them exactly once; internals work on entities.
type Ref struct {
	name string
	id   int64
	byID bool
}

// ByName builds a name reference, resolved within the caller's guard.
func ByName(name string) Ref { return Ref{name: name} }

// ByID builds an id reference.
func ByID(id int64) Ref { return Ref{id: id, byID: true} }

// IsZero reports whether the ref identifies nothing.
func (r Ref) IsZero() bool { return !r.byID && r.name == "" }

// Name returns the referenced name, empty for id refs.
func (r Ref) Name() string { return r.name }
