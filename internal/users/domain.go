// Package users is the reference actor provider: accounts stored in the
// users table, mapped onto the guard.Actor capability through the configured
// state mapping. Hosts with their own identity store replace this package by
// registering a different provider.
package users

import "time"

// User is a user account. The raw State value is interpreted by the guard's
// StateMapping at load time, so the engine never hardcodes what "active"
// means for a host application.
type User struct {
	ID           int64     `json:"id"`
	Guard        string    `json:"guard"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	State        string    `json:"state"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	enabled bool
}

// ActorID implements guard.Actor.
func (u *User) ActorID() int64 { return u.ID }

// GuardName implements guard.Actor.
func (u *User) GuardName() string { return u.Guard }

// Enabled implements guard.Actor, resolved from State when the user is
// loaded.
func (u *User) Enabled() bool { return u.enabled }
