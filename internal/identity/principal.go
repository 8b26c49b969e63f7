// Package identity carries the authenticated principal attached to every
// request. Token verification lives in the API layer; services only consume
// the resulting Principal.
package identity

import "github.com/google/uuid"

type Role string

const (
	RolePatient  Role = "patient"
	RoleProvider Role = "provider"
	RoleAdmin    Role = "admin"
	// RoleSystem is used by background workers, never issued to callers.
	RoleSystem Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleProvider, RoleAdmin, RoleSystem:
		return true
	}
	return false
}

// Principal is the authenticated caller of an operation.
type Principal struct {
	ID   uuid.UUID
	Role Role
}

// Staff reports whether the principal may act on behalf of a provider.
func (p Principal) Staff() bool {
	return p.Role == RoleProvider || p.Role == RoleAdmin || p.Role == RoleSystem
}

// Admin reports whether the principal has administrative privileges.
func (p Principal) Admin() bool {
	return p.Role == RoleAdmin || p.Role == RoleSystem
}
