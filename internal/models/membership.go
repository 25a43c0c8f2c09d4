package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role is an organization-scoped role. RoleNone is the zero value and
// means no access.
type Role string

const (
	RoleNone   Role = ""
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
	RoleOwner  Role = "owner" // never stored on a Membership
)

// Rank orders roles: viewer < editor < admin < owner. RoleNone and unknown
// roles rank 0.
func (r Role) Rank() int {
	switch r {
	case RoleViewer:
		return 1
	case RoleEditor:
		return 2
	case RoleAdmin:
		return 3
	case RoleOwner:
		return 4
	default:
		return 0
	}
}

// AtLeast reports whether r ranks at or above min.
func (r Role) AtLeast(min Role) bool {
	return r.Rank() > 0 && r.Rank() >= min.Rank()
}

// ParseMembershipRole validates a role that may be stored on a Membership.
// RoleOwner is rejected: ownership lives on Organization.OwnerUserID only.
func ParseMembershipRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleViewer, RoleEditor, RoleAdmin:
		return r, nil
	case RoleOwner:
		return RoleNone, fmt.Errorf("owner is not a valid membership role")
	default:
		return RoleNone, fmt.Errorf("unknown membership role %q", s)
	}
}

// Membership assigns a user a role below owner in one organization.
// (OrgID, UserID) is unique.
type Membership struct {
	OrgID     uuid.UUID
	UserID    uuid.UUID
	Role      Role
	CreatedAt time.Time
	UpdatedAt time.Time
}
