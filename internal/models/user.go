package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SystemRole is a platform-wide role, independent of any organization.
type SystemRole string

const (
	SystemRoleUser      SystemRole = "user"
	SystemRoleAdmin     SystemRole = "admin"
	SystemRoleSuperuser SystemRole = "superuser" // operational access only, never ownership
)

// ParseSystemRole validates a stored or supplied system role.
func ParseSystemRole(s string) (SystemRole, error) {
	switch r := SystemRole(s); r {
	case SystemRoleUser, SystemRoleAdmin, SystemRoleSuperuser:
		return r, nil
	default:
		return "", fmt.Errorf("unknown system role %q", s)
	}
}

// User is a directory user. Authentication happens elsewhere; only the
// identity and global role are relevant here.
type User struct {
	UserID     uuid.UUID // UUIDv7
	Name       string
	Email      string
	SystemRole SystemRole
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsSuperuser returns true if the user holds the platform superuser role.
func (u *User) IsSuperuser() bool {
	return u.SystemRole == SystemRoleSuperuser
}
