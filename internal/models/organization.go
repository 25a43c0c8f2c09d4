package models

import (
	"time"

	"github.com/google/uuid"
)

// Organization represents an organization (tenant) in the directory.
// OwnerUserID is the single field of record for ownership; the owner never
// also holds a Membership row for the same organization.
type Organization struct {
	OrgID       uuid.UUID // UUIDv7
	Name        string
	OwnerUserID uuid.UUID // UUIDv7, FK to users
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsOwnedBy reports whether userID is the organization's owner of record.
func (o *Organization) IsOwnedBy(userID uuid.UUID) bool {
	return o.OwnerUserID == userID
}
