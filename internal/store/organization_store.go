package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/orgdir/internal/models"
)

// Sentinel errors for organization store operations
var (
	ErrOrganizationNotFound      = errors.New("organization not found")
	ErrOrganizationAlreadyExists = errors.New("organization already exists")
)

// OrganizationStore defines the directory operations for organizations.
// Ownership is only ever changed through a transfer (see Tx.SetOrganizationOwner).
type OrganizationStore interface {
	// CreateOrganization creates a new organization owned by OwnerUserID.
	// Returns ErrOrganizationAlreadyExists if an organization with the same ID already exists
	// and ErrUserNotFound if the owner doesn't exist.
	CreateOrganization(ctx context.Context, org *models.Organization) error

	// ListOrganizationsByOwner returns all organizations owned by a specific user.
	ListOrganizationsByOwner(ctx context.Context, ownerUserID uuid.UUID) ([]*models.Organization, error)
}
