// Package access resolves a user's effective role in an organization.
package access

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/orgdir/internal/apperr"
	"github.com/wolfeidau/orgdir/internal/models"
	"github.com/wolfeidau/orgdir/internal/store"
)

// Access is the result of resolving a user against an organization.
//
// A superuser resolves to RoleOwner with IsOwner false. Use HasAdminAccess
// for operational checks and IsTrueOwner wherever ownership itself matters.
type Access struct {
	HasAccess    bool
	Role         models.Role
	IsOwner      bool
	ViaSuperuser bool
}

// Permits reports whether the resolved role ranks at least min.
func (a Access) Permits(min models.Role) bool {
	return a.HasAccess && a.Role.AtLeast(min)
}

// HasAdminAccess is true for organization admins, the owner and superusers.
func (a Access) HasAdminAccess() bool {
	return a.Permits(models.RoleAdmin)
}

// IsTrueOwner is true only for the owner of record.
func (a Access) IsTrueOwner() bool {
	return a.HasAccess && a.IsOwner && a.Role == models.RoleOwner
}

// Resolver computes Access from directory reads. It never writes.
type Resolver struct {
	reader store.Reader
}

// NewResolver returns a Resolver over r, which may be a store or a transaction.
func NewResolver(r store.Reader) *Resolver {
	return &Resolver{reader: r}
}

// Resolve returns the user's access to the organization. The first matching
// rule wins: superuser, owner of record, membership, no access.
//
// An unknown user has no access. An unknown organization is NotFound.
func (r *Resolver) Resolve(ctx context.Context, orgID, userID uuid.UUID) (Access, error) {
	org, err := r.reader.GetOrganization(ctx, orgID)
	if err != nil {
		if errors.Is(err, store.ErrOrganizationNotFound) {
			return Access{}, apperr.NotFound("Organization not found")
		}
		return Access{}, apperr.Internal(err, "failed to load organization")
	}

	user, err := r.reader.GetUser(ctx, userID)
	switch {
	case errors.Is(err, store.ErrUserNotFound):
		return Access{}, nil
	case err != nil:
		return Access{}, apperr.Internal(err, "failed to load user")
	}

	if user.IsSuperuser() {
		return Access{HasAccess: true, Role: models.RoleOwner, ViaSuperuser: true}, nil
	}

	if org.IsOwnedBy(userID) {
		return Access{HasAccess: true, Role: models.RoleOwner, IsOwner: true}, nil
	}

	m, err := r.reader.GetMembership(ctx, orgID, userID)
	switch {
	case errors.Is(err, store.ErrMembershipNotFound):
		return Access{}, nil
	case err != nil:
		return Access{}, apperr.Internal(err, "failed to load membership")
	}

	return Access{HasAccess: true, Role: m.Role}, nil
}

// RequirePermission resolves access and returns a Forbidden error unless the
// user's role ranks at least min.
func (r *Resolver) RequirePermission(ctx context.Context, orgID, userID uuid.UUID, min models.Role) (Access, error) {
	a, err := r.Resolve(ctx, orgID, userID)
	if err != nil {
		return Access{}, err
	}

	if !a.Permits(min) {
		return a, apperr.Forbidden("Insufficient permissions: requires %s role", min)
	}

	return a, nil
}
