package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/orgdir/internal/models"
	"github.com/wolfeidau/orgdir/internal/store"
)

var _ store.Tx = (*tx)(nil)

// tx reads and writes one state value. Writes always store fresh pointers so
// the committed state is never modified through a working copy.
type tx struct {
	state *state
}

func (t *tx) GetOrganization(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	org, exists := t.state.organizations[orgID]
	if !exists {
		return nil, store.ErrOrganizationNotFound
	}

	clone := *org
	return &clone, nil
}

func (t *tx) GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, exists := t.state.users[userID]
	if !exists {
		return nil, store.ErrUserNotFound
	}

	clone := *user
	return &clone, nil
}

func (t *tx) GetMembership(ctx context.Context, orgID, userID uuid.UUID) (*models.Membership, error) {
	m, exists := t.state.memberships[membershipKey{orgID: orgID, userID: userID}]
	if !exists {
		return nil, store.ErrMembershipNotFound
	}

	clone := *m
	return &clone, nil
}

func (t *tx) GetTransfer(ctx context.Context, transferID uuid.UUID) (*models.OwnershipTransfer, error) {
	tr, exists := t.state.transfers[transferID]
	if !exists {
		return nil, store.ErrTransferNotFound
	}

	return cloneTransfer(tr), nil
}

func (t *tx) GetPendingTransfer(ctx context.Context, orgID uuid.UUID) (*models.OwnershipTransfer, error) {
	transferID, exists := t.state.pending[orgID]
	if !exists {
		return nil, store.ErrTransferNotFound
	}

	return cloneTransfer(t.state.transfers[transferID]), nil
}

func (t *tx) SetOrganizationOwner(ctx context.Context, orgID, ownerUserID uuid.UUID, at time.Time) error {
	org, exists := t.state.organizations[orgID]
	if !exists {
		return store.ErrOrganizationNotFound
	}
	if _, exists := t.state.users[ownerUserID]; !exists {
		return store.ErrUserNotFound
	}

	clone := *org
	clone.OwnerUserID = ownerUserID
	clone.UpdatedAt = at
	t.state.organizations[orgID] = &clone

	return nil
}

func (t *tx) PutMembership(ctx context.Context, m *models.Membership) error {
	if err := store.CheckMembershipRole(m.Role); err != nil {
		return err
	}

	org, exists := t.state.organizations[m.OrgID]
	if !exists {
		return store.ErrOrganizationNotFound
	}
	if _, exists := t.state.users[m.UserID]; !exists {
		return store.ErrUserNotFound
	}
	if org.OwnerUserID == m.UserID {
		return store.ErrOwnerMembership
	}

	key := membershipKey{orgID: m.OrgID, userID: m.UserID}
	clone := *m
	if existing, exists := t.state.memberships[key]; exists {
		clone.CreatedAt = existing.CreatedAt
	}
	t.state.memberships[key] = &clone

	return nil
}

func (t *tx) DeleteMembership(ctx context.Context, orgID, userID uuid.UUID) error {
	delete(t.state.memberships, membershipKey{orgID: orgID, userID: userID})
	return nil
}

func (t *tx) CreateTransfer(ctx context.Context, tr *models.OwnershipTransfer) error {
	if _, exists := t.state.transfers[tr.TransferID]; exists {
		return fmt.Errorf("transfer %s already exists", tr.TransferID)
	}
	// Mirrors the partial unique index on (organization_id) WHERE status = 'pending'.
	if _, exists := t.state.pending[tr.OrgID]; exists {
		return store.ErrPendingTransferExists
	}
	if _, exists := t.state.organizations[tr.OrgID]; !exists {
		return store.ErrOrganizationNotFound
	}

	t.state.transfers[tr.TransferID] = cloneTransfer(tr)
	t.state.pending[tr.OrgID] = tr.TransferID

	return nil
}

func (t *tx) CompleteTransfer(ctx context.Context, tr *models.OwnershipTransfer) error {
	current, exists := t.state.transfers[tr.TransferID]
	if !exists {
		return store.ErrTransferNotFound
	}
	if current.Status != models.TransferPending {
		return store.ErrTransferNotPending
	}
	if !tr.Status.IsTerminal() {
		return fmt.Errorf("transfer %s: status %s is not terminal", tr.TransferID, tr.Status)
	}

	updated := cloneTransfer(current)
	updated.Status = tr.Status
	updated.CompletedAt = tr.CompletedAt
	updated.CancellationReason = tr.CancellationReason
	t.state.transfers[tr.TransferID] = cloneTransfer(updated)
	delete(t.state.pending, current.OrgID)

	return nil
}

func (t *tx) AppendAuditEntry(ctx context.Context, e *models.TransferAuditEntry) error {
	if _, exists := t.state.transfers[e.TransferID]; !exists {
		return store.ErrTransferNotFound
	}

	t.state.audit[e.TransferID] = append(t.state.audit[e.TransferID], cloneAuditEntry(e))

	return nil
}
