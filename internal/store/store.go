package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/orgdir/internal/models"
)

// Sentinel errors for common error conditions
var (
	ErrTransferNotFound      = errors.New("transfer not found")
	ErrPendingTransferExists = errors.New("organization already has a pending transfer")
	ErrTransferNotPending    = errors.New("transfer is no longer pending")
	ErrMembershipNotFound    = errors.New("membership not found")
	ErrOwnerMembership       = errors.New("organization owner cannot hold a membership")
	ErrInvalidMembershipRole = errors.New("invalid membership role")
)

// Reader is the read side shared by Store and Tx.
type Reader interface {
	// GetOrganization returns ErrOrganizationNotFound if the organization doesn't exist.
	GetOrganization(ctx context.Context, orgID uuid.UUID) (*models.Organization, error)

	// GetUser returns ErrUserNotFound if the user doesn't exist.
	GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error)

	// GetMembership returns ErrMembershipNotFound if the user has no membership in the organization.
	GetMembership(ctx context.Context, orgID, userID uuid.UUID) (*models.Membership, error)

	// GetTransfer returns ErrTransferNotFound if the transfer doesn't exist.
	GetTransfer(ctx context.Context, transferID uuid.UUID) (*models.OwnershipTransfer, error)

	// GetPendingTransfer returns the organization's pending transfer, or ErrTransferNotFound.
	GetPendingTransfer(ctx context.Context, orgID uuid.UUID) (*models.OwnershipTransfer, error)
}

// Tx is a unit of work. Every write made through a Tx commits or rolls back
// with the other writes of the same WithTx callback.
type Tx interface {
	Reader

	// SetOrganizationOwner replaces the owner of record.
	SetOrganizationOwner(ctx context.Context, orgID, ownerUserID uuid.UUID, at time.Time) error

	// PutMembership inserts or updates a membership. Returns ErrOwnerMembership if the
	// user currently owns the organization and ErrInvalidMembershipRole for RoleOwner.
	PutMembership(ctx context.Context, m *models.Membership) error

	// DeleteMembership removes a membership. Deleting a missing membership is not an error.
	DeleteMembership(ctx context.Context, orgID, userID uuid.UUID) error

	// CreateTransfer inserts a new pending transfer.
	// Returns ErrPendingTransferExists if the organization already has one.
	CreateTransfer(ctx context.Context, t *models.OwnershipTransfer) error

	// CompleteTransfer persists a terminal status, completion time and cancellation reason.
	// The write only applies while the stored row is still pending, otherwise ErrTransferNotPending.
	CompleteTransfer(ctx context.Context, t *models.OwnershipTransfer) error

	// AppendAuditEntry appends one immutable transfer audit row.
	AppendAuditEntry(ctx context.Context, e *models.TransferAuditEntry) error
}

// TransferFilter narrows ListTransfers.
type TransferFilter struct {
	Status models.TransferStatus // zero = all statuses
	Limit  int                   // 0 = DefaultListLimit
	Offset int
}

// DefaultListLimit caps list queries that don't specify a limit.
const DefaultListLimit = 50

// MaxListLimit is the largest page a list query will return.
const MaxListLimit = 500

// EffectiveLimit returns the limit to apply to a query.
func (f TransferFilter) EffectiveLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultListLimit
	case f.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return f.Limit
	}
}

// Store is the directory and transfer storage used by the access and transfer packages.
type Store interface {
	Reader
	OrganizationStore
	UserStore

	// WithTx runs fn inside a serializable transaction. If fn returns an error nothing is persisted.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// PutMembership inserts or updates a membership outside of a transfer.
	PutMembership(ctx context.Context, m *models.Membership) error

	// ListMemberships returns the memberships of an organization.
	ListMemberships(ctx context.Context, orgID uuid.UUID) ([]*models.Membership, error)

	// ListTransfers returns an organization's transfers, newest first.
	ListTransfers(ctx context.Context, orgID uuid.UUID, filter TransferFilter) ([]*models.OwnershipTransfer, error)

	// ListPendingTransfersForUser returns pending transfers where the user is initiator or recipient.
	ListPendingTransfersForUser(ctx context.Context, userID uuid.UUID) ([]*models.OwnershipTransfer, error)

	// ListExpiredPending returns up to limit pending transfers whose ExpiresAt is before now.
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*models.OwnershipTransfer, error)

	// ListAuditEntries returns a transfer's audit entries, oldest first.
	ListAuditEntries(ctx context.Context, transferID uuid.UUID) ([]*models.TransferAuditEntry, error)

	Close() error
}

// CheckMembershipRole rejects roles that can't be stored on a Membership.
func CheckMembershipRole(role models.Role) error {
	if _, err := models.ParseMembershipRole(string(role)); err != nil {
		return errors.Join(ErrInvalidMembershipRole, err)
	}
	return nil
}
