package transfer

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/orgdir/internal/access"
	"github.com/wolfeidau/orgdir/internal/apperr"
	"github.com/wolfeidau/orgdir/internal/store"
)

// Validator checks the preconditions for creating a transfer.
type Validator struct {
	reader   store.Reader
	resolver *access.Resolver
}

// NewValidator returns a Validator reading through r, which may be a transaction.
func NewValidator(r store.Reader) *Validator {
	return &Validator{reader: r, resolver: access.NewResolver(r)}
}

// ValidateEligibility returns nil if fromUserID may hand the organization to
// toUserID right now. A superuser is rejected as initiator: only the owner of
// record can give ownership away.
func (v *Validator) ValidateEligibility(ctx context.Context, orgID, fromUserID, toUserID uuid.UUID) error {
	a, err := v.resolver.Resolve(ctx, orgID, fromUserID)
	if err != nil {
		return err
	}
	if !a.IsTrueOwner() {
		return apperr.Forbidden("Only the organization owner can transfer ownership")
	}

	if toUserID == fromUserID {
		return apperr.Validation("Cannot transfer ownership to yourself")
	}

	if _, err := v.reader.GetUser(ctx, toUserID); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return apperr.NotFound("Recipient user not found")
		}
		return apperr.Internal(err, "failed to load recipient")
	}

	_, err = v.reader.GetPendingTransfer(ctx, orgID)
	switch {
	case err == nil:
		return pendingExists()
	case errors.Is(err, store.ErrTransferNotFound):
		return nil
	default:
		return apperr.Internal(err, "failed to check pending transfers")
	}
}

func pendingExists() error {
	return apperr.Conflict("Organization already has a pending ownership transfer")
}
