package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TransferStatus is the lifecycle state of an ownership transfer.
// Pending is the only non-terminal state.
type TransferStatus uint8

const (
	TransferPending TransferStatus = iota + 1
	TransferAccepted
	TransferRejected
	TransferCancelled
	TransferExpired
)

// DefaultTransferTTL is how long a pending transfer stays acceptable.
const DefaultTransferTTL = 7 * 24 * time.Hour

// MinTransferReasonLength is the minimum trimmed length of an initiation reason.
const MinTransferReasonLength = 10

func (s TransferStatus) String() string {
	switch s {
	case TransferPending:
		return "pending"
	case TransferAccepted:
		return "accepted"
	case TransferRejected:
		return "rejected"
	case TransferCancelled:
		return "cancelled"
	case TransferExpired:
		return "expired"
	default:
		return fmt.Sprintf("TransferStatus(%d)", uint8(s))
	}
}

// ParseTransferStatus parses the stored representation of a status.
func ParseTransferStatus(s string) (TransferStatus, error) {
	switch s {
	case "pending":
		return TransferPending, nil
	case "accepted":
		return TransferAccepted, nil
	case "rejected":
		return TransferRejected, nil
	case "cancelled":
		return TransferCancelled, nil
	case "expired":
		return TransferExpired, nil
	default:
		return 0, fmt.Errorf("unknown transfer status %q", s)
	}
}

// IsTerminal returns true for every status except pending.
func (s TransferStatus) IsTerminal() bool {
	switch s {
	case TransferPending:
		return false
	case TransferAccepted, TransferRejected, TransferCancelled, TransferExpired:
		return true
	default:
		panic(fmt.Sprintf("unhandled transfer status %d", uint8(s)))
	}
}

// CanTransitionTo reports whether moving from s to next is a legal transition.
func (s TransferStatus) CanTransitionTo(next TransferStatus) bool {
	switch s {
	case TransferPending:
		switch next {
		case TransferAccepted, TransferRejected, TransferCancelled, TransferExpired:
			return true
		case TransferPending:
			return false
		default:
			panic(fmt.Sprintf("unhandled transfer status %d", uint8(next)))
		}
	case TransferAccepted, TransferRejected, TransferCancelled, TransferExpired:
		return false
	default:
		panic(fmt.Sprintf("unhandled transfer status %d", uint8(s)))
	}
}

// MarshalText encodes the status as its string form.
func (s TransferStatus) MarshalText() ([]byte, error) {
	if s < TransferPending || s > TransferExpired {
		return nil, fmt.Errorf("invalid transfer status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes the string form of a status.
func (s *TransferStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseTransferStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// OwnershipTransfer is a time-bounded request to hand an organization's
// ownership from one user to another. Rows are never deleted.
type OwnershipTransfer struct {
	TransferID         uuid.UUID // UUIDv7
	OrgID              uuid.UUID
	FromUserID         uuid.UUID
	ToUserID           uuid.UUID
	Status             TransferStatus
	Reason             string
	CancellationReason *string
	InitiatedAt        time.Time
	ExpiresAt          time.Time // fixed at creation
	CompletedAt        *time.Time
}

// IsExpiredAt returns true once now has passed ExpiresAt.
func (t *OwnershipTransfer) IsExpiredAt(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Involves reports whether userID is the initiator or the recipient.
func (t *OwnershipTransfer) Involves(userID uuid.UUID) bool {
	return t.FromUserID == userID || t.ToUserID == userID
}

// Complete moves a pending transfer to a terminal status. It does not
// persist anything; the store re-checks the pending status on write.
func (t *OwnershipTransfer) Complete(next TransferStatus, at time.Time) error {
	if !t.Status.CanTransitionTo(next) {
		return fmt.Errorf("transfer %s cannot move from %s to %s", t.TransferID, t.Status, next)
	}
	t.Status = next
	completed := at
	t.CompletedAt = &completed
	return nil
}
