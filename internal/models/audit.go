package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction names a transfer lifecycle event.
type AuditAction string

const (
	AuditInitiated AuditAction = "initiated"
	AuditAccepted  AuditAction = "accepted"
	AuditRejected  AuditAction = "rejected"
	AuditCancelled AuditAction = "cancelled"
	AuditExpired   AuditAction = "expired"
)

// ActionFor maps a terminal status to the audit action recording it.
func ActionFor(status TransferStatus) AuditAction {
	switch status {
	case TransferPending:
		return AuditInitiated
	case TransferAccepted:
		return AuditAccepted
	case TransferRejected:
		return AuditRejected
	case TransferCancelled:
		return AuditCancelled
	case TransferExpired:
		return AuditExpired
	default:
		panic("unhandled transfer status " + status.String())
	}
}

// Actor roles recorded on audit entries.
const (
	ActorRoleInitiator = "initiator"
	ActorRoleRecipient = "recipient"
	ActorRoleOwner     = "owner"
	ActorRoleSystem    = "system"
)

// TransferAuditEntry is one append-only row of a transfer's history.
// System actions carry uuid.Nil as ActorID.
type TransferAuditEntry struct {
	EntryID    uuid.UUID
	TransferID uuid.UUID
	Action     AuditAction
	ActorID    uuid.UUID
	ActorRole  string
	Metadata   map[string]string
	IPAddress  string
	UserAgent  string
	Timestamp  time.Time // persisted as epoch milliseconds
}
