// Package transferv1 holds the request and response messages of the
// orgdir.transfer.v1.TransferService API. Messages travel as JSON.
package transferv1

import (
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/orgdir/internal/models"
)

// Transfer directions reported on pending listings.
const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

// Transfer is an ownership transfer. Direction is set only on pending listings.
type Transfer struct {
	TransferID         uuid.UUID             `json:"transfer_id"`
	OrgID              uuid.UUID             `json:"org_id"`
	FromUserID         uuid.UUID             `json:"from_user_id"`
	ToUserID           uuid.UUID             `json:"to_user_id"`
	Status             models.TransferStatus `json:"status"`
	Reason             string                `json:"reason"`
	CancellationReason *string               `json:"cancellation_reason,omitempty"`
	InitiatedAt        time.Time             `json:"initiated_at"`
	ExpiresAt          time.Time             `json:"expires_at"`
	CompletedAt        *time.Time            `json:"completed_at,omitempty"`
	Direction          string                `json:"direction,omitempty"`
}

// AuditEntry is one transfer audit record. ActorID is nil for system actions.
type AuditEntry struct {
	EntryID   uuid.UUID          `json:"entry_id"`
	Action    models.AuditAction `json:"action"`
	ActorID   *uuid.UUID         `json:"actor_id"`
	ActorRole string             `json:"actor_role"`
	Metadata  map[string]string  `json:"metadata"`
	IPAddress string             `json:"ip_address,omitempty"`
	UserAgent string             `json:"user_agent,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// Access is a user's resolved access to an organization.
type Access struct {
	OrgID        uuid.UUID   `json:"org_id"`
	UserID       uuid.UUID   `json:"user_id"`
	HasAccess    bool        `json:"has_access"`
	Role         models.Role `json:"role,omitempty"`
	IsOwner      bool        `json:"is_owner"`
	ViaSuperuser bool        `json:"via_superuser"`
}

// TransferEvent is a real-time notification about a transfer sent to its
// target user.
type TransferEvent struct {
	Type         string                `json:"type"`
	TransferID   uuid.UUID             `json:"transfer_id"`
	OrgID        uuid.UUID             `json:"org_id"`
	TargetUserID uuid.UUID             `json:"target_user_id"`
	ActorID      uuid.UUID             `json:"actor_id"`
	Status       models.TransferStatus `json:"status"`
	At           time.Time             `json:"at"`
}

type InitiateTransferRequest struct {
	OrgID    uuid.UUID `json:"org_id"`
	ToUserID uuid.UUID `json:"to_user_id"`
	Reason   string    `json:"reason,omitempty"`
}

type TransferResponse struct {
	Transfer *Transfer `json:"transfer"`
}

// ListTransfersRequest filters an organization's history. An empty status
// lists every status.
type ListTransfersRequest struct {
	OrgID  uuid.UUID `json:"org_id"`
	Status string    `json:"status,omitempty"`
	Limit  int       `json:"limit,omitempty"`
	Offset int       `json:"offset,omitempty"`
}

type ListTransfersResponse struct {
	Transfers []*Transfer `json:"transfers"`
}

type ListPendingTransfersRequest struct{}

type GetTransferRequest struct {
	TransferID uuid.UUID `json:"transfer_id"`
}

// TransitionRequest accepts, rejects or cancels a transfer. Reason is
// required to cancel, optional to reject and ignored on accept.
type TransitionRequest struct {
	TransferID uuid.UUID `json:"transfer_id"`
	Reason     string    `json:"reason,omitempty"`
}

type GetAuditLogRequest struct {
	TransferID uuid.UUID `json:"transfer_id"`
}

type GetAuditLogResponse struct {
	Entries []*AuditEntry `json:"entries"`
}

type GetAccessRequest struct {
	OrgID uuid.UUID `json:"org_id"`
}

type GetAccessResponse struct {
	Access *Access `json:"access"`
}

type StreamEventsRequest struct{}
