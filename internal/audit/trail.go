// Package audit records transfer history and organization compliance events.
//
// The transfer trail is written inside the transaction of the transition it
// describes. The organization log is an external collaborator written after
// commit; its failures are logged and never undo a transition.
package audit

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/orgdir/internal/models"
	"github.com/wolfeidau/orgdir/internal/store"
)

// Metadata keys used on transfer audit entries.
const (
	MetaReason         = "reason"
	MetaPreviousStatus = "previous_status"
	MetaExpiresAt      = "expires_at"
	MetaSwept          = "swept"
	MetaPreviousOwner  = "previous_owner"
	MetaAttemptedBy    = "attempted_by"
)

// Record describes one transfer audit entry before it is stamped.
type Record struct {
	TransferID uuid.UUID
	Action     models.AuditAction
	ActorID    uuid.UUID // uuid.Nil for system actions
	ActorRole  string
	Metadata   map[string]string
	IPAddress  string
	UserAgent  string
}

// Trail appends transfer audit entries.
type Trail struct {
	now func() time.Time
}

// NewTrail returns a Trail stamping entries with now. A nil now uses time.Now.
func NewTrail(now func() time.Time) *Trail {
	if now == nil {
		now = time.Now
	}
	return &Trail{now: now}
}

// Record appends one immutable entry through tx and returns it.
func (t *Trail) Record(ctx context.Context, tx store.Tx, rec Record) (*models.TransferAuditEntry, error) {
	entryID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate audit entry id: %w", err)
	}

	entry := &models.TransferAuditEntry{
		EntryID:    entryID,
		TransferID: rec.TransferID,
		Action:     rec.Action,
		ActorID:    rec.ActorID,
		ActorRole:  rec.ActorRole,
		Metadata:   maps.Clone(rec.Metadata),
		IPAddress:  rec.IPAddress,
		UserAgent:  rec.UserAgent,
		Timestamp:  t.now().UTC().Truncate(time.Millisecond),
	}
	if entry.Metadata == nil {
		entry.Metadata = map[string]string{}
	}

	if err := tx.AppendAuditEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to record %s audit entry: %w", rec.Action, err)
	}

	return entry, nil
}
