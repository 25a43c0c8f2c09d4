package transfer

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/orgdir/internal/audit"
	"github.com/wolfeidau/orgdir/internal/models"
	"github.com/wolfeidau/orgdir/internal/notify"
)

// afterCommit writes the organization log entry and dispatches the email and
// event for a committed transition. Failures are logged only.
func (s *Service) afterCommit(ctx context.Context, t transition) {
	tr := t.transfer

	ev := audit.OrgEvent{
		OrgID:      tr.OrgID,
		ActorID:    t.entry.ActorID,
		Action:     t.entry.Action,
		TransferID: tr.TransferID,
		Summary:    orgSummary(t),
		Details:    t.entry.Metadata,
		IPAddress:  t.entry.IPAddress,
		UserAgent:  t.entry.UserAgent,
		At:         t.entry.Timestamp,
	}
	if err := s.orgLog.LogOrgEvent(ctx, ev); err != nil {
		s.metrics.HookFailuresTotal.Add(ctx, 1)
		log.Error().Err(err).Str("transfer_id", tr.TransferID.String()).Msg("Failed to write organization audit log")
	}

	notice := notify.Notice{
		TransferID: tr.TransferID,
		OrgID:      tr.OrgID,
		OrgName:    t.org.Name,
		FromName:   t.from.Name,
		ToName:     t.to.Name,
		Reason:     t.entry.Metadata[audit.MetaReason],
		ExpiresAt:  tr.ExpiresAt,
	}

	event := notify.Event{
		Type:       notify.EventType(tr.Status),
		TransferID: tr.TransferID,
		Status:     tr.Status,
		At:         t.entry.Timestamp,
	}

	switch tr.Status {
	case models.TransferPending:
		s.sendMail(ctx, t.to, notice, s.mailer.NotifyInitiated)
		s.emit(ctx, tr.OrgID, tr.ToUserID, event, t.entry.ActorID)
	case models.TransferAccepted:
		s.sendMail(ctx, t.from, notice, s.mailer.NotifyAccepted)
		s.emit(ctx, tr.OrgID, tr.FromUserID, event, t.entry.ActorID)
	case models.TransferRejected:
		s.sendMail(ctx, t.from, notice, s.mailer.NotifyRejected)
		s.emit(ctx, tr.OrgID, tr.FromUserID, event, t.entry.ActorID)
	case models.TransferCancelled:
		s.sendMail(ctx, t.to, notice, s.mailer.NotifyCancelled)
		s.emit(ctx, tr.OrgID, tr.ToUserID, event, t.entry.ActorID)
	case models.TransferExpired:
		s.emit(ctx, tr.OrgID, tr.FromUserID, event, t.entry.ActorID)
		s.emit(ctx, tr.OrgID, tr.ToUserID, event, t.entry.ActorID)
	default:
		panic(fmt.Sprintf("unhandled transfer status %d", uint8(tr.Status)))
	}
}

func (s *Service) sendMail(ctx context.Context, recipient *models.User, notice notify.Notice, send func(context.Context, string, notify.Notice) error) {
	if recipient.Email == "" {
		log.Debug().Str("user_id", recipient.UserID.String()).Msg("Recipient has no email, skipping notice")
		return
	}

	notice.RecipientName = recipient.Name
	s.dispatcher.Go(ctx, "mail", func(ctx context.Context) error {
		return send(ctx, recipient.Email, notice)
	})
}

func (s *Service) emit(ctx context.Context, orgID, target uuid.UUID, event notify.Event, actor uuid.UUID) {
	s.dispatcher.Go(ctx, "event", func(ctx context.Context) error {
		return s.events.EmitTransferEvent(ctx, orgID, target, event, actor)
	})
}

func orgSummary(t transition) string {
	switch t.transfer.Status {
	case models.TransferPending:
		return fmt.Sprintf("Ownership transfer of %s from %s to %s initiated", t.org.Name, t.from.Name, t.to.Name)
	case models.TransferAccepted:
		return fmt.Sprintf("Ownership of %s transferred from %s to %s", t.org.Name, t.from.Name, t.to.Name)
	case models.TransferRejected:
		return fmt.Sprintf("%s declined ownership of %s", t.to.Name, t.org.Name)
	case models.TransferCancelled:
		return fmt.Sprintf("Ownership transfer of %s to %s cancelled", t.org.Name, t.to.Name)
	case models.TransferExpired:
		return fmt.Sprintf("Ownership transfer of %s to %s expired", t.org.Name, t.to.Name)
	default:
		panic(fmt.Sprintf("unhandled transfer status %d", uint8(t.transfer.Status)))
	}
}
