// Package notify delivers best-effort side effects of transfer transitions:
// email notices and real-time events. Nothing here can fail a transition.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Notice is the content of a transfer email.
type Notice struct {
	TransferID    uuid.UUID
	OrgID         uuid.UUID
	OrgName       string
	FromName      string
	ToName        string
	RecipientName string
	Reason        string
	ExpiresAt     time.Time
}

// Mailer sends transfer notices to a recipient address.
type Mailer interface {
	NotifyInitiated(ctx context.Context, recipientEmail string, n Notice) error
	NotifyAccepted(ctx context.Context, recipientEmail string, n Notice) error
	NotifyRejected(ctx context.Context, recipientEmail string, n Notice) error
	NotifyCancelled(ctx context.Context, recipientEmail string, n Notice) error
}

var _ Mailer = (*LogMailer)(nil)

// LogMailer logs notices instead of sending them.
type LogMailer struct {
	logger zerolog.Logger
}

func NewLogMailer(logger zerolog.Logger) *LogMailer {
	return &LogMailer{logger: logger.With().Str("component", "mailer").Logger()}
}

func (m *LogMailer) NotifyInitiated(ctx context.Context, recipientEmail string, n Notice) error {
	m.log(recipientEmail, "initiated", n).Msgf("%s wants to transfer ownership of %s to you", n.FromName, n.OrgName)
	return nil
}

func (m *LogMailer) NotifyAccepted(ctx context.Context, recipientEmail string, n Notice) error {
	m.log(recipientEmail, "accepted", n).Msgf("%s accepted ownership of %s", n.ToName, n.OrgName)
	return nil
}

func (m *LogMailer) NotifyRejected(ctx context.Context, recipientEmail string, n Notice) error {
	m.log(recipientEmail, "rejected", n).Msgf("%s declined ownership of %s", n.ToName, n.OrgName)
	return nil
}

func (m *LogMailer) NotifyCancelled(ctx context.Context, recipientEmail string, n Notice) error {
	m.log(recipientEmail, "cancelled", n).Msgf("%s cancelled the ownership transfer of %s", n.FromName, n.OrgName)
	return nil
}

func (m *LogMailer) log(recipientEmail, kind string, n Notice) *zerolog.Event {
	e := m.logger.Info().
		Str("to", recipientEmail).
		Str("notice", kind).
		Str("transfer_id", n.TransferID.String()).
		Str("org_id", n.OrgID.String())
	if n.Reason != "" {
		e = e.Str("reason", n.Reason)
	}
	return e
}
