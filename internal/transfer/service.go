// Package transfer implements the ownership transfer lifecycle: initiation,
// the four terminal transitions and the expiry sweep.
//
// Every transition runs in one store transaction together with its
// transfer audit entry. Organization log writes, emails and events happen
// after commit and can never undo a transition.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/orgdir/internal/access"
	"github.com/wolfeidau/orgdir/internal/apperr"
	"github.com/wolfeidau/orgdir/internal/audit"
	"github.com/wolfeidau/orgdir/internal/models"
	"github.com/wolfeidau/orgdir/internal/notify"
	"github.com/wolfeidau/orgdir/internal/store"
	"github.com/wolfeidau/orgdir/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	msgRecipientOnlyAccept = "Only the designated recipient can accept this transfer"
	msgRecipientOnlyReject = "Only the designated recipient can reject this transfer"
	msgCancelNotAllowed    = "Only the transfer initiator or the organization owner can cancel this transfer"
	msgExpired             = "This transfer has expired"
)

// Client describes where a request came from, for the audit trail.
type Client struct {
	IPAddress string
	UserAgent string
}

// Direction tells whether a pending transfer is addressed to or sent by a user.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// PendingTransfer is a pending transfer seen from one of its parties.
type PendingTransfer struct {
	Transfer  *models.OwnershipTransfer
	Direction Direction
}

// Deps are the collaborators of a Service. Only Store is required.
type Deps struct {
	Store      store.Store
	OrgLog     audit.OrgLog
	Mailer     notify.Mailer
	Events     notify.EventEmitter
	Dispatcher *notify.Dispatcher
}

// Service is the transfer state machine.
type Service struct {
	store      store.Store
	trail      *audit.Trail
	orgLog     audit.OrgLog
	mailer     notify.Mailer
	events     notify.EventEmitter
	dispatcher *notify.Dispatcher
	cfg        Config
	metrics    *telemetry.Metrics
}

// NewService creates a Service. Missing collaborators default to log-backed
// implementations and an event hub without subscribers.
func NewService(deps Deps, cfg Config) (*Service, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transfer config: %w", err)
	}

	if deps.OrgLog == nil {
		deps.OrgLog = audit.NewLogOrgLog(log.Logger)
	}
	if deps.Mailer == nil {
		deps.Mailer = notify.NewLogMailer(log.Logger)
	}
	if deps.Events == nil {
		deps.Events = notify.NewHub(0)
	}
	if deps.Dispatcher == nil {
		deps.Dispatcher = notify.NewDispatcher(0)
	}

	return &Service{
		store:      deps.Store,
		trail:      audit.NewTrail(cfg.Now),
		orgLog:     deps.OrgLog,
		mailer:     deps.Mailer,
		events:     deps.Events,
		dispatcher: deps.Dispatcher,
		cfg:        cfg,
		metrics:    telemetry.GetMetrics(),
	}, nil
}

// now returns the clock time at the precision every store keeps.
func (s *Service) now() time.Time {
	return s.cfg.Now().UTC().Truncate(time.Millisecond)
}

// transition is a committed state change and what the side effects need.
type transition struct {
	transfer *models.OwnershipTransfer
	org      *models.Organization
	from     *models.User
	to       *models.User
	entry    *models.TransferAuditEntry
}

// Initiate creates a pending transfer of orgID from fromUserID to toUserID.
func (s *Service) Initiate(ctx context.Context, orgID, fromUserID, toUserID uuid.UUID, reason string, client Client) (*models.OwnershipTransfer, error) {
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) < models.MinTransferReasonLength {
		return nil, apperr.Validation("Transfer reason must be at least %d characters", models.MinTransferReasonLength)
	}

	var t transition
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		if err := NewValidator(tx).ValidateEligibility(ctx, orgID, fromUserID, toUserID); err != nil {
			return err
		}

		transferID, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate transfer id: %w", err)
		}

		now := s.now()
		tr := &models.OwnershipTransfer{
			TransferID:  transferID,
			OrgID:       orgID,
			FromUserID:  fromUserID,
			ToUserID:    toUserID,
			Status:      models.TransferPending,
			Reason:      reason,
			InitiatedAt: now,
			ExpiresAt:   now.Add(s.cfg.TTL),
		}

		if err := tx.CreateTransfer(ctx, tr); err != nil {
			if errors.Is(err, store.ErrPendingTransferExists) {
				return pendingExists()
			}
			return err
		}

		entry, err := s.trail.Record(ctx, tx, audit.Record{
			TransferID: tr.TransferID,
			Action:     models.AuditInitiated,
			ActorID:    fromUserID,
			ActorRole:  models.ActorRoleInitiator,
			Metadata: map[string]string{
				audit.MetaReason:    reason,
				audit.MetaExpiresAt: tr.ExpiresAt.Format(time.RFC3339),
			},
			IPAddress: client.IPAddress,
			UserAgent: client.UserAgent,
		})
		if err != nil {
			return err
		}

		t, err = loadTransition(ctx, tx, tr, entry)
		return err
	})
	if err != nil {
		return nil, classify(err, "failed to initiate transfer")
	}

	s.metrics.TransfersInitiatedTotal.Add(ctx, 1)
	log.Info().
		Str("transfer_id", t.transfer.TransferID.String()).
		Str("org_id", orgID.String()).
		Str("from_user_id", fromUserID.String()).
		Str("to_user_id", toUserID.String()).
		Time("expires_at", t.transfer.ExpiresAt).
		Msg("Ownership transfer initiated")

	s.afterCommit(ctx, t)

	return t.transfer, nil
}

// Accept completes a pending transfer on behalf of its recipient. Ownership,
// both memberships and the transfer status change in one transaction.
//
// Accepting after ExpiresAt expires the transfer and returns a Conflict.
func (s *Service) Accept(ctx context.Context, transferID, userID uuid.UUID, client Client) (*models.OwnershipTransfer, error) {
	var (
		t       transition
		expired bool
	)
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		expired = false

		tr, err := getTransfer(ctx, tx, transferID)
		if err != nil {
			return err
		}
		if userID != tr.ToUserID {
			return apperr.Forbidden(msgRecipientOnlyAccept)
		}
		if tr.Status != models.TransferPending {
			return notPending(tr.Status)
		}

		now := s.now()
		if tr.IsExpiredAt(now) {
			expired = true
			t, err = s.expire(ctx, tx, tr, now, map[string]string{audit.MetaAttemptedBy: userID.String()}, client)
			return err
		}

		if err := tx.SetOrganizationOwner(ctx, tr.OrgID, tr.ToUserID, now); err != nil {
			return err
		}
		if err := tx.DeleteMembership(ctx, tr.OrgID, tr.ToUserID); err != nil {
			return err
		}
		if err := tx.PutMembership(ctx, &models.Membership{
			OrgID:     tr.OrgID,
			UserID:    tr.FromUserID,
			Role:      models.RoleAdmin,
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			return err
		}
		if err := complete(ctx, tx, tr, models.TransferAccepted, now); err != nil {
			return err
		}

		entry, err := s.trail.Record(ctx, tx, audit.Record{
			TransferID: tr.TransferID,
			Action:     models.AuditAccepted,
			ActorID:    userID,
			ActorRole:  models.ActorRoleRecipient,
			Metadata: map[string]string{
				audit.MetaPreviousStatus: models.TransferPending.String(),
				audit.MetaPreviousOwner:  tr.FromUserID.String(),
			},
			IPAddress: client.IPAddress,
			UserAgent: client.UserAgent,
		})
		if err != nil {
			return err
		}

		t, err = loadTransition(ctx, tx, tr, entry)
		return err
	})
	if err != nil {
		return nil, classify(err, "failed to accept transfer")
	}

	s.recordTransition(ctx, t)
	s.afterCommit(ctx, t)

	if expired {
		return nil, apperr.Conflict(msgExpired)
	}
	return t.transfer, nil
}

// Reject declines a pending transfer on behalf of its recipient. reason is optional.
func (s *Service) Reject(ctx context.Context, transferID, userID uuid.UUID, reason string, client Client) (*models.OwnershipTransfer, error) {
	reason = strings.TrimSpace(reason)

	var t transition
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		tr, err := getTransfer(ctx, tx, transferID)
		if err != nil {
			return err
		}
		if userID != tr.ToUserID {
			return apperr.Forbidden(msgRecipientOnlyReject)
		}
		if tr.Status != models.TransferPending {
			return notPending(tr.Status)
		}

		if err := complete(ctx, tx, tr, models.TransferRejected, s.now()); err != nil {
			return err
		}

		metadata := map[string]string{audit.MetaPreviousStatus: models.TransferPending.String()}
		if reason != "" {
			metadata[audit.MetaReason] = reason
		}
		entry, err := s.trail.Record(ctx, tx, audit.Record{
			TransferID: tr.TransferID,
			Action:     models.AuditRejected,
			ActorID:    userID,
			ActorRole:  models.ActorRoleRecipient,
			Metadata:   metadata,
			IPAddress:  client.IPAddress,
			UserAgent:  client.UserAgent,
		})
		if err != nil {
			return err
		}

		t, err = loadTransition(ctx, tx, tr, entry)
		return err
	})
	if err != nil {
		return nil, classify(err, "failed to reject transfer")
	}

	s.recordTransition(ctx, t)
	s.afterCommit(ctx, t)

	return t.transfer, nil
}

// Cancel withdraws a pending transfer. The initiator or the current owner of
// record may cancel; a superuser alone may not.
func (s *Service) Cancel(ctx context.Context, transferID, userID uuid.UUID, reason string, client Client) (*models.OwnershipTransfer, error) {
	reason = strings.TrimSpace(reason)

	var t transition
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		tr, err := getTransfer(ctx, tx, transferID)
		if err != nil {
			return err
		}

		actorRole := models.ActorRoleInitiator
		if userID != tr.FromUserID {
			a, err := access.NewResolver(tx).Resolve(ctx, tr.OrgID, userID)
			if err != nil {
				return err
			}
			if !a.IsTrueOwner() {
				return apperr.Forbidden(msgCancelNotAllowed)
			}
			actorRole = models.ActorRoleOwner
		}

		if tr.Status != models.TransferPending {
			return notPending(tr.Status)
		}
		if reason == "" {
			return apperr.Validation("Cancellation reason is required")
		}

		tr.CancellationReason = &reason
		if err := complete(ctx, tx, tr, models.TransferCancelled, s.now()); err != nil {
			return err
		}

		entry, err := s.trail.Record(ctx, tx, audit.Record{
			TransferID: tr.TransferID,
			Action:     models.AuditCancelled,
			ActorID:    userID,
			ActorRole:  actorRole,
			Metadata: map[string]string{
				audit.MetaPreviousStatus: models.TransferPending.String(),
				audit.MetaReason:         reason,
			},
			IPAddress: client.IPAddress,
			UserAgent: client.UserAgent,
		})
		if err != nil {
			return err
		}

		t, err = loadTransition(ctx, tx, tr, entry)
		return err
	})
	if err != nil {
		return nil, classify(err, "failed to cancel transfer")
	}

	s.recordTransition(ctx, t)
	s.afterCommit(ctx, t)

	return t.transfer, nil
}

// Get returns a transfer to one of its parties or an organization admin.
func (s *Service) Get(ctx context.Context, transferID, userID uuid.UUID) (*models.OwnershipTransfer, error) {
	tr, err := getTransfer(ctx, s.store, transferID)
	if err != nil {
		return nil, classify(err, "failed to get transfer")
	}

	if err := s.authorizeView(ctx, tr, userID); err != nil {
		return nil, err
	}

	return tr, nil
}

// List returns an organization's transfers to an organization admin.
func (s *Service) List(ctx context.Context, orgID, userID uuid.UUID, filter store.TransferFilter) ([]*models.OwnershipTransfer, error) {
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, apperr.Validation("limit and offset must not be negative")
	}

	if _, err := access.NewResolver(s.store).RequirePermission(ctx, orgID, userID, models.RoleAdmin); err != nil {
		return nil, err
	}

	transfers, err := s.store.ListTransfers(ctx, orgID, filter)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list transfers")
	}

	return transfers, nil
}

// PendingForUser returns the pending transfers userID sent or received.
func (s *Service) PendingForUser(ctx context.Context, userID uuid.UUID) ([]PendingTransfer, error) {
	transfers, err := s.store.ListPendingTransfersForUser(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list pending transfers")
	}

	result := make([]PendingTransfer, 0, len(transfers))
	for _, tr := range transfers {
		direction := DirectionIncoming
		if tr.FromUserID == userID {
			direction = DirectionOutgoing
		}
		result = append(result, PendingTransfer{Transfer: tr, Direction: direction})
	}

	return result, nil
}

// AuditLog returns a transfer's audit entries, oldest first, with the same
// visibility rules as Get.
func (s *Service) AuditLog(ctx context.Context, transferID, userID uuid.UUID) ([]*models.TransferAuditEntry, error) {
	if _, err := s.Get(ctx, transferID, userID); err != nil {
		return nil, err
	}

	entries, err := s.store.ListAuditEntries(ctx, transferID)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list audit entries")
	}

	return entries, nil
}

// ExpireOld moves every pending transfer whose ExpiresAt is before now to
// expired and returns how many it moved. Each transfer is expired in its own
// transaction, re-checked inside it, so running concurrently with accept,
// reject, cancel or another sweep is safe. A second run finds nothing to do.
func (s *Service) ExpireOld(ctx context.Context) (int, error) {
	started := time.Now()
	now := s.now()

	var (
		total    int
		firstErr error
	)
	for {
		batch, err := s.store.ListExpiredPending(ctx, now, s.cfg.SweepBatchSize)
		if err != nil {
			return total, apperr.Internal(err, "failed to list expired transfers")
		}

		expired := 0
		for _, candidate := range batch {
			var (
				t    transition
				done bool
			)
			err := s.store.WithTx(ctx, func(tx store.Tx) error {
				done = false

				tr, err := tx.GetTransfer(ctx, candidate.TransferID)
				if err != nil {
					return err
				}
				if tr.Status != models.TransferPending || !tr.ExpiresAt.Before(now) {
					return nil
				}

				t, err = s.expire(ctx, tx, tr, now, map[string]string{audit.MetaSwept: "true"}, Client{})
				done = err == nil
				return err
			})
			if err != nil {
				log.Error().Err(err).Str("transfer_id", candidate.TransferID.String()).Msg("Failed to expire transfer")
				if firstErr == nil {
					firstErr = apperr.Internal(err, "failed to expire transfer")
				}
				continue
			}
			if done {
				expired++
				s.recordTransition(ctx, t)
				s.afterCommit(ctx, t)
			}
		}
		total += expired

		// a full batch that expired nothing would be listed again; leave the rest for the next sweep
		if len(batch) < s.cfg.SweepBatchSize || expired == 0 {
			break
		}
	}

	s.metrics.TransfersSweptTotal.Add(ctx, int64(total))
	s.metrics.SweepDuration.Record(ctx, float64(time.Since(started).Milliseconds()))

	if total > 0 {
		log.Info().Int("count", total).Msg("Expired pending ownership transfers")
	}

	return total, firstErr
}

// expire moves tr to expired inside tx and records a system audit entry.
func (s *Service) expire(ctx context.Context, tx store.Tx, tr *models.OwnershipTransfer, now time.Time, metadata map[string]string, client Client) (transition, error) {
	if err := complete(ctx, tx, tr, models.TransferExpired, now); err != nil {
		return transition{}, err
	}

	metadata[audit.MetaPreviousStatus] = models.TransferPending.String()
	metadata[audit.MetaExpiresAt] = tr.ExpiresAt.Format(time.RFC3339)

	entry, err := s.trail.Record(ctx, tx, audit.Record{
		TransferID: tr.TransferID,
		Action:     models.AuditExpired,
		ActorID:    uuid.Nil,
		ActorRole:  models.ActorRoleSystem,
		Metadata:   metadata,
		IPAddress:  client.IPAddress,
		UserAgent:  client.UserAgent,
	})
	if err != nil {
		return transition{}, err
	}

	return loadTransition(ctx, tx, tr, entry)
}

func (s *Service) authorizeView(ctx context.Context, tr *models.OwnershipTransfer, userID uuid.UUID) error {
	if tr.Involves(userID) {
		return nil
	}

	a, err := access.NewResolver(s.store).Resolve(ctx, tr.OrgID, userID)
	if err != nil {
		return err
	}
	if !a.HasAdminAccess() {
		return apperr.Forbidden("You do not have permission to view this transfer")
	}

	return nil
}

func (s *Service) recordTransition(ctx context.Context, t transition) {
	s.metrics.TransferTransitionsTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", t.transfer.Status.String())))

	log.Info().
		Str("transfer_id", t.transfer.TransferID.String()).
		Str("org_id", t.transfer.OrgID.String()).
		Str("status", t.transfer.Status.String()).
		Str("actor_id", t.entry.ActorID.String()).
		Msg("Ownership transfer completed")
}

// complete applies a terminal status to tr and persists it. The store only
// writes while the row is still pending, so of two racing transitions one
// fails here.
func complete(ctx context.Context, tx store.Tx, tr *models.OwnershipTransfer, next models.TransferStatus, at time.Time) error {
	if err := tr.Complete(next, at); err != nil {
		return notPending(tr.Status)
	}

	if err := tx.CompleteTransfer(ctx, tr); err != nil {
		if errors.Is(err, store.ErrTransferNotPending) {
			return apperr.Conflict("Transfer is no longer pending")
		}
		return err
	}

	return nil
}

func getTransfer(ctx context.Context, r store.Reader, transferID uuid.UUID) (*models.OwnershipTransfer, error) {
	tr, err := r.GetTransfer(ctx, transferID)
	if err != nil {
		if errors.Is(err, store.ErrTransferNotFound) {
			return nil, apperr.NotFound("Transfer not found")
		}
		return nil, err
	}
	return tr, nil
}

func loadTransition(ctx context.Context, r store.Reader, tr *models.OwnershipTransfer, entry *models.TransferAuditEntry) (transition, error) {
	org, err := r.GetOrganization(ctx, tr.OrgID)
	if err != nil {
		return transition{}, err
	}
	from, err := r.GetUser(ctx, tr.FromUserID)
	if err != nil {
		return transition{}, err
	}
	to, err := r.GetUser(ctx, tr.ToUserID)
	if err != nil {
		return transition{}, err
	}

	return transition{transfer: tr, org: org, from: from, to: to, entry: entry}, nil
}

func notPending(status models.TransferStatus) error {
	return apperr.Conflict("Transfer is already %s", status)
}

// classify passes business errors through and wraps anything else as internal.
func classify(err error, message string) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperr.Internal(err, message)
}
